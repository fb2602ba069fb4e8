// Package engine wires the pipeline together: fetch and hash sheets, decide
// rebuild scope, detect tables, materialize them into the store, and answer
// validated query plans against the committed schema.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gridlabs/gridquery/internal/detect"
	"github.com/gridlabs/gridquery/internal/logging"
	"github.com/gridlabs/gridquery/internal/plan"
	"github.com/gridlabs/gridquery/internal/registry"
	"github.com/gridlabs/gridquery/internal/schema"
	"github.com/gridlabs/gridquery/internal/sheet"
	"github.com/gridlabs/gridquery/internal/store"
)

// Config carries the engine's tunables.
type Config struct {
	Detect       detect.Config
	MaxLimit     int
	QueryTimeout time.Duration

	// TopK bounds how many candidate tables retrieval hands the validator.
	// 0 disables narrowing.
	TopK int

	Fuzzy *plan.FuzzyExpander

	// MaxConcurrentRebuilds caps parallel per-sheet rebuilds during one
	// refresh.
	MaxConcurrentRebuilds int
}

// Engine is the single owner of the refresh and query paths.
type Engine struct {
	connector sheet.Connector
	registry  *registry.Registry
	schemas   *schema.Store
	store     *store.Store
	detector  *detect.Detector
	compiler  *plan.Compiler
	executor  *store.Executor
	retriever schema.Retriever
	topK      int
	rebuilds  int

	// refreshMu serializes whole refresh passes. Individual sheets are
	// additionally locked by the registry; this outer lock keeps the
	// plan/sweep bookkeeping coherent.
	refreshMu sync.Mutex
}

// New assembles an engine. A nil retriever falls back to lexical matching
// over the schema store, so narrowing works without an external embedding
// service.
func New(connector sheet.Connector, reg *registry.Registry, schemas *schema.Store, st *store.Store, retriever schema.Retriever, cfg Config) *Engine {
	if retriever == nil {
		retriever = schema.NewLexicalRetriever(schemas)
	}
	rebuilds := cfg.MaxConcurrentRebuilds
	if rebuilds <= 0 {
		rebuilds = 4
	}
	return &Engine{
		connector: connector,
		registry:  reg,
		schemas:   schemas,
		store:     st,
		detector:  detect.New(cfg.Detect),
		compiler:  plan.NewCompiler(cfg.MaxLimit, cfg.Fuzzy),
		executor:  store.NewExecutor(st, cfg.QueryTimeout),
		retriever: retriever,
		topK:      cfg.TopK,
		rebuilds:  rebuilds,
	}
}

// Query validates, compiles and executes a plan against the current schema
// snapshot. question, when non-empty, narrows validation to the top-k most
// relevant tables via the retriever. A schema swap between validation and
// execution is retried once against the fresh snapshot; rejections, timeouts
// and engine errors pass through as typed values.
func (e *Engine) Query(ctx context.Context, p plan.QueryPlan, question string) (*store.ExecutionResult, error) {
	log := logging.FromContext(ctx)

	candidates, err := e.candidates(ctx, question)
	if err != nil {
		// Retrieval is an optimization, not a gate: fall back to the full
		// schema rather than failing the query.
		log.Warn("schema retrieval failed, considering all tables", "error", err)
		candidates = nil
	}

	res, err := e.runOnce(ctx, p, candidates)
	var stale *store.StaleSchemaError
	if errors.As(err, &stale) {
		log.Info("schema changed mid-query, retrying against fresh snapshot", "table", p.Table)
		res, err = e.runOnce(ctx, p, candidates)
	}
	return res, err
}

func (e *Engine) runOnce(ctx context.Context, p plan.QueryPlan, candidates []string) (*store.ExecutionResult, error) {
	snap := e.schemas.Snapshot()
	vp, rej := plan.Validate(p, snap, candidates)
	if rej != nil {
		return nil, rej
	}
	q, err := e.compiler.Compile(vp)
	if err != nil {
		return nil, err
	}
	return e.executor.Execute(ctx, q)
}

func (e *Engine) candidates(ctx context.Context, question string) ([]string, error) {
	if question == "" || e.topK <= 0 {
		return nil, nil
	}
	scored, err := e.retriever.TopK(ctx, question, e.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve candidate tables: %w", err)
	}
	names := make([]string, len(scored))
	for i, s := range scored {
		names[i] = s.Name
	}
	return names, nil
}

// Tables returns the committed table descriptors.
func (e *Engine) Tables() []*schema.TableDescriptor {
	return e.schemas.Snapshot().Tables()
}

// Registry exposes committed sheet entries for status reporting.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}
