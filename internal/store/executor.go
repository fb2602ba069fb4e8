package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gridlabs/gridquery/internal/plan"
)

// ColumnMeta describes one result column.
type ColumnMeta struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// ExecutionResult is the typed outcome of a successful query.
type ExecutionResult struct {
	Columns   []ColumnMeta `json:"columns"`
	Rows      [][]any      `json:"rows"`
	RowCount  int          `json:"row_count"`
	Truncated bool         `json:"truncated"`
}

// TimeoutError reports that a query exceeded its time budget. The result
// must not be treated as empty data.
type TimeoutError struct {
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("query exceeded time budget of %s", e.Budget)
}

// StaleSchemaError reports that a physical table referenced by the compiled
// query no longer exists: a rebuild swapped it out between validation and
// execution. Retryable against a fresh schema snapshot.
type StaleSchemaError struct {
	cause error
}

func (e *StaleSchemaError) Error() string {
	return fmt.Sprintf("schema changed between validation and execution: %v", e.cause)
}

func (e *StaleSchemaError) Unwrap() error { return e.cause }

// Executor runs compiled queries with a bounded time budget.
type Executor struct {
	store   *Store
	timeout time.Duration
}

// NewExecutor wraps the store; a non-positive timeout falls back to 10s.
func NewExecutor(s *Store, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Executor{store: s, timeout: timeout}
}

// Execute runs the query and scans all rows. Queries are read-only, so a
// timeout needs no rollback, only classification. Engine failures are
// remapped to the plan rejection vocabulary where they correspond to one of
// its reasons.
func (e *Executor) Execute(ctx context.Context, q *plan.CompiledQuery) (*ExecutionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := e.store.db.QueryContext(ctx, q.Text, q.Args...)
	if err != nil {
		return nil, e.remap(err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, e.remap(err)
	}
	columns := make([]ColumnMeta, len(names))
	for i, n := range names {
		columns[i] = ColumnMeta{Name: n}
	}
	if types, err := rows.ColumnTypes(); err == nil {
		for i, t := range types {
			columns[i].Type = t.DatabaseTypeName()
		}
	}

	var out [][]any
	for rows.Next() {
		scan := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range scan {
			ptrs[i] = &scan[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, e.remap(err)
		}
		for i, v := range scan {
			if b, ok := v.([]byte); ok {
				scan[i] = string(b)
			}
		}
		out = append(out, scan)
	}
	if err := rows.Err(); err != nil {
		return nil, e.remap(err)
	}

	return &ExecutionResult{
		Columns:   columns,
		Rows:      out,
		RowCount:  len(out),
		Truncated: q.Clamped && q.Limit > 0 && len(out) >= q.Limit,
	}, nil
}

// remap folds engine errors into the shared failure vocabulary.
func (e *Executor) remap(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &TimeoutError{Budget: e.timeout}
	case strings.Contains(err.Error(), "no such table"):
		return &StaleSchemaError{cause: err}
	case strings.Contains(err.Error(), "no such column"):
		return &plan.Rejection{Code: plan.ReasonColumnNotFound, Field: "query", Detail: err.Error()}
	default:
		return fmt.Errorf("execute query: %w", err)
	}
}
