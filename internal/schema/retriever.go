package schema

import (
	"context"
	"sort"
	"strings"
)

// ScoredTable is one retrieval hit: a logical table name with a relevance
// score in [0, 1].
type ScoredTable struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Retriever narrows which tables the plan validator considers for a given
// natural-language question. Production deployments plug in an external
// embedding provider; this package never computes embeddings itself.
type Retriever interface {
	TopK(ctx context.Context, query string, k int) ([]ScoredTable, error)
}

// LexicalRetriever is the bundled fallback Retriever: token overlap between
// the question and each table's name, title, description and column names.
// It keeps the engine usable without an embedding service and carries no
// model of meaning beyond shared words.
type LexicalRetriever struct {
	store *Store
}

// NewLexicalRetriever returns a retriever backed by the given schema store.
func NewLexicalRetriever(store *Store) *LexicalRetriever {
	return &LexicalRetriever{store: store}
}

// TopK scores every registered table against the query and returns the k
// best matches. Tables with zero overlap are still returned (score 0) so a
// sparse catalog never starves the validator of candidates.
func (r *LexicalRetriever) TopK(ctx context.Context, query string, k int) ([]ScoredTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryTokens := tokenize(query)
	snap := r.store.Snapshot()

	scored := make([]ScoredTable, 0, len(snap.Names()))
	for _, d := range snap.Tables() {
		scored = append(scored, ScoredTable{Name: d.Name, Score: overlap(queryTokens, tableTokens(d))})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Name < scored[j].Name
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func tableTokens(d *TableDescriptor) map[string]bool {
	parts := []string{d.Name, d.Title, d.Description}
	for _, c := range d.Columns {
		parts = append(parts, c.Name)
	}
	return tokenize(strings.Join(parts, " "))
}

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(f) > 1 {
			tokens[f] = true
		}
	}
	return tokens
}

func overlap(query, table map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for t := range query {
		if table[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
