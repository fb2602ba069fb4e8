package plan

import (
	"fmt"
	"strings"

	"github.com/gridlabs/gridquery/internal/schema"
)

// CompiledQuery is a parameterized query ready for execution. Text contains
// identifiers only from resolved descriptors; every literal is bound through
// Args.
type CompiledQuery struct {
	Text string
	Args []any

	// Limit is the effective row limit after clamping, 0 for pure
	// aggregate queries. Clamped records that the requested limit was
	// reduced, so the executor can mark the result truncated.
	Limit   int
	Clamped bool
}

// Compiler turns validated plans into SQL for the embedded store.
type Compiler struct {
	maxLimit int
	fuzzy    *FuzzyExpander
}

// NewCompiler builds a compiler. maxLimit bounds every row-returning query;
// non-positive falls back to 1000. A nil expander gets the default
// substitution table.
func NewCompiler(maxLimit int, fuzzy *FuzzyExpander) *Compiler {
	if maxLimit <= 0 {
		maxLimit = 1000
	}
	if fuzzy == nil {
		fuzzy = NewFuzzyExpander(nil, 0)
	}
	return &Compiler{maxLimit: maxLimit, fuzzy: fuzzy}
}

// Compile emits SQL for the plan. One exhaustive branch per query type; a
// type that reaches the default arm is a programming error surfaced as a
// CompilationError rather than silently ignored.
func (c *Compiler) Compile(vp *ValidatedPlan) (*CompiledQuery, error) {
	where, args := c.compileFilters(vp.filters)
	limit, clamped := c.clampLimit(vp.limit)

	var sb strings.Builder
	switch vp.queryType {
	case TypeLookup:
		sb.WriteString("SELECT ")
		if vp.selectAll || len(vp.selects) == 0 {
			sb.WriteString("*")
		} else {
			sb.WriteString(columnList(vp.selects))
		}
		sb.WriteString(" FROM ")
		sb.WriteString(quoteIdentifier(vp.table.PhysicalName))
		sb.WriteString(where)
		sb.WriteString(orderClause(vp.orderBy))
		fmt.Fprintf(&sb, " LIMIT %d", limit)

	case TypeFilter, TypeRank:
		sb.WriteString("SELECT * FROM ")
		sb.WriteString(quoteIdentifier(vp.table.PhysicalName))
		sb.WriteString(where)
		sb.WriteString(orderClause(vp.orderBy))
		fmt.Fprintf(&sb, " LIMIT %d", limit)

	case TypeAggregate, TypeExtrema:
		sb.WriteString("SELECT ")
		sb.WriteString(aggregateList(vp.aggregates))
		sb.WriteString(" FROM ")
		sb.WriteString(quoteIdentifier(vp.table.PhysicalName))
		sb.WriteString(where)
		limit, clamped = 0, false

	case TypeAggregateOnSubset:
		// Aggregate over an explicitly bounded subset: the inner query
		// selects, orders and limits the rows, the outer applies the
		// aggregate.
		sb.WriteString("SELECT ")
		sb.WriteString(aggregateList(vp.aggregates))
		sb.WriteString(" FROM (SELECT * FROM ")
		sb.WriteString(quoteIdentifier(vp.table.PhysicalName))
		sb.WriteString(where)
		sb.WriteString(orderClause(vp.orderBy))
		fmt.Fprintf(&sb, " LIMIT %d)", limit)
		limit = 0

	default:
		return nil, fmt.Errorf("compile: unsupported query type %q", vp.queryType)
	}

	return &CompiledQuery{Text: sb.String(), Args: args, Limit: limit, Clamped: clamped}, nil
}

func (c *Compiler) clampLimit(requested int) (int, bool) {
	if requested <= 0 {
		return c.maxLimit, false
	}
	if requested > c.maxLimit {
		return c.maxLimit, true
	}
	return requested, false
}

// compileFilters builds the WHERE clause (leading " WHERE " included, empty
// string when there are no filters) and its bound parameters.
func (c *Compiler) compileFilters(filters []resolvedFilter) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	var preds []string
	var args []any
	for _, f := range filters {
		p, a := c.compileFilter(f)
		preds = append(preds, p)
		args = append(args, a...)
	}
	return " WHERE " + strings.Join(preds, " AND "), args
}

func (c *Compiler) compileFilter(f resolvedFilter) (string, []any) {
	ident := quoteIdentifier(f.Column.Name)

	switch f.Operator {
	case OpEQ, OpLike:
		if f.Column.Type.Comparable() && f.Operator == OpEQ {
			return ident + " = ?", []any{f.Value}
		}
		return c.textMatch(f)
	case OpGT:
		return ident + " > ?", []any{f.Value}
	case OpGE:
		return ident + " >= ?", []any{f.Value}
	case OpLT:
		return ident + " < ?", []any{f.Value}
	case OpLE:
		return ident + " <= ?", []any{f.Value}
	case OpRange:
		vals := f.Value.([]any)
		return ident + " BETWEEN ? AND ?", vals
	case OpIn:
		vals := f.Value.([]any)
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(vals)), ", ")
		if f.Column.Type.Comparable() {
			return ident + " IN (" + placeholders + ")", vals
		}
		lowered := make([]any, len(vals))
		for i, v := range vals {
			lowered[i] = strings.ToLower(fmt.Sprintf("%v", v))
		}
		return "LOWER(CAST(" + ident + " AS TEXT)) IN (" + placeholders + ")", lowered
	}
	// Unreachable after validation.
	return "1 = 1", nil
}

// textMatch compiles a case-insensitive wildcard match. The column is cast
// to text so numeric-looking cells still match, and both sides are lowered.
// Name-like columns additionally get the phonetic variant disjunction; the
// original pattern is always the first disjunct.
func (c *Compiler) textMatch(f resolvedFilter) (string, []any) {
	expr := "LOWER(CAST(" + quoteIdentifier(f.Column.Name) + " AS TEXT)) LIKE ?"
	value := fmt.Sprintf("%v", f.Value)

	variants := []string{strings.ToLower(value)}
	if f.Column.NameLike {
		variants = c.fuzzy.Variants(value)
	}

	preds := make([]string, len(variants))
	args := make([]any, len(variants))
	for i, v := range variants {
		preds[i] = expr
		args[i] = "%" + v + "%"
	}
	if len(preds) == 1 {
		return preds[0], args
	}
	return "(" + strings.Join(preds, " OR ") + ")", args
}

// orderClause renders ORDER BY with a rowid tiebreak so result order is
// stable across re-execution. Row order falls back to ingestion order when
// no sort was requested.
func orderClause(o *resolvedOrder) string {
	if o == nil {
		return " ORDER BY rowid"
	}
	dir := "ASC"
	if o.Descending {
		dir = "DESC"
	}
	return " ORDER BY " + quoteIdentifier(o.Column.Name) + " " + dir + ", rowid"
}

func columnList(cols []schema.Column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = quoteIdentifier(c.Name)
	}
	return strings.Join(names, ", ")
}

func aggregateList(aggs []resolvedAggregate) string {
	parts := make([]string, len(aggs))
	for i, a := range aggs {
		if a.Column == nil {
			parts[i] = a.Func + "(*)"
			continue
		}
		parts[i] = a.Func + "(" + quoteIdentifier(a.Column.Name) + ")"
	}
	return strings.Join(parts, ", ")
}

// quoteIdentifier wraps a resolved identifier in double quotes, doubling
// embedded quotes. Identifiers reaching this point always round-trip
// through a TableDescriptor, never free-form input.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
