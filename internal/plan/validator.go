package plan

import (
	"strings"

	"github.com/gridlabs/gridquery/internal/schema"
)

// aggregate functions the compiler knows how to emit.
var aggregateFuncs = map[string]bool{
	"SUM": true, "AVG": true, "COUNT": true, "MIN": true, "MAX": true,
}

// extremaFuncs is the subset permitted for extrema plans.
var extremaFuncs = map[string]bool{"MIN": true, "MAX": true}

// resolvedFilter is a filter whose column has been resolved against the
// table descriptor.
type resolvedFilter struct {
	Column   schema.Column
	Operator Operator
	Value    any
}

type resolvedOrder struct {
	Column     schema.Column
	Descending bool
}

// resolvedAggregate is one select entry of an aggregate-family plan:
// a function plus an optional column argument (nil means COUNT(*)).
type resolvedAggregate struct {
	Func   string
	Column *schema.Column
}

// ValidatedPlan is a plan whose every table and column reference has been
// resolved against a schema snapshot. It is produced only by Validate;
// the compiler trusts its contents completely, which is why none of the
// fields are exported.
type ValidatedPlan struct {
	queryType  QueryType
	table      *schema.TableDescriptor
	selects    []schema.Column
	selectAll  bool
	aggregates []resolvedAggregate
	filters    []resolvedFilter
	orderBy    *resolvedOrder
	limit      int
}

// Table returns the resolved table descriptor.
func (vp *ValidatedPlan) Table() *schema.TableDescriptor { return vp.table }

// QueryType returns the plan's query type.
func (vp *ValidatedPlan) QueryType() QueryType { return vp.queryType }

// Validate checks an untrusted plan against the snapshot and resolves all
// its references. candidates, when non-empty, restricts which tables are
// considered (the retrieval layer narrows the schema to the top-k most
// relevant tables before validation). Checks run in a fixed order and the
// first failure wins; a bad plan is never silently repaired.
func Validate(p QueryPlan, snap *schema.Snapshot, candidates []string) (*ValidatedPlan, *Rejection) {
	if !p.QueryType.Valid() {
		return nil, reject(ReasonUnsupportedOperator, "query_type", "unknown query type %q", p.QueryType)
	}

	table, ok := lookupTable(p.Table, snap, candidates)
	if !ok {
		return nil, reject(ReasonTableNotFound, "table", "table %q not found", p.Table)
	}

	vp := &ValidatedPlan{queryType: p.QueryType, table: table, limit: p.Limit}

	for i, f := range p.Filters {
		rf, rej := resolveFilter(f, table, i)
		if rej != nil {
			return nil, rej
		}
		vp.filters = append(vp.filters, rf)
	}

	if p.OrderBy != nil {
		col, ok := table.Column(p.OrderBy.Column)
		if !ok {
			return nil, reject(ReasonColumnNotFound, "order_by.column", "column %q not found in table %q", p.OrderBy.Column, table.Name)
		}
		dir := strings.ToLower(strings.TrimSpace(p.OrderBy.Direction))
		if dir != "" && dir != "asc" && dir != "desc" {
			return nil, reject(ReasonUnsupportedOperator, "order_by.direction", "unknown direction %q", p.OrderBy.Direction)
		}
		vp.orderBy = &resolvedOrder{Column: col, Descending: p.OrderBy.Descending()}
	}

	switch p.QueryType {
	case TypeLookup, TypeFilter, TypeRank:
		if len(p.SelectColumns) == 0 {
			return nil, reject(ReasonEmptySelection, "select_columns", "query type %q requires select_columns", p.QueryType)
		}
		for _, name := range p.SelectColumns {
			if strings.TrimSpace(name) == "*" {
				vp.selectAll = true
				continue
			}
			col, ok := table.Column(name)
			if !ok {
				return nil, reject(ReasonColumnNotFound, "select_columns", "column %q not found in table %q", name, table.Name)
			}
			vp.selects = append(vp.selects, col)
		}
		if p.QueryType == TypeRank && vp.orderBy == nil {
			return nil, reject(ReasonEmptySelection, "order_by", "query type %q requires order_by", p.QueryType)
		}

	case TypeAggregate, TypeExtrema, TypeAggregateOnSubset:
		if len(p.SelectColumns) == 0 {
			return nil, reject(ReasonEmptySelection, "select_columns", "query type %q requires an aggregate selection", p.QueryType)
		}
		allowed := aggregateFuncs
		if p.QueryType == TypeExtrema {
			allowed = extremaFuncs
		}
		for _, entry := range p.SelectColumns {
			agg, rej := resolveAggregate(entry, table, allowed)
			if rej != nil {
				return nil, rej
			}
			vp.aggregates = append(vp.aggregates, agg)
		}
	}

	return vp, nil
}

func lookupTable(name string, snap *schema.Snapshot, candidates []string) (*schema.TableDescriptor, bool) {
	table, ok := snap.Table(name)
	if !ok {
		return nil, false
	}
	if len(candidates) == 0 {
		return table, true
	}
	for _, c := range candidates {
		if strings.EqualFold(c, table.Name) {
			return table, true
		}
	}
	return nil, false
}

func resolveFilter(f Filter, table *schema.TableDescriptor, idx int) (resolvedFilter, *Rejection) {
	field := "filters"
	col, ok := table.Column(f.Column)
	if !ok {
		return resolvedFilter{}, reject(ReasonColumnNotFound, field, "filter %d: column %q not found in table %q", idx, f.Column, table.Name)
	}
	if !f.Operator.Valid() {
		return resolvedFilter{}, reject(ReasonUnsupportedOperator, field, "filter %d: unknown operator %q", idx, f.Operator)
	}

	switch f.Operator {
	case OpGT, OpGE, OpLT, OpLE, OpRange:
		// Range and ordering operators need a comparable (numeric, date or
		// timestamp) column; on pure text they would compare lexically by
		// accident, so they are refused instead.
		if !col.Type.Comparable() {
			return resolvedFilter{}, reject(ReasonTypeMismatch, field, "filter %d: operator %s not permitted on text column %q", idx, f.Operator, col.Name)
		}
	}

	switch f.Operator {
	case OpRange:
		vals, ok := valueList(f.Value)
		if !ok || len(vals) != 2 {
			return resolvedFilter{}, reject(ReasonTypeMismatch, field, "filter %d: RANGE requires a two-element value list", idx)
		}
		return resolvedFilter{Column: col, Operator: f.Operator, Value: vals}, nil
	case OpIn:
		vals, ok := valueList(f.Value)
		if !ok || len(vals) == 0 {
			return resolvedFilter{}, reject(ReasonTypeMismatch, field, "filter %d: IN requires a non-empty value list", idx)
		}
		return resolvedFilter{Column: col, Operator: f.Operator, Value: vals}, nil
	}
	return resolvedFilter{Column: col, Operator: f.Operator, Value: f.Value}, nil
}

// resolveAggregate parses a select entry of the form "FUNC" or
// "FUNC(column)".
func resolveAggregate(entry string, table *schema.TableDescriptor, allowed map[string]bool) (resolvedAggregate, *Rejection) {
	entry = strings.TrimSpace(entry)
	fn := entry
	arg := ""
	if open := strings.Index(entry, "("); open >= 0 && strings.HasSuffix(entry, ")") {
		fn = strings.TrimSpace(entry[:open])
		arg = strings.TrimSpace(entry[open+1 : len(entry)-1])
	}
	fn = strings.ToUpper(fn)
	if !allowed[fn] {
		return resolvedAggregate{}, reject(ReasonUnsupportedOperator, "select_columns", "unrecognized aggregate %q", entry)
	}
	if arg == "" || arg == "*" {
		if fn != "COUNT" {
			return resolvedAggregate{}, reject(ReasonEmptySelection, "select_columns", "aggregate %s requires a column argument", fn)
		}
		return resolvedAggregate{Func: fn}, nil
	}
	col, ok := table.Column(arg)
	if !ok {
		return resolvedAggregate{}, reject(ReasonColumnNotFound, "select_columns", "column %q not found in table %q", arg, table.Name)
	}
	if fn != "COUNT" && fn != "MIN" && fn != "MAX" && !col.Type.Comparable() {
		return resolvedAggregate{}, reject(ReasonTypeMismatch, "select_columns", "aggregate %s not permitted on text column %q", fn, col.Name)
	}
	return resolvedAggregate{Func: fn, Column: &col}, nil
}

func valueList(v any) ([]any, bool) {
	switch vv := v.(type) {
	case []any:
		return vv, true
	case []string:
		out := make([]any, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}
