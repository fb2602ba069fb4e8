// Package plan defines the externally produced query plan, validates it
// against the current schema snapshot and compiles it into a parameterized
// SQL query. Plans arrive from an untrusted planner: every table and column
// reference is resolved against known descriptors before any text reaches
// the query engine, and literal values are always bound as parameters.
package plan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QueryType is the closed set of plan shapes the compiler understands.
type QueryType string

const (
	TypeLookup            QueryType = "lookup"
	TypeAggregate         QueryType = "aggregate"
	TypeFilter            QueryType = "filter"
	TypeRank              QueryType = "rank"
	TypeExtrema           QueryType = "extrema"
	TypeAggregateOnSubset QueryType = "aggregate_on_subset"
)

// Valid reports whether t is one of the known query types.
func (t QueryType) Valid() bool {
	switch t {
	case TypeLookup, TypeAggregate, TypeFilter, TypeRank, TypeExtrema, TypeAggregateOnSubset:
		return true
	}
	return false
}

// UnmarshalJSON lower-cases the incoming value so the enum match is
// case-insensitive; unknown values survive decoding and are rejected by the
// validator with a typed reason.
func (t *QueryType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("query_type: %w", err)
	}
	*t = QueryType(strings.ToLower(strings.TrimSpace(s)))
	return nil
}

// Operator is the closed set of filter operators.
type Operator string

const (
	OpEQ    Operator = "EQ"
	OpLike  Operator = "LIKE"
	OpGT    Operator = "GT"
	OpGE    Operator = "GE"
	OpLT    Operator = "LT"
	OpLE    Operator = "LE"
	OpIn    Operator = "IN"
	OpRange Operator = "RANGE"
)

// Valid reports whether op is one of the known operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEQ, OpLike, OpGT, OpGE, OpLT, OpLE, OpIn, OpRange:
		return true
	}
	return false
}

func (op *Operator) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("operator: %w", err)
	}
	*op = Operator(strings.ToUpper(strings.TrimSpace(s)))
	return nil
}

// Filter is one predicate of a query plan. Value is kept loosely typed: the
// planner sends strings and numbers interchangeably and the store's column
// affinity handles coercion once the value is bound.
type Filter struct {
	Column   string   `json:"column"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// OrderBy names the sort column and direction. An empty direction means
// ascending.
type OrderBy struct {
	Column    string `json:"column"`
	Direction string `json:"direction,omitempty"`
}

// Descending reports whether the direction asks for a descending sort.
func (o OrderBy) Descending() bool {
	return strings.EqualFold(strings.TrimSpace(o.Direction), "desc")
}

// QueryPlan is the structured query request produced by the external
// planner. It is untrusted input: nothing in it is used until the validator
// has resolved every reference against the schema snapshot.
type QueryPlan struct {
	QueryType     QueryType `json:"query_type"`
	Table         string    `json:"table"`
	SelectColumns []string  `json:"select_columns"`
	Filters       []Filter  `json:"filters,omitempty"`
	OrderBy       *OrderBy  `json:"order_by,omitempty"`
	Limit         int       `json:"limit,omitempty"`
}
