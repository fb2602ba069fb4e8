package plan

import "fmt"

// ReasonCode classifies why a plan was rejected. The same vocabulary is
// reused for engine-level failures so callers see one consistent taxonomy
// regardless of where a problem surfaced.
type ReasonCode string

const (
	ReasonTableNotFound       ReasonCode = "TableNotFound"
	ReasonColumnNotFound      ReasonCode = "ColumnNotFound"
	ReasonTypeMismatch        ReasonCode = "TypeMismatch"
	ReasonEmptySelection      ReasonCode = "EmptySelection"
	ReasonUnsupportedOperator ReasonCode = "UnsupportedOperator"
)

// Rejection is a terminal, typed refusal of a plan. It is returned to the
// caller as a structured value so the planner can correct and resubmit; it
// is never retried here.
type Rejection struct {
	Code   ReasonCode `json:"code"`
	Field  string     `json:"field"`
	Detail string     `json:"detail,omitempty"`
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return fmt.Sprintf("plan rejected: %s (%s)", r.Code, r.Field)
	}
	return fmt.Sprintf("plan rejected: %s (%s): %s", r.Code, r.Field, r.Detail)
}

func reject(code ReasonCode, field, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Field: field, Detail: fmt.Sprintf(format, args...)}
}
