package web

// errors.go maps the engine's typed failure vocabulary onto HTTP responses.
// Rejections keep their reason code and offending field so the planner can
// correct and resubmit; transport concerns (status codes) are decided here
// and nowhere deeper.

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/gridlabs/gridquery/internal/logging"
	"github.com/gridlabs/gridquery/internal/plan"
	"github.com/gridlabs/gridquery/internal/store"
)

// ErrorResponse is the JSON structure for API error responses.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Field  string `json:"field,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// respondError classifies err and writes the matching status and body. The
// technical error is logged with the request ID for correlation.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", body.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func classify(err error) (int, ErrorResponse) {
	var rej *plan.Rejection
	if errors.As(err, &rej) {
		status := http.StatusUnprocessableEntity
		if rej.Code == plan.ReasonTableNotFound {
			status = http.StatusNotFound
		}
		return status, ErrorResponse{
			Error:  "plan rejected",
			Code:   string(rej.Code),
			Field:  rej.Field,
			Detail: rej.Detail,
		}
	}

	var timeout *store.TimeoutError
	if errors.As(err, &timeout) {
		return http.StatusGatewayTimeout, ErrorResponse{
			Error: "query exceeded its time budget",
			Code:  "ExecutionTimeout",
		}
	}

	var stale *store.StaleSchemaError
	if errors.As(err, &stale) {
		return http.StatusConflict, ErrorResponse{
			Error: "schema changed during execution, retry the query",
			Code:  "StaleSchema",
		}
	}

	return http.StatusInternalServerError, ErrorResponse{
		Error: "internal error",
		Code:  "EngineError",
	}
}
