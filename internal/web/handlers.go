package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gridlabs/gridquery/internal/plan"
	"github.com/gridlabs/gridquery/internal/schema"
)

// QueryRequest is the body of POST /api/query. Question is the original
// natural-language question; it is used only to narrow schema retrieval,
// never interpreted here.
type QueryRequest struct {
	Question string         `json:"question,omitempty"`
	Plan     plan.QueryPlan `json:"plan"`
}

// tableSummary is the JSON shape of one table in listings.
type tableSummary struct {
	Name        string          `json:"name"`
	SourceID    string          `json:"source_id"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	RowCount    int             `json:"row_count"`
	Columns     []columnSummary `json:"columns"`
}

type columnSummary struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	NameLike bool   `json:"name_like,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables := s.engine.Tables()
	out := make([]tableSummary, len(tables))
	for i, t := range tables {
		out[i] = summarize(t)
	}
	writeJSON(w, out)
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	for _, t := range s.engine.Tables() {
		if t.Name == name {
			writeJSON(w, summarize(t))
			return
		}
	}
	s.respondError(w, r, &plan.Rejection{Code: plan.ReasonTableNotFound, Field: "name"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, &plan.Rejection{
			Code: plan.ReasonUnsupportedOperator, Field: "body", Detail: err.Error(),
		})
		return
	}

	res, err := s.engine.Query(r.Context(), req.Plan, req.Question)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Refresh(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, stats)
}

// handleListSheets reports the committed registry state per sheet.
func (s *Server) handleListSheets(w http.ResponseWriter, r *http.Request) {
	type sheetStatus struct {
		SheetID       string    `json:"sheet_id"`
		CommittedHash string    `json:"committed_hash"`
		TableNames    []string  `json:"table_names"`
		CommittedAt   time.Time `json:"committed_at"`
		Phase         string    `json:"phase"`
	}

	reg := s.engine.Registry()
	entries := reg.Entries()
	out := make([]sheetStatus, len(entries))
	for i, e := range entries {
		out[i] = sheetStatus{
			SheetID:       e.SheetID,
			CommittedHash: e.CommittedHash,
			TableNames:    e.TableNames,
			CommittedAt:   e.CommittedAt,
			Phase:         reg.Phase(e.SheetID).String(),
		}
	}
	writeJSON(w, out)
}

func summarize(t *schema.TableDescriptor) tableSummary {
	cols := make([]columnSummary, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = columnSummary{Name: c.Name, Type: c.Type.String(), NameLike: c.NameLike}
	}
	return tableSummary{
		Name:        t.Name,
		SourceID:    t.SourceID,
		Title:       t.Title,
		Description: t.Description,
		RowCount:    t.RowCount,
		Columns:     cols,
	}
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
