package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridlabs/gridquery/internal/config"
	"github.com/gridlabs/gridquery/internal/engine"
	"github.com/gridlabs/gridquery/internal/plan"
	"github.com/gridlabs/gridquery/internal/registry"
	"github.com/gridlabs/gridquery/internal/schema"
	"github.com/gridlabs/gridquery/internal/sheet"
	"github.com/gridlabs/gridquery/internal/store"
)

type staticConnector struct {
	src *sheet.Source
}

func (c *staticConnector) Fetch(ctx context.Context) (*sheet.Source, error) {
	return c.src, nil
}

func testServer(t *testing.T) *Server {
	t.Helper()

	conn := &staticConnector{src: &sheet.Source{
		SpreadsheetID: "Book",
		Sheets: []sheet.Snapshot{
			sheet.NewSnapshot("Sales", sheet.Grid{
				{"Name", "Orders"},
				{"Meenakchi", "5"},
				{"Ravi", "3"},
			}),
		},
	}}

	st, err := store.Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	reg := registry.Open(filepath.Join(t.TempDir(), "registry.json"))

	eng := engine.New(conn, reg, schema.NewStore(), st, nil, engine.Config{})
	_, err = eng.Refresh(context.Background())
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 30 * time.Second
	return NewServer(eng, cfg)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListTables(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/tables", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var tables []tableSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tables))
	require.Len(t, tables, 1)
	assert.Equal(t, "Sales_Table1", tables[0].Name)
	assert.Equal(t, 2, tables[0].RowCount)
	require.Len(t, tables[0].Columns, 2)
	assert.Equal(t, "Name", tables[0].Columns[0].Name)
	assert.True(t, tables[0].Columns[0].NameLike)
}

func TestGetTable_NotFound(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/tables/Expenses_Table1", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "TableNotFound", resp.Code)
}

func TestQuery_ReturnsRows(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/query", QueryRequest{
		Plan: plan.QueryPlan{
			QueryType:     plan.TypeLookup,
			Table:         "Sales_Table1",
			SelectColumns: []string{"Orders"},
			Filters: []plan.Filter{
				{Column: "Name", Operator: plan.OpLike, Value: "Meenakshi"},
			},
			Limit: 1,
		},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res store.ExecutionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, 1, res.RowCount)
	assert.Equal(t, float64(5), res.Rows[0][0])
}

func TestQuery_RejectionIsUnprocessable(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/query", QueryRequest{
		Plan: plan.QueryPlan{
			QueryType:     plan.TypeLookup,
			Table:         "Sales_Table1",
			SelectColumns: []string{"Revenue"},
		},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ColumnNotFound", resp.Code)
	assert.Equal(t, "select_columns", resp.Field)
}

func TestQuery_MalformedBody(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/refresh", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats engine.RefreshStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	// The source has not changed since the setup refresh.
	assert.Zero(t, stats.RebuiltSheets)
}

func TestListSheets(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/sheets", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var sheets []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sheets))
	require.Len(t, sheets, 1)
	assert.Equal(t, "Sales", sheets[0]["sheet_id"])
	assert.Equal(t, "committed", sheets[0]["phase"])
	assert.NotEmpty(t, sheets[0]["committed_hash"])
}

func TestSecurityHeaders(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
