package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridlabs/gridquery/internal/plan"
	"github.com/gridlabs/gridquery/internal/registry"
	"github.com/gridlabs/gridquery/internal/schema"
	"github.com/gridlabs/gridquery/internal/sheet"
	"github.com/gridlabs/gridquery/internal/store"
)

type fakeConnector struct {
	src *sheet.Source
}

func (f *fakeConnector) Fetch(ctx context.Context) (*sheet.Source, error) {
	return f.src, nil
}

// salesGrid holds two tables in one sheet, separated by a blank row. The
// first carries a two-row header that flattens into dated sales columns.
func salesGrid() sheet.Grid {
	return sheet.Grid{
		{"Sales by Cat", "Gross sales", ""},
		{"", "06/10/2025", "07/10/2025"},
		{"Dairy and homemade", "1,200", "1300"},
		{"Beverages", "800", "900"},
		{},
		{"Name", "Orders"},
		{"Meenakchi", "5"},
		{"Ravi", "3"},
	}
}

func costsGrid() sheet.Grid {
	return sheet.Grid{
		{"Item", "Cost"},
		{"Widget", "10"},
		{"Gadget", "20"},
	}
}

func testSource() *sheet.Source {
	return &sheet.Source{
		SpreadsheetID: "Book",
		Sheets: []sheet.Snapshot{
			sheet.NewSnapshot("Sales", salesGrid()),
			sheet.NewSnapshot("Costs", costsGrid()),
		},
	}
}

func newTestEngine(t *testing.T, conn sheet.Connector, cfg Config) *Engine {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	reg := registry.Open(filepath.Join(t.TempDir(), "registry.json"))
	return New(conn, reg, schema.NewStore(), st, nil, cfg)
}

func physicalByName(e *Engine) map[string]string {
	out := map[string]string{}
	for _, d := range e.Tables() {
		out[d.Name] = d.PhysicalName
	}
	return out
}

func TestRefresh_DetectsTablesAcrossSheets(t *testing.T) {
	conn := &fakeConnector{src: testSource()}
	e := newTestEngine(t, conn, Config{})

	stats, err := e.Refresh(context.Background())
	require.NoError(t, err)

	assert.True(t, stats.FullReset)
	assert.Equal(t, 2, stats.RebuiltSheets)
	assert.Zero(t, stats.FailedSheets)

	names := physicalByName(e)
	assert.Contains(t, names, "Sales_Table1")
	assert.Contains(t, names, "Sales_Table2")
	assert.Contains(t, names, "Costs_Table1")
}

func TestRefresh_UnchangedSourceIsNoop(t *testing.T) {
	conn := &fakeConnector{src: testSource()}
	e := newTestEngine(t, conn, Config{})

	_, err := e.Refresh(context.Background())
	require.NoError(t, err)
	before := physicalByName(e)

	stats, err := e.Refresh(context.Background())
	require.NoError(t, err)

	assert.Zero(t, stats.RebuiltSheets)
	assert.False(t, stats.FullReset)
	assert.Equal(t, before, physicalByName(e))
}

func TestRefresh_EditRebuildsOnlyChangedSheet(t *testing.T) {
	conn := &fakeConnector{src: testSource()}
	e := newTestEngine(t, conn, Config{})

	_, err := e.Refresh(context.Background())
	require.NoError(t, err)
	before := physicalByName(e)

	// One cell edit inside the first table's range.
	edited := salesGrid()
	edited[2][1] = "1,250"
	conn.src = &sheet.Source{
		SpreadsheetID: "Book",
		Sheets: []sheet.Snapshot{
			sheet.NewSnapshot("Sales", edited),
			sheet.NewSnapshot("Costs", costsGrid()),
		},
	}

	stats, err := e.Refresh(context.Background())
	require.NoError(t, err)
	after := physicalByName(e)

	assert.Equal(t, 1, stats.RebuiltSheets)
	// Every table derived from the edited sheet gets a fresh physical table,
	// including the one whose cells did not change.
	assert.NotEqual(t, before["Sales_Table1"], after["Sales_Table1"])
	assert.NotEqual(t, before["Sales_Table2"], after["Sales_Table2"])
	assert.Equal(t, before["Costs_Table1"], after["Costs_Table1"])
}

func TestRefresh_ChangedSpreadsheetIdentityResetsEverything(t *testing.T) {
	conn := &fakeConnector{src: testSource()}
	e := newTestEngine(t, conn, Config{})

	_, err := e.Refresh(context.Background())
	require.NoError(t, err)
	before := physicalByName(e)

	next := testSource()
	next.SpreadsheetID = "OtherBook"
	conn.src = next

	stats, err := e.Refresh(context.Background())
	require.NoError(t, err)

	assert.True(t, stats.FullReset)
	assert.Equal(t, 2, stats.RebuiltSheets)
	after := physicalByName(e)
	for name := range before {
		assert.NotEqual(t, before[name], after[name], "table %s", name)
	}
	assert.Equal(t, "OtherBook", e.Registry().SpreadsheetID())
}

func TestRefresh_RemovedSheetDropsItsTables(t *testing.T) {
	conn := &fakeConnector{src: testSource()}
	e := newTestEngine(t, conn, Config{})

	_, err := e.Refresh(context.Background())
	require.NoError(t, err)

	conn.src = &sheet.Source{
		SpreadsheetID: "Book",
		Sheets:        []sheet.Snapshot{sheet.NewSnapshot("Sales", salesGrid())},
	}

	stats, err := e.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.RemovedSheets)
	names := physicalByName(e)
	assert.NotContains(t, names, "Costs_Table1")
	assert.Contains(t, names, "Sales_Table1")
	_, ok := e.Registry().Entry("Costs")
	assert.False(t, ok)
}

func TestRefresh_WarmStartRepopulatesSchema(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "store.db")
	registryPath := filepath.Join(dir, "registry.json")
	conn := &fakeConnector{src: testSource()}

	st1, err := store.Open(storePath)
	require.NoError(t, err)
	e1 := New(conn, registry.Open(registryPath), schema.NewStore(), st1, nil, Config{})
	_, err = e1.Refresh(context.Background())
	require.NoError(t, err)
	require.NoError(t, st1.Close())

	// A new process: registry file survives, in-memory schema does not.
	st2, err := store.Open(storePath)
	require.NoError(t, err)
	t.Cleanup(func() { st2.Close() })
	e2 := New(conn, registry.Open(registryPath), schema.NewStore(), st2, nil, Config{})

	stats, err := e2.Refresh(context.Background())
	require.NoError(t, err)

	assert.False(t, stats.FullReset)
	assert.Equal(t, 2, stats.RebuiltSheets)
	assert.Contains(t, physicalByName(e2), "Sales_Table1")

	// Once warmed, an unchanged source is a no-op again.
	stats, err = e2.Refresh(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.RebuiltSheets)
}

func TestQuery_LookupWithFlattenedHeader(t *testing.T) {
	conn := &fakeConnector{src: testSource()}
	e := newTestEngine(t, conn, Config{})
	_, err := e.Refresh(context.Background())
	require.NoError(t, err)

	res, err := e.Query(context.Background(), plan.QueryPlan{
		QueryType:     plan.TypeLookup,
		Table:         "Sales_Table1",
		SelectColumns: []string{"Gross sales - 06/10/2025"},
		Filters: []plan.Filter{
			{Column: "Sales by Cat", Operator: plan.OpLike, Value: "Dairy and homemade"},
		},
		Limit: 1,
	}, "")
	require.NoError(t, err)

	require.Equal(t, 1, res.RowCount)
	assert.Equal(t, int64(1200), res.Rows[0][0])
	assert.False(t, res.Truncated)
}

func TestQuery_FuzzyMatchOnNameColumn(t *testing.T) {
	conn := &fakeConnector{src: testSource()}
	e := newTestEngine(t, conn, Config{})
	_, err := e.Refresh(context.Background())
	require.NoError(t, err)

	// The sheet stores "Meenakchi"; the planner asked for "Meenakshi".
	res, err := e.Query(context.Background(), plan.QueryPlan{
		QueryType:     plan.TypeLookup,
		Table:         "Sales_Table2",
		SelectColumns: []string{"Orders"},
		Filters: []plan.Filter{
			{Column: "Name", Operator: plan.OpLike, Value: "Meenakshi"},
		},
		Limit: 1,
	}, "")
	require.NoError(t, err)

	require.Equal(t, 1, res.RowCount)
	assert.Equal(t, int64(5), res.Rows[0][0])
}

func TestQuery_LimitClampMarksTruncation(t *testing.T) {
	conn := &fakeConnector{src: testSource()}
	e := newTestEngine(t, conn, Config{MaxLimit: 1})
	_, err := e.Refresh(context.Background())
	require.NoError(t, err)

	res, err := e.Query(context.Background(), plan.QueryPlan{
		QueryType:     plan.TypeFilter,
		Table:         "Sales_Table2",
		SelectColumns: []string{"Name"},
		Limit:         100,
	}, "")
	require.NoError(t, err)

	assert.Equal(t, 1, res.RowCount)
	assert.True(t, res.Truncated)
}

func TestQuery_AggregateOverDetectedNumericColumn(t *testing.T) {
	conn := &fakeConnector{src: testSource()}
	e := newTestEngine(t, conn, Config{})
	_, err := e.Refresh(context.Background())
	require.NoError(t, err)

	res, err := e.Query(context.Background(), plan.QueryPlan{
		QueryType:     plan.TypeAggregate,
		Table:         "Sales_Table2",
		SelectColumns: []string{"SUM(Orders)"},
	}, "")
	require.NoError(t, err)

	require.Equal(t, 1, res.RowCount)
	assert.Equal(t, int64(8), res.Rows[0][0])
}

func TestQuery_UnknownTableRejected(t *testing.T) {
	conn := &fakeConnector{src: testSource()}
	e := newTestEngine(t, conn, Config{})
	_, err := e.Refresh(context.Background())
	require.NoError(t, err)

	_, err = e.Query(context.Background(), plan.QueryPlan{
		QueryType:     plan.TypeLookup,
		Table:         "Expenses",
		SelectColumns: []string{"x"},
	}, "")

	var rej *plan.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, plan.ReasonTableNotFound, rej.Code)
}

func TestQuery_RetrievalNarrowsCandidates(t *testing.T) {
	conn := &fakeConnector{src: testSource()}
	e := newTestEngine(t, conn, Config{TopK: 1})
	_, err := e.Refresh(context.Background())
	require.NoError(t, err)

	// The question matches the costs table, so a plan against the sales
	// table falls outside the candidate set.
	_, err = e.Query(context.Background(), plan.QueryPlan{
		QueryType:     plan.TypeLookup,
		Table:         "Sales_Table2",
		SelectColumns: []string{"Orders"},
	}, "what does the widget item cost")

	var rej *plan.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, plan.ReasonTableNotFound, rej.Code)
}
