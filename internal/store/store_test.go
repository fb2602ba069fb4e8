package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridlabs/gridquery/internal/plan"
	"github.com/gridlabs/gridquery/internal/schema"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func salesDescriptor() *schema.TableDescriptor {
	return &schema.TableDescriptor{
		Name:     "Sales_Table1",
		SourceID: "Book#Sales",
		Columns: []schema.Column{
			{Name: "Sales by Cat", Type: schema.ColumnText},
			{Name: "Gross sales - 06/10/2025", Type: schema.ColumnNumeric},
		},
		RowCount: 3,
	}
}

func salesRows() [][]any {
	return [][]any{
		{"Dairy and homemade", int64(1200)},
		{"Beverages", int64(800)},
		{"Snacks", 99.5},
	}
}

func TestMaterialize_CreatesFreshPhysicalTable(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	desc := salesDescriptor()

	require.NoError(t, s.Materialize(ctx, desc, salesRows()))

	assert.True(t, strings.HasPrefix(desc.PhysicalName, "t_"))
	n, err := s.RowCount(ctx, desc.PhysicalName)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMaterialize_DistinctNamesPerCall(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	a, b := salesDescriptor(), salesDescriptor()
	require.NoError(t, s.Materialize(ctx, a, salesRows()))
	require.NoError(t, s.Materialize(ctx, b, salesRows()))

	assert.NotEqual(t, a.PhysicalName, b.PhysicalName)
}

func TestDropTables_MissingIsNotAnError(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	desc := salesDescriptor()
	require.NoError(t, s.Materialize(ctx, desc, salesRows()))

	require.NoError(t, s.DropTables(ctx, []string{desc.PhysicalName, "t_gone0000", ""}))

	_, err := s.RowCount(ctx, desc.PhysicalName)
	assert.Error(t, err)
}

func TestSweepOrphans(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	committed, orphan := salesDescriptor(), salesDescriptor()
	require.NoError(t, s.Materialize(ctx, committed, salesRows()))
	require.NoError(t, s.Materialize(ctx, orphan, salesRows()))

	n, err := s.SweepOrphans(ctx, map[string]bool{committed.PhysicalName: true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.RowCount(ctx, orphan.PhysicalName)
	assert.Error(t, err)
	kept, err := s.RowCount(ctx, committed.PhysicalName)
	require.NoError(t, err)
	assert.Equal(t, 3, kept)
}

func TestExecutor_RunsParameterizedQuery(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	desc := salesDescriptor()
	require.NoError(t, s.Materialize(ctx, desc, salesRows()))

	exec := NewExecutor(s, time.Second)
	res, err := exec.Execute(ctx, &plan.CompiledQuery{
		Text: `SELECT "Gross sales - 06/10/2025" FROM "` + desc.PhysicalName + `"` +
			` WHERE LOWER(CAST("Sales by Cat" AS TEXT)) LIKE ? ORDER BY rowid LIMIT 1`,
		Args:  []any{"%dairy and homemade%"},
		Limit: 1,
	})
	require.NoError(t, err)

	require.Equal(t, 1, res.RowCount)
	assert.Equal(t, int64(1200), res.Rows[0][0])
	assert.False(t, res.Truncated)
	require.Len(t, res.Columns, 1)
	assert.Equal(t, "Gross sales - 06/10/2025", res.Columns[0].Name)
}

func TestExecutor_NoMatchReturnsEmptyNotError(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	desc := salesDescriptor()
	require.NoError(t, s.Materialize(ctx, desc, salesRows()))

	exec := NewExecutor(s, time.Second)
	res, err := exec.Execute(ctx, &plan.CompiledQuery{
		Text:  `SELECT * FROM "` + desc.PhysicalName + `" WHERE LOWER(CAST("Sales by Cat" AS TEXT)) LIKE ? LIMIT 10`,
		Args:  []any{"%no such category%"},
		Limit: 10,
	})
	require.NoError(t, err)
	assert.Zero(t, res.RowCount)
	assert.Empty(t, res.Rows)
}

func TestExecutor_TruncatedWhenClampHit(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	desc := salesDescriptor()
	require.NoError(t, s.Materialize(ctx, desc, salesRows()))

	exec := NewExecutor(s, time.Second)
	res, err := exec.Execute(ctx, &plan.CompiledQuery{
		Text:    `SELECT * FROM "` + desc.PhysicalName + `" ORDER BY rowid LIMIT 2`,
		Limit:   2,
		Clamped: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.RowCount)
	assert.True(t, res.Truncated)
}

func TestExecutor_ExhaustedBudgetIsTimeout(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	desc := salesDescriptor()
	require.NoError(t, s.Materialize(ctx, desc, salesRows()))

	exec := NewExecutor(s, time.Nanosecond)
	_, err := exec.Execute(ctx, &plan.CompiledQuery{
		Text:  `SELECT * FROM "` + desc.PhysicalName + `" LIMIT 1`,
		Limit: 1,
	})

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, time.Nanosecond, timeout.Budget)
}

func TestExecutor_MissingTableIsStaleSchema(t *testing.T) {
	s := tempStore(t)
	exec := NewExecutor(s, time.Second)

	_, err := exec.Execute(context.Background(), &plan.CompiledQuery{
		Text: `SELECT * FROM "t_gone0000" LIMIT 1`,
	})

	var stale *StaleSchemaError
	require.ErrorAs(t, err, &stale)
}

func TestExecutor_MissingColumnMapsToRejection(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	desc := salesDescriptor()
	require.NoError(t, s.Materialize(ctx, desc, salesRows()))

	exec := NewExecutor(s, time.Second)
	_, err := exec.Execute(ctx, &plan.CompiledQuery{
		Text: `SELECT "Net sales" FROM "` + desc.PhysicalName + `" LIMIT 1`,
	})

	var rej *plan.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, plan.ReasonColumnNotFound, rej.Code)
}
