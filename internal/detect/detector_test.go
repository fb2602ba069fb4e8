package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridlabs/gridquery/internal/schema"
	"github.com/gridlabs/gridquery/internal/sheet"
)

func detectGrid(t *testing.T, grid sheet.Grid) []Table {
	t.Helper()
	return New(DefaultConfig()).Detect("Book", "Sales", sheet.Canonicalize(grid))
}

func TestDetect_TwoTablesSeparatedByBlankRow(t *testing.T) {
	grid := sheet.Grid{
		{"Category", "Amount"},
		{"Dairy", "100"},
		{"Beverages", "200"},
		{"", ""},
		{"Name", "Orders"},
		{"Meenakchi", "5"},
		{"Ravi", "3"},
	}

	tables := detectGrid(t, grid)
	require.Len(t, tables, 2)

	assert.Equal(t, "Sales_Table1", tables[0].Descriptor.Name)
	assert.Equal(t, "Sales_Table2", tables[1].Descriptor.Name)
	assert.Equal(t, "Book#Sales", tables[0].Descriptor.SourceID)
	assert.Equal(t, []string{"Category", "Amount"}, tables[0].Descriptor.ColumnNames())
	assert.Equal(t, []string{"Name", "Orders"}, tables[1].Descriptor.ColumnNames())
	assert.Equal(t, 2, tables[0].Descriptor.RowCount)
}

func TestDetect_Deterministic(t *testing.T) {
	grid := sheet.Grid{
		{"Category", "Amount"},
		{"Dairy", "100"},
		{"", ""},
		{"Name", "Orders"},
		{"Ravi", "3"},
	}

	first := detectGrid(t, grid)
	second := detectGrid(t, grid)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Descriptor.Name, second[i].Descriptor.Name)
		assert.Equal(t, first[i].Descriptor.Columns, second[i].Descriptor.Columns)
		assert.Equal(t, first[i].Rows, second[i].Rows)
	}
}

func TestDetect_TitleRowPeeled(t *testing.T) {
	grid := sheet.Grid{
		{"Q3 Sales Report", "", ""},
		{"Category", "Amount", "Region"},
		{"Dairy", "100", "North"},
		{"Beverages", "200", "South"},
	}

	tables := detectGrid(t, grid)
	require.Len(t, tables, 1)

	assert.Equal(t, "Q3 Sales Report", tables[0].Descriptor.Title)
	assert.Equal(t, []string{"Category", "Amount", "Region"}, tables[0].Descriptor.ColumnNames())
	assert.Equal(t, 2, tables[0].Descriptor.RowCount)
}

func TestDetect_TwoRowHeaderFlattened(t *testing.T) {
	grid := sheet.Grid{
		{"Sales by Cat", "Gross sales", ""},
		{"", "06/10/2025", "07/10/2025"},
		{"Dairy and homemade", "1,200", "1300"},
		{"Beverages", "800", "900"},
	}

	tables := detectGrid(t, grid)
	require.Len(t, tables, 1)

	assert.Equal(t,
		[]string{"Sales by Cat", "Gross sales - 06/10/2025", "Gross sales - 07/10/2025"},
		tables[0].Descriptor.ColumnNames())

	// Thousands separators parse as numeric.
	assert.Equal(t, int64(1200), tables[0].Rows[0][1])
}

func TestDetect_SyntheticHeadersWhenFirstRowIsData(t *testing.T) {
	grid := sheet.Grid{
		{"1", "2"},
		{"3", "4"},
		{"5", "6"},
	}

	tables := detectGrid(t, grid)
	require.Len(t, tables, 1)

	assert.Equal(t, []string{"Column_1", "Column_2"}, tables[0].Descriptor.ColumnNames())
	assert.Equal(t, 3, tables[0].Descriptor.RowCount)
}

func TestDetect_BlankHeaderGetsPositionalName(t *testing.T) {
	grid := sheet.Grid{
		{"Amount", "", "Region", "Code"},
		{"1", "2", "x", "a"},
		{"3", "4", "y", "b"},
	}

	tables := detectGrid(t, grid)
	require.Len(t, tables, 1)
	assert.Equal(t, []string{"Amount", "Column_2", "Region", "Code"}, tables[0].Descriptor.ColumnNames())
}

func TestUniquifyHeaders(t *testing.T) {
	got := uniquifyHeaders([]string{"Amount", "amount", "", "Amount"})
	assert.Equal(t, []string{"Amount", "amount_2", "Column_3", "Amount_3"}, got)
}

func TestDetect_DayFirstDateDefault(t *testing.T) {
	grid := sheet.Grid{
		{"Date", "Amount"},
		{"05/01/2024", "10"},
		{"06/02/2024", "20"},
	}

	tables := detectGrid(t, grid)
	require.Len(t, tables, 1)

	col, ok := tables[0].Descriptor.Column("Date")
	require.True(t, ok)
	assert.Equal(t, schema.ColumnDate, col.Type)

	// No day component exceeds 12, so DD/MM wins by default.
	assert.Equal(t, "2024-01-05", tables[0].Rows[0][0])
	assert.Equal(t, "2024-02-06", tables[0].Rows[1][0])
}

func TestDetect_MonthFirstWhenProven(t *testing.T) {
	grid := sheet.Grid{
		{"Date", "Amount"},
		{"01/13/2024", "10"},
		{"02/05/2024", "20"},
	}

	tables := detectGrid(t, grid)
	require.Len(t, tables, 1)

	// "01/13/2024" proves the second component is the day; the whole
	// column follows MM/DD.
	assert.Equal(t, "2024-01-13", tables[0].Rows[0][0])
	assert.Equal(t, "2024-02-05", tables[0].Rows[1][0])
}

func TestDetect_DayFirstWhenProven(t *testing.T) {
	grid := sheet.Grid{
		{"Date", "Amount"},
		{"15/01/2024", "10"},
		{"03/02/2024", "20"},
	}

	tables := detectGrid(t, grid)
	require.Len(t, tables, 1)
	assert.Equal(t, "2024-01-15", tables[0].Rows[0][0])
	assert.Equal(t, "2024-02-03", tables[0].Rows[1][0])
}

func TestDetect_DateTimePairMergedIntoTimestamp(t *testing.T) {
	grid := sheet.Grid{
		{"Order Date", "Order Time", "Qty"},
		{"15/01/2024", "14:30", "3"},
		{"16/01/2024", "09:05", "1"},
	}

	tables := detectGrid(t, grid)
	require.Len(t, tables, 1)

	timeCol, ok := tables[0].Descriptor.Column("Order Time")
	require.True(t, ok)
	assert.Equal(t, schema.ColumnTimestamp, timeCol.Type)

	assert.Equal(t, "2024-01-15 14:30:00", tables[0].Rows[0][1])
	assert.Equal(t, "2024-01-16 09:05:00", tables[0].Rows[1][1])

	// The date column itself stays a plain date.
	assert.Equal(t, "2024-01-15", tables[0].Rows[0][0])
}

func TestDetect_NameLikeColumnFlagged(t *testing.T) {
	grid := sheet.Grid{
		{"Customer Name", "Orders"},
		{"Meenakchi", "5"},
		{"Ravi", "3"},
	}

	tables := detectGrid(t, grid)
	require.Len(t, tables, 1)

	col, ok := tables[0].Descriptor.Column("Customer Name")
	require.True(t, ok)
	assert.True(t, col.NameLike)

	orders, ok := tables[0].Descriptor.Column("Orders")
	require.True(t, ok)
	assert.False(t, orders.NameLike)
	assert.Equal(t, schema.ColumnNumeric, orders.Type)
}

func TestDetect_CurrencyAndPercentParseAsNumeric(t *testing.T) {
	grid := sheet.Grid{
		{"Item", "Price", "Margin"},
		{"Milk", "$1,250.50", "12%"},
		{"Bread", "₹300", "8%"},
	}

	tables := detectGrid(t, grid)
	require.Len(t, tables, 1)

	assert.Equal(t, 1250.5, tables[0].Rows[0][1])
	assert.Equal(t, int64(12), tables[0].Rows[0][2])
	assert.Equal(t, int64(300), tables[0].Rows[1][1])
}

func TestDetect_TinyFragmentsIgnored(t *testing.T) {
	grid := sheet.Grid{
		{"Category", "Amount"},
		{"Dairy", "100"},
		{"Beverages", "200"},
		{"", ""},
		{"note", ""},
	}

	tables := detectGrid(t, grid)
	require.Len(t, tables, 1)
	assert.Equal(t, "Sales_Table1", tables[0].Descriptor.Name)
}

func TestDetect_SideBySideTables(t *testing.T) {
	grid := sheet.Grid{
		{"Category", "Amount", "", "Name", "Orders"},
		{"Dairy", "100", "", "Ravi", "3"},
		{"Beverages", "200", "", "Meena", "5"},
	}

	tables := detectGrid(t, grid)
	require.Len(t, tables, 2)
	assert.Equal(t, []string{"Category", "Amount"}, tables[0].Descriptor.ColumnNames())
	assert.Equal(t, []string{"Name", "Orders"}, tables[1].Descriptor.ColumnNames())
}

func TestDetect_EmptyGrid(t *testing.T) {
	assert.Empty(t, detectGrid(t, nil))
	assert.Empty(t, detectGrid(t, sheet.Grid{{"", ""}}))
}
