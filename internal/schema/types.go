// Package schema holds the structural metadata for every logical table the
// detector has extracted, and answers lookups against a consistent snapshot
// of that metadata.
package schema

import "strings"

// ColumnType is the inferred storage type of a detected column.
type ColumnType int

const (
	ColumnText ColumnType = iota
	ColumnNumeric
	ColumnDate
	ColumnTimestamp
)

// String returns the SQL-facing name of the type.
func (t ColumnType) String() string {
	switch t {
	case ColumnNumeric:
		return "NUMERIC"
	case ColumnDate:
		return "DATE"
	case ColumnTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// Comparable reports whether range operators (>, >=, <, <=, BETWEEN) are
// meaningful for the type. Pure text is excluded; dates and timestamps are
// stored in lexicographically ordered form, so they compare correctly.
func (t ColumnType) Comparable() bool {
	return t != ColumnText
}

// Column is one column of a detected table.
type Column struct {
	Name string
	Type ColumnType

	// NameLike marks text columns that hold person or entity names, making
	// them candidates for fuzzy spelling expansion at query time.
	NameLike bool
}

// CellRange is the origin of a table within its source sheet, in zero-based
// half-open row/column coordinates.
type CellRange struct {
	StartRow int `json:"start_row"`
	EndRow   int `json:"end_row"`
	StartCol int `json:"start_col"`
	EndCol   int `json:"end_col"`
}

// TableDescriptor is the normalized structural metadata for one logical
// table. It is created by the detector during a rebuild and read-only
// thereafter; a later rebuild of the same source supersedes it wholesale.
type TableDescriptor struct {
	// Name is the logical table name, unique across the whole registry
	// at any committed instant, e.g. "Sales_Table1".
	Name string `json:"name"`

	// SourceID groups every table derived from one sheet for atomic
	// cleanup. Format: spreadsheet_id + "#" + sheet_name.
	SourceID string `json:"source_id"`

	// PhysicalName is the staged identifier the columnar store created the
	// table under. Fresh per rebuild, never reused.
	PhysicalName string `json:"physical_name"`

	// Title is the human caption peeled off the top of the table region,
	// when one was detected.
	Title string `json:"title,omitempty"`

	// Description is an inferred one-line summary used as retrieval context.
	Description string `json:"description,omitempty"`

	Columns  []Column  `json:"columns"`
	RowCount int       `json:"row_count"`
	Origin   CellRange `json:"origin"`
}

// Column resolves a column by name, case-insensitively, returning the
// canonical descriptor entry.
func (d *TableDescriptor) Column(name string) (Column, bool) {
	for _, c := range d.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in declaration order.
func (d *TableDescriptor) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}
