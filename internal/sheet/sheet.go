// Package sheet models raw spreadsheet content as it arrives from a
// connector: ordered rows of ordered string cells, hashed per sheet so that
// hash equality stands in for content equality during change detection.
package sheet

import "context"

// Grid is raw cell content, exactly as fetched. Rows may be ragged; the
// canonical form produced by Canonicalize is rectangular.
type Grid [][]string

// Snapshot is one sheet's canonicalized content plus its content hash.
// A snapshot is immutable once built; a fresh fetch produces a new value.
type Snapshot struct {
	SheetID string
	Grid    Grid
	Hash    string
}

// NewSnapshot canonicalizes the grid and computes its content hash.
func NewSnapshot(sheetID string, grid Grid) Snapshot {
	canonical := Canonicalize(grid)
	return Snapshot{SheetID: sheetID, Grid: canonical, Hash: Hash(canonical)}
}

// Source is one complete fetch of a workbook: the top-level source identity
// plus a snapshot per sheet, in workbook order.
type Source struct {
	SpreadsheetID string
	Sheets        []Snapshot
}

// SourceID builds the composite key that scopes all artifacts derived from
// one sheet: spreadsheet identity + "#" + sheet name.
func SourceID(spreadsheetID, sheetID string) string {
	return spreadsheetID + "#" + sheetID
}

// Connector fetches raw workbook content. Implementations wrap whatever the
// actual source is: a local file, a remote spreadsheet API, a test fixture.
type Connector interface {
	Fetch(ctx context.Context) (*Source, error)
}
