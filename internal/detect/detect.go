// Package detect splits a raw sheet grid into logical tables: it finds
// rectangular regions separated by blank rows and columns, peels titles,
// normalizes headers, infers column types and materializes typed rows.
//
// Detection is deterministic and idempotent: byte-identical input always
// yields identical descriptors, names and rows. The change registry relies
// on that to treat hash equality as "nothing to rebuild".
package detect

import (
	"fmt"
	"strings"

	"github.com/gridlabs/gridquery/internal/schema"
	"github.com/gridlabs/gridquery/internal/sheet"
)

// Config controls detection heuristics.
type Config struct {
	// MinRegionRows and MinRegionCols set the smallest region treated as a
	// table; smaller fragments are ignored.
	MinRegionRows int
	MinRegionCols int

	// HeaderScanRows caps how many leading rows may be treated as header
	// rows (1 or 2).
	HeaderScanRows int

	// TypeSampleSize caps how many non-empty values per column are sampled
	// for type inference. 0 means all.
	TypeSampleSize int
}

// DefaultConfig returns the detection defaults.
func DefaultConfig() Config {
	return Config{
		MinRegionRows:  2,
		MinRegionCols:  2,
		HeaderScanRows: 2,
		TypeSampleSize: 200,
	}
}

// Table is one detected logical table: its descriptor plus materialized,
// typed rows ready for the columnar store. Cell values are int64, float64,
// string or nil.
type Table struct {
	Descriptor *schema.TableDescriptor
	Rows       [][]any
}

// Detector extracts logical tables from canonicalized sheet grids.
type Detector struct {
	cfg Config
}

// New returns a Detector with the given config; zero fields fall back to
// defaults.
func New(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.MinRegionRows <= 0 {
		cfg.MinRegionRows = def.MinRegionRows
	}
	if cfg.MinRegionCols <= 0 {
		cfg.MinRegionCols = def.MinRegionCols
	}
	if cfg.HeaderScanRows <= 0 {
		cfg.HeaderScanRows = def.HeaderScanRows
	}
	if cfg.HeaderScanRows > 2 {
		cfg.HeaderScanRows = 2
	}
	if cfg.TypeSampleSize < 0 {
		cfg.TypeSampleSize = 0
	}
	return &Detector{cfg: cfg}
}

// Detect splits the grid into logical tables. Table names follow the region
// scan order, top-to-bottom then left-to-right: "{sheetID}_Table{N}" with N
// starting at 1.
func (d *Detector) Detect(spreadsheetID, sheetID string, grid sheet.Grid) []Table {
	sourceID := sheet.SourceID(spreadsheetID, sheetID)

	var tables []Table
	index := 0
	for _, reg := range findRegions(grid) {
		if reg.r1-reg.r0 < d.cfg.MinRegionRows || reg.c1-reg.c0 < d.cfg.MinRegionCols {
			continue
		}
		index++
		name := fmt.Sprintf("%s_Table%d", sheetID, index)
		if t, ok := d.buildTable(name, sourceID, grid, reg); ok {
			tables = append(tables, t)
		}
	}
	return tables
}

// region is a half-open rectangle of grid coordinates.
type region struct {
	r0, r1, c0, c1 int
}

// findRegions locates maximal rectangular blocks of non-empty cells
// separated by fully blank rows or fully blank columns. Row and column
// splitting alternate until the partition is stable, then each block is
// trimmed to its bounding box.
func findRegions(grid sheet.Grid) []region {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return nil
	}

	regions := []region{{0, len(grid), 0, len(grid[0])}}
	for {
		var next []region
		split := false
		for _, reg := range regions {
			rows := splitByBlankRows(grid, reg)
			for _, band := range rows {
				cols := splitByBlankCols(grid, band)
				next = append(next, cols...)
				if len(rows) > 1 || len(cols) > 1 {
					split = true
				}
			}
		}
		regions = next
		if !split {
			break
		}
	}

	var out []region
	for _, reg := range regions {
		if trimmed, ok := trimRegion(grid, reg); ok {
			out = append(out, trimmed)
		}
	}
	return out
}

func splitByBlankRows(grid sheet.Grid, reg region) []region {
	var out []region
	start := -1
	for r := reg.r0; r < reg.r1; r++ {
		blank := rangeEmpty(grid, r, r+1, reg.c0, reg.c1)
		if blank {
			if start >= 0 {
				out = append(out, region{start, r, reg.c0, reg.c1})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = r
		}
	}
	if start >= 0 {
		out = append(out, region{start, reg.r1, reg.c0, reg.c1})
	}
	return out
}

func splitByBlankCols(grid sheet.Grid, reg region) []region {
	var out []region
	start := -1
	for c := reg.c0; c < reg.c1; c++ {
		blank := rangeEmpty(grid, reg.r0, reg.r1, c, c+1)
		if blank {
			if start >= 0 {
				out = append(out, region{reg.r0, reg.r1, start, c})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = c
		}
	}
	if start >= 0 {
		out = append(out, region{reg.r0, reg.r1, start, reg.c1})
	}
	return out
}

// trimRegion shrinks a region to the bounding box of its non-empty cells.
func trimRegion(grid sheet.Grid, reg region) (region, bool) {
	for reg.r0 < reg.r1 && rangeEmpty(grid, reg.r0, reg.r0+1, reg.c0, reg.c1) {
		reg.r0++
	}
	for reg.r1 > reg.r0 && rangeEmpty(grid, reg.r1-1, reg.r1, reg.c0, reg.c1) {
		reg.r1--
	}
	for reg.c0 < reg.c1 && rangeEmpty(grid, reg.r0, reg.r1, reg.c0, reg.c0+1) {
		reg.c0++
	}
	for reg.c1 > reg.c0 && rangeEmpty(grid, reg.r0, reg.r1, reg.c1-1, reg.c1) {
		reg.c1--
	}
	if reg.r0 >= reg.r1 || reg.c0 >= reg.c1 {
		return region{}, false
	}
	return reg, true
}

func rangeEmpty(grid sheet.Grid, r0, r1, c0, c1 int) bool {
	for r := r0; r < r1 && r < len(grid); r++ {
		row := grid[r]
		for c := c0; c < c1 && c < len(row); c++ {
			if strings.TrimSpace(row[c]) != "" {
				return false
			}
		}
	}
	return true
}

// cellAt returns the trimmed cell value, tolerating ragged rows.
func cellAt(grid sheet.Grid, r, c int) string {
	if r >= len(grid) || c >= len(grid[r]) {
		return ""
	}
	return strings.TrimSpace(grid[r][c])
}
