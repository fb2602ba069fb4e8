package detect

import (
	"fmt"
	"strings"

	"github.com/gridlabs/gridquery/internal/schema"
	"github.com/gridlabs/gridquery/internal/sheet"
)

// buildTable turns one region into a named, typed table. Returns false when
// the region has no data rows left after title and header handling.
func (d *Detector) buildTable(name, sourceID string, grid sheet.Grid, reg region) (Table, bool) {
	width := reg.c1 - reg.c0

	rows := make([][]string, 0, reg.r1-reg.r0)
	for r := reg.r0; r < reg.r1; r++ {
		row := make([]string, width)
		for c := 0; c < width; c++ {
			row[c] = cellAt(grid, r, reg.c0+c)
		}
		rows = append(rows, row)
	}

	title, rows, titlePeeled := peelTitle(rows)

	headers, dataStart := d.detectHeaders(rows, width)
	data := rows[dataStart:]

	// Drop fully blank data rows.
	kept := data[:0]
	for _, row := range data {
		if !allEmpty(row) {
			kept = append(kept, row)
		}
	}
	data = kept
	if len(data) == 0 {
		return Table{}, false
	}

	columns, typed := d.inferColumns(headers, data)
	columns, typed = mergeDateTime(columns, typed)

	originStart := reg.r0
	if titlePeeled {
		originStart++
	}

	desc := &schema.TableDescriptor{
		Name:        name,
		SourceID:    sourceID,
		Title:       title,
		Columns:     columns,
		RowCount:    len(typed),
		Origin:      schema.CellRange{StartRow: originStart, EndRow: reg.r1, StartCol: reg.c0, EndCol: reg.c1},
		Description: schema.InferDescription(name, columns),
	}
	return Table{Descriptor: desc, Rows: typed}, true
}

// peelTitle removes a leading caption row: a first row with strictly fewer
// filled cells than the row below it, and either at most two filled cells
// or under 60% of the next row's fill. The first non-empty cell becomes the
// table title.
func peelTitle(rows [][]string) (string, [][]string, bool) {
	if len(rows) < 2 {
		return "", rows, false
	}
	first := countNonEmpty(rows[0])
	second := countNonEmpty(rows[1])
	if first >= second {
		return "", rows, false
	}
	if first > 2 && float64(first) >= 0.6*float64(second) {
		return "", rows, false
	}

	title := ""
	for _, cell := range rows[0] {
		if cell != "" {
			title = cell
			break
		}
	}
	return title, rows[1:], true
}

// detectHeaders decides how many leading rows are headers and returns the
// flattened, uniquified column names plus the index where data begins.
//
// A row qualifies as a header when it is well filled, predominantly
// non-numeric, and its values are unique. A second header row is accepted
// only when the first header row has blank cells (a spanning header split
// across two rows); the pair is flattened by ordered concatenation with
// " - ", forward-filling the spanning top row.
func (d *Detector) detectHeaders(rows [][]string, width int) ([]string, int) {
	if len(rows) == 0 {
		return syntheticHeaders(width), 0
	}
	if !headerish(rows[0], width) {
		return uniquifyHeaders(syntheticHeaders(width)), 0
	}

	if d.cfg.HeaderScanRows >= 2 && len(rows) > 2 &&
		hasBlank(rows[0]) && headerish(rows[1], width) {
		return uniquifyHeaders(flattenHeaders(rows[0], rows[1])), 2
	}
	return uniquifyHeaders(append([]string(nil), rows[0]...)), 1
}

// headerish reports whether a row looks like a header: filled in at least
// 40% of the columns (minimum two cells), at least 60% non-numeric values,
// and no duplicate values.
func headerish(row []string, width int) bool {
	filled := countNonEmpty(row)
	if filled < 2 || filled < (width*2+4)/5 {
		return false
	}

	nonNumeric := 0
	seen := make(map[string]bool, filled)
	for _, cell := range row {
		if cell == "" {
			continue
		}
		key := strings.ToLower(cell)
		if seen[key] {
			return false
		}
		seen[key] = true
		if _, ok := parseNumber(cell); !ok {
			nonNumeric++
		}
	}
	return nonNumeric*5 >= filled*3
}

// flattenHeaders joins a two-row header into single column names. The top
// row is forward-filled so a spanning label applies to every column under
// its span.
func flattenHeaders(top, bottom []string) []string {
	out := make([]string, len(top))
	carry := ""
	for i := range top {
		if top[i] != "" {
			carry = top[i]
		}
		switch {
		case carry != "" && bottom[i] != "":
			out[i] = carry + " - " + bottom[i]
		case bottom[i] != "":
			out[i] = bottom[i]
		default:
			out[i] = carry
		}
	}
	return out
}

// uniquifyHeaders replaces blank names with positional fallbacks and
// disambiguates duplicates with numeric suffixes, preserving order.
func uniquifyHeaders(headers []string) []string {
	counts := make(map[string]int, len(headers))
	out := make([]string, len(headers))
	for i, h := range headers {
		if h == "" {
			h = fmt.Sprintf("Column_%d", i+1)
		}
		key := strings.ToLower(h)
		counts[key]++
		if counts[key] > 1 {
			h = fmt.Sprintf("%s_%d", h, counts[key])
		}
		out[i] = h
	}
	return out
}

func syntheticHeaders(width int) []string {
	out := make([]string, width)
	for i := range out {
		out[i] = fmt.Sprintf("Column_%d", i+1)
	}
	return out
}

func countNonEmpty(row []string) int {
	n := 0
	for _, cell := range row {
		if cell != "" {
			n++
		}
	}
	return n
}

func hasBlank(row []string) bool {
	for _, cell := range row {
		if cell == "" {
			return true
		}
	}
	return false
}

func allEmpty(row []string) bool {
	return countNonEmpty(row) == 0
}
