package detect

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gridlabs/gridquery/internal/schema"
)

// inferColumns classifies every column by majority vote over sampled
// non-empty values and materializes the data rows into typed values:
// int64/float64 for numeric, ISO-8601 strings for dates (lexicographically
// ordered, so range filters work), raw strings for text, nil for blanks and
// unparseable cells.
func (d *Detector) inferColumns(headers []string, data [][]string) ([]schema.Column, [][]any) {
	columns := make([]schema.Column, len(headers))
	layouts := make([]dateLayout, len(headers))

	for c := range headers {
		values := columnValues(data, c, d.cfg.TypeSampleSize)
		colType := classifyColumn(values)
		layout := layoutUnknown
		if colType == schema.ColumnDate {
			layout = resolveDateLayout(columnValues(data, c, 0))
		}
		layouts[c] = layout
		columns[c] = schema.Column{
			Name:     headers[c],
			Type:     colType,
			NameLike: colType == schema.ColumnText && schema.IsNameLike(headers[c]),
		}
	}

	typed := make([][]any, len(data))
	for r, row := range data {
		out := make([]any, len(headers))
		for c := range headers {
			var raw string
			if c < len(row) {
				raw = row[c]
			}
			out[c] = materialize(raw, columns[c].Type, layouts[c])
		}
		typed[r] = out
	}
	return columns, typed
}

func columnValues(data [][]string, col, limit int) []string {
	var out []string
	for _, row := range data {
		if col >= len(row) || row[col] == "" {
			continue
		}
		out = append(out, row[col])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// classifyColumn picks numeric, date or text by strict majority of the
// sampled values. Ties fall back to text.
func classifyColumn(values []string) schema.ColumnType {
	if len(values) == 0 {
		return schema.ColumnText
	}
	numeric, date := 0, 0
	for _, v := range values {
		if _, ok := parseNumber(v); ok {
			numeric++
		} else if looksLikeDate(v) {
			date++
		}
	}
	switch {
	case numeric*2 > len(values):
		return schema.ColumnNumeric
	case date*2 > len(values):
		return schema.ColumnDate
	default:
		return schema.ColumnText
	}
}

func materialize(raw string, t schema.ColumnType, layout dateLayout) any {
	if raw == "" {
		return nil
	}
	switch t {
	case schema.ColumnNumeric:
		f, ok := parseNumber(raw)
		if !ok {
			return nil
		}
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case schema.ColumnDate:
		if d, ok := parseDate(raw, layout); ok {
			return d.Format("2006-01-02")
		}
		return nil
	case schema.ColumnTimestamp:
		return raw
	default:
		return raw
	}
}

// parseNumber parses a numeric cell, tolerating thousands separators,
// currency symbols and percent signs.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	for _, prefix := range []string{"$", "₹", "€", "£"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimSuffix(s, "%")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// dateLayout is the resolved component order for ambiguous numeric dates.
type dateLayout int

const (
	layoutUnknown dateLayout = iota
	layoutDayFirst
	layoutMonthFirst
)

var textualDateFormats = []string{
	"2006-01-02",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"2006-01-02 15:04:05",
}

func looksLikeDate(s string) bool {
	s = strings.TrimSpace(s)
	for _, layout := range textualDateFormats {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	_, _, _, ok := splitNumericDate(s)
	return ok
}

// splitNumericDate breaks "a/b/yyyy" or "a-b-yyyy" into components without
// deciding which of a, b is the day.
func splitNumericDate(s string) (a, b, year int, ok bool) {
	sep := "/"
	if !strings.Contains(s, "/") {
		sep = "-"
	}
	parts := strings.Split(strings.TrimSpace(s), sep)
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, 0, 0, false
		}
		nums[i] = n
	}
	if nums[2] < 100 {
		nums[2] += 2000
	}
	if nums[0] < 1 || nums[0] > 31 || nums[1] < 1 || nums[1] > 31 || nums[2] < 1000 || nums[2] > 9999 {
		return 0, 0, 0, false
	}
	return nums[0], nums[1], nums[2], true
}

// resolveDateLayout settles the DD/MM vs MM/DD ambiguity for a whole
// column: any value whose first component exceeds 12 proves day-first, any
// value whose second component exceeds 12 proves month-first, and absent
// proof day-first (DD/MM/YYYY) is the default.
func resolveDateLayout(values []string) dateLayout {
	for _, v := range values {
		a, b, _, ok := splitNumericDate(v)
		if !ok {
			continue
		}
		if a > 12 {
			return layoutDayFirst
		}
		if b > 12 {
			return layoutMonthFirst
		}
	}
	return layoutDayFirst
}

func parseDate(s string, layout dateLayout) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, f := range textualDateFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t, true
		}
	}
	a, b, year, ok := splitNumericDate(s)
	if !ok {
		return time.Time{}, false
	}
	day, month := a, b
	if layout == layoutMonthFirst {
		day, month = b, a
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// mergeDateTime combines a date/time column pair into a single timestamp
// column. When a date-typed column whose header mentions "date" sits in the
// same table as a text column whose header mentions "time" and whose values
// are times of day, the time column is rebuilt as a full timestamp using
// the paired date. The date column itself is kept unchanged.
func mergeDateTime(columns []schema.Column, rows [][]any) ([]schema.Column, [][]any) {
	dateIdx, timeIdx := -1, -1
	for i, c := range columns {
		lower := strings.ToLower(c.Name)
		if dateIdx < 0 && c.Type == schema.ColumnDate && strings.Contains(lower, "date") {
			dateIdx = i
		}
		if timeIdx < 0 && c.Type == schema.ColumnText && strings.Contains(lower, "time") {
			timeIdx = i
		}
	}
	if dateIdx < 0 || timeIdx < 0 || dateIdx == timeIdx {
		return columns, rows
	}

	// Require a majority of time-of-day values before committing.
	timeLike, total := 0, 0
	for _, row := range rows {
		s, ok := row[timeIdx].(string)
		if !ok || s == "" {
			continue
		}
		total++
		if _, ok := parseTimeOfDay(s); ok {
			timeLike++
		}
	}
	if total == 0 || timeLike*2 <= total {
		return columns, rows
	}

	columns[timeIdx].Type = schema.ColumnTimestamp
	columns[timeIdx].NameLike = false
	for _, row := range rows {
		date, okDate := row[dateIdx].(string)
		clock, okTime := row[timeIdx].(string)
		if !okDate || !okTime {
			row[timeIdx] = nil
			continue
		}
		hms, ok := parseTimeOfDay(clock)
		if !ok {
			row[timeIdx] = nil
			continue
		}
		row[timeIdx] = date + " " + hms
	}
	return columns, rows
}

var timeOfDayFormats = []string{"15:04:05", "15:04", "3:04 PM", "3:04:05 PM", "3:04 pm"}

func parseTimeOfDay(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, f := range timeOfDayFormats {
		if t, err := time.Parse(f, s); err == nil {
			return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second()), true
		}
	}
	return "", false
}
