package sheet

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// WorkbookConnector reads a local .xlsx workbook as the source: one snapshot
// per worksheet tab, with the file name (without extension) as the top-level
// source identity.
type WorkbookConnector struct {
	path string
}

// NewWorkbookConnector returns a connector for the workbook at path.
func NewWorkbookConnector(path string) *WorkbookConnector {
	return &WorkbookConnector{path: path}
}

// Fetch opens the workbook and snapshots every sheet. A sheet that cannot be
// read is skipped with a warning; its previously committed state, if any,
// stays untouched because it simply does not appear in the fetch. Failure to
// open the workbook itself is fatal.
func (c *WorkbookConnector) Fetch(ctx context.Context) (*Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", c.path, err)
	}
	defer f.Close()

	base := filepath.Base(c.path)
	spreadsheetID := strings.TrimSuffix(base, filepath.Ext(base))

	src := &Source{SpreadsheetID: spreadsheetID}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			slog.Warn("skipping unreadable sheet", "sheet", name, "error", err)
			continue
		}
		src.Sheets = append(src.Sheets, NewSnapshot(name, rows))
	}
	return src, nil
}
