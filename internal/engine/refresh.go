package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gridlabs/gridquery/internal/logging"
	"github.com/gridlabs/gridquery/internal/registry"
	"github.com/gridlabs/gridquery/internal/schema"
	"github.com/gridlabs/gridquery/internal/sheet"
)

// RefreshStats summarizes one refresh pass.
type RefreshStats struct {
	FullReset     bool          `json:"full_reset"`
	RebuiltSheets int           `json:"rebuilt_sheets"`
	RemovedSheets int           `json:"removed_sheets"`
	FailedSheets  int           `json:"failed_sheets"`
	Tables        int           `json:"tables"`
	Orphans       int           `json:"orphans_swept"`
	Duration      time.Duration `json:"duration"`
}

// Refresh fetches the source, decides rebuild scope by content hash, and
// rebuilds exactly the changed sheets. Rebuilds of distinct sheets run
// concurrently; each follows the staged-swap protocol with the registry
// commit as the final visibility step. A sheet whose rebuild fails is rolled
// back and retried on the next refresh; it never corrupts committed state,
// and it does not abort the other sheets.
func (e *Engine) Refresh(ctx context.Context) (*RefreshStats, error) {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	log := logging.FromContext(ctx)
	start := time.Now()

	src, err := e.connector.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}

	// Reclaim physical tables left by rebuilds that failed before their
	// commit, before staging new ones.
	orphans, err := e.store.SweepOrphans(ctx, e.registry.CommittedPhysicalNames())
	if err != nil {
		return nil, fmt.Errorf("sweep orphans: %w", err)
	}
	if orphans > 0 {
		log.Info("swept orphaned tables", "count", orphans)
	}

	refreshPlan := e.warmStart(src, e.registry.PlanRefresh(src))
	stats := &RefreshStats{FullReset: refreshPlan.FullReset, Orphans: orphans}

	if refreshPlan.FullReset {
		log.Info("full reset", "spreadsheet", src.SpreadsheetID, "previous", e.registry.SpreadsheetID())
		if err := e.reset(ctx, src.SpreadsheetID); err != nil {
			return nil, err
		}
	}

	if !refreshPlan.NeedsRefresh {
		stats.Tables = len(e.schemas.Snapshot().Names())
		stats.Duration = time.Since(start)
		log.Debug("source unchanged", "sheets", len(src.Sheets))
		return stats, nil
	}

	snapshots := make(map[string]sheet.Snapshot, len(src.Sheets))
	for _, snap := range src.Sheets {
		snapshots[snap.SheetID] = snap
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.rebuilds)
	results := make([]error, len(refreshPlan.Changed))
	for i, sheetID := range refreshPlan.Changed {
		i, sheetID := i, sheetID
		g.Go(func() error {
			results[i] = e.rebuildSheet(gctx, src.SpreadsheetID, snapshots[sheetID])
			// Per-sheet failures are contained, not propagated: one bad
			// sheet must not cancel its siblings.
			return nil
		})
	}
	g.Wait()

	for i, err := range results {
		if err != nil {
			stats.FailedSheets++
			log.Error("sheet rebuild failed, previous state retained",
				"sheet", refreshPlan.Changed[i], "error", err)
			continue
		}
		stats.RebuiltSheets++
	}

	for _, sheetID := range refreshPlan.Removed {
		if err := e.removeSheet(ctx, src.SpreadsheetID, sheetID); err != nil {
			log.Error("sheet removal failed", "sheet", sheetID, "error", err)
			continue
		}
		stats.RemovedSheets++
	}

	stats.Tables = len(e.schemas.Snapshot().Names())
	stats.Duration = time.Since(start)
	log.Info("refresh complete",
		"full_reset", stats.FullReset,
		"rebuilt", stats.RebuiltSheets,
		"removed", stats.RemovedSheets,
		"failed", stats.FailedSheets,
		"tables", stats.Tables,
		"duration", stats.Duration,
	)
	return stats, nil
}

// warmStart schedules rebuilds for sheets the registry has committed but the
// schema store has never seen. This is the process-restart case: the registry
// survives restarts, the in-memory schema does not, so an unchanged hash
// alone is not enough to serve queries.
func (e *Engine) warmStart(src *sheet.Source, p registry.RefreshPlan) registry.RefreshPlan {
	if p.FullReset {
		return p
	}
	changed := make(map[string]bool, len(p.Changed))
	for _, id := range p.Changed {
		changed[id] = true
	}
	known := map[string]bool{}
	for _, d := range e.schemas.Snapshot().Tables() {
		known[d.SourceID] = true
	}
	for _, snap := range src.Sheets {
		if changed[snap.SheetID] {
			continue
		}
		entry, ok := e.registry.Entry(snap.SheetID)
		if ok && len(entry.TableNames) > 0 && !known[sheet.SourceID(src.SpreadsheetID, snap.SheetID)] {
			p.Changed = append(p.Changed, snap.SheetID)
		}
	}
	sort.Strings(p.Changed)
	p.NeedsRefresh = p.NeedsRefresh || len(p.Changed) > 0
	return p
}

// rebuildSheet runs the commit protocol for one sheet: detect, materialize
// under fresh physical names, swap the schema source, drop the superseded
// physical tables, and only then write the registry entry. Any failure
// before the commit leaves the entry untouched, so the next refresh sees the
// sheet as still changed.
func (e *Engine) rebuildSheet(ctx context.Context, spreadsheetID string, snap sheet.Snapshot) (err error) {
	log := logging.WithFields(ctx, "sheet", snap.SheetID)
	sourceID := sheet.SourceID(spreadsheetID, snap.SheetID)

	release := e.registry.BeginRebuild(snap.SheetID)
	defer release()
	defer func() {
		if err != nil {
			e.registry.Abort(snap.SheetID)
		}
	}()

	tables := e.detector.Detect(spreadsheetID, snap.SheetID, snap.Grid)

	var staged []string
	for _, t := range tables {
		if err := e.store.Materialize(ctx, t.Descriptor, t.Rows); err != nil {
			e.discardStaged(ctx, staged)
			return fmt.Errorf("materialize %s: %w", t.Descriptor.Name, err)
		}
		staged = append(staged, t.Descriptor.PhysicalName)
	}

	descs := make([]*schema.TableDescriptor, len(tables))
	for i, t := range tables {
		descs[i] = t.Descriptor
	}
	if err := e.schemas.ReplaceSource(sourceID, descs); err != nil {
		e.discardStaged(ctx, staged)
		return fmt.Errorf("swap schema for %s: %w", sourceID, err)
	}

	if prev, ok := e.registry.Entry(snap.SheetID); ok {
		if err := e.store.DropTables(ctx, prev.PhysicalNames); err != nil {
			return fmt.Errorf("drop superseded tables for %s: %w", sourceID, err)
		}
	}

	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	sort.Strings(names)
	if err := e.registry.Commit(snap.SheetID, snap.Hash, names, staged); err != nil {
		return fmt.Errorf("commit registry entry for %s: %w", snap.SheetID, err)
	}

	for _, d := range descs {
		log.Info("table committed",
			"table", d.Name,
			"columns", len(d.Columns),
			"rows", d.RowCount,
			"title", d.Title,
		)
	}
	return nil
}

// removeSheet deletes all committed artifacts of a sheet that disappeared
// from the source.
func (e *Engine) removeSheet(ctx context.Context, spreadsheetID, sheetID string) error {
	release := e.registry.BeginRebuild(sheetID)
	defer release()

	sourceID := sheet.SourceID(spreadsheetID, sheetID)
	physical := e.schemas.RemoveSource(sourceID)
	if err := e.store.DropTables(ctx, physical); err != nil {
		e.registry.Abort(sheetID)
		return fmt.Errorf("drop tables for removed sheet %s: %w", sheetID, err)
	}
	if err := e.registry.Forget(sheetID); err != nil {
		return fmt.Errorf("forget sheet %s: %w", sheetID, err)
	}
	logging.FromContext(ctx).Info("sheet removed", "sheet", sheetID)
	return nil
}

// reset clears every committed artifact: schema sources, physical tables,
// and the registry itself.
func (e *Engine) reset(ctx context.Context, spreadsheetID string) error {
	seen := map[string]bool{}
	for _, d := range e.schemas.Snapshot().Tables() {
		if !seen[d.SourceID] {
			seen[d.SourceID] = true
			e.schemas.RemoveSource(d.SourceID)
		}
	}
	if err := e.registry.Reset(spreadsheetID); err != nil {
		return fmt.Errorf("reset registry: %w", err)
	}
	// With the registry now empty, everything in the store is an orphan.
	if _, err := e.store.SweepOrphans(ctx, nil); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	return nil
}

// discardStaged best-effort drops tables staged by a failed rebuild. Drop
// failures are tolerated: the orphan sweep at the start of the next refresh
// reclaims them.
func (e *Engine) discardStaged(ctx context.Context, physical []string) {
	if err := e.store.DropTables(ctx, physical); err != nil {
		logging.FromContext(ctx).Warn("could not discard staged tables, sweep will reclaim", "error", err)
	}
}
