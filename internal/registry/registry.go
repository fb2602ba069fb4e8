// Package registry owns the persisted map of sheet identity to committed
// content hash and derived table names. It is the sole writer of that state;
// everything else sees read-only copies. A registry entry is updated only as
// the final step of a successful rebuild, so after a crash a half-finished
// rebuild is indistinguishable from "still changed" and is simply retried.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gridlabs/gridquery/internal/sheet"
)

// Entry is the committed state for one sheet.
type Entry struct {
	SheetID       string    `json:"sheet_id"`
	CommittedHash string    `json:"committed_hash"`
	TableNames    []string  `json:"table_names"`
	PhysicalNames []string  `json:"physical_names"`
	CommittedAt   time.Time `json:"committed_at"`
}

// Phase is the rebuild state of a sheet. The transition back to
// PhaseCommitted is the only externally visible change.
type Phase int

const (
	PhaseCommitted Phase = iota
	PhaseRebuilding
	PhaseRolledBack
)

func (p Phase) String() string {
	switch p {
	case PhaseRebuilding:
		return "rebuilding"
	case PhaseRolledBack:
		return "rolled_back"
	default:
		return "committed"
	}
}

type persisted struct {
	SpreadsheetID string           `json:"spreadsheet_id"`
	Sheets        map[string]Entry `json:"sheets"`
}

// Registry is the owning component of the on-disk sheet-hash state.
type Registry struct {
	path string

	mu     sync.Mutex
	state  persisted
	phases map[string]Phase
	locks  map[string]*sync.Mutex
}

// Open loads the registry at path. A missing, unreadable or corrupt file is
// not an error: it yields an empty registry, which forces a full reset on
// the next refresh. The worst case is rebuilding everything, never serving
// stale data.
func Open(path string) *Registry {
	r := &Registry{
		path:   path,
		state:  persisted{Sheets: map[string]Entry{}},
		phases: map[string]Phase{},
		locks:  map[string]*sync.Mutex{},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("registry unreadable, starting empty", "path", path, "error", err)
		}
		return r
	}
	var st persisted
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("registry corrupt, starting empty", "path", path, "error", err)
		return r
	}
	if st.Sheets == nil {
		st.Sheets = map[string]Entry{}
	}
	r.state = st
	return r
}

// RefreshPlan is the registry's decision about a fetched source.
type RefreshPlan struct {
	NeedsRefresh bool
	FullReset    bool
	Changed      []string
	Removed      []string
}

// PlanRefresh compares the fetched snapshots against committed state. A
// full reset is declared when the registry is empty or records a different
// spreadsheet identity; then every sheet counts as changed. Otherwise only
// hash mismatches (including sheets never seen before) are scheduled, and
// sheets recorded but absent from the fetch are scheduled for removal.
func (r *Registry) PlanRefresh(src *sheet.Source) RefreshPlan {
	r.mu.Lock()
	defer r.mu.Unlock()

	var p RefreshPlan
	if r.state.SpreadsheetID == "" || r.state.SpreadsheetID != src.SpreadsheetID {
		p.FullReset = true
	}

	current := make(map[string]bool, len(src.Sheets))
	for _, snap := range src.Sheets {
		current[snap.SheetID] = true
		if p.FullReset {
			p.Changed = append(p.Changed, snap.SheetID)
			continue
		}
		entry, ok := r.state.Sheets[snap.SheetID]
		if !ok || entry.CommittedHash != snap.Hash {
			p.Changed = append(p.Changed, snap.SheetID)
		}
	}
	for id := range r.state.Sheets {
		if !current[id] {
			p.Removed = append(p.Removed, id)
		}
	}
	sort.Strings(p.Changed)
	sort.Strings(p.Removed)
	p.NeedsRefresh = len(p.Changed) > 0 || len(p.Removed) > 0 || p.FullReset
	return p
}

// Reset clears all committed entries and records the new spreadsheet
// identity. Persisting the empty state immediately is safe: the worst a
// crash can cause is another full rebuild.
func (r *Registry) Reset(spreadsheetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = persisted{SpreadsheetID: spreadsheetID, Sheets: map[string]Entry{}}
	return r.save()
}

// BeginRebuild serializes rebuilds per sheet and marks the sheet as
// rebuilding. Rebuilds of distinct sheets proceed concurrently. The caller
// must finish with Commit or Abort and then invoke the returned release.
func (r *Registry) BeginRebuild(sheetID string) (release func()) {
	r.mu.Lock()
	lock, ok := r.locks[sheetID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[sheetID] = lock
	}
	r.mu.Unlock()

	lock.Lock()

	r.mu.Lock()
	r.phases[sheetID] = PhaseRebuilding
	r.mu.Unlock()
	return lock.Unlock
}

// Commit records the new committed hash and table lists for a sheet and
// persists the registry. This is the single visibility step of the rebuild
// protocol: it runs only after materialization and old-version cleanup both
// succeeded.
func (r *Registry) Commit(sheetID, hash string, tableNames, physicalNames []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, hadPrev := r.state.Sheets[sheetID]
	r.state.Sheets[sheetID] = Entry{
		SheetID:       sheetID,
		CommittedHash: hash,
		TableNames:    tableNames,
		PhysicalNames: physicalNames,
		CommittedAt:   time.Now().UTC(),
	}
	if err := r.save(); err != nil {
		if hadPrev {
			r.state.Sheets[sheetID] = prev
		} else {
			delete(r.state.Sheets, sheetID)
		}
		r.phases[sheetID] = PhaseRolledBack
		return err
	}
	r.phases[sheetID] = PhaseCommitted
	return nil
}

// Abort rolls a sheet back to its previous committed state: the entry is
// left untouched so the next refresh sees it as still changed.
func (r *Registry) Abort(sheetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases[sheetID] = PhaseRolledBack
}

// Forget removes a sheet's entry, used when the sheet disappeared from the
// source.
func (r *Registry) Forget(sheetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state.Sheets, sheetID)
	delete(r.phases, sheetID)
	return r.save()
}

// Phase returns the rebuild phase of a sheet.
func (r *Registry) Phase(sheetID string) Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phases[sheetID]
}

// Entry returns the committed entry for a sheet.
func (r *Registry) Entry(sheetID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.state.Sheets[sheetID]
	return e, ok
}

// Entries returns all committed entries, ordered by sheet id.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.state.Sheets))
	for _, e := range r.state.Sheets {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SheetID < out[j].SheetID })
	return out
}

// CommittedPhysicalNames returns the set of physical table names referenced
// by any committed entry. Everything outside this set is an orphan.
func (r *Registry) CommittedPhysicalNames() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]bool{}
	for _, e := range r.state.Sheets {
		for _, name := range e.PhysicalNames {
			out[name] = true
		}
	}
	return out
}

// SpreadsheetID returns the recorded top-level source identity.
func (r *Registry) SpreadsheetID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.SpreadsheetID
}

// save writes the state atomically: temp file in the same directory, then
// rename. Callers hold r.mu.
func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".registry-*.json")
	if err != nil {
		return fmt.Errorf("create registry temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close registry temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace registry file: %w", err)
	}
	return nil
}
