package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Store is the in-process schema catalog. Rebuilds swap descriptors in and
// out per source_id under a write lock; everything on the read path works
// from an immutable Snapshot, so a reader never observes a half-committed
// swap.
type Store struct {
	mu       sync.RWMutex
	tables   map[string]*TableDescriptor // logical name -> descriptor
	bySource map[string][]string         // source_id -> logical names
}

// NewStore returns an empty schema store.
func NewStore() *Store {
	return &Store{
		tables:   make(map[string]*TableDescriptor),
		bySource: make(map[string][]string),
	}
}

// ReplaceSource atomically installs descs as the complete table set for
// sourceID, removing whatever set was previously registered for it.
// Returns an error if any incoming name collides with a table owned by a
// different source; the store is left unchanged in that case.
func (s *Store) ReplaceSource(sourceID string, descs []*TableDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range descs {
		if existing, ok := s.tables[d.Name]; ok && existing.SourceID != sourceID {
			return fmt.Errorf("table name %q already registered for source %q", d.Name, existing.SourceID)
		}
	}

	for _, name := range s.bySource[sourceID] {
		delete(s.tables, name)
	}
	delete(s.bySource, sourceID)

	names := make([]string, 0, len(descs))
	for _, d := range descs {
		s.tables[d.Name] = d
		names = append(names, d.Name)
	}
	if len(names) > 0 {
		s.bySource[sourceID] = names
	}
	return nil
}

// RemoveSource deletes every descriptor registered for sourceID and returns
// the physical names that backed them, so the caller can drop the stored
// rows as well.
func (s *Store) RemoveSource(sourceID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var physicals []string
	for _, name := range s.bySource[sourceID] {
		if d, ok := s.tables[name]; ok {
			physicals = append(physicals, d.PhysicalName)
		}
		delete(s.tables, name)
	}
	delete(s.bySource, sourceID)
	return physicals
}

// SourceTables returns the descriptors currently registered for sourceID.
func (s *Store) SourceTables(sourceID string) []*TableDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*TableDescriptor
	for _, name := range s.bySource[sourceID] {
		if d, ok := s.tables[name]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Snapshot returns an immutable view of the catalog for the read path.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tables := make(map[string]*TableDescriptor, len(s.tables))
	names := make([]string, 0, len(s.tables))
	for name, d := range s.tables {
		tables[strings.ToLower(name)] = d
		names = append(names, name)
	}
	sort.Strings(names)
	return &Snapshot{tables: tables, names: names}
}

// Snapshot is a point-in-time, read-only view of the schema catalog.
// Descriptors reachable through it are never mutated.
type Snapshot struct {
	tables map[string]*TableDescriptor
	names  []string
}

// Table resolves a logical table name, case-insensitively.
func (s *Snapshot) Table(name string) (*TableDescriptor, bool) {
	d, ok := s.tables[strings.ToLower(name)]
	return d, ok
}

// Names returns all logical table names in sorted order.
func (s *Snapshot) Names() []string {
	return s.names
}

// Tables returns all descriptors in name order.
func (s *Snapshot) Tables() []*TableDescriptor {
	out := make([]*TableDescriptor, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.tables[strings.ToLower(name)])
	}
	return out
}
