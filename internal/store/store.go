// Package store owns the embedded columnar engine: materializing detected
// tables into SQLite, dropping superseded physical tables, and executing
// compiled queries under a time budget.
//
// Physical table names are freshly generated per rebuild, so a new version
// of a table is fully written before the old one is dropped. Readers holding
// the previous schema snapshot keep hitting the old physical table until the
// swap; after the drop they get a stale-schema error and retry.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/gridlabs/gridquery/internal/schema"
)

// Store wraps the embedded SQLite database holding materialized table data.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at path. An empty path yields an
// in-memory store.
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" || dsn == ":memory:" {
		// Shared cache keeps the in-memory database alive across pooled
		// connections.
		dsn = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Materialize creates a fresh physical table for the descriptor and loads
// its rows in one transaction. The generated physical name is written back
// onto the descriptor; nothing references it until the schema snapshot is
// swapped, so a failed materialization leaves committed state untouched.
func (s *Store) Materialize(ctx context.Context, desc *schema.TableDescriptor, rows [][]any) error {
	physical := "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]

	cols := make([]string, len(desc.Columns))
	for i, c := range desc.Columns {
		cols[i] = quoteIdentifier(c.Name) + " " + c.Type.String()
	}
	createStmt := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdentifier(physical), strings.Join(cols, ", "))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin materialize %s: %w", desc.Name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createStmt); err != nil {
		return fmt.Errorf("create table for %s: %w", desc.Name, err)
	}

	if len(rows) > 0 {
		placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(desc.Columns)), ", ") + ")"
		insertStmt := fmt.Sprintf("INSERT INTO %s VALUES %s", quoteIdentifier(physical), placeholders)
		stmt, err := tx.PrepareContext(ctx, insertStmt)
		if err != nil {
			return fmt.Errorf("prepare insert for %s: %w", desc.Name, err)
		}
		defer stmt.Close()
		for _, row := range rows {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				return fmt.Errorf("insert row into %s: %w", desc.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit materialize %s: %w", desc.Name, err)
	}
	desc.PhysicalName = physical
	return nil
}

// DropTables removes superseded physical tables. Missing tables are not an
// error; a crash between swap and drop leaves orphans that SweepOrphans
// reclaims on the next refresh.
func (s *Store) DropTables(ctx context.Context, physicalNames []string) error {
	for _, name := range physicalNames {
		if name == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdentifier(name)); err != nil {
			return fmt.Errorf("drop table %s: %w", name, err)
		}
	}
	return nil
}

// SweepOrphans drops every staged physical table that is not in keep.
// Orphans appear when a rebuild materialized tables but failed before its
// registry commit, or crashed between swap and drop.
func (s *Store) SweepOrphans(ctx context.Context, keep map[string]bool) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 't\\_%' ESCAPE '\\'")
	if err != nil {
		return 0, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var orphans []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return 0, fmt.Errorf("scan table name: %w", err)
		}
		if !keep[name] {
			orphans = append(orphans, name)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("list tables: %w", err)
	}

	if err := s.DropTables(ctx, orphans); err != nil {
		return 0, err
	}
	return len(orphans), nil
}

// RowCount returns the number of rows in a physical table.
func (s *Store) RowCount(ctx context.Context, physicalName string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdentifier(physicalName)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", physicalName, err)
	}
	return n, nil
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
