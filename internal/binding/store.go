// Package binding persists path references into module data models and keeps
// live Paths for them while their modules are enabled.
package binding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/agentic-research/dmpath/internal/datamodel"
)

// ErrNotFound is returned when no reference has the requested ID.
var ErrNotFound = errors.New("binding not found")

// Reference is a stored path into a module's data model. The literal path is
// the persisted form; it is resolved again whenever the module is enabled.
type Reference struct {
	ID      uuid.UUID `json:"id"`
	Module  string    `json:"module"`
	Path    string    `json:"path"`
	Label   string    `json:"label,omitempty"`
	Created time.Time `json:"created"`
}

// NewReference returns a reference with a fresh ID.
func NewReference(module, path, label string) (Reference, error) {
	if module == "" {
		return Reference{}, fmt.Errorf("reference: empty module")
	}
	if _, ok := datamodel.SplitPath(path); !ok {
		return Reference{}, fmt.Errorf("reference: malformed path %q", path)
	}
	return Reference{
		ID:      uuid.New(),
		Module:  module,
		Path:    path,
		Label:   label,
		Created: time.Now().UTC().Truncate(time.Second),
	}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS bindings (
	id TEXT PRIMARY KEY,
	module TEXT NOT NULL,
	path TEXT NOT NULL,
	label TEXT NOT NULL DEFAULT '',
	created INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bindings_module ON bindings(module, created);
`

// Store is a SQLite-backed reference store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at dsn.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Save inserts or replaces a reference.
func (s *Store) Save(ctx context.Context, ref Reference) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bindings (id, module, path, label, created) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET module = excluded.module, path = excluded.path, label = excluded.label`,
		ref.ID.String(), ref.Module, ref.Path, ref.Label, ref.Created.Unix())
	if err != nil {
		return fmt.Errorf("save binding %s: %w", ref.ID, err)
	}
	return nil
}

// Get returns the reference with the given ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Reference, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, module, path, label, created FROM bindings WHERE id = ?`, id.String())
	ref, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Reference{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ref, err
}

// List returns all references ordered by creation time.
func (s *Store) List(ctx context.Context) ([]Reference, error) {
	return s.query(ctx, `SELECT id, module, path, label, created FROM bindings ORDER BY created, id`)
}

// ListModule returns the references into one module.
func (s *Store) ListModule(ctx context.Context, module string) ([]Reference, error) {
	return s.query(ctx,
		`SELECT id, module, path, label, created FROM bindings WHERE module = ? ORDER BY created, id`, module)
}

// Delete removes a reference.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bindings WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete binding %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Reference, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query bindings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Reference
	for rows.Next() {
		ref, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (Reference, error) {
	var (
		ref     Reference
		id      string
		created int64
	)
	if err := row.Scan(&id, &ref.Module, &ref.Path, &ref.Label, &created); err != nil {
		return Reference{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Reference{}, fmt.Errorf("binding id %q: %w", id, err)
	}
	ref.ID = parsed
	ref.Created = time.Unix(created, 0).UTC()
	return ref, nil
}
