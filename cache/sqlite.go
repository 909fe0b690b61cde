package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chazu/vmgen/vm"

	_ "modernc.org/sqlite"
)

// ---------------------------------------------------------------------------
// SQLite: persistent store
// ---------------------------------------------------------------------------

// SQLite keeps procedures in a SQLite database. Code is stored in its CBOR
// wire form.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the cache database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS procedures (
		key   TEXT PRIMARY KEY,
		arity INTEGER NOT NULL,
		code  BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &SQLite{db: db, path: path}, nil
}

// Path returns the database file.
func (s *SQLite) Path() string { return s.path }

// Get implements Store. The returned procedure has no name; names are not
// part of the key.
func (s *SQLite) Get(ctx context.Context, key string) (*vm.Procedure, bool, error) {
	var arity uint32
	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT arity, code FROM procedures WHERE key = ?", key).Scan(&arity, &blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("querying procedure: %w", err)
	}
	code, err := vm.UnmarshalCode(blob)
	if err != nil {
		return nil, false, fmt.Errorf("decoding procedure %s: %w", key, err)
	}
	return &vm.Procedure{Arity: arity, Code: code}, true, nil
}

// Put implements Store.
func (s *SQLite) Put(ctx context.Context, key string, p *vm.Procedure) error {
	blob, err := vm.MarshalCode(p.Code)
	if err != nil {
		return fmt.Errorf("encoding procedure: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO procedures (key, arity, code) VALUES (?, ?, ?)",
		key, p.Arity, blob,
	)
	if err != nil {
		return fmt.Errorf("saving procedure: %w", err)
	}
	return nil
}

// Len returns the number of stored procedures.
func (s *SQLite) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM procedures").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting procedures: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Open returns the store configured by path: an in-process store when path
// is empty, a SQLite store otherwise.
func Open(path string) (Store, error) {
	if path == "" {
		return NewMemory(), nil
	}
	return OpenSQLite(path)
}
