package store

import (
	"context"
	"database/sql"
	_ "embed"
	stderrors "errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wippyai/wasm-tailcall/errors"
)

//go:embed schema.sql
var schemaSQL string

// SQLite stores units in a single database file.
// Uses WAL mode so inspectors can read while a rewrite is persisted.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens a database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidInput, err, "open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidInput, err, "connect to database")
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "apply schema")
	}
	return &SQLite{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, fmt.Sprintf("execute %q", pragma))
		}
	}
	return nil
}

func (s *SQLite) Put(ctx context.Context, u Unit) error {
	if err := validate(u); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO units (name, key, func, sites, wasm, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			key = excluded.key,
			func = excluded.func,
			sites = excluded.sites,
			wasm = excluded.wasm,
			created_at = excluded.created_at
	`, u.Name, u.Key, u.Func, u.Sites, u.Wasm, u.CreatedAt.UnixNano())
	if err != nil {
		return errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "insert unit "+u.Name)
	}
	return nil
}

const unitColumns = "name, key, func, sites, wasm, created_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanUnit(row scanner) (Unit, error) {
	var (
		u       Unit
		created int64
	)
	if err := row.Scan(&u.Name, &u.Key, &u.Func, &u.Sites, &u.Wasm, &created); err != nil {
		return Unit{}, err
	}
	u.CreatedAt = time.Unix(0, created).UTC()
	return u, nil
}

func (s *SQLite) Lookup(ctx context.Context, key string) (Unit, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+unitColumns+" FROM units WHERE key = ? ORDER BY created_at DESC LIMIT 1", key)
	u, err := scanUnit(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Unit{}, false, nil
	}
	if err != nil {
		return Unit{}, false, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "lookup unit")
	}
	return u, true, nil
}

func (s *SQLite) Load(ctx context.Context, name string) (Unit, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+unitColumns+" FROM units WHERE name = ?", name)
	u, err := scanUnit(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Unit{}, notFound(name)
	}
	if err != nil {
		return Unit{}, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "load unit "+name)
	}
	return u, nil
}

func (s *SQLite) List(ctx context.Context) ([]Unit, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+unitColumns+" FROM units ORDER BY created_at, name")
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "list units")
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "scan unit")
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "list units")
	}
	return units, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
