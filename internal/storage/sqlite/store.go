// Package sqlite provides a single-file contract registry backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	xerrors "ContractHub/internal/errors"
	"ContractHub/internal/registry"
	"ContractHub/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

const schema = `
CREATE TABLE IF NOT EXISTS contract_registry (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL,
    address     TEXT NOT NULL,
    abi         TEXT NOT NULL,
    enrolled_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_registry_name ON contract_registry(name);
CREATE INDEX IF NOT EXISTS idx_registry_address ON contract_registry(address);
`

// Store is a registry.Store persisted in a SQLite database file.
type Store struct {
	db   *sql.DB
	path string
}

var _ registry.Store = (*Store)(nil)

// Open creates the database file if needed and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "sqlite registry path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "create sqlite registry directory")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "open sqlite registry")
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "ping sqlite registry")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "initialize sqlite registry schema")
	}

	logger.Named("registry").Info("sqlite registry initialized", slog.String("path", path))
	return &Store{db: db, path: path}, nil
}

// Search implements registry.Store.
func (s *Store) Search(ctx context.Context, q registry.Query) ([]registry.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	query := `SELECT name, address, abi FROM contract_registry WHERE name = ? ORDER BY id`
	arg := q.Name
	if q.Address != nil {
		query = `SELECT name, address, abi FROM contract_registry WHERE address = ? ORDER BY id`
		arg = strings.ToLower(q.Address.Hex())
	}

	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "sqlite registry search")
	}
	defer rows.Close()

	var records []registry.Record
	for rows.Next() {
		var (
			rec     registry.Record
			address string
		)
		if err := rows.Scan(&rec.Name, &address, &rec.ABI); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "sqlite registry scan")
		}
		rec.Address = common.HexToAddress(address)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "sqlite registry iterate")
	}
	return registry.CheckAddressMatches(q, records)
}

// Enroll implements registry.Store.
func (s *Store) Enroll(ctx context.Context, rec registry.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contract_registry (name, address, abi, enrolled_at) VALUES (?, ?, ?, ?)`,
		rec.Name, strings.ToLower(rec.Address.Hex()), rec.ABI, time.Now().Unix())
	if err != nil {
		return xerrors.Wrapf(xerrors.CodeStorageFailure, err, "sqlite registry enroll %s", rec.Name)
	}
	return nil
}

// Names lists every distinct contract name in enrollment order.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM contract_registry GROUP BY name ORDER BY MIN(id)`)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "sqlite registry names")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "sqlite registry scan")
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
