package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/seantiz/modloader/internal/model"

	_ "modernc.org/sqlite"
)

const createBundlesTable = `
CREATE TABLE IF NOT EXISTS bundles (
    name       TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL
)`

const createBundleModulesTable = `
CREATE TABLE IF NOT EXISTS bundle_modules (
    bundle   TEXT NOT NULL REFERENCES bundles(name) ON DELETE CASCADE,
    name     TEXT NOT NULL,
    source   BLOB NOT NULL,
    raw_size INTEGER NOT NULL,
    PRIMARY KEY (bundle, name)
)`

const createFetchesTable = `
CREATE TABLE IF NOT EXISTS fetches (
    id          TEXT PRIMARY KEY,
    module      TEXT NOT NULL,
    url         TEXT NOT NULL,
    mode        TEXT NOT NULL,
    status      INTEGER NOT NULL,
    bytes       INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    error       TEXT,
    created_at  DATETIME NOT NULL
)`

const createFetchesIndex = `
CREATE INDEX IF NOT EXISTS idx_fetches_created ON fetches(created_at)`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// Sources are stored zstd-compressed; both coders are safe for concurrent
// EncodeAll/DecodeAll use.
var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	for _, stmt := range []struct{ what, sql string }{
		{"set WAL mode", "PRAGMA journal_mode=WAL"},
		{"set busy timeout", "PRAGMA busy_timeout = 5000"},
		{"enable foreign keys", "PRAGMA foreign_keys = ON"},
		{"create bundles table", createBundlesTable},
		{"create bundle_modules table", createBundleModulesTable},
		{"create fetches table", createFetchesTable},
		{"create fetches index", createFetchesIndex},
	} {
		if _, err := db.Exec(stmt.sql); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", stmt.what, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// PutBundle stores b, replacing any bundle of the same name.
func (s *SQLiteStore) PutBundle(ctx context.Context, b *Bundle) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM bundle_modules WHERE bundle = ?", b.Name); err != nil {
		return fmt.Errorf("delete old bundle modules: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM bundles WHERE name = ?", b.Name); err != nil {
		return fmt.Errorf("delete old bundle: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO bundles (name, created_at) VALUES (?, ?)", b.Name, b.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert bundle: %w", err)
	}
	for name, src := range b.Modules {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO bundle_modules (bundle, name, source, raw_size) VALUES (?, ?, ?, ?)",
			b.Name, name, encoder.EncodeAll([]byte(src), nil), len(src),
		); err != nil {
			return fmt.Errorf("insert bundle module %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// GetBundle retrieves a bundle with its decompressed sources.
func (s *SQLiteStore) GetBundle(ctx context.Context, name string) (*Bundle, error) {
	b := &Bundle{Name: name, Modules: make(map[string]string)}
	err := s.db.QueryRowContext(ctx,
		"SELECT created_at FROM bundles WHERE name = ?", name,
	).Scan(&b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bundle: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT name, source FROM bundle_modules WHERE bundle = ? ORDER BY name", name,
	)
	if err != nil {
		return nil, fmt.Errorf("list bundle modules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			module string
			data   []byte
		)
		if err := rows.Scan(&module, &data); err != nil {
			return nil, fmt.Errorf("scan bundle module: %w", err)
		}
		src, err := decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", module, err)
		}
		b.Modules[module] = string(src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bundle modules: %w", err)
	}
	return b, nil
}

// ListBundles returns a summary of every stored bundle ordered by name.
func (s *SQLiteStore) ListBundles(ctx context.Context) ([]BundleSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT b.name, b.created_at, COUNT(m.name),
			COALESCE(SUM(m.raw_size), 0), COALESCE(SUM(LENGTH(m.source)), 0)
		FROM bundles b LEFT JOIN bundle_modules m ON m.bundle = b.name
		GROUP BY b.name ORDER BY b.name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	defer rows.Close()

	var out []BundleSummary
	for rows.Next() {
		var b BundleSummary
		if err := rows.Scan(&b.Name, &b.CreatedAt, &b.Modules, &b.RawBytes, &b.StoredBytes); err != nil {
			return nil, fmt.Errorf("scan bundle: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bundles: %w", err)
	}
	return out, nil
}

// DeleteBundle removes a bundle and its sources.
func (s *SQLiteStore) DeleteBundle(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM bundle_modules WHERE bundle = ?", name); err != nil {
		return fmt.Errorf("delete bundle modules: %w", err)
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM bundles WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete bundle: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertFetch appends a fetch attempt to the log. An empty ID is filled in.
func (s *SQLiteStore) InsertFetch(ctx context.Context, r *FetchRecord) error {
	if r.ID == "" {
		r.ID = model.NewID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fetches (id, module, url, mode, status, bytes, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Module, r.URL, r.Mode, r.Status, r.Bytes, r.DurationMS, r.Error, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert fetch: %w", err)
	}
	return nil
}

// ListFetches returns a page of fetch attempts, newest first, along with the
// total count.
func (s *SQLiteStore) ListFetches(ctx context.Context, limit, offset int) ([]*FetchRecord, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM fetches").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count fetches: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, module, url, mode, status, bytes, duration_ms, COALESCE(error, ''), created_at
		FROM fetches ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list fetches: %w", err)
	}
	defer rows.Close()

	var out []*FetchRecord
	for rows.Next() {
		r := &FetchRecord{}
		if err := rows.Scan(
			&r.ID, &r.Module, &r.URL, &r.Mode, &r.Status, &r.Bytes, &r.DurationMS, &r.Error, &r.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan fetch: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate fetches: %w", err)
	}
	return out, total, nil
}

// GetFetchStats aggregates the fetch log.
func (s *SQLiteStore) GetFetchStats(ctx context.Context) (*FetchStats, error) {
	stats := &FetchStats{CountByMode: make(map[string]int)}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN error IS NOT NULL AND error != '' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(duration_ms), 0),
			COALESCE(SUM(bytes), 0)
		FROM fetches`,
	).Scan(&stats.Total, &stats.Failures, &stats.AvgDurationMS, &stats.TotalBytes)
	if err != nil {
		return nil, fmt.Errorf("fetch totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT mode, COUNT(*) FROM fetches GROUP BY mode")
	if err != nil {
		return nil, fmt.Errorf("count by mode: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			mode string
			n    int
		)
		if err := rows.Scan(&mode, &n); err != nil {
			return nil, fmt.Errorf("scan mode count: %w", err)
		}
		stats.CountByMode[mode] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mode counts: %w", err)
	}
	return stats, nil
}
