package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps entries in a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time avoids SQLITE_BUSY under concurrent renders.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		digest TEXT NOT NULL,
		data TEXT NOT NULL DEFAULT '{}',
		html TEXT NOT NULL DEFAULT '',
		headings TEXT NOT NULL DEFAULT '[]',
		assets TEXT NOT NULL DEFAULT '[]',
		fallback INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	)`)
	return err
}

// Get loads the entry for id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Entry, error) {
	var (
		e                      Entry
		digest, updated        string
		data, headings, assets string
		fallback               int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, digest, data, html, headings, assets, fallback, updated_at
		 FROM entries WHERE id = ?`, id,
	).Scan(&e.ID, &e.Title, &digest, &data, &e.HTML, &headings, &assets, &fallback, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", id, err)
	}

	if e.Digest, err = time.Parse(time.RFC3339Nano, digest); err != nil {
		return nil, fmt.Errorf("parse digest of %s: %w", id, err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
		return nil, fmt.Errorf("decode data of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(headings), &e.Headings); err != nil {
		return nil, fmt.Errorf("decode headings of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(assets), &e.AssetPaths); err != nil {
		return nil, fmt.Errorf("decode assets of %s: %w", id, err)
	}
	e.Fallback = fallback != 0
	normalize(&e)

	return &e, nil
}

// Set upserts the entry in a single transaction.
func (s *SQLiteStore) Set(ctx context.Context, e *Entry) error {
	if err := validID(e.ID); err != nil {
		return err
	}
	normalize(e)

	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("encode data of %s: %w", e.ID, err)
	}
	headings, err := json.Marshal(e.Headings)
	if err != nil {
		return fmt.Errorf("encode headings of %s: %w", e.ID, err)
	}
	assets, err := json.Marshal(e.AssetPaths)
	if err != nil {
		return fmt.Errorf("encode assets of %s: %w", e.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO entries
		(id, title, digest, data, html, headings, assets, fallback, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			digest = excluded.digest,
			data = excluded.data,
			html = excluded.html,
			headings = excluded.headings,
			assets = excluded.assets,
			fallback = excluded.fallback,
			updated_at = excluded.updated_at`,
		e.ID, e.Title, e.Digest.UTC().Format(time.RFC3339Nano), string(data), e.HTML,
		string(headings), string(assets), boolToInt(e.Fallback), e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert entry %s: %w", e.ID, err)
	}
	return tx.Commit()
}

// Delete removes the entry. Deleting a missing entry is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	return nil
}

// Keys lists stored IDs in sorted order.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keys := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		keys = append(keys, id)
	}
	return keys, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
