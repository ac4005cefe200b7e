// Package sqlite provides an embedded single-writer Repository backed
// by a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"spyglass/internal/entry"
	"spyglass/internal/storage"

	_ "modernc.org/sqlite"
)

// Store persists entries in a single SQLite file. The connection pool
// is capped at one connection: SQLite allows one writer at a time, and
// a shared connection queues concurrent callers instead of surfacing
// SQLITE_BUSY.
type Store struct {
	db   *sql.DB
	path string
}

var _ storage.Repository = (*Store)(nil)

// NewStore opens (creating if needed) the database at path and brings
// its schema up to date.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set foreign_keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists one entry and returns it with its assigned id.
func (s *Store) Save(ctx context.Context, e entry.Entry) (entry.Entry, error) {
	saved, err := s.SaveBatch(ctx, []entry.Entry{e})
	if err != nil {
		return entry.Entry{}, err
	}
	return saved[0], nil
}

// SaveBatch persists entries in order inside one transaction, so a
// batch is atomic: either every entry gains an id or none do.
func (s *Store) SaveBatch(ctx context.Context, entries []entry.Entry) ([]entry.Entry, error) {
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("save entry %d: %w", i, err)
		}
	}
	if len(entries) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	saved := make([]entry.Entry, len(entries))
	for i, e := range entries {
		saved[i], err = insertEntry(ctx, tx, e)
		if err != nil {
			return nil, fmt.Errorf("save entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit save: %w", err)
	}
	return saved, nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, e entry.Entry) (entry.Entry, error) {
	blob, compressed, err := encodePayload(e.Payload)
	if err != nil {
		return entry.Entry{}, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO entries (kind, ts, correlation_id, family_hash, payload, compressed)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(e.Kind), e.Timestamp.UnixNano(), e.CorrelationID, e.FamilyHash, blob, compressed)
	if err != nil {
		return entry.Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return entry.Entry{}, fmt.Errorf("entry id: %w", err)
	}
	e.ID = id

	for _, tag := range e.Tags {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO entry_tags (entry_id, tag) VALUES (?, ?)", id, tag); err != nil {
			return entry.Entry{}, fmt.Errorf("insert tag %q: %w", tag, err)
		}
	}
	return e, nil
}

// UpdateFamilyHash sets the family hash of a saved entry.
func (s *Store) UpdateFamilyHash(ctx context.Context, id int64, hash string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE entries SET family_hash = ? WHERE id = ?", hash, id)
	if err != nil {
		return fmt.Errorf("update family hash %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update family hash %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update family hash %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

// AddTags attaches labels to a saved entry, ignoring duplicates.
func (s *Store) AddTags(ctx context.Context, id int64, tags []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add tags: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM entries WHERE id = ?)", id).Scan(&exists); err != nil {
		return fmt.Errorf("add tags %d: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("add tags %d: %w", id, storage.ErrNotFound)
	}

	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO entry_tags (entry_id, tag) VALUES (?, ?)", id, tag); err != nil {
			return fmt.Errorf("add tag %q: %w", tag, err)
		}
	}
	return tx.Commit()
}

// Find returns the entry with the given id.
func (s *Store) Find(ctx context.Context, id int64) (entry.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, ts, correlation_id, family_hash, payload, compressed
		FROM entries WHERE id = ?`, id)

	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return entry.Entry{}, fmt.Errorf("find %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return entry.Entry{}, fmt.Errorf("find %d: %w", id, err)
	}

	tags, err := s.loadTags(ctx, []int64{id})
	if err != nil {
		return entry.Entry{}, fmt.Errorf("find %d: %w", id, err)
	}
	e.Tags = tags[id]
	return e, nil
}

// List returns entries matching q, newest first.
func (s *Store) List(ctx context.Context, q storage.Query) ([]entry.Entry, error) {
	var where []string
	var args []any

	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(q.Kind))
	}
	if q.FamilyHash != "" {
		where = append(where, "family_hash = ?")
		args = append(args, q.FamilyHash)
	}
	if q.CorrelationID != "" {
		where = append(where, "correlation_id = ?")
		args = append(args, q.CorrelationID)
	}
	if q.Tag != "" {
		where = append(where, "id IN (SELECT entry_id FROM entry_tags WHERE tag = ?)")
		args = append(args, q.Tag)
	}
	if !q.Before.IsZero() {
		where = append(where, "ts < ?")
		args = append(args, q.Before.UnixNano())
	}

	stmt := "SELECT id, kind, ts, correlation_id, family_hash, payload, compressed FROM entries"
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY ts DESC, id DESC"
	if q.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []entry.Entry
	var ids []int64
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list entries: %w", err)
		}
		out = append(out, e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	tags, err := s.loadTags(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	for i := range out {
		out[i].Tags = tags[out[i].ID]
	}
	return out, nil
}

// Prune deletes entries stamped before the cutoff; tags go with their
// entries through the cascading foreign key.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE ts < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return n, nil
}

func scanEntry(scan func(...any) error) (entry.Entry, error) {
	var (
		e          entry.Entry
		kind       string
		ts         int64
		blob       []byte
		compressed bool
	)
	if err := scan(&e.ID, &kind, &ts, &e.CorrelationID, &e.FamilyHash, &blob, &compressed); err != nil {
		return entry.Entry{}, err
	}
	e.Kind = entry.Kind(kind)
	e.Timestamp = time.Unix(0, ts).UTC()

	p, err := decodePayload(e.Kind, blob, compressed)
	if err != nil {
		return entry.Entry{}, err
	}
	e.Payload = p
	return e, nil
}

// loadTags fetches the tags for a set of entry ids in one query.
func (s *Store) loadTags(ctx context.Context, ids []int64) (map[int64][]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	marks := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		marks[i] = "?"
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT entry_id, tag FROM entry_tags WHERE entry_id IN ("+strings.Join(marks, ", ")+") ORDER BY entry_id, tag",
		args...)
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	defer rows.Close()

	tags := make(map[int64][]string)
	for rows.Next() {
		var id int64
		var tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags[id] = append(tags[id], tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	return tags, nil
}
