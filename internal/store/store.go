// Package store persists analysis results so unchanged emails are never
// re-analyzed.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/abelbrown/triage/internal/logging"
	"github.com/abelbrown/triage/internal/model"

	_ "modernc.org/sqlite"
)

// ErrMissingAction is returned when an actionable entry carries no ActionItem.
var ErrMissingAction = errors.New("actionable cache entry has no action item")

// lookupChunk bounds the number of bound parameters in one IN (...) query.
const lookupChunk = 500

// Store is the analysis cache. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// CacheEntry is the last analysis outcome for one email.
// Action is non-nil iff Actionable.
type CacheEntry struct {
	ItemID      string
	Fingerprint string
	AnalyzedAt  time.Time
	Actionable  bool
	Action      *model.ActionItem
}

// Stats summarizes the cache for diagnostics.
type Stats struct {
	TotalEntries    int
	ActionableCount int
	OldestTimestamp time.Time // zero when empty
}

// Open creates a new Store with the given database path.
// Creates the file and tables if they don't exist.
// Uses WAL mode for file-based DBs.
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database.
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analysis_cache (
		item_id TEXT PRIMARY KEY CHECK (length(item_id) > 0),
		fingerprint TEXT NOT NULL,
		analyzed_at DATETIME NOT NULL,
		actionable INTEGER NOT NULL DEFAULT 0,
		action_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_cache_actionable ON analysis_cache(actionable);
	CREATE INDEX IF NOT EXISTS idx_cache_analyzed ON analysis_cache(analyzed_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Lookup returns the cached entry for itemID if its stored fingerprint equals
// fingerprint. A missing row, a fingerprint mismatch and a read error all
// report a miss; read errors are logged, never returned.
func (s *Store) Lookup(itemID, fingerprint string) (*CacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT item_id, fingerprint, analyzed_at, actionable, action_json
		FROM analysis_cache
		WHERE item_id = ?
	`, itemID)

	entry, err := scanEntry(row)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logging.Warn("cache read failed, treating as miss", "item", itemID, "error", err)
		}
		return nil, false
	}
	if entry.Fingerprint != fingerprint {
		return nil, false
	}
	return entry, true
}

// BulkLookup returns the ActionItems of every listed entry that exists and
// is actionable. Fingerprints are not checked. Read errors are logged and
// the affected chunk is skipped.
func (s *Store) BulkLookup(itemIDs []string) map[string]model.ActionItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]model.ActionItem)
	for start := 0; start < len(itemIDs); start += lookupChunk {
		end := min(start+lookupChunk, len(itemIDs))
		chunk := itemIDs[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := `
			SELECT item_id, fingerprint, analyzed_at, actionable, action_json
			FROM analysis_cache
			WHERE actionable = 1 AND item_id IN (` + placeholders(len(chunk)) + `)`

		rows, err := s.db.Query(query, args...)
		if err != nil {
			logging.Warn("cache bulk read failed", "ids", len(chunk), "error", err)
			continue
		}
		for rows.Next() {
			entry, err := scanEntry(rows)
			if err != nil {
				logging.Warn("cache row unreadable", "error", err)
				continue
			}
			if entry.Action != nil {
				out[entry.ItemID] = *entry.Action
			}
		}
		if err := rows.Err(); err != nil {
			logging.Warn("cache bulk read failed", "error", err)
		}
		rows.Close()
	}
	return out
}

// Write upserts a single entry.
func (s *Store) Write(entry CacheEntry) error {
	return s.BulkWrite([]CacheEntry{entry})
}

// BulkWrite upserts entries in one transaction: either every row is
// committed or none is.
func (s *Store) BulkWrite(entries []CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	// Encode before taking the lock so a bad entry fails fast.
	payloads := make([]sql.NullString, len(entries))
	for i, e := range entries {
		if !e.Actionable {
			continue
		}
		if e.Action == nil {
			return fmt.Errorf("%w: %s", ErrMissingAction, e.ItemID)
		}
		data, err := json.Marshal(e.Action)
		if err != nil {
			return fmt.Errorf("encode action %s: %w", e.ItemID, err)
		}
		payloads[i] = sql.NullString{String: string(data), Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO analysis_cache (item_id, fingerprint, analyzed_at, actionable, action_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			analyzed_at = excluded.analyzed_at,
			actionable = excluded.actionable,
			action_json = excluded.action_json
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		analyzedAt := e.AnalyzedAt
		if analyzedAt.IsZero() {
			analyzedAt = time.Now()
		}
		if _, err := stmt.Exec(
			e.ItemID,
			e.Fingerprint,
			analyzedAt.UTC(),
			boolToInt(e.Actionable),
			payloads[i],
		); err != nil {
			return fmt.Errorf("upsert %q: %w", e.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Remove deletes the entry for itemID. Removing a missing entry is not an error.
func (s *Store) Remove(itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM analysis_cache WHERE item_id = ?", itemID)
	return err
}

// Clear deletes every entry.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM analysis_cache")
	return err
}

// Stats reports entry counts and the oldest analysis time.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(actionable), 0)
		FROM analysis_cache
	`).Scan(&st.TotalEntries, &st.ActionableCount)
	if err != nil {
		return Stats{}, fmt.Errorf("count entries: %w", err)
	}
	if st.TotalEntries == 0 {
		return st, nil
	}

	err = s.db.QueryRow(`
		SELECT analyzed_at FROM analysis_cache
		ORDER BY analyzed_at ASC
		LIMIT 1
	`).Scan(&st.OldestTimestamp)
	if err != nil {
		return Stats{}, fmt.Errorf("oldest entry: %w", err)
	}
	return st, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (*CacheEntry, error) {
	var (
		e          CacheEntry
		actionable int
		payload    sql.NullString
	)
	if err := r.Scan(&e.ItemID, &e.Fingerprint, &e.AnalyzedAt, &actionable, &payload); err != nil {
		return nil, err
	}
	e.Actionable = actionable != 0
	if e.Actionable && payload.Valid {
		var action model.ActionItem
		if err := json.Unmarshal([]byte(payload.String), &action); err != nil {
			return nil, fmt.Errorf("decode action %s: %w", e.ItemID, err)
		}
		e.Action = &action
	}
	return &e, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// boolToInt converts a bool to an int for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
