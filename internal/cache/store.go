package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"email-triage/internal/gemini"
)

const (
	// storageKey is the fixed key the single versioned record lives
	// under.
	storageKey = "email-analyses"

	// SchemaVersion tags the stored record. Bumping it invalidates the
	// whole cache on next read; there is no partial migration.
	SchemaVersion = 1
)

// record is the one versioned container the store reads and writes
// whole. A record whose version does not match SchemaVersion is
// treated as entirely absent.
type record struct {
	Version   int                             `json:"version"`
	Analyses  map[string]gemini.EmailAnalysis `json:"analyses"`
	Timestamp int64                           `json:"timestamp"`
}

// Store persists validated analysis records keyed by message id. It is
// a memoization layer, not a source of truth: both upstream sources
// (provider data, analysis backend) are idempotently re-fetchable, so
// any unreadable state resolves to full invalidation, never partial
// repair.
type Store struct {
	db *sql.DB

	// Writes are whole-record read-modify-write; the mutex keeps them
	// single-writer within this process. Last writer wins across
	// processes, which is acceptable for a cache.
	mu sync.Mutex
}

// Open opens (creating if needed) the analysis cache at path. Use
// ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS analysis_store (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Get returns the cached analysis for one message id, or nil when the
// id has not been analyzed.
func (s *Store) Get(emailID string) (*gemini.EmailAnalysis, error) {
	rec, err := s.load()
	if err != nil {
		return nil, err
	}
	if analysis, ok := rec.Analyses[emailID]; ok {
		return &analysis, nil
	}
	return nil, nil
}

// GetAll returns every cached analysis keyed by message id.
func (s *Store) GetAll() (map[string]gemini.EmailAnalysis, error) {
	rec, err := s.load()
	if err != nil {
		return nil, err
	}
	return rec.Analyses, nil
}

// Put upserts analyses by message id. The whole record is read,
// merged, and written back.
func (s *Store) Put(analyses []gemini.EmailAnalysis) error {
	if len(analyses) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load()
	if err != nil {
		return err
	}
	for _, analysis := range analyses {
		rec.Analyses[analysis.EmailID] = analysis
	}
	rec.Version = SchemaVersion
	rec.Timestamp = time.Now().UnixMilli()

	return s.save(rec)
}

// UncachedOf returns the subset of ids that have no cached analysis,
// preserving input order. This set difference drives incremental batch
// dispatch.
func (s *Store) UncachedOf(ids []string) ([]string, error) {
	rec, err := s.load()
	if err != nil {
		return nil, err
	}

	var uncached []string
	for _, id := range ids {
		if _, ok := rec.Analyses[id]; !ok {
			uncached = append(uncached, id)
		}
	}
	return uncached, nil
}

// Clear drops the stored record entirely.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM analysis_store WHERE key = ?", storageKey); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// Ping verifies the store is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// load reads the whole record. A missing row, an unparsable value, or
// a version mismatch all read identically as an empty cache, so bumping
// SchemaVersion invalidates everything at once.
func (s *Store) load() (*record, error) {
	empty := &record{Version: SchemaVersion, Analyses: make(map[string]gemini.EmailAnalysis)}

	var value string
	err := s.db.QueryRow("SELECT value FROM analysis_store WHERE key = ?", storageKey).Scan(&value)
	if err == sql.ErrNoRows {
		return empty, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache record: %w", err)
	}

	var rec record
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return empty, nil
	}
	if rec.Version != SchemaVersion {
		return empty, nil
	}
	if rec.Analyses == nil {
		rec.Analyses = make(map[string]gemini.EmailAnalysis)
	}
	return &rec, nil
}

// save writes the whole record back under the fixed key.
func (s *Store) save(rec *record) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal cache record: %w", err)
	}

	query := `
		INSERT INTO analysis_store (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.Exec(query, storageKey, string(value)); err != nil {
		return fmt.Errorf("failed to write cache record: %w", err)
	}
	return nil
}
