package session

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"feple/internal/config"
	"feple/internal/fragment"
	"feple/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; the database is rebuilt from fragments, so clearing it is safe.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store manages session record persistence backed by SQLite. Merges into the
// same session are serialized through per-session locks; different sessions
// merge in parallel.
type Store struct {
	db   *sql.DB
	path string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open initializes or connects to the session database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "sessions.db")
	// busy_timeout is per-connection, so it must go in the DSN to cover
	// every connection database/sql opens, not just the one Exec runs on.
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, locks: make(map[string]*sync.Mutex)}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to rebuild)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

// lockFor returns the mutex serializing merges for one session.
func (s *Store) lockFor(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

// Merge folds a fragment into the session's record and persists the result
// atomically before the per-session lock is released. The returned record is a
// copy owned by the caller.
func (s *Store) Merge(ctx context.Context, sessionID string, kind fragment.Kind, frag *fragment.Record) (*Record, error) {
	if frag == nil {
		return nil, services.Wrap(services.ErrValidation, "", "merge", "fragment record is nil", nil)
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, services.Wrap(services.ErrValidation, "", "merge", "session id is required", nil)
	}

	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.getLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if record == nil {
		record = &Record{SessionID: sessionID, CreatedAt: now}
	}
	applyFragment(record, kind, frag)
	record.Generation++
	record.UpdatedAt = now

	if err := s.persist(ctx, record); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "", "merge", "persist session record", err)
	}
	return record.Clone(), nil
}

// Get fetches a session record by identifier, or nil when absent.
func (s *Store) Get(ctx context.Context, sessionID string) (*Record, error) {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()
	record, err := s.getLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// Count returns the number of session records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

func (s *Store) getLocked(ctx context.Context, sessionID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, consulting_content, annotations_json, kinds_seen, generation, created_at, updated_at
         FROM sessions WHERE session_id = ?`, sessionID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return record, nil
}

// persist overwrites the durable row inside a single transaction so a crash
// mid-merge leaves the prior state intact.
func (s *Store) persist(ctx context.Context, record *Record) error {
	annotationsJSON, err := json.Marshal(record.Annotations)
	if err != nil {
		return fmt.Errorf("marshal annotations: %w", err)
	}

	kinds := make([]string, 0, len(record.KindsSeen))
	for _, kind := range record.KindsSeen {
		kinds = append(kinds, string(kind))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, consulting_content, annotations_json, kinds_seen, generation, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(session_id) DO UPDATE SET
             consulting_content = excluded.consulting_content,
             annotations_json = excluded.annotations_json,
             kinds_seen = excluded.kinds_seen,
             generation = excluded.generation,
             updated_at = excluded.updated_at`,
		record.SessionID,
		record.ConsultingContent,
		string(annotationsJSON),
		strings.Join(kinds, ","),
		record.Generation,
		record.CreatedAt.Format(time.RFC3339Nano),
		record.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return tx.Commit()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		sessionID   string
		content     string
		annotations string
		kindsRaw    string
		generation  int64
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(&sessionID, &content, &annotations, &kindsRaw, &generation, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	record := &Record{
		SessionID:         sessionID,
		ConsultingContent: content,
		Generation:        generation,
	}
	if annotations != "" {
		if err := json.Unmarshal([]byte(annotations), &record.Annotations); err != nil {
			return nil, fmt.Errorf("decode annotations for session %s: %w", sessionID, err)
		}
	}
	for _, raw := range strings.Split(kindsRaw, ",") {
		if kind, ok := fragment.ParseKind(raw); ok {
			record.KindsSeen = append(record.KindsSeen, kind)
		}
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		record.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}
