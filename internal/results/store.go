package results

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"feple/internal/config"
	"feple/internal/fileutil"
	"feple/internal/fragment"
	"feple/internal/services"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// CSVName is the cumulative table mirror written next to the database for
// downstream consumers that expect the original artifact format.
const CSVName = "accumulated_results.csv"

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ErrStaleResult marks an upsert carrying an older session generation than the
// stored row. The caller logs and drops it; the newer result stands.
var ErrStaleResult = errors.New("stale result generation")

// Store accumulates one prediction result per session, backed by SQLite with a
// CSV mirror rewritten after every accepted upsert.
type Store struct {
	db      *sql.DB
	path    string
	csvPath string

	exportMu sync.Mutex
}

// Open initializes or connects to the results database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "results.db")
	// busy_timeout is per-connection, so it must go in the DSN to cover
	// every connection database/sql opens, not just the one Exec runs on.
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Upsert opens a deferred transaction that reads before it writes; under
	// WAL a concurrent writer makes that upgrade fail with SQLITE_BUSY
	// regardless of busy_timeout, so serialize on a single connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:      db,
		path:    dbPath,
		csvPath: filepath.Join(cfg.Paths.OutputDir, CSVName),
	}
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

// CSVPath returns the location of the cumulative CSV mirror.
func (s *Store) CSVPath() string {
	return s.csvPath
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

// Upsert inserts or replaces the session's result row, then rewrites the CSV
// mirror. An upsert whose generation is older than the stored row returns
// ErrStaleResult and leaves the store untouched.
func (s *Store) Upsert(ctx context.Context, result *PredictionResult) error {
	if result == nil {
		return errors.New("result is nil")
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return services.Wrap(services.ErrValidation, "", "upsert", fmt.Sprintf("confidence %v out of range", result.Confidence), nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "", "upsert", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingGeneration int64
	err = tx.QueryRowContext(ctx,
		`SELECT generation FROM prediction_results WHERE session_id = ?`, result.SessionID,
	).Scan(&existingGeneration)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return services.Wrap(services.ErrPersistence, "", "upsert", "read existing generation", err)
	case existingGeneration > result.Generation:
		return fmt.Errorf("%w: session %s has generation %d, incoming %d",
			ErrStaleResult, result.SessionID, existingGeneration, result.Generation)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO prediction_results (session_id, predicted_label, confidence, processing_ms, source_kind, generation, processed_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(session_id) DO UPDATE SET
             predicted_label = excluded.predicted_label,
             confidence = excluded.confidence,
             processing_ms = excluded.processing_ms,
             source_kind = excluded.source_kind,
             generation = excluded.generation,
             processed_at = excluded.processed_at`,
		result.SessionID,
		result.Label,
		result.Confidence,
		result.Duration.Milliseconds(),
		string(result.SourceKind),
		result.Generation,
		result.ProcessedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "", "upsert", "write result row", err)
	}
	if err := tx.Commit(); err != nil {
		return services.Wrap(services.ErrPersistence, "", "upsert", "commit", err)
	}

	if err := s.exportCSV(ctx); err != nil {
		return services.Wrap(services.ErrPersistence, "", "upsert", "rewrite csv mirror", err)
	}
	return nil
}

// Get fetches a session's result row, or nil when absent.
func (s *Store) Get(ctx context.Context, sessionID string) (*PredictionResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM prediction_results WHERE session_id = ?`, sessionID)
	result, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return result, nil
}

// List returns all result rows ordered by session id.
func (s *Store) List(ctx context.Context) ([]*PredictionResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM prediction_results ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []*PredictionResult
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	return out, rows.Err()
}

// Summarize computes the aggregate statistics for the periodic snapshot from a
// consistent read of the store.
func (s *Store) Summarize(ctx context.Context, highConfidenceThreshold float64) (Summary, error) {
	all, err := s.List(ctx)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		LabelCounts: make(map[string]int),
		KindCounts:  make(map[fragment.Kind]int),
		Threshold:   highConfidenceThreshold,
		GeneratedAt: time.Now().UTC(),
	}
	var confidenceSum float64
	for _, result := range all {
		summary.Total++
		summary.LabelCounts[result.Label]++
		summary.KindCounts[result.SourceKind]++
		confidenceSum += result.Confidence
		if result.Confidence >= highConfidenceThreshold {
			summary.HighConfidence++
		}
	}
	if summary.Total > 0 {
		summary.MeanConfidence = confidenceSum / float64(summary.Total)
	}
	return summary, nil
}

// exportCSV rewrites the cumulative CSV mirror atomically so readers never
// observe a partial table. Exports are serialized: with concurrent upserts,
// a later export reads at least everything an earlier one saw, so the rename
// landing last never carries an older snapshot.
func (s *Store) exportCSV(ctx context.Context) error {
	s.exportMu.Lock()
	defer s.exportMu.Unlock()

	all, err := s.List(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	header := []string{"session_id", "predicted_label", "confidence", "processing_ms", "data_type", "processed_time", "generation"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, result := range all {
		row := []string{
			result.SessionID,
			result.Label,
			strconv.FormatFloat(result.Confidence, 'f', 4, 64),
			strconv.FormatInt(result.Duration.Milliseconds(), 10),
			string(result.SourceKind),
			result.ProcessedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(result.Generation, 10),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return fileutil.WriteFileAtomic(s.csvPath, buf.Bytes(), 0o644)
}

const resultColumns = "session_id, predicted_label, confidence, processing_ms, source_kind, generation, processed_at"

func scanResult(scanner interface{ Scan(dest ...any) error }) (*PredictionResult, error) {
	var (
		sessionID    string
		label        string
		confidence   float64
		processingMs int64
		kindRaw      string
		generation   int64
		processedRaw string
	)
	if err := scanner.Scan(&sessionID, &label, &confidence, &processingMs, &kindRaw, &generation, &processedRaw); err != nil {
		return nil, err
	}

	result := &PredictionResult{
		SessionID:  sessionID,
		Label:      label,
		Confidence: confidence,
		Duration:   time.Duration(processingMs) * time.Millisecond,
		SourceKind: fragment.Kind(kindRaw),
		Generation: generation,
	}
	if processed, err := time.Parse(time.RFC3339Nano, processedRaw); err == nil {
		result.ProcessedAt = processed
	}
	return result, nil
}
