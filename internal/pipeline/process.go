package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"feple/internal/analysis"
	"feple/internal/fragment"
	"feple/internal/logging"
	"feple/internal/results"
	"feple/internal/services"
	"feple/internal/session"
)

// Attempt status values, in order of progression. A failed stage records the
// matching *_failed status and the attempt stops there; the session record and
// any previously accumulated result are left intact.
const (
	StatusMerged            = "merged"
	StatusFeaturesExtracted = "features_extracted"
	StatusPredicted         = "predicted"
	StatusPersisted         = "persisted"
	StatusExtractionFailed  = "extraction_failed"
	StatusPredictionFailed  = "prediction_failed"
	StatusPersistenceFailed = "persistence_failed"
)

// Attempt reports the outcome of processing one fragment.
type Attempt struct {
	Path      string
	SessionID string
	Kind      fragment.Kind
	RequestID string
	Status    string
	Result    *results.PredictionResult
	Err       error
}

// process runs one backlog entry and folds its outcome into the counters. A
// failure is confined to the fragment's session; the worker moves on.
func (m *Manager) process(ctx context.Context, logger *slog.Logger, path string) {
	attempt := m.Process(ctx, path)

	m.mu.Lock()
	m.stats.Dispatched++
	switch {
	case attempt.Kind == fragment.KindUnrecognized:
		m.stats.Unrecognized++
	case errors.Is(attempt.Err, results.ErrStaleResult):
		m.stats.Stale++
	case attempt.Err != nil:
		m.stats.Failed++
	case attempt.Status == StatusPersisted:
		m.stats.Persisted++
	}
	m.mu.Unlock()

	logger = logger.With(
		logging.String("path", path),
		logging.String(logging.FieldSessionID, attempt.SessionID),
		logging.String(logging.FieldKind, string(attempt.Kind)),
	)
	if attempt.RequestID != "" {
		logger = logger.With(logging.String(logging.FieldCorrelationID, attempt.RequestID))
	}
	switch {
	case attempt.Kind == fragment.KindUnrecognized:
		logger.Info("unrecognized fragment dropped",
			logging.String(logging.FieldEventType, "fragment_unrecognized"))
	case errors.Is(attempt.Err, results.ErrStaleResult):
		logger.Debug("stale result superseded, keeping newer row",
			logging.String(logging.FieldEventType, "result_stale"))
	case attempt.Err != nil:
		logger.Error("fragment processing failed",
			logging.String(logging.FieldEventType, "fragment_failed"),
			logging.String("status", attempt.Status),
			logging.Error(attempt.Err))
	default:
		logger.Info("fragment processed",
			logging.String(logging.FieldEventType, "fragment_processed"),
			logging.String("label", attempt.Result.Label),
			logging.Float64("confidence", attempt.Result.Confidence),
			logging.Duration("took", attempt.Result.Duration))
	}
}

// Process drives a single fragment through the full pipeline synchronously:
// classify, merge, extract, predict, accumulate. Reprocessing the same file is
// safe; the merge deduplicates and the accumulator keeps one row per session.
func (m *Manager) Process(ctx context.Context, path string) Attempt {
	attempt := Attempt{Path: path, Kind: fragment.KindUnrecognized}

	event, err := fragment.NewEvent(path)
	if err != nil {
		kind, sessionID := fragment.Resolve(path)
		attempt.Kind = kind
		attempt.SessionID = sessionID
		attempt.Err = services.Wrap(services.ErrValidation, "intake", "load", "read fragment", err)
		return attempt
	}
	if event == nil {
		return attempt
	}
	attempt.Kind = event.Kind
	attempt.SessionID = event.SessionID

	ctx = services.WithSessionID(ctx, event.SessionID)
	requestID, ok := services.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
		ctx = services.WithRequestID(ctx, requestID)
	}
	attempt.RequestID = requestID

	// One attempt per session at a time; merges for other sessions proceed.
	lock := m.sessionLock(event.SessionID)
	lock.Lock()
	defer lock.Unlock()

	record, err := m.sessions.Merge(ctx, event.SessionID, event.Kind, event.Record)
	if err != nil {
		attempt.Err = err
		return attempt
	}
	attempt.Status = StatusMerged

	started := time.Now()
	features, err := m.extract(ctx, record)
	if err != nil {
		attempt.Status = StatusExtractionFailed
		attempt.Err = err
		return attempt
	}
	attempt.Status = StatusFeaturesExtracted

	label, confidence, err := m.predict(ctx, features)
	if err != nil {
		attempt.Status = StatusPredictionFailed
		attempt.Err = err
		return attempt
	}
	attempt.Status = StatusPredicted

	result := &results.PredictionResult{
		SessionID:   event.SessionID,
		Label:       label,
		Confidence:  confidence,
		Duration:    time.Since(started),
		SourceKind:  event.Kind,
		Generation:  record.Generation,
		ProcessedAt: time.Now().UTC(),
	}
	if err := m.results.Upsert(ctx, result); err != nil {
		if !errors.Is(err, results.ErrStaleResult) {
			attempt.Status = StatusPersistenceFailed
		}
		attempt.Err = err
		return attempt
	}
	attempt.Status = StatusPersisted
	attempt.Result = result
	return attempt
}

func (m *Manager) extract(ctx context.Context, record *session.Record) (analysis.Features, error) {
	ctx = services.WithStage(ctx, "extract")
	logger := logging.WithContext(ctx, m.logger)
	stageCtx, cancel := context.WithTimeout(ctx, m.extractionTimeout)
	defer cancel()

	features, err := m.extractor.Extract(stageCtx, record)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "extract", "", "feature extraction exceeded budget", err)
		}
		return nil, services.Wrap(services.ErrTransient, "extract", "", "feature extraction failed", err)
	}
	logger.Debug("features extracted", logging.Int("feature_count", len(features)))
	return features, nil
}

func (m *Manager) predict(ctx context.Context, features analysis.Features) (string, float64, error) {
	ctx = services.WithStage(ctx, "predict")
	logger := logging.WithContext(ctx, m.logger)
	stageCtx, cancel := context.WithTimeout(ctx, m.predictionTimeout)
	defer cancel()

	label, confidence, err := m.predictor.Predict(stageCtx, features)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", 0, services.Wrap(services.ErrTimeout, "predict", "", "prediction exceeded budget", err)
		}
		return "", 0, services.Wrap(services.ErrTransient, "predict", "", "prediction failed", err)
	}
	if !analysis.ValidLabel(label) {
		return "", 0, services.Wrap(services.ErrValidation, "predict", "", "predictor returned unknown label "+label, nil)
	}
	logger.Debug("prediction complete",
		logging.String("label", label),
		logging.Float64("confidence", confidence))
	return label, confidence, nil
}
