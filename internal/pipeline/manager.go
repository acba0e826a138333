package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"feple/internal/analysis"
	"feple/internal/config"
	"feple/internal/logging"
	"feple/internal/results"
	"feple/internal/session"
)

// Manager coordinates fragment processing: it feeds a bounded worker pool from
// an unbounded backlog, serializes work per session, and drives each fragment
// through merge, extraction, prediction, and result accumulation.
type Manager struct {
	cfg       *config.Config
	logger    *slog.Logger
	sessions  *session.Store
	results   *results.Store
	extractor analysis.Extractor
	predictor analysis.Predictor

	extractionTimeout time.Duration
	predictionTimeout time.Duration

	mu      sync.Mutex
	backlog []string
	signal  chan struct{}
	running bool
	cancel  func()
	wg      sync.WaitGroup

	sessionLocks map[string]*sync.Mutex

	stats Stats
}

// Stats counts pipeline outcomes since start.
type Stats struct {
	Dispatched   int64
	Persisted    int64
	Failed       int64
	Unrecognized int64
	Stale        int64
}

// New constructs a pipeline manager.
func New(cfg *config.Config, sessions *session.Store, resultStore *results.Store, extractor analysis.Extractor, predictor analysis.Predictor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:               cfg,
		logger:            logger.With(logging.String(logging.FieldComponent, "pipeline")),
		sessions:          sessions,
		results:           resultStore,
		extractor:         extractor,
		predictor:         predictor,
		extractionTimeout: time.Duration(cfg.Pipeline.ExtractionTimeoutSeconds) * time.Second,
		predictionTimeout: time.Duration(cfg.Pipeline.PredictionTimeoutSeconds) * time.Second,
		signal:            make(chan struct{}, 1),
		sessionLocks:      make(map[string]*sync.Mutex),
	}
}

// Stats returns a snapshot of the outcome counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Backlog returns the number of queued, not yet started fragments.
func (m *Manager) Backlog() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.backlog)
}

func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.sessionLocks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.sessionLocks[sessionID] = lock
	}
	return lock
}
