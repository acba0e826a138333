package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"feple/internal/analysis"
	"feple/internal/config"
	"feple/internal/logging"
	"feple/internal/pipeline"
	"feple/internal/report"
	"feple/internal/results"
	"feple/internal/session"
	"feple/internal/watcher"
)

// LockName is the daemon lock file, created in the log directory. A second
// daemon against the same directories refuses to start.
const LockName = "fepled.lock"

// Daemon owns the long-running components: the directory watcher feeding the
// pipeline, and the periodic summary reporter.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	lock     *flock.Flock
	sessions *session.Store
	results  *results.Store
	manager  *pipeline.Manager
	reporter *report.Reporter
	watcher  *watcher.Watcher

	mu          sync.Mutex
	started     bool
	stopWatch   func()
	watcherDone chan struct{}
}

// New acquires the daemon lock and opens the stores. Call Close to release
// them.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.Paths.LogDir, LockName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another daemon already holds %s", lock.Path())
	}

	sessions, err := session.Open(cfg)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open session store: %w", err)
	}
	resultStore, err := results.Open(cfg)
	if err != nil {
		_ = sessions.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("open results store: %w", err)
	}

	manager := pipeline.New(cfg, sessions, resultStore,
		analysis.NewKeywordExtractor(), analysis.NewLinearPredictor(), logger)

	d := &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		lock:     lock,
		sessions: sessions,
		results:  resultStore,
		manager:  manager,
		reporter: report.New(cfg, resultStore, logger),
	}

	w, err := watcher.New(cfg, logger, manager.Enqueue)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	d.watcher = w
	return d, nil
}

// Manager exposes the pipeline for direct, synchronous processing.
func (d *Daemon) Manager() *pipeline.Manager {
	return d.manager
}

// Start launches the pipeline, reporter, and watcher.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return errors.New("daemon already started")
	}

	if err := d.manager.Start(ctx); err != nil {
		return err
	}
	if err := d.reporter.Start(ctx); err != nil {
		d.manager.Stop()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	d.stopWatch = cancel
	d.watcherDone = make(chan struct{})
	go func() {
		defer close(d.watcherDone)
		if err := d.watcher.Run(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("watcher stopped unexpectedly", logging.Error(err))
		}
	}()

	d.started = true
	d.logger.Info("daemon started",
		logging.String("watch_dir", d.cfg.Paths.WatchDir),
		logging.String("output_dir", d.cfg.Paths.OutputDir),
	)
	return nil
}

// Stop shuts components down in intake-first order: watcher, then pipeline
// workers (letting in-flight fragments finish), then the reporter after a
// final snapshot.
func (d *Daemon) Stop(ctx context.Context) {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	stopWatch := d.stopWatch
	done := d.watcherDone
	d.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
		<-done
	}
	d.manager.Stop()

	if err := d.reporter.Run(ctx); err != nil {
		d.logger.Warn("final summary failed", logging.Error(err))
	}
	d.reporter.Stop()

	stats := d.manager.Stats()
	d.logger.Info("daemon stopped",
		logging.Int64("dispatched", stats.Dispatched),
		logging.Int64("persisted", stats.Persisted),
		logging.Int64("failed", stats.Failed),
	)
}

// Close releases the stores and the daemon lock.
func (d *Daemon) Close() error {
	var errs []error
	if d.results != nil {
		errs = append(errs, d.results.Close())
	}
	if d.sessions != nil {
		errs = append(errs, d.sessions.Close())
	}
	if d.lock != nil {
		errs = append(errs, d.lock.Unlock())
	}
	return errors.Join(errs...)
}
