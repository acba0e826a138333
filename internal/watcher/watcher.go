package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"feple/internal/config"
	"feple/internal/logging"
)

// Handler receives the path of each stable, qualifying file exactly once per
// stable write.
type Handler func(path string)

// Watcher observes the input directory for fragment files. Raw notifications
// are debounced: a file is dispatched only after its size has stayed unchanged
// for the configured quiet period, and a path producing multiple raw events in
// quick succession dispatches at most once per stable write.
type Watcher struct {
	cfg     *config.Config
	logger  *slog.Logger
	handler Handler

	quietPeriod      time.Duration
	stabilityTimeout time.Duration
	pollInterval     time.Duration
}

type pendingFile struct {
	firstSeen time.Time
	lastSize  int64
	stableFor time.Duration
	lastCheck time.Time
}

type fileSig struct {
	size    int64
	modTime time.Time
}

// New constructs a watcher that invokes handler for each stable file.
func New(cfg *config.Config, logger *slog.Logger, handler Handler) (*Watcher, error) {
	if cfg == nil || handler == nil {
		return nil, errors.New("watcher requires config and handler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	quiet := time.Duration(cfg.Watcher.QuietPeriodMillis) * time.Millisecond
	poll := quiet / 4
	if poll < 50*time.Millisecond {
		poll = 50 * time.Millisecond
	}
	return &Watcher{
		cfg:              cfg,
		logger:           logger.With(logging.String(logging.FieldComponent, "watcher")),
		handler:          handler,
		quietPeriod:      quiet,
		stabilityTimeout: time.Duration(cfg.Watcher.StabilityTimeoutMs) * time.Millisecond,
		pollInterval:     poll,
	}, nil
}

// Run watches until the context is canceled. Pre-existing files are scanned
// first and treated identically to newly created ones.
func (w *Watcher) Run(ctx context.Context) error {
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer notify.Close()

	if err := notify.Add(w.cfg.Paths.WatchDir); err != nil {
		return err
	}

	pending := make(map[string]*pendingFile)
	dispatched := make(map[string]fileSig)

	w.scanExisting(pending)
	w.logger.Info("watching input directory",
		logging.String("dir", w.cfg.Paths.WatchDir),
		logging.Int("pre_existing", len(pending)),
	)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-notify.Events:
			if !ok {
				return errors.New("watch event channel closed")
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				// A recreated path starts over: forget both the stability
				// state and the dispatch signature.
				delete(pending, event.Name)
				delete(dispatched, event.Name)
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !w.qualifies(event.Name) {
				continue
			}
			if _, tracked := pending[event.Name]; !tracked {
				pending[event.Name] = &pendingFile{firstSeen: time.Now(), lastSize: -1}
			}
		case err, ok := <-notify.Errors:
			if !ok {
				return errors.New("watch error channel closed")
			}
			w.logger.Warn("watch error", logging.Error(err))
		case now := <-ticker.C:
			w.checkPending(now, pending, dispatched)
		}
	}
}

// scanExisting seeds the pending set from files already present at startup, so
// files that arrived while the daemon was down are processed like live ones.
func (w *Watcher) scanExisting(pending map[string]*pendingFile) {
	entries, err := os.ReadDir(w.cfg.Paths.WatchDir)
	if err != nil {
		w.logger.Warn("initial directory scan failed", logging.Error(err))
		return
	}
	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.cfg.Paths.WatchDir, entry.Name())
		if !w.qualifies(path) {
			continue
		}
		pending[path] = &pendingFile{firstSeen: now, lastSize: -1}
	}
}

func (w *Watcher) qualifies(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range w.cfg.Watcher.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// checkPending advances the stability state of each tracked file and
// dispatches those whose size has held steady for the quiet period.
func (w *Watcher) checkPending(now time.Time, pending map[string]*pendingFile, dispatched map[string]fileSig) {
	for path, state := range pending {
		info, err := os.Stat(path)
		if err != nil {
			// Deleted or unreadable mid-write; forget it.
			delete(pending, path)
			delete(dispatched, path)
			continue
		}

		if info.Size() != state.lastSize {
			state.lastSize = info.Size()
			state.stableFor = 0
			state.lastCheck = now
			continue
		}
		if !state.lastCheck.IsZero() {
			state.stableFor += now.Sub(state.lastCheck)
		}
		state.lastCheck = now

		if state.stableFor < w.quietPeriod {
			if now.Sub(state.firstSeen) > w.stabilityTimeout {
				w.logger.Warn("file never stabilized, dropping",
					logging.String("path", path),
					logging.Duration("waited", now.Sub(state.firstSeen)),
				)
				delete(pending, path)
			}
			continue
		}

		delete(pending, path)
		sig := fileSig{size: info.Size(), modTime: info.ModTime()}
		if prev, ok := dispatched[path]; ok && prev == sig {
			// Duplicate notification for a write we already dispatched.
			continue
		}
		dispatched[path] = sig
		w.handler(path)
	}
}
