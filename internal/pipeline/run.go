package pipeline

import (
	"context"
	"errors"

	"feple/internal/logging"
)

// Start launches the worker pool. It returns immediately; workers drain the
// backlog until Stop or context cancellation. A fragment already handed to a
// worker finishes its current stage before the worker exits.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("pipeline already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	workers := m.cfg.Pipeline.Workers
	m.mu.Unlock()

	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker(runCtx, i)
	}
	m.logger.Info("pipeline started", logging.Int("workers", workers))
	return nil
}

// Stop signals workers to finish and waits for in-flight fragments to complete
// their current stage.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.logger.Info("pipeline stopped")
}

// Enqueue appends a fragment path to the backlog and wakes a worker. The
// backlog is unbounded; only worker concurrency is capped.
func (m *Manager) Enqueue(path string) {
	m.mu.Lock()
	m.backlog = append(m.backlog, path)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// next pops the oldest backlog entry, or blocks until one arrives or the
// context ends.
func (m *Manager) next(ctx context.Context) (string, bool) {
	for {
		m.mu.Lock()
		if len(m.backlog) > 0 {
			path := m.backlog[0]
			m.backlog = m.backlog[1:]
			if len(m.backlog) > 0 {
				// More work remains; wake another waiter.
				select {
				case m.signal <- struct{}{}:
				default:
				}
			}
			m.mu.Unlock()
			return path, true
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", false
		case <-m.signal:
		}
	}
}

func (m *Manager) worker(ctx context.Context, id int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", id))
	for {
		path, ok := m.next(ctx)
		if !ok {
			return
		}
		// Stage budgets, not daemon shutdown, bound an attempt once started.
		m.process(context.WithoutCancel(ctx), logger, path)
	}
}
