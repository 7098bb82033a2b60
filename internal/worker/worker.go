package worker

import (
	"context"
	"log/slog"
	"time"
)

// Manager owns the consumer pools and drives their lifecycle. Pools are
// registered at bootstrap and run until shutdown.
type Manager struct {
	pools  []*Pool
	logger *slog.Logger
	cancel context.CancelFunc
}

// NewManager creates a new Manager instance
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{logger: logger}
}

// Register adds a pool to the manager. Must be called before Start.
func (m *Manager) Register(pool *Pool) {
	m.pools = append(m.pools, pool)
}

// Start launches every registered pool.
func (m *Manager) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for _, pool := range m.pools {
		if err := pool.Start(runCtx); err != nil {
			cancel()
			return err
		}
	}

	m.logger.Info("Worker manager started", slog.Int("pools", len(m.pools)))
	return nil
}

// Stop cancels every pool and waits up to timeout for in-flight jobs to
// settle.
func (m *Manager) Stop(timeout time.Duration) {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		for _, pool := range m.pools {
			pool.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Worker manager stopped")
	case <-time.After(timeout):
		m.logger.Warn("Worker manager shutdown timed out",
			slog.Duration("timeout", timeout),
		)
	}
}
