package invoices

import (
	"context"
	"log/slog"
	"time"

	"github.com/confluxpay/paygate/internal/observability/metrics"
)

// Sweeper expires stale pending invoices on an interval.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
}

// NewSweeper creates a sweeper. A non-positive interval defaults to ten
// minutes.
func NewSweeper(store Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called.
func (s *Sweeper) Start() {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the sweep loop.
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.store.ExpireBefore(ctx, time.Now())
	if err != nil {
		s.logger.Warn("invoice sweep failed", "error", err)
		return
	}
	if n > 0 {
		metrics.RecordInvoicesExpired(n)
		s.logger.Info("expired invoices", "count", n)
	}
}
