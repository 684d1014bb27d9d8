package reconcile

import (
	"context"
	"time"

	"github.com/clinicdesk/booking-engine/pkg/logging"
)

// Sweeper periodically expires abandoned checkouts so their slots return to
// the pool without an explicit cancellation.
type Sweeper struct {
	reconciler *Reconciler
	interval   time.Duration
	logger     *logging.Logger
	stop       chan struct{}
	done       chan struct{}
}

// NewSweeper creates an expiry sweeper.
func NewSweeper(reconciler *Reconciler, interval time.Duration, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or the context ends.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				swept, err := s.reconciler.SweepExpired(ctx, time.Now())
				if err != nil {
					s.logger.Error("expiry sweep failed", "error", err)
					continue
				}
				if swept > 0 {
					s.logger.Info("expiry sweep completed", "expired", swept)
				}
			}
		}
	}()
}

// Stop halts the loop and waits for the in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}
