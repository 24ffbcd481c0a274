package versegraph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DecayScheduler runs the stale-edge decay pass on a fixed interval.
//
// Decay is periodic maintenance, not request-path work: nothing in user
// traffic triggers it. The scheduler provides Start/Stop lifecycle with
// graceful shutdown; Start is idempotent-safe to call once, and Stop blocks
// until the worker goroutine has exited.
type DecayScheduler struct {
	graph      *Graph
	interval   time.Duration
	staleAfter time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// SchedulerOption configures a DecayScheduler.
type SchedulerOption func(*DecayScheduler)

// WithInterval sets how often the decay pass runs. Defaults to 24 hours.
func WithInterval(interval time.Duration) SchedulerOption {
	return func(s *DecayScheduler) {
		s.interval = interval
	}
}

// WithStaleAfter sets how long an edge may go untouched before it decays.
// Defaults to 14 days.
func WithStaleAfter(staleAfter time.Duration) SchedulerOption {
	return func(s *DecayScheduler) {
		s.staleAfter = staleAfter
	}
}

// NewDecayScheduler creates a scheduler. It does not start automatically;
// call Start.
func NewDecayScheduler(graph *Graph, logger *zap.Logger, opts ...SchedulerOption) (*DecayScheduler, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &DecayScheduler{
		graph:      graph,
		interval:   24 * time.Hour,
		staleAfter: 14 * 24 * time.Hour,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", s.interval)
	}
	if s.staleAfter <= 0 {
		return nil, fmt.Errorf("staleAfter must be positive, got %v", s.staleAfter)
	}

	return s, nil
}

// Start launches the background decay loop. Returns an error if already
// running.
func (s *DecayScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.run(ctx, s.stopCh, s.doneCh)

	s.logger.Info("decay scheduler started",
		zap.Duration("interval", s.interval),
		zap.Duration("stale_after", s.staleAfter))
	return nil
}

// Stop signals the loop to exit and waits for it. Safe to call when not
// running.
func (s *DecayScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
	s.logger.Info("decay scheduler stopped")
}

// Running reports whether the scheduler loop is active.
func (s *DecayScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *DecayScheduler) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.graph.DecayStaleEdges(ctx, s.staleAfter); err != nil {
				s.logger.Error("decay pass failed", zap.Error(err))
			}
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
