package reminders

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// DefaultInterval is how often the scheduler runs the engine.
const DefaultInterval = 15 * time.Minute

// Runner is implemented by Engine.
type Runner interface {
	RunOnce(ctx context.Context, now time.Time) Summary
}

// Scheduler invokes a Runner on a fixed interval. Runs never overlap: they
// happen on a single goroutine, and ticks that fire while a run is still in
// progress are dropped.
type Scheduler struct {
	runner   Runner
	clock    clock.Clock
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(runner Runner, clk clock.Clock, interval time.Duration, logger *zap.Logger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		runner:   runner,
		clock:    clk,
		interval: interval,
		logger:   logger.Named("scheduler"),
	}
}

// Start begins ticking. Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.logger.Info("Scheduler already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	// The ticker is created here rather than in the goroutine so that the
	// first tick is measured from the Start call.
	ticker := s.clock.Ticker(s.interval)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, ticker, s.done)

	s.logger.Info("Reminder scheduler started", zap.Duration("interval", s.interval))
}

// Stop halts future ticks and waits for a run in progress to complete.
// Start and Running block until the loop has exited.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	// The loop never takes mu, so waiting here cannot deadlock
	<-s.done
	s.cancel, s.done = nil, nil

	s.logger.Info("Scheduler stopped")
}

// Running reports whether Start has been called without a matching Stop.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) run(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A stop that races with a tick wins.
			if ctx.Err() != nil {
				return
			}
			// Stopping must not abort a batch half way through
			s.tick(context.WithoutCancel(ctx))
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Reminder run panicked", zap.Any("panic", r))
		}
	}()

	s.logger.Debug("Running reminder check")
	s.runner.RunOnce(ctx, s.clock.Now())
}
