package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"notify_relay/internal/domain"
	"notify_relay/internal/telemetry"
)

var (
	ErrAlreadyStarted  = errors.New("scheduler already started")
	ErrCheckInProgress = errors.New("check already in progress")
)

// Checker runs one check tick.
type Checker interface {
	Check(ctx context.Context) *domain.CheckResult
}

type Scheduler struct {
	checker     Checker
	interval    time.Duration
	tickTimeout time.Duration
	logger      *slog.Logger

	started atomic.Bool
	running atomic.Bool
}

func NewScheduler(checker Checker, interval, tickTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		checker:     checker,
		interval:    interval,
		tickTimeout: tickTimeout,
		logger:      logger.With("component", "scheduler"),
	}
}

// Start runs a check immediately and then every interval until ctx is done.
// Only the first call starts the loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	s.logger.Info("scheduler started", "interval", s.interval)

	s.runCheck(ctx)

	cronLogger := cronLogger{logger: s.logger}
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))
	c.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		s.runCheck(ctx)
	}))
	c.Start()

	<-ctx.Done()

	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// RunOnce runs a single check bounded by the tick timeout. It does not wait
// for a check that is already running.
func (s *Scheduler) RunOnce(ctx context.Context) (*domain.CheckResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		telemetry.Inc(telemetry.ChecksSkipped)
		return nil, ErrCheckInProgress
	}
	defer s.running.Store(false)

	if s.tickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.tickTimeout)
		defer cancel()
	}

	return s.checker.Check(ctx), nil
}

func (s *Scheduler) runCheck(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Warn("skipping tick", "error", err)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
