package app

import (
	"context"
	"time"

	"github.com/Freeeeeet/studyroom/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cleaner is the billing housekeeping the scheduler runs.
type Cleaner interface {
	Cleanup(ctx context.Context, now time.Time) (service.CleanupReport, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	cron    *cron.Cron
	cleaner Cleaner
	timeout time.Duration
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler создаёт новый планировщик. spec is a cron expression or a
// descriptor such as "@every 1h".
func NewScheduler(spec string, cleaner Cleaner, timeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		cleaner: cleaner,
		timeout: timeout,
		logger:  logger,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if _, err := s.cron.AddFunc(spec, s.cleanup); err != nil {
		return nil, err
	}
	return s, nil
}

// Start запускает фоновые задачи
func (s *Scheduler) Start() {
	s.logger.Info("Starting background scheduler", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.Info("Stopping background scheduler")
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.cancel()
	}
}

// cleanup drops stale pending checkouts.
func (s *Scheduler) cleanup() {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	report, err := s.cleaner.Cleanup(ctx, time.Now())
	if err != nil {
		s.logger.Error("Subscription cleanup failed", zap.Error(err))
		return
	}
	s.logger.Info("Subscription cleanup completed", zap.Int64("pending_deleted", report.PendingDeleted))
}
