package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/shellsale/internal/config"
)

const reportTimeout = 2 * time.Minute

// ReportGenerator renders the weekly sales digest.
type ReportGenerator interface {
	GenerateWeeklyReport(ctx context.Context, now time.Time) (string, error)
}

// Broadcaster delivers a message to every configured recipient.
type Broadcaster interface {
	Broadcast(ctx context.Context, body string) error
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	reports  ReportGenerator
	sender   Broadcaster
	logger   *zap.Logger
	now      func() time.Time
}

// NewScheduler creates a scheduler running in the configured timezone.
func NewScheduler(cfg config.ReportingConfig, reports ReportGenerator, sender Broadcaster, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", cfg.Timezone, err)
	}

	// Standard 5-field cron expressions (min, hour, dom, month, dow).
	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cronLogger{logger})))

	return &Scheduler{
		cron:     c,
		schedule: cfg.CronSchedule,
		reports:  reports,
		sender:   sender,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start registers the weekly digest and starts the scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sendWeeklyReport); err != nil {
		return fmt.Errorf("schedule weekly report %q: %w", s.schedule, err)
	}
	s.logger.Info("starting scheduler", zap.String("schedule", s.schedule))
	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// RunWeeklyReport builds and sends the digest once.
func (s *Scheduler) RunWeeklyReport(ctx context.Context) error {
	report, err := s.reports.GenerateWeeklyReport(ctx, s.now())
	if err != nil {
		return fmt.Errorf("generate weekly report: %w", err)
	}
	if err := s.sender.Broadcast(ctx, report); err != nil {
		return fmt.Errorf("send weekly report: %w", err)
	}
	return nil
}

func (s *Scheduler) sendWeeklyReport() {
	s.logger.Info("generating weekly report")
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	if err := s.RunWeeklyReport(ctx); err != nil {
		s.logger.Error("weekly report failed", zap.Error(err))
		return
	}
	s.logger.Info("weekly report sent successfully")
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ logger *zap.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
