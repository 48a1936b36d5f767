package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// ReminderRunner sends the reminders due at now and reports how many
type ReminderRunner interface {
	Run(ctx context.Context, now time.Time) (int, error)
}

// ExpirySchedulerConfig holds configuration for the permit expiry job
type ExpirySchedulerConfig struct {
	// Cron, when set, takes precedence over Interval
	Cron       string
	Interval   time.Duration
	RunOnStart bool
	Location   *time.Location
}

// DefaultExpirySchedulerConfig runs once a day at 07:00
func DefaultExpirySchedulerConfig() ExpirySchedulerConfig {
	return ExpirySchedulerConfig{
		Cron:     "0 7 * * *",
		Location: time.UTC,
	}
}

// ExpiryScheduler runs the permit expiry reminder on a gocron schedule
type ExpiryScheduler struct {
	config   ExpirySchedulerConfig
	reminder ReminderRunner
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	scheduler gocron.Scheduler
	runs      int
}

// NewExpiryScheduler creates the reminder job
func NewExpiryScheduler(config ExpirySchedulerConfig, reminder ReminderRunner, logger *zap.Logger) *ExpiryScheduler {
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &ExpiryScheduler{
		config:   config,
		reminder: reminder,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start registers the job and starts the scheduler
func (s *ExpiryScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler != nil {
		return fmt.Errorf("expiry scheduler already running")
	}

	definition, err := s.definition()
	if err != nil {
		return err
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(s.config.Location))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	opts := []gocron.JobOption{
		gocron.WithName("permit-expiry-reminders"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if s.config.RunOnStart {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	if _, err := scheduler.NewJob(definition, gocron.NewTask(s.runOnce, context.WithoutCancel(ctx)), opts...); err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("failed to create expiry job: %w", err)
	}

	scheduler.Start()
	s.scheduler = scheduler

	s.logger.Info("ExpiryScheduler started",
		zap.String("cron", s.config.Cron),
		zap.Duration("interval", s.config.Interval),
		zap.Bool("run_on_start", s.config.RunOnStart))
	return nil
}

// Stop shuts the scheduler down, waiting for a running job
func (s *ExpiryScheduler) Stop() error {
	s.mu.Lock()
	scheduler := s.scheduler
	s.scheduler = nil
	s.mu.Unlock()

	if scheduler == nil {
		return nil
	}
	if err := scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	s.logger.Info("ExpiryScheduler stopped")
	return nil
}

// Name returns the worker name for identification
func (s *ExpiryScheduler) Name() string {
	return "ExpiryScheduler"
}

// Runs reports how many times the job has run
func (s *ExpiryScheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *ExpiryScheduler) definition() (gocron.JobDefinition, error) {
	switch {
	case s.config.Cron != "":
		return gocron.CronJob(s.config.Cron, false), nil
	case s.config.Interval > 0:
		return gocron.DurationJob(s.config.Interval), nil
	default:
		return nil, fmt.Errorf("expiry scheduler needs a cron expression or an interval")
	}
}

func (s *ExpiryScheduler) runOnce(ctx context.Context) {
	started := s.now()
	sent, err := s.reminder.Run(ctx, started)

	s.mu.Lock()
	s.runs++
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Permit expiry reminder run failed", zap.Error(err))
		return
	}
	s.logger.Info("Permit expiry reminders sent",
		zap.Int("count", sent),
		zap.Duration("elapsed", time.Since(started)))
}

var _ Worker = (*ExpiryScheduler)(nil)
