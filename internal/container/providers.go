package container

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nasmusic-ai/permit-pro/internal/application/dispatcher"
	"github.com/nasmusic-ai/permit-pro/internal/application/payment"
	"github.com/nasmusic-ai/permit-pro/internal/application/permit"
	"github.com/nasmusic-ai/permit-pro/internal/application/port"
	"github.com/nasmusic-ai/permit-pro/internal/application/service"
	"github.com/nasmusic-ai/permit-pro/internal/application/workflow"
	"github.com/nasmusic-ai/permit-pro/internal/config"
	"github.com/nasmusic-ai/permit-pro/internal/infrastructure/lock"
	"github.com/nasmusic-ai/permit-pro/internal/infrastructure/metrics"
	"github.com/nasmusic-ai/permit-pro/internal/infrastructure/persistence/repository"
	"github.com/nasmusic-ai/permit-pro/internal/infrastructure/persistence/sqlite"
	"github.com/nasmusic-ai/permit-pro/internal/infrastructure/report"
	"github.com/nasmusic-ai/permit-pro/internal/infrastructure/worker"
	httpserver "github.com/nasmusic-ai/permit-pro/internal/interfaces/http"
	"github.com/nasmusic-ai/permit-pro/migrations"
	"github.com/nasmusic-ai/permit-pro/pkg/database"
	"github.com/nasmusic-ai/permit-pro/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Raw            *database.DB
	TransactionMgr *sqlite.DB
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Application  port.ApplicationRepository
	Payment      port.PaymentRepository
	Permit       port.PermitRepository
	Notification port.NotificationRepository
	History      port.HistoryRepository
	Sequence     port.SequenceAllocator
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Application  service.ApplicationService
	Payment      service.PaymentService
	Permit       service.PermitService
	Notification service.NotificationService
}

// CoreDeps are the collaborators shared by the engine and the services.
type CoreDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Locker     port.Locker
	Notifier   port.NotificationSink
	Dispatcher dispatcher.Dispatcher
	Fees       payment.FeeSchedule
	OfficeName string
	Logger     *zap.Logger
}

// ProvideDatabase opens SQLite and applies the embedded migrations.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	raw, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(raw, logger).RunMigrationsFS(migrations.FS); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Raw:            raw,
		TransactionMgr: sqlite.NewDB(raw.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories on the shared connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &RepositoryBundle{
		Application:  repository.NewApplicationRepository(db.DB, logger),
		Payment:      repository.NewPaymentRepository(db.DB, logger),
		Permit:       repository.NewPermitRepository(db.DB, logger),
		Notification: repository.NewNotificationRepository(db.DB, logger),
		History:      repository.NewHistoryRepository(db.DB, logger),
		Sequence:     repository.NewSequenceRepository(db.DB, logger),
	}, nil
}

// ProvideLocker selects the per-application locker. The close func is never nil.
func ProvideLocker(cfg *config.Config, logger *zap.Logger) (port.Locker, func() error, error) {
	return lock.New(cfg.Lock.Backend, lock.RedisConfig{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
		TTL:       cfg.Lock.TTL,
		Retry:     cfg.Lock.Retry,
	}, utils.NewKVLogger(logger))
}

// ProvideDispatcher creates the domain event dispatcher with metrics subscribed.
func ProvideDispatcher(m *metrics.Metrics, logger *zap.Logger) dispatcher.Dispatcher {
	d := dispatcher.NewDispatcher(dispatcher.WithLogger(utils.NewKVLogger(logger)))
	if m != nil {
		m.Subscribe(d)
	}
	return d
}

// ProvideFeeSchedule converts validated config lines; no lines means the default schedule.
func ProvideFeeSchedule(fees []config.FeeConfig) (payment.FeeSchedule, error) {
	if len(fees) == 0 {
		return payment.DefaultFeeSchedule(), nil
	}

	schedule := payment.FeeSchedule{Items: make([]payment.FeeItem, 0, len(fees))}
	for _, fee := range fees {
		amount, err := decimal.NewFromString(fee.Amount)
		if err != nil {
			return payment.FeeSchedule{}, fmt.Errorf("fee %q: %w", fee.Name, err)
		}
		schedule.Items = append(schedule.Items, payment.FeeItem{Name: fee.Name, Amount: amount})
	}
	return schedule, nil
}

// ProvideEngineAndServices builds the workflow engine and every service on top of it.
func ProvideEngineAndServices(deps *CoreDeps) (workflow.Engine, *ServiceBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, nil, fmt.Errorf("core dependencies are required")
	}

	kv := utils.NewKVLogger(deps.Logger)
	repos := deps.Repos
	ledger := payment.NewLedger(repos.Payment, deps.Fees)

	engine := workflow.NewEngine(workflow.Dependencies{
		Applications: repos.Application,
		History:      repos.History,
		TxManager:    deps.TxManager,
		Locker:       deps.Locker,
		Notifier:     deps.Notifier,
		Ledger:       ledger,
		Issuer:       permit.NewIssuer(repos.Permit, repos.Sequence),
	}, workflow.WithDispatcher(deps.Dispatcher), workflow.WithLogger(kv))

	services := &ServiceBundle{
		Application: service.NewApplicationService(
			repos.Application, repos.History, repos.Payment, repos.Sequence,
			deps.TxManager, deps.Locker, engine, deps.Dispatcher, kv,
		),
		Payment: service.NewPaymentService(
			repos.Application, repos.Payment, ledger,
			deps.TxManager, deps.Locker, engine,
			report.NewLedgerXLSX(deps.OfficeName, deps.Logger), deps.Dispatcher, kv,
		),
		Permit: service.NewPermitService(
			repos.Application, repos.Permit, deps.TxManager, deps.Locker,
			deps.Notifier, engine, deps.Dispatcher, kv,
		),
		Notification: service.NewNotificationService(repos.Notification, kv),
	}

	return engine, services, nil
}

// ProvideExpiryScheduler wires the permit expiry reminder to its gocron job.
func ProvideExpiryScheduler(cfg *config.Config, repos *RepositoryBundle, txManager port.TransactionManager, notifier port.NotificationSink, logger *zap.Logger) *worker.ExpiryScheduler {
	reminder := permit.NewReminder(
		repos.Permit, repos.Application, txManager, notifier,
		cfg.Permits.ReminderWindow, utils.NewKVLogger(logger),
	)

	return worker.NewExpiryScheduler(worker.ExpirySchedulerConfig{
		Cron:       cfg.Scheduler.Cron,
		Interval:   cfg.Scheduler.Interval,
		RunOnStart: cfg.Scheduler.RunOnStart,
		Location:   cfg.Location(),
	}, reminder, logger)
}

// ProvideHTTPServer builds the API server with rate limiting and metrics.
func ProvideHTTPServer(cfg *config.Config, services *ServiceBundle, m *metrics.Metrics, logger *zap.Logger) *httpserver.Server {
	opts := []httpserver.Option{
		httpserver.WithRateLimiter(httpserver.NewKeyedLimiter(
			cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL,
		)),
	}
	if m != nil {
		opts = append(opts, httpserver.WithMetrics(m))
	}

	return httpserver.NewServer(httpserver.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: withDefault(cfg.Server.ShutdownTimeout, 10*time.Second),
	}, httpserver.Services{
		Applications:  services.Application,
		Payments:      services.Payment,
		Permits:       services.Permit,
		Notifications: services.Notification,
	}, utils.NewKVLogger(logger), opts...)
}

func withDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
