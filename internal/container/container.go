// Package container provides dependency injection and lifecycle management
// for the permit workflow service.
package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nasmusic-ai/permit-pro/internal/application/dispatcher"
	"github.com/nasmusic-ai/permit-pro/internal/application/port"
	"github.com/nasmusic-ai/permit-pro/internal/application/workflow"
	"github.com/nasmusic-ai/permit-pro/internal/config"
	"github.com/nasmusic-ai/permit-pro/internal/infrastructure/metrics"
	"github.com/nasmusic-ai/permit-pro/internal/infrastructure/persistence/sqlite"
	"github.com/nasmusic-ai/permit-pro/internal/infrastructure/worker"
	httpserver "github.com/nasmusic-ai/permit-pro/internal/interfaces/http"
	"github.com/nasmusic-ai/permit-pro/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and are torn down in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure - Data
	rawDB        *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - Coordination
	locker      port.Locker
	closeLocker func() error
	metrics     *metrics.Metrics

	// Application
	dispatcher dispatcher.Dispatcher
	engine     workflow.Engine
	services   *ServiceBundle

	// Workers
	notifier *worker.NotificationWorker
	workers  *worker.WorkerManager

	// Interfaces
	server *httpserver.Server

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Locker and metrics
// 3. Event dispatcher and notification worker
// 4. Workflow engine and application services
// 5. Workers
// 6. HTTP server (not listening until Server().Start)
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	steps := []struct {
		name string
		fn   func() error
	}{
		{"database", c.initDatabase},
		{"coordination", c.initCoordination},
		{"dispatcher", c.initDispatcherAndNotifier},
		{"services", c.initServices},
		{"workers", c.initWorkers},
		{"http server", c.initServer},
	}

	for _, step := range steps {
		if err := step.fn(); err != nil {
			c.teardown()
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Info("Component initialized", zap.String("component", step.name))
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	err := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases whatever has been initialized so far, newest first.
func (c *Container) teardown() error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.server != nil {
		if err := c.server.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop http server: %w", err))
		}
	}

	// Workers stop after the server so in-flight requests can still enqueue.
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	if c.closeLocker != nil {
		if err := c.closeLocker(); err != nil {
			errs = append(errs, fmt.Errorf("close locker: %w", err))
		}
	}

	if c.rawDB != nil {
		if err := c.rawDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.server, c.workers, c.dispatcher, c.closeLocker, c.rawDB = nil, nil, nil, nil, nil
	return errors.Join(errs...)
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, h ComponentHealth) {
		status.Components[name] = h
		if !h.Healthy {
			status.Overall = false
		}
	}

	// Check database
	switch {
	case c.rawDB == nil:
		set("database", ComponentHealth{Message: "not initialized"})
	default:
		if err := c.rawDB.Ping(); err != nil {
			set("database", ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("database", ComponentHealth{Healthy: true})
		}
	}

	// Check workers
	if c.workers != nil {
		set("workers", ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()),
		})
	} else {
		set("workers", ComponentHealth{Message: "not initialized"})
	}

	if c.notifier != nil {
		delivered, dropped, failed := c.notifier.Stats()
		set("notifications", ComponentHealth{
			Healthy: true,
			Message: fmt.Sprintf("queued: %d, delivered: %d, dropped: %d, failed: %d",
				c.notifier.QueueDepth(), delivered, dropped, failed),
		})
	}

	if c.dispatcher != nil {
		set("dispatcher", ComponentHealth{Healthy: true})
	} else {
		set("dispatcher", ComponentHealth{Message: "not initialized"})
	}

	return status
}

func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.rawDB = bundle.Raw
	c.db = bundle.TransactionMgr

	repos, err := ProvideRepositories(c.rawDB, c.logger)
	if err != nil {
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initCoordination() error {
	locker, closeLocker, err := ProvideLocker(c.config, c.logger)
	if err != nil {
		return err
	}
	c.locker = locker
	c.closeLocker = closeLocker
	c.metrics = metrics.New()
	return nil
}

func (c *Container) initDispatcherAndNotifier() error {
	c.dispatcher = ProvideDispatcher(c.metrics, c.logger)

	c.notifier = worker.NewNotificationWorker(worker.NotificationWorkerConfig{
		QueueSize:    c.config.Notifications.QueueSize,
		WriteTimeout: c.config.Notifications.WriteTimeout,
	}, c.repositories.Notification, c.dispatcher, c.logger)

	return c.metrics.RegisterQueueDepth("notifications", c.notifier.QueueDepth)
}

func (c *Container) initServices() error {
	fees, err := ProvideFeeSchedule(c.config.Fees)
	if err != nil {
		return err
	}

	engine, services, err := ProvideEngineAndServices(&CoreDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Locker:     c.locker,
		Notifier:   c.notifier,
		Dispatcher: c.dispatcher,
		Fees:       fees,
		OfficeName: c.config.Permits.OfficeName,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}

	c.engine = engine
	c.services = services
	return nil
}

func (c *Container) initWorkers() error {
	c.workers = worker.NewWorkerManager(c.logger)
	c.workers.Register(c.notifier)

	if c.config.Scheduler.Enabled {
		c.workers.Register(ProvideExpiryScheduler(c.config, c.repositories, c.db, c.notifier, c.logger))
	}

	return c.workers.StartAll(c.ctx)
}

func (c *Container) initServer() error {
	c.server = ProvideHTTPServer(c.config, c.services, c.metrics, c.logger)
	return nil
}

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns the repository bundle.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Engine returns the workflow engine.
func (c *Container) Engine() workflow.Engine {
	return c.engine
}

// Services returns the application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Server returns the HTTP server.
func (c *Container) Server() *httpserver.Server {
	return c.server
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the container logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container configuration.
func (c *Container) Config() *config.Config {
	return c.config
}
