package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nasmusic-ai/permit-pro/internal/application/dispatcher"
	"github.com/nasmusic-ai/permit-pro/internal/application/port"
	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
	"github.com/nasmusic-ai/permit-pro/internal/domain/event"
)

// NotificationWorkerConfig holds configuration for the notification worker
type NotificationWorkerConfig struct {
	QueueSize    int
	WriteTimeout time.Duration
}

// DefaultNotificationWorkerConfig returns default configuration
func DefaultNotificationWorkerConfig() NotificationWorkerConfig {
	return NotificationWorkerConfig{
		QueueSize:    256,
		WriteTimeout: 5 * time.Second,
	}
}

// NotificationWorker is the queued NotificationSink. Enqueue never blocks;
// a background loop persists each notification to the inbox.
type NotificationWorker struct {
	config        NotificationWorkerConfig
	notifications port.NotificationRepository
	dispatcher    dispatcher.Dispatcher
	logger        *zap.Logger

	queue chan *entity.Notification

	mu        sync.RWMutex
	isRunning bool
	stopped   bool
	cancel    context.CancelFunc
	done      chan struct{}

	delivered atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(
	config NotificationWorkerConfig,
	notifications port.NotificationRepository,
	d dispatcher.Dispatcher,
	logger *zap.Logger,
) *NotificationWorker {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultNotificationWorkerConfig().QueueSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultNotificationWorkerConfig().WriteTimeout
	}

	return &NotificationWorker{
		config:        config,
		notifications: notifications,
		dispatcher:    d,
		logger:        logger,
		queue:         make(chan *entity.Notification, config.QueueSize),
	}
}

// Enqueue implements port.NotificationSink. A full queue or a stopped worker
// drops the notification and logs it.
func (w *NotificationWorker) Enqueue(ctx context.Context, n *entity.Notification) {
	if n == nil {
		return
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		w.drop(n, "worker stopped")
		return
	}

	select {
	case w.queue <- n:
	default:
		w.drop(n, "queue full")
	}
}

// Start begins persisting queued notifications
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("notification worker already running")
	}
	if w.stopped {
		return fmt.Errorf("notification worker was stopped")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("NotificationWorker started", zap.Int("queue_size", w.config.QueueSize))

	go w.loop(runCtx, w.done)
	return nil
}

// Stop refuses new notifications, writes what is already queued and returns
func (w *NotificationWorker) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	running := w.isRunning
	w.isRunning = false
	w.mu.Unlock()

	if running {
		w.cancel()
		<-w.done
	} else {
		w.drain()
	}

	w.logger.Info("NotificationWorker stopped",
		zap.Int64("delivered", w.delivered.Load()),
		zap.Int64("dropped", w.dropped.Load()),
		zap.Int64("failed", w.failed.Load()))
	return nil
}

// Name returns the worker name for identification
func (w *NotificationWorker) Name() string {
	return "NotificationWorker"
}

// QueueDepth reports how many notifications are waiting
func (w *NotificationWorker) QueueDepth() int {
	return len(w.queue)
}

// Stats returns delivered, dropped and failed counts
func (w *NotificationWorker) Stats() (delivered, dropped, failed int64) {
	return w.delivered.Load(), w.dropped.Load(), w.failed.Load()
}

func (w *NotificationWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case n := <-w.queue:
			w.persist(n)
		}
	}
}

// drain writes everything still queued
func (w *NotificationWorker) drain() {
	for {
		select {
		case n := <-w.queue:
			w.persist(n)
		default:
			return
		}
	}
}

func (w *NotificationWorker) persist(n *entity.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), w.config.WriteTimeout)
	defer cancel()

	if err := w.notifications.Create(ctx, n); err != nil {
		w.failed.Add(1)
		w.logger.Error("Failed to store notification",
			zap.String("notification_id", n.ID),
			zap.String("user_id", n.UserID),
			zap.String("title", n.Title),
			zap.Error(err))
		return
	}
	w.delivered.Add(1)

	if w.dispatcher != nil {
		w.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeNotificationQueued, n.RelatedID, map[string]interface{}{
			"notification_id": n.ID,
			"user_id":         n.UserID,
			"severity":        n.Severity,
		}))
	}
}

func (w *NotificationWorker) drop(n *entity.Notification, reason string) {
	w.dropped.Add(1)
	w.logger.Error("Dropping notification",
		zap.String("reason", reason),
		zap.String("notification_id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("title", n.Title))
}

var _ port.NotificationSink = (*NotificationWorker)(nil)
var _ Worker = (*NotificationWorker)(nil)
