package permit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nasmusic-ai/permit-pro/internal/application/port"
	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Reminder warns permit holders ahead of expiry, once per permit
type Reminder struct {
	permits      port.PermitRepository
	applications port.ApplicationRepository
	txManager    port.TransactionManager
	notifier     port.NotificationSink
	window       time.Duration
	logger       Logger
}

// NewReminder creates an expiry reminder looking window ahead
func NewReminder(
	permits port.PermitRepository,
	applications port.ApplicationRepository,
	txManager port.TransactionManager,
	notifier port.NotificationSink,
	window time.Duration,
	logger Logger,
) *Reminder {
	return &Reminder{
		permits:      permits,
		applications: applications,
		txManager:    txManager,
		notifier:     notifier,
		window:       window,
		logger:       logger,
	}
}

// Run sends reminders for active permits expiring in [now, now+window).
// It returns how many reminders were queued.
func (r *Reminder) Run(ctx context.Context, now time.Time) (int, error) {
	due, err := r.permits.ListExpiringBetween(ctx, now, now.Add(r.window))
	if err != nil {
		return 0, fmt.Errorf("failed to list expiring permits: %w", err)
	}

	sent := 0
	for _, p := range due {
		queued, err := r.remind(ctx, p, now)
		if err != nil {
			r.logger.Error("Failed to send expiry reminder",
				"permit_id", p.ID,
				"permit_number", p.PermitNumber,
				"error", err,
			)
			continue
		}
		if queued {
			sent++
		}
	}

	if sent > 0 {
		r.logger.Info("Permit expiry reminders queued", "count", sent)
	}
	return sent, nil
}

// remind stamps the permit and queues its warning. A permit revoked or reminded
// since it was listed is skipped and reports false.
func (r *Reminder) remind(ctx context.Context, p *entity.Permit, now time.Time) (bool, error) {
	queued := false
	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		app, err := r.applications.GetByID(txCtx, p.ApplicationID)
		if err != nil {
			return err
		}
		if app == nil {
			return fmt.Errorf("application %s not found", p.ApplicationID)
		}

		marked, err := r.permits.MarkReminded(txCtx, p.ID, now)
		if err != nil {
			return err
		}
		if !marked {
			return nil
		}

		days := int(p.ExpiryDate.Sub(now).Hours() / 24)
		notification := &entity.Notification{
			ID:     uuid.NewString(),
			UserID: app.ApplicantID,
			Title:  "Permit Expiring Soon",
			Message: fmt.Sprintf("Your business permit %s expires on %s (%d days). Please renew before it lapses.",
				p.PermitNumber, p.ExpiryDate.Format("January 2, 2006"), days),
			Severity:    entity.SeverityWarning,
			RelatedKind: entity.RelatedPermit,
			RelatedID:   p.ID,
			CreatedAt:   now,
		}

		r.txManager.AfterCommit(txCtx, func() {
			r.notifier.Enqueue(context.WithoutCancel(ctx), notification)
		})
		queued = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return queued, nil
}
