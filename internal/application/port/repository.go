package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
	"github.com/nasmusic-ai/permit-pro/internal/domain/workflow"
)

// Getters return (nil, nil) when the record does not exist.

// ApplicationRepository defines persistence operations for Application
type ApplicationRepository interface {
	Create(ctx context.Context, app *entity.Application) error
	GetByID(ctx context.Context, id string) (*entity.Application, error)

	// UpdateIfStatus writes every mutable field only when the stored status still
	// equals expected. It reports false when another writer got there first.
	UpdateIfStatus(ctx context.Context, app *entity.Application, expected workflow.State) (bool, error)

	ListByApplicant(ctx context.Context, applicantID string, limit, offset int) ([]*entity.Application, error)
	ListByStatus(ctx context.Context, statuses []workflow.State, limit, offset int) ([]*entity.Application, error)
	CountByStatus(ctx context.Context) (map[workflow.State]int, error)
}

// PaymentRepository defines persistence operations for Payment
type PaymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	GetByID(ctx context.Context, id string) (*entity.Payment, error)
	Update(ctx context.Context, payment *entity.Payment) error
	ListByApplication(ctx context.Context, applicationID string) ([]*entity.Payment, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]*entity.Payment, error)
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*entity.Payment, error)

	// SumCompleted totals every completed payment
	SumCompleted(ctx context.Context) (decimal.Decimal, error)
}

// PermitRepository defines persistence operations for Permit
type PermitRepository interface {
	Create(ctx context.Context, permit *entity.Permit) error
	GetByID(ctx context.Context, id string) (*entity.Permit, error)
	GetByApplicationID(ctx context.Context, applicationID string) (*entity.Permit, error)
	GetByNumber(ctx context.Context, permitNumber string) (*entity.Permit, error)
	Update(ctx context.Context, permit *entity.Permit) error

	// MarkReminded stamps reminder_sent_at only while the permit is active and not yet reminded.
	// It reports whether the row changed.
	MarkReminded(ctx context.Context, id string, at time.Time) (bool, error)

	// ListExpiringBetween returns active permits without a reminder whose expiry falls in [from, to)
	ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*entity.Permit, error)
}

// NotificationRepository defines persistence operations for Notification
type NotificationRepository interface {
	Create(ctx context.Context, notification *entity.Notification) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*entity.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// HistoryRepository defines persistence operations for StatusHistory
type HistoryRepository interface {
	Create(ctx context.Context, history *entity.StatusHistory) error
	GetByApplicationID(ctx context.Context, applicationID string) ([]*entity.StatusHistory, error)
}

// SequenceAllocator hands out strictly increasing numbers per sequence name
type SequenceAllocator interface {
	Next(ctx context.Context, name string) (int64, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	// WithTransaction runs fn in a transaction carried by the context.
	// Nested calls join the outer transaction.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// AfterCommit schedules fn to run once the outermost transaction commits.
	// Outside a transaction fn runs immediately. Rolled back work never runs fn.
	AfterCommit(ctx context.Context, fn func())
}
