package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nasmusic-ai/permit-pro/internal/application/dispatcher"
	"github.com/nasmusic-ai/permit-pro/internal/application/payment"
	"github.com/nasmusic-ai/permit-pro/internal/application/port"
	"github.com/nasmusic-ai/permit-pro/internal/application/workflow"
	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
	"github.com/nasmusic-ai/permit-pro/internal/domain/event"
	domainwf "github.com/nasmusic-ai/permit-pro/internal/domain/workflow"
)

// LedgerWriter renders payments as a downloadable ledger
type LedgerWriter interface {
	WriteLedger(w io.Writer, from, to time.Time, payments []*entity.Payment) error
}

// PaymentService handles fee collection for applications
type PaymentService interface {
	RecordPayment(ctx context.Context, applicationID string, actor workflow.Actor, in workflow.PaymentInput) (*entity.Payment, error)
	ConfirmPayment(ctx context.Context, paymentID string, actor workflow.Actor, result, transactionID string) (*entity.Payment, error)
	VerifyPayment(ctx context.Context, paymentID string, actor workflow.Actor) (*entity.Payment, error)
	ListForApplication(ctx context.Context, applicationID string, actor workflow.Actor) ([]*entity.Payment, error)
	ListByStatus(ctx context.Context, actor workflow.Actor, status string, limit, offset int) ([]*entity.Payment, error)
	Fees() payment.FeeSchedule
	ExportLedger(ctx context.Context, actor workflow.Actor, from, to time.Time, w io.Writer) error
}

type paymentServiceImpl struct {
	applications port.ApplicationRepository
	payments     port.PaymentRepository
	ledger       *payment.Ledger
	txManager    port.TransactionManager
	locker       port.Locker
	engine       workflow.Engine
	writer       LedgerWriter
	dispatcher   dispatcher.Dispatcher
	logger       Logger
	now          func() time.Time
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	applications port.ApplicationRepository,
	payments port.PaymentRepository,
	ledger *payment.Ledger,
	txManager port.TransactionManager,
	locker port.Locker,
	engine workflow.Engine,
	writer LedgerWriter,
	d dispatcher.Dispatcher,
	logger Logger,
) PaymentService {
	return &paymentServiceImpl{
		applications: applications,
		payments:     payments,
		ledger:       ledger,
		txManager:    txManager,
		locker:       locker,
		engine:       engine,
		writer:       writer,
		dispatcher:   d,
		logger:       logger,
		now:          utcNow,
	}
}

// RecordPayment opens a pending payment through the record_payment transition
func (s *paymentServiceImpl) RecordPayment(ctx context.Context, applicationID string, actor workflow.Actor, in workflow.PaymentInput) (*entity.Payment, error) {
	out, err := s.engine.Execute(ctx, workflow.Command{
		ApplicationID: applicationID,
		Action:        domainwf.ActionRecordPayment,
		Actor:         actor,
		Payment:       &in,
	})
	if err != nil {
		return nil, err
	}
	return out.Payment, nil
}

// ConfirmPayment applies the gateway's terminal result. Only the system actor
// relaying the gateway callback may call it.
func (s *paymentServiceImpl) ConfirmPayment(ctx context.Context, paymentID string, actor workflow.Actor, result, transactionID string) (*entity.Payment, error) {
	if err := requireRole(actor, "confirm payments", domainwf.RoleSystem); err != nil {
		return nil, err
	}

	var confirmed *entity.Payment
	err := s.withPaymentLock(ctx, paymentID, func(txCtx context.Context, p *entity.Payment) error {
		changed, err := s.ledger.Confirm(txCtx, p, result, transactionID, s.now())
		if err != nil {
			return err
		}
		confirmed = p
		if !changed {
			return nil
		}

		s.txManager.AfterCommit(txCtx, func() {
			s.logger.Info("Payment confirmed",
				"payment_id", p.ID,
				"application_id", p.ApplicationID,
				"status", p.Status,
				"transaction_id", p.TransactionID,
			)
			s.publish(txCtx, event.TypePaymentConfirmed, p.ApplicationID, map[string]interface{}{
				"payment_id": p.ID,
				"status":     p.Status,
			})
		})
		return nil
	})
	if err != nil {
		return nil, wrapInternal("confirm payment", err)
	}

	return confirmed, nil
}

// VerifyPayment records the treasurer's verification. When the application is
// waiting on payment it moves to payment_verified in the same transaction;
// otherwise only the payment is marked. Repeat calls change nothing.
func (s *paymentServiceImpl) VerifyPayment(ctx context.Context, paymentID string, actor workflow.Actor) (*entity.Payment, error) {
	if err := s.engine.Table().Authorize(domainwf.ActionVerifyPayment, actor.Role); err != nil {
		return nil, err
	}

	var verified *entity.Payment
	err := s.withPaymentLock(ctx, paymentID, func(txCtx context.Context, p *entity.Payment) error {
		changed, err := s.ledger.Verify(txCtx, p, actor.ID, s.now())
		if err != nil {
			return err
		}
		verified = p
		if !changed {
			return nil
		}

		app, err := s.applications.GetByID(txCtx, p.ApplicationID)
		if err != nil {
			return fmt.Errorf("get application: %w", err)
		}
		if app != nil && app.Status == domainwf.StatePendingPayment {
			if _, err := s.engine.Execute(txCtx, workflow.Command{
				ApplicationID: app.ID,
				Action:        domainwf.ActionVerifyPayment,
				Actor:         actor,
				PaymentID:     p.ID,
			}); err != nil {
				return err
			}
		}

		s.txManager.AfterCommit(txCtx, func() {
			s.logger.Info("Payment verified",
				"payment_id", p.ID,
				"application_id", p.ApplicationID,
				"verified_by", actor.ID,
			)
			s.publish(txCtx, event.TypePaymentVerified, p.ApplicationID, map[string]interface{}{
				"payment_id":  p.ID,
				"verified_by": actor.ID,
				"amount":      p.Amount.String(),
			})
		})
		return nil
	})
	if err != nil {
		return nil, wrapInternal("verify payment", err)
	}

	return verified, nil
}

// ListForApplication returns an application's payments, oldest first
func (s *paymentServiceImpl) ListForApplication(ctx context.Context, applicationID string, actor workflow.Actor) ([]*entity.Payment, error) {
	app, err := s.applications.GetByID(ctx, applicationID)
	if err != nil {
		return nil, wrapInternal("get application", err)
	}
	if app == nil {
		return nil, fmt.Errorf("%w: application %s", domainwf.ErrNotFound, applicationID)
	}
	if err := canView(app, actor); err != nil {
		return nil, err
	}

	payments, err := s.payments.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, wrapInternal("list payments", err)
	}
	return payments, nil
}

// ListByStatus is the treasury queue
func (s *paymentServiceImpl) ListByStatus(ctx context.Context, actor workflow.Actor, status string, limit, offset int) ([]*entity.Payment, error) {
	if err := requireRole(actor, "browse payments", domainwf.RoleTreasurer, domainwf.RoleAdmin); err != nil {
		return nil, err
	}
	limit, offset = page(limit, offset)

	payments, err := s.payments.ListByStatus(ctx, status, limit, offset)
	if err != nil {
		return nil, wrapInternal("list payments", err)
	}
	return payments, nil
}

// Fees returns the fee schedule applicants are charged
func (s *paymentServiceImpl) Fees() payment.FeeSchedule {
	return s.ledger.Fees()
}

// ExportLedger writes every payment created in [from, to)
func (s *paymentServiceImpl) ExportLedger(ctx context.Context, actor workflow.Actor, from, to time.Time, w io.Writer) error {
	if err := requireRole(actor, "export the payment ledger", domainwf.RoleTreasurer, domainwf.RoleAdmin); err != nil {
		return err
	}
	if !from.Before(to) {
		return fmt.Errorf("%w: ledger period start must be before its end", domainwf.ErrValidationFailed)
	}

	payments, err := s.payments.ListCreatedBetween(ctx, from, to)
	if err != nil {
		return wrapInternal("list payments", err)
	}

	if err := s.writer.WriteLedger(w, from, to, payments); err != nil {
		s.logger.Error("Failed to write payment ledger", "error", err)
		return wrapInternal("write ledger", err)
	}

	total := decimal.Zero
	for _, p := range payments {
		if p.Status == entity.PaymentStatusCompleted {
			total = total.Add(p.Amount)
		}
	}
	s.logger.Info("Payment ledger exported",
		"actor_id", actor.ID,
		"payments", len(payments),
		"collected", total.StringFixed(2),
	)
	return nil
}

// withPaymentLock runs fn in a transaction holding the lock of the payment's application
func (s *paymentServiceImpl) withPaymentLock(ctx context.Context, paymentID string, fn func(ctx context.Context, p *entity.Payment) error) error {
	p, err := s.ledger.Get(ctx, paymentID)
	if err != nil {
		return err
	}

	lockCtx, unlock, err := s.locker.Lock(ctx, workflow.LockKey(p.ApplicationID))
	if err != nil {
		return fmt.Errorf("acquire application lock: %w", err)
	}
	defer unlock()

	return s.txManager.WithTransaction(lockCtx, func(txCtx context.Context) error {
		// reload under the lock
		current, err := s.ledger.Get(txCtx, paymentID)
		if err != nil {
			return err
		}
		return fn(txCtx, current)
	})
}

func (s *paymentServiceImpl) publish(ctx context.Context, t event.Type, applicationID string, payload map[string]interface{}) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(background(ctx), event.NewEvent(t, applicationID, payload))
}
