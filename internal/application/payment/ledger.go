package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nasmusic-ai/permit-pro/internal/application/port"
	"github.com/nasmusic-ai/permit-pro/internal/application/workflow"
	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
	domainwf "github.com/nasmusic-ai/permit-pro/internal/domain/workflow"
)

// Ledger is the only writer of payment status and verification fields
type Ledger struct {
	payments port.PaymentRepository
	fees     FeeSchedule
}

// NewLedger creates a ledger charging the given fee schedule
func NewLedger(payments port.PaymentRepository, fees FeeSchedule) *Ledger {
	return &Ledger{
		payments: payments,
		fees:     fees,
	}
}

// Fees returns the configured fee schedule
func (l *Ledger) Fees() FeeSchedule {
	return l.fees
}

// Open implements workflow.PaymentLedger
func (l *Ledger) Open(ctx context.Context, app *entity.Application, in workflow.PaymentInput, now time.Time) (*entity.Payment, error) {
	if in.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", domainwf.ErrValidationFailed)
	}
	if !l.fees.IsEmpty() && !in.Amount.Equal(l.fees.Total()) {
		return nil, fmt.Errorf("%w: amount %s does not match the fee total %s",
			domainwf.ErrValidationFailed, in.Amount.StringFixed(2), l.fees.Total().StringFixed(2))
	}
	if !entity.IsValidPaymentMethod(in.Method) {
		return nil, fmt.Errorf("%w: unsupported payment method %q", domainwf.ErrValidationFailed, in.Method)
	}

	payment := &entity.Payment{
		ID:            uuid.NewString(),
		ApplicationID: app.ID,
		Amount:        in.Amount,
		FeeType:       entity.FeeTypeBusinessPermit,
		Method:        in.Method,
		TransactionID: in.TransactionID,
		Status:        entity.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := l.payments.Create(ctx, payment); err != nil {
		return nil, err
	}

	return payment, nil
}

// Settle implements workflow.PaymentLedger
func (l *Ledger) Settle(ctx context.Context, app *entity.Application, paymentID, verifierID string, now time.Time) (*entity.Payment, error) {
	var payment *entity.Payment
	var err error

	if paymentID == "" {
		payment, err = l.completedFor(ctx, app.ID)
		if err == nil && payment == nil {
			err = fmt.Errorf("%w: application %s has no completed payment", domainwf.ErrInvalidTransition, app.ID)
		}
	} else {
		payment, err = l.Get(ctx, paymentID)
		if err == nil && payment.ApplicationID != app.ID {
			err = fmt.Errorf("%w: payment %s does not belong to application %s", domainwf.ErrNotFound, paymentID, app.ID)
		}
	}
	if err != nil {
		return nil, err
	}

	if _, err := l.Verify(ctx, payment, verifierID, now); err != nil {
		return nil, err
	}
	return payment, nil
}

// Get loads a payment or returns ErrNotFound
func (l *Ledger) Get(ctx context.Context, paymentID string) (*entity.Payment, error) {
	payment, err := l.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: payment %s", domainwf.ErrNotFound, paymentID)
	}
	return payment, nil
}

// Verify records the verifier on a completed payment. It reports false when
// the payment was already verified, leaving the original verifier in place.
func (l *Ledger) Verify(ctx context.Context, payment *entity.Payment, verifierID string, now time.Time) (bool, error) {
	if payment.Status != entity.PaymentStatusCompleted {
		return false, fmt.Errorf("%w: payment %s is %s, not completed", domainwf.ErrInvalidTransition, payment.ID, payment.Status)
	}
	if payment.IsVerified() {
		return false, nil
	}

	payment.VerifiedBy = verifierID
	payment.VerifiedAt = &now
	payment.UpdatedAt = now

	if err := l.payments.Update(ctx, payment); err != nil {
		return false, err
	}
	return true, nil
}

// Confirm applies the gateway's terminal result to a payment. Repeating the
// same result is a no-op and reports false.
func (l *Ledger) Confirm(ctx context.Context, payment *entity.Payment, result, transactionID string, now time.Time) (bool, error) {
	if result != entity.PaymentStatusCompleted && result != entity.PaymentStatusFailed {
		return false, fmt.Errorf("%w: confirmation result must be completed or failed, got %q", domainwf.ErrValidationFailed, result)
	}

	if payment.Status == result {
		return false, nil
	}
	if payment.Status != entity.PaymentStatusPending && payment.Status != entity.PaymentStatusProcessing {
		return false, fmt.Errorf("%w: payment %s is already %s", domainwf.ErrInvalidTransition, payment.ID, payment.Status)
	}

	if result == entity.PaymentStatusCompleted {
		existing, err := l.completedFor(ctx, payment.ApplicationID)
		if err != nil {
			return false, err
		}
		if existing != nil && existing.ID != payment.ID {
			return false, fmt.Errorf("%w: application %s already has completed payment %s",
				domainwf.ErrInvalidTransition, payment.ApplicationID, existing.ID)
		}
		payment.PaidAt = &now
	}

	payment.Status = result
	if transactionID != "" {
		payment.TransactionID = transactionID
	}
	payment.UpdatedAt = now

	if err := l.payments.Update(ctx, payment); err != nil {
		return false, err
	}
	return true, nil
}

// completedFor returns the application's completed payment, or nil
func (l *Ledger) completedFor(ctx context.Context, applicationID string) (*entity.Payment, error) {
	payments, err := l.payments.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		if p.Status == entity.PaymentStatusCompleted {
			return p, nil
		}
	}
	return nil, nil
}

var _ workflow.PaymentLedger = (*Ledger)(nil)
