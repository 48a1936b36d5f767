package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nasmusic-ai/permit-pro/internal/application/port"
	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
)

const paymentColumns = `
	id, application_id, amount, fee_type, method, transaction_id, status,
	paid_at, verified_by, verified_at, notes, created_at, updated_at`

// PaymentRepository implements port.PaymentRepository
type PaymentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *sql.DB, logger *zap.Logger) port.PaymentRepository {
	return &PaymentRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new payment. Amounts are stored as exact decimal text.
func (r *PaymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	query := `INSERT INTO payments (` + paymentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		payment.ID,
		payment.ApplicationID,
		payment.Amount.String(),
		payment.FeeType,
		payment.Method,
		payment.TransactionID,
		payment.Status,
		utcPtr(payment.PaidAt),
		payment.VerifiedBy,
		utcPtr(payment.VerifiedAt),
		payment.Notes,
		payment.CreatedAt.UTC(),
		payment.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create payment",
			zap.String("id", payment.ID),
			zap.String("application_id", payment.ApplicationID),
			zap.Error(err))
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// GetByID retrieves a payment by ID
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`

	payment, err := scanPayment(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get payment by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return payment, nil
}

// Update writes the mutable payment fields
func (r *PaymentRepository) Update(ctx context.Context, payment *entity.Payment) error {
	query := `
		UPDATE payments SET
			transaction_id = ?, status = ?, paid_at = ?, verified_by = ?,
			verified_at = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		payment.TransactionID,
		payment.Status,
		utcPtr(payment.PaidAt),
		payment.VerifiedBy,
		utcPtr(payment.VerifiedAt),
		payment.Notes,
		payment.UpdatedAt.UTC(),
		payment.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update payment", zap.String("id", payment.ID), zap.Error(err))
		return fmt.Errorf("failed to update payment: %w", err)
	}

	return nil
}

// ListByApplication returns every payment attempt for an application, oldest first
func (r *PaymentRepository) ListByApplication(ctx context.Context, applicationID string) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments WHERE application_id = ?
		ORDER BY created_at ASC, id ASC`

	return r.list(ctx, query, applicationID)
}

// ListByStatus returns payments with the given status, oldest first
func (r *PaymentRepository) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments WHERE status = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?`

	return r.list(ctx, query, status, limit, offset)
}

// ListCreatedBetween returns payments created in [from, to)
func (r *PaymentRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, id ASC`

	return r.list(ctx, query, from.UTC(), to.UTC())
}

// SumCompleted totals completed payments in exact decimal arithmetic
func (r *PaymentRepository) SumCompleted(ctx context.Context) (decimal.Decimal, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx,
		`SELECT amount FROM payments WHERE status = ?`, entity.PaymentStatusCompleted)
	if err != nil {
		r.logger.Error("Failed to sum payments", zap.Error(err))
		return decimal.Zero, fmt.Errorf("failed to sum payments: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan amount: %w", err)
		}
		total = total.Add(amount)
	}

	return total, rows.Err()
}

func (r *PaymentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Payment, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list payments", zap.Error(err))
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*entity.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}

	return payments, rows.Err()
}

func (r *PaymentRepository) getExecutor(ctx context.Context) executor {
	return executorFor(ctx, r.db)
}

func scanPayment(row scanner) (*entity.Payment, error) {
	var payment entity.Payment
	var paidAt, verifiedAt sql.NullTime

	err := row.Scan(
		&payment.ID,
		&payment.ApplicationID,
		&payment.Amount,
		&payment.FeeType,
		&payment.Method,
		&payment.TransactionID,
		&payment.Status,
		&paidAt,
		&payment.VerifiedBy,
		&verifiedAt,
		&payment.Notes,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	payment.PaidAt = timePtr(paidAt)
	payment.VerifiedAt = timePtr(verifiedAt)

	return &payment, nil
}

var _ port.PaymentRepository = (*PaymentRepository)(nil)
