package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment represents one fee-collection attempt for an application
type Payment struct {
	ID            string          `json:"id"`
	ApplicationID string          `json:"application_id"`
	Amount        decimal.Decimal `json:"amount"`
	FeeType       string          `json:"fee_type"`
	Method        string          `json:"method"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Status        string          `json:"status"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	VerifiedBy    string          `json:"verified_by,omitempty"`
	VerifiedAt    *time.Time      `json:"verified_at,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsVerified reports whether a treasurer has verified the payment
func (p *Payment) IsVerified() bool {
	return p.VerifiedAt != nil
}

// IsSettled reports whether the gateway has delivered a terminal result
func (p *Payment) IsSettled() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusFailed || p.Status == PaymentStatusRefunded
}
