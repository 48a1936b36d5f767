package workflow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
	domainwf "github.com/nasmusic-ai/permit-pro/internal/domain/workflow"
)

// Engine applies status transitions to applications
type Engine interface {
	// ApplyTransition runs one action against an application and returns the updated record
	ApplyTransition(ctx context.Context, cmd Command) (*entity.Application, error)

	// Execute is ApplyTransition that also returns what the action's hand-off produced
	Execute(ctx context.Context, cmd Command) (*Outcome, error)

	// PermittedActions lists what the actor may do to the application right now
	PermittedActions(ctx context.Context, applicationID string, actor Actor) ([]domainwf.Action, error)

	// Table exposes the transition rules
	Table() *domainwf.Table
}

// Actor is the resolved caller identity
type Actor struct {
	ID   string
	Role domainwf.Role
}

// PaymentInput carries record_payment details
type PaymentInput struct {
	Amount        decimal.Decimal
	Method        string
	TransactionID string
}

// Command is one request to move an application
type Command struct {
	ApplicationID string
	Action        domainwf.Action
	Actor         Actor
	Notes         string

	// Payment is required for record_payment
	Payment *PaymentInput

	// PaymentID selects the payment settled by verify_payment. Empty picks the completed one.
	PaymentID string
}

// Outcome is the committed result of a transition
type Outcome struct {
	Application    *entity.Application
	PreviousStatus domainwf.State
	Payment        *entity.Payment
	Permit         *entity.Permit
	Notification   *entity.Notification
}

// PaymentLedger performs the payment side of a transition inside its transaction
type PaymentLedger interface {
	// Open creates a pending payment for the application
	Open(ctx context.Context, app *entity.Application, in PaymentInput, now time.Time) (*entity.Payment, error)

	// Settle checks that the payment is completed and records the verifier once
	Settle(ctx context.Context, app *entity.Application, paymentID, verifierID string, now time.Time) (*entity.Payment, error)
}

// PermitIssuer generates the permit for an application inside the transition's transaction
type PermitIssuer interface {
	Issue(ctx context.Context, app *entity.Application, now time.Time) (*entity.Permit, error)
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// LockKey is the per-application serialization key shared by every writer
func LockKey(applicationID string) string {
	return "application:" + applicationID
}
