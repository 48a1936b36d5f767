package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nasmusic-ai/permit-pro/internal/application/dispatcher"
	"github.com/nasmusic-ai/permit-pro/internal/application/port"
	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
	"github.com/nasmusic-ai/permit-pro/internal/domain/event"
	domainwf "github.com/nasmusic-ai/permit-pro/internal/domain/workflow"
)

// Dependencies are the collaborators every engine needs
type Dependencies struct {
	Applications port.ApplicationRepository
	History      port.HistoryRepository
	TxManager    port.TransactionManager
	Locker       port.Locker
	Notifier     port.NotificationSink
	Ledger       PaymentLedger
	Issuer       PermitIssuer
}

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	Dependencies

	table      *domainwf.Table
	dispatcher dispatcher.Dispatcher
	logger     Logger
	now        func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithTable replaces the business permit table
func WithTable(t *domainwf.Table) EngineOption {
	return func(e *engineImpl) {
		e.table = t
	}
}

// NewEngine creates a new workflow engine
func NewEngine(deps Dependencies, opts ...EngineOption) Engine {
	e := &engineImpl{
		Dependencies: deps,
		table:        domainwf.PermitTable(),
		now:          func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *engineImpl) Table() *domainwf.Table {
	return e.table
}

// ApplyTransition implements Engine
func (e *engineImpl) ApplyTransition(ctx context.Context, cmd Command) (*entity.Application, error) {
	out, err := e.Execute(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return out.Application, nil
}

// Execute implements Engine. The whole transition happens under the
// application's lock in one transaction; nothing is written on failure.
func (e *engineImpl) Execute(ctx context.Context, cmd Command) (*Outcome, error) {
	if !cmd.Action.IsValid() {
		return nil, fmt.Errorf("%w: unknown action %q", domainwf.ErrInvalidTransition, cmd.Action)
	}
	if cmd.ApplicationID == "" {
		return nil, fmt.Errorf("%w: application id is required", domainwf.ErrNotFound)
	}

	lockCtx, unlock, err := e.Locker.Lock(ctx, LockKey(cmd.ApplicationID))
	if err != nil {
		return nil, internalError("acquire application lock", err)
	}
	defer unlock()

	var out *Outcome
	err = e.TxManager.WithTransaction(lockCtx, func(txCtx context.Context) error {
		var err error
		out, err = e.apply(txCtx, cmd)
		return err
	})
	if err != nil {
		if e.logger != nil && !domainwf.IsKnown(err) {
			e.logger.Error("Transition failed",
				"application_id", cmd.ApplicationID,
				"action", cmd.Action,
				"error", err,
			)
		}
		return nil, internalError("commit transition", err)
	}

	return out, nil
}

func (e *engineImpl) apply(ctx context.Context, cmd Command) (*Outcome, error) {
	current, err := e.Applications.GetByID(ctx, cmd.ApplicationID)
	if err != nil {
		return nil, internalError("load application", err)
	}
	if current == nil {
		return nil, fmt.Errorf("%w: application %s", domainwf.ErrNotFound, cmd.ApplicationID)
	}

	target, err := e.table.Evaluate(domainwf.Input{
		Status:    current.Status,
		Action:    cmd.Action,
		Role:      cmd.Actor.Role,
		IsOwner:   current.IsOwnedBy(cmd.Actor.ID),
		FeeExempt: current.FeeExempt,
	})
	if err != nil {
		return nil, err
	}

	if cmd.Action == domainwf.ActionSubmit {
		if err := current.ValidateForSubmission(); err != nil {
			return nil, err
		}
	}

	now := e.now()
	next := current.Clone()
	stamp(next, cmd, now)

	out := &Outcome{PreviousStatus: current.Status}
	notice := domainwf.NoticeData{ReferenceNumber: next.ReferenceNumber, Notes: cmd.Notes}

	switch cmd.Action {
	case domainwf.ActionRecordPayment:
		if cmd.Payment == nil {
			return nil, fmt.Errorf("%w: payment details are required", domainwf.ErrValidationFailed)
		}
		out.Payment, err = e.Ledger.Open(ctx, next, *cmd.Payment, now)
		if err != nil {
			return nil, internalError("open payment", err)
		}

	case domainwf.ActionVerifyPayment:
		out.Payment, err = e.Ledger.Settle(ctx, next, cmd.PaymentID, cmd.Actor.ID, now)
		if err != nil {
			return nil, internalError("settle payment", err)
		}
		notice.Amount = out.Payment.Amount.StringFixed(2)

	case domainwf.ActionIssuePermit:
		out.Permit, err = e.Issuer.Issue(ctx, next, now)
		if err != nil {
			return nil, internalError("issue permit", err)
		}
		next.PermitID = out.Permit.ID
	}

	next.Status = target
	next.UpdatedAt = now

	ok, err := e.Applications.UpdateIfStatus(ctx, next, current.Status)
	if err != nil {
		return nil, internalError("update application", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: application %s is no longer %s", domainwf.ErrInvalidTransition, next.ID, current.Status)
	}

	history := &entity.StatusHistory{
		ApplicationID:  next.ID,
		PreviousStatus: current.Status.String(),
		NewStatus:      target.String(),
		Action:         cmd.Action.String(),
		ActorID:        cmd.Actor.ID,
		ActorRole:      cmd.Actor.Role.String(),
		Notes:          cmd.Notes,
		CreatedAt:      now,
	}
	if err := e.History.Create(ctx, history); err != nil {
		return nil, internalError("record history", err)
	}

	if tmpl, ok := domainwf.NoticeFor(cmd.Action); ok {
		relatedKind, relatedID := entity.RelatedApplication, next.ID
		if cmd.Action == domainwf.ActionVerifyPayment && out.Payment != nil {
			relatedKind, relatedID = entity.RelatedPayment, out.Payment.ID
		}
		out.Notification = &entity.Notification{
			ID:          uuid.NewString(),
			UserID:      next.ApplicantID,
			Title:       tmpl.Title,
			Message:     tmpl.Message(notice),
			Severity:    tmpl.Severity,
			RelatedKind: relatedKind,
			RelatedID:   relatedID,
			CreatedAt:   now,
		}
	}

	out.Application = next
	e.TxManager.AfterCommit(ctx, func() { e.afterCommit(ctx, cmd, out) })

	return out, nil
}

// afterCommit publishes the transition once it is durable
func (e *engineImpl) afterCommit(ctx context.Context, cmd Command, out *Outcome) {
	ctx = context.WithoutCancel(ctx)
	app := out.Application

	if e.logger != nil {
		e.logger.Info("Application transitioned",
			"application_id", app.ID,
			"reference_number", app.ReferenceNumber,
			"action", cmd.Action,
			"from", out.PreviousStatus,
			"to", app.Status,
			"actor_id", cmd.Actor.ID,
			"actor_role", cmd.Actor.Role,
		)
	}

	if out.Notification != nil && e.Notifier != nil {
		e.Notifier.Enqueue(ctx, out.Notification)
	}

	if e.dispatcher == nil {
		return
	}

	e.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeStatusChanged, app.ID, map[string]interface{}{
		"previous_status": out.PreviousStatus.String(),
		"new_status":      app.Status.String(),
		"action":          cmd.Action.String(),
		"actor_id":        cmd.Actor.ID,
		"actor_role":      cmd.Actor.Role.String(),
	}))

	switch {
	case out.Payment != nil && cmd.Action == domainwf.ActionRecordPayment:
		e.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypePaymentRecorded, app.ID, map[string]interface{}{
			"payment_id": out.Payment.ID,
			"amount":     out.Payment.Amount.String(),
			"method":     out.Payment.Method,
		}))
	case out.Permit != nil:
		e.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypePermitIssued, app.ID, map[string]interface{}{
			"permit_id":     out.Permit.ID,
			"permit_number": out.Permit.PermitNumber,
		}))
	}
}

// PermittedActions implements Engine
func (e *engineImpl) PermittedActions(ctx context.Context, applicationID string, actor Actor) ([]domainwf.Action, error) {
	app, err := e.Applications.GetByID(ctx, applicationID)
	if err != nil {
		return nil, internalError("load application", err)
	}
	if app == nil {
		return nil, fmt.Errorf("%w: application %s", domainwf.ErrNotFound, applicationID)
	}

	return e.table.PermittedActions(domainwf.Input{
		Status:    app.Status,
		Role:      actor.Role,
		IsOwner:   app.IsOwnedBy(actor.ID),
		FeeExempt: app.FeeExempt,
	}), nil
}

// stamp sets the one-time fields owned by the action. Fields already set are kept.
func stamp(app *entity.Application, cmd Command, now time.Time) {
	switch cmd.Action {
	case domainwf.ActionSubmit:
		if app.SubmittedAt == nil {
			app.SubmittedAt = &now
		}
	case domainwf.ActionBeginReview, domainwf.ActionReject, domainwf.ActionRequestPayment:
		markReviewed(app, cmd.Actor.ID, now)
	case domainwf.ActionApprove:
		markReviewed(app, cmd.Actor.ID, now)
		if app.ApprovedAt == nil {
			app.ApprovedAt = &now
			app.ApprovedBy = cmd.Actor.ID
		}
	}

	if cmd.Notes != "" && cmd.Actor.Role == domainwf.RoleStaff {
		app.Notes = cmd.Notes
	}
}

func markReviewed(app *entity.Application, reviewerID string, now time.Time) {
	if app.ReviewedAt == nil {
		app.ReviewedAt = &now
		app.ReviewedBy = reviewerID
	}
}

// internalError keeps taxonomy errors intact and hides everything else behind ErrInternal
func internalError(op string, err error) error {
	if domainwf.IsKnown(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domainwf.ErrInternal, op, err)
}
