package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasmusic-ai/permit-pro/internal/application/workflow"
	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
	domainwf "github.com/nasmusic-ai/permit-pro/internal/domain/workflow"
)

func fullFee() workflow.PaymentInput {
	return workflow.PaymentInput{Amount: decimal.NewFromInt(5150), Method: entity.PaymentMethodMaya}
}

func recordAndConfirm(t *testing.T, f *fixture, appID string) *entity.Payment {
	t.Helper()
	p, err := f.paymentSvc.RecordPayment(context.Background(), appID, applicant, fullFee())
	require.NoError(t, err)
	p, err = f.paymentSvc.ConfirmPayment(context.Background(), p.ID, gateway, entity.PaymentStatusCompleted, "MAYA-001")
	require.NoError(t, err)
	return p
}

func TestPaymentService_VerifyMovesApplication(t *testing.T) {
	f := newFixture(t)
	app := f.pendingPayment()
	p := recordAndConfirm(t, f, app.ID)
	require.NotNil(t, p.PaidAt)
	assert.Equal(t, "MAYA-001", p.TransactionID)

	verified, err := f.paymentSvc.VerifyPayment(context.Background(), p.ID, treasurer)
	require.NoError(t, err)
	assert.Equal(t, "treasurer-1", verified.VerifiedBy)
	require.NotNil(t, verified.VerifiedAt)

	got, err := f.apps.GetByID(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatePaymentVerified, got.Status)

	notices := f.sink.All()
	last := notices[len(notices)-1]
	assert.Equal(t, "Payment Verified", last.Title)
	assert.Contains(t, last.Message, "5150.00")
}

func TestPaymentService_VerifyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	app := f.pendingPayment()
	p := recordAndConfirm(t, f, app.ID)

	first, err := f.paymentSvc.VerifyPayment(context.Background(), p.ID, treasurer)
	require.NoError(t, err)
	sent := len(f.sink.All())

	f.now = f.now.Add(time.Hour)
	second, err := f.paymentSvc.VerifyPayment(context.Background(), p.ID, workflow.Actor{ID: "treasurer-2", Role: domainwf.RoleTreasurer})
	require.NoError(t, err)

	assert.Equal(t, "treasurer-1", second.VerifiedBy)
	assert.True(t, first.VerifiedAt.Equal(*second.VerifiedAt))
	assert.Len(t, f.sink.All(), sent, "no second notification")
}

func TestPaymentService_VerifyRules(t *testing.T) {
	f := newFixture(t)
	app := f.pendingPayment()
	p, err := f.paymentSvc.RecordPayment(context.Background(), app.ID, applicant, fullFee())
	require.NoError(t, err)

	_, err = f.paymentSvc.VerifyPayment(context.Background(), p.ID, staff)
	assert.ErrorIs(t, err, domainwf.ErrForbidden)

	_, err = f.paymentSvc.VerifyPayment(context.Background(), p.ID, treasurer)
	assert.ErrorIs(t, err, domainwf.ErrInvalidTransition, "pending payments cannot be verified")

	_, err = f.paymentSvc.VerifyPayment(context.Background(), "missing", treasurer)
	assert.ErrorIs(t, err, domainwf.ErrNotFound)

	stored, err := f.payments.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.VerifiedAt)
	assert.Empty(t, stored.VerifiedBy)
}

func TestPaymentService_VerifyOutsidePendingPayment(t *testing.T) {
	f := newFixture(t)
	app := f.pendingPayment()
	p := recordAndConfirm(t, f, app.ID)

	// an office correction moved the application on outside the workflow
	stored, err := f.apps.GetByID(context.Background(), app.ID)
	require.NoError(t, err)
	stored.Status = domainwf.StateApproved
	ok, err := f.apps.UpdateIfStatus(context.Background(), stored, domainwf.StatePendingPayment)
	require.NoError(t, err)
	require.True(t, ok)
	sent := len(f.sink.All())

	verified, err := f.paymentSvc.VerifyPayment(context.Background(), p.ID, treasurer)
	require.NoError(t, err)
	assert.NotNil(t, verified.VerifiedAt)

	got, err := f.apps.GetByID(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateApproved, got.Status, "status untouched")
	assert.Len(t, f.sink.All(), sent)
}

func TestPaymentService_ConfirmPayment(t *testing.T) {
	f := newFixture(t)
	app := f.pendingPayment()
	p, err := f.paymentSvc.RecordPayment(context.Background(), app.ID, applicant, fullFee())
	require.NoError(t, err)

	_, err = f.paymentSvc.ConfirmPayment(context.Background(), p.ID, applicant, entity.PaymentStatusCompleted, "")
	assert.ErrorIs(t, err, domainwf.ErrForbidden)

	_, err = f.paymentSvc.ConfirmPayment(context.Background(), p.ID, gateway, entity.PaymentStatusRefunded, "")
	assert.ErrorIs(t, err, domainwf.ErrValidationFailed)

	failed, err := f.paymentSvc.ConfirmPayment(context.Background(), p.ID, gateway, entity.PaymentStatusFailed, "GW-9")
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusFailed, failed.Status)
	assert.Nil(t, failed.PaidAt)

	again, err := f.paymentSvc.ConfirmPayment(context.Background(), p.ID, gateway, entity.PaymentStatusFailed, "GW-9")
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusFailed, again.Status)

	_, err = f.paymentSvc.ConfirmPayment(context.Background(), p.ID, gateway, entity.PaymentStatusCompleted, "GW-9")
	assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)

	// a failed attempt leaves the application waiting for another payment
	retry := recordAndConfirm(t, f, app.ID)
	assert.Equal(t, entity.PaymentStatusCompleted, retry.Status)
}

func TestPaymentService_RecordPaymentRules(t *testing.T) {
	f := newFixture(t)
	app := f.pendingPayment()

	_, err := f.paymentSvc.RecordPayment(context.Background(), app.ID, applicant,
		workflow.PaymentInput{Amount: decimal.NewFromInt(-1), Method: entity.PaymentMethodGCash})
	assert.ErrorIs(t, err, domainwf.ErrValidationFailed)

	_, err = f.paymentSvc.RecordPayment(context.Background(), app.ID, applicant,
		workflow.PaymentInput{Amount: decimal.NewFromInt(5150), Method: "barter"})
	assert.ErrorIs(t, err, domainwf.ErrValidationFailed)

	_, err = f.paymentSvc.RecordPayment(context.Background(), app.ID, treasurer, fullFee())
	assert.ErrorIs(t, err, domainwf.ErrForbidden)

	draft := f.draft()
	_, err = f.paymentSvc.RecordPayment(context.Background(), draft.ID, applicant, fullFee())
	assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)
}

func TestPaymentService_ConcurrentVerify(t *testing.T) {
	f := newFixture(t)
	app := f.pendingPayment()
	p := recordAndConfirm(t, f, app.ID)
	before := len(f.sink.All())

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.paymentSvc.VerifyPayment(context.Background(), p.ID, treasurer)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, f.sink.All(), before+1)
}

func TestPaymentService_Listing(t *testing.T) {
	f := newFixture(t)
	app := f.pendingPayment()
	recordAndConfirm(t, f, app.ID)

	payments, err := f.paymentSvc.ListForApplication(context.Background(), app.ID, applicant)
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	_, err = f.paymentSvc.ListForApplication(context.Background(), app.ID, other)
	assert.ErrorIs(t, err, domainwf.ErrForbidden)

	_, err = f.paymentSvc.ListByStatus(context.Background(), staff, entity.PaymentStatusCompleted, 10, 0)
	assert.ErrorIs(t, err, domainwf.ErrForbidden)

	completed, err := f.paymentSvc.ListByStatus(context.Background(), treasurer, entity.PaymentStatusCompleted, 10, 0)
	require.NoError(t, err)
	assert.Len(t, completed, 1)

	assert.True(t, f.paymentSvc.Fees().Total().Equal(decimal.NewFromInt(5150)))
}

func TestPaymentService_ExportLedger(t *testing.T) {
	f := newFixture(t)
	app := f.pendingPayment()
	recordAndConfirm(t, f, app.ID)

	from := f.now.Add(-time.Hour)
	to := f.now.Add(time.Hour)

	var buf bytes.Buffer
	err := f.paymentSvc.ExportLedger(context.Background(), applicant, from, to, &buf)
	assert.ErrorIs(t, err, domainwf.ErrForbidden)

	err = f.paymentSvc.ExportLedger(context.Background(), treasurer, to, from, &buf)
	assert.ErrorIs(t, err, domainwf.ErrValidationFailed)

	require.NoError(t, f.paymentSvc.ExportLedger(context.Background(), treasurer, from, to, &buf))
	assert.Equal(t, "1 payments", buf.String())
	assert.True(t, f.writer.from.Equal(from))

	f.writer.err = errors.New("sheet too large")
	err = f.paymentSvc.ExportLedger(context.Background(), admin, from, to, &buf)
	assert.ErrorIs(t, err, domainwf.ErrInternal)
}
