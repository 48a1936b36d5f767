package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasmusic-ai/permit-pro/internal/application/payment"
	"github.com/nasmusic-ai/permit-pro/internal/application/service"
	"github.com/nasmusic-ai/permit-pro/internal/application/workflow"
	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
	domainwf "github.com/nasmusic-ai/permit-pro/internal/domain/workflow"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type fakeApplications struct {
	service.ApplicationService
	getFn        func(ctx context.Context, id string, actor workflow.Actor) (*entity.Application, error)
	createFn     func(ctx context.Context, actor workflow.Actor, b entity.BusinessInfo, o entity.OwnerInfo) (*entity.Application, error)
	transitionFn func(ctx context.Context, cmd workflow.Command) (*entity.Application, error)
	listByFn     func(ctx context.Context, actor workflow.Actor, statuses []domainwf.State, limit, offset int) ([]*entity.Application, error)
}

func (f *fakeApplications) Get(ctx context.Context, id string, actor workflow.Actor) (*entity.Application, error) {
	return f.getFn(ctx, id, actor)
}

func (f *fakeApplications) Create(ctx context.Context, actor workflow.Actor, b entity.BusinessInfo, o entity.OwnerInfo) (*entity.Application, error) {
	return f.createFn(ctx, actor, b, o)
}

func (f *fakeApplications) Transition(ctx context.Context, cmd workflow.Command) (*entity.Application, error) {
	return f.transitionFn(ctx, cmd)
}

func (f *fakeApplications) ListByStatus(ctx context.Context, actor workflow.Actor, statuses []domainwf.State, limit, offset int) ([]*entity.Application, error) {
	return f.listByFn(ctx, actor, statuses, limit, offset)
}

type fakePayments struct {
	service.PaymentService
	recordFn func(ctx context.Context, appID string, actor workflow.Actor, in workflow.PaymentInput) (*entity.Payment, error)
	exportFn func(ctx context.Context, actor workflow.Actor, from, to time.Time, w io.Writer) error
}

func (f *fakePayments) RecordPayment(ctx context.Context, appID string, actor workflow.Actor, in workflow.PaymentInput) (*entity.Payment, error) {
	return f.recordFn(ctx, appID, actor, in)
}

func (f *fakePayments) ExportLedger(ctx context.Context, actor workflow.Actor, from, to time.Time, w io.Writer) error {
	return f.exportFn(ctx, actor, from, to, w)
}

func (f *fakePayments) Fees() payment.FeeSchedule {
	return payment.DefaultFeeSchedule()
}

type fakePermits struct {
	service.PermitService
	byNumberFn func(ctx context.Context, number string) (*entity.Permit, error)
	revokeFn   func(ctx context.Context, permitID string, actor workflow.Actor, reason string) (*entity.Permit, error)
}

func (f *fakePermits) GetByNumber(ctx context.Context, number string) (*entity.Permit, error) {
	return f.byNumberFn(ctx, number)
}

func (f *fakePermits) Revoke(ctx context.Context, permitID string, actor workflow.Actor, reason string) (*entity.Permit, error) {
	return f.revokeFn(ctx, permitID, actor, reason)
}

type fakeNotifications struct {
	service.NotificationService
	unreadFn func(ctx context.Context, actor workflow.Actor) (int, error)
}

func (f *fakeNotifications) UnreadCount(ctx context.Context, actor workflow.Actor) (int, error) {
	return f.unreadFn(ctx, actor)
}

type fixture struct {
	apps     *fakeApplications
	payments *fakePayments
	permits  *fakePermits
	inbox    *fakeNotifications
}

func newFixture() *fixture {
	return &fixture{
		apps:     &fakeApplications{},
		payments: &fakePayments{},
		permits:  &fakePermits{},
		inbox:    &fakeNotifications{},
	}
}

func (f *fixture) server(opts ...Option) *Server {
	return NewServer(DefaultServerConfig(), Services{
		Applications:  f.apps,
		Payments:      f.payments,
		Permits:       f.permits,
		Notifications: f.inbox,
	}, nopLogger{}, opts...)
}

func do(t *testing.T, s *Server, method, path, role string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set(HeaderActorID, role+"-1")
		req.Header.Set(HeaderActorRole, role)
	}

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	s := newFixture().server()

	w := do(t, s, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode(t, w).Success)
}

func TestActorHeadersRequired(t *testing.T) {
	f := newFixture()
	f.apps.getFn = func(ctx context.Context, id string, actor workflow.Actor) (*entity.Application, error) {
		t.Fatal("service must not be reached")
		return nil, nil
	}
	s := f.server()

	w := do(t, s, http.MethodGet, "/api/v1/applications/app-1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/applications/app-1", "mayor", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestActorPassedToService(t *testing.T) {
	f := newFixture()
	var got workflow.Actor
	f.apps.getFn = func(ctx context.Context, id string, actor workflow.Actor) (*entity.Application, error) {
		got = actor
		return &entity.Application{ID: id, Status: domainwf.StateDraft}, nil
	}
	s := f.server()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/applications/app-7", nil)
	req.Header.Set(HeaderActorID, "u-42")
	req.Header.Set(HeaderActorRole, " Staff ")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, workflow.Actor{ID: "u-42", Role: domainwf.RoleStaff}, got)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", fmt.Errorf("%w: application app-1", domainwf.ErrNotFound), http.StatusNotFound, ""},
		{"forbidden", fmt.Errorf("%w: role applicant may not approve", domainwf.ErrForbidden), http.StatusForbidden, ""},
		{"invalid transition", fmt.Errorf("%w: cannot approve from draft", domainwf.ErrInvalidTransition), http.StatusConflict, ""},
		{"validation", fmt.Errorf("%w: business name required", domainwf.ErrValidationFailed), http.StatusUnprocessableEntity, ""},
		{"internal", fmt.Errorf("%w: %v", domainwf.ErrInternal, errors.New("database is locked")), http.StatusInternalServerError, "internal error"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.apps.transitionFn = func(ctx context.Context, cmd workflow.Command) (*entity.Application, error) {
				return nil, tt.err
			}

			w := do(t, f.server(), http.MethodPost, "/api/v1/applications/app-1/transitions", "staff",
				TransitionRequest{Action: "approve"})

			assert.Equal(t, tt.status, w.Code)
			resp := decode(t, w)
			assert.False(t, resp.Success)
			if tt.message != "" {
				assert.Equal(t, tt.message, resp.Error)
			} else {
				assert.Equal(t, tt.err.Error(), resp.Error)
			}
		})
	}
}

func TestTransitionBuildsCommand(t *testing.T) {
	f := newFixture()
	var got workflow.Command
	f.apps.transitionFn = func(ctx context.Context, cmd workflow.Command) (*entity.Application, error) {
		got = cmd
		return &entity.Application{ID: cmd.ApplicationID, Status: domainwf.StateRejected}, nil
	}

	w := do(t, f.server(), http.MethodPost, "/api/v1/applications/app-3/transitions", "staff",
		TransitionRequest{Action: "reject", Notes: "Missing DTI registration"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "app-3", got.ApplicationID)
	assert.Equal(t, domainwf.ActionReject, got.Action)
	assert.Equal(t, "Missing DTI registration", got.Notes)
	assert.Equal(t, domainwf.RoleStaff, got.Actor.Role)
}

func TestBadJSONIsBadRequest(t *testing.T) {
	f := newFixture()
	s := f.server()

	w := do(t, s, http.MethodPost, "/api/v1/applications/app-1/transitions", "staff", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/api/v1/applications/app-1/transitions", "staff", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateApplication(t *testing.T) {
	f := newFixture()
	f.apps.createFn = func(ctx context.Context, actor workflow.Actor, b entity.BusinessInfo, o entity.OwnerInfo) (*entity.Application, error) {
		return &entity.Application{ID: "app-1", ApplicantID: actor.ID, Status: domainwf.StateDraft, BusinessInfo: b}, nil
	}

	w := do(t, f.server(), http.MethodPost, "/api/v1/applications", "applicant",
		ApplicationRequest{BusinessInfo: entity.BusinessInfo{BusinessName: "Sari-Sari Store"}})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "Sari-Sari Store")
}

func TestRecordPaymentParsesDecimal(t *testing.T) {
	f := newFixture()
	var got workflow.PaymentInput
	f.payments.recordFn = func(ctx context.Context, appID string, actor workflow.Actor, in workflow.PaymentInput) (*entity.Payment, error) {
		got = in
		return &entity.Payment{ID: "pay-1", ApplicationID: appID, Amount: in.Amount, Status: entity.PaymentStatusPending}, nil
	}
	s := f.server()

	w := do(t, s, http.MethodPost, "/api/v1/applications/app-1/payments", "applicant",
		PaymentRequest{Amount: "5150.00", Method: "gcash"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "5150", got.Amount.String())
	assert.Equal(t, "gcash", got.Method)

	w = do(t, s, http.MethodPost, "/api/v1/applications/app-1/payments", "applicant",
		PaymentRequest{Amount: "five thousand", Method: "gcash"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGetFees(t *testing.T) {
	w := do(t, newFixture().server(), http.MethodGet, "/api/v1/fees", "applicant", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data FeeResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "5150.00", resp.Data.Total)
	assert.Len(t, resp.Data.Items, 6)
}

func TestListQueueSplitsStatuses(t *testing.T) {
	f := newFixture()
	var got []domainwf.State
	var limit int
	f.apps.listByFn = func(ctx context.Context, actor workflow.Actor, statuses []domainwf.State, l, o int) ([]*entity.Application, error) {
		got, limit = statuses, l
		return nil, nil
	}

	w := do(t, f.server(), http.MethodGet, "/api/v1/queue?status=submitted,%20under_review&limit=5", "staff", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []domainwf.State{domainwf.StateSubmitted, domainwf.StateUnderReview}, got)
	assert.Equal(t, 5, limit)
}

func TestExportLedger(t *testing.T) {
	f := newFixture()
	f.payments.exportFn = func(ctx context.Context, actor workflow.Actor, from, to time.Time, w io.Writer) error {
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), from)
		_, err := w.Write([]byte("PK"))
		return err
	}
	s := f.server()

	w := do(t, s, http.MethodGet, "/api/v1/payments/ledger.xlsx?from=2026-01-01&to=2026-02-01", "treasurer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "payment-ledger-20260101.xlsx")
	assert.Equal(t, "PK", w.Body.String())

	w = do(t, s, http.MethodGet, "/api/v1/payments/ledger.xlsx?from=yesterday", "treasurer", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRevokePermitByNumber(t *testing.T) {
	f := newFixture()
	f.permits.byNumberFn = func(ctx context.Context, number string) (*entity.Permit, error) {
		if number != "BP-2026-000001" {
			return nil, fmt.Errorf("%w: permit %s", domainwf.ErrNotFound, number)
		}
		return &entity.Permit{ID: "permit-1", PermitNumber: number, IsActive: true}, nil
	}
	var reason string
	f.permits.revokeFn = func(ctx context.Context, permitID string, actor workflow.Actor, r string) (*entity.Permit, error) {
		assert.Equal(t, "permit-1", permitID)
		reason = r
		return &entity.Permit{ID: permitID, IsActive: false}, nil
	}
	s := f.server()

	w := do(t, s, http.MethodPost, "/api/v1/permits/BP-2026-000001/revoke", "admin", RevokeRequest{Reason: "closed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "closed", reason)

	w = do(t, s, http.MethodPost, "/api/v1/permits/BP-2026-000099/revoke", "admin", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnreadCount(t *testing.T) {
	f := newFixture()
	f.inbox.unreadFn = func(ctx context.Context, actor workflow.Actor) (int, error) {
		return 3, nil
	}

	w := do(t, f.server(), http.MethodGet, "/api/v1/notifications/unread-count", "applicant", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"unread":3}}`, w.Body.String())
}

func TestRateLimitPerActor(t *testing.T) {
	f := newFixture()
	f.inbox.unreadFn = func(ctx context.Context, actor workflow.Actor) (int, error) {
		return 0, nil
	}
	s := f.server(WithRateLimiter(NewKeyedLimiter(0.001, 2, time.Minute)))

	for i := 0; i < 2; i++ {
		w := do(t, s, http.MethodGet, "/api/v1/notifications/unread-count", "applicant", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := do(t, s, http.MethodGet, "/api/v1/notifications/unread-count", "applicant", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/notifications/unread-count", "staff", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestKeyedLimiter(t *testing.T) {
	assert.Nil(t, NewKeyedLimiter(0, 1, 0))

	var disabled *KeyedLimiter
	assert.True(t, disabled.Allow("anyone", time.Now()))
	assert.Zero(t, disabled.Len())

	l := NewKeyedLimiter(1, 1, time.Second)
	now := time.Now()
	assert.True(t, l.Allow("a", now))
	assert.False(t, l.Allow("a", now))
	assert.True(t, l.Allow("a", now.Add(time.Second)))
	assert.True(t, l.Allow("b", now))
	assert.Equal(t, 2, l.Len())
}

type fakeMetrics struct {
	routes []string
}

func (m *fakeMetrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.routes = append(m.routes, fmt.Sprintf("%s %s %d", method, route, status))
}

func (m *fakeMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	f := newFixture()
	f.apps.getFn = func(ctx context.Context, id string, actor workflow.Actor) (*entity.Application, error) {
		return nil, fmt.Errorf("%w: application %s", domainwf.ErrNotFound, id)
	}
	m := &fakeMetrics{}
	s := f.server(WithMetrics(m))

	do(t, s, http.MethodGet, "/api/v1/applications/app-9", "staff", nil)
	w := do(t, s, http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, "# metrics", w.Body.String())
	require.NotEmpty(t, m.routes)
	assert.Equal(t, "GET /api/v1/applications/:id 404", m.routes[0])
}
