package permit

import (
	"context"
	"sync"
	"time"

	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
	"github.com/nasmusic-ai/permit-pro/internal/domain/workflow"
)

type mockPermitRepo struct {
	byApp    map[string]*entity.Permit
	updated  []*entity.Permit
	expiring []*entity.Permit
	CreateFn func(ctx context.Context, p *entity.Permit) error
}

func newMockPermitRepo() *mockPermitRepo {
	return &mockPermitRepo{byApp: make(map[string]*entity.Permit)}
}

func (m *mockPermitRepo) Create(ctx context.Context, p *entity.Permit) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, p)
	}
	m.byApp[p.ApplicationID] = p
	return nil
}

func (m *mockPermitRepo) GetByID(ctx context.Context, id string) (*entity.Permit, error) {
	for _, p := range m.byApp {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockPermitRepo) GetByApplicationID(ctx context.Context, applicationID string) (*entity.Permit, error) {
	return m.byApp[applicationID], nil
}

func (m *mockPermitRepo) GetByNumber(ctx context.Context, number string) (*entity.Permit, error) {
	return nil, nil
}

func (m *mockPermitRepo) Update(ctx context.Context, p *entity.Permit) error {
	m.updated = append(m.updated, p)
	return nil
}

func (m *mockPermitRepo) MarkReminded(ctx context.Context, id string, at time.Time) (bool, error) {
	for _, p := range m.expiring {
		if p.ID == id && p.IsActive && p.ReminderSentAt == nil {
			p.ReminderSentAt = &at
			m.updated = append(m.updated, p)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockPermitRepo) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*entity.Permit, error) {
	return m.expiring, nil
}

type mockSequences struct {
	n int64
}

func (m *mockSequences) Next(ctx context.Context, name string) (int64, error) {
	m.n++
	return m.n, nil
}

type mockApplicationRepo struct {
	apps map[string]*entity.Application
}

func (m *mockApplicationRepo) Create(ctx context.Context, app *entity.Application) error { return nil }

func (m *mockApplicationRepo) GetByID(ctx context.Context, id string) (*entity.Application, error) {
	return m.apps[id], nil
}

func (m *mockApplicationRepo) UpdateIfStatus(ctx context.Context, app *entity.Application, expected workflow.State) (bool, error) {
	return true, nil
}

func (m *mockApplicationRepo) ListByApplicant(ctx context.Context, applicantID string, limit, offset int) ([]*entity.Application, error) {
	return nil, nil
}

func (m *mockApplicationRepo) ListByStatus(ctx context.Context, statuses []workflow.State, limit, offset int) ([]*entity.Application, error) {
	return nil, nil
}

func (m *mockApplicationRepo) CountByStatus(ctx context.Context) (map[workflow.State]int, error) {
	return nil, nil
}

// mockTxManager runs fn directly and queues after-commit callbacks until fn succeeds
type mockTxManager struct {
	pending []func()
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.pending = nil
	if err := fn(ctx); err != nil {
		m.pending = nil
		return err
	}
	for _, cb := range m.pending {
		cb()
	}
	m.pending = nil
	return nil
}

func (m *mockTxManager) AfterCommit(ctx context.Context, fn func()) {
	m.pending = append(m.pending, fn)
}

type captureSink struct {
	mu   sync.Mutex
	sent []*entity.Notification
}

func (c *captureSink) Enqueue(ctx context.Context, n *entity.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}
