package service

import (
	"context"
	"fmt"
	"time"

	"github.com/nasmusic-ai/permit-pro/internal/application/workflow"
	domainwf "github.com/nasmusic-ai/permit-pro/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// page clamps caller supplied paging to sane bounds
func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// isOffice reports whether the actor works for the permit office rather than applying
func isOffice(actor workflow.Actor) bool {
	switch actor.Role {
	case domainwf.RoleStaff, domainwf.RoleTreasurer, domainwf.RoleAdmin, domainwf.RoleSystem:
		return true
	default:
		return false
	}
}

func requireRole(actor workflow.Actor, op string, roles ...domainwf.Role) error {
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q may not %s", domainwf.ErrForbidden, actor.Role, op)
}

// wrapInternal keeps taxonomy errors and hides storage errors behind ErrInternal
func wrapInternal(op string, err error) error {
	if err == nil || domainwf.IsKnown(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domainwf.ErrInternal, op, err)
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// background detaches after-commit work from the request lifetime
func background(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
