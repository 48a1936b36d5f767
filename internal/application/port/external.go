package port

import (
	"context"

	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
)

// NotificationSink accepts fire-and-forget messages for portal users.
// Enqueue never blocks and never fails the caller; delivery problems stay in the sink.
type NotificationSink interface {
	Enqueue(ctx context.Context, notification *entity.Notification)
}

// Locker serializes work per key across every engine instance sharing the store
type Locker interface {
	// Lock blocks until key is held or ctx is done. The returned context marks the
	// key as held so nested Lock calls with it do not deadlock.
	Lock(ctx context.Context, key string) (context.Context, func(), error)
}
