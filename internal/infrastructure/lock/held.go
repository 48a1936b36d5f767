package lock

import "context"

type heldKey struct{}

// isHeld reports whether ctx was returned by a Lock call for key
func isHeld(ctx context.Context, key string) bool {
	held, _ := ctx.Value(heldKey{}).(map[string]struct{})
	_, ok := held[key]
	return ok
}

func withHeld(ctx context.Context, key string) context.Context {
	prev, _ := ctx.Value(heldKey{}).(map[string]struct{})
	next := make(map[string]struct{}, len(prev)+1)
	for k := range prev {
		next[k] = struct{}{}
	}
	next[key] = struct{}{}
	return context.WithValue(ctx, heldKey{}, next)
}

func noop() {}
