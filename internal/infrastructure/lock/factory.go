package lock

import (
	"fmt"

	"github.com/nasmusic-ai/permit-pro/internal/application/port"
)

// Backend names accepted by New
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// New builds the locker for backend. The close func is never nil.
func New(backend string, cfg RedisConfig, logger Logger) (port.Locker, func() error, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryLocker(), func() error { return nil }, nil
	case BackendRedis:
		locker, err := NewRedisLocker(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if logger != nil {
			logger.Info("Redis locker connected", "addr", cfg.Addr)
		}
		return locker, locker.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown lock backend: %s", backend)
	}
}
