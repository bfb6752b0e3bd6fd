package redis

import (
	"time"

	"github.com/adjutant-go/adjutant/store"
)

type RedisOptions struct {
	store.Options

	KeyPrefix string

	// ExpirationGrace lets redis drop token keys this long after they expire.
	// If set to 0 (default), tokens stay until deleted.
	ExpirationGrace time.Duration
}

type RedisStoreOption func(*RedisOptions)

func WithStoreOptions(opts ...store.StoreOption) RedisStoreOption {
	return func(o *RedisOptions) {
		for _, opt := range opts {
			opt(&o.Options)
		}
	}
}

// WithKeyPrefix namespaces all keys, so that multiple deployments can share
// a redis instance.
func WithKeyPrefix(keyPrefix string) RedisStoreOption {
	return func(o *RedisOptions) {
		o.KeyPrefix = keyPrefix
	}
}

// WithExpirationGrace sets EXPIREAT on token keys at expiry plus grace. Expired
// tokens stay readable during the grace period so callers can tell an expired
// token from an unknown one.
func WithExpirationGrace(grace time.Duration) RedisStoreOption {
	return func(o *RedisOptions) {
		o.ExpirationGrace = grace
	}
}
