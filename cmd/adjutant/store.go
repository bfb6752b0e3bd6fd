package main

import (
	"fmt"

	"github.com/adjutant-go/adjutant/config"
	"github.com/adjutant-go/adjutant/store"
	"github.com/adjutant-go/adjutant/store/memory"
	"github.com/adjutant-go/adjutant/store/mysql"
	"github.com/adjutant-go/adjutant/store/redis"
	"github.com/adjutant-go/adjutant/store/sqlite"
	redisv9 "github.com/redis/go-redis/v9"
)

type migrator interface {
	Migrate() error
}

// openStore opens the configured store. Tokens move to redis when a redis
// section is present.
func openStore(c config.StoreConfig, applyMigrations bool, opts ...store.StoreOption) (store.Store, error) {
	var base store.Store

	switch c.Driver {
	case config.DriverMemory:
		base = memory.NewMemoryStore(opts...)

	case config.DriverSqlite:
		base = sqlite.NewSqliteStore(c.Path,
			sqlite.WithApplyMigrations(applyMigrations),
			sqlite.WithStoreOptions(opts...),
		)

	case config.DriverMySQL:
		m := c.MySQL
		base = mysql.NewMysqlStore(m.Host, m.Port, m.User, m.Password, m.Database,
			mysql.WithApplyMigrations(applyMigrations),
			mysql.WithStoreOptions(opts...),
		)

	default:
		return nil, fmt.Errorf("unknown store driver %q", c.Driver)
	}

	if c.Redis == nil {
		return base, nil
	}

	client := redisv9.NewUniversalClient(&redisv9.UniversalOptions{
		Addrs:    []string{c.Redis.Addr},
		Username: c.Redis.Username,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})

	tokens := redis.NewRedisTokenStore(client,
		redis.WithKeyPrefix(c.Redis.KeyPrefix),
		redis.WithExpirationGrace(c.Redis.ExpirationGrace),
		redis.WithStoreOptions(opts...),
	)

	return &composedStore{
		Store: store.Compose(base, tokens, base, base, tokens),
		base:  base,
	}, nil
}

// composedStore keeps the SQL store reachable for migrations.
type composedStore struct {
	store.Store

	base store.Store
}

func (c *composedStore) Migrate() error {
	m, ok := c.base.(migrator)
	if !ok {
		return fmt.Errorf("store %T has no migrations", c.base)
	}

	return m.Migrate()
}
