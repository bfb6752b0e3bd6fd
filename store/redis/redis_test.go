package redis

import (
	"context"
	"testing"
	"time"

	"github.com/adjutant-go/adjutant/core"
	"github.com/adjutant-go/adjutant/store"
	"github.com/adjutant-go/adjutant/store/memory"
	"github.com/adjutant-go/adjutant/store/test"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const (
	address  = "localhost:6379"
	user     = ""
	password = "RedisPassw0rd"
)

func Test_RedisTokenStore(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	test.TokenStoreTest(t, func() store.TokenStore {
		return NewRedisTokenStore(getClient(), WithKeyPrefix("test-"+uuid.NewString()+":"))
	}, func(s store.TokenStore) {
		cleanup(s.(*redisTokenStore))
	})
}

func Test_ComposedStore(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	var tokens *redisTokenStore

	test.StoreTest(t, func() store.Store {
		m := memory.NewMemoryStore()
		tokens = NewRedisTokenStore(getClient(), WithKeyPrefix("test-"+uuid.NewString()+":"))

		return store.Compose(m, tokens, m, m, tokens)
	}, func(s store.Store) {
		cleanup(tokens)
	})
}

func getClient() redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{address},
		Username: user,
		Password: password,
		DB:       0,
	})
}

func cleanup(rs *redisTokenStore) {
	ctx := context.Background()

	keys, err := rs.rdb.Keys(ctx, rs.options.KeyPrefix+"*").Result()
	if err != nil {
		panic(err)
	}

	if len(keys) > 0 {
		if err := rs.rdb.Del(ctx, keys...).Err(); err != nil {
			panic(err)
		}
	}

	if err := rs.Close(); err != nil {
		panic(err)
	}
}

func Test_RedisTokenStore_ExpirationGrace(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	ctx := context.Background()
	rs := NewRedisTokenStore(getClient(), WithKeyPrefix("test-"+uuid.NewString()+":"), WithExpirationGrace(time.Hour))
	defer cleanup(rs)

	now := time.Now().UTC()
	token := &core.Token{Value: uuid.NewString(), TaskID: "task-1", Expires: now.Add(time.Minute), CreatedOn: now}
	require.NoError(t, rs.CreateToken(ctx, token))

	ttl, err := rs.rdb.TTL(ctx, tokenKey(rs.options.KeyPrefix, token.Value)).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Hour)
	require.LessOrEqual(t, ttl, time.Hour+time.Minute)
}
