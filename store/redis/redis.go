// Package redis keeps submission tokens in redis. Tasks and notifications
// stay in a SQL store; combine both with store.Compose.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/adjutant-go/adjutant/core"
	"github.com/adjutant-go/adjutant/internal/metrickeys"
	"github.com/adjutant-go/adjutant/metrics"
	"github.com/adjutant-go/adjutant/store"
	redis "github.com/redis/go-redis/v9"
)

var _ store.TokenStore = (*redisTokenStore)(nil)

func NewRedisTokenStore(client redis.UniversalClient, opts ...RedisStoreOption) *redisTokenStore {
	options := &RedisOptions{
		Options: store.ApplyOptions(),
	}

	for _, opt := range opts {
		opt(options)
	}

	return &redisTokenStore{
		rdb:     client,
		options: options,
	}
}

type redisTokenStore struct {
	rdb     redis.UniversalClient
	options *RedisOptions
}

func (rs *redisTokenStore) Metrics() metrics.Client {
	return rs.options.Metrics.WithTags(metrics.Tags{metrickeys.Store: "redis"})
}

func (rs *redisTokenStore) Close() error {
	return rs.rdb.Close()
}

func (rs *redisTokenStore) CreateToken(ctx context.Context, token *core.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshaling token: %w", err)
	}

	p := rs.options.KeyPrefix

	_, err = rs.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tokenKey(p, token.Value), string(data), 0)
		if rs.options.ExpirationGrace > 0 {
			pipe.ExpireAt(ctx, tokenKey(p, token.Value), token.Expires.Add(rs.options.ExpirationGrace))
		}
		pipe.SAdd(ctx, taskTokensKey(p, token.TaskID), token.Value)
		pipe.ZAdd(ctx, tokensByCreation(p), redis.Z{
			Score:  float64(token.CreatedOn.UnixMilli()),
			Member: token.Value,
		})
		pipe.ZAdd(ctx, tokensExpiring(p), redis.Z{
			Score:  float64(token.Expires.UnixMilli()),
			Member: token.Value,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing token: %w", err)
	}

	return nil
}

func (rs *redisTokenStore) GetToken(ctx context.Context, value string) (*core.Token, error) {
	data, err := rs.rdb.Get(ctx, tokenKey(rs.options.KeyPrefix, value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrTokenNotFound
		}
		return nil, fmt.Errorf("reading token: %w", err)
	}

	var t core.Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshaling token: %w", err)
	}

	return &t, nil
}

func (rs *redisTokenStore) ListTokens(ctx context.Context, taskID string) ([]*core.Token, error) {
	p := rs.options.KeyPrefix

	var values []string
	var err error
	if taskID == "" {
		values, err = rs.rdb.ZRange(ctx, tokensByCreation(p), 0, -1).Result()
	} else {
		values, err = rs.rdb.SMembers(ctx, taskTokensKey(p, taskID)).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}

	tokens, err := rs.load(ctx, values)
	if err != nil {
		return nil, err
	}

	sort.Slice(tokens, func(i, j int) bool {
		if !tokens[i].CreatedOn.Equal(tokens[j].CreatedOn) {
			return tokens[i].CreatedOn.Before(tokens[j].CreatedOn)
		}
		return tokens[i].Value < tokens[j].Value
	})

	return tokens, nil
}

// load reads the given tokens, skipping values whose key is gone.
func (rs *redisTokenStore) load(ctx context.Context, values []string) ([]*core.Token, error) {
	tokens := make([]*core.Token, 0, len(values))
	if len(values) == 0 {
		return tokens, nil
	}

	keys := make([]string, len(values))
	for i, v := range values {
		keys[i] = tokenKey(rs.options.KeyPrefix, v)
	}

	res, err := rs.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading tokens: %w", err)
	}

	for _, r := range res {
		s, ok := r.(string)
		if !ok {
			continue
		}

		var t core.Token
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, fmt.Errorf("unmarshaling token: %w", err)
		}
		tokens = append(tokens, &t)
	}

	return tokens, nil
}

func (rs *redisTokenStore) DeleteToken(ctx context.Context, value string) error {
	t, err := rs.GetToken(ctx, value)
	if err != nil {
		return err
	}

	_, err = rs.remove(ctx, []*core.Token{t})
	return err
}

func (rs *redisTokenStore) DeleteTaskTokens(ctx context.Context, taskID string) (int, error) {
	tokens, err := rs.ListTokens(ctx, taskID)
	if err != nil {
		return 0, err
	}

	n, err := rs.remove(ctx, tokens)
	if err != nil {
		return 0, err
	}

	// Drop any leftover members of the task set
	if err := rs.rdb.Del(ctx, taskTokensKey(rs.options.KeyPrefix, taskID)).Err(); err != nil {
		return n, fmt.Errorf("removing task token set: %w", err)
	}

	return n, nil
}

func (rs *redisTokenStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	// Scores only have millisecond precision, load candidates and compare exactly
	values, err := rs.rdb.ZRangeByScore(ctx, tokensExpiring(rs.options.KeyPrefix), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("finding expired tokens: %w", err)
	}

	candidates, err := rs.load(ctx, values)
	if err != nil {
		return 0, err
	}

	if err := rs.dropVanished(ctx, values, candidates); err != nil {
		return 0, err
	}

	expired := make([]*core.Token, 0, len(candidates))
	for _, t := range candidates {
		if t.Expired(now) {
			expired = append(expired, t)
		}
	}

	n, err := rs.remove(ctx, expired)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		rs.Metrics().Counter(metrickeys.TokenExpired, metrics.Tags{}, int64(n))
	}

	return n, nil
}

// remove deletes tokens with their index entries and returns how many token
// keys existed.
func (rs *redisTokenStore) remove(ctx context.Context, tokens []*core.Token) (int, error) {
	if len(tokens) == 0 {
		return 0, nil
	}

	p := rs.options.KeyPrefix
	dels := make([]*redis.IntCmd, 0, len(tokens))

	_, err := rs.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, t := range tokens {
			dels = append(dels, pipe.Del(ctx, tokenKey(p, t.Value)))
			pipe.SRem(ctx, taskTokensKey(p, t.TaskID), t.Value)
			pipe.ZRem(ctx, tokensByCreation(p), t.Value)
			pipe.ZRem(ctx, tokensExpiring(p), t.Value)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("removing tokens: %w", err)
	}

	n := 0
	for _, d := range dels {
		n += int(d.Val())
	}

	return n, nil
}

// dropVanished removes index entries whose token key redis already expired.
func (rs *redisTokenStore) dropVanished(ctx context.Context, values []string, loaded []*core.Token) error {
	found := make(map[string]bool, len(loaded))
	for _, t := range loaded {
		found[t.Value] = true
	}

	vanished := make([]any, 0)
	for _, v := range values {
		if !found[v] {
			vanished = append(vanished, v)
		}
	}

	if len(vanished) == 0 {
		return nil
	}

	p := rs.options.KeyPrefix
	_, err := rs.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, tokensByCreation(p), vanished...)
		pipe.ZRem(ctx, tokensExpiring(p), vanished...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("removing vanished tokens: %w", err)
	}

	return nil
}
