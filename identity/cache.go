package identity

import (
	"context"
	"time"

	"github.com/adjutant-go/adjutant/internal/metrickeys"
	"github.com/adjutant-go/adjutant/metrics"
	"github.com/jellydator/ttlcache/v3"
)

// cachingResolver memoizes project and user lookups by id. Role lookups and
// name searches always go to the backing resolver since onboarding actions
// depend on seeing their own writes.
type cachingResolver struct {
	Resolver

	mc       metrics.Client
	projects *ttlcache.Cache[string, *Project]
	users    *ttlcache.Cache[string, *User]
}

// NewCachingResolver wraps r with a bounded TTL cache for id lookups.
func NewCachingResolver(r Resolver, mc metrics.Client, size int, ttl time.Duration) *cachingResolver {
	projects := ttlcache.New(
		ttlcache.WithCapacity[string, *Project](uint64(size)),
		ttlcache.WithTTL[string, *Project](ttl),
	)
	users := ttlcache.New(
		ttlcache.WithCapacity[string, *User](uint64(size)),
		ttlcache.WithTTL[string, *User](ttl),
	)

	cr := &cachingResolver{
		Resolver: r,
		mc:       mc,
		projects: projects,
		users:    users,
	}

	projects.OnEviction(func(ctx context.Context, er ttlcache.EvictionReason, i *ttlcache.Item[string, *Project]) {
		cr.evicted(er)
	})
	users.OnEviction(func(ctx context.Context, er ttlcache.EvictionReason, i *ttlcache.Item[string, *User]) {
		cr.evicted(er)
	})

	return cr
}

func (cr *cachingResolver) evicted(er ttlcache.EvictionReason) {
	reason := ""
	switch er {
	case ttlcache.EvictionReasonExpired:
		reason = "expired"
	case ttlcache.EvictionReasonCapacityReached:
		reason = "capacity"
	case ttlcache.EvictionReasonDeleted:
		reason = "deleted"
	}

	cr.mc.Counter(metrickeys.IdentityCacheEviction, metrics.Tags{metrickeys.EvictionReason: reason}, 1)
}

func (cr *cachingResolver) GetProject(ctx context.Context, id string) (*Project, error) {
	if item := cr.projects.Get(id); item != nil {
		return item.Value(), nil
	}

	p, err := cr.Resolver.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	cr.projects.Set(id, p, ttlcache.DefaultTTL)
	cr.mc.Gauge(metrickeys.IdentityCacheSize, metrics.Tags{}, int64(cr.projects.Len()+cr.users.Len()))

	return p, nil
}

func (cr *cachingResolver) GetUser(ctx context.Context, id string) (*User, error) {
	if item := cr.users.Get(id); item != nil {
		return item.Value(), nil
	}

	u, err := cr.Resolver.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	cr.users.Set(id, u, ttlcache.DefaultTTL)
	cr.mc.Gauge(metrickeys.IdentityCacheSize, metrics.Tags{}, int64(cr.projects.Len()+cr.users.Len()))

	return u, nil
}

// Forget drops cached entries for the given id, e.g. after a write.
func (cr *cachingResolver) Forget(id string) {
	cr.projects.Delete(id)
	cr.users.Delete(id)
}

// StartEviction runs expiry until ctx is cancelled.
func (cr *cachingResolver) StartEviction(ctx context.Context) {
	go cr.projects.Start()
	go cr.users.Start()

	<-ctx.Done()

	cr.projects.Stop()
	cr.users.Stop()
}
