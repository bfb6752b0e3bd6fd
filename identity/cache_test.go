package identity_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/adjutant-go/adjutant/identity"
	"github.com/adjutant-go/adjutant/identity/fake"
	"github.com/adjutant-go/adjutant/internal/metrickeys"
	"github.com/adjutant-go/adjutant/metrics"
	"github.com/stretchr/testify/require"
)

type countingMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (m *countingMetrics) Counter(name string, tags metrics.Tags, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[name+"/"+tags[metrickeys.EvictionReason]] += value
}

func (m *countingMetrics) count(name, reason string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.counters[name+"/"+reason]
}

func (m *countingMetrics) Distribution(string, metrics.Tags, float64) {}
func (m *countingMetrics) Gauge(string, metrics.Tags, int64) {}
func (m *countingMetrics) Timing(string, metrics.Tags, time.Duration) {}
func (m *countingMetrics) WithTags(metrics.Tags) metrics.Client { return m }

func Test_CachingResolver(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		f    func(t *testing.T, m *fake.Manager, mc *countingMetrics)
	}{
		{
			name: "id lookups are cached",
			f: func(t *testing.T, m *fake.Manager, mc *countingMetrics) {
				p := m.AddProject(identity.Project{Name: "acme"})
				u := m.AddUser(identity.User{Name: "ops"})
				r := identity.NewCachingResolver(m, mc, 10, time.Hour)

				for i := 0; i < 3; i++ {
					got, err := r.GetProject(ctx, p.ID)
					require.NoError(t, err)
					require.Equal(t, "acme", got.Name)

					gu, err := r.GetUser(ctx, u.ID)
					require.NoError(t, err)
					require.Equal(t, "ops", gu.Name)
				}

				require.Equal(t, 2, m.Lookups())
			},
		},
		{
			name: "misses are not cached",
			f: func(t *testing.T, m *fake.Manager, mc *countingMetrics) {
				r := identity.NewCachingResolver(m, mc, 10, time.Hour)

				for i := 0; i < 2; i++ {
					_, err := r.GetProject(ctx, "missing")
					require.ErrorIs(t, err, identity.ErrNotFound)
				}

				require.Equal(t, 2, m.Lookups())
			},
		},
		{
			name: "forget drops the entry",
			f: func(t *testing.T, m *fake.Manager, mc *countingMetrics) {
				p := m.AddProject(identity.Project{Name: "acme"})
				r := identity.NewCachingResolver(m, mc, 10, time.Hour)

				_, err := r.GetProject(ctx, p.ID)
				require.NoError(t, err)

				r.Forget(p.ID)

				_, err = r.GetProject(ctx, p.ID)
				require.NoError(t, err)
				require.Equal(t, 2, m.Lookups())

				// Eviction handlers run asynchronously
				require.Eventually(t, func() bool {
					return mc.count(metrickeys.IdentityCacheEviction, "deleted") == 1
				}, time.Second, time.Millisecond)
			},
		},
		{
			name: "capacity evicts",
			f: func(t *testing.T, m *fake.Manager, mc *countingMetrics) {
				a := m.AddProject(identity.Project{Name: "a"})
				b := m.AddProject(identity.Project{Name: "b"})
				r := identity.NewCachingResolver(m, mc, 1, time.Hour)

				_, err := r.GetProject(ctx, a.ID)
				require.NoError(t, err)
				_, err = r.GetProject(ctx, b.ID)
				require.NoError(t, err)

				require.Eventually(t, func() bool {
					return mc.count(metrickeys.IdentityCacheEviction, "capacity") == 1
				}, time.Second, time.Millisecond)
			},
		},
		{
			name: "name searches pass through",
			f: func(t *testing.T, m *fake.Manager, mc *countingMetrics) {
				m.AddProject(identity.Project{Name: "acme"})
				r := identity.NewCachingResolver(m, mc, 10, time.Hour)

				p, err := r.FindProject(ctx, "acme", "default")
				require.NoError(t, err)
				require.Equal(t, "acme", p.Name)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.f(t, fake.NewManager(), &countingMetrics{counters: map[string]int64{}})
		})
	}
}
