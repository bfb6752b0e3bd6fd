package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/adjutant-go/adjutant/services"
	"github.com/adjutant-go/adjutant/services/fake"
	"github.com/stretchr/testify/require"
)

// flaky fails the first n calls of every operation.
type flaky struct {
	*fake.MeteredQuota

	n     int
	calls int
}

func (f *flaky) fail() error {
	f.calls++
	if f.calls <= f.n {
		return fmt.Errorf("attempt %d: connection reset", f.calls)
	}
	return nil
}

func (f *flaky) GetQuota(ctx context.Context, region, projectID string) (services.Quota, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.MeteredQuota.GetQuota(ctx, region, projectID)
}

func (f *flaky) SetQuota(ctx context.Context, region, projectID string, q services.Quota) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.MeteredQuota.SetQuota(ctx, region, projectID, q)
}

func (f *flaky) GetUsage(ctx context.Context, region, projectID string) (services.Quota, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.MeteredQuota.GetUsage(ctx, region, projectID)
}

var fastRetries = services.RetryOptions{
	MaxAttempts:     3,
	InitialInterval: time.Millisecond,
	MaxInterval:     time.Millisecond,
}

func Test_WithRetries(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		f    func(t *testing.T)
	}{
		{
			name: "recovers from transient failures",
			f: func(t *testing.T) {
				f := &flaky{MeteredQuota: fake.NewMeteredQuota(services.LoadBalancer), n: 2}
				c := services.WithRetries(f, fastRetries)

				require.NoError(t, c.SetQuota(ctx, "RegionOne", "p1", services.Quota{"load_balancer": 5}))
				require.Equal(t, 3, f.calls)

				q, err := c.GetQuota(ctx, "RegionOne", "p1")
				require.NoError(t, err)
				require.Equal(t, int64(5), q["load_balancer"])
			},
		},
		{
			name: "gives up after max attempts",
			f: func(t *testing.T) {
				f := &flaky{MeteredQuota: fake.NewMeteredQuota(services.LoadBalancer), n: 10}
				c := services.WithRetries(f, fastRetries)

				err := c.SetQuota(ctx, "RegionOne", "p1", services.Quota{"load_balancer": 5})
				require.ErrorContains(t, err, "attempt 3")
				require.Equal(t, 3, f.calls)
			},
		},
		{
			name: "not found is permanent",
			f: func(t *testing.T) {
				q := fake.NewQuota(services.Compute)
				q.Fail(fake.OpGetQuota, fmt.Errorf("project p1: %w", services.ErrNotFound))
				c := services.WithRetries(q, fastRetries)

				_, err := c.GetQuota(ctx, "RegionOne", "p1")
				require.ErrorIs(t, err, services.ErrNotFound)
			},
		},
		{
			name: "keeps usage reporting",
			f: func(t *testing.T) {
				m := fake.NewMeteredQuota(services.LoadBalancer)
				m.SetUsage("RegionOne", "p1", services.Quota{"load_balancer": 2})
				f := &flaky{MeteredQuota: m, n: 1}

				c := services.WithRetries(f, fastRetries)
				ur, ok := c.(services.UsageReporter)
				require.True(t, ok)

				usage, err := ur.GetUsage(ctx, "RegionOne", "p1")
				require.NoError(t, err)
				require.Equal(t, int64(2), usage["load_balancer"])

				_, ok = services.WithRetries(fake.NewQuota(services.Compute), fastRetries).(services.UsageReporter)
				require.False(t, ok)
			},
		},
		{
			name: "stops when the context is done",
			f: func(t *testing.T) {
				f := &flaky{MeteredQuota: fake.NewMeteredQuota(services.LoadBalancer), n: 10}
				c := services.WithRetries(f, services.RetryOptions{MaxAttempts: 100, InitialInterval: time.Hour})

				ctx, cancel := context.WithCancel(ctx)
				cancel()

				err := c.SetQuota(ctx, "RegionOne", "p1", services.Quota{"load_balancer": 5})
				require.Error(t, err)
				require.False(t, errors.Is(err, services.ErrNotFound))
				require.Equal(t, 1, f.calls)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.f(t)
		})
	}
}
