package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/adjutant-go/adjutant/log"
	"github.com/cenkalti/backoff/v4"
)

type RetryOptions struct {
	// MaxAttempts bounds the number of calls including the first one.
	MaxAttempts int

	InitialInterval time.Duration
	MaxInterval     time.Duration

	Logger *slog.Logger
}

var DefaultRetryOptions = RetryOptions{
	MaxAttempts:     3,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

// WithRetries wraps a quota client so transient failures are retried with
// exponential backoff. ErrNotFound is never retried. Quota writes set absolute
// values and are safe to repeat.
func WithRetries(qc QuotaClient, opts RetryOptions) QuotaClient {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultRetryOptions.MaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &retryingQuotaClient{next: qc, opts: opts}
	if ur, ok := qc.(UsageReporter); ok {
		return &retryingUsageClient{retryingQuotaClient: r, usage: ur}
	}

	return r
}

type retryingQuotaClient struct {
	next QuotaClient
	opts RetryOptions
}

var _ QuotaClient = (*retryingQuotaClient)(nil)

func (c *retryingQuotaClient) Service() Service {
	return c.next.Service()
}

func (c *retryingQuotaClient) GetQuota(ctx context.Context, region, projectID string) (Quota, error) {
	var q Quota
	err := c.retry(ctx, "GetQuota", func() error {
		var err error
		q, err = c.next.GetQuota(ctx, region, projectID)
		return err
	})

	return q, err
}

func (c *retryingQuotaClient) SetQuota(ctx context.Context, region, projectID string, quota Quota) error {
	return c.retry(ctx, "SetQuota", func() error {
		return c.next.SetQuota(ctx, region, projectID, quota)
	})
}

func (c *retryingQuotaClient) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	if c.opts.InitialInterval > 0 {
		b.InitialInterval = c.opts.InitialInterval
	}
	if c.opts.MaxInterval > 0 {
		b.MaxInterval = c.opts.MaxInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()

	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.MaxAttempts-1)), ctx)

	return backoff.RetryNotify(func() error {
		err := fn()
		if errors.Is(err, ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, bo, func(err error, wait time.Duration) {
		c.opts.Logger.Warn("Retrying quota call",
			log.ServiceKey, string(c.next.Service()),
			"op", op,
			"error", err,
			"wait", wait)
	})
}

type retryingUsageClient struct {
	*retryingQuotaClient
	usage UsageReporter
}

var _ UsageReporter = (*retryingUsageClient)(nil)

func (c *retryingUsageClient) GetUsage(ctx context.Context, region, projectID string) (Quota, error) {
	var q Quota
	err := c.retry(ctx, "GetUsage", func() error {
		var err error
		q, err = c.usage.GetUsage(ctx, region, projectID)
		return err
	})

	return q, err
}
