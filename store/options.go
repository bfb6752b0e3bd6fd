package store

import (
	"log/slog"

	mi "github.com/adjutant-go/adjutant/internal/metrics"
	"github.com/adjutant-go/adjutant/metrics"
)

type Options struct {
	Logger *slog.Logger

	Metrics metrics.Client
}

var DefaultOptions Options = Options{
	Logger:  slog.Default(),
	Metrics: mi.NewNoopMetricsClient(),
}

type StoreOption func(*Options)

func WithLogger(logger *slog.Logger) StoreOption {
	return func(o *Options) {
		o.Logger = logger
	}
}

func WithMetrics(client metrics.Client) StoreOption {
	return func(o *Options) {
		o.Metrics = client
	}
}

func ApplyOptions(opts ...StoreOption) Options {
	options := DefaultOptions

	for _, opt := range opts {
		opt(&options)
	}

	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	return options
}
