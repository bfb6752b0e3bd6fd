package engine

import (
	"log/slog"
	"time"

	mi "github.com/adjutant-go/adjutant/internal/metrics"
	"github.com/adjutant-go/adjutant/metrics"
	"github.com/adjutant-go/adjutant/notify"
	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TaskSettings tune the engine per task type.
type TaskSettings struct {
	// AllowAutoApprove is the default when no action votes on auto approval.
	AllowAutoApprove bool `yaml:"allow_auto_approve" json:"allow_auto_approve"`

	// Templates lists the message templates sent for the task type. nil sends
	// every template, an empty list sends none.
	Templates []string `yaml:"templates" json:"templates"`

	// Recipients overrides the dispatcher's default recipients.
	Recipients []string `yaml:"recipients" json:"recipients"`
}

func (s TaskSettings) sends(template string) bool {
	if s.Templates == nil {
		return true
	}

	for _, t := range s.Templates {
		if t == template {
			return true
		}
	}

	return false
}

type Options struct {
	Logger *slog.Logger

	Metrics metrics.Client

	TracerProvider trace.TracerProvider

	Clock clock.Clock

	Notifier notify.Dispatcher

	// TokenTTL is how long a submission token stays valid.
	TokenTTL time.Duration

	// TaskTypes holds settings per task type. Unknown types use DefaultTask.
	TaskTypes map[string]TaskSettings

	DefaultTask TaskSettings
}

var DefaultOptions Options = Options{
	Logger:         slog.Default(),
	Metrics:        mi.NewNoopMetricsClient(),
	TracerProvider: noop.NewTracerProvider(),
	Clock:          clock.New(),
	Notifier:       notify.NewNopDispatcher(),
	TokenTTL:       24 * time.Hour,
}

type EngineOption func(*Options)

func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *Options) {
		o.Logger = logger
	}
}

func WithMetrics(client metrics.Client) EngineOption {
	return func(o *Options) {
		o.Metrics = client
	}
}

func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(o *Options) {
		o.TracerProvider = tp
	}
}

func WithClock(clk clock.Clock) EngineOption {
	return func(o *Options) {
		o.Clock = clk
	}
}

func WithNotifier(d notify.Dispatcher) EngineOption {
	return func(o *Options) {
		o.Notifier = d
	}
}

func WithTokenTTL(ttl time.Duration) EngineOption {
	return func(o *Options) {
		o.TokenTTL = ttl
	}
}

func WithTaskSettings(taskType string, settings TaskSettings) EngineOption {
	return func(o *Options) {
		if o.TaskTypes == nil {
			o.TaskTypes = map[string]TaskSettings{}
		}
		o.TaskTypes[taskType] = settings
	}
}

func WithDefaultTaskSettings(settings TaskSettings) EngineOption {
	return func(o *Options) {
		o.DefaultTask = settings
	}
}

func ApplyOptions(opts ...EngineOption) Options {
	options := DefaultOptions
	options.TaskTypes = map[string]TaskSettings{}

	for _, opt := range opts {
		opt(&options)
	}

	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	return options
}

func (o Options) taskSettings(taskType string) TaskSettings {
	if s, ok := o.TaskTypes[taskType]; ok {
		return s
	}

	return o.DefaultTask
}
