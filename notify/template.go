package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"github.com/adjutant-go/adjutant/internal/metrickeys"
	mi "github.com/adjutant-go/adjutant/internal/metrics"
	"github.com/adjutant-go/adjutant/log"
	"github.com/adjutant-go/adjutant/metrics"
	"github.com/cenkalti/backoff/v4"
)

// Template is the raw text of a message template.
type Template struct {
	Subject string `yaml:"subject" json:"subject"`
	Body    string `yaml:"body" json:"body"`
}

type Options struct {
	Logger  *slog.Logger
	Metrics metrics.Client

	// DefaultTo is used for messages without recipients.
	DefaultTo []string

	// MaxAttempts bounds delivery attempts per message.
	MaxAttempts     int
	InitialInterval time.Duration
}

var DefaultOptions = Options{
	Logger:          slog.Default(),
	Metrics:         mi.NewNoopMetricsClient(),
	MaxAttempts:     3,
	InitialInterval: 200 * time.Millisecond,
}

type Option func(*Options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

func WithMetrics(client metrics.Client) Option {
	return func(o *Options) {
		o.Metrics = client
	}
}

func WithDefaultRecipients(to ...string) Option {
	return func(o *Options) {
		o.DefaultTo = to
	}
}

func WithRetries(maxAttempts int, initial time.Duration) Option {
	return func(o *Options) {
		o.MaxAttempts = maxAttempts
		o.InitialInterval = initial
	}
}

type compiled struct {
	subject *template.Template
	body    *template.Template
}

type templateDispatcher struct {
	templates map[string]compiled
	sender    Sender
	opts      Options
}

var _ Dispatcher = (*templateDispatcher)(nil)

// NewTemplateDispatcher parses all templates up front so a broken template is
// a startup error.
func NewTemplateDispatcher(templates map[string]Template, sender Sender, opts ...Option) (Dispatcher, error) {
	options := DefaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.MaxAttempts <= 0 {
		options.MaxAttempts = 1
	}

	d := &templateDispatcher{
		templates: make(map[string]compiled, len(templates)),
		sender:    sender,
		opts:      options,
	}

	for name, t := range templates {
		subject, err := template.New(name + ".subject").Option("missingkey=zero").Parse(t.Subject)
		if err != nil {
			return nil, fmt.Errorf("parsing subject of %q: %w", name, err)
		}

		body, err := template.New(name + ".body").Option("missingkey=zero").Parse(t.Body)
		if err != nil {
			return nil, fmt.Errorf("parsing body of %q: %w", name, err)
		}

		d.templates[name] = compiled{subject: subject, body: body}
	}

	return d, nil
}

func (d *templateDispatcher) Send(ctx context.Context, name string, msg Message) error {
	t, ok := d.templates[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}

	data := map[string]any{
		"TaskID":   msg.TaskID,
		"TaskType": msg.TaskType,
	}
	for k, v := range msg.Data {
		data[k] = v
	}

	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return fmt.Errorf("rendering subject of %q: %w", name, err)
	}
	if err := t.body.Execute(&body, data); err != nil {
		return fmt.Errorf("rendering body of %q: %w", name, err)
	}

	to := msg.To
	if len(to) == 0 {
		to = d.opts.DefaultTo
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.opts.InitialInterval
	b.MaxElapsedTime = 0
	b.Reset()

	err := backoff.RetryNotify(func() error {
		return d.sender.Deliver(ctx, to, subject.String(), body.String())
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.opts.MaxAttempts-1)), ctx),
		func(err error, wait time.Duration) {
			d.opts.Logger.Warn("Retrying message delivery",
				log.TemplateKey, name,
				log.TaskIDKey, msg.TaskID,
				"error", err,
				"wait", wait)
		})
	if err != nil {
		return fmt.Errorf("delivering %q: %w", name, err)
	}

	d.opts.Metrics.Counter(metrickeys.MessageSent, metrics.Tags{metrickeys.Template: name}, 1)
	d.opts.Logger.Debug("Sent message", log.TemplateKey, name, log.TaskIDKey, msg.TaskID)

	return nil
}

// LogSender writes messages to a logger instead of delivering them.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Deliver(ctx context.Context, to []string, subject, body string) error {
	s.Logger.InfoContext(ctx, "Message", "to", to, "subject", subject, "body", body)
	return nil
}
