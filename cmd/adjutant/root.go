package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/adjutant-go/adjutant/action"
	"github.com/adjutant-go/adjutant/actions"
	"github.com/adjutant-go/adjutant/config"
	"github.com/adjutant-go/adjutant/engine"
	"github.com/adjutant-go/adjutant/notify"
	"github.com/adjutant-go/adjutant/registry"
	"github.com/adjutant-go/adjutant/store"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type app struct {
	configPath   string
	logLevel     string
	stdoutTrace  bool
	otlpEndpoint string

	cfg    *config.Config
	logger *slog.Logger
	tp     trace.TracerProvider

	shutdown func(context.Context) error
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "adjutant",
		Short:         "Maintain an adjutant deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.shutdown == nil {
				return nil
			}

			return a.shutdown(cmd.Context())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "adjutant.yaml", "path to the configuration file")
	flags.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.BoolVar(&a.stdoutTrace, "trace", false, "print trace spans to stdout")
	flags.StringVar(&a.otlpEndpoint, "otlp-endpoint", "", "export trace spans over OTLP/HTTP to this endpoint")

	cmd.AddCommand(
		newValidateConfigCmd(a),
		newMigrateCmd(a),
		newStatusCmd(a),
		newTasksCmd(a),
		newTokensCmd(a),
		newNotificationsCmd(a),
	)

	return cmd
}

func (a *app) setup(ctx context.Context) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", a.logLevel, err)
	}

	a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.tp = noop.NewTracerProvider()
	if a.stdoutTrace || a.otlpEndpoint != "" {
		tp, err := newTracerProvider(ctx, a.stdoutTrace, a.otlpEndpoint)
		if err != nil {
			return err
		}

		a.tp = tp
		a.shutdown = tp.Shutdown
	}

	a.logger.Debug("Loaded configuration", "path", a.configPath, "driver", cfg.Store.Driver)

	return nil
}

// openStore opens the configured store without touching the schema.
func (a *app) openStore() (store.Store, error) {
	return openStore(a.cfg.Store, false,
		store.WithLogger(a.logger),
	)
}

// newEngine builds an engine for maintenance commands. It has no identity or
// service clients, so it must not run action phases.
func (a *app) newEngine(s store.Store) (*engine.Engine, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}

	r := registry.New()
	if err := actions.Register(r); err != nil {
		return nil, err
	}

	if err := a.cfg.Configure(r); err != nil {
		return nil, err
	}

	opts := append(a.cfg.EngineOptions(),
		engine.WithLogger(a.logger),
		engine.WithTracerProvider(a.tp),
	)

	if len(a.cfg.Templates) > 0 {
		d, err := notify.NewTemplateDispatcher(a.cfg.Templates, &notify.LogSender{Logger: a.logger},
			append(a.cfg.NotifyOptions(), notify.WithLogger(a.logger))...)
		if err != nil {
			return nil, err
		}

		opts = append(opts, engine.WithNotifier(d))
	}

	return engine.New(s, r, action.Deps{}, opts...), nil
}

// withEngine opens the store, runs f and closes the store again.
func (a *app) withEngine(f func(e *engine.Engine) error) (err error) {
	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.Close())
	}()

	e, err := a.newEngine(s)
	if err != nil {
		return err
	}

	return f(e)
}
