package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/adjutant-go/adjutant/core"
	"github.com/adjutant-go/adjutant/engine"
	"github.com/adjutant-go/adjutant/store"
	"github.com/spf13/cobra"
)

func newValidateConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Check the configuration file and the action overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.newEngine(nil); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", a.configPath)
			return nil
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			m, ok := s.(migrator)
			if !ok {
				return fmt.Errorf("store driver %q has no migrations", a.cfg.Store.Driver)
			}

			if err := m.Migrate(); err != nil {
				return err
			}

			a.logger.Info("Schema is up to date", "driver", a.cfg.Store.Driver)
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show unacknowledged errors and the latest tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(func(e *engine.Engine) error {
				s, err := e.Status(cmd.Context())
				if err != nil {
					return err
				}

				return writeJSON(cmd.OutOrStdout(), s)
			})
		},
	}
}

func newTasksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and cancel tasks",
	}

	var (
		filter   store.TaskFilter
		complete bool
	)

	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("completed") {
				filter.Completed = &complete
			}

			return a.withEngine(func(e *engine.Engine) error {
				tasks, err := e.ListTasks(cmd.Context(), admin, filter)
				if err != nil {
					return err
				}

				records := make([]core.TaskRecord, 0, len(tasks))
				for _, t := range tasks {
					records = append(records, t.Record(false))
				}

				return writeJSON(cmd.OutOrStdout(), records)
			})
		},
	}
	list.Flags().StringVar(&filter.TaskType, "type", "", "only tasks of this type")
	list.Flags().StringVar(&filter.ProjectID, "project", "", "only tasks of this project")
	list.Flags().BoolVar(&complete, "completed", false, "only completed (or, with =false, open) tasks")
	list.Flags().IntVar(&filter.Limit, "limit", 20, "maximum number of tasks")
	list.Flags().IntVar(&filter.Offset, "offset", 0, "number of tasks to skip")

	cancel := &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a task and remove its tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(func(e *engine.Engine) error {
				return e.Cancel(cmd.Context(), args[0])
			})
		},
	}

	cmd.AddCommand(list, cancel)

	return cmd
}

func newTokensCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage submission tokens",
	}

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(func(e *engine.Engine) error {
				n, err := e.DeleteExpiredTokens(cmd.Context())
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired tokens\n", n)
				return nil
			})
		},
	}

	reissue := &cobra.Command{
		Use:   "reissue <task-id>",
		Short: "Replace the tokens of an approved task with a new one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(func(e *engine.Engine) error {
				t, err := e.ReissueToken(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				return writeJSON(cmd.OutOrStdout(), t.Record())
			})
		},
	}

	cmd.AddCommand(purge, reissue)

	return cmd
}

func newNotificationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Triage notifications",
	}

	var (
		filter store.NotificationFilter
		all    bool
	)

	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all {
				unacked := false
				filter.Acknowledged = &unacked
			}

			return a.withEngine(func(e *engine.Engine) error {
				ns, err := e.ListNotifications(cmd.Context(), filter)
				if err != nil {
					return err
				}

				records := make([]core.NotificationRecord, 0, len(ns))
				for _, n := range ns {
					records = append(records, n.Record())
				}

				return writeJSON(cmd.OutOrStdout(), records)
			})
		},
	}
	list.Flags().BoolVar(&all, "all", false, "include acknowledged notifications")
	list.Flags().StringVar(&filter.TaskID, "task", "", "only notifications of this task")
	list.Flags().IntVar(&filter.Limit, "limit", 50, "maximum number of notifications")

	ack := &cobra.Command{
		Use:   "ack <notification-id>...",
		Short: "Acknowledge notifications",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(func(e *engine.Engine) error {
				for _, id := range args {
					if err := e.AcknowledgeNotification(cmd.Context(), id); err != nil {
						return fmt.Errorf("acknowledging %s: %w", id, err)
					}
				}

				return nil
			})
		},
	}

	cmd.AddCommand(list, ack)

	return cmd
}

// admin lists tasks across all projects.
var admin = core.Identity{UserID: "adjutant-cli", Roles: []string{core.RoleAdmin}}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
