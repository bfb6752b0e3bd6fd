// Package engine orchestrates tasks: it runs the three action phases in
// order, keeps the task lifecycle and gates submission behind tokens.
//
// The engine holds no per-task state between calls. Two concurrent calls on
// the same task are not serialized; callers needing that must lock around
// the engine.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/adjutant-go/adjutant/action"
	"github.com/adjutant-go/adjutant/core"
	"github.com/adjutant-go/adjutant/internal/metrickeys"
	"github.com/adjutant-go/adjutant/internal/tracing"
	"github.com/adjutant-go/adjutant/log"
	"github.com/adjutant-go/adjutant/metrics"
	"github.com/adjutant-go/adjutant/notify"
	"github.com/adjutant-go/adjutant/registry"
	"github.com/adjutant-go/adjutant/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "adjutant-engine"

// ActionSpec requests one action of a new task.
type ActionSpec struct {
	Kind  action.Kind     `json:"kind"`
	Input json.RawMessage `json:"input"`
}

type Engine struct {
	store    store.Store
	registry *registry.Registry
	deps     action.Deps
	options  Options

	tracer trace.Tracer
	logger *slog.Logger
}

func New(s store.Store, r *registry.Registry, deps action.Deps, opts ...EngineOption) *Engine {
	options := ApplyOptions(opts...)

	if deps.Clock == nil {
		deps.Clock = options.Clock
	}

	return &Engine{
		store:    s,
		registry: r,
		deps:     deps,
		options:  options,
		tracer:   options.TracerProvider.Tracer(TracerName),
		logger:   options.Logger,
	}
}

func (e *Engine) Store() store.Store {
	return e.store
}

// CreateTask validates the action inputs and persists a new task. It does not
// run any phase.
func (e *Engine) CreateTask(ctx context.Context, requester core.Identity, taskType string, specs []ActionSpec) (*core.Task, error) {
	if len(specs) == 0 {
		return nil, ErrNoActions
	}

	ctx, span := e.tracer.Start(ctx, "Engine.CreateTask", trace.WithAttributes(
		attribute.String(tracing.TaskType, taskType),
	))
	defer span.End()

	var errs []error
	for _, spec := range specs {
		if err := e.registry.Validate(spec.Kind, spec.Input); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, tracing.WithSpanError(span, err)
	}

	task := core.NewTask(uuid.NewString(), taskType, requester, e.options.Clock.Now())
	for i, spec := range specs {
		task.Actions = append(task.Actions, core.NewActionRecord(spec.Kind, i, spec.Input))
	}

	span.SetAttributes(attribute.String(tracing.TaskID, task.ID))

	if err := e.store.CreateTask(ctx, task); err != nil {
		return nil, tracing.WithSpanError(span, fmt.Errorf("creating task: %w", err))
	}

	e.options.Metrics.Counter(metrickeys.TaskCreated, metrics.Tags{metrickeys.TaskType: taskType}, 1)
	e.taskLogger(task).Debug("Created task", slog.Int("actions", len(task.Actions)))

	e.notify(ctx, task, notify.TemplateInitial, nil)

	return task, nil
}

func (e *Engine) GetTask(ctx context.Context, id string) (*core.Task, error) {
	return e.store.GetTask(ctx, id)
}

// ListTasks lists tasks visible to the requester. Non-administrators only see
// tasks of their own project.
func (e *Engine) ListTasks(ctx context.Context, requester core.Identity, filter store.TaskFilter) ([]*core.Task, error) {
	if !requester.IsAdmin() {
		filter.ProjectID = requester.ProjectID
	}

	return e.store.ListTasks(ctx, filter)
}

// UpdateTask replaces the inputs of a task that has not been approved yet and
// runs pre-approve again. inputs holds one entry per action, in order.
func (e *Engine) UpdateTask(ctx context.Context, id string, inputs []json.RawMessage) (Outcome, error) {
	task, err := e.store.GetTask(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	if err := checkActive(task); err != nil {
		return Outcome{}, err
	}

	if task.Approved {
		return Outcome{}, ErrTaskApproved
	}

	if len(inputs) != len(task.Actions) {
		return Outcome{}, fmt.Errorf("task has %d actions, got %d inputs", len(task.Actions), len(inputs))
	}

	var errs []error
	for i, rec := range task.Actions {
		if err := e.registry.Validate(rec.Kind, inputs[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return Outcome{}, err
	}

	for i, rec := range task.Actions {
		rec.Input = inputs[i]
	}

	if err := e.store.UpdateTask(ctx, task); err != nil {
		return Outcome{}, fmt.Errorf("updating task: %w", err)
	}

	e.taskLogger(task).Debug("Updated task inputs")

	return e.preApprove(ctx, task)
}

// Approve records the approver and approval time. Approving again while the
// task is not terminal overwrites both and invalidates outstanding tokens.
func (e *Engine) Approve(ctx context.Context, id string, approver core.Identity) error {
	task, err := e.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	return e.approve(ctx, task, approver)
}

func (e *Engine) approve(ctx context.Context, task *core.Task, approver core.Identity) error {
	if err := checkActive(task); err != nil {
		return err
	}

	if !task.Valid() {
		return ErrTaskInvalid
	}

	logger := e.taskLogger(task).With(slog.String(log.ApproverKey, approver.UserID))

	if task.Approved {
		n, err := e.store.DeleteTaskTokens(ctx, task.ID)
		if err != nil {
			return fmt.Errorf("removing outstanding tokens: %w", err)
		}

		logger.Info("Task approved again", slog.Int("tokens_removed", n))
	}

	now := e.options.Clock.Now()
	task.Approved = true
	task.ApprovedBy = &approver
	task.ApprovedOn = &now

	if err := e.store.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("approving task: %w", err)
	}

	e.options.Metrics.Counter(metrickeys.TaskApproved, metrics.Tags{metrickeys.TaskType: task.TaskType}, 1)
	logger.Debug("Approved task")

	return nil
}

// Cancel stops a task for good. Outstanding tokens are removed.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	task, err := e.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if err := checkActive(task); err != nil {
		return err
	}

	task.Cancelled = true

	if err := e.store.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("cancelling task: %w", err)
	}

	if _, err := e.store.DeleteTaskTokens(ctx, task.ID); err != nil {
		return fmt.Errorf("removing tokens: %w", err)
	}

	e.options.Metrics.Counter(metrickeys.TaskCancelled, metrics.Tags{metrickeys.TaskType: task.TaskType}, 1)
	e.taskLogger(task).Debug("Cancelled task")

	return nil
}

// Process approves a task and drives it as far as it can go: post-approve,
// then either a token for deferred fields or submit and completion.
func (e *Engine) Process(ctx context.Context, id string, approver core.Identity) (Outcome, error) {
	task, err := e.store.GetTask(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	if err := e.approve(ctx, task, approver); err != nil {
		return Outcome{}, err
	}

	out, err := e.postApprove(ctx, task)
	if err != nil || !out.Valid || out.NeedsToken {
		return out, err
	}

	return e.submit(ctx, task, nil)
}

func checkActive(task *core.Task) error {
	switch {
	case task.Completed:
		return ErrTaskCompleted
	case task.Cancelled:
		return ErrTaskCancelled
	}

	return nil
}

func (e *Engine) taskLogger(task *core.Task) *slog.Logger {
	return e.logger.With(
		slog.String(log.TaskIDKey, task.ID),
		slog.String(log.TaskTypeKey, task.TaskType),
	)
}

// notify sends a message if the task type wants it. Delivery failures are
// logged and otherwise ignored.
func (e *Engine) notify(ctx context.Context, task *core.Task, template string, data map[string]any) {
	settings := e.options.taskSettings(task.TaskType)
	if !settings.sends(template) {
		return
	}

	msg := notify.Message{
		TaskID:   task.ID,
		TaskType: task.TaskType,
		To:       settings.Recipients,
		Data: map[string]any{
			"task": task.Record(false),
		},
	}
	for k, v := range data {
		msg.Data[k] = v
	}

	if err := e.options.Notifier.Send(ctx, template, msg); err != nil {
		e.taskLogger(task).Error("Could not send message",
			slog.String(log.TemplateKey, template), "error", err)
	}
}
