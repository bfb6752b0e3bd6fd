package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adjutant-go/adjutant/action"
	"github.com/adjutant-go/adjutant/core"
	"github.com/adjutant-go/adjutant/internal/metrickeys"
	"github.com/adjutant-go/adjutant/internal/tracing"
	"github.com/adjutant-go/adjutant/log"
	"github.com/adjutant-go/adjutant/metrics"
	"github.com/adjutant-go/adjutant/notify"
	goerrors "github.com/go-errors/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	PhasePreApprove  = "pre_approve"
	PhasePostApprove = "post_approve"
	PhaseSubmit      = "submit"
)

// Outcome aggregates the results of one phase over the actions it reached.
type Outcome struct {
	Valid bool

	// NeedsToken is set after post-approve when a token gates submit. Token is
	// the token minted by that call, if any.
	NeedsToken bool
	Token      *core.Token

	// AutoApprove is set after pre-approve when the task may skip manual
	// approval.
	AutoApprove bool

	Completed bool

	// Errors holds field rejections by action order.
	Errors map[int]action.ValidationErrors

	Notes []string
}

func (o *Outcome) add(rec *core.ActionRecord, res action.Result) {
	if !res.Valid {
		o.Valid = false
	}

	if !res.Errors.Empty() {
		if o.Errors == nil {
			o.Errors = map[int]action.ValidationErrors{}
		}
		o.Errors[rec.Order] = res.Errors
	}

	for _, n := range res.Notes {
		o.Notes = append(o.Notes, fmt.Sprintf("%s: %s", rec.Kind, n))
	}
}

// phaseFunc runs one phase of a single action.
type phaseFunc func(ctx context.Context, a action.Action, s *action.State) (action.Result, error)

// RunPreApprove validates every action, regardless of earlier rejections, so
// all problems surface at once. It is safe to call repeatedly until the task is
// approved.
func (e *Engine) RunPreApprove(ctx context.Context, id string) (Outcome, error) {
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

	return e.preApprove(ctx, task)
}

func (e *Engine) preApprove(ctx context.Context, task *core.Task) (Outcome, error) {
	out, err := e.runActions(ctx, task, PhasePreApprove, func(ctx context.Context, a action.Action, s *action.State) (action.Result, error) {
		res, err := a.PreApprove(ctx, s)
		if err != nil {
			return res, err
		}

		rec := s.Record()
		rec.Valid = res.Valid && res.Errors.Empty()
		rec.AutoApprove = res.AutoApprove
		rec.State = core.ActionStatePreChecked

		return res, nil
	})
	if err != nil {
		return out, err
	}

	out.AutoApprove = out.Valid && e.autoApprove(task)

	return out, nil
}

// autoApprove resolves the actions' votes. Any vote against wins, then any
// vote for, then the task type's default.
func (e *Engine) autoApprove(task *core.Task) bool {
	votedFor := false
	for _, a := range task.Actions {
		if a.AutoApprove == nil {
			continue
		}
		if !*a.AutoApprove {
			return false
		}
		votedFor = true
	}

	if votedFor {
		return true
	}

	return e.options.taskSettings(task.TaskType).AllowAutoApprove
}

// RunPostApprove applies the side effects of every action in order. It stops
// at the first unexpected fault and leaves the approval in place so the call
// can be retried. When an action needs deferred fields a single token is
// minted for the task.
func (e *Engine) RunPostApprove(ctx context.Context, id string) (Outcome, error) {
	task, err := e.store.GetTask(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	if err := checkActive(task); err != nil {
		return Outcome{}, err
	}

	return e.postApprove(ctx, task)
}

func (e *Engine) postApprove(ctx context.Context, task *core.Task) (Outcome, error) {
	if !task.Approved {
		return Outcome{}, ErrTaskNotApproved
	}

	needsToken := false
	out, err := e.runActions(ctx, task, PhasePostApprove, func(ctx context.Context, a action.Action, s *action.State) (action.Result, error) {
		res, err := a.PostApprove(ctx, s)
		if err != nil {
			return res, err
		}

		rec := s.Record()
		rec.Valid = res.Valid
		rec.NeedToken = res.Valid && res.NeedToken
		rec.TokenFields = nil
		if rec.NeedToken {
			rec.TokenFields = res.TokenFields
			needsToken = true
		}
		if res.Valid {
			rec.State = core.ActionStateApprovedPending
		}

		return res, nil
	})

	// Records left over from an earlier run past a fault do not count.
	out.NeedsToken = needsToken

	if err != nil || !out.Valid || !out.NeedsToken {
		return out, err
	}

	token, err := e.ensureToken(ctx, task)
	if err != nil {
		return out, err
	}
	out.Token = token

	return out, nil
}

// RunSubmit finalizes every action with the fields it declared. A task whose
// actions need deferred fields can only be submitted while it holds a valid
// token. On success the task is completed and its tokens are removed.
func (e *Engine) RunSubmit(ctx context.Context, id string, fields map[string]string) (Outcome, error) {
	task, err := e.store.GetTask(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	if err := checkActive(task); err != nil {
		return Outcome{}, err
	}

	if task.NeedToken() {
		tokens, err := e.validTokens(ctx, task.ID)
		if err != nil {
			return Outcome{}, err
		}
		if len(tokens) == 0 {
			return Outcome{}, ErrTokenRequired
		}
	}

	return e.submit(ctx, task, fields)
}

func (e *Engine) submit(ctx context.Context, task *core.Task, fields map[string]string) (Outcome, error) {
	if !task.Approved {
		return Outcome{}, ErrTaskNotApproved
	}

	if !task.Valid() {
		return Outcome{}, ErrTaskInvalid
	}

	for _, rec := range task.Actions {
		if rec.State != core.ActionStateApprovedPending && rec.State != core.ActionStateComplete {
			return Outcome{}, ErrTaskNotApplied
		}
	}

	if err := missingFields(task.TokenFields(), fields); err != nil {
		return Outcome{}, err
	}

	out, err := e.runActions(ctx, task, PhaseSubmit, func(ctx context.Context, a action.Action, s *action.State) (action.Result, error) {
		rec := s.Record()

		// Finalized on an earlier, partially failed submit
		if rec.State == core.ActionStateComplete {
			return action.Valid(), nil
		}

		subset := make(map[string]string, len(rec.TokenFields))
		for _, f := range rec.TokenFields {
			subset[f] = fields[f]
		}

		res, err := a.Submit(ctx, s, subset)
		if err != nil {
			return res, err
		}

		rec.Valid = res.Valid
		if res.Valid {
			rec.State = core.ActionStateComplete
		}

		return res, nil
	})
	if err != nil || !out.Valid {
		return out, err
	}

	now := e.options.Clock.Now()
	task.Completed = true
	task.CompletedOn = &now

	if err := e.store.UpdateTask(ctx, task); err != nil {
		return out, fmt.Errorf("completing task: %w", err)
	}

	if _, err := e.store.DeleteTaskTokens(ctx, task.ID); err != nil {
		return out, fmt.Errorf("removing tokens: %w", err)
	}

	out.Completed = true

	e.options.Metrics.Counter(metrickeys.TaskCompleted, metrics.Tags{metrickeys.TaskType: task.TaskType}, 1)
	e.taskLogger(task).Info("Completed task")

	e.notify(ctx, task, notify.TemplateCompleted, nil)

	return out, nil
}

// runActions runs one phase over the task's actions in order and persists the
// task afterwards. An unexpected fault stops the loop; it is logged, recorded
// as an error notification and returned as *UnexpectedError.
func (e *Engine) runActions(ctx context.Context, task *core.Task, phase string, run phaseFunc) (Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "Engine."+phase, trace.WithAttributes(
		attribute.String(tracing.TaskID, task.ID),
		attribute.String(tracing.TaskType, task.TaskType),
		attribute.String(tracing.Phase, phase),
	))
	defer span.End()

	tags := metrics.Tags{metrickeys.TaskType: task.TaskType, metrickeys.Phase: phase}
	timer := metrics.NewTimer(e.options.Metrics, e.options.Clock, metrickeys.PhaseDuration, tags)
	defer timer.Stop()

	logger := e.taskLogger(task).With(slog.String(log.PhaseKey, phase))
	checkpoint := func(ctx context.Context) error {
		return e.store.UpdateTask(ctx, task)
	}

	out := Outcome{Valid: true}

	for _, rec := range task.Actions {
		res, err := e.runAction(ctx, task, rec, phase, logger, checkpoint, run)
		if err != nil {
			uerr := newUnexpectedError(task.ID, phase, rec.Kind, rec.Order, err)
			e.fault(ctx, task, uerr, logger)
			e.options.Metrics.Counter(metrickeys.PhaseFailed, tags, 1)

			out.Valid = false

			return out, tracing.WithSpanError(span, uerr)
		}

		if !res.Valid || !res.Errors.Empty() {
			e.options.Metrics.Counter(metrickeys.ActionInvalid, metrics.Tags{
				metrickeys.ActionKind: string(rec.Kind),
				metrickeys.Phase:      phase,
			}, 1)
			res.Valid = false
		}

		out.add(rec, res)
	}

	if err := e.store.UpdateTask(ctx, task); err != nil {
		return out, tracing.WithSpanError(span, fmt.Errorf("persisting task after %s: %w", phase, err))
	}

	return out, nil
}

func (e *Engine) runAction(
	ctx context.Context, task *core.Task, rec *core.ActionRecord, phase string,
	logger *slog.Logger, checkpoint action.Checkpoint, run phaseFunc,
) (res action.Result, err error) {
	ctx, span := e.tracer.Start(ctx, "Action."+phase, trace.WithAttributes(
		attribute.String(tracing.ActionKind, string(rec.Kind)),
		attribute.Int(tracing.ActionOrder, rec.Order),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = goerrors.Wrap(panicError(r), 2)
		}

		tracing.WithSpanError(span, err)
	}()

	a, err := e.registry.Build(rec.Kind, e.deps, rec.Input)
	if err != nil {
		return action.Result{}, fmt.Errorf("building action: %w", err)
	}

	logger = logger.With(
		slog.String(log.ActionKindKey, string(rec.Kind)),
		slog.Int(log.ActionOrderKey, rec.Order),
	)

	res, err = run(ctx, a, action.NewState(task, rec, logger, checkpoint))
	if err != nil {
		return res, err
	}

	logger.Debug("Ran action phase", slog.Bool(log.ActionValidKey, res.Valid))

	return res, nil
}

// fault records an unexpected error. Partial progress already cached by the
// action is persisted with the task.
func (e *Engine) fault(ctx context.Context, task *core.Task, uerr *UnexpectedError, logger *slog.Logger) {
	logger.Error("Unexpected error in action",
		slog.String(log.ActionKindKey, string(uerr.Kind)),
		slog.Int(log.ActionOrderKey, uerr.Order),
		"error", uerr.Err,
		"stack", uerr.Stack,
	)

	if err := e.store.UpdateTask(ctx, task); err != nil {
		logger.Error("Could not persist task after unexpected error", "error", err)
	}

	n := &core.Notification{
		ID:     uuid.NewString(),
		TaskID: task.ID,
		Notes: map[string][]string{
			"errors": {"Error: " + uerr.Detail()},
		},
		Error:     true,
		CreatedOn: e.options.Clock.Now(),
	}

	if err := e.store.CreateNotification(ctx, n); err != nil {
		logger.Error("Could not store error notification", "error", err)
		return
	}

	uerr.NotificationID = n.ID
	e.options.Metrics.Counter(metrickeys.NotificationCreated, metrics.Tags{metrickeys.TaskType: task.TaskType}, 1)
	logger.Debug("Stored error notification", slog.String(log.NotificationID, n.ID))
}
