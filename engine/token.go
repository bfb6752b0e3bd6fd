package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/adjutant-go/adjutant/action"
	"github.com/adjutant-go/adjutant/core"
	"github.com/adjutant-go/adjutant/internal/metrickeys"
	"github.com/adjutant-go/adjutant/log"
	"github.com/adjutant-go/adjutant/metrics"
	"github.com/adjutant-go/adjutant/notify"
	"github.com/adjutant-go/adjutant/store"
	"github.com/google/uuid"
)

// TokenDetails describes what a token holder has to supply.
type TokenDetails struct {
	Token *core.Token `json:"token"`

	TaskType string        `json:"task_type"`
	Actions  []action.Kind `json:"actions"`

	// RequiredFields is the union of the fields every action declared.
	RequiredFields []string `json:"required_fields"`
}

// GetToken returns a valid token. An expired token is deleted and reported
// as not found.
func (e *Engine) GetToken(ctx context.Context, value string) (*core.Token, error) {
	t, err := e.store.GetToken(ctx, value)
	if err != nil {
		return nil, err
	}

	if t.Expired(e.options.Clock.Now()) {
		if err := e.store.DeleteToken(ctx, value); err != nil && !errors.Is(err, store.ErrTokenNotFound) {
			return nil, fmt.Errorf("removing expired token: %w", err)
		}

		e.options.Metrics.Counter(metrickeys.TokenExpired, metrics.Tags{}, 1)

		return nil, store.ErrTokenNotFound
	}

	return t, nil
}

func (e *Engine) TokenDetails(ctx context.Context, value string) (*TokenDetails, error) {
	t, err := e.GetToken(ctx, value)
	if err != nil {
		return nil, err
	}

	task, err := e.store.GetTask(ctx, t.TaskID)
	if err != nil {
		return nil, err
	}

	if err := checkActive(task); err != nil {
		return nil, err
	}

	d := &TokenDetails{
		Token:          t,
		TaskType:       task.TaskType,
		Actions:        make([]action.Kind, 0, len(task.Actions)),
		RequiredFields: task.TokenFields(),
	}
	for _, a := range task.Actions {
		d.Actions = append(d.Actions, a.Kind)
	}

	return d, nil
}

// SubmitToken submits the token's task with the supplied fields. Every
// required field has to be present.
func (e *Engine) SubmitToken(ctx context.Context, value string, fields map[string]string) (Outcome, error) {
	t, err := e.GetToken(ctx, value)
	if err != nil {
		return Outcome{}, err
	}

	task, err := e.store.GetTask(ctx, t.TaskID)
	if err != nil {
		return Outcome{}, err
	}

	if err := checkActive(task); err != nil {
		return Outcome{}, err
	}

	e.taskLogger(task).Debug("Submitting token", slog.String(log.TokenKey, redact(value)))

	return e.submit(ctx, task, fields)
}

// ReissueToken replaces every token of an approved task with a fresh one.
func (e *Engine) ReissueToken(ctx context.Context, taskID string) (*core.Token, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if err := checkActive(task); err != nil {
		return nil, err
	}

	if !task.Approved {
		return nil, ErrTaskNotApproved
	}

	if !task.NeedToken() {
		return nil, ErrTokenNotRequired
	}

	if _, err := e.store.DeleteTaskTokens(ctx, task.ID); err != nil {
		return nil, fmt.Errorf("removing tokens: %w", err)
	}

	return e.issueToken(ctx, task)
}

// DeleteExpiredTokens purges all tokens that expired by now.
func (e *Engine) DeleteExpiredTokens(ctx context.Context) (int, error) {
	n, err := e.store.DeleteExpiredTokens(ctx, e.options.Clock.Now())
	if err != nil {
		return 0, err
	}

	e.logger.Debug("Deleted expired tokens", slog.Int("count", n))

	return n, nil
}

// ensureToken returns the task's valid token, minting one if there is none.
func (e *Engine) ensureToken(ctx context.Context, task *core.Task) (*core.Token, error) {
	tokens, err := e.validTokens(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	if len(tokens) > 0 {
		return tokens[len(tokens)-1], nil
	}

	return e.issueToken(ctx, task)
}

func (e *Engine) validTokens(ctx context.Context, taskID string) ([]*core.Token, error) {
	tokens, err := e.store.ListTokens(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}

	now := e.options.Clock.Now()
	valid := make([]*core.Token, 0, len(tokens))
	for _, t := range tokens {
		if !t.Expired(now) {
			valid = append(valid, t)
		}
	}

	return valid, nil
}

func (e *Engine) issueToken(ctx context.Context, task *core.Task) (*core.Token, error) {
	now := e.options.Clock.Now()
	t := &core.Token{
		Value:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		TaskID:    task.ID,
		Expires:   now.Add(e.options.TokenTTL),
		CreatedOn: now,
	}

	if err := e.store.CreateToken(ctx, t); err != nil {
		return nil, fmt.Errorf("creating token: %w", err)
	}

	e.options.Metrics.Counter(metrickeys.TokenIssued, metrics.Tags{metrickeys.TaskType: task.TaskType}, 1)
	e.taskLogger(task).Debug("Issued token", slog.String(log.TokenKey, redact(t.Value)))

	e.notify(ctx, task, notify.TemplateToken, map[string]any{
		"token":           t.Value,
		"required_fields": task.TokenFields(),
		"expires":         t.Expires,
	})

	return t, nil
}

// redact keeps enough of a token to correlate log lines.
func redact(token string) string {
	if len(token) <= 6 {
		return "***"
	}

	return token[:6] + "***"
}
