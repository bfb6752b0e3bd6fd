package users

import (
	"context"
	"fmt"

	"github.com/adjutant-go/adjutant/action"
)

type ResetPasswordSettings struct {
	AutoApprove bool `json:"auto_approve" yaml:"auto_approve"`
}

var DefaultResetPasswordSettings = ResetPasswordSettings{
	AutoApprove: true,
}

type ResetPasswordInput struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username,omitempty"`
	DomainID string `json:"domain_id,omitempty"`
}

func ResetUserPasswordDefinition() action.Definition {
	return action.Define(KindResetUserPassword, DefaultResetPasswordSettings,
		func(d action.Deps, s ResetPasswordSettings, in ResetPasswordInput) action.Action {
			return &resetUserPassword{deps: d, settings: s, input: in}
		},
		nil,
	)
}

type resetUserPassword struct {
	deps     action.Deps
	settings ResetPasswordSettings
	input    ResetPasswordInput
}

func (a *resetUserPassword) username() string {
	return orDefault(a.input.Username, a.input.Email)
}

func (a *resetUserPassword) PreApprove(ctx context.Context, s *action.State) (action.Result, error) {
	u, err := findUser(ctx, a.deps.Identity, a.username(), orDefault(a.input.DomainID, defaultDomain))
	if err != nil {
		return action.Result{}, err
	}
	if u == nil {
		return action.Invalid("User does not exist."), nil
	}

	return action.Valid().WithAutoApprove(a.settings.AutoApprove), nil
}

func (a *resetUserPassword) PostApprove(ctx context.Context, s *action.State) (action.Result, error) {
	u, err := findUser(ctx, a.deps.Identity, a.username(), orDefault(a.input.DomainID, defaultDomain))
	if err != nil {
		return action.Result{}, err
	}
	if u == nil {
		return action.Invalid("User does not exist."), nil
	}

	if err := action.StoreCache(ctx, s, userCache{UserID: u.ID}); err != nil {
		return action.Result{}, err
	}

	return action.WithToken(FieldPassword), nil
}

func (a *resetUserPassword) Submit(ctx context.Context, s *action.State, fields map[string]string) (action.Result, error) {
	cache, err := action.LoadCache[userCache](s)
	if err != nil {
		return action.Result{}, err
	}
	if cache.UserID == "" {
		return action.Invalid("Password reset was never approved."), nil
	}

	password := fields[FieldPassword]
	if password == "" {
		return action.Invalid("A password is required."), nil
	}

	if err := a.deps.Identity.UpdatePassword(ctx, cache.UserID, password); err != nil {
		return action.Result{}, fmt.Errorf("setting password: %w", err)
	}

	return action.Valid(), nil
}
