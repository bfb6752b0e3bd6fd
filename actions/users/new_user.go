package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/adjutant-go/adjutant/action"
	"github.com/adjutant-go/adjutant/identity"
	"github.com/adjutant-go/adjutant/log"
)

type NewUserSettings struct {
	// ManageableRoles maps a requester role to the roles it may grant.
	// Admins may grant any role.
	ManageableRoles map[string][]string `json:"manageable_roles" yaml:"manageable_roles"`

	AutoApprove bool `json:"auto_approve" yaml:"auto_approve"`
}

var DefaultNewUserSettings = NewUserSettings{
	ManageableRoles: map[string][]string{
		"project_admin": {"member", "project_mod", "project_admin"},
		"project_mod":   {"member", "project_mod"},
	},
	AutoApprove: true,
}

type NewUserInput struct {
	Email     string   `json:"email" validate:"required,email"`
	Username  string   `json:"username,omitempty"`
	ProjectID string   `json:"project_id" validate:"required"`
	Roles     []string `json:"roles" validate:"min=1"`
	DomainID  string   `json:"domain_id,omitempty"`
}

func NewUserDefinition() action.Definition {
	return action.Define(KindNewUser, DefaultNewUserSettings,
		func(d action.Deps, s NewUserSettings, in NewUserInput) action.Action {
			return &newUser{deps: d, settings: s, input: in}
		},
		nil,
	)
}

// newUser invites a user to a project. Unknown users are created at submit
// with the password from the token. Known users accept by presenting an
// identity token of their own and then get the roles.
type newUser struct {
	deps     action.Deps
	settings NewUserSettings
	input    NewUserInput
}

func (a *newUser) username() string {
	return orDefault(a.input.Username, a.input.Email)
}

func (a *newUser) domain() string {
	return orDefault(a.input.DomainID, defaultDomain)
}

// check validates the invitation and returns the state of the user.
func (a *newUser) check(ctx context.Context, s *action.State) (action.Result, *identity.User, error) {
	if _, err := a.deps.Identity.GetProject(ctx, a.input.ProjectID); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return action.Invalid(fmt.Sprintf("Project %q does not exist.", a.input.ProjectID)), nil, nil
		}
		return action.Result{}, nil, err
	}

	requester := s.Requester()
	if !requester.IsAdmin() && requester.ProjectID != a.input.ProjectID {
		return action.Invalid("Users can only be invited to the requester's own project."), nil, nil
	}

	if !canManage(requester, a.settings.ManageableRoles, a.input.Roles) {
		return action.Invalid("Requester may not grant the requested roles."), nil, nil
	}

	u, err := findUser(ctx, a.deps.Identity, a.username(), a.domain())
	if err != nil || u == nil {
		return action.Valid(), nil, err
	}

	has, err := hasRoles(ctx, a.deps.Identity, u.ID, a.input.ProjectID, a.input.Roles)
	if err != nil {
		return action.Result{}, nil, err
	}
	if has {
		return action.Invalid("User already has the requested roles on the project."), nil, nil
	}

	return action.Valid(), u, nil
}

func (a *newUser) PreApprove(ctx context.Context, s *action.State) (action.Result, error) {
	res, _, err := a.check(ctx, s)
	if err != nil || !res.Valid {
		return res, err
	}

	return res.WithAutoApprove(a.settings.AutoApprove), nil
}

func (a *newUser) PostApprove(ctx context.Context, s *action.State) (action.Result, error) {
	cache, err := action.LoadCache[userCache](s)
	if err != nil {
		return action.Result{}, err
	}

	if cache.UserState == "" {
		res, u, err := a.check(ctx, s)
		if err != nil || !res.Valid {
			return res, err
		}

		update := userCache{UserState: userStateNew}
		if u != nil {
			update = userCache{UserState: userStateExisting, UserID: u.ID}
		}
		if err := action.StoreCache(ctx, s, update); err != nil {
			return action.Result{}, err
		}
		cache = update
	}

	if cache.UserState == userStateExisting {
		return action.WithToken(FieldUserToken), nil
	}

	return action.WithToken(FieldPassword), nil
}

func (a *newUser) Submit(ctx context.Context, s *action.State, fields map[string]string) (action.Result, error) {
	cache, err := action.LoadCache[userCache](s)
	if err != nil {
		return action.Result{}, err
	}

	switch cache.UserState {
	case userStateExisting:
		u, err := a.deps.Identity.ValidateToken(ctx, fields[FieldUserToken])
		if errors.Is(err, identity.ErrNotFound) {
			return action.Invalid("Identity token is not valid."), nil
		}
		if err != nil {
			return action.Result{}, fmt.Errorf("validating identity token: %w", err)
		}
		if u.ID != cache.UserID {
			return action.Invalid("Identity token belongs to another user."), nil
		}

	case userStateNew:
		password := fields[FieldPassword]
		if password == "" {
			return action.Invalid("A password is required."), nil
		}

		if cache.UserID == "" {
			u, err := a.deps.Identity.CreateUser(ctx, a.username(), a.input.Email, a.domain(), true)
			if err != nil {
				return action.Result{}, fmt.Errorf("creating user: %w", err)
			}
			if err := action.StoreCache(ctx, s, userCache{UserID: u.ID}); err != nil {
				return action.Result{}, err
			}
			cache.UserID = u.ID
			s.Logger().Info("Created user", log.ResourceKey, u.ID)
		}

		if err := a.deps.Identity.UpdatePassword(ctx, cache.UserID, password); err != nil {
			return action.Result{}, fmt.Errorf("setting password: %w", err)
		}

	default:
		return action.Invalid("Invitation was never approved."), nil
	}

	if !cache.RolesGranted {
		if err := a.deps.Identity.AddRoles(ctx, cache.UserID, a.input.ProjectID, a.input.Roles); err != nil {
			return action.Result{}, fmt.Errorf("granting roles: %w", err)
		}
		if err := action.StoreCache(ctx, s, userCache{RolesGranted: true}); err != nil {
			return action.Result{}, err
		}
	}

	return action.Valid(), nil
}
