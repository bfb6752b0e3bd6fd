package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/adjutant-go/adjutant/action"
	"github.com/adjutant-go/adjutant/core"
	"github.com/adjutant-go/adjutant/identity"
	"github.com/adjutant-go/adjutant/log"
)

type NewProjectSettings struct {
	DefaultRoles []string `json:"default_roles" yaml:"default_roles"`
}

var DefaultNewProjectSettings = NewProjectSettings{
	DefaultRoles: []string{"member", "project_admin", "project_mod"},
}

type NewProjectInput struct {
	ProjectName string `json:"project_name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Username    string `json:"username,omitempty"`
	DomainID    string `json:"domain_id,omitempty"`
	ParentID    string `json:"parent_id,omitempty"`
}

func NewProjectWithUserDefinition() action.Definition {
	return action.Define(KindNewProjectWithUser, DefaultNewProjectSettings,
		func(d action.Deps, s NewProjectSettings, in NewProjectInput) action.Action {
			return &newProjectWithUser{deps: d, settings: s, input: in}
		},
		nil,
	)
}

// newProjectWithUser creates a project, creates or reuses its first user and
// grants the default roles. The project and user ids are published to the
// task scratch for later actions. A created user stays disabled until submit
// sets the password.
type newProjectWithUser struct {
	deps     action.Deps
	settings NewProjectSettings
	input    NewProjectInput
}

func (a *newProjectWithUser) username() string {
	return orDefault(a.input.Username, a.input.Email)
}

func (a *newProjectWithUser) domain() string {
	return orDefault(a.input.DomainID, defaultDomain)
}

func (a *newProjectWithUser) PreApprove(ctx context.Context, s *action.State) (action.Result, error) {
	_, err := a.deps.Identity.FindProject(ctx, a.input.ProjectName, a.domain())
	switch {
	case err == nil:
		return action.Invalid(fmt.Sprintf("Project %q already exists.", a.input.ProjectName)), nil
	case !errors.Is(err, identity.ErrNotFound):
		return action.Result{}, err
	}

	if a.input.ParentID != "" {
		if _, err := a.deps.Identity.GetProject(ctx, a.input.ParentID); err != nil {
			if errors.Is(err, identity.ErrNotFound) {
				return action.Invalid(fmt.Sprintf("Parent project %q does not exist.", a.input.ParentID)), nil
			}
			return action.Result{}, err
		}
	}

	return action.Valid(), nil
}

func (a *newProjectWithUser) PostApprove(ctx context.Context, s *action.State) (action.Result, error) {
	cache, err := action.LoadCache[userCache](s)
	if err != nil {
		return action.Result{}, err
	}

	if err := a.ensureProject(ctx, s, &cache); err != nil {
		return action.Result{}, err
	}

	if err := a.ensureUser(ctx, s, &cache); err != nil {
		return action.Result{}, err
	}

	if !cache.RolesGranted {
		if err := a.deps.Identity.AddRoles(ctx, cache.UserID, cache.ProjectID, a.settings.DefaultRoles); err != nil {
			return action.Result{}, fmt.Errorf("granting roles: %w", err)
		}
		if err := action.StoreCache(ctx, s, userCache{RolesGranted: true}); err != nil {
			return action.Result{}, err
		}
	}

	if cache.UserState == userStateNew {
		return action.WithToken(FieldPassword), nil
	}

	return action.Valid(), nil
}

func (a *newProjectWithUser) ensureProject(ctx context.Context, s *action.State, cache *userCache) error {
	if cache.ProjectID != "" {
		_, err := a.deps.Identity.GetProject(ctx, cache.ProjectID)
		if err == nil {
			return s.SetScratch(ctx, core.ScratchProjectID, cache.ProjectID)
		}
		if !errors.Is(err, identity.ErrNotFound) {
			return err
		}
	}

	p, err := a.deps.Identity.CreateProject(ctx, a.input.ProjectName, a.domain(), a.input.ParentID)
	if err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	s.Logger().Info("Created project", log.ProjectKey, p.ID)

	cache.ProjectID = p.ID
	if err := action.StoreCache(ctx, s, userCache{ProjectID: p.ID}); err != nil {
		return err
	}

	return s.SetScratch(ctx, core.ScratchProjectID, p.ID)
}

func (a *newProjectWithUser) ensureUser(ctx context.Context, s *action.State, cache *userCache) error {
	if cache.UserID == "" {
		u, err := findUser(ctx, a.deps.Identity, a.username(), a.domain())
		if err != nil {
			return err
		}

		update := userCache{UserState: userStateExisting}
		if u == nil {
			u, err = a.deps.Identity.CreateUser(ctx, a.username(), a.input.Email, a.domain(), false)
			if err != nil {
				return fmt.Errorf("creating user: %w", err)
			}
			update.UserState = userStateNew
			s.Logger().Info("Created user", log.ResourceKey, u.ID)
		}
		update.UserID = u.ID

		if err := action.StoreCache(ctx, s, update); err != nil {
			return err
		}
		cache.UserID = u.ID
		cache.UserState = update.UserState
	}

	return s.SetScratch(ctx, core.ScratchUserID, cache.UserID)
}

func (a *newProjectWithUser) Submit(ctx context.Context, s *action.State, fields map[string]string) (action.Result, error) {
	cache, err := action.LoadCache[userCache](s)
	if err != nil {
		return action.Result{}, err
	}

	if cache.UserState != userStateNew || cache.Finalized {
		return action.Valid(), nil
	}

	password := fields[FieldPassword]
	if password == "" {
		return action.Invalid("A password is required."), nil
	}

	if err := a.deps.Identity.UpdatePassword(ctx, cache.UserID, password); err != nil {
		return action.Result{}, fmt.Errorf("setting password: %w", err)
	}

	if err := a.deps.Identity.EnableUser(ctx, cache.UserID); err != nil {
		return action.Result{}, fmt.Errorf("enabling user: %w", err)
	}

	if err := action.StoreCache(ctx, s, userCache{Finalized: true}); err != nil {
		return action.Result{}, err
	}

	return action.Valid(), nil
}
