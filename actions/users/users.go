// Package users holds the onboarding actions: inviting users to projects,
// signing up a new project with its first user and resetting passwords. Each of
// them finishes through a token carrying the fields only the user can supply.
package users

import (
	"context"
	"errors"
	"slices"

	"github.com/adjutant-go/adjutant/action"
	"github.com/adjutant-go/adjutant/core"
	"github.com/adjutant-go/adjutant/identity"
)

const (
	KindNewUser            = action.Kind("new_user")
	KindNewProjectWithUser = action.Kind("new_project_with_user")
	KindResetUserPassword  = action.Kind("reset_user_password")
)

// Token fields.
const (
	FieldPassword = "password"

	// FieldUserToken carries an identity service token of an existing user,
	// proving the invitation was accepted by that user.
	FieldUserToken = "user_token"
)

const (
	userStateNew      = "new"
	userStateExisting = "existing"
)

const defaultDomain = "default"

// userCache is shared by the onboarding actions.
type userCache struct {
	UserID       string `json:"user_id,omitempty"`
	UserState    string `json:"user_state,omitempty"`
	ProjectID    string `json:"project_id,omitempty"`
	RolesGranted bool   `json:"roles_granted,omitempty"`
	Finalized    bool   `json:"finalized,omitempty"`
}

// findUser returns nil without error when no user has the name.
func findUser(ctx context.Context, ids identity.Resolver, name, domainID string) (*identity.User, error) {
	u, err := ids.FindUser(ctx, name, domainID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, nil
	}

	return u, err
}

// hasRoles reports whether the user already holds every role on the project.
func hasRoles(ctx context.Context, ids identity.Resolver, userID, projectID string, roles []string) (bool, error) {
	current, err := ids.RolesFor(ctx, userID, projectID)
	if err != nil {
		return false, err
	}

	for _, r := range roles {
		if !slices.Contains(current, r) {
			return false, nil
		}
	}

	return true, nil
}

// canManage reports whether the requester may grant all of roles.
func canManage(requester core.Identity, manageable map[string][]string, roles []string) bool {
	if requester.IsAdmin() {
		return true
	}

	allowed := map[string]bool{}
	for _, r := range requester.Roles {
		for _, m := range manageable[r] {
			allowed[m] = true
		}
	}

	for _, r := range roles {
		if !allowed[r] {
			return false
		}
	}

	return true
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}

	return v
}
