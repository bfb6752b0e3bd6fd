// Package identity defines the identity service collaborators: a resolver for
// read-only project, user and role lookups and a manager for the writes done by
// onboarding actions.
//
// The engine does not construct adapters itself. A host wiring its identity
// service client into action.Deps may wrap the read side with
// NewCachingResolver to bound lookups per task run.
package identity

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("identity not found")

type Project struct {
	ID       string
	Name     string
	DomainID string
	ParentID string
}

type User struct {
	ID       string
	Name     string
	Email    string
	DomainID string
	Enabled  bool
}

// Resolver answers identity questions. Lookups that find nothing return
// ErrNotFound.
type Resolver interface {
	GetProject(ctx context.Context, id string) (*Project, error)
	FindProject(ctx context.Context, name, domainID string) (*Project, error)
	GetUser(ctx context.Context, id string) (*User, error)
	FindUser(ctx context.Context, name, domainID string) (*User, error)
	RolesFor(ctx context.Context, userID, projectID string) ([]string, error)
}

// Manager performs identity writes on top of Resolver.
type Manager interface {
	Resolver

	CreateProject(ctx context.Context, name, domainID, parentID string) (*Project, error)
	CreateUser(ctx context.Context, name, email, domainID string, enabled bool) (*User, error)
	EnableUser(ctx context.Context, userID string) error
	UpdatePassword(ctx context.Context, userID, password string) error
	AddRoles(ctx context.Context, userID, projectID string, roles []string) error

	// ValidateToken returns the user an identity service token was issued to.
	// Unknown or expired tokens return ErrNotFound.
	ValidateToken(ctx context.Context, token string) (*User, error)
}
