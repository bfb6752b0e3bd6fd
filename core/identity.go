package core

import "slices"

// Identity is a snapshot of the authenticated subject that requested or
// approved a task.
type Identity struct {
	UserID          string   `json:"user_id,omitempty"`
	Username        string   `json:"username,omitempty"`
	ProjectID       string   `json:"project_id,omitempty"`
	ProjectDomainID string   `json:"project_domain_id,omitempty"`
	UserDomainID    string   `json:"user_domain_id,omitempty"`
	Roles           []string `json:"roles,omitempty"`
}

const (
	RoleAdmin        = "admin"
	RoleProjectAdmin = "project_admin"
	RoleProjectMod   = "project_mod"
)

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

func (i Identity) IsAdmin() bool {
	return i.HasRole(RoleAdmin)
}
