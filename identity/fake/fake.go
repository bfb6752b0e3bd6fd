// Package fake is an in-memory identity.Manager.
package fake

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/adjutant-go/adjutant/identity"
	"github.com/google/uuid"
)

type Manager struct {
	mu sync.Mutex

	projects  map[string]*identity.Project
	users     map[string]*identity.User
	passwords map[string]string
	roles     map[string]map[string][]string
	tokens    map[string]string

	lookups int
}

var _ identity.Manager = (*Manager)(nil)

func NewManager() *Manager {
	return &Manager{
		projects:  map[string]*identity.Project{},
		users:     map[string]*identity.User{},
		passwords: map[string]string{},
		roles:     map[string]map[string][]string{},
		tokens:    map[string]string{},
	}
}

// AddProject seeds a project and returns it.
func (m *Manager) AddProject(p identity.Project) *identity.Project {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.DomainID == "" {
		p.DomainID = "default"
	}

	m.projects[p.ID] = &p
	return &p
}

// AddUser seeds a user and returns it.
func (m *Manager) AddUser(u identity.User) *identity.User {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.DomainID == "" {
		u.DomainID = "default"
	}

	m.users[u.ID] = &u
	return &u
}

func (m *Manager) GetProject(ctx context.Context, id string) (*identity.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lookups++

	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %q: %w", id, identity.ErrNotFound)
	}

	c := *p
	return &c, nil
}

func (m *Manager) FindProject(ctx context.Context, name, domainID string) (*identity.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.projects {
		if p.Name == name && p.DomainID == domainID {
			c := *p
			return &c, nil
		}
	}

	return nil, fmt.Errorf("project %q: %w", name, identity.ErrNotFound)
}

func (m *Manager) GetUser(ctx context.Context, id string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lookups++

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", id, identity.ErrNotFound)
	}

	c := *u
	return &c, nil
}

func (m *Manager) FindUser(ctx context.Context, name, domainID string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Name == name && u.DomainID == domainID {
			c := *u
			return &c, nil
		}
	}

	return nil, fmt.Errorf("user %q: %w", name, identity.ErrNotFound)
}

func (m *Manager) RolesFor(ctx context.Context, userID, projectID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.roles[userID][projectID]), nil
}

func (m *Manager) CreateProject(ctx context.Context, name, domainID, parentID string) (*identity.Project, error) {
	p := m.AddProject(identity.Project{Name: name, DomainID: domainID, ParentID: parentID})
	return p, nil
}

func (m *Manager) CreateUser(ctx context.Context, name, email, domainID string, enabled bool) (*identity.User, error) {
	u := m.AddUser(identity.User{Name: name, Email: email, DomainID: domainID, Enabled: enabled})
	return u, nil
}

func (m *Manager) EnableUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("user %q: %w", userID, identity.ErrNotFound)
	}

	u.Enabled = true
	return nil
}

func (m *Manager) UpdatePassword(ctx context.Context, userID, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return fmt.Errorf("user %q: %w", userID, identity.ErrNotFound)
	}

	m.passwords[userID] = password
	return nil
}

func (m *Manager) AddRoles(ctx context.Context, userID, projectID string, roles []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.roles[userID] == nil {
		m.roles[userID] = map[string][]string{}
	}

	current := m.roles[userID][projectID]
	for _, r := range roles {
		if !slices.Contains(current, r) {
			current = append(current, r)
		}
	}
	m.roles[userID][projectID] = current

	return nil
}

func (m *Manager) ValidateToken(ctx context.Context, token string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[m.tokens[token]]
	if !ok {
		return nil, fmt.Errorf("token: %w", identity.ErrNotFound)
	}

	c := *u
	return &c, nil
}

// IssueToken returns a token that validates to the user.
func (m *Manager) IssueToken(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	token := uuid.NewString()
	m.tokens[token] = userID
	return token
}

// Password returns the password last set for a user.
func (m *Manager) Password(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.passwords[userID]
}

// Lookups counts id lookups served, used to observe caching.
func (m *Manager) Lookups() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lookups
}
