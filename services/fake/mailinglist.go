package fake

import (
	"context"
	"slices"
	"sync"

	"github.com/adjutant-go/adjutant/services"
)

const (
	OpMembers   = "Members"
	OpSubscribe = "Subscribe"
)

// MailingList is an in-memory services.MailingListClient.
type MailingList struct {
	faults

	mu      sync.Mutex
	members map[string][]string
	calls   map[string]int
}

var _ services.MailingListClient = (*MailingList)(nil)

func NewMailingList() *MailingList {
	return &MailingList{
		members: map[string][]string{},
		calls:   map[string]int{},
	}
}

// Seed adds members without counting as client calls.
func (m *MailingList) Seed(list string, addresses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.members[list] = append(m.members[list], addresses...)
}

func (m *MailingList) Members(ctx context.Context, list string) ([]string, error) {
	if err := m.check(OpMembers); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[OpMembers]++
	return slices.Clone(m.members[list]), nil
}

func (m *MailingList) Subscribe(ctx context.Context, list, address string) error {
	if err := m.check(OpSubscribe); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[OpSubscribe]++
	m.members[list] = append(m.members[list], address)
	return nil
}

func (m *MailingList) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls[op]
}
