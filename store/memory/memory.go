// Package memory is a Store kept in process memory, for tests and single
// process deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/adjutant-go/adjutant/core"
	"github.com/adjutant-go/adjutant/internal/metrickeys"
	"github.com/adjutant-go/adjutant/metrics"
	"github.com/adjutant-go/adjutant/store"
)

type memoryStore struct {
	mu sync.Mutex

	tasks         map[string]*core.Task
	tokens        map[string]*core.Token
	notifications map[string]*core.Notification

	options store.Options
}

var _ store.Store = (*memoryStore)(nil)

func NewMemoryStore(opts ...store.StoreOption) *memoryStore {
	return &memoryStore{
		tasks:         map[string]*core.Task{},
		tokens:        map[string]*core.Token{},
		notifications: map[string]*core.Notification{},
		options:       store.ApplyOptions(opts...),
	}
}

func (s *memoryStore) Close() error {
	return nil
}

func (s *memoryStore) CreateTask(ctx context.Context, task *core.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; ok {
		return fmt.Errorf("%w: %s", store.ErrTaskAlreadyExists, task.ID)
	}

	s.tasks[task.ID] = task.Clone()

	return nil
}

func (s *memoryStore) GetTask(ctx context.Context, id string) (*core.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	return t.Clone(), nil
}

func (s *memoryStore) UpdateTask(ctx context.Context, task *core.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; !ok {
		return store.ErrTaskNotFound
	}

	s.tasks[task.ID] = task.Clone()

	return nil
}

func (s *memoryStore) ListTasks(ctx context.Context, f store.TaskFilter) ([]*core.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make([]*core.Task, 0)
	for _, t := range s.tasks {
		if matchTask(t, f) {
			tasks = append(tasks, t)
		}
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if f.Order == store.OrderByCompleted && !tasks[i].CompletedOn.Equal(*tasks[j].CompletedOn) {
			return tasks[i].CompletedOn.After(*tasks[j].CompletedOn)
		}

		if !tasks[i].CreatedOn.Equal(tasks[j].CreatedOn) {
			return tasks[i].CreatedOn.After(tasks[j].CreatedOn)
		}
		return tasks[i].ID < tasks[j].ID
	})

	tasks = store.Page(tasks, f.Offset, f.Limit)

	r := make([]*core.Task, len(tasks))
	for i, t := range tasks {
		r[i] = t.Clone()
	}

	return r, nil
}

func matchTask(t *core.Task, f store.TaskFilter) bool {
	if f.ProjectID != "" && t.ProjectID != f.ProjectID {
		return false
	}
	if f.TaskType != "" && t.TaskType != f.TaskType {
		return false
	}
	if f.Approved != nil && t.Approved != *f.Approved {
		return false
	}
	if f.Completed != nil && t.Completed != *f.Completed {
		return false
	}
	if f.Cancelled != nil && t.Cancelled != *f.Cancelled {
		return false
	}
	if f.Order == store.OrderByCompleted && t.CompletedOn == nil {
		return false
	}

	return true
}

func (s *memoryStore) CreateToken(ctx context.Context, token *core.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *token
	s.tokens[token.Value] = &c

	return nil
}

func (s *memoryStore) GetToken(ctx context.Context, value string) (*core.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[value]
	if !ok {
		return nil, store.ErrTokenNotFound
	}

	c := *t
	return &c, nil
}

func (s *memoryStore) ListTokens(ctx context.Context, taskID string) ([]*core.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := make([]*core.Token, 0)
	for _, t := range s.tokens {
		if taskID == "" || t.TaskID == taskID {
			c := *t
			tokens = append(tokens, &c)
		}
	}

	sort.Slice(tokens, func(i, j int) bool {
		if !tokens[i].CreatedOn.Equal(tokens[j].CreatedOn) {
			return tokens[i].CreatedOn.Before(tokens[j].CreatedOn)
		}
		return tokens[i].Value < tokens[j].Value
	})

	return tokens, nil
}

func (s *memoryStore) DeleteToken(ctx context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[value]; !ok {
		return store.ErrTokenNotFound
	}

	delete(s.tokens, value)

	return nil
}

func (s *memoryStore) DeleteTaskTokens(ctx context.Context, taskID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for v, t := range s.tokens {
		if t.TaskID == taskID {
			delete(s.tokens, v)
			n++
		}
	}

	return n, nil
}

func (s *memoryStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for v, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, v)
			n++
		}
	}

	if n > 0 {
		s.options.Metrics.WithTags(metrics.Tags{metrickeys.Store: "memory"}).Counter(metrickeys.TokenExpired, metrics.Tags{}, int64(n))
	}

	return n, nil
}

func (s *memoryStore) CreateNotification(ctx context.Context, n *core.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications[n.ID] = cloneNotification(n)

	return nil
}

func (s *memoryStore) GetNotification(ctx context.Context, id string) (*core.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, store.ErrNotificationNotFound
	}

	return cloneNotification(n), nil
}

func (s *memoryStore) ListNotifications(ctx context.Context, f store.NotificationFilter) ([]*core.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := make([]*core.Notification, 0)
	for _, n := range s.notifications {
		if f.TaskID != "" && n.TaskID != f.TaskID {
			continue
		}
		if f.Acknowledged != nil && n.Acknowledged != *f.Acknowledged {
			continue
		}
		if f.Error != nil && n.Error != *f.Error {
			continue
		}
		ns = append(ns, n)
	}

	sort.SliceStable(ns, func(i, j int) bool {
		if !ns[i].CreatedOn.Equal(ns[j].CreatedOn) {
			return ns[i].CreatedOn.After(ns[j].CreatedOn)
		}
		return ns[i].ID < ns[j].ID
	})

	ns = store.Page(ns, f.Offset, f.Limit)

	r := make([]*core.Notification, len(ns))
	for i, n := range ns {
		r[i] = cloneNotification(n)
	}

	return r, nil
}

func (s *memoryStore) AcknowledgeNotification(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return store.ErrNotificationNotFound
	}

	n.Acknowledged = true

	return nil
}

func cloneNotification(n *core.Notification) *core.Notification {
	c := *n
	if n.Notes != nil {
		c.Notes = make(map[string][]string, len(n.Notes))
		for k, v := range n.Notes {
			c.Notes[k] = append([]string(nil), v...)
		}
	}

	return &c
}
