// Package store defines persistence for tasks, tokens and notifications.
package store

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/adjutant-go/adjutant/core"
)

var (
	ErrTaskNotFound         = errors.New("task not found")
	ErrTaskAlreadyExists    = errors.New("task already exists")
	ErrTokenNotFound        = errors.New("token not found")
	ErrNotificationNotFound = errors.New("notification not found")
)

const TracerName = "adjutant-store"

// TaskOrder selects the sort order of task listings. Both orders are newest
// first.
type TaskOrder int

const (
	OrderByCreated TaskOrder = iota
	OrderByCompleted
)

// TaskFilter narrows a task listing. Zero values match everything.
type TaskFilter struct {
	ProjectID string
	TaskType  string

	Approved  *bool
	Completed *bool
	Cancelled *bool

	Order TaskOrder

	Limit  int
	Offset int
}

// NotificationFilter narrows a notification listing, newest first.
type NotificationFilter struct {
	TaskID       string
	Acknowledged *bool
	Error        *bool

	Limit  int
	Offset int
}

type TaskStore interface {
	// CreateTask persists a new task with its actions.
	CreateTask(ctx context.Context, task *core.Task) error

	GetTask(ctx context.Context, id string) (*core.Task, error)

	// UpdateTask replaces the stored task, including all action records.
	UpdateTask(ctx context.Context, task *core.Task) error

	ListTasks(ctx context.Context, filter TaskFilter) ([]*core.Task, error)
}

type TokenStore interface {
	CreateToken(ctx context.Context, token *core.Token) error

	// GetToken returns the token regardless of expiry.
	GetToken(ctx context.Context, value string) (*core.Token, error)

	// ListTokens returns the tokens of a task, or all tokens for an empty id.
	ListTokens(ctx context.Context, taskID string) ([]*core.Token, error)

	DeleteToken(ctx context.Context, value string) error

	// DeleteTaskTokens removes every token of a task and returns how many were
	// removed.
	DeleteTaskTokens(ctx context.Context, taskID string) (int, error)

	// DeleteExpiredTokens removes tokens that expired before now.
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *core.Notification) error

	GetNotification(ctx context.Context, id string) (*core.Notification, error)

	ListNotifications(ctx context.Context, filter NotificationFilter) ([]*core.Notification, error)

	// AcknowledgeNotification marks a notification as seen. Acknowledging
	// twice is not an error.
	AcknowledgeNotification(ctx context.Context, id string) error
}

type Store interface {
	TaskStore
	TokenStore
	NotificationStore

	io.Closer
}

type composite struct {
	TaskStore
	TokenStore
	NotificationStore

	closers []io.Closer
}

// Compose builds a Store from separate parts, for example SQL tasks with
// tokens in redis. Close closes the given closers in order.
func Compose(tasks TaskStore, tokens TokenStore, notifications NotificationStore, closers ...io.Closer) Store {
	return &composite{
		TaskStore:         tasks,
		TokenStore:        tokens,
		NotificationStore: notifications,
		closers:           closers,
	}
}

func (c *composite) Close() error {
	var errs []error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Page applies offset and limit to an already filtered, ordered slice.
func Page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
