package engine

import (
	"context"

	"github.com/adjutant-go/adjutant/core"
	"github.com/adjutant-go/adjutant/store"
)

// Status summarizes the deployment for operators.
type Status struct {
	// ErrorNotifications lists unacknowledged error notifications, newest
	// first.
	ErrorNotifications []core.NotificationRecord `json:"error_notifications"`

	LastCreatedTask   *core.TaskRecord `json:"last_created_task"`
	LastCompletedTask *core.TaskRecord `json:"last_completed_task"`
}

func (e *Engine) Status(ctx context.Context) (*Status, error) {
	unacked, isErr := false, true
	ns, err := e.store.ListNotifications(ctx, store.NotificationFilter{
		Acknowledged: &unacked,
		Error:        &isErr,
	})
	if err != nil {
		return nil, err
	}

	s := &Status{
		ErrorNotifications: make([]core.NotificationRecord, 0, len(ns)),
	}
	for _, n := range ns {
		s.ErrorNotifications = append(s.ErrorNotifications, n.Record())
	}

	created, err := e.store.ListTasks(ctx, store.TaskFilter{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(created) > 0 {
		r := created[0].Record(false)
		s.LastCreatedTask = &r
	}

	completed, err := e.store.ListTasks(ctx, store.TaskFilter{Order: store.OrderByCompleted, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(completed) > 0 {
		r := completed[0].Record(false)
		s.LastCompletedTask = &r
	}

	return s, nil
}

func (e *Engine) ListNotifications(ctx context.Context, filter store.NotificationFilter) ([]*core.Notification, error) {
	return e.store.ListNotifications(ctx, filter)
}

// AcknowledgeNotification marks a notification as seen. It never changes the
// task.
func (e *Engine) AcknowledgeNotification(ctx context.Context, id string) error {
	return e.store.AcknowledgeNotification(ctx, id)
}
