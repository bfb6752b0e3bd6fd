// Package notify sends the templated messages emitted at task milestones, for
// example the token link or the completion notice.
package notify

import (
	"context"
	"errors"
)

// Well-known templates.
const (
	TemplateInitial   = "initial"
	TemplateToken     = "token"
	TemplateCompleted = "completed"
)

var ErrUnknownTemplate = errors.New("unknown message template")

// Message carries the task context a template renders.
type Message struct {
	TaskID   string
	TaskType string

	// To lists recipients. Empty means the dispatcher's default.
	To []string

	Data map[string]any
}

//go:generate mockery --name=Dispatcher --inpackage
type Dispatcher interface {
	Send(ctx context.Context, template string, msg Message) error
}

// Sender delivers a rendered message. Delivery transports live outside this
// module.
type Sender interface {
	Deliver(ctx context.Context, to []string, subject, body string) error
}

type nopDispatcher struct{}

// NewNopDispatcher returns a dispatcher that drops every message.
func NewNopDispatcher() Dispatcher {
	return nopDispatcher{}
}

func (nopDispatcher) Send(context.Context, string, Message) error {
	return nil
}
