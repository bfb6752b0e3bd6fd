package registry

import (
	"errors"
	"fmt"

	"github.com/adjutant-go/adjutant/action"
)

var ErrUnknownKind = errors.New("unknown action kind")

type ErrInvalidKind struct {
	msg string
}

func (e *ErrInvalidKind) Error() string {
	return e.msg
}

type ErrKindAlreadyRegistered struct {
	msg string
}

func (e *ErrKindAlreadyRegistered) Error() string {
	return e.msg
}

type ErrInvalidSettings struct {
	Kind action.Kind
	Err  error
}

func (e *ErrInvalidSettings) Error() string {
	return fmt.Sprintf("invalid settings for %s: %v", e.Kind, e.Err)
}

func (e *ErrInvalidSettings) Unwrap() error {
	return e.Err
}
