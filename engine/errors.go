package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/adjutant-go/adjutant/action"
	goerrors "github.com/go-errors/errors"
)

var (
	// ErrTaskTerminal is wrapped by every rejection of an operation on a
	// completed or cancelled task.
	ErrTaskTerminal = errors.New("task is completed or cancelled")

	ErrTaskCompleted = fmt.Errorf("%w: task has been completed", ErrTaskTerminal)
	ErrTaskCancelled = fmt.Errorf("%w: task has been cancelled", ErrTaskTerminal)

	ErrTaskNotApproved = errors.New("task has not been approved")
	ErrTaskApproved    = errors.New("task has already been approved")
	ErrTaskInvalid     = errors.New("task is not valid")

	// ErrTaskNotApplied rejects submit while post-approve has not finished for
	// every action.
	ErrTaskNotApplied = errors.New("task has not finished post-approve")

	ErrTokenRequired    = errors.New("task requires a token to submit")
	ErrTokenNotRequired = errors.New("task does not require a token")

	ErrNoActions = errors.New("task has no actions")
)

// MissingFieldsError rejects a submission that lacks required token fields.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

func missingFields(required []string, fields map[string]string) error {
	missing := []string{}
	for _, f := range required {
		if _, ok := fields[f]; !ok {
			missing = append(missing, f)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	sort.Strings(missing)
	return &MissingFieldsError{Fields: missing}
}

// UnexpectedError is a fault that escaped an action phase. Its message is
// opaque; the cause stays reachable through Unwrap and the task's error
// notification.
type UnexpectedError struct {
	TaskID string
	Phase  string
	Kind   action.Kind
	Order  int

	// NotificationID references the stored error notification, if one could
	// be written.
	NotificationID string

	Err   error
	Stack string
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected error during %s of task %s", e.Phase, e.TaskID)
}

func (e *UnexpectedError) Unwrap() error {
	return e.Err
}

// Detail describes the fault for operators.
func (e *UnexpectedError) Detail() string {
	return fmt.Sprintf("%s failed for action %s (order %d): %v", e.Phase, e.Kind, e.Order, e.Err)
}

func newUnexpectedError(taskID, phase string, kind action.Kind, order int, err error) *UnexpectedError {
	return &UnexpectedError{
		TaskID: taskID,
		Phase:  phase,
		Kind:   kind,
		Order:  order,
		Err:    err,
		Stack:  string(goerrors.Wrap(err, 2).Stack()),
	}
}

// panicError converts a recovered panic value into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}

	return fmt.Errorf("panic: %v", r)
}
