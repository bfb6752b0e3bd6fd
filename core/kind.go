package core

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"regexp"
)

// ActionKind identifies an action implementation.
type ActionKind string

var _ sql.Scanner = (*ActionKind)(nil)

func (k ActionKind) Value() (driver.Value, error) {
	return string(k), nil
}

func (k *ActionKind) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*k = ActionKind(v)
	case []byte:
		*k = ActionKind(v)
	default:
		return fmt.Errorf("scanning action kind: unexpected type %T", value)
	}

	return nil
}

var validKindName = regexp.MustCompile(`^[a-z][a-z0-9_]{2,63}$`)

// ValidActionKind ensures that the kind name is valid.
func ValidActionKind(k ActionKind) error {
	if !validKindName.MatchString(string(k)) {
		return fmt.Errorf("invalid action kind %q", k)
	}

	return nil
}

// ActionState is the position of an action in its phase lifecycle.
type ActionState string

const (
	ActionStateNew             = ActionState("new")
	ActionStatePreChecked      = ActionState("pre_checked")
	ActionStateApprovedPending = ActionState("approved_pending")
	ActionStateComplete        = ActionState("complete")
)

var _ sql.Scanner = (*ActionState)(nil)

func (s ActionState) Value() (driver.Value, error) {
	return string(s), nil
}

func (s *ActionState) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*s = ActionState(v)
	case []byte:
		*s = ActionState(v)
	default:
		return fmt.Errorf("scanning action state: unexpected type %T", value)
	}

	return nil
}
