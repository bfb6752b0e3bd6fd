package core

import "time"

// Notification is an operator-visible record about a task, usually an
// unexpected fault during one of its phases.
type Notification struct {
	ID     string `json:"uuid"`
	TaskID string `json:"task"`

	Notes map[string][]string `json:"notes"`

	Error        bool      `json:"error"`
	Acknowledged bool      `json:"acknowledged"`
	CreatedOn    time.Time `json:"created_on"`
}
