package core

import (
	"encoding/json"
	"time"
)

// Well-known scratch keys shared between the actions of one task.
const (
	ScratchProjectID = "project_id"
	ScratchUserID    = "user_id"
)

// Task is one administrative request composed of ordered actions.
type Task struct {
	ID       string `json:"id"`
	TaskType string `json:"task_type"`

	// ProjectID is the project the task is scoped to, copied from the requester
	// for filtering.
	ProjectID string `json:"project_id,omitempty"`

	Requester Identity `json:"requester"`

	Actions []*ActionRecord `json:"actions"`

	Approved   bool       `json:"approved"`
	ApprovedBy *Identity  `json:"approved_by,omitempty"`
	ApprovedOn *time.Time `json:"approved_on,omitempty"`

	Completed   bool       `json:"completed"`
	CompletedOn *time.Time `json:"completed_on,omitempty"`
	Cancelled   bool       `json:"cancelled"`

	// Scratch is shared mutable state visible to every action of the task.
	Scratch map[string]string `json:"scratch,omitempty"`

	CreatedOn time.Time `json:"created_on"`
}

func NewTask(id, taskType string, requester Identity, createdOn time.Time) *Task {
	return &Task{
		ID:        id,
		TaskType:  taskType,
		ProjectID: requester.ProjectID,
		Requester: requester,
		Scratch:   map[string]string{},
		CreatedOn: createdOn,
	}
}

// Terminal returns true once the task has been completed or cancelled.
func (t *Task) Terminal() bool {
	return t.Completed || t.Cancelled
}

// Valid is the conjunction of every action's validity.
func (t *Task) Valid() bool {
	for _, a := range t.Actions {
		if !a.Valid {
			return false
		}
	}

	return true
}

// NeedToken returns true if any action waits for deferred fields.
func (t *Task) NeedToken() bool {
	for _, a := range t.Actions {
		if a.NeedToken {
			return true
		}
	}

	return false
}

// TokenFields is the ordered union of the fields all actions require at submit.
func (t *Task) TokenFields() []string {
	seen := map[string]bool{}
	fields := []string{}
	for _, a := range t.Actions {
		for _, f := range a.TokenFields {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}

	return fields
}

// ScratchValue returns a scratch value or an empty string.
func (t *Task) ScratchValue(key string) string {
	if t.Scratch == nil {
		return ""
	}

	return t.Scratch[key]
}

func (t *Task) SetScratch(key, value string) {
	if t.Scratch == nil {
		t.Scratch = map[string]string{}
	}

	t.Scratch[key] = value
}

// ActionRecord is the persisted state of one action of a task.
type ActionRecord struct {
	Kind  ActionKind `json:"kind"`
	Order int        `json:"order"`

	Input json.RawMessage `json:"input,omitempty"`

	// Cache holds the kind's typed partial results as a JSON object. Keys are
	// only ever added or replaced, never removed.
	Cache json.RawMessage `json:"cache,omitempty"`

	State ActionState `json:"state"`

	Valid       bool     `json:"valid"`
	NeedToken   bool     `json:"need_token"`
	TokenFields []string `json:"token_fields,omitempty"`

	// AutoApprove is the action's vote on skipping manual approval. nil
	// abstains.
	AutoApprove *bool `json:"auto_approve,omitempty"`
}

func NewActionRecord(kind ActionKind, order int, input json.RawMessage) *ActionRecord {
	return &ActionRecord{
		Kind:  kind,
		Order: order,
		Input: input,
		State: ActionStateNew,
	}
}
