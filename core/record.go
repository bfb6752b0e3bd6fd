package core

import (
	"encoding/json"
	"time"
)

// TaskRecord is the plain structured form of a task handed to clients.
type TaskRecord struct {
	UUID        string                `json:"uuid"`
	TaskType    string                `json:"task_type"`
	ProjectID   string                `json:"project_id,omitempty"`
	Actions     []ActionRecordSummary `json:"actions"`
	ActionNames []ActionKind          `json:"action_names"`
	Approved    bool                  `json:"approved"`
	ApprovedOn  *time.Time            `json:"approved_on,omitempty"`
	Completed   bool                  `json:"completed"`
	CompletedOn *time.Time            `json:"completed_on,omitempty"`
	Cancelled   bool                  `json:"cancelled"`
	CreatedOn   time.Time             `json:"created_on"`

	// Only present in full records.
	Requester  *Identity         `json:"keystone_user,omitempty"`
	ApprovedBy *Identity         `json:"approved_by,omitempty"`
	Scratch    map[string]string `json:"cache,omitempty"`
}

type ActionRecordSummary struct {
	Kind  ActionKind      `json:"action_name"`
	Order int             `json:"order"`
	Data  json.RawMessage `json:"data,omitempty"`
	Valid bool            `json:"valid"`
	State ActionState     `json:"state"`

	// Only present in full records.
	Cache json.RawMessage `json:"cache,omitempty"`
}

// Record converts the task for client consumption. Full records also carry
// identity snapshots and partial progress and are meant for administrators.
func (t *Task) Record(full bool) TaskRecord {
	r := TaskRecord{
		UUID:        t.ID,
		TaskType:    t.TaskType,
		ProjectID:   t.ProjectID,
		Actions:     make([]ActionRecordSummary, 0, len(t.Actions)),
		ActionNames: make([]ActionKind, 0, len(t.Actions)),
		Approved:    t.Approved,
		ApprovedOn:  t.ApprovedOn,
		Completed:   t.Completed,
		CompletedOn: t.CompletedOn,
		Cancelled:   t.Cancelled,
		CreatedOn:   t.CreatedOn,
	}

	for _, a := range t.Actions {
		s := ActionRecordSummary{
			Kind:  a.Kind,
			Order: a.Order,
			Data:  a.Input,
			Valid: a.Valid,
			State: a.State,
		}
		if full {
			s.Cache = a.Cache
		}

		r.Actions = append(r.Actions, s)
		r.ActionNames = append(r.ActionNames, a.Kind)
	}

	if full {
		requester := t.Requester
		r.Requester = &requester
		r.ApprovedBy = t.ApprovedBy
		r.Scratch = t.Scratch
	}

	return r
}

type TokenRecord struct {
	Token     string    `json:"token"`
	Task      string    `json:"task"`
	Expires   time.Time `json:"expires"`
	CreatedOn time.Time `json:"created_on"`
}

func (t *Token) Record() TokenRecord {
	return TokenRecord{
		Token:     t.Value,
		Task:      t.TaskID,
		Expires:   t.Expires,
		CreatedOn: t.CreatedOn,
	}
}

type NotificationRecord struct {
	UUID         string              `json:"uuid"`
	Task         string              `json:"task"`
	Notes        map[string][]string `json:"notes"`
	Error        bool                `json:"error"`
	Acknowledged bool                `json:"acknowledged"`
	CreatedOn    time.Time           `json:"created_on"`
}

func (n *Notification) Record() NotificationRecord {
	return NotificationRecord{
		UUID:         n.ID,
		Task:         n.TaskID,
		Notes:        n.Notes,
		Error:        n.Error,
		Acknowledged: n.Acknowledged,
		CreatedOn:    n.CreatedOn,
	}
}
