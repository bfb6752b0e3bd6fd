package core

import (
	"bytes"
	"slices"
	"time"
)

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t

	c.Requester = t.Requester.clone()
	if t.ApprovedBy != nil {
		a := t.ApprovedBy.clone()
		c.ApprovedBy = &a
	}
	c.ApprovedOn = cloneTime(t.ApprovedOn)
	c.CompletedOn = cloneTime(t.CompletedOn)

	if t.Scratch != nil {
		c.Scratch = make(map[string]string, len(t.Scratch))
		for k, v := range t.Scratch {
			c.Scratch[k] = v
		}
	}

	c.Actions = make([]*ActionRecord, len(t.Actions))
	for i, a := range t.Actions {
		c.Actions[i] = a.Clone()
	}

	return &c
}

func (a *ActionRecord) Clone() *ActionRecord {
	c := *a
	c.Input = bytes.Clone(a.Input)
	c.Cache = bytes.Clone(a.Cache)
	c.TokenFields = slices.Clone(a.TokenFields)
	if a.AutoApprove != nil {
		v := *a.AutoApprove
		c.AutoApprove = &v
	}

	return &c
}

func (i Identity) clone() Identity {
	i.Roles = slices.Clone(i.Roles)
	return i
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	c := *t
	return &c
}
