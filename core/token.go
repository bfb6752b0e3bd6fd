package core

import "time"

// Token gates the submit phase of a task whose actions need deferred fields.
type Token struct {
	Value     string    `json:"token"`
	TaskID    string    `json:"task"`
	Expires   time.Time `json:"expires"`
	CreatedOn time.Time `json:"created_on"`
}

func (t *Token) Expired(now time.Time) bool {
	return t.Expires.Before(now)
}
