package action

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationErrors maps input field names to their rejection messages.
type ValidationErrors map[string][]string

func (v ValidationErrors) Add(field, msg string) {
	v[field] = append(v[field], msg)
}

func (v ValidationErrors) Merge(o ValidationErrors) {
	for f, msgs := range o {
		v[f] = append(v[f], msgs...)
	}
}

func (v ValidationErrors) Empty() bool {
	return len(v) == 0
}

// ValidationError rejects an action input. The caller may correct the input and
// run pre-approve again.
type ValidationError struct {
	Kind   Kind
	Fields ValidationErrors
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, strings.Join(e.Fields[f], ", ")))
	}

	return fmt.Sprintf("invalid input for %s: %s", e.Kind, strings.Join(parts, "; "))
}

func NewValidationError(kind Kind, fields ValidationErrors) *ValidationError {
	return &ValidationError{Kind: kind, Fields: fields}
}
