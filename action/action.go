// Package action defines the contract of a single workflow step.
//
// An action runs through three phases. PreApprove validates input and may do
// read-only lookups; it must be safe to call again with the same or corrected
// input. PostApprove performs side effects one sub-step at a time, caching each
// sub-step's result through State.StoreCache so a retry resumes after the last
// cached step. Submit finalizes, consuming deferred fields when the action
// asked for a token.
//
// Expected rejections are returned as a Result with Valid set to false. A
// returned error is an unexpected fault: it halts the phase for the whole task.
package action

import (
	"context"

	"github.com/adjutant-go/adjutant/core"
)

type Kind = core.ActionKind

type Action interface {
	PreApprove(ctx context.Context, s *State) (Result, error)
	PostApprove(ctx context.Context, s *State) (Result, error)
	Submit(ctx context.Context, s *State, fields map[string]string) (Result, error)
}

// Result is the normal outcome of a phase.
type Result struct {
	Valid bool

	// Errors holds field-level input rejections.
	Errors ValidationErrors

	// Notes explains business-rule rejections.
	Notes []string

	// NeedToken asks the task to mint a token before submit; TokenFields names
	// the fields submit will need.
	NeedToken   bool
	TokenFields []string

	// AutoApprove votes on skipping manual approval. nil abstains.
	AutoApprove *bool
}

func Valid() Result {
	return Result{Valid: true}
}

func Invalid(notes ...string) Result {
	return Result{Valid: false, Notes: notes}
}

func InvalidFields(errs ValidationErrors) Result {
	return Result{Valid: false, Errors: errs}
}

// WithToken returns a valid result that requires the given fields at submit.
func WithToken(fields ...string) Result {
	return Result{Valid: true, NeedToken: true, TokenFields: fields}
}

func (r Result) WithAutoApprove(v bool) Result {
	r.AutoApprove = &v
	return r
}
