package engine

import (
	"context"
	"errors"

	"github.com/adjutant-go/adjutant/action"
)

const kindScripted = action.Kind("scripted")

type scriptInput struct {
	Name string `json:"name" validate:"required"`
}

type scriptSettings struct{}

type scriptCache struct {
	Step1 string `json:"step1,omitempty"`
	Step2 string `json:"step2,omitempty"`
}

// script controls how one scripted action behaves.
type script struct {
	invalid     bool
	autoApprove *bool

	// failStep2 makes post-approve fail after caching step1
	failStep2 error
	panics    bool

	tokenFields []string
	submitErr   error

	calls     map[string]int
	submitted []map[string]string
}

type scripts map[string]*script

func (sc scripts) add(name string, s *script) *script {
	s.calls = map[string]int{}
	sc[name] = s
	return s
}

func (sc scripts) definition() action.Definition {
	return action.Define(kindScripted, scriptSettings{},
		func(d action.Deps, _ scriptSettings, in scriptInput) action.Action {
			return &scriptedAction{script: sc[in.Name]}
		},
		nil,
	)
}

type scriptedAction struct {
	script *script
}

func (a *scriptedAction) PreApprove(ctx context.Context, s *action.State) (action.Result, error) {
	a.script.calls[PhasePreApprove]++

	if a.script.invalid {
		return action.Invalid("rejected by script"), nil
	}

	res := action.Valid()
	if a.script.autoApprove != nil {
		res = res.WithAutoApprove(*a.script.autoApprove)
	}

	return res, nil
}

func (a *scriptedAction) PostApprove(ctx context.Context, s *action.State) (action.Result, error) {
	a.script.calls[PhasePostApprove]++

	if a.script.panics {
		panic("script panic")
	}

	c, err := action.LoadCache[scriptCache](s)
	if err != nil {
		return action.Result{}, err
	}

	if c.Step1 == "" {
		a.script.calls["step1"]++
		c.Step1 = "done"
		if err := action.StoreCache(ctx, s, c); err != nil {
			return action.Result{}, err
		}
	}

	if c.Step2 == "" {
		if a.script.failStep2 != nil {
			return action.Result{}, a.script.failStep2
		}

		a.script.calls["step2"]++
		c.Step2 = "done"
		if err := action.StoreCache(ctx, s, c); err != nil {
			return action.Result{}, err
		}
	}

	if len(a.script.tokenFields) > 0 {
		return action.WithToken(a.script.tokenFields...), nil
	}

	return action.Valid(), nil
}

func (a *scriptedAction) Submit(ctx context.Context, s *action.State, fields map[string]string) (action.Result, error) {
	a.script.calls[PhaseSubmit]++

	if a.script.submitErr != nil {
		return action.Result{}, a.script.submitErr
	}

	for _, f := range a.script.tokenFields {
		if fields[f] == "" {
			return action.Invalid("missing " + f), nil
		}
	}

	a.script.submitted = append(a.script.submitted, fields)

	return action.Valid(), nil
}

var errUpstream = errors.New("upstream unavailable")
