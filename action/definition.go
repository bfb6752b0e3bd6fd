package action

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Definition describes one action kind: how to decode and validate its input,
// its default settings and how to build it.
type Definition struct {
	kind Kind

	validate  func(input json.RawMessage) error
	configure func(override map[string]any) (any, error)
	build     func(d Deps, settings any, input json.RawMessage) (Action, error)
}

// Define creates a Definition for input type I and settings type S. Inputs are
// checked against their validate struct tags first. validate adds the rules
// tags cannot express and may be nil.
func Define[I, S any](
	kind Kind,
	defaults S,
	factory func(d Deps, settings S, input I) Action,
	validate func(input *I) ValidationErrors,
) Definition {
	decode := func(raw json.RawMessage) (I, error) {
		var in I
		if len(raw) == 0 {
			return in, nil
		}

		if err := json.Unmarshal(raw, &in); err != nil {
			return in, NewValidationError(kind, ValidationErrors{"input": {err.Error()}})
		}

		return in, nil
	}

	return Definition{
		kind: kind,
		validate: func(raw json.RawMessage) error {
			in, err := decode(raw)
			if err != nil {
				return err
			}

			errs := checkTags(&in)
			if validate != nil {
				errs.Merge(validate(&in))
			}
			if !errs.Empty() {
				return NewValidationError(kind, errs)
			}

			return nil
		},
		configure: func(override map[string]any) (any, error) {
			merged, err := deepCopy(defaults)
			if err != nil {
				return nil, fmt.Errorf("copying %s defaults: %w", kind, err)
			}

			if len(override) == 0 {
				return merged, nil
			}

			b, err := json.Marshal(override)
			if err != nil {
				return nil, fmt.Errorf("encoding %s override: %w", kind, err)
			}

			// Keys present in the override win, zero values included. Absent
			// keys keep their defaults and maps gain the override's entries.
			dec := json.NewDecoder(bytes.NewReader(b))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&merged); err != nil {
				return nil, fmt.Errorf("decoding %s override: %w", kind, err)
			}

			return merged, nil
		},
		build: func(d Deps, settings any, raw json.RawMessage) (Action, error) {
			s, ok := settings.(S)
			if !ok {
				return nil, fmt.Errorf("settings for %s have type %T", kind, settings)
			}

			in, err := decode(raw)
			if err != nil {
				return nil, err
			}

			return factory(d, s, in), nil
		},
	}
}

func (d Definition) Kind() Kind {
	return d.kind
}

// Validate decodes and checks an input. Rejections are *ValidationError.
func (d Definition) Validate(input json.RawMessage) error {
	return d.validate(input)
}

// Configure returns the defaults with override merged on top. Keys unknown to
// the settings type are rejected.
func (d Definition) Configure(override map[string]any) (any, error) {
	return d.configure(override)
}

func (d Definition) Build(deps Deps, settings any, input json.RawMessage) (Action, error) {
	return d.build(deps, settings, input)
}

func deepCopy[S any](v S) (S, error) {
	var c S
	b, err := json.Marshal(v)
	if err != nil {
		return c, err
	}

	err = json.Unmarshal(b, &c)
	return c, err
}
