package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/adjutant-go/adjutant/action"
	"github.com/adjutant-go/adjutant/core"
)

// Registry maps action kinds to their definitions and resolved settings. It is
// populated and configured at startup and only read afterwards.
type Registry struct {
	sync.Mutex

	definitions map[action.Kind]action.Definition
	settings    map[action.Kind]any
}

// New creates a new registry instance.
func New() *Registry {
	return &Registry{
		definitions: make(map[action.Kind]action.Definition),
		settings:    make(map[action.Kind]any),
	}
}

type registerConfig struct {
	Override map[string]any
}

func (r *Registry) Register(def action.Definition, opts ...RegisterOption) error {
	cfg := registerOptions(opts).applyRegisterOptions(registerConfig{})

	kind := def.Kind()
	if err := core.ValidActionKind(kind); err != nil {
		return &ErrInvalidKind{err.Error()}
	}

	settings, err := def.Configure(cfg.Override)
	if err != nil {
		return &ErrInvalidSettings{Kind: kind, Err: err}
	}

	r.Lock()
	defer r.Unlock()

	if _, ok := r.definitions[kind]; ok {
		return &ErrKindAlreadyRegistered{fmt.Sprintf("action kind %q already registered", kind)}
	}

	r.definitions[kind] = def
	r.settings[kind] = settings

	return nil
}

// Configure merges per-deployment overrides onto the registered defaults. All
// overrides are checked and every problem is reported. Nothing is changed if
// any override is rejected.
func (r *Registry) Configure(overrides map[action.Kind]map[string]any) error {
	r.Lock()
	defer r.Unlock()

	resolved := make(map[action.Kind]any, len(overrides))
	var errs []error

	for _, kind := range sortedKinds(overrides) {
		def, ok := r.definitions[kind]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownKind, kind))
			continue
		}

		settings, err := def.Configure(overrides[kind])
		if err != nil {
			errs = append(errs, &ErrInvalidSettings{Kind: kind, Err: err})
			continue
		}

		resolved[kind] = settings
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for kind, settings := range resolved {
		r.settings[kind] = settings
	}

	return nil
}

func (r *Registry) Kinds() []action.Kind {
	r.Lock()
	defer r.Unlock()

	kinds := make([]action.Kind, 0, len(r.definitions))
	for k := range r.definitions {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return kinds
}

// Settings returns the resolved settings of a kind.
func (r *Registry) Settings(kind action.Kind) (any, error) {
	r.Lock()
	defer r.Unlock()

	s, ok := r.settings[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	return s, nil
}

// Validate checks an input for the kind. Field rejections are returned as
// *action.ValidationError.
func (r *Registry) Validate(kind action.Kind, input json.RawMessage) error {
	def, err := r.definition(kind)
	if err != nil {
		return err
	}

	return def.Validate(input)
}

func (r *Registry) Build(kind action.Kind, deps action.Deps, input json.RawMessage) (action.Action, error) {
	def, err := r.definition(kind)
	if err != nil {
		return nil, err
	}

	r.Lock()
	settings := r.settings[kind]
	r.Unlock()

	return def.Build(deps, settings, input)
}

func (r *Registry) definition(kind action.Kind) (action.Definition, error) {
	r.Lock()
	defer r.Unlock()

	def, ok := r.definitions[kind]
	if !ok {
		return action.Definition{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	return def, nil
}

func sortedKinds(m map[action.Kind]map[string]any) []action.Kind {
	kinds := make([]action.Kind, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return kinds
}
