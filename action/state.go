package action

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/adjutant-go/adjutant/core"
)

// Checkpoint persists the owning task.
type Checkpoint func(ctx context.Context) error

// State is what a running action sees of its task.
type State struct {
	task       *core.Task
	record     *core.ActionRecord
	logger     *slog.Logger
	checkpoint Checkpoint
}

func NewState(task *core.Task, record *core.ActionRecord, logger *slog.Logger, checkpoint Checkpoint) *State {
	if checkpoint == nil {
		checkpoint = func(context.Context) error { return nil }
	}

	return &State{
		task:       task,
		record:     record,
		logger:     logger,
		checkpoint: checkpoint,
	}
}

func (s *State) Logger() *slog.Logger {
	return s.logger
}

func (s *State) TaskID() string {
	return s.task.ID
}

func (s *State) Requester() core.Identity {
	return s.task.Requester
}

func (s *State) Record() *core.ActionRecord {
	return s.record
}

func (s *State) Scratch(key string) string {
	return s.task.ScratchValue(key)
}

// SetScratch publishes a value to later actions of the task and persists it.
func (s *State) SetScratch(ctx context.Context, key, value string) error {
	s.task.SetScratch(key, value)

	if err := s.checkpoint(ctx); err != nil {
		return fmt.Errorf("persisting scratch %q: %w", key, err)
	}

	return nil
}

// LoadCache decodes the action's partial results into the kind's cache type.
func LoadCache[T any](s *State) (T, error) {
	var v T
	if len(s.record.Cache) == 0 {
		return v, nil
	}

	if err := json.Unmarshal(s.record.Cache, &v); err != nil {
		return v, fmt.Errorf("decoding %s cache: %w", s.record.Kind, err)
	}

	return v, nil
}

// StoreCache merges the non-empty fields of v into the action's cache and
// persists the task right away. Keys already present are kept unless v carries
// a new value for them; nothing is ever removed. Cache types should tag their
// fields with omitempty.
func StoreCache[T any](ctx context.Context, s *State, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s cache: %w", s.record.Kind, err)
	}

	merged, err := mergeCache(s.record.Cache, b)
	if err != nil {
		return fmt.Errorf("merging %s cache: %w", s.record.Kind, err)
	}

	s.record.Cache = merged

	if err := s.checkpoint(ctx); err != nil {
		return fmt.Errorf("persisting %s cache: %w", s.record.Kind, err)
	}

	return nil
}

func mergeCache(current, update json.RawMessage) (json.RawMessage, error) {
	m := map[string]json.RawMessage{}
	if len(current) > 0 {
		if err := json.Unmarshal(current, &m); err != nil {
			return nil, err
		}
	}

	u := map[string]json.RawMessage{}
	if err := json.Unmarshal(update, &u); err != nil {
		return nil, err
	}

	for k, v := range u {
		if string(v) == "null" || string(v) == `""` {
			continue
		}
		m[k] = v
	}

	return json.Marshal(m)
}
