package action

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/adjutant-go/adjutant/core"
	"github.com/stretchr/testify/require"
)

type testCache struct {
	NetworkID string `json:"network_id,omitempty"`
	SubnetID  string `json:"subnet_id,omitempty"`
}

func newTestState(checkpoint Checkpoint) (*core.Task, *State) {
	task := core.NewTask("t1", "create_project", core.Identity{UserID: "u1"}, testTime)
	rec := core.NewActionRecord("new_default_network", 0, nil)
	task.Actions = append(task.Actions, rec)

	return task, NewState(task, rec, slog.Default(), checkpoint)
}

func Test_StoreCache_MergesAndCheckpoints(t *testing.T) {
	ctx := context.Background()
	checkpoints := 0
	_, s := newTestState(func(context.Context) error {
		checkpoints++
		return nil
	})

	require.NoError(t, StoreCache(ctx, s, testCache{NetworkID: "net_id_0"}))
	require.NoError(t, StoreCache(ctx, s, testCache{SubnetID: "subnet_id_1"}))
	require.Equal(t, 2, checkpoints)

	c, err := LoadCache[testCache](s)
	require.NoError(t, err)
	require.Equal(t, testCache{NetworkID: "net_id_0", SubnetID: "subnet_id_1"}, c)
}

func Test_StoreCache_ReplacesKey(t *testing.T) {
	ctx := context.Background()
	_, s := newTestState(nil)

	require.NoError(t, StoreCache(ctx, s, testCache{NetworkID: "net_id_0", SubnetID: "subnet_id_1"}))
	require.NoError(t, StoreCache(ctx, s, testCache{NetworkID: "net_id_4"}))

	c, err := LoadCache[testCache](s)
	require.NoError(t, err)
	require.Equal(t, "net_id_4", c.NetworkID)
	require.Equal(t, "subnet_id_1", c.SubnetID)
}

func Test_StoreCache_CheckpointFailure(t *testing.T) {
	_, s := newTestState(func(context.Context) error {
		return errors.New("db down")
	})

	err := StoreCache(context.Background(), s, testCache{NetworkID: "net_id_0"})
	require.Error(t, err)

	// The in-memory cache still holds the value for the next checkpoint.
	c, err := LoadCache[testCache](s)
	require.NoError(t, err)
	require.Equal(t, "net_id_0", c.NetworkID)
}

func Test_LoadCache_Empty(t *testing.T) {
	_, s := newTestState(nil)

	c, err := LoadCache[testCache](s)
	require.NoError(t, err)
	require.Equal(t, testCache{}, c)
}

func Test_SetScratch(t *testing.T) {
	task, s := newTestState(nil)

	require.NoError(t, s.SetScratch(context.Background(), core.ScratchProjectID, "p1"))
	require.Equal(t, "p1", task.ScratchValue(core.ScratchProjectID))
	require.Equal(t, "p1", s.Scratch(core.ScratchProjectID))
}
