package memory

import (
	"context"
	"testing"
	"time"

	"github.com/adjutant-go/adjutant/core"
	"github.com/adjutant-go/adjutant/store"
	"github.com/adjutant-go/adjutant/store/test"
	"github.com/stretchr/testify/require"
)

func Test_MemoryStore(t *testing.T) {
	test.StoreTest(t, func() store.Store {
		return NewMemoryStore()
	}, nil)
}

func Test_MemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	task := core.NewTask("t1", "create_project", core.Identity{ProjectID: "p1"}, time.Now())
	task.Actions = []*core.ActionRecord{core.NewActionRecord("new_user", 0, nil)}
	require.NoError(t, s.CreateTask(ctx, task))

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)

	got.Actions[0].Valid = true
	got.SetScratch("k", "v")

	again, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.False(t, again.Actions[0].Valid)
	require.Empty(t, again.ScratchValue("k"))
}
