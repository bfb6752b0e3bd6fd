// Package test holds the conformance suite every store implementation runs.
package test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/adjutant-go/adjutant/core"
	"github.com/adjutant-go/adjutant/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 10, 30, 0, 123456000, time.UTC)

func boolPtr(b bool) *bool {
	return &b
}

func newTask(projectID, taskType string, createdOn time.Time) *core.Task {
	t := core.NewTask(uuid.NewString(), taskType, core.Identity{
		UserID:    "user-1",
		Username:  "someone@example.com",
		ProjectID: projectID,
		Roles:     []string{core.RoleProjectAdmin},
	}, createdOn)

	first := core.NewActionRecord("new_user", 0, json.RawMessage(`{"email":"someone@example.com"}`))
	first.Valid = true
	first.NeedToken = true
	first.TokenFields = []string{"password"}

	second := core.NewActionRecord("set_project_quota", 1, json.RawMessage(`{}`))

	t.Actions = []*core.ActionRecord{first, second}

	return t
}

func StoreTest(t *testing.T, setup func() store.Store, teardown func(s store.Store)) {
	TaskStoreTest(t, func() store.TaskStore { return setup() }, func(s store.TaskStore) {
		if teardown != nil {
			teardown(s.(store.Store))
		}
	})

	TokenStoreTest(t, func() store.TokenStore { return setup() }, func(s store.TokenStore) {
		if teardown != nil {
			teardown(s.(store.Store))
		}
	})

	NotificationStoreTest(t, func() store.NotificationStore { return setup() }, func(s store.NotificationStore) {
		if teardown != nil {
			teardown(s.(store.Store))
		}
	})
}

func TaskStoreTest(t *testing.T, setup func() store.TaskStore, teardown func(s store.TaskStore)) {
	tests := []struct {
		name string
		f    func(t *testing.T, ctx context.Context, s store.TaskStore)
	}{
		{
			name: "CreateTask_RoundTrips",
			f: func(t *testing.T, ctx context.Context, s store.TaskStore) {
				task := newTask("p1", "create_project", base)
				task.SetScratch(core.ScratchProjectID, "p9")
				task.Actions[1].Cache = json.RawMessage(`{"applied":true}`)
				task.Actions[1].AutoApprove = boolPtr(false)

				require.NoError(t, s.CreateTask(ctx, task))

				got, err := s.GetTask(ctx, task.ID)
				require.NoError(t, err)
				require.Equal(t, task, got)
			},
		},
		{
			name: "CreateTask_SameIDErrors",
			f: func(t *testing.T, ctx context.Context, s store.TaskStore) {
				task := newTask("p1", "create_project", base)
				require.NoError(t, s.CreateTask(ctx, task))

				err := s.CreateTask(ctx, task)
				require.ErrorIs(t, err, store.ErrTaskAlreadyExists)
			},
		},
		{
			name: "CreateTask_StoresCopy",
			f: func(t *testing.T, ctx context.Context, s store.TaskStore) {
				task := newTask("p1", "create_project", base)
				require.NoError(t, s.CreateTask(ctx, task))

				task.Approved = true
				task.Actions[0].State = core.ActionStateComplete
				task.SetScratch("k", "v")

				got, err := s.GetTask(ctx, task.ID)
				require.NoError(t, err)
				require.False(t, got.Approved)
				require.Equal(t, core.ActionStateNew, got.Actions[0].State)
				require.Empty(t, got.ScratchValue("k"))
			},
		},
		{
			name: "GetTask_NotFound",
			f: func(t *testing.T, ctx context.Context, s store.TaskStore) {
				_, err := s.GetTask(ctx, "does-not-exist")
				require.ErrorIs(t, err, store.ErrTaskNotFound)
			},
		},
		{
			name: "UpdateTask_ReplacesTaskAndActions",
			f: func(t *testing.T, ctx context.Context, s store.TaskStore) {
				task := newTask("p1", "create_project", base)
				require.NoError(t, s.CreateTask(ctx, task))

				approvedOn := base.Add(time.Hour)
				task.Approved = true
				task.ApprovedBy = &core.Identity{UserID: "admin-1", Roles: []string{core.RoleAdmin}}
				task.ApprovedOn = &approvedOn
				task.Actions[0].State = core.ActionStateApprovedPending
				task.Actions[0].Cache = json.RawMessage(`{"user_id":"u1"}`)
				task.Actions = task.Actions[:1]
				task.SetScratch(core.ScratchUserID, "u1")

				require.NoError(t, s.UpdateTask(ctx, task))

				got, err := s.GetTask(ctx, task.ID)
				require.NoError(t, err)
				require.Equal(t, task, got)
				require.Len(t, got.Actions, 1)
			},
		},
		{
			name: "UpdateTask_NotFound",
			f: func(t *testing.T, ctx context.Context, s store.TaskStore) {
				err := s.UpdateTask(ctx, newTask("p1", "create_project", base))
				require.ErrorIs(t, err, store.ErrTaskNotFound)
			},
		},
		{
			name: "ListTasks_NewestFirst",
			f: func(t *testing.T, ctx context.Context, s store.TaskStore) {
				older := newTask("p1", "create_project", base)
				newer := newTask("p1", "create_project", base.Add(time.Minute))
				require.NoError(t, s.CreateTask(ctx, older))
				require.NoError(t, s.CreateTask(ctx, newer))

				tasks, err := s.ListTasks(ctx, store.TaskFilter{})
				require.NoError(t, err)
				require.Len(t, tasks, 2)
				require.Equal(t, newer.ID, tasks[0].ID)
				require.Equal(t, older.ID, tasks[1].ID)
				require.Len(t, tasks[0].Actions, 2)
			},
		},
		{
			name: "ListTasks_Filters",
			f: func(t *testing.T, ctx context.Context, s store.TaskStore) {
				a := newTask("p1", "create_project", base)
				a.Approved = true

				b := newTask("p2", "invite_user", base.Add(time.Second))
				b.Cancelled = true

				c := newTask("p1", "invite_user", base.Add(2*time.Second))
				completedOn := base.Add(time.Hour)
				c.Approved = true
				c.Completed = true
				c.CompletedOn = &completedOn

				for _, task := range []*core.Task{a, b, c} {
					require.NoError(t, s.CreateTask(ctx, task))
				}

				ids := func(tasks []*core.Task) []string {
					r := []string{}
					for _, t := range tasks {
						r = append(r, t.ID)
					}
					return r
				}

				filters := []struct {
					filter store.TaskFilter
					want   []string
				}{
					{store.TaskFilter{ProjectID: "p1"}, []string{c.ID, a.ID}},
					{store.TaskFilter{TaskType: "invite_user"}, []string{c.ID, b.ID}},
					{store.TaskFilter{Approved: boolPtr(true)}, []string{c.ID, a.ID}},
					{store.TaskFilter{Completed: boolPtr(false)}, []string{b.ID, a.ID}},
					{store.TaskFilter{Cancelled: boolPtr(true)}, []string{b.ID}},
					{store.TaskFilter{ProjectID: "p1", Completed: boolPtr(false)}, []string{a.ID}},
					{store.TaskFilter{Order: store.OrderByCompleted}, []string{c.ID}},
					{store.TaskFilter{Limit: 2}, []string{c.ID, b.ID}},
					{store.TaskFilter{Offset: 1}, []string{b.ID, a.ID}},
					{store.TaskFilter{Offset: 1, Limit: 1}, []string{b.ID}},
					{store.TaskFilter{Offset: 5}, []string{}},
				}

				for _, f := range filters {
					tasks, err := s.ListTasks(ctx, f.filter)
					require.NoError(t, err)
					require.Equal(t, f.want, ids(tasks), "filter %+v", f.filter)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setup()
			ctx := context.Background()
			tt.f(t, ctx, s)
			if teardown != nil {
				teardown(s)
			}
		})
	}
}

func TokenStoreTest(t *testing.T, setup func() store.TokenStore, teardown func(s store.TokenStore)) {
	newToken := func(taskID string, createdOn time.Time, ttl time.Duration) *core.Token {
		return &core.Token{
			Value:     uuid.NewString(),
			TaskID:    taskID,
			Expires:   createdOn.Add(ttl),
			CreatedOn: createdOn,
		}
	}

	tests := []struct {
		name string
		f    func(t *testing.T, ctx context.Context, s store.TokenStore)
	}{
		{
			name: "CreateToken_RoundTrips",
			f: func(t *testing.T, ctx context.Context, s store.TokenStore) {
				token := newToken("task-1", base, 24*time.Hour)
				require.NoError(t, s.CreateToken(ctx, token))

				got, err := s.GetToken(ctx, token.Value)
				require.NoError(t, err)
				require.Equal(t, token, got)
			},
		},
		{
			name: "GetToken_NotFound",
			f: func(t *testing.T, ctx context.Context, s store.TokenStore) {
				_, err := s.GetToken(ctx, "does-not-exist")
				require.ErrorIs(t, err, store.ErrTokenNotFound)
			},
		},
		{
			name: "GetToken_ReturnsExpired",
			f: func(t *testing.T, ctx context.Context, s store.TokenStore) {
				token := newToken("task-1", base, -time.Hour)
				require.NoError(t, s.CreateToken(ctx, token))

				got, err := s.GetToken(ctx, token.Value)
				require.NoError(t, err)
				require.True(t, got.Expired(base))
			},
		},
		{
			name: "ListTokens_ByTaskOldestFirst",
			f: func(t *testing.T, ctx context.Context, s store.TokenStore) {
				second := newToken("task-1", base.Add(time.Minute), time.Hour)
				first := newToken("task-1", base, time.Hour)
				other := newToken("task-2", base, time.Hour)

				for _, token := range []*core.Token{second, first, other} {
					require.NoError(t, s.CreateToken(ctx, token))
				}

				tokens, err := s.ListTokens(ctx, "task-1")
				require.NoError(t, err)
				require.Equal(t, []*core.Token{first, second}, tokens)

				all, err := s.ListTokens(ctx, "")
				require.NoError(t, err)
				require.Len(t, all, 3)
				require.Equal(t, second.Value, all[2].Value)

				none, err := s.ListTokens(ctx, "task-3")
				require.NoError(t, err)
				require.Empty(t, none)
			},
		},
		{
			name: "DeleteToken_RemovesToken",
			f: func(t *testing.T, ctx context.Context, s store.TokenStore) {
				token := newToken("task-1", base, time.Hour)
				require.NoError(t, s.CreateToken(ctx, token))

				require.NoError(t, s.DeleteToken(ctx, token.Value))

				_, err := s.GetToken(ctx, token.Value)
				require.ErrorIs(t, err, store.ErrTokenNotFound)

				err = s.DeleteToken(ctx, token.Value)
				require.ErrorIs(t, err, store.ErrTokenNotFound)

				tokens, err := s.ListTokens(ctx, "task-1")
				require.NoError(t, err)
				require.Empty(t, tokens)
			},
		},
		{
			name: "DeleteTaskTokens_OnlyTouchesTask",
			f: func(t *testing.T, ctx context.Context, s store.TokenStore) {
				for i := 0; i < 2; i++ {
					require.NoError(t, s.CreateToken(ctx, newToken("task-1", base.Add(time.Duration(i)*time.Second), time.Hour)))
				}
				keep := newToken("task-2", base, time.Hour)
				require.NoError(t, s.CreateToken(ctx, keep))

				n, err := s.DeleteTaskTokens(ctx, "task-1")
				require.NoError(t, err)
				require.Equal(t, 2, n)

				n, err = s.DeleteTaskTokens(ctx, "task-1")
				require.NoError(t, err)
				require.Equal(t, 0, n)

				_, err = s.GetToken(ctx, keep.Value)
				require.NoError(t, err)
			},
		},
		{
			name: "DeleteExpiredTokens_KeepsValid",
			f: func(t *testing.T, ctx context.Context, s store.TokenStore) {
				expired := newToken("task-1", base.Add(-2*time.Hour), time.Hour)
				valid := newToken("task-2", base, time.Hour)
				require.NoError(t, s.CreateToken(ctx, expired))
				require.NoError(t, s.CreateToken(ctx, valid))

				n, err := s.DeleteExpiredTokens(ctx, base)
				require.NoError(t, err)
				require.Equal(t, 1, n)

				_, err = s.GetToken(ctx, expired.Value)
				require.ErrorIs(t, err, store.ErrTokenNotFound)

				_, err = s.GetToken(ctx, valid.Value)
				require.NoError(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setup()
			ctx := context.Background()
			tt.f(t, ctx, s)
			if teardown != nil {
				teardown(s)
			}
		})
	}
}

func NotificationStoreTest(t *testing.T, setup func() store.NotificationStore, teardown func(s store.NotificationStore)) {
	newNotification := func(taskID string, isError bool, createdOn time.Time) *core.Notification {
		return &core.Notification{
			ID:     uuid.NewString(),
			TaskID: taskID,
			Notes: map[string][]string{
				"errors": {"Error: something went wrong"},
			},
			Error:     isError,
			CreatedOn: createdOn,
		}
	}

	tests := []struct {
		name string
		f    func(t *testing.T, ctx context.Context, s store.NotificationStore)
	}{
		{
			name: "CreateNotification_RoundTrips",
			f: func(t *testing.T, ctx context.Context, s store.NotificationStore) {
				n := newNotification("task-1", true, base)
				require.NoError(t, s.CreateNotification(ctx, n))

				got, err := s.GetNotification(ctx, n.ID)
				require.NoError(t, err)
				require.Equal(t, n, got)
			},
		},
		{
			name: "GetNotification_NotFound",
			f: func(t *testing.T, ctx context.Context, s store.NotificationStore) {
				_, err := s.GetNotification(ctx, "does-not-exist")
				require.ErrorIs(t, err, store.ErrNotificationNotFound)
			},
		},
		{
			name: "AcknowledgeNotification_Idempotent",
			f: func(t *testing.T, ctx context.Context, s store.NotificationStore) {
				n := newNotification("task-1", true, base)
				require.NoError(t, s.CreateNotification(ctx, n))

				require.NoError(t, s.AcknowledgeNotification(ctx, n.ID))
				require.NoError(t, s.AcknowledgeNotification(ctx, n.ID))

				got, err := s.GetNotification(ctx, n.ID)
				require.NoError(t, err)
				require.True(t, got.Acknowledged)

				err = s.AcknowledgeNotification(ctx, "does-not-exist")
				require.ErrorIs(t, err, store.ErrNotificationNotFound)
			},
		},
		{
			name: "ListNotifications_Filters",
			f: func(t *testing.T, ctx context.Context, s store.NotificationStore) {
				a := newNotification("task-1", true, base)
				b := newNotification("task-1", false, base.Add(time.Second))
				c := newNotification("task-2", true, base.Add(2*time.Second))

				for _, n := range []*core.Notification{a, b, c} {
					require.NoError(t, s.CreateNotification(ctx, n))
				}
				require.NoError(t, s.AcknowledgeNotification(ctx, c.ID))

				ids := func(ns []*core.Notification) []string {
					r := []string{}
					for _, n := range ns {
						r = append(r, n.ID)
					}
					return r
				}

				filters := []struct {
					filter store.NotificationFilter
					want   []string
				}{
					{store.NotificationFilter{}, []string{c.ID, b.ID, a.ID}},
					{store.NotificationFilter{TaskID: "task-1"}, []string{b.ID, a.ID}},
					{store.NotificationFilter{Error: boolPtr(true)}, []string{c.ID, a.ID}},
					{store.NotificationFilter{Acknowledged: boolPtr(false)}, []string{b.ID, a.ID}},
					{store.NotificationFilter{Acknowledged: boolPtr(false), Error: boolPtr(true)}, []string{a.ID}},
					{store.NotificationFilter{Limit: 1}, []string{c.ID}},
					{store.NotificationFilter{Offset: 2}, []string{a.ID}},
				}

				for _, f := range filters {
					ns, err := s.ListNotifications(ctx, f.filter)
					require.NoError(t, err)
					require.Equal(t, f.want, ids(ns), "filter %+v", f.filter)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setup()
			ctx := context.Background()
			tt.f(t, ctx, s)
			if teardown != nil {
				teardown(s)
			}
		})
	}
}
