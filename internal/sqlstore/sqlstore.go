// Package sqlstore implements store.Store on database/sql. Queries use "?"
// placeholders and portable SQL so the same code serves sqlite and mysql.
// Timestamps are stored as unix nanoseconds.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/adjutant-go/adjutant/core"
	"github.com/adjutant-go/adjutant/internal/metrickeys"
	"github.com/adjutant-go/adjutant/metrics"
	"github.com/adjutant-go/adjutant/store"
)

type Store struct {
	db      *sql.DB
	name    string
	options store.Options

	// isDuplicate reports whether err is a primary key violation.
	isDuplicate func(err error) bool
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB, name string, isDuplicate func(error) bool, options store.Options) *Store {
	if isDuplicate == nil {
		isDuplicate = func(error) bool { return false }
	}

	return &Store{
		db:          db,
		name:        name,
		options:     options,
		isDuplicate: isDuplicate,
	}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Metrics() metrics.Client {
	return s.options.Metrics.WithTags(metrics.Tags{metrickeys.Store: s.name})
}

const taskColumns = "id, task_type, project_id, requester, approved, approved_by, approved_on, completed, completed_on, cancelled, scratch, created_on"

func (s *Store) CreateTask(ctx context.Context, task *core.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM tasks WHERE id = ?", task.ID).Scan(&exists)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", store.ErrTaskAlreadyExists, task.ID)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("checking task: %w", err)
	}

	args, err := taskArgs(task)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO tasks ("+taskColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		args...,
	); err != nil {
		if s.isDuplicate(err) {
			return fmt.Errorf("%w: %s", store.ErrTaskAlreadyExists, task.ID)
		}
		return fmt.Errorf("inserting task: %w", err)
	}

	if err := insertActions(ctx, tx, task); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing task: %w", err)
	}

	return nil
}

func (s *Store) UpdateTask(ctx context.Context, task *core.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM tasks WHERE id = ?", task.ID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrTaskNotFound
		}
		return fmt.Errorf("checking task: %w", err)
	}

	args, err := taskArgs(task)
	if err != nil {
		return err
	}

	// id goes last for the WHERE clause
	args = append(args[1:], task.ID)

	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET task_type = ?, project_id = ?, requester = ?, approved = ?, approved_by = ?, approved_on = ?,
			completed = ?, completed_on = ?, cancelled = ?, scratch = ?, created_on = ? WHERE id = ?`,
		args...,
	); err != nil {
		return fmt.Errorf("updating task: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM task_actions WHERE task_id = ?", task.ID); err != nil {
		return fmt.Errorf("clearing actions: %w", err)
	}

	if err := insertActions(ctx, tx, task); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing task: %w", err)
	}

	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*core.Task, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, err
	}

	if err := s.loadActions(ctx, task); err != nil {
		return nil, err
	}

	return task, nil
}

func (s *Store) ListTasks(ctx context.Context, f store.TaskFilter) ([]*core.Task, error) {
	var where []string
	var args []any

	if f.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.TaskType != "" {
		where = append(where, "task_type = ?")
		args = append(args, f.TaskType)
	}
	if f.Approved != nil {
		where = append(where, "approved = ?")
		args = append(args, *f.Approved)
	}
	if f.Completed != nil {
		where = append(where, "completed = ?")
		args = append(args, *f.Completed)
	}
	if f.Cancelled != nil {
		where = append(where, "cancelled = ?")
		args = append(args, *f.Cancelled)
	}

	order := "created_on DESC, id"
	if f.Order == store.OrderByCompleted {
		where = append(where, "completed_on IS NOT NULL")
		order = "completed_on DESC, id"
	}

	q := "SELECT " + taskColumns + " FROM tasks"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + order
	q, args = paginate(q, args, f.Offset, f.Limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*core.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}

	for _, t := range tasks {
		if err := s.loadActions(ctx, t); err != nil {
			return nil, err
		}
	}

	return tasks, nil
}

func paginate(q string, args []any, offset, limit int) (string, []any) {
	if limit <= 0 && offset <= 0 {
		return q, args
	}

	if limit <= 0 {
		limit = math.MaxInt32
	}

	return q + " LIMIT ? OFFSET ?", append(args, limit, offset)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*core.Task, error) {
	var (
		t                       core.Task
		requester, scratch      []byte
		approvedBy              []byte
		approvedOn, completedOn sql.NullInt64
		createdOn               int64
	)

	if err := row.Scan(
		&t.ID, &t.TaskType, &t.ProjectID, &requester,
		&t.Approved, &approvedBy, &approvedOn,
		&t.Completed, &completedOn, &t.Cancelled,
		&scratch, &createdOn,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(requester, &t.Requester); err != nil {
		return nil, fmt.Errorf("decoding requester: %w", err)
	}

	if len(approvedBy) > 0 {
		var a core.Identity
		if err := json.Unmarshal(approvedBy, &a); err != nil {
			return nil, fmt.Errorf("decoding approver: %w", err)
		}
		t.ApprovedBy = &a
	}

	t.Scratch = map[string]string{}
	if len(scratch) > 0 {
		if err := json.Unmarshal(scratch, &t.Scratch); err != nil {
			return nil, fmt.Errorf("decoding scratch: %w", err)
		}
	}

	t.ApprovedOn = fromNullNanos(approvedOn)
	t.CompletedOn = fromNullNanos(completedOn)
	t.CreatedOn = fromNanos(createdOn)

	return &t, nil
}

func taskArgs(t *core.Task) ([]any, error) {
	requester, err := json.Marshal(t.Requester)
	if err != nil {
		return nil, fmt.Errorf("encoding requester: %w", err)
	}

	var approvedBy []byte
	if t.ApprovedBy != nil {
		if approvedBy, err = json.Marshal(t.ApprovedBy); err != nil {
			return nil, fmt.Errorf("encoding approver: %w", err)
		}
	}

	scratch := t.Scratch
	if scratch == nil {
		scratch = map[string]string{}
	}
	scratchJSON, err := json.Marshal(scratch)
	if err != nil {
		return nil, fmt.Errorf("encoding scratch: %w", err)
	}

	return []any{
		t.ID, t.TaskType, t.ProjectID, string(requester),
		t.Approved, nullString(approvedBy), toNullNanos(t.ApprovedOn),
		t.Completed, toNullNanos(t.CompletedOn), t.Cancelled,
		string(scratchJSON), t.CreatedOn.UnixNano(),
	}, nil
}

func insertActions(ctx context.Context, tx *sql.Tx, task *core.Task) error {
	for _, a := range task.Actions {
		fields, err := json.Marshal(a.TokenFields)
		if err != nil {
			return fmt.Errorf("encoding token fields: %w", err)
		}

		var autoApprove sql.NullBool
		if a.AutoApprove != nil {
			autoApprove = sql.NullBool{Bool: *a.AutoApprove, Valid: true}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO task_actions (task_id, action_order, kind, input, cache, state, valid, need_token, token_fields, auto_approve)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID, a.Order, a.Kind, nullString(a.Input), nullString(a.Cache), a.State,
			a.Valid, a.NeedToken, string(fields), autoApprove,
		); err != nil {
			return fmt.Errorf("inserting action %d: %w", a.Order, err)
		}
	}

	return nil
}

func (s *Store) loadActions(ctx context.Context, task *core.Task) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action_order, kind, input, cache, state, valid, need_token, token_fields, auto_approve
			FROM task_actions WHERE task_id = ? ORDER BY action_order`,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("loading actions: %w", err)
	}
	defer rows.Close()

	task.Actions = make([]*core.ActionRecord, 0)
	for rows.Next() {
		var (
			a                    core.ActionRecord
			input, cache, fields []byte
			autoApprove          sql.NullBool
		)

		if err := rows.Scan(&a.Order, &a.Kind, &input, &cache, &a.State, &a.Valid, &a.NeedToken, &fields, &autoApprove); err != nil {
			return fmt.Errorf("scanning action: %w", err)
		}

		if len(input) > 0 {
			a.Input = json.RawMessage(input)
		}
		if len(cache) > 0 {
			a.Cache = json.RawMessage(cache)
		}
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &a.TokenFields); err != nil {
				return fmt.Errorf("decoding token fields: %w", err)
			}
		}
		if autoApprove.Valid {
			v := autoApprove.Bool
			a.AutoApprove = &v
		}

		task.Actions = append(task.Actions, &a)
	}

	return rows.Err()
}

func (s *Store) CreateToken(ctx context.Context, token *core.Token) error {
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO tokens (token, task_id, expires, created_on) VALUES (?, ?, ?, ?)",
		token.Value, token.TaskID, token.Expires.UnixNano(), token.CreatedOn.UnixNano(),
	); err != nil {
		return fmt.Errorf("inserting token: %w", err)
	}

	return nil
}

func (s *Store) GetToken(ctx context.Context, value string) (*core.Token, error) {
	row := s.db.QueryRowContext(ctx, "SELECT token, task_id, expires, created_on FROM tokens WHERE token = ?", value)

	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTokenNotFound
		}
		return nil, err
	}

	return t, nil
}

func (s *Store) ListTokens(ctx context.Context, taskID string) ([]*core.Token, error) {
	q := "SELECT token, task_id, expires, created_on FROM tokens"
	var args []any
	if taskID != "" {
		q += " WHERE task_id = ?"
		args = append(args, taskID)
	}
	q += " ORDER BY created_on, token"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]*core.Token, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}

	return tokens, rows.Err()
}

func scanToken(row scanner) (*core.Token, error) {
	var (
		t                  core.Token
		expires, createdOn int64
	)

	if err := row.Scan(&t.Value, &t.TaskID, &expires, &createdOn); err != nil {
		return nil, err
	}

	t.Expires = fromNanos(expires)
	t.CreatedOn = fromNanos(createdOn)

	return &t, nil
}

func (s *Store) DeleteToken(ctx context.Context, value string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tokens WHERE token = ?", value)
	if err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrTokenNotFound
	}

	return nil
}

func (s *Store) DeleteTaskTokens(ctx context.Context, taskID string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tokens WHERE task_id = ?", taskID)
	if err != nil {
		return 0, fmt.Errorf("deleting task tokens: %w", err)
	}

	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tokens WHERE expires < ?", now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}

	n, err := res.RowsAffected()
	if err == nil && n > 0 {
		s.Metrics().Counter(metrickeys.TokenExpired, metrics.Tags{}, n)
	}

	return int(n), err
}

func (s *Store) CreateNotification(ctx context.Context, n *core.Notification) error {
	notes, err := json.Marshal(n.Notes)
	if err != nil {
		return fmt.Errorf("encoding notes: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO notifications (id, task_id, notes, error, acknowledged, created_on) VALUES (?, ?, ?, ?, ?, ?)",
		n.ID, n.TaskID, string(notes), n.Error, n.Acknowledged, n.CreatedOn.UnixNano(),
	); err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}

	return nil
}

const notificationColumns = "id, task_id, notes, error, acknowledged, created_on"

func (s *Store) GetNotification(ctx context.Context, id string) (*core.Notification, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+notificationColumns+" FROM notifications WHERE id = ?", id)

	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotificationNotFound
		}
		return nil, err
	}

	return n, nil
}

func (s *Store) ListNotifications(ctx context.Context, f store.NotificationFilter) ([]*core.Notification, error) {
	var where []string
	var args []any

	if f.TaskID != "" {
		where = append(where, "task_id = ?")
		args = append(args, f.TaskID)
	}
	if f.Acknowledged != nil {
		where = append(where, "acknowledged = ?")
		args = append(args, *f.Acknowledged)
	}
	if f.Error != nil {
		where = append(where, "error = ?")
		args = append(args, *f.Error)
	}

	q := "SELECT " + notificationColumns + " FROM notifications"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_on DESC, id"
	q, args = paginate(q, args, f.Offset, f.Limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	ns := make([]*core.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		ns = append(ns, n)
	}

	return ns, rows.Err()
}

func scanNotification(row scanner) (*core.Notification, error) {
	var (
		n         core.Notification
		notes     []byte
		createdOn int64
	)

	if err := row.Scan(&n.ID, &n.TaskID, &notes, &n.Error, &n.Acknowledged, &createdOn); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(notes, &n.Notes); err != nil {
		return nil, fmt.Errorf("decoding notes: %w", err)
	}
	n.CreatedOn = fromNanos(createdOn)

	return &n, nil
}

func (s *Store) AcknowledgeNotification(ctx context.Context, id string) error {
	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT 1 FROM notifications WHERE id = ?", id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotificationNotFound
		}
		return err
	}

	if _, err := s.db.ExecContext(ctx, "UPDATE notifications SET acknowledged = ? WHERE id = ?", true, id); err != nil {
		return fmt.Errorf("acknowledging notification: %w", err)
	}

	return nil
}

func nullString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}

	return sql.NullString{String: string(b), Valid: true}
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}

	t := fromNanos(n.Int64)
	return &t
}

func toNullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
