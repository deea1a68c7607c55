package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/praxisworks/tabula/schema"
)

// InsertSession stores a new session.
func (s *Store) InsertSession(ctx context.Context, sess schema.Session) error {
	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := now
	if !sess.CreatedAt.IsZero() {
		createdAt = sess.CreatedAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session (session_id, user_id, session_name, knowledge_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.OwnerID, sess.Name, sess.KnowledgeName, createdAt, now)
	if err != nil {
		return &Error{Op: "catalog.InsertSession", Err: err}
	}
	return nil
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (schema.Session, error) {
	var sess schema.Session
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, session_name, COALESCE(knowledge_name, ''), created_at, updated_at
		 FROM session WHERE session_id = ?`, sessionID).
		Scan(&sess.ID, &sess.OwnerID, &sess.Name, &sess.KnowledgeName, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Session{}, notFound("catalog.GetSession", "session")
	}
	if err != nil {
		return schema.Session{}, &Error{Op: "catalog.GetSession", Err: err}
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return sess, nil
}

// ListSessionsByUser returns every session a user owns, newest first.
func (s *Store) ListSessionsByUser(ctx context.Context, userID string) ([]schema.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, user_id, session_name, COALESCE(knowledge_name, ''), created_at, updated_at
		 FROM session WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, &Error{Op: "catalog.ListSessionsByUser", Err: err}
	}
	defer rows.Close()

	var sessions []schema.Session
	for rows.Next() {
		var sess schema.Session
		var createdAt, updatedAt string
		if err := rows.Scan(&sess.ID, &sess.OwnerID, &sess.Name, &sess.KnowledgeName, &createdAt, &updatedAt); err != nil {
			return nil, &Error{Op: "catalog.ListSessionsByUser", Err: err}
		}
		sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		sess.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// TouchSession bumps a session's updated_at.
func (s *Store) TouchSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE session SET updated_at = ? WHERE session_id = ?`,
		time.Now().UTC().Format(time.RFC3339), sessionID)
	if err != nil {
		return &Error{Op: "catalog.TouchSession", Err: err}
	}
	return nil
}

// DeleteSession removes the session row and its discussion-task rows. The
// message list and the on-disk discussion folders are swept by the caller.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM discussion_task_record WHERE session_id = ?`, sessionID); err != nil {
			return &Error{Op: "catalog.DeleteSession", Err: err}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM session WHERE session_id = ?`, sessionID)
		if err != nil {
			return &Error{Op: "catalog.DeleteSession", Err: err}
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound("catalog.DeleteSession", "session")
		}
		return nil
	})
}

// RegisterDiscussionTask stores a new discussion task for a session.
func (s *Store) RegisterDiscussionTask(ctx context.Context, task schema.DiscussionTask) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO discussion_task_record (discussion_id, session_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		task.ID, task.SessionID, string(task.Status), now, now)
	if err != nil {
		return &Error{Op: "catalog.RegisterDiscussionTask", Err: err}
	}
	return nil
}

// UpdateDiscussionTaskStatus transitions a discussion task's status.
func (s *Store) UpdateDiscussionTaskStatus(ctx context.Context, discussionID string, status schema.DiscussionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discussion_task_record SET status = ?, updated_at = ? WHERE discussion_id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339), discussionID)
	if err != nil {
		return &Error{Op: "catalog.UpdateDiscussionTaskStatus", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("catalog.UpdateDiscussionTaskStatus", "discussion task")
	}
	return nil
}

// ListDiscussionTasks returns every discussion task of a session.
func (s *Store) ListDiscussionTasks(ctx context.Context, sessionID string) ([]schema.DiscussionTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT discussion_id, session_id, status, created_at, updated_at
		 FROM discussion_task_record WHERE session_id = ? ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, &Error{Op: "catalog.ListDiscussionTasks", Err: err}
	}
	defer rows.Close()

	var tasks []schema.DiscussionTask
	for rows.Next() {
		var task schema.DiscussionTask
		var status, createdAt, updatedAt string
		if err := rows.Scan(&task.ID, &task.SessionID, &status, &createdAt, &updatedAt); err != nil {
			return nil, &Error{Op: "catalog.ListDiscussionTasks", Err: err}
		}
		task.Status = schema.DiscussionStatus(status)
		task.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		task.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// DeleteDiscussionTask removes one discussion task row.
func (s *Store) DeleteDiscussionTask(ctx context.Context, discussionID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM discussion_task_record WHERE discussion_id = ?`, discussionID)
	if err != nil {
		return &Error{Op: "catalog.DeleteDiscussionTask", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("catalog.DeleteDiscussionTask", "discussion task")
	}
	return nil
}
