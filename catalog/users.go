package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/praxisworks/tabula/schema"
)

// InsertUser stores a new user account.
func (s *Store) InsertUser(ctx context.Context, u schema.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_info (user_id, user_name, password, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Name, u.Password, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return &Error{Op: "catalog.InsertUser", Err: err}
	}
	return nil
}

// GetUserByName looks a user up by account name.
func (s *Store) GetUserByName(ctx context.Context, name string) (schema.User, error) {
	var u schema.User
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, user_name, password FROM user_info WHERE user_name = ?`, name).
		Scan(&u.ID, &u.Name, &u.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.User{}, notFound("catalog.GetUserByName", "user")
	}
	if err != nil {
		return schema.User{}, &Error{Op: "catalog.GetUserByName", Err: err}
	}
	return u, nil
}

// VerifyCredentials checks name and password by simple equality against the
// users table. The deployed form is a demonstration, not production auth.
func (s *Store) VerifyCredentials(ctx context.Context, name, password string) (schema.User, error) {
	u, err := s.GetUserByName(ctx, name)
	if err != nil {
		return schema.User{}, err
	}
	if u.Password != password {
		return schema.User{}, &Error{Op: "catalog.VerifyCredentials", Kind: schema.KindAuthorization,
			Err: errors.New("wrong credentials")}
	}
	return u, nil
}

// DeleteUser removes the user record. Callers are responsible for first
// cascading through the user's knowledge bases, SQL databases, and sessions;
// ListKnowledgeBasesByUser, ListSQLDatabasesByUser, and ListSessionsByUser
// provide the sweep lists.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_info WHERE user_id = ?`, userID)
	if err != nil {
		return &Error{Op: "catalog.DeleteUser", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("catalog.DeleteUser", "user")
	}
	return nil
}
