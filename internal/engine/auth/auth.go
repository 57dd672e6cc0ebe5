package auth

import (
	"context"
	"database/sql"
	"fmt"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Service provides RBAC helpers backed by SQL.
type Service struct {
	DB *sql.DB
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s Service) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return s.DB
}

// UserHasPermission reports whether an active user's profile grants perm.
func (s Service) UserHasPermission(ctx context.Context, tx *sql.Tx, userID, perm string) (bool, error) {
	row := s.q(tx).QueryRowContext(ctx, `
SELECT 1 FROM users u
JOIN profile_permissions pp ON pp.profile_id=u.profile_id
WHERE u.id=? AND u.active=1 AND pp.permission_id=? LIMIT 1`, userID, perm)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s Service) UserProfile(ctx context.Context, tx *sql.Tx, userID string) (string, error) {
	var profile string
	err := s.q(tx).QueryRowContext(ctx, `SELECT profile_id FROM users WHERE id=? AND active=1`, userID).Scan(&profile)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return profile, err
}

func (s Service) UserPermissions(ctx context.Context, tx *sql.Tx, userID string) ([]string, error) {
	rows, err := s.q(tx).QueryContext(ctx, `
SELECT DISTINCT pp.permission_id
FROM users u
JOIN profile_permissions pp ON pp.profile_id=u.profile_id
WHERE u.id=? AND u.active=1
ORDER BY pp.permission_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
