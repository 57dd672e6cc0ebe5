package repo

import (
	"context"
	"database/sql"

	"buildline/internal/domain"
)

func (r Repo) InsertPermission(ctx context.Context, tx *sql.Tx, id, desc string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO permissions(id, description) VALUES (?,?)`, id, nullable(desc))
	return err
}

// UpsertProfile creates the profile or refreshes its description.
func (r Repo) UpsertProfile(ctx context.Context, tx *sql.Tx, id, desc string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO profiles(id, description) VALUES (?,?)
ON CONFLICT(id) DO UPDATE SET description=excluded.description`, id, nullable(desc))
	return err
}

// SetProfilePermissions replaces the permission set of a profile.
func (r Repo) SetProfilePermissions(ctx context.Context, tx *sql.Tx, profileID string, perms []string) error {
	if _, err := r.q(tx).ExecContext(ctx, `DELETE FROM profile_permissions WHERE profile_id=?`, profileID); err != nil {
		return err
	}
	for _, p := range perms {
		if _, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO profile_permissions(profile_id, permission_id) VALUES (?,?)`, profileID, p); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetProfile(ctx context.Context, tx *sql.Tx, id string) (domain.Profile, error) {
	var p domain.Profile
	err := r.q(tx).QueryRowContext(ctx, `SELECT id, COALESCE(description,'') FROM profiles WHERE id=?`, id).Scan(&p.ID, &p.Description)
	if err != nil {
		return p, notFound(err)
	}
	p.Permissions, err = r.profilePermissions(ctx, tx, id)
	return p, err
}

func (r Repo) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	ids, err := queryStrings(ctx, r.DB, `SELECT id FROM profiles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Profile, 0, len(ids))
	for _, id := range ids {
		p, err := r.GetProfile(ctx, nil, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r Repo) profilePermissions(ctx context.Context, tx *sql.Tx, profileID string) ([]string, error) {
	perms, err := queryStrings(ctx, r.q(tx), `SELECT permission_id FROM profile_permissions WHERE profile_id=? ORDER BY permission_id`, profileID)
	if perms == nil {
		perms = []string{}
	}
	return perms, err
}

const userColumns = `id,email,full_name,profile_id,active,created_at`

func scanUser(s scanner) (domain.User, error) {
	var u domain.User
	err := s.Scan(&u.ID, &u.Email, &u.FullName, &u.ProfileID, &u.Active, &u.CreatedAt)
	return u, notFound(err)
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(id,email,full_name,profile_id,active,created_at) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Email, u.FullName, u.ProfileID, u.Active, u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	return scanUser(r.q(tx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) UpdateUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	return affectedOne(r.q(tx).ExecContext(ctx, `UPDATE users SET full_name=?, profile_id=?, active=? WHERE id=?`, u.FullName, u.ProfileID, u.Active, u.ID))
}

func (r Repo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
