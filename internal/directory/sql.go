package directory

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
)

// SQL reads users from the shared users table.
type SQL struct {
	db *sql.DB
}

var _ Directory = (*SQL)(nil)

// NewSQL creates a directory backed by db.
func NewSQL(db *sql.DB) *SQL {
	return &SQL{db: db}
}

const userColumns = `id, pin, name, role, branch, email, email_verified, parent_email, parent_email_verified, phone_number`

func (d *SQL) ResolveByPin(ctx context.Context, pin string) (*User, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE pin = $1`, strings.ToUpper(pin))
	return scanOne(row)
}

func (d *SQL) ResolveByID(ctx context.Context, id string) (*User, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanOne(row)
}

func (d *SQL) ListByRole(ctx context.Context, role Role) ([]User, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY pin`, string(role))
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Upsert creates or replaces a user row. Only the seed process calls it.
func (d *SQL) Upsert(ctx context.Context, u User) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			pin = EXCLUDED.pin,
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			branch = EXCLUDED.branch,
			email = EXCLUDED.email,
			email_verified = EXCLUDED.email_verified,
			parent_email = EXCLUDED.parent_email,
			parent_email_verified = EXCLUDED.parent_email_verified,
			phone_number = EXCLUDED.phone_number
	`, u.ID, strings.ToUpper(u.PIN), u.Name, string(u.Role), u.Branch,
		u.Email, u.EmailVerified, u.ParentEmail, u.ParentEmailVerified, u.PhoneNumber)
	return errors.Wrapf(err, "upsert user %s", u.ID)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row) (*User, error) {
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func scanUser(s scanner) (User, error) {
	var (
		u    User
		role string
	)
	if err := s.Scan(&u.ID, &u.PIN, &u.Name, &role, &u.Branch, &u.Email, &u.EmailVerified,
		&u.ParentEmail, &u.ParentEmailVerified, &u.PhoneNumber); err != nil {
		return User{}, err
	}
	u.Role = Role(role)
	return u, nil
}
