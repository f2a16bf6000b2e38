package store

import (
	"context"
	"fmt"
)

// User is an account allowed to manage integrations for its organization.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Organization string
	Roles        []string
	Scopes       []string
	Active       bool
}

// FindUserByEmail returns the user with the given email, or ErrNotFound.
func FindUserByEmail(ctx context.Context, s *Store, email string) (*User, error) {
	return findUser(ctx, s, "email", email)
}

// FindUserByID returns the user with the given id, or ErrNotFound.
func FindUserByID(ctx context.Context, s *Store, id string) (*User, error) {
	return findUser(ctx, s, "id", id)
}

func findUser(ctx context.Context, s *Store, col, val string) (*User, error) {
	q := fmt.Sprintf("SELECT id, email, password_hash, organization, roles, scopes, active FROM _users WHERE %s = %s",
		col, s.Dialect.Placeholder(1))
	row, err := QueryOne(ctx, s.DB, q, val)
	if err != nil {
		return nil, err
	}
	row = s.fixBools(row, "active")

	u := &User{}
	u.ID, _ = row["id"].(string)
	u.Email, _ = row["email"].(string)
	u.PasswordHash, _ = row["password_hash"].(string)
	u.Organization, _ = row["organization"].(string)
	u.Active, _ = row["active"].(bool)
	if err := decodeJSON(row["roles"], &u.Roles); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}
	if err := decodeJSON(row["scopes"], &u.Scopes); err != nil {
		return nil, fmt.Errorf("decode scopes: %w", err)
	}
	return u, nil
}
