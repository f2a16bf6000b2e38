package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"devsettings/internal/logger"
)

// AdminSeed describes the user created on an empty database.
type AdminSeed struct {
	Email        string
	Password     string
	Organization string
	Scopes       []string
}

// Bootstrap creates the service tables and seeds the first admin user.
func (s *Store) Bootstrap(ctx context.Context, seed AdminSeed) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SystemTablesSQL()); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}
	if err := s.seedAdminUser(ctx, seed); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}

func (s *Store) seedAdminUser(ctx context.Context, seed AdminSeed) error {
	var count int
	err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM _users").Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if _, err := CreateUser(ctx, s, NewUser{
		Email:        seed.Email,
		Password:     seed.Password,
		Organization: seed.Organization,
		Roles:        []string{"admin"},
		Scopes:       seed.Scopes,
	}); err != nil {
		return err
	}

	logger.L().Warn("default admin user created, change the password immediately",
		zap.String("email", seed.Email))
	return nil
}

// NewUser is the input to CreateUser.
type NewUser struct {
	Email        string
	Password     string
	Organization string
	Roles        []string
	Scopes       []string
}

// CreateUser inserts a user with a bcrypt password hash and returns its id.
func CreateUser(ctx context.Context, s *Store, u NewUser) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	id := uuid.NewString()
	pb := s.Dialect.NewParamBuilder()
	q := fmt.Sprintf(`INSERT INTO _users (id, email, password_hash, organization, roles, scopes) VALUES (%s, %s, %s, %s, %s, %s)`,
		pb.Add(id), pb.Add(u.Email), pb.Add(string(hash)), pb.Add(u.Organization),
		pb.Add(encodeJSON(u.Roles, "[]")), pb.Add(encodeJSON(u.Scopes, "[]")))
	if _, err := Exec(ctx, s.DB, q, pb.Params()...); err != nil {
		return "", s.MapError(err)
	}
	return id, nil
}

func encodeJSON(v any, empty string) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return empty
	}
	return string(b)
}

func decodeJSON[T any](src any, into *T) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("decode json: unexpected %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, into)
}
