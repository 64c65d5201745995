package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/loginoidc/pkg/storage/postgres"
)

// PostgresStore keeps local users in the local_users table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store on db
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetUser retrieves a user by login
func (s *PostgresStore) GetUser(ctx context.Context, login string) (*User, error) {
	user := &User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT login, email, password_hash, superuser_access, token_auth, created_at
		FROM local_users
		WHERE login = $1
	`, login).Scan(&user.Login, &user.Email, &user.PasswordHash, &user.SuperUser, &user.TokenAuth, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// CreateUser inserts a new user
func (s *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO local_users (login, email, password_hash, superuser_access, token_auth, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`, user.Login, user.Email, user.PasswordHash, user.SuperUser, user.TokenAuth).Scan(&user.CreatedAt)
	if postgres.IsUniqueViolation(err) {
		return ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// SetTokenAuth replaces the user's auth token
func (s *PostgresStore) SetTokenAuth(ctx context.Context, login, token string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE local_users SET token_auth = $1 WHERE login = $2", token, login)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser removes a user; the user's account links go with it
func (s *PostgresStore) DeleteUser(ctx context.Context, login string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM local_users WHERE login = $1", login); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// Authenticate checks a local password sign-in
func (s *PostgresStore) Authenticate(ctx context.Context, login, password string) (*User, error) {
	user, err := s.GetUser(ctx, login)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := CheckPassword(user.PasswordHash, password); err != nil {
		return nil, err
	}
	return user, nil
}
