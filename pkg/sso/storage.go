package sso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/loginoidc/pkg/storage/postgres"
)

// Column limits of local_users.login and account_link.provider_user
const (
	maxLoginLength        = 100
	maxRemoteUserIDLength = 255
)

// LinkStore persists account links. Uniqueness of (provider, remote id) and
// (provider, local user) is enforced by the store; a losing concurrent insert
// reports ErrLinkExists.
type LinkStore interface {
	GetByRemoteID(ctx context.Context, provider, remoteUserID string) (*AccountLink, error)
	GetByLocalUser(ctx context.Context, provider, login string) (*AccountLink, error)
	Create(ctx context.Context, link *AccountLink) error
	Delete(ctx context.Context, provider, login string) error
}

// SQLLinkStore keeps account links in the account_link table
type SQLLinkStore struct {
	db *sql.DB
}

// NewSQLLinkStore creates a link store on db
func NewSQLLinkStore(db *sql.DB) *SQLLinkStore {
	return &SQLLinkStore{db: db}
}

// GetByRemoteID looks a link up by its primary key
func (s *SQLLinkStore) GetByRemoteID(ctx context.Context, provider, remoteUserID string) (*AccountLink, error) {
	return s.get(ctx, `
		SELECT "user", provider_user, provider, date_connected
		FROM account_link
		WHERE provider = $1 AND provider_user = $2
	`, provider, remoteUserID)
}

// GetByLocalUser returns the link a local user has for provider
func (s *SQLLinkStore) GetByLocalUser(ctx context.Context, provider, login string) (*AccountLink, error) {
	return s.get(ctx, `
		SELECT "user", provider_user, provider, date_connected
		FROM account_link
		WHERE provider = $1 AND "user" = $2
	`, provider, login)
}

func (s *SQLLinkStore) get(ctx context.Context, query string, args ...interface{}) (*AccountLink, error) {
	link := &AccountLink{}
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&link.LocalUser, &link.RemoteUserID, &link.Provider, &link.ConnectedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account link: %w", err)
	}
	return link, nil
}

// Create inserts a link. Links are never updated in place.
func (s *SQLLinkStore) Create(ctx context.Context, link *AccountLink) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO account_link ("user", provider_user, provider, date_connected)
		VALUES ($1, $2, $3, NOW())
		RETURNING date_connected
	`, link.LocalUser, link.RemoteUserID, link.Provider).Scan(&link.ConnectedAt)
	if postgres.IsUniqueViolation(err) {
		return ErrLinkExists
	}
	if err != nil {
		return fmt.Errorf("failed to create account link: %w", err)
	}
	return nil
}

// Delete removes the link of a local user. Deleting a missing link is not an
// error.
func (s *SQLLinkStore) Delete(ctx context.Context, provider, login string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM account_link WHERE provider = $1 AND "user" = $2`, provider, login)
	if err != nil {
		return fmt.Errorf("failed to delete account link: %w", err)
	}
	return nil
}
