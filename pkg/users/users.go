package users

import (
	"context"
	"errors"
	"time"
)

// DisallowPasswordLogin is stored as the password hash of accounts created
// through remote sign-up. It is not a bcrypt hash, so no password matches it.
const DisallowPasswordLogin = "(disallow password login)"

var (
	// ErrUserNotFound is returned when no local user has the login
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when creating a login that is taken
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials is returned when a password does not match
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPasswordLoginDisabled is returned for accounts that may only sign in remotely
	ErrPasswordLoginDisabled = errors.New("password login is disabled for this account")
)

// User is a local account
type User struct {
	Login        string    `json:"login"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	SuperUser    bool      `json:"superuser"`
	TokenAuth    string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store reads local users and maintains their auth token
type Store interface {
	GetUser(ctx context.Context, login string) (*User, error)
	SetTokenAuth(ctx context.Context, login, token string) error
}

// PrivilegedCreator creates local users regardless of who is calling. It is
// handed only to the code path that performs sign-up.
type PrivilegedCreator interface {
	CreateUser(ctx context.Context, user *User) error
}
