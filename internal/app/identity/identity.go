// Package identity declares the ports to the account-management subsystem.
// Token issuance and the user directory live outside this service; the
// messaging core only consumes them.
package identity

import (
	"context"
	"errors"
)

var (
	ErrInvalidToken    = errors.New("identity: invalid or expired token")
	ErrTokenRequired   = errors.New("identity: no authentication token provided")
	ErrProfileNotFound = errors.New("identity: profile not found")
)

// Claims is the authenticated identity extracted from a bearer credential.
type Claims struct {
	UserID string
	Role   string
}

// TokenVerifier validates a bearer token and yields the caller's claims.
type TokenVerifier interface {
	Verify(token string) (Claims, error)
}

// Profile is the directory record of a platform user.
type Profile struct {
	ID   string
	Name string
	Role string
}

// Directory resolves display profiles for user ids.
type Directory interface {
	Profile(ctx context.Context, userID string) (Profile, error)
}
