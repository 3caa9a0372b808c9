// Package session persists the current token pair of each user, keyed by
// username. Stores only ever exchange whole models.Session values.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/Skotchmaster/usersvc/internal/models"
)

var (
	ErrNotFound   = errors.New("session not found")
	ErrSuperseded = errors.New("session refresh token superseded")
)

type Store interface {
	// Get returns ErrNotFound when the user has no session.
	Get(ctx context.Context, username string) (*models.Session, error)
	// Put inserts or overwrites the session for sess.Username.
	Put(ctx context.Context, sess *models.Session) error
	// ReplaceAccess swaps the access token of username's session only while
	// its refresh token still equals refreshToken. It returns ErrNotFound when
	// there is no session and ErrSuperseded when the refresh token differs.
	ReplaceAccess(ctx context.Context, username, refreshToken, accessToken string, accessExpiresAt time.Time) error
	// Delete reports whether a session existed.
	Delete(ctx context.Context, username string) (bool, error)
}
