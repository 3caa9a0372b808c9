package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Skotchmaster/usersvc/internal/events"
	"github.com/Skotchmaster/usersvc/internal/hash"
	"github.com/Skotchmaster/usersvc/internal/logging"
	"github.com/Skotchmaster/usersvc/internal/models"
	"github.com/Skotchmaster/usersvc/internal/repo"
	"github.com/Skotchmaster/usersvc/internal/session"
	"github.com/Skotchmaster/usersvc/internal/tokens"
)

const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Directory looks users up by username. It returns repo.ErrUserNotFound for
// unknown users.
type Directory interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

// PasswordRehasher is implemented by directories that can upgrade a stored
// password hash after a successful login.
type PasswordRehasher interface {
	UpdatePasswordHash(ctx context.Context, username, hash string) error
}

// Credentials is the token pair handed to a client.
type Credentials struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type AuthServiceOptions struct {
	Users      Directory
	Sessions   session.Store
	Access     *tokens.Codec
	Refresh    *tokens.Codec
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Events     events.Publisher
	// Now defaults to time.Now.
	Now func() time.Time
}

// AuthService owns the session lifecycle: login, request verification,
// access token refresh and logout. Read-modify-write on one username is
// serialized in process.
type AuthService struct {
	users      Directory
	sessions   session.Store
	access     *tokens.Codec
	refresh    *tokens.Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
	events     events.Publisher
	now        func() time.Time
	locks      *keyLock
}

func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	if opts.Users == nil || opts.Sessions == nil {
		return nil, errors.New("auth service: users and sessions are required")
	}
	if opts.Access == nil || opts.Refresh == nil {
		return nil, errors.New("auth service: both token codecs are required")
	}
	if opts.Access.Class() != tokens.Access || opts.Refresh.Class() != tokens.Refresh {
		return nil, errors.New("auth service: token codecs have the wrong class")
	}
	s := &AuthService{
		users:      opts.Users,
		sessions:   opts.Sessions,
		access:     opts.Access,
		refresh:    opts.Refresh,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		events:     opts.Events,
		now:        opts.Now,
		locks:      newKeyLock(),
	}
	if s.accessTTL <= 0 {
		s.accessTTL = DefaultAccessTTL
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = DefaultRefreshTTL
	}
	if s.events == nil {
		s.events = events.NopPublisher{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// burnHash spends the same work as a real password check so unknown
// usernames are not distinguishable by timing.
func burnHash(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = hash.HashPassword("usersvc-dummy-password")
	})
	hash.CheckPassword(dummyHash, password)
}

// Login checks the password and replaces any existing session of the user
// with a fresh token pair.
func (s *AuthService) Login(ctx context.Context, username, password string) (*Credentials, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", username)

	if username == "" || password == "" {
		l.Warn("login_failed", "status", 401, "reason", "empty credentials")
		return nil, ErrInvalidCredentials
	}

	unlock := s.locks.Lock(username)
	defer unlock()

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			burnHash(password)
			l.Warn("login_failed", "status", 401, "reason", "unknown user")
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "status", 500, "error", err)
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "wrong password")
		return nil, ErrInvalidCredentials
	}
	s.maybeRehash(ctx, l, user, password)

	accessToken, accessExp, err := s.access.Issue(user.Username, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, refreshExp, err := s.refresh.Issue(user.Username, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	sess := &models.Session{
		Username:         user.Username,
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		l.Error("login_failed", "status", 500, "error", err)
		return nil, fmt.Errorf("store session: %w", err)
	}

	l.Info("login_success", "access_expires_at", accessExp, "refresh_expires_at", refreshExp)
	s.publish(ctx, events.UserLoggedIn, user.Username)

	return &Credentials{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *AuthService) maybeRehash(ctx context.Context, l *slog.Logger, user *models.User, password string) {
	rh, ok := s.users.(PasswordRehasher)
	if !ok || !hash.NeedsRehash(user.PasswordHash) {
		return
	}
	newHash, err := hash.HashPassword(password)
	if err != nil {
		l.Warn("rehash_failed", "error", err)
		return
	}
	if err := rh.UpdatePasswordHash(ctx, user.Username, newHash); err != nil {
		l.Warn("rehash_failed", "error", err)
	}
}

// Verify resolves the username behind an access token. The token must be the
// one currently stored for the user and its expiry must not have passed.
func (s *AuthService) Verify(ctx context.Context, accessToken string) (string, error) {
	claims, err := s.access.Verify(accessToken)
	if err != nil {
		if errors.Is(err, tokens.ErrExpired) {
			return "", ErrExpired
		}
		return "", ErrInvalidToken
	}
	username := claims.Subject

	sess, err := s.sessions.Get(ctx, username)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("load session: %w", err)
	}
	if sess.AccessToken != accessToken {
		return "", ErrInvalidToken
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.Time.Equal(sess.AccessExpiresAt) {
		return "", ErrInvalidToken
	}
	if !s.now().Before(sess.AccessExpiresAt) {
		return "", ErrExpired
	}
	return username, nil
}

// Refresh issues a new access token for a valid refresh token. The refresh
// token and its expiry are left untouched.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	claims, err := s.refresh.Verify(refreshToken)
	if err != nil {
		if errors.Is(err, tokens.ErrExpired) {
			l.Warn("refresh_failed", "status", 401, "reason", "refresh token expired")
			return nil, ErrExpired
		}
		l.Warn("refresh_failed", "status", 401, "reason", "malformed refresh token")
		return nil, ErrInvalidToken
	}
	username := claims.Subject
	l = l.With("username", username)

	unlock := s.locks.Lock(username)
	defer unlock()

	sess, err := s.sessions.Get(ctx, username)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			l.Warn("refresh_failed", "status", 401, "reason", "no session")
			return nil, ErrSessionNotFound
		}
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.RefreshToken != refreshToken {
		l.Warn("refresh_failed", "status", 401, "reason", "refresh token superseded")
		return nil, ErrInvalidToken
	}
	if !s.now().Before(sess.RefreshExpiresAt) {
		l.Warn("refresh_failed", "status", 401, "reason", "session expired")
		return nil, ErrExpired
	}

	accessToken, accessExp, err := s.access.Issue(username, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	if err := s.sessions.ReplaceAccess(ctx, username, refreshToken, accessToken, accessExp); err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			l.Warn("refresh_failed", "status", 401, "reason", "session removed concurrently")
			return nil, ErrSessionNotFound
		case errors.Is(err, session.ErrSuperseded):
			l.Warn("refresh_failed", "status", 401, "reason", "refresh token superseded concurrently")
			return nil, ErrInvalidToken
		}
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, fmt.Errorf("store session: %w", err)
	}

	l.Info("refresh_success", "access_expires_at", accessExp)
	s.publish(ctx, events.SessionRefreshed, username)

	return &Credentials{
		AccessToken:      accessToken,
		RefreshToken:     sess.RefreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: sess.RefreshExpiresAt,
	}, nil
}

// Logout drops the session of username. Logging out twice is not an error.
func (s *AuthService) Logout(ctx context.Context, username string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout", "username", username)

	unlock := s.locks.Lock(username)
	defer unlock()

	existed, err := s.sessions.Delete(ctx, username)
	if err != nil {
		l.Error("logout_failed", "status", 500, "error", err)
		return fmt.Errorf("delete session: %w", err)
	}
	if existed {
		l.Info("logout_success")
		s.publish(ctx, events.UserLoggedOut, username)
	}
	return nil
}

// LogoutTokens ends the session named by the access token, falling back to the
// refresh token. Both may be expired or superseded. It fails with
// ErrInvalidToken only when neither carries a valid signature.
func (s *AuthService) LogoutTokens(ctx context.Context, accessToken, refreshToken string) (string, error) {
	username, err := s.access.Subject(accessToken)
	if err != nil {
		username, err = s.refresh.Subject(refreshToken)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := s.Logout(ctx, username); err != nil {
		return username, err
	}
	return username, nil
}

func (s *AuthService) publish(ctx context.Context, typ events.Type, username string) {
	ev := events.Event{Type: typ, Username: username, At: s.now().UTC()}
	if err := s.events.Publish(ctx, ev); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "type", typ, "username", username, "error", err)
	}
}
