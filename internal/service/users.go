package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Skotchmaster/usersvc/internal/events"
	"github.com/Skotchmaster/usersvc/internal/hash"
	"github.com/Skotchmaster/usersvc/internal/logging"
	"github.com/Skotchmaster/usersvc/internal/models"
	"github.com/Skotchmaster/usersvc/internal/repo"
	"github.com/Skotchmaster/usersvc/internal/util"
)

const maxUsernameLen = 50

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// ValidationError carries a message meant for the client. It matches
// ErrValidation under errors.Is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string        { return e.Message }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type UserStore interface {
	Directory
	Create(ctx context.Context, u *models.User) error
	List(ctx context.Context) ([]models.User, error)
}

type UserIndex interface {
	Index(ctx context.Context, u models.User) error
	Search(ctx context.Context, query string, from, size int) (int64, []models.User, error)
}

type UserServiceOptions struct {
	Users UserStore
	// Index is optional; without it Search returns ErrSearchDisabled.
	Index  UserIndex
	Events events.Publisher
	Now    func() time.Time
	// HashPassword defaults to hash.HashPassword.
	HashPassword func(string) (string, error)
}

type UserService struct {
	users        UserStore
	index        UserIndex
	events       events.Publisher
	now          func() time.Time
	hashPassword func(string) (string, error)
}

func NewUserService(opts UserServiceOptions) *UserService {
	s := &UserService{
		users:        opts.Users,
		index:        opts.Index,
		events:       opts.Events,
		now:          opts.Now,
		hashPassword: opts.HashPassword,
	}
	if s.events == nil {
		s.events = events.NopPublisher{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.hashPassword == nil {
		s.hashPassword = hash.HashPassword
	}
	return s
}

func validateRegistration(username, email, password string) error {
	switch {
	case !usernameRe.MatchString(username):
		return &ValidationError{Message: "Username must contain only alphanumeric characters"}
	case len(username) > maxUsernameLen:
		return &ValidationError{Message: fmt.Sprintf("Username must be at most %d characters", maxUsernameLen)}
	case !emailRe.MatchString(email):
		return &ValidationError{Message: "Invalid email format"}
	case password == "":
		return &ValidationError{Message: "Password must not be empty"}
	}
	return nil
}

// Register validates and stores a new user with a hashed password, then
// indexes it for search when an index is configured.
func (s *UserService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "users.register", "username", username)

	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if err := validateRegistration(username, email, password); err != nil {
		l.Warn("register_error", "status", 400, "reason", err.Error())
		return nil, err
	}

	pwHash, err := s.hashPassword(password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{Username: username, Email: email, PasswordHash: pwHash}
	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repo.ErrUsernameTaken):
			l.Warn("register_error", "status", 409, "reason", "username taken")
			return nil, ErrUsernameTaken
		case errors.Is(err, repo.ErrEmailTaken):
			l.Warn("register_error", "status", 409, "reason", "email taken")
			return nil, ErrEmailTaken
		}
		l.Error("register_error", "status", 500, "error", err)
		return nil, err
	}

	if s.index != nil {
		if err := s.index.Index(ctx, *user); err != nil {
			l.Warn("index_failed", "error", err)
		}
	}
	if err := s.events.Publish(ctx, events.Event{Type: events.UserRegistered, Username: username, At: s.now().UTC()}); err != nil {
		l.Warn("event_publish_failed", "type", events.UserRegistered, "error", err)
	}

	l.Info("register_success", "user_id", user.ID)
	return user, nil
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.users.List(ctx)
}

func (s *UserService) Get(ctx context.Context, username string) (*models.User, error) {
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// Search runs a full text query against the user index. Page numbering
// starts at 1.
func (s *UserService) Search(ctx context.Context, query string, page, size int) (int64, []models.User, error) {
	if s.index == nil {
		return 0, nil, ErrSearchDisabled
	}
	from, limit := util.Calculate(page, size)
	return s.index.Search(ctx, query, from, limit)
}
