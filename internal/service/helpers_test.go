package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/usersvc/internal/hash"
	"github.com/Skotchmaster/usersvc/internal/models"
	"github.com/Skotchmaster/usersvc/internal/repo"
	"github.com/Skotchmaster/usersvc/internal/session"
	"github.com/Skotchmaster/usersvc/internal/tokens"
)

var cheapParams = hash.Params{Memory: 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memDirectory struct {
	mu     sync.Mutex
	users  map[string]models.User
	nextID uint
}

func newMemDirectory() *memDirectory {
	return &memDirectory{users: make(map[string]models.User)}
}

func (d *memDirectory) add(t *testing.T, username, password string) {
	t.Helper()
	h, err := hash.HashWithParams(password, cheapParams)
	require.NoError(t, err)
	d.put(models.User{Username: username, Email: username + "@example.com", PasswordHash: h})
}

func (d *memDirectory) put(u models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	u.ID = d.nextID
	d.users[u.Username] = u
}

func (d *memDirectory) FindByUsername(_ context.Context, username string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[username]
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	return &u, nil
}

func (d *memDirectory) Create(_ context.Context, u *models.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[u.Username]; ok {
		return repo.ErrUsernameTaken
	}
	for _, other := range d.users {
		if other.Email == u.Email {
			return repo.ErrEmailTaken
		}
	}
	d.nextID++
	u.ID = d.nextID
	d.users[u.Username] = *u
	return nil
}

func (d *memDirectory) List(_ context.Context) ([]models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	return out, nil
}

// rehashDirectory records password hash upgrades.
type rehashDirectory struct {
	*memDirectory
	updated chan string
}

func (d *rehashDirectory) UpdatePasswordHash(_ context.Context, username, h string) error {
	d.mu.Lock()
	u := d.users[username]
	u.PasswordHash = h
	d.users[username] = u
	d.mu.Unlock()
	d.updated <- h
	return nil
}

type testEnv struct {
	svc      *AuthService
	clock    *fakeClock
	users    *memDirectory
	sessions *session.MemoryStore
	access   *tokens.Codec
	refresh  *tokens.Codec
}

func newTestEnv(t *testing.T, mutate ...func(*AuthServiceOptions)) *testEnv {
	t.Helper()

	clock := newFakeClock()
	env := &testEnv{
		clock:    clock,
		users:    newMemDirectory(),
		sessions: session.NewMemoryStore(),
		access:   tokens.NewCodec(tokens.Access, []byte("test-access-secret"), clock.Now),
		refresh:  tokens.NewCodec(tokens.Refresh, []byte("test-refresh-secret"), clock.Now),
	}
	opts := AuthServiceOptions{
		Users:      env.users,
		Sessions:   env.sessions,
		Access:     env.access,
		Refresh:    env.refresh,
		AccessTTL:  time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
		Now:        clock.Now,
	}
	for _, m := range mutate {
		m(&opts)
	}

	svc, err := NewAuthService(opts)
	require.NoError(t, err)
	env.svc = svc
	env.users.add(t, "alice", "wonderland")
	env.users.add(t, "bob", "builder")
	return env
}
