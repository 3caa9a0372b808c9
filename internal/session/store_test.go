package session

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Skotchmaster/usersvc/internal/models"
)

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Session{}))
	return NewGormStore(db)
}

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is required for redis store tests")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStoreWithPrefix(client, "test:session:"+uuid.NewString()+":")
}

func sampleSession(username string, base time.Time) *models.Session {
	return &models.Session{
		Username:         username,
		AccessToken:      "access-" + username,
		RefreshToken:     "refresh-" + username,
		AccessExpiresAt:  base.Add(time.Hour),
		RefreshExpiresAt: base.Add(7 * 24 * time.Hour),
	}
}

func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		want := sampleSession("alice", base)
		require.NoError(t, store.Put(ctx, want))

		got, err := store.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, want.Username, got.Username)
		assert.Equal(t, want.AccessToken, got.AccessToken)
		assert.Equal(t, want.RefreshToken, got.RefreshToken)
		assert.True(t, want.AccessExpiresAt.Equal(got.AccessExpiresAt))
		assert.True(t, want.RefreshExpiresAt.Equal(got.RefreshExpiresAt))
	})

	t.Run("put overwrites", func(t *testing.T) {
		first := sampleSession("bob", base)
		require.NoError(t, store.Put(ctx, first))

		second := sampleSession("bob", base.Add(time.Minute))
		second.AccessToken = "access-bob-2"
		second.RefreshToken = "refresh-bob-2"
		require.NoError(t, store.Put(ctx, second))

		got, err := store.Get(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, "access-bob-2", got.AccessToken)
		assert.Equal(t, "refresh-bob-2", got.RefreshToken)
		assert.True(t, second.AccessExpiresAt.Equal(got.AccessExpiresAt))
	})

	t.Run("delete reports presence", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, sampleSession("carol", base)))

		existed, err := store.Delete(ctx, "carol")
		require.NoError(t, err)
		assert.True(t, existed)

		existed, err = store.Delete(ctx, "carol")
		require.NoError(t, err)
		assert.False(t, existed)

		_, err = store.Get(ctx, "carol")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("replace access keeps refresh token", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, sampleSession("erin", base)))

		exp := base.Add(2 * time.Hour)
		require.NoError(t, store.ReplaceAccess(ctx, "erin", "refresh-erin", "access-erin-2", exp))

		got, err := store.Get(ctx, "erin")
		require.NoError(t, err)
		assert.Equal(t, "access-erin-2", got.AccessToken)
		assert.Equal(t, "refresh-erin", got.RefreshToken)
		assert.True(t, exp.Equal(got.AccessExpiresAt))
	})

	t.Run("replace access after a newer put", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, sampleSession("frank", base)))
		newer := sampleSession("frank", base.Add(time.Minute))
		newer.AccessToken = "access-frank-2"
		newer.RefreshToken = "refresh-frank-2"
		require.NoError(t, store.Put(ctx, newer))

		err := store.ReplaceAccess(ctx, "frank", "refresh-frank", "stale", base.Add(time.Hour))
		assert.ErrorIs(t, err, ErrSuperseded)

		got, err := store.Get(ctx, "frank")
		require.NoError(t, err)
		assert.Equal(t, "access-frank-2", got.AccessToken)
		assert.Equal(t, "refresh-frank-2", got.RefreshToken)

		err = store.ReplaceAccess(ctx, "nobody", "x", "y", base)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty username rejected", func(t *testing.T) {
		require.Error(t, store.Put(ctx, &models.Session{}))
	})

	t.Run("concurrent puts keep one whole record", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				s := sampleSession("dave", base.Add(time.Duration(i)*time.Minute))
				s.AccessToken = s.AccessToken + "-" + string(rune('a'+i))
				s.RefreshToken = s.RefreshToken + "-" + string(rune('a'+i))
				assert.NoError(t, store.Put(ctx, s))
			}(i)
		}
		wg.Wait()

		got, err := store.Get(ctx, "dave")
		require.NoError(t, err)
		suffix := got.AccessToken[len(got.AccessToken)-1:]
		assert.Equal(t, "refresh-dave-"+suffix, got.RefreshToken)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestGormStore_SQLite(t *testing.T) {
	runStoreContract(t, newSQLiteStore(t))
}

func TestRedisStore(t *testing.T) {
	runStoreContract(t, newRedisStore(t))
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, sampleSession("alice", time.Now())))

	got, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	got.AccessToken = "mutated"

	again, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "access-alice", again.AccessToken)
	assert.Equal(t, 1, store.Len())
}
