package repo

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Skotchmaster/usersvc/internal/models"
)

func InitTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	return db
}

func TestUserRepo_CreateAndFind(t *testing.T) {
	t.Parallel()

	r := NewUserRepo(InitTestDB(t))
	ctx := context.Background()

	u := &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "hash"}
	require.NoError(t, r.Create(ctx, u))
	assert.NotZero(t, u.ID)

	got, err := r.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = r.FindByUsername(ctx, "bob")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepo_Create_Conflicts(t *testing.T) {
	t.Parallel()

	r := NewUserRepo(InitTestDB(t))
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "h"}))

	err := r.Create(ctx, &models.User{Username: "alice", Email: "other@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	err = r.Create(ctx, &models.User{Username: "other", Email: "alice@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	err = r.Create(ctx, &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestUserRepo_ListAndUpdateHash(t *testing.T) {
	t.Parallel()

	r := NewUserRepo(InitTestDB(t))
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, &models.User{Username: "alice", Email: "a@example.com", PasswordHash: "h1"}))
	require.NoError(t, r.Create(ctx, &models.User{Username: "bob", Email: "b@example.com", PasswordHash: "h2"}))

	users, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "bob", users[1].Username)

	require.NoError(t, r.UpdatePasswordHash(ctx, "bob", "h3"))
	bob, err := r.FindByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "h3", bob.PasswordHash)

	assert.ErrorIs(t, r.UpdatePasswordHash(ctx, "nobody", "h"), ErrUserNotFound)
}
