package repository

import (
	"context"
	"testing"
	"time"

	"inkwell/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupRepoTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Post{},
		&models.Comment{},
		&models.Like{},
		&models.CommentLike{},
		&models.Bookmark{},
		&models.Follow{},
	))
	return db
}

func TestTokenAddAndValid(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	token := &models.RefreshToken{
		JTI:       "jti-1",
		UserID:    1,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, repo.Add(ctx, token))

	valid, err := repo.Valid(ctx, "jti-1", 1)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = repo.Valid(ctx, "jti-1", 2)
	require.NoError(t, err)
	assert.False(t, valid, "token must be bound to its user")

	valid, err = repo.Valid(ctx, "unknown", 1)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestTokenExpiredRowRejected(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Add(ctx, &models.RefreshToken{
		JTI:       "stale",
		UserID:    1,
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	valid, err := repo.Valid(ctx, "stale", 1)
	require.NoError(t, err)
	assert.False(t, valid, "expired row must not validate even while it exists")
}

func TestTokenRotation(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Add(ctx, &models.RefreshToken{
		JTI: "old", UserID: 1, ExpiresAt: time.Now().Add(time.Hour),
	}))

	removed, err := repo.Remove(ctx, "old", 1)
	require.NoError(t, err)
	assert.True(t, removed)

	require.NoError(t, repo.Add(ctx, &models.RefreshToken{
		JTI: "new", UserID: 1, ExpiresAt: time.Now().Add(time.Hour),
	}))

	valid, err := repo.Valid(ctx, "old", 1)
	require.NoError(t, err)
	assert.False(t, valid, "rotated-out token must be rejected")

	valid, err = repo.Valid(ctx, "new", 1)
	require.NoError(t, err)
	assert.True(t, valid)

	removed, err = repo.Remove(ctx, "old", 1)
	require.NoError(t, err)
	assert.False(t, removed, "second removal is a no-op")
}

func TestTokenRemoveClaimsExactlyOnce(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Add(ctx, &models.RefreshToken{
		JTI: "live", UserID: 1, ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, repo.Add(ctx, &models.RefreshToken{
		JTI: "stale", UserID: 1, ExpiresAt: time.Now().Add(-time.Minute),
	}))

	removed, err := repo.Remove(ctx, "live", 2)
	require.NoError(t, err)
	assert.False(t, removed, "another user's jti must not be claimable")

	valid, err := repo.Valid(ctx, "live", 1)
	require.NoError(t, err)
	assert.True(t, valid, "failed claim must leave the row intact")

	removed, err = repo.Remove(ctx, "stale", 1)
	require.NoError(t, err)
	assert.False(t, removed, "expired rows must not be claimable")

	removed, err = repo.Remove(ctx, "live", 1)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Remove(ctx, "live", 1)
	require.NoError(t, err)
	assert.False(t, removed, "the claim works exactly once")
}

func TestTokenRemoveAllForUser(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	for _, jti := range []string{"a", "b"} {
		require.NoError(t, repo.Add(ctx, &models.RefreshToken{
			JTI: jti, UserID: 1, ExpiresAt: time.Now().Add(time.Hour),
		}))
	}
	require.NoError(t, repo.Add(ctx, &models.RefreshToken{
		JTI: "other", UserID: 2, ExpiresAt: time.Now().Add(time.Hour),
	}))

	require.NoError(t, repo.RemoveAllForUser(ctx, 1))

	for _, jti := range []string{"a", "b"} {
		valid, err := repo.Valid(ctx, jti, 1)
		require.NoError(t, err)
		assert.False(t, valid)
	}

	valid, err := repo.Valid(ctx, "other", 2)
	require.NoError(t, err)
	assert.True(t, valid, "other users' sessions must survive")
}

func TestDeleteExpired(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Add(ctx, &models.RefreshToken{
		JTI: "live", UserID: 1, ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, repo.Add(ctx, &models.RefreshToken{
		JTI: "dead", UserID: 1, ExpiresAt: time.Now().Add(-time.Hour),
	}))

	n, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var count int64
	require.NoError(t, db.Model(&models.RefreshToken{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
