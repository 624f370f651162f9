package repository

import (
	"context"
	"testing"

	"inkwell/internal/cache"
	"inkwell/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedAuthor(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "x",
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedPost(t *testing.T, db *gorm.DB, authorID uint, slug string, published bool) *models.Post {
	t.Helper()
	post := &models.Post{
		Title:       "Title " + slug,
		Slug:        slug,
		ContentHTML: "<p>body</p>",
		Published:   published,
		AuthorID:    authorID,
	}
	require.NoError(t, db.Create(post).Error)
	return post
}

func TestPostComputedCounts(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := seedAuthor(t, db, "author")
	reader := seedAuthor(t, db, "reader")
	post := seedPost(t, db, author.ID, "counted-post", true)

	require.NoError(t, repo.Like(ctx, reader.ID, post.ID))
	require.NoError(t, db.Create(&models.Comment{
		PostID: post.ID, AuthorID: reader.ID, BodyHTML: "<p>visible</p>",
	}).Error)
	require.NoError(t, db.Create(&models.Comment{
		PostID: post.ID, AuthorID: reader.ID, BodyHTML: "<p>gone</p>", Deleted: true,
	}).Error)

	got, err := repo.GetByID(ctx, post.ID, reader.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, got.LikesCount)
	assert.Equal(t, 1, got.CommentsCount, "soft-deleted comments must not count")
	assert.True(t, got.Liked)
	assert.False(t, got.Bookmarked)
	assert.Equal(t, author.Username, got.Author.Username)
}

func TestPostAnonymousFlagsFalse(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := seedAuthor(t, db, "author")
	post := seedPost(t, db, author.ID, "anon-post", true)
	require.NoError(t, repo.Like(ctx, author.ID, post.ID))

	got, err := repo.GetBySlug(ctx, "anon-post", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, got.LikesCount)
	assert.False(t, got.Liked)
	assert.False(t, got.Bookmarked)
}

func TestPostLikeIdempotent(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := seedAuthor(t, db, "author")
	post := seedPost(t, db, author.ID, "liked-post", true)

	require.NoError(t, repo.Like(ctx, author.ID, post.ID))
	require.NoError(t, repo.Like(ctx, author.ID, post.ID))

	var count int64
	require.NoError(t, db.Model(&models.Like{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "duplicate like must be a no-op")

	require.NoError(t, repo.Unlike(ctx, author.ID, post.ID))
	liked, err := repo.IsLiked(ctx, author.ID, post.ID)
	require.NoError(t, err)
	assert.False(t, liked)
}

func TestPostListFilters(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := seedAuthor(t, db, "author")
	other := seedAuthor(t, db, "other")

	golang := seedPost(t, db, author.ID, "go-post", true)
	golang.Tags = "go,web"
	golang.Category = "technology"
	require.NoError(t, db.Save(golang).Error)

	goofy := seedPost(t, db, other.ID, "goofy-post", true)
	goofy.Tags = "golang-adjacent,humor"
	require.NoError(t, db.Save(goofy).Error)

	seedPost(t, db, author.ID, "draft-post", false)

	t.Run("drafts excluded by default", func(t *testing.T) {
		posts, total, err := repo.List(ctx, PostFilter{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, posts, 2)
	})

	t.Run("drafts included when asked", func(t *testing.T) {
		_, total, err := repo.List(ctx, PostFilter{IncludeUnpublished: true, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
	})

	t.Run("tag match is exact not prefix", func(t *testing.T) {
		posts, total, err := repo.List(ctx, PostFilter{Tag: "go", Limit: 10})
		require.NoError(t, err)
		require.Equal(t, int64(1), total)
		assert.Equal(t, "go-post", posts[0].Slug)
	})

	t.Run("author filter", func(t *testing.T) {
		_, total, err := repo.List(ctx, PostFilter{AuthorID: other.ID, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
	})

	t.Run("category filter", func(t *testing.T) {
		posts, total, err := repo.List(ctx, PostFilter{Category: "technology", Limit: 10})
		require.NoError(t, err)
		require.Equal(t, int64(1), total)
		assert.Equal(t, "go-post", posts[0].Slug)
	})

	t.Run("title search case-insensitive", func(t *testing.T) {
		_, total, err := repo.List(ctx, PostFilter{Query: "GOOFY", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
	})
}

func TestPostSortTop(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := seedAuthor(t, db, "author")
	fans := []*models.User{
		seedAuthor(t, db, "fan1"),
		seedAuthor(t, db, "fan2"),
	}

	quiet := seedPost(t, db, author.ID, "quiet", true)
	popular := seedPost(t, db, author.ID, "popular", true)
	for _, fan := range fans {
		require.NoError(t, repo.Like(ctx, fan.ID, popular.ID))
	}
	require.NoError(t, repo.Like(ctx, fans[0].ID, quiet.ID))

	posts, _, err := repo.List(ctx, PostFilter{Sort: models.PostSortTop, Limit: 10})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "popular", posts[0].Slug)
	assert.Equal(t, 2, posts[0].LikesCount)
}

func TestFrontPageListCached(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { cache.SetClient(nil) })

	author := seedAuthor(t, db, "author")
	seedPost(t, db, author.ID, "first", true)

	front := PostFilter{Limit: 20, Sort: models.PostSortNew}
	_, total, err := repo.List(ctx, front)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.True(t, mr.Exists(cache.FrontPageKey()))

	// A row written behind the repository's back stays invisible until
	// invalidation: the second read is served from the cache.
	seedPost(t, db, author.ID, "second", true)
	_, total, err = repo.List(ctx, front)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	// Creating through the repository invalidates the key.
	require.NoError(t, repo.Create(ctx, &models.Post{
		Title:       "Third",
		Slug:        "third",
		ContentHTML: "<p>x</p>",
		Published:   true,
		AuthorID:    author.ID,
	}))
	posts, total, err := repo.List(ctx, front)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, posts, 3)

	// Signed-in and filtered listings bypass the shared key entirely.
	mr.FlushAll()
	_, total, err = repo.List(ctx, PostFilter{Limit: 20, CurrentUserID: author.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.False(t, mr.Exists(cache.FrontPageKey()))
}

func TestIncrementViewCount(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := seedAuthor(t, db, "author")
	post := seedPost(t, db, author.ID, "viewed", true)

	require.NoError(t, repo.IncrementViewCount(ctx, post.ID))
	require.NoError(t, repo.IncrementViewCount(ctx, post.ID))

	got, err := repo.GetByID(ctx, post.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ViewCount)
}

func TestBookmarks(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := seedAuthor(t, db, "author")
	reader := seedAuthor(t, db, "reader")
	saved := seedPost(t, db, author.ID, "saved", true)
	seedPost(t, db, author.ID, "ignored", true)

	require.NoError(t, repo.AddBookmark(ctx, reader.ID, saved.ID))
	require.NoError(t, repo.AddBookmark(ctx, reader.ID, saved.ID))

	posts, total, err := repo.ListBookmarked(ctx, reader.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, posts, 1)
	assert.Equal(t, "saved", posts[0].Slug)
	assert.True(t, posts[0].Bookmarked)

	require.NoError(t, repo.RemoveBookmark(ctx, reader.ID, saved.ID))
	_, total, err = repo.ListBookmarked(ctx, reader.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestPostDeleteCascades(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := seedAuthor(t, db, "author")
	reader := seedAuthor(t, db, "reader")
	post := seedPost(t, db, author.ID, "doomed", true)

	comment := &models.Comment{PostID: post.ID, AuthorID: reader.ID, BodyHTML: "<p>c</p>"}
	require.NoError(t, db.Create(comment).Error)
	require.NoError(t, db.Create(&models.CommentLike{UserID: author.ID, CommentID: comment.ID}).Error)
	require.NoError(t, repo.Like(ctx, reader.ID, post.ID))
	require.NoError(t, repo.AddBookmark(ctx, reader.ID, post.ID))

	require.NoError(t, repo.Delete(ctx, post.ID))

	for name, model := range map[string]any{
		"posts":         &models.Post{},
		"comments":      &models.Comment{},
		"comment likes": &models.CommentLike{},
		"likes":         &models.Like{},
		"bookmarks":     &models.Bookmark{},
	} {
		var count int64
		require.NoError(t, db.Model(model).Count(&count).Error)
		assert.Zero(t, count, "%s must be removed with the post", name)
	}

	err := repo.Delete(ctx, post.ID)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}

func TestPostSlugConflict(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := seedAuthor(t, db, "author")
	seedPost(t, db, author.ID, "taken", true)

	err := repo.Create(ctx, &models.Post{
		Title:       "Another",
		Slug:        "taken",
		ContentHTML: "<p>x</p>",
		AuthorID:    author.ID,
	})
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeConflict, appErr.Code)
}

func TestAuthorStats(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := seedAuthor(t, db, "author")
	reader := seedAuthor(t, db, "reader")

	first := seedPost(t, db, author.ID, "first", true)
	second := seedPost(t, db, author.ID, "second", true)
	require.NoError(t, db.Model(first).UpdateColumn("view_count", 10).Error)
	require.NoError(t, db.Model(second).UpdateColumn("view_count", 5).Error)
	require.NoError(t, repo.Like(ctx, reader.ID, first.ID))

	require.NoError(t, db.Create(&models.Comment{
		PostID: first.ID, AuthorID: reader.ID, BodyHTML: "<p>nice</p>",
	}).Error)
	require.NoError(t, db.Create(&models.Comment{
		PostID: first.ID, AuthorID: reader.ID, BodyHTML: "<p>gone</p>", Deleted: true,
	}).Error)

	stats, err := repo.AuthorStats(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Posts)
	assert.Equal(t, int64(15), stats.TotalViews)
	assert.Equal(t, int64(1), stats.TotalLikes)
	assert.Equal(t, int64(1), stats.TotalComments, "deleted comments stay out of the aggregate")
}
