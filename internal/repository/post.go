package repository

import (
	"context"
	"errors"
	"strings"

	"inkwell/internal/cache"
	"inkwell/internal/models"

	"gorm.io/gorm"
)

// PostFilter narrows and orders a post listing. Zero values mean "no filter".
type PostFilter struct {
	AuthorID           uint
	Tag                string
	Category           string
	Query              string
	Sort               string
	FeaturedOnly       bool
	IncludeUnpublished bool
	Limit              int
	Offset             int
	CurrentUserID      uint
}

// AuthorStats aggregates engagement across one author's posts.
type AuthorStats struct {
	Posts         int64 `json:"posts"`
	TotalViews    int64 `json:"total_views"`
	TotalLikes    int64 `json:"total_likes"`
	TotalComments int64 `json:"total_comments"`
}

// PostRepository defines the interface for post data operations.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint, currentUserID uint) (*models.Post, error)
	GetBySlug(ctx context.Context, slug string, currentUserID uint) (*models.Post, error)
	List(ctx context.Context, filter PostFilter) ([]*models.Post, int64, error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id uint) error
	IncrementViewCount(ctx context.Context, id uint) error
	IsLiked(ctx context.Context, userID, postID uint) (bool, error)
	Like(ctx context.Context, userID, postID uint) error
	Unlike(ctx context.Context, userID, postID uint) error
	IsBookmarked(ctx context.Context, userID, postID uint) (bool, error)
	AddBookmark(ctx context.Context, userID, postID uint) error
	RemoveBookmark(ctx context.Context, userID, postID uint) error
	ListBookmarked(ctx context.Context, userID uint, limit, offset int) ([]*models.Post, int64, error)
	AuthorStats(ctx context.Context, authorID uint) (*AuthorStats, error)
	CountAll(ctx context.Context) (int64, error)
	CountPublished(ctx context.Context) (int64, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository.
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

// applyPostDetails adds subqueries to fetch counts and per-viewer flags in a
// single query. Soft-deleted comments are excluded from comments_count so
// the visible thread size matches the number shown on the card.
func (r *postRepository) applyPostDetails(db *gorm.DB, currentUserID uint) *gorm.DB {
	selectQuery := "posts.*, " +
		"(SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id) as likes_count, " +
		"(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id AND NOT comments.deleted) as comments_count"

	if currentUserID != 0 {
		return db.Select(selectQuery+
			", EXISTS(SELECT 1 FROM likes WHERE likes.post_id = posts.id AND likes.user_id = ?) as liked"+
			", EXISTS(SELECT 1 FROM bookmarks WHERE bookmarks.post_id = posts.id AND bookmarks.user_id = ?) as bookmarked",
			currentUserID, currentUserID)
	}
	return db.Select(selectQuery + ", false as liked, false as bookmarked")
}

// applySort appends the ORDER BY clause for the requested sort. likes_count
// is a SELECT alias from applyPostDetails; referencing it in ORDER BY works
// at the same query level.
func (r *postRepository) applySort(db *gorm.DB, sort string) *gorm.DB {
	switch sort {
	case models.PostSortTop:
		return db.Order("likes_count DESC, posts.created_at DESC")
	case models.PostSortViews:
		return db.Order("posts.view_count DESC, posts.created_at DESC")
	default: // "new" and anything unrecognized
		return db.Order("posts.created_at DESC")
	}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("a post with this slug already exists")
		}
		return models.NewInternalError(err)
	}
	cache.InvalidateFrontPage(ctx)
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint, currentUserID uint) (*models.Post, error) {
	var post models.Post
	err := r.applyPostDetails(r.db.WithContext(ctx), currentUserID).
		Preload("Author").
		First(&post, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &post, nil
}

func (r *postRepository) GetBySlug(ctx context.Context, slug string, currentUserID uint) (*models.Post, error) {
	var post models.Post

	fetch := func() error {
		err := r.applyPostDetails(r.db.WithContext(ctx), currentUserID).
			Preload("Author").
			Where("slug = ?", slug).
			First(&post).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Post", slug)
		}
		if err != nil {
			return models.NewInternalError(err)
		}
		return nil
	}

	// Only the anonymous view is cacheable; per-viewer flags make signed-in
	// reads uncacheable under a shared key.
	var err error
	if currentUserID == 0 {
		err = cache.Aside(ctx, cache.PostSlugKey(slug), &post, cache.PostTTL, fetch)
	} else {
		err = fetch()
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// frontPageLimit matches the default page size handed out by the HTTP
// layer; only that exact anonymous first page is cached.
const frontPageLimit = 20

// frontPage is the cached shape of the default anonymous listing.
type frontPage struct {
	Posts []*models.Post `json:"posts"`
	Total int64          `json:"total"`
}

// cacheableFrontPage reports whether the filter is the unfiltered anonymous
// first page. Signed-in listings carry per-viewer liked/bookmarked flags and
// must never be served from a shared key.
func (f PostFilter) cacheableFrontPage() bool {
	return f.AuthorID == 0 && f.Tag == "" && f.Category == "" && f.Query == "" &&
		!f.FeaturedOnly && !f.IncludeUnpublished && f.CurrentUserID == 0 &&
		f.Offset == 0 && f.Limit == frontPageLimit &&
		(f.Sort == "" || f.Sort == models.PostSortNew)
}

func (r *postRepository) List(ctx context.Context, filter PostFilter) ([]*models.Post, int64, error) {
	if filter.cacheableFrontPage() {
		var page frontPage
		err := cache.Aside(ctx, cache.FrontPageKey(), &page, cache.FrontPageTTL, func() error {
			posts, total, err := r.list(ctx, filter)
			if err != nil {
				return err
			}
			page = frontPage{Posts: posts, Total: total}
			return nil
		})
		if err != nil {
			return nil, 0, err
		}
		return page.Posts, page.Total, nil
	}
	return r.list(ctx, filter)
}

func (r *postRepository) list(ctx context.Context, filter PostFilter) ([]*models.Post, int64, error) {
	match := r.db.WithContext(ctx).Model(&models.Post{})
	if !filter.IncludeUnpublished {
		match = match.Where("posts.published")
	}
	if filter.AuthorID != 0 {
		match = match.Where("posts.author_id = ?", filter.AuthorID)
	}
	if filter.Tag != "" {
		// Tags are stored comma-separated; pad both sides so "go" cannot
		// match "golang".
		match = match.Where("',' || posts.tags || ',' LIKE ?", "%,"+strings.ToLower(filter.Tag)+",%")
	}
	if filter.Category != "" {
		match = match.Where("posts.category = ?", filter.Category)
	}
	if filter.FeaturedOnly {
		match = match.Where("posts.featured")
	}
	if filter.Query != "" {
		like := "%" + strings.ToLower(filter.Query) + "%"
		match = match.Where("LOWER(posts.title) LIKE ? OR LOWER(posts.excerpt) LIKE ?", like, like)
	}

	var total int64
	if err := match.Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var posts []*models.Post
	base := r.applyPostDetails(match.Session(&gorm.Session{}), filter.CurrentUserID).
		Preload("Author")
	err := r.applySort(base, filter.Sort).
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&posts).Error
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return posts, total, nil
}

func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Save(post).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidatePost(ctx, post.ID, post.Slug)
	return nil
}

// Delete removes a post and its dependent rows in one transaction so a
// partial failure cannot orphan comments or engagement rows.
func (r *postRepository) Delete(ctx context.Context, id uint) error {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Post", id)
		}
		return models.NewInternalError(err)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`DELETE FROM comment_likes WHERE comment_id IN (SELECT id FROM comments WHERE post_id = ?)`, id,
		).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.Bookmark{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Post{}, id).Error
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidatePost(ctx, id, post.Slug)
	return nil
}

// IncrementViewCount bumps the persisted counter with a single atomic
// UPDATE so concurrent readers never lose increments to read-modify-write.
func (r *postRepository) IncrementViewCount(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1)).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) IsLiked(ctx context.Context, userID, postID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *postRepository) Like(ctx context.Context, userID, postID uint) error {
	// INSERT ... ON CONFLICT DO NOTHING is atomic and keeps double-submits
	// from surfacing duplicate key errors.
	err := r.db.WithContext(ctx).Exec(
		`INSERT INTO likes (user_id, post_id, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (user_id, post_id) DO NOTHING`,
		userID, postID, nowFunc(),
	).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateFrontPage(ctx)
	return nil
}

func (r *postRepository) Unlike(ctx context.Context, userID, postID uint) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Delete(&models.Like{}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateFrontPage(ctx)
	return nil
}

func (r *postRepository) IsBookmarked(ctx context.Context, userID, postID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Bookmark{}).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *postRepository) AddBookmark(ctx context.Context, userID, postID uint) error {
	err := r.db.WithContext(ctx).Exec(
		`INSERT INTO bookmarks (user_id, post_id, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (user_id, post_id) DO NOTHING`,
		userID, postID, nowFunc(),
	).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) RemoveBookmark(ctx context.Context, userID, postID uint) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Delete(&models.Bookmark{}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) ListBookmarked(ctx context.Context, userID uint, limit, offset int) ([]*models.Post, int64, error) {
	match := r.db.WithContext(ctx).Model(&models.Post{}).
		Joins("JOIN bookmarks ON bookmarks.post_id = posts.id").
		Where("bookmarks.user_id = ?", userID)

	var total int64
	if err := match.Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var posts []*models.Post
	err := r.applyPostDetails(match.Session(&gorm.Session{}), userID).
		Preload("Author").
		Order("bookmarks.created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return posts, total, nil
}

func (r *postRepository) AuthorStats(ctx context.Context, authorID uint) (*AuthorStats, error) {
	var stats AuthorStats
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Select("COUNT(*) as posts, COALESCE(SUM(view_count), 0) as total_views, "+
			"COALESCE((SELECT COUNT(*) FROM likes JOIN posts p ON p.id = likes.post_id WHERE p.author_id = ?), 0) as total_likes, "+
			"COALESCE((SELECT COUNT(*) FROM comments JOIN posts p ON p.id = comments.post_id WHERE p.author_id = ? AND NOT comments.deleted), 0) as total_comments",
			authorID, authorID).
		Where("author_id = ?", authorID).
		Scan(&stats).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &stats, nil
}

func (r *postRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *postRepository) CountPublished(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("posts.published").
		Count(&count).Error
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}
