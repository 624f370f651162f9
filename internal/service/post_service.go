// Package service contains the application's business logic. Services own
// validation and authorization decisions; repositories stay mechanical.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"inkwell/internal/middleware"
	"inkwell/internal/models"
	"inkwell/internal/repository"
	"inkwell/internal/sanitize"
)

const (
	maxTitleLen   = 300
	maxContentLen = 50000
	excerptLen    = 200
)

type PostService struct {
	postRepo repository.PostRepository
	isAdmin  func(ctx context.Context, userID uint) (bool, error)
}

type CreatePostInput struct {
	AuthorID      uint
	Title         string
	ContentHTML   string
	ContentDelta  string
	CoverImageURL string
	Tags          []string
	Category      string
	Published     *bool
}

type UpdatePostInput struct {
	UserID        uint
	PostID        uint
	Title         string
	ContentHTML   string
	ContentDelta  string
	CoverImageURL string
	Tags          []string
	Category      string
	Published     *bool
}

type ListPostsInput struct {
	AuthorUsername string
	AuthorID       uint
	Tag            string
	Category       string
	Query          string
	Sort           string
	FeaturedOnly   bool
	Limit          int
	Offset         int
	CurrentUserID  uint
}

func NewPostService(
	postRepo repository.PostRepository,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
) *PostService {
	return &PostService{
		postRepo: postRepo,
		isAdmin:  isAdmin,
	}
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, models.NewValidationError("Title is required")
	}
	if len(title) > maxTitleLen {
		return nil, models.NewValidationError("Title too long (max 300 characters)")
	}
	if len(in.ContentHTML) > maxContentLen {
		return nil, models.NewValidationError("Content too long (max 50000 characters)")
	}

	contentHTML := sanitize.PostContent(in.ContentHTML)
	if contentHTML == "" {
		return nil, models.NewValidationError("Content is required")
	}

	var contentDelta string
	if strings.TrimSpace(in.ContentDelta) != "" {
		cleaned := sanitize.Delta(in.ContentDelta)
		if cleaned == nil {
			return nil, models.NewValidationError("content_delta is not a well-formed document")
		}
		contentDelta = string(cleaned)
	}

	published := true
	if in.Published != nil {
		published = *in.Published
	}

	now := time.Now()
	post := &models.Post{
		Title:         title,
		Slug:          makeSlug(title, now),
		ContentHTML:   contentHTML,
		ContentDelta:  contentDelta,
		Excerpt:       sanitize.Excerpt(contentHTML, excerptLen),
		CoverImageURL: strings.TrimSpace(in.CoverImageURL),
		Tags:          normalizeTags(in.Tags),
		Category:      strings.ToLower(strings.TrimSpace(in.Category)),
		Published:     published,
		AuthorID:      in.AuthorID,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}
	return s.postRepo.GetByID(ctx, post.ID, in.AuthorID)
}

func (s *PostService) ListPosts(ctx context.Context, in ListPostsInput) ([]*models.Post, int64, error) {
	filter := repository.PostFilter{
		AuthorID:      in.AuthorID,
		Tag:           in.Tag,
		Category:      strings.ToLower(strings.TrimSpace(in.Category)),
		Query:         in.Query,
		Sort:          in.Sort,
		FeaturedOnly:  in.FeaturedOnly,
		Limit:         in.Limit,
		Offset:        in.Offset,
		CurrentUserID: in.CurrentUserID,
	}
	// Drafts are visible only in the author's own listing.
	if in.AuthorID != 0 && in.AuthorID == in.CurrentUserID {
		filter.IncludeUnpublished = true
	}
	return s.postRepo.List(ctx, filter)
}

// GetPostBySlug loads a post for reading. Published views bump the view
// counter off the request path; a lost increment is preferable to adding
// write latency to every read.
func (s *PostService) GetPostBySlug(ctx context.Context, slug string, currentUserID uint) (*models.Post, error) {
	post, err := s.postRepo.GetBySlug(ctx, slug, currentUserID)
	if err != nil {
		return nil, err
	}

	if !post.Published {
		if err := s.requireOwnerOrAdmin(ctx, post.AuthorID, currentUserID, "You cannot view this draft"); err != nil {
			// Drafts are hidden, not forbidden, from other readers.
			return nil, models.NewNotFoundError("Post", slug)
		}
		return post, nil
	}

	postID := post.ID
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.postRepo.IncrementViewCount(bgCtx, postID); err != nil {
			middleware.Logger.Warn("view count increment failed",
				slog.Uint64("post_id", uint64(postID)),
				slog.String("error", err.Error()),
			)
		}
	}()

	return post, nil
}

func (s *PostService) GetPost(ctx context.Context, id uint, currentUserID uint) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, id, currentUserID)
	if err != nil {
		return nil, err
	}
	if !post.Published {
		if err := s.requireOwnerOrAdmin(ctx, post.AuthorID, currentUserID, "You cannot view this draft"); err != nil {
			return nil, models.NewNotFoundError("Post", id)
		}
	}
	return post, nil
}

func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, in.PostID, in.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwnerOrAdmin(ctx, post.AuthorID, in.UserID, "You can only update your own posts"); err != nil {
		return nil, err
	}

	if in.Title != "" {
		title := strings.TrimSpace(in.Title)
		if len(title) > maxTitleLen {
			return nil, models.NewValidationError("Title too long (max 300 characters)")
		}
		// The slug stays fixed so shared links keep resolving.
		post.Title = title
	}
	if in.ContentHTML != "" {
		if len(in.ContentHTML) > maxContentLen {
			return nil, models.NewValidationError("Content too long (max 50000 characters)")
		}
		contentHTML := sanitize.PostContent(in.ContentHTML)
		if contentHTML == "" {
			return nil, models.NewValidationError("Content is required")
		}
		post.ContentHTML = contentHTML
		post.Excerpt = sanitize.Excerpt(contentHTML, excerptLen)
	}
	if strings.TrimSpace(in.ContentDelta) != "" {
		cleaned := sanitize.Delta(in.ContentDelta)
		if cleaned == nil {
			return nil, models.NewValidationError("content_delta is not a well-formed document")
		}
		post.ContentDelta = string(cleaned)
	}
	if in.CoverImageURL != "" {
		post.CoverImageURL = strings.TrimSpace(in.CoverImageURL)
	}
	if in.Tags != nil {
		post.Tags = normalizeTags(in.Tags)
	}
	if in.Category != "" {
		post.Category = strings.ToLower(strings.TrimSpace(in.Category))
	}
	if in.Published != nil {
		post.Published = *in.Published
	}

	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, err
	}
	return s.postRepo.GetByID(ctx, post.ID, in.UserID)
}

func (s *PostService) DeletePost(ctx context.Context, userID, postID uint) error {
	post, err := s.postRepo.GetByID(ctx, postID, userID)
	if err != nil {
		return err
	}
	if err := s.requireOwnerOrAdmin(ctx, post.AuthorID, userID, "You can only delete your own posts"); err != nil {
		return err
	}
	return s.postRepo.Delete(ctx, postID)
}

// SetFeatured flips the front-page feature flag. Callers gate on admin.
func (s *PostService) SetFeatured(ctx context.Context, postID uint, featured bool) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID, 0)
	if err != nil {
		return nil, err
	}
	post.Featured = featured
	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// ToggleLike adds or removes the caller's like and returns the fresh post.
// Toggling twice always lands back at the starting state.
func (s *PostService) ToggleLike(ctx context.Context, userID, postID uint) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !post.Published {
		return nil, models.NewNotFoundError("Post", postID)
	}

	if post.Liked {
		err = s.postRepo.Unlike(ctx, userID, postID)
	} else {
		err = s.postRepo.Like(ctx, userID, postID)
	}
	if err != nil {
		return nil, err
	}
	return s.postRepo.GetByID(ctx, postID, userID)
}

// ToggleBookmark adds or removes the post from the caller's reading list.
func (s *PostService) ToggleBookmark(ctx context.Context, userID, postID uint) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}

	if post.Bookmarked {
		err = s.postRepo.RemoveBookmark(ctx, userID, postID)
	} else {
		err = s.postRepo.AddBookmark(ctx, userID, postID)
	}
	if err != nil {
		return nil, err
	}
	return s.postRepo.GetByID(ctx, postID, userID)
}

func (s *PostService) ListBookmarks(ctx context.Context, userID uint, limit, offset int) ([]*models.Post, int64, error) {
	return s.postRepo.ListBookmarked(ctx, userID, limit, offset)
}

func (s *PostService) AuthorStats(ctx context.Context, authorID uint) (*repository.AuthorStats, error) {
	return s.postRepo.AuthorStats(ctx, authorID)
}

func (s *PostService) requireOwnerOrAdmin(ctx context.Context, ownerID, userID uint, msg string) error {
	if ownerID == userID && userID != 0 {
		return nil
	}
	if s.isAdmin != nil && userID != 0 {
		admin, err := s.isAdmin(ctx, userID)
		if err != nil {
			return err
		}
		if admin {
			return nil
		}
	}
	return models.NewForbiddenError(msg)
}

// makeSlug derives a URL slug from the title plus the creation time. The
// timestamp suffix keeps slugs unique without a retry loop on collision.
func makeSlug(title string, createdAt time.Time) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 80 {
		slug = strings.Trim(slug[:80], "-")
	}
	if slug == "" {
		slug = "post"
	}
	return fmt.Sprintf("%s-%d", slug, createdAt.Unix())
}

// normalizeTags lowercases, trims, and dedupes tags, storing them
// comma-separated. Commas inside a tag are dropped to keep the separator
// unambiguous.
func normalizeTags(tags []string) string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(t, ",", "")))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return strings.Join(out, ",")
}
