package service

import (
	"context"

	"inkwell/internal/models"
	"inkwell/internal/repository"
	"inkwell/internal/sanitize"
)

const maxCommentLen = 10000

type CommentService struct {
	commentRepo repository.CommentRepository
	postRepo    repository.PostRepository
	isAdmin     func(ctx context.Context, userID uint) (bool, error)
}

type CreateCommentInput struct {
	AuthorID uint
	PostID   uint
	ParentID *uint
	BodyHTML string
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	postRepo repository.PostRepository,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		postRepo:    postRepo,
		isAdmin:     isAdmin,
	}
}

func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	if len(in.BodyHTML) > maxCommentLen {
		return nil, models.NewValidationError("Comment too long (max 10000 characters)")
	}
	body := sanitize.CommentContent(in.BodyHTML)
	if body == "" {
		return nil, models.NewValidationError("Comment body is required")
	}

	post, err := s.postRepo.GetByID(ctx, in.PostID, in.AuthorID)
	if err != nil {
		return nil, err
	}
	if !post.Published {
		return nil, models.NewNotFoundError("Post", in.PostID)
	}

	if in.ParentID != nil {
		parent, err := s.commentRepo.GetByID(ctx, *in.ParentID, 0)
		if err != nil {
			return nil, err
		}
		if parent.PostID != in.PostID {
			return nil, models.NewValidationError("Parent comment belongs to a different post")
		}
		// Threads are one level deep.
		if parent.ParentID != nil {
			return nil, models.NewValidationError("Cannot reply to a reply")
		}
	}

	comment := &models.Comment{
		PostID:   in.PostID,
		AuthorID: in.AuthorID,
		ParentID: in.ParentID,
		BodyHTML: body,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}
	return s.commentRepo.GetByID(ctx, comment.ID, in.AuthorID)
}

func (s *CommentService) ListComments(ctx context.Context, postID uint, limit, offset int, currentUserID uint) ([]*models.Comment, int64, error) {
	post, err := s.postRepo.GetByID(ctx, postID, 0)
	if err != nil {
		return nil, 0, err
	}
	if err := s.requireVisiblePost(ctx, post, currentUserID); err != nil {
		return nil, 0, err
	}
	return s.commentRepo.ListByPost(ctx, postID, limit, offset, currentUserID)
}

func (s *CommentService) ListReplies(ctx context.Context, parentID uint, limit, offset int, currentUserID uint) ([]*models.Comment, int64, error) {
	parent, err := s.commentRepo.GetByID(ctx, parentID, 0)
	if err != nil {
		return nil, 0, err
	}
	post, err := s.postRepo.GetByID(ctx, parent.PostID, 0)
	if err != nil {
		return nil, 0, err
	}
	if err := s.requireVisiblePost(ctx, post, currentUserID); err != nil {
		return nil, 0, err
	}
	return s.commentRepo.ListReplies(ctx, parentID, limit, offset, currentUserID)
}

// UpdateComment edits the body. Authors edit their own comments; admins may
// edit anyone's.
func (s *CommentService) UpdateComment(ctx context.Context, userID, commentID uint, bodyHTML string) (*models.Comment, error) {
	comment, err := s.commentRepo.GetByID(ctx, commentID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAuthorOrAdmin(ctx, comment.AuthorID, userID,
		"You can only edit your own comments"); err != nil {
		return nil, err
	}
	if comment.Deleted {
		return nil, models.NewValidationError("Cannot edit a deleted comment")
	}

	if len(bodyHTML) > maxCommentLen {
		return nil, models.NewValidationError("Comment too long (max 10000 characters)")
	}
	body := sanitize.CommentContent(bodyHTML)
	if body == "" {
		return nil, models.NewValidationError("Comment body is required")
	}

	comment.BodyHTML = body
	if err := s.commentRepo.Update(ctx, comment); err != nil {
		return nil, err
	}
	return s.commentRepo.GetByID(ctx, commentID, userID)
}

// DeleteComment soft-deletes so replies keep their anchor. The row stays;
// serialization redacts the body.
func (s *CommentService) DeleteComment(ctx context.Context, userID, commentID uint) error {
	comment, err := s.commentRepo.GetByID(ctx, commentID, userID)
	if err != nil {
		return err
	}
	if err := s.requireAuthorOrAdmin(ctx, comment.AuthorID, userID,
		"You can only delete your own comments"); err != nil {
		return err
	}
	return s.commentRepo.SoftDelete(ctx, commentID)
}

func (s *CommentService) requireAuthorOrAdmin(ctx context.Context, authorID, userID uint, msg string) error {
	if authorID == userID && userID != 0 {
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

// requireVisiblePost hides threads on unpublished posts from everyone but
// the post's author and admins, mirroring how the post itself reads.
func (s *CommentService) requireVisiblePost(ctx context.Context, post *models.Post, userID uint) error {
	if post.Published {
		return nil
	}
	if userID != 0 && userID == post.AuthorID {
		return nil
	}
	if userID != 0 && s.isAdmin != nil {
		admin, err := s.isAdmin(ctx, userID)
		if err != nil {
			return err
		}
		if admin {
			return nil
		}
	}
	return models.NewNotFoundError("Post", post.ID)
}

// RemoveComment hard-deletes a comment and its replies. Admin only; used
// when content must actually leave the database.
func (s *CommentService) RemoveComment(ctx context.Context, commentID uint) error {
	return s.commentRepo.Delete(ctx, commentID)
}

func (s *CommentService) ToggleLike(ctx context.Context, userID, commentID uint) (*models.Comment, error) {
	comment, err := s.commentRepo.GetByID(ctx, commentID, userID)
	if err != nil {
		return nil, err
	}
	if comment.Deleted {
		return nil, models.NewValidationError("Cannot like a deleted comment")
	}

	if comment.Liked {
		err = s.commentRepo.Unlike(ctx, userID, commentID)
	} else {
		err = s.commentRepo.Like(ctx, userID, commentID)
	}
	if err != nil {
		return nil, err
	}
	return s.commentRepo.GetByID(ctx, commentID, userID)
}
