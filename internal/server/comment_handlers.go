package server

import (
	"inkwell/internal/models"
	"inkwell/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateComment handles POST /api/comments/post/:postId. An optional
// parent_id makes the comment a reply; replies to replies are rejected.
func (s *Server) CreateComment(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}

	var req struct {
		BodyHTML string `json:"body_html"`
		ParentID *uint  `json:"parent_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
	}

	comment, err := s.commentService.CreateComment(c.Context(), service.CreateCommentInput{
		AuthorID: currentUserID(c),
		PostID:   postID,
		ParentID: req.ParentID,
		BodyHTML: req.BodyHTML,
	})
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusCreated, comment)
}

// ListComments handles GET /api/comments/post/:postId (top-level comments).
func (s *Server) ListComments(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}
	page := parsePage(c, 20)

	comments, total, err := s.commentService.ListComments(
		c.Context(), postID, page.Limit, page.Offset, currentUserID(c))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.RespondCollection(c, comments, models.NewPagination(page.Page, page.Limit, total))
}

// ListReplies handles GET /api/comments/:id/replies.
func (s *Server) ListReplies(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePage(c, 20)

	replies, total, err := s.commentService.ListReplies(
		c.Context(), id, page.Limit, page.Offset, currentUserID(c))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.RespondCollection(c, replies, models.NewPagination(page.Page, page.Limit, total))
}

// UpdateComment handles PUT /api/comments/:id.
func (s *Server) UpdateComment(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		BodyHTML string `json:"body_html"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
	}

	comment, err := s.commentService.UpdateComment(c.Context(), currentUserID(c), id, req.BodyHTML)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, comment)
}

// DeleteComment handles DELETE /api/comments/:id (soft delete).
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.commentService.DeleteComment(c.Context(), currentUserID(c), id); err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, fiber.Map{"message": "Comment deleted"})
}

// ToggleCommentLike handles POST /api/comments/:id/like.
func (s *Server) ToggleCommentLike(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	comment, err := s.commentService.ToggleLike(c.Context(), currentUserID(c), id)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, comment)
}
