package server

import (
	"inkwell/internal/models"
	"inkwell/internal/repository"

	"github.com/gofiber/fiber/v2"
)

// AdminStats handles GET /api/admin/stats.
func (s *Server) AdminStats(c *fiber.Ctx) error {
	ctx := c.Context()

	totalUsers, err := s.userRepo.CountAll(ctx)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	activeUsers, err := s.userRepo.CountActive(ctx)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	totalPosts, err := s.postRepo.CountAll(ctx)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	publishedPosts, err := s.postRepo.CountPublished(ctx)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	totalComments, err := s.commentRepo.CountAll(ctx)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	return models.Respond(c, fiber.StatusOK, fiber.Map{
		"total_users":     totalUsers,
		"active_users":    activeUsers,
		"total_posts":     totalPosts,
		"published_posts": publishedPosts,
		"total_comments":  totalComments,
	})
}

// AdminListUsers handles GET /api/admin/users.
func (s *Server) AdminListUsers(c *fiber.Ctx) error {
	page := parsePage(c, 20)

	users, total, err := s.userService.ListUsers(c.Context(), page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.RespondCollection(c, users, models.NewPagination(page.Page, page.Limit, total))
}

// AdminSetRole handles PUT /api/admin/users/:id/role.
func (s *Server) AdminSetRole(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
	}

	user, err := s.userService.SetRole(c.Context(), id, req.Role)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, user)
}

// AdminSetStatus handles PUT /api/admin/users/:id/status.
func (s *Server) AdminSetStatus(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		IsActive *bool `json:"is_active"`
	}
	if err := c.BodyParser(&req); err != nil || req.IsActive == nil {
		return models.RespondWithError(c, models.NewValidationError("is_active is required"))
	}

	user, err := s.userService.SetActive(c.Context(), id, *req.IsActive)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, user)
}

// AdminListPosts handles GET /api/admin/posts, including unpublished.
func (s *Server) AdminListPosts(c *fiber.Ctx) error {
	page := parsePage(c, 20)

	posts, total, err := s.postRepo.List(c.Context(), repository.PostFilter{
		Query:              c.Query("q"),
		Sort:               c.Query("sort", models.PostSortNew),
		IncludeUnpublished: true,
		Limit:              page.Limit,
		Offset:             page.Offset,
		CurrentUserID:      currentUserID(c),
	})
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.RespondCollection(c, posts, models.NewPagination(page.Page, page.Limit, total))
}

// AdminFeaturePost handles PUT /api/admin/posts/:id/feature.
func (s *Server) AdminFeaturePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Featured *bool `json:"featured"`
	}
	if err := c.BodyParser(&req); err != nil || req.Featured == nil {
		return models.RespondWithError(c, models.NewValidationError("featured is required"))
	}

	post, err := s.postService.SetFeatured(c.Context(), id, *req.Featured)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, post)
}

// AdminDeletePost handles DELETE /api/admin/posts/:id.
func (s *Server) AdminDeletePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.postRepo.Delete(c.Context(), id); err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, fiber.Map{"message": "Post deleted"})
}

// AdminRemoveComment handles DELETE /api/admin/comments/:id. Unlike author
// deletion this hard-removes the comment and its replies.
func (s *Server) AdminRemoveComment(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.commentService.RemoveComment(c.Context(), id); err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, fiber.Map{"message": "Comment removed"})
}
