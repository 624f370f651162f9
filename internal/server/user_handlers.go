package server

import (
	"inkwell/internal/models"
	"inkwell/internal/service"

	"github.com/gofiber/fiber/v2"
)

// MyProfile handles GET /api/users/me.
func (s *Server) MyProfile(c *fiber.Ctx) error {
	user, err := s.userRepo.GetByID(c.Context(), currentUserID(c), currentUserID(c))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, user)
}

// UpdateMyProfile handles PUT /api/users/me.
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	var req struct {
		DisplayName *string `json:"display_name"`
		Bio         *string `json:"bio"`
		Avatar      *string `json:"avatar"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
	}

	user, err := s.userService.UpdateProfile(c.Context(), service.UpdateProfileInput{
		UserID:      currentUserID(c),
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		Avatar:      req.Avatar,
	})
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, user)
}

// DeactivateMyAccount handles DELETE /api/users/me. The account is disabled
// and every refresh token revoked; authored content stays attributed.
func (s *Server) DeactivateMyAccount(c *fiber.Ctx) error {
	userID := currentUserID(c)
	if err := s.userService.Deactivate(c.Context(), userID, userID); err != nil {
		return models.RespondWithError(c, err)
	}
	s.clearRefreshCookie(c)
	return models.Respond(c, fiber.StatusOK, fiber.Map{"message": "Account deactivated"})
}

// MyPosts handles GET /api/users/me/posts, including unpublished drafts.
func (s *Server) MyPosts(c *fiber.Ctx) error {
	page := parsePage(c, 20)
	userID := currentUserID(c)

	posts, total, err := s.postService.ListPosts(c.Context(), service.ListPostsInput{
		AuthorID:      userID,
		Sort:          c.Query("sort", models.PostSortNew),
		Limit:         page.Limit,
		Offset:        page.Offset,
		CurrentUserID: userID,
	})
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.RespondCollection(c, posts, models.NewPagination(page.Page, page.Limit, total))
}

// MyDashboard handles GET /api/users/me/dashboard.
func (s *Server) MyDashboard(c *fiber.Ctx) error {
	dashboard, err := s.userService.Dashboard(c.Context(), currentUserID(c))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, dashboard)
}

// ToggleBookmark handles POST /api/users/me/bookmarks/:postId.
func (s *Server) ToggleBookmark(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}

	post, err := s.postService.ToggleBookmark(c.Context(), currentUserID(c), postID)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, post)
}

// MyBookmarks handles GET /api/users/me/bookmarks.
func (s *Server) MyBookmarks(c *fiber.Ctx) error {
	page := parsePage(c, 20)

	posts, total, err := s.postService.ListBookmarks(
		c.Context(), currentUserID(c), page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.RespondCollection(c, posts, models.NewPagination(page.Page, page.Limit, total))
}

// GetProfile handles GET /api/users/:id.
func (s *Server) GetProfile(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	user, err := s.userRepo.GetByID(c.Context(), id, currentUserID(c))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if !user.IsActive {
		return models.RespondWithError(c, models.NewNotFoundError("User", id))
	}
	return models.Respond(c, fiber.StatusOK, user)
}

// FollowUser handles POST /api/users/:id/follow.
func (s *Server) FollowUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	user, err := s.userService.Follow(c.Context(), currentUserID(c), id)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, user)
}

// UnfollowUser handles DELETE /api/users/:id/follow.
func (s *Server) UnfollowUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	user, err := s.userService.Unfollow(c.Context(), currentUserID(c), id)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, user)
}

// ListFollowers handles GET /api/users/:id/followers.
func (s *Server) ListFollowers(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePage(c, 20)

	users, total, err := s.userService.Followers(c.Context(), id, page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.RespondCollection(c, users, models.NewPagination(page.Page, page.Limit, total))
}

// ListFollowing handles GET /api/users/:id/following.
func (s *Server) ListFollowing(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePage(c, 20)

	users, total, err := s.userService.Following(c.Context(), id, page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.RespondCollection(c, users, models.NewPagination(page.Page, page.Limit, total))
}

// SearchUsers handles GET /api/users/search?q=.
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	page := parsePage(c, 20)

	users, total, err := s.userService.SearchUsers(c.Context(), c.Query("q"), page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.RespondCollection(c, users, models.NewPagination(page.Page, page.Limit, total))
}
