package server

import (
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"inkwell/internal/middleware"
	"inkwell/internal/models"
	"inkwell/internal/service"

	"github.com/gofiber/fiber/v2"
)

// postBody parses from JSON or, for multipart writes carrying an inline
// cover image, from form fields.
type postBody struct {
	Title         string   `json:"title" form:"title"`
	ContentHTML   string   `json:"content_html" form:"content_html"`
	ContentDelta  string   `json:"content_delta" form:"content_delta"`
	CoverImageURL string   `json:"cover_image_url" form:"cover_image_url"`
	Tags          []string `json:"tags" form:"tags"`
	Category      string   `json:"category" form:"category"`
	Published     *bool    `json:"published" form:"published"`
}

// CreatePost handles POST /api/posts. A multipart request may carry the
// cover in an "image" part; a cover that fails to process fails the whole
// create since there is no existing image to fall back to.
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req postBody
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
	}

	if fileHeader, ferr := c.FormFile("image"); ferr == nil {
		cover, err := s.processCover(c, fileHeader)
		if err != nil {
			return models.RespondWithError(c, err)
		}
		req.CoverImageURL = cover.URL
	}

	post, err := s.postService.CreatePost(c.Context(), service.CreatePostInput{
		AuthorID:      currentUserID(c),
		Title:         req.Title,
		ContentHTML:   req.ContentHTML,
		ContentDelta:  req.ContentDelta,
		CoverImageURL: req.CoverImageURL,
		Tags:          req.Tags,
		Category:      req.Category,
		Published:     req.Published,
	})
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusCreated, post)
}

// ListPosts handles GET /api/posts with tag/category/author/q/featured
// filters and new|top|views sort.
func (s *Server) ListPosts(c *fiber.Ctx) error {
	page := parsePage(c, 20)

	in := service.ListPostsInput{
		Tag:           c.Query("tag"),
		Category:      c.Query("category"),
		Query:         c.Query("q"),
		Sort:          c.Query("sort", models.PostSortNew),
		FeaturedOnly:  c.QueryBool("featured", false),
		Limit:         page.Limit,
		Offset:        page.Offset,
		CurrentUserID: currentUserID(c),
	}

	if author := c.Query("author"); author != "" {
		user, err := s.userRepo.GetByUsername(c.Context(), author, 0)
		if err != nil {
			return models.RespondWithError(c, err)
		}
		if user == nil {
			return models.RespondCollection(c, []*models.Post{},
				models.NewPagination(page.Page, page.Limit, 0))
		}
		in.AuthorID = user.ID
	}

	posts, total, err := s.postService.ListPosts(c.Context(), in)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.RespondCollection(c, posts, models.NewPagination(page.Page, page.Limit, total))
}

// GetPostBySlug handles GET /api/posts/:slug.
func (s *Server) GetPostBySlug(c *fiber.Ctx) error {
	slug := strings.TrimSpace(c.Params("slug"))
	if slug == "" {
		return models.RespondWithError(c, models.NewValidationError("Invalid slug"))
	}

	post, err := s.postService.GetPostBySlug(c.Context(), slug, currentUserID(c))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, post)
}

// UpdatePost handles PUT /api/posts/:id. Unlike create, a failed inline
// cover is logged and skipped so a bad re-upload cannot block a text edit;
// the post keeps its current cover.
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req postBody
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
	}

	if fileHeader, ferr := c.FormFile("image"); ferr == nil {
		cover, uerr := s.processCover(c, fileHeader)
		if uerr != nil {
			middleware.Logger.WarnContext(c.UserContext(), "inline cover upload failed",
				"post_id", id, "error", uerr.Error())
			req.CoverImageURL = ""
		} else {
			req.CoverImageURL = cover.URL
		}
	}

	post, err := s.postService.UpdatePost(c.Context(), service.UpdatePostInput{
		UserID:        currentUserID(c),
		PostID:        id,
		Title:         req.Title,
		ContentHTML:   req.ContentHTML,
		ContentDelta:  req.ContentDelta,
		CoverImageURL: req.CoverImageURL,
		Tags:          req.Tags,
		Category:      req.Category,
		Published:     req.Published,
	})
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, post)
}

// DeletePost handles DELETE /api/posts/:id.
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.postService.DeletePost(c.Context(), currentUserID(c), id); err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, fiber.Map{"message": "Post deleted"})
}

// ToggleLike handles POST /api/posts/:id/like.
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.postService.ToggleLike(c.Context(), currentUserID(c), id)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, post)
}

// UploadCover handles POST /api/posts/upload-image (multipart).
func (s *Server) UploadCover(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		return models.RespondWithError(c, models.NewValidationError("No file uploaded"))
	}

	cover, err := s.processCover(c, fileHeader)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusCreated, cover)
}

// processCover runs an uploaded file through the cover variant pipeline.
func (s *Server) processCover(c *fiber.Ctx, fileHeader *multipart.FileHeader) (*service.UploadedCover, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	return s.imageService.UploadCover(service.UploadCoverInput{
		UserID:      currentUserID(c),
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Content:     content,
	})
}

// ServeCover handles GET /media/:hash/:file where file is "<size>.<format>".
func (s *Server) ServeCover(c *fiber.Ctx) error {
	hash := c.Params("hash")
	file := c.Params("file")

	dot := strings.LastIndex(file, ".")
	if dot <= 0 {
		return models.RespondWithError(c, models.NewValidationError("Invalid image path"))
	}
	size, err := strconv.Atoi(file[:dot])
	if err != nil || size <= 0 {
		return models.RespondWithError(c, models.NewValidationError("Invalid image size"))
	}

	path, err := s.imageService.ResolveCover(hash, size, file[dot+1:])
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendFile(path)
}
