package server

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"inkwell/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type postPage struct {
	Items      []models.Post     `json:"items"`
	Pagination models.Pagination `json:"pagination"`
}

func createPostHTTP(t *testing.T, app *fiber.App, bearer string, body fiber.Map) models.Post {
	t.Helper()
	req := jsonRequest(http.MethodPost, "/api/posts", body)
	req.Header.Set("Authorization", bearer)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var post models.Post
	decodeEnvelope(t, resp, &post)
	return post
}

func TestPostLifecycle(t *testing.T) {
	s, app := newTestServer(t)
	author := createServerUser(t, s, "author", "Password1", models.RoleUser)
	stranger := createServerUser(t, s, "stranger", "Password1", models.RoleUser)

	post := createPostHTTP(t, app, bearerFor(t, s, author), fiber.Map{
		"title":        "My First Post",
		"content_html": "<p>Hello <script>alert(1)</script>world</p>",
		"tags":         []string{"Go", "Web"},
		"category":     "Tech",
	})
	assert.True(t, strings.HasPrefix(post.Slug, "my-first-post-"))
	assert.NotContains(t, post.ContentHTML, "script")
	assert.Equal(t, author.ID, post.AuthorID)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/posts/"+post.Slug, nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "published posts are publicly readable")
	resp.Body.Close()

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/posts", nil), -1)
	require.NoError(t, err)
	var page postPage
	decodeEnvelope(t, resp, &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(1), page.Pagination.TotalItems)

	t.Run("stranger cannot edit", func(t *testing.T) {
		req := jsonRequest(http.MethodPut, fmt.Sprintf("/api/posts/%d", post.ID), fiber.Map{
			"title": "Hijacked",
		})
		req.Header.Set("Authorization", bearerFor(t, s, stranger))
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("author edit keeps slug", func(t *testing.T) {
		req := jsonRequest(http.MethodPut, fmt.Sprintf("/api/posts/%d", post.ID), fiber.Map{
			"title": "A Better Title",
		})
		req.Header.Set("Authorization", bearerFor(t, s, author))
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var updated models.Post
		decodeEnvelope(t, resp, &updated)
		assert.Equal(t, "A Better Title", updated.Title)
		assert.Equal(t, post.Slug, updated.Slug)
	})

	t.Run("delete", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/posts/%d", post.ID), nil)
		req.Header.Set("Authorization", bearerFor(t, s, stranger))
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp.Body.Close()

		req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/posts/%d", post.ID), nil)
		req.Header.Set("Authorization", bearerFor(t, s, author))
		resp, err = app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()

		resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/posts/"+post.Slug, nil), -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestDraftVisibilityOverHTTP(t *testing.T) {
	s, app := newTestServer(t)
	author := createServerUser(t, s, "drafter", "Password1", models.RoleUser)
	stranger := createServerUser(t, s, "stranger", "Password1", models.RoleUser)

	draft := createPostHTTP(t, app, bearerFor(t, s, author), fiber.Map{
		"title":        "Work In Progress",
		"content_html": "<p>unfinished</p>",
		"published":    false,
	})
	require.False(t, draft.Published)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/posts/"+draft.Slug, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "drafts read as missing, never as forbidden")
	resp.Body.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/posts/"+draft.Slug, nil)
	req.Header.Set("Authorization", bearerFor(t, s, stranger))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	req = httptest.NewRequest(http.MethodGet, "/api/posts/"+draft.Slug, nil)
	req.Header.Set("Authorization", bearerFor(t, s, author))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestLikeAndBookmarkOverHTTP(t *testing.T) {
	s, app := newTestServer(t)
	author := createServerUser(t, s, "author", "Password1", models.RoleUser)
	fan := createServerUser(t, s, "fan", "Password1", models.RoleUser)

	post := createPostHTTP(t, app, bearerFor(t, s, author), fiber.Map{
		"title":        "Likeable",
		"content_html": "<p>content</p>",
	})

	likePath := fmt.Sprintf("/api/posts/%d/like", post.ID)
	req := httptest.NewRequest(http.MethodPost, likePath, nil)
	req.Header.Set("Authorization", bearerFor(t, s, fan))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var liked models.Post
	decodeEnvelope(t, resp, &liked)
	assert.Equal(t, 1, liked.LikesCount)
	assert.True(t, liked.Liked)

	req = httptest.NewRequest(http.MethodPost, likePath, nil)
	req.Header.Set("Authorization", bearerFor(t, s, fan))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	var unliked models.Post
	decodeEnvelope(t, resp, &unliked)
	assert.Equal(t, 0, unliked.LikesCount)
	assert.False(t, unliked.Liked)

	bookmarkPath := fmt.Sprintf("/api/users/me/bookmarks/%d", post.ID)
	req = httptest.NewRequest(http.MethodPost, bookmarkPath, nil)
	req.Header.Set("Authorization", bearerFor(t, s, fan))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	var bookmarked models.Post
	decodeEnvelope(t, resp, &bookmarked)
	assert.True(t, bookmarked.Bookmarked)

	req = httptest.NewRequest(http.MethodGet, "/api/users/me/bookmarks", nil)
	req.Header.Set("Authorization", bearerFor(t, s, fan))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	var page postPage
	decodeEnvelope(t, resp, &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, post.ID, page.Items[0].ID)
}

func makeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x += 8 {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 96, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

// multipartBody builds a multipart form with the given fields plus an
// optional "image" part.
func multipartBody(t *testing.T, fields map[string]string, imageBytes []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if imageBytes != nil {
		part, err := mw.CreateFormFile("image", "cover.jpg")
		require.NoError(t, err)
		_, err = part.Write(imageBytes)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadCoverAndServe(t *testing.T) {
	s, app := newTestServer(t)
	author := createServerUser(t, s, "uploader", "Password1", models.RoleUser)

	buf, contentType := multipartBody(t, nil, makeJPEG(t, 800, 400))
	req := httptest.NewRequest(http.MethodPost, "/api/posts/upload-image", buf)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearerFor(t, s, author))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var cover struct {
		URL      string            `json:"url"`
		Variants map[string]string `json:"variants"`
	}
	decodeEnvelope(t, resp, &cover)
	require.Contains(t, cover.Variants, "320_jpg")

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, cover.Variants["320_jpg"], nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "generated variants are served from /media")
	resp.Body.Close()
}

func TestInlineCoverOnPostWrites(t *testing.T) {
	s, app := newTestServer(t)
	author := createServerUser(t, s, "author", "Password1", models.RoleUser)
	bearer := bearerFor(t, s, author)

	t.Run("bad cover fails the create", func(t *testing.T) {
		buf, contentType := multipartBody(t, map[string]string{
			"title":        "Illustrated",
			"content_html": "<p>pictures</p>",
		}, []byte("not an image"))
		req := httptest.NewRequest(http.MethodPost, "/api/posts", buf)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", bearer)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	buf, contentType := multipartBody(t, map[string]string{
		"title":        "Illustrated",
		"content_html": "<p>pictures</p>",
	}, makeJPEG(t, 640, 320))
	req := httptest.NewRequest(http.MethodPost, "/api/posts", buf)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearer)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var post models.Post
	decodeEnvelope(t, resp, &post)
	require.True(t, strings.HasPrefix(post.CoverImageURL, "/media/"), "inline cover must be processed on create")
	original := post.CoverImageURL

	t.Run("bad cover on update is skipped", func(t *testing.T) {
		buf, contentType := multipartBody(t, map[string]string{
			"title": "Illustrated, Revised",
		}, []byte("still not an image"))
		req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/posts/%d", post.ID), buf)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", bearer)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, "a bad re-upload must not block the text edit")

		var updated models.Post
		decodeEnvelope(t, resp, &updated)
		assert.Equal(t, "Illustrated, Revised", updated.Title)
		assert.Equal(t, original, updated.CoverImageURL, "the existing cover survives a failed upload")
	})

	t.Run("good cover on update replaces", func(t *testing.T) {
		buf, contentType := multipartBody(t, nil, makeJPEG(t, 900, 450))
		req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/posts/%d", post.ID), buf)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", bearer)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var updated models.Post
		decodeEnvelope(t, resp, &updated)
		assert.True(t, strings.HasPrefix(updated.CoverImageURL, "/media/"))
		assert.NotEqual(t, original, updated.CoverImageURL)
	})
}
