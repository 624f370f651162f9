package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"inkwell/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, status int, data any, errMsg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": errMsg == "",
		"data":    data,
		"error":   errMsg,
	})
}

func bearer(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) {
		return h[len(prefix):]
	}
	return ""
}

func TestBearerAttached(t *testing.T) {
	var seenToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/me", r.URL.Path)
		seenToken = bearer(r)
		writeEnvelope(w, http.StatusOK, models.User{ID: 1, Username: "alice"}, "")
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.SetTokens("access-1", "refresh-1")

	user, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", seenToken)
	assert.Equal(t, "alice", user.Username)
}

func TestRefreshAndRetryOn401(t *testing.T) {
	var refreshCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/me":
			if bearer(r) != "fresh" {
				writeEnvelope(w, http.StatusUnauthorized, nil, "Token expired")
				return
			}
			writeEnvelope(w, http.StatusOK, models.User{ID: 1, Username: "alice"}, "")
		case "/api/auth/refresh-token":
			atomic.AddInt32(&refreshCalls, 1)
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "refresh-1", body["refreshToken"])
			writeEnvelope(w, http.StatusOK, map[string]any{
				"accessToken": "fresh", "refreshToken": "refresh-2",
			}, "")
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.SetTokens("stale", "refresh-1")

	user, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls))

	access, refresh := c.Tokens()
	assert.Equal(t, "fresh", access)
	assert.Equal(t, "refresh-2", refresh, "rotated refresh token is stored")
}

func TestRefreshFailureSurfacesOriginalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/me":
			writeEnvelope(w, http.StatusUnauthorized, nil, "Token expired")
		case "/api/auth/refresh-token":
			writeEnvelope(w, http.StatusUnauthorized, nil, "Invalid refresh token")
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.SetTokens("stale", "dead-refresh")

	_, err := c.Me(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Token expired", apiErr.Message, "the original failure is reported, not the refresh failure")

	access, refresh := c.Tokens()
	assert.Empty(t, access, "a failed refresh clears the session")
	assert.Empty(t, refresh)
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	var refreshCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/me":
			if bearer(r) != "fresh" {
				writeEnvelope(w, http.StatusUnauthorized, nil, "Token expired")
				return
			}
			writeEnvelope(w, http.StatusOK, models.User{ID: 1, Username: "alice"}, "")
		case "/api/auth/refresh-token":
			atomic.AddInt32(&refreshCalls, 1)
			writeEnvelope(w, http.StatusOK, map[string]any{
				"accessToken": "fresh", "refreshToken": "refresh-2",
			}, "")
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.SetTokens("stale", "refresh-1")

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Me(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "request %d", i)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls),
		"concurrent 401s must share a single refresh")
}

func TestNoRefreshWithoutSession(t *testing.T) {
	var refreshCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/refresh-token" {
			atomic.AddInt32(&refreshCalls, 1)
		}
		writeEnvelope(w, http.StatusUnauthorized, nil, "Authentication required")
	}))
	defer srv.Close()

	c := New(srv.URL)

	_, err := c.Me(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Zero(t, atomic.LoadInt32(&refreshCalls), "anonymous requests never attempt a refresh")
}

func TestLoginStoresSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/login", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "alice@example.com", body["email"])

		writeEnvelope(w, http.StatusOK, map[string]any{
			"user":        models.User{ID: 1, Username: "alice"},
			"accessToken": "access-1", "refreshToken": "refresh-1", "expiresIn": 900,
		}, "")
	}))
	defer srv.Close()

	c := New(srv.URL)
	session, err := c.Login(context.Background(), "alice@example.com", "Password1")
	require.NoError(t, err)
	assert.Equal(t, int64(900), session.ExpiresIn)

	access, refresh := c.Tokens()
	assert.Equal(t, "access-1", access)
	assert.Equal(t, "refresh-1", refresh)
}

func TestListPostsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/posts", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "go", q.Get("tag"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "top", q.Get("sort"))
		assert.Empty(t, q.Get("category"), "unset filters stay out of the query")

		writeEnvelope(w, http.StatusOK, map[string]any{
			"items": []models.Post{{Title: "Hello"}},
			"pagination": models.Pagination{
				CurrentPage: 2, TotalPages: 3, TotalItems: 21, HasNextPage: true, HasPrevPage: true,
			},
		}, "")
	}))
	defer srv.Close()

	c := New(srv.URL)
	page, err := c.ListPosts(context.Background(), ListPostsOptions{
		PageOptions: PageOptions{Page: 2},
		Tag:         "go",
		Sort:        "top",
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Hello", page.Items[0].Title)
	assert.Equal(t, 2, page.Pagination.CurrentPage)
	assert.True(t, page.Pagination.HasNextPage)
}

func TestErrorDetailsDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "Validation failed",
			"details": []string{"title is required", "content is required"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.CreatePost(context.Background(), PostInput{})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Validation failed", apiErr.Message)
	assert.Len(t, apiErr.Details, 2)
}
