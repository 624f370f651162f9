// Package client is a typed Go client for the Inkwell API.
//
// The client attaches the bearer access token to every request. When a
// request comes back 401 it performs a single refresh against
// /api/auth/refresh-token and retries the request once; concurrent 401s
// share one in-flight refresh. A failed refresh clears the stored
// credentials and surfaces the original error.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"sync"
	"time"

	"inkwell/internal/models"
)

// APIError is a non-2xx response decoded from the API envelope.
type APIError struct {
	StatusCode int
	Message    string
	Details    []string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}

// Client talks to an Inkwell API server.
type Client struct {
	baseURL string
	http    *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a client for the API at baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second, Jar: jar},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTokens installs a previously saved session.
func (c *Client) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = access
	c.refreshToken = refresh
}

// Tokens returns the current session tokens, for persisting across runs.
func (c *Client) Tokens() (access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func (c *Client) clearTokens() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	c.refreshToken = ""
}

func (c *Client) currentAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// AuthSession is the payload returned by register, login and refresh.
type AuthSession struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
}

// Page is one page of a collection response.
type Page[T any] struct {
	Items      []T               `json:"items"`
	Pagination models.Pagination `json:"pagination"`
}

// PageOptions selects a page of a collection.
type PageOptions struct {
	Page  int
	Limit int
}

func (p PageOptions) apply(q url.Values) {
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
}

func (c *Client) roundTrip(ctx context.Context, method, path, token string, body []byte, contentType string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.http.Do(req)
}

// refreshAccess obtains a fresh access token. staleToken is the token the
// failed request used; if another goroutine already replaced it, the
// replacement is returned without a second refresh call.
func (c *Client) refreshAccess(ctx context.Context, staleToken string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.accessToken != staleToken {
		return c.accessToken, nil
	}
	if c.refreshToken == "" {
		return "", fmt.Errorf("no refresh token available")
	}

	body, err := json.Marshal(map[string]string{"refreshToken": c.refreshToken})
	if err != nil {
		return "", err
	}
	resp, err := c.roundTrip(ctx, http.MethodPost, "/api/auth/refresh-token", "", body, "application/json")
	if err != nil {
		c.accessToken = ""
		c.refreshToken = ""
		return "", err
	}
	defer resp.Body.Close()

	var session AuthSession
	if err := decodeEnvelope(resp, &session); err != nil {
		c.accessToken = ""
		c.refreshToken = ""
		return "", err
	}
	c.accessToken = session.AccessToken
	c.refreshToken = session.RefreshToken
	return c.accessToken, nil
}

// do performs an authenticated JSON request with one refresh-and-retry
// on 401.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	contentType := ""
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
		contentType = "application/json"
	}

	token := c.currentAccessToken()
	resp, err := c.roundTrip(ctx, method, path, token, payload, contentType)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		originalErr := drainError(resp)
		fresh, refreshErr := c.refreshAccess(ctx, token)
		if refreshErr != nil {
			return originalErr
		}
		resp, err = c.roundTrip(ctx, method, path, fresh, payload, contentType)
		if err != nil {
			return err
		}
	}

	defer resp.Body.Close()
	return decodeEnvelope(resp, out)
}

// drainError consumes and closes a failed response, returning its APIError.
func drainError(resp *http.Response) error {
	defer resp.Body.Close()
	return decodeEnvelope(resp, nil)
}

func decodeEnvelope(resp *http.Response, out any) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
		Details []string        `json:"details"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	if resp.StatusCode >= 400 || !envelope.Success {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    envelope.Error,
			Details:    envelope.Details,
		}
	}
	if out != nil && envelope.Data != nil {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

// --- Auth ---

// RegisterInput holds the fields for account creation.
type RegisterInput struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

// Register creates an account and stores the returned session.
func (c *Client) Register(ctx context.Context, in RegisterInput) (*AuthSession, error) {
	var session AuthSession
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", in, &session); err != nil {
		return nil, err
	}
	c.SetTokens(session.AccessToken, session.RefreshToken)
	return &session, nil
}

// Login authenticates and stores the returned session.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthSession, error) {
	var session AuthSession
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &session); err != nil {
		return nil, err
	}
	c.SetTokens(session.AccessToken, session.RefreshToken)
	return &session, nil
}

// Logout revokes the current refresh token and clears the session.
func (c *Client) Logout(ctx context.Context) error {
	_, refresh := c.Tokens()
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", map[string]string{"refreshToken": refresh}, nil)
	c.clearTokens()
	return err
}

// LogoutAll revokes every session for the current user.
func (c *Client) LogoutAll(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout-all", nil, nil)
	c.clearTokens()
	return err
}

// Me returns the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangePassword rotates the password. All sessions are revoked server-side,
// so the stored tokens are cleared.
func (c *Client) ChangePassword(ctx context.Context, current, updated string) error {
	body := map[string]string{"currentPassword": current, "newPassword": updated}
	if err := c.do(ctx, http.MethodPut, "/api/auth/change-password", body, nil); err != nil {
		return err
	}
	c.clearTokens()
	return nil
}

// --- Posts ---

// PostInput holds the writable fields of a post.
type PostInput struct {
	Title         string   `json:"title,omitempty"`
	ContentHTML   string   `json:"content_html,omitempty"`
	ContentDelta  string   `json:"content_delta,omitempty"`
	CoverImageURL string   `json:"cover_image_url,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Category      string   `json:"category,omitempty"`
	Published     *bool    `json:"published,omitempty"`
}

// ListPostsOptions filters and sorts the post feed.
type ListPostsOptions struct {
	PageOptions
	Tag      string
	Category string
	Author   string
	Query    string
	Sort     string
	Featured bool
}

// ListPosts returns a page of published posts.
func (c *Client) ListPosts(ctx context.Context, opts ListPostsOptions) (*Page[models.Post], error) {
	q := url.Values{}
	opts.PageOptions.apply(q)
	if opts.Tag != "" {
		q.Set("tag", opts.Tag)
	}
	if opts.Category != "" {
		q.Set("category", opts.Category)
	}
	if opts.Author != "" {
		q.Set("author", opts.Author)
	}
	if opts.Query != "" {
		q.Set("q", opts.Query)
	}
	if opts.Sort != "" {
		q.Set("sort", opts.Sort)
	}
	if opts.Featured {
		q.Set("featured", "true")
	}

	var page Page[models.Post]
	if err := c.do(ctx, http.MethodGet, withQuery("/api/posts", q), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetPost fetches a post by slug.
func (c *Client) GetPost(ctx context.Context, slug string) (*models.Post, error) {
	var post models.Post
	if err := c.do(ctx, http.MethodGet, "/api/posts/"+url.PathEscape(slug), nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// CreatePost publishes a new post.
func (c *Client) CreatePost(ctx context.Context, in PostInput) (*models.Post, error) {
	var post models.Post
	if err := c.do(ctx, http.MethodPost, "/api/posts", in, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// UpdatePost edits an existing post.
func (c *Client) UpdatePost(ctx context.Context, id uint, in PostInput) (*models.Post, error) {
	var post models.Post
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/posts/%d", id), in, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// DeletePost removes a post and its comments, likes and bookmarks.
func (c *Client) DeletePost(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/posts/%d", id), nil, nil)
}

// LikePost toggles the caller's like on a post.
func (c *Client) LikePost(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/posts/%d/like", id), nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// UploadedCover mirrors the upload-image response.
type UploadedCover struct {
	URL      string            `json:"url"`
	Variants map[string]string `json:"variants"`
	Width    int               `json:"width"`
	Height   int               `json:"height"`
}

// UploadCoverImage uploads a cover image and returns the generated variants.
func (c *Client) UploadCoverImage(ctx context.Context, filename string, content []byte) (*UploadedCover, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	token := c.currentAccessToken()
	resp, err := c.roundTrip(ctx, http.MethodPost, "/api/posts/upload-image", token, buf.Bytes(), mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		originalErr := drainError(resp)
		fresh, refreshErr := c.refreshAccess(ctx, token)
		if refreshErr != nil {
			return nil, originalErr
		}
		resp, err = c.roundTrip(ctx, http.MethodPost, "/api/posts/upload-image", fresh, buf.Bytes(), mw.FormDataContentType())
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	var cover UploadedCover
	if err := decodeEnvelope(resp, &cover); err != nil {
		return nil, err
	}
	return &cover, nil
}

// --- Comments ---

// ListComments returns top-level comments on a post.
func (c *Client) ListComments(ctx context.Context, postID uint, opts PageOptions) (*Page[models.Comment], error) {
	q := url.Values{}
	opts.apply(q)

	var page Page[models.Comment]
	path := withQuery(fmt.Sprintf("/api/comments/post/%d", postID), q)
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListReplies returns the replies under a comment.
func (c *Client) ListReplies(ctx context.Context, commentID uint, opts PageOptions) (*Page[models.Comment], error) {
	q := url.Values{}
	opts.apply(q)

	var page Page[models.Comment]
	path := withQuery(fmt.Sprintf("/api/comments/%d/replies", commentID), q)
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateComment posts a comment; a non-nil parentID makes it a reply.
func (c *Client) CreateComment(ctx context.Context, postID uint, bodyHTML string, parentID *uint) (*models.Comment, error) {
	body := map[string]any{"body_html": bodyHTML}
	if parentID != nil {
		body["parent_id"] = *parentID
	}

	var comment models.Comment
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/comments/post/%d", postID), body, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// UpdateComment edits the caller's comment.
func (c *Client) UpdateComment(ctx context.Context, id uint, bodyHTML string) (*models.Comment, error) {
	var comment models.Comment
	body := map[string]string{"body_html": bodyHTML}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/comments/%d", id), body, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// DeleteComment soft-deletes a comment; its replies stay in the thread.
func (c *Client) DeleteComment(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/comments/%d", id), nil, nil)
}

// LikeComment toggles the caller's like on a comment.
func (c *Client) LikeComment(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/comments/%d/like", id), nil, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// --- Users ---

// GetUser fetches a public profile.
func (c *Client) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/users/%d", id), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SearchUsers finds active users by username or display name.
func (c *Client) SearchUsers(ctx context.Context, query string, opts PageOptions) (*Page[models.User], error) {
	q := url.Values{}
	opts.apply(q)
	q.Set("q", query)

	var page Page[models.User]
	if err := c.do(ctx, http.MethodGet, withQuery("/api/users/search", q), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Follow follows a user and returns their updated profile.
func (c *Client) Follow(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/users/%d/follow", id), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Unfollow removes a follow edge.
func (c *Client) Unfollow(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/users/%d/follow", id), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ToggleBookmark adds or removes a post from the caller's bookmarks.
func (c *Client) ToggleBookmark(ctx context.Context, postID uint) (*models.Post, error) {
	var post models.Post
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/users/me/bookmarks/%d", postID), nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// Bookmarks lists the caller's bookmarked posts.
func (c *Client) Bookmarks(ctx context.Context, opts PageOptions) (*Page[models.Post], error) {
	q := url.Values{}
	opts.apply(q)

	var page Page[models.Post]
	if err := c.do(ctx, http.MethodGet, withQuery("/api/users/me/bookmarks", q), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
