package server

import (
	"time"

	"inkwell/internal/models"
	"inkwell/internal/validation"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// authPayload is the success body for register, login, and refresh.
type authPayload struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
}

// issueSession mints both tokens, persists the refresh jti, and sets the
// refresh cookie. The refresh token also appears in the body for
// non-browser clients that cannot use cookies.
func (s *Server) issueSession(c *fiber.Ctx, user *models.User) (*authPayload, error) {
	accessToken, err := s.issuer.IssueAccessToken(user.ID, user.Role)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	refreshToken, jti, expiresAt, err := s.issuer.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := s.tokenRepo.Add(c.Context(), &models.RefreshToken{
		JTI:       jti,
		UserID:    user.ID,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, err
	}

	s.setRefreshCookie(c, refreshToken, expiresAt)
	return &authPayload{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.issuer.AccessTTL().Seconds()),
	}, nil
}

func (s *Server) setRefreshCookie(c *fiber.Ctx, token string, expiresAt time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     s.config.RefreshCookieName,
		Value:    token,
		Path:     s.config.RefreshCookiePath,
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (s *Server) clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     s.config.RefreshCookieName,
		Value:    "",
		Path:     s.config.RefreshCookiePath,
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

// refreshTokenFrom reads the refresh token from the scoped cookie, falling
// back to the request body for clients that hold it themselves.
func (s *Server) refreshTokenFrom(c *fiber.Ctx) string {
	if token := c.Cookies(s.config.RefreshCookieName); token != "" {
		return token
	}
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.BodyParser(&req); err != nil {
		return ""
	}
	return req.RefreshToken
}

// Register handles POST /api/auth/register.
func (s *Server) Register(c *fiber.Ctx) error {
	var req struct {
		Username    string `json:"username"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		return models.RespondWithError(c,
			models.NewValidationError("Username, email, and password are required"))
	}
	if err := validation.ValidateUsername(req.Username); err != nil {
		return models.RespondWithError(c, models.NewValidationError(err.Error()))
	}
	email := validation.NormalizeEmail(req.Email)
	if err := validation.ValidateEmail(email); err != nil {
		return models.RespondWithError(c, models.NewValidationError(err.Error()))
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		return models.RespondWithError(c, models.NewValidationError(err.Error()))
	}

	existing, err := s.userRepo.GetByEmail(c.Context(), email)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if existing != nil {
		return models.RespondWithError(c,
			models.NewConflictError("username or email already in use"))
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.RespondWithError(c, models.NewInternalError(err))
	}

	user := &models.User{
		Username:    req.Username,
		Email:       email,
		Password:    string(hashed),
		DisplayName: req.DisplayName,
		Role:        models.RoleUser,
		IsActive:    true,
	}
	if err := s.userRepo.Create(c.Context(), user); err != nil {
		return models.RespondWithError(c, err)
	}

	payload, err := s.issueSession(c, user)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusCreated, payload)
}

// Login handles POST /api/auth/login. Unknown email, bad password, and a
// deactivated account all return the same 401 so responses do not leak
// which accounts exist.
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
	}

	user, err := s.userRepo.GetByEmail(c.Context(), validation.NormalizeEmail(req.Email))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if user == nil {
		return models.RespondWithError(c, models.NewUnauthorizedError("Invalid credentials"))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return models.RespondWithError(c, models.NewUnauthorizedError("Invalid credentials"))
	}
	if !user.IsActive {
		return models.RespondWithError(c, models.NewUnauthorizedError("Invalid credentials"))
	}

	payload, err := s.issueSession(c, user)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, payload)
}

// Refresh handles POST /api/auth/refresh-token. Rotation: the presented
// token's row is removed and a new one issued, so each refresh token works
// exactly once. A token that verifies but has no live row was already
// rotated out or revoked.
func (s *Server) Refresh(c *fiber.Ctx) error {
	tokenString := s.refreshTokenFrom(c)
	if tokenString == "" {
		return models.RespondWithError(c,
			models.NewUnauthorizedError("Refresh token required"))
	}

	claims, err := s.issuer.VerifyRefreshToken(tokenString)
	if err != nil {
		s.clearRefreshCookie(c)
		return models.RespondWithError(c,
			models.NewUnauthorizedError("Invalid or expired refresh token"))
	}

	// Claiming the row is the validity check. The delete matches at most
	// one live row, so of two requests presenting the same token exactly
	// one rotates; the loser is a replay and gets nothing.
	removed, err := s.tokenRepo.Remove(c.Context(), claims.JTI, claims.UserID)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if !removed {
		s.clearRefreshCookie(c)
		return models.RespondWithError(c,
			models.NewUnauthorizedError("Refresh token has been revoked"))
	}

	user, err := s.userRepo.GetByID(c.Context(), claims.UserID, claims.UserID)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if !user.IsActive {
		s.clearRefreshCookie(c)
		_ = s.tokenRepo.RemoveAllForUser(c.Context(), user.ID)
		return models.RespondWithError(c,
			models.NewUnauthorizedError("Account is deactivated"))
	}

	payload, err := s.issueSession(c, user)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, payload)
}

// Logout handles POST /api/auth/logout. Revokes the presented refresh token
// and clears the cookie. Safe to call without a valid session.
func (s *Server) Logout(c *fiber.Ctx) error {
	if tokenString := s.refreshTokenFrom(c); tokenString != "" {
		if claims, err := s.issuer.VerifyRefreshToken(tokenString); err == nil {
			if _, err := s.tokenRepo.Remove(c.Context(), claims.JTI, claims.UserID); err != nil {
				return models.RespondWithError(c, err)
			}
		}
	}
	s.clearRefreshCookie(c)
	return models.Respond(c, fiber.StatusOK, fiber.Map{"message": "Logged out"})
}

// LogoutAll handles POST /api/auth/logout-all. Revokes every refresh token
// for the account, ending all sessions at their next refresh.
func (s *Server) LogoutAll(c *fiber.Ctx) error {
	userID := currentUserID(c)
	if err := s.tokenRepo.RemoveAllForUser(c.Context(), userID); err != nil {
		return models.RespondWithError(c, err)
	}
	s.clearRefreshCookie(c)
	return models.Respond(c, fiber.StatusOK, fiber.Map{"message": "All sessions ended"})
}

// Me handles GET /api/auth/me.
func (s *Server) Me(c *fiber.Ctx) error {
	user, err := s.userRepo.GetByID(c.Context(), currentUserID(c), currentUserID(c))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, user)
}

// ChangePassword handles PUT /api/auth/change-password. All refresh tokens
// are revoked afterwards; the caller keeps working until their access token
// expires, then must log in again.
func (s *Server) ChangePassword(c *fiber.Ctx) error {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
	}

	user := currentUser(c)
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		return models.RespondWithError(c,
			models.NewUnauthorizedError("Current password is incorrect"))
	}
	if err := validation.ValidatePassword(req.NewPassword); err != nil {
		return models.RespondWithError(c, models.NewValidationError(err.Error()))
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return models.RespondWithError(c, models.NewInternalError(err))
	}
	user.Password = string(hashed)
	if err := s.userRepo.Update(c.Context(), user); err != nil {
		return models.RespondWithError(c, err)
	}

	if err := s.tokenRepo.RemoveAllForUser(c.Context(), user.ID); err != nil {
		return models.RespondWithError(c, err)
	}
	s.clearRefreshCookie(c)
	return models.Respond(c, fiber.StatusOK, fiber.Map{"message": "Password changed"})
}
