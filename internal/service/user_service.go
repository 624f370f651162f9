package service

import (
	"context"

	"inkwell/internal/models"
	"inkwell/internal/repository"
)

const (
	maxDisplayNameLen = 100
	maxBioLen         = 500
)

type UserService struct {
	userRepo  repository.UserRepository
	tokenRepo repository.TokenRepository
	postRepo  repository.PostRepository
	isAdmin   func(ctx context.Context, userID uint) (bool, error)
}

type UpdateProfileInput struct {
	UserID      uint
	DisplayName *string
	Bio         *string
	Avatar      *string
}

// Dashboard aggregates everything the signed-in user's home view needs.
type Dashboard struct {
	User  *models.User            `json:"user"`
	Stats *repository.AuthorStats `json:"stats"`
}

func NewUserService(
	userRepo repository.UserRepository,
	tokenRepo repository.TokenRepository,
	postRepo repository.PostRepository,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
) *UserService {
	return &UserService{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		postRepo:  postRepo,
		isAdmin:   isAdmin,
	}
}

func (s *UserService) GetProfile(ctx context.Context, username string, currentUserID uint) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username, currentUserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, models.NewNotFoundError("User", username)
	}
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, in.UserID, in.UserID)
	if err != nil {
		return nil, err
	}

	if in.DisplayName != nil {
		if len(*in.DisplayName) > maxDisplayNameLen {
			return nil, models.NewValidationError("Display name too long (max 100 characters)")
		}
		user.DisplayName = *in.DisplayName
	}
	if in.Bio != nil {
		if len(*in.Bio) > maxBioLen {
			return nil, models.NewValidationError("Bio too long (max 500 characters)")
		}
		user.Bio = *in.Bio
	}
	if in.Avatar != nil {
		user.Avatar = *in.Avatar
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Deactivate disables an account and revokes every refresh token so open
// sessions die at the next access-token expiry. Content stays attributed.
func (s *UserService) Deactivate(ctx context.Context, actorID, targetID uint) error {
	if actorID != targetID {
		if s.isAdmin == nil {
			return models.NewForbiddenError("You can only deactivate your own account")
		}
		admin, err := s.isAdmin(ctx, actorID)
		if err != nil {
			return err
		}
		if !admin {
			return models.NewForbiddenError("You can only deactivate your own account")
		}
	}

	user, err := s.userRepo.GetByID(ctx, targetID, 0)
	if err != nil {
		return err
	}
	user.IsActive = false
	if err := s.userRepo.Update(ctx, user); err != nil {
		return err
	}
	return s.tokenRepo.RemoveAllForUser(ctx, targetID)
}

func (s *UserService) Dashboard(ctx context.Context, userID uint) (*Dashboard, error) {
	user, err := s.userRepo.GetByID(ctx, userID, userID)
	if err != nil {
		return nil, err
	}
	stats, err := s.postRepo.AuthorStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Dashboard{User: user, Stats: stats}, nil
}

func (s *UserService) Follow(ctx context.Context, followerID, followeeID uint) (*models.User, error) {
	if followerID == followeeID {
		return nil, models.NewValidationError("You cannot follow yourself")
	}
	target, err := s.userRepo.GetByID(ctx, followeeID, followerID)
	if err != nil {
		return nil, err
	}
	if !target.IsActive {
		return nil, models.NewNotFoundError("User", followeeID)
	}
	if err := s.userRepo.Follow(ctx, followerID, followeeID); err != nil {
		return nil, err
	}
	return s.userRepo.GetByID(ctx, followeeID, followerID)
}

func (s *UserService) Unfollow(ctx context.Context, followerID, followeeID uint) (*models.User, error) {
	if followerID == followeeID {
		return nil, models.NewValidationError("You cannot unfollow yourself")
	}
	if _, err := s.userRepo.GetByID(ctx, followeeID, followerID); err != nil {
		return nil, err
	}
	if err := s.userRepo.Unfollow(ctx, followerID, followeeID); err != nil {
		return nil, err
	}
	return s.userRepo.GetByID(ctx, followeeID, followerID)
}

func (s *UserService) Followers(ctx context.Context, userID uint, limit, offset int) ([]models.User, int64, error) {
	return s.userRepo.Followers(ctx, userID, limit, offset)
}

func (s *UserService) Following(ctx context.Context, userID uint, limit, offset int) ([]models.User, int64, error) {
	return s.userRepo.Following(ctx, userID, limit, offset)
}

func (s *UserService) SearchUsers(ctx context.Context, query string, limit, offset int) ([]models.User, int64, error) {
	if query == "" {
		return nil, 0, models.NewValidationError("Search query is required")
	}
	return s.userRepo.Search(ctx, query, limit, offset)
}

// SetRole changes a user's role. Callers gate on admin.
func (s *UserService) SetRole(ctx context.Context, targetID uint, role string) (*models.User, error) {
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, models.NewValidationError("Invalid role")
	}
	user, err := s.userRepo.GetByID(ctx, targetID, 0)
	if err != nil {
		return nil, err
	}
	user.Role = role
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetActive reactivates or deactivates an account. Callers gate on admin.
// Deactivation revokes refresh tokens the same way self-deactivation does.
func (s *UserService) SetActive(ctx context.Context, targetID uint, active bool) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, targetID, 0)
	if err != nil {
		return nil, err
	}
	user.IsActive = active
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	if !active {
		if err := s.tokenRepo.RemoveAllForUser(ctx, targetID); err != nil {
			return nil, err
		}
	}
	return user, nil
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]models.User, int64, error) {
	return s.userRepo.List(ctx, limit, offset)
}
