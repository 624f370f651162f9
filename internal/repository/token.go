package repository

import (
	"context"
	"time"

	"inkwell/internal/models"

	"gorm.io/gorm"
)

// TokenRepository persists active refresh tokens keyed by jti. A token is
// live only while its row exists and has not passed its expiry; removing
// the row revokes the token regardless of JWT validity.
type TokenRepository interface {
	Add(ctx context.Context, token *models.RefreshToken) error
	Remove(ctx context.Context, jti string, userID uint) (bool, error)
	RemoveAllForUser(ctx context.Context, userID uint) error
	Valid(ctx context.Context, jti string, userID uint) (bool, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository returns a new TokenRepository implementation.
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) Add(ctx context.Context, token *models.RefreshToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Remove deletes the live row for the jti/user pair and reports whether one
// existed. The delete doubles as the rotation claim: when two requests
// present the same token, exactly one caller sees true; the other is a
// replay. Expiry is part of the match so a stale row cannot be claimed.
func (r *tokenRepository) Remove(ctx context.Context, jti string, userID uint) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("jti = ? AND user_id = ? AND expires_at > ?", jti, userID, time.Now()).
		Delete(&models.RefreshToken{})
	if result.Error != nil {
		return false, models.NewInternalError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *tokenRepository) RemoveAllForUser(ctx context.Context, userID uint) error {
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.RefreshToken{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Valid reports whether a live row exists for the jti/user pair. Expiry is
// checked at query time so a stale row that the sweeper has not collected
// yet is still rejected.
func (r *tokenRepository) Valid(ctx context.Context, jti string, userID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("jti = ? AND user_id = ? AND expires_at > ?", jti, userID, time.Now()).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *tokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&models.RefreshToken{})
	if result.Error != nil {
		return 0, models.NewInternalError(result.Error)
	}
	return result.RowsAffected, nil
}
