// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a registered account. Accounts are deactivated
// (IsActive=false) rather than hard-deleted so authored content keeps
// a valid owner.
type User struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Username    string `gorm:"uniqueIndex;not null;size:30" json:"username"`
	Email       string `gorm:"uniqueIndex;not null" json:"email"`
	Password    string `gorm:"not null" json:"-"`
	DisplayName string `json:"display_name"`
	Bio         string `gorm:"size:500" json:"bio"`
	Avatar      string `json:"avatar"`
	Role        string `gorm:"not null;default:user" json:"role"`
	IsActive    bool   `gorm:"not null;default:true" json:"is_active"`
	// Counts are not persisted; computed at query time
	FollowersCount int `gorm:"->;-:migration" json:"followers_count"`
	FollowingCount int `gorm:"->;-:migration" json:"following_count"`
	PostsCount     int `gorm:"->;-:migration" json:"posts_count"`
	// Following indicates whether the current requesting user follows this user (computed)
	Following bool      `gorm:"->;-:migration" json:"following"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
