package models

import "time"

// RefreshToken is one active refresh credential, keyed by the token's jti
// claim. A refresh token is accepted only while a matching row exists and
// has not passed its expiry, so deleting the row revokes the token even
// though the JWT signature stays valid until natural expiry. Rotation on
// every successful refresh replaces the row.
type RefreshToken struct {
	JTI       string    `gorm:"primaryKey;column:jti" json:"jti"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
