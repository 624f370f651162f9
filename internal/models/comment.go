package models

import (
	"encoding/json"
	"time"
)

// DeletedCommentBody is the placeholder body serialized for soft-deleted comments.
const DeletedCommentBody = "[deleted]"

// Comment belongs to exactly one post and optionally to one parent comment
// (single-level threading; replies to replies are rejected upstream).
// Deleting a comment sets Deleted instead of removing the row so reply
// counts and thread shape survive moderation; the original body stays in
// the database for audit purposes and is redacted at serialization time.
type Comment struct {
	ID       uint  `gorm:"primaryKey" json:"id"`
	PostID   uint  `gorm:"not null;index" json:"post_id"`
	AuthorID uint  `gorm:"not null;index" json:"author_id"`
	Author   User  `gorm:"foreignKey:AuthorID" json:"author"`
	ParentID *uint `gorm:"index" json:"parent_id,omitempty"`
	BodyHTML string `gorm:"type:text;not null" json:"body_html"`
	Deleted  bool   `gorm:"not null;default:false" json:"deleted"`
	// LikesCount/RepliesCount are not persisted; computed at query time
	LikesCount   int       `gorm:"->;-:migration" json:"likes_count"`
	RepliesCount int       `gorm:"->;-:migration" json:"replies_count"`
	Liked        bool      `gorm:"->;-:migration" json:"liked"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MarshalJSON redacts the body of soft-deleted comments while preserving
// the comment's identity and thread position.
func (c Comment) MarshalJSON() ([]byte, error) {
	type alias Comment
	out := alias(c)
	if out.Deleted {
		out.BodyHTML = DeletedCommentBody
	}
	return json.Marshal(out)
}
