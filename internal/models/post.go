package models

import (
	"time"
)

// Post sort orders accepted by the list endpoint.
const (
	PostSortNew   = "new"
	PostSortTop   = "top"
	PostSortViews = "views"
)

// Post represents a published or draft article. The author is immutable
// after creation; HTML and Delta bodies are stored post-sanitization.
type Post struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Title string `gorm:"not null;size:300" json:"title"`
	// Slug is derived from the title plus the creation timestamp and never changes.
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"`
	ContentHTML string `gorm:"type:text;not null" json:"content_html"`
	// ContentDelta holds the structured rich-text document as JSON.
	ContentDelta  string `gorm:"type:jsonb" json:"content_delta,omitempty"`
	Excerpt       string `json:"excerpt"`
	CoverImageURL string `json:"cover_image_url"`
	// Tags are stored comma-separated and normalized to lowercase.
	Tags      string `json:"tags"`
	Category  string `gorm:"index" json:"category"`
	Published bool   `gorm:"not null;default:true;index" json:"published"`
	Featured  bool   `gorm:"not null;default:false;index" json:"featured"`
	ViewCount int64  `gorm:"not null;default:0" json:"view_count"`
	AuthorID  uint   `gorm:"not null;index" json:"author_id"`
	Author    User   `gorm:"foreignKey:AuthorID" json:"author"`
	// LikesCount is not persisted; computed at query time
	LikesCount int `gorm:"->;-:migration" json:"likes_count"`
	// CommentsCount is not persisted; computed at query time (deleted comments excluded)
	CommentsCount int `gorm:"->;-:migration" json:"comments_count"`
	// Liked/Bookmarked reflect the current requesting user (computed)
	Liked      bool      `gorm:"->;-:migration" json:"liked"`
	Bookmarked bool      `gorm:"->;-:migration" json:"bookmarked"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
