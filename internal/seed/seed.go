// Package seed provides database seeding utilities for development and
// demo environments.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"inkwell/internal/models"
	"inkwell/internal/sanitize"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options configures the seeder.
type Options struct {
	NumUsers    int
	NumPosts    int
	ShouldClean bool
}

// Every seeded account shares this password so demo logins are easy.
const seedPassword = "Password123"

var categories = []string{
	"technology", "programming", "design", "writing", "productivity",
	"science", "travel", "food", "books", "music",
}

var tagPool = []string{
	"go", "web", "databases", "tutorial", "opinion", "career",
	"open-source", "tooling", "performance", "testing", "security",
	"beginners", "deep-dive", "notes",
}

// Seed populates the database with demo data.
func Seed(db *gorm.DB, opts Options) error {
	log.Printf("seeding database with %d users and %d posts...", opts.NumUsers, opts.NumPosts)
	gofakeit.Seed(time.Now().UnixNano())
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	if opts.ShouldClean {
		if err := clearData(db); err != nil {
			log.Println("warning: could not clear all existing data, continuing anyway")
		}
	}

	users, err := createUsers(db, opts.NumUsers)
	if err != nil {
		return fmt.Errorf("failed to create users: %w", err)
	}
	log.Printf("created %d users", len(users))

	posts, err := createPosts(db, r, users, opts.NumPosts)
	if err != nil {
		return fmt.Errorf("failed to create posts: %w", err)
	}
	log.Printf("created %d posts", len(posts))

	if err := createComments(db, r, users, posts); err != nil {
		return fmt.Errorf("failed to create comments: %w", err)
	}
	if err := createEngagement(db, r, users, posts); err != nil {
		return fmt.Errorf("failed to create engagement: %w", err)
	}
	if err := createFollows(db, r, users); err != nil {
		return fmt.Errorf("failed to create follows: %w", err)
	}

	log.Println("database seeding completed")
	return nil
}

func clearData(db *gorm.DB) error {
	sql := `TRUNCATE TABLE comment_likes, comments, likes, bookmarks, follows, refresh_tokens, posts, users RESTART IDENTITY CASCADE;`
	return db.Exec(sql).Error
}

func createUsers(db *gorm.DB, count int) ([]*models.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	users := make([]*models.User, 0, count+1)

	admin := &models.User{
		Username:    "admin",
		Email:       "admin@inkwell.dev",
		Password:    string(hashed),
		DisplayName: "Site Admin",
		Bio:         "Keeping the lights on.",
		Role:        models.RoleAdmin,
		IsActive:    true,
	}
	if err := db.Create(admin).Error; err != nil {
		return nil, err
	}
	users = append(users, admin)

	for i := 0; i < count; i++ {
		user := &models.User{
			Username:    fmt.Sprintf("%s%d", gofakeit.Username(), gofakeit.Number(100, 999)),
			Email:       gofakeit.Email(),
			Password:    string(hashed),
			DisplayName: gofakeit.Name(),
			Bio:         gofakeit.Sentence(10),
			Avatar:      fmt.Sprintf("https://i.pravatar.cc/150?u=%s", gofakeit.UUID()),
			Role:        models.RoleUser,
			IsActive:    true,
		}
		if err := db.Create(user).Error; err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func createPosts(db *gorm.DB, r *rand.Rand, users []*models.User, count int) ([]*models.Post, error) {
	posts := make([]*models.Post, 0, count)
	for i := 0; i < count; i++ {
		author := users[r.Intn(len(users))]
		title := strings.TrimSuffix(gofakeit.Sentence(6), ".")

		var body strings.Builder
		for p := 0; p < 2+r.Intn(4); p++ {
			body.WriteString("<p>")
			body.WriteString(gofakeit.Paragraph(1, 4, 12, " "))
			body.WriteString("</p>")
		}
		contentHTML := body.String()

		createdAt := time.Now().Add(-time.Duration(r.Intn(90*24)) * time.Hour)
		post := &models.Post{
			Title:       title,
			Slug:        fmt.Sprintf("%s-%d", slugify(title), createdAt.Unix()),
			ContentHTML: contentHTML,
			Excerpt:     sanitize.Excerpt(contentHTML, 200),
			Tags:        pickTags(r),
			Category:    categories[r.Intn(len(categories))],
			Published:   r.Intn(10) > 0,
			Featured:    r.Intn(20) == 0,
			ViewCount:   int64(r.Intn(5000)),
			AuthorID:    author.ID,
			CreatedAt:   createdAt,
		}
		if err := db.Create(post).Error; err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func createComments(db *gorm.DB, r *rand.Rand, users []*models.User, posts []*models.Post) error {
	for _, post := range posts {
		if !post.Published {
			continue
		}
		for i := 0; i < r.Intn(6); i++ {
			comment := &models.Comment{
				PostID:   post.ID,
				AuthorID: users[r.Intn(len(users))].ID,
				BodyHTML: "<p>" + gofakeit.Sentence(12) + "</p>",
			}
			if err := db.Create(comment).Error; err != nil {
				return err
			}
			for j := 0; j < r.Intn(3); j++ {
				reply := &models.Comment{
					PostID:   post.ID,
					AuthorID: users[r.Intn(len(users))].ID,
					ParentID: &comment.ID,
					BodyHTML: "<p>" + gofakeit.Sentence(8) + "</p>",
				}
				if err := db.Create(reply).Error; err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func createEngagement(db *gorm.DB, r *rand.Rand, users []*models.User, posts []*models.Post) error {
	for _, post := range posts {
		if !post.Published {
			continue
		}
		for _, user := range users {
			if r.Intn(4) == 0 {
				like := &models.Like{UserID: user.ID, PostID: post.ID}
				if err := db.Create(like).Error; err != nil {
					return err
				}
			}
			if r.Intn(10) == 0 {
				bookmark := &models.Bookmark{UserID: user.ID, PostID: post.ID}
				if err := db.Create(bookmark).Error; err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func createFollows(db *gorm.DB, r *rand.Rand, users []*models.User) error {
	for _, follower := range users {
		for _, followee := range users {
			if follower.ID == followee.ID {
				continue
			}
			if r.Intn(5) == 0 {
				follow := &models.Follow{FollowerID: follower.ID, FolloweeID: followee.ID}
				if err := db.Create(follow).Error; err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func pickTags(r *rand.Rand) string {
	n := 1 + r.Intn(3)
	seen := make(map[string]struct{}, n)
	tags := make([]string, 0, n)
	for len(tags) < n {
		t := tagPool[r.Intn(len(tagPool))]
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	return strings.Join(tags, ",")
}

func slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
