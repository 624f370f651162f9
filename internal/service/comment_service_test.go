package service

import (
	"context"
	"testing"

	"inkwell/internal/models"
	"inkwell/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newCommentService(db *gorm.DB) *CommentService {
	return NewCommentService(
		repository.NewCommentRepository(db),
		repository.NewPostRepository(db),
		dbIsAdmin(db),
	)
}

func createPublishedPost(t *testing.T, db *gorm.DB, authorID uint) *models.Post {
	t.Helper()
	post, err := newPostService(db).CreatePost(context.Background(), CreatePostInput{
		AuthorID: authorID, Title: "Commentable", ContentHTML: "<p>x</p>",
	})
	require.NoError(t, err)
	return post
}

func TestCreateCommentSanitized(t *testing.T) {
	db := setupServiceDB(t)
	svc := newCommentService(db)
	ctx := context.Background()

	author := createUser(t, db, "author", models.RoleUser)
	post := createPublishedPost(t, db, author.ID)

	comment, err := svc.CreateComment(ctx, CreateCommentInput{
		AuthorID: author.ID,
		PostID:   post.ID,
		BodyHTML: `<p>fine</p><script>bad()</script>`,
	})
	require.NoError(t, err)
	assert.Equal(t, "<p>fine</p>", comment.BodyHTML)

	_, err = svc.CreateComment(ctx, CreateCommentInput{
		AuthorID: author.ID,
		PostID:   post.ID,
		BodyHTML: `<script>only</script>`,
	})
	assertAppErrorCode(t, err, models.CodeValidation)
}

func TestReplyDepthLimit(t *testing.T) {
	db := setupServiceDB(t)
	svc := newCommentService(db)
	ctx := context.Background()

	author := createUser(t, db, "author", models.RoleUser)
	post := createPublishedPost(t, db, author.ID)

	top, err := svc.CreateComment(ctx, CreateCommentInput{
		AuthorID: author.ID, PostID: post.ID, BodyHTML: "<p>top</p>",
	})
	require.NoError(t, err)

	reply, err := svc.CreateComment(ctx, CreateCommentInput{
		AuthorID: author.ID, PostID: post.ID, ParentID: &top.ID, BodyHTML: "<p>reply</p>",
	})
	require.NoError(t, err)

	_, err = svc.CreateComment(ctx, CreateCommentInput{
		AuthorID: author.ID, PostID: post.ID, ParentID: &reply.ID, BodyHTML: "<p>too deep</p>",
	})
	assertAppErrorCode(t, err, models.CodeValidation)
}

func TestReplyMustMatchPost(t *testing.T) {
	db := setupServiceDB(t)
	svc := newCommentService(db)
	ctx := context.Background()

	author := createUser(t, db, "author", models.RoleUser)
	first := createPublishedPost(t, db, author.ID)
	second, err := newPostService(db).CreatePost(ctx, CreatePostInput{
		AuthorID: author.ID, Title: "Other", ContentHTML: "<p>x</p>",
	})
	require.NoError(t, err)

	top, err := svc.CreateComment(ctx, CreateCommentInput{
		AuthorID: author.ID, PostID: first.ID, BodyHTML: "<p>top</p>",
	})
	require.NoError(t, err)

	_, err = svc.CreateComment(ctx, CreateCommentInput{
		AuthorID: author.ID, PostID: second.ID, ParentID: &top.ID, BodyHTML: "<p>cross</p>",
	})
	assertAppErrorCode(t, err, models.CodeValidation)
}

func TestCommentOnDraftHidden(t *testing.T) {
	db := setupServiceDB(t)
	svc := newCommentService(db)
	ctx := context.Background()

	author := createUser(t, db, "author", models.RoleUser)
	unpublished := false
	draft, err := newPostService(db).CreatePost(ctx, CreatePostInput{
		AuthorID: author.ID, Title: "Draft", ContentHTML: "<p>x</p>", Published: &unpublished,
	})
	require.NoError(t, err)

	_, err = svc.CreateComment(ctx, CreateCommentInput{
		AuthorID: author.ID, PostID: draft.ID, BodyHTML: "<p>c</p>",
	})
	assertAppErrorCode(t, err, models.CodeNotFound)
}

func TestCommentSoftDeleteAuthorization(t *testing.T) {
	db := setupServiceDB(t)
	svc := newCommentService(db)
	ctx := context.Background()

	author := createUser(t, db, "author", models.RoleUser)
	stranger := createUser(t, db, "stranger", models.RoleUser)
	admin := createUser(t, db, "admin", models.RoleAdmin)
	post := createPublishedPost(t, db, author.ID)

	comment, err := svc.CreateComment(ctx, CreateCommentInput{
		AuthorID: author.ID, PostID: post.ID, BodyHTML: "<p>c</p>",
	})
	require.NoError(t, err)

	err = svc.DeleteComment(ctx, stranger.ID, comment.ID)
	assertAppErrorCode(t, err, models.CodeForbidden)

	require.NoError(t, svc.DeleteComment(ctx, admin.ID, comment.ID))

	// Deleted comments reject edits and likes.
	_, err = svc.UpdateComment(ctx, author.ID, comment.ID, "<p>rewrite</p>")
	assertAppErrorCode(t, err, models.CodeValidation)
	_, err = svc.ToggleLike(ctx, author.ID, comment.ID)
	assertAppErrorCode(t, err, models.CodeValidation)
}

func TestCommentEditOwnerOrAdmin(t *testing.T) {
	db := setupServiceDB(t)
	svc := newCommentService(db)
	ctx := context.Background()

	author := createUser(t, db, "author", models.RoleUser)
	stranger := createUser(t, db, "stranger", models.RoleUser)
	admin := createUser(t, db, "admin", models.RoleAdmin)
	post := createPublishedPost(t, db, author.ID)

	comment, err := svc.CreateComment(ctx, CreateCommentInput{
		AuthorID: author.ID, PostID: post.ID, BodyHTML: "<p>original</p>",
	})
	require.NoError(t, err)

	_, err = svc.UpdateComment(ctx, stranger.ID, comment.ID, "<p>hijacked</p>")
	assertAppErrorCode(t, err, models.CodeForbidden)

	updated, err := svc.UpdateComment(ctx, author.ID, comment.ID, "<p>edited</p>")
	require.NoError(t, err)
	assert.Equal(t, "<p>edited</p>", updated.BodyHTML)

	// Admins moderate edits the same way they moderate deletes.
	moderated, err := svc.UpdateComment(ctx, admin.ID, comment.ID, "<p>moderated</p>")
	require.NoError(t, err)
	assert.Equal(t, "<p>moderated</p>", moderated.BodyHTML)
}

func TestListCommentsOnUnpublishedPost(t *testing.T) {
	db := setupServiceDB(t)
	svc := newCommentService(db)
	ctx := context.Background()

	author := createUser(t, db, "author", models.RoleUser)
	stranger := createUser(t, db, "stranger", models.RoleUser)
	admin := createUser(t, db, "admin", models.RoleAdmin)
	post := createPublishedPost(t, db, author.ID)

	top, err := svc.CreateComment(ctx, CreateCommentInput{
		AuthorID: stranger.ID, PostID: post.ID, BodyHTML: "<p>top</p>",
	})
	require.NoError(t, err)
	_, err = svc.CreateComment(ctx, CreateCommentInput{
		AuthorID: stranger.ID, PostID: post.ID, ParentID: &top.ID, BodyHTML: "<p>reply</p>",
	})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Post{}).
		Where("id = ?", post.ID).
		Update("published", false).Error)

	// The thread unpublishes with the post for everyone but its author
	// and admins.
	_, _, err = svc.ListComments(ctx, post.ID, 10, 0, 0)
	assertAppErrorCode(t, err, models.CodeNotFound)
	_, _, err = svc.ListComments(ctx, post.ID, 10, 0, stranger.ID)
	assertAppErrorCode(t, err, models.CodeNotFound)
	_, _, err = svc.ListReplies(ctx, top.ID, 10, 0, 0)
	assertAppErrorCode(t, err, models.CodeNotFound)

	comments, total, err := svc.ListComments(ctx, post.ID, 10, 0, author.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, comments, 1)

	replies, _, err := svc.ListReplies(ctx, top.ID, 10, 0, admin.ID)
	require.NoError(t, err)
	assert.Len(t, replies, 1)
}

func TestCommentLikeToggle(t *testing.T) {
	db := setupServiceDB(t)
	svc := newCommentService(db)
	ctx := context.Background()

	author := createUser(t, db, "author", models.RoleUser)
	fan := createUser(t, db, "fan", models.RoleUser)
	post := createPublishedPost(t, db, author.ID)

	comment, err := svc.CreateComment(ctx, CreateCommentInput{
		AuthorID: author.ID, PostID: post.ID, BodyHTML: "<p>c</p>",
	})
	require.NoError(t, err)

	liked, err := svc.ToggleLike(ctx, fan.ID, comment.ID)
	require.NoError(t, err)
	assert.True(t, liked.Liked)
	assert.Equal(t, 1, liked.LikesCount)

	unliked, err := svc.ToggleLike(ctx, fan.ID, comment.ID)
	require.NoError(t, err)
	assert.False(t, unliked.Liked)
	assert.Equal(t, 0, unliked.LikesCount)
}
