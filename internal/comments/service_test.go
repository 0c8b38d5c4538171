package comments_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/bookworm/internal/apperr"
	"github.com/MarcoPoloResearchLab/bookworm/internal/books"
	"github.com/MarcoPoloResearchLab/bookworm/internal/comments"
	"github.com/MarcoPoloResearchLab/bookworm/internal/database"
	"github.com/MarcoPoloResearchLab/bookworm/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type steppingClock struct {
	current time.Time
}

func (c *steppingClock) Now() time.Time {
	c.current = c.current.Add(time.Minute)
	return c.current
}

func openDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "bookworm.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func createUser(t *testing.T, db *gorm.DB, username, firstName string) users.User {
	t.Helper()
	user := users.User{Username: username, Password: "x", FirstName: firstName, LastName: "Test", Email: username + "@example.com"}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func newService(t *testing.T, db *gorm.DB) *comments.Service {
	t.Helper()
	clock := &steppingClock{current: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	service, err := comments.NewService(comments.ServiceConfig{Database: db, Clock: clock.Now})
	require.NoError(t, err)
	return service
}

func text(value string) *string {
	return &value
}

func rating(value float64) *float64 {
	return &value
}

func domain(value comments.Domain) *comments.Domain {
	return &value
}

func TestUpsertCreatesPrivateCommentByDefault(t *testing.T) {
	db := openDatabase(t)
	alice := createUser(t, db, "alice", "Alice")
	require.NoError(t, db.Create(&books.Book{ID: "vol-1", Title: "Beloved"}).Error)
	service := newService(t, db)

	comment, err := service.Upsert(context.Background(), alice.ID, "vol-1", comments.CommentInput{Comment: text("Haunting.")})
	require.NoError(t, err)
	assert.Equal(t, comments.DomainPrivate, comment.Domain)
	assert.Nil(t, comment.Rating)
	assert.Equal(t, time.UTC, comment.Date.Location())
}

func TestUpsertKeepsAbsentFieldsAndRefreshesDate(t *testing.T) {
	db := openDatabase(t)
	alice := createUser(t, db, "alice", "Alice")
	require.NoError(t, db.Create(&books.Book{ID: "vol-1", Title: "Beloved"}).Error)
	service := newService(t, db)
	ctx := context.Background()

	first, err := service.Upsert(ctx, alice.ID, "vol-1", comments.CommentInput{Comment: text("Haunting."), Rating: rating(4.5)})
	require.NoError(t, err)
	second, err := service.Upsert(ctx, alice.ID, "vol-1", comments.CommentInput{Domain: domain(comments.DomainPublic)})
	require.NoError(t, err)

	assert.True(t, second.Date.After(first.Date))
	stored, err := service.GetForUser(ctx, alice.ID, "vol-1")
	require.NoError(t, err)
	require.NotNil(t, stored.Comment)
	assert.Equal(t, "Haunting.", *stored.Comment)
	require.NotNil(t, stored.Rating)
	assert.InDelta(t, 4.5, *stored.Rating, 0.0001)
	assert.Equal(t, comments.DomainPublic, stored.Domain)
}

func TestUpsertValidatesRatingAndDomain(t *testing.T) {
	db := openDatabase(t)
	alice := createUser(t, db, "alice", "Alice")
	require.NoError(t, db.Create(&books.Book{ID: "vol-1", Title: "Beloved"}).Error)
	service := newService(t, db)
	ctx := context.Background()

	for _, bad := range []float64{-0.1, 5.01, math.NaN()} {
		_, err := service.Upsert(ctx, alice.ID, "vol-1", comments.CommentInput{Rating: rating(bad)})
		assert.ErrorIs(t, err, apperr.ErrInvalidRating)
	}
	_, err := service.Upsert(ctx, alice.ID, "vol-1", comments.CommentInput{Domain: domain(3)})
	assert.ErrorIs(t, err, apperr.ErrInvalidDomain)

	for _, edge := range []float64{0, 5} {
		_, err := service.Upsert(ctx, alice.ID, "vol-1", comments.CommentInput{Rating: rating(edge)})
		assert.NoError(t, err)
	}
}

func TestListPublicForBookFiltersPrivateComments(t *testing.T) {
	db := openDatabase(t)
	alice := createUser(t, db, "alice", "Alice")
	bob := createUser(t, db, "bob", "Bob")
	carol := createUser(t, db, "carol", "Carol")
	require.NoError(t, db.Create(&books.Book{ID: "vol-1", Title: "Beloved"}).Error)
	service := newService(t, db)
	ctx := context.Background()

	_, err := service.Upsert(ctx, bob.ID, "vol-1", comments.CommentInput{Comment: text("second"), Domain: domain(comments.DomainPublic)})
	require.NoError(t, err)
	_, err = service.Upsert(ctx, carol.ID, "vol-1", comments.CommentInput{Comment: text("private"), Domain: domain(comments.DomainPrivate)})
	require.NoError(t, err)
	_, err = service.Upsert(ctx, alice.ID, "vol-1", comments.CommentInput{Comment: text("third"), Domain: domain(comments.DomainPublic)})
	require.NoError(t, err)

	public, err := service.ListPublicForBook(ctx, "vol-1")
	require.NoError(t, err)
	require.Len(t, public, 2)
	assert.Equal(t, "Bob", public[0].AuthorName)
	assert.Equal(t, "bob", public[0].AuthorUsername)
	assert.Equal(t, "alice", public[1].AuthorUsername)
	for _, entry := range public {
		assert.Equal(t, comments.DomainPublic, entry.Comment.Domain)
	}

	own, err := service.GetForUser(ctx, carol.ID, "vol-1")
	require.NoError(t, err)
	assert.Equal(t, comments.DomainPrivate, own.Domain)
}

func TestGetForUserMissing(t *testing.T) {
	db := openDatabase(t)
	alice := createUser(t, db, "alice", "Alice")
	service := newService(t, db)
	_, err := service.GetForUser(context.Background(), alice.ID, "vol-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpsertUnknownBookIsNotFound(t *testing.T) {
	db := openDatabase(t)
	alice := createUser(t, db, "alice", "Alice")
	service := newService(t, db)
	_, err := service.Upsert(context.Background(), alice.ID, "missing", comments.CommentInput{Comment: text("?")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
