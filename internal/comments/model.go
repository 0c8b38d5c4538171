package comments

import (
	"time"

	"github.com/MarcoPoloResearchLab/bookworm/internal/books"
	"github.com/MarcoPoloResearchLab/bookworm/internal/users"
)

// Domain controls who can read a comment.
type Domain int

const (
	DomainPrivate Domain = 1
	DomainPublic  Domain = 2
)

// Valid reports whether d is private or public.
func (d Domain) Valid() bool {
	return d == DomainPrivate || d == DomainPublic
}

const (
	minRating = 0.0
	maxRating = 5.0
)

// Comment is a user's note and rating for one book.
type Comment struct {
	UserID  int64     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	BookID  string    `gorm:"column:book_id;primaryKey;size:64"`
	Date    time.Time `gorm:"column:date;not null"`
	Comment *string   `gorm:"column:comment;type:text"`
	Rating  *float64  `gorm:"column:rating"`
	Domain  Domain    `gorm:"column:domain;not null;default:1"`

	User users.User `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
	Book books.Book `gorm:"foreignKey:BookID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName binds Comment to the comments table.
func (Comment) TableName() string {
	return "comments"
}

// CommentInput carries the fields of an upsert; nil fields keep their stored value.
type CommentInput struct {
	Comment *string
	Rating  *float64
	Domain  *Domain
}

// PublicComment is a public comment together with its author.
type PublicComment struct {
	Comment        Comment
	AuthorName     string
	AuthorUsername string
}
