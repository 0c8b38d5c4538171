package books

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxBookIDLength = 64
	listSeparator   = ", "
)

// ErrInvalidBookID indicates that a catalog identifier is empty or exceeds storage bounds.
var ErrInvalidBookID = errors.New("books: invalid book id")

// BookID is a validated external catalog identifier.
type BookID string

// NewBookID validates raw input and returns a BookID.
func NewBookID(rawInput string) (BookID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidBookID)
	}
	if len(trimmed) > maxBookIDLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidBookID, maxBookIDLength)
	}
	return BookID(trimmed), nil
}

// String returns the underlying identifier.
func (id BookID) String() string {
	return string(id)
}

// Book is the local record of a catalog volume a user has interacted with.
type Book struct {
	ID          string    `gorm:"column:id;primaryKey;size:64;not null"`
	Title       string    `gorm:"column:title;type:text;not null"`
	Cover       string    `gorm:"column:cover;type:text"`
	Authors     string    `gorm:"column:authors;type:text"`
	Categories  string    `gorm:"column:categories;type:text"`
	Description string    `gorm:"column:description;type:text"`
	PageCount   *int      `gorm:"column:page_count"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Book) TableName() string {
	return "books"
}

// AuthorList splits the stored author column.
func (b Book) AuthorList() []string {
	return splitList(b.Authors)
}

// CategoryList splits the stored category column.
func (b Book) CategoryList() []string {
	return splitList(b.Categories)
}

// BookSeed is the data used to create a Book on first reference.
type BookSeed struct {
	Title       string
	Cover       string
	Authors     []string
	Categories  []string
	Description string
	PageCount   int
}

func (seed BookSeed) toModel(id BookID) Book {
	book := Book{
		ID:          id.String(),
		Title:       strings.TrimSpace(seed.Title),
		Cover:       strings.TrimSpace(seed.Cover),
		Authors:     joinList(seed.Authors),
		Categories:  joinList(seed.Categories),
		Description: seed.Description,
	}
	if seed.PageCount > 0 {
		pages := seed.PageCount
		book.PageCount = &pages
	}
	return book
}

func joinList(values []string) string {
	cleaned := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return strings.Join(cleaned, listSeparator)
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return []string{}
	}
	parts := strings.Split(value, listSeparator)
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
