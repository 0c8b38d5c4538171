package readinglog

import (
	"time"

	"github.com/MarcoPoloResearchLab/bookworm/internal/books"
	"github.com/MarcoPoloResearchLab/bookworm/internal/users"
)

// Status is the reading state of a book in a user's den.
type Status int

const (
	StatusBacklog Status = iota
	StatusReading
	StatusPostponed
	StatusCompleted
)

// Valid reports whether s is one of the known reading states.
func (s Status) Valid() bool {
	return s >= StatusBacklog && s <= StatusCompleted
}

func (s Status) String() string {
	switch s {
	case StatusBacklog:
		return "backlog"
	case StatusReading:
		return "reading"
	case StatusPostponed:
		return "postponed"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Entry records one book in one user's reading list.
type Entry struct {
	UserID      int64      `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	BookID      string     `gorm:"column:book_id;primaryKey;size:64"`
	StartDate   *time.Time `gorm:"column:start_date"`
	FinishDate  *time.Time `gorm:"column:finish_date"`
	CurrentPage *int       `gorm:"column:current_page"`
	Status      Status     `gorm:"column:status;not null;default:0"`

	User users.User `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
	Book books.Book `gorm:"foreignKey:BookID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName binds Entry to the reading log join table.
func (Entry) TableName() string {
	return "users_books"
}

// EntryUpdate merges into an Entry; nil fields keep their stored value.
type EntryUpdate struct {
	StartDate   *time.Time
	FinishDate  *time.Time
	CurrentPage *int
	Status      *Status
}
