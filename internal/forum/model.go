package forum

import (
	"time"

	"github.com/MarcoPoloResearchLab/bookworm/internal/clubs"
	"github.com/MarcoPoloResearchLab/bookworm/internal/users"
)

// Message is one post in a club forum.
type Message struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ClubID    int64     `gorm:"column:club_id;not null"`
	UserID    int64     `gorm:"column:user_id;not null;index"`
	Message   string    `gorm:"column:message;type:text;not null"`
	Timestamp time.Time `gorm:"column:timestamp;not null"`

	Club   clubs.Club `gorm:"foreignKey:ClubID;references:ID;constraint:OnDelete:CASCADE"`
	Author users.User `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName binds Message to the messages table.
func (Message) TableName() string {
	return "messages"
}

// Page is a window of the forum ordered newest first.
type Page struct {
	Messages []Message
	Offset   int
	Limit    int
	HasMore  bool
}
