package clubs

import (
	"time"

	"github.com/MarcoPoloResearchLab/bookworm/internal/books"
	"github.com/MarcoPoloResearchLab/bookworm/internal/users"
)

// MembershipStatus is the state of a user within a club.
type MembershipStatus int

const (
	StatusOwner    MembershipStatus = 1
	StatusMember   MembershipStatus = 2
	StatusInvited  MembershipStatus = 3
	StatusRejected MembershipStatus = 4
)

// GrantsAccess reports whether the status lets the user see club content.
func (s MembershipStatus) GrantsAccess() bool {
	return s == StatusOwner || s == StatusMember
}

func (s MembershipStatus) String() string {
	switch s {
	case StatusOwner:
		return "owner"
	case StatusMember:
		return "member"
	case StatusInvited:
		return "invited"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

const maxClubNameLength = 100

// Club is a named reading group.
type Club struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name        string    `gorm:"column:name;size:100;not null;uniqueIndex:idx_clubs_name"`
	Description *string   `gorm:"column:description;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName binds Club to the clubs table.
func (Club) TableName() string {
	return "clubs"
}

// Membership links a user to a club. Each club has exactly one owner row.
type Membership struct {
	ClubID   int64            `gorm:"column:club_id;primaryKey;autoIncrement:false"`
	MemberID int64            `gorm:"column:member_id;primaryKey;autoIncrement:false"`
	Status   MembershipStatus `gorm:"column:status;not null;index:idx_clubs_users_status"`

	Club   Club       `gorm:"foreignKey:ClubID;references:ID;constraint:OnDelete:CASCADE"`
	Member users.User `gorm:"foreignKey:MemberID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName binds Membership to the clubs_users join table.
func (Membership) TableName() string {
	return "clubs_users"
}

// ClubBook lists a book in a club.
type ClubBook struct {
	ClubID  int64     `gorm:"column:club_id;primaryKey;autoIncrement:false"`
	BookID  string    `gorm:"column:book_id;primaryKey;size:64"`
	AddedAt time.Time `gorm:"column:added_at;autoCreateTime"`

	Club Club       `gorm:"foreignKey:ClubID;references:ID;constraint:OnDelete:CASCADE"`
	Book books.Book `gorm:"foreignKey:BookID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName binds ClubBook to the clubs_books join table.
func (ClubBook) TableName() string {
	return "clubs_books"
}

// ClubUpdate is a partial club edit; nil fields keep their stored value.
type ClubUpdate struct {
	Name        *string
	Description *string
}

// UserClubs groups a user's clubs by membership status.
type UserClubs struct {
	Owned   []Club
	Member  []Club
	Invited []Club
}

// Details is the club page: the club, its owner and every membership ordered by status.
type Details struct {
	Club        Club
	Owner       users.User
	Memberships []Membership
}

// BookClubs splits the user's accessible clubs by whether they already list a book.
type BookClubs struct {
	Included []Club
	Choices  []Club
}
