package server

import (
	"time"

	"github.com/MarcoPoloResearchLab/bookworm/internal/books"
	"github.com/MarcoPoloResearchLab/bookworm/internal/clubs"
	"github.com/MarcoPoloResearchLab/bookworm/internal/comments"
	"github.com/MarcoPoloResearchLab/bookworm/internal/forum"
	"github.com/MarcoPoloResearchLab/bookworm/internal/readinglog"
	"github.com/MarcoPoloResearchLab/bookworm/internal/users"
)

const dateLayout = "2006-01-02"

type userPayload struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email,omitempty"`
	ImageURL  *string `json:"image_url,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	Location  *string `json:"location,omitempty"`
}

func newUserPayload(user users.User) userPayload {
	return userPayload{
		ID:        user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		ImageURL:  user.ImageURL,
		Bio:       user.Bio,
		Location:  user.Location,
	}
}

// newPublicUserPayload omits the email address.
func newPublicUserPayload(user users.User) userPayload {
	payload := newUserPayload(user)
	payload.Email = ""
	return payload
}

type sessionPayload struct {
	User      userPayload `json:"user"`
	Token     string      `json:"token"`
	TokenType string      `json:"token_type"`
	ExpiresAt int64       `json:"expires_at"`
}

type bookPayload struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Cover       string   `json:"cover,omitempty"`
	Authors     []string `json:"authors"`
	Categories  []string `json:"categories"`
	Description string   `json:"description,omitempty"`
	PageCount   *int     `json:"page_count,omitempty"`
}

func newBookPayload(book books.Book) bookPayload {
	return bookPayload{
		ID:          book.ID,
		Title:       book.Title,
		Cover:       book.Cover,
		Authors:     book.AuthorList(),
		Categories:  book.CategoryList(),
		Description: book.Description,
		PageCount:   book.PageCount,
	}
}

func newBookPayloads(list []books.Book) []bookPayload {
	payloads := make([]bookPayload, 0, len(list))
	for _, book := range list {
		payloads = append(payloads, newBookPayload(book))
	}
	return payloads
}

type entryPayload struct {
	Book        bookPayload `json:"book"`
	Status      int         `json:"status"`
	StatusName  string      `json:"status_name"`
	StartDate   *string     `json:"start_date"`
	FinishDate  *string     `json:"finish_date"`
	CurrentPage *int        `json:"current_page"`
}

func newEntryPayload(entry readinglog.Entry) entryPayload {
	book := entry.Book
	if book.ID == "" {
		book.ID = entry.BookID
	}
	return entryPayload{
		Book:        newBookPayload(book),
		Status:      int(entry.Status),
		StatusName:  entry.Status.String(),
		StartDate:   formatDate(entry.StartDate),
		FinishDate:  formatDate(entry.FinishDate),
		CurrentPage: entry.CurrentPage,
	}
}

func formatDate(value *time.Time) *string {
	if value == nil {
		return nil
	}
	formatted := value.UTC().Format(dateLayout)
	return &formatted
}

type commentPayload struct {
	BookID   string   `json:"book_id"`
	Date     string   `json:"date"`
	Comment  *string  `json:"comment"`
	Rating   *float64 `json:"rating"`
	Domain   int      `json:"domain"`
	Author   string   `json:"author,omitempty"`
	Username string   `json:"username,omitempty"`
}

func newCommentPayload(comment comments.Comment) commentPayload {
	return commentPayload{
		BookID:  comment.BookID,
		Date:    comment.Date.UTC().Format(time.RFC3339),
		Comment: comment.Comment,
		Rating:  comment.Rating,
		Domain:  int(comment.Domain),
	}
}

type clubPayload struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

func newClubPayload(club clubs.Club) clubPayload {
	return clubPayload{ID: club.ID, Name: club.Name, Description: club.Description}
}

func newClubPayloads(list []clubs.Club) []clubPayload {
	payloads := make([]clubPayload, 0, len(list))
	for _, club := range list {
		payloads = append(payloads, newClubPayload(club))
	}
	return payloads
}

type membershipPayload struct {
	ClubID int64       `json:"club_id"`
	Member userPayload `json:"member"`
	Status int         `json:"status"`
	Role   string      `json:"role"`
}

func newMembershipPayload(membership clubs.Membership) membershipPayload {
	member := membership.Member
	if member.ID == 0 {
		member.ID = membership.MemberID
	}
	return membershipPayload{
		ClubID: membership.ClubID,
		Member: newPublicUserPayload(member),
		Status: int(membership.Status),
		Role:   membership.Status.String(),
	}
}

type clubDetailsPayload struct {
	Club        clubPayload         `json:"club"`
	Owner       userPayload         `json:"owner"`
	Memberships []membershipPayload `json:"memberships"`
}

type messagePayload struct {
	ID        int64  `json:"id"`
	ClubID    int64  `json:"club_id"`
	UserID    int64  `json:"user_id"`
	Author    string `json:"author,omitempty"`
	Username  string `json:"username,omitempty"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func newMessagePayload(message forum.Message) messagePayload {
	return messagePayload{
		ID:        message.ID,
		ClubID:    message.ClubID,
		UserID:    message.UserID,
		Author:    message.Author.DisplayName(),
		Username:  message.Author.Username,
		Message:   message.Message,
		Timestamp: message.Timestamp.UTC().Format(time.RFC3339),
	}
}
