package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/bookworm/internal/catalog"
	"github.com/MarcoPoloResearchLab/bookworm/internal/comments"
	"github.com/MarcoPoloResearchLab/bookworm/internal/readinglog"
	"github.com/gin-gonic/gin"
)

// BookCatalog is the external book search backing /search and /books/:bookID.
type BookCatalog interface {
	Search(ctx context.Context, title string) ([]catalog.Volume, error)
	Fetch(ctx context.Context, volumeID string) (catalog.Volume, error)
}

type commentRequestPayload struct {
	Comment *string  `json:"comment"`
	Rating  *float64 `json:"rating"`
	Domain  *int     `json:"domain"`
}

type addBookToClubPayload struct {
	ClubID int64 `json:"club_id" validate:"required,gt=0"`
}

type addToDenPayload struct {
	BookID string `json:"book_id" validate:"notblank,max=64"`
}

type denUpdatePayload struct {
	StartDate   *string `json:"start_date"`
	FinishDate  *string `json:"finish_date"`
	CurrentPage *int    `json:"current_page"`
	Status      *int    `json:"status"`
}

func (h *httpHandler) handleCatalogSearch(c *gin.Context) {
	volumes, err := h.catalog.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": volumes})
}

func (h *httpHandler) handleCatalogBook(c *gin.Context) {
	volume, err := h.catalog.Fetch(c.Request.Context(), c.Param("bookID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, volume)
}

func (h *httpHandler) handlePublicComments(c *gin.Context) {
	public, err := h.comments.ListPublicForBook(c.Request.Context(), c.Param("bookID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	payloads := make([]commentPayload, 0, len(public))
	for _, entry := range public {
		payload := newCommentPayload(entry.Comment)
		payload.Author = entry.AuthorName
		payload.Username = entry.AuthorUsername
		payloads = append(payloads, payload)
	}
	c.JSON(http.StatusOK, gin.H{"comments": payloads})
}

func (h *httpHandler) handleUpsertComment(c *gin.Context) {
	var request commentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.writeBadRequest(c, "invalid_request")
		return
	}
	ctx := c.Request.Context()
	book, err := h.books.Ensure(ctx, c.Param("bookID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	input := comments.CommentInput{Comment: request.Comment, Rating: request.Rating}
	if request.Domain != nil {
		domain := comments.Domain(*request.Domain)
		input.Domain = &domain
	}
	comment, err := h.comments.Upsert(ctx, currentUserID(c), book.ID, input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCommentPayload(comment))
}

func (h *httpHandler) handleOwnComment(c *gin.Context) {
	comment, err := h.comments.GetForUser(c.Request.Context(), currentUserID(c), c.Param("bookID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCommentPayload(comment))
}

func (h *httpHandler) handleBookClubs(c *gin.Context) {
	view, err := h.clubs.BookClubs(c.Request.Context(), currentUserID(c), c.Param("bookID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"included": newClubPayloads(view.Included),
		"choices":  newClubPayloads(view.Choices),
	})
}

func (h *httpHandler) handleAddBookToClub(c *gin.Context) {
	var request addBookToClubPayload
	if !h.bindJSON(c, &request) {
		return
	}
	ctx := c.Request.Context()
	userID := currentUserID(c)
	if _, err := h.clubs.RequireClubAccess(ctx, userID, request.ClubID); err != nil {
		h.writeError(c, err)
		return
	}
	book, err := h.books.Ensure(ctx, c.Param("bookID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if _, err := h.clubs.AddBook(ctx, userID, request.ClubID, book.ID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"book": newBookPayload(book), "club_id": request.ClubID})
}

func (h *httpHandler) handleRemoveBookFromClub(c *gin.Context) {
	clubID, ok := int64Param(c, "clubID")
	if !ok {
		h.writeBadRequest(c, "invalid_club_id")
		return
	}
	if err := h.clubs.RemoveBook(c.Request.Context(), currentUserID(c), clubID, c.Param("bookID")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDen(c *gin.Context) {
	entries, err := h.readingLog.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	payloads := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, newEntryPayload(entry))
	}
	c.JSON(http.StatusOK, gin.H{"books": payloads})
}

func (h *httpHandler) handleAddToDen(c *gin.Context) {
	var request addToDenPayload
	if !h.bindJSON(c, &request) {
		return
	}
	ctx := c.Request.Context()
	book, err := h.books.Ensure(ctx, request.BookID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	entry, err := h.readingLog.Add(ctx, currentUserID(c), book.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	entry.Book = book
	c.JSON(http.StatusCreated, newEntryPayload(entry))
}

func (h *httpHandler) handleDenEntry(c *gin.Context) {
	entry, err := h.readingLog.Get(c.Request.Context(), currentUserID(c), c.Param("bookID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newEntryPayload(entry))
}

func (h *httpHandler) handleUpdateDenEntry(c *gin.Context) {
	var request denUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.writeBadRequest(c, "invalid_request")
		return
	}
	update := readinglog.EntryUpdate{CurrentPage: request.CurrentPage}
	var ok bool
	if update.StartDate, ok = parseDate(request.StartDate); !ok {
		h.writeBadRequest(c, "invalid_start_date")
		return
	}
	if update.FinishDate, ok = parseDate(request.FinishDate); !ok {
		h.writeBadRequest(c, "invalid_finish_date")
		return
	}
	if request.Status != nil {
		status := readinglog.Status(*request.Status)
		update.Status = &status
	}

	ctx := c.Request.Context()
	userID := currentUserID(c)
	if _, err := h.readingLog.UpdateInfo(ctx, userID, c.Param("bookID"), update); err != nil {
		h.writeError(c, err)
		return
	}
	entry, err := h.readingLog.Get(ctx, userID, c.Param("bookID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newEntryPayload(entry))
}

func (h *httpHandler) handleRemoveFromDen(c *gin.Context) {
	if err := h.readingLog.Remove(c.Request.Context(), currentUserID(c), c.Param("bookID")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// parseDate accepts YYYY-MM-DD or RFC 3339. A nil or empty input yields nil.
func parseDate(raw *string) (*time.Time, bool) {
	if raw == nil {
		return nil, true
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return nil, true
	}
	for _, layout := range []string{dateLayout, time.RFC3339} {
		if parsed, err := time.Parse(layout, value); err == nil {
			utc := parsed.UTC()
			return &utc, true
		}
	}
	return nil, false
}
