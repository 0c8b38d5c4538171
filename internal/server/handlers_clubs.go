package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/bookworm/internal/clubs"
	"github.com/MarcoPoloResearchLab/bookworm/internal/forum"
	"github.com/gin-gonic/gin"
)

const (
	inviteResponseAccept = "accept"
	inviteResponseReject = "reject"
)

type clubRequestPayload struct {
	Name        string  `json:"name" validate:"notblank,max=100"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

type clubUpdatePayload struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

type invitePayload struct {
	Username string `json:"username" validate:"notblank"`
}

type inviteResponsePayload struct {
	Response string `json:"response" validate:"required,oneof=accept reject"`
}

type messageRequestPayload struct {
	Message string `json:"message" validate:"notblank,max=4000"`
}

func (h *httpHandler) clubIDParam(c *gin.Context) (int64, bool) {
	clubID, ok := int64Param(c, "clubID")
	if !ok {
		h.writeBadRequest(c, "invalid_club_id")
	}
	return clubID, ok
}

func (h *httpHandler) handleListClubs(c *gin.Context) {
	grouped, err := h.clubs.ListForUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"owned":   newClubPayloads(grouped.Owned),
		"member":  newClubPayloads(grouped.Member),
		"invited": newClubPayloads(grouped.Invited),
	})
}

func (h *httpHandler) handleCreateClub(c *gin.Context) {
	var request clubRequestPayload
	if !h.bindJSON(c, &request) {
		return
	}
	club, err := h.clubs.CreateClub(c.Request.Context(), request.Name, request.Description, currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newClubPayload(club))
}

func (h *httpHandler) handleClubDetails(c *gin.Context) {
	clubID, ok := h.clubIDParam(c)
	if !ok {
		return
	}
	details, err := h.clubs.ClubDetails(c.Request.Context(), currentUserID(c), clubID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	memberships := make([]membershipPayload, 0, len(details.Memberships))
	for _, membership := range details.Memberships {
		memberships = append(memberships, newMembershipPayload(membership))
	}
	c.JSON(http.StatusOK, clubDetailsPayload{
		Club:        newClubPayload(details.Club),
		Owner:       newPublicUserPayload(details.Owner),
		Memberships: memberships,
	})
}

func (h *httpHandler) handleUpdateClub(c *gin.Context) {
	clubID, ok := h.clubIDParam(c)
	if !ok {
		return
	}
	var request clubUpdatePayload
	if !h.bindJSON(c, &request) {
		return
	}
	club, err := h.clubs.UpdateClub(c.Request.Context(), currentUserID(c), clubID, clubs.ClubUpdate{
		Name:        request.Name,
		Description: request.Description,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newClubPayload(club))
}

func (h *httpHandler) handleDeleteClub(c *gin.Context) {
	clubID, ok := h.clubIDParam(c)
	if !ok {
		return
	}
	if err := h.clubs.DeleteClub(c.Request.Context(), currentUserID(c), clubID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleClubBooks(c *gin.Context) {
	clubID, ok := h.clubIDParam(c)
	if !ok {
		return
	}
	list, err := h.clubs.ListBooks(c.Request.Context(), currentUserID(c), clubID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": newBookPayloads(list)})
}

func (h *httpHandler) handleInviteMember(c *gin.Context) {
	clubID, ok := h.clubIDParam(c)
	if !ok {
		return
	}
	var request invitePayload
	if !h.bindJSON(c, &request) {
		return
	}
	membership, err := h.clubs.InviteByUsername(c.Request.Context(), currentUserID(c), clubID, request.Username)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newMembershipPayload(membership))
}

func (h *httpHandler) handleRemoveMember(c *gin.Context) {
	clubID, ok := h.clubIDParam(c)
	if !ok {
		return
	}
	if err := h.clubs.RemoveMember(c.Request.Context(), currentUserID(c), clubID, c.Param("username")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleInviteResponse(c *gin.Context) {
	clubID, ok := h.clubIDParam(c)
	if !ok {
		return
	}
	var request inviteResponsePayload
	if !h.bindJSON(c, &request) {
		return
	}

	ctx := c.Request.Context()
	observed, err := h.clubs.GetMembership(ctx, clubID, currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	var membership clubs.Membership
	switch request.Response {
	case inviteResponseAccept:
		membership, err = h.clubs.AcceptInvite(ctx, observed)
	case inviteResponseReject:
		membership, err = h.clubs.RejectInvite(ctx, observed)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newMembershipPayload(membership))
}

func (h *httpHandler) handleListMessages(c *gin.Context) {
	clubID, ok := h.clubIDParam(c)
	if !ok {
		return
	}
	page, err := h.forum.ListMessages(c.Request.Context(), clubID, currentUserID(c),
		intQuery(c, "offset", 0), intQuery(c, "limit", forum.DefaultPageSize))
	if err != nil {
		h.writeError(c, err)
		return
	}
	messages := make([]messagePayload, 0, len(page.Messages))
	for _, message := range page.Messages {
		messages = append(messages, newMessagePayload(message))
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"offset":   page.Offset,
		"limit":    page.Limit,
		"has_more": page.HasMore,
	})
}

func (h *httpHandler) handleAddMessage(c *gin.Context) {
	clubID, ok := h.clubIDParam(c)
	if !ok {
		return
	}
	var request messageRequestPayload
	if !h.bindJSON(c, &request) {
		return
	}
	message, err := h.forum.AddMessage(c.Request.Context(), clubID, currentUserID(c), request.Message)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newMessagePayload(message))
}

func (h *httpHandler) handleUpdateMessage(c *gin.Context) {
	clubID, ok := h.clubIDParam(c)
	if !ok {
		return
	}
	messageID, ok := int64Param(c, "messageID")
	if !ok {
		h.writeBadRequest(c, "invalid_message_id")
		return
	}
	var request messageRequestPayload
	if !h.bindJSON(c, &request) {
		return
	}
	message, err := h.forum.UpdateMessage(c.Request.Context(), clubID, messageID, currentUserID(c), request.Message)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newMessagePayload(message))
}

func (h *httpHandler) handleDeleteMessage(c *gin.Context) {
	clubID, ok := h.clubIDParam(c)
	if !ok {
		return
	}
	messageID, ok := int64Param(c, "messageID")
	if !ok {
		h.writeBadRequest(c, "invalid_message_id")
		return
	}
	if err := h.forum.DeleteMessage(c.Request.Context(), clubID, messageID, currentUserID(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
