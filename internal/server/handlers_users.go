package server

import (
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/bookworm/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginRequestPayload struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type changePasswordPayload struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=72"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request users.SignupRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.writeBadRequest(c, "invalid_request")
		return
	}
	user, err := h.users.Signup(c.Request.Context(), request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.startSession(c, http.StatusCreated, user)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if !h.bindJSON(c, &request) {
		return
	}
	user, err := h.users.Authenticate(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.startSession(c, http.StatusOK, user)
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.validator.CookieName(), "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) startSession(c *gin.Context, status int, user users.User) {
	token, expiresAt, err := h.sessions.IssueSessionToken(user.ID, user.Username)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Int64("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	maxAge := int(time.Until(expiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.validator.CookieName(), token, maxAge, "/", "", false, true)
	c.JSON(status, sessionPayload{
		User:      newUserPayload(user),
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt.Unix(),
	})
}

func (h *httpHandler) handleCurrentUser(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserPayload(user))
}

func (h *httpHandler) handleUpdateUser(c *gin.Context) {
	var update users.UserUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		h.writeBadRequest(c, "invalid_request")
		return
	}
	user, err := h.users.UpdateInfo(c.Request.Context(), currentUserID(c), update)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserPayload(user))
}

func (h *httpHandler) handleChangePassword(c *gin.Context) {
	var request changePasswordPayload
	if !h.bindJSON(c, &request) {
		return
	}
	if _, err := h.users.ChangePassword(c.Request.Context(), currentUserID(c), request.CurrentPassword, request.NewPassword); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleUserSearch(c *gin.Context) {
	found, err := h.users.Search(c.Request.Context(), c.Query("q"), intQuery(c, "limit", 0))
	if err != nil {
		h.writeError(c, err)
		return
	}
	results := make([]userPayload, 0, len(found))
	for _, user := range found {
		results = append(results, newPublicUserPayload(user))
	}
	c.JSON(http.StatusOK, gin.H{"users": results})
}
