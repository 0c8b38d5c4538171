package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/bookworm/internal/apperr"
	"github.com/MarcoPoloResearchLab/bookworm/internal/auth"
	"github.com/MarcoPoloResearchLab/bookworm/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionIssuer mints session tokens after a successful login.
type SessionIssuer interface {
	IssueSessionToken(userID int64, username string) (string, time.Time, error)
	TTL() time.Duration
}

// RequestValidator resolves the current user from a request.
type RequestValidator interface {
	ValidateRequest(r *http.Request) (int64, error)
	CookieName() string
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		c.Set(requestIDContextKey, requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

func requestLogMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(requestIDContextKey)),
		}
		if userID, ok := c.Get(userIDContextKey); ok {
			fields = append(fields, zap.Any("user_id", userID))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("request completed", fields...)
			return
		}
		logger.Debug("request completed", fields...)
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	userID, err := h.validator.ValidateRequest(c.Request)
	if err != nil {
		level := h.logger.Warn
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			level = h.logger.Info
		}
		level("session validation failed", zap.Error(err), zap.String("request_id", c.GetString(requestIDContextKey)))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(userIDContextKey)
}

func statusForKind(kind error) int {
	switch kind {
	case apperr.ErrDuplicateIdentity, apperr.ErrAlreadyInList, apperr.ErrDuplicateName,
		apperr.ErrAlreadyMember, apperr.ErrIllegalTransition:
		return http.StatusConflict
	case apperr.ErrInvalidCredentials:
		return http.StatusUnauthorized
	case apperr.ErrAccessDenied:
		return http.StatusForbidden
	case apperr.ErrNotFound:
		return http.StatusNotFound
	case apperr.ErrInvalidStatus, apperr.ErrInvalidRating, apperr.ErrEmptyMessage, apperr.ErrInvalidBook,
		apperr.ErrInvalidDomain, apperr.ErrInvalidProgress, apperr.ErrInvalidInput:
		return http.StatusBadRequest
	case apperr.ErrCatalogUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func kindName(kind error) string {
	return strings.ReplaceAll(kind.Error(), " ", "_")
}

// writeError maps a service error onto a status and a {"error", "code"} body.
func (h *httpHandler) writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusForKind(kind)
	h.metrics.RecordServiceError(kindName(kind))

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", apperr.CodeOf(err)),
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": "internal_error"})
		return
	}

	if apperr.IsUnavailable(err) {
		h.logger.Warn("upstream unavailable",
			zap.String("path", c.FullPath()),
			zap.String("code", apperr.CodeOf(err)),
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.Error(err),
		)
	}

	body := gin.H{"error": kindName(kind)}
	if code := apperr.CodeOf(err); code != "" {
		body["code"] = code
	}
	var fieldErrors validation.FieldErrors
	if errors.As(err, &fieldErrors) {
		body["fields"] = fieldErrors
	}
	c.JSON(status, body)
}

func (h *httpHandler) writeBadRequest(c *gin.Context, reason string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": reason})
}

// bindJSON decodes and validates the request body into payload.
func (h *httpHandler) bindJSON(c *gin.Context, payload any) bool {
	if err := c.ShouldBindJSON(payload); err != nil {
		h.writeBadRequest(c, "invalid_request")
		return false
	}
	if err := h.validate.Validate(payload); err != nil {
		var fieldErrors validation.FieldErrors
		if errors.As(err, &fieldErrors) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "fields": fieldErrors})
			return false
		}
		h.writeBadRequest(c, "invalid_request")
		return false
	}
	return true
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	value, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
