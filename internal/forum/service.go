package forum

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/bookworm/internal/apperr"
	"github.com/MarcoPoloResearchLab/bookworm/internal/clubs"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew       = "forum.service.new"
	opAddMessage       = "forum.add_message"
	opListMessages     = "forum.list_messages"
	opUpdateMessage    = "forum.update_message"
	opDeleteMessage    = "forum.delete_message"
	fieldClubID        = "club_id"
	fieldUserID        = "user_id"
	fieldMessageID     = "message_id"
	queryMessageInClub = "id = ? AND club_id = ?"

	DefaultPageSize = 20
	MaxPageSize     = 100
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingGate     = errors.New("club access gate is required")
	noOpLogger         = zap.NewNop()
)

// AccessGate authorizes club-scoped actions.
type AccessGate interface {
	RequireClubAccess(ctx context.Context, userID, clubID int64) (clubs.Membership, error)
}

// ServiceConfig describes the dependencies of the forum.
type ServiceConfig struct {
	Database *gorm.DB
	Access   AccessGate
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service is the club-scoped message log.
type Service struct {
	db     *gorm.DB
	access AccessGate
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the forum.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Access == nil {
		return nil, apperr.Internal(opServiceNew, "missing_access_gate", errMissingGate)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, access: cfg.Access, clock: clock, logger: logger}, nil
}

// AddMessage posts text to the club forum as userID.
func (s *Service) AddMessage(ctx context.Context, clubID, userID int64, text string) (Message, error) {
	if _, err := s.access.RequireClubAccess(ctx, userID, clubID); err != nil {
		return Message{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, apperr.Reject(opAddMessage, "empty_message", apperr.ErrEmptyMessage)
	}

	message := Message{
		ClubID:    clubID,
		UserID:    userID,
		Message:   text,
		Timestamp: s.clock().UTC(),
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&message).Error; err != nil {
			if apperr.IsForeignKeyViolation(err) {
				return apperr.New(opAddMessage, "club_not_found", apperr.ErrNotFound, err)
			}
			return apperr.Internal(opAddMessage, "message_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		if !apperr.IsRejection(txErr) {
			s.logError(opAddMessage, "transaction_failed", txErr, zap.Int64(fieldClubID, clubID), zap.Int64(fieldUserID, userID))
		}
		return Message{}, txErr
	}
	return message, nil
}

// ListMessages returns the messages at [offset, offset+limit) of the forum, newest first.
func (s *Service) ListMessages(ctx context.Context, clubID, userID int64, offset, limit int) (Page, error) {
	if _, err := s.access.RequireClubAccess(ctx, userID, clubID); err != nil {
		return Page{}, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	var messages []Message
	err := s.db.WithContext(ctx).
		Preload("Author").
		Where("club_id = ?", clubID).
		Order("timestamp DESC, id DESC").
		Offset(offset).
		Limit(limit + 1).
		Find(&messages).Error
	if err != nil {
		s.logError(opListMessages, "query_failed", err, zap.Int64(fieldClubID, clubID))
		return Page{}, apperr.Internal(opListMessages, "query_failed", err)
	}

	page := Page{Offset: offset, Limit: limit}
	if len(messages) > limit {
		page.HasMore = true
		messages = messages[:limit]
	}
	page.Messages = messages
	return page, nil
}

// UpdateMessage replaces the text of a message. Only its author may edit it.
func (s *Service) UpdateMessage(ctx context.Context, clubID, messageID, requesterID int64, text string) (Message, error) {
	if _, err := s.access.RequireClubAccess(ctx, requesterID, clubID); err != nil {
		return Message{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, apperr.Reject(opUpdateMessage, "empty_message", apperr.ErrEmptyMessage)
	}

	var message Message
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		message, err = authoredMessage(tx, opUpdateMessage, clubID, messageID, requesterID)
		if err != nil {
			return err
		}
		if err := tx.Model(&Message{}).Where("id = ?", messageID).Update("message", text).Error; err != nil {
			return apperr.Internal(opUpdateMessage, "message_update_failed", err)
		}
		message.Message = text
		return nil
	})
	if txErr != nil {
		if !apperr.IsRejection(txErr) {
			s.logError(opUpdateMessage, "transaction_failed", txErr, zap.Int64(fieldMessageID, messageID))
		}
		return Message{}, txErr
	}
	return message, nil
}

// DeleteMessage removes a message. Only its author may delete it.
func (s *Service) DeleteMessage(ctx context.Context, clubID, messageID, requesterID int64) error {
	if _, err := s.access.RequireClubAccess(ctx, requesterID, clubID); err != nil {
		return err
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := authoredMessage(tx, opDeleteMessage, clubID, messageID, requesterID); err != nil {
			return err
		}
		if err := tx.Where("id = ?", messageID).Delete(&Message{}).Error; err != nil {
			return apperr.Internal(opDeleteMessage, "message_delete_failed", err)
		}
		return nil
	})
	if txErr != nil && !apperr.IsRejection(txErr) {
		s.logError(opDeleteMessage, "transaction_failed", txErr, zap.Int64(fieldMessageID, messageID))
	}
	return txErr
}

func authoredMessage(tx *gorm.DB, operation string, clubID, messageID, requesterID int64) (Message, error) {
	var message Message
	err := tx.Where(queryMessageInClub, messageID, clubID).Take(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Message{}, apperr.Reject(operation, "message_not_found", apperr.ErrNotFound)
	}
	if err != nil {
		return Message{}, apperr.Internal(operation, "message_select_failed", err)
	}
	if message.UserID != requesterID {
		return Message{}, apperr.Reject(operation, "not_author", apperr.ErrAccessDenied)
	}
	return message, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("forum service error", attrs...)
}
