package comments

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/MarcoPoloResearchLab/bookworm/internal/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew     = "comments.service.new"
	opUpsertComment  = "comments.upsert"
	opListPublic     = "comments.list_public"
	opGetUserComment = "comments.get_for_user"
	fieldUserID      = "user_id"
	fieldBookID      = "book_id"
	queryCommentKey  = "user_id = ? AND book_id = ?"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceConfig describes the dependencies of the comment store.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service stores one comment per (user, book).
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the comment store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Upsert creates the user's comment on bookID or merges input into the existing one.
// The date is reset to now on every write.
func (s *Service) Upsert(ctx context.Context, userID int64, bookID string, input CommentInput) (Comment, error) {
	if input.Rating != nil {
		rating := *input.Rating
		if math.IsNaN(rating) || rating < minRating || rating > maxRating {
			return Comment{}, apperr.Reject(opUpsertComment, "rating_out_of_range", apperr.ErrInvalidRating)
		}
	}
	if input.Domain != nil && !input.Domain.Valid() {
		return Comment{}, apperr.Reject(opUpsertComment, "domain_out_of_range", apperr.ErrInvalidDomain)
	}

	now := s.clock().UTC()
	var comment Comment
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(queryCommentKey, userID, bookID).Take(&comment).Error
		if err == nil {
			return applyCommentUpdate(tx, &comment, input, now)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Internal(opUpsertComment, "comment_select_failed", err)
		}

		comment = Comment{UserID: userID, BookID: bookID, Date: now, Domain: DomainPrivate}
		mergeCommentInput(&comment, input)
		result := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&comment)
		if result.Error != nil {
			if apperr.IsForeignKeyViolation(result.Error) {
				return apperr.New(opUpsertComment, "unknown_user_or_book", apperr.ErrNotFound, result.Error)
			}
			return apperr.Internal(opUpsertComment, "comment_insert_failed", result.Error)
		}
		if result.RowsAffected > 0 {
			return nil
		}
		// lost a race with a concurrent first write; merge into the winner
		if err := tx.Where(queryCommentKey, userID, bookID).Take(&comment).Error; err != nil {
			return apperr.Internal(opUpsertComment, "comment_refetch_failed", err)
		}
		return applyCommentUpdate(tx, &comment, input, now)
	})
	if txErr != nil {
		if !apperr.IsRejection(txErr) {
			s.logError(opUpsertComment, "transaction_failed", txErr, zap.Int64(fieldUserID, userID), zap.String(fieldBookID, bookID))
		}
		return Comment{}, txErr
	}
	return comment, nil
}

func mergeCommentInput(comment *Comment, input CommentInput) {
	if input.Comment != nil {
		text := *input.Comment
		comment.Comment = &text
	}
	if input.Rating != nil {
		rating := *input.Rating
		comment.Rating = &rating
	}
	if input.Domain != nil {
		comment.Domain = *input.Domain
	}
}

func applyCommentUpdate(tx *gorm.DB, comment *Comment, input CommentInput, now time.Time) error {
	mergeCommentInput(comment, input)
	comment.Date = now
	changes := map[string]interface{}{
		"date":    comment.Date,
		"comment": comment.Comment,
		"rating":  comment.Rating,
		"domain":  int(comment.Domain),
	}
	err := tx.Model(&Comment{}).Where(queryCommentKey, comment.UserID, comment.BookID).Updates(changes).Error
	if err != nil {
		return apperr.Internal(opUpsertComment, "comment_update_failed", err)
	}
	return nil
}

// ListPublicForBook returns the public comments on bookID, oldest first.
func (s *Service) ListPublicForBook(ctx context.Context, bookID string) ([]PublicComment, error) {
	var stored []Comment
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("book_id = ? AND domain = ?", bookID, int(DomainPublic)).
		Order("date ASC, user_id ASC").
		Find(&stored).Error
	if err != nil {
		s.logError(opListPublic, "query_failed", err, zap.String(fieldBookID, bookID))
		return nil, apperr.Internal(opListPublic, "query_failed", err)
	}
	public := make([]PublicComment, 0, len(stored))
	for _, comment := range stored {
		public = append(public, PublicComment{
			Comment:        comment,
			AuthorName:     comment.User.FirstName,
			AuthorUsername: comment.User.Username,
		})
	}
	return public, nil
}

// GetForUser returns the user's own comment on bookID regardless of domain.
func (s *Service) GetForUser(ctx context.Context, userID int64, bookID string) (Comment, error) {
	var comment Comment
	err := s.db.WithContext(ctx).Where(queryCommentKey, userID, bookID).Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Comment{}, apperr.Reject(opGetUserComment, "comment_not_found", apperr.ErrNotFound)
	}
	if err != nil {
		s.logError(opGetUserComment, "query_failed", err, zap.Int64(fieldUserID, userID), zap.String(fieldBookID, bookID))
		return Comment{}, apperr.Internal(opGetUserComment, "query_failed", err)
	}
	return comment, nil
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
	s.loggerOrDefault().Error("comments service error", attrs...)
}
