package readinglog

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/bookworm/internal/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew  = "readinglog.service.new"
	opAddEntry    = "readinglog.add"
	opUpdateEntry = "readinglog.update_info"
	opRemoveEntry = "readinglog.remove"
	opGetEntry    = "readinglog.get"
	opListEntries = "readinglog.list"
	fieldUserID   = "user_id"
	fieldBookID   = "book_id"
	queryEntryKey = "user_id = ? AND book_id = ?"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceConfig describes the dependencies of the reading log.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service maintains per-user reading lists.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the reading log.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// Add places bookID in the user's backlog. The book must already exist locally.
func (s *Service) Add(ctx context.Context, userID int64, bookID string) (Entry, error) {
	entry := Entry{UserID: userID, BookID: bookID, Status: StatusBacklog}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
		if result.Error != nil {
			if apperr.IsDuplicateKey(result.Error) {
				return apperr.New(opAddEntry, "already_in_list", apperr.ErrAlreadyInList, result.Error)
			}
			if apperr.IsForeignKeyViolation(result.Error) {
				return apperr.New(opAddEntry, "unknown_user_or_book", apperr.ErrNotFound, result.Error)
			}
			return apperr.Internal(opAddEntry, "entry_insert_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.Reject(opAddEntry, "already_in_list", apperr.ErrAlreadyInList)
		}
		return nil
	})
	if txErr != nil {
		if !apperr.IsRejection(txErr) {
			s.logError(opAddEntry, "transaction_failed", txErr, zap.Int64(fieldUserID, userID), zap.String(fieldBookID, bookID))
		}
		return Entry{}, txErr
	}
	return entry, nil
}

// UpdateInfo merges update into the existing entry.
func (s *Service) UpdateInfo(ctx context.Context, userID int64, bookID string, update EntryUpdate) (Entry, error) {
	if update.Status != nil && !update.Status.Valid() {
		return Entry{}, apperr.Reject(opUpdateEntry, "status_out_of_range", apperr.ErrInvalidStatus)
	}
	if update.CurrentPage != nil && *update.CurrentPage < 0 {
		return Entry{}, apperr.Reject(opUpdateEntry, "negative_page", apperr.ErrInvalidProgress)
	}

	var entry Entry
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(queryEntryKey, userID, bookID).Take(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Reject(opUpdateEntry, "entry_not_found", apperr.ErrNotFound)
		}
		if err != nil {
			return apperr.Internal(opUpdateEntry, "entry_select_failed", err)
		}

		changes := map[string]interface{}{}
		if update.StartDate != nil {
			start := update.StartDate.UTC()
			entry.StartDate = &start
			changes["start_date"] = start
		}
		if update.FinishDate != nil {
			finish := update.FinishDate.UTC()
			entry.FinishDate = &finish
			changes["finish_date"] = finish
		}
		if update.CurrentPage != nil {
			page := *update.CurrentPage
			entry.CurrentPage = &page
			changes["current_page"] = page
		}
		if update.Status != nil {
			entry.Status = *update.Status
			changes["status"] = int(entry.Status)
		}
		if entry.StartDate != nil && entry.FinishDate != nil && entry.FinishDate.Before(*entry.StartDate) {
			return apperr.Reject(opUpdateEntry, "finish_before_start", apperr.ErrInvalidProgress)
		}
		if len(changes) == 0 {
			return nil
		}
		if err := tx.Model(&Entry{}).Where(queryEntryKey, userID, bookID).Updates(changes).Error; err != nil {
			return apperr.Internal(opUpdateEntry, "entry_update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		if !apperr.IsRejection(txErr) {
			s.logError(opUpdateEntry, "transaction_failed", txErr, zap.Int64(fieldUserID, userID), zap.String(fieldBookID, bookID))
		}
		return Entry{}, txErr
	}
	return entry, nil
}

// Remove deletes the entry. The Book row is kept.
func (s *Service) Remove(ctx context.Context, userID int64, bookID string) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where(queryEntryKey, userID, bookID).Delete(&Entry{})
		if result.Error != nil {
			return apperr.Internal(opRemoveEntry, "entry_delete_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.Reject(opRemoveEntry, "entry_not_found", apperr.ErrNotFound)
		}
		return nil
	})
	if txErr != nil && !apperr.IsRejection(txErr) {
		s.logError(opRemoveEntry, "transaction_failed", txErr, zap.Int64(fieldUserID, userID), zap.String(fieldBookID, bookID))
	}
	return txErr
}

// Get loads one entry together with its book.
func (s *Service) Get(ctx context.Context, userID int64, bookID string) (Entry, error) {
	var entry Entry
	err := s.db.WithContext(ctx).Preload("Book").Where(queryEntryKey, userID, bookID).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, apperr.Reject(opGetEntry, "entry_not_found", apperr.ErrNotFound)
	}
	if err != nil {
		s.logError(opGetEntry, "query_failed", err, zap.Int64(fieldUserID, userID), zap.String(fieldBookID, bookID))
		return Entry{}, apperr.Internal(opGetEntry, "query_failed", err)
	}
	return entry, nil
}

// List returns the user's den: every entry with its book, grouped by status.
func (s *Service) List(ctx context.Context, userID int64) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Preload("Book").
		Where("user_id = ?", userID).
		Order("status ASC, book_id ASC").
		Find(&entries).Error
	if err != nil {
		s.logError(opListEntries, "query_failed", err, zap.Int64(fieldUserID, userID))
		return nil, apperr.Internal(opListEntries, "query_failed", err)
	}
	return entries, nil
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
	s.loggerOrDefault().Error("reading log service error", attrs...)
}
