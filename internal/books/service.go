package books

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/bookworm/internal/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew  = "books.service.new"
	opGetOrCreate = "books.get_or_create"
	opGetBook     = "books.get"
	opEnsureBook  = "books.ensure"
	fieldBookID   = "book_id"
	queryBookID   = "id = ?"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingCatalog  = errors.New("catalog seed source is not configured")
	noOpLogger         = zap.NewNop()
)

// SeedSource fetches book data from the external catalog.
type SeedSource interface {
	FetchSeed(ctx context.Context, id string) (BookSeed, error)
}

// ServiceConfig describes the dependencies of the book catalog.
type ServiceConfig struct {
	Database *gorm.DB
	Catalog  SeedSource
	Logger   *zap.Logger
}

// Service is the local book catalog.
type Service struct {
	db      *gorm.DB
	catalog SeedSource
	logger  *zap.Logger
}

// NewService constructs the book catalog. Catalog may be nil; Ensure then only
// resolves books that already exist locally.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:      cfg.Database,
		catalog: cfg.Catalog,
		logger:  logger,
	}, nil
}

// GetOrCreate returns the book with the given id, creating it from seed when absent.
// A concurrent insert of the same id is resolved by re-reading the winning row.
func (s *Service) GetOrCreate(ctx context.Context, rawID string, seed BookSeed) (Book, error) {
	id, err := NewBookID(rawID)
	if err != nil {
		return Book{}, apperr.New(opGetOrCreate, "invalid_book_id", apperr.ErrInvalidBook, err)
	}

	var book Book
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(queryBookID, id.String()).Take(&book).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Internal(opGetOrCreate, "book_select_failed", err)
		}
		if strings.TrimSpace(seed.Title) == "" {
			return apperr.Reject(opGetOrCreate, "missing_title", apperr.ErrInvalidBook)
		}

		model := seed.toModel(id)
		createResult := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
		if createResult.Error != nil {
			return apperr.Internal(opGetOrCreate, "book_insert_failed", createResult.Error)
		}
		if createResult.RowsAffected > 0 {
			book = model
			return nil
		}
		if err := tx.Where(queryBookID, id.String()).Take(&book).Error; err != nil {
			return apperr.Internal(opGetOrCreate, "book_refetch_failed", err)
		}
		return nil
	})
	if txErr != nil {
		if !apperr.IsRejection(txErr) {
			s.logError(opGetOrCreate, "transaction_failed", txErr, zap.String(fieldBookID, id.String()))
		}
		return Book{}, txErr
	}
	return book, nil
}

// Get loads a book by catalog id.
func (s *Service) Get(ctx context.Context, rawID string) (Book, error) {
	id, err := NewBookID(rawID)
	if err != nil {
		return Book{}, apperr.New(opGetBook, "invalid_book_id", apperr.ErrInvalidBook, err)
	}
	var book Book
	err = s.db.WithContext(ctx).Where(queryBookID, id.String()).Take(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Book{}, apperr.Reject(opGetBook, "book_not_found", apperr.ErrNotFound)
	}
	if err != nil {
		s.logError(opGetBook, "query_failed", err, zap.String(fieldBookID, id.String()))
		return Book{}, apperr.Internal(opGetBook, "query_failed", err)
	}
	return book, nil
}

// Ensure returns the local book, seeding it from the external catalog on first reference.
func (s *Service) Ensure(ctx context.Context, rawID string) (Book, error) {
	book, err := s.Get(ctx, rawID)
	if err == nil || !errors.Is(err, apperr.ErrNotFound) {
		return book, err
	}
	if s.catalog == nil {
		return Book{}, apperr.New(opEnsureBook, "catalog_not_configured", apperr.ErrCatalogUnavailable, errMissingCatalog)
	}
	seed, err := s.catalog.FetchSeed(ctx, rawID)
	if err != nil {
		if apperr.IsRejection(err) {
			return Book{}, err
		}
		s.logError(opEnsureBook, "catalog_fetch_failed", err, zap.String(fieldBookID, rawID))
		if apperr.IsUnavailable(err) {
			return Book{}, err
		}
		return Book{}, apperr.New(opEnsureBook, "catalog_fetch_failed", apperr.ErrCatalogUnavailable, err)
	}
	return s.GetOrCreate(ctx, rawID, seed)
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
	s.loggerOrDefault().Error("books service error", attrs...)
}
