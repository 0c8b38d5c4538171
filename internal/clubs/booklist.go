package clubs

import (
	"context"

	"github.com/MarcoPoloResearchLab/bookworm/internal/apperr"
	"github.com/MarcoPoloResearchLab/bookworm/internal/books"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opAddBook     = "clubs.add_book"
	opRemoveBook  = "clubs.remove_book"
	opBookClubs   = "clubs.book_clubs"
	opListBooks   = "clubs.list_books"
	queryClubBook = "club_id = ? AND book_id = ?"
)

// AddBook lists bookID in the club. Adding an already listed book succeeds without change.
func (s *Service) AddBook(ctx context.Context, requesterID, clubID int64, bookID string) (ClubBook, error) {
	entry := ClubBook{ClubID: clubID, BookID: bookID}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := requireAccess(tx, opAddBook, requesterID, clubID); err != nil {
			return err
		}
		result := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
		if result.Error != nil {
			if apperr.IsForeignKeyViolation(result.Error) {
				return apperr.New(opAddBook, "book_not_found", apperr.ErrNotFound, result.Error)
			}
			return apperr.Internal(opAddBook, "club_book_insert_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			if err := tx.Where(queryClubBook, clubID, bookID).Take(&entry).Error; err != nil {
				return apperr.Internal(opAddBook, "club_book_refetch_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		if !apperr.IsRejection(txErr) {
			s.logError(opAddBook, "transaction_failed", txErr, zap.Int64(fieldClubID, clubID), zap.String(fieldBookID, bookID))
		}
		return ClubBook{}, txErr
	}
	return entry, nil
}

// RemoveBook unlists bookID. Only the owner may remove books.
func (s *Service) RemoveBook(ctx context.Context, requesterID, clubID int64, bookID string) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := requireOwner(tx, opRemoveBook, requesterID, clubID); err != nil {
			return err
		}
		result := tx.Where(queryClubBook, clubID, bookID).Delete(&ClubBook{})
		if result.Error != nil {
			return apperr.Internal(opRemoveBook, "club_book_delete_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.Reject(opRemoveBook, "club_book_not_found", apperr.ErrNotFound)
		}
		return nil
	})
	if txErr != nil && !apperr.IsRejection(txErr) {
		s.logError(opRemoveBook, "transaction_failed", txErr, zap.Int64(fieldClubID, clubID), zap.String(fieldBookID, bookID))
	}
	return txErr
}

// BookClubs splits the clubs the user can post to by whether they already list bookID.
func (s *Service) BookClubs(ctx context.Context, userID int64, bookID string) (BookClubs, error) {
	var accessible []Club
	err := s.db.WithContext(ctx).
		Model(&Club{}).
		Select("clubs.*").
		Joins("JOIN clubs_users ON clubs_users.club_id = clubs.id").
		Where("clubs_users.member_id = ? AND clubs_users.status IN ?", userID, []MembershipStatus{StatusOwner, StatusMember}).
		Order("clubs.name ASC").
		Find(&accessible).Error
	if err != nil {
		s.logError(opBookClubs, "clubs_query_failed", err, zap.Int64(fieldUserID, userID))
		return BookClubs{}, apperr.Internal(opBookClubs, "clubs_query_failed", err)
	}

	var listedIn []int64
	err = s.db.WithContext(ctx).
		Model(&ClubBook{}).
		Where("book_id = ?", bookID).
		Pluck("club_id", &listedIn).Error
	if err != nil {
		s.logError(opBookClubs, "club_books_query_failed", err, zap.String(fieldBookID, bookID))
		return BookClubs{}, apperr.Internal(opBookClubs, "club_books_query_failed", err)
	}
	listed := make(map[int64]struct{}, len(listedIn))
	for _, clubID := range listedIn {
		listed[clubID] = struct{}{}
	}

	view := BookClubs{Included: []Club{}, Choices: []Club{}}
	for _, club := range accessible {
		if _, ok := listed[club.ID]; ok {
			view.Included = append(view.Included, club)
			continue
		}
		view.Choices = append(view.Choices, club)
	}
	return view, nil
}

// ListBooks returns the club's book list for a user with access to the club.
func (s *Service) ListBooks(ctx context.Context, userID, clubID int64) ([]books.Book, error) {
	var listed []books.Book
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := requireAccess(tx, opListBooks, userID, clubID); err != nil {
			return err
		}
		err := tx.Model(&books.Book{}).
			Select("books.*").
			Joins("JOIN clubs_books ON clubs_books.book_id = books.id").
			Where("clubs_books.club_id = ?", clubID).
			Order("clubs_books.added_at ASC, books.id ASC").
			Find(&listed).Error
		if err != nil {
			return apperr.Internal(opListBooks, "books_query_failed", err)
		}
		return nil
	})
	if err != nil {
		if !apperr.IsRejection(err) {
			s.logError(opListBooks, "transaction_failed", err, zap.Int64(fieldClubID, clubID))
		}
		return nil, err
	}
	return listed, nil
}
