package clubs

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
	opServiceNew  = "clubs.service.new"
	opCreateClub  = "clubs.create"
	opUpdateClub  = "clubs.update"
	opDeleteClub  = "clubs.delete"
	opListForUser = "clubs.list_for_user"
	opClubDetails = "clubs.details"
	fieldClubID   = "club_id"
	fieldUserID   = "user_id"
	fieldBookID   = "book_id"
	queryByID     = "id = ?"
	queryByClubID = "club_id = ?"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceConfig describes the dependencies of the club registry.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service owns clubs, their memberships and their book lists. It is the
// authorization source for every club-scoped action.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the club registry.
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

// CreateClub registers a club and makes ownerID its owner in the same transaction.
func (s *Service) CreateClub(ctx context.Context, name string, description *string, ownerID int64) (Club, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxClubNameLength {
		return Club{}, apperr.Reject(opCreateClub, "invalid_name", apperr.ErrInvalidInput)
	}

	club := Club{Name: name, Description: copyString(description)}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := nameTaken(tx, name, 0)
		if err != nil {
			return apperr.Internal(opCreateClub, "name_lookup_failed", err)
		}
		if taken {
			return apperr.Reject(opCreateClub, "duplicate_name", apperr.ErrDuplicateName)
		}
		if err := tx.Create(&club).Error; err != nil {
			if apperr.IsDuplicateKey(err) {
				return apperr.New(opCreateClub, "duplicate_name", apperr.ErrDuplicateName, err)
			}
			return apperr.Internal(opCreateClub, "club_insert_failed", err)
		}
		owner := Membership{ClubID: club.ID, MemberID: ownerID, Status: StatusOwner}
		if err := tx.Omit(clause.Associations).Create(&owner).Error; err != nil {
			if apperr.IsForeignKeyViolation(err) {
				return apperr.New(opCreateClub, "owner_not_found", apperr.ErrNotFound, err)
			}
			return apperr.Internal(opCreateClub, "owner_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		if !apperr.IsRejection(txErr) {
			s.logError(opCreateClub, "transaction_failed", txErr, zap.Int64(fieldUserID, ownerID))
		}
		return Club{}, txErr
	}
	return club, nil
}

// UpdateClub renames or redescribes a club. Only the owner may edit it.
func (s *Service) UpdateClub(ctx context.Context, requesterID, clubID int64, update ClubUpdate) (Club, error) {
	var club Club
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := requireOwner(tx, opUpdateClub, requesterID, clubID); err != nil {
			return err
		}
		if err := tx.Where(queryByID, clubID).Take(&club).Error; err != nil {
			return apperr.Internal(opUpdateClub, "club_select_failed", err)
		}

		changes := map[string]interface{}{}
		if update.Name != nil {
			name := strings.TrimSpace(*update.Name)
			if name == "" || len(name) > maxClubNameLength {
				return apperr.Reject(opUpdateClub, "invalid_name", apperr.ErrInvalidInput)
			}
			if name != club.Name {
				taken, err := nameTaken(tx, name, clubID)
				if err != nil {
					return apperr.Internal(opUpdateClub, "name_lookup_failed", err)
				}
				if taken {
					return apperr.Reject(opUpdateClub, "duplicate_name", apperr.ErrDuplicateName)
				}
				club.Name = name
				changes["name"] = name
			}
		}
		if update.Description != nil {
			club.Description = copyString(update.Description)
			changes["description"] = *update.Description
		}
		if len(changes) == 0 {
			return nil
		}
		if err := tx.Model(&Club{}).Where(queryByID, clubID).Updates(changes).Error; err != nil {
			if apperr.IsDuplicateKey(err) {
				return apperr.New(opUpdateClub, "duplicate_name", apperr.ErrDuplicateName, err)
			}
			return apperr.Internal(opUpdateClub, "club_update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		if !apperr.IsRejection(txErr) {
			s.logError(opUpdateClub, "transaction_failed", txErr, zap.Int64(fieldClubID, clubID))
		}
		return Club{}, txErr
	}
	return club, nil
}

// DeleteClub removes a club together with its messages, memberships and book list.
// Only the owner may delete it.
func (s *Service) DeleteClub(ctx context.Context, requesterID, clubID int64) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := requireOwner(tx, opDeleteClub, requesterID, clubID); err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM messages WHERE club_id = ?", clubID).Error; err != nil {
			return apperr.Internal(opDeleteClub, "messages_delete_failed", err)
		}
		if err := tx.Where(queryByClubID, clubID).Delete(&Membership{}).Error; err != nil {
			return apperr.Internal(opDeleteClub, "memberships_delete_failed", err)
		}
		if err := tx.Where(queryByClubID, clubID).Delete(&ClubBook{}).Error; err != nil {
			return apperr.Internal(opDeleteClub, "club_books_delete_failed", err)
		}
		if err := tx.Where(queryByID, clubID).Delete(&Club{}).Error; err != nil {
			return apperr.Internal(opDeleteClub, "club_delete_failed", err)
		}
		return nil
	})
	if txErr != nil && !apperr.IsRejection(txErr) {
		s.logError(opDeleteClub, "transaction_failed", txErr, zap.Int64(fieldClubID, clubID))
	}
	return txErr
}

// ListForUser groups the user's clubs into owned, member and invited.
func (s *Service) ListForUser(ctx context.Context, userID int64) (UserClubs, error) {
	var memberships []Membership
	err := s.db.WithContext(ctx).
		Joins("Club").
		Where("clubs_users.member_id = ?", userID).
		Order(`"Club"."name" ASC`).
		Find(&memberships).Error
	if err != nil {
		s.logError(opListForUser, "query_failed", err, zap.Int64(fieldUserID, userID))
		return UserClubs{}, apperr.Internal(opListForUser, "query_failed", err)
	}

	grouped := UserClubs{Owned: []Club{}, Member: []Club{}, Invited: []Club{}}
	for _, membership := range memberships {
		switch membership.Status {
		case StatusOwner:
			grouped.Owned = append(grouped.Owned, membership.Club)
		case StatusMember:
			grouped.Member = append(grouped.Member, membership.Club)
		case StatusInvited:
			grouped.Invited = append(grouped.Invited, membership.Club)
		}
	}
	return grouped, nil
}

// ClubDetails returns the club page for a user with access to it.
func (s *Service) ClubDetails(ctx context.Context, userID, clubID int64) (Details, error) {
	var details Details
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := requireAccess(tx, opClubDetails, userID, clubID); err != nil {
			return err
		}
		if err := tx.Where(queryByID, clubID).Take(&details.Club).Error; err != nil {
			return apperr.Internal(opClubDetails, "club_select_failed", err)
		}
		err := tx.Preload("Member").
			Where(queryByClubID, clubID).
			Order("status ASC, member_id ASC").
			Find(&details.Memberships).Error
		if err != nil {
			return apperr.Internal(opClubDetails, "memberships_select_failed", err)
		}
		for _, membership := range details.Memberships {
			if membership.Status == StatusOwner {
				details.Owner = membership.Member
				break
			}
		}
		return nil
	})
	if err != nil {
		if !apperr.IsRejection(err) {
			s.logError(opClubDetails, "transaction_failed", err, zap.Int64(fieldClubID, clubID))
		}
		return Details{}, err
	}
	return details, nil
}

func nameTaken(tx *gorm.DB, name string, excludeClubID int64) (bool, error) {
	var count int64
	query := tx.Model(&Club{}).Where("name = ?", name)
	if excludeClubID != 0 {
		query = query.Where("id <> ?", excludeClubID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func copyString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
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
	s.loggerOrDefault().Error("clubs service error", attrs...)
}
