package clubs

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/bookworm/internal/apperr"
	"github.com/MarcoPoloResearchLab/bookworm/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opEnrolUser        = "clubs.enrol_user"
	opInviteByUsername = "clubs.invite_by_username"
	opGetMembership    = "clubs.get_membership"
	opAcceptInvite     = "clubs.accept_invite"
	opRejectInvite     = "clubs.reject_invite"
	opRemoveMembership = "clubs.remove_membership"
	opRemoveMember     = "clubs.remove_member"
	opRequireAccess    = "clubs.require_access"
	opRequireOwner     = "clubs.require_owner"
	queryMembershipKey = "club_id = ? AND member_id = ?"
)

// EnrolUser invites memberID into clubID.
func (s *Service) EnrolUser(ctx context.Context, clubID, memberID int64) (Membership, error) {
	var membership Membership
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		membership, err = enrol(tx, opEnrolUser, clubID, memberID)
		return err
	})
	if txErr != nil {
		if !apperr.IsRejection(txErr) {
			s.logError(opEnrolUser, "transaction_failed", txErr, zap.Int64(fieldClubID, clubID), zap.Int64(fieldUserID, memberID))
		}
		return Membership{}, txErr
	}
	return membership, nil
}

// InviteByUsername lets a club member invite another user by username.
func (s *Service) InviteByUsername(ctx context.Context, requesterID, clubID int64, username string) (Membership, error) {
	var membership Membership
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := requireAccess(tx, opInviteByUsername, requesterID, clubID); err != nil {
			return err
		}
		invitee, err := userByUsername(tx, opInviteByUsername, username)
		if err != nil {
			return err
		}
		membership, err = enrol(tx, opInviteByUsername, clubID, invitee.ID)
		if err != nil {
			return err
		}
		membership.Member = invitee
		return nil
	})
	if txErr != nil {
		if !apperr.IsRejection(txErr) {
			s.logError(opInviteByUsername, "transaction_failed", txErr, zap.Int64(fieldClubID, clubID), zap.Int64(fieldUserID, requesterID))
		}
		return Membership{}, txErr
	}
	return membership, nil
}

// GetMembership returns the membership row of memberID in clubID.
func (s *Service) GetMembership(ctx context.Context, clubID, memberID int64) (Membership, error) {
	membership, err := findMembership(s.db.WithContext(ctx), opGetMembership, clubID, memberID)
	if err != nil && !apperr.IsRejection(err) {
		s.logError(opGetMembership, "query_failed", err, zap.Int64(fieldClubID, clubID), zap.Int64(fieldUserID, memberID))
	}
	return membership, err
}

// AcceptInvite moves the observed non-owner membership to member.
func (s *Service) AcceptInvite(ctx context.Context, observed Membership) (Membership, error) {
	return s.transition(ctx, opAcceptInvite, observed, StatusMember)
}

// RejectInvite moves the observed non-owner membership to rejected.
func (s *Service) RejectInvite(ctx context.Context, observed Membership) (Membership, error) {
	return s.transition(ctx, opRejectInvite, observed, StatusRejected)
}

// transition swaps the observed status for target. The UPDATE only matches while the
// row still holds the observed status, so the loser of two concurrent transitions
// gets IllegalTransition. Owner rows never match.
func (s *Service) transition(ctx context.Context, operation string, observed Membership, target MembershipStatus) (Membership, error) {
	clubID, memberID := observed.ClubID, observed.MemberID
	var membership Membership
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Membership{}).
			Where(queryMembershipKey+" AND status = ? AND status <> ?", clubID, memberID, observed.Status, StatusOwner).
			Update("status", target)
		if result.Error != nil {
			return apperr.Internal(operation, "membership_update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			current, err := findMembership(tx, operation, clubID, memberID)
			if err != nil {
				return err
			}
			if current.Status == StatusOwner {
				return apperr.Reject(operation, "owner_transition", apperr.ErrIllegalTransition)
			}
			return apperr.Reject(operation, "status_changed", apperr.ErrIllegalTransition)
		}
		membership = Membership{ClubID: clubID, MemberID: memberID, Status: target}
		return nil
	})
	if txErr != nil {
		if !apperr.IsRejection(txErr) {
			s.logError(operation, "transaction_failed", txErr, zap.Int64(fieldClubID, clubID), zap.Int64(fieldUserID, memberID))
		}
		return Membership{}, txErr
	}
	return membership, nil
}

// RemoveMembership deletes a non-owner membership.
func (s *Service) RemoveMembership(ctx context.Context, clubID, memberID int64) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return removeMembership(tx, opRemoveMembership, clubID, memberID)
	})
	if txErr != nil && !apperr.IsRejection(txErr) {
		s.logError(opRemoveMembership, "transaction_failed", txErr, zap.Int64(fieldClubID, clubID), zap.Int64(fieldUserID, memberID))
	}
	return txErr
}

// RemoveMember handles both leaving and kicking. A user may remove their own
// non-owner membership; the owner may remove anyone else.
func (s *Service) RemoveMember(ctx context.Context, requesterID, clubID int64, username string) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := userByUsername(tx, opRemoveMember, username)
		if err != nil {
			return err
		}
		if target.ID != requesterID {
			if _, err := requireOwner(tx, opRemoveMember, requesterID, clubID); err != nil {
				return err
			}
		}
		return removeMembership(tx, opRemoveMember, clubID, target.ID)
	})
	if txErr != nil && !apperr.IsRejection(txErr) {
		s.logError(opRemoveMember, "transaction_failed", txErr, zap.Int64(fieldClubID, clubID), zap.Int64(fieldUserID, requesterID))
	}
	return txErr
}

// RequireClubAccess returns the user's membership when it grants access to club content.
func (s *Service) RequireClubAccess(ctx context.Context, userID, clubID int64) (Membership, error) {
	membership, err := requireAccess(s.db.WithContext(ctx), opRequireAccess, userID, clubID)
	if err != nil && !apperr.IsRejection(err) {
		s.logError(opRequireAccess, "query_failed", err, zap.Int64(fieldClubID, clubID), zap.Int64(fieldUserID, userID))
	}
	return membership, err
}

// RequireClubOwner returns the user's membership when the user owns the club.
func (s *Service) RequireClubOwner(ctx context.Context, userID, clubID int64) (Membership, error) {
	membership, err := requireOwner(s.db.WithContext(ctx), opRequireOwner, userID, clubID)
	if err != nil && !apperr.IsRejection(err) {
		s.logError(opRequireOwner, "query_failed", err, zap.Int64(fieldClubID, clubID), zap.Int64(fieldUserID, userID))
	}
	return membership, err
}

func enrol(tx *gorm.DB, operation string, clubID, memberID int64) (Membership, error) {
	if err := requireClub(tx, operation, clubID); err != nil {
		return Membership{}, err
	}
	membership := Membership{ClubID: clubID, MemberID: memberID, Status: StatusInvited}
	result := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&membership)
	if result.Error != nil {
		if apperr.IsForeignKeyViolation(result.Error) {
			return Membership{}, apperr.New(operation, "user_not_found", apperr.ErrNotFound, result.Error)
		}
		if apperr.IsDuplicateKey(result.Error) {
			return Membership{}, apperr.New(operation, "already_member", apperr.ErrAlreadyMember, result.Error)
		}
		return Membership{}, apperr.Internal(operation, "membership_insert_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return Membership{}, apperr.Reject(operation, "already_member", apperr.ErrAlreadyMember)
	}
	return membership, nil
}

func removeMembership(tx *gorm.DB, operation string, clubID, memberID int64) error {
	result := tx.Where(queryMembershipKey+" AND status <> ?", clubID, memberID, StatusOwner).Delete(&Membership{})
	if result.Error != nil {
		return apperr.Internal(operation, "membership_delete_failed", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	if _, err := findMembership(tx, operation, clubID, memberID); err != nil {
		return err
	}
	return apperr.Reject(operation, "owner_removal", apperr.ErrIllegalTransition)
}

func requireClub(tx *gorm.DB, operation string, clubID int64) error {
	var count int64
	if err := tx.Model(&Club{}).Where(queryByID, clubID).Count(&count).Error; err != nil {
		return apperr.Internal(operation, "club_select_failed", err)
	}
	if count == 0 {
		return apperr.Reject(operation, "club_not_found", apperr.ErrNotFound)
	}
	return nil
}

func findMembership(tx *gorm.DB, operation string, clubID, memberID int64) (Membership, error) {
	var membership Membership
	err := tx.Where(queryMembershipKey, clubID, memberID).Take(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Membership{}, apperr.Reject(operation, "membership_not_found", apperr.ErrNotFound)
	}
	if err != nil {
		return Membership{}, apperr.Internal(operation, "membership_select_failed", err)
	}
	return membership, nil
}

func requireAccess(tx *gorm.DB, operation string, userID, clubID int64) (Membership, error) {
	if err := requireClub(tx, operation, clubID); err != nil {
		return Membership{}, err
	}
	membership, err := findMembership(tx, operation, clubID, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return Membership{}, apperr.Reject(operation, "not_a_member", apperr.ErrAccessDenied)
	}
	if err != nil {
		return Membership{}, err
	}
	if !membership.Status.GrantsAccess() {
		return Membership{}, apperr.Reject(operation, "membership_pending", apperr.ErrAccessDenied)
	}
	return membership, nil
}

func requireOwner(tx *gorm.DB, operation string, userID, clubID int64) (Membership, error) {
	membership, err := requireAccess(tx, operation, userID, clubID)
	if err != nil {
		return Membership{}, err
	}
	if membership.Status != StatusOwner {
		return Membership{}, apperr.Reject(operation, "not_owner", apperr.ErrAccessDenied)
	}
	return membership, nil
}

func userByUsername(tx *gorm.DB, operation, username string) (users.User, error) {
	var user users.User
	err := tx.Where("username = ?", username).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return users.User{}, apperr.Reject(operation, "user_not_found", apperr.ErrNotFound)
	}
	if err != nil {
		return users.User{}, apperr.Internal(operation, "user_select_failed", err)
	}
	return user, nil
}
