package users

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/bookworm/internal/apperr"
	"github.com/MarcoPoloResearchLab/bookworm/internal/auth"
	"github.com/MarcoPoloResearchLab/bookworm/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew      = "users.service.new"
	opSignup          = "users.signup"
	opAuthenticate    = "users.authenticate"
	opValidateUser    = "users.validate_user"
	opUpdateInfo      = "users.update_info"
	opUpdatePassword  = "users.update_password"
	opChangePassword  = "users.change_password"
	opGetUser         = "users.get"
	opSearchUsers     = "users.search"
	fieldUserID       = "user_id"
	fieldUsername     = "username"
	defaultSearchSize = 20
	maxSearchSize     = 100

	// compared against when the username is unknown so both paths pay for one hash
	timingPlaceholder = "bookworm-timing-placeholder"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingHasher   = errors.New("password hasher is required")
	noOpLogger         = zap.NewNop()
)

// ServiceConfig describes the dependencies of the user directory.
type ServiceConfig struct {
	Database  *gorm.DB
	Hasher    auth.PasswordHasher
	Validator *validation.Validator
	Logger    *zap.Logger
}

// Service is the user directory: accounts, credentials and profiles.
type Service struct {
	db        *gorm.DB
	hasher    auth.PasswordHasher
	validator *validation.Validator
	logger    *zap.Logger

	placeholderOnce sync.Once
	placeholderHash string
}

// NewService constructs the user directory.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Hasher == nil {
		return nil, apperr.Internal(opServiceNew, "missing_hasher", errMissingHasher)
	}
	validator := cfg.Validator
	if validator == nil {
		validator = validation.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:        cfg.Database,
		hasher:    cfg.Hasher,
		validator: validator,
		logger:    logger,
	}, nil
}

// Signup creates a new account. Username and email collisions, including ones lost
// to a concurrent signup, fail with apperr.ErrDuplicateIdentity.
func (s *Service) Signup(ctx context.Context, request SignupRequest) (User, error) {
	request.Username = normalize(request.Username)
	request.Email = normalize(request.Email)
	request.FirstName = normalize(request.FirstName)
	request.LastName = normalize(request.LastName)
	if err := s.validator.Validate(request); err != nil {
		return User{}, apperr.New(opSignup, "invalid_input", apperr.ErrInvalidInput, err)
	}

	hashed, err := s.hasher.Hash(request.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmptyPassword) || errors.Is(err, auth.ErrPasswordTooLong) {
			return User{}, apperr.New(opSignup, "invalid_password", apperr.ErrInvalidInput, err)
		}
		s.logError(opSignup, "hash_failed", err)
		return User{}, apperr.Internal(opSignup, "hash_failed", err)
	}

	user := User{
		Username:  request.Username,
		Password:  hashed,
		Email:     request.Email,
		FirstName: request.FirstName,
		LastName:  request.LastName,
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&user).Error
	})
	if txErr != nil {
		if apperr.IsDuplicateKey(txErr) {
			return User{}, apperr.New(opSignup, "duplicate_identity", apperr.ErrDuplicateIdentity, txErr)
		}
		s.logError(opSignup, "user_insert_failed", txErr, zap.String(fieldUsername, request.Username))
		return User{}, apperr.Internal(opSignup, "user_insert_failed", txErr)
	}
	return user, nil
}

// ValidateUser checks password against the user's stored hash.
func (s *Service) ValidateUser(user User, password string) (User, error) {
	if user.Password == "" || !s.hasher.Verify(password, user.Password) {
		return User{}, apperr.Reject(opValidateUser, "password_mismatch", apperr.ErrInvalidCredentials)
	}
	return user, nil
}

// Authenticate resolves username and validates password.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.hasher.Verify(password, s.placeholder())
			return User{}, apperr.Reject(opAuthenticate, "unknown_username", apperr.ErrInvalidCredentials)
		}
		return User{}, err
	}
	return s.ValidateUser(user, password)
}

// GetByID loads a user by primary key.
func (s *Service) GetByID(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, apperr.Reject(opGetUser, "user_not_found", apperr.ErrNotFound)
	}
	if err != nil {
		s.logError(opGetUser, "query_failed", err, zap.Int64(fieldUserID, userID))
		return User{}, apperr.Internal(opGetUser, "query_failed", err)
	}
	return user, nil
}

// GetByUsername loads a user by exact username.
func (s *Service) GetByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", normalize(username)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, apperr.Reject(opGetUser, "user_not_found", apperr.ErrNotFound)
	}
	if err != nil {
		s.logError(opGetUser, "query_failed", err, zap.String(fieldUsername, username))
		return User{}, apperr.Internal(opGetUser, "query_failed", err)
	}
	return user, nil
}

// UpdateInfo applies a partial profile update. A changed email must stay unique.
func (s *Service) UpdateInfo(ctx context.Context, userID int64, update UserUpdate) (User, error) {
	if err := s.validator.Validate(update); err != nil {
		return User{}, apperr.New(opUpdateInfo, "invalid_input", apperr.ErrInvalidInput, err)
	}

	var user User
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", userID).Take(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Reject(opUpdateInfo, "user_not_found", apperr.ErrNotFound)
		}
		if err != nil {
			return apperr.Internal(opUpdateInfo, "user_select_failed", err)
		}

		changes := map[string]interface{}{}
		if update.FirstName != nil {
			user.FirstName = normalize(*update.FirstName)
			changes["first_name"] = user.FirstName
		}
		if update.LastName != nil {
			user.LastName = normalize(*update.LastName)
			changes["last_name"] = user.LastName
		}
		if update.Email != nil {
			user.Email = normalize(*update.Email)
			changes["email"] = user.Email
		}
		if update.ImageURL != nil {
			user.ImageURL = copyString(update.ImageURL)
			changes["image_url"] = *update.ImageURL
		}
		if update.Bio != nil {
			user.Bio = copyString(update.Bio)
			changes["bio"] = *update.Bio
		}
		if update.Location != nil {
			user.Location = copyString(update.Location)
			changes["location"] = *update.Location
		}
		if len(changes) == 0 {
			return nil
		}

		err = tx.Model(&User{}).Where("id = ?", userID).Updates(changes).Error
		if apperr.IsDuplicateKey(err) {
			return apperr.New(opUpdateInfo, "duplicate_email", apperr.ErrDuplicateIdentity, err)
		}
		if err != nil {
			return apperr.Internal(opUpdateInfo, "user_update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		if !apperr.IsRejection(txErr) {
			s.logError(opUpdateInfo, "transaction_failed", txErr, zap.Int64(fieldUserID, userID))
		}
		return User{}, txErr
	}
	return user, nil
}

// UpdatePassword rehashes and stores newPassword.
func (s *Service) UpdatePassword(ctx context.Context, userID int64, newPassword string) (User, error) {
	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, auth.ErrEmptyPassword) || errors.Is(err, auth.ErrPasswordTooLong) {
			return User{}, apperr.New(opUpdatePassword, "invalid_password", apperr.ErrInvalidInput, err)
		}
		s.logError(opUpdatePassword, "hash_failed", err, zap.Int64(fieldUserID, userID))
		return User{}, apperr.Internal(opUpdatePassword, "hash_failed", err)
	}

	var user User
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", userID).Take(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Reject(opUpdatePassword, "user_not_found", apperr.ErrNotFound)
		}
		if err != nil {
			return apperr.Internal(opUpdatePassword, "user_select_failed", err)
		}
		if err := tx.Model(&User{}).Where("id = ?", userID).Update("password", hashed).Error; err != nil {
			return apperr.Internal(opUpdatePassword, "password_update_failed", err)
		}
		user.Password = hashed
		return nil
	})
	if txErr != nil {
		if !apperr.IsRejection(txErr) {
			s.logError(opUpdatePassword, "transaction_failed", txErr, zap.Int64(fieldUserID, userID))
		}
		return User{}, txErr
	}
	return user, nil
}

// ChangePassword verifies currentPassword before replacing it.
func (s *Service) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) (User, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if _, err := s.ValidateUser(user, currentPassword); err != nil {
		return User{}, apperr.Reject(opChangePassword, "password_mismatch", apperr.ErrInvalidCredentials)
	}
	return s.UpdatePassword(ctx, userID, newPassword)
}

// Search returns users whose full name contains query, case-insensitively.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]User, error) {
	query = strings.ToLower(normalize(query))
	if query == "" {
		return []User{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchSize
	}
	if limit > maxSearchSize {
		limit = maxSearchSize
	}

	var found []User
	err := s.db.WithContext(ctx).
		Where("LOWER(first_name || ' ' || last_name) LIKE ? ESCAPE '!'", "%"+escapeLike(query)+"%").
		Order("first_name ASC, last_name ASC, id ASC").
		Limit(limit).
		Find(&found).Error
	if err != nil {
		s.logError(opSearchUsers, "query_failed", err)
		return nil, apperr.Internal(opSearchUsers, "query_failed", err)
	}
	return found, nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// escapeLike makes LIKE wildcards in user input match literally.
func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}

func (s *Service) placeholder() string {
	s.placeholderOnce.Do(func() {
		hashed, err := s.hasher.Hash(timingPlaceholder)
		if err == nil {
			s.placeholderHash = hashed
		}
	})
	return s.placeholderHash
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
	s.loggerOrDefault().Error("users service error", attrs...)
}
