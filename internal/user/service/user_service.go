package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"mathtutor/internal/common/db"
	"mathtutor/internal/common/metrics"
	"mathtutor/internal/user/repository"
	pkgerrors "mathtutor/pkg/errors"
	"mathtutor/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultUserListLimit = 100
	maxUserListLimit     = 500
	defaultHistoryLimit  = 50
)

// UserService manages account profiles and ratings.
type UserService struct {
	dbProvider db.Provider
	users      repository.UserRepository
	history    repository.RatingHistoryRepository
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewUserService creates a new UserService. m may be nil.
func NewUserService(
	provider db.Provider,
	users repository.UserRepository,
	history repository.RatingHistoryRepository,
	m *metrics.Metrics,
) *UserService {
	return &UserService{
		dbProvider: provider,
		users:      users,
		history:    history,
		metrics:    m,
		now:        time.Now,
	}
}

// CreateUserInput is the admin create payload. An empty Password leaves the
// account unusable until the password is reset.
type CreateUserInput struct {
	Username string
	Password string
	Rating   float64
	Role     repository.UserRole
}

// UpdateUserInput replaces the editable profile fields.
type UpdateUserInput struct {
	Username string
	Rating   float64
}

// RatingEntry is one point of a user's rating chart.
type RatingEntry struct {
	Date   time.Time
	Rating float64
}

func (s *UserService) Get(ctx context.Context, id int64) (*repository.User, error) {
	user, err := s.users.GetByID(ctx, nil, id)
	if err != nil {
		return nil, mapUserLookupError(err)
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, limit, offset int) ([]*repository.User, error) {
	if limit <= 0 {
		limit = defaultUserListLimit
	}
	if limit > maxUserListLimit {
		limit = maxUserListLimit
	}
	users, err := s.users.List(ctx, nil, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(fmt.Errorf("list users failed: %w", err), pkgerrors.DatabaseError)
	}
	return users, nil
}

func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*repository.User, error) {
	username := normalizeUsername(input.Username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	password := input.Password
	if password == "" {
		password = uuid.NewString()
	} else if err := validatePassword(password); err != nil {
		return nil, err
	}
	if input.Rating < 0 {
		return nil, pkgerrors.ValidationError("rating", "must not be negative")
	}
	role := input.Role
	if role == "" {
		role = repository.UserRoleUser
	}
	if role != repository.UserRoleUser && role != repository.UserRoleAdmin {
		return nil, pkgerrors.ValidationError("role", "unknown role")
	}

	passwordHash, err := hashPassword(password)
	if err != nil {
		return nil, pkgerrors.Wrap(fmt.Errorf("hash password failed: %w", err), pkgerrors.UserCreateFailed)
	}
	user := &repository.User{
		Username:     username,
		PasswordHash: passwordHash,
		Rating:       input.Rating,
		Role:         role,
	}
	err = withTransaction(ctx, s.dbProvider, func(tx db.Transaction) error {
		if _, err := s.users.Create(ctx, tx, user); err != nil {
			return mapUserCreateError(err)
		}
		if user.Rating != 0 {
			return s.appendHistory(ctx, tx, user.ID, user.Rating)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Update replaces username and rating. A rating change is written to the history.
func (s *UserService) Update(ctx context.Context, id int64, input UpdateUserInput) (*repository.User, error) {
	username := normalizeUsername(input.Username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if input.Rating < 0 {
		return nil, pkgerrors.ValidationError("rating", "must not be negative")
	}

	var updated *repository.User
	err := withTransaction(ctx, s.dbProvider, func(tx db.Transaction) error {
		current, err := s.users.GetByID(ctx, tx, id)
		if err != nil {
			return mapUserLookupError(err)
		}
		if err := s.users.UpdateProfile(ctx, tx, id, username, input.Rating); err != nil {
			if stderrors.Is(err, repository.ErrUsernameExists) {
				return pkgerrors.New(pkgerrors.UsernameAlreadyExists)
			}
			if stderrors.Is(err, repository.ErrUserNotFound) {
				return pkgerrors.New(pkgerrors.UserNotFound)
			}
			return pkgerrors.Wrap(fmt.Errorf("update user failed: %w", err), pkgerrors.UserUpdateFailed)
		}
		if current.Rating != input.Rating {
			if err := s.appendHistory(ctx, tx, id, input.Rating); err != nil {
				return err
			}
		}
		current.Username = username
		current.Rating = input.Rating
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *UserService) Delete(ctx context.Context, id int64) error {
	if err := s.users.Delete(ctx, nil, id); err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			return pkgerrors.New(pkgerrors.UserNotFound)
		}
		return pkgerrors.Wrap(fmt.Errorf("delete user failed: %w", err), pkgerrors.UserDeleteFailed)
	}
	logger.Info(ctx, "user deleted", zap.Int64("user_id", id))
	return nil
}

func (s *UserService) SetProfileImage(ctx context.Context, id int64, imagePath string) (string, error) {
	if imagePath == "" {
		return "", pkgerrors.ValidationError("image_path", "required")
	}
	if err := s.users.UpdateProfileImage(ctx, nil, id, imagePath); err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			return "", pkgerrors.New(pkgerrors.UserNotFound)
		}
		return "", pkgerrors.Wrap(fmt.Errorf("update profile image failed: %w", err), pkgerrors.UserUpdateFailed)
	}
	return imagePath, nil
}

// RatingHistory returns the user's rating points oldest first.
func (s *UserService) RatingHistory(ctx context.Context, id int64, limit int) ([]RatingEntry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	points, err := s.history.ListByUser(ctx, nil, id, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(fmt.Errorf("list rating history failed: %w", err), pkgerrors.DatabaseError)
	}
	entries := make([]RatingEntry, 0, len(points))
	for _, p := range points {
		entries = append(entries, RatingEntry{Date: p.RecordedAt, Rating: p.Rating})
	}
	return entries, nil
}

func (s *UserService) appendHistory(ctx context.Context, tx db.Transaction, userID int64, rating float64) error {
	if s.history == nil {
		return nil
	}
	_, err := s.history.Append(ctx, tx, &repository.RatingPoint{
		UserID:     userID,
		Rating:     rating,
		RecordedAt: s.now(),
	})
	if err != nil {
		return pkgerrors.Wrap(fmt.Errorf("append rating history failed: %w", err), pkgerrors.RatingUpdateFailed)
	}
	return nil
}

func mapUserLookupError(err error) error {
	if stderrors.Is(err, repository.ErrUserNotFound) {
		return pkgerrors.New(pkgerrors.UserNotFound)
	}
	var appErr *pkgerrors.Error
	if stderrors.As(err, &appErr) {
		return err
	}
	return pkgerrors.Wrap(fmt.Errorf("get user failed: %w", err), pkgerrors.DatabaseError)
}
