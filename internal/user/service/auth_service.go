package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"mathtutor/internal/common/auth"
	"mathtutor/internal/common/cache"
	"mathtutor/internal/common/db"
	"mathtutor/internal/user/repository"
	pkgerrors "mathtutor/pkg/errors"
	"mathtutor/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultLoginFailTTL   = 15 * time.Minute
	defaultLoginFailLimit = 5

	loginFailKeyPrefix = "auth:login:fail:"
)

// AuthServiceConfig holds configuration for AuthService.
type AuthServiceConfig struct {
	// LegacyPlaintext accepts stored credentials that were never hashed.
	LegacyPlaintext bool
	LoginFailTTL    time.Duration
	LoginFailLimit  int
}

// AuthService handles signup, login and password resets.
type AuthService struct {
	dbProvider     db.Provider
	users          repository.UserRepository
	loginFailCache cache.BasicOps
	tokens         *auth.TokenManager
	config         AuthServiceConfig
}

// NewAuthService creates a new AuthService. loginFailCache and tokens may be nil.
func NewAuthService(
	provider db.Provider,
	users repository.UserRepository,
	loginFailCache cache.BasicOps,
	tokens *auth.TokenManager,
	cfg AuthServiceConfig,
) *AuthService {
	if cfg.LoginFailTTL == 0 {
		cfg.LoginFailTTL = defaultLoginFailTTL
	}
	if cfg.LoginFailLimit == 0 {
		cfg.LoginFailLimit = defaultLoginFailLimit
	}
	return &AuthService{
		dbProvider:     provider,
		users:          users,
		loginFailCache: loginFailCache,
		tokens:         tokens,
		config:         cfg,
	}
}

// SignupInput represents input for user registration.
type SignupInput struct {
	Username string
	Password string
}

// LoginInput represents input for user login.
type LoginInput struct {
	Username string
	Password string
	IP       string
}

// LoginResult is returned on a successful login. AccessToken is empty when
// token issuing is not configured.
type LoginResult struct {
	User            *repository.User
	AccessToken     string
	AccessExpiresAt time.Time
}

// Signup creates a new account and returns its id.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (int64, error) {
	username := normalizeUsername(input.Username)
	if err := validateUsername(username); err != nil {
		return 0, err
	}
	if err := validatePassword(input.Password); err != nil {
		return 0, err
	}

	passwordHash, err := hashPassword(input.Password)
	if err != nil {
		return 0, pkgerrors.Wrap(fmt.Errorf("hash password failed: %w", err), pkgerrors.InternalServerError)
	}

	user := &repository.User{
		Username:     username,
		PasswordHash: passwordHash,
		Role:         repository.UserRoleUser,
	}
	var userID int64
	err = s.withTransaction(ctx, func(tx db.Transaction) error {
		id, createErr := s.users.Create(ctx, tx, user)
		if createErr != nil {
			return mapUserCreateError(createErr)
		}
		userID = id
		return nil
	})
	if err != nil {
		return 0, err
	}
	logger.Info(ctx, "user signed up", zap.Int64("user_id", userID), zap.String("username", username))
	return userID, nil
}

// Login verifies credentials. Legacy credentials are re-hashed with bcrypt
// after a successful match.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	username := normalizeUsername(input.Username)
	if err := validateUsername(username); err != nil {
		return LoginResult{}, err
	}
	if err := validateLoginPassword(input.Password); err != nil {
		return LoginResult{}, err
	}

	if err := s.checkLoginLimit(ctx, username, input.IP); err != nil {
		return LoginResult{}, err
	}

	user, err := s.users.GetByUsername(ctx, nil, username)
	if err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			s.recordLoginFailure(ctx, username, input.IP)
			return LoginResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
		}
		return LoginResult{}, pkgerrors.Wrap(fmt.Errorf("get user failed: %w", err), pkgerrors.DatabaseError)
	}

	ok, legacy, err := verifyPassword(user.PasswordHash, input.Password, s.config.LegacyPlaintext)
	if err != nil {
		logger.Warn(ctx, "stored credential could not be verified", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	if !ok {
		s.recordLoginFailure(ctx, username, input.IP)
		return LoginResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
	}

	s.clearLoginFailure(ctx, username, input.IP)
	if legacy {
		s.migrateCredential(ctx, user, input.Password)
	}

	result := LoginResult{User: user}
	if s.tokens.Enabled() {
		token, expiresAt, err := s.tokens.Issue(user.ID, string(user.Role))
		if err != nil {
			return LoginResult{}, err
		}
		result.AccessToken = token
		result.AccessExpiresAt = expiresAt
	}
	return result, nil
}

// ResetPassword replaces the credential of username. An unknown username is
// not reported to the caller.
func (s *AuthService) ResetPassword(ctx context.Context, usernameRaw, password string) error {
	username := normalizeUsername(usernameRaw)
	if err := validateUsername(username); err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}

	user, err := s.users.GetByUsername(ctx, nil, username)
	if err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			logger.Info(ctx, "password reset for unknown user", zap.String("username", username))
			return nil
		}
		return pkgerrors.Wrap(fmt.Errorf("get user failed: %w", err), pkgerrors.DatabaseError)
	}

	passwordHash, err := hashPassword(password)
	if err != nil {
		return pkgerrors.Wrap(fmt.Errorf("hash password failed: %w", err), pkgerrors.PasswordResetFailed)
	}
	if err := s.users.UpdatePassword(ctx, nil, user.ID, passwordHash); err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return pkgerrors.Wrap(fmt.Errorf("update password failed: %w", err), pkgerrors.PasswordResetFailed)
	}
	s.clearLoginFailure(ctx, username, "")
	return nil
}

func (s *AuthService) migrateCredential(ctx context.Context, user *repository.User, password string) {
	passwordHash, err := hashPassword(password)
	if err != nil {
		logger.Warn(ctx, "rehash legacy credential failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return
	}
	if err := s.users.UpdatePassword(ctx, nil, user.ID, passwordHash); err != nil {
		logger.Warn(ctx, "store migrated credential failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return
	}
	logger.Info(ctx, "legacy credential migrated to bcrypt", zap.Int64("user_id", user.ID))
}

func (s *AuthService) checkLoginLimit(ctx context.Context, username, ip string) error {
	if s.loginFailCache == nil {
		return nil
	}
	raw, err := s.loginFailCache.Get(ctx, loginFailKey(username, ip))
	if err != nil {
		logger.Warn(ctx, "read login failure counter failed", zap.Error(err))
		return nil
	}
	if raw == "" {
		return nil
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	if count >= s.config.LoginFailLimit {
		return pkgerrors.New(pkgerrors.LoginTooFrequently)
	}
	return nil
}

func (s *AuthService) recordLoginFailure(ctx context.Context, username, ip string) {
	if s.loginFailCache == nil {
		return
	}
	key := loginFailKey(username, ip)
	count, err := s.loginFailCache.Incr(ctx, key)
	if err != nil {
		logger.Warn(ctx, "record login failure failed", zap.Error(err))
		return
	}
	if count == 1 {
		if err := s.loginFailCache.Expire(ctx, key, s.config.LoginFailTTL); err != nil {
			logger.Warn(ctx, "expire login failure counter failed", zap.Error(err))
		}
	}
}

func (s *AuthService) clearLoginFailure(ctx context.Context, username, ip string) {
	if s.loginFailCache == nil {
		return
	}
	if err := s.loginFailCache.Del(ctx, loginFailKey(username, ip)); err != nil {
		logger.Warn(ctx, "clear login failure counter failed", zap.Error(err))
	}
}

func loginFailKey(username, ip string) string {
	return loginFailKeyPrefix + username + ":" + ip
}

func mapUserCreateError(err error) error {
	if stderrors.Is(err, repository.ErrUsernameExists) {
		return pkgerrors.New(pkgerrors.UsernameAlreadyExists)
	}
	if stderrors.Is(err, repository.ErrDuplicate) {
		return pkgerrors.New(pkgerrors.RecordAlreadyExists)
	}
	return pkgerrors.Wrap(fmt.Errorf("create user failed: %w", err), pkgerrors.DatabaseError)
}

func withTransaction(ctx context.Context, provider db.Provider, fn func(tx db.Transaction) error) error {
	database, err := db.CurrentDatabase(provider)
	if err != nil {
		return fn(nil)
	}
	if err := database.Transaction(ctx, fn); err != nil {
		if _, ok := err.(*pkgerrors.Error); ok {
			return err
		}
		return pkgerrors.Wrap(fmt.Errorf("transaction failed: %w", err), pkgerrors.TransactionFailed)
	}
	return nil
}

func (s *AuthService) withTransaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	return withTransaction(ctx, s.dbProvider, fn)
}
