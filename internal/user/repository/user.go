package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mathtutor/internal/common/cache"
	"mathtutor/internal/common/db"
)

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Rating       float64   `json:"rating"`
	ProfileImage string    `json:"profile_image,omitempty"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type UserRepository interface {
	Create(ctx context.Context, tx db.Transaction, user *User) (int64, error)
	GetByID(ctx context.Context, tx db.Transaction, id int64) (*User, error)
	GetByUsername(ctx context.Context, tx db.Transaction, username string) (*User, error)
	List(ctx context.Context, tx db.Transaction, limit, offset int) ([]*User, error)
	UpdateProfile(ctx context.Context, tx db.Transaction, id int64, username string, rating float64) error
	UpdatePassword(ctx context.Context, tx db.Transaction, id int64, newHash string) error
	UpdateProfileImage(ctx context.Context, tx db.Transaction, id int64, path string) error
	// AdjustRating adds delta to the stored rating and returns the new value.
	AdjustRating(ctx context.Context, tx db.Transaction, id int64, delta float64) (float64, error)
	Delete(ctx context.Context, tx db.Transaction, id int64) error
}

const (
	userInfoKeyPrefix     = "user:info:"
	userUsernameKeyPrefix = "user:username:"

	defaultUserCacheTTL      = 30 * time.Minute
	defaultUserCacheEmptyTTL = 5 * time.Minute
)

const userColumns = "id, username, password_hash, rating, profile_image, role, created_at, updated_at"

type MySQLUserRepository struct {
	dbProvider db.Provider
	cache      cache.Cache
	ttl        time.Duration
	emptyTTL   time.Duration
}

// NewUserRepository builds the MySQL repository. cacheClient may be nil.
func NewUserRepository(provider db.Provider, cacheClient cache.Cache) *MySQLUserRepository {
	return NewUserRepositoryWithTTL(provider, cacheClient, defaultUserCacheTTL, defaultUserCacheEmptyTTL)
}

func NewUserRepositoryWithTTL(provider db.Provider, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLUserRepository {
	if ttl <= 0 {
		ttl = defaultUserCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultUserCacheEmptyTTL
	}
	return &MySQLUserRepository{
		dbProvider: provider,
		cache:      cacheClient,
		ttl:        ttl,
		emptyTTL:   emptyTTL,
	}
}

func (r *MySQLUserRepository) Create(ctx context.Context, tx db.Transaction, user *User) (int64, error) {
	if user == nil {
		return 0, errors.New("user is nil")
	}
	if user.Role == "" {
		user.Role = UserRoleUser
	}

	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return 0, err
	}
	query := "INSERT INTO users (username, password_hash, rating, profile_image, role) VALUES (?, ?, ?, ?, ?)"
	result, err := querier.Exec(ctx, query, user.Username, user.PasswordHash, user.Rating, nullString(user.ProfileImage), user.Role)
	if err != nil {
		return 0, mapUniqueViolation(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	user.ID = id
	// A failed login for this name may have cached a miss.
	r.invalidate(ctx, tx, 0, user.Username)
	return id, nil
}

func (r *MySQLUserRepository) GetByID(ctx context.Context, tx db.Transaction, id int64) (*User, error) {
	if r.cache == nil || tx != nil {
		return r.getOneFromDB(ctx, tx, "id = ?", id)
	}
	return r.getCached(ctx, userInfoKey(id), func(ctx context.Context) (*User, error) {
		return r.getOneFromDB(ctx, nil, "id = ?", id)
	})
}

func (r *MySQLUserRepository) GetByUsername(ctx context.Context, tx db.Transaction, username string) (*User, error) {
	if r.cache == nil || tx != nil {
		return r.getOneFromDB(ctx, tx, "username = ?", username)
	}
	return r.getCached(ctx, userUsernameKey(username), func(ctx context.Context) (*User, error) {
		return r.getOneFromDB(ctx, nil, "username = ?", username)
	})
}

func (r *MySQLUserRepository) List(ctx context.Context, tx db.Transaction, limit, offset int) ([]*User, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	rows, err := querier.Query(ctx, "SELECT "+userColumns+" FROM users ORDER BY id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *MySQLUserRepository) UpdateProfile(ctx context.Context, tx db.Transaction, id int64, username string, rating float64) error {
	previous, err := r.getOneFromDB(ctx, tx, "id = ?", id)
	if err != nil {
		return err
	}
	query := "UPDATE users SET username = ?, rating = ?, updated_at = NOW() WHERE id = ?"
	if err := r.execAffecting(ctx, tx, query, username, rating, id); err != nil {
		return mapUniqueViolation(err)
	}
	r.invalidate(ctx, tx, id, previous.Username, username)
	return nil
}

func (r *MySQLUserRepository) UpdatePassword(ctx context.Context, tx db.Transaction, id int64, newHash string) error {
	return r.updateColumn(ctx, tx, id, "UPDATE users SET password_hash = ?, updated_at = NOW() WHERE id = ?", newHash)
}

func (r *MySQLUserRepository) UpdateProfileImage(ctx context.Context, tx db.Transaction, id int64, path string) error {
	return r.updateColumn(ctx, tx, id, "UPDATE users SET profile_image = ?, updated_at = NOW() WHERE id = ?", nullString(path))
}

func (r *MySQLUserRepository) AdjustRating(ctx context.Context, tx db.Transaction, id int64, delta float64) (float64, error) {
	current, err := r.getOneFromDB(ctx, tx, "id = ?", id)
	if err != nil {
		return 0, err
	}
	if err := r.execAffecting(ctx, tx, "UPDATE users SET rating = rating + ?, updated_at = NOW() WHERE id = ?", delta, id); err != nil {
		return 0, err
	}
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return 0, err
	}
	var rating float64
	if err := querier.QueryRow(ctx, "SELECT rating FROM users WHERE id = ?", id).Scan(&rating); err != nil {
		if db.IsNoRows(err) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	r.invalidate(ctx, tx, id, current.Username)
	return rating, nil
}

func (r *MySQLUserRepository) Delete(ctx context.Context, tx db.Transaction, id int64) error {
	current, err := r.getOneFromDB(ctx, tx, "id = ?", id)
	if err != nil {
		return err
	}
	if err := r.execAffecting(ctx, tx, "DELETE FROM users WHERE id = ?", id); err != nil {
		return err
	}
	r.invalidate(ctx, tx, id, current.Username)
	return nil
}

func (r *MySQLUserRepository) updateColumn(ctx context.Context, tx db.Transaction, id int64, query string, value interface{}) error {
	var username string
	if r.cache != nil {
		current, err := r.getOneFromDB(ctx, tx, "id = ?", id)
		if err != nil {
			return err
		}
		username = current.Username
	}
	if err := r.execAffecting(ctx, tx, query, value, id); err != nil {
		return err
	}
	r.invalidate(ctx, tx, id, username)
	return nil
}

// execAffecting runs query and reports ErrUserNotFound when no row matched.
func (r *MySQLUserRepository) execAffecting(ctx context.Context, tx db.Transaction, query string, args ...interface{}) error {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}
	result, err := querier.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *MySQLUserRepository) getOneFromDB(ctx context.Context, tx db.Transaction, where string, arg interface{}) (*User, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	user, err := scanUser(querier.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *MySQLUserRepository) getCached(ctx context.Context, key string, load func(context.Context) (*User, error)) (*User, error) {
	user, err := cache.GetWithCached[*User](
		ctx,
		r.cache,
		key,
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(user *User) bool { return user == nil },
		marshalUser,
		unmarshalUser,
		func(ctx context.Context) (*User, error) {
			user, err := load(ctx)
			if errors.Is(err, ErrUserNotFound) {
				return nil, nil
			}
			return user, err
		},
	)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// invalidate drops cached rows once tx commits, so concurrent readers cannot
// re-cache values the transaction has not published yet.
func (r *MySQLUserRepository) invalidate(ctx context.Context, tx db.Transaction, userID int64, usernames ...string) {
	if r.cache == nil {
		return
	}
	db.AfterCommit(tx, func() {
		r.deleteCache(context.WithoutCancel(ctx), userID, usernames...)
	})
}

func (r *MySQLUserRepository) deleteCache(ctx context.Context, userID int64, usernames ...string) {
	if r.cache == nil {
		return
	}
	keys := make([]string, 0, 1+len(usernames))
	if userID != 0 {
		keys = append(keys, userInfoKey(userID))
	}
	for _, name := range usernames {
		if name != "" {
			keys = append(keys, userUsernameKey(name))
		}
	}
	if len(keys) > 0 {
		_ = r.cache.Del(ctx, keys...)
	}
}

func userInfoKey(id int64) string {
	return fmt.Sprintf("%s%d", userInfoKeyPrefix, id)
}

func userUsernameKey(username string) string {
	return userUsernameKeyPrefix + username
}

func marshalUser(user *User) string {
	payload, err := json.Marshal(user)
	if err != nil {
		return ""
	}
	return string(payload)
}

func unmarshalUser(data string) (*User, error) {
	var user User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func scanUser(scanner db.Scanner) (*User, error) {
	var user User
	var profileImage sql.NullString
	err := scanner.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Rating,
		&profileImage,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.ProfileImage = profileImage.String
	return &user, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
