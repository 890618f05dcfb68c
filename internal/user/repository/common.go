package repository

import (
	"errors"
	"fmt"
	"strings"

	"mathtutor/internal/common/db"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUsernameExists = errors.New("username already exists")
	ErrDuplicate      = errors.New("record already exists")
)

// mapUniqueViolation turns a duplicate key error into the matching sentinel.
func mapUniqueViolation(err error) error {
	key, ok := db.UniqueViolation(err)
	if !ok {
		return err
	}
	if strings.Contains(strings.ToLower(key), "username") {
		return ErrUsernameExists
	}
	return fmt.Errorf("%w: %s", ErrDuplicate, key)
}
