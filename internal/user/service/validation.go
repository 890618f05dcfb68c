package service

import (
	"strings"
	"unicode"

	pkgerrors "mathtutor/pkg/errors"
)

const (
	maxUsernameLength = 50
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

func normalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

func validateUsername(username string) error {
	if username == "" {
		return pkgerrors.ValidationError("username", "required")
	}
	if len([]rune(username)) > maxUsernameLength {
		return pkgerrors.New(pkgerrors.InvalidUsername).WithDetail("max_length", maxUsernameLength)
	}
	for _, r := range username {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return pkgerrors.New(pkgerrors.InvalidUsername)
		}
	}
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return pkgerrors.ValidationError("password", "required")
	}
	if len(password) > maxPasswordBytes {
		return pkgerrors.New(pkgerrors.InvalidPassword).WithDetail("max_bytes", maxPasswordBytes)
	}
	return nil
}

// Stored legacy credentials may predate the length rules, so login only
// requires a value.
func validateLoginPassword(password string) error {
	if password == "" {
		return pkgerrors.ValidationError("password", "required")
	}
	return nil
}
