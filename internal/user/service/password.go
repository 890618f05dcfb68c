package service

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

const defaultPBKDF2Iterations = 600000

var errMalformedHash = errors.New("malformed password hash")

type hashScheme int

const (
	schemeBcrypt hashScheme = iota
	schemePBKDF2
	schemeScrypt
	schemePlaintext
)

func detectScheme(stored string) hashScheme {
	switch {
	case strings.HasPrefix(stored, "$2a$"), strings.HasPrefix(stored, "$2b$"), strings.HasPrefix(stored, "$2y$"):
		return schemeBcrypt
	case strings.HasPrefix(stored, "pbkdf2:"):
		return schemePBKDF2
	case strings.HasPrefix(stored, "scrypt:"):
		return schemeScrypt
	default:
		return schemePlaintext
	}
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// verifyPassword reports whether password matches stored. legacy is true when
// stored is in a format that should be replaced by a bcrypt hash.
func verifyPassword(stored, password string, allowPlaintext bool) (ok bool, legacy bool, err error) {
	if stored == "" {
		return false, false, nil
	}
	switch detectScheme(stored) {
	case schemeBcrypt:
		// bcrypt would compare only the first maxPasswordBytes and accept
		// any longer input sharing that prefix.
		if len(password) > maxPasswordBytes {
			return false, false, nil
		}
		err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, false, nil
		}
		return err == nil, false, err
	case schemePBKDF2:
		ok, err := verifyPBKDF2(stored, password)
		return ok, true, err
	case schemeScrypt:
		ok, err := verifyScrypt(stored, password)
		return ok, true, err
	default:
		if !allowPlaintext {
			return false, false, nil
		}
		return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1, true, nil
	}
}

// splitWerkzeug splits "method$salt$hexdigest".
func splitWerkzeug(stored string) (method []string, salt string, digest []byte, err error) {
	parts := strings.SplitN(stored, "$", 3)
	if len(parts) != 3 {
		return nil, "", nil, errMalformedHash
	}
	digest, err = hex.DecodeString(parts[2])
	if err != nil || len(digest) == 0 {
		return nil, "", nil, errMalformedHash
	}
	return strings.Split(parts[0], ":"), parts[1], digest, nil
}

// pbkdf2:<hash>[:<iterations>]$salt$hex
func verifyPBKDF2(stored, password string) (bool, error) {
	method, salt, digest, err := splitWerkzeug(stored)
	if err != nil {
		return false, err
	}
	if len(method) < 2 || len(method) > 3 {
		return false, errMalformedHash
	}
	var newHash func() hash.Hash
	switch method[1] {
	case "sha256":
		newHash = sha256.New
	case "sha512":
		newHash = sha512.New
	case "sha1":
		newHash = sha1.New
	default:
		return false, fmt.Errorf("%w: unsupported digest %q", errMalformedHash, method[1])
	}
	iterations := defaultPBKDF2Iterations
	if len(method) == 3 {
		iterations, err = strconv.Atoi(method[2])
		if err != nil || iterations <= 0 {
			return false, errMalformedHash
		}
	}
	derived := pbkdf2.Key([]byte(password), []byte(salt), iterations, len(digest), newHash)
	return subtle.ConstantTimeCompare(derived, digest) == 1, nil
}

// scrypt:<n>:<r>:<p>$salt$hex
func verifyScrypt(stored, password string) (bool, error) {
	method, salt, digest, err := splitWerkzeug(stored)
	if err != nil {
		return false, err
	}
	if len(method) != 4 {
		return false, errMalformedHash
	}
	params := make([]int, 3)
	for i, raw := range method[1:] {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return false, errMalformedHash
		}
		params[i] = v
	}
	derived, err := scrypt.Key([]byte(password), []byte(salt), params[0], params[1], params[2], len(digest))
	if err != nil {
		return false, fmt.Errorf("%w: %v", errMalformedHash, err)
	}
	return subtle.ConstantTimeCompare(derived, digest) == 1, nil
}
