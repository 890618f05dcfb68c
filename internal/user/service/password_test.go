package service

import (
	"strings"
	"testing"
)

const (
	werkzeugPBKDF2 = "pbkdf2:sha256:1000$saltsalt$9f2e6678848885aa21f477f9728b965eb88b11d8ad97e28d1d5db9cd3b180b7e"
	werkzeugScrypt = "scrypt:1024:8:1$NaClNaCl$fd0620f16f0d0ba477f7098028506452fa63d1deef9fd26266aa8be067b88628e3ae67ec022ff3b2b804e7765a6a6dda744392b12023f71cc705a90d805d22f8"
)

func TestVerifyPassword(t *testing.T) {
	bcryptHash, err := hashPassword("hunter22")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	cases := []struct {
		name       string
		stored     string
		password   string
		plaintext  bool
		wantOK     bool
		wantLegacy bool
	}{
		{"bcrypt match", bcryptHash, "hunter22", true, true, false},
		{"bcrypt mismatch", bcryptHash, "hunter23", true, false, false},
		{"pbkdf2 match", werkzeugPBKDF2, "hunter22", true, true, true},
		{"pbkdf2 mismatch", werkzeugPBKDF2, "wrong", true, false, true},
		{"scrypt match", werkzeugScrypt, "hunter22", true, true, true},
		{"scrypt mismatch", werkzeugScrypt, "wrong", true, false, true},
		{"plaintext match", "hunter22", "hunter22", true, true, true},
		{"plaintext mismatch", "hunter22", "hunter2", true, false, true},
		{"plaintext disabled", "hunter22", "hunter22", false, false, false},
		{"empty stored", "", "", true, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, legacy, err := verifyPassword(tc.stored, tc.password, tc.plaintext)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && legacy != tc.wantLegacy {
				t.Fatalf("legacy = %v, want %v", legacy, tc.wantLegacy)
			}
		})
	}
}

func TestVerifyPasswordMalformedLegacyHash(t *testing.T) {
	for _, stored := range []string{
		"pbkdf2:sha256$only-two",
		"pbkdf2:md5:10$salt$abcd",
		"scrypt:1024:8$salt$abcd",
		"scrypt:1024:8:1$salt$not-hex",
	} {
		ok, _, err := verifyPassword(stored, "x", true)
		if ok || err == nil {
			t.Fatalf("%q: expected malformed error, got ok=%v err=%v", stored, ok, err)
		}
	}
}

func TestHashPasswordIsBcrypt(t *testing.T) {
	hashed, err := hashPassword("pw")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if !strings.HasPrefix(hashed, "$2a$") || detectScheme(hashed) != schemeBcrypt {
		t.Fatalf("unexpected hash %q", hashed)
	}
}
