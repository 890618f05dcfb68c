package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"mathtutor/internal/common/auth"
	"mathtutor/internal/common/cache"
	"mathtutor/internal/user/repository"
	pkgerrors "mathtutor/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newAuthService(t *testing.T, users *fakeUserRepo, failCache cache.BasicOps, tokens *auth.TokenManager) *AuthService {
	t.Helper()
	return NewAuthService(nil, users, failCache, tokens, AuthServiceConfig{LegacyPlaintext: true, LoginFailLimit: 3})
}

func TestSignupThenLogin(t *testing.T) {
	users := newFakeUserRepo()
	svc := newAuthService(t, users, nil, nil)
	ctx := context.Background()

	id, err := svc.Signup(ctx, SignupInput{Username: "  ada ", Password: "s3cret"})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if !strings.HasPrefix(users.hashOf("ada"), "$2") {
		t.Fatalf("expected bcrypt hash to be stored")
	}

	result, err := svc.Login(ctx, LoginInput{Username: "ada", Password: "s3cret"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if result.User.ID != id || result.AccessToken != "" {
		t.Fatalf("unexpected login result %+v", result)
	}

	_, err = svc.Signup(ctx, SignupInput{Username: "ada", Password: "other"})
	if !pkgerrors.Is(err, pkgerrors.UsernameAlreadyExists) {
		t.Fatalf("expected duplicate username, got %v", err)
	}
}

func TestSignupValidation(t *testing.T) {
	svc := newAuthService(t, newFakeUserRepo(), nil, nil)
	cases := []struct {
		name     string
		username string
		password string
		code     pkgerrors.ErrorCode
	}{
		{"empty username", "   ", "pw", pkgerrors.ValidationFailed},
		{"inner space", "a b", "pw", pkgerrors.InvalidUsername},
		{"too long", strings.Repeat("x", 51), "pw", pkgerrors.InvalidUsername},
		{"empty password", "ada", "", pkgerrors.ValidationFailed},
		{"password over bcrypt limit", "ada", strings.Repeat("p", 73), pkgerrors.InvalidPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Signup(context.Background(), SignupInput{Username: tc.username, Password: tc.password})
			if !pkgerrors.Is(err, tc.code) {
				t.Fatalf("expected %d, got %v", tc.code, err)
			}
		})
	}
}

func TestLoginRejectsWrongPasswordAndUnknownUser(t *testing.T) {
	users := newFakeUserRepo()
	svc := newAuthService(t, users, nil, nil)
	ctx := context.Background()
	if _, err := svc.Signup(ctx, SignupInput{Username: "bo", Password: "right"}); err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	longest := strings.Repeat("a", maxPasswordBytes)
	if _, err := svc.Signup(ctx, SignupInput{Username: "max", Password: longest}); err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if _, err := svc.Login(ctx, LoginInput{Username: "max", Password: longest}); err != nil {
		t.Fatalf("exact password must log in: %v", err)
	}

	for _, in := range []LoginInput{
		{Username: "bo", Password: "wrong"},
		{Username: "nobody", Password: "right"},
		{Username: "max", Password: longest + "WRONG"},
	} {
		_, err := svc.Login(ctx, in)
		if !pkgerrors.Is(err, pkgerrors.InvalidCredentials) {
			t.Fatalf("%s: expected invalid credentials, got %v", in.Username, err)
		}
		if pkgerrors.GetCode(err).HTTPStatus() != 401 {
			t.Fatalf("expected 401")
		}
	}
}

func TestLoginMigratesLegacyCredentials(t *testing.T) {
	cases := []struct {
		name   string
		stored string
	}{
		{"plaintext", "hunter22"},
		{"pbkdf2", werkzeugPBKDF2},
		{"scrypt", werkzeugScrypt},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			users := newFakeUserRepo()
			_, _ = users.Create(context.Background(), nil, &repository.User{Username: "legacy", PasswordHash: tc.stored})
			svc := newAuthService(t, users, nil, nil)

			if _, err := svc.Login(context.Background(), LoginInput{Username: "legacy", Password: "nope"}); err == nil {
				t.Fatalf("wrong password must fail")
			}
			if users.hashOf("legacy") != tc.stored {
				t.Fatalf("failed login must not touch the credential")
			}
			if _, err := svc.Login(context.Background(), LoginInput{Username: "legacy", Password: "hunter22"}); err != nil {
				t.Fatalf("legacy login failed: %v", err)
			}
			migrated := users.hashOf("legacy")
			if detectScheme(migrated) != schemeBcrypt {
				t.Fatalf("expected bcrypt after migration, got %q", migrated)
			}
			if _, err := svc.Login(context.Background(), LoginInput{Username: "legacy", Password: "hunter22"}); err != nil {
				t.Fatalf("login after migration failed: %v", err)
			}
		})
	}
}

func TestLoginPlaintextDisabled(t *testing.T) {
	users := newFakeUserRepo()
	_, _ = users.Create(context.Background(), nil, &repository.User{Username: "old", PasswordHash: "plain"})
	svc := NewAuthService(nil, users, nil, nil, AuthServiceConfig{LegacyPlaintext: false})

	_, err := svc.Login(context.Background(), LoginInput{Username: "old", Password: "plain"})
	if !pkgerrors.Is(err, pkgerrors.InvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestLoginThrottlesRepeatedFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	failCache, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("cache failed: %v", err)
	}
	users := newFakeUserRepo()
	svc := newAuthService(t, users, failCache, nil)
	ctx := context.Background()
	if _, err := svc.Signup(ctx, SignupInput{Username: "cy", Password: "right"}); err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		_, _ = svc.Login(ctx, LoginInput{Username: "cy", Password: "wrong", IP: "10.0.0.1"})
	}
	_, err = svc.Login(ctx, LoginInput{Username: "cy", Password: "right", IP: "10.0.0.1"})
	if !pkgerrors.Is(err, pkgerrors.LoginTooFrequently) {
		t.Fatalf("expected throttle, got %v", err)
	}

	if _, err := svc.Login(ctx, LoginInput{Username: "cy", Password: "right", IP: "10.0.0.2"}); err != nil {
		t.Fatalf("other address must not be throttled: %v", err)
	}

	mr.FastForward(16 * time.Minute)
	if _, err := svc.Login(ctx, LoginInput{Username: "cy", Password: "right", IP: "10.0.0.1"}); err != nil {
		t.Fatalf("expected throttle to expire: %v", err)
	}
}

func TestLoginIssuesAccessToken(t *testing.T) {
	users := newFakeUserRepo()
	tokens := auth.NewTokenManager("test-secret", "", time.Hour)
	svc := newAuthService(t, users, nil, tokens)
	ctx := context.Background()
	id, _ := svc.Signup(ctx, SignupInput{Username: "dee", Password: "pw"})

	result, err := svc.Login(ctx, LoginInput{Username: "dee", Password: "pw"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	claims, err := tokens.Parse(result.AccessToken)
	if err != nil {
		t.Fatalf("token parse failed: %v", err)
	}
	if claims.UserID != id || claims.Role != auth.RoleUser {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestResetPassword(t *testing.T) {
	users := newFakeUserRepo()
	svc := newAuthService(t, users, nil, nil)
	ctx := context.Background()
	_, _ = svc.Signup(ctx, SignupInput{Username: "eve", Password: "old"})

	if err := svc.ResetPassword(ctx, "eve", "new"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if _, err := svc.Login(ctx, LoginInput{Username: "eve", Password: "old"}); err == nil {
		t.Fatalf("old password must stop working")
	}
	if _, err := svc.Login(ctx, LoginInput{Username: "eve", Password: "new"}); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	if err := svc.ResetPassword(ctx, "ghost", "whatever"); err != nil {
		t.Fatalf("unknown user must not be reported: %v", err)
	}
}
