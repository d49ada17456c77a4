package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"bunchee/internal/core"
	"bunchee/internal/ledger"
	"bunchee/internal/ledger/memory"
)

func newTestAuth(now func() time.Time) *Auth {
	opts := []Option{WithCost(bcrypt.MinCost)}
	if now != nil {
		opts = append(opts, WithClock(now))
	}
	return New("test-secret", time.Hour, opts...)
}

func TestTokenRoundTrip(t *testing.T) {
	a := newTestAuth(nil)
	tok, err := a.GenerateToken(core.User{ID: 7, Username: "somchai", IsAdmin: true})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := a.ValidateToken(tok)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "somchai" || !claims.IsAdmin {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	start := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	now := start
	a := newTestAuth(func() time.Time { return now })
	tok, err := a.GenerateToken(core.User{ID: 1, Username: "u"})
	if err != nil {
		t.Fatal(err)
	}

	other := New("other-secret", time.Hour, WithClock(func() time.Time { return start }))
	if _, err := other.ValidateToken(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret: err = %v", err)
	}
	if _, err := a.ValidateToken("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage: err = %v", err)
	}

	now = start.Add(2 * time.Hour)
	if _, err := a.ValidateToken(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired: err = %v", err)
	}
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(r *http.Request)
		want    string
		wantErr error
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") }, "abc", nil},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: "xyz"}) }, "xyz", nil},
		{"bad scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, "", ErrInvalidToken},
		{"none", func(r *http.Request) {}, "", ErrNoToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(r)
			got, err := TokenFromRequest(r)
			if !errors.Is(err, tt.wantErr) || got != tt.want {
				t.Fatalf("TokenFromRequest() = %q, %v; want %q, %v", got, err, tt.want, tt.wantErr)
			}
		})
	}
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := newTestAuth(nil)

	if _, err := a.Register(ctx, store, " nok ", "pw1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := a.Register(ctx, store, "nok", "pw2"); !errors.Is(err, ledger.ErrDuplicateUsername) {
		t.Fatalf("duplicate register: err = %v", err)
	}
	if _, err := a.Register(ctx, store, "  ", "pw"); !errors.Is(err, core.ErrEmptyUsername) {
		t.Fatalf("empty username: err = %v", err)
	}

	u, err := a.Login(ctx, store, "nok", "pw1")
	if err != nil || u.Username != "nok" || u.IsAdmin {
		t.Fatalf("Login = %+v, %v", u, err)
	}
	if _, err := a.Login(ctx, store, "nok", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: err = %v", err)
	}
	if _, err := a.Login(ctx, store, "ghost", "pw1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: err = %v", err)
	}
}

func TestChangeAndResetPassword(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := newTestAuth(nil)

	u, err := a.Register(ctx, store, "nok", "old")
	if err != nil {
		t.Fatal(err)
	}
	if err := a.ChangePassword(ctx, store, u.ID, "nope", "new"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong current: err = %v", err)
	}
	if err := a.ChangePassword(ctx, store, u.ID, "old", "new"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := a.Login(ctx, store, "nok", "new"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if err := a.ResetPassword(ctx, store, u.ID, "reset"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := a.Login(ctx, store, "nok", "reset"); err != nil {
		t.Fatalf("login after reset: %v", err)
	}

	if err := a.EnsureAdmin(ctx, store, "admin"); err != nil {
		t.Fatal(err)
	}
	admin, _ := store.GetUserByName(ctx, ledger.AdminUsername)
	if err := a.ResetPassword(ctx, store, admin.ID, "x"); !errors.Is(err, ErrProtectedUser) {
		t.Fatalf("reset admin: err = %v", err)
	}
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := newTestAuth(nil)

	if err := a.EnsureAdmin(ctx, store, "first"); err != nil {
		t.Fatal(err)
	}
	if err := a.EnsureAdmin(ctx, store, "second"); err != nil {
		t.Fatal(err)
	}
	users, _ := store.ListUsers(ctx)
	if len(users) != 1 || !users[0].IsAdmin {
		t.Fatalf("users = %+v", users)
	}
	if _, err := a.Login(ctx, store, ledger.AdminUsername, "first"); err != nil {
		t.Fatalf("admin password should be unchanged: %v", err)
	}
}
