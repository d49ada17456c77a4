// Package auth handles password hashing, session tokens and account
// operations that need both.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"bunchee/internal/core"
	"bunchee/internal/ledger"
)

// CookieName is the session cookie carrying the signed token.
const CookieName = "bunchee_session"

const issuer = "bunchee"

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid session token")
	ErrNoToken            = errors.New("no session token")
	ErrEmptyPassword      = errors.New("empty password")
	ErrProtectedUser      = errors.New("the admin account cannot be changed this way")
)

// Claims are the session claims. Subject holds the user id.
type Claims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"admin"`
	jwt.RegisteredClaims
}

// Auth signs and checks session tokens and password hashes.
type Auth struct {
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

// Option configures Auth.
type Option func(*Auth)

// WithCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithCost(cost int) Option {
	return func(a *Auth) { a.cost = cost }
}

// WithClock overrides the time source used for token timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Auth) { a.now = now }
}

func New(secret string, ttl time.Duration, opts ...Option) *Auth {
	a := &Auth{
		secret: []byte(secret),
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TTL is the lifetime of issued tokens.
func (a *Auth) TTL() time.Duration { return a.ttl }

// HashPassword hashes a password using bcrypt.
func (a *Auth) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword verifies a password against a bcrypt hash.
func (a *Auth) CheckPassword(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// GenerateToken creates a signed session token for u.
func (a *Auth) GenerateToken(u core.User) (string, error) {
	now := a.now()
	claims := &Claims{
		UserID:   u.ID,
		Username: u.Username,
		IsAdmin:  u.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(u.ID),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken parses and validates a session token.
func (a *Auth) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenFromRequest returns the bearer token, or else the session cookie.
func TokenFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token), nil
		}
		return "", ErrInvalidToken
	}
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", ErrNoToken
	}
	return c.Value, nil
}

// SessionCookie builds the cookie carrying token.
func (a *Auth) SessionCookie(token string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie expires the session cookie.
func ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Login checks the credentials and returns the user.
func (a *Auth) Login(ctx context.Context, users ledger.UserStore, username, password string) (core.User, error) {
	u, err := users.GetUserByName(ctx, strings.TrimSpace(username))
	if errors.Is(err, ledger.ErrNotFound) {
		return core.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, err
	}
	if err := a.CheckPassword(password, u.PasswordHash); err != nil {
		return core.User{}, err
	}
	return u, nil
}

// Register creates a regular user.
func (a *Auth) Register(ctx context.Context, users ledger.UserStore, username, password string) (core.User, error) {
	u := core.User{Username: strings.TrimSpace(username)}
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	hash, err := a.HashPassword(password)
	if err != nil {
		return core.User{}, err
	}
	u.PasswordHash = hash
	return users.CreateUser(ctx, u)
}

// ChangePassword replaces the password of userID after checking the
// current one.
func (a *Auth) ChangePassword(ctx context.Context, users ledger.UserStore, userID int64, current, next string) error {
	u, err := users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := a.CheckPassword(current, u.PasswordHash); err != nil {
		return err
	}
	return a.setPassword(ctx, users, u, next)
}

// ResetPassword sets a new password without the current one. The admin
// account is refused.
func (a *Auth) ResetPassword(ctx context.Context, users ledger.UserStore, userID int64, next string) error {
	u, err := users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.Username == ledger.AdminUsername {
		return ErrProtectedUser
	}
	return a.setPassword(ctx, users, u, next)
}

func (a *Auth) setPassword(ctx context.Context, users ledger.UserStore, u core.User, password string) error {
	hash, err := a.HashPassword(password)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return users.UpdateUser(ctx, u)
}

// EnsureAdmin creates the admin account with password when it is missing.
// An existing admin is left alone.
func (a *Auth) EnsureAdmin(ctx context.Context, users ledger.UserStore, password string) error {
	_, err := users.GetUserByName(ctx, ledger.AdminUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return fmt.Errorf("looking up admin: %w", err)
	}
	hash, err := a.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = users.CreateUser(ctx, core.User{Username: ledger.AdminUsername, PasswordHash: hash, IsAdmin: true})
	if errors.Is(err, ledger.ErrDuplicateUsername) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("creating admin: %w", err)
	}
	slog.Info("Created default admin user", "component", "auth", "username", ledger.AdminUsername)
	return nil
}

type ctxKey struct{}

// WithUser stores the authenticated session in ctx.
func WithUser(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// UserFromContext returns the session stored by WithUser.
func UserFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok
}
