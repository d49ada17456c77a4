package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"bunchee/internal/auth"
	"bunchee/internal/core"
	"bunchee/internal/ledger"
	"bunchee/internal/log"
	"bunchee/internal/services"
)

// authenticate resolves the session token, if any, and stores the user in
// the request context. Tokens of deleted users are dropped; the admin flag
// is taken from the store so a demotion applies at once.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.TokenFromRequest(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		claims, err := s.auth.ValidateToken(token)
		if err == nil {
			var u core.User
			u, err = s.users.GetUser(ctx, claims.UserID)
			if err == nil {
				claims.Username = u.Username
				claims.IsAdmin = u.IsAdmin
			}
		}
		if err != nil {
			log.FromContext(ctx).DebugContext(ctx, "Ignoring session token", log.FieldError, err)
			if _, cookieErr := r.Cookie(auth.CookieName); cookieErr == nil {
				http.SetCookie(w, auth.ClearCookie())
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx = auth.WithUser(ctx, claims)
		ctx = log.WithLogger(ctx, log.FromContext(ctx).With(log.FieldUserID, claims.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireUser redirects anonymous visitors to the login page.
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.UserFromContext(r.Context()); !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

// requireAPIUser answers anonymous requests with 401 JSON.
func (s *Server) requireAPIUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.UserFromContext(r.Context()); !ok {
			atomicAuthFailure(&s.metrics)
			JSONError(http.StatusUnauthorized, "authentication required").Write(w, r)
			return
		}
		next(w, r)
	}
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireUser(func(w http.ResponseWriter, r *http.Request) {
		if user, _ := auth.UserFromContext(r.Context()); !user.IsAdmin {
			NewResponse().Error(msgNeedAdmin).Redirect("/dashboard").Write(w, r)
			return
		}
		next(w, r)
	})
}

func actorFrom(r *http.Request) services.Actor {
	user, _ := auth.UserFromContext(r.Context())
	return services.Actor{UserID: user.UserID, IsAdmin: user.IsAdmin}
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserFromContext(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login.html", s.page(w, r, "เข้าสู่ระบบ"))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)
	if err := r.ParseForm(); err != nil {
		ErrorResponse(http.StatusBadRequest, "invalid form").Write(w, r)
		return
	}
	username := sanitizeInput(r.PostForm.Get("username"))
	u, err := s.auth.Login(ctx, s.users, username, r.PostForm.Get("password"))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			atomicAuthFailure(&s.metrics)
			logger.WarnContext(ctx, "Login failed", log.FieldUsername, username, log.FieldClientIP, extractClientIP(r))
			NewResponse().Error(msgBadLogin).Redirect("/login").Write(w, r)
			return
		}
		logger.Failure(ctx, "Login lookup failed", err, log.FieldOperation, log.OpLogin)
		ErrorResponse(http.StatusInternalServerError, "login failed").Write(w, r)
		return
	}

	token, err := s.auth.GenerateToken(u)
	if err != nil {
		logger.Failure(ctx, "Failed to sign session token", err)
		ErrorResponse(http.StatusInternalServerError, "login failed").Write(w, r)
		return
	}
	http.SetCookie(w, s.auth.SessionCookie(token, s.secure))
	logger.InfoContext(ctx, "User logged in", log.FieldUserID, u.ID, log.FieldUsername, u.Username)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "register.html", s.page(w, r, "สมัครสมาชิก"))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		ErrorResponse(http.StatusBadRequest, "invalid form").Write(w, r)
		return
	}
	username := sanitizeInput(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		NewResponse().Error(msgNeedCredentials).Redirect("/register").Write(w, r)
		return
	}
	u, err := s.auth.Register(ctx, s.users, username, password)
	switch {
	case errors.Is(err, ledger.ErrDuplicateUsername):
		NewResponse().Error(msgUserExists).Redirect("/register").Write(w, r)
		return
	case isValidationError(err):
		NewResponse().Error(msgInvalidUsername).Redirect("/register").Write(w, r)
		return
	case err != nil:
		log.FromContext(ctx).Failure(ctx, "Registration failed", err, log.FieldUsername, username)
		ErrorResponse(http.StatusInternalServerError, "registration failed").Write(w, r)
		return
	}
	log.FromContext(ctx).InfoContext(ctx, "User registered", log.FieldUserID, u.ID, log.FieldUsername, u.Username)
	NewResponse().Success(msgRegistered).Redirect("/login").Write(w, r)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, auth.ClearCookie())
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleToken issues a bearer token for API clients such as the CLI. It
// accepts JSON or form credentials.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req tokenRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
			JSONError(http.StatusBadRequest, "invalid JSON body").Write(w, r)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			JSONError(http.StatusBadRequest, "invalid form").Write(w, r)
			return
		}
		req = tokenRequest{Username: r.PostForm.Get("username"), Password: r.PostForm.Get("password")}
	}

	u, err := s.auth.Login(ctx, s.users, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			atomicAuthFailure(&s.metrics)
			JSONError(http.StatusUnauthorized, "invalid credentials").Write(w, r)
			return
		}
		log.FromContext(ctx).Failure(ctx, "Token login failed", err)
		JSONError(http.StatusInternalServerError, "login failed").Write(w, r)
		return
	}
	token, err := s.auth.GenerateToken(u)
	if err != nil {
		log.FromContext(ctx).Failure(ctx, "Failed to sign API token", err)
		JSONError(http.StatusInternalServerError, "login failed").Write(w, r)
		return
	}
	NewResponse().JSON(tokenResponse{Token: token, ExpiresAt: time.Now().Add(s.auth.TTL()).UTC()}).Write(w, r)
}
