// Package http serves the ledger web application: the session pages, the
// dashboard with its JSON chart endpoints, entry forms, CSV transfer and
// user administration.
package http

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"bunchee/internal/auth"
	"bunchee/internal/core"
	"bunchee/internal/ledger"
	"bunchee/internal/log"
	"bunchee/internal/services"
	appweb "bunchee/web"
)

const contentSecurityPolicy = "default-src 'self'; script-src 'self' https://cdn.jsdelivr.net; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'"

// Deps are the collaborators the server needs.
type Deps struct {
	Ledger *services.LedgerService
	Auth   *auth.Auth
	Users  ledger.UserStore
	// Ready reports whether the storage backend is reachable. Nil means
	// always ready.
	Ready func(context.Context) error
	// Logger defaults to the slog default with the http component.
	Logger *log.Logger
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
	// RateLimit is the number of POST requests allowed per client and
	// minute. Zero means 60.
	RateLimit int
}

type Server struct {
	http.Server
	templates   *template.Template
	ledger      *services.LedgerService
	auth        *auth.Auth
	users       ledger.UserStore
	ready       func(context.Context) error
	logger      *log.Logger
	secure      bool
	rateLimiter *rateLimiter
	metrics     securityMetrics
	started     time.Time

	shutdownOnce sync.Once
}

// NewServer builds the server and its routes. Templates are parsed once at
// startup from the embedded file system.
func NewServer(addr string, deps Deps) *Server {
	mux := http.NewServeMux()

	logger := deps.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		ledger:      deps.Ledger,
		auth:        deps.Auth,
		users:       deps.Users,
		ready:       deps.Ready,
		logger:      logger,
		secure:      deps.SecureCookies,
		rateLimiter: newRateLimiter(deps.RateLimit, time.Minute),
		started:     time.Now(),
	}

	t, err := template.New("").Funcs(templateFuncs(deps.Ledger.Location())).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Failure(context.Background(), "Failed parsing templates", err)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600")
			static.ServeHTTP(w, r)
		}))
	} else {
		logger.Failure(context.Background(), "Failed to mount embedded static FS", err)
	}

	mux.HandleFunc("GET /ping", handlePing)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /register", s.handleRegisterPage)
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("GET /logout", s.handleLogout)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("POST /api/token", s.handleToken)

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /dashboard", s.requireUser(s.handleDashboard))
	mux.HandleFunc("GET /chart-data", s.requireAPIUser(s.handleChartData))
	mux.HandleFunc("GET /monthly-stats", s.requireAPIUser(s.handleMonthlyStats))

	mux.HandleFunc("POST /entries", s.requireUser(s.handleCreateEntry))
	mux.HandleFunc("POST /entries/delete-all", s.requireUser(s.handleDeleteAll))
	mux.HandleFunc("GET /entries/{id}/edit", s.requireUser(s.handleEditPage))
	mux.HandleFunc("POST /entries/{id}/update", s.requireUser(s.handleUpdateEntry))
	mux.HandleFunc("POST /entries/{id}/delete", s.requireUser(s.handleDeleteEntry))

	mux.HandleFunc("GET /export.csv", s.requireUser(s.handleExport))
	mux.HandleFunc("POST /import", s.requireUser(s.handleImport))

	mux.HandleFunc("GET /admin", s.requireAdmin(s.handleAdmin))
	mux.HandleFunc("POST /admin/users", s.requireAdmin(s.handleCreateUser))
	mux.HandleFunc("POST /admin/users/{id}/delete", s.requireAdmin(s.handleDeleteUser))
	mux.HandleFunc("POST /admin/users/{id}/toggle-admin", s.requireAdmin(s.handleToggleAdmin))
	mux.HandleFunc("POST /admin/users/{id}/reset-password", s.requireAdmin(s.handleResetPassword))
	mux.HandleFunc("POST /account/password", s.requireUser(s.handleChangePassword))

	requestLog := log.RequestMiddleware(logger,
		func(r *http.Request) string { return r.Header.Get("X-Request-ID") },
		extractClientIP)
	s.Handler = s.withSecurityHeaders(requestLog(s.authenticate(mux)))
	return s
}

// Shutdown stops the rate limiter and drains the HTTP server. It is safe to
// call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withSecurityHeaders assigns the request id, rate limits state-changing
// requests and sets the browser security headers.
func (s *Server) withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)

		requestID := r.Header.Get("X-Request-ID")
		if !validRequestID(requestID) {
			requestID = generateRequestID()
			r.Header.Set("X-Request-ID", requestID)
		}
		w.Header().Set("X-Request-ID", requestID)

		if detectSuspiciousRequest(r, &s.metrics) {
			s.logger.WarnContext(r.Context(), "Suspicious request",
				log.FieldRequestID, requestID,
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.UserAgent())
		}

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			atomic.AddInt64(&s.metrics.rateLimitHits, 1)
			s.logger.WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldRequestID, requestID,
				log.FieldClientIP, clientIP,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(max(s.rateLimiter.retryAfter(clientIP), 1)))
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Content-Security-Policy", contentSecurityPolicy)
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// templateFuncs formats money and times for the page templates. Times are
// shown in loc.
func templateFuncs(loc *time.Location) template.FuncMap {
	return template.FuncMap{
		"baht":     func(m core.Money) string { return formatBaht(m.Cents) },
		"datetime": func(t time.Time) string { return t.In(loc).Format("2006-01-02 15:04") },
		"date":     func(t time.Time) string { return t.In(loc).Format("2006-01-02") },
		"clock":    func(t time.Time) string { return t.In(loc).Format("15:04") },
		"add":      func(a, b int) int { return a + b },
		"categories": func(selected string) map[string]any {
			return map[string]any{
				"Income":   core.IncomeCategories,
				"Expense":  core.ExpenseCategories,
				"Selected": selected,
			}
		},
		"seq": func(from, to int) []int {
			var out []int
			for i := from; i <= to; i++ {
				out = append(out, i)
			}
			return out
		},
	}
}

// render executes a page template into a buffer so a template failure still
// yields a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded", "template", name)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).Failure(r.Context(), "Template execution failed", err, "template", name)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// pageData is shared by every page template.
type pageData struct {
	Title string
	User  *auth.Claims
	Flash *Flash
}

func (s *Server) page(w http.ResponseWriter, r *http.Request, title string) pageData {
	user, _ := auth.UserFromContext(r.Context())
	return pageData{Title: title, User: user, Flash: popFlash(w, r)}
}

func handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w, r)
}

// handleReady checks the templates and the storage backend.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{"templates": "ok", "storage": "ok"}
	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			checks["storage"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		}
	}
	NewResponse().Status(code).JSON(map[string]any{
		"status":         status,
		"checks":         checks,
		"active_clients": s.rateLimiter.activeClients(),
		"limited_posts":  s.rateLimiter.totalHits(),
		"security":       s.metrics.snapshot(),
	}).Write(w, r)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserFromContext(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
