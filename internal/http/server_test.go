package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"bunchee/internal/auth"
	"bunchee/internal/cache"
	"bunchee/internal/core"
	"bunchee/internal/ledger"
	"bunchee/internal/ledger/memory"
	"bunchee/internal/services"
)

var ict = time.FixedZone("ICT", 7*3600)

type testEnv struct {
	t      *testing.T
	srv    *Server
	store  *memory.Store
	auth   *auth.Auth
	ledger *services.LedgerService
	admin  core.User
	alice  core.User
	bob    core.User
}

func newTestEnv(t *testing.T, mutate ...func(*Deps)) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	a := auth.New("test-secret", time.Hour, auth.WithCost(bcrypt.MinCost))
	now := time.Date(2025, 7, 15, 10, 0, 0, 0, ict)
	svc := services.NewLedgerService(store, ict,
		services.WithStatsCache(cache.NewStats(16, time.Minute)),
		services.WithClock(func() time.Time { return now }))

	if err := a.EnsureAdmin(ctx, store, "admin-pw"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	admin, err := store.GetUserByName(ctx, ledger.AdminUsername)
	if err != nil {
		t.Fatal(err)
	}
	alice, err := a.Register(ctx, store, "alice", "alice-pw")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := a.Register(ctx, store, "bob", "bob-pw")
	if err != nil {
		t.Fatal(err)
	}

	deps := Deps{Ledger: svc, Auth: a, Users: store}
	for _, m := range mutate {
		m(&deps)
	}
	srv := NewServer(":0", deps)
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return &testEnv{t: t, srv: srv, store: store, auth: a, ledger: svc, admin: admin, alice: alice, bob: bob}
}

// do sends a request as user; a nil user is anonymous.
func (e *testEnv) do(method, target string, body string, user *core.User) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	e.sign(req, user)
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) sign(req *http.Request, user *core.User) {
	e.t.Helper()
	if user == nil {
		return
	}
	tok, err := e.auth.GenerateToken(*user)
	if err != nil {
		e.t.Fatal(err)
	}
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: tok})
}

func (e *testEnv) addEntry(userID int64, kind core.Kind, label string, cents int64) core.Entry {
	e.t.Helper()
	created, err := e.ledger.CreateEntry(context.Background(), userID,
		core.Entry{Kind: kind, Category: label, Amount: core.Money{Cents: cents}})
	if err != nil {
		e.t.Fatalf("CreateEntry: %v", err)
	}
	return created
}

// flashOf returns the flash message set by rr, if any.
func flashOf(rr *httptest.ResponseRecorder) string {
	for _, c := range rr.Result().Cookies() {
		if c.Name == flashCookie && c.Value != "" {
			raw, _ := url.QueryUnescape(c.Value)
			_, msg, _ := strings.Cut(raw, "|")
			return msg
		}
	}
	return ""
}

func expectRedirect(t *testing.T, rr *httptest.ResponseRecorder, location string) {
	t.Helper()
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303 (body %q)", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Location"); got != location {
		t.Fatalf("Location = %q, want %q", got, location)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/ping", "", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("/ping = %d %q", rr.Code, rr.Body.String())
	}
	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := env.do(http.MethodGet, path, "", nil); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
	rr = env.do(http.MethodGet, "/readyz", "", nil)
	if !strings.Contains(rr.Body.String(), `"limited_posts":0`) {
		t.Fatalf("/readyz should report limited posts: %s", rr.Body.String())
	}

	down := newTestEnv(t, func(d *Deps) {
		d.Ready = func(context.Context) error { return errors.New("db down") }
	})
	rr = down.do(http.MethodGet, "/readyz", "", nil)
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "db down") {
		t.Fatalf("/readyz with failing storage = %d %s", rr.Code, rr.Body.String())
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodGet, "/login", "", nil)
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "X-Request-ID"} {
		if rr.Header().Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "upstream-42")
	rec := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "upstream-42" {
		t.Errorf("X-Request-ID = %q, want the upstream id", got)
	}
}

func TestRootRedirects(t *testing.T) {
	env := newTestEnv(t)
	expectRedirect(t, env.do(http.MethodGet, "/", "", nil), "/login")
	expectRedirect(t, env.do(http.MethodGet, "/", "", &env.alice), "/dashboard")
	expectRedirect(t, env.do(http.MethodGet, "/dashboard", "", nil), "/login")
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/login", "username=alice&password=wrong", nil)
	expectRedirect(t, rr, "/login")
	if flashOf(rr) != msgBadLogin {
		t.Fatalf("flash = %q", flashOf(rr))
	}

	rr = env.do(http.MethodPost, "/login", "username=alice&password=alice-pw", nil)
	expectRedirect(t, rr, "/dashboard")
	var session *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			session = c
		}
	}
	if session == nil || session.Value == "" || !session.HttpOnly {
		t.Fatalf("session cookie = %+v", session)
	}
	claims, err := env.auth.ValidateToken(session.Value)
	if err != nil || claims.UserID != env.alice.ID {
		t.Fatalf("token claims = %+v, %v", claims, err)
	}

	rr = env.do(http.MethodGet, "/logout", "", &env.alice)
	expectRedirect(t, rr, "/login")
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/register", "username=&password=x", nil)
	expectRedirect(t, rr, "/register")
	if flashOf(rr) != msgNeedCredentials {
		t.Fatalf("flash = %q", flashOf(rr))
	}

	rr = env.do(http.MethodPost, "/register", "username=alice&password=x", nil)
	expectRedirect(t, rr, "/register")
	if flashOf(rr) != msgUserExists {
		t.Fatalf("flash = %q", flashOf(rr))
	}

	rr = env.do(http.MethodPost, "/register", "username=carol&password=carol-pw", nil)
	expectRedirect(t, rr, "/login")
	if _, err := env.store.GetUserByName(context.Background(), "carol"); err != nil {
		t.Fatalf("carol not stored: %v", err)
	}
}

func TestTokenEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/token", strings.NewReader(`{"username":"alice","password":"alice-pw"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rr.Code, rr.Body.String())
	}
	var resp tokenResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("response %s: %v", rr.Body.String(), err)
	}

	// The bearer token authenticates API calls.
	req = httptest.NewRequest(http.MethodGet, "/monthly-stats", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	rr = httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("bearer request status = %d", rr.Code)
	}

	rr = env.do(http.MethodPost, "/api/token", "username=alice&password=nope", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad credentials status = %d", rr.Code)
	}
}

func TestChartDataEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.addEntry(env.alice.ID, core.Income, "print A4 สี", 1500)
	env.addEntry(env.bob.ID, core.Income, "print A4 สี", 500)
	env.addEntry(env.alice.ID, core.Expense, "ค่าไฟ", 30000)

	rr := env.do(http.MethodGet, "/chart-data?kind=income&month=7&year=2025", "", &env.alice)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q", ct)
	}
	var data core.ChartData
	if err := json.Unmarshal(rr.Body.Bytes(), &data); err != nil {
		t.Fatal(err)
	}
	if len(data.Labels) != 1 || data.Labels[0] != "print A4 สี" || data.Values[0] != 20 {
		t.Fatalf("income chart = %+v", data)
	}

	// kind defaults to expense and month/year to the current month.
	rr = env.do(http.MethodGet, "/chart-data", "", &env.alice)
	if err := json.Unmarshal(rr.Body.Bytes(), &data); err != nil {
		t.Fatal(err)
	}
	if len(data.Labels) != 1 || data.Labels[0] != "ค่าไฟ" || data.Values[0] != 300 {
		t.Fatalf("default chart = %+v", data)
	}

	rr = env.do(http.MethodGet, "/chart-data?kind=income&month=6&year=2025", "", &env.alice)
	if body := strings.TrimSpace(rr.Body.String()); body != `{"labels":[],"values":[]}` {
		t.Fatalf("empty month body = %s", body)
	}

	for _, q := range []string{"month=abc", "year=20x5", "month=13"} {
		if rr := env.do(http.MethodGet, "/chart-data?"+q, "", &env.alice); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rr.Code)
		}
	}
	if rr := env.do(http.MethodGet, "/chart-data", "", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rr.Code)
	}
}

func TestMonthlyStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.addEntry(env.alice.ID, core.Income, "a", 150050)
	env.addEntry(env.bob.ID, core.Expense, "b", 50025)

	rr := env.do(http.MethodGet, "/monthly-stats?month=7&year=2025", "", &env.bob)
	var stats core.MonthlyStats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("%s: %v", rr.Body.String(), err)
	}
	if stats.Income != 1500.5 || stats.Expense != 500.25 || stats.Balance != 1000.25 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestDashboardPage(t *testing.T) {
	env := newTestEnv(t)
	env.addEntry(env.alice.ID, core.Income, "print A4 สี", 1500)
	env.addEntry(env.bob.ID, core.Expense, "ค่าน้ำ", 700)

	rr := env.do(http.MethodGet, "/dashboard", "", &env.alice)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{
		`id="pieChart"`, `id="chart-kind"`, `id="chart-month"`, `id="chart-year"`, `id="load-chart"`,
		`class="card-title"`, `data-summary="income"`, `data-summary="expense"`, `data-summary="balance"`,
		"สรุปยอดประจำเดือน 7/2025", "print A4 สี", "ค่าน้ำ", "/static/dashboard.js",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %s", want)
		}
	}
	// Only alice's own entry offers edit controls.
	if strings.Count(body, "/edit\">") != 1 {
		t.Errorf("expected exactly one edit link for alice")
	}

	rr = env.do(http.MethodGet, "/dashboard?q=%E0%B8%84%E0%B9%88%E0%B8%B2", "", &env.alice)
	if strings.Contains(rr.Body.String(), "<td>print A4 สี</td>") {
		t.Error("search should filter out non-matching entries")
	}
}

func TestCreateEntry(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/entries", "kind=income&category=&custom_name=&amount=10", &env.alice)
	expectRedirect(t, rr, "/dashboard")
	if flashOf(rr) != msgMissingName {
		t.Fatalf("flash = %q", flashOf(rr))
	}
	rr = env.do(http.MethodPost, "/entries", "kind=income&custom_name=x&amount=abc", &env.alice)
	if flashOf(rr) != msgInvalidAmount {
		t.Fatalf("flash = %q", flashOf(rr))
	}

	rr = env.do(http.MethodPost, "/entries", "kind=expense&custom_name=tape&amount=45.50&notes=shop", &env.alice)
	expectRedirect(t, rr, "/dashboard")
	if flashOf(rr) != msgSaved {
		t.Fatalf("flash = %q", flashOf(rr))
	}
	all, _ := env.store.ListAllEntries(context.Background())
	if len(all) != 1 || all[0].UserID != env.alice.ID || all[0].Amount.Cents != 4550 || all[0].Kind != core.Expense {
		t.Fatalf("stored entries = %+v", all)
	}

	if rr := env.do(http.MethodGet, "/entries", "", &env.alice); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /entries status = %d, want 405", rr.Code)
	}
}

func TestEntryPermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	e := env.addEntry(env.alice.ID, core.Income, "a", 1000)
	path := "/entries/" + itoa(e.ID)

	rr := env.do(http.MethodPost, path+"/delete", "", &env.bob)
	expectRedirect(t, rr, "/dashboard")
	if flashOf(rr) != msgNoDeleteRight {
		t.Fatalf("flash = %q", flashOf(rr))
	}
	rr = env.do(http.MethodGet, path+"/edit", "", &env.bob)
	if flashOf(rr) != msgNoEditRight {
		t.Fatalf("edit page flash = %q", flashOf(rr))
	}

	rr = env.do(http.MethodGet, path+"/edit", "", &env.alice)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `value="2025-07-15"`) {
		t.Fatalf("edit page = %d", rr.Code)
	}

	rr = env.do(http.MethodPost, path+"/update",
		"kind=expense&category=&custom_name=ink&amount=12.5&entry_date=2025-06-30&entry_time=23:30", &env.alice)
	expectRedirect(t, rr, "/dashboard")
	got, _ := env.store.GetEntry(ctx, e.ID)
	want := time.Date(2025, 6, 30, 23, 30, 0, 0, ict)
	if got.Kind != core.Expense || got.CustomName != "ink" || got.Amount.Cents != 1250 || !got.CreatedAt.Equal(want) || got.UserID != env.alice.ID {
		t.Fatalf("updated entry = %+v", got)
	}

	rr = env.do(http.MethodPost, path+"/update", "kind=expense&custom_name=ink&amount=1&entry_date=30/06/2025", &env.alice)
	expectRedirect(t, rr, path+"/edit")
	if flashOf(rr) != msgBadDateTime {
		t.Fatalf("flash = %q", flashOf(rr))
	}

	rr = env.do(http.MethodPost, path+"/delete", "", &env.admin)
	if flashOf(rr) != msgDeleted {
		t.Fatalf("admin delete flash = %q", flashOf(rr))
	}
	if _, err := env.store.GetEntry(ctx, e.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("entry still present: %v", err)
	}

	if rr := env.do(http.MethodPost, "/entries/999/delete", "", &env.alice); flashOf(rr) != msgNotFound {
		t.Fatalf("missing entry flash = %q", flashOf(rr))
	}
}

func TestDeleteAllOnlyOwnEntries(t *testing.T) {
	env := newTestEnv(t)
	env.addEntry(env.alice.ID, core.Income, "a", 100)
	env.addEntry(env.alice.ID, core.Income, "b", 100)
	env.addEntry(env.bob.ID, core.Income, "c", 100)

	rr := env.do(http.MethodPost, "/entries/delete-all", "", &env.alice)
	expectRedirect(t, rr, "/dashboard")
	all, _ := env.store.ListAllEntries(context.Background())
	if len(all) != 1 || all[0].UserID != env.bob.ID {
		t.Fatalf("remaining = %+v", all)
	}
}

func TestExportAndImport(t *testing.T) {
	env := newTestEnv(t)
	env.addEntry(env.alice.ID, core.Income, "print A4 สี", 1500)
	env.addEntry(env.bob.ID, core.Expense, "ค่าน้ำ", 700)

	rr := env.do(http.MethodGet, "/export.csv", "", &env.alice)
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d", rr.Code)
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Disposition"), "attachment") {
		t.Errorf("Content-Disposition = %q", rr.Header().Get("Content-Disposition"))
	}
	exported := rr.Body.Bytes()
	if !bytes.HasPrefix(exported, []byte("\xEF\xBB\xBFid,is_income,category,custom_name,amount,notes,created_at\n")) {
		t.Fatalf("export header = %q", exported[:min(len(exported), 80)])
	}
	if bytes.Count(exported, []byte("\n")) != 3 {
		t.Fatalf("export should hold both users' entries:\n%s", exported)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "entries.csv")
	_, _ = fw.Write(exported)
	_, _ = fw.Write([]byte("9,True,,,not-a-number,,\n"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	env.sign(req, &env.bob)
	rec := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rec, req)
	expectRedirect(t, rec, "/dashboard")
	if msg := flashOf(rec); msg != "นำเข้า 2 รายการ (ข้าม 1 แถว)" {
		t.Fatalf("flash = %q", msg)
	}

	all, _ := env.store.ListAllEntries(context.Background())
	if len(all) != 4 {
		t.Fatalf("entries after import = %d", len(all))
	}
	for _, e := range all[2:] {
		if e.UserID != env.bob.ID {
			t.Errorf("imported entry %d owned by %d, want bob", e.ID, e.UserID)
		}
	}

	rr = env.do(http.MethodPost, "/import", "", &env.bob)
	if flashOf(rr) != msgNoFile {
		t.Fatalf("no file flash = %q", flashOf(rr))
	}
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rr := env.do(http.MethodGet, "/admin", "", &env.alice)
	expectRedirect(t, rr, "/dashboard")
	if flashOf(rr) != msgNeedAdmin {
		t.Fatalf("flash = %q", flashOf(rr))
	}

	rr = env.do(http.MethodGet, "/admin", "", &env.admin)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "alice") {
		t.Fatalf("admin page = %d", rr.Code)
	}

	adminPath := "/admin/users/" + itoa(env.admin.ID)
	for _, tc := range []struct{ action, msg string }{
		{"/delete", msgProtectedDelete},
		{"/toggle-admin", msgProtectedToggle},
		{"/reset-password", msgProtectedReset},
	} {
		rr := env.do(http.MethodPost, adminPath+tc.action, "new_password=x", &env.admin)
		if flashOf(rr) != tc.msg {
			t.Errorf("%s flash = %q, want %q", tc.action, flashOf(rr), tc.msg)
		}
	}

	bobPath := "/admin/users/" + itoa(env.bob.ID)
	env.do(http.MethodPost, bobPath+"/toggle-admin", "", &env.admin)
	if u, _ := env.store.GetUser(ctx, env.bob.ID); !u.IsAdmin {
		t.Fatal("bob should be admin after toggle")
	}
	// The store, not the token, decides admin rights.
	if rr := env.do(http.MethodGet, "/admin", "", &env.bob); rr.Code != http.StatusOK {
		t.Fatalf("promoted bob admin page = %d", rr.Code)
	}

	env.do(http.MethodPost, bobPath+"/reset-password", "new_password=fresh", &env.admin)
	if _, err := env.auth.Login(ctx, env.store, "bob", "fresh"); err != nil {
		t.Fatalf("login with reset password: %v", err)
	}

	env.addEntry(env.bob.ID, core.Income, "x", 100)
	env.do(http.MethodPost, bobPath+"/delete", "", &env.admin)
	if _, err := env.store.GetUser(ctx, env.bob.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("bob still present: %v", err)
	}
	if all, _ := env.store.ListAllEntries(ctx); len(all) != 0 {
		t.Fatalf("bob's entries remain: %+v", all)
	}
	// A token of a deleted user no longer authenticates.
	expectRedirect(t, env.do(http.MethodGet, "/dashboard", "", &env.bob), "/login")

	rr = env.do(http.MethodPost, "/admin/users", "username=dave&password=pw&is_admin=1", &env.admin)
	if flashOf(rr) != msgUserCreated {
		t.Fatalf("create user flash = %q", flashOf(rr))
	}
	if u, err := env.store.GetUserByName(ctx, "dave"); err != nil || !u.IsAdmin {
		t.Fatalf("dave = %+v, %v", u, err)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/account/password", "current_password=wrong&new_password=n", &env.alice)
	expectRedirect(t, rr, "/dashboard")
	if flashOf(rr) != msgWrongPassword {
		t.Fatalf("flash = %q", flashOf(rr))
	}
	rr = env.do(http.MethodPost, "/account/password", "current_password=alice-pw&new_password=n3w", &env.alice)
	if flashOf(rr) != msgPasswordChanged {
		t.Fatalf("flash = %q", flashOf(rr))
	}
	if _, err := env.auth.Login(context.Background(), env.store, "alice", "n3w"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	rr = env.do(http.MethodPost, "/account/password", "current_password=admin-pw&new_password=", &env.admin)
	expectRedirect(t, rr, "/admin")
}

func TestPostRateLimit(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.RateLimit = 2 })
	for i := 0; i < 2; i++ {
		if rr := env.do(http.MethodPost, "/login", "username=x&password=y", nil); rr.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d limited too early", i)
		}
	}
	rr := env.do(http.MethodPost, "/login", "username=x&password=y", nil)
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("third POST = %d, Retry-After %q", rr.Code, rr.Header().Get("Retry-After"))
	}
	// GET requests are never limited.
	if rr := env.do(http.MethodGet, "/ping", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("GET after limit = %d", rr.Code)
	}
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodGet, "/static/dashboard.js", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "chart-data") {
		t.Fatalf("dashboard.js = %d", rr.Code)
	}
	if rr.Header().Get("Cache-Control") == "" {
		t.Error("static assets should be cacheable")
	}

	// The load button is bound even when the filter controls are missing;
	// only the initial load depends on them.
	js := rr.Body.String()
	bind := strings.Index(js, "btn.addEventListener('click', refresh)")
	auto := strings.Index(js, "if (document.getElementById('chart-kind')) refresh()")
	if bind < 0 || auto < bind {
		t.Error("load button must be bound before the guarded initial load")
	}
	if strings.Contains(js, "if (!kindEl || !monthEl || !yearEl) return;") {
		t.Error("missing controls must not skip binding the load button")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := env.srv.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if err := env.srv.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
}
