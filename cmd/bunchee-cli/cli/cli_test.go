package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pterm/pterm"
)

// fakeServer serves the dashboard API for one user.
type fakeServer struct {
	mu       sync.Mutex
	requests []string
	token    string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.URL.String())
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/api/token" {
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["password"] != "alice-pw" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"` + f.token + `","expires_at":"2099-01-01T00:00:00Z"}`))
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+f.token {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"authentication required"}`))
		return
	}
	switch r.URL.Path {
	case "/chart-data":
		if r.URL.Query().Get("month") == "2" {
			_, _ = w.Write([]byte(`{"labels":[],"values":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"labels":["ค่าไฟ","ink"],"values":[300,100]}`))
	case "/monthly-stats":
		_, _ = w.Write([]byte(`{"income":1000,"expense":400,"balance":600}`))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeServer) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

type run struct {
	stdout, stderr bytes.Buffer
	err            error
}

// execute runs the CLI against srv with a clean environment.
func execute(t *testing.T, srv *httptest.Server, stdin string, args ...string) *run {
	t.Helper()
	pterm.DisableStyling()
	t.Cleanup(pterm.EnableStyling)

	t.Setenv("BUNCHEE_URL", srv.URL)
	t.Setenv("BUNCHEE_TOKEN", "")
	t.Setenv("LOG_LEVEL", "")

	cmd := NewRootCmd()
	res := &run{}
	cmd.SetOut(&res.stdout)
	cmd.SetErr(&res.stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	res.err = cmd.Execute()
	return res
}

func newFake(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	t.Setenv("BUNCHEE_HOME", t.TempDir())
	fake := &fakeServer{token: "tok-alice"}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, srv
}

func TestLoginSavesToken(t *testing.T) {
	_, srv := newFake(t)

	res := execute(t, srv, "wrong\n", "login", "--username", "alice")
	if res.err == nil || !strings.Contains(res.err.Error(), "invalid credentials") {
		t.Fatalf("bad password: err = %v", res.err)
	}

	res = execute(t, srv, "alice-pw\n", "login", "--username", "alice")
	if res.err != nil {
		t.Fatalf("login: %v\n%s", res.err, res.stderr.String())
	}
	data, err := LoadToken()
	if err != nil {
		t.Fatal(err)
	}
	if data.Token != "tok-alice" || data.Username != "alice" || data.Server != srv.URL {
		t.Fatalf("saved token = %+v", data)
	}

	info, err := os.Stat(filepath.Join(os.Getenv("BUNCHEE_HOME"), tokenFile))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("token file mode = %v", info.Mode().Perm())
	}

	res = execute(t, srv, "", "token", "show")
	if res.err != nil || strings.TrimSpace(res.stdout.String()) != "tok-alice" {
		t.Fatalf("token show = %q, %v", res.stdout.String(), res.err)
	}

	res = execute(t, srv, "", "token", "clear")
	if res.err != nil {
		t.Fatal(res.err)
	}
	if _, err := LoadToken(); err == nil {
		t.Fatal("token should be removed")
	}
}

func TestDashboardUsesSavedToken(t *testing.T) {
	fake, srv := newFake(t)
	if err := SaveToken(TokenData{Server: srv.URL, Username: "alice", Token: "tok-alice"}); err != nil {
		t.Fatal(err)
	}

	res := execute(t, srv, "", "dashboard", "--month", "7", "--year", "2025")
	if res.err != nil {
		t.Fatalf("dashboard: %v\n%s", res.err, res.stderr.String())
	}
	out := res.stdout.String()
	for _, want := range []string{"สรุปยอดประจำเดือน 7/2025", "ค่าไฟ (75.0%)", "ink (25.0%)", "1000.00", "400.00", "600.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	var chart, stats bool
	for _, u := range fake.seen() {
		chart = chart || u == "/chart-data?kind=expense&month=7&year=2025"
		stats = stats || u == "/monthly-stats?month=7&year=2025"
	}
	if !chart || !stats {
		t.Fatalf("unexpected requests %v", fake.seen())
	}
}

func TestDashboardWithoutTokenReportsEachFailure(t *testing.T) {
	_, srv := newFake(t)

	res := execute(t, srv, "", "dashboard", "--month", "7", "--year", "2025")
	if res.err != errReported {
		t.Fatalf("err = %v, want errReported", res.err)
	}
	// Both loads fail and each failure is printed.
	if n := strings.Count(res.stderr.String(), "bunchee-cli login"); n != 2 {
		t.Fatalf("expected 2 reported failures, got %d:\n%s", n, res.stderr.String())
	}
}

func TestDashboardInteractive(t *testing.T) {
	fake, srv := newFake(t)

	res := execute(t, srv, "2 2024 income\n\nq\n", "--token", "tok-alice", "dashboard", "-i", "--month", "7", "--year", "2025")
	if res.err != nil {
		t.Fatalf("dashboard -i: %v\n%s", res.err, res.stderr.String())
	}
	out := res.stdout.String()
	if !strings.Contains(out, "สรุปยอดประจำเดือน 7/2025") || !strings.Contains(out, "สรุปยอดประจำเดือน 2/2024") {
		t.Fatalf("missing refreshed titles:\n%s", out)
	}
	if !strings.Contains(out, "No entries for this month") {
		t.Fatalf("empty month should say so:\n%s", out)
	}

	charts := 0
	for _, u := range fake.seen() {
		if strings.HasPrefix(u, "/chart-data") {
			charts++
		}
	}
	if charts != 3 {
		t.Fatalf("expected 3 chart loads (initial, new filter, reload), got %d: %v", charts, fake.seen())
	}
	found := false
	for _, u := range fake.seen() {
		found = found || u == "/chart-data?kind=income&month=2&year=2024"
	}
	if !found {
		t.Fatalf("filter line not applied: %v", fake.seen())
	}
}

func TestReportWritesPDF(t *testing.T) {
	_, srv := newFake(t)
	out := filepath.Join(t.TempDir(), "july.pdf")

	res := execute(t, srv, "", "--token", "tok-alice", "report", "--month", "7", "--year", "2025", "--out", out)
	if res.err != nil {
		t.Fatalf("report: %v\n%s", res.err, res.stderr.String())
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(b, []byte("%PDF-")) {
		t.Fatalf("not a PDF: %q", b[:min(len(b), 16)])
	}

	res = execute(t, srv, "", "report", "--out", filepath.Join(t.TempDir(), "x.pdf"))
	if res.err == nil || !strings.Contains(res.err.Error(), "bunchee-cli login") {
		t.Fatalf("report without token: err = %v", res.err)
	}
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)
	if (TokenData{}).Expired(now) {
		t.Fatal("zero expiry never expires")
	}
	if !(TokenData{ExpiresAt: now}).Expired(now) {
		t.Fatal("token expiring now is expired")
	}
	if (TokenData{ExpiresAt: now.Add(time.Minute)}).Expired(now) {
		t.Fatal("future expiry is valid")
	}
}

func TestFilterDefaults(t *testing.T) {
	now := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	f := (&filterFlags{kind: "income"}).filter(now)
	if f.Kind != "income" || f.Month != "3" || f.Year != "2025" {
		t.Fatalf("filter = %+v", f)
	}
	raw := (&filterFlags{kind: "x", month: "abc", year: ""}).filter(now)
	if raw.Month != "abc" {
		t.Fatalf("month should be forwarded as given, got %q", raw.Month)
	}
}

func TestVersion(t *testing.T) {
	_, srv := newFake(t)
	res := execute(t, srv, "", "version")
	if res.err != nil || !strings.Contains(res.stdout.String(), "bunchee-cli version "+Version) {
		t.Fatalf("version = %q, %v", res.stdout.String(), res.err)
	}
}
