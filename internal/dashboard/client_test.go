package dashboard

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDecodeChartData(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
		labels  int
	}{
		{name: "valid", body: `{"labels":["A","B"],"values":[1,2.5]}`, labels: 2},
		{name: "empty", body: `{"labels":[],"values":[]}`, labels: 0},
		{name: "length mismatch", body: `{"labels":["A"],"values":[]}`, wantErr: ErrMalformedChartData},
		{name: "missing values", body: `{"labels":["A"]}`, wantErr: ErrMalformedChartData},
		{name: "null value", body: `{"labels":["A","B"],"values":[1,null]}`, wantErr: ErrMalformedChartData},
		{name: "null", body: `null`, wantErr: ErrMalformedChartData},
		{name: "wrong type", body: `{"labels":[1],"values":[1]}`},
		{name: "not json", body: `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeChartData([]byte(tt.body))
			wantFail := tt.wantErr != nil || tt.name == "wrong type" || tt.name == "not json"
			if !wantFail {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(got.Labels) != tt.labels || len(got.Values) != tt.labels {
					t.Fatalf("unexpected data %+v", got)
				}
				return
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDecodeMonthlyStats(t *testing.T) {
	for _, body := range []string{"null", "false", "0", `""`, " null \n"} {
		got, err := DecodeMonthlyStats([]byte(body))
		if err != nil || got != nil {
			t.Fatalf("%q: expected no data, got %+v, %v", body, got, err)
		}
	}

	got, err := DecodeMonthlyStats([]byte(`{"income":10,"expense":2.5,"balance":7.5}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Income != 10 || got.Expense != 2.5 || got.Balance != 7.5 {
		t.Fatalf("unexpected stats %+v", got)
	}

	for _, body := range []string{"true", "1", `"x"`, `[]`, `{"income":1}`} {
		if _, err := DecodeMonthlyStats([]byte(body)); !errors.Is(err, ErrMalformedStats) {
			t.Fatalf("%q: expected ErrMalformedStats, got %v", body, err)
		}
	}

	if _, err := DecodeMonthlyStats(nil); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF for empty body, got %v", err)
	}
}

func TestClientSendsBearerToken(t *testing.T) {
	var auth, accept string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		accept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{"labels":[],"values":[]}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL+"/", "tok")
	if _, err := c.ChartData(context.Background(), Filter{Kind: "income", Month: "1", Year: "2025"}); err != nil {
		t.Fatalf("chart data: %v", err)
	}
	if auth != "Bearer tok" {
		t.Fatalf("unexpected Authorization %q", auth)
	}
	if accept != "application/json" {
		t.Fatalf("unexpected Accept %q", accept)
	}
}

func TestClientAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, "").MonthlyStats(context.Background(), Filter{Month: "1", Year: "2025"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Path != MonthlyStatsPath || apiErr.Message != "unauthorized" {
		t.Fatalf("unexpected APIError %+v", apiErr)
	}
}

func TestRequestURLs(t *testing.T) {
	f := Filter{Kind: "income", Month: "3", Year: "2024"}
	if got := ChartDataURL(f); got != "/chart-data?kind=income&month=3&year=2024" {
		t.Fatalf("unexpected chart URL %q", got)
	}
	if got := MonthlyStatsURL(f); got != "/monthly-stats?month=3&year=2024" {
		t.Fatalf("unexpected stats URL %q", got)
	}
}

func TestSliceColor(t *testing.T) {
	tests := []struct {
		i    int
		want string
	}{
		{0, "hsl(0 70% 50%)"},
		{1, "hsl(50 70% 50%)"},
		{7, "hsl(350 70% 50%)"},
		{8, "hsl(40 70% 50%)"},
	}
	for _, tt := range tests {
		if got := SliceColor(tt.i).String(); got != tt.want {
			t.Fatalf("SliceColor(%d) = %s want %s", tt.i, got, tt.want)
		}
	}

	r, g, b := SliceColor(0).RGB()
	if r != 217 || g != 38 || b != 38 {
		t.Fatalf("unexpected RGB for hue 0: %d,%d,%d", r, g, b)
	}
}
