package term

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/pterm/pterm"

	"bunchee/internal/core"
	"bunchee/internal/dashboard"
)

type stubFetcher struct{}

func (stubFetcher) ChartData(context.Context, dashboard.Filter) (core.ChartData, error) {
	return core.ChartData{Labels: []string{"ค่าไฟ", "ink"}, Values: []float64{75, 25}}, nil
}

func (stubFetcher) MonthlyStats(context.Context, dashboard.Filter) (*core.MonthlyStats, error) {
	return &core.MonthlyStats{Income: 1234.5, Expense: 200, Balance: 1034.5}, nil
}

func TestViewRendersRefresh(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	v := New(dashboard.Filter{Kind: "expense", Month: "5", Year: "2025"})
	r := dashboard.New(stubFetcher{}, v, dashboard.Config{})
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if v.Draws() != 2 {
		t.Fatalf("expected 2 draws, got %d", v.Draws())
	}

	var buf bytes.Buffer
	if err := v.Render(&buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"สรุปยอดประจำเดือน 5/2025", "ค่าไฟ (75.0%)", "ink (25.0%)", "1234.50", "200.00", "1034.50"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestParseFilterKeepsMissingFields(t *testing.T) {
	v := New(dashboard.Filter{Kind: "expense", Month: "5", Year: "2025"})
	v.ParseFilter("6")
	c, _ := v.Controls()
	if c.Month() != "6" || c.Year() != "2025" || c.Kind() != "expense" {
		t.Fatalf("unexpected filter %s/%s/%s", c.Kind(), c.Month(), c.Year())
	}
	v.ParseFilter("7 2024 income")
	c, _ = v.Controls()
	if c.Month() != "7" || c.Year() != "2024" || c.Kind() != "income" {
		t.Fatalf("unexpected filter %s/%s/%s", c.Kind(), c.Month(), c.Year())
	}
}

func TestRenderEmptyChart(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	v := New(dashboard.Filter{})
	var buf bytes.Buffer
	if err := v.Render(&buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "No entries for this month") {
		t.Fatalf("expected empty notice, got:\n%s", buf.String())
	}
}
