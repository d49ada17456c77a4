package core

import (
	"testing"
	"time"
)

func mustLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Bangkok")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestBuildChartData(t *testing.T) {
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Kind: Expense, Category: "ค่าไฟ", Amount: Money{Cents: 1000}, CreatedAt: at},
		{Kind: Expense, CustomName: "ink", Amount: Money{Cents: 250}, CreatedAt: at},
		{Kind: Income, Category: "print A4 สี", Amount: Money{Cents: 9999}, CreatedAt: at},
		{Kind: Expense, Category: "ค่าไฟ", Amount: Money{Cents: 2000}, CreatedAt: at},
		{Kind: Expense, Amount: Money{Cents: 50}, CreatedAt: at},
	}

	got := BuildChartData(entries, Expense)
	wantLabels := []string{"ค่าไฟ", "ink", OtherLabel}
	wantValues := []float64{30, 2.5, 0.5}
	if len(got.Labels) != len(wantLabels) || len(got.Values) != len(wantValues) {
		t.Fatalf("unexpected chart data: %+v", got)
	}
	for i := range wantLabels {
		if got.Labels[i] != wantLabels[i] || got.Values[i] != wantValues[i] {
			t.Fatalf("slice %d: got %q=%v want %q=%v", i, got.Labels[i], got.Values[i], wantLabels[i], wantValues[i])
		}
	}

	empty := BuildChartData(nil, Income)
	if empty.Labels == nil || empty.Values == nil {
		t.Fatalf("empty chart data must have non-nil slices for JSON")
	}
}

func TestComputeMonthlyStats(t *testing.T) {
	entries := []Entry{
		{Kind: Income, Amount: Money{Cents: 123450}},
		{Kind: Expense, Amount: Money{Cents: 20000}},
	}
	got := ComputeMonthlyStats(entries)
	if got.Income != 1234.5 || got.Expense != 200 || got.Balance != 1034.5 {
		t.Fatalf("unexpected stats: %+v", got)
	}
}

func TestMonthFilter(t *testing.T) {
	loc := mustLoc(t)
	f := MonthFilter{Year: 2025, Month: 4, Location: loc}
	// 2025-03-31 18:30 UTC is 2025-04-01 01:30 in Bangkok.
	if !f.Contains(time.Date(2025, 3, 31, 18, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected entry to fall in April Bangkok time")
	}
	if f.Contains(time.Date(2025, 3, 31, 16, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected entry to fall in March Bangkok time")
	}
	start, end := f.Bounds()
	if start.Month() != time.April || end.Month() != time.May {
		t.Fatalf("unexpected bounds %v - %v", start, end)
	}
}

func TestSummarize(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, loc)
	entries := []Entry{
		{Kind: Income, Amount: Money{Cents: 1000}, CreatedAt: now},
		{Kind: Expense, Amount: Money{Cents: 300}, CreatedAt: now.Add(-time.Hour)},
		{Kind: Income, Amount: Money{Cents: 500}, CreatedAt: now.AddDate(0, 0, -3)},
		{Kind: Income, Amount: Money{Cents: 700}, CreatedAt: now.AddDate(0, -2, 0)},
		{Kind: Income, Amount: Money{Cents: 900}, CreatedAt: now.AddDate(-1, 0, 0)},
	}
	s := Summarize(entries, now, loc)
	if s.Daily.Cents != 700 || s.Monthly.Cents != 1200 || s.Yearly.Cents != 1900 {
		t.Fatalf("unexpected summary: %+v", s)
	}
}
