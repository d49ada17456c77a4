package core

import "time"

// ChartData is the per-category breakdown behind the dashboard pie chart.
// Labels and Values always have the same length; index i of both describes
// one slice.
type ChartData struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// MonthlyStats holds the income, expense and balance for one month, in baht.
type MonthlyStats struct {
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
	Balance float64 `json:"balance"`
}

// Summary holds net totals (income minus expense) for the current day,
// month and year.
type Summary struct {
	Daily   Money
	Monthly Money
	Yearly  Money
}

// MonthFilter selects entries created in a given calendar month of a location.
type MonthFilter struct {
	Year     int
	Month    int // 1-12
	Location *time.Location
}

// Contains reports whether t falls inside the filter's month.
func (f MonthFilter) Contains(t time.Time) bool {
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return lt.Year() == f.Year && int(lt.Month()) == f.Month
}

// Bounds returns the half-open [start, end) interval of the month.
func (f MonthFilter) Bounds() (time.Time, time.Time) {
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(f.Year, time.Month(f.Month), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

// BuildChartData sums entries of the given kind per label. Slices keep the
// order in which each label first appears.
func BuildChartData(entries []Entry, kind Kind) ChartData {
	sums := make(map[string]int64)
	labels := make([]string, 0)
	for _, e := range entries {
		if e.Kind != kind {
			continue
		}
		key := e.Label()
		if _, ok := sums[key]; !ok {
			labels = append(labels, key)
		}
		sums[key] += e.Amount.Cents
	}

	data := ChartData{Labels: labels, Values: make([]float64, len(labels))}
	for i, l := range labels {
		data.Values[i] = Money{Cents: sums[l]}.Baht()
	}
	return data
}

// ComputeMonthlyStats totals income and expense over the given entries.
func ComputeMonthlyStats(entries []Entry) MonthlyStats {
	var income, expense int64
	for _, e := range entries {
		if e.Kind.IsIncome() {
			income += e.Amount.Cents
		} else {
			expense += e.Amount.Cents
		}
	}
	return MonthlyStats{
		Income:  Money{Cents: income}.Baht(),
		Expense: Money{Cents: expense}.Baht(),
		Balance: Money{Cents: income - expense}.Baht(),
	}
}

// Summarize returns net totals for the day, month and year containing now,
// evaluated in loc.
func Summarize(entries []Entry, now time.Time, loc *time.Location) Summary {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc)
	var s Summary
	for _, e := range entries {
		t := e.CreatedAt.In(loc)
		if t.Year() != today.Year() {
			continue
		}
		v := e.Signed()
		s.Yearly.Cents += v
		if t.Month() != today.Month() {
			continue
		}
		s.Monthly.Cents += v
		if t.Day() == today.Day() {
			s.Daily.Cents += v
		}
	}
	return s
}
