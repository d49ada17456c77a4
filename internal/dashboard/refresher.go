// Package dashboard keeps the ledger dashboard in sync with the server.
//
// A Refresher reads the kind/month/year filter from its Page, loads the
// per-category chart data and the monthly totals from the server, and
// redraws the pie chart and the three summary figures. The two loads run
// concurrently and update disjoint parts of the page. Every refresh takes a
// new request token; a load whose token is no longer the latest is dropped
// so a slow, older response never overwrites a newer one.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"bunchee/internal/core"
)

// DefaultTitleFormat is applied with the month and year control values.
const DefaultTitleFormat = "สรุปยอดประจำเดือน %s/%s"

var (
	ErrNoControls = errors.New("filter controls not present")
	ErrNoCanvas   = errors.New("chart canvas not present")
)

// RenderError wraps a failure of the page's canvas.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return "draw chart: " + e.Err.Error()
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// ErrorReporter receives every refresh failure.
type ErrorReporter func(ctx context.Context, err error)

// Config holds optional Refresher settings.
type Config struct {
	// TitleFormat is a fmt format taking month then year.
	TitleFormat string
	// OnError is called once per failed load. Defaults to logging.
	OnError ErrorReporter
	Logger  *slog.Logger
}

// Refresher owns one dashboard's chart instance and refresh sequence.
type Refresher struct {
	fetcher Fetcher
	page    Page
	title   string
	onError ErrorReporter
	logger  *slog.Logger

	token atomic.Uint64

	mu    sync.Mutex
	chart Chart
}

// New creates a Refresher for page, loading data through f.
func New(f Fetcher, page Page, cfg Config) *Refresher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	title := cfg.TitleFormat
	if title == "" {
		title = DefaultTitleFormat
	}
	r := &Refresher{
		fetcher: f,
		page:    page,
		title:   title,
		onError: cfg.OnError,
		logger:  logger.With("component", "dashboard"),
	}
	if r.onError == nil {
		r.onError = func(ctx context.Context, err error) {
			r.logger.ErrorContext(ctx, "Dashboard refresh failed", "error", err)
		}
	}
	return r
}

// Refresh runs one refresh cycle and waits for both loads to finish. Each
// failure is passed to the error reporter; the joined failures are also
// returned. Results superseded by a later Refresh are discarded silently.
func (r *Refresher) Refresh(ctx context.Context) error {
	controls, ok := r.page.Controls()
	if !ok {
		r.onError(ctx, ErrNoControls)
		return ErrNoControls
	}
	f := Filter{Kind: controls.Kind(), Month: controls.Month(), Year: controls.Year()}

	if title, ok := r.page.Title(); ok {
		title.SetText(fmt.Sprintf(r.title, f.Month, f.Year))
	}

	token := r.token.Add(1)
	r.logger.DebugContext(ctx, "Dashboard refresh started",
		"token", token, "kind", f.Kind, "month", f.Month, "year", f.Year)

	// A failed load must not cancel the other one, so no shared context.
	var g errgroup.Group
	var errs [2]error
	g.Go(func() error {
		errs[0] = r.loadChart(ctx, token, f)
		return nil
	})
	g.Go(func() error {
		errs[1] = r.loadStats(ctx, token, f)
		return nil
	})
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			r.onError(ctx, err)
		}
	}
	return errors.Join(errs[:]...)
}

// Start wires the refresher to the page: every trigger event starts a
// refresh, and one refresh runs immediately when the filter controls are
// present. Refreshes run concurrently, as clicks would. Start returns when
// ctx is done or the trigger stream closes, after in-flight refreshes end.
func (r *Refresher) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	spawn := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Refresh(ctx)
		}()
	}

	if _, ok := r.page.Controls(); ok {
		spawn()
	}

	trigger, ok := r.page.Trigger()
	if !ok {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, open := <-trigger:
			if !open {
				return nil
			}
			spawn()
		}
	}
}

// Close destroys the current chart, if any.
func (r *Refresher) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.chart != nil {
		r.chart.Destroy()
		r.chart = nil
	}
}

func (r *Refresher) current(token uint64) bool {
	return r.token.Load() == token
}

func (r *Refresher) loadChart(ctx context.Context, token uint64, f Filter) error {
	data, err := r.fetcher.ChartData(ctx, f)
	if err != nil {
		if !r.current(token) {
			return nil
		}
		return fmt.Errorf("load chart data: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.current(token) {
		r.logger.DebugContext(ctx, "Discarding stale chart data", "token", token)
		return nil
	}

	canvas, ok := r.page.Canvas()
	if !ok {
		return ErrNoCanvas
	}
	if r.chart != nil {
		r.chart.Destroy()
		r.chart = nil
	}
	chart, err := canvas.Draw(PieFromChartData(data))
	if err != nil {
		return &RenderError{Err: err}
	}
	r.chart = chart
	return nil
}

func (r *Refresher) loadStats(ctx context.Context, token uint64, f Filter) error {
	stats, err := r.fetcher.MonthlyStats(ctx, f)
	if err != nil {
		if !r.current(token) {
			return nil
		}
		return fmt.Errorf("load monthly stats: %w", err)
	}
	if stats == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.current(token) {
		r.logger.DebugContext(ctx, "Discarding stale monthly stats", "token", token)
		return nil
	}
	values := map[string]float64{
		FieldIncome:  stats.Income,
		FieldExpense: stats.Expense,
		FieldBalance: stats.Balance,
	}
	for _, field := range summaryFields {
		if node, ok := r.page.Summary(field); ok {
			node.SetText(formatAmount(values[field]))
		}
	}
	return nil
}

// PieFromChartData maps chart data to slices, coloring slice i with
// SliceColor(i).
func PieFromChartData(data core.ChartData) PieChart {
	p := PieChart{Slices: make([]Slice, len(data.Labels))}
	for i, label := range data.Labels {
		p.Slices[i] = Slice{Label: label, Value: data.Values[i], Color: SliceColor(i)}
	}
	return p
}
