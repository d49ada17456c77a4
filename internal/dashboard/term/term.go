// Package term renders the dashboard into a terminal.
package term

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pterm/pterm"

	"bunchee/internal/dashboard"
)

const barWidth = 40

// View is a dashboard.Page backed by in-memory state. Render prints the
// current title, chart and summary.
type View struct {
	mu      sync.Mutex
	filter  dashboard.Filter
	title   string
	summary map[string]string
	pie     *dashboard.PieChart
	draws   int
}

var _ dashboard.Page = (*View)(nil)

// New creates a view with the given initial filter.
func New(f dashboard.Filter) *View {
	return &View{
		filter: f,
		summary: map[string]string{
			dashboard.FieldIncome:  "-",
			dashboard.FieldExpense: "-",
			dashboard.FieldBalance: "-",
		},
	}
}

// SetFilter replaces the control values used by the next refresh.
func (v *View) SetFilter(f dashboard.Filter) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.filter = f
}

// ParseFilter updates the filter from a "month year [kind]" line. Missing
// fields keep their previous values.
func (v *View) ParseFilter(line string) {
	fields := strings.Fields(line)
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(fields) > 0 {
		v.filter.Month = fields[0]
	}
	if len(fields) > 1 {
		v.filter.Year = fields[1]
	}
	if len(fields) > 2 {
		v.filter.Kind = fields[2]
	}
}

func (v *View) Controls() (dashboard.Controls, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return controls{v.filter}, true
}

func (v *View) Title() (dashboard.TextNode, bool) {
	return textFunc(func(s string) {
		v.mu.Lock()
		v.title = s
		v.mu.Unlock()
	}), true
}

func (v *View) Summary(field string) (dashboard.TextNode, bool) {
	return textFunc(func(s string) {
		v.mu.Lock()
		v.summary[field] = s
		v.mu.Unlock()
	}), true
}

func (v *View) Canvas() (dashboard.Canvas, bool) {
	return canvas{v}, true
}

// Trigger is not used; the CLI drives refreshes itself.
func (v *View) Trigger() (<-chan struct{}, bool) {
	return nil, false
}

// Render writes the current state to w.
func (v *View) Render(w io.Writer) error {
	v.mu.Lock()
	title := v.title
	summary := map[string]string{}
	for k, s := range v.summary {
		summary[k] = s
	}
	var pie dashboard.PieChart
	if v.pie != nil {
		pie = *v.pie
	}
	v.mu.Unlock()

	header := pterm.DefaultSection.WithWriter(w)
	header.Println(title)

	if len(pie.Slices) == 0 {
		pterm.Info.WithWriter(w).Println("No entries for this month")
	} else {
		bars := pterm.Bars{}
		total := pie.Total()
		for _, s := range pie.Slices {
			r, g, b := s.Color.RGB()
			bars = append(bars, pterm.Bar{
				Label: pterm.NewRGB(r, g, b).Sprint("■ ") + fmt.Sprintf("%s (%.1f%%)", s.Label, percent(s.Value, total)),
				Value: scaled(s.Value, total),
				Style: pterm.NewStyle(pterm.FgCyan),
			})
		}
		if err := pterm.DefaultBarChart.WithWriter(w).WithHorizontal().WithBars(bars).WithShowValue(false).Render(); err != nil {
			return fmt.Errorf("render chart: %w", err)
		}
	}

	data := pterm.TableData{
		{"รายรับ", "รายจ่าย", "คงเหลือ"},
		{summary[dashboard.FieldIncome], summary[dashboard.FieldExpense], summary[dashboard.FieldBalance]},
	}
	if err := pterm.DefaultTable.WithWriter(w).WithHasHeader().WithBoxed().WithData(data).Render(); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	return nil
}

// Draws reports how many charts have been drawn.
func (v *View) Draws() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.draws
}

type controls struct{ f dashboard.Filter }

func (c controls) Kind() string  { return c.f.Kind }
func (c controls) Month() string { return c.f.Month }
func (c controls) Year() string  { return c.f.Year }

type textFunc func(string)

func (f textFunc) SetText(s string) { f(s) }

type canvas struct{ v *View }

func (c canvas) Draw(p dashboard.PieChart) (dashboard.Chart, error) {
	c.v.mu.Lock()
	defer c.v.mu.Unlock()
	c.v.pie = &p
	c.v.draws++
	return chart{c.v, &p}, nil
}

type chart struct {
	v   *View
	pie *dashboard.PieChart
}

func (c chart) Destroy() {
	c.v.mu.Lock()
	defer c.v.mu.Unlock()
	if c.v.pie == c.pie {
		c.v.pie = nil
	}
}

func percent(v, total float64) float64 {
	if total == 0 {
		return 0
	}
	return v / total * 100
}

// scaled maps v onto the bar width.
func scaled(v, total float64) int {
	if total == 0 {
		return 0
	}
	return int(v / total * barWidth)
}
