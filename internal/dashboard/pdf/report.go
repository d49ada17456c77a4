// Package pdf renders the dashboard into a one-page PDF report.
package pdf

import (
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/jung-kurt/gofpdf"

	"bunchee/internal/dashboard"
)

// EnglishTitleFormat is used when no Unicode font is configured, since the
// core PDF fonts cannot encode Thai.
const EnglishTitleFormat = "Monthly summary %s/%s"

const (
	pieRadius   = 45.0
	pieSegments = 90
)

var (
	headerColor = [3]int{33, 37, 41}
	lineColor   = [3]int{200, 200, 200}
	bodyColor   = [3]int{60, 60, 60}
)

// Options configures the report.
type Options struct {
	// FontPath is a TrueType font with Thai glyphs. Empty selects Helvetica.
	FontPath string
}

// Report is a dashboard.Page that collects one refresh cycle and writes it
// as a PDF.
type Report struct {
	opts   Options
	filter dashboard.Filter

	mu      sync.Mutex
	title   string
	summary map[string]string
	pie     *dashboard.PieChart
}

var _ dashboard.Page = (*Report)(nil)

func New(f dashboard.Filter, opts Options) *Report {
	return &Report{
		opts:    opts,
		filter:  f,
		summary: map[string]string{},
	}
}

// TitleFormat returns the refresher title format suited to the font.
func (r *Report) TitleFormat() string {
	if r.opts.FontPath == "" {
		return EnglishTitleFormat
	}
	return dashboard.DefaultTitleFormat
}

func (r *Report) Controls() (dashboard.Controls, bool) {
	return filterControls{r.filter}, true
}

func (r *Report) Title() (dashboard.TextNode, bool) {
	return setter(func(s string) {
		r.mu.Lock()
		r.title = s
		r.mu.Unlock()
	}), true
}

func (r *Report) Summary(field string) (dashboard.TextNode, bool) {
	return setter(func(s string) {
		r.mu.Lock()
		r.summary[field] = s
		r.mu.Unlock()
	}), true
}

func (r *Report) Canvas() (dashboard.Canvas, bool) {
	return reportCanvas{r}, true
}

func (r *Report) Trigger() (<-chan struct{}, bool) {
	return nil, false
}

// Write renders the collected state as a PDF document to w.
func (r *Report) Write(w io.Writer) error {
	r.mu.Lock()
	title := r.title
	summary := make(map[string]string, len(r.summary))
	for k, v := range r.summary {
		summary[k] = v
	}
	var pie dashboard.PieChart
	if r.pie != nil {
		pie = *r.pie
	}
	r.mu.Unlock()

	pdf := gofpdf.New("P", "mm", "A4", "")
	family := "Helvetica"
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if r.opts.FontPath != "" {
		family = "report"
		pdf.AddUTF8Font(family, "", r.opts.FontPath)
		pdf.AddUTF8Font(family, "B", r.opts.FontPath)
		tr = func(s string) string { return s }
	}
	pdf.AddPage()

	pdf.SetFillColor(headerColor[0], headerColor[1], headerColor[2])
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont(family, "B", 16)
	pdf.CellFormat(0, 12, tr("  "+title), "", 1, "L", true, 0, "")
	pdf.Ln(8)

	pdf.SetTextColor(bodyColor[0], bodyColor[1], bodyColor[2])
	if len(pie.Slices) == 0 || pie.Total() <= 0 {
		pdf.SetFont(family, "", 11)
		pdf.Cell(0, 8, tr("No entries for this month"))
		pdf.Ln(10)
	} else {
		cx, cy := 10+pieRadius, pdf.GetY()+pieRadius
		drawPie(pdf, cx, cy, pie)
		legend(pdf, tr, family, cx+pieRadius+15, cy-pieRadius, pie)
		pdf.SetY(cy + pieRadius + 10)
	}

	pdf.SetFont(family, "B", 12)
	pdf.Cell(0, 8, tr("Summary"))
	pdf.Ln(7)
	pdf.SetDrawColor(lineColor[0], lineColor[1], lineColor[2])
	pdf.Line(pdf.GetX(), pdf.GetY(), pdf.GetX()+190, pdf.GetY())
	pdf.Ln(4)

	rows := []struct{ label, field string }{
		{"Income", dashboard.FieldIncome},
		{"Expense", dashboard.FieldExpense},
		{"Balance", dashboard.FieldBalance},
	}
	for _, row := range rows {
		value, ok := summary[row.field]
		if !ok {
			value = "-"
		}
		pdf.SetFont(family, "", 11)
		pdf.CellFormat(60, 8, tr(row.label), "B", 0, "L", false, 0, "")
		pdf.SetFont(family, "B", 11)
		pdf.CellFormat(60, 8, tr(value), "B", 1, "R", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func drawPie(pdf *gofpdf.Fpdf, cx, cy float64, pie dashboard.PieChart) {
	total := pie.Total()
	start := 0.0
	for _, s := range pie.Slices {
		if s.Value <= 0 {
			continue
		}
		sweep := s.Value / total * 2 * math.Pi
		r, g, b := s.Color.RGB()
		pdf.SetFillColor(int(r), int(g), int(b))
		pdf.SetDrawColor(255, 255, 255)
		pdf.Polygon(sector(cx, cy, pieRadius, start, start+sweep), "FD")
		start += sweep
	}
}

// sector approximates a pie slice with a polygon. Angles are in radians,
// clockwise from 12 o'clock.
func sector(cx, cy, radius, from, to float64) []gofpdf.PointType {
	steps := int(math.Ceil((to - from) / (2 * math.Pi) * pieSegments))
	if steps < 1 {
		steps = 1
	}
	points := make([]gofpdf.PointType, 0, steps+2)
	points = append(points, gofpdf.PointType{X: cx, Y: cy})
	for i := 0; i <= steps; i++ {
		a := from + (to-from)*float64(i)/float64(steps)
		points = append(points, gofpdf.PointType{
			X: cx + radius*math.Sin(a),
			Y: cy - radius*math.Cos(a),
		})
	}
	return points
}

func legend(pdf *gofpdf.Fpdf, tr func(string) string, family string, x, y float64, pie dashboard.PieChart) {
	total := pie.Total()
	pdf.SetFont(family, "", 10)
	for i, s := range pie.Slices {
		r, g, b := s.Color.RGB()
		rowY := y + float64(i)*7
		pdf.SetFillColor(int(r), int(g), int(b))
		pdf.Rect(x, rowY+1.5, 4, 4, "F")
		pdf.SetXY(x+6, rowY)
		pdf.CellFormat(80, 7, tr(fmt.Sprintf("%s  %.2f (%.1f%%)", s.Label, s.Value, s.Value/total*100)), "", 0, "L", false, 0, "")
	}
}

type filterControls struct{ f dashboard.Filter }

func (c filterControls) Kind() string  { return c.f.Kind }
func (c filterControls) Month() string { return c.f.Month }
func (c filterControls) Year() string  { return c.f.Year }

type setter func(string)

func (f setter) SetText(s string) { f(s) }

type reportCanvas struct{ r *Report }

func (c reportCanvas) Draw(p dashboard.PieChart) (dashboard.Chart, error) {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	c.r.pie = &p
	return reportChart{c.r, &p}, nil
}

type reportChart struct {
	r   *Report
	pie *dashboard.PieChart
}

func (c reportChart) Destroy() {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	if c.r.pie == c.pie {
		c.r.pie = nil
	}
}
