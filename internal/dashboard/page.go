package dashboard

import (
	"fmt"
	"math"
)

// Summary fields, matching the data-summary attribute of the output nodes.
const (
	FieldIncome  = "income"
	FieldExpense = "expense"
	FieldBalance = "balance"
)

var summaryFields = []string{FieldIncome, FieldExpense, FieldBalance}

// Page is the host surface the refresher reads from and writes to. Lookups
// return false when the element is not present.
type Page interface {
	// Controls returns the kind/month/year filter controls.
	Controls() (Controls, bool)
	// Title returns the summary heading node.
	Title() (TextNode, bool)
	// Summary returns the output node for one of the summary fields.
	Summary(field string) (TextNode, bool)
	// Canvas returns the chart render target.
	Canvas() (Canvas, bool)
	// Trigger returns the stream of "load chart" clicks.
	Trigger() (<-chan struct{}, bool)
}

// Controls exposes the raw, unvalidated filter values.
type Controls interface {
	Kind() string
	Month() string
	Year() string
}

type TextNode interface {
	SetText(s string)
}

// Canvas draws a pie chart and hands back the live instance.
type Canvas interface {
	Draw(p PieChart) (Chart, error)
}

// Chart is a live chart instance. Destroy releases it; the refresher calls
// it exactly once, before drawing the next chart.
type Chart interface {
	Destroy()
}

// PieChart is everything a canvas needs to draw one chart.
type PieChart struct {
	Slices []Slice
}

type Slice struct {
	Label string
	Value float64
	Color HSL
}

// Total sums the slice values.
func (p PieChart) Total() float64 {
	var t float64
	for _, s := range p.Slices {
		t += s.Value
	}
	return t
}

// HSL is a color in hue/saturation/lightness form. Hue is in degrees,
// saturation and lightness in percent.
type HSL struct {
	H, S, L int
}

// SliceColor returns the background color of the slice at index i: hues step
// by 50 degrees and wrap at 360.
func SliceColor(i int) HSL {
	h := (i * 50) % 360
	if h < 0 {
		h += 360
	}
	return HSL{H: h, S: 70, L: 50}
}

// String renders the color in CSS Color 4 syntax, e.g. "hsl(50 70% 50%)".
func (c HSL) String() string {
	return fmt.Sprintf("hsl(%d %d%% %d%%)", c.H, c.S, c.L)
}

// RGB converts the color to 8-bit red, green and blue components.
func (c HSL) RGB() (r, g, b uint8) {
	h := float64(c.H%360) / 360
	s := float64(c.S) / 100
	l := float64(c.L) / 100
	if s == 0 {
		v := uint8(math.Round(l * 255))
		return v, v, v
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	conv := func(t float64) uint8 {
		return uint8(math.Round(hueToRGB(p, q, t) * 255))
	}
	return conv(h + 1.0/3), conv(h), conv(h - 1.0/3)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	default:
		return p
	}
}

// formatAmount renders a summary figure with exactly two decimals.
func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
