package http

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bunchee/internal/core"
)

var errBadParam = errors.New("bad parameter")

// parseMonthQuery reads month and year from the query string. Missing or
// empty values default to now; a present value that is not a number or out
// of range is an error.
func parseMonthQuery(q url.Values, now time.Time) (year, month int, err error) {
	year, month = now.Year(), int(now.Month())
	if v := strings.TrimSpace(q.Get("year")); v != "" {
		y, convErr := strconv.Atoi(v)
		if convErr != nil || y < 1 || y > 9999 {
			return 0, 0, fmt.Errorf("%w: year %q", errBadParam, v)
		}
		year = y
	}
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		m, convErr := strconv.Atoi(v)
		if convErr != nil || m < 1 || m > 12 {
			return 0, 0, fmt.Errorf("%w: month %q", errBadParam, v)
		}
		month = m
	}
	return year, month, nil
}

// lenientMonth is parseMonthQuery for pages: bad values fall back to now.
func lenientMonth(q url.Values, now time.Time) (year, month int) {
	year, month, err := parseMonthQuery(q, now)
	if err != nil {
		return now.Year(), int(now.Month())
	}
	return year, month
}

func parsePage(s string) int {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p < 1 {
		return 1
	}
	return p
}

// pathID reads the {id} path value.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: id %q", errBadParam, r.PathValue("id"))
	}
	return id, nil
}

// formatBaht renders cents with a thousands separator, e.g. "1,234.50".
func formatBaht(cents int64) string {
	s := core.FormatCents(cents)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

// sanitizeInput strips control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// validRequestID accepts short, printable ids from upstream proxies.
func validRequestID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		if r <= 32 || r >= 127 {
			return false
		}
	}
	return true
}
