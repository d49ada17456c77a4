// Package transfer exports and imports ledger entries as CSV.
package transfer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"bunchee/internal/core"
)

// Columns is the CSV header written by Export and read by Import.
var Columns = []string{"id", "is_income", "category", "custom_name", "amount", "notes", "created_at"}

// bom makes spreadsheet programs detect UTF-8.
var bom = []byte{0xEF, 0xBB, 0xBF}

var ErrMissingColumns = errors.New("csv header is missing required columns")

// Export writes entries with a UTF-8 byte order mark. Dates are written as
// ISO 8601 with the offset of loc.
func Export(w io.Writer, entries []core.Entry, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	if _, err := w.Write(bom); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, e := range entries {
		rec := []string{
			strconv.FormatInt(e.ID, 10),
			formatBool(e.Kind.IsIncome()),
			e.Category,
			e.CustomName,
			e.Amount.String(),
			e.Notes,
			e.CreatedAt.In(loc).Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// RowError describes a skipped row. Line is the 1-based CSV line.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Result is the outcome of Import.
type Result struct {
	Entries []core.Entry
	Skipped []RowError
}

// Import reads entries from r. Rows that cannot be parsed or fail
// validation are reported in Skipped. Naive timestamps are read in loc; a
// missing or unreadable timestamp becomes now. The id column is ignored.
func Import(r io.Reader, loc *time.Location, now time.Time) (Result, error) {
	if loc == nil {
		loc = time.UTC
	}
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(bom)); err == nil && bytes.Equal(head, bom) {
		br.Discard(len(bom))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("read csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := idx["amount"]; !ok {
		return Result{}, fmt.Errorf("%w: amount", ErrMissingColumns)
	}

	var res Result
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				res.Skipped = append(res.Skipped, RowError{Line: pe.Line, Err: pe.Err})
				continue
			}
			return res, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		get := func(col string) string {
			if i, ok := idx[col]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		e, err := parseRow(get, loc, now)
		if err == nil {
			err = e.Validate()
		}
		if err != nil {
			res.Skipped = append(res.Skipped, RowError{Line: line, Err: err})
			continue
		}
		res.Entries = append(res.Entries, e)
	}
	return res, nil
}

func parseRow(get func(string) string, loc *time.Location, now time.Time) (core.Entry, error) {
	cents, err := core.ParseDecimalToCents(get("amount"))
	if err != nil {
		return core.Entry{}, err
	}
	kind := core.Expense
	switch strings.ToLower(get("is_income")) {
	case "1", "true", "yes":
		kind = core.Income
	}
	return core.Entry{
		Kind:       kind,
		Category:   get("category"),
		CustomName: get("custom_name"),
		Amount:     core.Money{Cents: cents},
		Notes:      get("notes"),
		CreatedAt:  parseTime(get("created_at"), loc, now),
	}, nil
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTime accepts ISO 8601 with or without an offset.
func parseTime(s string, loc *time.Location, now time.Time) time.Time {
	if s == "" {
		return now
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05.999999999Z07:00", s); err == nil {
		return t
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	return now
}
