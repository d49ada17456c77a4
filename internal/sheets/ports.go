// Package sheets defines the spreadsheet mirror the worker writes to.
package sheets

import (
	"context"
	"strconv"
	"time"

	"bunchee/internal/core"
)

// Header is the first row of the mirror sheet.
var Header = []any{"id", "created_at", "kind", "label", "amount", "notes", "user"}

// Row is one ledger entry as written to the sheet.
type Row struct {
	ID        int64
	CreatedAt time.Time
	Kind      core.Kind
	Label     string
	Amount    core.Money
	Notes     string
	Username  string
}

// RowFromEntry builds the sheet row for e with dates shown in loc.
func RowFromEntry(e core.Entry, username string, loc *time.Location) Row {
	if loc == nil {
		loc = time.UTC
	}
	return Row{
		ID:        e.ID,
		CreatedAt: e.CreatedAt.In(loc),
		Kind:      e.Kind,
		Label:     e.Label(),
		Amount:    e.Amount,
		Notes:     e.Notes,
		Username:  username,
	}
}

// Values renders the row in Header order.
func (r Row) Values() []any {
	return []any{
		strconv.FormatInt(r.ID, 10),
		r.CreatedAt.Format("2006-01-02 15:04:05"),
		string(r.Kind),
		r.Label,
		r.Amount.Baht(),
		r.Notes,
		r.Username,
	}
}

// Ports for outbound adapters.
type (
	// EntryMirror keeps one sheet row per ledger entry, keyed by entry id.
	EntryMirror interface {
		// UpsertEntry overwrites the row with r.ID or appends a new one.
		UpsertEntry(ctx context.Context, r Row) error
		// DeleteEntry removes the row with id. A missing row is not an error.
		DeleteEntry(ctx context.Context, id int64) error
		// ReplaceAll rewrites the whole sheet with rows.
		ReplaceAll(ctx context.Context, rows []Row) error
	}
)
