package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bunchee/internal/amqp"
	"bunchee/internal/ledger"
	"bunchee/internal/sheets"
)

// MirrorWorker applies ledger change events to the spreadsheet mirror.
type MirrorWorker struct {
	entries ledger.EntryReader
	users   ledger.UserStore
	mirror  sheets.EntryMirror
	loc     *time.Location
}

func NewMirrorWorker(entries ledger.EntryReader, users ledger.UserStore, mirror sheets.EntryMirror, loc *time.Location) *MirrorWorker {
	if loc == nil {
		loc = time.UTC
	}
	return &MirrorWorker{entries: entries, users: users, mirror: mirror, loc: loc}
}

// HandleChange processes one change message. Returned errors requeue it.
func (w *MirrorWorker) HandleChange(ctx context.Context, msg *amqp.LedgerChangeMessage) error {
	slog.InfoContext(ctx, "Processing ledger change",
		"component", "worker",
		"op", msg.Op,
		"entry_id", msg.EntryID)

	switch msg.Op {
	case amqp.OpCreate, amqp.OpUpdate:
		return w.upsert(ctx, msg.EntryID)
	case amqp.OpDelete:
		if err := w.mirror.DeleteEntry(ctx, msg.EntryID); err != nil {
			return fmt.Errorf("delete sheet row: %w", err)
		}
		return nil
	case amqp.OpDeleteAll, amqp.OpImport:
		return w.Resync(ctx)
	default:
		return fmt.Errorf("%w: unknown op %q", amqp.ErrInvalidMessage, msg.Op)
	}
}

func (w *MirrorWorker) upsert(ctx context.Context, id int64) error {
	e, err := w.entries.GetEntry(ctx, id)
	if errors.Is(err, ledger.ErrNotFound) {
		// deleted after the event was sent; the delete event removes the row
		slog.WarnContext(ctx, "Entry no longer exists, skipping", "component", "worker", "entry_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get entry: %w", err)
	}
	if err := w.mirror.UpsertEntry(ctx, sheets.RowFromEntry(e, w.username(ctx, e.UserID), w.loc)); err != nil {
		return fmt.Errorf("upsert sheet row: %w", err)
	}
	slog.InfoContext(ctx, "Mirrored entry",
		"component", "worker",
		"entry_id", e.ID,
		"amount_cents", e.Amount.Cents)
	return nil
}

// Resync rewrites the whole sheet from the ledger.
func (w *MirrorWorker) Resync(ctx context.Context) error {
	entries, err := w.entries.ListAllEntries(ctx)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	names := w.usernames(ctx)
	rows := make([]sheets.Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, sheets.RowFromEntry(e, names[e.UserID], w.loc))
	}
	if err := w.mirror.ReplaceAll(ctx, rows); err != nil {
		return fmt.Errorf("replace sheet: %w", err)
	}
	slog.InfoContext(ctx, "Resynced sheet", "component", "worker", "rows", len(rows))
	return nil
}

func (w *MirrorWorker) username(ctx context.Context, id int64) string {
	if w.users == nil {
		return ""
	}
	u, err := w.users.GetUser(ctx, id)
	if err != nil {
		return ""
	}
	return u.Username
}

func (w *MirrorWorker) usernames(ctx context.Context) map[int64]string {
	out := map[int64]string{}
	if w.users == nil {
		return out
	}
	users, err := w.users.ListUsers(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Could not list users for resync", "component", "worker", "error", err)
		return out
	}
	for _, u := range users {
		out[u.ID] = u.Username
	}
	return out
}
