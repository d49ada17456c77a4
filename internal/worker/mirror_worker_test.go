package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"bunchee/internal/amqp"
	"bunchee/internal/core"
	"bunchee/internal/ledger/memory"
	"bunchee/internal/sheets"
)

type fakeMirror struct {
	rows    map[int64]sheets.Row
	deleted []int64
	replace int
	err     error
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{rows: map[int64]sheets.Row{}}
}

func (m *fakeMirror) UpsertEntry(_ context.Context, r sheets.Row) error {
	if m.err != nil {
		return m.err
	}
	m.rows[r.ID] = r
	return nil
}

func (m *fakeMirror) DeleteEntry(_ context.Context, id int64) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, id)
	delete(m.rows, id)
	return nil
}

func (m *fakeMirror) ReplaceAll(_ context.Context, rows []sheets.Row) error {
	if m.err != nil {
		return m.err
	}
	m.replace++
	m.rows = map[int64]sheets.Row{}
	for _, r := range rows {
		m.rows[r.ID] = r
	}
	return nil
}

func setup(t *testing.T) (*MirrorWorker, *memory.Store, *fakeMirror, core.Entry) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	u, err := store.CreateUser(ctx, core.User{Username: "staff"})
	if err != nil {
		t.Fatal(err)
	}
	e, err := store.CreateEntry(ctx, core.Entry{
		UserID:    u.ID,
		Kind:      core.Expense,
		Category:  "ค่ากระดาษ",
		Amount:    core.Money{Cents: 4500},
		CreatedAt: time.Date(2025, 7, 1, 20, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	mirror := newFakeMirror()
	return NewMirrorWorker(store, store, mirror, time.FixedZone("ICT", 7*3600)), store, mirror, e
}

func TestHandleCreateMirrorsEntry(t *testing.T) {
	w, _, mirror, e := setup(t)

	if err := w.HandleChange(context.Background(), amqp.NewLedgerChangeMessage(amqp.OpCreate, e.ID, 2025, 7)); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}
	r, ok := mirror.rows[e.ID]
	if !ok {
		t.Fatal("row not mirrored")
	}
	if r.Username != "staff" || r.Label != "ค่ากระดาษ" || r.CreatedAt.Day() != 2 {
		t.Errorf("row = %+v (date should be shown in ICT)", r)
	}
}

func TestHandleCreateOfDeletedEntryIsSkipped(t *testing.T) {
	w, _, mirror, _ := setup(t)
	if err := w.HandleChange(context.Background(), amqp.NewLedgerChangeMessage(amqp.OpUpdate, 999, 2025, 7)); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}
	if len(mirror.rows) != 0 {
		t.Error("nothing should be mirrored")
	}
}

func TestHandleDelete(t *testing.T) {
	w, _, mirror, e := setup(t)
	if err := w.HandleChange(context.Background(), amqp.NewLedgerChangeMessage(amqp.OpDelete, e.ID, 2025, 7)); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}
	if len(mirror.deleted) != 1 || mirror.deleted[0] != e.ID {
		t.Errorf("deleted = %v", mirror.deleted)
	}
}

func TestHandleBulkOpsResync(t *testing.T) {
	w, store, mirror, _ := setup(t)
	ctx := context.Background()
	if _, err := store.CreateEntry(ctx, core.Entry{UserID: 1, Kind: core.Income, CustomName: "x", Amount: core.Money{Cents: 1}, CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	for _, op := range []amqp.Op{amqp.OpImport, amqp.OpDeleteAll} {
		if err := w.HandleChange(ctx, &amqp.LedgerChangeMessage{Op: op}); err != nil {
			t.Fatalf("HandleChange(%s): %v", op, err)
		}
	}
	if mirror.replace != 2 || len(mirror.rows) != 2 {
		t.Errorf("replace = %d, rows = %d", mirror.replace, len(mirror.rows))
	}
}

func TestMirrorErrorsAreReturned(t *testing.T) {
	w, _, mirror, e := setup(t)
	mirror.err = errors.New("quota exceeded")
	if err := w.HandleChange(context.Background(), amqp.NewLedgerChangeMessage(amqp.OpCreate, e.ID, 2025, 7)); err == nil {
		t.Fatal("expected error so the message is requeued")
	}
	if err := w.HandleChange(context.Background(), &amqp.LedgerChangeMessage{Op: "bogus"}); !errors.Is(err, amqp.ErrInvalidMessage) {
		t.Fatalf("unknown op: err = %v", err)
	}
}
