// Package ledgertest holds behavior tests shared by every ledger.Store.
package ledgertest

import (
	"context"
	"errors"
	"testing"
	"time"

	"bunchee/internal/core"
	"bunchee/internal/ledger"
)

// Run exercises store against the ledger.Store contract. newStore must
// return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Run("EntryLifecycle", func(t *testing.T) { testEntryLifecycle(t, newStore(t)) })
	t.Run("ListMonth", func(t *testing.T) { testListMonth(t, newStore(t)) })
	t.Run("SearchEntries", func(t *testing.T) { testSearchEntries(t, newStore(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
}

var base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func mustUser(t *testing.T, s ledger.Store, name string) core.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), core.User{Username: name, PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func mustEntry(t *testing.T, s ledger.Store, e core.Entry) core.Entry {
	t.Helper()
	created, err := s.CreateEntry(context.Background(), e)
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	return created
}

func testEntryLifecycle(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "alice")

	e := mustEntry(t, s, core.Entry{
		UserID: u.ID, Kind: core.Expense, Category: "ค่าไฟ",
		Amount: core.Money{Cents: 12345}, Notes: "march", CreatedAt: base,
	})
	if e.ID == 0 {
		t.Fatal("expected an assigned id")
	}

	got, err := s.GetEntry(ctx, e.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if got.Category != "ค่าไฟ" || got.Amount.Cents != 12345 || got.Kind != core.Expense || !got.CreatedAt.Equal(base) {
		t.Fatalf("unexpected entry %+v", got)
	}

	got.Kind = core.Income
	got.Amount = core.Money{Cents: 500}
	got.Category = ""
	got.CustomName = "refund"
	if err := s.UpdateEntry(ctx, got); err != nil {
		t.Fatalf("update entry: %v", err)
	}
	got, _ = s.GetEntry(ctx, e.ID)
	if got.Kind != core.Income || got.CustomName != "refund" || got.Category != "" {
		t.Fatalf("update not applied: %+v", got)
	}

	if _, err := s.CreateEntry(ctx, core.Entry{UserID: u.ID, Kind: core.Income, CreatedAt: base}); err == nil {
		t.Fatal("expected validation error for empty entry")
	}

	if err := s.DeleteEntry(ctx, e.ID); err != nil {
		t.Fatalf("delete entry: %v", err)
	}
	if _, err := s.GetEntry(ctx, e.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteEntry(ctx, e.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	other := mustUser(t, s, "bob")
	for i := 0; i < 3; i++ {
		mustEntry(t, s, core.Entry{UserID: u.ID, Kind: core.Income, CustomName: "x", Amount: core.Money{Cents: 1}, CreatedAt: base})
	}
	mustEntry(t, s, core.Entry{UserID: other.ID, Kind: core.Income, CustomName: "y", Amount: core.Money{Cents: 1}, CreatedAt: base})
	n, err := s.DeleteEntriesByUser(ctx, u.ID)
	if err != nil || n != 3 {
		t.Fatalf("delete by user: n=%d err=%v", n, err)
	}
	all, _ := s.ListAllEntries(ctx)
	if len(all) != 1 || all[0].UserID != other.ID {
		t.Fatalf("unexpected remaining entries %+v", all)
	}
}

func testListMonth(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "alice")
	mustEntry(t, s, core.Entry{UserID: u.ID, Kind: core.Expense, Category: "A", Amount: core.Money{Cents: 100}, CreatedAt: base})
	mustEntry(t, s, core.Entry{UserID: u.ID, Kind: core.Expense, Category: "B", Amount: core.Money{Cents: 200}, CreatedAt: base.Add(time.Hour)})
	mustEntry(t, s, core.Entry{UserID: u.ID, Kind: core.Expense, Category: "C", Amount: core.Money{Cents: 300}, CreatedAt: base.AddDate(0, 1, 0)})
	// 2025-03-31 23:30 UTC+7 is still March there.
	loc := time.FixedZone("ICT", 7*3600)
	mustEntry(t, s, core.Entry{UserID: u.ID, Kind: core.Income, Category: "D", Amount: core.Money{Cents: 400}, CreatedAt: time.Date(2025, 3, 31, 16, 30, 0, 0, time.UTC)})

	got, err := s.ListMonth(ctx, core.MonthFilter{Year: 2025, Month: 3, Location: loc})
	if err != nil {
		t.Fatalf("list month: %v", err)
	}
	if len(got) != 3 || got[0].Category != "A" || got[1].Category != "B" || got[2].Category != "D" {
		t.Fatalf("unexpected month entries %+v", got)
	}

	got, _ = s.ListMonth(ctx, core.MonthFilter{Year: 2025, Month: 4, Location: loc})
	if len(got) != 1 || got[0].Category != "C" {
		t.Fatalf("unexpected April entries %+v", got)
	}
}

func testSearchEntries(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "alice")
	for i := 0; i < 12; i++ {
		mustEntry(t, s, core.Entry{
			UserID: u.ID, Kind: core.Income, Category: "print A4 สี",
			Amount: core.Money{Cents: int64(100 + i)}, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	mustEntry(t, s, core.Entry{UserID: u.ID, Kind: core.Expense, CustomName: "Toner", Notes: "brand X", Amount: core.Money{Cents: 900}, CreatedAt: base})

	page, err := s.SearchEntries(ctx, ledger.Query{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != 13 || len(page.Entries) != ledger.DefaultPerPage || page.Pages() != 2 {
		t.Fatalf("unexpected first page: total=%d len=%d pages=%d", page.Total, len(page.Entries), page.Pages())
	}
	if page.Entries[0].Amount.Cents != 111 {
		t.Fatalf("expected newest first, got %+v", page.Entries[0])
	}
	if !page.HasNext() || page.HasPrev() {
		t.Fatalf("unexpected paging flags")
	}

	page, _ = s.SearchEntries(ctx, ledger.Query{Page: 2})
	if len(page.Entries) != 3 {
		t.Fatalf("expected 3 entries on page 2, got %d", len(page.Entries))
	}

	page, _ = s.SearchEntries(ctx, ledger.Query{Text: "toner"})
	if page.Total != 1 || page.Entries[0].CustomName != "Toner" {
		t.Fatalf("unexpected search result %+v", page)
	}
	page, _ = s.SearchEntries(ctx, ledger.Query{Text: "brand"})
	if page.Total != 1 {
		t.Fatalf("expected notes match, got %d", page.Total)
	}
	page, _ = s.SearchEntries(ctx, ledger.Query{Text: "nothing"})
	if page.Total != 0 || len(page.Entries) != 0 {
		t.Fatalf("expected no match, got %+v", page)
	}
}

func testUsers(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	bob := mustUser(t, s, "bob")
	alice := mustUser(t, s, "alice")

	if _, err := s.CreateUser(ctx, core.User{Username: "bob", PasswordHash: "y"}); !errors.Is(err, ledger.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}

	got, err := s.GetUserByName(ctx, "alice")
	if err != nil || got.ID != alice.ID {
		t.Fatalf("get by name: %+v %v", got, err)
	}
	if _, err := s.GetUserByName(ctx, "carol"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	users, _ := s.ListUsers(ctx)
	if len(users) != 2 || users[0].Username != "alice" || users[1].Username != "bob" {
		t.Fatalf("expected users ordered by name, got %+v", users)
	}

	bob.IsAdmin = true
	bob.PasswordHash = "new"
	if err := s.UpdateUser(ctx, bob); err != nil {
		t.Fatalf("update user: %v", err)
	}
	got, _ = s.GetUser(ctx, bob.ID)
	if !got.IsAdmin || got.PasswordHash != "new" {
		t.Fatalf("update not applied: %+v", got)
	}

	mustEntry(t, s, core.Entry{UserID: bob.ID, Kind: core.Income, CustomName: "x", Amount: core.Money{Cents: 1}, CreatedAt: base})
	if err := s.DeleteUser(ctx, bob.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := s.GetUser(ctx, bob.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	all, _ := s.ListAllEntries(ctx)
	if len(all) != 0 {
		t.Fatalf("expected user's entries removed, got %d", len(all))
	}
}
