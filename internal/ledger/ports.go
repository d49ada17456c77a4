// Package ledger defines the storage ports shared by every backend.
package ledger

import (
	"context"
	"errors"

	"bunchee/internal/core"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateUsername = errors.New("username already exists")
)

// AdminUsername is the protected account seeded on first start.
const AdminUsername = "admin"

// DefaultPerPage is the entry list page size.
const DefaultPerPage = 10

// Ports for storage adapters.
type (
	EntryWriter interface {
		// CreateEntry stores e and returns it with its assigned ID.
		CreateEntry(ctx context.Context, e core.Entry) (core.Entry, error)
		UpdateEntry(ctx context.Context, e core.Entry) error
		DeleteEntry(ctx context.Context, id int64) error
		// DeleteEntriesByUser removes every entry owned by userID and
		// returns how many were removed.
		DeleteEntriesByUser(ctx context.Context, userID int64) (int64, error)
	}

	EntryReader interface {
		GetEntry(ctx context.Context, id int64) (core.Entry, error)
		// ListMonth returns all entries, across users, created in the month.
		ListMonth(ctx context.Context, f core.MonthFilter) ([]core.Entry, error)
		// ListAllEntries returns every entry, oldest first.
		ListAllEntries(ctx context.Context) ([]core.Entry, error)
		// SearchEntries returns one page of entries, newest first, whose
		// category, custom name or notes contain q.Text.
		SearchEntries(ctx context.Context, q Query) (EntryPage, error)
	}

	UserStore interface {
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		GetUser(ctx context.Context, id int64) (core.User, error)
		GetUserByName(ctx context.Context, username string) (core.User, error)
		// ListUsers returns all users ordered by username.
		ListUsers(ctx context.Context) ([]core.User, error)
		UpdateUser(ctx context.Context, u core.User) error
		// DeleteUser removes the user together with their entries.
		DeleteUser(ctx context.Context, id int64) error
	}

	Store interface {
		EntryWriter
		EntryReader
		UserStore
		Close() error
	}
)

// Query selects a page of the entry list.
type Query struct {
	Text    string
	Page    int // 1-based
	PerPage int
}

// Normalize fills in defaults for a zero or invalid page and size.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = DefaultPerPage
	}
	return q
}

// Offset is the number of entries before the page.
func (q Query) Offset() int {
	return (q.Page - 1) * q.PerPage
}

// EntryPage is one page of search results.
type EntryPage struct {
	Entries []core.Entry
	Total   int
	Page    int
	PerPage int
}

// Pages returns the number of pages, at least 1.
func (p EntryPage) Pages() int {
	if p.PerPage < 1 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

func (p EntryPage) HasPrev() bool { return p.Page > 1 }

func (p EntryPage) HasNext() bool { return p.Page < p.Pages() }
