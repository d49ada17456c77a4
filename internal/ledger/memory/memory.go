// Package memory is an in-memory ledger store for development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"bunchee/internal/core"
	"bunchee/internal/ledger"
)

type Store struct {
	mu      sync.Mutex
	entries []core.Entry
	users   []core.User
	nextID  int64
	nextUID int64
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{nextID: 1, nextUID: 1}
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateEntry(_ context.Context, e core.Entry) (core.Entry, error) {
	if err := e.Validate(); err != nil {
		return core.Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.nextID
	s.nextID++
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *Store) UpdateEntry(_ context.Context, e core.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.entryIndex(e.ID)
	if i < 0 {
		return ledger.ErrNotFound
	}
	s.entries[i] = e
	return nil
}

func (s *Store) DeleteEntry(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.entryIndex(id)
	if i < 0 {
		return ledger.ErrNotFound
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	return nil
}

func (s *Store) DeleteEntriesByUser(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteEntriesByUser(userID), nil
}

func (s *Store) deleteEntriesByUser(userID int64) int64 {
	kept := s.entries[:0]
	var n int64
	for _, e := range s.entries {
		if e.UserID == userID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return n
}

func (s *Store) GetEntry(_ context.Context, id int64) (core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.entryIndex(id)
	if i < 0 {
		return core.Entry{}, ledger.ErrNotFound
	}
	return s.entries[i], nil
}

func (s *Store) ListMonth(_ context.Context, f core.MonthFilter) ([]core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Entry, 0)
	for _, e := range s.entries {
		if f.Contains(e.CreatedAt) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListAllEntries(_ context.Context) ([]core.Entry, error) {
	s.mu.Lock()
	out := append([]core.Entry(nil), s.entries...)
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SearchEntries(_ context.Context, q ledger.Query) (ledger.EntryPage, error) {
	q = q.Normalize()
	needle := strings.ToLower(strings.TrimSpace(q.Text))

	s.mu.Lock()
	matched := make([]core.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if needle == "" || matches(e, needle) {
			matched = append(matched, e)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := ledger.EntryPage{Total: len(matched), Page: q.Page, PerPage: q.PerPage}
	start := q.Offset()
	if start < len(matched) {
		end := min(start+q.PerPage, len(matched))
		page.Entries = matched[start:end]
	}
	return page, nil
}

func matches(e core.Entry, needle string) bool {
	for _, field := range []string{e.Category, e.CustomName, e.Notes} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userIndexByName(u.Username) >= 0 {
		return core.User{}, ledger.ErrDuplicateUsername
	}
	u.ID = s.nextUID
	s.nextUID++
	s.users = append(s.users, u)
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.userIndex(id)
	if i < 0 {
		return core.User{}, ledger.ErrNotFound
	}
	return s.users[i], nil
}

func (s *Store) GetUserByName(_ context.Context, username string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.userIndexByName(username)
	if i < 0 {
		return core.User{}, ledger.ErrNotFound
	}
	return s.users[i], nil
}

func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	s.mu.Lock()
	out := append([]core.User(nil), s.users...)
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) UpdateUser(_ context.Context, u core.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.userIndex(u.ID)
	if i < 0 {
		return ledger.ErrNotFound
	}
	if j := s.userIndexByName(u.Username); j >= 0 && j != i {
		return ledger.ErrDuplicateUsername
	}
	s.users[i] = u
	return nil
}

func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.userIndex(id)
	if i < 0 {
		return ledger.ErrNotFound
	}
	s.deleteEntriesByUser(id)
	s.users = append(s.users[:i], s.users[i+1:]...)
	return nil
}

func (s *Store) entryIndex(id int64) int {
	for i, e := range s.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) userIndex(id int64) int {
	for i, u := range s.users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) userIndexByName(name string) int {
	for i, u := range s.users {
		if u.Username == name {
			return i
		}
	}
	return -1
}
