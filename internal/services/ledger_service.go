package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"bunchee/internal/amqp"
	"bunchee/internal/cache"
	"bunchee/internal/core"
	"bunchee/internal/ledger"
)

var ErrForbidden = errors.New("not allowed to change this entry")

// Publisher announces ledger changes. *amqp.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, msg *amqp.LedgerChangeMessage) error
	Close() error
}

// Actor is the user performing a write.
type Actor struct {
	UserID  int64
	IsAdmin bool
}

// CanModify reports whether the actor may change e.
func (a Actor) CanModify(e core.Entry) bool {
	return a.IsAdmin || a.UserID == e.UserID
}

// LedgerService orchestrates ledger writes across storage, the stats cache
// and change events, and serves the cached dashboard aggregates.
type LedgerService struct {
	store     ledger.Store
	publisher Publisher
	stats     *cache.Stats
	loc       *time.Location
	now       func() time.Time
}

// Option configures a LedgerService.
type Option func(*LedgerService)

// WithPublisher enables change events.
func WithPublisher(p Publisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

// WithStatsCache caches chart data and monthly stats.
func WithStatsCache(c *cache.Stats) Option {
	return func(s *LedgerService) { s.stats = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

func NewLedgerService(store ledger.Store, loc *time.Location, opts ...Option) *LedgerService {
	if loc == nil {
		loc = time.UTC
	}
	s := &LedgerService{store: store, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location is the timezone months are bucketed in.
func (s *LedgerService) Location() *time.Location { return s.loc }

// Now returns the current time in the ledger's location.
func (s *LedgerService) Now() time.Time { return s.now().In(s.loc) }

func (s *LedgerService) monthOf(t time.Time) cache.MonthKey {
	lt := t.In(s.loc)
	return cache.MonthKey{Year: lt.Year(), Month: int(lt.Month())}
}

// CreateEntry validates and saves e for userID. A zero CreatedAt means now.
func (s *LedgerService) CreateEntry(ctx context.Context, userID int64, e core.Entry) (core.Entry, error) {
	e.ID = 0
	e.UserID = userID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if err := e.Validate(); err != nil {
		return core.Entry{}, err
	}
	created, err := s.store.CreateEntry(ctx, e)
	if err != nil {
		return core.Entry{}, fmt.Errorf("save entry: %w", err)
	}
	m := s.monthOf(created.CreatedAt)
	s.invalidate(m)
	s.publish(ctx, amqp.NewLedgerChangeMessage(amqp.OpCreate, created.ID, m.Year, m.Month))
	return created, nil
}

// UpdateEntry replaces the editable fields of an existing entry. Owner and
// creation time are kept.
func (s *LedgerService) UpdateEntry(ctx context.Context, actor Actor, e core.Entry) (core.Entry, error) {
	existing, err := s.store.GetEntry(ctx, e.ID)
	if err != nil {
		return core.Entry{}, err
	}
	if !actor.CanModify(existing) {
		return core.Entry{}, ErrForbidden
	}
	e.UserID = existing.UserID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = existing.CreatedAt
	}
	if err := e.Validate(); err != nil {
		return core.Entry{}, err
	}
	if err := s.store.UpdateEntry(ctx, e); err != nil {
		return core.Entry{}, fmt.Errorf("update entry: %w", err)
	}
	before, after := s.monthOf(existing.CreatedAt), s.monthOf(e.CreatedAt)
	s.invalidate(before)
	if after != before {
		s.invalidate(after)
	}
	s.publish(ctx, amqp.NewLedgerChangeMessage(amqp.OpUpdate, e.ID, after.Year, after.Month))
	return e, nil
}

// DeleteEntry removes one entry.
func (s *LedgerService) DeleteEntry(ctx context.Context, actor Actor, id int64) error {
	existing, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanModify(existing) {
		return ErrForbidden
	}
	if err := s.store.DeleteEntry(ctx, id); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	m := s.monthOf(existing.CreatedAt)
	s.invalidate(m)
	s.publish(ctx, amqp.NewLedgerChangeMessage(amqp.OpDelete, id, m.Year, m.Month))
	return nil
}

// DeleteAllForUser removes every entry owned by userID.
func (s *LedgerService) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	n, err := s.store.DeleteEntriesByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("delete entries: %w", err)
	}
	if n > 0 {
		s.purge()
		msg := amqp.NewLedgerChangeMessage(amqp.OpDeleteAll, 0, 0, 0)
		msg.UserID, msg.Count = userID, n
		s.publish(ctx, msg)
	}
	return n, nil
}

// ImportEntries stores entries for userID and returns how many were saved.
// Invalid entries are skipped.
func (s *LedgerService) ImportEntries(ctx context.Context, userID int64, entries []core.Entry) (int, error) {
	saved := 0
	for _, e := range entries {
		e.ID = 0
		e.UserID = userID
		if e.CreatedAt.IsZero() {
			e.CreatedAt = s.now()
		}
		if err := e.Validate(); err != nil {
			slog.DebugContext(ctx, "Skipping invalid imported entry", "component", "ledger", "error", err)
			continue
		}
		if _, err := s.store.CreateEntry(ctx, e); err != nil {
			return saved, fmt.Errorf("import entry: %w", err)
		}
		saved++
	}
	if saved > 0 {
		s.purge()
		msg := amqp.NewLedgerChangeMessage(amqp.OpImport, 0, 0, 0)
		msg.UserID, msg.Count = userID, int64(saved)
		s.publish(ctx, msg)
	}
	return saved, nil
}

// GetEntry returns one entry.
func (s *LedgerService) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	return s.store.GetEntry(ctx, id)
}

// Search returns one page of the entry list.
func (s *LedgerService) Search(ctx context.Context, q ledger.Query) (ledger.EntryPage, error) {
	return s.store.SearchEntries(ctx, q.Normalize())
}

// AllEntries returns every entry, oldest first.
func (s *LedgerService) AllEntries(ctx context.Context) ([]core.Entry, error) {
	return s.store.ListAllEntries(ctx)
}

// ChartData returns the per-label totals of kind for the month.
func (s *LedgerService) ChartData(ctx context.Context, kind core.Kind, year, month int) (core.ChartData, error) {
	m := cache.MonthKey{Year: year, Month: month}
	var gen cache.Generation
	if s.stats != nil {
		if d, ok := s.stats.ChartData(kind, m); ok {
			return d, nil
		}
		gen = s.stats.Generation(m)
	}
	entries, err := s.store.ListMonth(ctx, core.MonthFilter{Year: year, Month: month, Location: s.loc})
	if err != nil {
		return core.ChartData{}, fmt.Errorf("list month: %w", err)
	}
	d := core.BuildChartData(entries, kind)
	if s.stats != nil {
		s.stats.SetChartData(kind, m, gen, d)
	}
	return d, nil
}

// MonthlyStats returns income, expense and balance for the month.
func (s *LedgerService) MonthlyStats(ctx context.Context, year, month int) (core.MonthlyStats, error) {
	m := cache.MonthKey{Year: year, Month: month}
	var gen cache.Generation
	if s.stats != nil {
		if st, ok := s.stats.MonthlyStats(m); ok {
			return st, nil
		}
		gen = s.stats.Generation(m)
	}
	entries, err := s.store.ListMonth(ctx, core.MonthFilter{Year: year, Month: month, Location: s.loc})
	if err != nil {
		return core.MonthlyStats{}, fmt.Errorf("list month: %w", err)
	}
	st := core.ComputeMonthlyStats(entries)
	if s.stats != nil {
		s.stats.SetMonthlyStats(m, gen, st)
	}
	return st, nil
}

// Warm fills the cache for a month, computing both charts and the stats
// concurrently.
func (s *LedgerService) Warm(ctx context.Context, year, month int) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, kind := range []core.Kind{core.Income, core.Expense} {
		g.Go(func() error {
			_, err := s.ChartData(ctx, kind, year, month)
			return err
		})
	}
	g.Go(func() error {
		_, err := s.MonthlyStats(ctx, year, month)
		return err
	})
	return g.Wait()
}

// Summary returns the daily, monthly and yearly net totals as of now.
func (s *LedgerService) Summary(ctx context.Context) (core.Summary, error) {
	now := s.Now()
	start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, s.loc)
	entries, err := s.store.ListAllEntries(ctx)
	if err != nil {
		return core.Summary{}, fmt.Errorf("list entries: %w", err)
	}
	year := entries[:0:0]
	for _, e := range entries {
		if !e.CreatedAt.Before(start) {
			year = append(year, e)
		}
	}
	return core.Summarize(year, now, s.loc), nil
}

func (s *LedgerService) invalidate(m cache.MonthKey) {
	if s.stats != nil {
		s.stats.Invalidate(m)
	}
}

func (s *LedgerService) purge() {
	if s.stats != nil {
		s.stats.Purge()
	}
}

// publish sends msg when a publisher is configured. Failures are logged;
// the write has already succeeded.
func (s *LedgerService) publish(ctx context.Context, msg *amqp.LedgerChangeMessage) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP not configured, skipping change event", "component", "ledger", "op", msg.Op)
		return
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish change event",
			"component", "ledger", "op", msg.Op, "entry_id", msg.EntryID, "error", err)
	}
}

// Close closes the store and the publisher.
func (s *LedgerService) Close() error {
	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	return errors.Join(errs...)
}
