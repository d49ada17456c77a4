package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bunchee/internal/core"
	"bunchee/internal/ledger"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteRepository struct {
	db *sql.DB
}

var _ ledger.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const entryColumns = "id, user_id, is_income, category, custom_name, amount_cents, notes, created_at"

func (r *SQLiteRepository) CreateEntry(ctx context.Context, e core.Entry) (core.Entry, error) {
	if err := e.Validate(); err != nil {
		return core.Entry{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO entries (user_id, is_income, category, custom_name, amount_cents, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Kind.IsIncome(), e.Category, e.CustomName, e.Amount.Cents, e.Notes, formatTime(e.CreatedAt))
	if err != nil {
		return core.Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Entry{}, fmt.Errorf("entry id: %w", err)
	}
	e.ID = id

	slog.DebugContext(ctx, "Entry saved to SQLite",
		"id", e.ID,
		"kind", e.Kind,
		"amount_cents", e.Amount.Cents)

	return e, nil
}

func (r *SQLiteRepository) UpdateEntry(ctx context.Context, e core.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE entries SET is_income = ?, category = ?, custom_name = ?, amount_cents = ?, notes = ?, created_at = ?
		 WHERE id = ?`,
		e.Kind.IsIncome(), e.Category, e.CustomName, e.Amount.Cents, e.Notes, formatTime(e.CreatedAt), e.ID)
	if err != nil {
		return fmt.Errorf("update entry %d: %w", e.ID, err)
	}
	return expectOne(res)
}

func (r *SQLiteRepository) DeleteEntry(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry %d: %w", id, err)
	}
	return expectOne(res)
}

func (r *SQLiteRepository) DeleteEntriesByUser(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete entries of user %d: %w", userID, err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entry{}, ledger.ErrNotFound
	}
	if err != nil {
		return core.Entry{}, fmt.Errorf("get entry %d: %w", id, err)
	}
	return e, nil
}

func (r *SQLiteRepository) ListMonth(ctx context.Context, f core.MonthFilter) ([]core.Entry, error) {
	start, end := f.Bounds()
	return r.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE created_at >= ? AND created_at < ? ORDER BY created_at, id`,
		formatTime(start), formatTime(end))
}

func (r *SQLiteRepository) ListAllEntries(ctx context.Context) ([]core.Entry, error) {
	return r.queryEntries(ctx, `SELECT `+entryColumns+` FROM entries ORDER BY created_at, id`)
}

func (r *SQLiteRepository) SearchEntries(ctx context.Context, q ledger.Query) (ledger.EntryPage, error) {
	q = q.Normalize()
	where := ""
	var args []any
	if text := strings.TrimSpace(q.Text); text != "" {
		like := "%" + escapeLike(strings.ToLower(text)) + "%"
		where = ` WHERE lower(category) LIKE ? ESCAPE '\' OR lower(custom_name) LIKE ? ESCAPE '\' OR lower(notes) LIKE ? ESCAPE '\'`
		args = append(args, like, like, like)
	}

	page := ledger.EntryPage{Page: q.Page, PerPage: q.PerPage}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`+where, args...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("count entries: %w", err)
	}

	entries, err := r.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM entries`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, q.PerPage, q.Offset())...)
	if err != nil {
		return page, err
	}
	page.Entries = entries
	return page, nil
}

func (r *SQLiteRepository) queryEntries(ctx context.Context, query string, args ...any) ([]core.Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := make([]core.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (core.Entry, error) {
	var (
		e         core.Entry
		isIncome  bool
		createdAt string
	)
	if err := s.Scan(&e.ID, &e.UserID, &isIncome, &e.Category, &e.CustomName, &e.Amount.Cents, &e.Notes, &createdAt); err != nil {
		return core.Entry{}, err
	}
	e.Kind = core.Expense
	if isIncome {
		e.Kind = core.Income
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return core.Entry{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return e, nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, is_admin) VALUES (?, ?, ?)`,
		u.Username, u.PasswordHash, u.IsAdmin)
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, ledger.ErrDuplicateUsername
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("user id: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	return r.getUser(ctx, `SELECT id, username, password_hash, is_admin FROM users WHERE id = ?`, id)
}

func (r *SQLiteRepository) GetUserByName(ctx context.Context, username string) (core.User, error) {
	return r.getUser(ctx, `SELECT id, username, password_hash, is_admin FROM users WHERE username = ?`, username)
}

func (r *SQLiteRepository) getUser(ctx context.Context, query string, arg any) (core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ledger.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, username, password_hash, is_admin FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		var u core.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *SQLiteRepository) UpdateUser(ctx context.Context, u core.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET username = ?, password_hash = ?, is_admin = ? WHERE id = ?`,
		u.Username, u.PasswordHash, u.IsAdmin, u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicateUsername
		}
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}
	return expectOne(res)
}

func (r *SQLiteRepository) DeleteUser(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("delete entries of user %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	if err := expectOne(res); err != nil {
		return err
	}
	return tx.Commit()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
