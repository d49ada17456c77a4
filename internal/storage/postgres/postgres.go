// Package postgres implements the ledger store on PostgreSQL.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bunchee/internal/core"
	"bunchee/internal/ledger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ ledger.Store = (*Store)(nil)

// New connects to databaseURL and applies pending migrations.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// migrate applies embedded migrations in file name order, recording each in
// bunchee_migrations.
func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bunchee_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("listing migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		var count int
		if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM bunchee_migrations WHERE version = $1", file).Scan(&count); err != nil {
			return fmt.Errorf("checking migration %s: %w", file, err)
		}
		if count > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", file, err)
		}

		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return fmt.Errorf("executing migration %s: %w", file, err)
			}
			if _, err := tx.Exec(ctx, "INSERT INTO bunchee_migrations (version) VALUES ($1)", file); err != nil {
				return fmt.Errorf("recording migration %s: %w", file, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "Applied migration", "file", file)
	}
	return nil
}

const entryColumns = "id, user_id, is_income, category, custom_name, amount_cents, notes, created_at"

func (s *Store) CreateEntry(ctx context.Context, e core.Entry) (core.Entry, error) {
	if err := e.Validate(); err != nil {
		return core.Entry{}, err
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO entries (user_id, is_income, category, custom_name, amount_cents, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		e.UserID, e.Kind.IsIncome(), e.Category, e.CustomName, e.Amount.Cents, e.Notes, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return core.Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	return e, nil
}

func (s *Store) UpdateEntry(ctx context.Context, e core.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE entries SET is_income = $1, category = $2, custom_name = $3, amount_cents = $4, notes = $5, created_at = $6
		 WHERE id = $7`,
		e.Kind.IsIncome(), e.Category, e.CustomName, e.Amount.Cents, e.Notes, e.CreatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("update entry %d: %w", e.ID, err)
	}
	return expectOne(tag)
}

func (s *Store) DeleteEntry(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete entry %d: %w", id, err)
	}
	return expectOne(tag)
}

func (s *Store) DeleteEntriesByUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM entries WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete entries of user %d: %w", userID, err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = $1`, id)
	if err != nil {
		return core.Entry{}, fmt.Errorf("get entry %d: %w", id, err)
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanEntry)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Entry{}, ledger.ErrNotFound
	}
	if err != nil {
		return core.Entry{}, fmt.Errorf("get entry %d: %w", id, err)
	}
	return e, nil
}

func (s *Store) ListMonth(ctx context.Context, f core.MonthFilter) ([]core.Entry, error) {
	start, end := f.Bounds()
	return s.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at, id`,
		start, end)
}

func (s *Store) ListAllEntries(ctx context.Context) ([]core.Entry, error) {
	return s.queryEntries(ctx, `SELECT `+entryColumns+` FROM entries ORDER BY created_at, id`)
}

func (s *Store) SearchEntries(ctx context.Context, q ledger.Query) (ledger.EntryPage, error) {
	q = q.Normalize()
	where := ""
	var args []any
	if text := strings.TrimSpace(q.Text); text != "" {
		where = ` WHERE category ILIKE $1 OR custom_name ILIKE $1 OR notes ILIKE $1`
		args = append(args, "%"+escapeLike(text)+"%")
	}

	page := ledger.EntryPage{Page: q.Page, PerPage: q.PerPage}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM entries`+where, args...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("count entries: %w", err)
	}

	n := len(args)
	entries, err := s.queryEntries(ctx,
		fmt.Sprintf(`SELECT %s FROM entries%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, entryColumns, where, n+1, n+2),
		append(args, q.PerPage, q.Offset())...)
	if err != nil {
		return page, err
	}
	page.Entries = entries
	return page, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]core.Entry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("scan entries: %w", err)
	}
	if entries == nil {
		entries = make([]core.Entry, 0)
	}
	return entries, nil
}

func scanEntry(row pgx.CollectableRow) (core.Entry, error) {
	var (
		e        core.Entry
		isIncome bool
	)
	err := row.Scan(&e.ID, &e.UserID, &isIncome, &e.Category, &e.CustomName, &e.Amount.Cents, &e.Notes, &e.CreatedAt)
	if err != nil {
		return core.Entry{}, err
	}
	e.Kind = core.Expense
	if isIncome {
		e.Kind = core.Income
	}
	return e, nil
}

func (s *Store) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash, is_admin) VALUES ($1, $2, $3) RETURNING id`,
		u.Username, u.PasswordHash, u.IsAdmin,
	).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, ledger.ErrDuplicateUsername
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (core.User, error) {
	return s.getUser(ctx, `SELECT id, username, password_hash, is_admin FROM users WHERE id = $1`, id)
}

func (s *Store) GetUserByName(ctx context.Context, username string) (core.User, error) {
	return s.getUser(ctx, `SELECT id, username, password_hash, is_admin FROM users WHERE username = $1`, username)
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (core.User, error) {
	var u core.User
	err := s.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, ledger.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, username, password_hash, is_admin FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.User, error) {
		var u core.User
		err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return users, nil
}

func (s *Store) UpdateUser(ctx context.Context, u core.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET username = $1, password_hash = $2, is_admin = $3 WHERE id = $4`,
		u.Username, u.PasswordHash, u.IsAdmin, u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicateUsername
		}
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}
	return expectOne(tag)
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM entries WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("delete entries of user %d: %w", id, err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete user %d: %w", id, err)
		}
		return expectOne(tag)
	})
}

func expectOne(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
