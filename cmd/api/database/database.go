package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/library-service/cmd/api/library"

	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"

	codeUniqueViolation = "23505"
	codeCheckViolation  = "23514"
)

var dialect = goqu.Dialect("postgres")

// DBTX is satisfied by both *sqlx.DB and *sqlx.Tx.
type DBTX interface {
	sqlx.ExtContext
}

// Logger receives executed SQL with durations at debug level and failures at error level.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type Store struct {
	db     *sqlx.DB
	exc    DBTX
	logger Logger
}

type Option func(*Store)

func WithLogger(logger Logger) Option {
	return func(store *Store) {
		store.logger = logger
	}
}

func NewStore(db *sqlx.DB, opts ...Option) *Store {
	store := &Store{
		db:  db,
		exc: db,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (store *Store) BeginTx(ctx context.Context, opts *sql.TxOptions) (library.Repository, driver.Tx, error) {
	tx, err := store.db.BeginTxx(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}

	txRepo := &Store{
		db:     store.db,
		exc:    tx,
		logger: store.logger,
	}
	return txRepo, tx, nil
}

/* Connects to the database trought a connection string, using lib/pq ("postgres") or pgx ("pgx") as driver. */
func ConnectDb(driverName, connStr string) (*sqlx.DB, error) {
	if driverName != DriverPostgres && driverName != DriverPgx {
		return nil, fmt.Errorf("connecting to db: unsupported driver %q", driverName)
	}

	db, err := sqlx.Open(driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("connecting to db, openning: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connecting to db, pingging: %w", err)
	}

	return db, nil
}

func MigrationUp(store *Store, path string) error {
	driver, err := postgres.WithInstance(store.db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", path),
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}

	if err := m.Up(); err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}
	return nil
}

func (store *Store) get(ctx context.Context, action string, dest any, query string, args ...any) error {
	start := time.Now()
	err := sqlx.GetContext(ctx, store.exc, dest, query, args...)
	store.logQuery(action, query, time.Since(start), err)
	return err
}

func (store *Store) selectRows(ctx context.Context, action string, dest any, query string, args ...any) error {
	start := time.Now()
	err := sqlx.SelectContext(ctx, store.exc, dest, query, args...)
	store.logQuery(action, query, time.Since(start), err)
	return err
}

/* Executes the statement and returns the amount of rows it touched. */
func (store *Store) exec(ctx context.Context, action string, query string, args ...any) (int, error) {
	start := time.Now()
	res, err := store.exc.ExecContext(ctx, query, args...)
	store.logQuery(action, query, time.Since(start), err)
	if err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (store *Store) logQuery(action, query string, d time.Duration, err error) {
	if store.logger == nil {
		return
	}
	ms := math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		store.logger.Error("sql failed: "+action, "error", err.Error(), "duration_ms", ms, "query", query)
		return
	}
	store.logger.Debug("sql executed: "+action, "duration_ms", ms, "query", query)
}

/* Maps constraint violations reported by either driver to the matching error kind. */
func translate(err error) error {
	code, constraint := "", ""
	var pqErr *pq.Error
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pqErr):
		code, constraint = string(pqErr.Code), pqErr.Constraint
	case errors.As(err, &pgErr):
		code, constraint = pgErr.Code, pgErr.ConstraintName
	default:
		return err
	}

	switch {
	case code == codeUniqueViolation && constraint == "users_email_key":
		return library.ErrResponseEmailAlreadyExists
	case code == codeUniqueViolation && constraint == "books_isbn_key":
		return library.ErrResponseISBNAlreadyExists
	case code == codeCheckViolation && constraint == "books_quantities_check":
		return library.ErrResponseAvailabilityExceedsTotal
	}
	return err
}

func idStrings[T interface{ String() string }](ids []T) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
