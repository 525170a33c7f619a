package library

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/library-service/cmd/api/auth"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks github.com/library-service/cmd/api/library Repository,Notifier,TokenManager,Exporter
//go:generate mockgen -destination=mocks/tx.go -package=mocks database/sql/driver Tx

type ServiceAPI interface {
	CreateBook(ctx context.Context, req CreateBookRequest) (Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (Book, error)
	ListBooks(ctx context.Context, req ListBooksRequest) (Page[Book], error)
	UpdateBook(ctx context.Context, req UpdateBookRequest) (Book, error)
	DeleteBook(ctx context.Context, id uuid.UUID) error

	CreateUser(ctx context.Context, req CreateUserRequest) (User, error)
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	ListUsers(ctx context.Context, page, pageSize int) (Page[User], error)
	UpdateUser(ctx context.Context, req UpdateUserRequest) (User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error

	BorrowBooks(ctx context.Context, userID uuid.UUID, requests []BorrowRequest) ([]Borrowing, error)
	ReturnBooks(ctx context.Context, userID uuid.UUID, bookIDs []uuid.UUID) (ReturnedBooks, error)
	ListBorrowings(ctx context.Context, filter BorrowingFilter) ([]Borrowing, error)
	ListUserBorrowings(ctx context.Context, userID uuid.UUID, onlyOpen bool) ([]Borrowing, error)

	SignUp(ctx context.Context, req SignUpRequest) (auth.Tokens, error)
	SignIn(ctx context.Context, req SignInRequest) (auth.Tokens, error)
	RefreshTokens(ctx context.Context, refreshToken string) (auth.Tokens, error)
	LogOut(ctx context.Context, userID uuid.UUID) error

	GenerateReport(ctx context.Context, req ReportRequest) (string, error)
	LocateReport(ctx context.Context, fileID string) (string, error)
}

// Inventory holds book rows and their quantities.
type Inventory interface {
	CreateBook(ctx context.Context, bookEntry Book) (Book, error)
	GetBookByID(ctx context.Context, id uuid.UUID) (Book, error)
	LockBook(ctx context.Context, id uuid.UUID) (Book, error)
	ListBooks(ctx context.Context, req ListBooksRequest) ([]Book, error)
	CountBooks(ctx context.Context, filter BookFilter) (int, error)
	UpdateBook(ctx context.Context, bookEntry Book) (Book, error)
	DeleteBook(ctx context.Context, id uuid.UUID) error
	// FindAvailableBooks returns, and locks for the rest of the transaction, the books of ids with at least one copy on the shelf.
	FindAvailableBooks(ctx context.Context, ids []uuid.UUID) ([]Book, error)
	// AdjustAvailability adds delta to available_quantity of every book in ids whose result stays within 0 and total_quantity.
	// It returns the number of rows changed.
	AdjustAvailability(ctx context.Context, ids []uuid.UUID, delta int) (int, error)
}

// Ledger holds the borrowing records.
type Ledger interface {
	InsertBorrowings(ctx context.Context, borrowings []Borrowing) ([]Borrowing, error)
	FindOpenBorrowings(ctx context.Context, userID uuid.UUID, bookIDs []uuid.UUID) ([]Borrowing, error)
	MarkReturned(ctx context.Context, userID uuid.UUID, bookIDs []uuid.UUID, returnedAt time.Time) ([]Borrowing, error)
	ListBorrowings(ctx context.Context, filter BorrowingFilter) ([]Borrowing, error)
}

type Accounts interface {
	CreateUser(ctx context.Context, userEntry User) (User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	LockUser(ctx context.Context, id uuid.UUID) (User, error)
	ListUsers(ctx context.Context, page, pageSize int) ([]User, error)
	CountUsers(ctx context.Context) (int, error)
	UpdateUser(ctx context.Context, userEntry User) (User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	SetRefreshTokenHash(ctx context.Context, userID uuid.UUID, hash *string) error
}

type Repository interface {
	Inventory
	Ledger
	Accounts
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Repository, driver.Tx, error)
}

type Notifier interface {
	BooksBorrowed(ctx context.Context, userID uuid.UUID, borrowings []Borrowing) error
	BooksReturned(ctx context.Context, userID uuid.UUID, borrowings []Borrowing) error
}

type TokenManager interface {
	IssueTokens(userID uuid.UUID, email string) (auth.Tokens, error)
	ParseRefreshToken(token string) (auth.Claims, error)
}

type Exporter interface {
	Export(ctx context.Context, borrowings []Borrowing) (string, error)
	Locate(fileID string) (string, error)
}

type Service struct {
	repo                 Repository
	notifier             Notifier
	tokens               TokenManager
	exporter             Exporter
	logger               *slog.Logger
	now                  func() time.Time
	notificationsTimeout time.Duration
	pending              sync.WaitGroup
}

type Option func(*Service)

func WithNotifier(n Notifier, timeout time.Duration) Option {
	return func(s *Service) {
		s.notifier = n
		s.notificationsTimeout = timeout
	}
}

func WithTokens(tm TokenManager) Option {
	return func(s *Service) { s.tokens = tm }
}

func WithExporter(e Exporter) Option {
	return func(s *Service) { s.exporter = e }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:                 repo,
		logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:                  func() time.Time { return time.Now().UTC().Round(time.Millisecond) },
		notificationsTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

/* Wait blocks until every notification already dispatched has finished. */
func (s *Service) Wait() {
	s.pending.Wait()
}

/*
Runs fn inside one store transaction. It commits when fn returns nil and rolls back on
any error or panic, re-raising the panic afterwards.
*/
func (s *Service) withTx(ctx context.Context, op string, fn func(tx Repository) error) (err error) {
	txRepo, tx, err := s.repo.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return s.txError(op, fmt.Errorf("begin: %w", err))
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("rollback failed", "operation", op, "error", rbErr)
		}
		if p := recover(); p != nil {
			panic(p)
		}
	}()

	if err = fn(txRepo); err != nil {
		return s.txError(op, err)
	}

	if err = tx.Commit(); err != nil {
		return s.txError(op, fmt.Errorf("commit: %w", err))
	}
	committed = true

	return nil
}

/* Business errors pass through untouched; anything else is logged and reported as a failed transaction. */
func (s *Service) txError(op string, err error) error {
	var errResp ErrResponse
	if errors.As(err, &errResp) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("timeout on call to %s: %w", op, err)
	}
	s.logger.Error("transaction failed", "operation", op, "error", err)
	return fmt.Errorf("%s: %w", op, ErrResponseTransactionFailed)
}

/* Publishes in the background; failures are logged and never reach the caller. */
func (s *Service) notify(op string, publish func(ctx context.Context, n Notifier) error) {
	if s.notifier == nil {
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.notificationsTimeout)
		defer cancel()
		if err := publish(ctx, s.notifier); err != nil {
			s.logger.Warn("notification failed", "operation", op, "error", err)
		}
	}()
}
