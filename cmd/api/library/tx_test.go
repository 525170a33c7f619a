package library_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/library-service/cmd/api/auth"
	"github.com/library-service/cmd/api/library"
	librarymock "github.com/library-service/cmd/api/library/mocks"
	"github.com/matryer/is"
	"go.uber.org/mock/gomock"
)

type txFixture struct {
	repo   *librarymock.MockRepository
	txRepo *librarymock.MockRepository
	tx     *librarymock.MockTx
	svc    *library.Service
}

func newTxFixture(t *testing.T) txFixture {
	ctrl := gomock.NewController(t)
	f := txFixture{
		repo:   librarymock.NewMockRepository(ctrl),
		txRepo: librarymock.NewMockRepository(ctrl),
		tx:     librarymock.NewMockTx(ctrl),
	}
	f.svc = library.NewService(f.repo, library.WithClock(func() time.Time { return start }))
	return f
}

func (f txFixture) expectBegin() {
	f.repo.EXPECT().BeginTx(gomock.Any(), &sql.TxOptions{Isolation: sql.LevelReadCommitted}).Return(f.txRepo, f.tx, nil)
}

func TestBorrowTransaction(t *testing.T) {
	ctx := context.Background()
	userID, bookID := uuid.New(), uuid.New()

	t.Run("commits once every step succeeds", func(t *testing.T) {
		is := is.New(t)
		f := newTxFixture(t)
		f.expectBegin()

		gomock.InOrder(
			f.txRepo.EXPECT().LockUser(gomock.Any(), userID).Return(library.User{ID: userID}, nil),
			f.txRepo.EXPECT().FindOpenBorrowings(gomock.Any(), userID, []uuid.UUID{bookID}).Return(nil, nil),
			f.txRepo.EXPECT().FindAvailableBooks(gomock.Any(), []uuid.UUID{bookID}).Return([]library.Book{{ID: bookID, AvailableQuantity: 1}}, nil),
			f.txRepo.EXPECT().InsertBorrowings(gomock.Any(), gomock.Any()).DoAndReturn(
				func(ctx context.Context, rows []library.Borrowing) ([]library.Borrowing, error) {
					return rows, nil
				}),
			f.txRepo.EXPECT().AdjustAvailability(gomock.Any(), []uuid.UUID{bookID}, -1).Return(1, nil),
			f.tx.EXPECT().Commit().Return(nil),
		)

		borrowings, err := f.svc.BorrowBooks(ctx, userID, borrowOne(bookID))
		is.NoErr(err)
		is.Equal(len(borrowings), 1)
		is.Equal(borrowings[0].CreatedAt, start)
	})

	t.Run("rolls back when a write fails", func(t *testing.T) {
		is := is.New(t)
		f := newTxFixture(t)
		f.expectBegin()

		f.txRepo.EXPECT().LockUser(gomock.Any(), userID).Return(library.User{ID: userID}, nil)
		f.txRepo.EXPECT().FindOpenBorrowings(gomock.Any(), userID, gomock.Any()).Return(nil, nil)
		f.txRepo.EXPECT().FindAvailableBooks(gomock.Any(), gomock.Any()).Return([]library.Book{{ID: bookID}}, nil)
		f.txRepo.EXPECT().InsertBorrowings(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))
		f.tx.EXPECT().Rollback().Return(nil)

		_, err := f.svc.BorrowBooks(ctx, userID, borrowOne(bookID))
		is.True(errors.Is(err, library.ErrResponseTransactionFailed))
	})

	t.Run("rolls back a business abort without wrapping it", func(t *testing.T) {
		is := is.New(t)
		f := newTxFixture(t)
		f.expectBegin()

		f.txRepo.EXPECT().LockUser(gomock.Any(), userID).Return(library.User{ID: userID}, nil)
		f.txRepo.EXPECT().FindOpenBorrowings(gomock.Any(), userID, gomock.Any()).Return([]library.Borrowing{{UserID: userID, BookID: bookID}}, nil)
		f.tx.EXPECT().Rollback().Return(nil)

		_, err := f.svc.BorrowBooks(ctx, userID, borrowOne(bookID))
		is.Equal(err, library.ErrResponseDuplicateBorrow)
	})

	t.Run("a lost race on the decrement aborts", func(t *testing.T) {
		is := is.New(t)
		f := newTxFixture(t)
		f.expectBegin()

		f.txRepo.EXPECT().LockUser(gomock.Any(), userID).Return(library.User{ID: userID}, nil)
		f.txRepo.EXPECT().FindOpenBorrowings(gomock.Any(), userID, gomock.Any()).Return(nil, nil)
		f.txRepo.EXPECT().FindAvailableBooks(gomock.Any(), gomock.Any()).Return([]library.Book{{ID: bookID}}, nil)
		f.txRepo.EXPECT().InsertBorrowings(gomock.Any(), gomock.Any()).Return(nil, nil)
		f.txRepo.EXPECT().AdjustAvailability(gomock.Any(), gomock.Any(), -1).Return(0, nil)
		f.tx.EXPECT().Rollback().Return(nil)

		_, err := f.svc.BorrowBooks(ctx, userID, borrowOne(bookID))
		is.True(errors.Is(err, library.ErrResponseBooksUnavailable))
	})

	t.Run("rolls back and re-raises a panic", func(t *testing.T) {
		is := is.New(t)
		f := newTxFixture(t)
		f.expectBegin()

		f.txRepo.EXPECT().LockUser(gomock.Any(), userID).DoAndReturn(
			func(ctx context.Context, id uuid.UUID) (library.User, error) {
				panic("driver exploded")
			})
		f.tx.EXPECT().Rollback().Return(nil)

		defer func() {
			is.Equal(recover(), "driver exploded")
		}()
		_, _ = f.svc.BorrowBooks(ctx, userID, borrowOne(bookID))
		t.Fatal("expected a panic")
	})

	t.Run("a failed commit is a failed transaction", func(t *testing.T) {
		is := is.New(t)
		f := newTxFixture(t)
		f.expectBegin()

		f.txRepo.EXPECT().LockUser(gomock.Any(), userID).Return(library.User{ID: userID}, nil)
		f.txRepo.EXPECT().FindOpenBorrowings(gomock.Any(), userID, gomock.Any()).Return(nil, nil)
		f.txRepo.EXPECT().FindAvailableBooks(gomock.Any(), gomock.Any()).Return([]library.Book{{ID: bookID}}, nil)
		f.txRepo.EXPECT().InsertBorrowings(gomock.Any(), gomock.Any()).Return(nil, nil)
		f.txRepo.EXPECT().AdjustAvailability(gomock.Any(), gomock.Any(), -1).Return(1, nil)
		f.tx.EXPECT().Commit().Return(errors.New("serialization failure"))
		f.tx.EXPECT().Rollback().Return(sql.ErrTxDone)

		_, err := f.svc.BorrowBooks(ctx, userID, borrowOne(bookID))
		is.True(errors.Is(err, library.ErrResponseTransactionFailed))
	})

	t.Run("an expired context is reported as a timeout", func(t *testing.T) {
		is := is.New(t)
		f := newTxFixture(t)

		f.repo.EXPECT().BeginTx(gomock.Any(), gomock.Any()).Return(nil, nil, context.DeadlineExceeded)

		_, err := f.svc.BorrowBooks(ctx, userID, borrowOne(bookID))
		is.True(errors.Is(err, context.DeadlineExceeded))
	})

	t.Run("invalid requests never open a transaction", func(t *testing.T) {
		is := is.New(t)
		f := newTxFixture(t)

		_, err := f.svc.BorrowBooks(ctx, userID, []library.BorrowRequest{{BookID: bookID, DueDate: start.Add(-time.Minute)}})
		is.True(errors.Is(err, library.ErrResponseDueDateInPast))
	})
}

func TestReturnTransaction(t *testing.T) {
	ctx := context.Background()
	userID, bookID, otherID := uuid.New(), uuid.New(), uuid.New()

	t.Run("restores only the books that were closed", func(t *testing.T) {
		is := is.New(t)
		f := newTxFixture(t)
		f.expectBegin()

		returnedAt := start
		f.txRepo.EXPECT().LockUser(gomock.Any(), userID).Return(library.User{ID: userID}, nil)
		f.txRepo.EXPECT().MarkReturned(gomock.Any(), userID, []uuid.UUID{bookID, otherID}, start).
			Return([]library.Borrowing{{UserID: userID, BookID: bookID, IsReturned: true, ReturnDate: &returnedAt, DueDate: start.Add(time.Hour)}}, nil)
		f.txRepo.EXPECT().AdjustAvailability(gomock.Any(), []uuid.UUID{bookID}, 1).Return(1, nil)
		f.tx.EXPECT().Commit().Return(nil)

		returned, err := f.svc.ReturnBooks(ctx, userID, []uuid.UUID{bookID, otherID})
		is.NoErr(err)
		is.Equal(returned.AffectedCount, 1)
	})

	t.Run("rolls back when the restore fails", func(t *testing.T) {
		is := is.New(t)
		f := newTxFixture(t)
		f.expectBegin()

		f.txRepo.EXPECT().LockUser(gomock.Any(), userID).Return(library.User{ID: userID}, nil)
		f.txRepo.EXPECT().MarkReturned(gomock.Any(), userID, gomock.Any(), gomock.Any()).Return([]library.Borrowing{{BookID: bookID}}, nil)
		f.txRepo.EXPECT().AdjustAvailability(gomock.Any(), gomock.Any(), 1).Return(0, errors.New("deadlock detected"))
		f.tx.EXPECT().Rollback().Return(nil)

		_, err := f.svc.ReturnBooks(ctx, userID, []uuid.UUID{bookID})
		is.True(errors.Is(err, library.ErrResponseTransactionFailed))
	})
}

func TestAuthTransactions(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	withTokens := func(t *testing.T, f *txFixture) *librarymock.MockTokenManager {
		tokens := librarymock.NewMockTokenManager(gomock.NewController(t))
		f.svc = library.NewService(f.repo, library.WithClock(func() time.Time { return start }), library.WithTokens(tokens))
		return tokens
	}

	t.Run("sign up stores the user and the refresh hash in one transaction", func(t *testing.T) {
		is := is.New(t)
		f := newTxFixture(t)
		tokens := withTokens(t, &f)
		f.expectBegin()

		gomock.InOrder(
			f.txRepo.EXPECT().CreateUser(gomock.Any(), gomock.Any()).DoAndReturn(
				func(ctx context.Context, u library.User) (library.User, error) {
					u.ID = userID
					return u, nil
				}),
			tokens.EXPECT().IssueTokens(userID, "ada@library.test").Return(auth.Tokens{AccessToken: "a", RefreshToken: "r"}, nil),
			f.txRepo.EXPECT().SetRefreshTokenHash(gomock.Any(), userID, gomock.Not(gomock.Nil())).Return(nil),
			f.tx.EXPECT().Commit().Return(nil),
		)

		issued, err := f.svc.SignUp(ctx, library.SignUpRequest{Name: "Ada", Email: "ada@library.test", Password: "pw"})
		is.NoErr(err)
		is.Equal(issued.RefreshToken, "r")
	})

	t.Run("sign up rolls back the new user when issuing tokens fails", func(t *testing.T) {
		is := is.New(t)
		f := newTxFixture(t)
		tokens := withTokens(t, &f)
		f.expectBegin()

		f.txRepo.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Return(library.User{ID: userID, Email: "ada@library.test"}, nil)
		tokens.EXPECT().IssueTokens(userID, "ada@library.test").Return(auth.Tokens{}, errors.New("signing key unavailable"))
		f.tx.EXPECT().Rollback().Return(nil)

		_, err := f.svc.SignUp(ctx, library.SignUpRequest{Name: "Ada", Email: "ada@library.test", Password: "pw"})
		is.True(errors.Is(err, library.ErrResponseTransactionFailed))
	})

	t.Run("refresh locks the user before rotating the hash", func(t *testing.T) {
		is := is.New(t)
		f := newTxFixture(t)
		tokens := withTokens(t, &f)
		stored, err := auth.HashRefreshToken("old-refresh")
		is.NoErr(err)

		tokens.EXPECT().ParseRefreshToken("old-refresh").Return(auth.Claims{UserID: userID}, nil)
		f.expectBegin()
		gomock.InOrder(
			f.txRepo.EXPECT().LockUser(gomock.Any(), userID).Return(library.User{ID: userID, IsActive: true, RefreshTokenHash: &stored}, nil),
			tokens.EXPECT().IssueTokens(userID, gomock.Any()).Return(auth.Tokens{AccessToken: "a", RefreshToken: "new-refresh"}, nil),
			f.txRepo.EXPECT().SetRefreshTokenHash(gomock.Any(), userID, gomock.Not(gomock.Nil())).Return(nil),
			f.tx.EXPECT().Commit().Return(nil),
		)

		issued, err := f.svc.RefreshTokens(ctx, "old-refresh")
		is.NoErr(err)
		is.Equal(issued.RefreshToken, "new-refresh")
	})

	t.Run("refresh with a retired token rolls back", func(t *testing.T) {
		is := is.New(t)
		f := newTxFixture(t)
		tokens := withTokens(t, &f)
		stored, err := auth.HashRefreshToken("current-refresh")
		is.NoErr(err)

		tokens.EXPECT().ParseRefreshToken("old-refresh").Return(auth.Claims{UserID: userID}, nil)
		f.expectBegin()
		f.txRepo.EXPECT().LockUser(gomock.Any(), userID).Return(library.User{ID: userID, IsActive: true, RefreshTokenHash: &stored}, nil)
		f.tx.EXPECT().Rollback().Return(nil)

		_, err = f.svc.RefreshTokens(ctx, "old-refresh")
		is.True(errors.Is(err, library.ErrResponseAccessDenied))
	})
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes borrow and return events", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		notifier := librarymock.NewMockNotifier(ctrl)
		svc, _, _ := newService(t, library.WithNotifier(notifier, time.Second))

		u := addUser(t, svc, "ada@library.test")
		b := addBook(t, svc, "1", 1)

		notifier.EXPECT().BooksBorrowed(gomock.Any(), u.ID, gomock.Any()).Return(nil)
		_, err := svc.BorrowBooks(ctx, u.ID, borrowOne(b.ID))
		is.NoErr(err)
		svc.Wait()

		notifier.EXPECT().BooksReturned(gomock.Any(), u.ID, gomock.Any()).Return(nil)
		_, err = svc.ReturnBooks(ctx, u.ID, []uuid.UUID{b.ID})
		is.NoErr(err)
		svc.Wait()
	})

	t.Run("a failing notifier does not fail the borrow", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		notifier := librarymock.NewMockNotifier(ctrl)
		svc, _, _ := newService(t, library.WithNotifier(notifier, time.Second))

		u := addUser(t, svc, "ada@library.test")
		b := addBook(t, svc, "1", 1)

		notifier.EXPECT().BooksBorrowed(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("ntfy down"))
		_, err := svc.BorrowBooks(ctx, u.ID, borrowOne(b.ID))
		is.NoErr(err)
		svc.Wait()
	})

	t.Run("an empty return publishes nothing", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		notifier := librarymock.NewMockNotifier(ctrl)
		svc, _, _ := newService(t, library.WithNotifier(notifier, time.Second))

		u := addUser(t, svc, "ada@library.test")
		_, err := svc.ReturnBooks(ctx, u.ID, []uuid.UUID{uuid.New()})
		is.NoErr(err)
		svc.Wait()
	})
}

func TestReports(t *testing.T) {
	ctx := context.Background()

	t.Run("exports the borrowings inside the window", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		exporter := librarymock.NewMockExporter(ctrl)
		svc, _, c := newService(t, library.WithExporter(exporter))

		u := addUser(t, svc, "ada@library.test")
		early, late := addBook(t, svc, "early", 1), addBook(t, svc, "late", 1)

		_, err := svc.BorrowBooks(ctx, u.ID, borrowOne(early.ID))
		is.NoErr(err)
		c.advance(48 * time.Hour)
		_, err = svc.BorrowBooks(ctx, u.ID, []library.BorrowRequest{{BookID: late.ID, DueDate: start.Add(30 * 24 * time.Hour)}})
		is.NoErr(err)

		var exported []library.Borrowing
		exporter.EXPECT().Export(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, borrowings []library.Borrowing) (string, error) {
				exported = borrowings
				return "report-id", nil
			})

		from := start.Add(24 * time.Hour)
		fileID, err := svc.GenerateReport(ctx, library.ReportRequest{From: &from})
		is.NoErr(err)
		is.Equal(fileID, "report-id")
		is.Equal(len(exported), 1)
		is.Equal(exported[0].BookID, late.ID)
	})

	t.Run("expected invalid window error", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		svc, _, _ := newService(t, library.WithExporter(librarymock.NewMockExporter(ctrl)))

		from, to := start, start.Add(-time.Hour)
		_, err := svc.GenerateReport(ctx, library.ReportRequest{From: &from, To: &to})
		is.True(errors.Is(err, library.ErrResponseQueryDateInvalidFormat))
	})

	t.Run("locates a report through the exporter", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		exporter := librarymock.NewMockExporter(ctrl)
		svc, _, _ := newService(t, library.WithExporter(exporter))

		exporter.EXPECT().Locate("missing").Return("", library.ErrResponseReportNotFound)

		_, err := svc.LocateReport(ctx, "missing")
		is.True(errors.Is(err, library.ErrResponseReportNotFound))
	})
}
