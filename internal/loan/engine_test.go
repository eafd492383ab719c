package loan_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okhuang/libraria-be/internal/loan"
	"github.com/okhuang/libraria-be/internal/models"
	"github.com/okhuang/libraria-be/internal/payment"
	"github.com/okhuang/libraria-be/internal/storage"
	"github.com/okhuang/libraria-be/internal/storage/memory"
)

// stubGateway approves or declines every charge without any delay.
type stubGateway struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (g *stubGateway) Charge(_ context.Context, _ payment.Request) (payment.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return payment.Result{}, g.err
	}
	return payment.Result{
		TransactionID: payment.NewTransactionID(),
		Gateway:       "stub",
	}, nil
}

func (g *stubGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

const (
	penaltyRate = 5
	loanPeriod  = 14 * 24 * time.Hour
)

func newTestEngine(gw *stubGateway, now time.Time) (*loan.Engine, *memory.Store) {
	store := memory.NewStore()
	engine := loan.NewEngine(store, gw, penaltyRate, loanPeriod, time.Second,
		loan.WithClock(func() time.Time { return now }))
	return engine, store
}

func seedUser(t *testing.T, store *memory.Store, name, email, role string) models.User {
	t.Helper()
	user, err := store.CreateUser(context.Background(), models.User{
		Name:         name,
		Email:        email,
		PasswordHash: "x",
		Role:         role,
		IsActive:     true,
	})
	require.NoError(t, err)
	return user
}

func seedBook(t *testing.T, store *memory.Store, title string) models.Book {
	t.Helper()
	book, err := store.CreateBook(context.Background(), models.Book{Title: title, Author: "Author"})
	require.NoError(t, err)
	return book
}

func identity(u models.User) loan.Identity {
	return loan.Identity{UserID: u.ID, Email: u.Email, Role: u.Role}
}

// openLoan puts a book directly into the borrowed state with the given due date.
func openLoan(t *testing.T, store *memory.Store, bookID int64, borrower models.User, borrowedAt, due time.Time) {
	t.Helper()
	_, err := store.BorrowBook(context.Background(), bookID, storage.BorrowUpdate{
		BorrowerID:    borrower.ID,
		BorrowerName:  borrower.Name,
		BorrowerEmail: borrower.Email,
		BorrowedDate:  borrowedAt,
		DueDate:       due,
	})
	require.NoError(t, err)
}

func TestBorrowOpensLoan(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine, store := newTestEngine(&stubGateway{}, now)
	reader := seedUser(t, store, "Reader", "reader@example.com", models.RoleUser)
	book := seedBook(t, store, "Dune")

	borrowed, err := engine.Borrow(context.Background(), book.ID, identity(reader))
	require.NoError(t, err)

	assert.False(t, borrowed.Available)
	assert.Equal(t, models.BookStatusBorrowed, borrowed.Status)
	require.NotNil(t, borrowed.BorrowerID)
	assert.Equal(t, reader.ID, *borrowed.BorrowerID)
	assert.Equal(t, reader.Name, borrowed.Borrower)
	assert.Equal(t, reader.Email, borrowed.BorrowerEmail)
	require.NotNil(t, borrowed.DueDate)
	assert.Equal(t, now.Add(loanPeriod), *borrowed.DueDate)
}

func TestBorrowUnknownBook(t *testing.T) {
	engine, store := newTestEngine(&stubGateway{}, time.Now())
	reader := seedUser(t, store, "Reader", "reader@example.com", models.RoleUser)

	_, err := engine.Borrow(context.Background(), 999, identity(reader))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBorrowAlreadyBorrowed(t *testing.T) {
	engine, store := newTestEngine(&stubGateway{}, time.Now())
	first := seedUser(t, store, "First", "first@example.com", models.RoleUser)
	second := seedUser(t, store, "Second", "second@example.com", models.RoleUser)
	book := seedBook(t, store, "Dune")

	_, err := engine.Borrow(context.Background(), book.ID, identity(first))
	require.NoError(t, err)

	_, err = engine.Borrow(context.Background(), book.ID, identity(second))
	assert.ErrorIs(t, err, loan.ErrAlreadyBorrowed)
}

// Two simultaneous borrows of one available copy: exactly one caller wins.
func TestBorrowConcurrentSingleWinner(t *testing.T) {
	engine, store := newTestEngine(&stubGateway{}, time.Now())
	alice := seedUser(t, store, "Alice", "alice@example.com", models.RoleUser)
	bob := seedUser(t, store, "Bob", "bob@example.com", models.RoleUser)
	book := seedBook(t, store, "Dune")

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, caller := range []loan.Identity{identity(alice), identity(bob)} {
		wg.Add(1)
		go func(caller loan.Identity) {
			defer wg.Done()
			_, err := engine.Borrow(context.Background(), book.ID, caller)
			errs <- err
		}(caller)
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		default:
			assert.ErrorIs(t, err, loan.ErrAlreadyBorrowed)
			conflicts++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	got, err := store.GetBook(context.Background(), book.ID)
	require.NoError(t, err)
	assert.False(t, got.Available)
	require.NotNil(t, got.BorrowerID)
}

func TestReturnOnTimeNoPenalty(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine, store := newTestEngine(&stubGateway{}, now)
	reader := seedUser(t, store, "Reader", "reader@example.com", models.RoleUser)
	book := seedBook(t, store, "Dune")
	openLoan(t, store, book.ID, reader, now.Add(-7*24*time.Hour), now.Add(7*24*time.Hour))

	returned, err := engine.Return(context.Background(), book.ID, identity(reader))
	require.NoError(t, err)

	assert.True(t, returned.Available)
	assert.Equal(t, models.BookStatusReturned, returned.Status)
	assert.Zero(t, returned.DaysOverdue)
	assert.Zero(t, returned.PenaltyAmount)
	assert.Nil(t, returned.PenaltyUserID)
	assert.Nil(t, returned.BorrowerID)
}

// The penalty grows by the daily rate per whole or partial day past due.
func TestReturnPenaltyAccrual(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name        string
		lateBy      time.Duration
		wantDays    int
		wantPenalty int64
	}{
		{"one hour late", time.Hour, 1, 5},
		{"one day late", 24 * time.Hour, 1, 5},
		{"one day and change", 25 * time.Hour, 2, 10},
		{"three days late", 3 * 24 * time.Hour, 3, 15},
		{"ten days late", 10 * 24 * time.Hour, 10, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, store := newTestEngine(&stubGateway{}, now)
			reader := seedUser(t, store, "Reader", "reader@example.com", models.RoleUser)
			book := seedBook(t, store, "Dune")
			due := now.Add(-tc.lateBy)
			openLoan(t, store, book.ID, reader, due.Add(-14*24*time.Hour), due)

			returned, err := engine.Return(context.Background(), book.ID, identity(reader))
			require.NoError(t, err)

			assert.Equal(t, tc.wantDays, returned.DaysOverdue)
			assert.Equal(t, tc.wantPenalty, returned.PenaltyAmount)
			assert.False(t, returned.PenaltyPaid)
			require.NotNil(t, returned.PenaltyUserID)
			assert.Equal(t, reader.ID, *returned.PenaltyUserID)
		})
	}
}

func TestReturnByStrangerForbidden(t *testing.T) {
	now := time.Now()
	engine, store := newTestEngine(&stubGateway{}, now)
	reader := seedUser(t, store, "Reader", "reader@example.com", models.RoleUser)
	stranger := seedUser(t, store, "Stranger", "stranger@example.com", models.RoleUser)
	book := seedBook(t, store, "Dune")
	openLoan(t, store, book.ID, reader, now, now.Add(loanPeriod))

	_, err := engine.Return(context.Background(), book.ID, identity(stranger))
	assert.ErrorIs(t, err, loan.ErrNotBorrower)
}

func TestReturnByAdminAllowed(t *testing.T) {
	now := time.Now()
	engine, store := newTestEngine(&stubGateway{}, now)
	reader := seedUser(t, store, "Reader", "reader@example.com", models.RoleUser)
	admin := seedUser(t, store, "Admin", "admin@example.com", models.RoleAdmin)
	book := seedBook(t, store, "Dune")
	openLoan(t, store, book.ID, reader, now, now.Add(loanPeriod))

	returned, err := engine.Return(context.Background(), book.ID, identity(admin))
	require.NoError(t, err)
	assert.True(t, returned.Available)
}

func TestReturnNotBorrowed(t *testing.T) {
	engine, store := newTestEngine(&stubGateway{}, time.Now())
	reader := seedUser(t, store, "Reader", "reader@example.com", models.RoleUser)
	book := seedBook(t, store, "Dune")

	_, err := engine.Return(context.Background(), book.ID, identity(reader))
	assert.ErrorIs(t, err, loan.ErrNotBorrowed)
}

// A returned book can be borrowed again even while its previous penalty is
// still unpaid; the debt stays pinned to the previous borrower.
func TestReborrowWithOutstandingPenalty(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine, store := newTestEngine(&stubGateway{}, now)
	debtor := seedUser(t, store, "Debtor", "debtor@example.com", models.RoleUser)
	next := seedUser(t, store, "Next", "next@example.com", models.RoleUser)
	book := seedBook(t, store, "Dune")
	openLoan(t, store, book.ID, debtor, now.Add(-20*24*time.Hour), now.Add(-10*24*time.Hour))

	returned, err := engine.Return(context.Background(), book.ID, identity(debtor))
	require.NoError(t, err)
	require.Equal(t, int64(50), returned.PenaltyAmount)

	borrowed, err := engine.Borrow(context.Background(), book.ID, identity(next))
	require.NoError(t, err)
	require.NotNil(t, borrowed.BorrowerID)
	assert.Equal(t, next.ID, *borrowed.BorrowerID)

	// The old debt is untouched and still attributed to the previous borrower.
	assert.Equal(t, int64(50), borrowed.PenaltyAmount)
	assert.False(t, borrowed.PenaltyPaid)
	require.NotNil(t, borrowed.PenaltyUserID)
	assert.Equal(t, debtor.ID, *borrowed.PenaltyUserID)
}

// Full ten-days-overdue lifecycle: return accrues 50, paying flips the flag,
// writes one ledger row, and credits the payer's running total.
func TestOverdueReturnAndPayment(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gw := &stubGateway{}
	engine, store := newTestEngine(gw, now)
	reader := seedUser(t, store, "Reader", "reader@example.com", models.RoleUser)
	book := seedBook(t, store, "Dune")
	openLoan(t, store, book.ID, reader, now.Add(-24*24*time.Hour), now.Add(-10*24*time.Hour))

	returned, err := engine.Return(context.Background(), book.ID, identity(reader))
	require.NoError(t, err)
	assert.Equal(t, 10, returned.DaysOverdue)
	assert.Equal(t, int64(50), returned.PenaltyAmount)
	assert.False(t, returned.PenaltyPaid)
	assert.True(t, returned.Available)

	paid, settled, err := engine.PayPenalty(context.Background(), book.ID, identity(reader), models.MethodCash, "")
	require.NoError(t, err)

	assert.Equal(t, int64(50), paid.Amount)
	assert.Equal(t, models.PaymentCompleted, paid.Status)
	assert.NotEmpty(t, paid.TransactionID)
	assert.True(t, settled.PenaltyPaid)
	assert.Equal(t, 1, gw.callCount())

	ledger, err := store.ListPaymentsByUser(context.Background(), reader.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, int64(50), ledger[0].Amount)
	assert.Equal(t, book.ID, ledger[0].BookID)

	payer, err := store.GetUser(context.Background(), reader.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), payer.TotalFinesPaid)
}

func TestPayPenaltyWithoutPenalty(t *testing.T) {
	engine, store := newTestEngine(&stubGateway{}, time.Now())
	reader := seedUser(t, store, "Reader", "reader@example.com", models.RoleUser)
	book := seedBook(t, store, "Dune")

	_, _, err := engine.PayPenalty(context.Background(), book.ID, identity(reader), models.MethodCash, "")
	assert.ErrorIs(t, err, loan.ErrNoPenalty)
}

func TestPayPenaltyTwice(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine, store := newTestEngine(&stubGateway{}, now)
	reader := seedUser(t, store, "Reader", "reader@example.com", models.RoleUser)
	book := seedBook(t, store, "Dune")
	openLoan(t, store, book.ID, reader, now.Add(-20*24*time.Hour), now.Add(-2*24*time.Hour))

	_, err := engine.Return(context.Background(), book.ID, identity(reader))
	require.NoError(t, err)
	_, _, err = engine.PayPenalty(context.Background(), book.ID, identity(reader), models.MethodCash, "")
	require.NoError(t, err)

	_, _, err = engine.PayPenalty(context.Background(), book.ID, identity(reader), models.MethodCash, "")
	assert.ErrorIs(t, err, loan.ErrPenaltyAlreadyPaid)

	ledger, err := store.ListPaymentsByUser(context.Background(), reader.ID)
	require.NoError(t, err)
	assert.Len(t, ledger, 1)
}

func TestPayPenaltyByStrangerForbidden(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine, store := newTestEngine(&stubGateway{}, now)
	debtor := seedUser(t, store, "Debtor", "debtor@example.com", models.RoleUser)
	stranger := seedUser(t, store, "Stranger", "stranger@example.com", models.RoleUser)
	book := seedBook(t, store, "Dune")
	openLoan(t, store, book.ID, debtor, now.Add(-20*24*time.Hour), now.Add(-2*24*time.Hour))
	_, err := engine.Return(context.Background(), book.ID, identity(debtor))
	require.NoError(t, err)

	_, _, err = engine.PayPenalty(context.Background(), book.ID, identity(stranger), models.MethodCash, "")
	assert.ErrorIs(t, err, loan.ErrNotBorrower)
}

// A declined charge mutates nothing; the same penalty is payable on retry.
func TestPayPenaltyDeclinedThenRetried(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gw := &stubGateway{err: payment.ErrDeclined}
	engine, store := newTestEngine(gw, now)
	reader := seedUser(t, store, "Reader", "reader@example.com", models.RoleUser)
	book := seedBook(t, store, "Dune")
	openLoan(t, store, book.ID, reader, now.Add(-20*24*time.Hour), now.Add(-2*24*time.Hour))
	_, err := engine.Return(context.Background(), book.ID, identity(reader))
	require.NoError(t, err)

	_, _, err = engine.PayPenalty(context.Background(), book.ID, identity(reader), models.MethodCreditCard, "4242")
	assert.ErrorIs(t, err, loan.ErrPaymentFailed)

	got, err := store.GetBook(context.Background(), book.ID)
	require.NoError(t, err)
	assert.False(t, got.PenaltyPaid)
	ledger, err := store.ListPaymentsByUser(context.Background(), reader.ID)
	require.NoError(t, err)
	assert.Empty(t, ledger)

	gw.mu.Lock()
	gw.err = nil
	gw.mu.Unlock()

	_, settled, err := engine.PayPenalty(context.Background(), book.ID, identity(reader), models.MethodCreditCard, "4242")
	require.NoError(t, err)
	assert.True(t, settled.PenaltyPaid)
	assert.Equal(t, 2, gw.callCount())
}

// Manual settlement skips the gateway, charges the recorded debtor, and keeps
// the recording admin on the ledger row.
func TestMarkPenaltyPaid(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gw := &stubGateway{}
	engine, store := newTestEngine(gw, now)
	debtor := seedUser(t, store, "Debtor", "debtor@example.com", models.RoleUser)
	admin := seedUser(t, store, "Admin", "admin@example.com", models.RoleAdmin)
	book := seedBook(t, store, "Dune")
	openLoan(t, store, book.ID, debtor, now.Add(-20*24*time.Hour), now.Add(-4*24*time.Hour))
	_, err := engine.Return(context.Background(), book.ID, identity(debtor))
	require.NoError(t, err)

	paid, settled, err := engine.MarkPenaltyPaid(context.Background(), book.ID, identity(admin), models.MethodCash)
	require.NoError(t, err)

	assert.Zero(t, gw.callCount())
	assert.Equal(t, debtor.ID, paid.UserID)
	assert.Equal(t, "manual", paid.Gateway)
	require.NotNil(t, paid.RecordedBy)
	assert.Equal(t, admin.ID, *paid.RecordedBy)
	assert.True(t, settled.PenaltyPaid)

	charged, err := store.GetUser(context.Background(), debtor.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), charged.TotalFinesPaid)
}

func TestOverdueDays(t *testing.T) {
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name       string
		returnedAt time.Time
		want       int
	}{
		{"early", due.Add(-48 * time.Hour), 0},
		{"exactly on time", due, 0},
		{"minutes late", due.Add(10 * time.Minute), 1},
		{"one day late", due.Add(24 * time.Hour), 1},
		{"a day and an hour", due.Add(25 * time.Hour), 2},
		{"a week late", due.Add(7 * 24 * time.Hour), 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, loan.OverdueDays(tc.returnedAt, due))
		})
	}
}
