// Package loan implements the borrow/return/penalty lifecycle of a book.
// Every transition is applied through a conditional store update so two
// concurrent callers cannot both win the same precondition.
package loan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okhuang/libraria-be/internal/models"
	"github.com/okhuang/libraria-be/internal/payment"
	"github.com/okhuang/libraria-be/internal/storage"
)

// Business-rule violations surfaced by engine operations.
var (
	ErrAlreadyBorrowed    = errors.New("book already borrowed")
	ErrNotBorrowed        = errors.New("book is not borrowed")
	ErrNoPenalty          = errors.New("no penalty to pay")
	ErrPenaltyAlreadyPaid = errors.New("penalty already paid")
	ErrPaymentFailed      = errors.New("payment failed")
	ErrNotBorrower        = errors.New("only the borrower or an admin may perform this action")
	ErrUnknownDebtor      = errors.New("penalty debtor is unknown")
)

// Identity is the authenticated caller an operation acts on behalf of.
type Identity struct {
	UserID int64
	Email  string
	Role   string
}

// IsAdmin reports whether the caller holds the admin role.
func (id Identity) IsAdmin() bool {
	return id.Role == models.RoleAdmin
}

// Engine owns the loan-state transitions for books.
type Engine struct {
	store          storage.Store
	gateway        payment.Gateway
	penaltyRate    int64
	loanPeriod     time.Duration
	gatewayTimeout time.Duration
	now            func() time.Time
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithClock replaces the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine wires the engine to its store and gateway collaborators.
func NewEngine(store storage.Store, gateway payment.Gateway, penaltyRate int64, loanPeriod, gatewayTimeout time.Duration, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		gateway:        gateway,
		penaltyRate:    penaltyRate,
		loanPeriod:     loanPeriod,
		gatewayTimeout: gatewayTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Borrow opens a loan for the authenticated caller. The borrower identity is
// resolved from the store, never from client input. Penalty fields from a
// previous cycle are left untouched; paying is decoupled from borrowing.
func (e *Engine) Borrow(ctx context.Context, bookID int64, caller Identity) (models.Book, error) {
	user, err := e.store.GetUser(ctx, caller.UserID)
	if err != nil {
		return models.Book{}, fmt.Errorf("resolve borrower: %w", err)
	}

	now := e.now()
	book, err := e.store.BorrowBook(ctx, bookID, storage.BorrowUpdate{
		BorrowerID:    user.ID,
		BorrowerName:  user.Name,
		BorrowerEmail: user.Email,
		BorrowedDate:  now,
		DueDate:       now.Add(e.loanPeriod),
	})
	if errors.Is(err, storage.ErrConflict) {
		return models.Book{}, ErrAlreadyBorrowed
	}
	return book, err
}

// Return closes a loan, computing the overdue penalty at return time. Only
// the current borrower or an admin may return a book.
func (e *Engine) Return(ctx context.Context, bookID int64, caller Identity) (models.Book, error) {
	book, err := e.store.GetBook(ctx, bookID)
	if err != nil {
		return models.Book{}, err
	}
	if book.Available {
		return models.Book{}, ErrNotBorrowed
	}
	if !caller.IsAdmin() && (book.BorrowerID == nil || *book.BorrowerID != caller.UserID) {
		return models.Book{}, ErrNotBorrower
	}

	now := e.now()
	daysOverdue := 0
	if book.DueDate != nil {
		daysOverdue = OverdueDays(now, *book.DueDate)
	}
	upd := storage.ReturnUpdate{
		ReturnDate:    now,
		DaysOverdue:   daysOverdue,
		PenaltyAmount: int64(daysOverdue) * e.penaltyRate,
	}
	if upd.PenaltyAmount > 0 {
		upd.PenaltyUserID = book.BorrowerID
	}

	returned, err := e.store.ReturnBook(ctx, bookID, upd)
	if errors.Is(err, storage.ErrConflict) {
		return models.Book{}, ErrNotBorrowed
	}
	return returned, err
}

// PayPenalty settles an outstanding penalty through the gateway on behalf of
// the debtor. A declined or timed-out charge mutates nothing and is safe to
// retry.
func (e *Engine) PayPenalty(ctx context.Context, bookID int64, caller Identity, method, cardLastFour string) (models.Payment, models.Book, error) {
	book, err := e.penaltyBook(ctx, bookID)
	if err != nil {
		return models.Payment{}, models.Book{}, err
	}
	if !caller.IsAdmin() && !owesPenalty(book, caller.UserID) {
		return models.Payment{}, models.Book{}, ErrNotBorrower
	}

	chargeCtx, cancel := context.WithTimeout(ctx, e.gatewayTimeout)
	defer cancel()
	result, err := e.gateway.Charge(chargeCtx, payment.Request{
		Amount:       book.PenaltyAmount,
		Method:       method,
		CardLastFour: cardLastFour,
	})
	if err != nil {
		return models.Payment{}, models.Book{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	return e.settle(ctx, models.Payment{
		TransactionID: result.TransactionID,
		UserID:        caller.UserID,
		BookID:        book.ID,
		Amount:        book.PenaltyAmount,
		Method:        method,
		Status:        models.PaymentCompleted,
		Gateway:       result.Gateway,
		CardLastFour:  cardLastFour,
	})
}

// MarkPenaltyPaid is the admin manual settlement: no gateway round-trip, the
// debtor is charged on paper and the recording admin is kept on the ledger row.
func (e *Engine) MarkPenaltyPaid(ctx context.Context, bookID int64, admin Identity, method string) (models.Payment, models.Book, error) {
	book, err := e.penaltyBook(ctx, bookID)
	if err != nil {
		return models.Payment{}, models.Book{}, err
	}

	debtor := book.PenaltyUserID
	if debtor == nil {
		debtor = book.BorrowerID
	}
	if debtor == nil {
		return models.Payment{}, models.Book{}, ErrUnknownDebtor
	}

	adminID := admin.UserID
	return e.settle(ctx, models.Payment{
		TransactionID: payment.NewTransactionID(),
		UserID:        *debtor,
		BookID:        book.ID,
		Amount:        book.PenaltyAmount,
		Method:        method,
		Status:        models.PaymentCompleted,
		Gateway:       "manual",
		RecordedBy:    &adminID,
	})
}

func (e *Engine) penaltyBook(ctx context.Context, bookID int64) (models.Book, error) {
	book, err := e.store.GetBook(ctx, bookID)
	if err != nil {
		return models.Book{}, err
	}
	if book.PenaltyAmount <= 0 {
		return models.Book{}, ErrNoPenalty
	}
	if book.PenaltyPaid {
		return models.Book{}, ErrPenaltyAlreadyPaid
	}
	return book, nil
}

func (e *Engine) settle(ctx context.Context, p models.Payment) (models.Payment, models.Book, error) {
	saved, book, err := e.store.SettlePenalty(ctx, p)
	if errors.Is(err, storage.ErrConflict) {
		return models.Payment{}, models.Book{}, ErrPenaltyAlreadyPaid
	}
	return saved, book, err
}

// owesPenalty reports whether userID is the debtor of the book's current
// penalty, either as the recorded debtor of a closed loan or as the holder of
// the open one.
func owesPenalty(book models.Book, userID int64) bool {
	if book.PenaltyUserID != nil && *book.PenaltyUserID == userID {
		return true
	}
	return book.BorrowerID != nil && *book.BorrowerID == userID
}

// OverdueDays counts whole late days between the due date and the return,
// rounding any partial day up. On-time or early returns count zero.
func OverdueDays(returnedAt, due time.Time) int {
	if !returnedAt.After(due) {
		return 0
	}
	return int(math.Ceil(returnedAt.Sub(due).Hours() / 24))
}
