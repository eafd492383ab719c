package storage

import (
	"context"
	"errors"
	"time"

	"github.com/okhuang/libraria-be/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// ErrConflict indicates a conditional update matched zero rows because the
// precondition no longer held (book no longer available, penalty already paid).
var ErrConflict = errors.New("conflicting update")

// UserFilter narrows admin user listings.
type UserFilter struct {
	Search string // substring of name or email, case-insensitive
	Role   string // "user" | "admin" | "" | "all"
	Status string // "active" | "inactive" | "" | "all"
}

// BookFilter narrows catalog listings.
type BookFilter struct {
	Search string // substring of title, author, or genre, case-insensitive
	Status string // "available" | "borrowed" | "returned" | "" | "all"
}

// UserUpdate carries admin-editable account fields; nil leaves a field unchanged.
type UserUpdate struct {
	Name     *string
	Email    *string
	Role     *string
	IsActive *bool
	Notes    *string
}

// BookUpdate carries admin-editable catalog fields; nil leaves a field unchanged.
type BookUpdate struct {
	Title         *string
	Author        *string
	ISBN          *string
	PublishedYear *int
	Genre         *string
}

// BorrowUpdate is applied atomically, conditional on the book being available.
type BorrowUpdate struct {
	BorrowerID    int64
	BorrowerName  string
	BorrowerEmail string
	BorrowedDate  time.Time
	DueDate       time.Time
}

// ReturnUpdate is applied atomically, conditional on the book being borrowed.
// PenaltyUserID is nil when the return accrued no penalty.
type ReturnUpdate struct {
	ReturnDate    time.Time
	DaysOverdue   int
	PenaltyAmount int64
	PenaltyUserID *int64
}

// UserStore captures identity persistence operations.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUser(ctx context.Context, id int64) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]models.User, error)
	UpdateUser(ctx context.Context, id int64, upd UserUpdate) (models.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	DeleteUser(ctx context.Context, id int64) error
	RecordLogin(ctx context.Context, id int64) error
	UserStats(ctx context.Context) (models.UserStats, error)
}

// BookStore captures catalog and loan-state persistence. BorrowBook and
// ReturnBook are compare-and-swap updates keyed on the availability flag and
// return ErrConflict when the precondition no longer holds.
type BookStore interface {
	CreateBook(ctx context.Context, book models.Book) (models.Book, error)
	GetBook(ctx context.Context, id int64) (models.Book, error)
	UpdateBook(ctx context.Context, id int64, upd BookUpdate) (models.Book, error)
	DeleteBook(ctx context.Context, id int64) error
	ListBooks(ctx context.Context, filter BookFilter) ([]models.Book, error)
	BorrowBook(ctx context.Context, id int64, upd BorrowUpdate) (models.Book, error)
	ReturnBook(ctx context.Context, id int64, upd ReturnUpdate) (models.Book, error)
	ListBorrowedBy(ctx context.Context, userID int64) ([]models.Book, error)
	CountBorrowedBy(ctx context.Context, userID int64) (int, error)
	// ListUnpaidPenalties returns books carrying an unpaid penalty; a nil
	// userID lists them globally, otherwise only those owed by that user.
	ListUnpaidPenalties(ctx context.Context, userID *int64) ([]models.Book, error)
	LibraryStats(ctx context.Context) (models.LibraryStats, error)
}

// PaymentStore owns the append-only settlement ledger. SettlePenalty writes
// the ledger row, flips the book's penalty-paid flag conditionally, and
// increments the payer's fine total as one unit, returning ErrConflict if the
// penalty was already settled.
type PaymentStore interface {
	SettlePenalty(ctx context.Context, payment models.Payment) (models.Payment, models.Book, error)
	ListPaymentsByUser(ctx context.Context, userID int64) ([]models.Payment, error)
}

// Store aggregates all persistence concerns behind one handle.
type Store interface {
	UserStore
	BookStore
	PaymentStore
	Close()
}
