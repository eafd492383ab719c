package models

import "time"

// Catalog status values stored on a book record.
const (
	BookStatusAvailable = "available"
	BookStatusBorrowed  = "borrowed"
	BookStatusReturned  = "returned"
)

// Book is both the catalog entry and the current loan state of a single copy.
// Penalty fields describe the most recently closed loan and stay on the record
// until the penalty is settled, even after the book becomes available again.
type Book struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Author        string     `json:"author"`
	ISBN          string     `json:"isbn,omitempty"`
	PublishedYear int        `json:"publishedYear,omitempty"`
	Genre         string     `json:"genre,omitempty"`
	Available     bool       `json:"available"`
	Status        string     `json:"status"`
	BorrowerID    *int64     `json:"borrowerId,omitempty"`
	Borrower      string     `json:"borrower,omitempty"`
	BorrowerEmail string     `json:"borrowerEmail,omitempty"`
	BorrowedDate  *time.Time `json:"borrowedDate,omitempty"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
	ReturnDate    *time.Time `json:"returnDate,omitempty"`
	DaysOverdue   int        `json:"daysOverdue"`
	PenaltyAmount int64      `json:"penaltyAmount"`
	PenaltyPaid   bool       `json:"penaltyPaid"`
	PenaltyUserID *int64     `json:"penaltyUserId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// HasUnpaidPenalty reports whether the book carries an outstanding penalty.
func (b Book) HasUnpaidPenalty() bool {
	return b.PenaltyAmount > 0 && !b.PenaltyPaid
}

// LibraryStats aggregates catalog and penalty counts.
type LibraryStats struct {
	TotalBooks           int   `json:"totalBooks"`
	AvailableBooks       int   `json:"availableBooks"`
	BorrowedBooks        int   `json:"borrowedBooks"`
	OverdueBooks         int   `json:"overdueBooks"`
	TotalUnpaidPenalties int64 `json:"totalUnpaidPenalties"`
	TotalPaidPenalties   int64 `json:"totalPaidPenalties"`
}
