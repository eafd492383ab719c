// Package memory provides a mutex-guarded in-process implementation of
// storage.Store with the same conditional-update semantics as the Postgres
// store. It backs the unit tests and needs no external services.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okhuang/libraria-be/internal/models"
	"github.com/okhuang/libraria-be/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store keeps all records in maps guarded by one mutex.
type Store struct {
	mu            sync.Mutex
	users         map[int64]models.User
	books         map[int64]models.Book
	payments      []models.Payment
	nextUserID    int64
	nextBookID    int64
	nextPaymentID int64
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		users: make(map[int64]models.User),
		books: make(map[int64]models.Book),
	}
}

// Close is a no-op; it satisfies storage.Store.
func (s *Store) Close() {}

// CreateUser inserts a new account, enforcing email uniqueness.
func (s *Store) CreateUser(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == user.Email {
			return models.User{}, storage.ErrAlreadyExists
		}
	}

	s.nextUserID++
	user.ID = s.nextUserID
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = user
	return cloneUser(user), nil
}

// GetUser fetches an account by id.
func (s *Store) GetUser(_ context.Context, id int64) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return cloneUser(user), nil
}

// FindByEmail fetches an account by email address.
func (s *Store) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if user.Email == email {
			return cloneUser(user), nil
		}
	}
	return models.User{}, storage.ErrNotFound
}

// ListUsers returns accounts matching the filter, newest first.
func (s *Store) ListUsers(_ context.Context, filter storage.UserFilter) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []models.User
	for _, user := range s.users {
		if filter.Search != "" &&
			!containsFold(user.Name, filter.Search) &&
			!containsFold(user.Email, filter.Search) {
			continue
		}
		if filter.Role != "" && filter.Role != "all" && user.Role != filter.Role {
			continue
		}
		if filter.Status == "active" && !user.IsActive {
			continue
		}
		if filter.Status == "inactive" && user.IsActive {
			continue
		}
		users = append(users, cloneUser(user))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID > users[j].ID })
	return users, nil
}

// UpdateUser applies the non-nil fields and returns the updated account.
func (s *Store) UpdateUser(_ context.Context, id int64, upd storage.UserUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	if upd.Email != nil && *upd.Email != user.Email {
		for _, existing := range s.users {
			if existing.Email == *upd.Email {
				return models.User{}, storage.ErrAlreadyExists
			}
		}
		user.Email = *upd.Email
	}
	if upd.Name != nil {
		user.Name = *upd.Name
	}
	if upd.Role != nil {
		user.Role = *upd.Role
	}
	if upd.IsActive != nil {
		user.IsActive = *upd.IsActive
	}
	if upd.Notes != nil {
		user.Notes = *upd.Notes
	}
	user.UpdatedAt = time.Now()
	s.users[id] = user
	return cloneUser(user), nil
}

// UpdatePassword replaces the stored password hash.
func (s *Store) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now()
	s.users[id] = user
	return nil
}

// DeleteUser removes an account.
func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// RecordLogin bumps the login counter and timestamp.
func (s *Store) RecordLogin(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	now := time.Now()
	user.LastLogin = &now
	user.LoginCount++
	user.UpdatedAt = now
	s.users[id] = user
	return nil
}

// UserStats aggregates account counts.
func (s *Store) UserStats(_ context.Context) (models.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats models.UserStats
	cutoff := time.Now().AddDate(0, 0, -30)
	for _, user := range s.users {
		stats.TotalUsers++
		if user.IsActive {
			stats.ActiveUsers++
		}
		if user.Role == models.RoleAdmin {
			stats.AdminUsers++
		} else {
			stats.RegularUsers++
		}
		if user.CreatedAt.After(cutoff) {
			stats.RecentRegistrations++
		}
	}
	debtors := make(map[int64]struct{})
	for _, book := range s.books {
		if book.HasUnpaidPenalty() && book.PenaltyUserID != nil {
			debtors[*book.PenaltyUserID] = struct{}{}
		}
	}
	stats.UsersWithPenalties = len(debtors)
	stats.InactiveUsers = stats.TotalUsers - stats.ActiveUsers
	return stats, nil
}

// CreateBook inserts a catalog entry, enforcing ISBN uniqueness when present.
func (s *Store) CreateBook(_ context.Context, book models.Book) (models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if book.ISBN != "" {
		for _, existing := range s.books {
			if existing.ISBN == book.ISBN {
				return models.Book{}, storage.ErrAlreadyExists
			}
		}
	}

	s.nextBookID++
	book.ID = s.nextBookID
	book.Available = true
	book.Status = models.BookStatusAvailable
	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now
	s.books[book.ID] = book
	return cloneBook(book), nil
}

// GetBook fetches a book by id.
func (s *Store) GetBook(_ context.Context, id int64) (models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[id]
	if !ok {
		return models.Book{}, storage.ErrNotFound
	}
	return cloneBook(book), nil
}

// UpdateBook applies the non-nil catalog fields.
func (s *Store) UpdateBook(_ context.Context, id int64, upd storage.BookUpdate) (models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[id]
	if !ok {
		return models.Book{}, storage.ErrNotFound
	}
	if upd.ISBN != nil && *upd.ISBN != "" && *upd.ISBN != book.ISBN {
		for _, existing := range s.books {
			if existing.ISBN == *upd.ISBN {
				return models.Book{}, storage.ErrAlreadyExists
			}
		}
	}
	if upd.Title != nil {
		book.Title = *upd.Title
	}
	if upd.Author != nil {
		book.Author = *upd.Author
	}
	if upd.ISBN != nil {
		book.ISBN = *upd.ISBN
	}
	if upd.PublishedYear != nil {
		book.PublishedYear = *upd.PublishedYear
	}
	if upd.Genre != nil {
		book.Genre = *upd.Genre
	}
	book.UpdatedAt = time.Now()
	s.books[id] = book
	return cloneBook(book), nil
}

// DeleteBook removes a catalog entry.
func (s *Store) DeleteBook(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.books[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.books, id)
	return nil
}

// ListBooks returns catalog entries matching the filter, newest first.
func (s *Store) ListBooks(_ context.Context, filter storage.BookFilter) ([]models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var books []models.Book
	for _, book := range s.books {
		if filter.Status != "" && filter.Status != "all" && book.Status != filter.Status {
			continue
		}
		if filter.Search != "" &&
			!containsFold(book.Title, filter.Search) &&
			!containsFold(book.Author, filter.Search) &&
			!containsFold(book.Genre, filter.Search) {
			continue
		}
		books = append(books, cloneBook(book))
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID > books[j].ID })
	return books, nil
}

// BorrowBook opens a loan, conditional on the book still being available.
func (s *Store) BorrowBook(_ context.Context, id int64, upd storage.BorrowUpdate) (models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[id]
	if !ok {
		return models.Book{}, storage.ErrNotFound
	}
	if !book.Available {
		return models.Book{}, storage.ErrConflict
	}

	borrowerID := upd.BorrowerID
	borrowed := upd.BorrowedDate
	due := upd.DueDate
	book.Available = false
	book.Status = models.BookStatusBorrowed
	book.BorrowerID = &borrowerID
	book.Borrower = upd.BorrowerName
	book.BorrowerEmail = upd.BorrowerEmail
	book.BorrowedDate = &borrowed
	book.DueDate = &due
	book.ReturnDate = nil
	book.UpdatedAt = time.Now()
	s.books[id] = book
	return cloneBook(book), nil
}

// ReturnBook closes a loan, conditional on the book still being borrowed.
func (s *Store) ReturnBook(_ context.Context, id int64, upd storage.ReturnUpdate) (models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[id]
	if !ok {
		return models.Book{}, storage.ErrNotFound
	}
	if book.Available {
		return models.Book{}, storage.ErrConflict
	}

	returned := upd.ReturnDate
	book.Available = true
	book.Status = models.BookStatusReturned
	book.BorrowerID = nil
	book.Borrower = ""
	book.BorrowerEmail = ""
	book.BorrowedDate = nil
	book.DueDate = nil
	book.ReturnDate = &returned
	book.DaysOverdue = upd.DaysOverdue
	book.PenaltyAmount = upd.PenaltyAmount
	book.PenaltyPaid = false
	book.PenaltyUserID = clonePtr(upd.PenaltyUserID)
	book.UpdatedAt = time.Now()
	s.books[id] = book
	return cloneBook(book), nil
}

// ListBorrowedBy returns a user's open loans.
func (s *Store) ListBorrowedBy(_ context.Context, userID int64) ([]models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var books []models.Book
	for _, book := range s.books {
		if !book.Available && book.BorrowerID != nil && *book.BorrowerID == userID {
			books = append(books, cloneBook(book))
		}
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID > books[j].ID })
	return books, nil
}

// CountBorrowedBy counts a user's open loans.
func (s *Store) CountBorrowedBy(_ context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, book := range s.books {
		if !book.Available && book.BorrowerID != nil && *book.BorrowerID == userID {
			count++
		}
	}
	return count, nil
}

// ListUnpaidPenalties returns books with an outstanding penalty.
func (s *Store) ListUnpaidPenalties(_ context.Context, userID *int64) ([]models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var books []models.Book
	for _, book := range s.books {
		if !book.HasUnpaidPenalty() {
			continue
		}
		if userID != nil && (book.PenaltyUserID == nil || *book.PenaltyUserID != *userID) {
			continue
		}
		books = append(books, cloneBook(book))
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID > books[j].ID })
	return books, nil
}

// LibraryStats aggregates catalog and penalty counts.
func (s *Store) LibraryStats(_ context.Context) (models.LibraryStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats models.LibraryStats
	now := time.Now()
	for _, book := range s.books {
		stats.TotalBooks++
		if book.Available {
			stats.AvailableBooks++
		} else {
			stats.BorrowedBooks++
			if book.DueDate != nil && book.DueDate.Before(now) {
				stats.OverdueBooks++
			}
		}
		if book.HasUnpaidPenalty() {
			stats.TotalUnpaidPenalties += book.PenaltyAmount
		}
		if book.PenaltyPaid {
			stats.TotalPaidPenalties += book.PenaltyAmount
		}
	}
	return stats, nil
}

// SettlePenalty records a payment and flips the penalty flag as one unit,
// conditional on the penalty still being unpaid and the amount matching.
func (s *Store) SettlePenalty(_ context.Context, payment models.Payment) (models.Payment, models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[payment.BookID]
	if !ok {
		return models.Payment{}, models.Book{}, storage.ErrNotFound
	}
	if !book.HasUnpaidPenalty() || book.PenaltyAmount != payment.Amount {
		return models.Payment{}, models.Book{}, storage.ErrConflict
	}

	s.nextPaymentID++
	payment.ID = s.nextPaymentID
	payment.CreatedAt = time.Now()
	payment.BookTitle = book.Title
	payment.BookAuthor = book.Author
	s.payments = append(s.payments, payment)

	book.PenaltyPaid = true
	book.UpdatedAt = payment.CreatedAt
	s.books[book.ID] = book

	if user, ok := s.users[payment.UserID]; ok {
		user.TotalFinesPaid += payment.Amount
		user.UpdatedAt = payment.CreatedAt
		s.users[payment.UserID] = user
	}
	return payment, cloneBook(book), nil
}

// ListPaymentsByUser returns a payer's ledger entries, newest first.
func (s *Store) ListPaymentsByUser(_ context.Context, userID int64) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payments []models.Payment
	for _, p := range s.payments {
		if p.UserID == userID {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].ID > payments[j].ID })
	return payments, nil
}

func cloneUser(u models.User) models.User {
	u.LastLogin = clonePtr(u.LastLogin)
	return u
}

func cloneBook(b models.Book) models.Book {
	b.BorrowerID = clonePtr(b.BorrowerID)
	b.PenaltyUserID = clonePtr(b.PenaltyUserID)
	b.BorrowedDate = clonePtr(b.BorrowedDate)
	b.DueDate = clonePtr(b.DueDate)
	b.ReturnDate = clonePtr(b.ReturnDate)
	return b
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
