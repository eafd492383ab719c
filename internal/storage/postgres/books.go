package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"github.com/okhuang/libraria-be/internal/models"
	"github.com/okhuang/libraria-be/internal/storage"
)

const bookColumns = `id, title, author, COALESCE(isbn, ''), published_year, genre, available, status, borrower_id, borrower_name, borrower_email, borrowed_date, due_date, return_date, days_overdue, penalty_amount, penalty_paid, penalty_user_id, created_at, updated_at`

// CreateBook inserts a catalog entry. An empty ISBN is stored as NULL so the
// partial unique index only applies when an ISBN is present.
func (s *Store) CreateBook(ctx context.Context, book models.Book) (models.Book, error) {
	const query = `
	INSERT INTO books (title, author, isbn, published_year, genre)
	VALUES ($1, $2, NULLIF($3, ''), $4, $5)
	RETURNING ` + bookColumns

	row := s.pool.QueryRow(ctx, query,
		book.Title, book.Author, book.ISBN, book.PublishedYear, book.Genre)
	created, err := scanBook(row)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Book{}, storage.ErrAlreadyExists
		}
		return models.Book{}, err
	}
	return created, nil
}

// GetBook fetches a book by id.
func (s *Store) GetBook(ctx context.Context, id int64) (models.Book, error) {
	const query = `SELECT ` + bookColumns + ` FROM books WHERE id = $1`
	return scanBook(s.pool.QueryRow(ctx, query, id))
}

// UpdateBook applies the non-nil catalog fields and returns the updated book.
func (s *Store) UpdateBook(ctx context.Context, id int64, upd storage.BookUpdate) (models.Book, error) {
	record := goqu.Record{"updated_at": goqu.L("NOW()")}
	if upd.Title != nil {
		record["title"] = *upd.Title
	}
	if upd.Author != nil {
		record["author"] = *upd.Author
	}
	if upd.ISBN != nil {
		record["isbn"] = goqu.Func("NULLIF", *upd.ISBN, "")
	}
	if upd.PublishedYear != nil {
		record["published_year"] = *upd.PublishedYear
	}
	if upd.Genre != nil {
		record["genre"] = *upd.Genre
	}

	query, args, err := goqu.Dialect(dialect).
		Update("books").
		Set(record).
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return models.Book{}, fmt.Errorf("build book update query: %w", err)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Book{}, storage.ErrAlreadyExists
		}
		return models.Book{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.Book{}, storage.ErrNotFound
	}
	return s.GetBook(ctx, id)
}

// DeleteBook removes a catalog entry, open loan included.
func (s *Store) DeleteBook(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListBooks returns catalog entries matching the filter, newest first.
func (s *Store) ListBooks(ctx context.Context, filter storage.BookFilter) ([]models.Book, error) {
	ds := goqu.Dialect(dialect).
		From("books").
		Select(goqu.L(bookColumns)).
		Order(goqu.I("created_at").Desc())

	if filter.Status != "" && filter.Status != "all" {
		ds = ds.Where(goqu.C("status").Eq(filter.Status))
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		ds = ds.Where(goqu.Or(
			goqu.C("title").ILike(pattern),
			goqu.C("author").ILike(pattern),
			goqu.C("genre").ILike(pattern),
		))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build book list query: %w", err)
	}
	return s.queryBooks(ctx, query, args...)
}

// BorrowBook opens a loan, conditional on the book still being available.
func (s *Store) BorrowBook(ctx context.Context, id int64, upd storage.BorrowUpdate) (models.Book, error) {
	const query = `
	UPDATE books SET
		available = FALSE,
		status = 'borrowed',
		borrower_id = $2,
		borrower_name = $3,
		borrower_email = $4,
		borrowed_date = $5,
		due_date = $6,
		return_date = NULL,
		updated_at = NOW()
	WHERE id = $1 AND available
	RETURNING ` + bookColumns

	row := s.pool.QueryRow(ctx, query, id,
		upd.BorrowerID, upd.BorrowerName, upd.BorrowerEmail, upd.BorrowedDate, upd.DueDate)
	book, err := scanBook(row)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Book{}, s.disambiguateConflict(ctx, id)
	}
	return book, err
}

// ReturnBook closes a loan, conditional on the book still being borrowed.
// Penalty fields from the previous cycle are overwritten.
func (s *Store) ReturnBook(ctx context.Context, id int64, upd storage.ReturnUpdate) (models.Book, error) {
	const query = `
	UPDATE books SET
		available = TRUE,
		status = 'returned',
		borrower_id = NULL,
		borrower_name = '',
		borrower_email = '',
		borrowed_date = NULL,
		due_date = NULL,
		return_date = $2,
		days_overdue = $3,
		penalty_amount = $4,
		penalty_paid = FALSE,
		penalty_user_id = $5,
		updated_at = NOW()
	WHERE id = $1 AND NOT available
	RETURNING ` + bookColumns

	row := s.pool.QueryRow(ctx, query, id,
		upd.ReturnDate, upd.DaysOverdue, upd.PenaltyAmount, upd.PenaltyUserID)
	book, err := scanBook(row)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Book{}, s.disambiguateConflict(ctx, id)
	}
	return book, err
}

// disambiguateConflict tells a missing book apart from a failed precondition
// after a conditional update matched zero rows.
func (s *Store) disambiguateConflict(ctx context.Context, id int64) error {
	if _, err := s.GetBook(ctx, id); err != nil {
		return err
	}
	return storage.ErrConflict
}

// ListBorrowedBy returns a user's open loans, most recent first.
func (s *Store) ListBorrowedBy(ctx context.Context, userID int64) ([]models.Book, error) {
	const query = `
	SELECT ` + bookColumns + `
	FROM books
	WHERE borrower_id = $1 AND NOT available
	ORDER BY borrowed_date DESC`
	return s.queryBooks(ctx, query, userID)
}

// CountBorrowedBy counts a user's open loans.
func (s *Store) CountBorrowedBy(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM books WHERE borrower_id = $1 AND NOT available`, userID).Scan(&count)
	return count, err
}

// ListUnpaidPenalties returns books with an outstanding penalty, optionally
// restricted to one debtor.
func (s *Store) ListUnpaidPenalties(ctx context.Context, userID *int64) ([]models.Book, error) {
	ds := goqu.Dialect(dialect).
		From("books").
		Select(goqu.L(bookColumns)).
		Where(goqu.C("penalty_amount").Gt(0), goqu.C("penalty_paid").IsFalse()).
		Order(goqu.I("updated_at").Desc())

	if userID != nil {
		ds = ds.Where(goqu.C("penalty_user_id").Eq(*userID))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build unpaid penalty query: %w", err)
	}
	return s.queryBooks(ctx, query, args...)
}

// LibraryStats aggregates catalog and penalty counts.
func (s *Store) LibraryStats(ctx context.Context) (models.LibraryStats, error) {
	const query = `
	SELECT COUNT(*),
		COUNT(*) FILTER (WHERE available),
		COUNT(*) FILTER (WHERE NOT available),
		COUNT(*) FILTER (WHERE NOT available AND due_date < NOW()),
		COALESCE(SUM(penalty_amount) FILTER (WHERE penalty_amount > 0 AND NOT penalty_paid), 0),
		COALESCE(SUM(penalty_amount) FILTER (WHERE penalty_paid), 0)
	FROM books`

	var stats models.LibraryStats
	err := s.pool.QueryRow(ctx, query).Scan(
		&stats.TotalBooks, &stats.AvailableBooks, &stats.BorrowedBooks,
		&stats.OverdueBooks, &stats.TotalUnpaidPenalties, &stats.TotalPaidPenalties)
	if err != nil {
		return models.LibraryStats{}, err
	}
	return stats, nil
}

func (s *Store) queryBooks(ctx context.Context, query string, args ...any) ([]models.Book, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []models.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

func scanBook(row pgx.Row) (models.Book, error) {
	var book models.Book
	err := row.Scan(
		&book.ID, &book.Title, &book.Author, &book.ISBN, &book.PublishedYear,
		&book.Genre, &book.Available, &book.Status, &book.BorrowerID,
		&book.Borrower, &book.BorrowerEmail, &book.BorrowedDate, &book.DueDate,
		&book.ReturnDate, &book.DaysOverdue, &book.PenaltyAmount,
		&book.PenaltyPaid, &book.PenaltyUserID, &book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Book{}, storage.ErrNotFound
		}
		return models.Book{}, err
	}
	return book, nil
}
