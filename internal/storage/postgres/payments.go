package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/okhuang/libraria-be/internal/models"
	"github.com/okhuang/libraria-be/internal/storage"
)

// SettlePenalty records a payment and marks the book's penalty paid in one
// transaction. The ledger insert runs before the flag flip; the flip is
// conditional on the penalty still being unpaid and on the amount matching,
// so a lost race rolls the ledger row back and reports ErrConflict.
func (s *Store) SettlePenalty(ctx context.Context, payment models.Payment) (models.Payment, models.Book, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Payment{}, models.Book{}, fmt.Errorf("begin settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertQuery = `
	INSERT INTO payments (transaction_id, user_id, book_id, amount, method, status, gateway, card_last_four, recorded_by)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING id, created_at`

	err = tx.QueryRow(ctx, insertQuery,
		payment.TransactionID, payment.UserID, payment.BookID, payment.Amount,
		payment.Method, payment.Status, payment.Gateway, payment.CardLastFour,
		payment.RecordedBy).Scan(&payment.ID, &payment.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Payment{}, models.Book{}, storage.ErrConflict
		}
		return models.Payment{}, models.Book{}, fmt.Errorf("insert payment: %w", err)
	}

	const flipQuery = `
	UPDATE books SET penalty_paid = TRUE, updated_at = NOW()
	WHERE id = $1 AND penalty_amount > 0 AND NOT penalty_paid AND penalty_amount = $2
	RETURNING ` + bookColumns

	book, err := scanBook(tx.QueryRow(ctx, flipQuery, payment.BookID, payment.Amount))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Payment{}, models.Book{}, storage.ErrConflict
		}
		return models.Payment{}, models.Book{}, fmt.Errorf("mark penalty paid: %w", err)
	}

	const creditQuery = `
	UPDATE users SET total_fines_paid = total_fines_paid + $2, updated_at = NOW()
	WHERE id = $1`

	if _, err := tx.Exec(ctx, creditQuery, payment.UserID, payment.Amount); err != nil {
		return models.Payment{}, models.Book{}, fmt.Errorf("credit payer fines: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Payment{}, models.Book{}, fmt.Errorf("commit settlement: %w", err)
	}
	return payment, book, nil
}

// ListPaymentsByUser returns a payer's ledger entries joined with the book's
// catalog fields, newest first.
func (s *Store) ListPaymentsByUser(ctx context.Context, userID int64) ([]models.Payment, error) {
	const query = `
	SELECT p.id, p.transaction_id, p.user_id, p.book_id,
		COALESCE(b.title, ''), COALESCE(b.author, ''),
		p.amount, p.method, p.status, p.gateway, p.card_last_four, p.recorded_by, p.created_at
	FROM payments p
	LEFT JOIN books b ON b.id = p.book_id
	WHERE p.user_id = $1
	ORDER BY p.created_at DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		err := rows.Scan(
			&p.ID, &p.TransactionID, &p.UserID, &p.BookID, &p.BookTitle,
			&p.BookAuthor, &p.Amount, &p.Method, &p.Status, &p.Gateway,
			&p.CardLastFour, &p.RecordedBy, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
