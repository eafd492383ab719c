package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/okhuang/libraria-be/internal/models"
	"github.com/okhuang/libraria-be/internal/storage"
)

const day = 24 * time.Hour

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the default admin, sample users, and sample catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			return seed(ctx, store)
		},
	}
}

func seed(ctx context.Context, store storage.Store) error {
	if _, err := ensureUser(ctx, store, "System Administrator", "admin@library.com", "admin123", models.RoleAdmin); err != nil {
		return err
	}
	john, err := ensureUser(ctx, store, "John Doe", "john@example.com", "password123", models.RoleUser)
	if err != nil {
		return err
	}
	jane, err := ensureUser(ctx, store, "Jane Smith", "jane@example.com", "password123", models.RoleUser)
	if err != nil {
		return err
	}
	tester, err := ensureUser(ctx, store, "Test User", "test@example.com", "password123", models.RoleUser)
	if err != nil {
		return err
	}
	existing, err := store.ListBooks(ctx, storage.BookFilter{})
	if err != nil {
		return fmt.Errorf("check existing catalog: %w", err)
	}
	if len(existing) > 0 {
		log.Printf("seed: %d books already exist, skipping catalog seed", len(existing))
		return nil
	}

	now := time.Now()
	available := []models.Book{
		{Title: "The Great Gatsby", Author: "F. Scott Fitzgerald", ISBN: "9780743273565", PublishedYear: 1925, Genre: "Fiction"},
		{Title: "Pride and Prejudice", Author: "Jane Austen", ISBN: "9780141439518", PublishedYear: 1813, Genre: "Romance"},
		{Title: "The Hobbit", Author: "J.R.R. Tolkien", ISBN: "9780547928227", PublishedYear: 1937, Genre: "Fantasy"},
	}
	for _, book := range available {
		if _, err := store.CreateBook(ctx, book); err != nil {
			return fmt.Errorf("seed book %q: %w", book.Title, err)
		}
	}

	// An open loan still within its due window.
	if err := seedLoan(ctx, store, models.Book{
		Title: "To Kill a Mockingbird", Author: "Harper Lee", ISBN: "9780061120084", PublishedYear: 1960, Genre: "Fiction",
	}, john, now.Add(-7*day), now.Add(7*day)); err != nil {
		return err
	}

	// An open loan already past due; the penalty accrues when it is returned.
	if err := seedLoan(ctx, store, models.Book{
		Title: "1984", Author: "George Orwell", ISBN: "9780451524935", PublishedYear: 1949, Genre: "Science Fiction",
	}, jane, now.Add(-21*day), now.Add(-7*day)); err != nil {
		return err
	}

	// A closed loan with an outstanding penalty, for payment testing.
	overdue, err := store.CreateBook(ctx, models.Book{
		Title: "Returned Late", Author: "Test Author", ISBN: "9780000000001", PublishedYear: 2024, Genre: "Testing",
	})
	if err != nil {
		return fmt.Errorf("seed overdue book: %w", err)
	}
	if _, err := store.BorrowBook(ctx, overdue.ID, storage.BorrowUpdate{
		BorrowerID:    tester.ID,
		BorrowerName:  tester.Name,
		BorrowerEmail: tester.Email,
		BorrowedDate:  now.Add(-30 * day),
		DueDate:       now.Add(-16 * day),
	}); err != nil {
		return fmt.Errorf("seed overdue loan: %w", err)
	}
	debtorID := tester.ID
	if _, err := store.ReturnBook(ctx, overdue.ID, storage.ReturnUpdate{
		ReturnDate:    now,
		DaysOverdue:   16,
		PenaltyAmount: 80,
		PenaltyUserID: &debtorID,
	}); err != nil {
		return fmt.Errorf("seed overdue return: %w", err)
	}

	log.Println("seed: catalog created (3 available, 2 borrowed, 1 with unpaid penalty)")
	log.Println("seed: admin login admin@library.com / admin123")
	log.Println("seed: test login test@example.com / password123 (owes 80)")
	return nil
}

func seedLoan(ctx context.Context, store storage.Store, book models.Book, borrower models.User, borrowedAt, due time.Time) error {
	created, err := store.CreateBook(ctx, book)
	if err != nil {
		return fmt.Errorf("seed book %q: %w", book.Title, err)
	}
	if _, err := store.BorrowBook(ctx, created.ID, storage.BorrowUpdate{
		BorrowerID:    borrower.ID,
		BorrowerName:  borrower.Name,
		BorrowerEmail: borrower.Email,
		BorrowedDate:  borrowedAt,
		DueDate:       due,
	}); err != nil {
		return fmt.Errorf("seed loan for %q: %w", book.Title, err)
	}
	return nil
}

func ensureUser(ctx context.Context, store storage.Store, name, email, password, role string) (models.User, error) {
	existing, err := store.FindByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return models.User{}, fmt.Errorf("look up %s: %w", email, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password for %s: %w", email, err)
	}
	created, err := store.CreateUser(ctx, models.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	})
	if err != nil {
		return models.User{}, fmt.Errorf("create %s: %w", email, err)
	}
	log.Printf("seed: created %s account %s", role, email)
	return created, nil
}
