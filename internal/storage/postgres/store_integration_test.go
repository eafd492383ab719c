package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"github.com/okhuang/libraria-be/internal/models"
	"github.com/okhuang/libraria-be/internal/storage"
)

// TestLoanLifecycleIntegration exercises the conditional borrow/return updates
// and the settlement transaction against a live database.
func TestLoanLifecycleIntegration(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION") != "true" {
		t.Skip("set RUN_DB_INTEGRATION=true to run this integration test")
	}

	loadDotEnv()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	store, err := NewStore(ctx, dbURL)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	defer store.Close()

	stamp := time.Now().UnixNano()
	user, err := store.CreateUser(ctx, models.User{
		Name:         fmt.Sprintf("itest_%d", stamp),
		Email:        fmt.Sprintf("itest_%d@example.com", stamp),
		PasswordHash: "x",
		Role:         models.RoleUser,
		IsActive:     true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	defer func() { _ = store.DeleteUser(ctx, user.ID) }()

	book, err := store.CreateBook(ctx, models.Book{
		Title:  fmt.Sprintf("Integration Test %d", stamp),
		Author: "Integration Author",
		ISBN:   fmt.Sprintf("itest-%d", stamp),
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	defer func() { _ = store.DeleteBook(ctx, book.ID) }()

	now := time.Now().UTC()
	upd := storage.BorrowUpdate{
		BorrowerID:    user.ID,
		BorrowerName:  user.Name,
		BorrowerEmail: user.Email,
		BorrowedDate:  now.Add(-72 * time.Hour),
		DueDate:       now.Add(-48 * time.Hour),
	}
	borrowed, err := store.BorrowBook(ctx, book.ID, upd)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if borrowed.Available || borrowed.BorrowerID == nil || *borrowed.BorrowerID != user.ID {
		t.Fatalf("borrow state mismatch: %+v", borrowed)
	}

	// The conditional update refuses a second borrow of the same copy.
	if _, err := store.BorrowBook(ctx, book.ID, upd); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("second borrow: want ErrConflict, got %v", err)
	}

	debtorID := user.ID
	returned, err := store.ReturnBook(ctx, book.ID, storage.ReturnUpdate{
		ReturnDate:    now,
		DaysOverdue:   2,
		PenaltyAmount: 10,
		PenaltyUserID: &debtorID,
	})
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if !returned.Available || returned.PenaltyAmount != 10 || returned.PenaltyPaid {
		t.Fatalf("return state mismatch: %+v", returned)
	}
	if _, err := store.ReturnBook(ctx, book.ID, storage.ReturnUpdate{ReturnDate: now}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("second return: want ErrConflict, got %v", err)
	}

	// Settlement with the wrong amount is refused; the right amount flips the
	// flag, writes the ledger row, and credits the payer in one transaction.
	wrong := models.Payment{
		TransactionID: fmt.Sprintf("TXN-ITEST-%d-W", stamp),
		UserID:        user.ID,
		BookID:        book.ID,
		Amount:        999,
		Method:        models.MethodCash,
		Status:        models.PaymentCompleted,
		Gateway:       "manual",
	}
	if _, _, err := store.SettlePenalty(ctx, wrong); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("wrong-amount settle: want ErrConflict, got %v", err)
	}

	right := wrong
	right.TransactionID = fmt.Sprintf("TXN-ITEST-%d", stamp)
	right.Amount = 10
	paid, settled, err := store.SettlePenalty(ctx, right)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !settled.PenaltyPaid || paid.Amount != 10 {
		t.Fatalf("settle state mismatch: payment %+v book %+v", paid, settled)
	}
	if _, _, err := store.SettlePenalty(ctx, right); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("double settle: want ErrConflict, got %v", err)
	}

	credited, err := store.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if credited.TotalFinesPaid != user.TotalFinesPaid+10 {
		t.Fatalf("fines paid: want %d got %d", user.TotalFinesPaid+10, credited.TotalFinesPaid)
	}

	ledger, err := store.ListPaymentsByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(ledger) == 0 || ledger[0].BookTitle != book.Title {
		t.Fatalf("ledger mismatch: %+v", ledger)
	}
}

func loadDotEnv() {
	paths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}
	for _, path := range paths {
		_ = godotenv.Overload(path)
	}
}
