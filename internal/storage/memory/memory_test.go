package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okhuang/libraria-be/internal/models"
	"github.com/okhuang/libraria-be/internal/storage"
)

func TestEmailUniqueness(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.CreateUser(ctx, models.User{Name: "A", Email: "dup@example.com", Role: models.RoleUser, IsActive: true})
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, models.User{Name: "B", Email: "dup@example.com", Role: models.RoleUser, IsActive: true})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestISBNUniqueness(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.CreateBook(ctx, models.Book{Title: "A", Author: "X", ISBN: "123"})
	require.NoError(t, err)
	_, err = store.CreateBook(ctx, models.Book{Title: "B", Author: "Y", ISBN: "123"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	// Books without an ISBN never collide.
	_, err = store.CreateBook(ctx, models.Book{Title: "C", Author: "Z"})
	require.NoError(t, err)
	_, err = store.CreateBook(ctx, models.Book{Title: "D", Author: "W"})
	require.NoError(t, err)
}

func TestListBooksFilters(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	gatsby, err := store.CreateBook(ctx, models.Book{Title: "The Great Gatsby", Author: "Fitzgerald", Genre: "Fiction"})
	require.NoError(t, err)
	_, err = store.CreateBook(ctx, models.Book{Title: "Dune", Author: "Herbert", Genre: "Science Fiction"})
	require.NoError(t, err)

	now := time.Now()
	_, err = store.BorrowBook(ctx, gatsby.ID, storage.BorrowUpdate{
		BorrowerID: 1, BorrowedDate: now, DueDate: now.Add(14 * 24 * time.Hour),
	})
	require.NoError(t, err)

	byTitle, err := store.ListBooks(ctx, storage.BookFilter{Search: "gatsby"})
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	assert.Equal(t, gatsby.ID, byTitle[0].ID)

	borrowed, err := store.ListBooks(ctx, storage.BookFilter{Status: models.BookStatusBorrowed})
	require.NoError(t, err)
	require.Len(t, borrowed, 1)
	assert.Equal(t, gatsby.ID, borrowed[0].ID)

	all, err := store.ListBooks(ctx, storage.BookFilter{Status: "all"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestBorrowReturnConflicts(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	book, err := store.CreateBook(ctx, models.Book{Title: "Dune", Author: "Herbert"})
	require.NoError(t, err)

	_, err = store.ReturnBook(ctx, book.ID, storage.ReturnUpdate{ReturnDate: time.Now()})
	assert.ErrorIs(t, err, storage.ErrConflict)

	now := time.Now()
	upd := storage.BorrowUpdate{BorrowerID: 1, BorrowedDate: now, DueDate: now.Add(24 * time.Hour)}
	_, err = store.BorrowBook(ctx, book.ID, upd)
	require.NoError(t, err)
	_, err = store.BorrowBook(ctx, book.ID, upd)
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestSettlePenaltyGuards(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	user, err := store.CreateUser(ctx, models.User{Name: "Debtor", Email: "d@example.com", Role: models.RoleUser, IsActive: true})
	require.NoError(t, err)
	book, err := store.CreateBook(ctx, models.Book{Title: "Dune", Author: "Herbert"})
	require.NoError(t, err)

	now := time.Now()
	_, err = store.BorrowBook(ctx, book.ID, storage.BorrowUpdate{BorrowerID: user.ID, BorrowedDate: now.Add(-48 * time.Hour), DueDate: now.Add(-24 * time.Hour)})
	require.NoError(t, err)
	debtorID := user.ID
	_, err = store.ReturnBook(ctx, book.ID, storage.ReturnUpdate{ReturnDate: now, DaysOverdue: 1, PenaltyAmount: 5, PenaltyUserID: &debtorID})
	require.NoError(t, err)

	// The recorded amount must match the outstanding penalty.
	_, _, err = store.SettlePenalty(ctx, models.Payment{UserID: user.ID, BookID: book.ID, Amount: 99})
	assert.ErrorIs(t, err, storage.ErrConflict)

	paid, settled, err := store.SettlePenalty(ctx, models.Payment{TransactionID: "TXN-1", UserID: user.ID, BookID: book.ID, Amount: 5})
	require.NoError(t, err)
	assert.True(t, settled.PenaltyPaid)
	assert.Equal(t, "Dune", paid.BookTitle)

	// Second settlement of the same penalty is refused.
	_, _, err = store.SettlePenalty(ctx, models.Payment{TransactionID: "TXN-2", UserID: user.ID, BookID: book.ID, Amount: 5})
	assert.ErrorIs(t, err, storage.ErrConflict)

	credited, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), credited.TotalFinesPaid)
}

func TestListUnpaidPenaltiesScoping(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	alice, err := store.CreateUser(ctx, models.User{Name: "Alice", Email: "a@example.com", Role: models.RoleUser, IsActive: true})
	require.NoError(t, err)
	bob, err := store.CreateUser(ctx, models.User{Name: "Bob", Email: "b@example.com", Role: models.RoleUser, IsActive: true})
	require.NoError(t, err)

	now := time.Now()
	for _, debtor := range []models.User{alice, bob} {
		book, err := store.CreateBook(ctx, models.Book{Title: "Owed by " + debtor.Name, Author: "X"})
		require.NoError(t, err)
		_, err = store.BorrowBook(ctx, book.ID, storage.BorrowUpdate{BorrowerID: debtor.ID, BorrowedDate: now.Add(-72 * time.Hour), DueDate: now.Add(-24 * time.Hour)})
		require.NoError(t, err)
		debtorID := debtor.ID
		_, err = store.ReturnBook(ctx, book.ID, storage.ReturnUpdate{ReturnDate: now, DaysOverdue: 1, PenaltyAmount: 5, PenaltyUserID: &debtorID})
		require.NoError(t, err)
	}

	all, err := store.ListUnpaidPenalties(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := store.ListUnpaidPenalties(ctx, &alice.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].PenaltyUserID)
	assert.Equal(t, alice.ID, *mine[0].PenaltyUserID)
}

func TestUserUpdateAndDeletion(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	user, err := store.CreateUser(ctx, models.User{Name: "Old", Email: "old@example.com", Role: models.RoleUser, IsActive: true})
	require.NoError(t, err)

	name := "New"
	inactive := false
	updated, err := store.UpdateUser(ctx, user.ID, storage.UserUpdate{Name: &name, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Name)
	assert.False(t, updated.IsActive)

	require.NoError(t, store.DeleteUser(ctx, user.ID))
	_, err = store.GetUser(ctx, user.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.DeleteUser(ctx, user.ID), storage.ErrNotFound)
}
