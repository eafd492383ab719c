package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/okhuang/libraria-be/internal/http/respond"
	"github.com/okhuang/libraria-be/internal/loan"
	"github.com/okhuang/libraria-be/internal/models"
	"github.com/okhuang/libraria-be/internal/models/dto"
	"github.com/okhuang/libraria-be/internal/storage"
)

// BookHandler owns catalog endpoints and the borrow/return transitions.
type BookHandler struct {
	books  storage.BookStore
	engine *loan.Engine
}

// NewBookHandler constructs the handler.
func NewBookHandler(books storage.BookStore, engine *loan.Engine) *BookHandler {
	return &BookHandler{books: books, engine: engine}
}

// List returns catalog entries, optionally filtered by search and status.
func (h *BookHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := storage.BookFilter{
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Status: strings.TrimSpace(r.URL.Query().Get("status")),
	}
	books, err := h.books.ListBooks(r.Context(), filter)
	if err != nil {
		log.Printf("list books error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "failed to fetch books")
		return
	}
	if books == nil {
		books = []models.Book{}
	}
	respond.JSON(w, http.StatusOK, books)
}

// Stats returns aggregate catalog and penalty counts.
func (h *BookHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.books.LibraryStats(r.Context())
	if err != nil {
		log.Printf("library stats error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "failed to fetch stats")
		return
	}
	respond.JSON(w, http.StatusOK, stats)
}

// Create adds a catalog entry. Admin only (enforced by route middleware).
func (h *BookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	title := strings.TrimSpace(req.Title)
	author := strings.TrimSpace(req.Author)
	if title == "" || author == "" {
		respond.Error(w, http.StatusBadRequest, "title and author are required")
		return
	}

	book, err := h.books.CreateBook(r.Context(), models.Book{
		Title:         title,
		Author:        author,
		ISBN:          strings.TrimSpace(req.ISBN),
		PublishedYear: req.PublishedYear,
		Genre:         strings.TrimSpace(req.Genre),
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			respond.Error(w, http.StatusBadRequest, "book with this ISBN already exists")
			return
		}
		log.Printf("create book error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "failed to create book")
		return
	}
	respond.JSON(w, http.StatusCreated, book)
}

// Update edits catalog fields only; loan state is owned by the engine.
func (h *BookHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid book id")
		return
	}
	var req dto.UpdateBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	book, err := h.books.UpdateBook(r.Context(), id, storage.BookUpdate{
		Title:         req.Title,
		Author:        req.Author,
		ISBN:          req.ISBN,
		PublishedYear: req.PublishedYear,
		Genre:         req.Genre,
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			respond.Error(w, http.StatusBadRequest, "book with this ISBN already exists")
			return
		}
		writeDomainError(w, err, "book not found")
		return
	}
	respond.JSON(w, http.StatusOK, book)
}

// Delete removes a catalog entry, open loan included.
func (h *BookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid book id")
		return
	}
	if err := h.books.DeleteBook(r.Context(), id); err != nil {
		writeDomainError(w, err, "book not found")
		return
	}
	respond.JSON(w, http.StatusOK, dto.MessageResponse{Message: "Book deleted successfully"})
}

// Borrow opens a loan for the authenticated caller.
func (h *BookHandler) Borrow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid book id")
		return
	}
	caller, ok := identity(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "access token required")
		return
	}
	book, err := h.engine.Borrow(r.Context(), id, caller)
	if err != nil {
		writeDomainError(w, err, "book not found")
		return
	}
	respond.JSON(w, http.StatusOK, book)
}

// Return closes the caller's loan; admins may return on a borrower's behalf.
func (h *BookHandler) Return(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid book id")
		return
	}
	caller, ok := identity(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "access token required")
		return
	}
	book, err := h.engine.Return(r.Context(), id, caller)
	if err != nil {
		writeDomainError(w, err, "book not found")
		return
	}
	respond.JSON(w, http.StatusOK, book)
}

// MyBorrowed lists the caller's open loans.
func (h *BookHandler) MyBorrowed(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "access token required")
		return
	}
	books, err := h.books.ListBorrowedBy(r.Context(), caller.UserID)
	if err != nil {
		log.Printf("list borrowed error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "failed to fetch borrowed books")
		return
	}
	if books == nil {
		books = []models.Book{}
	}
	respond.JSON(w, http.StatusOK, books)
}
