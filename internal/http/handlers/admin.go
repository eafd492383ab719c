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

// AdminHandler owns user administration and manual penalty settlement.
// Every route is gated behind the admin middleware.
type AdminHandler struct {
	store  storage.Store
	engine *loan.Engine
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(store storage.Store, engine *loan.Engine) *AdminHandler {
	return &AdminHandler{store: store, engine: engine}
}

// ListUsers returns accounts with per-user loan aggregates.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	users, err := h.store.ListUsers(r.Context(), storage.UserFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Role:   strings.TrimSpace(q.Get("role")),
		Status: strings.TrimSpace(q.Get("status")),
	})
	if err != nil {
		log.Printf("list users error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "failed to fetch users")
		return
	}

	out := make([]models.UserWithStats, 0, len(users))
	for _, user := range users {
		borrowed, err := h.store.CountBorrowedBy(r.Context(), user.ID)
		if err != nil {
			log.Printf("count borrowed error: %v", err)
			respond.Error(w, http.StatusInternalServerError, "failed to fetch users")
			return
		}
		unpaid, err := h.store.ListUnpaidPenalties(r.Context(), &user.ID)
		if err != nil {
			log.Printf("unpaid penalties error: %v", err)
			respond.Error(w, http.StatusInternalServerError, "failed to fetch users")
			return
		}
		var unpaidTotal int64
		for _, book := range unpaid {
			unpaidTotal += book.PenaltyAmount
		}
		out = append(out, models.UserWithStats{
			User:                 user,
			BorrowedBooksCount:   borrowed,
			UnpaidPenaltiesTotal: unpaidTotal,
		})
	}
	respond.JSON(w, http.StatusOK, out)
}

// UserDetail returns one account with its loans, ledger, and aggregates.
func (h *AdminHandler) UserDetail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid user id")
		return
	}
	user, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}

	borrowed, err := h.store.ListBorrowedBy(r.Context(), id)
	if err != nil {
		log.Printf("list borrowed error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "failed to fetch user details")
		return
	}
	payments, err := h.store.ListPaymentsByUser(r.Context(), id)
	if err != nil {
		log.Printf("payment history error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "failed to fetch user details")
		return
	}
	unpaid, err := h.store.ListUnpaidPenalties(r.Context(), &id)
	if err != nil {
		log.Printf("unpaid penalties error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "failed to fetch user details")
		return
	}

	stats := dto.UserDetailStats{
		TotalBorrowed: len(borrowed),
		TotalPayments: len(payments),
	}
	for _, p := range payments {
		stats.TotalPaid += p.Amount
	}
	for _, book := range unpaid {
		stats.TotalUnpaid += book.PenaltyAmount
	}

	if borrowed == nil {
		borrowed = []models.Book{}
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	if unpaid == nil {
		unpaid = []models.Book{}
	}
	respond.JSON(w, http.StatusOK, dto.UserDetailResponse{
		User:            user,
		BorrowedBooks:   borrowed,
		PaymentHistory:  payments,
		UnpaidPenalties: unpaid,
		Stats:           stats,
	})
}

// CreateUser adds an account with a selectable role.
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" {
		respond.Error(w, http.StatusBadRequest, "name and email are required")
		return
	}
	if len(req.Password) < 6 {
		respond.Error(w, http.StatusBadRequest, "password must be at least 6 characters long")
		return
	}
	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	if !models.ValidRole(role) {
		respond.Error(w, http.StatusBadRequest, "invalid role")
		return
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("hash password error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	created, err := h.store.CreateUser(r.Context(), models.User{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
		Notes:        strings.TrimSpace(req.Notes),
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			respond.Error(w, http.StatusBadRequest, "user already exists with this email")
			return
		}
		log.Printf("create user error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	respond.JSON(w, http.StatusCreated, dto.UpdateUserResponse{
		Message: "User created successfully",
		User:    created,
	})
}

// UpdateUser edits account fields, including role and active flag.
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req dto.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.Role != nil && !models.ValidRole(*req.Role) {
		respond.Error(w, http.StatusBadRequest, "invalid role")
		return
	}

	user, err := h.store.UpdateUser(r.Context(), id, storage.UserUpdate{
		Name:     req.Name,
		Email:    req.Email,
		Role:     req.Role,
		IsActive: req.IsActive,
		Notes:    req.Notes,
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			respond.Error(w, http.StatusBadRequest, "email already exists")
			return
		}
		writeDomainError(w, err, "user not found")
		return
	}
	respond.JSON(w, http.StatusOK, dto.UpdateUserResponse{
		Message: "User updated successfully",
		User:    user,
	})
}

// DeleteUser removes an account, blocked while it holds open loans.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid user id")
		return
	}
	borrowed, err := h.store.CountBorrowedBy(r.Context(), id)
	if err != nil {
		log.Printf("count borrowed error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	if borrowed > 0 {
		respond.Error(w, http.StatusBadRequest, "cannot delete user with borrowed books, return all books first")
		return
	}
	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	respond.JSON(w, http.StatusOK, dto.MessageResponse{Message: "User deleted successfully"})
}

// ResetPassword force-sets a new password for an account.
func (h *AdminHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req dto.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if len(req.NewPassword) < 6 {
		respond.Error(w, http.StatusBadRequest, "password must be at least 6 characters long")
		return
	}

	passwordHash, err := hashPassword(req.NewPassword)
	if err != nil {
		log.Printf("hash password error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "failed to reset password")
		return
	}
	if err := h.store.UpdatePassword(r.Context(), id, passwordHash); err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	respond.JSON(w, http.StatusOK, dto.MessageResponse{Message: "Password reset successfully"})
}

// UserStats returns aggregate account counts.
func (h *AdminHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.UserStats(r.Context())
	if err != nil {
		log.Printf("user stats error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "failed to fetch user statistics")
		return
	}
	respond.JSON(w, http.StatusOK, stats)
}

// UnpaidPenalties lists every outstanding penalty in the library.
func (h *AdminHandler) UnpaidPenalties(w http.ResponseWriter, r *http.Request) {
	books, err := h.store.ListUnpaidPenalties(r.Context(), nil)
	if err != nil {
		log.Printf("unpaid penalties error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "failed to fetch unpaid penalties")
		return
	}
	if books == nil {
		books = []models.Book{}
	}
	respond.JSON(w, http.StatusOK, books)
}

// MarkPenaltyPaid records a manual settlement on the debtor's behalf.
func (h *AdminHandler) MarkPenaltyPaid(w http.ResponseWriter, r *http.Request) {
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
	req := dto.MarkPenaltyPaidRequest{PaymentMethod: models.MethodCash}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.MethodCash
	}
	if !models.ValidPaymentMethod(req.PaymentMethod) {
		respond.Error(w, http.StatusBadRequest, "invalid payment method")
		return
	}

	_, book, err := h.engine.MarkPenaltyPaid(r.Context(), id, caller, req.PaymentMethod)
	if err != nil {
		writeDomainError(w, err, "book not found")
		return
	}
	respond.JSON(w, http.StatusOK, struct {
		Message string      `json:"message"`
		Book    models.Book `json:"book"`
	}{Message: "Penalty marked as paid successfully", Book: book})
}
