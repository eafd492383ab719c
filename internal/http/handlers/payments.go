package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/okhuang/libraria-be/internal/http/respond"
	"github.com/okhuang/libraria-be/internal/loan"
	"github.com/okhuang/libraria-be/internal/models"
	"github.com/okhuang/libraria-be/internal/models/dto"
	"github.com/okhuang/libraria-be/internal/storage"
)

// PaymentHandler owns penalty settlement and ledger read endpoints.
type PaymentHandler struct {
	store  storage.Store
	engine *loan.Engine
}

// NewPaymentHandler constructs the handler.
func NewPaymentHandler(store storage.Store, engine *loan.Engine) *PaymentHandler {
	return &PaymentHandler{store: store, engine: engine}
}

// PayPenalty settles the caller's outstanding penalty through the gateway.
func (h *PaymentHandler) PayPenalty(w http.ResponseWriter, r *http.Request) {
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
	var req dto.PayPenaltyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if !models.ValidPaymentMethod(req.PaymentMethod) {
		respond.Error(w, http.StatusBadRequest, "invalid payment method")
		return
	}

	payment, book, err := h.engine.PayPenalty(r.Context(), id, caller, req.PaymentMethod, req.CardLastFour)
	if err != nil {
		writeDomainError(w, err, "book not found")
		return
	}

	respond.JSON(w, http.StatusOK, dto.PayPenaltyResponse{
		Message: "Penalty paid successfully",
		Payment: dto.PaymentReceipt{
			TransactionID: payment.TransactionID,
			Amount:        payment.Amount,
			PaymentMethod: payment.Method,
			Date:          payment.CreatedAt,
		},
		Book: book,
	})
}

// Methods enumerates the accepted payment methods.
func (h *PaymentHandler) Methods(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, dto.PaymentMethodsResponse{Methods: models.PaymentMethods})
}

// History returns the caller's settlement ledger.
func (h *PaymentHandler) History(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "access token required")
		return
	}
	payments, err := h.store.ListPaymentsByUser(r.Context(), caller.UserID)
	if err != nil {
		log.Printf("payment history error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "failed to fetch payment history")
		return
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	respond.JSON(w, http.StatusOK, payments)
}

// MyUnpaidPenalties lists books whose current penalty the caller still owes.
func (h *PaymentHandler) MyUnpaidPenalties(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "access token required")
		return
	}
	books, err := h.store.ListUnpaidPenalties(r.Context(), &caller.UserID)
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
