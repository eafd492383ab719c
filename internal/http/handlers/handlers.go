package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/okhuang/libraria-be/internal/auth"
	"github.com/okhuang/libraria-be/internal/http/respond"
	"github.com/okhuang/libraria-be/internal/loan"
	"github.com/okhuang/libraria-be/internal/storage"
)

// identity converts the verified token claims into the loan engine's caller
// identity. The auth middleware guarantees claims are present on gated routes.
func identity(r *http.Request) (loan.Identity, bool) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		return loan.Identity{}, false
	}
	return loan.Identity{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}, true
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// writeDomainError maps engine and storage errors onto the HTTP taxonomy.
// notFoundMsg names the resource for 404s; anything unrecognized is logged in
// full and surfaced as a generic 500.
func writeDomainError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, loan.ErrAlreadyBorrowed):
		respond.Error(w, http.StatusBadRequest, "book already borrowed")
	case errors.Is(err, loan.ErrNotBorrowed):
		respond.Error(w, http.StatusBadRequest, "book is not borrowed")
	case errors.Is(err, loan.ErrNoPenalty):
		respond.Error(w, http.StatusBadRequest, "no penalty to pay")
	case errors.Is(err, loan.ErrPenaltyAlreadyPaid):
		respond.Error(w, http.StatusBadRequest, "penalty already paid")
	case errors.Is(err, loan.ErrUnknownDebtor):
		respond.Error(w, http.StatusBadRequest, "penalty debtor is unknown")
	case errors.Is(err, loan.ErrPaymentFailed):
		respond.Error(w, http.StatusBadRequest, "payment failed, please try again")
	case errors.Is(err, loan.ErrNotBorrower):
		respond.Error(w, http.StatusForbidden, loan.ErrNotBorrower.Error())
	case errors.Is(err, storage.ErrNotFound):
		respond.Error(w, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, storage.ErrConflict):
		respond.Error(w, http.StatusBadRequest, "conflicting update, please retry")
	default:
		log.Printf("internal error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "unexpected server error")
	}
}
