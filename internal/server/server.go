package server

import (
	"context"
	"net/http"
	"time"

	"github.com/okhuang/libraria-be/internal/auth"
	"github.com/okhuang/libraria-be/internal/config"
	"github.com/okhuang/libraria-be/internal/http/handlers"
	"github.com/okhuang/libraria-be/internal/loan"
	"github.com/okhuang/libraria-be/internal/middleware"
	"github.com/okhuang/libraria-be/internal/payment"
	"github.com/okhuang/libraria-be/internal/storage"
)

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wires up middleware, routes, and returns a ready server.
func New(cfg config.Config, store storage.Store) *Server {
	handler := middleware.CORS(cfg.CORSOrigins, middleware.Logging(Routes(cfg, store)))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{inner: httpServer}
}

// Routes builds the full route table. Exposed separately so tests can mount
// it on an httptest server.
func Routes(cfg config.Config, store storage.Store) http.Handler {
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	gateway := payment.NewSimulatedGateway(cfg.GatewayFailureRate, cfg.GatewayDelay)
	engine := loan.NewEngine(store, gateway, cfg.PenaltyRate, cfg.LoanPeriod(), cfg.GatewayTimeout)

	healthHandler := handlers.NewHealthHandler(time.Now())
	authHandler := handlers.NewAuthHandler(store, tokens)
	bookHandler := handlers.NewBookHandler(store, engine)
	paymentHandler := handlers.NewPaymentHandler(store, engine)
	adminHandler := handlers.NewAdminHandler(store, engine)

	authed := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireAuth(tokens, h)
	}
	adminOnly := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireAuth(tokens, middleware.RequireAdmin(h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Handle)
	mux.HandleFunc("POST /auth/register", authHandler.Register)
	mux.HandleFunc("POST /auth/login", authHandler.Login)
	mux.Handle("GET /auth/me", authed(authHandler.Me))

	mux.Handle("GET /books", authed(bookHandler.List))
	mux.Handle("GET /stats", authed(bookHandler.Stats))
	mux.Handle("POST /books", adminOnly(bookHandler.Create))
	mux.Handle("PUT /books/{id}", adminOnly(bookHandler.Update))
	mux.Handle("DELETE /books/{id}", adminOnly(bookHandler.Delete))
	mux.Handle("POST /books/{id}/borrow", authed(bookHandler.Borrow))
	mux.Handle("POST /books/{id}/return", authed(bookHandler.Return))
	mux.Handle("GET /books/my-borrowed", authed(bookHandler.MyBorrowed))
	mux.Handle("GET /books/my-unpaid-penalties", authed(paymentHandler.MyUnpaidPenalties))

	mux.Handle("POST /books/{id}/pay-penalty", authed(paymentHandler.PayPenalty))
	mux.Handle("GET /payment/methods", authed(paymentHandler.Methods))
	mux.Handle("GET /payments/history", authed(paymentHandler.History))

	mux.Handle("GET /admin/users", adminOnly(adminHandler.ListUsers))
	mux.Handle("GET /admin/users-stats", adminOnly(adminHandler.UserStats))
	mux.Handle("GET /admin/users/{id}", adminOnly(adminHandler.UserDetail))
	mux.Handle("POST /admin/users", adminOnly(adminHandler.CreateUser))
	mux.Handle("PUT /admin/users/{id}", adminOnly(adminHandler.UpdateUser))
	mux.Handle("DELETE /admin/users/{id}", adminOnly(adminHandler.DeleteUser))
	mux.Handle("POST /admin/users/{id}/reset-password", adminOnly(adminHandler.ResetPassword))
	mux.Handle("GET /admin/unpaid-penalties", adminOnly(adminHandler.UnpaidPenalties))
	mux.Handle("POST /admin/books/{id}/mark-penalty-paid", adminOnly(adminHandler.MarkPenaltyPaid))

	return mux
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
