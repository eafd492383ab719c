package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/okhuang/libraria-be/internal/auth"
	"github.com/okhuang/libraria-be/internal/http/respond"
	"github.com/okhuang/libraria-be/internal/models"
	"github.com/okhuang/libraria-be/internal/models/dto"
	"github.com/okhuang/libraria-be/internal/storage"
)

const bcryptCost = 12

// AuthHandler owns register, login, and profile endpoints.
type AuthHandler struct {
	users  storage.UserStore
	tokens *auth.TokenManager
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(users storage.UserStore, tokens *auth.TokenManager) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens}
}

// Register creates a self-service account. The role is always forced to user.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
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

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("hash password error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "registration failed")
		return
	}

	created, err := h.users.CreateUser(r.Context(), models.User{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         models.RoleUser,
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			respond.Error(w, http.StatusBadRequest, "user already exists with this email")
			return
		}
		log.Printf("create user error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "registration failed")
		return
	}

	token, err := h.tokens.Generate(created)
	if err != nil {
		log.Printf("generate token error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "registration failed")
		return
	}

	respond.JSON(w, http.StatusCreated, dto.AuthResponse{
		Message: "User registered successfully",
		Token:   token,
		User:    userSummary(created),
	})
}

// Login authenticates by email and password. Unknown email, inactive account,
// and wrong password all yield the same generic response.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		respond.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.users.FindByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusBadRequest, "invalid credentials")
			return
		}
		log.Printf("login lookup error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "login failed")
		return
	}
	if !user.IsActive {
		respond.Error(w, http.StatusBadRequest, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid credentials")
		return
	}

	if err := h.users.RecordLogin(r.Context(), user.ID); err != nil {
		log.Printf("record login error: %v", err)
	}

	token, err := h.tokens.Generate(user)
	if err != nil {
		log.Printf("generate token error: %v", err)
		respond.Error(w, http.StatusInternalServerError, "login failed")
		return
	}

	respond.JSON(w, http.StatusOK, dto.AuthResponse{
		Message: "Login successful",
		Token:   token,
		User:    userSummary(user),
	})
}

// Me returns the caller's full profile, re-fetched from the store.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "access token required")
		return
	}
	user, err := h.users.GetUser(r.Context(), caller.UserID)
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	respond.JSON(w, http.StatusOK, user)
}

func userSummary(user models.User) dto.UserSummary {
	return dto.UserSummary{ID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role}
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
