package dto

import "github.com/okhuang/libraria-be/internal/models"

type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Notes    string `json:"notes"`
}

// UpdateUserRequest edits account fields; nil means "leave unchanged".
type UpdateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"isActive"`
	Notes    *string `json:"notes"`
}

type ResetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

type MarkPenaltyPaidRequest struct {
	PaymentMethod string `json:"paymentMethod"`
}

type UpdateUserResponse struct {
	Message string      `json:"message"`
	User    models.User `json:"user"`
}

// UserDetailStats aggregates one user's loan and payment activity.
type UserDetailStats struct {
	TotalBorrowed int   `json:"totalBorrowed"`
	TotalPayments int   `json:"totalPayments"`
	TotalPaid     int64 `json:"totalPaid"`
	TotalUnpaid   int64 `json:"totalUnpaid"`
}

type UserDetailResponse struct {
	User            models.User      `json:"user"`
	BorrowedBooks   []models.Book    `json:"borrowedBooks"`
	PaymentHistory  []models.Payment `json:"paymentHistory"`
	UnpaidPenalties []models.Book    `json:"unpaidPenalties"`
	Stats           UserDetailStats  `json:"stats"`
}
