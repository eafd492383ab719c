package models

import "time"

// Roles a user account can hold.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ValidRole reports whether role is one of the enumerated account roles.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

// User captures application-facing fields for a library account.
type User struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	Role           string     `json:"role"`
	IsActive       bool       `json:"isActive"`
	TotalFinesPaid int64      `json:"totalFinesPaid"`
	LastLogin      *time.Time `json:"lastLogin,omitempty"`
	LoginCount     int        `json:"loginCount"`
	Notes          string     `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// UserWithStats decorates a user with per-account loan aggregates for admin listings.
type UserWithStats struct {
	User
	BorrowedBooksCount   int   `json:"borrowedBooksCount"`
	UnpaidPenaltiesTotal int64 `json:"unpaidPenaltiesTotal"`
}

// UserStats aggregates account counts for the admin dashboard.
type UserStats struct {
	TotalUsers          int `json:"totalUsers"`
	ActiveUsers         int `json:"activeUsers"`
	AdminUsers          int `json:"adminUsers"`
	RegularUsers        int `json:"regularUsers"`
	RecentRegistrations int `json:"recentRegistrations"`
	UsersWithPenalties  int `json:"usersWithPenalties"`
	InactiveUsers       int `json:"inactiveUsers"`
}
