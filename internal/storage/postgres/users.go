package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"github.com/okhuang/libraria-be/internal/models"
	"github.com/okhuang/libraria-be/internal/storage"
)

const userColumns = `id, name, email, password_hash, role, is_active, total_fines_paid, last_login, login_count, notes, created_at, updated_at`

// CreateUser inserts a new account row.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const query = `
	INSERT INTO users (name, email, password_hash, role, is_active, notes)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING ` + userColumns

	row := s.pool.QueryRow(ctx, query,
		user.Name, user.Email, user.PasswordHash, user.Role, user.IsActive, user.Notes)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, storage.ErrAlreadyExists
		}
		return models.User{}, err
	}
	return created, nil
}

// GetUser fetches an account by id.
func (s *Store) GetUser(ctx context.Context, id int64) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.pool.QueryRow(ctx, query, id))
}

// FindByEmail fetches an account by email address.
func (s *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(s.pool.QueryRow(ctx, query, email))
}

// ListUsers returns accounts matching the filter, newest first.
func (s *Store) ListUsers(ctx context.Context, filter storage.UserFilter) ([]models.User, error) {
	ds := goqu.Dialect(dialect).
		From("users").
		Select(goqu.L(userColumns)).
		Order(goqu.I("created_at").Desc())

	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		ds = ds.Where(goqu.Or(
			goqu.C("name").ILike(pattern),
			goqu.C("email").ILike(pattern),
		))
	}
	if filter.Role != "" && filter.Role != "all" {
		ds = ds.Where(goqu.C("role").Eq(filter.Role))
	}
	switch filter.Status {
	case "active":
		ds = ds.Where(goqu.C("is_active").IsTrue())
	case "inactive":
		ds = ds.Where(goqu.C("is_active").IsFalse())
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build user list query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateUser applies the non-nil fields and returns the updated account.
func (s *Store) UpdateUser(ctx context.Context, id int64, upd storage.UserUpdate) (models.User, error) {
	record := goqu.Record{"updated_at": goqu.L("NOW()")}
	if upd.Name != nil {
		record["name"] = *upd.Name
	}
	if upd.Email != nil {
		record["email"] = *upd.Email
	}
	if upd.Role != nil {
		record["role"] = *upd.Role
	}
	if upd.IsActive != nil {
		record["is_active"] = *upd.IsActive
	}
	if upd.Notes != nil {
		record["notes"] = *upd.Notes
	}

	query, args, err := goqu.Dialect(dialect).
		Update("users").
		Set(record).
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return models.User{}, fmt.Errorf("build user update query: %w", err)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, storage.ErrAlreadyExists
		}
		return models.User{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.User{}, storage.ErrNotFound
	}
	return s.GetUser(ctx, id)
}

// UpdatePassword replaces the stored password hash.
func (s *Store) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteUser removes an account row. The open-loan guard lives in the handler.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecordLogin bumps the login counter and timestamp.
func (s *Store) RecordLogin(ctx context.Context, id int64) error {
	const query = `UPDATE users SET last_login = NOW(), login_count = login_count + 1, updated_at = NOW() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UserStats aggregates account counts for the admin dashboard.
func (s *Store) UserStats(ctx context.Context) (models.UserStats, error) {
	const query = `
	SELECT COUNT(*),
		COUNT(*) FILTER (WHERE is_active),
		COUNT(*) FILTER (WHERE role = 'admin'),
		COUNT(*) FILTER (WHERE role = 'user'),
		COUNT(*) FILTER (WHERE created_at >= NOW() - INTERVAL '30 days')
	FROM users`

	var stats models.UserStats
	err := s.pool.QueryRow(ctx, query).Scan(
		&stats.TotalUsers, &stats.ActiveUsers, &stats.AdminUsers,
		&stats.RegularUsers, &stats.RecentRegistrations)
	if err != nil {
		return models.UserStats{}, err
	}

	const penaltyQuery = `
	SELECT COUNT(DISTINCT penalty_user_id)
	FROM books
	WHERE penalty_amount > 0 AND NOT penalty_paid AND penalty_user_id IS NOT NULL`

	if err := s.pool.QueryRow(ctx, penaltyQuery).Scan(&stats.UsersWithPenalties); err != nil {
		return models.UserStats{}, err
	}

	stats.InactiveUsers = stats.TotalUsers - stats.ActiveUsers
	return stats, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role,
		&user.IsActive, &user.TotalFinesPaid, &user.LastLogin, &user.LoginCount,
		&user.Notes, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrNotFound
		}
		return models.User{}, err
	}
	return user, nil
}
