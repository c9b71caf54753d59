package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const userColumns = `
	u.id, u.name, u.email, u.password_hash, u.role_id, r.name, u.is_active, u.photo,
	COALESCE(u.reset_token, ''), u.reset_token_expiry, u.created_at, u.updated_at`

const userFrom = ` FROM users u JOIN roles r ON r.id = u.role_id `

func scanUser(row rowScanner) (User, error) {
	var (
		user   User
		expiry sql.NullTime
	)
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.RoleID, &user.Role,
		&user.IsActive, &user.Photo, &user.ResetToken, &expiry, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	if expiry.Valid {
		t := expiry.Time
		user.ResetTokenExpiry = &t
	}
	return user, nil
}

func (s *PostgresStore) queryUsers(ctx context.Context, op, query string, args ...any) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, user)
	}
	return items, rows.Err()
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password_hash, role_id, is_active, photo)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, user.Name, strings.ToLower(strings.TrimSpace(user.Email)), user.PasswordHash, user.RoleID, user.IsActive, user.Photo).Scan(&id)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", classify(err))
	}
	return s.GetUserByID(ctx, id)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+userFrom+`WHERE u.id = $1`, id))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+userFrom+`WHERE LOWER(u.email) = LOWER($1)`, strings.TrimSpace(email)))
}

func (s *PostgresStore) GetUserByResetToken(ctx context.Context, token string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+userFrom+`
		WHERE u.reset_token = $1 AND u.reset_token_expiry > NOW()
	`, token))
}

func (s *PostgresStore) ListUsers(ctx context.Context, params ListParams) ([]User, int, error) {
	params = params.Normalize()
	pattern := likePattern(params.Search)

	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users u
		WHERE ($1 = '' OR u.name ILIKE $1 OR u.email ILIKE $1)
	`, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	items, err := s.queryUsers(ctx, "list users", `
		SELECT `+userColumns+userFrom+`
		WHERE ($1 = '' OR u.name ILIKE $1 OR u.email ILIKE $1)
		ORDER BY u.created_at DESC, u.id DESC
		LIMIT $2 OFFSET $3
	`, pattern, params.Limit, params.Offset())
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, user User) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name=$2, email=$3, role_id=$4, is_active=$5, updated_at=NOW()
		WHERE id=$1
	`, user.ID, user.Name, strings.ToLower(strings.TrimSpace(user.Email)), user.RoleID, user.IsActive)
	if err != nil {
		return fmt.Errorf("update user: %w", classify(err))
	}
	return affectedOrNotFound(result, "update user")
}

func (s *PostgresStore) UpdateUserProfile(ctx context.Context, id int64, name, email, photo string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET name=$2, email=$3, photo=$4, updated_at=NOW() WHERE id=$1
	`, id, name, strings.ToLower(strings.TrimSpace(email)), photo)
	if err != nil {
		return fmt.Errorf("update profile: %w", classify(err))
	}
	return affectedOrNotFound(result, "update profile")
}

// UpdateUserPassword stores a new hash and invalidates any pending reset token.
func (s *PostgresStore) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash=$2, reset_token=NULL, reset_token_expiry=NULL, updated_at=NOW()
		WHERE id=$1
	`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return affectedOrNotFound(result, "update password")
}

func (s *PostgresStore) SetPasswordResetToken(ctx context.Context, id int64, token string, expiresAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET reset_token=$2, reset_token_expiry=$3, updated_at=NOW() WHERE id=$1
	`, id, token, expiresAt)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	return affectedOrNotFound(result, "set reset token")
}

func (s *PostgresStore) DeleteUsers(ctx context.Context, ids []int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete users: %w", classify(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete users rows: %w", err)
	}
	return affected, nil
}

func (s *PostgresStore) SearchContacts(ctx context.Context, q ContactQuery) ([]User, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	return s.queryUsers(ctx, "search contacts", `
		SELECT `+userColumns+userFrom+`
		WHERE u.is_active AND u.id <> $1
			AND ($2 = '' OR u.name ILIKE $2 OR u.email ILIKE $2)
			AND (NOT $3 OR r.name = 'admin')
		ORDER BY u.name ASC
		LIMIT $4
	`, q.SelfID, likePattern(q.Search), q.AdminsOnly, limit)
}

func (s *PostgresStore) ListAdmins(ctx context.Context) ([]User, error) {
	return s.queryUsers(ctx, "list admins", `
		SELECT `+userColumns+userFrom+`
		WHERE u.is_active AND r.name = 'admin'
		ORDER BY u.name ASC
	`)
}
