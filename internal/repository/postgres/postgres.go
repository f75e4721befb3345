package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veslo/accounts/internal/domain"
	"github.com/veslo/accounts/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository       = (*Repository)(nil)
	_ repository.ProfileRepository    = (*Repository)(nil)
	_ repository.ResetTokenRepository = (*Repository)(nil)
	_ repository.AuditRepository      = (*Repository)(nil)
)

const userColumns = `id, username, email, phone_number, first_name, last_name, password_hash, role, is_active, is_staff, is_superuser, date_joined, updated_at`

// CreateUser inserts a user and an initial profile row in one transaction.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User, profile *domain.Profile) error {
	if user == nil {
		return repository.ErrInvalidArgument
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertUser = `INSERT INTO users (id, username, email, phone_number, first_name, last_name, password_hash, role, is_active, is_staff, is_superuser, date_joined, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`
	_, err = tx.Exec(ctx, insertUser,
		user.ID,
		user.Username,
		nullString(user.Email),
		nullString(user.PhoneNumber),
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		string(user.Role),
		user.IsActive,
		user.IsStaff,
		user.IsSuperuser,
		user.DateJoined.UTC(),
	)
	if err != nil {
		return mapConstraint(err)
	}

	const insertProfile = `INSERT INTO profiles (user_id, bio, avatar_url, telegram_id, updated_at)
		VALUES ($1, $2, $3, $4, $5)`
	var p domain.Profile
	if profile != nil {
		p = *profile
	}
	if _, err := tx.Exec(ctx, insertProfile, user.ID, p.Bio, p.AvatarURL, p.TelegramID, user.DateJoined.UTC()); err != nil {
		return mapConstraint(err)
	}
	return tx.Commit(ctx)
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetUserByEmail fetches a user by email, case insensitively.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUser(r.pool.QueryRow(ctx, query, strings.TrimSpace(email)))
}

// GetUserByUsername fetches a user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.pool.QueryRow(ctx, query, strings.TrimSpace(username)))
}

// EmailTaken reports whether any account already uses the email.
func (r *Repository) EmailTaken(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`
	var taken bool
	if err := r.pool.QueryRow(ctx, query, strings.TrimSpace(email)).Scan(&taken); err != nil {
		return false, err
	}
	return taken, nil
}

// UpdateUser persists identity fields for an existing user.
func (r *Repository) UpdateUser(ctx context.Context, user *domain.User) error {
	if user == nil {
		return repository.ErrInvalidArgument
	}
	const query = `UPDATE users
		SET username = $2, email = $3, phone_number = $4, first_name = $5, last_name = $6, updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Username,
		nullString(user.Email),
		nullString(user.PhoneNumber),
		user.FirstName,
		user.LastName,
	)
	if err != nil {
		return mapConstraint(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateUserWithProfile persists user and profile changes in one transaction.
func (r *Repository) UpdateUserWithProfile(ctx context.Context, user *domain.User, profile *domain.Profile) error {
	if user == nil {
		return repository.ErrInvalidArgument
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update user: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const updateUser = `UPDATE users
		SET username = $2, email = $3, phone_number = $4, first_name = $5, last_name = $6, updated_at = NOW()
		WHERE id = $1`
	tag, err := tx.Exec(ctx, updateUser,
		user.ID,
		user.Username,
		nullString(user.Email),
		nullString(user.PhoneNumber),
		user.FirstName,
		user.LastName,
	)
	if err != nil {
		return mapConstraint(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	if profile != nil {
		const updateProfile = `UPDATE profiles
			SET bio = $2, avatar_url = $3, telegram_id = $4, updated_at = NOW()
			WHERE user_id = $1`
		if _, err := tx.Exec(ctx, updateProfile, user.ID, profile.Bio, profile.AvatarURL, profile.TelegramID); err != nil {
			return mapConstraint(err)
		}
	}
	return tx.Commit(ctx)
}

// UpdatePassword stores a new password hash.
func (r *Repository) UpdatePassword(ctx context.Context, id string, hash []byte) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateRole assigns a role and the matching staff flag.
func (r *Repository) UpdateRole(ctx context.Context, id string, role domain.Role, staff bool) error {
	const query = `UPDATE users SET role = $2, is_staff = $3, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, string(role), staff)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetActive toggles the active flag.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SearchUsers lists users matching the query, newest first.
func (r *Repository) SearchUsers(ctx context.Context, query string, limit, offset int) ([]domain.User, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	trimmed := strings.TrimSpace(query)
	sqlQuery := `SELECT ` + userColumns + ` FROM users`
	args := []any{}
	if trimmed != "" {
		sqlQuery += ` WHERE username ILIKE $1
			OR email ILIKE $1
			OR phone_number ILIKE $1
			OR first_name ILIKE $1
			OR last_name ILIKE $1`
		args = append(args, "%"+trimmed+"%")
	}
	sqlQuery += fmt.Sprintf(` ORDER BY date_joined DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// GetProfileByUserID fetches the profile attached to a user.
func (r *Repository) GetProfileByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	const query = `SELECT user_id, bio, avatar_url, telegram_id, updated_at FROM profiles WHERE user_id = $1`
	row := r.pool.QueryRow(ctx, query, userID)
	var p domain.Profile
	if err := row.Scan(&p.UserID, &p.Bio, &p.AvatarURL, &p.TelegramID, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Ping verifies database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u     domain.User
		role  string
		email sql.NullString
		phone sql.NullString
	)
	if err := row.Scan(
		&u.ID,
		&u.Username,
		&email,
		&phone,
		&u.FirstName,
		&u.LastName,
		&u.PasswordHash,
		&role,
		&u.IsActive,
		&u.IsStaff,
		&u.IsSuperuser,
		&u.DateJoined,
		&u.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	u.Role = domain.Role(role)
	if email.Valid {
		u.Email = email.String
	}
	if phone.Valid {
		u.PhoneNumber = phone.String
	}
	u.DateJoined = u.DateJoined.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func nullString(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}

func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return repository.ErrConflict
	}
	return err
}
