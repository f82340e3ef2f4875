package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-kit/vantage/internal/platform/db"
	"github.com/vantage-kit/vantage/internal/shared"
)

// Repository defines persistence operations for the identity store.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	CreateUser(ctx context.Context, u User) (*User, error)
	UpdateUser(ctx context.Context, id int64, name, email string) (*User, error)
	SetActive(ctx context.Context, id int64, active bool) error
	DeleteUser(ctx context.Context, id int64) error

	InsertToken(ctx context.Context, t AccessToken) error
	FindToken(ctx context.Context, id string) (*AccessToken, error)
	TouchToken(ctx context.Context, id string, usedAt time.Time) error
	DeleteToken(ctx context.Context, id string) error
	DeleteTokensForUser(ctx context.Context, userID int64) error
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, name, username, email, password_hash, is_active, created_at, updated_at`

// FindByUsername fetches a user by its lower-cased username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`,
		strings.ToLower(strings.TrimSpace(username)))
	return scanUser(row)
}

// GetByID fetches a user by ID.
func (r *PGRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// ListUsers returns all users ordered by ID.
func (r *PGRepository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateUser inserts a new user. Usernames are lower-cased on the way in.
func (r *PGRepository) CreateUser(ctx context.Context, u User) (*User, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (name, username, email, password_hash, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now(), now())
		 RETURNING `+userColumns,
		u.Name, strings.ToLower(strings.TrimSpace(u.Username)), u.Email, u.PasswordHash, u.IsActive)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, shared.ErrDuplicate
		}
		return nil, err
	}
	return created, nil
}

// UpdateUser changes a user's profile fields and returns the stored row.
func (r *PGRepository) UpdateUser(ctx context.Context, id int64, name, email string) (*User, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE users SET name = $2, email = $3, updated_at = now() WHERE id = $1
		 RETURNING `+userColumns, id, name, email)
	updated, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, shared.ErrDuplicate
		}
		return nil, err
	}
	return updated, nil
}

// SetActive flips the active flag for a user.
func (r *PGRepository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteUser removes a user together with its role bindings and tokens in one
// transaction, leaving no dangling pivot rows.
func (r *PGRepository) DeleteUser(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM access_tokens WHERE user_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// InsertToken persists a new access token record.
func (r *PGRepository) InsertToken(ctx context.Context, t AccessToken) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO access_tokens (id, user_id, token_hash, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.UserID, t.TokenHash, t.CreatedAt, t.ExpiresAt)
	return err
}

// FindToken fetches a token record by ID.
func (r *PGRepository) FindToken(ctx context.Context, id string) (*AccessToken, error) {
	var t AccessToken
	var lastUsed *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, token_hash, created_at, expires_at, last_used_at
		 FROM access_tokens WHERE id = $1`, id).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &lastUsed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if lastUsed != nil {
		t.LastUsedAt = *lastUsed
	}
	return &t, nil
}

// TouchToken records the last use timestamp.
func (r *PGRepository) TouchToken(ctx context.Context, id string, usedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE access_tokens SET last_used_at = $2 WHERE id = $1`, id, usedAt)
	return err
}

// DeleteToken revokes a single token.
func (r *PGRepository) DeleteToken(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM access_tokens WHERE id = $1`, id)
	return err
}

// DeleteTokensForUser revokes every token held by a user.
func (r *PGRepository) DeleteTokensForUser(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM access_tokens WHERE user_id = $1`, userID)
	return err
}

// DeleteExpiredTokens prunes tokens past their lifetime. Called by the worker.
func (r *PGRepository) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM access_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Repository = (*PGRepository)(nil)
