package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

type userRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	PasswordHash string    `db:"password_hash"`
	Verified     bool      `db:"verified"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r userRow) user() User {
	return User{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		PasswordHash: []byte(r.PasswordHash),
		Verified:     r.Verified,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

// SQLiteRepository implements Repository on a local SQLite file.
type SQLiteRepository struct {
	db *sqlx.DB
}

// NewSQLiteRepository builds a SQLite-backed identity repository.
func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, user User) error {
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO users (id, email, name, password_hash, verified, created_at, updated_at)
        VALUES (:id, :email, :name, :password_hash, :verified, :created_at, :updated_at)`, userRow{
		ID:           user.ID,
		Email:        user.Email,
		Name:         user.Name,
		PasswordHash: string(user.PasswordHash),
		Verified:     user.Verified,
		CreatedAt:    user.CreatedAt.UTC(),
		UpdatedAt:    user.UpdatedAt.UTC(),
	})
	if err != nil {
		var sqErr sqlite3.Error
		if errors.As(err, &sqErr) && sqErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.get(ctx, `SELECT * FROM users WHERE email = ?`, email)
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id string) (User, error) {
	return r.get(ctx, `SELECT * FROM users WHERE id = ?`, id)
}

func (r *SQLiteRepository) get(ctx context.Context, query string, arg any) (User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("select user: %w", err)
	}
	return row.user(), nil
}

func (r *SQLiteRepository) MarkVerified(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET verified = TRUE, updated_at = ? WHERE id = ?`, at.UTC(), id)
	return affectedOne(res, err)
}

func (r *SQLiteRepository) UpdateCredentials(ctx context.Context, id, name string, hash []byte, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET name = ?, password_hash = ?, updated_at = ? WHERE id = ?`, name, string(hash), at.UTC(), id)
	return affectedOne(res, err)
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
