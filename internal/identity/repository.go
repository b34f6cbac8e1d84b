package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when no user matches.
	ErrNotFound = errors.New("identity: user not found")
	// ErrEmailTaken is returned when the email is already registered.
	ErrEmailTaken = errors.New("identity: email already registered")
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	MarkVerified(ctx context.Context, id string, at time.Time) error
	UpdateCredentials(ctx context.Context, id, name string, hash []byte, at time.Time) error
}

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var userColumns = []string{"id", "email", "name", "password_hash", "verified", "created_at", "updated_at"}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db      pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPostgresRepository builds a Postgres-backed identity repository over a
// pool, a transaction or a mock.
func NewPostgresRepository(db pgExecutor) *PostgresRepository {
	return &PostgresRepository{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return fmt.Errorf("parse user id: %w", err)
	}
	stmt, args, err := r.builder.Insert("users").
		Columns(userColumns...).
		Values(userID, user.Email, user.Name, string(user.PasswordHash), user.Verified, user.CreatedAt.UTC(), user.UpdatedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}
	if _, err := r.db.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByEmail fetches a user by normalized email.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.findOne(ctx, squirrel.Eq{"email": email})
}

// FindByID fetches a user by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	return r.findOne(ctx, squirrel.Eq{"id": userID})
}

func (r *PostgresRepository) findOne(ctx context.Context, where squirrel.Eq) (User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From("users").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return User{}, fmt.Errorf("build select user sql: %w", err)
	}

	var (
		user User
		hash string
	)
	row := r.db.QueryRow(ctx, stmt, args...)
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &hash, &user.Verified, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	user.PasswordHash = []byte(hash)
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

// MarkVerified flags the user as verified.
func (r *PostgresRepository) MarkVerified(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, map[string]any{"verified": true, "updated_at": at.UTC()})
}

// UpdateCredentials replaces the name and password hash.
func (r *PostgresRepository) UpdateCredentials(ctx context.Context, id, name string, hash []byte, at time.Time) error {
	return r.update(ctx, id, map[string]any{"name": name, "password_hash": string(hash), "updated_at": at.UTC()})
}

func (r *PostgresRepository) update(ctx context.Context, id string, set map[string]any) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	stmt, args, err := r.builder.Update("users").
		SetMap(set).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}
	cmd, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
