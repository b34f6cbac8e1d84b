package visitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no visitor matches.
var ErrNotFound = errors.New("visitor: not found")

// Repository persists visitors.
type Repository interface {
	// Touch creates the visitor or refreshes last_accessed. created reports
	// whether the row is new.
	Touch(ctx context.Context, id string, at time.Time) (v Visitor, created bool, err error)
	Get(ctx context.Context, id string) (Visitor, error)
	// Delete removes the visitor. Deleting a missing visitor is not an error.
	Delete(ctx context.Context, id string) (bool, error)
}

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db      pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPostgresRepository builds a Postgres-backed visitor repository.
func NewPostgresRepository(db pgExecutor) *PostgresRepository {
	return &PostgresRepository{db: db, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

func (r *PostgresRepository) Touch(ctx context.Context, id string, at time.Time) (Visitor, bool, error) {
	stmt, args, err := r.builder.Insert("visitors").
		Columns("id", "created_at", "last_accessed").
		Values(id, at.UTC(), at.UTC()).
		Suffix("ON CONFLICT (id) DO UPDATE SET last_accessed = excluded.last_accessed RETURNING id, created_at, last_accessed, (xmax = 0) AS inserted").
		ToSql()
	if err != nil {
		return Visitor{}, false, fmt.Errorf("build touch visitor sql: %w", err)
	}
	var (
		v       Visitor
		created bool
	)
	if err := r.db.QueryRow(ctx, stmt, args...).Scan(&v.ID, &v.CreatedAt, &v.LastAccessed, &created); err != nil {
		return Visitor{}, false, fmt.Errorf("touch visitor: %w", err)
	}
	v.CreatedAt = v.CreatedAt.UTC()
	v.LastAccessed = v.LastAccessed.UTC()
	return v, created, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Visitor, error) {
	stmt, args, err := r.builder.Select("id", "created_at", "last_accessed").
		From("visitors").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return Visitor{}, fmt.Errorf("build select visitor sql: %w", err)
	}
	var v Visitor
	if err := r.db.QueryRow(ctx, stmt, args...).Scan(&v.ID, &v.CreatedAt, &v.LastAccessed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Visitor{}, ErrNotFound
		}
		return Visitor{}, fmt.Errorf("select visitor: %w", err)
	}
	v.CreatedAt = v.CreatedAt.UTC()
	v.LastAccessed = v.LastAccessed.UTC()
	return v, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	stmt, args, err := r.builder.Delete("visitors").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete visitor sql: %w", err)
	}
	cmd, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("delete visitor: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}
