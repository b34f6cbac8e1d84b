package visitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type visitorRow struct {
	ID           string    `db:"id"`
	CreatedAt    time.Time `db:"created_at"`
	LastAccessed time.Time `db:"last_accessed"`
}

// SQLiteRepository implements Repository on a local SQLite file.
type SQLiteRepository struct {
	db *sqlx.DB
}

// NewSQLiteRepository builds a SQLite-backed visitor repository.
func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Touch(ctx context.Context, id string, at time.Time) (Visitor, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Visitor{}, false, fmt.Errorf("begin touch: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	res, err := tx.ExecContext(ctx, `INSERT INTO visitors (id, created_at, last_accessed) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`, id, at.UTC(), at.UTC())
	if err != nil {
		return Visitor{}, false, fmt.Errorf("insert visitor: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return Visitor{}, false, fmt.Errorf("insert visitor: %w", err)
	}
	if inserted == 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE visitors SET last_accessed = ? WHERE id = ?`, at.UTC(), id); err != nil {
			return Visitor{}, false, fmt.Errorf("touch visitor: %w", err)
		}
	}

	var row visitorRow
	if err := tx.GetContext(ctx, &row, `SELECT id, created_at, last_accessed FROM visitors WHERE id = ?`, id); err != nil {
		return Visitor{}, false, fmt.Errorf("select visitor: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Visitor{}, false, fmt.Errorf("commit touch: %w", err)
	}
	return row.visitor(), inserted == 1, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (Visitor, error) {
	var row visitorRow
	if err := r.db.GetContext(ctx, &row, `SELECT id, created_at, last_accessed FROM visitors WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Visitor{}, ErrNotFound
		}
		return Visitor{}, fmt.Errorf("select visitor: %w", err)
	}
	return row.visitor(), nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM visitors WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete visitor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete visitor: %w", err)
	}
	return n > 0, nil
}

func (r visitorRow) visitor() Visitor {
	return Visitor{ID: r.ID, CreatedAt: r.CreatedAt.UTC(), LastAccessed: r.LastAccessed.UTC()}
}
