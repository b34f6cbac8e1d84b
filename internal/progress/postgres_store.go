package progress

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db pgExecutor
	q  queries
}

// NewPostgresStore builds a Postgres-backed progress store.
func NewPostgresStore(db pgExecutor) *PostgresStore {
	return &PostgresStore{
		db: db,
		q:  queries{b: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)},
	}
}

func (s *PostgresStore) UpsertStudyHours(ctx context.Context, a Actor, e StudyHours, at time.Time) (StudyHours, error) {
	stmt, args, err := s.q.upsertStudyHours(a, e, at.UTC(), true)
	if err != nil {
		return StudyHours{}, fmt.Errorf("build upsert study hours sql: %w", err)
	}
	var out StudyHours
	if err := s.db.QueryRow(ctx, stmt, args...).Scan(&out.Year, &out.Month, &out.Day, &out.Hours, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return StudyHours{}, fmt.Errorf("upsert study hours: %w", err)
	}
	return normalizeHours(out), nil
}

func (s *PostgresStore) ListMonth(ctx context.Context, a Actor, year, month int) ([]StudyHours, error) {
	stmt, args, err := s.q.listMonth(a, year, month)
	if err != nil {
		return nil, fmt.Errorf("build list month sql: %w", err)
	}
	return s.queryHours(ctx, stmt, args)
}

func (s *PostgresStore) ListStudyHours(ctx context.Context, a Actor) ([]StudyHours, error) {
	stmt, args, err := s.q.listStudyHours(a)
	if err != nil {
		return nil, fmt.Errorf("build list study hours sql: %w", err)
	}
	return s.queryHours(ctx, stmt, args)
}

func (s *PostgresStore) queryHours(ctx context.Context, stmt string, args []any) ([]StudyHours, error) {
	rows, err := s.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query study hours: %w", err)
	}
	defer rows.Close()

	out := make([]StudyHours, 0)
	for rows.Next() {
		var e StudyHours
		if err := rows.Scan(&e.Year, &e.Month, &e.Day, &e.Hours, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan study hours: %w", err)
		}
		out = append(out, normalizeHours(e))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate study hours: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpsertCurriculum(ctx context.Context, a Actor, e Curriculum, at time.Time) (Curriculum, error) {
	stmt, args, err := s.q.upsertCurriculum(a, e, at.UTC(), true)
	if err != nil {
		return Curriculum{}, fmt.Errorf("build upsert curriculum sql: %w", err)
	}
	var out Curriculum
	if err := s.db.QueryRow(ctx, stmt, args...).Scan(&out.Subject, &out.Topic, &out.Watched, &out.Revised, &out.Tested, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return Curriculum{}, fmt.Errorf("upsert curriculum: %w", err)
	}
	return normalizeTopic(out), nil
}

func (s *PostgresStore) ListCurriculum(ctx context.Context, a Actor) ([]Curriculum, error) {
	stmt, args, err := s.q.listCurriculum(a)
	if err != nil {
		return nil, fmt.Errorf("build list curriculum sql: %w", err)
	}
	rows, err := s.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query curriculum: %w", err)
	}
	defer rows.Close()

	out := make([]Curriculum, 0)
	for rows.Next() {
		var e Curriculum
		if err := rows.Scan(&e.Subject, &e.Topic, &e.Watched, &e.Revised, &e.Tested, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan curriculum: %w", err)
		}
		out = append(out, normalizeTopic(e))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate curriculum: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteStudyHours(ctx context.Context, a Actor) (int64, error) {
	stmt, args, err := s.q.deleteFrom(studyHoursTable, a)
	if err != nil {
		return 0, fmt.Errorf("build delete sql: %w", err)
	}
	cmd, err := s.db.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete study hours: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (s *PostgresStore) DeleteAll(ctx context.Context, a Actor) (Deleted, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Deleted{}, fmt.Errorf("begin delete: %w", err)
	}

	deleted, err := s.deleteAll(ctx, tx, a)
	if err != nil {
		_ = tx.Rollback(ctx)
		return Deleted{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Deleted{}, fmt.Errorf("commit delete: %w", err)
	}
	return deleted, nil
}

func (s *PostgresStore) deleteAll(ctx context.Context, tx pgx.Tx, a Actor) (Deleted, error) {
	var deleted Deleted
	for _, target := range []struct {
		table string
		count *int64
	}{
		{studyHoursTable, &deleted.StudyHours},
		{curriculumTable, &deleted.Curriculum},
	} {
		stmt, args, err := s.q.deleteFrom(target.table, a)
		if err != nil {
			return Deleted{}, fmt.Errorf("build delete sql: %w", err)
		}
		cmd, err := tx.Exec(ctx, stmt, args...)
		if err != nil {
			return Deleted{}, fmt.Errorf("delete from %s: %w", target.table, err)
		}
		*target.count = cmd.RowsAffected()
	}
	return deleted, nil
}

func normalizeHours(e StudyHours) StudyHours {
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e
}

func normalizeTopic(e Curriculum) Curriculum {
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e
}
