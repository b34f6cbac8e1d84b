package progress

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

type studyHoursRow struct {
	Year      int       `db:"year"`
	Month     int       `db:"month"`
	Day       int       `db:"day"`
	Hours     float64   `db:"hours"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type curriculumRow struct {
	Subject   string    `db:"subject"`
	Topic     string    `db:"topic"`
	Watched   bool      `db:"watched"`
	Revised   bool      `db:"revised"`
	Tested    bool      `db:"tested"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r studyHoursRow) entry() StudyHours {
	return normalizeHours(StudyHours{Year: r.Year, Month: r.Month, Day: r.Day, Hours: r.Hours, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt})
}

func (r curriculumRow) entry() Curriculum {
	return normalizeTopic(Curriculum{
		Subject:   r.Subject,
		Topic:     r.Topic,
		Flags:     Flags{Watched: r.Watched, Revised: r.Revised, Tested: r.Tested},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	})
}

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	db *sqlx.DB
	q  queries
}

// NewSQLiteStore builds a SQLite-backed progress store.
func NewSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{
		db: db,
		q:  queries{b: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)},
	}
}

func (s *SQLiteStore) UpsertStudyHours(ctx context.Context, a Actor, e StudyHours, at time.Time) (StudyHours, error) {
	upsert, upsertArgs, err := s.q.upsertStudyHours(a, e, at.UTC(), false)
	if err != nil {
		return StudyHours{}, fmt.Errorf("build upsert study hours sql: %w", err)
	}
	sel, selArgs, err := s.q.selectStudyHour(a, e.Year, e.Month, e.Day)
	if err != nil {
		return StudyHours{}, fmt.Errorf("build select study hours sql: %w", err)
	}

	var row studyHoursRow
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, upsert, upsertArgs...); err != nil {
			return fmt.Errorf("upsert study hours: %w", err)
		}
		return tx.GetContext(ctx, &row, sel, selArgs...)
	})
	if err != nil {
		return StudyHours{}, err
	}
	return row.entry(), nil
}

func (s *SQLiteStore) ListMonth(ctx context.Context, a Actor, year, month int) ([]StudyHours, error) {
	stmt, args, err := s.q.listMonth(a, year, month)
	if err != nil {
		return nil, fmt.Errorf("build list month sql: %w", err)
	}
	return s.selectHours(ctx, stmt, args)
}

func (s *SQLiteStore) ListStudyHours(ctx context.Context, a Actor) ([]StudyHours, error) {
	stmt, args, err := s.q.listStudyHours(a)
	if err != nil {
		return nil, fmt.Errorf("build list study hours sql: %w", err)
	}
	return s.selectHours(ctx, stmt, args)
}

func (s *SQLiteStore) selectHours(ctx context.Context, stmt string, args []any) ([]StudyHours, error) {
	var rows []studyHoursRow
	if err := s.db.SelectContext(ctx, &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("select study hours: %w", err)
	}
	out := make([]StudyHours, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entry())
	}
	return out, nil
}

func (s *SQLiteStore) UpsertCurriculum(ctx context.Context, a Actor, e Curriculum, at time.Time) (Curriculum, error) {
	upsert, upsertArgs, err := s.q.upsertCurriculum(a, e, at.UTC(), false)
	if err != nil {
		return Curriculum{}, fmt.Errorf("build upsert curriculum sql: %w", err)
	}
	sel, selArgs, err := s.q.selectTopic(a, e.Subject, e.Topic)
	if err != nil {
		return Curriculum{}, fmt.Errorf("build select curriculum sql: %w", err)
	}

	var row curriculumRow
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, upsert, upsertArgs...); err != nil {
			return fmt.Errorf("upsert curriculum: %w", err)
		}
		return tx.GetContext(ctx, &row, sel, selArgs...)
	})
	if err != nil {
		return Curriculum{}, err
	}
	return row.entry(), nil
}

func (s *SQLiteStore) ListCurriculum(ctx context.Context, a Actor) ([]Curriculum, error) {
	stmt, args, err := s.q.listCurriculum(a)
	if err != nil {
		return nil, fmt.Errorf("build list curriculum sql: %w", err)
	}
	var rows []curriculumRow
	if err := s.db.SelectContext(ctx, &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("select curriculum: %w", err)
	}
	out := make([]Curriculum, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entry())
	}
	return out, nil
}

func (s *SQLiteStore) DeleteStudyHours(ctx context.Context, a Actor) (int64, error) {
	stmt, args, err := s.q.deleteFrom(studyHoursTable, a)
	if err != nil {
		return 0, fmt.Errorf("build delete sql: %w", err)
	}
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete study hours: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) DeleteAll(ctx context.Context, a Actor) (Deleted, error) {
	var deleted Deleted
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, target := range []struct {
			table string
			count *int64
		}{
			{studyHoursTable, &deleted.StudyHours},
			{curriculumTable, &deleted.Curriculum},
		} {
			stmt, args, err := s.q.deleteFrom(target.table, a)
			if err != nil {
				return fmt.Errorf("build delete sql: %w", err)
			}
			res, err := tx.ExecContext(ctx, stmt, args...)
			if err != nil {
				return fmt.Errorf("delete from %s: %w", target.table, err)
			}
			if *target.count, err = res.RowsAffected(); err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Deleted{}, err
	}
	return deleted, nil
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
