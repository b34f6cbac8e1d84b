package progress

import (
	"context"
	"time"

	squirrel "github.com/Masterminds/squirrel"
)

// Store persists progress rows. Upserts are single atomic statements keyed
// on the natural key and overwrite every payload field.
type Store interface {
	UpsertStudyHours(ctx context.Context, a Actor, e StudyHours, at time.Time) (StudyHours, error)
	// ListMonth returns entries for one month ordered by day.
	ListMonth(ctx context.Context, a Actor, year, month int) ([]StudyHours, error)
	// ListStudyHours returns every entry, newest month first and days ascending.
	ListStudyHours(ctx context.Context, a Actor) ([]StudyHours, error)
	UpsertCurriculum(ctx context.Context, a Actor, e Curriculum, at time.Time) (Curriculum, error)
	// ListCurriculum returns entries ordered by subject then topic.
	ListCurriculum(ctx context.Context, a Actor) ([]Curriculum, error)
	// DeleteStudyHours removes a's study-hours rows and returns how many.
	DeleteStudyHours(ctx context.Context, a Actor) (int64, error)
	// DeleteAll removes every row owned by a in one transaction.
	DeleteAll(ctx context.Context, a Actor) (Deleted, error)
}

const (
	studyHoursTable = "study_hours"
	curriculumTable = "curriculum_progress"
)

var (
	studyHoursColumns = []string{"year", "month", "day", "hours", "created_at", "updated_at"}
	curriculumColumns = []string{"subject", "topic", "watched", "revised", "tested", "created_at", "updated_at"}
)

// queries builds the SQL shared by the postgres and sqlite stores. Only the
// placeholder format differs between them.
type queries struct {
	b squirrel.StatementBuilderType
}

func ownedBy(a Actor) squirrel.Eq {
	return squirrel.Eq{"actor_kind": string(a.Kind), "actor_id": a.ID}
}

func (q queries) upsertStudyHours(a Actor, e StudyHours, at time.Time, returning bool) (string, []any, error) {
	ins := q.b.Insert(studyHoursTable).
		Columns("actor_kind", "actor_id", "year", "month", "day", "hours", "created_at", "updated_at").
		Values(string(a.Kind), a.ID, e.Year, e.Month, e.Day, e.Hours, at, at).
		Suffix("ON CONFLICT (actor_kind, actor_id, year, month, day) DO UPDATE SET hours = excluded.hours, updated_at = excluded.updated_at")
	if returning {
		ins = ins.Suffix("RETURNING year, month, day, hours, created_at, updated_at")
	}
	return ins.ToSql()
}

func (q queries) selectStudyHour(a Actor, year, month, day int) (string, []any, error) {
	return q.b.Select(studyHoursColumns...).
		From(studyHoursTable).
		Where(ownedBy(a)).
		Where(squirrel.Eq{"year": year, "month": month, "day": day}).
		ToSql()
}

func (q queries) listMonth(a Actor, year, month int) (string, []any, error) {
	return q.b.Select(studyHoursColumns...).
		From(studyHoursTable).
		Where(ownedBy(a)).
		Where(squirrel.Eq{"year": year, "month": month}).
		OrderBy("day ASC").
		ToSql()
}

func (q queries) listStudyHours(a Actor) (string, []any, error) {
	return q.b.Select(studyHoursColumns...).
		From(studyHoursTable).
		Where(ownedBy(a)).
		OrderBy("year DESC", "month DESC", "day ASC").
		ToSql()
}

func (q queries) upsertCurriculum(a Actor, e Curriculum, at time.Time, returning bool) (string, []any, error) {
	ins := q.b.Insert(curriculumTable).
		Columns("actor_kind", "actor_id", "subject", "topic", "watched", "revised", "tested", "created_at", "updated_at").
		Values(string(a.Kind), a.ID, e.Subject, e.Topic, e.Watched, e.Revised, e.Tested, at, at).
		Suffix("ON CONFLICT (actor_kind, actor_id, subject, topic) DO UPDATE SET watched = excluded.watched, revised = excluded.revised, tested = excluded.tested, updated_at = excluded.updated_at")
	if returning {
		ins = ins.Suffix("RETURNING subject, topic, watched, revised, tested, created_at, updated_at")
	}
	return ins.ToSql()
}

func (q queries) selectTopic(a Actor, subject, topic string) (string, []any, error) {
	return q.b.Select(curriculumColumns...).
		From(curriculumTable).
		Where(ownedBy(a)).
		Where(squirrel.Eq{"subject": subject, "topic": topic}).
		ToSql()
}

func (q queries) listCurriculum(a Actor) (string, []any, error) {
	return q.b.Select(curriculumColumns...).
		From(curriculumTable).
		Where(ownedBy(a)).
		OrderBy("subject ASC", "topic ASC").
		ToSql()
}

func (q queries) deleteFrom(table string, a Actor) (string, []any, error) {
	return q.b.Delete(table).Where(ownedBy(a)).ToSql()
}
