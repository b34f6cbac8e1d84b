package progress

import (
	"context"
	"time"

	"github.com/gate-tracker/gate_tracker/internal/apperr"
	"github.com/gate-tracker/gate_tracker/internal/validation"
)

// DayInput is a study-hours save request.
type DayInput struct {
	Year  int
	Month int
	Day   int
	Hours float64
}

// TopicInput is a curriculum save request.
type TopicInput struct {
	Subject string
	Topic   string
	Flags
}

// Service validates requests and forwards them to a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a progress service over store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithClock overrides the clock, used in tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// SaveDay stores the hours for a day, replacing any earlier value. Users
// are held to less than 24 hours a day.
func (s *Service) SaveDay(ctx context.Context, a Actor, in DayInput) (StudyHours, error) {
	if err := checkActor(a); err != nil {
		return StudyHours{}, err
	}
	if err := validation.Day(in.Year, in.Month, in.Day); err != nil {
		return StudyHours{}, err
	}
	if err := validation.Hours(in.Hours, a.Kind == KindUser); err != nil {
		return StudyHours{}, err
	}
	entry, err := s.store.UpsertStudyHours(ctx, a, StudyHours{Year: in.Year, Month: in.Month, Day: in.Day, Hours: in.Hours}, s.now())
	if err != nil {
		return StudyHours{}, apperr.Internal("save study hours", err)
	}
	return entry, nil
}

// Month lists one month of study hours ordered by day.
func (s *Service) Month(ctx context.Context, a Actor, year, month int) ([]StudyHours, error) {
	if err := checkActor(a); err != nil {
		return nil, err
	}
	if err := validation.Month(year, month); err != nil {
		return nil, err
	}
	entries, err := s.store.ListMonth(ctx, a, year, month)
	if err != nil {
		return nil, apperr.Internal("list month", err)
	}
	return entries, nil
}

// StudyHours lists every entry for the actor.
func (s *Service) StudyHours(ctx context.Context, a Actor) ([]StudyHours, error) {
	if err := checkActor(a); err != nil {
		return nil, err
	}
	entries, err := s.store.ListStudyHours(ctx, a)
	if err != nil {
		return nil, apperr.Internal("list study hours", err)
	}
	return entries, nil
}

// SaveTopic overwrites all three flags of a topic.
func (s *Service) SaveTopic(ctx context.Context, a Actor, in TopicInput) (Curriculum, error) {
	if err := checkActor(a); err != nil {
		return Curriculum{}, err
	}
	subject, err := validation.Label("subject", in.Subject)
	if err != nil {
		return Curriculum{}, err
	}
	topic, err := validation.Label("topic", in.Topic)
	if err != nil {
		return Curriculum{}, err
	}
	entry, err := s.store.UpsertCurriculum(ctx, a, Curriculum{Subject: subject, Topic: topic, Flags: in.Flags}, s.now())
	if err != nil {
		return Curriculum{}, apperr.Internal("save curriculum", err)
	}
	return entry, nil
}

// Curriculum lists topic progress ordered by subject and topic.
func (s *Service) Curriculum(ctx context.Context, a Actor) ([]Curriculum, error) {
	if err := checkActor(a); err != nil {
		return nil, err
	}
	entries, err := s.store.ListCurriculum(ctx, a)
	if err != nil {
		return nil, apperr.Internal("list curriculum", err)
	}
	return entries, nil
}

// Subject returns the topics of one subject with their totals. A subject
// with no saved topics is not found.
func (s *Service) Subject(ctx context.Context, a Actor, raw string) (SubjectProgress, error) {
	subject, err := validation.Label("subject", raw)
	if err != nil {
		return SubjectProgress{}, err
	}
	entries, err := s.Curriculum(ctx, a)
	if err != nil {
		return SubjectProgress{}, err
	}
	out := SubjectProgress{Subject: subject, Topics: make([]Curriculum, 0)}
	for _, e := range entries {
		if e.Subject != subject {
			continue
		}
		out.Topics = append(out.Topics, e)
		if e.Watched {
			out.Watched++
		}
		if e.Revised {
			out.Revised++
		}
		if e.Tested {
			out.Tested++
		}
	}
	if len(out.Topics) == 0 {
		return SubjectProgress{}, apperr.New(apperr.KindNotFound, "No curriculum data found for subject: "+subject)
	}
	return out, nil
}

// Grouped returns curriculum progress keyed by subject then topic.
func (s *Service) Grouped(ctx context.Context, a Actor) (Grouped, error) {
	entries, err := s.Curriculum(ctx, a)
	if err != nil {
		return nil, err
	}
	out := make(Grouped)
	for _, e := range entries {
		topics, ok := out[e.Subject]
		if !ok {
			topics = make(map[string]Flags)
			out[e.Subject] = topics
		}
		topics[e.Topic] = e.Flags
	}
	return out, nil
}

// Export returns every row owned by the actor with totals.
func (s *Service) Export(ctx context.Context, a Actor) (Export, error) {
	hours, err := s.StudyHours(ctx, a)
	if err != nil {
		return Export{}, err
	}
	topics, err := s.Curriculum(ctx, a)
	if err != nil {
		return Export{}, err
	}

	totals := Totals{Days: len(hours), Topics: len(topics)}
	for _, h := range hours {
		totals.Hours += h.Hours
	}
	for _, t := range topics {
		if t.Tested {
			totals.Completed++
		}
	}
	return Export{StudyHours: hours, Curriculum: topics, Totals: totals}, nil
}

// DeleteStudyHours removes the actor's study hours and keeps curriculum rows.
func (s *Service) DeleteStudyHours(ctx context.Context, a Actor) (int64, error) {
	if err := checkActor(a); err != nil {
		return 0, err
	}
	n, err := s.store.DeleteStudyHours(ctx, a)
	if err != nil {
		return 0, apperr.Internal("delete study hours", err)
	}
	return n, nil
}

// DeleteAll removes every row owned by the actor.
func (s *Service) DeleteAll(ctx context.Context, a Actor) (Deleted, error) {
	if err := checkActor(a); err != nil {
		return Deleted{}, err
	}
	deleted, err := s.store.DeleteAll(ctx, a)
	if err != nil {
		return Deleted{}, apperr.Internal("delete progress", err)
	}
	return deleted, nil
}

func checkActor(a Actor) error {
	if a.ID == "" || (a.Kind != KindUser && a.Kind != KindVisitor) {
		return apperr.New(apperr.KindUnauthorized, "Unknown actor")
	}
	return nil
}
