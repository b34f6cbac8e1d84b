package progress

import (
	"context"
	"sort"
	"sync"
	"time"
)

type dayKey struct {
	actor            Actor
	year, month, day int
}

type topicKey struct {
	actor          Actor
	subject, topic string
}

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	hours map[dayKey]StudyHours
	topic map[topicKey]Curriculum
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hours: make(map[dayKey]StudyHours),
		topic: make(map[topicKey]Curriculum),
	}
}

func (s *MemoryStore) UpsertStudyHours(_ context.Context, a Actor, e StudyHours, at time.Time) (StudyHours, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at = at.UTC()
	key := dayKey{actor: a, year: e.Year, month: e.Month, day: e.Day}
	row, ok := s.hours[key]
	if !ok {
		row = StudyHours{Year: e.Year, Month: e.Month, Day: e.Day, CreatedAt: at}
	}
	row.Hours = e.Hours
	row.UpdatedAt = at
	s.hours[key] = row
	return row, nil
}

func (s *MemoryStore) ListMonth(_ context.Context, a Actor, year, month int) ([]StudyHours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StudyHours, 0)
	for k, v := range s.hours {
		if k.actor == a && k.year == year && k.month == month {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (s *MemoryStore) ListStudyHours(_ context.Context, a Actor) ([]StudyHours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StudyHours, 0)
	for k, v := range s.hours {
		if k.actor == a {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		if out[i].Month != out[j].Month {
			return out[i].Month > out[j].Month
		}
		return out[i].Day < out[j].Day
	})
	return out, nil
}

func (s *MemoryStore) UpsertCurriculum(_ context.Context, a Actor, e Curriculum, at time.Time) (Curriculum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at = at.UTC()
	key := topicKey{actor: a, subject: e.Subject, topic: e.Topic}
	row, ok := s.topic[key]
	if !ok {
		row = Curriculum{Subject: e.Subject, Topic: e.Topic, CreatedAt: at}
	}
	row.Flags = e.Flags
	row.UpdatedAt = at
	s.topic[key] = row
	return row, nil
}

func (s *MemoryStore) ListCurriculum(_ context.Context, a Actor) ([]Curriculum, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Curriculum, 0)
	for k, v := range s.topic {
		if k.actor == a {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Subject != out[j].Subject {
			return out[i].Subject < out[j].Subject
		}
		return out[i].Topic < out[j].Topic
	})
	return out, nil
}

func (s *MemoryStore) DeleteStudyHours(_ context.Context, a Actor) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.hours {
		if k.actor == a {
			delete(s.hours, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteAll(_ context.Context, a Actor) (Deleted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted Deleted
	for k := range s.hours {
		if k.actor == a {
			delete(s.hours, k)
			deleted.StudyHours++
		}
	}
	for k := range s.topic {
		if k.actor == a {
			delete(s.topic, k)
			deleted.Curriculum++
		}
	}
	return deleted, nil
}
