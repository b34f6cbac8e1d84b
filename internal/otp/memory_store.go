package otp

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local ticket table. Tickets are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	tickets map[string]Ticket
	now     func() time.Time
}

// NewMemoryStore builds an empty in-memory ticket store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[string]Ticket), now: time.Now}
}

// WithClock overrides the clock used by Sweep and Get, used in tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *MemoryStore) Save(_ context.Context, t Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Code = ""
	s.tickets[t.Email] = t
	return nil
}

func (s *MemoryStore) Get(_ context.Context, email string) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[email]
	if !ok || s.pastRetention(t) {
		return Ticket{}, ErrTicketNotFound
	}
	return t, nil
}

// Check holds the table lock across the whole compare-and-count step.
func (s *MemoryStore) Check(_ context.Context, email, codeHash string, now time.Time, maxAttempts int) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[email]
	if !ok || s.pastRetention(t) {
		return Attempt{}, ErrTicketNotFound
	}

	switch {
	case t.Locked:
		return Attempt{Outcome: OutcomeLocked, Attempts: t.Attempts}, nil
	case t.Expired(now):
		delete(s.tickets, email)
		return Attempt{Outcome: OutcomeExpired, Attempts: t.Attempts}, nil
	case hashEqual(t.CodeHash, codeHash):
		delete(s.tickets, email)
		return Attempt{Outcome: OutcomeMatched, Ticket: t, Attempts: t.Attempts}, nil
	case hashEqual(t.SupersededHash, codeHash):
		return Attempt{Outcome: OutcomeSuperseded, Attempts: t.Attempts}, nil
	}

	t.Attempts++
	if t.Attempts >= maxAttempts {
		t.Locked = true
		t.CodeHash = ""
		t.SupersededHash = ""
		s.tickets[email] = t
		return Attempt{Outcome: OutcomeLocked, Attempts: t.Attempts}, nil
	}
	s.tickets[email] = t
	return Attempt{Outcome: OutcomeMismatch, Attempts: t.Attempts}, nil
}

func (s *MemoryStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tickets, email)
	return nil
}

// Sweep drops tickets past their retention window and returns how many
// were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for email, t := range s.tickets {
		if s.pastRetention(t) {
			delete(s.tickets, email)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored tickets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

func (s *MemoryStore) pastRetention(t Ticket) bool {
	return s.now().After(t.ExpiresAt.Add(Retention))
}
