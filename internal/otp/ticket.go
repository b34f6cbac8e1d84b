// Package otp implements the one-time-code registration tickets: issue,
// resend and verify with expiry and an attempt limit.
package otp

import (
	"context"
	"crypto/hmac"
	"errors"
	"time"
)

// ErrTicketNotFound is returned by stores when no ticket exists for an email.
var ErrTicketNotFound = errors.New("otp: ticket not found")

// Retention is how long stores keep a ticket past ExpiresAt, so a late
// verify reports expiry instead of a missing ticket.
const Retention = 5 * time.Minute

// Ticket is a pending registration keyed by normalized email.
type Ticket struct {
	Email string
	// Code is the plaintext code, set only on tickets returned by Issue and
	// Resend for delivery. Stores never persist it.
	Code string
	// CodeHash is the keyed hash of the current code.
	CodeHash string
	// SupersededHash is the hash of the code this ticket replaced on resend.
	SupersededHash string
	UserID         string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	Attempts       int
	// Locked marks a ticket whose attempt limit was reached. It has no code
	// and answers every verify with a lock error until resend or expiry.
	Locked bool
}

// Expired reports whether the ticket is past its expiry at now.
func (t Ticket) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// StorageTTL is the lifetime a store should give t when saved at now.
func (t Ticket) StorageTTL(now time.Time) time.Duration {
	ttl := t.ExpiresAt.Sub(now) + Retention
	if ttl <= 0 {
		return time.Second
	}
	return ttl
}

// Outcome is the result of checking one code against a stored ticket.
type Outcome int

const (
	OutcomeMismatch Outcome = iota
	OutcomeMatched
	OutcomeLocked
	OutcomeExpired
	// OutcomeSuperseded is a code that was valid before the last resend.
	OutcomeSuperseded
)

// Attempt is what a store reports after Check.
type Attempt struct {
	Outcome Outcome
	// Ticket is the consumed ticket on OutcomeMatched.
	Ticket   Ticket
	Attempts int
}

// Store keeps tickets with a TTL derived from ExpiresAt.
type Store interface {
	// Save stores t, replacing any ticket for the same email.
	Save(ctx context.Context, t Ticket) error
	// Get returns the ticket or ErrTicketNotFound.
	Get(ctx context.Context, email string) (Ticket, error)
	// Check compares codeHash with the ticket for email in one atomic step:
	// a locked ticket reports OutcomeLocked, an expired one is deleted, a
	// match is deleted and returned, a superseded code is reported without
	// cost, and anything else increments the attempts and locks the ticket
	// once maxAttempts is reached. Missing tickets yield ErrTicketNotFound.
	Check(ctx context.Context, email, codeHash string, now time.Time, maxAttempts int) (Attempt, error)
	// Delete removes the ticket. Deleting a missing ticket is not an error.
	Delete(ctx context.Context, email string) error
}

// hashEqual compares two hex hashes in constant time. Empty hashes never match.
func hashEqual(stored, candidate string) bool {
	if stored == "" || candidate == "" {
		return false
	}
	return hmac.Equal([]byte(stored), []byte(candidate))
}
