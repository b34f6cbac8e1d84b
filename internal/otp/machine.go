package otp

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/gate-tracker/gate_tracker/internal/apperr"
)

const (
	// DefaultTTL is how long an issued code stays valid.
	DefaultTTL = 10 * time.Minute
	// DefaultMaxAttempts is the number of wrong codes that locks a ticket.
	DefaultMaxAttempts = 3

	codeDigits = 6
)

var codeSpace = big.NewInt(1_000_000)

// Machine drives ticket state transitions over a Store.
type Machine struct {
	store       Store
	ttl         time.Duration
	maxAttempts int
	secret      []byte
	now         func() time.Time
	random      io.Reader
}

// NewMachine builds a state machine. Non-positive ttl or maxAttempts fall
// back to the defaults.
func NewMachine(store Store, ttl time.Duration, maxAttempts int) *Machine {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Machine{store: store, ttl: ttl, maxAttempts: maxAttempts, now: time.Now, random: rand.Reader}
}

// WithClock overrides the clock, used in tests.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	if now != nil {
		m.now = now
	}
	return m
}

// WithSecret sets the key codes are hashed with before they reach the
// store. Every instance sharing a store must use the same secret.
func (m *Machine) WithSecret(secret []byte) *Machine {
	m.secret = append([]byte(nil), secret...)
	return m
}

// MaxAttempts returns the configured attempt limit.
func (m *Machine) MaxAttempts() int { return m.maxAttempts }

// TTL returns how long issued codes stay valid.
func (m *Machine) TTL() time.Duration { return m.ttl }

// Issue creates a fresh ticket for email bound to userID, replacing any
// existing one. The old code stops working immediately.
func (m *Machine) Issue(ctx context.Context, email, userID string) (Ticket, error) {
	return m.issue(ctx, email, userID, "")
}

func (m *Machine) issue(ctx context.Context, email, userID, superseded string) (Ticket, error) {
	code, err := m.generateCode()
	if err != nil {
		return Ticket{}, apperr.Internal("generate otp", err)
	}
	now := m.now().UTC()
	t := Ticket{
		Email:          email,
		Code:           code,
		CodeHash:       m.hash(email, code),
		SupersededHash: superseded,
		UserID:         userID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, t); err != nil {
		return Ticket{}, apperr.Internal("store otp", err)
	}
	return t, nil
}

// Resend re-issues a code for an email that already holds a ticket or a
// lock marker. The replaced code is remembered so a late verify with it is
// reported as replaced rather than wrong.
func (m *Machine) Resend(ctx context.Context, email string) (Ticket, error) {
	existing, err := m.store.Get(ctx, email)
	if errors.Is(err, ErrTicketNotFound) {
		return Ticket{}, apperr.New(apperr.KindNotFound, "No pending registration found. Please register again.")
	}
	if err != nil {
		return Ticket{}, apperr.Internal("load otp", err)
	}
	return m.issue(ctx, email, existing.UserID, existing.CodeHash)
}

// InvalidCodeError reports a wrong code with the attempts left.
type InvalidCodeError struct {
	Remaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("Invalid OTP. %d attempts remaining.", e.Remaining)
}

// Verify checks code against the ticket for email. On success the ticket is
// consumed and returned.
func (m *Machine) Verify(ctx context.Context, email, code string) (Ticket, error) {
	res, err := m.store.Check(ctx, email, m.hash(email, code), m.now(), m.maxAttempts)
	if errors.Is(err, ErrTicketNotFound) {
		return Ticket{}, apperr.New(apperr.KindNotFound, "OTP not found. Please register again.")
	}
	if err != nil {
		return Ticket{}, apperr.Internal("check otp", err)
	}

	switch res.Outcome {
	case OutcomeMatched:
		return res.Ticket, nil
	case OutcomeLocked:
		return Ticket{}, apperr.New(apperr.KindLocked, "Too many failed attempts. Please request a new code.")
	case OutcomeExpired:
		return Ticket{}, apperr.New(apperr.KindExpired, "OTP expired. Please request a new code.")
	case OutcomeSuperseded:
		return Ticket{}, apperr.New(apperr.KindNotFound, "This code was replaced by a newer one. Use the latest code sent to your email.")
	}

	remaining := m.maxAttempts - res.Attempts
	return Ticket{}, &apperr.Error{
		Kind:    apperr.KindValidation,
		Field:   "otp",
		Message: fmt.Sprintf("Invalid OTP. %d attempts remaining.", remaining),
		Err:     &InvalidCodeError{Remaining: remaining},
	}
}

// hash binds the code to the email so equal codes for different tickets
// do not share a hash.
func (m *Machine) hash(email, code string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(email))
	mac.Write([]byte{0})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

func (m *Machine) generateCode() (string, error) {
	n, err := rand.Int(m.random, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
