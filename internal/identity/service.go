package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/gate-tracker/gate_tracker/internal/apperr"
	"github.com/gate-tracker/gate_tracker/internal/validation"
)

// DefaultBcryptCost is the work factor for password hashes.
const DefaultBcryptCost = 12

// Service manages the identity lifecycle.
type Service struct {
	repo      Repository
	cost      int
	now       func() time.Time
	dummyHash []byte
}

// NewService creates an identity service hashing at cost. Out-of-range
// costs fall back to DefaultBcryptCost.
func NewService(repo Repository, cost int) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	// Compared against on unknown emails so a miss costs one bcrypt round.
	dummy, _ := bcrypt.GenerateFromPassword([]byte("placeholder-password"), cost)
	return &Service{repo: repo, cost: cost, now: time.Now, dummyHash: dummy}
}

// WithClock overrides the clock, used in tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Register validates and stores a new user with a hashed password.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	email, err := validation.Email(reg.Email)
	if err != nil {
		return User{}, err
	}
	if err := validation.Password(reg.Password); err != nil {
		return User{}, err
	}
	name, err := validation.Name(reg.Name)
	if err != nil {
		return User{}, err
	}

	existing, err := s.repo.FindByEmail(ctx, email)
	replace := false
	switch {
	case err == nil:
		if existing.Verified || !reg.ReplaceUnverified {
			return User{}, apperr.New(apperr.KindConflict, "This email is already registered. Please login instead.")
		}
		replace = true
	case errors.Is(err, ErrNotFound):
	default:
		return User{}, apperr.Internal("find user", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return User{}, apperr.Internal("hash password", err)
	}
	now := s.now().UTC()

	if replace {
		if err := s.repo.UpdateCredentials(ctx, existing.ID, name, hash, now); err != nil {
			return User{}, apperr.Internal("update user", err)
		}
		existing.Name = name
		existing.PasswordHash = hash
		existing.UpdatedAt = now
		return existing, nil
	}

	user := User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Verified:     reg.Verified,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return User{}, apperr.New(apperr.KindConflict, "This email is already registered. Please login instead.")
		}
		return User{}, apperr.Internal("create user", err)
	}
	return user, nil
}

// Authenticate checks an email and password. Unknown emails and wrong
// passwords return the same error.
func (s *Service) Authenticate(ctx context.Context, rawEmail, password string) (User, error) {
	email, err := validation.Email(rawEmail)
	if err != nil {
		return User{}, err
	}
	if password == "" {
		return User{}, apperr.Validation("password", "Password is required")
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return User{}, invalidCredentials()
	}
	if err != nil {
		return User{}, apperr.Internal("find user", err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return User{}, invalidCredentials()
	}
	return user, nil
}

// FindByEmail returns the user registered under rawEmail after
// normalization.
func (s *Service) FindByEmail(ctx context.Context, rawEmail string) (User, error) {
	email, err := validation.Email(rawEmail)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return User{}, apperr.New(apperr.KindNotFound, "User not found")
	}
	if err != nil {
		return User{}, apperr.Internal("find user", err)
	}
	return user, nil
}

// Get returns the user with id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return User{}, apperr.New(apperr.KindNotFound, "User not found")
	}
	if err != nil {
		return User{}, apperr.Internal("find user", err)
	}
	return user, nil
}

// MarkVerified flags the user as verified and returns the updated record.
func (s *Service) MarkVerified(ctx context.Context, id string) (User, error) {
	now := s.now().UTC()
	if err := s.repo.MarkVerified(ctx, id, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, apperr.New(apperr.KindNotFound, "User not found")
		}
		return User{}, apperr.Internal("verify user", err)
	}
	return s.Get(ctx, id)
}

func invalidCredentials() error {
	return apperr.New(apperr.KindInvalidCredentials, "Invalid credentials")
}
