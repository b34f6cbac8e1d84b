package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gate-tracker/gate_tracker/internal/apperr"
	"github.com/gate-tracker/gate_tracker/internal/audit"
	"github.com/gate-tracker/gate_tracker/internal/identity"
	"github.com/gate-tracker/gate_tracker/internal/logging"
	"github.com/gate-tracker/gate_tracker/internal/notification"
	"github.com/gate-tracker/gate_tracker/internal/otp"
)

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingSink) Emit(_ context.Context, e audit.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingSink) last() audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return audit.Event{}
	}
	return r.events[len(r.events)-1]
}

type testEnv struct {
	svc   *Service
	inbox *notification.Recorder
	audit *recordingSink
	clock *time.Time
}

func newTestEnv(t *testing.T, otpMode bool) *testEnv {
	t.Helper()
	now := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	env := &testEnv{inbox: notification.NewRecorder(), audit: &recordingSink{}, clock: &now}
	clock := func() time.Time { return *env.clock }
	env.svc = NewService(Deps{
		Users:           identity.NewService(identity.NewMemoryRepository(), bcrypt.MinCost),
		Tickets:         otp.NewMachine(otp.NewMemoryStore().WithClock(clock), 10*time.Minute, 3).WithClock(clock),
		LoginTickets:    otp.NewMachine(otp.NewMemoryStore().WithClock(clock), 10*time.Minute, 3).WithClock(clock),
		Tokens:          NewIssuer("secret", time.Hour),
		Notifier:        env.inbox,
		Audit:           env.audit,
		Logger:          logging.Discard(),
		OTPRegistration: otpMode,
	})
	return env
}

func (e *testEnv) code(t *testing.T, email string) string {
	t.Helper()
	msg, ok := e.inbox.Last(email)
	if !ok {
		t.Fatalf("no code delivered to %s", email)
	}
	return msg.Body
}

var alice = RegisterInput{Email: "Alice@Example.com", Password: "Str0ng!Pass", Name: "Alice"}

func TestDirectRegisterIssuesToken(t *testing.T) {
	env := newTestEnv(t, false)
	session, err := env.svc.Register(context.Background(), alice)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if session.Token == "" || session.User == nil || !session.User.Verified {
		t.Fatalf("expected verified session, got %+v", session)
	}
	if ev := env.audit.last(); ev.Action != audit.ActionSignup || !ev.Success || ev.Email != "alice@example.com" {
		t.Fatalf("unexpected audit event %+v", ev)
	}

	if _, err := env.svc.Register(context.Background(), alice); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if ev := env.audit.last(); ev.Success {
		t.Fatalf("duplicate signup should audit a failure")
	}
}

func TestLoginIsCaseInsensitiveAndGeneric(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	if _, err := env.svc.Register(ctx, alice); err != nil {
		t.Fatalf("register: %v", err)
	}

	session, err := env.svc.Login(ctx, "ALICE@example.COM", "Str0ng!Pass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.Message != "Login successful!" || session.Token == "" {
		t.Fatalf("unexpected session %+v", session)
	}

	_, wrongPass := env.svc.Login(ctx, "alice@example.com", "Wr0ng!Pass")
	_, unknown := env.svc.Login(ctx, "bob@example.com", "Str0ng!Pass")
	if !errors.Is(wrongPass, apperr.ErrInvalidCredentials) || !errors.Is(unknown, apperr.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v / %v", wrongPass, unknown)
	}
	if apperr.PublicMessage(wrongPass) != apperr.PublicMessage(unknown) {
		t.Fatalf("login failures must not reveal which part was wrong")
	}

	_, malformed := env.svc.Login(ctx, "not-an-email", "x")
	if apperr.PublicMessage(malformed) != "Invalid credentials" {
		t.Fatalf("unexpected message %q", apperr.PublicMessage(malformed))
	}
}

func TestOTPRegistrationFlow(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := audit.WithIP(context.Background(), "203.0.113.9")

	session, err := env.svc.Register(ctx, alice)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if session.Token != "" || session.User != nil {
		t.Fatalf("token must be withheld until verification, got %+v", session)
	}
	if session.Message != "OTP sent to your email. Valid for 10 minutes." {
		t.Fatalf("unexpected message %q", session.Message)
	}

	if _, err := env.svc.Login(ctx, "alice@example.com", "Str0ng!Pass"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden before verification, got %v", err)
	}

	code := env.code(t, "alice@example.com")
	verified, err := env.svc.VerifyOTP(ctx, "alice@example.com", code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.Token == "" || !verified.User.Verified {
		t.Fatalf("expected verified session, got %+v", verified)
	}
	if ev := env.audit.last(); ev.Action != audit.ActionVerifyOTP || !ev.Success || ev.IP != "203.0.113.9" {
		t.Fatalf("unexpected audit event %+v", ev)
	}

	if _, err := env.svc.Login(ctx, "alice@example.com", "Str0ng!Pass"); err != nil {
		t.Fatalf("login after verification: %v", err)
	}
	if _, err := env.svc.Register(ctx, alice); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("verified account should conflict, got %v", err)
	}
}

func TestOTPReRegisterRefreshesUnverified(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	if _, err := env.svc.Register(ctx, alice); err != nil {
		t.Fatalf("register: %v", err)
	}
	first := env.code(t, "alice@example.com")

	again := alice
	again.Password = "An0ther!Pass"
	if _, err := env.svc.Register(ctx, again); err != nil {
		t.Fatalf("re-register unverified: %v", err)
	}
	second := env.code(t, "alice@example.com")
	if first != second {
		if _, err := env.svc.VerifyOTP(ctx, "alice@example.com", first); err == nil {
			t.Fatalf("old code must not verify")
		}
	}
	if _, err := env.svc.VerifyOTP(ctx, "alice@example.com", second); err != nil {
		t.Fatalf("verify new code: %v", err)
	}
	if _, err := env.svc.Login(ctx, "alice@example.com", "An0ther!Pass"); err != nil {
		t.Fatalf("login with refreshed password: %v", err)
	}
}

func TestVerifyOTPLockAndResend(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	if _, err := env.svc.Register(ctx, alice); err != nil {
		t.Fatalf("register: %v", err)
	}
	code := env.code(t, "alice@example.com")
	bad := "000000"
	if code == bad {
		bad = "111111"
	}

	for i := 0; i < 2; i++ {
		if _, err := env.svc.VerifyOTP(ctx, "alice@example.com", bad); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("attempt %d: expected validation, got %v", i+1, err)
		}
	}
	if _, err := env.svc.VerifyOTP(ctx, "alice@example.com", bad); !errors.Is(err, apperr.ErrLocked) {
		t.Fatalf("expected locked, got %v", err)
	}
	if _, err := env.svc.VerifyOTP(ctx, "alice@example.com", code); !errors.Is(err, apperr.ErrLocked) {
		t.Fatalf("correct code after lock: expected locked, got %v", err)
	}

	if _, err := env.svc.ResendOTP(ctx, "alice@example.com"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if _, err := env.svc.VerifyOTP(ctx, "alice@example.com", env.code(t, "alice@example.com")); err != nil {
		t.Fatalf("verify after resend: %v", err)
	}
}

func TestVerifyOTPExpired(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	if _, err := env.svc.Register(ctx, alice); err != nil {
		t.Fatalf("register: %v", err)
	}
	code := env.code(t, "alice@example.com")

	*env.clock = env.clock.Add(11 * time.Minute)
	if _, err := env.svc.VerifyOTP(ctx, "alice@example.com", code); !errors.Is(err, apperr.ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if _, err := env.svc.VerifyOTP(ctx, "alice@example.com", "12ab56"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected otp shape validation, got %v", err)
	}
}

func TestResendWithoutPending(t *testing.T) {
	env := newTestEnv(t, true)
	_, err := env.svc.ResendOTP(context.Background(), "nobody@example.com")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if ev := env.audit.last(); ev.Action != audit.ActionResendOTP || ev.Success {
		t.Fatalf("unexpected audit event %+v", ev)
	}
}

func TestLoginWithEmailedCode(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	if _, err := env.svc.Register(ctx, alice); err != nil {
		t.Fatalf("register: %v", err)
	}
	registration := env.code(t, "alice@example.com")

	message, err := env.svc.RequestLoginOTP(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("request login code: %v", err)
	}
	msg, _ := env.inbox.Last("alice@example.com")
	if msg.Kind != notification.KindLoginCode {
		t.Fatalf("expected login code delivery, got %+v", msg)
	}
	if ev := env.audit.last(); ev.Action != audit.ActionLoginOTP || !ev.Success {
		t.Fatalf("unexpected audit event %+v", ev)
	}

	// Registration and login codes live in separate ticket tables.
	if registration != msg.Body {
		if _, err := env.svc.VerifyLoginOTP(ctx, "alice@example.com", registration); err == nil {
			t.Fatalf("registration code must not log in")
		}
	}

	session, err := env.svc.VerifyLoginOTP(ctx, "alice@example.com", msg.Body)
	if err != nil {
		t.Fatalf("verify login code: %v", err)
	}
	if message != loginCodeSent || session.Message != "Login successful!" {
		t.Fatalf("unexpected messages %q / %q", message, session.Message)
	}
	if session.Token == "" || !session.User.Verified {
		t.Fatalf("expected verified session, got %+v", session)
	}
	if _, err := env.svc.VerifyLoginOTP(ctx, "alice@example.com", msg.Body); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("login code is single use, got %v", err)
	}
}

func TestLoginOTPDoesNotRevealAccounts(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	if _, err := env.svc.Register(ctx, alice); err != nil {
		t.Fatalf("register: %v", err)
	}

	known, err := env.svc.RequestLoginOTP(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("known account: %v", err)
	}
	unknown, err := env.svc.RequestLoginOTP(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("unknown account: %v", err)
	}
	if known != unknown {
		t.Fatalf("answers differ: %q vs %q", known, unknown)
	}
	if _, ok := env.inbox.Last("nobody@example.com"); ok {
		t.Fatalf("no code should be sent to an unknown account")
	}
	if _, err := env.svc.RequestLoginOTP(ctx, "not-an-email"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation, got %v", err)
	}
}
