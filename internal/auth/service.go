// Package auth orchestrates registration, code verification and login on
// top of the identity store and the one-time-code machine.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gate-tracker/gate_tracker/internal/apperr"
	"github.com/gate-tracker/gate_tracker/internal/audit"
	"github.com/gate-tracker/gate_tracker/internal/identity"
	"github.com/gate-tracker/gate_tracker/internal/notification"
	"github.com/gate-tracker/gate_tracker/internal/otp"
	"github.com/gate-tracker/gate_tracker/internal/validation"
)

// Deps wires the auth service.
type Deps struct {
	Users   *identity.Service
	Tickets *otp.Machine
	// LoginTickets holds passwordless login codes, kept apart from
	// registration tickets. Nil disables OTP login.
	LoginTickets *otp.Machine
	Tokens       *Issuer
	Notifier     notification.Notifier
	Audit        audit.Sink
	Logger       *slog.Logger
	// OTPRegistration withholds the token until the emailed code is verified.
	OTPRegistration bool
}

// Service implements the auth flows.
type Service struct {
	users    *identity.Service
	tickets  *otp.Machine
	logins   *otp.Machine
	tokens   *Issuer
	notifier notification.Notifier
	audit    audit.Sink
	logger   *slog.Logger
	otpMode  bool
}

func NewService(d Deps) *Service {
	s := &Service{
		users:    d.Users,
		tickets:  d.Tickets,
		logins:   d.LoginTickets,
		tokens:   d.Tokens,
		notifier: d.Notifier,
		audit:    d.Audit,
		logger:   d.Logger,
		otpMode:  d.OTPRegistration,
	}
	if s.audit == nil {
		s.audit = audit.Discard()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Session is returned by flows that end logged in. Pending registrations
// carry only the message.
type Session struct {
	Message string            `json:"message"`
	Token   string            `json:"token,omitempty"`
	User    *identity.Profile `json:"user,omitempty"`
}

// RegisterInput carries the signup fields.
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Register creates an account. In direct mode the session starts at once;
// in OTP mode a code is sent and the token is withheld.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	user, err := s.users.Register(ctx, identity.Registration{
		Email:             in.Email,
		Password:          in.Password,
		Name:              in.Name,
		Verified:          !s.otpMode,
		ReplaceUnverified: s.otpMode,
	})
	if err != nil {
		s.fail(ctx, audit.ActionSignup, in.Email, err)
		return Session{}, err
	}

	if !s.otpMode {
		session, err := s.session(user, "Registration successful! You are now logged in.")
		if err != nil {
			return Session{}, err
		}
		s.succeed(ctx, audit.ActionSignup, user.Email, "User registered successfully")
		return session, nil
	}

	ticket, err := s.tickets.Issue(ctx, user.Email, user.ID)
	if err != nil {
		s.fail(ctx, audit.ActionSignup, user.Email, err)
		return Session{}, err
	}
	s.deliver(ctx, notification.KindOTPCode, ticket)
	s.succeed(ctx, audit.ActionSignup, user.Email, "OTP issued")
	return Session{Message: s.codeSentMessage()}, nil
}

// VerifyOTP checks the emailed code, marks the account verified and starts
// a session.
func (s *Service) VerifyOTP(ctx context.Context, rawEmail, rawCode string) (Session, error) {
	email, err := validation.Email(rawEmail)
	if err != nil {
		s.fail(ctx, audit.ActionVerifyOTP, rawEmail, err)
		return Session{}, err
	}
	code, err := validation.OTP(rawCode)
	if err != nil {
		s.fail(ctx, audit.ActionVerifyOTP, email, err)
		return Session{}, err
	}

	ticket, err := s.tickets.Verify(ctx, email, code)
	if err != nil {
		s.fail(ctx, audit.ActionVerifyOTP, email, err)
		return Session{}, err
	}
	user, err := s.users.MarkVerified(ctx, ticket.UserID)
	if err != nil {
		s.fail(ctx, audit.ActionVerifyOTP, email, err)
		return Session{}, err
	}

	session, err := s.session(user, "Email verified successfully!")
	if err != nil {
		return Session{}, err
	}
	s.succeed(ctx, audit.ActionVerifyOTP, email, "OTP verified successfully")
	return session, nil
}

// ResendOTP replaces the pending code for email.
func (s *Service) ResendOTP(ctx context.Context, rawEmail string) (string, error) {
	email, err := validation.Email(rawEmail)
	if err != nil {
		s.fail(ctx, audit.ActionResendOTP, rawEmail, err)
		return "", err
	}
	ticket, err := s.tickets.Resend(ctx, email)
	if err != nil {
		s.fail(ctx, audit.ActionResendOTP, email, err)
		return "", err
	}
	s.deliver(ctx, notification.KindOTPCode, ticket)
	s.succeed(ctx, audit.ActionResendOTP, email, "OTP resent")
	return s.codeSentMessage(), nil
}

// Login starts a session for verified accounts.
func (s *Service) Login(ctx context.Context, rawEmail, password string) (Session, error) {
	user, err := s.users.Authenticate(ctx, rawEmail, password)
	if err != nil {
		s.fail(ctx, audit.ActionLogin, rawEmail, err)
		if apperr.KindOf(err) == apperr.KindValidation {
			return Session{}, apperr.Validation("credentials", "Invalid credentials")
		}
		return Session{}, err
	}
	if !user.Verified {
		err := apperr.New(apperr.KindForbidden, "Please verify your email before logging in.")
		s.fail(ctx, audit.ActionLogin, user.Email, err)
		return Session{}, err
	}

	session, err := s.session(user, "Login successful!")
	if err != nil {
		return Session{}, err
	}
	s.succeed(ctx, audit.ActionLogin, user.Email, "Successful login")
	return session, nil
}

// loginCodeSent is returned whether or not the account exists.
const loginCodeSent = "If an account exists, a login code has been sent to your email."

// RequestLoginOTP emails a one-time login code to an existing account.
// Unknown emails get the same answer so accounts cannot be probed.
func (s *Service) RequestLoginOTP(ctx context.Context, rawEmail string) (string, error) {
	if s.logins == nil {
		return "", apperr.New(apperr.KindNotFound, "OTP login is not enabled")
	}
	user, err := s.users.FindByEmail(ctx, rawEmail)
	if apperr.KindOf(err) == apperr.KindNotFound {
		s.fail(ctx, audit.ActionLoginOTP, rawEmail, err)
		return loginCodeSent, nil
	}
	if err != nil {
		s.fail(ctx, audit.ActionLoginOTP, rawEmail, err)
		return "", err
	}

	ticket, err := s.logins.Issue(ctx, user.Email, user.ID)
	if err != nil {
		s.fail(ctx, audit.ActionLoginOTP, user.Email, err)
		return "", err
	}
	s.deliver(ctx, notification.KindLoginCode, ticket)
	s.succeed(ctx, audit.ActionLoginOTP, user.Email, "Login OTP issued")
	return loginCodeSent, nil
}

// VerifyLoginOTP exchanges a login code for a session. Proving the inbox
// also marks the account verified.
func (s *Service) VerifyLoginOTP(ctx context.Context, rawEmail, rawCode string) (Session, error) {
	if s.logins == nil {
		return Session{}, apperr.New(apperr.KindNotFound, "OTP login is not enabled")
	}
	email, err := validation.Email(rawEmail)
	if err != nil {
		s.fail(ctx, audit.ActionLogin, rawEmail, err)
		return Session{}, err
	}
	code, err := validation.OTP(rawCode)
	if err != nil {
		s.fail(ctx, audit.ActionLogin, email, err)
		return Session{}, err
	}

	ticket, err := s.logins.Verify(ctx, email, code)
	if err != nil {
		s.fail(ctx, audit.ActionLogin, email, err)
		return Session{}, err
	}
	user, err := s.users.Get(ctx, ticket.UserID)
	if err == nil && !user.Verified {
		user, err = s.users.MarkVerified(ctx, user.ID)
	}
	if err != nil {
		s.fail(ctx, audit.ActionLogin, email, err)
		return Session{}, err
	}

	session, err := s.session(user, "Login successful!")
	if err != nil {
		return Session{}, err
	}
	s.succeed(ctx, audit.ActionLogin, email, "Successful OTP login")
	return session, nil
}

// Me returns the profile of the authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (identity.Profile, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return identity.Profile{}, err
	}
	return user.Profile(), nil
}

func (s *Service) session(user identity.User, message string) (Session, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return Session{}, err
	}
	profile := user.Profile()
	return Session{Message: message, Token: token, User: &profile}, nil
}

func (s *Service) deliver(ctx context.Context, kind string, t otp.Ticket) {
	if s.notifier == nil {
		return
	}
	msg := notification.Message{Kind: kind, Destination: t.Email, Body: t.Code}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "otp delivery failed", "email", t.Email, "error", err)
	}
}

func (s *Service) codeSentMessage() string {
	return fmt.Sprintf("OTP sent to your email. Valid for %d minutes.", int(s.tickets.TTL().Minutes()))
}

func (s *Service) succeed(ctx context.Context, action, email, detail string) {
	audit.Record(ctx, s.audit, audit.Event{
		Action:  action,
		Email:   email,
		Success: true,
		Details: map[string]any{"detail": detail},
	})
}

func (s *Service) fail(ctx context.Context, action, email string, err error) {
	audit.Record(ctx, s.audit, audit.Event{
		Action:  action,
		Email:   strings.ToLower(strings.TrimSpace(email)),
		Success: false,
		Details: map[string]any{"detail": apperr.PublicMessage(err), "code": string(apperr.KindOf(err))},
	})
}
