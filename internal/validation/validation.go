// Package validation holds the pure input checks run before any storage access.
package validation

import (
	"math"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gate-tracker/gate_tracker/internal/apperr"
)

const (
	maxEmailLength    = 255
	minPasswordLength = 8
	maxPasswordLength = 128
	minNameLength     = 2
	maxNameLength     = 100
	maxVisitorIDLen   = 128
	maxLabelLength    = 200
	maxHours          = 24
	passwordSymbols   = "@$!%*?&"
)

var (
	namePattern      = regexp.MustCompile(`^[A-Za-z\s'-]+$`)
	otpPattern       = regexp.MustCompile(`^[0-9]{6}$`)
	visitorIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	upperPattern     = regexp.MustCompile(`[A-Z]`)
	lowerPattern     = regexp.MustCompile(`[a-z]`)
	digitPattern     = regexp.MustCompile(`[0-9]`)
)

// Email trims and lowercases an address and checks its shape.
func Email(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperr.Validation("email", "Email is required")
	}
	if !isEmail(email) {
		return "", apperr.Validation("email", "Invalid email format")
	}
	if len(email) > maxEmailLength {
		return "", apperr.Validation("email", "Email is too long")
	}
	return email, nil
}

func isEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	if at <= 0 {
		return false
	}
	domain := s[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}

// Password returns the first violated strength rule, or nil. The password
// is never trimmed.
func Password(password string) error {
	switch {
	case password == "":
		return apperr.Validation("password", "Password is required")
	case len(password) < minPasswordLength:
		return apperr.Validation("password", "Password must be at least 8 characters long")
	case len(password) > maxPasswordLength:
		return apperr.Validation("password", "Password is too long")
	case !upperPattern.MatchString(password):
		return apperr.Validation("password", "Password must contain at least one uppercase letter")
	case !lowerPattern.MatchString(password):
		return apperr.Validation("password", "Password must contain at least one lowercase letter")
	case !digitPattern.MatchString(password):
		return apperr.Validation("password", "Password must contain at least one number")
	case !strings.ContainsAny(password, passwordSymbols):
		return apperr.Validation("password", "Password must contain at least one special character (@$!%*?&)")
	}
	return nil
}

// Name trims a display name and checks length and alphabet.
func Name(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(name)
	switch {
	case name == "":
		return "", apperr.Validation("name", "Name is required")
	case n < minNameLength:
		return "", apperr.Validation("name", "Name must be at least 2 characters long")
	case n > maxNameLength:
		return "", apperr.Validation("name", "Name is too long")
	case !namePattern.MatchString(name):
		return "", apperr.Validation("name", "Name contains invalid characters")
	}
	return name, nil
}

// OTP checks a one-time code is exactly six ASCII digits.
func OTP(raw string) (string, error) {
	code := strings.TrimSpace(raw)
	if code == "" {
		return "", apperr.Validation("otp", "OTP is required")
	}
	if !otpPattern.MatchString(code) {
		return "", apperr.Validation("otp", "OTP must be 6 digits")
	}
	return code, nil
}

// VisitorID checks a client-generated visitor identifier.
func VisitorID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	switch {
	case id == "":
		return "", apperr.Validation("visitorId", "Valid visitorId required")
	case len(id) > maxVisitorIDLen:
		return "", apperr.Validation("visitorId", "visitorId is too long")
	case !visitorIDPattern.MatchString(id):
		return "", apperr.Validation("visitorId", "visitorId contains invalid characters")
	}
	return id, nil
}

// Day checks that (year, month, day) names a real calendar day. Months are 1-12.
func Day(year, month, day int) error {
	if month < 1 || month > 12 {
		return apperr.Validation("month", "Month must be between 1 and 12")
	}
	if year < 1970 || year > 9999 {
		return apperr.Validation("year", "Year is out of range")
	}
	if day < 1 || day > DaysIn(year, month) {
		return apperr.Validation("day", "Day is not valid for the given month")
	}
	return nil
}

// Month checks a (year, month) pair used for listings.
func Month(year, month int) error {
	if month < 1 || month > 12 {
		return apperr.Validation("month", "Month must be between 1 and 12")
	}
	if year < 1970 || year > 9999 {
		return apperr.Validation("year", "Year is out of range")
	}
	return nil
}

// DaysIn returns the number of days in the given month.
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Hours rejects non-finite and negative values. With strict set, values of
// 24 or more are rejected too.
func Hours(hours float64, strict bool) error {
	if math.IsNaN(hours) || math.IsInf(hours, 0) {
		return apperr.Validation("hours", "Hours must be a number")
	}
	if hours < 0 {
		return apperr.Validation("hours", "Hours cannot be negative")
	}
	if strict && hours >= maxHours {
		return apperr.Validation("hours", "Hours must be less than 24")
	}
	return nil
}

// Label trims a subject or topic name.
func Label(field, raw string) (string, error) {
	label := strings.TrimSpace(raw)
	if label == "" {
		return "", apperr.Validation(field, field+" is required")
	}
	if utf8.RuneCountInString(label) > maxLabelLength {
		return "", apperr.Validation(field, field+" is too long")
	}
	return label, nil
}
