package validation

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gate-tracker/gate_tracker/internal/apperr"
)

func messageOf(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr), "expected *apperr.Error, got %v", err)
	require.Equal(t, apperr.KindValidation, appErr.Kind)
	return appErr.Message
}

func TestEmailNormalizes(t *testing.T) {
	email, err := Email("  Foo@Bar.com ")
	require.NoError(t, err)
	assert.Equal(t, "foo@bar.com", email)
}

func TestEmailRejections(t *testing.T) {
	cases := map[string]string{
		"":                     "Email is required",
		"   ":                  "Email is required",
		"not-an-email":         "Invalid email format",
		"alice@localhost":      "Invalid email format",
		"Alice <a@example.com>": "Invalid email format",
		strings.Repeat("a", 250) + "@example.com": "Email is too long",
	}
	for input, want := range cases {
		_, err := Email(input)
		require.Error(t, err, input)
		assert.Equal(t, want, messageOf(t, err), input)
	}
}

func TestPasswordOrderedChecks(t *testing.T) {
	cases := []struct {
		password string
		want     string
	}{
		{"", "Password is required"},
		{"Ab1!", "Password must be at least 8 characters long"},
		{strings.Repeat("Ab1!", 33), "Password is too long"},
		{"str0ng!pass", "Password must contain at least one uppercase letter"},
		{"STR0NG!PASS", "Password must contain at least one lowercase letter"},
		{"Strong!Pass", "Password must contain at least one number"},
		{"Str0ngPass", "Password must contain at least one special character (@$!%*?&)"},
		// Shortness wins over every other missing class.
		{"abc", "Password must be at least 8 characters long"},
	}
	for _, tc := range cases {
		err := Password(tc.password)
		require.Error(t, err, tc.password)
		assert.Equal(t, tc.want, messageOf(t, err), tc.password)
	}

	assert.NoError(t, Password("Str0ng!Pass"))
}

func TestName(t *testing.T) {
	name, err := Name("  Mary-Jane O'Neil ")
	require.NoError(t, err)
	assert.Equal(t, "Mary-Jane O'Neil", name)

	for input, want := range map[string]string{
		"":                        "Name is required",
		"A":                       "Name must be at least 2 characters long",
		strings.Repeat("a", 101):  "Name is too long",
		"Robert'); DROP TABLE--": "Name contains invalid characters",
		"Alice2":                  "Name contains invalid characters",
	} {
		_, err := Name(input)
		require.Error(t, err, input)
		assert.Equal(t, want, messageOf(t, err), input)
	}
}

func TestOTP(t *testing.T) {
	code, err := OTP(" 012345 ")
	require.NoError(t, err)
	assert.Equal(t, "012345", code)

	for _, bad := range []string{"", "12345", "1234567", "12a456", "１２３４５６"} {
		_, err := OTP(bad)
		assert.Error(t, err, bad)
	}
}

func TestVisitorID(t *testing.T) {
	id, err := VisitorID(" visitor_1699999999-abc ")
	require.NoError(t, err)
	assert.Equal(t, "visitor_1699999999-abc", id)

	for _, bad := range []string{"", "has space", "semi;colon", strings.Repeat("x", 129)} {
		_, err := VisitorID(bad)
		assert.Error(t, err, bad)
	}
}

func TestDay(t *testing.T) {
	assert.NoError(t, Day(2024, 2, 29))
	assert.Error(t, Day(2023, 2, 29))
	assert.Error(t, Day(2024, 0, 5))
	assert.Error(t, Day(2024, 13, 5))
	assert.Error(t, Day(2024, 4, 31))
	assert.Error(t, Day(1900, 1, 1))
	assert.Equal(t, 31, DaysIn(2024, 12))
}

func TestHours(t *testing.T) {
	assert.NoError(t, Hours(0, true))
	assert.NoError(t, Hours(23.5, true))
	assert.Error(t, Hours(24, true))
	assert.NoError(t, Hours(30, false))
	assert.Error(t, Hours(-0.5, false))
	assert.Error(t, Hours(math.NaN(), false))
	assert.Error(t, Hours(math.Inf(1), false))
}

func TestLabel(t *testing.T) {
	label, err := Label("subject", "  Operating Systems ")
	require.NoError(t, err)
	assert.Equal(t, "Operating Systems", label)

	_, err = Label("topic", "   ")
	require.Error(t, err)
	assert.Equal(t, "topic is required", messageOf(t, err))
}
