package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("register: %w", New(KindConflict, "email already registered"))

	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected wrapped conflict to match ErrConflict")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("conflict must not match ErrNotFound")
	}
	if KindOf(err) != KindConflict {
		t.Fatalf("unexpected kind %s", KindOf(err))
	}
}

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("pq: relation users does not exist")
	err := Internal("find user", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("internal error should unwrap to its cause")
	}
	if msg := PublicMessage(err); msg != "internal server error" {
		t.Fatalf("internal message leaked: %q", msg)
	}
	if PublicMessage(errors.New("boom")) != "internal server error" {
		t.Fatalf("foreign errors must render generically")
	}
}

func TestStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:         http.StatusBadRequest,
		KindConflict:           http.StatusConflict,
		KindUnauthorized:       http.StatusUnauthorized,
		KindInvalidCredentials: http.StatusUnauthorized,
		KindForbidden:          http.StatusForbidden,
		KindNotFound:           http.StatusNotFound,
		KindExpired:            http.StatusBadRequest,
		KindLocked:             http.StatusTooManyRequests,
		KindRateLimited:        http.StatusTooManyRequests,
		KindInternal:           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := Status(kind); got != want {
			t.Fatalf("Status(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestValidationCarriesField(t *testing.T) {
	err := Validation("email", "Invalid email format")
	if err.Field != "email" || PublicMessage(err) != "Invalid email format" {
		t.Fatalf("unexpected validation error: %+v", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation match")
	}
}
