package services_test

import (
	"errors"
	"strings"
	"testing"

	"syndicate/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransient, "transmit", "upload", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transmit", "upload", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err       error
		want      string
		retryable bool
	}{
		{services.Wrap(services.ErrValidation, "editorial", "save", "bad", nil), "validation", false},
		{services.Wrap(services.ErrNotFound, "store", "get", "missing", nil), "not_found", false},
		{services.Wrap(services.ErrConflict, "store", "save", "dup", nil), "conflict", false},
		{errors.New("io"), "transient", true},
	}
	for _, tc := range cases {
		if got := services.Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
		if got := services.Retryable(tc.err); got != tc.retryable {
			t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.retryable)
		}
	}
}

func TestWrapSkipsBlankParts(t *testing.T) {
	err := services.Wrap(services.ErrNotFound, " store ", "", "entry 4", nil)
	if got, want := err.Error(), "not found: store: entry 4"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
