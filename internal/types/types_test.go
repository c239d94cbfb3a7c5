package types

import (
	"errors"
	"testing"
)

func TestAppErrorMessageWithAndWithoutWrappedError(t *testing.T) {
	plain := NewError(ErrBadRequest, "invalid json")
	if plain.Error() != "invalid json" {
		t.Fatalf("expected plain message, got %q", plain.Error())
	}

	wrapped := WrapError(ErrInternal, "db failure", errors.New("connection refused"))
	want := "db failure: connection refused"
	if wrapped.Error() != want {
		t.Fatalf("expected %q, got %q", want, wrapped.Error())
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	wrapped := WrapError(ErrInternal, "failed", inner)
	if !errors.Is(wrapped, inner) {
		t.Fatalf("expected errors.Is to find the wrapped error")
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := NewError(ErrConflict, "already exists")
	if !Is(err, ErrConflict) {
		t.Fatalf("expected Is to match the same code")
	}
	if Is(err, ErrNotFound) {
		t.Fatalf("expected Is to reject a different code")
	}
	if Is(errors.New("plain error"), ErrConflict) {
		t.Fatalf("expected Is to reject a non-AppError")
	}
}

func TestNilAppErrorErrorStringIsEmpty(t *testing.T) {
	var e *AppError
	if e.Error() != "" {
		t.Fatalf("expected a nil *AppError to render an empty message, got %q", e.Error())
	}
}
