package mdberr

import (
	"errors"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(E3, "delete without where on %s", "users")
	want := "[mdb][E3] delete without where on users"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(E5, cause)
	if err.Error() != "[mdb][E5] connection reset" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected Unwrap to expose cause")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(E5, nil) != nil {
		t.Fatalf("Wrap(nil) should return nil")
	}
}

func TestIsMatchesCode(t *testing.T) {
	err := New(E4, "param mismatch")
	if !Is(err, E4) {
		t.Fatalf("expected Is to match E4")
	}
	if Is(err, E2) {
		t.Fatalf("did not expect Is to match E2")
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	if Is(errors.New("plain"), E1) {
		t.Fatalf("plain error should never match a code")
	}
}
