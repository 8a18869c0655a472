package gwerr

import (
	"errors"
	"testing"
)

func TestIsFatalForProtocolErrorNotBadArgument(t *testing.T) {
	fatal := New(ClassProtocolError, "session", ErrMalformedInstruction)
	if !IsFatal(fatal) {
		t.Fatal("protocol_error should be fatal")
	}

	recoverable := New(ClassBadArgument, "surface", ErrUnknownLayer)
	if IsFatal(recoverable) {
		t.Fatal("bad_argument should not be fatal")
	}
}

func TestIsFatalOnPlainErrorIsFalse(t *testing.T) {
	if IsFatal(errors.New("boom")) {
		t.Fatal("plain error should not be treated as fatal")
	}
}

func TestClassOfUnwraps(t *testing.T) {
	wrapped := New(ClassTimeout, "pacer", ErrHandshakeTimeout)
	class, ok := ClassOf(wrapped)
	if !ok || class != ClassTimeout {
		t.Fatalf("ClassOf = %v, %v; want ClassTimeout, true", class, ok)
	}
}

func TestErrorsIsReachesCause(t *testing.T) {
	wrapped := New(ClassResourceExhausted, "surface", ErrQueueFull)
	if !errors.Is(wrapped, ErrQueueFull) {
		t.Fatal("errors.Is should unwrap to the sentinel cause")
	}
}

func TestWithCodeAttachesCode(t *testing.T) {
	err := New(ClassProtocolError, "session", ErrMalformedInstruction).WithCode(513)
	if err.Code != 513 {
		t.Fatalf("Code = %d, want 513", err.Code)
	}
}
