package engineerr

import (
	"errors"
	"testing"
)

func TestNew_WrapsAndUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := New(ProviderError, cause)

	if !errors.Is(err, cause) {
		t.Errorf("expected New's error to wrap cause via Unwrap")
	}
	if KindOf(err) != ProviderError {
		t.Errorf("KindOf() = %q, want %q", KindOf(err), ProviderError)
	}
}

func TestNewf(t *testing.T) {
	err := Newf(Timeout, "deadline exceeded")
	if err.Error() != "timeout: deadline exceeded" {
		t.Errorf("Error() = %q, want %q", err.Error(), "timeout: deadline exceeded")
	}
}

func TestKindOf_PlainErrorHasNoKind(t *testing.T) {
	if k := KindOf(errors.New("plain")); k != "" {
		t.Errorf("KindOf(plain error) = %q, want empty", k)
	}
}

func TestIs(t *testing.T) {
	err := New(Cancelled, nil)
	if !Is(err, Cancelled) {
		t.Error("expected Is(err, Cancelled) to be true")
	}
	if Is(err, TableNotFound) {
		t.Error("expected Is(err, TableNotFound) to be false")
	}
}

func TestError_NilUnderlyingCause(t *testing.T) {
	err := New(AuthRequired, nil)
	if err.Error() != string(AuthRequired) {
		t.Errorf("Error() = %q, want %q", err.Error(), AuthRequired)
	}
}
