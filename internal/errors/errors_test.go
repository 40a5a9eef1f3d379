package errors

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "error without cause",
			err:      &Error{Code: ErrCodeOutOfPolicy, Message: "mtu above max 9000"},
			expected: "[OUT_OF_POLICY] mtu above max 9000",
		},
		{
			name:     "error with cause",
			err:      Wrap(ErrCodeSnapshotFailed, "failed to read qdisc state", errors.New("permission denied")),
			expected: "[SNAPSHOT_FAILED] failed to read qdisc state: permission denied",
		},
		{
			name:     "formatted message",
			err:      NewCommandNotAllowedError("rm"),
			expected: "[COMMAND_NOT_ALLOWED] command not allowed: rm",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeInternal, "wrapper", cause)

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}
}

func TestError_Is(t *testing.T) {
	err1 := &Error{Code: ErrCodeTimeout, Message: "tc timed out"}
	err2 := &Error{Code: ErrCodeTimeout, Message: "nft timed out"}
	err3 := &Error{Code: ErrCodeNonZeroExit, Message: "tc failed"}

	if !errors.Is(err1, err2) {
		t.Errorf("Expected errors with same code to match")
	}

	if errors.Is(err1, err3) {
		t.Errorf("Expected errors with different codes to not match")
	}
}

func TestCodeOf(t *testing.T) {
	if code := CodeOf(NewRollbackError("restore failed", nil)); code != ErrCodeRollbackFailed {
		t.Errorf("Expected code %v, got %v", ErrCodeRollbackFailed, code)
	}

	if code := CodeOf(errors.New("plain error")); code != ErrCodeInternal {
		t.Errorf("Expected plain errors to map to %v, got %v", ErrCodeInternal, code)
	}
}

func TestNewSnapshotError(t *testing.T) {
	cause := errors.New("read /proc/sys: no such file")
	err := NewSnapshotError("failed to capture kernel parameters", cause)

	if err.Code != ErrCodeSnapshotFailed {
		t.Errorf("Expected code %v, got %v", ErrCodeSnapshotFailed, err.Code)
	}

	if err.Message != "failed to capture kernel parameters" {
		t.Errorf("Expected message 'failed to capture kernel parameters', got %v", err.Message)
	}

	if err.Cause != cause {
		t.Errorf("Expected cause to be preserved")
	}
}
