package export

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestWrapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantMessage string
		wantHint    string
	}{
		{
			name:        "unauthorized status",
			err:         &StatusError{StatusCode: 401},
			wantMessage: "Authentication failed",
			wantHint:    "BUILDTIME_ACCESS_KEY",
		},
		{
			name:        "wrapped forbidden status",
			err:         fmt.Errorf("stream: %w", &StatusError{StatusCode: 403}),
			wantMessage: "Authentication failed",
			wantHint:    "BUILDTIME_USERNAME",
		},
		{
			name:        "not found",
			err:         &StatusError{StatusCode: 404},
			wantMessage: "Export feed not found",
			wantHint:    "BUILDTIME_SERVER_URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := WrapError(tt.err)

			var userErr *UserError
			if !errors.As(wrapped, &userErr) {
				t.Fatalf("WrapError() returned %T, want *UserError", wrapped)
			}
			if userErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", userErr.Message, tt.wantMessage)
			}
			if !strings.Contains(userErr.Hint, tt.wantHint) {
				t.Errorf("Hint should contain %q, got %q", tt.wantHint, userErr.Hint)
			}
			if !errors.Is(wrapped, tt.err) {
				t.Error("wrapped error should unwrap to the original")
			}
		})
	}
}

func TestWrapError_Passthrough(t *testing.T) {
	if WrapError(nil) != nil {
		t.Error("WrapError(nil) should return nil")
	}

	err := &StatusError{StatusCode: 500}
	if WrapError(err) != error(err) {
		t.Error("server errors should pass through unchanged")
	}
}

func TestUserError_Error(t *testing.T) {
	err := &UserError{Message: "Authentication failed", Hint: "check key", Err: errors.New("401")}
	got := err.Error()
	for _, want := range []string{"Authentication failed", "Hint: check key", "Details: 401"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}
