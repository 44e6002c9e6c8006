package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"exposed", New(CodeChecklistNotFound, "no checklists registered", true), "no checklists registered"},
		{"hidden", New(CodeUnexpected, "index out of range", false), genericMessage},
		{"wrapped exposed", fmt.Errorf("run: %w", New(CodeRunNotFound, "run not found", true)), "run not found"},
		{"plain", errors.New("plain failure"), "plain failure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCodeThroughWrap(t *testing.T) {
	base := errors.New("disk full")
	err := fmt.Errorf("saving: %w", Wrap(base, CodeUnexpected, "save failed", false))

	if !HasCode(err, CodeUnexpected) {
		t.Errorf("HasCode(%v, %q) = false, want true", err, CodeUnexpected)
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error should unwrap to the cause")
	}
	if Code(base) != "" {
		t.Errorf("Code(plain) = %q, want empty", Code(base))
	}
}
