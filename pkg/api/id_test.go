package api

import (
	"strings"
	"testing"
)

func TestNewCompletionID(t *testing.T) {
	id := NewCompletionID()
	if !strings.HasPrefix(id, "chatcmpl-") {
		t.Errorf("missing prefix: %q", id)
	}
	if len(id) != len("chatcmpl-")+24 {
		t.Errorf("unexpected length %d: %q", len(id), id)
	}
	if !ValidateCompletionID(id) {
		t.Errorf("generated ID does not validate: %q", id)
	}
}

func TestNewCompletionIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewCompletionID()
		if seen[id] {
			t.Fatalf("duplicate ID generated: %q", id)
		}
		seen[id] = true
	}
}

func TestValidateCompletionID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"valid", "chatcmpl-" + strings.Repeat("a", 24), true},
		{"wrong prefix", "resp-" + strings.Repeat("a", 24), false},
		{"too short", "chatcmpl-abc", false},
		{"bad characters", "chatcmpl-" + strings.Repeat("!", 24), false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateCompletionID(tt.id); got != tt.want {
				t.Errorf("ValidateCompletionID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}
