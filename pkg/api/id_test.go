package api

import (
	"strings"
	"testing"
)

func TestNewResourceID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewResourceID()
		if !strings.HasPrefix(id, "res_") {
			t.Fatalf("id %q missing res_ prefix", id)
		}
		if !ValidateResourceID(id) {
			t.Fatalf("generated id %q fails validation", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id generated: %q", id)
		}
		seen[id] = true
	}
}

func TestValidateResourceID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"res_abcdefghijklmnopqrstuvwx", true},
		{"res_ABC123defghijklmnopqrstu", true},
		{"res_short", false},
		{"resp_abcdefghijklmnopqrstuvw", false},
		{"", false},
		{"res_abcdefghijklmnopqrstuvw!", false},
	}

	for _, tt := range tests {
		if got := ValidateResourceID(tt.id); got != tt.want {
			t.Errorf("ValidateResourceID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
