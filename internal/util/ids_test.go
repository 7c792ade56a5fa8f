package util

import (
	"testing"
)

func TestIsNanoid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"Valid21Chars", "sGvgBXbBcVCjBIKCLS2Os", true},
		{"TooShort", "abc123", false},
		{"TooLong", "sGvgBXbBcVCjBIKCLS2OsX", false},
		{"WithSpace", "sGvgBXbBcVCjBIKCL 2Os", false},
		{"WithComma", "sGvgBXbBcVCjBIKCL,2Os", false},
		{"Empty", "", false},
		{"AllDashes", "---------------------", true},
		{"MixedValid", "Aa0_-Bb1_-Cc2_-Dd3_-E", true},
		{"Multibyte", "測試測試測試測", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := IsNanoid(tc.in)
			if got != tc.want {
				t.Fatalf("IsNanoid(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestNewRequestID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewRequestID()
		if !IsNanoid(id) {
			t.Fatalf("NewRequestID() = %q, not a nanoid", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}
