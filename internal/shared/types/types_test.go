package types

import (
	"strings"
	"testing"
)

// TestParseID tests ID parsing
func TestParseID(t *testing.T) {
	id := NewID()

	parsed, err := ParseID(id.String())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if parsed != id {
		t.Errorf("Expected %s, got %s", id, parsed)
	}

	if _, err := ParseID("not-a-uuid"); err == nil {
		t.Error("Expected error for invalid ID")
	}
}

// TestIDPtr tests conversion between IDs and nullable references
func TestIDPtr(t *testing.T) {
	var zero ID
	if zero.Ptr() != nil {
		t.Error("Zero ID should map to nil")
	}

	id := NewID()
	if Deref(id.Ptr()) != id {
		t.Errorf("Expected %s after round trip", id)
	}
	if Deref(nil) != "" {
		t.Error("Deref(nil) should be the zero ID")
	}
}

// TestDeterministicID tests stable ID generation for seed data
func TestDeterministicID(t *testing.T) {
	a := NewDeterministicID("agency", "Roads Department")
	b := NewDeterministicID("agency", "Roads Department")
	c := NewDeterministicID("agency", "Parks Department")

	if a != b {
		t.Errorf("Expected identical IDs, got %s and %s", a, b)
	}
	if a == c {
		t.Error("Different names should produce different IDs")
	}
}

// TestNewTrackingCode tests tracking code shape
func TestNewTrackingCode(t *testing.T) {
	seen := make(map[TrackingCode]bool)
	for i := 0; i < 100; i++ {
		code, err := NewTrackingCode()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !strings.HasPrefix(code.String(), TrackingCodePrefix) {
			t.Errorf("Expected prefix %s, got %s", TrackingCodePrefix, code)
		}
		if strings.ContainsAny(strings.TrimPrefix(code.String(), TrackingCodePrefix), "01OI") {
			t.Errorf("Code %s contains ambiguous characters", code)
		}
		if _, err := ParseTrackingCode(code.String()); err != nil {
			t.Errorf("Generated code %s does not parse: %v", code, err)
		}
		seen[code] = true
	}
	if len(seen) < 95 {
		t.Errorf("Expected mostly unique codes, got %d distinct of 100", len(seen))
	}
}

// TestParseTrackingCode tests normalization of citizen input
func TestParseTrackingCode(t *testing.T) {
	tests := []struct {
		input   string
		want    TrackingCode
		wantErr bool
	}{
		{"CMP-7K4QZ2HD", "CMP-7K4QZ2HD", false},
		{"  cmp-7k4qz2hd ", "CMP-7K4QZ2HD", false},
		{"7K4QZ2HD", "CMP-7K4QZ2HD", false},
		{"CMP-7K4QZ2H", "", true},
		{"CMP-7K4QZ2H0", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTrackingCode(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
