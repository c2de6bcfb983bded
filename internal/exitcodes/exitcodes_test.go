package exitcodes

import "testing"

func TestExitCodeValues(t *testing.T) {
	tests := []struct {
		name     string
		constant int
		expected int
	}{
		{"Success", Success, 0},
		{"SuiteFailure", SuiteFailure, 1},
		{"RuntimeErr", RuntimeErr, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.constant != tt.expected {
				t.Errorf("exitcodes.%s = %d, want %d", tt.name, tt.constant, tt.expected)
			}
		})
	}
}
