package main

import (
	"context"
	"testing"
)

func TestRun_FlagValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero count", []string{"-count", "0"}},
		{"negative count", []string{"-count", "-3"}},
		{"invalid qos", []string{"-qos", "3"}},
		{"unknown flag", []string{"-bogus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := run(context.Background(), tt.args); err == nil {
				t.Errorf("run(%v) should fail", tt.args)
			}
		})
	}
}
