package container

import (
	"errors"
	"testing"
)

func TestNewPlatform(t *testing.T) {
	tests := []struct {
		input     string
		expected  string
		expectErr bool
	}{
		{input: "linux/amd64", expected: "linux/amd64"},
		{input: "x86_64-linux", expected: "linux/amd64"},
		{input: "x86_64", expected: "linux/amd64"},
		{input: "aarch64-linux", expected: "linux/arm64"},
		{input: "arm64", expected: "linux/arm64"},
		{input: "riscv64", expectErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			p, err := NewPlatform(tt.input)
			if tt.expectErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.String() != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, p.String())
			}
		})
	}
}

func TestDefaultPlatformIsSupported(t *testing.T) {
	t.Parallel()
	p := DefaultPlatform()
	if p.OS != "linux" {
		t.Errorf("expected a linux platform, got %q", p.String())
	}
}

func TestExitError(t *testing.T) {
	t.Parallel()
	var exitErr ExitError
	err := error(ExitError{StatusCode: 4})
	if !errors.As(err, &exitErr) {
		t.Fatal("expected errors.As to match ExitError")
	}
	if exitErr.StatusCode != 4 {
		t.Errorf("expected status 4, got %d", exitErr.StatusCode)
	}
}
