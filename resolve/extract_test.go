package resolve

import (
	"strings"
	"testing"
)

func TestExtractMismatch(t *testing.T) {
	sri := "sha256-CKbVsMcd2TW2A7Bygbqw7+3sba6drB8nyFy7omvibJM="
	tests := []struct {
		name     string
		output   string
		expected string
		found    bool
	}{
		{
			name: "modern SRI diagnostic",
			output: `error: hash mismatch in fixed-output derivation '/nix/store/8n8a1xjvbgv3b7dygii9zqxnr3gyrlz9-scout-1.4.2-vendor.drv':
         specified: sha256-AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=
            got:    ` + sri + `
error: 1 dependencies of derivation '/nix/store/ffffffffffffffffffffffffffffffff-scout-1.4.2.drv' failed to build
`,
			expected: sri,
			found:    true,
		},
		{
			name: "old style base32 diagnostic",
			output: `fixed-output derivation produced path with invalid hash
  specified: sha256:1111111111111111111111111111111111111111111111111111
  got:       sha256:` + strings.Repeat("0", 52) + `
`,
			expected: "sha256-" + strings.Repeat("A", 43) + "=",
			found:    true,
		},
		{
			name: "specified line alone is not a mismatch",
			output: `error: build failed
         specified: ` + sri + `
`,
			found: false,
		},
		{
			name: "first mismatch wins",
			output: `            got:    ` + sri + `
            got:    sha256-` + strings.Repeat("B", 42) + `A=
`,
			expected: sri,
			found:    true,
		},
		{
			name:   "got line with a non-hash token",
			output: "got: everything we asked for\n",
			found:  false,
		},
		{
			name:   "got line with corrupt base64",
			output: "got: sha256-" + strings.Repeat("B", 43) + "=\n",
			found:  false,
		},
		{
			name:   "plain build failure",
			output: "error: builder for '/nix/store/x-scout.drv' failed with exit code 101\n",
			found:  false,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			actual, ok := ExtractMismatch(tt.output)
			if ok != tt.found {
				t.Fatalf("expected found=%v, got %v (hash %q)", tt.found, ok, actual)
			}
			if ok && actual != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, actual)
			}
		})
	}
}
