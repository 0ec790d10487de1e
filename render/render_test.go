package render

import (
	"strings"
	"testing"

	"github.com/flakewright/flakewright/inspect"
)

var rustMeta = inspect.ProjectMetadata{
	Name:        "scout",
	BinaryName:  "scout-cli",
	Version:     "1.4.2",
	Language:    inspect.LanguageRust,
	Description: "Scans things",
	License:     "MIT",
	Homepage:    "https://example.com/scout",
}

func TestRenderIsDeterministic(t *testing.T) {
	t.Parallel()
	first, err := Render(rustMeta, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Render(rustMeta, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Error("rendering the same metadata twice produced different output")
	}
}

func TestRenderRust(t *testing.T) {
	t.Parallel()
	output, err := Render(rustMeta, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		`pname = "scout";`,
		`version = "1.4.2";`,
		"cargoHash = lib.fakeHash;",
		"rustPlatform.buildRustPackage",
		`nixpkgs.url = "` + DefaultNixpkgsRef + `";`,
		`homepage = "https://example.com/scout";`,
		"license = licenses.mit;",
		`mainProgram = "scout-cli";`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(output, "{{") {
		t.Error("output contains an unexpanded placeholder")
	}
}

func TestRenderGo(t *testing.T) {
	t.Parallel()
	meta := inspect.ProjectMetadata{
		Name:       "turbine",
		BinaryName: "turbine",
		Version:    "0.1.0",
		Language:   inspect.LanguageGo,
	}
	output, err := Render(meta, Options{NixpkgsRef: "github:NixOS/nixpkgs/nixos-unstable"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"vendorHash = lib.fakeHash;",
		"buildGoModule",
		`nixpkgs.url = "github:NixOS/nixpkgs/nixos-unstable";`,
		`mainProgram = "turbine";`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
	// Optional metadata that was not supplied must not appear.
	if strings.Contains(output, "homepage") {
		t.Error("output contains a homepage line for a project without one")
	}
	if strings.Contains(output, "licenses.") {
		t.Error("output contains a license line for a project without one")
	}
	if strings.Contains(output, "{{") {
		t.Error("output contains an unexpanded placeholder")
	}
}

func TestRenderResolvesWorkspaceMembers(t *testing.T) {
	t.Parallel()
	meta := rustMeta
	meta.WorkspaceMembers = []string{"crates/cli", "crates/core"}
	output, err := Render(meta, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"#   crates/cli",
		"#   crates/core",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(output, "{{") {
		t.Error("output contains an unexpanded placeholder")
	}
}

func TestRenderRejectsUnknownLanguage(t *testing.T) {
	t.Parallel()
	meta := rustMeta
	meta.Language = "zig"
	if _, err := Render(meta, Options{}); err == nil {
		t.Error("expected an error for an unknown language")
	}
}

func TestNixLicense(t *testing.T) {
	tests := []struct {
		spdx     string
		expected string
	}{
		{spdx: "MIT", expected: "mit"},
		{spdx: "Apache-2.0", expected: "asl20"},
		{spdx: "MIT OR Apache-2.0", expected: "mit"},
		{spdx: "(MIT OR Apache-2.0)", expected: "mit"},
		{spdx: "GPL-3.0-or-later", expected: "gpl3Plus"},
		{spdx: "MIT/Apache-2.0", expected: "mit"},
		{spdx: "Proprietary", expected: ""},
		{spdx: "", expected: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.spdx, func(t *testing.T) {
			t.Parallel()
			if actual := nixLicense(tt.spdx); actual != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, actual)
			}
		})
	}
}

func TestNixEscape(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "scout", expected: "scout"},
		{name: "quotes", input: `say "hi"`, expected: `say \"hi\"`},
		{name: "interpolation", input: "a ${b} c", expected: `a \${b} c`},
		{name: "backslash", input: `a\b`, expected: `a\\b`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if actual := nixEscape(tt.input); actual != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, actual)
			}
		})
	}
}
