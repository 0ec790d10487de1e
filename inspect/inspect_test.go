package inspect

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name      string
		files     map[string]string
		expected  Language
		expectErr bool
	}{
		{
			name:     "cargo manifest means rust",
			files:    map[string]string{"Cargo.toml": "[package]\nname = \"a\"\n"},
			expected: LanguageRust,
		},
		{
			name:     "go.mod means go",
			files:    map[string]string{"go.mod": "module example.com/a\n"},
			expected: LanguageGo,
		},
		{
			name: "both manifests is ambiguous",
			files: map[string]string{
				"Cargo.toml": "[package]\nname = \"a\"\n",
				"go.mod":     "module example.com/a\n",
			},
			expectErr: true,
		},
		{
			name:      "no manifest",
			files:     map[string]string{},
			expectErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			root := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, root, name, content)
			}
			actual, err := DetectLanguage(root)
			if tt.expectErr {
				if err == nil {
					t.Fatal("expected an error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if actual != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, actual)
			}
		})
	}
}

func TestInspectReportsManifestNotFound(t *testing.T) {
	t.Parallel()
	_, err := Inspect(t.TempDir(), "")
	if !errors.Is(err, ErrManifestNotFound) {
		t.Errorf("expected ErrManifestNotFound, got %v", err)
	}
}

func TestInspectRust(t *testing.T) {
	tests := []struct {
		name      string
		manifest  string
		expected  ProjectMetadata
		expectErr bool
	}{
		{
			name: "package metadata",
			manifest: `[package]
name = "scout"
version = "1.4.2"
description = "Scans things"
license = "MIT"
homepage = "https://example.com/scout"
`,
			expected: ProjectMetadata{
				Name:        "scout",
				BinaryName:  "scout",
				Version:     "1.4.2",
				Language:    LanguageRust,
				Description: "Scans things",
				License:     "MIT",
				Homepage:    "https://example.com/scout",
			},
		},
		{
			name: "bin entry overrides the binary name",
			manifest: `[package]
name = "scout"
version = "1.4.2"

[[bin]]
name = "scout-cli"
path = "src/main.rs"
`,
			expected: ProjectMetadata{
				Name:       "scout",
				BinaryName: "scout-cli",
				Version:    "1.4.2",
				Language:   LanguageRust,
			},
		},
		{
			name: "repository is the homepage fallback",
			manifest: `[package]
name = "scout"
version = "1.4.2"
repository = "https://github.com/acme/scout"
`,
			expected: ProjectMetadata{
				Name:       "scout",
				BinaryName: "scout",
				Version:    "1.4.2",
				Language:   LanguageRust,
				Homepage:   "https://github.com/acme/scout",
			},
		},
		{
			name: "version inherited from the workspace",
			manifest: `[package]
name = "scout"
version.workspace = true
license.workspace = true

[workspace]
members = []

[workspace.package]
version = "2.0.0"
license = "Apache-2.0"
`,
			expected: ProjectMetadata{
				Name:       "scout",
				BinaryName: "scout",
				Version:    "2.0.0",
				Language:   LanguageRust,
				License:    "Apache-2.0",
			},
		},
		{
			name:      "virtual workspace manifest",
			manifest:  "[workspace]\nmembers = [\"crates/*\"]\n",
			expectErr: true,
		},
		{
			name:      "missing version",
			manifest:  "[package]\nname = \"scout\"\n",
			expectErr: true,
		},
		{
			name:      "invalid toml",
			manifest:  "[package\nname = scout\n",
			expectErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			root := t.TempDir()
			writeFile(t, root, "Cargo.toml", tt.manifest)
			actual, err := Inspect(root, LanguageRust)
			if tt.expectErr {
				var parseErr *ParseError
				if !errors.As(err, &parseErr) {
					t.Fatalf("expected a ParseError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.expected, actual); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestInspectGo(t *testing.T) {
	tests := []struct {
		name      string
		manifest  string
		expected  ProjectMetadata
		expectErr bool
	}{
		{
			name:     "module path base becomes the name",
			manifest: "module github.com/acme/scout\n\ngo 1.22\n",
			expected: ProjectMetadata{
				Name:       "scout",
				BinaryName: "scout",
				Version:    "0.1.0",
				Language:   LanguageGo,
			},
		},
		{
			name:     "major version suffix is stripped",
			manifest: "module github.com/acme/scout/v2\n\ngo 1.22\n",
			expected: ProjectMetadata{
				Name:       "scout",
				BinaryName: "scout",
				Version:    "0.1.0",
				Language:   LanguageGo,
			},
		},
		{
			name:      "missing module directive",
			manifest:  "go 1.22\n",
			expectErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			root := t.TempDir()
			writeFile(t, root, "go.mod", tt.manifest)
			actual, err := Inspect(root, LanguageGo)
			if tt.expectErr {
				var parseErr *ParseError
				if !errors.As(err, &parseErr) {
					t.Fatalf("expected a ParseError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.expected, actual); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestScanMembers(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "Cargo.toml", "[package]\nname = \"scout\"\nversion = \"1.0.0\"\n\n[workspace]\nmembers = [\"crates/*\"]\n")
	writeFile(t, root, "crates/core/Cargo.toml", "[package]\nname = \"scout-core\"\nversion = \"1.0.0\"\n")
	writeFile(t, root, "crates/cli/Cargo.toml", "[package]\nname = \"scout-cli\"\nversion = \"1.0.0\"\n")
	// Build output and VCS internals must not be reported as members.
	writeFile(t, root, "target/package/scout-1.0.0/Cargo.toml", "[package]\nname = \"scout\"\n")
	writeFile(t, root, ".git/Cargo.toml", "not a real manifest")
	writeFile(t, root, "vendor/dep/Cargo.toml", "[package]\nname = \"dep\"\n")

	meta, err := Inspect(root, LanguageRust)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{"crates/cli", "crates/core"}
	if diff := cmp.Diff(expected, meta.WorkspaceMembers); diff != "" {
		t.Error(diff)
	}
}
