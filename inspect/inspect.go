// Package inspect reads project manifests and derives the metadata
// needed to package a project with nix. It never executes project code:
// everything comes from parsing Cargo.toml or go.mod.
package inspect

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Language identifies the project toolchain.
type Language string

const (
	LanguageRust Language = "rust"
	LanguageGo   Language = "go"
)

// ParseLanguage converts a user-supplied language name.
func ParseLanguage(s string) (Language, error) {
	switch s {
	case "rust":
		return LanguageRust, nil
	case "go", "golang":
		return LanguageGo, nil
	}
	return "", fmt.Errorf("unsupported language %q (expected rust or go)", s)
}

// ProjectMetadata is everything the templates need to know about a
// project. All fields except License, Homepage, Description and
// WorkspaceMembers are always populated.
type ProjectMetadata struct {
	Name             string   `json:"name" yaml:"name"`
	BinaryName       string   `json:"binaryName" yaml:"binaryName"`
	Version          string   `json:"version" yaml:"version"`
	Language         Language `json:"language" yaml:"language"`
	Description      string   `json:"description,omitempty" yaml:"description,omitempty"`
	License          string   `json:"license,omitempty" yaml:"license,omitempty"`
	Homepage         string   `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	WorkspaceMembers []string `json:"workspaceMembers,omitempty" yaml:"workspaceMembers,omitempty"`
}

// ErrManifestNotFound is returned when no supported manifest exists at
// the project root.
var ErrManifestNotFound = errors.New("no supported project manifest found (expected Cargo.toml or go.mod)")

// ParseError reports a manifest that exists but cannot be used.
type ParseError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DetectLanguage inspects the project root for a supported manifest.
// If both Cargo.toml and go.mod exist the project is ambiguous and the
// caller must choose with --language.
func DetectLanguage(root string) (Language, error) {
	cargo := fileExists(filepath.Join(root, "Cargo.toml"))
	gomod := fileExists(filepath.Join(root, "go.mod"))
	switch {
	case cargo && gomod:
		return "", errors.New("both Cargo.toml and go.mod exist, choose one with --language")
	case cargo:
		return LanguageRust, nil
	case gomod:
		return LanguageGo, nil
	}
	return "", ErrManifestNotFound
}

// Inspect parses the manifest for the given language at root. Pass an
// empty Language to auto-detect.
func Inspect(root string, lang Language) (ProjectMetadata, error) {
	var err error
	if lang == "" {
		lang, err = DetectLanguage(root)
		if err != nil {
			return ProjectMetadata{}, err
		}
	}

	var meta ProjectMetadata
	switch lang {
	case LanguageRust:
		meta, err = inspectRust(root)
	case LanguageGo:
		meta, err = inspectGo(root)
	default:
		return ProjectMetadata{}, fmt.Errorf("unsupported language %q", lang)
	}
	if err != nil {
		return ProjectMetadata{}, err
	}

	meta.WorkspaceMembers, err = scanMembers(root, lang)
	if err != nil {
		return ProjectMetadata{}, err
	}
	return meta, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
