// Package render produces flake.nix text for a project from embedded
// templates. Rendering is deterministic: the same metadata and options
// always produce byte-identical output, so a second run never creates
// spurious diffs.
package render

import (
	"embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/flakewright/flakewright/inspect"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Any placeholder without a context value is a bug in the template or
// the context builder, so execution is configured to fail on it.
var templates = template.Must(
	template.New("flake").Option("missingkey=error").ParseFS(templateFS, "templates/*.tmpl"),
)

// DefaultNixpkgsRef is the nixpkgs flake reference templates pin unless
// the caller overrides it.
const DefaultNixpkgsRef = "github:NixOS/nixpkgs/nixos-24.05"

// HashSentinel is the placeholder dependency hash written into fresh
// flakes. Building with it always fails with a hash mismatch, which is
// how the real hash is discovered.
const HashSentinel = "lib.fakeHash"

// ErrUnresolvedPlaceholder is returned when a template references a
// placeholder that has no value in the context.
var ErrUnresolvedPlaceholder = errors.New("template placeholder has no context value")

// Options adjust rendering. The zero value applies defaults.
type Options struct {
	// NixpkgsRef overrides DefaultNixpkgsRef.
	NixpkgsRef string
}

// TemplateContext is the substitution map applied to a flake template.
type TemplateContext map[string]string

// NewContext derives the template context for a project.
func NewContext(meta inspect.ProjectMetadata, opts Options) TemplateContext {
	nixpkgsRef := opts.NixpkgsRef
	if nixpkgsRef == "" {
		nixpkgsRef = DefaultNixpkgsRef
	}
	description := meta.Description
	if description == "" {
		description = meta.Name
	}
	return TemplateContext{
		"PName":         nixEscape(meta.Name),
		"BinName":       nixEscape(meta.BinaryName),
		"Version":       nixEscape(meta.Version),
		"Description":   nixEscape(description),
		"Homepage":      nixEscape(meta.Homepage),
		"License":       nixLicense(meta.License),
		"NixpkgsRef":    nixEscape(nixpkgsRef),
		"VendorHash":    HashSentinel,
		"WorkspaceNote": workspaceNote(meta.WorkspaceMembers),
	}
}

// Render returns the flake.nix contents for the project. It does not
// touch the filesystem.
func Render(meta inspect.ProjectMetadata, opts Options) (string, error) {
	name, err := templateName(meta.Language)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	if err := templates.ExecuteTemplate(&buf, name, NewContext(meta, opts)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnresolvedPlaceholder, err)
	}
	return buf.String(), nil
}

func templateName(lang inspect.Language) (string, error) {
	switch lang {
	case inspect.LanguageRust:
		return "rust.nix.tmpl", nil
	case inspect.LanguageGo:
		return "go.nix.tmpl", nil
	}
	return "", fmt.Errorf("no flake template for language %q", lang)
}

// workspaceNote lists member manifests as a comment next to src, so
// that readers of the generated flake can see what the source tree
// contains. Empty input renders nothing.
func workspaceNote(members []string) string {
	if len(members) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n          # Member manifests detected in this repository:")
	for _, m := range members {
		b.WriteString("\n          #   ")
		b.WriteString(m)
	}
	return b.String()
}

// nixEscape makes a value safe for interpolation into a double-quoted
// nix string.
func nixEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "${", `\${`)
	return s
}
