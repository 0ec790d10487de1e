package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/flakewright/flakewright/inspect"
	"github.com/flakewright/flakewright/resolve"
	"github.com/flakewright/flakewright/verify"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input     string
		expected  Format
		expectErr bool
	}{
		{input: "", expected: FormatTable},
		{input: "table", expected: FormatTable},
		{input: "json", expected: FormatJSON},
		{input: "JSON", expected: FormatJSON},
		{input: "yaml", expected: FormatYAML},
		{input: "yml", expected: FormatYAML},
		{input: "xml", expectErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			actual, err := ParseFormat(tt.input)
			if tt.expectErr {
				if err == nil {
					t.Fatal("expected an error")
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

func TestMetadataTable(t *testing.T) {
	t.Parallel()
	meta := inspect.ProjectMetadata{
		Name:             "scout",
		BinaryName:       "scout-cli",
		Version:          "1.4.2",
		Language:         inspect.LanguageRust,
		License:          "MIT",
		WorkspaceMembers: []string{"crates/cli", "crates/core"},
	}
	var buf bytes.Buffer
	if err := Metadata(&buf, FormatTable, meta); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"scout", "scout-cli", "1.4.2", "rust", "MIT", "crates/cli"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("table missing %q", want)
		}
	}
	// Unset optional fields render no row at all.
	if strings.Contains(buf.String(), "Homepage") {
		t.Error("table contains a Homepage row for a project without one")
	}
}

func TestMetadataJSONRoundTrips(t *testing.T) {
	t.Parallel()
	meta := inspect.ProjectMetadata{Name: "scout", BinaryName: "scout", Version: "1.4.2", Language: inspect.LanguageRust}
	var buf bytes.Buffer
	if err := Metadata(&buf, FormatJSON, meta); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded inspect.ProjectMetadata
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if diff := cmp.Diff(meta, decoded); diff != "" {
		t.Error(diff)
	}
}

func TestStepsTableShowsOverallOutcome(t *testing.T) {
	t.Parallel()
	results := []verify.StepResult{
		{Step: "build", Passed: true, Duration: 90 * time.Second},
		{Step: "run", Passed: false, Duration: time.Second, Output: "exec format error\nmore detail"},
	}
	var buf bytes.Buffer
	if err := Steps(&buf, FormatTable, results); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()
	for _, want := range []string{"build", "run", "FAIL", "exec format error", "OVERALL"} {
		if !strings.Contains(output, want) {
			t.Errorf("table missing %q", want)
		}
	}
	if strings.Contains(output, "more detail") {
		t.Error("table should only show the first line of step output")
	}
}

func TestChecklist(t *testing.T) {
	t.Parallel()
	results := []verify.StepResult{
		{Step: "build", Passed: true, Output: "built /nix/store/abc"},
		{Step: "flake check", Passed: false, Output: "error: attribute missing\ntrace line"},
		{Step: "dev shell", Passed: false},
	}
	var buf bytes.Buffer
	Checklist(&buf, results)
	expected := "✓ build\n✗ flake check: error: attribute missing\n✗ dev shell\n"
	if diff := cmp.Diff(expected, buf.String()); diff != "" {
		t.Error(diff)
	}
}

func TestResolutionYAML(t *testing.T) {
	t.Parallel()
	res := resolve.Result{State: resolve.StateConverged, Hash: "sha256-abc", Attempts: 2}
	var buf bytes.Buffer
	if err := Resolution(&buf, FormatYAML, res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"state: converged", "hash: sha256-abc", "attempts: 2"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("yaml missing %q", want)
		}
	}
}
