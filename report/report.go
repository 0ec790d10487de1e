// Package report renders flakewright results for people and machines.
// Tables are for terminals; json and yaml are for scripts.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/flakewright/flakewright/inspect"
	"github.com/flakewright/flakewright/resolve"
	"github.com/flakewright/flakewright/verify"
)

// Format selects the output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat converts a user-supplied format name. An empty string
// selects the table format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "table":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported output format %q (expected table, json or yaml)", s)
}

// Metadata writes the inspected project metadata.
func Metadata(w io.Writer, format Format, meta inspect.ProjectMetadata) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, meta)
	case FormatYAML:
		return writeYAML(w, meta)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Field", "Value"})
	tw.AppendRow(table.Row{"Name", meta.Name})
	tw.AppendRow(table.Row{"Binary", meta.BinaryName})
	tw.AppendRow(table.Row{"Version", meta.Version})
	tw.AppendRow(table.Row{"Language", string(meta.Language)})
	if meta.Description != "" {
		tw.AppendRow(table.Row{"Description", meta.Description})
	}
	if meta.License != "" {
		tw.AppendRow(table.Row{"License", meta.License})
	}
	if meta.Homepage != "" {
		tw.AppendRow(table.Row{"Homepage", meta.Homepage})
	}
	if len(meta.WorkspaceMembers) > 0 {
		tw.AppendRow(table.Row{"Members", strings.Join(meta.WorkspaceMembers, "\n")})
	}
	tw.Render()
	return nil
}

// Steps writes the verification step results. The table footer carries
// the overall outcome so that a glance at the end answers pass or fail.
func Steps(w io.Writer, format Format, results []verify.StepResult) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, results)
	case FormatYAML:
		return writeYAML(w, results)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Step", "Status", "Duration", "Detail"})
	var total time.Duration
	for _, r := range results {
		tw.AppendRow(table.Row{r.Step, status(r.Passed), r.Duration.Round(time.Millisecond), firstLine(r.Output)})
		total += r.Duration
	}
	tw.AppendFooter(table.Row{"overall", status(verify.AllPassed(results)), total.Round(time.Millisecond), ""})
	tw.Render()
	return nil
}

// Resolution writes the hash resolution outcome.
func Resolution(w io.Writer, format Format, res resolve.Result) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, res)
	case FormatYAML:
		return writeYAML(w, res)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Field", "Value"})
	tw.AppendRow(table.Row{"State", string(res.State)})
	hash := res.Hash
	if hash == "" {
		hash = "(no correction needed)"
	}
	tw.AppendRow(table.Row{"Hash", hash})
	tw.AppendRow(table.Row{"Attempts", res.Attempts})
	tw.Render()
	return nil
}

// Write encodes any value in one of the machine formats. Table
// rendering is type-specific, so callers wanting tables use the
// dedicated functions instead.
func Write(w io.Writer, format Format, v any) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, v)
	case FormatYAML:
		return writeYAML(w, v)
	}
	return fmt.Errorf("no table rendering for %T", v)
}

// Checklist writes one line per step in the terse pass/fail register,
// for progress output while a pipeline runs.
func Checklist(w io.Writer, results []verify.StepResult) {
	for _, r := range results {
		if r.Passed {
			fmt.Fprintf(w, "✓ %s\n", r.Step)
			continue
		}
		if detail := firstLine(r.Output); detail != "" {
			fmt.Fprintf(w, "✗ %s: %s\n", r.Step, detail)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", r.Step)
	}
}

func status(passed bool) string {
	if passed {
		return "pass"
	}
	return "FAIL"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	enc.SetIndent(2)
	return enc.Encode(v)
}
