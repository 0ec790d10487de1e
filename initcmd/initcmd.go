// Package initcmd runs the whole packaging pipeline: inspect the
// project, render flake.nix, resolve the dependency hash and verify
// the result.
package initcmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flakewright/flakewright/gitcmd"
	"github.com/flakewright/flakewright/inspect"
	"github.com/flakewright/flakewright/render"
	"github.com/flakewright/flakewright/resolve"
	"github.com/flakewright/flakewright/verify"
)

// ErrFlakeExists guards an existing flake.nix against silent overwrite.
var ErrFlakeExists = errors.New("flake.nix already exists, pass --force to overwrite")

type Args struct {
	// Dir is the project root.
	Dir string
	// Language forces the project language instead of detecting it.
	Language string
	// Version overrides the inspected project version.
	Version string
	// NixpkgsRef pins the nixpkgs input of the rendered flake.
	NixpkgsRef string
	// Force overwrites an existing flake.nix.
	Force bool
	// SkipResolve leaves the sentinel hash in place.
	SkipResolve bool
	// SkipVerify skips the verification suite.
	SkipVerify bool
	// MaxAttempts bounds resolver build invocations, zero selects the
	// resolver default.
	MaxAttempts int
	// BuildTimeout bounds each build and verification step, zero
	// selects the stage defaults.
	BuildTimeout time.Duration
}

func (a Args) Validate() error {
	var errs []error
	if a.Dir == "" {
		errs = append(errs, errors.New("dir is required"))
	}
	if a.Language != "" {
		if _, err := inspect.ParseLanguage(a.Language); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Summary collects what each pipeline stage produced. Stages that were
// skipped or never reached leave their field zero.
type Summary struct {
	Metadata   inspect.ProjectMetadata `json:"metadata" yaml:"metadata"`
	FlakePath  string                  `json:"flakePath,omitempty" yaml:"flakePath,omitempty"`
	Resolution *resolve.Result         `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	Steps      []verify.StepResult     `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// Run executes the pipeline. When verification steps fail the summary
// is still complete and the error is verify.ErrVerificationFailed.
func Run(ctx context.Context, log *slog.Logger, args Args) (Summary, error) {
	var summary Summary
	if err := args.Validate(); err != nil {
		return summary, err
	}

	var lang inspect.Language
	if args.Language != "" {
		lang, _ = inspect.ParseLanguage(args.Language)
	}
	meta, err := inspect.Inspect(args.Dir, lang)
	if err != nil {
		return summary, err
	}
	if args.Version != "" {
		meta.Version = args.Version
	}
	summary.Metadata = meta
	log.Info("inspected project", slog.String("name", meta.Name), slog.String("language", string(meta.Language)), slog.String("version", meta.Version))

	flakePath := filepath.Join(args.Dir, "flake.nix")
	if _, err := os.Stat(flakePath); err == nil && !args.Force {
		return summary, ErrFlakeExists
	}
	rendered, err := render.Render(meta, render.Options{NixpkgsRef: args.NixpkgsRef})
	if err != nil {
		return summary, err
	}
	if err := os.WriteFile(flakePath, []byte(rendered), 0o644); err != nil {
		return summary, fmt.Errorf("failed to write flake.nix: %w", err)
	}
	summary.FlakePath = flakePath
	log.Info("wrote flake.nix", slog.String("path", flakePath))

	staged := []string{"flake.nix"}
	updated, err := ensureIgnored(args.Dir)
	if err != nil {
		return summary, err
	}
	if updated {
		staged = append(staged, ".gitignore")
	}
	if gitcmd.IsRepo(ctx, args.Dir) {
		if err := gitcmd.Stage(ctx, args.Dir, staged...); err != nil {
			return summary, fmt.Errorf("failed to stage flake files: %w", err)
		}
	} else {
		log.Warn("not a git repository, flake files will not be staged", slog.String("dir", args.Dir))
	}

	if !args.SkipResolve {
		res, err := resolve.Run(ctx, log, resolve.Args{
			Dir:          args.Dir,
			MaxAttempts:  args.MaxAttempts,
			BuildTimeout: args.BuildTimeout,
		})
		summary.Resolution = &res
		if err != nil {
			return summary, err
		}
	}

	if !args.SkipVerify {
		timeout := args.BuildTimeout
		if timeout == 0 {
			timeout = verify.DefaultStepTimeout
		}
		results, err := verify.Run(ctx, log, verify.DefaultSuite(args.Dir, meta.Language), timeout)
		summary.Steps = results
		if err != nil {
			return summary, err
		}
		if !verify.AllPassed(results) {
			return summary, verify.ErrVerificationFailed
		}
	}

	return summary, nil
}

// ensureIgnored appends the nix build output link to .gitignore, a
// step of the manual packaging workflow. Projects without a .gitignore
// are left alone. Reports whether the file changed.
func ensureIgnored(dir string) (bool, error) {
	path := filepath.Join(dir, ".gitignore")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read .gitignore: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "result" || trimmed == "/result" {
			return false, nil
		}
	}
	entry := "result\n"
	if len(data) > 0 && data[len(data)-1] != '\n' {
		entry = "\nresult\n"
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("failed to open .gitignore: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(entry); err != nil {
		return false, fmt.Errorf("failed to update .gitignore: %w", err)
	}
	return true, nil
}
