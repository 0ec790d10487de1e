// Package verify runs the acceptance checks on a packaged project: the
// flake must build, the built binary must run, the flake must evaluate
// cleanly, and the dev shell must provide the toolchain. Every step
// always runs; an early failure never suppresses later checks, so one
// report shows everything that is wrong.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/flakewright/flakewright/inspect"
	"github.com/flakewright/flakewright/nixcmd"
)

// ErrVerificationFailed marks a run in which at least one step failed.
// The step results carry the detail.
var ErrVerificationFailed = errors.New("verification failed")

// DefaultStepTimeout bounds a single verification step.
const DefaultStepTimeout = 30 * time.Minute

const outputTail = 4096

const defaultInstallable = ".#default"

// Step is a single named check.
type Step struct {
	Name string
	Run  func(ctx context.Context) (nixcmd.Result, error)
}

// StepResult records the outcome of one step.
type StepResult struct {
	Step     string        `json:"step" yaml:"step"`
	Passed   bool          `json:"passed" yaml:"passed"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Output   string        `json:"output,omitempty" yaml:"output,omitempty"`
}

// Run executes every step in order and records every outcome. It
// returns an error only when the context is cancelled; step failures
// are reported through the results, and callers decide what a failure
// means using AllPassed.
func Run(ctx context.Context, log *slog.Logger, steps []Step, stepTimeout time.Duration) ([]StepResult, error) {
	if stepTimeout == 0 {
		stepTimeout = DefaultStepTimeout
	}
	results := make([]StepResult, 0, len(steps))
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		log.Info("verifying", slog.String("step", step.Name))

		stepCtx, cancel := context.WithTimeout(ctx, stepTimeout)
		start := time.Now()
		res, err := step.Run(stepCtx)
		cancel()

		sr := StepResult{
			Step:     step.Name,
			Duration: time.Since(start),
		}
		switch {
		case err != nil && ctx.Err() != nil:
			return results, ctx.Err()
		case err != nil && errors.Is(err, context.DeadlineExceeded):
			sr.Output = fmt.Sprintf("timed out after %s", stepTimeout)
		case err != nil:
			sr.Output = err.Error()
		default:
			sr.Passed = res.OK()
			sr.Output = nixcmd.Tail(res.Output, outputTail)
		}
		log.Info("step complete",
			slog.String("step", sr.Step),
			slog.Bool("passed", sr.Passed),
			slog.Duration("duration", sr.Duration))
		results = append(results, sr)
	}
	return results, nil
}

// AllPassed reports whether every step passed.
func AllPassed(results []StepResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// DefaultSuite returns the standard checks for the project in dir.
func DefaultSuite(dir string, lang inspect.Language) []Step {
	probe := []string{"go", "version"}
	if lang == inspect.LanguageRust {
		probe = []string{"cargo", "--version"}
	}
	return []Step{
		{
			Name: "build",
			Run: func(ctx context.Context) (nixcmd.Result, error) {
				res, err := nixcmd.Build(ctx, dir, defaultInstallable)
				if err != nil || !res.OK() {
					return res, err
				}
				// Summarize what was built instead of echoing the log.
				if pi, infoErr := nixcmd.QueryPathInfo(ctx, dir, defaultInstallable); infoErr == nil {
					res.Output = fmt.Sprintf("%s (nar %s, closure %s)",
						pi.Path, humanize.IBytes(uint64(pi.NarSize)), humanize.IBytes(uint64(pi.ClosureSize)))
				}
				return res, nil
			},
		},
		{
			Name: "run",
			Run: func(ctx context.Context) (nixcmd.Result, error) {
				return nixcmd.Run(ctx, dir, defaultInstallable, "--version")
			},
		},
		{
			Name: "flake-check",
			Run: func(ctx context.Context) (nixcmd.Result, error) {
				return nixcmd.FlakeCheck(ctx, dir)
			},
		},
		{
			Name: "dev-shell",
			Run: func(ctx context.Context) (nixcmd.Result, error) {
				return nixcmd.Develop(ctx, dir, probe...)
			},
		},
	}
}
