// Package resolve drives nix builds until the dependency hash in
// flake.nix converges. A fresh flake carries a sentinel hash that can
// never verify, so the first build fails with a mismatch reporting the
// real hash. The resolver writes the reported hash back into the flake
// and retries, bounded by an attempt budget.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/flakewright/flakewright/gitcmd"
	"github.com/flakewright/flakewright/nixcmd"
)

// State names a position in the resolution state machine. Runs start at
// StateInitial and finish in StateConverged or StateFailed; the other
// states are passed through on the way and surface in debug logs.
type State string

const (
	StateInitial              State = "initial"
	StateAttemptingBuild      State = "attempting-build"
	StateHashMismatchDetected State = "hash-mismatch-detected"
	StateConverged            State = "converged"
	StateFailed               State = "failed"
)

const (
	DefaultMaxAttempts  = 3
	DefaultBuildTimeout = 30 * time.Minute
	DefaultInstallable  = ".#default"
)

const diagnosticTail = 4096

var (
	// ErrExhausted is returned when the attempt budget is spent without
	// the hash converging.
	ErrExhausted = errors.New("hash resolution did not converge within the attempt budget")
	// ErrBuildFailed is returned when a build fails without reporting a
	// hash mismatch, meaning a retry cannot help.
	ErrBuildFailed = errors.New("nix build failed without a hash mismatch")
	// ErrBuildTimeout is returned when a build attempt exceeds the
	// configured timeout.
	ErrBuildTimeout = errors.New("nix build exceeded the timeout")
)

// BuildFunc runs one build attempt.
type BuildFunc func(ctx context.Context) (nixcmd.Result, error)

// StageFunc stages flake files before a build attempt.
type StageFunc func(ctx context.Context) error

type Args struct {
	// Dir is the project root containing flake.nix.
	Dir string
	// Installable to build, defaulting to DefaultInstallable.
	Installable string
	// MaxAttempts bounds the number of build invocations, defaulting to
	// DefaultMaxAttempts.
	MaxAttempts int
	// BuildTimeout bounds the wall-clock time of a single attempt,
	// defaulting to DefaultBuildTimeout.
	BuildTimeout time.Duration
	// Build overrides the nix build invocation, for tests.
	Build BuildFunc
	// Stage overrides the git staging step, for tests.
	Stage StageFunc
}

func (a Args) Validate() error {
	var errs []error
	if a.Dir == "" {
		errs = append(errs, errors.New("dir is required"))
	}
	if a.MaxAttempts < 0 {
		errs = append(errs, errors.New("max attempts must not be negative"))
	}
	if a.BuildTimeout < 0 {
		errs = append(errs, errors.New("build timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// Result reports how a resolution run ended. Hash is the dependency
// hash in effect when the run stopped, and is empty while the flake
// still carries the sentinel.
type Result struct {
	State    State  `json:"state" yaml:"state"`
	Hash     string `json:"hash,omitempty" yaml:"hash,omitempty"`
	Attempts int    `json:"attempts" yaml:"attempts"`
}

// Run resolves the dependency hash of the flake in args.Dir.
func Run(ctx context.Context, log *slog.Logger, args Args) (Result, error) {
	if err := args.Validate(); err != nil {
		return Result{State: StateFailed}, err
	}
	installable := args.Installable
	if installable == "" {
		installable = DefaultInstallable
	}
	maxAttempts := args.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	timeout := args.BuildTimeout
	if timeout == 0 {
		timeout = DefaultBuildTimeout
	}
	build := args.Build
	if build == nil {
		build = func(ctx context.Context) (nixcmd.Result, error) {
			buildCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return nixcmd.Build(buildCtx, args.Dir, installable)
		}
	}
	stage := args.Stage
	if stage == nil {
		stage = defaultStage(ctx, log, args.Dir)
	}

	flakePath := filepath.Join(args.Dir, "flake.nix")
	flake, err := os.ReadFile(flakePath)
	if err != nil {
		return Result{State: StateFailed}, fmt.Errorf("failed to read flake.nix: %w", err)
	}
	current, _ := CurrentHash(flake)

	state := StateInitial
	var lastDiagnostic string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := stage(ctx); err != nil {
			return Result{State: StateFailed, Hash: current, Attempts: attempt}, fmt.Errorf("failed to stage flake files: %w", err)
		}

		transition(log, &state, StateAttemptingBuild)
		log.Info("building", slog.Int("attempt", attempt), slog.Int("maxAttempts", maxAttempts))
		res, err := build(ctx)
		if err != nil {
			transition(log, &state, StateFailed)
			if errors.Is(err, context.DeadlineExceeded) {
				return Result{State: state, Hash: current, Attempts: attempt},
					fmt.Errorf("%w: attempt %d did not finish within %s", ErrBuildTimeout, attempt, timeout)
			}
			return Result{State: state, Hash: current, Attempts: attempt}, err
		}
		if res.OK() {
			transition(log, &state, StateConverged)
			log.Info("build succeeded", slog.Int("attempt", attempt), slog.Duration("duration", res.Duration))
			return Result{State: state, Hash: current, Attempts: attempt}, nil
		}

		hash, ok := ExtractMismatch(res.Output)
		if !ok {
			transition(log, &state, StateFailed)
			return Result{State: state, Hash: current, Attempts: attempt},
				fmt.Errorf("%w:\n%s", ErrBuildFailed, nixcmd.Tail(res.Output, diagnosticTail))
		}

		transition(log, &state, StateHashMismatchDetected)
		if hash == current {
			// The build reported the hash we already wrote: the value
			// is stable, even though this attempt still failed against
			// the previously cached fetch.
			transition(log, &state, StateConverged)
			log.Info("hash converged", slog.String("hash", hash), slog.Int("attempts", attempt))
			return Result{State: state, Hash: hash, Attempts: attempt}, nil
		}

		lastDiagnostic = res.Output
		log.Info("hash mismatch detected", slog.String("hash", hash), slog.Int("attempt", attempt))
		flake, err = RewriteHash(flake, hash)
		if err != nil {
			transition(log, &state, StateFailed)
			return Result{State: state, Hash: current, Attempts: attempt}, err
		}
		// The newest candidate is written even on the final attempt, so
		// a manual retry picks up where the resolver stopped.
		if err := os.WriteFile(flakePath, flake, 0o644); err != nil {
			transition(log, &state, StateFailed)
			return Result{State: state, Hash: current, Attempts: attempt}, fmt.Errorf("failed to write flake.nix: %w", err)
		}
		current = hash
	}

	transition(log, &state, StateFailed)
	return Result{State: state, Hash: current, Attempts: maxAttempts},
		fmt.Errorf("%w: %d attempts used, last candidate %s\n%s",
			ErrExhausted, maxAttempts, current, nixcmd.Tail(lastDiagnostic, diagnosticTail))
}

func transition(log *slog.Logger, state *State, to State) {
	log.Debug("state transition", slog.String("from", string(*state)), slog.String("to", string(to)))
	*state = to
}

// defaultStage stages flake.nix and flake.lock before each attempt.
// Flakes inside a git work tree only see tracked files, so skipping
// this would make nix report that flake.nix does not exist. Outside a
// repository nix treats the directory as a plain source tree and no
// staging is needed.
func defaultStage(ctx context.Context, log *slog.Logger, dir string) StageFunc {
	inRepo := gitcmd.IsRepo(ctx, dir)
	if !inRepo {
		log.Warn("not a git repository, flake files will not be staged", slog.String("dir", dir))
	}
	return func(ctx context.Context) error {
		if !inRepo {
			return nil
		}
		paths := []string{"flake.nix"}
		if _, err := os.Stat(filepath.Join(dir, "flake.lock")); err == nil {
			paths = append(paths, "flake.lock")
		}
		return gitcmd.Stage(ctx, dir, paths...)
	}
}
