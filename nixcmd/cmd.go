// Package nixcmd wraps the nix subcommands that flakewright drives.
// Every wrapper captures combined output so that callers can inspect
// diagnostics, and reports the process exit code rather than treating
// a failed build as an invocation error.
package nixcmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Result holds the outcome of a single nix invocation.
type Result struct {
	// ExitCode is the process exit code. Zero means success.
	ExitCode int
	// Output is the interleaved stdout and stderr of the process.
	Output string
	// Duration is the wall-clock time the invocation took.
	Duration time.Duration
}

// OK reports whether the invocation exited cleanly.
func (r Result) OK() bool {
	return r.ExitCode == 0
}

// Tail returns the last n bytes of s. Error messages carry command
// output through it so that a noisy build does not flood the log; the
// interesting diagnostics are at the end.
func Tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

const defaultProfileBin = "/nix/var/nix/profiles/default/bin/nix"

// findNix locates the nix binary. PATH is tried first, then the default
// profile location, which is not always on PATH inside containers.
func findNix() (string, error) {
	if p, err := exec.LookPath("nix"); err == nil {
		return p, nil
	}
	if _, err := os.Stat(defaultProfileBin); err == nil {
		return defaultProfileBin, nil
	}
	return "", errors.New("nix binary not found in PATH or default profile")
}

// environment returns the process environment with fixups applied.
// HOME is required for git to find the user's global gitconfig, and
// NIXPKGS_ALLOW_UNFREE allows builds of unfree packages such as Terraform.
func environment() []string {
	env := os.Environ()
	if os.Getenv("HOME") == "" {
		env = append(env, "HOME=/root")
	}
	env = append(env, "NIXPKGS_ALLOW_UNFREE=1")
	return env
}

// run executes nix with the given arguments in dir. A non-zero exit is
// not an error: it is reported through Result.ExitCode so that callers
// can parse the diagnostics. The returned error is reserved for cases
// where the process could not run at all, or the context expired.
func run(ctx context.Context, dir string, args ...string) (Result, error) {
	nixPath, err := findNix()
	if err != nil {
		return Result{}, err
	}

	// Stock installs do not enable flakes, so opt in per invocation.
	cmdArgs := append([]string{"--extra-experimental-features", "nix-command flakes"}, args...)

	start := time.Now()
	cmd := exec.CommandContext(ctx, nixPath, cmdArgs...)
	cmd.Dir = dir
	cmd.Env = environment()
	output, err := cmd.CombinedOutput()

	r := Result{
		Output:   string(output),
		Duration: time.Since(start),
	}
	if err == nil {
		return r, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return r, fmt.Errorf("nix %s: %w", args[0], ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		r.ExitCode = exitErr.ExitCode()
		return r, nil
	}
	return r, NewCommandError(fmt.Sprintf("failed to run nix %s", args[0]), err, r.Output)
}

// runStdout executes nix and returns stdout alone, for subcommands
// whose output is parsed. Warnings on stderr must not corrupt it.
func runStdout(ctx context.Context, dir string, args ...string) (string, error) {
	nixPath, err := findNix()
	if err != nil {
		return "", err
	}

	cmdArgs := append([]string{"--extra-experimental-features", "nix-command flakes"}, args...)

	cmd := exec.CommandContext(ctx, nixPath, cmdArgs...)
	cmd.Dir = dir
	cmd.Env = environment()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("nix %s: %w", args[0], ctxErr)
		}
		return "", NewCommandError(fmt.Sprintf("failed to run nix %s", args[0]), err, stderr.String())
	}
	return stdout.String(), nil
}
