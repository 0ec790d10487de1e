// Package gitcmd wraps the little git that flakewright needs. Flakes in
// a git work tree only see tracked files, so freshly written files must
// be staged before nix evaluates the flake.
package gitcmd

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// IsRepo reports whether dir is inside a git work tree.
func IsRepo(ctx context.Context, dir string) bool {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return false
	}
	cmd := exec.CommandContext(ctx, gitPath, "-C", dir, "rev-parse", "--is-inside-work-tree")
	return cmd.Run() == nil
}

// Stage adds the given paths to the index so that nix can see them.
func Stage(ctx context.Context, dir string, paths ...string) error {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return fmt.Errorf("failed to find git on path: %v", err)
	}
	args := append([]string{"-C", dir, "add", "--"}, paths...)
	cmd := exec.CommandContext(ctx, gitPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(output))
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("git add: %s", msg)
	}
	return nil
}
