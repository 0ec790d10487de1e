package nixcmd

import "context"

// Build runs nix build for the given installable in dir. The result
// symlink is suppressed so that repeated builds do not litter the
// project with ./result links.
func Build(ctx context.Context, dir, installable string) (Result, error) {
	return run(ctx, dir, "build", installable, "--no-link")
}
