package nixcmd

import "context"

// FlakeCheck evaluates the flake's outputs and runs its checks.
func FlakeCheck(ctx context.Context, dir string) (Result, error) {
	return run(ctx, dir, "flake", "check")
}
