package nixcmd

import "context"

// Run executes the installable's program with the given arguments, e.g.
//
//	nix run .#default -- --version
func Run(ctx context.Context, dir, installable string, args ...string) (Result, error) {
	cmdArgs := []string{"run", installable}
	if len(args) > 0 {
		cmdArgs = append(cmdArgs, "--")
		cmdArgs = append(cmdArgs, args...)
	}
	return run(ctx, dir, cmdArgs...)
}
