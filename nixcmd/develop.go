package nixcmd

import "context"

// Develop runs a command inside the flake's development shell.
// In the case of:
//
//	nix develop --command cargo --version
//
// the following command is executed within the development shell:
//
//	cargo --version
func Develop(ctx context.Context, dir string, command ...string) (Result, error) {
	return run(ctx, dir, append([]string{"develop", "--command"}, command...)...)
}
