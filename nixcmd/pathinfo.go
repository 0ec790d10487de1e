package nixcmd

import (
	"context"
	"encoding/json"
	"fmt"
)

// PathInfo describes a built store path.
type PathInfo struct {
	Path        string
	NarSize     int64
	ClosureSize int64
}

// QueryPathInfo returns the store path and sizes for a built
// installable. It expects the installable to have a single output.
func QueryPathInfo(ctx context.Context, dir, installable string) (PathInfo, error) {
	stdout, err := runStdout(ctx, dir, "path-info", "--closure-size", "--json", installable)
	if err != nil {
		return PathInfo{}, err
	}
	return parsePathInfo([]byte(stdout))
}

func parsePathInfo(data []byte) (PathInfo, error) {
	var m map[string]struct {
		NarSize     int64 `json:"narSize"`
		ClosureSize int64 `json:"closureSize"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return PathInfo{}, fmt.Errorf("failed to parse nix path-info output: %w", err)
	}
	if len(m) != 1 {
		return PathInfo{}, fmt.Errorf("expected one path, got %d", len(m))
	}
	var pi PathInfo
	for path, v := range m {
		pi = PathInfo{Path: path, NarSize: v.NarSize, ClosureSize: v.ClosureSize}
	}
	return pi, nil
}
