package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	cp "github.com/otiai10/copy"

	"github.com/flakewright/flakewright/cacheserve"
	"github.com/flakewright/flakewright/container"
	"github.com/flakewright/flakewright/inspect"
)

// ReportFileName is the file the clean-room runtime writes its step
// results to in the output mount.
const ReportFileName = "report.json"

// DefaultImage carries nix and the flakewright-runtime binary.
const DefaultImage = "ghcr.io/flakewright/runtime:latest"

// CleanRoomArgs configure a verification run inside a fresh container,
// proving the flake builds without anything the host accumulated
// outside the nix store.
type CleanRoomArgs struct {
	// Dir is the project root containing flake.nix.
	Dir string
	// Image is the runtime image to run, defaults to DefaultImage.
	Image string
	// Language selects the dev shell probe inside the container.
	Language inspect.Language
	// StepTimeout bounds each verification step, defaults to
	// DefaultStepTimeout.
	StepTimeout time.Duration
	// CacheAddr is the listen address for the host binary cache,
	// defaults to cacheserve.DefaultAddr.
	CacheAddr string
	// NixDBPath locates the host nix database. Empty selects the
	// standard location.
	NixDBPath string
	// Platform to run the container on, e.g. linux/amd64. Empty
	// selects the host platform.
	Platform string
	// Logs receives the container log stream. Defaults to os.Stdout.
	Logs io.Writer
}

func (a CleanRoomArgs) Validate() error {
	var errs []error
	if a.Dir == "" {
		errs = append(errs, errors.New("dir is required"))
	}
	if a.Language != inspect.LanguageRust && a.Language != inspect.LanguageGo {
		errs = append(errs, fmt.Errorf("unsupported language %q", a.Language))
	}
	return errors.Join(errs...)
}

// CleanRoom copies the project into a scratch directory, serves the
// host's nix store as a binary cache, and runs the verification suite
// in a container that substitutes from that cache. The report the
// runtime writes is the outcome; a non-zero container exit with a
// readable report means steps failed, not that the run broke.
func CleanRoom(ctx context.Context, log *slog.Logger, args CleanRoomArgs) ([]StepResult, error) {
	if err := args.Validate(); err != nil {
		return nil, err
	}
	if args.Image == "" {
		args.Image = DefaultImage
	}
	if args.StepTimeout <= 0 {
		args.StepTimeout = DefaultStepTimeout
	}
	platform := container.DefaultPlatform()
	if args.Platform != "" {
		var err error
		platform, err = container.NewPlatform(args.Platform)
		if err != nil {
			return nil, err
		}
	}

	log.Info("staging project copy")
	codePath, err := os.MkdirTemp("", "flakewright-code")
	if err != nil {
		return nil, fmt.Errorf("failed to create code dir: %w", err)
	}
	defer os.RemoveAll(codePath)
	if err := stageCode(log, args.Dir, codePath); err != nil {
		return nil, fmt.Errorf("failed to stage project copy: %w", err)
	}

	outPath, err := os.MkdirTemp("", "flakewright-out")
	if err != nil {
		return nil, fmt.Errorf("failed to create out dir: %w", err)
	}
	defer os.RemoveAll(outPath)

	// The cache is an optimisation. Without it the container still
	// works, it just downloads everything from the public cache.
	var cacheURL string
	cache, err := cacheserve.Start(ctx, log, args.CacheAddr, args.NixDBPath)
	if err != nil {
		log.Warn("running without host binary cache", slog.Any("error", err))
	} else {
		defer cache.Close()
		cacheURL = cache.URL() + "?" + url.Values{"trusted": []string{"1"}}.Encode()
	}

	log.Info("running container", slog.String("image", args.Image), slog.String("platform", platform.String()))
	runErr := container.Run(ctx, log, container.Args{
		Image:       args.Image,
		CodePath:    codePath,
		OutPath:     outPath,
		CacheURL:    cacheURL,
		Language:    string(args.Language),
		StepTimeout: args.StepTimeout,
		Platform:    platform,
		Logs:        args.Logs,
	})

	results, readErr := readReport(filepath.Join(outPath, ReportFileName))
	if readErr != nil {
		if runErr != nil {
			return nil, fmt.Errorf("failed to run container: %w", runErr)
		}
		return nil, readErr
	}
	var exitErr container.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return results, fmt.Errorf("failed to run container: %w", runErr)
	}
	return results, nil
}

func stageCode(log *slog.Logger, src, dst string) error {
	// .git stays in: nix only sees files the repository tracks.
	ignore := []string{".direnv", "result", "target", "node_modules"}
	symlinks := make(map[string]struct{})
	opt := cp.Options{
		Skip: func(srcinfo os.FileInfo, src, dest string) (bool, error) {
			for _, ignored := range ignore {
				if srcinfo.Name() == ignored {
					return true, nil
				}
			}
			return false, nil
		},
		OnSymlink: func(src string) cp.SymlinkAction {
			symlinks[src] = struct{}{}
			return cp.Deep
		},
		OnError: func(src, dest string, err error) error {
			if _, ok := symlinks[src]; ok {
				// Dangling build output symlinks are not worth failing over.
				log.Warn("ignoring symlink error", slog.String("src", src), slog.Any("error", err))
				return nil
			}
			return err
		},
		Sync: true,
	}
	return cp.Copy(src, dst, opt)
}

func readReport(path string) ([]StepResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()
	var results []StepResult
	if err := json.NewDecoder(f).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return results, nil
}
