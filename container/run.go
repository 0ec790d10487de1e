// Package container runs the flakewright runtime image, which verifies
// a flake inside a fresh Nix store so that state accumulated on the
// host cannot mask a broken package.
package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

var linuxAMD64 = Platform{
	Architecture: "amd64",
	OS:           "linux",
}

var linuxARM64 = Platform{
	Architecture: "arm64",
	OS:           "linux",
}

// Accepts docker, go and nix spellings of the two supported systems.
var platforms = map[string]Platform{
	"linux/amd64":   linuxAMD64,
	"amd64":         linuxAMD64,
	"x86_64":        linuxAMD64,
	"x86_64-linux":  linuxAMD64,
	"linux/arm64":   linuxARM64,
	"arm64":         linuxARM64,
	"aarch64":       linuxARM64,
	"aarch64-linux": linuxARM64,
}

func NewPlatform(s string) (Platform, error) {
	p, ok := platforms[s]
	if !ok {
		return Platform{}, fmt.Errorf("unknown platform %q", s)
	}
	return p, nil
}

// DefaultPlatform matches the host architecture, so the runtime image
// runs without emulation.
func DefaultPlatform() Platform {
	if p, ok := platforms[runtime.GOARCH]; ok {
		return p
	}
	return linuxAMD64
}

type Platform struct {
	Architecture string
	OS           string
}

func (p Platform) String() string {
	return fmt.Sprintf("%s/%s", p.OS, p.Architecture)
}

// ExitError reports a container that ran to completion with a non-zero
// status. The verification report on disk still carries the detail.
type ExitError struct {
	StatusCode int64
}

func (e ExitError) Error() string {
	return fmt.Sprintf("container exited with status %d", e.StatusCode)
}

type Args struct {
	// Image is the runtime image reference.
	Image string
	// CodePath is the staged project copy, mounted at /code.
	CodePath string
	// OutPath receives the verification report, mounted at /out.
	OutPath string
	// CacheURL is the host binary cache the runtime substitutes from.
	// Host networking is enabled when set, so the container can reach
	// the cache over the loopback interface.
	CacheURL string
	// Language selects the toolchain probe inside the container.
	Language string
	// StepTimeout bounds each verification step inside the container.
	StepTimeout time.Duration
	// Platform of the image to run.
	Platform Platform
	// Logs receives the container output. Defaults to os.Stdout.
	Logs io.Writer
}

func (a Args) Validate() error {
	var errs []error
	if a.Image == "" {
		errs = append(errs, errors.New("image is required"))
	}
	if a.CodePath == "" {
		errs = append(errs, errors.New("code path is required"))
	}
	if a.OutPath == "" {
		errs = append(errs, errors.New("out path is required"))
	}
	return errors.Join(errs...)
}

// Run creates, starts and waits for a runtime container that verifies
// the flake mounted at /code and writes its report to /out.
func Run(ctx context.Context, log *slog.Logger, args Args) (err error) {
	if err := args.Validate(); err != nil {
		return err
	}
	logs := args.Logs
	if logs == nil {
		logs = os.Stdout
	}

	cli, err := client.NewClientWithOpts()
	if err != nil {
		return fmt.Errorf("failed to create docker client: %w", err)
	}

	if err := pullImage(ctx, cli, args.Image, args.Platform, logs); err != nil {
		log.Warn("failed to pull image, using local copy if available",
			slog.String("image", args.Image), slog.Any("error", err))
	}

	codePath, err := filepath.Abs(args.CodePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute code path: %w", err)
	}
	outPath, err := filepath.Abs(args.OutPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute out path: %w", err)
	}

	entrypoint := []string{"/usr/local/bin/flakewright-runtime"}
	if args.CacheURL != "" {
		entrypoint = append(entrypoint, "-substituter", args.CacheURL)
	}
	if args.Language != "" {
		entrypoint = append(entrypoint, "-language", args.Language)
	}
	if args.StepTimeout > 0 {
		entrypoint = append(entrypoint, "-timeout", args.StepTimeout.String())
	}

	cconf := &container.Config{
		Tty:          true,
		AttachStdout: true,
		AttachStderr: true,
		Image:        args.Image,
		Entrypoint:   entrypoint,
	}
	hconf := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: codePath,
				Target: "/code",
			},
			{
				Type:   mount.TypeBind,
				Source: outPath,
				Target: "/out",
			},
		},
	}
	if args.CacheURL != "" {
		// The cache listens on the host, so the container needs the
		// host's loopback interface.
		hconf.NetworkMode = "host"
	}
	nconf := &network.NetworkingConfig{}
	p := &ocispec.Platform{
		Architecture: args.Platform.Architecture,
		OS:           args.Platform.OS,
	}
	cont, err := cli.ContainerCreate(ctx, cconf, hconf, nconf, p, "")
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	var wg sync.WaitGroup

	// Wait for the container to finish and collect any errors.
	var runErr, logErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		respChan, errChan := cli.ContainerWait(ctx, cont.ID, container.WaitConditionNextExit)
		select {
		case resp := <-respChan:
			if resp.Error != nil {
				runErr = fmt.Errorf("container wait error: %v", resp.Error)
			} else if resp.StatusCode != 0 {
				runErr = ExitError{StatusCode: resp.StatusCode}
			}
		case err := <-errChan:
			runErr = fmt.Errorf("container wait error: %w", err)
		case <-ctx.Done():
			runErr = ctx.Err()
		}
	}()

	if err := cli.ContainerStart(ctx, cont.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}

	// Stream the logs, now that the container is running.
	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := cli.ContainerLogs(ctx, cont.ID, container.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
			Timestamps: false,
		})
		if err != nil {
			logErr = fmt.Errorf("failed to get container logs: %w", err)
			return
		}
		defer r.Close()
		_, logErr = io.Copy(logs, r)
	}()

	wg.Wait()

	return errors.Join(runErr, logErr)
}

func pullImage(ctx context.Context, cli *client.Client, imageRef string, platform Platform, logs io.Writer) (err error) {
	pull, err := cli.ImagePull(ctx, imageRef, image.PullOptions{
		Platform: platform.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer pull.Close()
	if _, err := io.Copy(logs, pull); err != nil {
		return fmt.Errorf("failed to read image pull response: %w", err)
	}
	return nil
}
