package cacheserve

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/flakewright/flakewright/cacheserve/db"
)

// Store is the subset of the nix database the cache needs.
type Store interface {
	PathFromHashPart(ctx context.Context, hashPart string) (string, bool, error)
	QueryPathInfo(ctx context.Context, storePath string) (db.PathInfo, bool, error)
}

// Handler answers the binary cache protocol: /nix-cache-info, .narinfo
// metadata, .nar archives and build logs.
type Handler struct {
	log   *slog.Logger
	store Store
	// dump streams the NAR serialization of a store path; swapped out
	// in tests.
	dump func(ctx context.Context, stdout, stderr io.Writer, storePath string) error
	// buildLog streams the build log of a store path.
	buildLog func(ctx context.Context, stdout, stderr io.Writer, storePath string) error
}

func NewHandler(log *slog.Logger, store Store) *Handler {
	return &Handler{
		log:      log,
		store:    store,
		dump:     dumpPath,
		buildLog: buildLog,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	msg := fmt.Sprintf("%s %s", r.Method, r.URL.Path)
	status := http.StatusOK
	var err error
	defer func() {
		if err != nil {
			h.log.Error(msg, slog.Int("status", status), slog.Int64("ms", time.Since(now).Milliseconds()), slog.Any("error", err))
			return
		}
		h.log.Debug(msg, slog.Int("status", status), slog.Int64("ms", time.Since(now).Milliseconds()))
	}()
	switch {
	case r.URL.Path == "/nix-cache-info":
		status, err = h.serveCacheInfo(w, r)
	case strings.HasSuffix(r.URL.Path, ".narinfo"):
		status, err = h.serveNarInfo(w, r)
	case strings.HasSuffix(r.URL.Path, ".nar"):
		status, err = h.serveNar(w, r)
	case strings.HasPrefix(r.URL.Path, "/log/"):
		status, err = h.serveBuildLog(w, r)
	default:
		status = http.StatusNotFound
		http.NotFound(w, r)
	}
}

func (h *Handler) serveCacheInfo(w http.ResponseWriter, _ *http.Request) (int, error) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "StoreDir: %s\nWantMassQuery: 1\nPriority: 30\n", db.StoreDir)
	return http.StatusOK, nil
}

func (h *Handler) serveNarInfo(w http.ResponseWriter, r *http.Request) (int, error) {
	hashPart := strings.TrimSuffix(path.Base(r.URL.Path), ".narinfo")
	storePath, ok, err := h.store.PathFromHashPart(r.Context(), hashPart)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query path: %v\n", err), http.StatusInternalServerError)
		return http.StatusInternalServerError, fmt.Errorf("failed to query path: %w", err)
	}
	if !ok {
		http.Error(w, fmt.Sprintf("no store path for %s\n", hashPart), http.StatusNotFound)
		return http.StatusNotFound, nil
	}
	info, ok, err := h.store.QueryPathInfo(r.Context(), storePath)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query path info: %v\n", err), http.StatusInternalServerError)
		return http.StatusInternalServerError, fmt.Errorf("failed to query path info: %w", err)
	}
	if !ok {
		http.Error(w, fmt.Sprintf("no path info for %s\n", storePath), http.StatusNotFound)
		return http.StatusNotFound, nil
	}
	narHash, found := strings.CutPrefix(info.Hash, "sha256:")
	if !found {
		http.Error(w, fmt.Sprintf("unexpected hash form: %s\n", info.Hash), http.StatusInternalServerError)
		return http.StatusInternalServerError, fmt.Errorf("unexpected hash form: %s", info.Hash)
	}

	// References and Deriver are base names per the cache protocol.
	buf := bytes.NewBuffer(nil)
	fmt.Fprintf(buf, "StorePath: %s\n", storePath)
	fmt.Fprintf(buf, "URL: nar/%s-%s.nar\n", hashPart, narHash)
	fmt.Fprintf(buf, "Compression: none\n")
	fmt.Fprintf(buf, "NarHash: %s\n", info.Hash)
	fmt.Fprintf(buf, "NarSize: %d\n", info.NarSize)
	if len(info.Refs) > 0 {
		refs := make([]string, len(info.Refs))
		for i, ref := range info.Refs {
			refs[i] = path.Base(ref)
		}
		fmt.Fprintf(buf, "References: %s\n", strings.Join(refs, " "))
	}
	if info.Deriver != "" {
		fmt.Fprintf(buf, "Deriver: %s\n", path.Base(info.Deriver))
	}

	w.Header().Set("Content-Type", "text/x-nix-narinfo")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
	return http.StatusOK, nil
}

func (h *Handler) serveNar(w http.ResponseWriter, r *http.Request) (int, error) {
	hashPart := strings.TrimSuffix(path.Base(r.URL.Path), ".nar")

	// The URL carries the NAR hash we advertised, so a client notices
	// when a path has been rebuilt since it read the narinfo.
	var expectedHash string
	if before, after, found := strings.Cut(hashPart, "-"); found {
		hashPart = before
		expectedHash = "sha256:" + after
	}

	storePath, ok, err := h.store.PathFromHashPart(r.Context(), hashPart)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query path: %v\n", err), http.StatusInternalServerError)
		return http.StatusInternalServerError, fmt.Errorf("failed to query path: %w", err)
	}
	if !ok {
		http.Error(w, fmt.Sprintf("no store path for %s\n", hashPart), http.StatusNotFound)
		return http.StatusNotFound, nil
	}
	info, ok, err := h.store.QueryPathInfo(r.Context(), storePath)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query path info: %v\n", err), http.StatusInternalServerError)
		return http.StatusInternalServerError, fmt.Errorf("failed to query path info: %w", err)
	}
	if !ok {
		http.Error(w, fmt.Sprintf("no path info for %s\n", storePath), http.StatusNotFound)
		return http.StatusNotFound, nil
	}
	if expectedHash != "" && expectedHash != info.Hash {
		http.Error(w, "nar hash mismatch, the path may have been rebuilt\n", http.StatusNotFound)
		return http.StatusNotFound, fmt.Errorf("nar hash mismatch: expected %s, actual %s", expectedHash, info.Hash)
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.NarSize, 10))

	stderr := bytes.NewBuffer(nil)
	if err := h.dump(r.Context(), w, stderr, storePath); err != nil {
		return http.StatusInternalServerError, fmt.Errorf("failed to dump %q with stderr %q: %w", storePath, stderr.String(), err)
	}
	return http.StatusOK, nil
}

func (h *Handler) serveBuildLog(w http.ResponseWriter, r *http.Request) (int, error) {
	storePath := strings.TrimPrefix(r.URL.Path, "/log")
	stderr := bytes.NewBuffer(nil)
	if err := h.buildLog(r.Context(), w, stderr, storePath); err != nil {
		return http.StatusInternalServerError, fmt.Errorf("failed to get log for %q with stderr %q: %w", storePath, stderr.String(), err)
	}
	return http.StatusOK, nil
}

func dumpPath(ctx context.Context, stdout, stderr io.Writer, storePath string) error {
	nixPath, err := exec.LookPath("nix")
	if err != nil {
		return fmt.Errorf("failed to find nix on path: %w", err)
	}
	cmd := exec.CommandContext(ctx, nixPath, "store", "dump-path", storePath)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

func buildLog(ctx context.Context, stdout, stderr io.Writer, storePath string) error {
	nixPath, err := exec.LookPath("nix")
	if err != nil {
		return fmt.Errorf("failed to find nix on path: %w", err)
	}
	cmd := exec.CommandContext(ctx, nixPath, "log", storePath)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}
