// Package cacheserve serves the host's nix store over HTTP in the
// binary cache protocol, so a clean-room container can substitute
// paths the host already built instead of downloading them again.
package cacheserve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flakewright/flakewright/cacheserve/db"
)

// DefaultAddr binds the cache to loopback. The clean-room container
// runs with host networking, so loopback is reachable from inside it.
const DefaultAddr = "127.0.0.1:41805"

const readyTimeout = 30 * time.Second

// Server is a running binary cache over the host's nix store.
type Server struct {
	log     *slog.Logger
	server  *http.Server
	closeDB func() error
	url     string
}

// Start opens the nix database read-only, binds addr and serves until
// Close. It returns once the cache answers its readiness probe.
func Start(ctx context.Context, log *slog.Logger, addr, dbPath string) (*Server, error) {
	if addr == "" {
		addr = DefaultAddr
	}
	if dbPath == "" {
		dbPath = db.DefaultPath
	}
	store, closeDB, err := db.Open(dbPath)
	if err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s := &Server{
		log:     log,
		server:  &http.Server{Handler: NewHandler(log, store)},
		closeDB: closeDB,
		url:     fmt.Sprintf("http://%s", listener.Addr().String()),
	}
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("binary cache server failed", slog.Any("error", err))
		}
	}()
	if err := waitReady(ctx, s.url+"/nix-cache-info"); err != nil {
		s.Close()
		return nil, err
	}
	log.Info("binary cache serving", slog.String("url", s.url))
	return s, nil
}

// URL is the base URL clients pass to nix as an extra substituter.
func (s *Server) URL() string {
	return s.url
}

// Close stops the HTTP server and closes the database pool.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(s.server.Shutdown(ctx), s.closeDB())
}

func waitReady(ctx context.Context, url string) error {
	deadline := time.Now().Add(readyTimeout)
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create readiness request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("binary cache not ready after %v", readyTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}
