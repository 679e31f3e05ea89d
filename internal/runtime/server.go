// Package runtime wraps the gateway's listen socket and HTTP/2 server
// setup. There is no TLS here: the gateway is meant to sit behind a
// terminating proxy or be reached over a trusted network/unix socket,
// so it speaks cleartext HTTP/2 via h2c (spec.md §6/§9).
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/0xC9C3/bunny-s3-proxy/internal/config"
)

// maxUploadBufferPerConnection and maxUploadBufferPerStream bound the
// server-side HTTP/2 flow-control windows across every connection this
// process accepts. The outbound bunny.Client transports set no window
// size; they only cap MaxReadFrameSize.
const (
	maxUploadBufferPerConnection = 1 << 20
	maxUploadBufferPerStream     = 1 << 18
)

// Server owns the gateway's listen socket, either a TCP address or a
// unix domain socket, per spec.md §6's dual-mode serving.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
}

// New constructs a Server bound to whichever of cfg.ListenAddr /
// cfg.SocketPath is set; config.Config.Validate already guarantees
// exactly one is.
func New(cfg config.Config, handler http.Handler, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	h2s := &http2.Server{
		MaxUploadBufferPerConnection: maxUploadBufferPerConnection,
		MaxUploadBufferPerStream:     maxUploadBufferPerStream,
	}

	httpServer := &http.Server{
		Handler:           h2c.NewHandler(handler, h2s),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := listen(cfg)
	if err != nil {
		return nil, err
	}

	return &Server{httpServer: httpServer, listener: listener, logger: logger}, nil
}

func listen(cfg config.Config) (net.Listener, error) {
	if cfg.SocketPath != "" {
		if err := os.RemoveAll(cfg.SocketPath); err != nil {
			return nil, fmt.Errorf("remove stale unix socket: %w", err)
		}
		listener, err := net.Listen("unix", cfg.SocketPath)
		if err != nil {
			return nil, fmt.Errorf("listen on unix socket %q: %w", cfg.SocketPath, err)
		}
		return listener, nil
	}
	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", cfg.ListenAddr, err)
	}
	return listener, nil
}

// Start serves until the listener is closed or Shutdown is called.
func (s *Server) Start() error {
	err := s.httpServer.Serve(s.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests, honoring ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr reports the address this server is actually bound to, useful
// when ListenAddr was ":0" and the kernel picked the port.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}
