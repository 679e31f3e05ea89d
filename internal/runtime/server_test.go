package runtime

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/0xC9C3/bunny-s3-proxy/internal/config"
)

func echoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestServerServesOverTCP(t *testing.T) {
	t.Parallel()
	cfg := config.Config{ListenAddr: "127.0.0.1:0"}
	srv, err := New(cfg, echoHandler(), nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-errCh
	})

	resp, err := http.Get("http://" + srv.Addr() + "/")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("unexpected response: %d %q", resp.StatusCode, body)
	}
}

func TestServerServesOverUnixSocket(t *testing.T) {
	t.Parallel()
	socketPath := filepath.Join(t.TempDir(), "bunny-s3-proxy-test.sock")
	cfg := config.Config{SocketPath: socketPath}
	srv, err := New(cfg, echoHandler(), nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-errCh
	})

	client := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return net.Dial("unix", socketPath)
		},
	}}
	resp, err := client.Get("http://unix/")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("unexpected response: %d %q", resp.StatusCode, body)
	}
}

func TestServerAddrReflectsBoundPort(t *testing.T) {
	t.Parallel()
	cfg := config.Config{ListenAddr: "127.0.0.1:0"}
	srv, err := New(cfg, echoHandler(), nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-errCh
	})

	if srv.Addr() == cfg.ListenAddr {
		t.Fatalf("expected kernel-assigned port, got %q", srv.Addr())
	}
}
