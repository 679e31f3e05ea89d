// Package integration hosts shared test-environment plumbing used by the
// compatibility and integration suites under test/.
package integration

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/0xC9C3/bunny-s3-proxy/internal/bunny"
	"github.com/0xC9C3/bunny-s3-proxy/internal/multipart"

	"github.com/0xC9C3/bunny-s3-proxy/internal/api"
)

const (
	CompatZone      = "sdk-compat-zone"
	CompatRegion    = "us-west-1"
	CompatAccessKey = "AKIAFULLCOMPAT"
	CompatSecretKey = "compat-secret-key-0123456789abcdef"
)

// CompatEnv wires a Service against an in-memory fake storage zone and
// serves it over a real listener, so an unmodified AWS SDK client can be
// pointed at it with a custom endpoint.
type CompatEnv struct {
	t      *testing.T
	server *httptest.Server
}

// fakeZone is an in-memory stand-in for a Bunny storage zone, addressed the
// same way bunny.Client builds request paths: /<zone>/<path>.
type fakeZone struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeZoneServer(t *testing.T) *httptest.Server {
	t.Helper()
	fz := &fakeZone{objects: make(map[string][]byte)}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if idx := strings.IndexByte(path, '/'); idx >= 0 {
			path = path[idx+1:]
		}
		fz.mu.Lock()
		defer fz.mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			data, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			fz.objects[path] = data
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			data, ok := fz.objects[path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Length", itoa(len(data)))
			_, _ = w.Write(data)
		case http.MethodDelete:
			delete(fz.objects, path)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// NewCompatEnv boots a Service backed by a fake storage zone and serves it
// over HTTP, ready for a real S3 SDK client to talk to via a custom
// endpoint and path-style addressing.
func NewCompatEnv(t *testing.T) *CompatEnv {
	t.Helper()
	zoneServer := newFakeZoneServer(t)

	shared := bunny.NewWithHTTPClient(zoneServer.Client(), zoneServer.URL, CompatZone, "zone-access-key")
	upload := func() *bunny.Client { return bunny.NewWithHTTPClient(zoneServer.Client(), zoneServer.URL, CompatZone, "zone-access-key") }

	svc := &api.Service{
		Bunny:           shared,
		Multipart:       multipart.New(shared, upload),
		Zone:            CompatZone,
		Region:          CompatRegion,
		ServiceName:     "s3",
		AccessKeyID:     CompatAccessKey,
		SecretAccessKey: CompatSecretKey,
		ClockSkew:       24 * time.Hour,
		ServiceHost:     "",
		PathLive:        "/livez",
		PathReady:       "/readyz",
		ReadyCheck:      func() error { return nil },
		Now:             time.Now,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		StartedAt:       time.Now(),
	}

	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return &CompatEnv{t: t, server: srv}
}

func (e *CompatEnv) BaseURL() string { return e.server.URL }
