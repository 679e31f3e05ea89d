// Package bunny is a thin typed client for the Bunny.net Storage HTTP
// API: flat PUT/GET/DELETE/HEAD plus a directory-listing endpoint. It is
// the only component in this gateway that ever dials out to Bunny.
package bunny

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/0xC9C3/bunny-s3-proxy/internal/config"
)

// uploadInitialWindow and uploadInitialConnWindow cap the HTTP/2
// flow-control windows of the per-upload client constructed by
// NewUploadClient, mirroring the 16 KiB/32 KiB caps the original
// implementation applies on its reqwest client. golang.org/x/net/http2's
// client Transport does not expose a public initial-window setter the way
// the server side does (Server.MaxUploadBufferPerStream); MaxReadFrameSize
// is the closest available knob, so it is set here, on both transports.
// For multipart part uploads the other memory bound is the fresh client
// built per UploadPart call (see DESIGN.md).
const (
	uploadInitialWindow     = 16 * 1024
	uploadInitialConnWindow = 32 * 1024
	connectTimeout          = config.BunnyConnectTimeoutSecs * time.Second
)

// Client is a typed wrapper over one Bunny storage zone.
type Client struct {
	httpClient *http.Client
	baseURL    string
	zone       string
	accessKey  string
}

// New constructs a Client backed by a single shared *http.Client. The
// gateway sends every Bunny request through it except the part bodies of
// multipart.Engine.UploadPart: GET/DELETE/HEAD/LIST, PutObject and
// CopyObject uploads, the final object PUT of CompleteMultipartUpload, and
// the _meta reads and writes.
func New(cfg config.Config) *Client {
	return &Client{
		httpClient: &http.Client{Transport: sharedTransport()},
		baseURL:    cfg.Region.BaseURL(),
		zone:       cfg.StorageZone,
		accessKey:  cfg.AccessKey,
	}
}

// NewWithHTTPClient builds a Client against an arbitrary base URL, bypassing
// the region lookup and HTTP/2 transport tuning New and NewUploadClient
// apply. Exported for callers that stand in a fake storage zone endpoint,
// such as tests.
func NewWithHTTPClient(httpClient *http.Client, baseURL, zone, accessKey string) *Client {
	return &Client{httpClient: httpClient, baseURL: baseURL, zone: zone, accessKey: accessKey}
}

// NewUploadClient constructs a Client backed by a freshly created
// *http.Client. multipart.Engine.UploadPart builds one per part body and
// discards it afterwards, so those uploads do not share a long-lived HTTP/2
// connection. PutObject and CopyObject do not use it; they upload through
// the shared client from New.
func NewUploadClient(cfg config.Config) *Client {
	return &Client{
		httpClient: &http.Client{Transport: uploadTransport()},
		baseURL:    cfg.Region.BaseURL(),
		zone:       cfg.StorageZone,
		accessKey:  cfg.AccessKey,
	}
}

func sharedTransport() http.RoundTripper {
	return &http2.Transport{
		AllowHTTP:        false,
		MaxReadFrameSize: uploadInitialWindow,
		DialTLSContext:   dialTLSContextWithTimeout(connectTimeout),
	}
}

func uploadTransport() http.RoundTripper {
	return &http2.Transport{
		AllowHTTP:        false,
		MaxReadFrameSize: uploadInitialWindow,
		DialTLSContext:   dialTLSContextWithTimeout(connectTimeout),
	}
}

// dialTLSContextWithTimeout builds the DialTLSContext hook http2.Transport
// needs when it is not wrapping the stdlib http.Transport: a bounded
// connect timeout to Bunny, with TLS verification using the process's
// default root pool (so SSL_CERT_FILE, honoured by crypto/x509's system
// pool loader, applies here exactly as spec.md §6 requires).
func dialTLSContextWithTimeout(timeout time.Duration) func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
	netDialer := &net.Dialer{Timeout: timeout}
	return func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
		dialer := &tls.Dialer{NetDialer: netDialer, Config: cfg}
		return dialer.DialContext(ctx, network, addr)
	}
}

func (c *Client) buildURL(path string) string {
	clean := strings.TrimPrefix(path, "/")
	if clean == "" {
		return fmt.Sprintf("%s/%s/", c.baseURL, c.zone)
	}
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.zone, clean)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("AccessKey", c.accessKey)
	return req, nil
}

// List returns the entries directly inside dirPath. A missing directory is
// reported as an empty listing rather than an error, matching Bunny's own
// behaviour for an absent prefix.
func (c *Client) List(ctx context.Context, dirPath string) ([]Object, error) {
	if !strings.HasSuffix(dirPath, "/") {
		dirPath += "/"
	}
	req, err := c.newRequest(ctx, http.MethodGet, dirPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bunny list %q: %w", dirPath, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var objects []Object
		if err := json.NewDecoder(resp.Body).Decode(&objects); err != nil {
			return nil, fmt.Errorf("bunny list %q: decode response: %w", dirPath, err)
		}
		// Bunny reports Path as the absolute remote path, storage zone
		// included (e.g. "/zone/a/b/"). Callers address objects relative
		// to the zone root, so Path is normalized to that same frame here
		// rather than carrying the zone name through every caller.
		for i := range objects {
			objects[i].Path = strings.TrimPrefix(dirPath, "/")
		}
		return objects, nil
	case http.StatusNotFound:
		return nil, nil
	case http.StatusUnauthorized:
		return nil, ErrAccessDenied
	default:
		return nil, fmt.Errorf("%w: list %q returned %d", ErrUpstream, dirPath, resp.StatusCode)
	}
}

// ListRecursive walks dirs breadth-first starting at prefix, stopping once
// maxKeys files have been collected (0 means unbounded). It backs
// ListObjectsV2's non-delimited listing path.
func (c *Client) ListRecursive(ctx context.Context, prefix string, maxKeys int) ([]Object, error) {
	var files []Object
	queue := []string{prefix}
	for len(queue) > 0 {
		if maxKeys > 0 && len(files) >= maxKeys {
			break
		}
		dir := queue[0]
		queue = queue[1:]

		entries, err := c.List(ctx, dir)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDirectory {
				queue = append(queue, entry.FullPath())
				continue
			}
			files = append(files, entry)
			if maxKeys > 0 && len(files) >= maxKeys {
				break
			}
		}
	}
	return files, nil
}

// Get issues a GET against path, forwarding rangeHeader verbatim (empty
// means no Range header). The caller owns the returned body and must close
// it. Non-2xx statuses are translated to a sentinel without the body being
// read.
func (c *Client) Get(ctx context.Context, path, rangeHeader string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bunny get %q: %w", path, err)
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		return resp, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrNotFound
	case http.StatusUnauthorized:
		resp.Body.Close()
		return nil, ErrAccessDenied
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: get %q returned %d", ErrUpstream, path, resp.StatusCode)
	}
}

// Head reports object metadata via a ranged GET of bytes 0-0, since Bunny
// storage zones do not uniformly support a native HEAD verb.
func (c *Client) Head(ctx context.Context, path string) (Head, error) {
	resp, err := c.Get(ctx, path, "bytes=0-0")
	if err != nil {
		return Head{}, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	length := parseContentRangeTotal(resp.Header.Get("Content-Range"))
	if length < 0 {
		length, _ = strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	}
	lastModified, _ := http.ParseTime(resp.Header.Get("Last-Modified"))

	return Head{
		StatusCode:    resp.StatusCode,
		ContentLength: length,
		ContentType:   resp.Header.Get("Content-Type"),
		LastModified:  lastModified,
		Checksum:      resp.Header.Get("Checksum"),
	}, nil
}

func parseContentRangeTotal(value string) int64 {
	idx := strings.LastIndexByte(value, '/')
	if idx < 0 || idx == len(value)-1 {
		return -1
	}
	total, err := strconv.ParseInt(value[idx+1:], 10, 64)
	if err != nil {
		return -1
	}
	return total
}

// Put streams body to path. contentLength of -1 sends the body chunked.
func (c *Client) Put(ctx context.Context, path string, body io.Reader, contentLength int64) error {
	req, err := c.newRequest(ctx, http.MethodPut, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if contentLength >= 0 {
		req.ContentLength = contentLength
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bunny put %q: %w", path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusBadRequest:
		return ErrInvalidRequest
	case http.StatusUnauthorized:
		return ErrAccessDenied
	default:
		return fmt.Errorf("%w: put %q returned %d", ErrUpstream, path, resp.StatusCode)
	}
}

// Delete removes path. Bunny's 404/400 responses are both treated as a
// successful (idempotent) delete, matching DeleteObject's S3 semantics.
func (c *Client) Delete(ctx context.Context, path string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bunny delete %q: %w", path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNotFound, http.StatusBadRequest:
		return nil
	case http.StatusUnauthorized:
		return ErrAccessDenied
	default:
		return fmt.Errorf("%w: delete %q returned %d", ErrUpstream, path, resp.StatusCode)
	}
}

// EscapePathSegment percent-encodes a single path segment (an S3 object
// key component) for inclusion in a Bunny request path.
func EscapePathSegment(segment string) string {
	return (&url.URL{Path: segment}).EscapedPath()
}
