package bunny

import (
	"errors"
	"time"
)

// Object describes one entry returned by Bunny's directory listing
// endpoint: either a file or a subdirectory under the listed path.
type Object struct {
	ObjectName   string    `json:"ObjectName"`
	Path         string    `json:"Path"`
	Length       int64     `json:"Length"`
	IsDirectory  bool      `json:"IsDirectory"`
	LastChanged  time.Time `json:"LastChanged"`
	ObjectGUID   string    `json:"Guid"`
	Checksum     string    `json:"Checksum"`
}

// FullPath returns the object's full remote path, directories always
// trailing with a slash so BunnyClient.List can descend into them.
func (o Object) FullPath() string {
	p := o.Path + o.ObjectName
	if o.IsDirectory && p != "" && p[len(p)-1] != '/' {
		p += "/"
	}
	return p
}

// Head summarizes the metadata the gateway needs from a GET/HEAD against
// Bunny: size, content type, last-modified time and (when Bunny reports
// one) a checksum usable as a synthesized ETag.
type Head struct {
	StatusCode    int
	ContentLength int64
	ContentType   string
	LastModified  time.Time
	Checksum      string
}

var (
	// ErrNotFound indicates Bunny returned 404 for an object or directory.
	ErrNotFound = errors.New("bunny: object not found")
	// ErrAccessDenied indicates Bunny rejected the configured access key.
	ErrAccessDenied = errors.New("bunny: access denied")
	// ErrInvalidRequest indicates Bunny rejected the request path, range or
	// checksum header as malformed (Bunny HTTP 400).
	ErrInvalidRequest = errors.New("bunny: invalid request")
	// ErrUpstream wraps any other non-2xx Bunny response (5xx, unexpected
	// 4xx) that the gateway cannot map to a more specific sentinel.
	ErrUpstream = errors.New("bunny: upstream error")
)
