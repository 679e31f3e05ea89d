package s3

import (
	"errors"
	"net"
	"net/http"
	"strings"
)

// ErrInvalidRequestPath indicates a request whose bucket reference is
// syntactically empty. Whether the named bucket actually matches the
// gateway's single configured storage zone is checked by the API layer,
// not here.
var ErrInvalidRequestPath = errors.New("invalid s3 request path")

// AddressingStyle distinguishes path-style (/bucket/key) from
// virtual-host-style (bucket.host/key) S3 requests.
type AddressingStyle string

const (
	AddressingPathStyle          AddressingStyle = "path"
	AddressingVirtualHostedStyle AddressingStyle = "virtual_hosted"
)

// RequestTarget is the decoded bucket/key addressed by one request.
type RequestTarget struct {
	Style  AddressingStyle
	Bucket string
	Key    string
}

// ParseRequestTarget decodes the bucket and key referenced by r, accepting
// both addressing styles.
func ParseRequestTarget(r *http.Request, serviceHost string) (RequestTarget, error) {
	host := normalizeHost(r.Host)
	serviceHost = normalizeHost(serviceHost)

	path := strings.TrimPrefix(r.URL.Path, "/")

	if serviceHost != "" && strings.HasSuffix(host, "."+serviceHost) {
		bucket := strings.TrimSuffix(host, "."+serviceHost)
		if bucket == "" {
			return RequestTarget{}, ErrInvalidRequestPath
		}
		return RequestTarget{Style: AddressingVirtualHostedStyle, Bucket: bucket, Key: path}, nil
	}

	if path == "" {
		return RequestTarget{Style: AddressingPathStyle}, nil
	}
	parts := strings.SplitN(path, "/", 2)
	bucket := parts[0]
	if bucket == "" {
		return RequestTarget{}, ErrInvalidRequestPath
	}
	key := ""
	if len(parts) > 1 {
		key = parts[1]
	}
	return RequestTarget{Style: AddressingPathStyle, Bucket: bucket, Key: key}, nil
}

// ParseDispatchQuery extracts the query-string signals ResolveOperation
// needs from a parsed URL query.
func ParseDispatchQuery(q map[string][]string) DispatchQuery {
	return DispatchQuery{
		ListType:      firstQuery(q, "list-type"),
		HasListType:   hasQuery(q, "list-type"),
		Delimiter:     firstQuery(q, "delimiter"),
		Prefix:        firstQuery(q, "prefix"),
		Continuation:  firstQuery(q, "continuation-token"),
		StartAfter:    firstQuery(q, "start-after"),
		MaxKeys:       firstQuery(q, "max-keys"),
		EncodingType:  firstQuery(q, "encoding-type"),
		HasUploads:    hasQuery(q, "uploads"),
		HasUploadID:   hasQuery(q, "uploadId"),
		HasPartNumber: hasQuery(q, "partNumber"),
		HasDelete:     hasQuery(q, "delete"),
		UploadID:      firstQuery(q, "uploadId"),
		PartNumber:    firstQuery(q, "partNumber"),
		HasCopySource: hasQuery(q, "x-amz-copy-source"),
	}
}

func firstQuery(q map[string][]string, key string) string {
	if values, ok := q[key]; ok && len(values) > 0 {
		return values[0]
	}
	return ""
}

func hasQuery(q map[string][]string, key string) bool {
	_, ok := q[key]
	return ok
}

func normalizeHost(value string) string {
	host := strings.TrimSpace(value)
	if host == "" {
		return ""
	}
	if parsedHost, _, err := net.SplitHostPort(host); err == nil {
		host = parsedHost
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	host = strings.TrimSuffix(host, ".")
	return strings.ToLower(host)
}
