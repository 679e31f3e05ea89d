package api

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/0xC9C3/bunny-s3-proxy/internal/bunny"
	"github.com/0xC9C3/bunny-s3-proxy/internal/iox"
	"github.com/0xC9C3/bunny-s3-proxy/internal/multipart"
	"github.com/0xC9C3/bunny-s3-proxy/internal/s3"
	"github.com/0xC9C3/bunny-s3-proxy/internal/s3err"
	"github.com/0xC9C3/bunny-s3-proxy/internal/sigv4"
	xmlpkg "github.com/0xC9C3/bunny-s3-proxy/internal/xml"
)

// Service implements the S3 REST surface this gateway translates onto
// Bunny's storage API. It holds no request-scoped or backend state of
// its own beyond the Bunny client and multipart engine: every Handler
// invocation is independent, matching the stateless-gateway design
// spec.md §1 calls for.
type Service struct {
	Bunny             *bunny.Client
	Multipart         *multipart.Engine
	Zone              string
	Region            string
	ServiceName       string
	AccessKeyID       string
	SecretAccessKey   string
	ClockSkew         time.Duration
	ServiceHost       string
	MaxBodyBytes      int64
	PathLive          string
	PathReady         string
	ReadyCheck        func() error
	Now               func() time.Time
	Logger            *slog.Logger
	StartedAt         time.Time
}

type contextKey struct{}

type requestContext struct {
	RequestID   string
	Target      s3.RequestTarget
	Operation   s3.Operation
	PayloadHash string
	ErrorCode   string
}

// Handler wires request-target parsing, SigV4 verification and
// operation dispatch into one http.Handler, logging each request on
// the way out the way the teacher's runtime does.
func (s *Service) Handler() http.Handler {
	nowFn := s.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	serviceName := s.ServiceName
	if serviceName == "" {
		serviceName = "s3"
	}

	router := s3.NewRouter(s3.RouterConfig{
		ServiceHost: s.ServiceHost,
		PathLive:    s.PathLive,
		PathReady:   s.PathReady,
		ReadyCheck:  s.ReadyCheck,
		Handler: func(w http.ResponseWriter, r *http.Request, target s3.RequestTarget, op s3.Operation) {
			s.limitRequestBody(w, r)
			start := nowFn()
			reqID := s3.RequestIDFromContext(r.Context())
			rc := requestContext{RequestID: reqID, Target: target, Operation: op}
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			if op == s3.OperationUnknown {
				rc.ErrorCode = s3err.NotImplemented.Code
				s3err.Write(sw, reqID, s3err.NotImplemented, r.URL.Path)
				s.logRequest(logger, r, sw.status, time.Since(start), rc)
				return
			}

			payloadHash, err := s.authenticate(r, nowFn(), serviceName)
			if err != nil {
				apiErr := s3err.MapError(err)
				rc.ErrorCode = apiErr.Code
				s3err.Write(sw, reqID, apiErr, resourceFromTarget(target))
				s.logRequest(logger, r, sw.status, time.Since(start), rc)
				return
			}
			rc.PayloadHash = payloadHash

			ctx := context.WithValue(r.Context(), contextKey{}, rc)
			if err := s.dispatch(sw, r.WithContext(ctx), op, target); err != nil {
				apiErr := s3err.MapError(err)
				rc.ErrorCode = apiErr.Code
				s3err.Write(sw, reqID, apiErr, resourceFromTarget(target))
			}
			s.logRequest(logger, r, sw.status, time.Since(start), rc)
		},
	})

	return router
}

func (s *Service) limitRequestBody(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil || r.Body == http.NoBody {
		return
	}
	if s.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.MaxBodyBytes)
	}
}

func (s *Service) logRequest(logger *slog.Logger, r *http.Request, status int, latency time.Duration, info requestContext) {
	logger.Info("request complete",
		"request_id", info.RequestID,
		"remote_addr", r.RemoteAddr,
		"method", r.Method,
		"host", r.Host,
		"path", r.URL.Path,
		"status_code", status,
		"latency_ms", latency.Milliseconds(),
		"operation", string(info.Operation),
		"bucket", info.Target.Bucket,
		"key", info.Target.Key,
		"error_code", info.ErrorCode,
	)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// authenticate verifies the request's SigV4 signature against the
// gateway's single static S3 credential pair (spec.md §4.1: there is no
// per-user authorization, only one access key/secret key pair).
func (s *Service) authenticate(r *http.Request, now time.Time, serviceName string) (string, error) {
	authReq, err := sigv4.ParseRequestAuth(r, now, s.ClockSkew)
	if err != nil {
		return "", err
	}
	if err := sigv4.ValidateScope(authReq.Authorization.Credential, s.Region, serviceName); err != nil {
		return "", err
	}
	if authReq.Authorization.Credential.AccessKey != s.AccessKeyID {
		return "", sigv4.ErrInvalidAccessKey
	}
	if err := sigv4.VerifyRequest(r, authReq, s.SecretAccessKey, s.Region, serviceName); err != nil {
		return "", err
	}
	return authReq.PayloadHash, nil
}

func (s *Service) dispatch(w http.ResponseWriter, r *http.Request, op s3.Operation, target s3.RequestTarget) error {
	switch op {
	case s3.OperationListBuckets:
		return s.handleListBuckets(w, r)
	case s3.OperationHeadBucket:
		return s.handleHeadBucket(w, target.Bucket)
	case s3.OperationListObjects:
		return s.handleListObjectsV2(w, r, target.Bucket)
	case s3.OperationPutObject:
		return s.handlePutObject(w, r, target)
	case s3.OperationGetObject:
		return s.handleGetObject(w, r, target)
	case s3.OperationHeadObject:
		return s.handleHeadObject(w, r, target)
	case s3.OperationDeleteObject:
		return s.handleDeleteObject(w, r, target)
	case s3.OperationDeleteObjects:
		return s.handleDeleteObjects(w, r, target.Bucket)
	case s3.OperationCopyObject:
		return s.handleCopyObject(w, r, target)
	case s3.OperationCreateMultipartUpload:
		return s.handleCreateMultipartUpload(w, r, target)
	case s3.OperationUploadPart:
		return s.handleUploadPart(w, r, target)
	case s3.OperationCompleteMultipartUpload:
		return s.handleCompleteMultipartUpload(w, r, target)
	case s3.OperationAbortMultipartUpload:
		return s.handleAbortMultipartUpload(w, r, target)
	case s3.OperationListParts:
		return s.handleListParts(w, r, target)
	default:
		return s3err.NotImplemented
	}
}

func (s *Service) requireZone(bucket string) error {
	if bucket != s.Zone {
		return s3err.NoSuchBucket
	}
	return nil
}

func (s *Service) handleListBuckets(w http.ResponseWriter, r *http.Request) error {
	xmlpkg.WriteListBuckets(w, s.Zone, s.StartedAt)
	return nil
}

func (s *Service) handleHeadBucket(w http.ResponseWriter, bucket string) error {
	if err := s.requireZone(bucket); err != nil {
		return err
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *Service) handleListObjectsV2(w http.ResponseWriter, r *http.Request, bucket string) error {
	if err := s.requireZone(bucket); err != nil {
		return err
	}
	q := r.URL.Query()
	prefix := q.Get("prefix")
	delimiter := q.Get("delimiter")
	encodingType := q.Get("encoding-type")
	continuationToken := q.Get("continuation-token")
	startAfter := q.Get("start-after")
	maxKeys := xmlpkg.FormatMaxKeys(q.Get("max-keys"))

	contents, prefixes, truncated, next, err := s.listObjects(r.Context(), prefix, delimiter, maxKeys, continuationToken, startAfter)
	if err != nil {
		return err
	}

	xmlpkg.WriteListObjectsV2(w, xmlpkg.ListObjectsV2Result{
		BucketName:            bucket,
		Prefix:                prefix,
		Delimiter:             delimiter,
		MaxKeys:                maxKeys,
		Contents:              contents,
		CommonPrefixes:        prefixes,
		IsTruncated:           truncated,
		ContinuationToken:     continuationToken,
		NextContinuationToken: next,
		StartAfter:            startAfter,
		EncodingType:          encodingType,
	})
	return nil
}

func (s *Service) listObjects(ctx context.Context, prefix, delimiter string, maxKeys int, continuationToken, startAfter string) ([]xmlpkg.Content, []string, bool, string, error) {
	var contents []xmlpkg.Content
	var prefixes []string

	if delimiter == "/" {
		entries, err := s.Bunny.List(ctx, prefix)
		if err != nil {
			return nil, nil, false, "", err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].ObjectName < entries[j].ObjectName })
		for _, e := range entries {
			if e.IsDirectory {
				candidate := prefix + e.ObjectName + "/"
				if s3.IsMultipartKey(candidate) {
					continue
				}
				prefixes = append(prefixes, candidate)
				continue
			}
			key := prefix + e.ObjectName
			if s3.IsMultipartKey(key) {
				continue
			}
			contents = append(contents, xmlpkg.Content{Key: key, LastModified: e.LastChanged, ETag: e.Checksum, Size: e.Length})
		}
	} else {
		files, err := s.Bunny.ListRecursive(ctx, prefix, 0)
		if err != nil {
			return nil, nil, false, "", err
		}
		for _, f := range files {
			key := f.FullPath()
			if s3.IsMultipartKey(key) {
				continue
			}
			contents = append(contents, xmlpkg.Content{Key: key, LastModified: f.LastChanged, ETag: f.Checksum, Size: f.Length})
		}
		sort.Slice(contents, func(i, j int) bool { return contents[i].Key < contents[j].Key })
	}

	// Pagination and max-keys only apply to contents, not prefixes: small
	// zones don't produce enough CommonPrefixes for that gap to matter, but
	// a real S3 page would also slice and count prefixes here.
	token := continuationToken
	if token == "" {
		token = startAfter
	}
	start := 0
	if token != "" {
		for i, c := range contents {
			if c.Key > token {
				start = i
				break
			}
			start = i + 1
		}
	}
	contents = contents[start:]

	truncated := false
	if maxKeys >= 0 && len(contents) > maxKeys {
		contents = contents[:maxKeys]
		truncated = true
	}
	next := ""
	if truncated && len(contents) > 0 {
		next = contents[len(contents)-1].Key
	}
	return contents, prefixes, truncated, next, nil
}

func (s *Service) handlePutObject(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	if err := s.requireZone(target.Bucket); err != nil {
		return err
	}
	if s3.IsMultipartKey(target.Key) {
		return s3err.InvalidRequest
	}

	body := dechunkedBody(r)
	hashed := iox.NewMD5Reader(body)
	contentLength := decodedContentLength(r)

	if err := s.Bunny.Put(r.Context(), target.Key, hashed, contentLength); err != nil {
		return err
	}
	if err := verifyContentMD5(r.Header.Get("Content-MD5"), hashed.Sum()); err != nil {
		_ = s.Bunny.Delete(r.Context(), target.Key)
		return err
	}

	w.Header().Set("ETag", quoteETag(hashed.SumHex()))
	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *Service) handleGetObject(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	if err := s.requireZone(target.Bucket); err != nil {
		return err
	}
	if s3.IsMultipartKey(target.Key) {
		return bunny.ErrNotFound
	}

	rangeHeader := r.Header.Get("Range")
	resp, err := s.Bunny.Get(r.Context(), target.Key, rangeHeader)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	applyObjectHeaders(w.Header(), resp.Header)
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
	return nil
}

func (s *Service) handleHeadObject(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	if err := s.requireZone(target.Bucket); err != nil {
		return err
	}
	if s3.IsMultipartKey(target.Key) {
		return bunny.ErrNotFound
	}

	head, err := s.Bunny.Head(r.Context(), target.Key)
	if err != nil {
		return err
	}
	contentType := head.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(head.ContentLength, 10))
	if head.Checksum != "" {
		w.Header().Set("ETag", quoteETag(head.Checksum))
	}
	if !head.LastModified.IsZero() {
		w.Header().Set("Last-Modified", head.LastModified.UTC().Format(http.TimeFormat))
	}
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *Service) handleDeleteObject(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	if err := s.requireZone(target.Bucket); err != nil {
		return err
	}
	if s3.IsMultipartKey(target.Key) {
		return s3err.InvalidRequest
	}
	if err := s.Bunny.Delete(r.Context(), target.Key); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type deleteObjectsRequest struct {
	XMLName xml.Name `xml:"Delete"`
	Objects []struct {
		Key string `xml:"Key"`
	} `xml:"Object"`
	Quiet bool `xml:"Quiet"`
}

func (s *Service) handleDeleteObjects(w http.ResponseWriter, r *http.Request, bucket string) error {
	if err := s.requireZone(bucket); err != nil {
		return err
	}
	var req deleteObjectsRequest
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		return multipart.ErrMalformedXML
	}

	var deleted []string
	var failures []xmlpkg.DeleteFailure
	for _, obj := range req.Objects {
		if s3.IsMultipartKey(obj.Key) {
			failures = append(failures, xmlpkg.DeleteFailure{Key: obj.Key, Code: s3err.InvalidRequest.Code, Message: s3err.InvalidRequest.Message})
			continue
		}
		if err := s.Bunny.Delete(r.Context(), obj.Key); err != nil {
			apiErr := s3err.MapError(err)
			failures = append(failures, xmlpkg.DeleteFailure{Key: obj.Key, Code: apiErr.Code, Message: apiErr.Message})
			continue
		}
		deleted = append(deleted, obj.Key)
	}

	if req.Quiet {
		deleted = nil
	}
	xmlpkg.WriteDeleteObjects(w, deleted, failures)
	return nil
}

func (s *Service) handleCopyObject(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	if err := s.requireZone(target.Bucket); err != nil {
		return err
	}
	if s3.IsMultipartKey(target.Key) {
		return s3err.InvalidRequest
	}
	source := r.Header.Get("X-Amz-Copy-Source")
	srcBucket, srcKey, err := parseCopySource(source)
	if err != nil {
		return err
	}
	if err := s.requireZone(srcBucket); err != nil {
		return err
	}

	resp, err := s.Bunny.Get(r.Context(), srcKey, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	hashed := iox.NewMD5Reader(resp.Body)
	if err := s.Bunny.Put(r.Context(), target.Key, hashed, resp.ContentLength); err != nil {
		return err
	}
	xmlpkg.WriteCopyObjectResult(w, hashed.SumHex(), time.Now())
	return nil
}

func parseCopySource(value string) (string, string, error) {
	value = strings.TrimPrefix(value, "/")
	decoded, err := url.PathUnescape(value)
	if err != nil {
		return "", "", s3err.InvalidRequest
	}
	parts := strings.SplitN(decoded, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", s3err.InvalidRequest
	}
	return parts[0], parts[1], nil
}

func (s *Service) handleCreateMultipartUpload(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	if err := s.requireZone(target.Bucket); err != nil {
		return err
	}
	if s3.IsMultipartKey(target.Key) {
		return s3err.InvalidRequest
	}
	uploadID, err := s.Multipart.Create(r.Context(), target.Key)
	if err != nil {
		return err
	}
	xmlpkg.WriteInitiateMultipartUpload(w, target.Bucket, target.Key, uploadID)
	return nil
}

func (s *Service) handleUploadPart(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	if err := s.requireZone(target.Bucket); err != nil {
		return err
	}
	uploadID := r.URL.Query().Get("uploadId")
	partNumber, err := strconv.Atoi(r.URL.Query().Get("partNumber"))
	if err != nil {
		return multipart.ErrInvalidPart
	}

	body := dechunkedBody(r)
	etag, _, err := s.Multipart.UploadPart(r.Context(), uploadID, partNumber, body, decodedContentLength(r))
	if err != nil {
		return err
	}
	w.Header().Set("ETag", quoteETag(etag))
	w.WriteHeader(http.StatusOK)
	return nil
}

type completeMultipartUploadRequest struct {
	XMLName xml.Name `xml:"CompleteMultipartUpload"`
	Parts   []struct {
		PartNumber int    `xml:"PartNumber"`
		ETag       string `xml:"ETag"`
	} `xml:"Part"`
}

func (s *Service) handleCompleteMultipartUpload(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	if err := s.requireZone(target.Bucket); err != nil {
		return err
	}
	uploadID := r.URL.Query().Get("uploadId")

	var req completeMultipartUploadRequest
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return multipart.ErrMalformedXML
	}
	parts := make([]multipart.CompletedPart, 0, len(req.Parts))
	for _, p := range req.Parts {
		parts = append(parts, multipart.CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag})
	}

	etag, _, err := s.Multipart.Complete(r.Context(), uploadID, target.Key, parts)
	if err != nil {
		return err
	}
	xmlpkg.WriteCompleteMultipartUpload(w, "/"+target.Bucket+"/"+target.Key, target.Bucket, target.Key, etag)
	return nil
}

func (s *Service) handleAbortMultipartUpload(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	if err := s.requireZone(target.Bucket); err != nil {
		return err
	}
	uploadID := r.URL.Query().Get("uploadId")
	if err := s.Multipart.Abort(r.Context(), uploadID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Service) handleListParts(w http.ResponseWriter, r *http.Request, target s3.RequestTarget) error {
	if err := s.requireZone(target.Bucket); err != nil {
		return err
	}
	uploadID := r.URL.Query().Get("uploadId")
	meta, parts, err := s.Multipart.ListParts(r.Context(), uploadID)
	if err != nil {
		return err
	}
	out := make([]xmlpkg.Part, 0, len(parts))
	for _, p := range parts {
		out = append(out, xmlpkg.Part{PartNumber: p.PartNumber, ETag: p.ETag, Size: p.Size, LastModified: meta.CreatedAt})
	}
	xmlpkg.WriteListParts(w, target.Bucket, target.Key, uploadID, out)
	return nil
}

func resourceFromTarget(target s3.RequestTarget) string {
	if target.Key == "" {
		return "/" + target.Bucket
	}
	return "/" + target.Bucket + "/" + target.Key
}

func quoteETag(etag string) string {
	trimmed := strings.Trim(strings.TrimSpace(etag), "\"")
	if trimmed == "" {
		return `""`
	}
	return `"` + trimmed + `"`
}

func applyObjectHeaders(dst http.Header, src http.Header) {
	for _, h := range []string{"Content-Type", "Content-Length", "Content-Range", "Last-Modified"} {
		if v := src.Get(h); v != "" {
			dst.Set(h, v)
		}
	}
	if checksum := src.Get("Checksum"); checksum != "" {
		dst.Set("ETag", quoteETag(checksum))
	}
}

// dechunkedBody strips AWS chunked transfer framing from r.Body when the
// request used STREAMING-AWS4-HMAC-SHA256-PAYLOAD, per spec.md §4.3.
func dechunkedBody(r *http.Request) io.Reader {
	rc, ok := r.Context().Value(contextKey{}).(requestContext)
	if !ok {
		return r.Body
	}
	return sigv4.DechunkStreamingPayload(r.Body, rc.PayloadHash)
}

func decodedContentLength(r *http.Request) int64 {
	if raw := r.Header.Get("X-Amz-Decoded-Content-Length"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	}
	return r.ContentLength
}

func verifyContentMD5(header string, actual []byte) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	expected, err := base64.StdEncoding.DecodeString(header)
	if err != nil || len(expected) != len(actual) {
		return multipart.ErrBadDigest
	}
	for i := range expected {
		if expected[i] != actual[i] {
			return multipart.ErrBadDigest
		}
	}
	return nil
}

