// Package s3err maps internal sentinel errors to the S3 (code, HTTP
// status) pairs clients expect, and writes the resulting XML Error
// document. Errors from Bunny are translated here, never leaked raw: this
// package only ever emits a conforming S3 document, and the request log
// records only the resulting S3 error code, not the upstream detail.
package s3err

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"

	"github.com/0xC9C3/bunny-s3-proxy/internal/bunny"
	"github.com/0xC9C3/bunny-s3-proxy/internal/multipart"
	"github.com/0xC9C3/bunny-s3-proxy/internal/s3"
	"github.com/0xC9C3/bunny-s3-proxy/internal/sigv4"
)

// APIError is a concrete S3 error: its Code and Message populate the XML
// Error document, StatusCode is the HTTP response status.
type APIError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e APIError) Error() string {
	return e.Code + ": " + e.Message
}

var (
	AccessDenied           = APIError{Code: "AccessDenied", Message: "Access Denied", StatusCode: http.StatusForbidden}
	InvalidAccessKeyID     = APIError{Code: "InvalidAccessKeyId", Message: "The AWS Access Key Id you provided does not exist in our records.", StatusCode: http.StatusForbidden}
	SignatureDoesNotMatch  = APIError{Code: "SignatureDoesNotMatch", Message: "The request signature we calculated does not match the signature you provided.", StatusCode: http.StatusForbidden}
	RequestTimeTooSkewed   = APIError{Code: "RequestTimeTooSkewed", Message: "The difference between the request time and the current time is too large.", StatusCode: http.StatusForbidden}
	RequestTimeout         = APIError{Code: "RequestTimeout", Message: "Your socket connection to the server was not read from or written to within the timeout period.", StatusCode: http.StatusBadRequest}
	NoSuchBucket           = APIError{Code: "NoSuchBucket", Message: "The specified bucket does not exist.", StatusCode: http.StatusNotFound}
	NoSuchKey              = APIError{Code: "NoSuchKey", Message: "The specified key does not exist.", StatusCode: http.StatusNotFound}
	NoSuchUpload           = APIError{Code: "NoSuchUpload", Message: "The specified multipart upload does not exist.", StatusCode: http.StatusNotFound}
	InvalidRange           = APIError{Code: "InvalidRange", Message: "The requested range is not satisfiable.", StatusCode: http.StatusRequestedRangeNotSatisfiable}
	InvalidPart            = APIError{Code: "InvalidPart", Message: "One or more of the specified parts could not be found.", StatusCode: http.StatusBadRequest}
	InvalidPartOrder       = APIError{Code: "InvalidPartOrder", Message: "The list of parts was not in ascending order.", StatusCode: http.StatusBadRequest}
	BadDigest              = APIError{Code: "BadDigest", Message: "The Content-MD5 or checksum you specified did not match what we received.", StatusCode: http.StatusBadRequest}
	InvalidRequest         = APIError{Code: "InvalidRequest", Message: "The request is malformed or invalid for this operation.", StatusCode: http.StatusBadRequest}
	MalformedXML           = APIError{Code: "MalformedXML", Message: "The XML you provided was not well-formed or did not validate against our published schema.", StatusCode: http.StatusBadRequest}
	NotImplemented         = APIError{Code: "NotImplemented", Message: "A header or query parameter you provided implies functionality that is not implemented.", StatusCode: http.StatusNotImplemented}
	SlowDown               = APIError{Code: "SlowDown", Message: "Please reduce your request rate.", StatusCode: http.StatusServiceUnavailable}
	InternalError          = APIError{Code: "InternalError", Message: "We encountered an internal error. Please try again.", StatusCode: http.StatusInternalServerError}
)

type errorResponse struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource,omitempty"`
	RequestID string   `xml:"RequestId"`
}

// Write emits a conforming S3 Error XML document for apiErr.
func Write(w http.ResponseWriter, requestID string, apiErr APIError, resource string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(apiErr.StatusCode)
	_ = xml.NewEncoder(w).Encode(errorResponse{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Resource:  resource,
		RequestID: requestID,
	})
}

// MapError resolves err to the concrete APIError to report, per spec.md
// §7's error-kind-to-HTTP/S3-code table (extended in SPEC_FULL.md).
func MapError(err error) APIError {
	var apiErr APIError
	var maxBytesErr *http.MaxBytesError
	switch {
	case err == nil:
		return InternalError
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &maxBytesErr):
		return InvalidRequest
	case errors.Is(err, s3.ErrInvalidRequestPath):
		return NoSuchBucket
	case errors.Is(err, bunny.ErrNotFound):
		return NoSuchKey
	case errors.Is(err, bunny.ErrAccessDenied):
		return AccessDenied
	case errors.Is(err, bunny.ErrInvalidRequest):
		return InvalidRequest
	case errors.Is(err, bunny.ErrUpstream):
		return InternalError
	case errors.Is(err, multipart.ErrNoSuchUpload):
		return NoSuchUpload
	case errors.Is(err, multipart.ErrInvalidPart):
		return InvalidPart
	case errors.Is(err, multipart.ErrInvalidPartOrder):
		return InvalidPartOrder
	case errors.Is(err, multipart.ErrBadDigest):
		return BadDigest
	case errors.Is(err, multipart.ErrMalformedXML):
		return MalformedXML
	case errors.Is(err, sigv4.ErrInvalidAccessKey):
		return InvalidAccessKeyID
	case errors.Is(err, sigv4.ErrClockSkew):
		return RequestTimeTooSkewed
	case errors.Is(err, sigv4.ErrInvalidPayloadHash), errors.Is(err, sigv4.ErrUnsupportedPayloadMode), errors.Is(err, sigv4.ErrInvalidRequestPayload):
		return InvalidRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return RequestTimeout
	case errors.Is(err, sigv4.ErrSignatureMismatch),
		errors.Is(err, sigv4.ErrInvalidCredentialScope),
		errors.Is(err, sigv4.ErrMalformedAuthorization),
		errors.Is(err, sigv4.ErrInvalidSignedHeaders),
		errors.Is(err, sigv4.ErrInvalidAmzDate):
		return SignatureDoesNotMatch
	default:
		return InternalError
	}
}
