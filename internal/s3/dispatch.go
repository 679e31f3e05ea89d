package s3

import "net/http"

// Operation identifies one S3 REST API verb this gateway implements.
type Operation string

const (
	OperationUnknown                 Operation = "Unknown"
	OperationListBuckets             Operation = "ListBuckets"
	OperationHeadBucket              Operation = "HeadBucket"
	OperationListObjects             Operation = "ListObjectsV2"
	OperationPutObject               Operation = "PutObject"
	OperationGetObject               Operation = "GetObject"
	OperationHeadObject              Operation = "HeadObject"
	OperationDeleteObject            Operation = "DeleteObject"
	OperationDeleteObjects           Operation = "DeleteObjects"
	OperationCopyObject              Operation = "CopyObject"
	OperationCreateMultipartUpload   Operation = "CreateMultipartUpload"
	OperationUploadPart              Operation = "UploadPart"
	OperationCompleteMultipartUpload Operation = "CompleteMultipartUpload"
	OperationAbortMultipartUpload    Operation = "AbortMultipartUpload"
	OperationListParts               Operation = "ListParts"
)

// DispatchQuery captures the query-string presence/value signals the
// dispatch table in spec.md §4.4 branches on. Bucket-scoped query
// parameters the teacher tracked (versioning, policy, ACL, lifecycle) have
// no equivalent operation here: this gateway's single storage zone has no
// versioning, ACLs, policies or lifecycle configuration (spec.md §1
// Non-goals). CreateBucket/DeleteBucket have no operation either: a
// bucket-level PUT or DELETE resolves to OperationUnknown, which the API
// layer answers with NotImplemented.
type DispatchQuery struct {
	ListType      string
	HasListType   bool
	Delimiter     string
	Prefix        string
	Continuation  string
	StartAfter    string
	MaxKeys       string
	EncodingType  string
	HasUploads    bool
	HasUploadID   bool
	HasPartNumber bool
	HasDelete     bool
	UploadID      string
	PartNumber    string
	HasCopySource bool
}

// ResolveOperation implements the dispatch table from spec.md §4.4.
// Unrecognised method/query combinations return OperationUnknown, which
// the API layer maps to NotImplemented.
func ResolveOperation(method string, target RequestTarget, query DispatchQuery, headers http.Header) Operation {
	if target.Key == "" {
		switch method {
		case http.MethodGet:
			if query.HasListType || query.ListType != "" {
				return OperationListObjects
			}
			return OperationListBuckets
		case http.MethodHead:
			return OperationHeadBucket
		case http.MethodPost:
			if query.HasDelete {
				return OperationDeleteObjects
			}
		}
		return OperationUnknown
	}

	switch method {
	case http.MethodPut:
		if query.HasUploadID || query.HasPartNumber {
			if query.UploadID != "" && query.PartNumber != "" {
				return OperationUploadPart
			}
			return OperationUnknown
		}
		if headers.Get("X-Amz-Copy-Source") != "" || query.HasCopySource {
			return OperationCopyObject
		}
		return OperationPutObject
	case http.MethodGet:
		if query.HasUploadID {
			return OperationListParts
		}
		return OperationGetObject
	case http.MethodHead:
		return OperationHeadObject
	case http.MethodDelete:
		if query.HasUploadID {
			return OperationAbortMultipartUpload
		}
		return OperationDeleteObject
	case http.MethodPost:
		if query.HasUploads {
			return OperationCreateMultipartUpload
		}
		if query.HasUploadID {
			return OperationCompleteMultipartUpload
		}
		return OperationUnknown
	default:
		return OperationUnknown
	}
}
