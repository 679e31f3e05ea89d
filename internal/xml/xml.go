// Package xml renders the S3 XML response documents this gateway needs:
// bucket listing, object listing, copy/multipart results. It leans on
// stdlib encoding/xml struct marshaling throughout; no repo in the
// example corpus imports a third-party XML library for this, not even
// the standalone S3-mock reference implementation, so there is no
// ecosystem alternative to reach for here.
package xml

import (
	"encoding/xml"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// maybeEncode applies URL percent-encoding to a key when the request
// asked for encoding-type=url, per ListObjectsV2's contract for keys
// containing control characters.
func maybeEncode(value, encodingType string) string {
	if encodingType != "url" {
		return value
	}
	return url.QueryEscape(value)
}

func write(w http.ResponseWriter, statusCode int, doc any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(doc)
}

// Bucket is one entry of ListAllMyBucketsResult. This gateway exposes
// exactly one bucket, named after its configured storage zone.
type Bucket struct {
	Name         string `xml:"Name"`
	CreationDate string `xml:"CreationDate"`
}

type listAllMyBucketsResult struct {
	XMLName xml.Name `xml:"ListAllMyBucketsResult"`
	Owner   owner    `xml:"Owner"`
	Buckets struct {
		Bucket []Bucket `xml:"Bucket"`
	} `xml:"Buckets"`
}

type owner struct {
	ID          string `xml:"ID"`
	DisplayName string `xml:"DisplayName"`
}

// WriteListBuckets emits ListAllMyBucketsResult for the gateway's single
// bucket.
func WriteListBuckets(w http.ResponseWriter, bucketName string, createdAt time.Time) {
	doc := listAllMyBucketsResult{
		Owner: owner{ID: "bunny-s3-proxy", DisplayName: "bunny-s3-proxy"},
	}
	doc.Buckets.Bucket = []Bucket{{Name: bucketName, CreationDate: formatTime(createdAt)}}
	write(w, http.StatusOK, doc)
}

// Content is one entry of ListBucketResult.
type Content struct {
	Key          string
	LastModified time.Time
	ETag         string
	Size         int64
}

type contentXML struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
}

type commonPrefixXML struct {
	Prefix string `xml:"Prefix"`
}

type listBucketResult struct {
	XMLName               xml.Name          `xml:"ListBucketResult"`
	Name                  string            `xml:"Name"`
	Prefix                string            `xml:"Prefix"`
	Delimiter             string            `xml:"Delimiter,omitempty"`
	MaxKeys               int               `xml:"MaxKeys"`
	KeyCount              int               `xml:"KeyCount"`
	IsTruncated           bool              `xml:"IsTruncated"`
	ContinuationToken     string            `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string            `xml:"NextContinuationToken,omitempty"`
	StartAfter            string            `xml:"StartAfter,omitempty"`
	EncodingType          string            `xml:"EncodingType,omitempty"`
	Contents              []contentXML      `xml:"Contents"`
	CommonPrefixes        []commonPrefixXML `xml:"CommonPrefixes"`
}

// ListObjectsV2Result carries everything WriteListObjectsV2 needs to
// render a ListBucketResult document.
type ListObjectsV2Result struct {
	BucketName            string
	Prefix                string
	Delimiter             string
	MaxKeys               int
	Contents              []Content
	CommonPrefixes        []string
	IsTruncated           bool
	ContinuationToken     string
	NextContinuationToken string
	StartAfter            string
	EncodingType          string
}

// WriteListObjectsV2 emits a ListBucketResult document.
func WriteListObjectsV2(w http.ResponseWriter, result ListObjectsV2Result) {
	doc := listBucketResult{
		Name:                  result.BucketName,
		Prefix:                maybeEncode(result.Prefix, result.EncodingType),
		Delimiter:             result.Delimiter,
		MaxKeys:               result.MaxKeys,
		KeyCount:              len(result.Contents),
		IsTruncated:           result.IsTruncated,
		ContinuationToken:     result.ContinuationToken,
		NextContinuationToken: result.NextContinuationToken,
		StartAfter:            result.StartAfter,
		EncodingType:          result.EncodingType,
	}
	for _, c := range result.Contents {
		doc.Contents = append(doc.Contents, contentXML{
			Key:          maybeEncode(c.Key, result.EncodingType),
			LastModified: formatTime(c.LastModified),
			ETag:         `"` + c.ETag + `"`,
			Size:         c.Size,
			StorageClass: "STANDARD",
		})
	}
	for _, prefix := range result.CommonPrefixes {
		doc.CommonPrefixes = append(doc.CommonPrefixes, commonPrefixXML{Prefix: maybeEncode(prefix, result.EncodingType)})
	}
	write(w, http.StatusOK, doc)
}

type copyObjectResult struct {
	XMLName      xml.Name `xml:"CopyObjectResult"`
	ETag         string   `xml:"ETag"`
	LastModified string   `xml:"LastModified"`
}

// WriteCopyObjectResult emits CopyObjectResult for a completed CopyObject.
func WriteCopyObjectResult(w http.ResponseWriter, etag string, lastModified time.Time) {
	write(w, http.StatusOK, copyObjectResult{ETag: `"` + etag + `"`, LastModified: formatTime(lastModified)})
}

type initiateMultipartUploadResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	UploadID string   `xml:"UploadId"`
}

// WriteInitiateMultipartUpload emits InitiateMultipartUploadResult for a
// CreateMultipartUpload response.
func WriteInitiateMultipartUpload(w http.ResponseWriter, bucket, key, uploadID string) {
	write(w, http.StatusOK, initiateMultipartUploadResult{Bucket: bucket, Key: key, UploadID: uploadID})
}

type partXML struct {
	PartNumber   int    `xml:"PartNumber"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	LastModified string `xml:"LastModified"`
}

type listPartsResult struct {
	XMLName              xml.Name  `xml:"ListPartsResult"`
	Bucket               string    `xml:"Bucket"`
	Key                  string    `xml:"Key"`
	UploadID             string    `xml:"UploadId"`
	PartNumberMarker     int       `xml:"PartNumberMarker"`
	NextPartNumberMarker int       `xml:"NextPartNumberMarker"`
	MaxParts             int       `xml:"MaxParts"`
	IsTruncated          bool      `xml:"IsTruncated"`
	Part                 []partXML `xml:"Part"`
}

// Part is one entry of a ListParts response.
type Part struct {
	PartNumber   int
	ETag         string
	Size         int64
	LastModified time.Time
}

// WriteListParts emits ListPartsResult. This gateway never truncates a
// parts listing (spec.md's part count ceiling is small enough to return
// in one response), so IsTruncated is always false.
func WriteListParts(w http.ResponseWriter, bucket, key, uploadID string, parts []Part) {
	doc := listPartsResult{
		Bucket:   bucket,
		Key:      key,
		UploadID: uploadID,
		MaxParts: MaxPartNumber,
	}
	for _, p := range parts {
		doc.Part = append(doc.Part, partXML{
			PartNumber:   p.PartNumber,
			ETag:         `"` + p.ETag + `"`,
			Size:         p.Size,
			LastModified: formatTime(p.LastModified),
		})
		doc.NextPartNumberMarker = p.PartNumber
	}
	write(w, http.StatusOK, doc)
}

// MaxPartNumber has the same value as multipart.MaxPartNumber. It is
// declared here rather than imported, so this package imports no other
// package of the module.
const MaxPartNumber = 10000

type completeMultipartUploadResult struct {
	XMLName  xml.Name `xml:"CompleteMultipartUploadResult"`
	Location string   `xml:"Location"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	ETag     string   `xml:"ETag"`
}

// WriteCompleteMultipartUpload emits CompleteMultipartUploadResult.
func WriteCompleteMultipartUpload(w http.ResponseWriter, location, bucket, key, etag string) {
	write(w, http.StatusOK, completeMultipartUploadResult{Location: location, Bucket: bucket, Key: key, ETag: `"` + etag + `"`})
}

type deletedXML struct {
	Key string `xml:"Key"`
}

type deleteErrorXML struct {
	Key     string `xml:"Key"`
	Code    string `xml:"Code"`
	Message string `xml:"Message"`
}

type deleteResult struct {
	XMLName xml.Name         `xml:"DeleteResult"`
	Deleted []deletedXML     `xml:"Deleted"`
	Error   []deleteErrorXML `xml:"Error"`
}

// DeleteFailure is one failed entry of a DeleteObjects response.
type DeleteFailure struct {
	Key     string
	Code    string
	Message string
}

// WriteDeleteObjects emits DeleteResult for a bulk delete, listing every
// key that succeeded and every key that failed.
func WriteDeleteObjects(w http.ResponseWriter, deletedKeys []string, failures []DeleteFailure) {
	doc := deleteResult{}
	for _, key := range deletedKeys {
		doc.Deleted = append(doc.Deleted, deletedXML{Key: key})
	}
	for _, f := range failures {
		doc.Error = append(doc.Error, deleteErrorXML{Key: f.Key, Code: f.Code, Message: f.Message})
	}
	write(w, http.StatusOK, doc)
}

// FormatMaxKeys parses a max-keys query value. An empty, non-numeric or
// negative value yields the default of 1000, and values above 1000 are
// capped at 1000.
func FormatMaxKeys(value string) int {
	const defaultMaxKeys = 1000
	if value == "" {
		return defaultMaxKeys
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return defaultMaxKeys
	}
	if n > defaultMaxKeys {
		return defaultMaxKeys
	}
	return n
}
