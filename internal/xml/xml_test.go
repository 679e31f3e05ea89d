package xml

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWriteListBuckets(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	WriteListBuckets(rec, "my-zone", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	body := rec.Body.String()
	if !strings.Contains(body, "<Name>my-zone</Name>") {
		t.Fatalf("unexpected body: %s", body)
	}
	if rec.Header().Get("Content-Type") != "application/xml" {
		t.Fatalf("unexpected content type: %s", rec.Header().Get("Content-Type"))
	}
}

func TestWriteListObjectsV2WithDelimiter(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	WriteListObjectsV2(rec, ListObjectsV2Result{
		BucketName:     "my-zone",
		Prefix:         "a/",
		Delimiter:      "/",
		MaxKeys:        1000,
		Contents:       []Content{{Key: "a/file.txt", ETag: "deadbeef", Size: 12, LastModified: time.Now()}},
		CommonPrefixes: []string{"a/sub/"},
	})
	body := rec.Body.String()
	if !strings.Contains(body, "<Key>a/file.txt</Key>") {
		t.Fatalf("missing content key: %s", body)
	}
	if !strings.Contains(body, "deadbeef") {
		t.Fatalf("missing etag: %s", body)
	}
	if !strings.Contains(body, "<Prefix>a/sub/</Prefix>") {
		t.Fatalf("missing common prefix: %s", body)
	}
}

func TestWriteListObjectsV2EncodesKeysWhenRequested(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	WriteListObjectsV2(rec, ListObjectsV2Result{
		BucketName:   "my-zone",
		EncodingType: "url",
		Contents:     []Content{{Key: "a b/c.txt", ETag: "x"}},
	})
	body := rec.Body.String()
	if !strings.Contains(body, "a+b%2Fc.txt") {
		t.Fatalf("expected url-encoded key: %s", body)
	}
}

func TestWriteListPartsTracksNextPartNumberMarker(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	WriteListParts(rec, "my-zone", "key", "upload-1", []Part{
		{PartNumber: 1, ETag: "a", Size: 5},
		{PartNumber: 2, ETag: "b", Size: 5},
	})
	body := rec.Body.String()
	if !strings.Contains(body, "<NextPartNumberMarker>2</NextPartNumberMarker>") {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestFormatMaxKeysDefaultsAndClamps(t *testing.T) {
	t.Parallel()
	cases := map[string]int{
		"":      1000,
		"abc":   1000,
		"-1":    1000,
		"5000":  1000,
		"50":    50,
		"0":     0,
	}
	for input, want := range cases {
		if got := FormatMaxKeys(input); got != want {
			t.Errorf("FormatMaxKeys(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestWriteDeleteObjectsListsDeletedAndFailed(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	WriteDeleteObjects(rec, []string{"ok.txt"}, []DeleteFailure{{Key: "bad.txt", Code: "InvalidRequest", Message: "nope"}})
	body := rec.Body.String()
	if !strings.Contains(body, "<Key>ok.txt</Key>") || !strings.Contains(body, "<Code>InvalidRequest</Code>") {
		t.Fatalf("unexpected body: %s", body)
	}
}
