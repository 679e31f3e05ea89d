package sigv4

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseAuthorizationHeaderSuccess(t *testing.T) {
	t.Parallel()
	value := "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20260101/us-east-1/s3/aws4_request, " +
		"SignedHeaders=host;x-amz-date, Signature=deadbeef"
	auth, err := ParseAuthorizationHeader(value)
	if err != nil {
		t.Fatalf("ParseAuthorizationHeader error: %v", err)
	}
	if auth.Credential.AccessKey != "AKIDEXAMPLE" || auth.Credential.Region != "us-east-1" {
		t.Fatalf("unexpected credential scope: %+v", auth.Credential)
	}
	if len(auth.SignedHeaders) != 2 || auth.SignedHeaders[0] != "host" {
		t.Fatalf("unexpected signed headers: %v", auth.SignedHeaders)
	}
	if auth.Signature != "deadbeef" {
		t.Fatalf("unexpected signature: %q", auth.Signature)
	}
}

func TestParseAuthorizationHeaderRejectsWrongAlgorithm(t *testing.T) {
	t.Parallel()
	if _, err := ParseAuthorizationHeader("AWS3-HMAC-SHA1 Credential=x"); err != ErrMalformedAuthorization {
		t.Fatalf("expected ErrMalformedAuthorization, got %v", err)
	}
}

func TestParseAuthorizationHeaderRejectsMissingSignature(t *testing.T) {
	t.Parallel()
	value := "AWS4-HMAC-SHA256 Credential=AKID/20260101/us-east-1/s3/aws4_request, SignedHeaders=host"
	if _, err := ParseAuthorizationHeader(value); err != ErrMalformedAuthorization {
		t.Fatalf("expected ErrMalformedAuthorization, got %v", err)
	}
}

func TestParseSignedHeadersRejectsUppercase(t *testing.T) {
	t.Parallel()
	if _, err := ParseSignedHeaders("Host;x-amz-date"); err != ErrInvalidSignedHeaders {
		t.Fatalf("expected ErrInvalidSignedHeaders, got %v", err)
	}
}

func TestParseSignedHeadersRejectsEmpty(t *testing.T) {
	t.Parallel()
	if _, err := ParseSignedHeaders(""); err != ErrInvalidSignedHeaders {
		t.Fatalf("expected ErrInvalidSignedHeaders, got %v", err)
	}
}

func TestParseAmzDateWithinSkewSucceeds(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	parsed, err := ParseAmzDate("20260101T115900Z", now, 15*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !parsed.Equal(time.Date(2026, 1, 1, 11, 59, 0, 0, time.UTC)) {
		t.Fatalf("unexpected parsed time: %v", parsed)
	}
}

func TestParseAmzDateOutsideSkewFails(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if _, err := ParseAmzDate("20260101T000000Z", now, 15*time.Minute); err != ErrClockSkew {
		t.Fatalf("expected ErrClockSkew, got %v", err)
	}
}

func TestParseAmzDateMalformedValue(t *testing.T) {
	t.Parallel()
	if _, err := ParseAmzDate("not-a-date", time.Now(), 0); err != ErrInvalidAmzDate {
		t.Fatalf("expected ErrInvalidAmzDate, got %v", err)
	}
}

func TestParseRequestAuthHeaderMode(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, "http://localhost/bucket/key", nil)
	r.Header.Set("Authorization", "AWS4-HMAC-SHA256 Credential=AKID/20260101/us-east-1/s3/aws4_request, "+
		"SignedHeaders=host, Signature=deadbeef")
	r.Header.Set("X-Amz-Date", "20260101T120000Z")
	r.Header.Set("X-Amz-Content-Sha256", "UNSIGNED-PAYLOAD")

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	auth, err := ParseRequestAuth(r, now, 15*time.Minute)
	if err != nil {
		t.Fatalf("ParseRequestAuth error: %v", err)
	}
	if auth.PayloadHash != "UNSIGNED-PAYLOAD" || auth.Authorization.Signature != "deadbeef" {
		t.Fatalf("unexpected auth: %+v", auth)
	}
}

func TestParseRequestAuthIgnoresPresignedQueryParams(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, "http://localhost/bucket/key?"+
		"X-Amz-Algorithm=AWS4-HMAC-SHA256&"+
		"X-Amz-Credential=AKID%2F20260101%2Fus-east-1%2Fs3%2Faws4_request&"+
		"X-Amz-Date=20260101T120000Z&"+
		"X-Amz-SignedHeaders=host&"+
		"X-Amz-Signature=deadbeef", nil)

	if _, err := ParseRequestAuth(r, time.Now(), 0); err != ErrMalformedAuthorization {
		t.Fatalf("expected ErrMalformedAuthorization for a request with no Authorization header, got %v", err)
	}
}

func TestParseRequestAuthMissingCredentialsFails(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, "http://localhost/bucket/key", nil)
	if _, err := ParseRequestAuth(r, time.Now(), 0); err != ErrMalformedAuthorization {
		t.Fatalf("expected ErrMalformedAuthorization, got %v", err)
	}
}

func TestBuildCanonicalRequestSortsQueryAndHeaders(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, "http://localhost/bucket/key?b=2&a=1", nil)
	r.Host = "s3.example.com"
	r.Header.Set("X-Amz-Date", "20260101T120000Z")

	canonical, err := BuildCanonicalRequest(r, []string{"host", "x-amz-date"}, "UNSIGNED-PAYLOAD")
	if err != nil {
		t.Fatalf("BuildCanonicalRequest error: %v", err)
	}
	want := "GET\n/bucket/key\na=1&b=2\nhost:s3.example.com\nx-amz-date:20260101T120000Z\n\nhost;x-amz-date\nUNSIGNED-PAYLOAD"
	if canonical != want {
		t.Fatalf("canonical request mismatch:\ngot:  %q\nwant: %q", canonical, want)
	}
}

func TestBuildCanonicalRequestExcludesSignatureFromQuery(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, "http://localhost/bucket/key?X-Amz-Signature=abc&a=1", nil)
	r.Host = "s3.example.com"

	canonical, err := BuildCanonicalRequest(r, []string{"host"}, "UNSIGNED-PAYLOAD")
	if err != nil {
		t.Fatalf("BuildCanonicalRequest error: %v", err)
	}
	if want := "a=1"; !containsLine(canonical, want) {
		t.Fatalf("expected query %q in canonical request, got %q", want, canonical)
	}
	if containsLine(canonical, "X-Amz-Signature") {
		t.Fatalf("signature should be excluded from canonical query: %q", canonical)
	}
}

func containsLine(s, substr string) bool {
	for _, line := range splitLines(s) {
		if line == substr {
			return true
		}
	}
	return false
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func TestValidatePayloadHashAcceptsKnownSentinelsAndHex(t *testing.T) {
	t.Parallel()
	cases := []struct {
		value string
		valid bool
	}{
		{"UNSIGNED-PAYLOAD", true},
		{StreamingPayload, true},
		{"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", true},
		{"not-hex-and-not-64-chars", false},
	}
	for _, tc := range cases {
		err := validatePayloadHash(tc.value)
		if tc.valid && err != nil {
			t.Errorf("validatePayloadHash(%q) = %v, want nil", tc.value, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("validatePayloadHash(%q) = nil, want error", tc.value)
		}
	}
}

func TestParseCredentialScopeRejectsWrongPartCount(t *testing.T) {
	t.Parallel()
	if _, err := parseCredentialScope("AKID/20260101/us-east-1"); err != ErrMalformedAuthorization {
		t.Fatalf("expected ErrMalformedAuthorization, got %v", err)
	}
}
