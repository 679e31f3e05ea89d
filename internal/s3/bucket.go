package s3

import "strings"

// MultipartPrefix is the reserved key prefix under which the multipart
// engine coordinates upload state on the Bunny backend. Keys under this
// prefix are invisible to ListObjectsV2 and not directly addressable via
// PutObject/GetObject/DeleteObject.
const MultipartPrefix = "__multipart/"

// IsMultipartKey reports whether key falls under the reserved multipart
// coordination prefix.
func IsMultipartKey(key string) bool {
	return strings.HasPrefix(key, MultipartPrefix)
}
