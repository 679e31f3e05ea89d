package multipart

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // ETag composition, not a security boundary.
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/0xC9C3/bunny-s3-proxy/internal/bunny"
	"github.com/0xC9C3/bunny-s3-proxy/internal/iox"
)

// Engine runs the multipart protocol against Bunny: shared does the _meta
// reads/writes, part cleanup, and Complete's part reads and final object
// PUT, uploadClient returns a
// fresh client per part body upload so one slow or huge part cannot pin
// down the flow-control window of every other concurrent upload (spec.md
// §9's fresh-client-per-upload rationale).
type Engine struct {
	shared       *bunny.Client
	uploadClient func() *bunny.Client
	locks        *ConditionalLock
}

// New constructs a multipart Engine.
func New(shared *bunny.Client, uploadClient func() *bunny.Client) *Engine {
	return &Engine{
		shared:       shared,
		uploadClient: uploadClient,
		locks:        NewConditionalLock(),
	}
}

// Create starts a new multipart upload targeting key, writing an empty
// _meta document and returning the freshly generated upload ID.
func (e *Engine) Create(ctx context.Context, key string) (string, error) {
	uploadID, err := GenerateUploadID()
	if err != nil {
		return "", err
	}
	meta := Meta{Key: key, CreatedAt: time.Now().UTC(), Parts: make(map[string]PartMeta)}
	if err := e.putMeta(ctx, uploadID, meta); err != nil {
		return "", err
	}
	return uploadID, nil
}

// UploadPart streams body to Bunny as the raw bytes of one part, then
// records its ETag and size in _meta under the lock that narrows the
// read-modify-write race described in ConditionalLock's doc comment.
func (e *Engine) UploadPart(ctx context.Context, uploadID string, partNumber int, body io.Reader, size int64) (string, int64, error) {
	if err := ValidatePartNumber(partNumber); err != nil {
		return "", 0, err
	}
	if _, err := e.getMeta(ctx, uploadID); err != nil {
		return "", 0, err
	}

	hashed := iox.NewMD5Reader(body)
	client := e.uploadClient()
	if err := client.Put(ctx, PartPath(uploadID, partNumber), hashed, size); err != nil {
		return "", 0, err
	}
	etag := hashed.SumHex()
	actualSize := hashed.Count()

	release := e.locks.Acquire(uploadID)
	defer release()
	meta, err := e.getMeta(ctx, uploadID)
	if err != nil {
		return "", 0, err
	}
	meta.Parts[strconv.Itoa(partNumber)] = PartMeta{ETag: etag, Size: actualSize}
	if err := e.putMeta(ctx, uploadID, meta); err != nil {
		return "", 0, err
	}
	return etag, actualSize, nil
}

// ListParts returns the upload's meta document and its parts sorted
// ascending by part number.
func (e *Engine) ListParts(ctx context.Context, uploadID string) (Meta, []PartInfo, error) {
	meta, err := e.getMeta(ctx, uploadID)
	if err != nil {
		return Meta{}, nil, err
	}
	return meta, SortedParts(meta), nil
}

// Complete validates requested against the recorded parts, streams their
// concatenation to key, removes the upload's working state, and returns
// the composite ETag and total object size.
func (e *Engine) Complete(ctx context.Context, uploadID, key string, requested []CompletedPart) (string, int64, error) {
	release := e.locks.Acquire(uploadID)
	defer release()

	meta, err := e.getMeta(ctx, uploadID)
	if err != nil {
		return "", 0, err
	}
	parts, err := SelectCompletedParts(meta, requested)
	if err != nil {
		return "", 0, err
	}

	var totalSize int64
	rawDigests := make([]byte, 0, len(parts)*md5.Size)
	for _, part := range parts {
		raw, err := hex.DecodeString(part.ETag)
		if err != nil {
			return "", 0, fmt.Errorf("%w: part %d etag %q is not hex", ErrInvalidPart, part.PartNumber, part.ETag)
		}
		rawDigests = append(rawDigests, raw...)
		totalSize += part.Size
	}
	compositeSum := md5.Sum(rawDigests) //nolint:gosec
	etag := fmt.Sprintf("%s-%d", hex.EncodeToString(compositeSum[:]), len(parts))

	pr, pw := io.Pipe()
	go e.streamParts(ctx, uploadID, parts, pw)

	if err := e.shared.Put(ctx, key, pr, totalSize); err != nil {
		return "", 0, err
	}

	e.cleanup(ctx, uploadID, parts)
	e.locks.Forget(uploadID)
	return etag, totalSize, nil
}

func (e *Engine) streamParts(ctx context.Context, uploadID string, parts []PartInfo, pw *io.PipeWriter) {
	for _, part := range parts {
		resp, err := e.shared.Get(ctx, PartPath(uploadID, part.PartNumber), "")
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_, err = io.Copy(pw, resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
	}
	_ = pw.Close()
}

// Abort discards an in-progress upload: every recorded part plus the
// _meta document itself.
func (e *Engine) Abort(ctx context.Context, uploadID string) error {
	release := e.locks.Acquire(uploadID)
	defer release()

	meta, err := e.getMeta(ctx, uploadID)
	if err != nil {
		return err
	}
	e.cleanup(ctx, uploadID, SortedParts(meta))
	e.locks.Forget(uploadID)
	return nil
}

// cleanup best-effort deletes every part object plus the _meta document.
// Bunny deletes are treated as idempotent (see bunny.Client.Delete), so a
// part already missing is not an error worth surfacing to the caller.
func (e *Engine) cleanup(ctx context.Context, uploadID string, parts []PartInfo) {
	for _, part := range parts {
		_ = e.shared.Delete(ctx, PartPath(uploadID, part.PartNumber))
	}
	_ = e.shared.Delete(ctx, MetaPath(uploadID))
}

func (e *Engine) getMeta(ctx context.Context, uploadID string) (Meta, error) {
	resp, err := e.shared.Get(ctx, MetaPath(uploadID), "")
	if err != nil {
		if IsNoSuchUpload(err) {
			return Meta{}, ErrNoSuchUpload
		}
		return Meta{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Meta{}, fmt.Errorf("read multipart meta: %w", err)
	}
	return decodeMeta(raw)
}

func (e *Engine) putMeta(ctx context.Context, uploadID string, meta Meta) error {
	raw, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	return e.shared.Put(ctx, MetaPath(uploadID), bytes.NewReader(raw), int64(len(raw)))
}
