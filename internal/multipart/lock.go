package multipart

import "sync"

// ConditionalLock narrows, without eliminating, the read-modify-write race
// on an upload's _meta document that spec.md §5 explicitly tolerates: two
// concurrent UploadPart calls for different part numbers of the same
// upload serialize their _meta read-modify-write around this lock, so the
// window in which a rewrite can be lost shrinks to the time one request
// spends between reading and writing _meta, instead of spanning both
// requests' entire part upload.
//
// This is the in-memory half of the original implementation's
// ConditionalLock abstraction; the Redis-backed variant is not carried
// over (see DESIGN.md).
type ConditionalLock struct {
	mu      sync.Mutex
	perKey  map[string]*sync.Mutex
}

// NewConditionalLock constructs an empty lock table.
func NewConditionalLock() *ConditionalLock {
	return &ConditionalLock{perKey: make(map[string]*sync.Mutex)}
}

// Acquire blocks until the lock for uploadID is held, returning a release
// function the caller must call exactly once.
func (c *ConditionalLock) Acquire(uploadID string) func() {
	c.mu.Lock()
	m, ok := c.perKey[uploadID]
	if !ok {
		m = &sync.Mutex{}
		c.perKey[uploadID] = m
	}
	c.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Forget drops the per-upload mutex once an upload is complete or
// aborted, so the lock table does not grow without bound over the
// lifetime of a long-running process.
func (c *ConditionalLock) Forget(uploadID string) {
	c.mu.Lock()
	delete(c.perKey, uploadID)
	c.mu.Unlock()
}
