package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/spacemaster/spacedrive/pkg/metadata"
)

// MemoryBlobStore implements blob.BlobStore using an in-memory map.
//
// Suitable for tests and ephemeral deployments. Content is copied on
// Put so callers cannot mutate stored bytes afterwards.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[metadata.BlobRef]storedBlob
}

type storedBlob struct {
	data        []byte
	contentType string
}

// NewMemoryBlobStore creates an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		blobs: make(map[metadata.BlobRef]storedBlob),
	}
}

// Put stores a copy of data under a fresh reference derived from the
// path hint plus a random component.
func (s *MemoryBlobStore) Put(ctx context.Context, pathHint string, contentType string, data []byte) (metadata.BlobRef, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref := metadata.BlobRef(strings.TrimSuffix(pathHint, "/") + "/" + uuid.NewString())

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.blobs[ref] = storedBlob{data: buf, contentType: contentType}
	s.mu.Unlock()

	return ref, nil
}

// GetURL returns a memory scheme URL for the blob. The URL is only
// meaningful to code holding a reference to this store, which is enough
// for tests.
func (s *MemoryBlobStore) GetURL(ctx context.Context, ref metadata.BlobRef) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.blobs[ref]; !ok {
		return "", &metadata.StoreError{Code: metadata.ErrNotFound, Message: "blob not found", Ref: string(ref)}
	}
	return "memory://" + string(ref), nil
}

// Exists reports whether a blob is present.
func (s *MemoryBlobStore) Exists(ctx context.Context, ref metadata.BlobRef) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.blobs[ref]
	return ok, nil
}

// Delete removes a blob. Absent references are a no-op.
func (s *MemoryBlobStore) Delete(ctx context.Context, ref metadata.BlobRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.blobs, ref)
	s.mu.Unlock()

	return nil
}

// DeleteBatch removes a set of blobs. The in-memory store cannot fail
// per blob, so the failure map is always empty.
func (s *MemoryBlobStore) DeleteBatch(ctx context.Context, refs []metadata.BlobRef) (map[metadata.BlobRef]error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	for _, ref := range refs {
		delete(s.blobs, ref)
	}
	s.mu.Unlock()

	return map[metadata.BlobRef]error{}, nil
}

// ListAll returns every stored blob reference.
func (s *MemoryBlobStore) ListAll(ctx context.Context) ([]metadata.BlobRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]metadata.BlobRef, 0, len(s.blobs))
	for ref := range s.blobs {
		refs = append(refs, ref)
	}
	return refs, nil
}

// Content returns the stored bytes and content type for a blob. This is
// a test hook, not part of the BlobStore interface.
func (s *MemoryBlobStore) Content(ref metadata.BlobRef) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blobs[ref]
	if !ok {
		return nil, "", false
	}
	buf := make([]byte, len(b.data))
	copy(buf, b.data)
	return buf, b.contentType, true
}

// Healthcheck always succeeds: there are no external dependencies.
func (s *MemoryBlobStore) Healthcheck(ctx context.Context) error {
	return ctx.Err()
}
