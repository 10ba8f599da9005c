package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacemaster/spacedrive/pkg/metadata"
)

func TestMemoryBlobStore_PutAndContent(t *testing.T) {
	store := NewMemoryBlobStore()
	ctx := context.Background()

	data := []byte("hello")
	ref, err := store.Put(ctx, "files/alice/root", "text/plain", data)
	require.NoError(t, err)
	assert.Contains(t, string(ref), "files/alice/root/")

	// Mutating the caller's buffer must not affect stored bytes.
	data[0] = 'X'

	content, contentType, ok := store.Content(ref)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), content)
	assert.Equal(t, "text/plain", contentType)
}

func TestMemoryBlobStore_PutGeneratesUniqueRefs(t *testing.T) {
	store := NewMemoryBlobStore()
	ctx := context.Background()

	first, err := store.Put(ctx, "files/alice/root", "text/plain", []byte("a"))
	require.NoError(t, err)
	second, err := store.Put(ctx, "files/alice/root", "text/plain", []byte("a"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestMemoryBlobStore_GetURL(t *testing.T) {
	store := NewMemoryBlobStore()
	ctx := context.Background()

	ref, err := store.Put(ctx, "files/alice/root", "text/plain", []byte("x"))
	require.NoError(t, err)

	url, err := store.GetURL(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "memory://"+string(ref), url)

	_, err = store.GetURL(ctx, "missing")
	assert.True(t, metadata.IsCode(err, metadata.ErrNotFound))
}

func TestMemoryBlobStore_Exists(t *testing.T) {
	store := NewMemoryBlobStore()
	ctx := context.Background()

	ref, err := store.Put(ctx, "files/alice/root", "text/plain", []byte("x"))
	require.NoError(t, err)

	ok, err := store.Exists(ctx, ref)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryBlobStore_Delete_Idempotent(t *testing.T) {
	store := NewMemoryBlobStore()
	ctx := context.Background()

	ref, err := store.Put(ctx, "files/alice/root", "text/plain", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, ref))
	require.NoError(t, store.Delete(ctx, ref), "second delete is a no-op")

	ok, err := store.Exists(ctx, ref)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryBlobStore_DeleteBatch(t *testing.T) {
	store := NewMemoryBlobStore()
	ctx := context.Background()

	refA, err := store.Put(ctx, "files/alice/root", "text/plain", []byte("a"))
	require.NoError(t, err)
	refB, err := store.Put(ctx, "files/alice/root", "text/plain", []byte("b"))
	require.NoError(t, err)
	refC, err := store.Put(ctx, "files/alice/root", "text/plain", []byte("c"))
	require.NoError(t, err)

	failures, err := store.DeleteBatch(ctx, []metadata.BlobRef{refA, refB, "absent"})
	require.NoError(t, err)
	assert.Empty(t, failures)

	refs, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []metadata.BlobRef{refC}, refs)
}

func TestMemoryBlobStore_ListAll(t *testing.T) {
	store := NewMemoryBlobStore()
	ctx := context.Background()

	refs, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, refs)

	refA, err := store.Put(ctx, "files/alice/root", "text/plain", []byte("a"))
	require.NoError(t, err)
	refB, err := store.Put(ctx, "files/bob/root", "text/plain", []byte("b"))
	require.NoError(t, err)

	refs, err = store.ListAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []metadata.BlobRef{refA, refB}, refs)
}

func TestMemoryBlobStore_ContextCancellation(t *testing.T) {
	store := NewMemoryBlobStore()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Put(cancelled, "files/alice/root", "text/plain", []byte("x"))
	assert.Error(t, err)
	assert.Error(t, store.Healthcheck(cancelled))
}
