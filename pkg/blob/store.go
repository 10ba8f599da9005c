package blob

import (
	"context"

	"github.com/spacemaster/spacedrive/pkg/metadata"
)

// ============================================================================
// BlobStore Interface
// ============================================================================

// BlobStore persists file content addressed by opaque blob references.
//
// The blob store knows nothing about the namespace: folders, names, and
// permissions live in the metadata store, which references blobs by
// metadata.BlobRef. A blob with no referencing file record is an orphan
// and will eventually be reclaimed by the garbage collector.
//
// References:
// Put derives the reference from the caller's path hint plus a random
// component, so references are unique and never reused. Callers must not
// parse references; their internal structure is an implementation detail.
//
// Error Handling:
// Business-rule failures return *metadata.StoreError (ErrNotFound for a
// missing blob on GetURL). Transport and backend failures surface as
// ErrUnavailable and are safe to retry.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type BlobStore interface {
	// Put stores data and returns the reference under which it was
	// stored. The pathHint namespaces the blob (for example by owner and
	// folder) but the returned reference is still opaque to callers.
	Put(ctx context.Context, pathHint string, contentType string, data []byte) (metadata.BlobRef, error)

	// GetURL returns a URL from which the blob's content can be fetched.
	//
	// For remote backends the URL is time-limited. Returns ErrNotFound
	// if the blob does not exist.
	GetURL(ctx context.Context, ref metadata.BlobRef) (string, error)

	// Exists reports whether a blob is present.
	Exists(ctx context.Context, ref metadata.BlobRef) (bool, error)

	// Delete removes a blob. Deleting an absent reference is a no-op so
	// multi-step deletions can be retried idempotently.
	Delete(ctx context.Context, ref metadata.BlobRef) error

	// DeleteBatch removes a set of blobs in one best-effort operation.
	//
	// Absent references are treated as successful deletions. Per-blob
	// failures are reported in the returned map; the error return is
	// reserved for context cancellation and whole-batch failures.
	DeleteBatch(ctx context.Context, refs []metadata.BlobRef) (map[metadata.BlobRef]error, error)

	// ListAll returns every blob reference currently stored.
	//
	// Used by the garbage collector to compute the orphaned-blob set.
	// Potentially expensive on remote backends; not for request paths.
	ListAll(ctx context.Context) ([]metadata.BlobRef, error)

	// Healthcheck verifies the backing storage is reachable.
	Healthcheck(ctx context.Context) error
}
