package metadata

import (
	"context"
)

// ============================================================================
// MetadataStore Interface
// ============================================================================

// MetadataStore persists and queries the folder/file namespace and its
// share grants.
//
// Separation of Concerns:
//
// The metadata store manages namespace structure (folders, files, grants)
// but does NOT manage file content. File bytes live in a blob store and are
// referenced - never owned - by a File's BlobRef.
//
// The store is deliberately primitive: it performs single-record operations
// and exact-match queries. Multi-step semantics (recursive delete, move
// cycle checks, upload coordination) belong to the tree mutation engine;
// authorization decisions belong to the sharing engine. The store's own
// validation is limited to structural rules: non-empty names, valid parent
// references, blob ref uniqueness.
//
// Consistency:
// Every query result reflects a committed state - no partially written
// records are ever visible. Within a single implementation, CreatedAt is
// assigned monotonically so that ListChildren ordering is stable.
//
// Error Handling:
// All business-rule failures return *StoreError. Backend/transport
// failures surface as ErrUnavailable and are safe to retry.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
// Concurrent renames of the same item are last-write-wins; no conflict
// detection is promised.
type MetadataStore interface {
	// ========================================================================
	// Namespace Queries
	// ========================================================================

	// ListChildren returns all folders and files whose parent matches
	// parentID exactly (nil selects the root level), owned by ownerID.
	//
	// Results are ordered by CreatedAt descending, ties broken by id
	// descending so the order is deterministic.
	//
	// Returns:
	//   - []Folder, []File: matching children (empty slices, never nil)
	//   - error: only context cancellation or backend errors
	ListChildren(ctx context.Context, ownerID string, parentID *string) ([]Folder, []File, error)

	// GetFolder retrieves a folder by id.
	//
	// Returns ErrNotFound if the id is absent.
	GetFolder(ctx context.Context, id string) (*Folder, error)

	// GetFile retrieves a file by id.
	//
	// Returns ErrNotFound if the id is absent.
	GetFile(ctx context.Context, id string) (*File, error)

	// GetItem retrieves either variant through a typed reference.
	//
	// Returns ErrNotFound if absent, ErrInvalidArgument for an unknown
	// item type.
	GetItem(ctx context.Context, ref ItemRef) (Item, error)

	// ========================================================================
	// Namespace Mutations
	// ========================================================================

	// CreateFolder validates attrs and persists a new folder.
	//
	// Validation:
	//   - Name must be non-empty after trimming (ErrInvalidArgument)
	//   - ParentID must be nil or reference an existing folder owned by
	//     the same OwnerID (ErrInvalidParent)
	//
	// The store assigns the id and a monotonically increasing CreatedAt.
	CreateFolder(ctx context.Context, attrs FolderAttrs) (*Folder, error)

	// CreateFile validates attrs and persists a new file record.
	//
	// Validation matches CreateFolder, plus:
	//   - BlobRef must be non-empty and not referenced by any other file
	//     (ErrInvalidArgument)
	//   - Size must be >= 0 (ErrInvalidArgument)
	CreateFile(ctx context.Context, attrs FileAttrs) (*File, error)

	// Rename changes an item's display name.
	//
	// Fails with ErrNotFound if the item is absent and ErrInvalidArgument
	// if the new name is empty after trimming. Concurrent renames are
	// last-write-wins.
	Rename(ctx context.Context, ref ItemRef, newName string) error

	// SetParent reparents an item.
	//
	// This is the raw primitive used by the tree mutation engine, which
	// owns authorization and cycle checking. The store only verifies that
	// the destination exists and shares the item's owner (ErrInvalidParent).
	SetParent(ctx context.Context, ref ItemRef, newParentID *string) error

	// Delete removes exactly one record. It does not cascade - cascading
	// is the tree mutation engine's job.
	//
	// Deleting an absent id is a no-op, not an error, so multi-step
	// deletions can be retried idempotently.
	Delete(ctx context.Context, ref ItemRef) error

	// DeleteBatch removes a set of records in one best-effort operation.
	//
	// Absent ids are treated as successful deletions. Per-record failures
	// are reported in the returned map; the error return is reserved for
	// context cancellation and whole-batch backend failures.
	DeleteBatch(ctx context.Context, refs []ItemRef) (map[ItemRef]error, error)

	// ========================================================================
	// Share Grants
	// ========================================================================

	// PutGrant upserts a grant keyed by the (ItemID, GranteeID) pair.
	//
	// If a grant already exists for the pair, its permission is updated
	// in place and its id and CreatedAt are preserved; otherwise a new
	// grant is created. This is what makes repeated sharing idempotent.
	//
	// The store validates the permission value (ErrInvalidArgument) but
	// does not enforce ownership or self-share rules - those belong to
	// the sharing engine.
	PutGrant(ctx context.Context, attrs GrantAttrs) (*ShareGrant, error)

	// GetGrant retrieves a grant by id.
	//
	// Returns ErrNotFound if absent.
	GetGrant(ctx context.Context, id string) (*ShareGrant, error)

	// FindGrant retrieves the grant for an (item, grantee) pair.
	//
	// Returns ErrNotFound when the pair has no active grant.
	FindGrant(ctx context.Context, itemID, granteeID string) (*ShareGrant, error)

	// DeleteGrant removes a grant by id. Absent ids are a no-op.
	DeleteGrant(ctx context.Context, id string) error

	// GrantsForItem returns all grants on an item (the share dialog list).
	GrantsForItem(ctx context.Context, itemID string) ([]ShareGrant, error)

	// GrantsForGrantee returns all grants held by a principal
	// (the "shared with me" resolution path).
	GrantsForGrantee(ctx context.Context, granteeID string) ([]ShareGrant, error)

	// DeleteGrantsForItem removes every grant on an item.
	//
	// Called opportunistically when an item is deleted; grants that slip
	// through (crash between item delete and grant cleanup) are orphans
	// tolerated by readers and reconciled by the garbage collector.
	DeleteGrantsForItem(ctx context.Context, itemID string) error

	// ========================================================================
	// Maintenance
	// ========================================================================

	// AllBlobRefs returns every blob reference recorded in file metadata.
	//
	// Used by the garbage collector to compute the orphaned-blob set.
	AllBlobRefs(ctx context.Context) ([]BlobRef, error)

	// AllGrants returns every grant in the store.
	//
	// Used by the garbage collector to find grants whose item no longer
	// exists.
	AllGrants(ctx context.Context) ([]ShareGrant, error)

	// Healthcheck verifies the store is operational.
	//
	// For implementations with external dependencies this should verify
	// connectivity; in-memory implementations just return nil.
	Healthcheck(ctx context.Context) error
}
