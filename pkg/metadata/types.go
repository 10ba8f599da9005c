package metadata

import "time"

// Principal is an authenticated identity capable of owning items or being
// granted access to them.
//
// Every core operation takes the acting principal as an explicit argument.
// There is no ambient "current user" - authentication happens in an external
// identity provider and the resolved principal is passed down.
type Principal struct {
	// ID is the stable identifier issued by the identity provider
	ID string

	// Email is the resolved address used for share resolution and display
	Email string
}

// Permission is the access level conferred by a share grant.
//
// The permission model is intentionally a closed two-value enumeration.
// Richer models (comment-only, owner-transfer) are out of scope until a
// concrete need arises.
type Permission string

const (
	// PermissionView allows reading an item (listing, download)
	PermissionView Permission = "view"

	// PermissionEdit allows reading and renaming an item.
	// Edit does NOT authorize deletion - only the owner may delete.
	PermissionEdit Permission = "edit"
)

// Valid reports whether p is one of the known permission values.
func (p Permission) Valid() bool {
	return p == PermissionView || p == PermissionEdit
}

// ItemType distinguishes the two namespace entity variants.
type ItemType string

const (
	ItemTypeFolder ItemType = "folder"
	ItemTypeFile   ItemType = "file"
)

// Valid reports whether t is one of the known item types.
func (t ItemType) Valid() bool {
	return t == ItemTypeFolder || t == ItemTypeFile
}

// ItemRef identifies a single namespace entity (folder or file).
//
// ItemRef is comparable and safe to use as a map key, which the batch
// delete path relies on for its failure reporting.
type ItemRef struct {
	Type ItemType
	ID   string
}

// BlobRef is an opaque handle into the blob store.
//
// The format is implementation-specific (S3 object key, memory map key).
// The metadata store records it but never interprets it; only the blob
// store implementation that issued it can resolve it.
type BlobRef string

// Folder is a node in the hierarchical namespace.
//
// Invariants:
//   - The parent chain from any folder terminates at a nil parent (root)
//     and is acyclic. The tree mutation engine enforces this on moves.
//   - OwnerID never changes after creation.
type Folder struct {
	// ID is the store-generated unique identifier
	ID string

	// Name is the display name (non-empty, mutable via rename)
	Name string

	// ParentID references the containing folder; nil means root level
	ParentID *string

	// OwnerID is the creating principal; immutable
	OwnerID string

	// CreatedAt is the monotonically assigned creation timestamp; immutable
	CreatedAt time.Time
}

// File is a leaf in the namespace referencing externally stored bytes.
//
// Invariant: BlobRef is unique per file and never shared between files.
type File struct {
	ID        string
	Name      string
	ParentID  *string
	OwnerID   string
	CreatedAt time.Time

	// BlobRef locates the file's bytes in the blob store.
	// The metadata store owns this record; the blob store owns the bytes.
	BlobRef BlobRef

	// Size is the byte count of the blob (>= 0)
	Size int64

	// ContentType is an advisory MIME type supplied at upload time
	ContentType string
}

// ShareGrant confers view or edit permission on an item to a non-owner.
//
// Invariants:
//   - At most one active grant per (ItemID, GranteeID) pair; granting
//     again updates the permission instead of duplicating.
//   - OwnerID equals the referenced item's owner at grant time, and an
//     owner never holds a grant on their own item.
type ShareGrant struct {
	ID           string
	ItemID       string
	ItemType     ItemType
	OwnerID      string
	GranteeID    string
	GranteeEmail string
	Permission   Permission
	CreatedAt    time.Time
}

// Item is the common read-only view over Folder and File used by
// authorization checks and generic tree operations.
type Item interface {
	// Ref returns the typed identifier of the item
	Ref() ItemRef

	// Owner returns the owning principal's id
	Owner() string

	// DisplayName returns the current name of the item
	DisplayName() string

	// Parent returns the containing folder id, or nil for root level
	Parent() *string
}

func (f *Folder) Ref() ItemRef        { return ItemRef{Type: ItemTypeFolder, ID: f.ID} }
func (f *Folder) Owner() string       { return f.OwnerID }
func (f *Folder) DisplayName() string { return f.Name }
func (f *Folder) Parent() *string     { return f.ParentID }

func (f *File) Ref() ItemRef        { return ItemRef{Type: ItemTypeFile, ID: f.ID} }
func (f *File) Owner() string       { return f.OwnerID }
func (f *File) DisplayName() string { return f.Name }
func (f *File) Parent() *string     { return f.ParentID }

// FolderAttrs carries the caller-supplied fields for folder creation.
// ID and CreatedAt are assigned by the store.
type FolderAttrs struct {
	Name     string
	ParentID *string
	OwnerID  string
}

// FileAttrs carries the caller-supplied fields for file creation.
// ID and CreatedAt are assigned by the store.
type FileAttrs struct {
	Name        string
	ParentID    *string
	OwnerID     string
	BlobRef     BlobRef
	Size        int64
	ContentType string
}

// GrantAttrs carries the caller-supplied fields for a grant upsert.
//
// The (ItemID, GranteeID) pair is the upsert key: if a grant already
// exists for the pair, its permission is updated and its identity (ID,
// CreatedAt) is preserved.
type GrantAttrs struct {
	ItemID       string
	ItemType     ItemType
	OwnerID      string
	GranteeID    string
	GranteeEmail string
	Permission   Permission
}

// SameParent reports whether two parent references point at the same
// location: both root (nil) or both the same folder id.
func SameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
