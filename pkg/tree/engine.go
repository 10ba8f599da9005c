// Package tree implements the tree mutation engine.
//
// The metadata store exposes single-record primitives; this engine
// composes them into the user-facing namespace operations: creation,
// rename, move with cycle prevention, and the two-phase recursive
// delete that keeps metadata and blob storage consistent.
package tree

import (
	"context"

	"github.com/spacemaster/spacedrive/internal/logger"
	"github.com/spacemaster/spacedrive/pkg/authz"
	"github.com/spacemaster/spacedrive/pkg/blob"
	"github.com/spacemaster/spacedrive/pkg/metadata"
)

// Notifier receives change notifications after successful mutations so
// live queries can refresh. The watch hub implements it; NopNotifier
// serves callers that do not need live queries.
type Notifier interface {
	// NotifyChildren signals that the child set under (ownerID, parentID)
	// may have changed.
	NotifyChildren(ctx context.Context, ownerID string, parentID *string)

	// NotifyShared signals that a principal's shared-with-me set may
	// have changed.
	NotifyShared(ctx context.Context, granteeID string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) NotifyChildren(context.Context, string, *string) {}
func (NopNotifier) NotifyShared(context.Context, string)            {}

// Engine performs namespace mutations on behalf of an acting principal.
//
// Consistency model for deletions: blob first, metadata second. A blob
// without a metadata record is an invisible orphan the garbage collector
// reclaims; a metadata record without a blob would be a visible file
// that cannot be downloaded. Orders of operations here always prefer
// the former failure mode.
type Engine struct {
	store    metadata.MetadataStore
	blobs    blob.BlobStore
	authz    *authz.Engine
	notifier Notifier
}

// NewEngine creates a tree mutation engine. Pass NopNotifier when live
// queries are not wired up.
func NewEngine(store metadata.MetadataStore, blobs blob.BlobStore, authzEngine *authz.Engine, notifier Notifier) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{store: store, blobs: blobs, authz: authzEngine, notifier: notifier}
}

// CreateFolder creates a folder owned by the acting principal.
//
// The parent must be nil (root level) or a folder the actor owns:
// a foreign-owned parent is ErrForbidden, a missing one ErrInvalidParent.
// Creating inside a folder that was shared with the actor is not
// supported; shared folders are not navigable.
func (e *Engine) CreateFolder(ctx context.Context, actorID string, name string, parentID *string) (*metadata.Folder, error) {
	if err := e.checkParent(ctx, actorID, parentID); err != nil {
		return nil, err
	}

	folder, err := e.store.CreateFolder(ctx, metadata.FolderAttrs{
		Name:     name,
		ParentID: parentID,
		OwnerID:  actorID,
	})
	if err != nil {
		return nil, err
	}

	e.notifier.NotifyChildren(ctx, actorID, parentID)
	return folder, nil
}

// SaveFile uploads content and records the file in the namespace.
//
// Order of operations: the blob is uploaded first, then the metadata
// record is created. If metadata creation fails the blob is deleted
// best-effort; a leftover blob is an orphan the garbage collector
// reclaims, never a visible inconsistency.
func (e *Engine) SaveFile(ctx context.Context, actorID string, name string, parentID *string, contentType string, data []byte) (*metadata.File, error) {
	if err := e.checkParent(ctx, actorID, parentID); err != nil {
		return nil, err
	}

	ref, err := e.blobs.Put(ctx, uploadPathHint(actorID, parentID), contentType, data)
	if err != nil {
		return nil, err
	}

	file, err := e.store.CreateFile(ctx, metadata.FileAttrs{
		Name:        name,
		ParentID:    parentID,
		OwnerID:     actorID,
		BlobRef:     ref,
		Size:        int64(len(data)),
		ContentType: contentType,
	})
	if err != nil {
		if delErr := e.blobs.Delete(ctx, ref); delErr != nil {
			logger.Warn("failed to clean up blob %s after create failure: %v", ref, delErr)
		}
		return nil, err
	}

	e.notifier.NotifyChildren(ctx, actorID, parentID)
	return file, nil
}

// RenameItem changes an item's display name.
//
// The owner and principals holding an edit grant may rename; a view
// grant is not enough (ErrForbidden).
func (e *Engine) RenameItem(ctx context.Context, actorID string, ref metadata.ItemRef, newName string) error {
	item, err := e.store.GetItem(ctx, ref)
	if err != nil {
		return err
	}

	allowed, err := e.authz.CanWrite(ctx, actorID, ref)
	if err != nil {
		return err
	}
	if !allowed {
		return &metadata.StoreError{Code: metadata.ErrForbidden, Message: "rename requires ownership or an edit grant", Ref: ref.ID}
	}

	if err := e.store.Rename(ctx, ref, newName); err != nil {
		return err
	}

	e.notifier.NotifyChildren(ctx, item.Owner(), item.Parent())
	e.notifyGrantees(ctx, ref.ID)
	return nil
}

// MoveItem reparents an item within its owner's tree.
//
// Only the owner may move an item. For folders the destination must not
// be the folder itself or any of its descendants; such a move would
// disconnect the subtree into a cycle and is rejected with
// ErrInvalidParent.
func (e *Engine) MoveItem(ctx context.Context, actorID string, ref metadata.ItemRef, newParentID *string) error {
	item, err := e.store.GetItem(ctx, ref)
	if err != nil {
		return err
	}
	if item.Owner() != actorID {
		return &metadata.StoreError{Code: metadata.ErrForbidden, Message: "only the owner can move an item", Ref: ref.ID}
	}

	if ref.Type == metadata.ItemTypeFolder && newParentID != nil {
		if err := e.checkNoCycle(ctx, ref.ID, *newParentID); err != nil {
			return err
		}
	}

	oldParent := item.Parent()
	if err := e.store.SetParent(ctx, ref, newParentID); err != nil {
		return err
	}

	e.notifier.NotifyChildren(ctx, actorID, oldParent)
	e.notifier.NotifyChildren(ctx, actorID, newParentID)
	return nil
}

// DownloadURL authorizes a read and returns a URL for the file's
// content. The owner and any grantee (view or edit) may download.
func (e *Engine) DownloadURL(ctx context.Context, actorID string, fileID string) (string, error) {
	file, err := e.store.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}

	allowed, err := e.authz.CanRead(ctx, actorID, file.Ref())
	if err != nil {
		return "", err
	}
	if !allowed {
		return "", &metadata.StoreError{Code: metadata.ErrForbidden, Message: "download requires ownership or a grant", Ref: fileID}
	}

	return e.blobs.GetURL(ctx, file.BlobRef)
}

// DeleteItem permanently removes an item, recursively for folders.
//
// Only the owner may delete; an edit grant does not authorize deletion.
// There is no trash: deletion is immediate and unrecoverable.
//
// Deletion is two-phase per file: the blob is deleted first and the
// metadata record only once the blob is gone, so a failure never leaves
// a visible file whose content is missing. For folders the whole
// subtree is enumerated, blobs are batch-deleted, and metadata records
// are removed bottom-up; items whose blob delete failed keep their
// records (and their ancestor folders) so the deletion can be retried.
// A partial outcome is reported as *PartialDeleteError.
func (e *Engine) DeleteItem(ctx context.Context, actorID string, ref metadata.ItemRef) error {
	item, err := e.store.GetItem(ctx, ref)
	if err != nil {
		return err
	}
	if item.Owner() != actorID {
		return &metadata.StoreError{Code: metadata.ErrForbidden, Message: "only the owner can delete an item", Ref: ref.ID}
	}

	granteeIDs := e.granteesOf(ctx, ref.ID)

	switch it := item.(type) {
	case *metadata.File:
		err = e.deleteFile(ctx, it)
	case *metadata.Folder:
		err = e.deleteFolder(ctx, it)
	}
	if err != nil {
		return err
	}

	e.notifier.NotifyChildren(ctx, item.Owner(), item.Parent())
	for _, granteeID := range granteeIDs {
		e.notifier.NotifyShared(ctx, granteeID)
	}
	return nil
}

// deleteFile removes a single file: blob first, then metadata, then
// grants. A blob delete failure aborts before any metadata is touched.
func (e *Engine) deleteFile(ctx context.Context, file *metadata.File) error {
	if err := e.blobs.Delete(ctx, file.BlobRef); err != nil {
		return err
	}
	if err := e.store.Delete(ctx, file.Ref()); err != nil {
		return err
	}
	e.cleanupGrants(ctx, file.ID)
	return nil
}

// deleteFolder removes a folder and everything beneath it.
func (e *Engine) deleteFolder(ctx context.Context, root *metadata.Folder) error {
	nodes, err := e.collectSubtree(ctx, root)
	if err != nil {
		return err
	}

	// Phase 1: delete blobs in one batch. Files whose blob survives
	// keep their metadata so the content never becomes unreachable
	// while still being listed.
	blobRefs := make([]metadata.BlobRef, 0)
	fileByBlob := make(map[metadata.BlobRef]metadata.ItemRef)
	for _, n := range nodes {
		if n.blobRef != "" {
			blobRefs = append(blobRefs, n.blobRef)
			fileByBlob[n.blobRef] = n.ref
		}
	}

	blobFailures, err := e.blobs.DeleteBatch(ctx, blobRefs)
	if err != nil {
		return err
	}

	// keep marks items that must survive this pass: files whose blob
	// delete failed, plus every ancestor folder up to and including
	// the root, so the survivors stay reachable for a retry.
	keep := make(map[metadata.ItemRef]bool)
	causes := make(map[metadata.ItemRef]error)

	parentOf := make(map[metadata.ItemRef]metadata.ItemRef)
	for _, n := range nodes {
		parentOf[n.ref] = n.parent
	}

	retain := func(ref metadata.ItemRef, cause error) {
		if cause != nil {
			causes[ref] = cause
		}
		for ref != (metadata.ItemRef{}) && !keep[ref] {
			keep[ref] = true
			ref = parentOf[ref]
		}
	}

	for blobRef, failure := range blobFailures {
		retain(fileByBlob[blobRef], failure)
	}

	// Phase 2a: batch-delete the file records whose blobs are gone.
	fileRefs := make([]metadata.ItemRef, 0)
	for _, n := range nodes {
		if n.ref.Type == metadata.ItemTypeFile && !keep[n.ref] {
			fileRefs = append(fileRefs, n.ref)
		}
	}
	fileFailures, err := e.store.DeleteBatch(ctx, fileRefs)
	if err != nil {
		return err
	}
	for ref, failure := range fileFailures {
		retain(ref, failure)
	}

	// Phase 2b: delete folders bottom-up, skipping ancestors of
	// anything retained. The subtree was collected top-down, so the
	// reverse order visits children before their parents.
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		if n.ref.Type != metadata.ItemTypeFolder || keep[n.ref] {
			continue
		}
		if err := e.store.Delete(ctx, n.ref); err != nil {
			retain(n.ref, err)
			continue
		}
		e.cleanupGrants(ctx, n.ref.ID)
	}

	for _, ref := range fileRefs {
		if !keep[ref] {
			e.cleanupGrants(ctx, ref.ID)
		}
	}

	if len(keep) > 0 {
		remaining := make([]metadata.ItemRef, 0, len(keep))
		for _, n := range nodes {
			if keep[n.ref] {
				remaining = append(remaining, n.ref)
			}
		}
		logger.Warn("recursive delete of folder %s incomplete: %d items remaining", root.ID, len(remaining))
		return &PartialDeleteError{Remaining: remaining, Causes: causes}
	}

	return nil
}

// subtreeNode is one enumerated item of a folder subtree. parent is the
// zero ItemRef for the subtree root.
type subtreeNode struct {
	ref     metadata.ItemRef
	parent  metadata.ItemRef
	blobRef metadata.BlobRef
}

// collectSubtree enumerates a folder's subtree top-down (parents before
// children), root first.
func (e *Engine) collectSubtree(ctx context.Context, root *metadata.Folder) ([]subtreeNode, error) {
	nodes := []subtreeNode{{ref: root.Ref()}}

	type frame struct {
		folder *metadata.Folder
		ref    metadata.ItemRef
	}
	queue := []frame{{folder: root, ref: root.Ref()}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		parentID := cur.folder.ID
		folders, files, err := e.store.ListChildren(ctx, cur.folder.OwnerID, &parentID)
		if err != nil {
			return nil, err
		}

		for i := range folders {
			child := folders[i]
			nodes = append(nodes, subtreeNode{ref: child.Ref(), parent: cur.ref})
			queue = append(queue, frame{folder: &child, ref: child.Ref()})
		}
		for i := range files {
			nodes = append(nodes, subtreeNode{ref: files[i].Ref(), parent: cur.ref, blobRef: files[i].BlobRef})
		}
	}

	return nodes, nil
}

// checkNoCycle rejects a folder move whose destination is the folder
// itself or any of its descendants, by walking the destination's parent
// chain upward. The chain is acyclic by invariant, so the walk
// terminates at the root.
func (e *Engine) checkNoCycle(ctx context.Context, folderID string, destID string) error {
	currentID := destID
	for {
		if currentID == folderID {
			return &metadata.StoreError{
				Code:    metadata.ErrInvalidParent,
				Message: "cannot move a folder into itself or its own subtree",
				Ref:     folderID,
			}
		}
		parent, err := e.store.GetFolder(ctx, currentID)
		if err != nil {
			if metadata.IsCode(err, metadata.ErrNotFound) {
				return &metadata.StoreError{Code: metadata.ErrInvalidParent, Message: "parent folder not found", Ref: currentID}
			}
			return err
		}
		if parent.ParentID == nil {
			return nil
		}
		currentID = *parent.ParentID
	}
}

// checkParent validates a creation destination from the acting
// principal's point of view: root is always fine, an owned folder is
// fine, a foreign-owned folder is forbidden.
func (e *Engine) checkParent(ctx context.Context, actorID string, parentID *string) error {
	if parentID == nil {
		return nil
	}

	parent, err := e.store.GetFolder(ctx, *parentID)
	if err != nil {
		if metadata.IsCode(err, metadata.ErrNotFound) {
			return &metadata.StoreError{Code: metadata.ErrInvalidParent, Message: "parent folder not found", Ref: *parentID}
		}
		return err
	}
	if parent.OwnerID != actorID {
		return &metadata.StoreError{Code: metadata.ErrForbidden, Message: "cannot create inside a folder owned by someone else", Ref: *parentID}
	}
	return nil
}

// cleanupGrants removes grants on a deleted item. Failures are logged
// and left for the garbage collector; readers tolerate orphaned grants.
func (e *Engine) cleanupGrants(ctx context.Context, itemID string) {
	if err := e.store.DeleteGrantsForItem(ctx, itemID); err != nil {
		logger.Warn("failed to clean up grants for deleted item %s: %v", itemID, err)
	}
}

// notifyGrantees fans a shared-with-me notification out to every
// principal holding a grant on an item.
func (e *Engine) notifyGrantees(ctx context.Context, itemID string) {
	for _, granteeID := range e.granteesOf(ctx, itemID) {
		e.notifier.NotifyShared(ctx, granteeID)
	}
}

// granteesOf returns the grantee ids holding grants on an item, for
// post-deletion notifications. Best effort.
func (e *Engine) granteesOf(ctx context.Context, itemID string) []string {
	grants, err := e.store.GrantsForItem(ctx, itemID)
	if err != nil {
		logger.Debug("failed to list grants for item %s: %v", itemID, err)
		return nil
	}
	ids := make([]string, 0, len(grants))
	for _, g := range grants {
		ids = append(ids, g.GranteeID)
	}
	return ids
}

// uploadPathHint namespaces uploaded blobs by owner and destination
// folder so bucket contents stay inspectable.
func uploadPathHint(ownerID string, parentID *string) string {
	folder := "root"
	if parentID != nil {
		folder = *parentID
	}
	return "files/" + ownerID + "/" + folder
}
