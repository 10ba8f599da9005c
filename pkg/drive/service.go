// Package drive composes the storage subsystems into the application
// facade.
//
// The Service is the single entry point callers use: it owns the wiring
// between the metadata store, blob store, identity directory, sharing
// engine, tree mutation engine, and live query hub, and it adds the few
// policies that span subsystems (such as shared folders not being
// navigable).
package drive

import (
	"context"

	"github.com/spacemaster/spacedrive/pkg/authz"
	"github.com/spacemaster/spacedrive/pkg/blob"
	"github.com/spacemaster/spacedrive/pkg/identity"
	"github.com/spacemaster/spacedrive/pkg/metadata"
	"github.com/spacemaster/spacedrive/pkg/tree"
	"github.com/spacemaster/spacedrive/pkg/watch"
)

// Service is the composed drive facade.
type Service struct {
	store     metadata.MetadataStore
	blobs     blob.BlobStore
	directory identity.Directory
	authz     *authz.Engine
	tree      *tree.Engine
	hub       *watch.Hub
}

// NewService wires the subsystems together. Mutations notify the live
// query hub, so subscribers see changes without polling.
func NewService(store metadata.MetadataStore, blobs blob.BlobStore, directory identity.Directory) *Service {
	authzEngine := authz.NewEngine(store, directory)
	hub := watch.NewHub(store, authzEngine)
	treeEngine := tree.NewEngine(store, blobs, authzEngine, hub)

	return &Service{
		store:     store,
		blobs:     blobs,
		directory: directory,
		authz:     authzEngine,
		tree:      treeEngine,
		hub:       hub,
	}
}

// ============================================================================
// Browsing
// ============================================================================

// ListChildren returns the folders and files under a parent, from the
// acting principal's point of view.
//
// Principals can only browse their own tree. A folder reached through a
// share grant is visible in the shared-with-me listing but is not
// navigable: listing its children returns ErrNotSupported. A folder
// with no grant at all returns ErrForbidden.
func (s *Service) ListChildren(ctx context.Context, actorID string, parentID *string) ([]metadata.Folder, []metadata.File, error) {
	if parentID != nil {
		parent, err := s.store.GetFolder(ctx, *parentID)
		if err != nil {
			return nil, nil, err
		}
		if parent.OwnerID != actorID {
			_, err := s.store.FindGrant(ctx, parent.ID, actorID)
			if err != nil {
				if metadata.IsCode(err, metadata.ErrNotFound) {
					return nil, nil, &metadata.StoreError{Code: metadata.ErrForbidden, Message: "folder is not accessible", Ref: parent.ID}
				}
				return nil, nil, err
			}
			return nil, nil, &metadata.StoreError{
				Code:    metadata.ErrNotSupported,
				Message: "shared folders cannot be browsed; only directly shared items are listed",
				Ref:     parent.ID,
			}
		}
	}

	return s.store.ListChildren(ctx, actorID, parentID)
}

// SharedWithMe returns every item shared with the acting principal.
func (s *Service) SharedWithMe(ctx context.Context, actorID string) ([]authz.SharedItem, error) {
	return s.authz.ListSharedWithMe(ctx, actorID)
}

// ============================================================================
// Mutations
// ============================================================================

// CreateFolder creates a folder under parentID (nil for root level).
func (s *Service) CreateFolder(ctx context.Context, actorID string, name string, parentID *string) (*metadata.Folder, error) {
	return s.tree.CreateFolder(ctx, actorID, name, parentID)
}

// UploadFile stores content and records the file under parentID.
func (s *Service) UploadFile(ctx context.Context, actorID string, name string, parentID *string, contentType string, data []byte) (*metadata.File, error) {
	return s.tree.SaveFile(ctx, actorID, name, parentID, contentType, data)
}

// RenameItem changes an item's display name.
func (s *Service) RenameItem(ctx context.Context, actorID string, ref metadata.ItemRef, newName string) error {
	return s.tree.RenameItem(ctx, actorID, ref, newName)
}

// MoveItem reparents an item within the actor's tree.
func (s *Service) MoveItem(ctx context.Context, actorID string, ref metadata.ItemRef, newParentID *string) error {
	return s.tree.MoveItem(ctx, actorID, ref, newParentID)
}

// DeleteItem permanently removes an item, recursively for folders.
// See tree.Engine.DeleteItem for the partial-failure contract.
func (s *Service) DeleteItem(ctx context.Context, actorID string, ref metadata.ItemRef) error {
	return s.tree.DeleteItem(ctx, actorID, ref)
}

// DownloadURL returns a URL for a file's content after a read check.
func (s *Service) DownloadURL(ctx context.Context, actorID string, fileID string) (string, error) {
	return s.tree.DownloadURL(ctx, actorID, fileID)
}

// ============================================================================
// Sharing
// ============================================================================

// Share grants view or edit permission on an item to the principal
// registered under granteeEmail.
func (s *Service) Share(ctx context.Context, actorID string, ref metadata.ItemRef, granteeEmail string, permission metadata.Permission) (*metadata.ShareGrant, error) {
	grant, err := s.authz.GrantShare(ctx, actorID, ref, granteeEmail, permission)
	if err != nil {
		return nil, err
	}
	s.hub.NotifyShared(ctx, grant.GranteeID)
	return grant, nil
}

// UpdateSharePermission changes the permission on an existing grant.
func (s *Service) UpdateSharePermission(ctx context.Context, actorID string, grantID string, permission metadata.Permission) (*metadata.ShareGrant, error) {
	grant, err := s.authz.UpdatePermission(ctx, actorID, grantID, permission)
	if err != nil {
		return nil, err
	}
	s.hub.NotifyShared(ctx, grant.GranteeID)
	return grant, nil
}

// RevokeShare removes a grant; the grantee loses access immediately.
func (s *Service) RevokeShare(ctx context.Context, actorID string, grantID string) error {
	grant, err := s.store.GetGrant(ctx, grantID)
	if err != nil {
		return err
	}
	if err := s.authz.RevokeShare(ctx, actorID, grantID); err != nil {
		return err
	}
	s.hub.NotifyShared(ctx, grant.GranteeID)
	return nil
}

// ListGrants returns the grants on an item, for the owner's share
// dialog.
func (s *Service) ListGrants(ctx context.Context, actorID string, ref metadata.ItemRef) ([]metadata.ShareGrant, error) {
	return s.authz.ListGrants(ctx, actorID, ref)
}

// ============================================================================
// Live queries
// ============================================================================

// NewSession creates a live query session for one consumer. The session
// tracks a single query at a time and discards stale snapshots across
// query switches.
func (s *Service) NewSession() *watch.Session {
	return watch.NewSession(s.hub)
}

// WatchChildren subscribes to the actor's listing under parentID.
// Browsing restrictions match ListChildren.
func (s *Service) WatchChildren(ctx context.Context, actorID string, parentID *string) (*watch.Subscription, error) {
	if _, _, err := s.ListChildren(ctx, actorID, parentID); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ctx, watch.Query{Kind: watch.QueryChildren, OwnerID: actorID, ParentID: parentID})
}

// WatchShared subscribes to the actor's shared-with-me set.
func (s *Service) WatchShared(ctx context.Context, actorID string) (*watch.Subscription, error) {
	return s.hub.Subscribe(ctx, watch.Query{Kind: watch.QueryShared, GranteeID: actorID})
}

// ============================================================================
// Introspection
// ============================================================================

// Store exposes the underlying metadata store, mainly for the garbage
// collector and maintenance tooling.
func (s *Service) Store() metadata.MetadataStore { return s.store }

// Blobs exposes the underlying blob store.
func (s *Service) Blobs() blob.BlobStore { return s.blobs }

// Directory exposes the identity directory.
func (s *Service) Directory() identity.Directory { return s.directory }

// Healthcheck verifies both backing stores are operational.
func (s *Service) Healthcheck(ctx context.Context) error {
	if err := s.store.Healthcheck(ctx); err != nil {
		return err
	}
	return s.blobs.Healthcheck(ctx)
}
