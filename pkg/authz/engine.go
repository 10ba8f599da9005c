// Package authz implements the authorization and sharing engine.
//
// Every access decision reduces to two questions: does the principal own
// the item, or does an active grant give them the required permission?
// Ownership is absolute and cannot be granted away; grants layer view or
// edit access on top for other principals.
package authz

import (
	"context"

	"github.com/spacemaster/spacedrive/internal/logger"
	"github.com/spacemaster/spacedrive/pkg/identity"
	"github.com/spacemaster/spacedrive/pkg/metadata"
)

// Engine evaluates access decisions and manages share grants.
//
// The engine owns the business rules of sharing (ownership checks,
// self-share rejection, email resolution); the metadata store only
// persists the resulting grants.
type Engine struct {
	store     metadata.MetadataStore
	directory identity.Directory
}

// SharedItem pairs an item visible through a grant with the grant that
// makes it visible. This is the unit of the "shared with me" listing.
type SharedItem struct {
	Item  metadata.Item
	Grant metadata.ShareGrant
}

// NewEngine creates an authorization engine over the given store and
// identity directory.
func NewEngine(store metadata.MetadataStore, directory identity.Directory) *Engine {
	return &Engine{store: store, directory: directory}
}

// CanRead reports whether a principal may view an item: the owner always
// can, and any grant (view or edit) suffices for others.
//
// Returns ErrNotFound if the item does not exist.
func (e *Engine) CanRead(ctx context.Context, principalID string, ref metadata.ItemRef) (bool, error) {
	item, err := e.store.GetItem(ctx, ref)
	if err != nil {
		return false, err
	}
	if item.Owner() == principalID {
		return true, nil
	}

	_, err = e.store.FindGrant(ctx, ref.ID, principalID)
	if err != nil {
		if metadata.IsCode(err, metadata.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CanWrite reports whether a principal may modify an item: the owner
// always can, and an edit grant suffices for others. A view grant does
// not.
//
// Returns ErrNotFound if the item does not exist.
func (e *Engine) CanWrite(ctx context.Context, principalID string, ref metadata.ItemRef) (bool, error) {
	item, err := e.store.GetItem(ctx, ref)
	if err != nil {
		return false, err
	}
	if item.Owner() == principalID {
		return true, nil
	}

	grant, err := e.store.FindGrant(ctx, ref.ID, principalID)
	if err != nil {
		if metadata.IsCode(err, metadata.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return grant.Permission == metadata.PermissionEdit, nil
}

// GrantShare shares an item with the principal registered under
// granteeEmail, granting the given permission.
//
// Rules enforced here:
//   - Only the item's owner may share it (ErrForbidden)
//   - The permission must be a known value (ErrInvalidArgument)
//   - The email must resolve to a registered principal (ErrGranteeNotFound)
//   - Owners cannot share with themselves (ErrSelfShare)
//
// Sharing the same item with the same principal again updates the
// existing grant's permission rather than creating a duplicate.
func (e *Engine) GrantShare(ctx context.Context, ownerID string, ref metadata.ItemRef, granteeEmail string, permission metadata.Permission) (*metadata.ShareGrant, error) {
	if !permission.Valid() {
		return nil, &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "unknown permission", Ref: string(permission)}
	}

	item, err := e.store.GetItem(ctx, ref)
	if err != nil {
		return nil, err
	}
	if item.Owner() != ownerID {
		return nil, &metadata.StoreError{Code: metadata.ErrForbidden, Message: "only the owner can share an item", Ref: ref.ID}
	}

	grantee, err := e.directory.ResolveByEmail(ctx, granteeEmail)
	if err != nil {
		return nil, err
	}
	if grantee.ID == ownerID {
		return nil, &metadata.StoreError{Code: metadata.ErrSelfShare, Message: "cannot share an item with yourself", Ref: ref.ID}
	}

	grant, err := e.store.PutGrant(ctx, metadata.GrantAttrs{
		ItemID:       ref.ID,
		ItemType:     ref.Type,
		OwnerID:      ownerID,
		GranteeID:    grantee.ID,
		GranteeEmail: grantee.Email,
		Permission:   permission,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("share granted: item=%s grantee=%s permission=%s", ref.ID, grantee.ID, permission)
	return grant, nil
}

// UpdatePermission changes the permission on an existing grant.
//
// Only the item's owner may change a grant (ErrForbidden). The grant's
// id and CreatedAt are preserved.
func (e *Engine) UpdatePermission(ctx context.Context, ownerID string, grantID string, permission metadata.Permission) (*metadata.ShareGrant, error) {
	if !permission.Valid() {
		return nil, &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "unknown permission", Ref: string(permission)}
	}

	grant, err := e.store.GetGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if grant.OwnerID != ownerID {
		return nil, &metadata.StoreError{Code: metadata.ErrForbidden, Message: "only the owner can change a grant", Ref: grantID}
	}

	return e.store.PutGrant(ctx, metadata.GrantAttrs{
		ItemID:       grant.ItemID,
		ItemType:     grant.ItemType,
		OwnerID:      grant.OwnerID,
		GranteeID:    grant.GranteeID,
		GranteeEmail: grant.GranteeEmail,
		Permission:   permission,
	})
}

// RevokeShare removes a grant. Only the item's owner may revoke
// (ErrForbidden). The grantee loses access immediately; no record of
// the share is kept.
func (e *Engine) RevokeShare(ctx context.Context, ownerID string, grantID string) error {
	grant, err := e.store.GetGrant(ctx, grantID)
	if err != nil {
		return err
	}
	if grant.OwnerID != ownerID {
		return &metadata.StoreError{Code: metadata.ErrForbidden, Message: "only the owner can revoke a grant", Ref: grantID}
	}

	if err := e.store.DeleteGrant(ctx, grantID); err != nil {
		return err
	}

	logger.Info("share revoked: item=%s grantee=%s", grant.ItemID, grant.GranteeID)
	return nil
}

// ListGrants returns all grants on an item, for the owner's share
// dialog. Only the owner may list them (ErrForbidden).
func (e *Engine) ListGrants(ctx context.Context, ownerID string, ref metadata.ItemRef) ([]metadata.ShareGrant, error) {
	item, err := e.store.GetItem(ctx, ref)
	if err != nil {
		return nil, err
	}
	if item.Owner() != ownerID {
		return nil, &metadata.StoreError{Code: metadata.ErrForbidden, Message: "only the owner can list grants", Ref: ref.ID}
	}

	return e.store.GrantsForItem(ctx, ref.ID)
}

// ListSharedWithMe returns every item visible to a principal through a
// grant, paired with the grant itself.
//
// Grants whose item no longer exists are skipped: deletion cleans up
// grants opportunistically, so a crash can leave orphans behind until
// the garbage collector reconciles them. Readers simply tolerate them.
func (e *Engine) ListSharedWithMe(ctx context.Context, granteeID string) ([]SharedItem, error) {
	grants, err := e.store.GrantsForGrantee(ctx, granteeID)
	if err != nil {
		return nil, err
	}

	shared := make([]SharedItem, 0, len(grants))
	for _, grant := range grants {
		item, err := e.store.GetItem(ctx, metadata.ItemRef{Type: grant.ItemType, ID: grant.ItemID})
		if err != nil {
			if metadata.IsCode(err, metadata.ErrNotFound) {
				logger.Debug("skipping orphaned grant %s: item %s no longer exists", grant.ID, grant.ItemID)
				continue
			}
			return nil, err
		}
		shared = append(shared, SharedItem{Item: item, Grant: grant})
	}

	return shared, nil
}
