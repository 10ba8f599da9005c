package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacemaster/spacedrive/pkg/identity"
	"github.com/spacemaster/spacedrive/pkg/metadata"
	"github.com/spacemaster/spacedrive/pkg/metadata/memory"
	metadatatesting "github.com/spacemaster/spacedrive/pkg/metadata/testing"
)

func newTestEngine(t *testing.T) (*Engine, metadata.MetadataStore) {
	t.Helper()

	store := memory.NewMemoryMetadataStore()
	directory := identity.NewStaticDirectory([]metadata.Principal{
		{ID: "alice", Email: "alice@example.com"},
		{ID: "bob", Email: "bob@example.com"},
		{ID: "carol", Email: "carol@example.com"},
	})
	return NewEngine(store, directory), store
}

func TestCanRead(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	folder := metadatatesting.MustCreateFolder(t, store, "alice", "docs", nil)

	t.Run("owner can always read", func(t *testing.T) {
		ok, err := engine.CanRead(ctx, "alice", folder.Ref())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("stranger cannot read", func(t *testing.T) {
		ok, err := engine.CanRead(ctx, "bob", folder.Ref())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("view grant allows reading", func(t *testing.T) {
		metadatatesting.MustPutGrant(t, store, folder, "bob", "bob@example.com", metadata.PermissionView)

		ok, err := engine.CanRead(ctx, "bob", folder.Ref())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("missing item reports not found", func(t *testing.T) {
		_, err := engine.CanRead(ctx, "alice", metadata.ItemRef{Type: metadata.ItemTypeFolder, ID: "missing"})
		assert.True(t, metadata.IsCode(err, metadata.ErrNotFound))
	})
}

func TestCanWrite(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	folder := metadatatesting.MustCreateFolder(t, store, "alice", "docs", nil)
	metadatatesting.MustPutGrant(t, store, folder, "bob", "bob@example.com", metadata.PermissionView)
	metadatatesting.MustPutGrant(t, store, folder, "carol", "carol@example.com", metadata.PermissionEdit)

	t.Run("owner can always write", func(t *testing.T) {
		ok, err := engine.CanWrite(ctx, "alice", folder.Ref())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("view grant does not allow writing", func(t *testing.T) {
		ok, err := engine.CanWrite(ctx, "bob", folder.Ref())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("edit grant allows writing", func(t *testing.T) {
		ok, err := engine.CanWrite(ctx, "carol", folder.Ref())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("stranger cannot write", func(t *testing.T) {
		ok, err := engine.CanWrite(ctx, "dave", folder.Ref())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestGrantShare(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	folder := metadatatesting.MustCreateFolder(t, store, "alice", "docs", nil)

	t.Run("owner shares by email", func(t *testing.T) {
		grant, err := engine.GrantShare(ctx, "alice", folder.Ref(), "Bob@Example.com", metadata.PermissionView)
		require.NoError(t, err)
		assert.Equal(t, "bob", grant.GranteeID)
		assert.Equal(t, "bob@example.com", grant.GranteeEmail)
		assert.Equal(t, metadata.PermissionView, grant.Permission)
	})

	t.Run("regranting updates in place", func(t *testing.T) {
		first, err := engine.GrantShare(ctx, "alice", folder.Ref(), "carol@example.com", metadata.PermissionView)
		require.NoError(t, err)

		second, err := engine.GrantShare(ctx, "alice", folder.Ref(), "carol@example.com", metadata.PermissionEdit)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, metadata.PermissionEdit, second.Permission)
	})

	t.Run("non-owner cannot share", func(t *testing.T) {
		_, err := engine.GrantShare(ctx, "bob", folder.Ref(), "carol@example.com", metadata.PermissionView)
		assert.True(t, metadata.IsCode(err, metadata.ErrForbidden))
	})

	t.Run("unknown permission is rejected", func(t *testing.T) {
		_, err := engine.GrantShare(ctx, "alice", folder.Ref(), "bob@example.com", "admin")
		assert.True(t, metadata.IsCode(err, metadata.ErrInvalidArgument))
	})

	t.Run("unknown email is rejected", func(t *testing.T) {
		_, err := engine.GrantShare(ctx, "alice", folder.Ref(), "nobody@example.com", metadata.PermissionView)
		assert.True(t, metadata.IsCode(err, metadata.ErrGranteeNotFound))
	})

	t.Run("self share is rejected", func(t *testing.T) {
		_, err := engine.GrantShare(ctx, "alice", folder.Ref(), "alice@example.com", metadata.PermissionView)
		assert.True(t, metadata.IsCode(err, metadata.ErrSelfShare))
	})

	t.Run("missing item reports not found", func(t *testing.T) {
		_, err := engine.GrantShare(ctx, "alice", metadata.ItemRef{Type: metadata.ItemTypeFile, ID: "missing"}, "bob@example.com", metadata.PermissionView)
		assert.True(t, metadata.IsCode(err, metadata.ErrNotFound))
	})
}

func TestUpdatePermission(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	folder := metadatatesting.MustCreateFolder(t, store, "alice", "docs", nil)
	grant, err := engine.GrantShare(ctx, "alice", folder.Ref(), "bob@example.com", metadata.PermissionView)
	require.NoError(t, err)

	t.Run("non-owner cannot update", func(t *testing.T) {
		_, err := engine.UpdatePermission(ctx, "bob", grant.ID, metadata.PermissionEdit)
		assert.True(t, metadata.IsCode(err, metadata.ErrForbidden))
	})

	t.Run("owner upgrades the permission", func(t *testing.T) {
		updated, err := engine.UpdatePermission(ctx, "alice", grant.ID, metadata.PermissionEdit)
		require.NoError(t, err)
		assert.Equal(t, grant.ID, updated.ID)
		assert.Equal(t, metadata.PermissionEdit, updated.Permission)
		assert.Equal(t, grant.CreatedAt.UnixNano(), updated.CreatedAt.UnixNano())

		ok, err := engine.CanWrite(ctx, "bob", folder.Ref())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unknown grant reports not found", func(t *testing.T) {
		_, err := engine.UpdatePermission(ctx, "alice", "missing", metadata.PermissionEdit)
		assert.True(t, metadata.IsCode(err, metadata.ErrNotFound))
	})
}

func TestRevokeShare(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	folder := metadatatesting.MustCreateFolder(t, store, "alice", "docs", nil)
	grant, err := engine.GrantShare(ctx, "alice", folder.Ref(), "bob@example.com", metadata.PermissionEdit)
	require.NoError(t, err)

	t.Run("non-owner cannot revoke", func(t *testing.T) {
		err := engine.RevokeShare(ctx, "bob", grant.ID)
		assert.True(t, metadata.IsCode(err, metadata.ErrForbidden))
	})

	t.Run("owner revokes and access is gone", func(t *testing.T) {
		require.NoError(t, engine.RevokeShare(ctx, "alice", grant.ID))

		ok, err := engine.CanRead(ctx, "bob", folder.Ref())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("revoking a revoked grant reports not found", func(t *testing.T) {
		err := engine.RevokeShare(ctx, "alice", grant.ID)
		assert.True(t, metadata.IsCode(err, metadata.ErrNotFound))
	})
}

func TestListGrants(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	folder := metadatatesting.MustCreateFolder(t, store, "alice", "docs", nil)
	_, err := engine.GrantShare(ctx, "alice", folder.Ref(), "bob@example.com", metadata.PermissionView)
	require.NoError(t, err)
	_, err = engine.GrantShare(ctx, "alice", folder.Ref(), "carol@example.com", metadata.PermissionEdit)
	require.NoError(t, err)

	t.Run("owner lists grants oldest first", func(t *testing.T) {
		grants, err := engine.ListGrants(ctx, "alice", folder.Ref())
		require.NoError(t, err)
		require.Len(t, grants, 2)
		assert.Equal(t, "bob", grants[0].GranteeID)
		assert.Equal(t, "carol", grants[1].GranteeID)
	})

	t.Run("grantee cannot list grants", func(t *testing.T) {
		_, err := engine.ListGrants(ctx, "bob", folder.Ref())
		assert.True(t, metadata.IsCode(err, metadata.ErrForbidden))
	})
}

func TestListSharedWithMe(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	folder := metadatatesting.MustCreateFolder(t, store, "alice", "docs", nil)
	file := metadatatesting.MustCreateFile(t, store, "alice", "notes.txt", nil, "blob-notes")

	_, err := engine.GrantShare(ctx, "alice", folder.Ref(), "bob@example.com", metadata.PermissionView)
	require.NoError(t, err)
	_, err = engine.GrantShare(ctx, "alice", file.Ref(), "bob@example.com", metadata.PermissionEdit)
	require.NoError(t, err)

	t.Run("lists items with their grants", func(t *testing.T) {
		shared, err := engine.ListSharedWithMe(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, shared, 2)

		assert.Equal(t, folder.ID, shared[0].Item.Ref().ID)
		assert.Equal(t, metadata.PermissionView, shared[0].Grant.Permission)
		assert.Equal(t, file.ID, shared[1].Item.Ref().ID)
		assert.Equal(t, metadata.PermissionEdit, shared[1].Grant.Permission)
	})

	t.Run("empty for principals with no grants", func(t *testing.T) {
		shared, err := engine.ListSharedWithMe(ctx, "carol")
		require.NoError(t, err)
		assert.Empty(t, shared)
	})

	t.Run("orphaned grants are skipped", func(t *testing.T) {
		// Delete the file behind the store's back, leaving its grant
		// dangling until the garbage collector reconciles it.
		require.NoError(t, store.Delete(ctx, file.Ref()))

		shared, err := engine.ListSharedWithMe(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, shared, 1)
		assert.Equal(t, folder.ID, shared[0].Item.Ref().ID)
	})
}
