package drive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blobmemory "github.com/spacemaster/spacedrive/pkg/blob/memory"
	"github.com/spacemaster/spacedrive/pkg/identity"
	"github.com/spacemaster/spacedrive/pkg/metadata"
	"github.com/spacemaster/spacedrive/pkg/metadata/memory"
	"github.com/spacemaster/spacedrive/pkg/watch"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	directory := identity.NewStaticDirectory([]metadata.Principal{
		{ID: "alice", Email: "alice@example.com"},
		{ID: "bob", Email: "bob@example.com"},
	})
	return NewService(memory.NewMemoryMetadataStore(), blobmemory.NewMemoryBlobStore(), directory)
}

func waitSnapshot(t *testing.T, ch <-chan watch.Snapshot) watch.Snapshot {
	t.Helper()

	select {
	case snap, ok := <-ch:
		require.True(t, ok, "snapshot channel closed unexpectedly")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
		return watch.Snapshot{}
	}
}

func TestService_ListChildren(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	folder, err := svc.CreateFolder(ctx, "alice", "docs", nil)
	require.NoError(t, err)
	_, err = svc.UploadFile(ctx, "alice", "a.txt", &folder.ID, "text/plain", []byte("a"))
	require.NoError(t, err)

	t.Run("own tree", func(t *testing.T) {
		folders, files, err := svc.ListChildren(ctx, "alice", nil)
		require.NoError(t, err)
		require.Len(t, folders, 1)
		assert.Empty(t, files)

		folders, files, err = svc.ListChildren(ctx, "alice", &folder.ID)
		require.NoError(t, err)
		assert.Empty(t, folders)
		require.Len(t, files, 1)
	})

	t.Run("foreign folder without a grant is forbidden", func(t *testing.T) {
		_, _, err := svc.ListChildren(ctx, "bob", &folder.ID)
		assert.True(t, metadata.IsCode(err, metadata.ErrForbidden))
	})

	t.Run("shared folders are not navigable", func(t *testing.T) {
		_, err := svc.Share(ctx, "alice", folder.Ref(), "bob@example.com", metadata.PermissionView)
		require.NoError(t, err)

		_, _, err = svc.ListChildren(ctx, "bob", &folder.ID)
		assert.True(t, metadata.IsCode(err, metadata.ErrNotSupported))
	})

	t.Run("missing parent reports not found", func(t *testing.T) {
		missing := "no-such-folder"
		_, _, err := svc.ListChildren(ctx, "alice", &missing)
		assert.True(t, metadata.IsCode(err, metadata.ErrNotFound))
	})
}

func TestService_SharingRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	file, err := svc.UploadFile(ctx, "alice", "notes.txt", nil, "text/plain", []byte("x"))
	require.NoError(t, err)

	grant, err := svc.Share(ctx, "alice", file.Ref(), "bob@example.com", metadata.PermissionView)
	require.NoError(t, err)

	shared, err := svc.SharedWithMe(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.Equal(t, file.ID, shared[0].Item.Ref().ID)

	// View is enough to download but not to rename.
	_, err = svc.DownloadURL(ctx, "bob", file.ID)
	require.NoError(t, err)
	err = svc.RenameItem(ctx, "bob", file.Ref(), "renamed.txt")
	assert.True(t, metadata.IsCode(err, metadata.ErrForbidden))

	_, err = svc.UpdateSharePermission(ctx, "alice", grant.ID, metadata.PermissionEdit)
	require.NoError(t, err)
	require.NoError(t, svc.RenameItem(ctx, "bob", file.Ref(), "renamed.txt"))

	grants, err := svc.ListGrants(ctx, "alice", file.Ref())
	require.NoError(t, err)
	require.Len(t, grants, 1)

	require.NoError(t, svc.RevokeShare(ctx, "alice", grant.ID))

	shared, err = svc.SharedWithMe(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, shared)
}

func TestService_WatchChildren(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sub, err := svc.WatchChildren(ctx, "alice", nil)
	require.NoError(t, err)
	defer sub.Cancel()

	initial := waitSnapshot(t, sub.Updates())
	assert.Empty(t, initial.Folders)

	// Mutations through the service notify subscribers without polling.
	folder, err := svc.CreateFolder(ctx, "alice", "docs", nil)
	require.NoError(t, err)

	updated := waitSnapshot(t, sub.Updates())
	require.Len(t, updated.Folders, 1)
	assert.Equal(t, folder.ID, updated.Folders[0].ID)
}

func TestService_WatchChildren_AppliesBrowsingRules(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	folder, err := svc.CreateFolder(ctx, "alice", "docs", nil)
	require.NoError(t, err)
	_, err = svc.Share(ctx, "alice", folder.Ref(), "bob@example.com", metadata.PermissionView)
	require.NoError(t, err)

	_, err = svc.WatchChildren(ctx, "bob", &folder.ID)
	assert.True(t, metadata.IsCode(err, metadata.ErrNotSupported))
}

func TestService_WatchShared(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	file, err := svc.UploadFile(ctx, "alice", "notes.txt", nil, "text/plain", []byte("x"))
	require.NoError(t, err)

	sub, err := svc.WatchShared(ctx, "bob")
	require.NoError(t, err)
	defer sub.Cancel()

	initial := waitSnapshot(t, sub.Updates())
	assert.Empty(t, initial.Shared)

	_, err = svc.Share(ctx, "alice", file.Ref(), "bob@example.com", metadata.PermissionView)
	require.NoError(t, err)

	updated := waitSnapshot(t, sub.Updates())
	require.Len(t, updated.Shared, 1)
	assert.Equal(t, file.ID, updated.Shared[0].Item.Ref().ID)

	// Deleting the item removes it from the shared view.
	require.NoError(t, svc.DeleteItem(ctx, "alice", file.Ref()))

	final := waitSnapshot(t, sub.Updates())
	assert.Empty(t, final.Shared)
}

func TestService_Healthcheck(t *testing.T) {
	svc := newTestService(t)
	assert.NoError(t, svc.Healthcheck(context.Background()))
}
