package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacemaster/spacedrive/pkg/metadata"
)

func (suite *StoreTestSuite) RunGrantTests(test *testing.T) {
	test.Run("PutGrant_Create", suite.TestPutGrant_Create)
	test.Run("PutGrant_Upsert", suite.TestPutGrant_Upsert)
	test.Run("PutGrant_Invalid", suite.TestPutGrant_Invalid)
	test.Run("FindGrant", suite.TestFindGrant)
	test.Run("DeleteGrant_Idempotent", suite.TestDeleteGrant_Idempotent)
	test.Run("GrantsForItem_Ordering", suite.TestGrantsForItem_Ordering)
	test.Run("GrantsForGrantee", suite.TestGrantsForGrantee)
	test.Run("DeleteGrantsForItem", suite.TestDeleteGrantsForItem)
}

// TestPutGrant_Create verifies a fresh grant gets an id and timestamp.
func (suite *StoreTestSuite) TestPutGrant_Create(test *testing.T) {
	store := suite.NewStore(test)

	folder := MustCreateFolder(test, store, "alice", "shared", nil)
	grant := MustPutGrant(test, store, folder, "bob", "bob@example.com", metadata.PermissionView)

	assert.Equal(test, folder.ID, grant.ItemID)
	assert.Equal(test, metadata.ItemTypeFolder, grant.ItemType)
	assert.Equal(test, "alice", grant.OwnerID)
	assert.Equal(test, "bob", grant.GranteeID)
	assert.Equal(test, metadata.PermissionView, grant.Permission)
	assert.False(test, grant.CreatedAt.IsZero())
}

// TestPutGrant_Upsert verifies re-granting the same pair updates the
// permission in place, preserving id and CreatedAt.
func (suite *StoreTestSuite) TestPutGrant_Upsert(test *testing.T) {
	store := suite.NewStore(test)

	folder := MustCreateFolder(test, store, "alice", "shared", nil)
	first := MustPutGrant(test, store, folder, "bob", "bob@example.com", metadata.PermissionView)
	second := MustPutGrant(test, store, folder, "bob", "bob@example.com", metadata.PermissionEdit)

	assert.Equal(test, first.ID, second.ID)
	assert.Equal(test, first.CreatedAt.UnixNano(), second.CreatedAt.UnixNano())
	assert.Equal(test, metadata.PermissionEdit, second.Permission)

	grants, err := store.GrantsForItem(context.Background(), folder.ID)
	require.NoError(test, err)
	require.Len(test, grants, 1, "upsert must not duplicate")
	assert.Equal(test, metadata.PermissionEdit, grants[0].Permission)
}

// TestPutGrant_Invalid verifies permission and item type validation.
func (suite *StoreTestSuite) TestPutGrant_Invalid(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()

	_, err := store.PutGrant(ctx, metadata.GrantAttrs{
		ItemID:     "item",
		ItemType:   metadata.ItemTypeFolder,
		OwnerID:    "alice",
		GranteeID:  "bob",
		Permission: "admin",
	})
	assert.True(test, metadata.IsCode(err, metadata.ErrInvalidArgument))

	_, err = store.PutGrant(ctx, metadata.GrantAttrs{
		ItemID:     "item",
		ItemType:   "weird",
		OwnerID:    "alice",
		GranteeID:  "bob",
		Permission: metadata.PermissionView,
	})
	assert.True(test, metadata.IsCode(err, metadata.ErrInvalidArgument))
}

// TestFindGrant verifies pair lookup and GetGrant by id.
func (suite *StoreTestSuite) TestFindGrant(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()

	folder := MustCreateFolder(test, store, "alice", "shared", nil)
	grant := MustPutGrant(test, store, folder, "bob", "bob@example.com", metadata.PermissionView)

	found, err := store.FindGrant(ctx, folder.ID, "bob")
	require.NoError(test, err)
	assert.Equal(test, grant.ID, found.ID)

	got, err := store.GetGrant(ctx, grant.ID)
	require.NoError(test, err)
	assert.Equal(test, grant.ID, got.ID)

	_, err = store.FindGrant(ctx, folder.ID, "carol")
	assert.True(test, metadata.IsCode(err, metadata.ErrNotFound))

	_, err = store.GetGrant(ctx, "missing")
	assert.True(test, metadata.IsCode(err, metadata.ErrNotFound))
}

// TestDeleteGrant_Idempotent verifies grant deletion and its index
// cleanup.
func (suite *StoreTestSuite) TestDeleteGrant_Idempotent(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()

	folder := MustCreateFolder(test, store, "alice", "shared", nil)
	grant := MustPutGrant(test, store, folder, "bob", "bob@example.com", metadata.PermissionView)

	require.NoError(test, store.DeleteGrant(ctx, grant.ID))
	require.NoError(test, store.DeleteGrant(ctx, grant.ID), "second delete is a no-op")

	_, err := store.FindGrant(ctx, folder.ID, "bob")
	assert.True(test, metadata.IsCode(err, metadata.ErrNotFound), "pair index is cleaned up")

	// The pair can be granted again from scratch
	fresh := MustPutGrant(test, store, folder, "bob", "bob@example.com", metadata.PermissionEdit)
	assert.NotEqual(test, grant.ID, fresh.ID)
}

// TestGrantsForItem_Ordering verifies oldest-first ordering.
func (suite *StoreTestSuite) TestGrantsForItem_Ordering(test *testing.T) {
	store := suite.NewStore(test)

	folder := MustCreateFolder(test, store, "alice", "shared", nil)
	first := MustPutGrant(test, store, folder, "bob", "bob@example.com", metadata.PermissionView)
	second := MustPutGrant(test, store, folder, "carol", "carol@example.com", metadata.PermissionEdit)

	grants, err := store.GrantsForItem(context.Background(), folder.ID)
	require.NoError(test, err)
	require.Len(test, grants, 2)
	assert.Equal(test, first.ID, grants[0].ID)
	assert.Equal(test, second.ID, grants[1].ID)
}

// TestGrantsForGrantee verifies the grantee-side listing.
func (suite *StoreTestSuite) TestGrantsForGrantee(test *testing.T) {
	store := suite.NewStore(test)

	folderA := MustCreateFolder(test, store, "alice", "a", nil)
	folderB := MustCreateFolder(test, store, "alice", "b", nil)
	MustPutGrant(test, store, folderA, "bob", "bob@example.com", metadata.PermissionView)
	MustPutGrant(test, store, folderB, "bob", "bob@example.com", metadata.PermissionEdit)
	MustPutGrant(test, store, folderA, "carol", "carol@example.com", metadata.PermissionView)

	grants, err := store.GrantsForGrantee(context.Background(), "bob")
	require.NoError(test, err)
	require.Len(test, grants, 2)
	for _, grant := range grants {
		assert.Equal(test, "bob", grant.GranteeID)
	}

	grants, err = store.GrantsForGrantee(context.Background(), "dave")
	require.NoError(test, err)
	assert.Empty(test, grants)
}

// TestDeleteGrantsForItem verifies item-wide grant removal leaves other
// items' grants intact.
func (suite *StoreTestSuite) TestDeleteGrantsForItem(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()

	folderA := MustCreateFolder(test, store, "alice", "a", nil)
	folderB := MustCreateFolder(test, store, "alice", "b", nil)
	MustPutGrant(test, store, folderA, "bob", "bob@example.com", metadata.PermissionView)
	MustPutGrant(test, store, folderA, "carol", "carol@example.com", metadata.PermissionEdit)
	keep := MustPutGrant(test, store, folderB, "bob", "bob@example.com", metadata.PermissionView)

	require.NoError(test, store.DeleteGrantsForItem(ctx, folderA.ID))

	grants, err := store.GrantsForItem(ctx, folderA.ID)
	require.NoError(test, err)
	assert.Empty(test, grants)

	grants, err = store.GrantsForGrantee(ctx, "bob")
	require.NoError(test, err)
	require.Len(test, grants, 1)
	assert.Equal(test, keep.ID, grants[0].ID)
}
