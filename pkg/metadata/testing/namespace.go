package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacemaster/spacedrive/pkg/metadata"
)

func (suite *StoreTestSuite) RunNamespaceTests(test *testing.T) {
	test.Run("CreateFolder_Success", suite.TestCreateFolder_Success)
	test.Run("CreateFolder_EmptyName", suite.TestCreateFolder_EmptyName)
	test.Run("CreateFolder_MissingParent", suite.TestCreateFolder_MissingParent)
	test.Run("CreateFolder_ForeignParent", suite.TestCreateFolder_ForeignParent)
	test.Run("CreateFile_Success", suite.TestCreateFile_Success)
	test.Run("CreateFile_DuplicateBlobRef", suite.TestCreateFile_DuplicateBlobRef)
	test.Run("CreateFile_InvalidAttrs", suite.TestCreateFile_InvalidAttrs)
	test.Run("ListChildren_Ordering", suite.TestListChildren_Ordering)
	test.Run("ListChildren_Scoping", suite.TestListChildren_Scoping)
	test.Run("GetItem_Variants", suite.TestGetItem_Variants)
	test.Run("Rename", suite.TestRename)
	test.Run("SetParent", suite.TestSetParent)
	test.Run("Delete_Idempotent", suite.TestDelete_Idempotent)
	test.Run("DeleteBatch", suite.TestDeleteBatch)
}

// TestCreateFolder_Success verifies folder creation at root and nested
// levels, including name trimming.
func (suite *StoreTestSuite) TestCreateFolder_Success(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()

	root := MustCreateFolder(test, store, "alice", "Documents", nil)
	assert.Equal(test, "Documents", root.Name)
	assert.Nil(test, root.ParentID)
	assert.Equal(test, "alice", root.OwnerID)
	assert.False(test, root.CreatedAt.IsZero())

	nested, err := store.CreateFolder(ctx, metadata.FolderAttrs{
		Name:     "  Reports  ",
		ParentID: Ptr(root.ID),
		OwnerID:  "alice",
	})
	require.NoError(test, err)
	assert.Equal(test, "Reports", nested.Name, "names are trimmed")
	require.NotNil(test, nested.ParentID)
	assert.Equal(test, root.ID, *nested.ParentID)
	assert.True(test, nested.CreatedAt.After(root.CreatedAt), "CreatedAt is monotonic")
}

// TestCreateFolder_EmptyName verifies empty and whitespace-only names
// are rejected.
func (suite *StoreTestSuite) TestCreateFolder_EmptyName(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()

	for _, name := range []string{"", "   ", "\t"} {
		_, err := store.CreateFolder(ctx, metadata.FolderAttrs{Name: name, OwnerID: "alice"})
		assert.True(test, metadata.IsCode(err, metadata.ErrInvalidArgument), "name %q should be rejected", name)
	}
}

// TestCreateFolder_MissingParent verifies creation under an absent
// parent fails with ErrInvalidParent.
func (suite *StoreTestSuite) TestCreateFolder_MissingParent(test *testing.T) {
	store := suite.NewStore(test)

	_, err := store.CreateFolder(context.Background(), metadata.FolderAttrs{
		Name:     "Orphan",
		ParentID: Ptr("no-such-folder"),
		OwnerID:  "alice",
	})
	assert.True(test, metadata.IsCode(err, metadata.ErrInvalidParent))
}

// TestCreateFolder_ForeignParent verifies creation under another
// owner's folder fails with ErrInvalidParent.
func (suite *StoreTestSuite) TestCreateFolder_ForeignParent(test *testing.T) {
	store := suite.NewStore(test)

	bobRoot := MustCreateFolder(test, store, "bob", "Bob's stuff", nil)

	_, err := store.CreateFolder(context.Background(), metadata.FolderAttrs{
		Name:     "Intruder",
		ParentID: Ptr(bobRoot.ID),
		OwnerID:  "alice",
	})
	assert.True(test, metadata.IsCode(err, metadata.ErrInvalidParent))
}

// TestCreateFile_Success verifies file creation with all attributes.
func (suite *StoreTestSuite) TestCreateFile_Success(test *testing.T) {
	store := suite.NewStore(test)

	folder := MustCreateFolder(test, store, "alice", "Photos", nil)
	file, err := store.CreateFile(context.Background(), metadata.FileAttrs{
		Name:        "sunset.jpg",
		ParentID:    Ptr(folder.ID),
		OwnerID:     "alice",
		BlobRef:     "files/alice/photos/sunset",
		Size:        1024,
		ContentType: "image/jpeg",
	})
	require.NoError(test, err)
	assert.Equal(test, "sunset.jpg", file.Name)
	assert.Equal(test, metadata.BlobRef("files/alice/photos/sunset"), file.BlobRef)
	assert.Equal(test, int64(1024), file.Size)
	assert.Equal(test, "image/jpeg", file.ContentType)
}

// TestCreateFile_DuplicateBlobRef verifies a blob ref cannot be shared
// between two files.
func (suite *StoreTestSuite) TestCreateFile_DuplicateBlobRef(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()

	MustCreateFile(test, store, "alice", "a.txt", nil, "blob-1")

	_, err := store.CreateFile(ctx, metadata.FileAttrs{
		Name:    "b.txt",
		OwnerID: "alice",
		BlobRef: "blob-1",
		Size:    1,
	})
	assert.True(test, metadata.IsCode(err, metadata.ErrInvalidArgument))

	// The ref becomes available again once the first file is deleted.
	folders, files, err := store.ListChildren(ctx, "alice", nil)
	require.NoError(test, err)
	require.Empty(test, folders)
	require.Len(test, files, 1)
	require.NoError(test, store.Delete(ctx, files[0].Ref()))

	_, err = store.CreateFile(ctx, metadata.FileAttrs{
		Name:    "b.txt",
		OwnerID: "alice",
		BlobRef: "blob-1",
		Size:    1,
	})
	assert.NoError(test, err)
}

// TestCreateFile_InvalidAttrs verifies validation of blob ref and size.
func (suite *StoreTestSuite) TestCreateFile_InvalidAttrs(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()

	_, err := store.CreateFile(ctx, metadata.FileAttrs{Name: "x", OwnerID: "alice", BlobRef: "", Size: 1})
	assert.True(test, metadata.IsCode(err, metadata.ErrInvalidArgument), "empty blob ref")

	_, err = store.CreateFile(ctx, metadata.FileAttrs{Name: "x", OwnerID: "alice", BlobRef: "b", Size: -1})
	assert.True(test, metadata.IsCode(err, metadata.ErrInvalidArgument), "negative size")
}

// TestListChildren_Ordering verifies newest-first ordering for folders
// and files.
func (suite *StoreTestSuite) TestListChildren_Ordering(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()

	first := MustCreateFolder(test, store, "alice", "first", nil)
	second := MustCreateFolder(test, store, "alice", "second", nil)
	third := MustCreateFolder(test, store, "alice", "third", nil)

	oldFile := MustCreateFile(test, store, "alice", "old.txt", nil, "blob-old")
	newFile := MustCreateFile(test, store, "alice", "new.txt", nil, "blob-new")

	folders, files, err := store.ListChildren(ctx, "alice", nil)
	require.NoError(test, err)

	require.Len(test, folders, 3)
	assert.Equal(test, third.ID, folders[0].ID)
	assert.Equal(test, second.ID, folders[1].ID)
	assert.Equal(test, first.ID, folders[2].ID)

	require.Len(test, files, 2)
	assert.Equal(test, newFile.ID, files[0].ID)
	assert.Equal(test, oldFile.ID, files[1].ID)
}

// TestListChildren_Scoping verifies listings are scoped by owner and
// exact parent, and that empty results are empty slices.
func (suite *StoreTestSuite) TestListChildren_Scoping(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()

	aliceRoot := MustCreateFolder(test, store, "alice", "mine", nil)
	MustCreateFolder(test, store, "alice", "nested", Ptr(aliceRoot.ID))
	MustCreateFolder(test, store, "bob", "his", nil)

	folders, files, err := store.ListChildren(ctx, "alice", nil)
	require.NoError(test, err)
	require.Len(test, folders, 1, "nested and foreign folders are excluded")
	assert.Equal(test, aliceRoot.ID, folders[0].ID)
	assert.Empty(test, files)

	folders, files, err = store.ListChildren(ctx, "alice", Ptr(aliceRoot.ID))
	require.NoError(test, err)
	require.Len(test, folders, 1)
	assert.Equal(test, "nested", folders[0].Name)
	assert.Empty(test, files)

	folders, files, err = store.ListChildren(ctx, "carol", nil)
	require.NoError(test, err)
	assert.NotNil(test, folders)
	assert.NotNil(test, files)
	assert.Empty(test, folders)
	assert.Empty(test, files)
}

// TestGetItem_Variants verifies typed retrieval and not-found behavior.
func (suite *StoreTestSuite) TestGetItem_Variants(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()

	folder := MustCreateFolder(test, store, "alice", "f", nil)
	file := MustCreateFile(test, store, "alice", "x.txt", nil, "blob-x")

	gotFolder, err := store.GetItem(ctx, folder.Ref())
	require.NoError(test, err)
	assert.Equal(test, folder.ID, gotFolder.Ref().ID)

	gotFile, err := store.GetItem(ctx, file.Ref())
	require.NoError(test, err)
	assert.Equal(test, file.ID, gotFile.Ref().ID)

	_, err = store.GetFolder(ctx, "missing")
	assert.True(test, metadata.IsCode(err, metadata.ErrNotFound))

	_, err = store.GetFile(ctx, "missing")
	assert.True(test, metadata.IsCode(err, metadata.ErrNotFound))

	_, err = store.GetItem(ctx, metadata.ItemRef{Type: "weird", ID: "x"})
	assert.True(test, metadata.IsCode(err, metadata.ErrInvalidArgument))
}

// TestRename verifies rename semantics for both item kinds.
func (suite *StoreTestSuite) TestRename(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()

	folder := MustCreateFolder(test, store, "alice", "before", nil)
	file := MustCreateFile(test, store, "alice", "before.txt", nil, "blob-r")

	require.NoError(test, store.Rename(ctx, folder.Ref(), "after"))
	require.NoError(test, store.Rename(ctx, file.Ref(), "  after.txt "))

	gotFolder, err := store.GetFolder(ctx, folder.ID)
	require.NoError(test, err)
	assert.Equal(test, "after", gotFolder.Name)
	assert.Equal(test, folder.CreatedAt.UnixNano(), gotFolder.CreatedAt.UnixNano(), "rename preserves CreatedAt")

	gotFile, err := store.GetFile(ctx, file.ID)
	require.NoError(test, err)
	assert.Equal(test, "after.txt", gotFile.Name)

	err = store.Rename(ctx, metadata.ItemRef{Type: metadata.ItemTypeFolder, ID: "missing"}, "x")
	assert.True(test, metadata.IsCode(err, metadata.ErrNotFound))

	err = store.Rename(ctx, folder.Ref(), "   ")
	assert.True(test, metadata.IsCode(err, metadata.ErrInvalidArgument))
}

// TestSetParent verifies reparenting and its listing side effects.
func (suite *StoreTestSuite) TestSetParent(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()

	src := MustCreateFolder(test, store, "alice", "src", nil)
	dst := MustCreateFolder(test, store, "alice", "dst", nil)
	file := MustCreateFile(test, store, "alice", "move-me.txt", Ptr(src.ID), "blob-m")

	require.NoError(test, store.SetParent(ctx, file.Ref(), Ptr(dst.ID)))

	_, files, err := store.ListChildren(ctx, "alice", Ptr(src.ID))
	require.NoError(test, err)
	assert.Empty(test, files)

	_, files, err = store.ListChildren(ctx, "alice", Ptr(dst.ID))
	require.NoError(test, err)
	require.Len(test, files, 1)
	assert.Equal(test, file.ID, files[0].ID)

	// Moving to root
	require.NoError(test, store.SetParent(ctx, file.Ref(), nil))
	_, files, err = store.ListChildren(ctx, "alice", nil)
	require.NoError(test, err)
	require.Len(test, files, 1)

	// Foreign destination is rejected
	bobRoot := MustCreateFolder(test, store, "bob", "b", nil)
	err = store.SetParent(ctx, file.Ref(), Ptr(bobRoot.ID))
	assert.True(test, metadata.IsCode(err, metadata.ErrInvalidParent))
}

// TestDelete_Idempotent verifies deletes succeed on absent ids.
func (suite *StoreTestSuite) TestDelete_Idempotent(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()

	file := MustCreateFile(test, store, "alice", "gone.txt", nil, "blob-g")

	require.NoError(test, store.Delete(ctx, file.Ref()))
	require.NoError(test, store.Delete(ctx, file.Ref()), "second delete is a no-op")

	_, err := store.GetFile(ctx, file.ID)
	assert.True(test, metadata.IsCode(err, metadata.ErrNotFound))
}

// TestDeleteBatch verifies batch deletion treats absent ids as success.
func (suite *StoreTestSuite) TestDeleteBatch(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()

	folder := MustCreateFolder(test, store, "alice", "f", nil)
	file := MustCreateFile(test, store, "alice", "x.txt", nil, "blob-b")

	failures, err := store.DeleteBatch(ctx, []metadata.ItemRef{
		folder.Ref(),
		file.Ref(),
		{Type: metadata.ItemTypeFile, ID: "already-gone"},
	})
	require.NoError(test, err)
	assert.Empty(test, failures)

	folders, files, err := store.ListChildren(ctx, "alice", nil)
	require.NoError(test, err)
	assert.Empty(test, folders)
	assert.Empty(test, files)
}
