package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacemaster/spacedrive/pkg/metadata"
)

func (suite *StoreTestSuite) RunMaintenanceTests(test *testing.T) {
	test.Run("AllBlobRefs", suite.TestAllBlobRefs)
	test.Run("AllGrants", suite.TestAllGrants)
	test.Run("Healthcheck", suite.TestHealthcheck)
}

// TestAllBlobRefs verifies the referenced-blob listing tracks creates
// and deletes.
func (suite *StoreTestSuite) TestAllBlobRefs(test *testing.T) {
	store := suite.NewStore(test)
	ctx := context.Background()

	refs, err := store.AllBlobRefs(ctx)
	require.NoError(test, err)
	assert.Empty(test, refs)

	fileA := MustCreateFile(test, store, "alice", "a.txt", nil, "blob-a")
	MustCreateFile(test, store, "alice", "b.txt", nil, "blob-b")

	refs, err = store.AllBlobRefs(ctx)
	require.NoError(test, err)
	assert.ElementsMatch(test, []metadata.BlobRef{"blob-a", "blob-b"}, refs)

	require.NoError(test, store.Delete(ctx, fileA.Ref()))

	refs, err = store.AllBlobRefs(ctx)
	require.NoError(test, err)
	assert.ElementsMatch(test, []metadata.BlobRef{"blob-b"}, refs)
}

// TestAllGrants verifies the full grant listing used by the garbage
// collector.
func (suite *StoreTestSuite) TestAllGrants(test *testing.T) {
	store := suite.NewStore(test)

	folder := MustCreateFolder(test, store, "alice", "f", nil)
	file := MustCreateFile(test, store, "alice", "x.txt", nil, "blob-x")
	MustPutGrant(test, store, folder, "bob", "bob@example.com", metadata.PermissionView)
	MustPutGrant(test, store, file, "carol", "carol@example.com", metadata.PermissionEdit)

	grants, err := store.AllGrants(context.Background())
	require.NoError(test, err)
	assert.Len(test, grants, 2)
}

// TestHealthcheck verifies the store reports healthy and honors
// context cancellation.
func (suite *StoreTestSuite) TestHealthcheck(test *testing.T) {
	store := suite.NewStore(test)

	assert.NoError(test, store.Healthcheck(context.Background()))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(test, store.Healthcheck(cancelled))
}
