package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacemaster/spacedrive/pkg/metadata"
)

// Ptr returns a pointer to s, for parent id arguments.
func Ptr(s string) *string {
	return &s
}

// MustCreateFolder creates a folder or fails the test.
func MustCreateFolder(t *testing.T, store metadata.MetadataStore, owner, name string, parentID *string) *metadata.Folder {
	t.Helper()

	folder, err := store.CreateFolder(context.Background(), metadata.FolderAttrs{
		Name:     name,
		ParentID: parentID,
		OwnerID:  owner,
	})
	require.NoError(t, err)
	require.NotEmpty(t, folder.ID)
	return folder
}

// MustCreateFile creates a file record or fails the test.
func MustCreateFile(t *testing.T, store metadata.MetadataStore, owner, name string, parentID *string, blobRef metadata.BlobRef) *metadata.File {
	t.Helper()

	file, err := store.CreateFile(context.Background(), metadata.FileAttrs{
		Name:        name,
		ParentID:    parentID,
		OwnerID:     owner,
		BlobRef:     blobRef,
		Size:        42,
		ContentType: "text/plain",
	})
	require.NoError(t, err)
	require.NotEmpty(t, file.ID)
	return file
}

// MustPutGrant upserts a grant or fails the test.
func MustPutGrant(t *testing.T, store metadata.MetadataStore, item metadata.Item, granteeID, granteeEmail string, permission metadata.Permission) *metadata.ShareGrant {
	t.Helper()

	grant, err := store.PutGrant(context.Background(), metadata.GrantAttrs{
		ItemID:       item.Ref().ID,
		ItemType:     item.Ref().Type,
		OwnerID:      item.Owner(),
		GranteeID:    granteeID,
		GranteeEmail: granteeEmail,
		Permission:   permission,
	})
	require.NoError(t, err)
	require.NotEmpty(t, grant.ID)
	return grant
}
