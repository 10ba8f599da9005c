package badger

import (
	"strings"

	"github.com/spacemaster/spacedrive/pkg/metadata"
)

// Database Key Namespace Design
// ==============================
//
// BadgerDB is a key-value store, so we use prefixed keys to organize the
// different record types into logical namespaces. This design:
//   - Prevents key collisions between record types
//   - Enables efficient range scans (children of a folder, grants of an item)
//   - Makes the database structure self-documenting
//
// Records are identified by UUID v4, so keys are short, stable across
// renames and moves, and collision-resistant without coordination.
//
// Key Namespace Prefixes:
//
// Data Type            Prefix  Key Format                              Value
// ============================================================================
// Folder Records       "fo:"   fo:<id>                                 Folder (JSON)
// File Records         "fi:"   fi:<id>                                 File (JSON)
// Grant Records        "g:"    g:<id>                                  ShareGrant (JSON)
// Children Index       "ci:"   ci:<owner>:<parentKey>:<type>:<id>      (empty)
// Grant Pair Index     "gp:"   gp:<itemID>:<granteeID>                 grantID (bytes)
// Grants by Item       "gi:"   gi:<itemID>:<grantID>                   (empty)
// Grants by Grantee    "ge:"   ge:<granteeID>:<grantID>                (empty)
// Blob Ref Index       "br:"   br:<blobRef>                            fileID (bytes)
//
// The children index key embeds everything ListChildren needs to locate a
// record (type and id), so a listing is one range scan plus point lookups.
// parentKey is the literal "root" for nil parents, otherwise the parent's
// UUID. Composite keys parse unambiguously because no segment may contain
// ':' — folder, file and grant ids are UUIDs, and owner/grantee ids are
// principal ids, which config validation requires to be colon-free.
//
// The blob ref index serves double duty: it enforces the one-file-per-blob
// invariant at create time and gives the garbage collector its referenced
// set with a single prefix scan.

const (
	prefixFolder = "fo:"
	prefixFile   = "fi:"
	prefixGrant  = "g:"

	prefixChildIndex   = "ci:"
	prefixGrantPair    = "gp:"
	prefixGrantItem    = "gi:"
	prefixGrantGrantee = "ge:"
	prefixBlobRef      = "br:"

	// rootParentKey stands in for a nil parent in children index keys
	rootParentKey = "root"
)

func keyFolder(id string) []byte {
	return []byte(prefixFolder + id)
}

func keyFile(id string) []byte {
	return []byte(prefixFile + id)
}

func keyItem(ref metadata.ItemRef) []byte {
	if ref.Type == metadata.ItemTypeFolder {
		return keyFolder(ref.ID)
	}
	return keyFile(ref.ID)
}

func keyGrant(id string) []byte {
	return []byte(prefixGrant + id)
}

// parentKey encodes a parent reference for use inside children index keys.
func parentKey(parentID *string) string {
	if parentID == nil {
		return rootParentKey
	}
	return *parentID
}

func keyChildIndex(ownerID string, parentID *string, ref metadata.ItemRef) []byte {
	return []byte(prefixChildIndex + ownerID + ":" + parentKey(parentID) + ":" + string(ref.Type) + ":" + ref.ID)
}

// childIndexScanPrefix is the range scan prefix for one (owner, parent) pair.
func childIndexScanPrefix(ownerID string, parentID *string) []byte {
	return []byte(prefixChildIndex + ownerID + ":" + parentKey(parentID) + ":")
}

// parseChildIndexKey recovers the item reference from a children index key.
// The scan prefix is stripped first so only "<type>:<id>" remains.
func parseChildIndexKey(key []byte, scanPrefix []byte) (metadata.ItemRef, bool) {
	suffix := string(key[len(scanPrefix):])
	typ, id, ok := strings.Cut(suffix, ":")
	if !ok {
		return metadata.ItemRef{}, false
	}
	ref := metadata.ItemRef{Type: metadata.ItemType(typ), ID: id}
	if !ref.Type.Valid() || ref.ID == "" {
		return metadata.ItemRef{}, false
	}
	return ref, true
}

func keyGrantPair(itemID, granteeID string) []byte {
	return []byte(prefixGrantPair + itemID + ":" + granteeID)
}

func keyGrantItem(itemID, grantID string) []byte {
	return []byte(prefixGrantItem + itemID + ":" + grantID)
}

func grantItemScanPrefix(itemID string) []byte {
	return []byte(prefixGrantItem + itemID + ":")
}

func keyGrantGrantee(granteeID, grantID string) []byte {
	return []byte(prefixGrantGrantee + granteeID + ":" + grantID)
}

func grantGranteeScanPrefix(granteeID string) []byte {
	return []byte(prefixGrantGrantee + granteeID + ":")
}

func keyBlobRef(ref metadata.BlobRef) []byte {
	return []byte(prefixBlobRef + string(ref))
}
