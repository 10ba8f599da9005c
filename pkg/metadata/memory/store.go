package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spacemaster/spacedrive/pkg/metadata"
)

// MemoryMetadataStore implements metadata.MetadataStore using in-memory maps.
//
// This implementation provides a fully functional namespace store backed by
// in-memory data structures. It is suitable for:
//   - Testing and development environments
//   - Ephemeral deployments where persistence is not required
//
// Thread Safety:
// All operations are protected by a single read-write mutex, making the
// store safe for concurrent access from multiple goroutines. Coarse-grained
// locking is simple and correct at this scale.
//
// Storage Model:
//
// The store maintains primary maps keyed by generated id plus secondary
// indexes that mirror the lookup paths the engines need:
//
//  1. folders, files: primary records (id -> struct)
//  2. grants: primary grant records (id -> struct)
//  3. grantByPair: (itemID, granteeID) -> grantID, backing the upsert rule
//     that at most one grant exists per pair
//  4. fileByBlob: blobRef -> fileID, enforcing blob ref uniqueness
//
// Invariants maintained by all operations:
//   - Every grant in grants has exactly one entry in grantByPair
//   - Every file in files has exactly one entry in fileByBlob
//   - CreatedAt is strictly monotonic across created records, so the
//     ListChildren ordering contract holds even for rapid creations
type MemoryMetadataStore struct {
	mu sync.RWMutex

	folders map[string]*metadata.Folder
	files   map[string]*metadata.File
	grants  map[string]*metadata.ShareGrant

	grantByPair map[pairKey]string
	fileByBlob  map[metadata.BlobRef]string

	// lastCreate is the most recently assigned creation timestamp.
	// New records always get a timestamp strictly after it.
	lastCreate time.Time
}

// pairKey identifies the (item, grantee) pair that a grant upsert is
// keyed by.
type pairKey struct {
	itemID    string
	granteeID string
}

// NewMemoryMetadataStore creates an empty in-memory metadata store.
//
// The returned store is immediately ready for use and safe for concurrent
// access from multiple goroutines.
func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{
		folders:     make(map[string]*metadata.Folder),
		files:       make(map[string]*metadata.File),
		grants:      make(map[string]*metadata.ShareGrant),
		grantByPair: make(map[pairKey]string),
		fileByBlob:  make(map[metadata.BlobRef]string),
	}
}

// nextCreatedAt assigns a creation timestamp strictly after every
// previously assigned one.
//
// Callers must hold the write lock.
func (s *MemoryMetadataStore) nextCreatedAt() time.Time {
	now := time.Now()
	if !now.After(s.lastCreate) {
		now = s.lastCreate.Add(time.Nanosecond)
	}
	s.lastCreate = now
	return now
}

// newID generates a unique record identifier.
//
// UUID v4 provides collision-free ids without any counter state, the same
// strategy used for every record kind in this store.
func newID() string {
	return uuid.NewString()
}
