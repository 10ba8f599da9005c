package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacemaster/spacedrive/pkg/authz"
	"github.com/spacemaster/spacedrive/pkg/identity"
	"github.com/spacemaster/spacedrive/pkg/metadata"
	"github.com/spacemaster/spacedrive/pkg/metadata/memory"
	metadatatesting "github.com/spacemaster/spacedrive/pkg/metadata/testing"
)

func newTestHub(t *testing.T) (*Hub, metadata.MetadataStore) {
	t.Helper()

	store := memory.NewMemoryMetadataStore()
	directory := identity.NewStaticDirectory([]metadata.Principal{
		{ID: "alice", Email: "alice@example.com"},
		{ID: "bob", Email: "bob@example.com"},
	})
	return NewHub(store, authz.NewEngine(store, directory)), store
}

// waitSnapshot receives one snapshot or fails the test after a timeout.
func waitSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()

	select {
	case snap, ok := <-ch:
		require.True(t, ok, "snapshot channel closed unexpectedly")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
		return Snapshot{}
	}
}

// expectNoSnapshot asserts nothing arrives within a short window.
func expectNoSnapshot(t *testing.T, ch <-chan Snapshot) {
	t.Helper()

	select {
	case snap, ok := <-ch:
		if ok {
			t.Fatalf("unexpected snapshot for query %+v", snap.Query)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_Subscribe_InitialSnapshot(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()

	folder := metadatatesting.MustCreateFolder(t, store, "alice", "docs", nil)
	file := metadatatesting.MustCreateFile(t, store, "alice", "a.txt", nil, "blob-a")

	sub, err := hub.Subscribe(ctx, Query{Kind: QueryChildren, OwnerID: "alice"})
	require.NoError(t, err)
	defer sub.Cancel()

	snap := waitSnapshot(t, sub.Updates())
	require.Len(t, snap.Folders, 1)
	require.Len(t, snap.Files, 1)
	assert.Equal(t, folder.ID, snap.Folders[0].ID)
	assert.Equal(t, file.ID, snap.Files[0].ID)
}

// gatedStore wraps a MetadataStore and parks the first ListChildren
// call after it has read its result, so tests can interleave a mutation
// with an in-flight query evaluation.
type gatedStore struct {
	metadata.MetadataStore

	mu      sync.Mutex
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) ListChildren(ctx context.Context, ownerID string, parentID *string) ([]metadata.Folder, []metadata.File, error) {
	folders, files, err := s.MetadataStore.ListChildren(ctx, ownerID, parentID)

	s.mu.Lock()
	release := s.release
	s.release = nil
	s.mu.Unlock()

	if release != nil {
		close(s.entered)
		<-release
	}
	return folders, files, err
}

func TestHub_Subscribe_MutationDuringInitialEvaluation(t *testing.T) {
	store := memory.NewMemoryMetadataStore()
	gated := &gatedStore{
		MetadataStore: store,
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	directory := identity.NewStaticDirectory([]metadata.Principal{
		{ID: "alice", Email: "alice@example.com"},
	})
	hub := NewHub(gated, authz.NewEngine(gated, directory))
	ctx := context.Background()

	// ListChildren nils out gated.release before parking, so keep our
	// own reference to unpark it with.
	release := gated.release

	subCh := make(chan *Subscription, 1)
	errCh := make(chan error, 1)
	go func() {
		sub, err := hub.Subscribe(ctx, Query{Kind: QueryChildren, OwnerID: "alice"})
		subCh <- sub
		errCh <- err
	}()

	// Subscribe has read its (empty) result and is parked. A mutation
	// committing now must still reach the subscriber.
	<-gated.entered
	metadatatesting.MustCreateFolder(t, store, "alice", "during", nil)
	hub.NotifyChildren(ctx, "alice", nil)

	close(release)
	require.NoError(t, <-errCh)
	sub := <-subCh
	defer sub.Cancel()

	snap := waitSnapshot(t, sub.Updates())
	require.Len(t, snap.Folders, 1, "mutation during the initial evaluation must not be lost")
	assert.Equal(t, "during", snap.Folders[0].Name)

	// The overtaken initial snapshot is dropped, not delivered late.
	expectNoSnapshot(t, sub.Updates())
}

func TestHub_NotifyChildren_DeliversUpdate(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, Query{Kind: QueryChildren, OwnerID: "alice"})
	require.NoError(t, err)
	defer sub.Cancel()

	initial := waitSnapshot(t, sub.Updates())
	assert.Empty(t, initial.Folders)

	metadatatesting.MustCreateFolder(t, store, "alice", "new", nil)
	hub.NotifyChildren(ctx, "alice", nil)

	updated := waitSnapshot(t, sub.Updates())
	require.Len(t, updated.Folders, 1)
	assert.Equal(t, "new", updated.Folders[0].Name)
}

func TestHub_NotifyChildren_ScopedToParent(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()

	parent := metadatatesting.MustCreateFolder(t, store, "alice", "parent", nil)

	sub, err := hub.Subscribe(ctx, Query{Kind: QueryChildren, OwnerID: "alice", ParentID: &parent.ID})
	require.NoError(t, err)
	defer sub.Cancel()

	waitSnapshot(t, sub.Updates())

	// A change under a different parent must not wake this query.
	metadatatesting.MustCreateFolder(t, store, "alice", "elsewhere", nil)
	hub.NotifyChildren(ctx, "alice", nil)
	expectNoSnapshot(t, sub.Updates())

	metadatatesting.MustCreateFolder(t, store, "alice", "inside", &parent.ID)
	hub.NotifyChildren(ctx, "alice", &parent.ID)

	updated := waitSnapshot(t, sub.Updates())
	require.Len(t, updated.Folders, 1)
	assert.Equal(t, "inside", updated.Folders[0].Name)
}

func TestHub_SharedQuery(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()

	folder := metadatatesting.MustCreateFolder(t, store, "alice", "shared", nil)
	grant := metadatatesting.MustPutGrant(t, store, folder, "bob", "bob@example.com", metadata.PermissionView)

	sub, err := hub.Subscribe(ctx, Query{Kind: QueryShared, GranteeID: "bob"})
	require.NoError(t, err)
	defer sub.Cancel()

	initial := waitSnapshot(t, sub.Updates())
	require.Len(t, initial.Shared, 1)
	assert.Equal(t, folder.ID, initial.Shared[0].Item.Ref().ID)

	require.NoError(t, store.DeleteGrant(ctx, grant.ID))
	hub.NotifyShared(ctx, "bob")

	updated := waitSnapshot(t, sub.Updates())
	assert.Empty(t, updated.Shared)
}

func TestHub_Cancel(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, Query{Kind: QueryChildren, OwnerID: "alice"})
	require.NoError(t, err)

	waitSnapshot(t, sub.Updates())
	sub.Cancel()
	sub.Cancel() // idempotent

	_, open := <-sub.Updates()
	assert.False(t, open, "channel must be closed after Cancel")

	// Notifications after Cancel are a no-op, not a panic.
	metadatatesting.MustCreateFolder(t, store, "alice", "late", nil)
	hub.NotifyChildren(ctx, "alice", nil)
}

func TestHub_SlowConsumerKeepsNewest(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, Query{Kind: QueryChildren, OwnerID: "alice"})
	require.NoError(t, err)
	defer sub.Cancel()

	// Flood the subscription well past its buffer without reading.
	for i := 0; i < snapshotBuffer*2; i++ {
		metadatatesting.MustCreateFolder(t, store, "alice", "f", nil)
		hub.NotifyChildren(ctx, "alice", nil)
	}

	// Drain: the last pending snapshot must be the newest result.
	var last Snapshot
	for {
		select {
		case last = <-sub.Updates():
			continue
		default:
		}
		break
	}
	assert.Len(t, last.Folders, snapshotBuffer*2)
}

func TestSession_SwitchBetweenQueries(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()

	folderA := metadatatesting.MustCreateFolder(t, store, "alice", "a", nil)
	folderB := metadatatesting.MustCreateFolder(t, store, "alice", "b", nil)

	session := NewSession(hub)
	defer session.Close()

	queryA := Query{Kind: QueryChildren, OwnerID: "alice", ParentID: &folderA.ID}
	queryB := Query{Kind: QueryChildren, OwnerID: "alice", ParentID: &folderB.ID}

	require.NoError(t, session.Switch(ctx, queryA))
	first := waitSnapshot(t, session.Updates())
	assert.Equal(t, queryA.key(), first.Query.key())

	require.NoError(t, session.Switch(ctx, queryB))
	second := waitSnapshot(t, session.Updates())
	assert.Equal(t, queryB.key(), second.Query.key())

	// The old query is unsubscribed: its mutations no longer reach the
	// session.
	metadatatesting.MustCreateFolder(t, store, "alice", "inside-a", &folderA.ID)
	hub.NotifyChildren(ctx, "alice", &folderA.ID)
	expectNoSnapshot(t, session.Updates())

	// The current query still does.
	metadatatesting.MustCreateFolder(t, store, "alice", "inside-b", &folderB.ID)
	hub.NotifyChildren(ctx, "alice", &folderB.ID)

	updated := waitSnapshot(t, session.Updates())
	assert.Equal(t, queryB.key(), updated.Query.key())
	require.Len(t, updated.Folders, 1)
	assert.Equal(t, "inside-b", updated.Folders[0].Name)
}

func TestSession_RapidSwitchDiscardsStale(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()

	folderA := metadatatesting.MustCreateFolder(t, store, "alice", "a", nil)
	folderB := metadatatesting.MustCreateFolder(t, store, "alice", "b", nil)

	session := NewSession(hub)
	defer session.Close()

	queryA := Query{Kind: QueryChildren, OwnerID: "alice", ParentID: &folderA.ID}
	queryB := Query{Kind: QueryChildren, OwnerID: "alice", ParentID: &folderB.ID}

	// Switch twice without reading in between. Whatever the first
	// query managed to deliver, once a B snapshot is observed no A
	// snapshot may follow it.
	require.NoError(t, session.Switch(ctx, queryA))
	require.NoError(t, session.Switch(ctx, queryB))

	deadline := time.After(2 * time.Second)
waiting:
	for {
		select {
		case snap := <-session.Updates():
			if snap.Query.key() == queryB.key() {
				break waiting
			}
		case <-deadline:
			t.Fatal("timed out waiting for the current query's snapshot")
		}
	}

	metadatatesting.MustCreateFolder(t, store, "alice", "late", &folderA.ID)
	hub.NotifyChildren(ctx, "alice", &folderA.ID)
	expectNoSnapshot(t, session.Updates())
}

func TestSession_Close(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()

	session := NewSession(hub)
	require.NoError(t, session.Switch(ctx, Query{Kind: QueryChildren, OwnerID: "alice"}))
	waitSnapshot(t, session.Updates())

	session.Close()

	metadatatesting.MustCreateFolder(t, store, "alice", "after-close", nil)
	hub.NotifyChildren(ctx, "alice", nil)
	expectNoSnapshot(t, session.Updates())

	// Closing twice is safe, and Switch works again afterwards.
	session.Close()
	require.NoError(t, session.Switch(ctx, Query{Kind: QueryChildren, OwnerID: "alice"}))
	snap := waitSnapshot(t, session.Updates())
	assert.Len(t, snap.Folders, 1)
	session.Close()
}
