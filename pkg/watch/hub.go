// Package watch implements live query subscriptions over the namespace.
//
// A subscription tracks one query (a folder listing or a principal's
// shared-with-me set) and receives a fresh snapshot whenever a mutation
// may have changed the result. Snapshots are whole results, not deltas:
// consumers replace their view instead of patching it, which makes
// missed updates harmless.
package watch

import (
	"context"
	"sync"

	"github.com/spacemaster/spacedrive/internal/logger"
	"github.com/spacemaster/spacedrive/pkg/authz"
	"github.com/spacemaster/spacedrive/pkg/metadata"
)

// QueryKind selects which result set a query tracks.
type QueryKind string

const (
	// QueryChildren tracks the folder/file listing under one parent.
	QueryChildren QueryKind = "children"

	// QueryShared tracks a principal's shared-with-me set.
	QueryShared QueryKind = "shared"
)

// Query identifies a live query. Children queries are keyed by owner
// and parent; shared queries by grantee.
type Query struct {
	Kind QueryKind

	// OwnerID and ParentID select a children query's listing.
	OwnerID  string
	ParentID *string

	// GranteeID selects a shared query's principal.
	GranteeID string
}

// key is the fan-out routing key for a query.
func (q Query) key() string {
	switch q.Kind {
	case QueryChildren:
		parent := "root"
		if q.ParentID != nil {
			parent = *q.ParentID
		}
		return "children:" + q.OwnerID + ":" + parent
	default:
		return "shared:" + q.GranteeID
	}
}

// Snapshot is one complete query result. Exactly one of the result
// fields is populated, matching the query kind.
type Snapshot struct {
	Query   Query
	Folders []metadata.Folder
	Files   []metadata.File
	Shared  []authz.SharedItem
}

// snapshotBuffer is the per-subscription channel capacity. A slow
// consumer drops its oldest pending snapshot, never the newest: each
// snapshot is a complete result, so only the latest matters.
const snapshotBuffer = 16

// Hub evaluates live queries and fans snapshots out to subscribers.
//
// The hub implements the tree engine's Notifier interface: mutations
// call NotifyChildren/NotifyShared, the hub re-runs the affected
// queries against the store, and every subscriber of that query
// receives the new snapshot.
//
// Thread Safety:
// All methods are safe for concurrent use.
type Hub struct {
	store metadata.MetadataStore
	authz *authz.Engine

	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}

	// seq counts notifications per query key. Snapshots are stamped
	// with it so delivery can tell a fresh result from one whose
	// evaluation was overtaken by a later notification.
	seq map[string]uint64
}

// NewHub creates a hub over the given store and sharing engine.
func NewHub(store metadata.MetadataStore, authzEngine *authz.Engine) *Hub {
	return &Hub{
		store: store,
		authz: authzEngine,
		subs:  make(map[string]map[*Subscription]struct{}),
		seq:   make(map[string]uint64),
	}
}

// Subscribe registers a live query and delivers its current result as
// the first snapshot. The caller must Cancel the subscription when done.
//
// The subscription is registered before the first evaluation runs, so a
// mutation committing while the evaluation is in flight fans out to this
// subscriber instead of falling into an unwatched gap. When that
// happens the notification's fresher snapshot wins and the initial one
// is discarded.
func (h *Hub) Subscribe(ctx context.Context, query Query) (*Subscription, error) {
	sub := &Subscription{
		hub:   h,
		query: query,
		ch:    make(chan Snapshot, snapshotBuffer),
	}

	key := query.key()
	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[*Subscription]struct{})
	}
	h.subs[key][sub] = struct{}{}
	sub.lastSeq = h.seq[key]
	registeredAt := sub.lastSeq
	h.mu.Unlock()

	snap, err := h.evaluate(ctx, query)
	if err != nil {
		sub.Cancel()
		return nil, err
	}

	h.mu.Lock()
	_, registered := h.subs[key][sub]
	if registered && sub.lastSeq == registeredAt {
		sub.deliverLocked(snap)
	}
	h.mu.Unlock()

	return sub, nil
}

// NotifyChildren re-evaluates the children query for (ownerID, parentID)
// and fans the result out. No-op when nobody is subscribed.
func (h *Hub) NotifyChildren(ctx context.Context, ownerID string, parentID *string) {
	h.notify(ctx, Query{Kind: QueryChildren, OwnerID: ownerID, ParentID: parentID})
}

// NotifyShared re-evaluates a principal's shared query and fans the
// result out. No-op when nobody is subscribed.
func (h *Hub) NotifyShared(ctx context.Context, granteeID string) {
	h.notify(ctx, Query{Kind: QueryShared, GranteeID: granteeID})
}

func (h *Hub) notify(ctx context.Context, query Query) {
	key := query.key()

	h.mu.Lock()
	if len(h.subs[key]) == 0 {
		h.mu.Unlock()
		return
	}
	h.seq[key]++
	stamp := h.seq[key]
	h.mu.Unlock()

	snap, err := h.evaluate(ctx, query)
	if err != nil {
		logger.Warn("live query refresh failed for %s: %v", key, err)
		return
	}

	h.mu.Lock()
	for sub := range h.subs[key] {
		// Skip subscribers that already received a newer result, and
		// those registered after this stamp was taken; their initial
		// evaluation supersedes this one.
		if stamp > sub.lastSeq {
			sub.lastSeq = stamp
			sub.deliverLocked(snap)
		}
	}
	h.mu.Unlock()
}

// evaluate runs a query against the store and builds its snapshot.
func (h *Hub) evaluate(ctx context.Context, query Query) (Snapshot, error) {
	switch query.Kind {
	case QueryChildren:
		folders, files, err := h.store.ListChildren(ctx, query.OwnerID, query.ParentID)
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{Query: query, Folders: folders, Files: files}, nil
	case QueryShared:
		shared, err := h.authz.ListSharedWithMe(ctx, query.GranteeID)
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{Query: query, Shared: shared}, nil
	default:
		return Snapshot{}, &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "unknown query kind", Ref: string(query.Kind)}
	}
}

// Subscription is one registered live query. Snapshots arrive on
// Updates; Cancel stops delivery and closes the channel.
type Subscription struct {
	hub   *Hub
	query Query
	ch    chan Snapshot
	once  sync.Once

	// lastSeq is the stamp of the newest delivered snapshot, guarded
	// by the hub mutex.
	lastSeq uint64
}

// Updates returns the snapshot channel. It is closed by Cancel.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.ch
}

// Query returns the query this subscription tracks.
func (s *Subscription) Query() Query {
	return s.query
}

// Cancel unregisters the subscription and closes its channel. It is
// synchronous: once Cancel returns, no further snapshot is delivered.
// Safe to call multiple times.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		key := s.query.key()
		delete(h.subs[key], s)
		if len(h.subs[key]) == 0 {
			delete(h.subs, key)
		}
		close(s.ch)
		h.mu.Unlock()
	})
}

// deliverLocked pushes a snapshot without blocking, evicting the oldest
// pending snapshot when the consumer lags. The hub mutex must be held,
// which also guarantees the channel cannot be concurrently closed.
func (s *Subscription) deliverLocked(snap Snapshot) {
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
