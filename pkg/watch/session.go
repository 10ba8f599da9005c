package watch

import (
	"context"
	"sync"
)

// Session is a consumer-side wrapper that tracks one live query at a
// time and survives rapid query switches.
//
// The race it exists for: a consumer navigating quickly switches from
// query A to query B while a snapshot for A is still in flight. Without
// coordination the stale A snapshot could arrive after B's first
// snapshot and overwrite the view with the wrong listing. The session
// stamps every switch with a generation number and discards any
// snapshot belonging to an earlier generation, so the consumer only
// ever observes results for its current query.
type Session struct {
	hub *Hub
	out chan Snapshot

	mu  sync.Mutex
	gen uint64
	sub *Subscription
}

// NewSession creates a session over a hub. Snapshots for the current
// query arrive on Updates.
func NewSession(hub *Hub) *Session {
	return &Session{
		hub: hub,
		out: make(chan Snapshot, snapshotBuffer),
	}
}

// Updates returns the session's snapshot stream. The stream spans query
// switches; every delivered snapshot belongs to the query that was
// current at delivery time.
func (s *Session) Updates() <-chan Snapshot {
	return s.out
}

// Switch makes query the session's current query. The previous
// subscription is cancelled, a new one is registered, and any snapshot
// from before the switch is discarded even if it arrives afterwards.
func (s *Session) Switch(ctx context.Context, query Query) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	prev := s.sub
	s.sub = nil
	s.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}

	sub, err := s.hub.Subscribe(ctx, query)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		// A concurrent Switch or Close won the race; this
		// subscription is already obsolete.
		s.mu.Unlock()
		sub.Cancel()
		return nil
	}
	s.sub = sub
	s.mu.Unlock()

	go s.forward(sub, gen)
	return nil
}

// Close cancels the current subscription. Updates stops receiving
// snapshots; the channel itself stays open so concurrent forwards
// cannot panic.
func (s *Session) Close() {
	s.mu.Lock()
	s.gen++
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}

// forward relays a subscription's snapshots to the session output,
// dropping those stamped with an outdated generation. It exits when the
// subscription is cancelled.
func (s *Session) forward(sub *Subscription, gen uint64) {
	for snap := range sub.Updates() {
		s.mu.Lock()
		if s.gen == gen {
			s.deliverLocked(snap)
		}
		s.mu.Unlock()
	}
}

// deliverLocked pushes a snapshot to the output without blocking,
// evicting the oldest pending snapshot when the consumer lags.
// The session mutex must be held.
func (s *Session) deliverLocked(snap Snapshot) {
	for {
		select {
		case s.out <- snap:
			return
		default:
		}
		select {
		case <-s.out:
		default:
		}
	}
}
