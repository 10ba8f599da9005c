// Package identity resolves principals against an identity provider.
//
// Sharing is addressed by email: the owner types a collaborator's email
// address and the engine resolves it to a principal id through a
// Directory. The directory is the system's only view of the identity
// provider; everything else works with resolved principal ids.
package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/spacemaster/spacedrive/pkg/metadata"
)

// Directory answers principal lookups against an identity provider.
//
// Implementations must be safe for concurrent use.
type Directory interface {
	// ResolveByEmail finds the principal registered under an email
	// address. Matching is case-insensitive.
	//
	// Returns ErrGranteeNotFound when no principal has that address.
	ResolveByEmail(ctx context.Context, email string) (*metadata.Principal, error)

	// Lookup finds a principal by id.
	//
	// Returns ErrNotFound when the id is unknown.
	Lookup(ctx context.Context, id string) (*metadata.Principal, error)
}

// StaticDirectory is a Directory backed by a fixed set of principals,
// typically seeded from configuration. It stands in for a real identity
// provider in single-node and test deployments.
type StaticDirectory struct {
	mu      sync.RWMutex
	byID    map[string]metadata.Principal
	byEmail map[string]metadata.Principal
}

// NewStaticDirectory creates a directory holding the given principals.
// Emails are indexed lowercased so resolution is case-insensitive.
func NewStaticDirectory(principals []metadata.Principal) *StaticDirectory {
	d := &StaticDirectory{
		byID:    make(map[string]metadata.Principal, len(principals)),
		byEmail: make(map[string]metadata.Principal, len(principals)),
	}
	for _, p := range principals {
		d.byID[p.ID] = p
		d.byEmail[strings.ToLower(p.Email)] = p
	}
	return d
}

// Add registers a principal, replacing any existing entry with the same
// id or email.
func (d *StaticDirectory) Add(p metadata.Principal) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.byID[p.ID] = p
	d.byEmail[strings.ToLower(p.Email)] = p
}

// ResolveByEmail finds the principal registered under an email address.
func (d *StaticDirectory) ResolveByEmail(ctx context.Context, email string) (*metadata.Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, &metadata.StoreError{Code: metadata.ErrGranteeNotFound, Message: "no account registered for email", Ref: email}
	}

	copy := p
	return &copy, nil
}

// Lookup finds a principal by id.
func (d *StaticDirectory) Lookup(ctx context.Context, id string) (*metadata.Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.byID[id]
	if !ok {
		return nil, &metadata.StoreError{Code: metadata.ErrNotFound, Message: "principal not found", Ref: id}
	}

	copy := p
	return &copy, nil
}
