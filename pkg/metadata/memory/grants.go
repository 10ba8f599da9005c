package memory

import (
	"context"
	"sort"

	"github.com/spacemaster/spacedrive/pkg/metadata"
)

// PutGrant upserts a grant keyed by the (ItemID, GranteeID) pair.
//
// Re-granting to the same principal updates the permission in place and
// preserves the grant's id and CreatedAt, which is what makes repeated
// shares idempotent.
func (s *MemoryMetadataStore) PutGrant(ctx context.Context, attrs metadata.GrantAttrs) (*metadata.ShareGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !attrs.Permission.Valid() {
		return nil, &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "unknown permission", Ref: string(attrs.Permission)}
	}
	if !attrs.ItemType.Valid() {
		return nil, &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "unknown item type", Ref: string(attrs.ItemType)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{itemID: attrs.ItemID, granteeID: attrs.GranteeID}
	if existingID, ok := s.grantByPair[key]; ok {
		grant := s.grants[existingID]
		grant.Permission = attrs.Permission
		grant.GranteeEmail = attrs.GranteeEmail
		copy := *grant
		return &copy, nil
	}

	grant := &metadata.ShareGrant{
		ID:           newID(),
		ItemID:       attrs.ItemID,
		ItemType:     attrs.ItemType,
		OwnerID:      attrs.OwnerID,
		GranteeID:    attrs.GranteeID,
		GranteeEmail: attrs.GranteeEmail,
		Permission:   attrs.Permission,
		CreatedAt:    s.nextCreatedAt(),
	}
	s.grants[grant.ID] = grant
	s.grantByPair[key] = grant.ID

	copy := *grant
	return &copy, nil
}

// GetGrant retrieves a grant by id.
func (s *MemoryMetadataStore) GetGrant(ctx context.Context, id string) (*metadata.ShareGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	grant, ok := s.grants[id]
	if !ok {
		return nil, &metadata.StoreError{Code: metadata.ErrNotFound, Message: "grant not found", Ref: id}
	}

	copy := *grant
	return &copy, nil
}

// FindGrant retrieves the grant for an (item, grantee) pair.
func (s *MemoryMetadataStore) FindGrant(ctx context.Context, itemID, granteeID string) (*metadata.ShareGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.grantByPair[pairKey{itemID: itemID, granteeID: granteeID}]
	if !ok {
		return nil, &metadata.StoreError{Code: metadata.ErrNotFound, Message: "no grant for item and grantee", Ref: itemID}
	}

	copy := *s.grants[id]
	return &copy, nil
}

// DeleteGrant removes a grant by id. Absent ids are a no-op.
func (s *MemoryMetadataStore) DeleteGrant(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteGrantLocked(id)
	return nil
}

// GrantsForItem returns all grants on an item, oldest first.
func (s *MemoryMetadataStore) GrantsForItem(ctx context.Context, itemID string) ([]metadata.ShareGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	grants := make([]metadata.ShareGrant, 0)
	for _, grant := range s.grants {
		if grant.ItemID == itemID {
			grants = append(grants, *grant)
		}
	}
	sortGrants(grants)

	return grants, nil
}

// GrantsForGrantee returns all grants held by a principal, oldest first.
func (s *MemoryMetadataStore) GrantsForGrantee(ctx context.Context, granteeID string) ([]metadata.ShareGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	grants := make([]metadata.ShareGrant, 0)
	for _, grant := range s.grants {
		if grant.GranteeID == granteeID {
			grants = append(grants, *grant)
		}
	}
	sortGrants(grants)

	return grants, nil
}

// DeleteGrantsForItem removes every grant on an item.
func (s *MemoryMetadataStore) DeleteGrantsForItem(ctx context.Context, itemID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, grant := range s.grants {
		if grant.ItemID == itemID {
			s.deleteGrantLocked(id)
		}
	}

	return nil
}

// AllGrants returns every grant in the store.
func (s *MemoryMetadataStore) AllGrants(ctx context.Context) ([]metadata.ShareGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	grants := make([]metadata.ShareGrant, 0, len(s.grants))
	for _, grant := range s.grants {
		grants = append(grants, *grant)
	}
	sortGrants(grants)

	return grants, nil
}

// deleteGrantLocked removes one grant and its pair index entry.
// Callers must hold the write lock.
func (s *MemoryMetadataStore) deleteGrantLocked(id string) {
	grant, ok := s.grants[id]
	if !ok {
		return
	}
	delete(s.grantByPair, pairKey{itemID: grant.ItemID, granteeID: grant.GranteeID})
	delete(s.grants, id)
}

// sortGrants orders grants by CreatedAt ascending, ties broken by id, so
// listings are deterministic.
func sortGrants(grants []metadata.ShareGrant) {
	sort.Slice(grants, func(i, j int) bool {
		if !grants[i].CreatedAt.Equal(grants[j].CreatedAt) {
			return grants[i].CreatedAt.Before(grants[j].CreatedAt)
		}
		return grants[i].ID < grants[j].ID
	})
}
