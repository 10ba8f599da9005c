package badger

import (
	"context"
	"sort"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/spacemaster/spacedrive/pkg/metadata"
)

// PutGrant upserts a grant keyed by the (ItemID, GranteeID) pair.
//
// The pair index makes the upsert a single point lookup: if an entry
// exists the grant record is rewritten in place with its id and
// CreatedAt preserved, otherwise a new record and its three index
// entries are written together.
func (s *BadgerMetadataStore) PutGrant(ctx context.Context, attrs metadata.GrantAttrs) (*metadata.ShareGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !attrs.Permission.Valid() {
		return nil, &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "unknown permission", Ref: string(attrs.Permission)}
	}
	if !attrs.ItemType.Valid() {
		return nil, &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "unknown item type", Ref: string(attrs.ItemType)}
	}

	var result *metadata.ShareGrant

	err := s.db.Update(func(txn *badger.Txn) error {
		existingID, found, err := getValue(txn, keyGrantPair(attrs.ItemID, attrs.GranteeID))
		if err != nil {
			return err
		}

		if found {
			grant, err := getGrantTxn(txn, string(existingID))
			if err != nil {
				return err
			}
			grant.Permission = attrs.Permission
			grant.GranteeEmail = attrs.GranteeEmail
			if err := setRecordTxn(txn, keyGrant(grant.ID), grant); err != nil {
				return err
			}
			result = grant
			return nil
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
		if err := setRecordTxn(txn, keyGrant(grant.ID), grant); err != nil {
			return err
		}
		if err := txn.Set(keyGrantPair(grant.ItemID, grant.GranteeID), []byte(grant.ID)); err != nil {
			return backendError("failed to write grant pair index", err)
		}
		if err := txn.Set(keyGrantItem(grant.ItemID, grant.ID), nil); err != nil {
			return backendError("failed to write grant item index", err)
		}
		if err := txn.Set(keyGrantGrantee(grant.GranteeID, grant.ID), nil); err != nil {
			return backendError("failed to write grant grantee index", err)
		}
		result = grant
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetGrant retrieves a grant by id.
func (s *BadgerMetadataStore) GetGrant(ctx context.Context, id string) (*metadata.ShareGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var grant *metadata.ShareGrant
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		grant, err = getGrantTxn(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// FindGrant retrieves the grant for an (item, grantee) pair.
func (s *BadgerMetadataStore) FindGrant(ctx context.Context, itemID, granteeID string) (*metadata.ShareGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var grant *metadata.ShareGrant
	err := s.db.View(func(txn *badger.Txn) error {
		id, found, err := getValue(txn, keyGrantPair(itemID, granteeID))
		if err != nil {
			return err
		}
		if !found {
			return &metadata.StoreError{Code: metadata.ErrNotFound, Message: "no grant for item and grantee", Ref: itemID}
		}
		grant, err = getGrantTxn(txn, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// DeleteGrant removes a grant and its index entries. Absent ids are a
// no-op.
func (s *BadgerMetadataStore) DeleteGrant(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return deleteGrantTxn(txn, id)
	})
}

// GrantsForItem returns all grants on an item, oldest first.
func (s *BadgerMetadataStore) GrantsForItem(ctx context.Context, itemID string) ([]metadata.ShareGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.scanGrants(grantItemScanPrefix(itemID))
}

// GrantsForGrantee returns all grants held by a principal, oldest first.
func (s *BadgerMetadataStore) GrantsForGrantee(ctx context.Context, granteeID string) ([]metadata.ShareGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.scanGrants(grantGranteeScanPrefix(granteeID))
}

// DeleteGrantsForItem removes every grant on an item.
func (s *BadgerMetadataStore) DeleteGrantsForItem(ctx context.Context, itemID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		prefix := grantItemScanPrefix(itemID)

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		// Collect first: deleting while iterating the same prefix is
		// not safe with badger iterators.
		ids := make([]string, 0)
		it := txn.NewIterator(opts)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			ids = append(ids, string(key[len(prefix):]))
		}
		it.Close()

		for _, id := range ids {
			if err := deleteGrantTxn(txn, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// AllGrants returns every grant in the store, oldest first.
func (s *BadgerMetadataStore) AllGrants(ctx context.Context) ([]metadata.ShareGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	grants := make([]metadata.ShareGrant, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixGrant)

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return backendError("failed to copy grant value", err)
			}
			var grant metadata.ShareGrant
			if err := decodeRecord(data, &grant); err != nil {
				return err
			}
			grants = append(grants, grant)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortGrants(grants)
	return grants, nil
}

// scanGrants resolves every grant id under an index prefix, in one read
// transaction.
func (s *BadgerMetadataStore) scanGrants(prefix []byte) ([]metadata.ShareGrant, error) {
	grants := make([]metadata.ShareGrant, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			grant, err := getGrantTxn(txn, string(key[len(prefix):]))
			if err != nil {
				return err
			}
			grants = append(grants, *grant)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortGrants(grants)
	return grants, nil
}

// deleteGrantTxn removes one grant record and its three index entries.
// Missing grants are a no-op.
func deleteGrantTxn(txn *badger.Txn, id string) error {
	grant, err := getGrantTxn(txn, id)
	if err != nil {
		if metadata.IsCode(err, metadata.ErrNotFound) {
			return nil
		}
		return err
	}

	if err := txn.Delete(keyGrantPair(grant.ItemID, grant.GranteeID)); err != nil {
		return backendError("failed to delete grant pair index", err)
	}
	if err := txn.Delete(keyGrantItem(grant.ItemID, grant.ID)); err != nil {
		return backendError("failed to delete grant item index", err)
	}
	if err := txn.Delete(keyGrantGrantee(grant.GranteeID, grant.ID)); err != nil {
		return backendError("failed to delete grant grantee index", err)
	}
	if err := txn.Delete(keyGrant(grant.ID)); err != nil {
		return backendError("failed to delete grant record", err)
	}
	return nil
}

// sortGrants orders grants by CreatedAt ascending, ties broken by id,
// so listings are deterministic.
func sortGrants(grants []metadata.ShareGrant) {
	sort.Slice(grants, func(i, j int) bool {
		if !grants[i].CreatedAt.Equal(grants[j].CreatedAt) {
			return grants[i].CreatedAt.Before(grants[j].CreatedAt)
		}
		return grants[i].ID < grants[j].ID
	})
}
