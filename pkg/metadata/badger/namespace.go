package badger

import (
	"context"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/spacemaster/spacedrive/pkg/metadata"
)

// ListChildren scans the children index for one (owner, parent) pair and
// resolves every entry to its record inside a single read transaction,
// so the listing is a committed snapshot.
func (s *BadgerMetadataStore) ListChildren(ctx context.Context, ownerID string, parentID *string) ([]metadata.Folder, []metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	folders := make([]metadata.Folder, 0)
	files := make([]metadata.File, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		prefix := childIndexScanPrefix(ownerID, parentID)

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ref, ok := parseChildIndexKey(it.Item().Key(), prefix)
			if !ok {
				continue
			}

			switch ref.Type {
			case metadata.ItemTypeFolder:
				folder, err := getFolderTxn(txn, ref.ID)
				if err != nil {
					return err
				}
				folders = append(folders, *folder)
			case metadata.ItemTypeFile:
				file, err := getFileTxn(txn, ref.ID)
				if err != nil {
					return err
				}
				files = append(files, *file)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	sort.Slice(folders, func(i, j int) bool {
		if !folders[i].CreatedAt.Equal(folders[j].CreatedAt) {
			return folders[i].CreatedAt.After(folders[j].CreatedAt)
		}
		return folders[i].ID > folders[j].ID
	})
	sort.Slice(files, func(i, j int) bool {
		if !files[i].CreatedAt.Equal(files[j].CreatedAt) {
			return files[i].CreatedAt.After(files[j].CreatedAt)
		}
		return files[i].ID > files[j].ID
	})

	return folders, files, nil
}

// GetFolder retrieves a folder by id.
func (s *BadgerMetadataStore) GetFolder(ctx context.Context, id string) (*metadata.Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var folder *metadata.Folder
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		folder, err = getFolderTxn(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// GetFile retrieves a file by id.
func (s *BadgerMetadataStore) GetFile(ctx context.Context, id string) (*metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var file *metadata.File
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		file, err = getFileTxn(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

// GetItem retrieves either variant through a typed reference.
func (s *BadgerMetadataStore) GetItem(ctx context.Context, ref metadata.ItemRef) (metadata.Item, error) {
	switch ref.Type {
	case metadata.ItemTypeFolder:
		return s.GetFolder(ctx, ref.ID)
	case metadata.ItemTypeFile:
		return s.GetFile(ctx, ref.ID)
	default:
		return nil, &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "unknown item type", Ref: string(ref.Type)}
	}
}

// CreateFolder validates attrs and persists a new folder plus its
// children index entry in one transaction.
func (s *BadgerMetadataStore) CreateFolder(ctx context.Context, attrs metadata.FolderAttrs) (*metadata.Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(attrs.Name)
	if name == "" {
		return nil, &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "folder name must not be empty"}
	}

	folder := &metadata.Folder{
		ID:        newID(),
		Name:      name,
		ParentID:  attrs.ParentID,
		OwnerID:   attrs.OwnerID,
		CreatedAt: s.nextCreatedAt(),
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := checkParentTxn(txn, attrs.ParentID, attrs.OwnerID); err != nil {
			return err
		}
		if err := setRecordTxn(txn, keyFolder(folder.ID), folder); err != nil {
			return err
		}
		if err := txn.Set(keyChildIndex(folder.OwnerID, folder.ParentID, folder.Ref()), nil); err != nil {
			return backendError("failed to write children index", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return folder, nil
}

// CreateFile validates attrs and persists a new file record, its
// children index entry, and its blob ref index entry in one transaction.
func (s *BadgerMetadataStore) CreateFile(ctx context.Context, attrs metadata.FileAttrs) (*metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(attrs.Name)
	if name == "" {
		return nil, &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "file name must not be empty"}
	}
	if attrs.BlobRef == "" {
		return nil, &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "file blob ref must not be empty"}
	}
	if attrs.Size < 0 {
		return nil, &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "file size must not be negative"}
	}

	file := &metadata.File{
		ID:          newID(),
		Name:        name,
		ParentID:    attrs.ParentID,
		OwnerID:     attrs.OwnerID,
		CreatedAt:   s.nextCreatedAt(),
		BlobRef:     attrs.BlobRef,
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := checkParentTxn(txn, attrs.ParentID, attrs.OwnerID); err != nil {
			return err
		}

		// Blob refs are never shared between files.
		existing, found, err := getValue(txn, keyBlobRef(attrs.BlobRef))
		if err != nil {
			return err
		}
		if found {
			return &metadata.StoreError{
				Code:    metadata.ErrInvalidArgument,
				Message: "blob ref already referenced by file " + string(existing),
				Ref:     string(attrs.BlobRef),
			}
		}

		if err := setRecordTxn(txn, keyFile(file.ID), file); err != nil {
			return err
		}
		if err := txn.Set(keyChildIndex(file.OwnerID, file.ParentID, file.Ref()), nil); err != nil {
			return backendError("failed to write children index", err)
		}
		if err := txn.Set(keyBlobRef(file.BlobRef), []byte(file.ID)); err != nil {
			return backendError("failed to write blob ref index", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return file, nil
}

// Rename changes an item's display name. The children index key does not
// embed the name, so only the record itself is rewritten.
func (s *BadgerMetadataStore) Rename(ctx context.Context, ref metadata.ItemRef, newName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := strings.TrimSpace(newName)
	if name == "" {
		return &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "name must not be empty"}
	}

	return s.db.Update(func(txn *badger.Txn) error {
		switch ref.Type {
		case metadata.ItemTypeFolder:
			folder, err := getFolderTxn(txn, ref.ID)
			if err != nil {
				return err
			}
			folder.Name = name
			return setRecordTxn(txn, keyFolder(folder.ID), folder)
		case metadata.ItemTypeFile:
			file, err := getFileTxn(txn, ref.ID)
			if err != nil {
				return err
			}
			file.Name = name
			return setRecordTxn(txn, keyFile(file.ID), file)
		default:
			return &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "unknown item type", Ref: string(ref.Type)}
		}
	})
}

// SetParent reparents an item, moving its children index entry from the
// old parent's range to the new one in the same transaction.
func (s *BadgerMetadataStore) SetParent(ctx context.Context, ref metadata.ItemRef, newParentID *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		switch ref.Type {
		case metadata.ItemTypeFolder:
			folder, err := getFolderTxn(txn, ref.ID)
			if err != nil {
				return err
			}
			if err := checkParentTxn(txn, newParentID, folder.OwnerID); err != nil {
				return err
			}
			if err := txn.Delete(keyChildIndex(folder.OwnerID, folder.ParentID, ref)); err != nil {
				return backendError("failed to delete children index", err)
			}
			folder.ParentID = newParentID
			if err := setRecordTxn(txn, keyFolder(folder.ID), folder); err != nil {
				return err
			}
			if err := txn.Set(keyChildIndex(folder.OwnerID, folder.ParentID, ref), nil); err != nil {
				return backendError("failed to write children index", err)
			}
			return nil
		case metadata.ItemTypeFile:
			file, err := getFileTxn(txn, ref.ID)
			if err != nil {
				return err
			}
			if err := checkParentTxn(txn, newParentID, file.OwnerID); err != nil {
				return err
			}
			if err := txn.Delete(keyChildIndex(file.OwnerID, file.ParentID, ref)); err != nil {
				return backendError("failed to delete children index", err)
			}
			file.ParentID = newParentID
			if err := setRecordTxn(txn, keyFile(file.ID), file); err != nil {
				return err
			}
			if err := txn.Set(keyChildIndex(file.OwnerID, file.ParentID, ref), nil); err != nil {
				return backendError("failed to write children index", err)
			}
			return nil
		default:
			return &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "unknown item type", Ref: string(ref.Type)}
		}
	})
}

// Delete removes exactly one record and its index entries. Absent ids
// are a no-op so multi-step deletions can be retried idempotently.
func (s *BadgerMetadataStore) Delete(ctx context.Context, ref metadata.ItemRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return deleteItemTxn(txn, ref)
	})
}

// DeleteBatch removes a set of records, one transaction per record so a
// single failure does not abort the rest of the batch. Per-record
// failures are reported in the returned map.
func (s *BadgerMetadataStore) DeleteBatch(ctx context.Context, refs []metadata.ItemRef) (map[metadata.ItemRef]error, error) {
	failures := make(map[metadata.ItemRef]error)

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			return deleteItemTxn(txn, ref)
		})
		if err != nil {
			failures[ref] = err
		}
	}

	return failures, nil
}

// deleteItemTxn removes one record plus its children index entry and,
// for files, the blob ref index entry. Missing records are a no-op.
func deleteItemTxn(txn *badger.Txn, ref metadata.ItemRef) error {
	switch ref.Type {
	case metadata.ItemTypeFolder:
		folder, err := getFolderTxn(txn, ref.ID)
		if err != nil {
			if metadata.IsCode(err, metadata.ErrNotFound) {
				return nil
			}
			return err
		}
		if err := txn.Delete(keyChildIndex(folder.OwnerID, folder.ParentID, ref)); err != nil {
			return backendError("failed to delete children index", err)
		}
		if err := txn.Delete(keyFolder(ref.ID)); err != nil {
			return backendError("failed to delete folder record", err)
		}
		return nil
	case metadata.ItemTypeFile:
		file, err := getFileTxn(txn, ref.ID)
		if err != nil {
			if metadata.IsCode(err, metadata.ErrNotFound) {
				return nil
			}
			return err
		}
		if err := txn.Delete(keyChildIndex(file.OwnerID, file.ParentID, ref)); err != nil {
			return backendError("failed to delete children index", err)
		}
		if err := txn.Delete(keyBlobRef(file.BlobRef)); err != nil {
			return backendError("failed to delete blob ref index", err)
		}
		if err := txn.Delete(keyFile(ref.ID)); err != nil {
			return backendError("failed to delete file record", err)
		}
		return nil
	default:
		return &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "unknown item type", Ref: string(ref.Type)}
	}
}

// checkParentTxn validates a parent reference: nil is the root level;
// otherwise the parent must exist and belong to the same owner.
func checkParentTxn(txn *badger.Txn, parentID *string, ownerID string) error {
	if parentID == nil {
		return nil
	}

	parent, err := getFolderTxn(txn, *parentID)
	if err != nil {
		if metadata.IsCode(err, metadata.ErrNotFound) {
			return &metadata.StoreError{Code: metadata.ErrInvalidParent, Message: "parent folder not found", Ref: *parentID}
		}
		return err
	}
	if parent.OwnerID != ownerID {
		return &metadata.StoreError{Code: metadata.ErrInvalidParent, Message: "parent folder has a different owner", Ref: *parentID}
	}

	return nil
}

// AllBlobRefs returns every blob reference recorded in file metadata,
// read straight off the blob ref index keys.
func (s *BadgerMetadataStore) AllBlobRefs(ctx context.Context) ([]metadata.BlobRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	refs := make([]metadata.BlobRef, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixBlobRef)

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			refs = append(refs, metadata.BlobRef(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return refs, nil
}

// Healthcheck verifies the database is open and readable.
func (s *BadgerMetadataStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return &metadata.StoreError{Code: metadata.ErrUnavailable, Message: "badger database is closed"}
	}
	return nil
}
