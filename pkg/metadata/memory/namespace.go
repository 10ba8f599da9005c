package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/spacemaster/spacedrive/pkg/metadata"
)

// ListChildren returns the committed folder and file sets under one parent,
// owner-scoped, ordered by CreatedAt descending (ties broken by id).
func (s *MemoryMetadataStore) ListChildren(ctx context.Context, ownerID string, parentID *string) ([]metadata.Folder, []metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	folders := make([]metadata.Folder, 0)
	for _, f := range s.folders {
		if f.OwnerID == ownerID && metadata.SameParent(f.ParentID, parentID) {
			folders = append(folders, *f)
		}
	}

	files := make([]metadata.File, 0)
	for _, f := range s.files {
		if f.OwnerID == ownerID && metadata.SameParent(f.ParentID, parentID) {
			files = append(files, *f)
		}
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
func (s *MemoryMetadataStore) GetFolder(ctx context.Context, id string) (*metadata.Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	folder, ok := s.folders[id]
	if !ok {
		return nil, &metadata.StoreError{Code: metadata.ErrNotFound, Message: "folder not found", Ref: id}
	}

	copy := *folder
	return &copy, nil
}

// GetFile retrieves a file by id.
func (s *MemoryMetadataStore) GetFile(ctx context.Context, id string) (*metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, ok := s.files[id]
	if !ok {
		return nil, &metadata.StoreError{Code: metadata.ErrNotFound, Message: "file not found", Ref: id}
	}

	copy := *file
	return &copy, nil
}

// GetItem retrieves either variant through a typed reference.
func (s *MemoryMetadataStore) GetItem(ctx context.Context, ref metadata.ItemRef) (metadata.Item, error) {
	switch ref.Type {
	case metadata.ItemTypeFolder:
		return s.GetFolder(ctx, ref.ID)
	case metadata.ItemTypeFile:
		return s.GetFile(ctx, ref.ID)
	default:
		return nil, &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "unknown item type", Ref: string(ref.Type)}
	}
}

// CreateFolder validates attrs and persists a new folder.
func (s *MemoryMetadataStore) CreateFolder(ctx context.Context, attrs metadata.FolderAttrs) (*metadata.Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(attrs.Name)
	if name == "" {
		return nil, &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "folder name must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkParentLocked(attrs.ParentID, attrs.OwnerID); err != nil {
		return nil, err
	}

	folder := &metadata.Folder{
		ID:        newID(),
		Name:      name,
		ParentID:  attrs.ParentID,
		OwnerID:   attrs.OwnerID,
		CreatedAt: s.nextCreatedAt(),
	}
	s.folders[folder.ID] = folder

	copy := *folder
	return &copy, nil
}

// CreateFile validates attrs and persists a new file record.
func (s *MemoryMetadataStore) CreateFile(ctx context.Context, attrs metadata.FileAttrs) (*metadata.File, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkParentLocked(attrs.ParentID, attrs.OwnerID); err != nil {
		return nil, err
	}

	// Blob refs are never shared between files.
	if other, taken := s.fileByBlob[attrs.BlobRef]; taken {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrInvalidArgument,
			Message: "blob ref already referenced by file " + other,
			Ref:     string(attrs.BlobRef),
		}
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
	s.files[file.ID] = file
	s.fileByBlob[file.BlobRef] = file.ID

	copy := *file
	return &copy, nil
}

// Rename changes an item's display name. Last-write-wins by design.
func (s *MemoryMetadataStore) Rename(ctx context.Context, ref metadata.ItemRef, newName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := strings.TrimSpace(newName)
	if name == "" {
		return &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "name must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch ref.Type {
	case metadata.ItemTypeFolder:
		folder, ok := s.folders[ref.ID]
		if !ok {
			return &metadata.StoreError{Code: metadata.ErrNotFound, Message: "folder not found", Ref: ref.ID}
		}
		folder.Name = name
	case metadata.ItemTypeFile:
		file, ok := s.files[ref.ID]
		if !ok {
			return &metadata.StoreError{Code: metadata.ErrNotFound, Message: "file not found", Ref: ref.ID}
		}
		file.Name = name
	default:
		return &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "unknown item type", Ref: string(ref.Type)}
	}

	return nil
}

// SetParent reparents an item. Cycle checking belongs to the tree engine;
// the store only validates the destination.
func (s *MemoryMetadataStore) SetParent(ctx context.Context, ref metadata.ItemRef, newParentID *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch ref.Type {
	case metadata.ItemTypeFolder:
		folder, ok := s.folders[ref.ID]
		if !ok {
			return &metadata.StoreError{Code: metadata.ErrNotFound, Message: "folder not found", Ref: ref.ID}
		}
		if err := s.checkParentLocked(newParentID, folder.OwnerID); err != nil {
			return err
		}
		folder.ParentID = newParentID
	case metadata.ItemTypeFile:
		file, ok := s.files[ref.ID]
		if !ok {
			return &metadata.StoreError{Code: metadata.ErrNotFound, Message: "file not found", Ref: ref.ID}
		}
		if err := s.checkParentLocked(newParentID, file.OwnerID); err != nil {
			return err
		}
		file.ParentID = newParentID
	default:
		return &metadata.StoreError{Code: metadata.ErrInvalidArgument, Message: "unknown item type", Ref: string(ref.Type)}
	}

	return nil
}

// Delete removes exactly one record. Absent ids are a no-op so retries of
// multi-step deletions stay idempotent.
func (s *MemoryMetadataStore) Delete(ctx context.Context, ref metadata.ItemRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(ref)
	return nil
}

// DeleteBatch removes a set of records. The in-memory store cannot fail
// per record, so the failure map is always empty.
func (s *MemoryMetadataStore) DeleteBatch(ctx context.Context, refs []metadata.ItemRef) (map[metadata.ItemRef]error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ref := range refs {
		s.deleteLocked(ref)
	}

	return map[metadata.ItemRef]error{}, nil
}

// deleteLocked removes one record and its secondary index entries.
// Callers must hold the write lock.
func (s *MemoryMetadataStore) deleteLocked(ref metadata.ItemRef) {
	switch ref.Type {
	case metadata.ItemTypeFolder:
		delete(s.folders, ref.ID)
	case metadata.ItemTypeFile:
		if file, ok := s.files[ref.ID]; ok {
			delete(s.fileByBlob, file.BlobRef)
			delete(s.files, ref.ID)
		}
	}
}

// checkParentLocked validates a parent reference: nil is the root level;
// otherwise the parent must exist and belong to the same owner.
// Callers must hold at least the read lock.
func (s *MemoryMetadataStore) checkParentLocked(parentID *string, ownerID string) error {
	if parentID == nil {
		return nil
	}

	parent, ok := s.folders[*parentID]
	if !ok {
		return &metadata.StoreError{Code: metadata.ErrInvalidParent, Message: "parent folder not found", Ref: *parentID}
	}
	if parent.OwnerID != ownerID {
		return &metadata.StoreError{Code: metadata.ErrInvalidParent, Message: "parent folder has a different owner", Ref: *parentID}
	}

	return nil
}

// AllBlobRefs returns every blob reference recorded in file metadata.
func (s *MemoryMetadataStore) AllBlobRefs(ctx context.Context) ([]metadata.BlobRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]metadata.BlobRef, 0, len(s.fileByBlob))
	for ref := range s.fileByBlob {
		refs = append(refs, ref)
	}

	return refs, nil
}

// Healthcheck always succeeds: there are no external dependencies.
func (s *MemoryMetadataStore) Healthcheck(ctx context.Context) error {
	return ctx.Err()
}
