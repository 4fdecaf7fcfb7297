package registry

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hashdrive/hashdrive/internal/faults"
	"github.com/hashdrive/hashdrive/internal/pin"
)

// CreateFolder adds a folder under parentID ("" for root) and commits.
func (s *Store) CreateFolder(ctx context.Context, name, parentID string) (*FileRecord, error) {
	s.mu.Lock()

	if err := s.checkParentLocked(parentID); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	rec := NewFolder(name, parentID)
	rec.LogActivity("created", s.reg.OwnerID, "")
	s.reg.Files = append(s.reg.Files, rec)
	s.mu.Unlock()

	if err := s.Commit(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

// AddFile uploads content to the storage network, records it as a new file
// with version 1, and commits.
func (s *Store) AddFile(ctx context.Context, name, parentID, mimeType string, content []byte) (*FileRecord, error) {
	s.mu.RLock()
	err := s.checkParentLocked(parentID)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	contentID, err := s.blobs.Put(ctx, content)
	if err != nil {
		return nil, faults.Wrap(faults.StorageNetwork, "upload file content", err)
	}

	s.mu.Lock()
	rec := NewFile(name, parentID, contentID, mimeType, int64(len(content)))
	rec.LogActivity("uploaded", s.reg.OwnerID, "")
	s.reg.Files = append(s.reg.Files, rec)
	s.cacheRecordLocked(rec)
	s.mu.Unlock()

	if err := s.Commit(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

// Rename changes a record's name and commits.
func (s *Store) Rename(ctx context.Context, id, name string) error {
	if name == "" {
		return faults.New(faults.Validation, "", "name is required")
	}

	s.mu.Lock()
	rec := s.findLocked(id)
	if rec == nil {
		s.mu.Unlock()
		return notFound(id)
	}
	old := rec.Name
	rec.Name = name
	rec.Timestamps.ModifiedAt = nowMs()
	rec.LogActivity("renamed", s.reg.OwnerID, fmt.Sprintf("%s -> %s", old, name))
	s.cacheRecordLocked(rec)
	s.mu.Unlock()

	return s.Commit(ctx)
}

// Move reparents a record and commits. Moving a folder into its own
// subtree is rejected.
func (s *Store) Move(ctx context.Context, id, newParentID string) error {
	s.mu.Lock()
	rec := s.findLocked(id)
	if rec == nil {
		s.mu.Unlock()
		return notFound(id)
	}
	if err := s.checkParentLocked(newParentID); err != nil {
		s.mu.Unlock()
		return err
	}

	// Walk up from the destination; meeting the moved record means the
	// destination lives inside it.
	for cur := newParentID; cur != ""; {
		if cur == id {
			s.mu.Unlock()
			return faults.New(faults.Validation, "", fmt.Sprintf("cannot move %q into its own subtree", rec.Name))
		}
		parent := s.findLocked(cur)
		if parent == nil {
			break
		}
		cur = parent.ParentID
	}

	rec.ParentID = newParentID
	rec.Timestamps.ModifiedAt = nowMs()
	rec.LogActivity("moved", s.reg.OwnerID, "")
	s.cacheRecordLocked(rec)
	s.mu.Unlock()

	return s.Commit(ctx)
}

// ToggleStar flips a record's star and commits in the background: star
// state is not worth making the user wait on a snapshot rewrite.
func (s *Store) ToggleStar(id string) (bool, error) {
	s.mu.Lock()
	rec := s.findLocked(id)
	if rec == nil {
		s.mu.Unlock()
		return false, notFound(id)
	}
	rec.Flags.Starred = !rec.Flags.Starred
	starred := rec.Flags.Starred
	s.cacheRecordLocked(rec)
	s.mu.Unlock()

	s.commitInBackground("toggle_star")
	return starred, nil
}

// Trash moves a record to the trash and commits.
func (s *Store) Trash(ctx context.Context, id string) error {
	s.mu.Lock()
	rec := s.findLocked(id)
	if rec == nil {
		s.mu.Unlock()
		return notFound(id)
	}
	rec.Flags.Trashed = true
	rec.Flags.TrashedAt = nowMs()
	rec.LogActivity("trashed", s.reg.OwnerID, "")
	s.cacheRecordLocked(rec)
	s.mu.Unlock()

	return s.Commit(ctx)
}

// Restore returns a trashed record to its folder and commits.
func (s *Store) Restore(ctx context.Context, id string) error {
	s.mu.Lock()
	rec := s.findLocked(id)
	if rec == nil {
		s.mu.Unlock()
		return notFound(id)
	}
	rec.Flags.Trashed = false
	rec.Flags.TrashedAt = 0
	rec.LogActivity("restored", s.reg.OwnerID, "")
	s.cacheRecordLocked(rec)
	s.mu.Unlock()

	return s.Commit(ctx)
}

// DeletePermanently removes a record from the registry entirely and
// commits. Folders must be empty first. The content blob stays on the
// network; without a pin it will eventually be garbage-collected.
func (s *Store) DeletePermanently(ctx context.Context, id string) error {
	s.mu.Lock()
	rec := s.findLocked(id)
	if rec == nil {
		s.mu.Unlock()
		return notFound(id)
	}
	if rec.IsFolder {
		for _, f := range s.reg.Files {
			if f.ParentID == id {
				s.mu.Unlock()
				return faults.New(faults.Validation, "", fmt.Sprintf("folder %q is not empty", rec.Name))
			}
		}
	}

	files := s.reg.Files[:0]
	for _, f := range s.reg.Files {
		if f.ID != id {
			files = append(files, f)
		}
	}
	s.reg.Files = files
	if s.cache != nil {
		s.cache.Remove(id)
	}
	s.mu.Unlock()

	return s.Commit(ctx)
}

// AddVersion uploads new content for an existing file, appends the next
// contiguous version, and commits. The record's content id always tracks
// the newest version.
func (s *Store) AddVersion(ctx context.Context, id string, content []byte, changeDescription string) (*Version, error) {
	s.mu.RLock()
	rec := s.findLocked(id)
	if rec == nil {
		s.mu.RUnlock()
		return nil, notFound(id)
	}
	if rec.IsFolder {
		s.mu.RUnlock()
		return nil, faults.New(faults.Validation, "", fmt.Sprintf("%q is a folder", rec.Name))
	}
	s.mu.RUnlock()

	contentID, err := s.blobs.Put(ctx, content)
	if err != nil {
		return nil, faults.Wrap(faults.StorageNetwork, "upload file content", err)
	}

	s.mu.Lock()
	rec = s.findLocked(id)
	if rec == nil {
		s.mu.Unlock()
		return nil, notFound(id)
	}
	v := Version{
		VersionID:         uuid.New().String(),
		VersionNumber:     len(rec.Versions) + 1,
		ContentID:         contentID,
		Size:              int64(len(content)),
		CreatedAt:         nowMs(),
		ChangeDescription: changeDescription,
	}
	rec.Versions = append(rec.Versions, v)
	rec.ContentID = contentID
	rec.SizeBytes = v.Size
	rec.Timestamps.ModifiedAt = v.CreatedAt
	rec.LogActivity("version_added", s.reg.OwnerID, changeDescription)
	s.cacheRecordLocked(rec)
	s.mu.Unlock()

	if err := s.Commit(ctx); err != nil {
		return nil, err
	}
	return &v, nil
}

// SetCustomProperty sets one custom key-value pair on a record and commits.
func (s *Store) SetCustomProperty(ctx context.Context, id, key, value string) error {
	s.mu.Lock()
	rec := s.findLocked(id)
	if rec == nil {
		s.mu.Unlock()
		return notFound(id)
	}
	if rec.CustomProperties == nil {
		rec.CustomProperties = make(map[string]string)
	}
	rec.CustomProperties[key] = value
	rec.Timestamps.ModifiedAt = nowMs()
	s.cacheRecordLocked(rec)
	s.mu.Unlock()

	return s.Commit(ctx)
}

// Tag adds a tag to a record and commits.
func (s *Store) Tag(ctx context.Context, id, tag string) error {
	s.mu.Lock()
	rec := s.findLocked(id)
	if rec == nil {
		s.mu.Unlock()
		return notFound(id)
	}
	rec.AddTag(tag)
	s.cacheRecordLocked(rec)
	s.mu.Unlock()

	return s.Commit(ctx)
}

// Untag removes a tag from a record and commits.
func (s *Store) Untag(ctx context.Context, id, tag string) error {
	s.mu.Lock()
	rec := s.findLocked(id)
	if rec == nil {
		s.mu.Unlock()
		return notFound(id)
	}
	rec.RemoveTag(tag)
	s.cacheRecordLocked(rec)
	s.mu.Unlock()

	return s.Commit(ctx)
}

// Pin asks the pin manager to keep a file's content alive and records the
// outcome. Pinning an already-pinned file is a no-op guarded here, by the
// record's pin flag; the manager does not deduplicate.
func (s *Store) Pin(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	rec := s.findLocked(id)
	if rec == nil {
		s.mu.RUnlock()
		return false, notFound(id)
	}
	if rec.IsFolder {
		s.mu.RUnlock()
		return false, faults.New(faults.Validation, "", fmt.Sprintf("%q is a folder", rec.Name))
	}
	if rec.Pin.IsPinned {
		s.mu.RUnlock()
		return false, nil
	}
	contentID, name := rec.ContentID, rec.Name
	s.mu.RUnlock()

	result, err := s.pins.PinByHash(ctx, contentID, pin.Metadata{Name: name})
	if err != nil {
		return false, err
	}
	if !result.Success {
		return false, faults.New(faults.Pinning, "", result.Error)
	}

	s.mu.Lock()
	rec = s.findLocked(id)
	if rec == nil {
		s.mu.Unlock()
		return false, notFound(id)
	}
	rec.Pin = PinState{
		IsPinned:  true,
		Provider:  s.pins.ProviderName(),
		PinnedAt:  result.PinnedAt.UnixMilli(),
		SizeBytes: result.SizeBytes,
	}
	rec.LogActivity("pinned", s.reg.OwnerID, s.pins.ProviderName())
	s.cacheRecordLocked(rec)
	s.mu.Unlock()

	return true, s.Commit(ctx)
}

// Unpin releases a file's pin. Unpinning a file that is not pinned is a
// no-op returning false without contacting the provider.
func (s *Store) Unpin(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	rec := s.findLocked(id)
	if rec == nil {
		s.mu.RUnlock()
		return false, notFound(id)
	}
	if !rec.Pin.IsPinned {
		s.mu.RUnlock()
		return false, nil
	}
	contentID := rec.ContentID
	s.mu.RUnlock()

	result, err := s.pins.Unpin(ctx, contentID)
	if err != nil {
		return false, err
	}
	if !result.Success {
		return false, faults.New(faults.Pinning, "", result.Error)
	}

	s.mu.Lock()
	rec = s.findLocked(id)
	if rec == nil {
		s.mu.Unlock()
		return false, notFound(id)
	}
	rec.Pin = PinState{}
	rec.LogActivity("unpinned", s.reg.OwnerID, "")
	s.cacheRecordLocked(rec)
	s.mu.Unlock()

	return true, s.Commit(ctx)
}

// checkParentLocked verifies that parentID refers to an existing folder.
func (s *Store) checkParentLocked(parentID string) error {
	if parentID == "" {
		return nil
	}
	parent := s.findLocked(parentID)
	if parent == nil {
		return faults.New(faults.Validation, "", fmt.Sprintf("parent folder %s does not exist", parentID))
	}
	if !parent.IsFolder {
		return faults.New(faults.Validation, "", fmt.Sprintf("%q is not a folder", parent.Name))
	}
	return nil
}

func notFound(id string) error {
	return faults.New(faults.Validation, "not_found", fmt.Sprintf("no record with id %s", id))
}
