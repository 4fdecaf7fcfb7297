package registry

import (
	"sort"
	"strings"
)

// Derived reads are pure filters and sorts over the in-memory list; none
// of them touch the network.

// FolderContents lists the non-trashed children of parentID ("" for root),
// folders first, then names case-insensitively.
func (s *Store) FolderContents(parentID string) []*FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*FileRecord
	for _, f := range s.reg.Files {
		if f.ParentID == parentID && !f.Flags.Trashed {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsFolder != out[j].IsFolder {
			return out[i].IsFolder
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Recents lists the most recently touched non-trashed files, newest first.
func (s *Store) Recents(limit int) []*FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*FileRecord
	for _, f := range s.reg.Files {
		if !f.IsFolder && !f.Flags.Trashed {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return lastTouched(out[i]) > lastTouched(out[j])
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func lastTouched(f *FileRecord) int64 {
	if f.Timestamps.LastAccessedAt > f.Timestamps.ModifiedAt {
		return f.Timestamps.LastAccessedAt
	}
	return f.Timestamps.ModifiedAt
}

// Starred lists non-trashed starred records.
func (s *Store) Starred() []*FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*FileRecord
	for _, f := range s.reg.Files {
		if f.Flags.Starred && !f.Flags.Trashed {
			out = append(out, f)
		}
	}
	return out
}

// Trashed lists trashed records, most recently trashed first.
func (s *Store) Trashed() []*FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*FileRecord
	for _, f := range s.reg.Files {
		if f.Flags.Trashed {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Flags.TrashedAt > out[j].Flags.TrashedAt
	})
	return out
}

// Breadcrumbs returns the path from the root folder down to id, inclusive.
func (s *Store) Breadcrumbs(id string) []*FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var path []*FileRecord
	seen := make(map[string]bool)
	for cur := s.findLocked(id); cur != nil && !seen[cur.ID]; cur = s.findLocked(cur.ParentID) {
		seen[cur.ID] = true
		path = append([]*FileRecord{cur}, path...)
		if cur.ParentID == "" {
			break
		}
	}
	return path
}
