package registry

import (
	"fmt"
	"sort"
)

// Duplicate match kinds, strongest first.
const (
	MatchContent  = "content"   // identical content id
	MatchNameSize = "name-size" // same folder, name, size, and mime type
	MatchName     = "name"      // same name only
)

// Confidence levels for duplicate groups.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// DuplicateGroup is a set of files that look like copies of each other.
type DuplicateGroup struct {
	Kind       string
	Confidence string
	Files      []*FileRecord
}

// Duplicates reports likely duplicate files. Content-id matches are
// certain copies regardless of naming; same-folder name+size+mime matches
// are probable copies; bare name matches are weak hints. A pair already
// covered by a stronger match never reappears in a weaker group.
func (s *Store) Duplicates() []DuplicateGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var files []*FileRecord
	for _, f := range s.reg.Files {
		if !f.IsFolder && !f.Flags.Trashed {
			files = append(files, f)
		}
	}

	var groups []DuplicateGroup
	covered := make(map[string]bool) // pair key -> already matched at higher confidence

	collect := func(kind, confidence string, keyFn func(*FileRecord) string) {
		byKey := make(map[string][]*FileRecord)
		for _, f := range files {
			if key := keyFn(f); key != "" {
				byKey[key] = append(byKey[key], f)
			}
		}

		keys := make([]string, 0, len(byKey))
		for k := range byKey {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			group := byKey[k]
			if len(group) < 2 {
				continue
			}

			// Keep only members still pairing with someone at this level.
			var fresh []*FileRecord
			for _, f := range group {
				for _, other := range group {
					if f != other && !covered[pairKey(f, other)] {
						fresh = append(fresh, f)
						break
					}
				}
			}
			if len(fresh) < 2 {
				continue
			}

			for i, a := range fresh {
				for _, b := range fresh[i+1:] {
					covered[pairKey(a, b)] = true
				}
			}
			groups = append(groups, DuplicateGroup{Kind: kind, Confidence: confidence, Files: fresh})
		}
	}

	collect(MatchContent, ConfidenceHigh, func(f *FileRecord) string {
		return f.ContentID
	})
	collect(MatchNameSize, ConfidenceMedium, func(f *FileRecord) string {
		return fmt.Sprintf("%s\x00%s\x00%d\x00%s", f.ParentID, f.Name, f.SizeBytes, f.MimeType)
	})
	collect(MatchName, ConfidenceLow, func(f *FileRecord) string {
		return f.Name
	})

	return groups
}

func pairKey(a, b *FileRecord) string {
	if a.ID > b.ID {
		a, b = b, a
	}
	return a.ID + "\x00" + b.ID
}
