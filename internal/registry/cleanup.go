package registry

import "time"

// Default cleanup thresholds.
const (
	DefaultLargeBytes  = 100 << 20 // 100MB
	DefaultOldAge      = 180 * 24 * time.Hour
	DefaultUnpinnedAge = 30 * 24 * time.Hour
)

// Cleanup flag names.
const (
	FlagLarge       = "large"
	FlagOld         = "old"
	FlagOldUnpinned = "old-unpinned"
)

// CleanupThresholds configures candidate detection. Zero values take the
// defaults.
type CleanupThresholds struct {
	LargeBytes  int64
	OldAge      time.Duration
	UnpinnedAge time.Duration
}

// CleanupCandidate is a file worth the user's attention, with the reasons
// it was flagged.
type CleanupCandidate struct {
	File  *FileRecord
	Flags []string
}

// CleanupCandidates flags non-trashed files that are unusually large, long
// untouched, or long untouched without a pin keeping them alive. Folders
// carry no content and are never flagged.
func (s *Store) CleanupCandidates(t CleanupThresholds) []CleanupCandidate {
	if t.LargeBytes <= 0 {
		t.LargeBytes = DefaultLargeBytes
	}
	if t.OldAge <= 0 {
		t.OldAge = DefaultOldAge
	}
	if t.UnpinnedAge <= 0 {
		t.UnpinnedAge = DefaultUnpinnedAge
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UnixMilli()
	var out []CleanupCandidate
	for _, f := range s.reg.Files {
		if f.IsFolder || f.Flags.Trashed {
			continue
		}

		var flags []string
		age := time.Duration(now-f.Timestamps.ModifiedAt) * time.Millisecond
		if f.SizeBytes > t.LargeBytes {
			flags = append(flags, FlagLarge)
		}
		if age > t.OldAge {
			flags = append(flags, FlagOld)
		}
		if !f.Pin.IsPinned && age > t.UnpinnedAge {
			flags = append(flags, FlagOldUnpinned)
		}

		if len(flags) > 0 {
			out = append(out, CleanupCandidate{File: f, Flags: flags})
		}
	}
	return out
}
