// Package registry owns the authoritative file and folder metadata for one
// owner: a flat list of records serialized as a single immutable snapshot
// on the storage network, referenced by a mutable pointer record.
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hashdrive/hashdrive/internal/faults"
)

// maxActivityEntries bounds each record's activity log, newest first.
const maxActivityEntries = 50

// Permission levels for share links.
const (
	PermissionViewer = "viewer"
	PermissionEditor = "editor"
)

// FileRecord is one file or folder entry. Folders never carry a content id,
// pin provider, or versions.
type FileRecord struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	ContentID        string            `json:"contentId,omitempty"`
	MimeType         string            `json:"mimeType,omitempty"`
	SizeBytes        int64             `json:"sizeBytes,omitempty"`
	ParentID         string            `json:"parentId,omitempty"`
	IsFolder         bool              `json:"isFolder"`
	Pin              PinState          `json:"pin"`
	Flags            Flags             `json:"flags"`
	Timestamps       Timestamps        `json:"timestamps"`
	Share            *Share            `json:"share,omitempty"`
	Tags             []string          `json:"tags,omitempty"`
	CustomProperties map[string]string `json:"customProperties,omitempty"`
	ActivityLog      []Activity        `json:"activityLog,omitempty"`
	Versions         []Version         `json:"versions,omitempty"`
}

// PinState mirrors what the pin provider reported for this file.
type PinState struct {
	IsPinned  bool   `json:"isPinned"`
	Provider  string `json:"provider,omitempty"`
	PinnedAt  int64  `json:"pinnedAt,omitempty"`  // epoch-ms
	ExpiresAt int64  `json:"expiresAt,omitempty"` // epoch-ms
	SizeBytes int64  `json:"sizeBytes,omitempty"`
}

// Flags holds user-facing state bits.
type Flags struct {
	Starred   bool  `json:"starred"`
	Trashed   bool  `json:"trashed"`
	TrashedAt int64 `json:"trashedAt,omitempty"` // epoch-ms
}

// Timestamps, all epoch-ms.
type Timestamps struct {
	CreatedAt      int64 `json:"createdAt"`
	ModifiedAt     int64 `json:"modifiedAt"`
	LastAccessedAt int64 `json:"lastAccessedAt,omitempty"`
}

// Share is an active or disabled share link for a record.
type Share struct {
	ShareID        string `json:"shareId"`
	Enabled        bool   `json:"enabled"`
	Permission     string `json:"permission"` // viewer or editor
	CreatedAt      int64  `json:"createdAt"`
	CreatedBy      string `json:"createdBy"`
	ExpiresAt      int64  `json:"expiresAt,omitempty"`
	PasswordHash   string `json:"passwordHash,omitempty"`
	AccessCount    int    `json:"accessCount"`
	LastAccessedAt int64  `json:"lastAccessedAt,omitempty"`
}

// Activity is one entry in a record's bounded activity log.
type Activity struct {
	Timestamp int64  `json:"timestamp"`
	Action    string `json:"action"`
	ActorID   string `json:"actorId,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Version is one content revision of a file. Version numbers are contiguous
// from 1 and the record's ContentID always matches the newest version.
type Version struct {
	VersionID         string `json:"versionId"`
	VersionNumber     int    `json:"versionNumber"`
	ContentID         string `json:"contentId"`
	Size              int64  `json:"size"`
	CreatedAt         int64  `json:"createdAt"`
	ChangeDescription string `json:"changeDescription,omitempty"`
}

func nowMs() int64 { return time.Now().UnixMilli() }

// NewFolder creates a folder record under parentID ("" for root).
func NewFolder(name, parentID string) *FileRecord {
	now := nowMs()
	return &FileRecord{
		ID:         uuid.New().String(),
		Name:       name,
		ParentID:   parentID,
		IsFolder:   true,
		Timestamps: Timestamps{CreatedAt: now, ModifiedAt: now},
	}
}

// NewFile creates a file record with its first version.
func NewFile(name, parentID, contentID, mimeType string, sizeBytes int64) *FileRecord {
	now := nowMs()
	return &FileRecord{
		ID:         uuid.New().String(),
		Name:       name,
		ContentID:  contentID,
		MimeType:   mimeType,
		SizeBytes:  sizeBytes,
		ParentID:   parentID,
		Timestamps: Timestamps{CreatedAt: now, ModifiedAt: now},
		Versions: []Version{{
			VersionID:     uuid.New().String(),
			VersionNumber: 1,
			ContentID:     contentID,
			Size:          sizeBytes,
			CreatedAt:     now,
		}},
	}
}

// Validate checks the record's internal invariants.
func (r *FileRecord) Validate() error {
	if r.ID == "" {
		return faults.New(faults.Validation, "", "record id is required")
	}
	if r.Name == "" {
		return faults.New(faults.Validation, "", "record name is required")
	}
	if r.IsFolder {
		if r.ContentID != "" {
			return faults.New(faults.Validation, "", fmt.Sprintf("folder %q must not carry a content id", r.Name))
		}
		if r.Pin.Provider != "" || r.Pin.IsPinned {
			return faults.New(faults.Validation, "", fmt.Sprintf("folder %q must not carry pin state", r.Name))
		}
		if len(r.Versions) > 0 {
			return faults.New(faults.Validation, "", fmt.Sprintf("folder %q must not carry versions", r.Name))
		}
	}
	for i, v := range r.Versions {
		if v.VersionNumber != i+1 {
			return faults.New(faults.Validation, "", fmt.Sprintf("file %q has non-contiguous version numbers", r.Name))
		}
	}
	if n := len(r.Versions); n > 0 && r.Versions[n-1].ContentID != r.ContentID {
		return faults.New(faults.Validation, "", fmt.Sprintf("file %q content id does not match its newest version", r.Name))
	}
	return nil
}

// LogActivity prepends an activity entry, trimming the log to its bound.
func (r *FileRecord) LogActivity(action, actorID, detail string) {
	entry := Activity{Timestamp: nowMs(), Action: action, ActorID: actorID, Detail: detail}
	r.ActivityLog = append([]Activity{entry}, r.ActivityLog...)
	if len(r.ActivityLog) > maxActivityEntries {
		r.ActivityLog = r.ActivityLog[:maxActivityEntries]
	}
}

// AddTag inserts a tag, keeping the set sorted and free of duplicates.
func (r *FileRecord) AddTag(tag string) {
	for _, t := range r.Tags {
		if t == tag {
			return
		}
	}
	r.Tags = append(r.Tags, tag)
	sort.Strings(r.Tags)
}

// RemoveTag drops a tag if present.
func (r *FileRecord) RemoveTag(tag string) {
	for i, t := range r.Tags {
		if t == tag {
			r.Tags = append(r.Tags[:i], r.Tags[i+1:]...)
			return
		}
	}
}

// CurrentVersion returns the newest version, or nil for folders and
// versionless records.
func (r *FileRecord) CurrentVersion() *Version {
	if len(r.Versions) == 0 {
		return nil
	}
	return &r.Versions[len(r.Versions)-1]
}
