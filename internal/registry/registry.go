package registry

import (
	"encoding/json"
	"fmt"

	"github.com/hashdrive/hashdrive/internal/faults"
)

// Registry is the immutable snapshot of one owner's complete file list,
// serialized as a single JSON blob on the storage network.
type Registry struct {
	OwnerID     string        `json:"ownerId"`
	Files       []*FileRecord `json:"files"`
	LastUpdated int64         `json:"lastUpdated"` // epoch-ms
}

// Empty returns a registry with no files for ownerID.
func Empty(ownerID string) *Registry {
	return &Registry{OwnerID: ownerID, Files: []*FileRecord{}}
}

// Marshal serializes the registry blob.
func (r *Registry) Marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode registry: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a registry blob.
func Unmarshal(data []byte) (*Registry, error) {
	var r Registry
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if r.Files == nil {
		r.Files = []*FileRecord{}
	}
	return &r, nil
}

// ValidateFiles checks the cross-record invariants of a file list: unique
// ids, parents that exist and are folders, and an acyclic parent graph.
func ValidateFiles(files []*FileRecord) error {
	byID := make(map[string]*FileRecord, len(files))
	for _, f := range files {
		if err := f.Validate(); err != nil {
			return err
		}
		if _, dup := byID[f.ID]; dup {
			return faults.New(faults.Validation, "", fmt.Sprintf("duplicate record id %s", f.ID))
		}
		byID[f.ID] = f
	}

	for _, f := range files {
		if f.ParentID == "" {
			continue
		}
		parent, ok := byID[f.ParentID]
		if !ok {
			return faults.New(faults.Validation, "", fmt.Sprintf("record %q references missing parent %s", f.Name, f.ParentID))
		}
		if !parent.IsFolder {
			return faults.New(faults.Validation, "", fmt.Sprintf("record %q has non-folder parent %q", f.Name, parent.Name))
		}
	}

	// Walk each parent chain; revisiting a node within one walk is a cycle.
	for _, f := range files {
		seen := map[string]bool{f.ID: true}
		for cur := f; cur.ParentID != ""; {
			next := byID[cur.ParentID]
			if seen[next.ID] {
				return faults.New(faults.Validation, "", fmt.Sprintf("parent cycle through record %q", next.Name))
			}
			seen[next.ID] = true
			cur = next
		}
	}
	return nil
}
