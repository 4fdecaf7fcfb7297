// Package pin keeps content alive on the storage network through pluggable
// pinning providers.
package pin

import (
	"context"
	"time"
)

// Metadata accompanies a pin request so the provider can label the pin.
type Metadata struct {
	Name      string            `json:"name"`
	Keyvalues map[string]string `json:"keyvalues,omitempty"`
}

// Result reports the outcome of a pin request.
type Result struct {
	Success   bool
	ContentID string
	SizeBytes int64
	PinnedAt  time.Time
	Error     string // uniform provider error, empty on success
}

// UnpinResult reports the outcome of an unpin request.
type UnpinResult struct {
	Success bool
	Error   string
}

// Status describes whether content is currently pinned.
type Status struct {
	IsPinned  bool
	PinnedAt  *time.Time
	Provider  string
	SizeBytes int64
}

// Provider is one pinning backend. Provider error payloads are mapped to
// the uniform Error string on the result; the returned error is reserved
// for transport and configuration failures.
type Provider interface {
	Name() string
	PinFile(ctx context.Context, data []byte, meta Metadata) (*Result, error)
	PinByHash(ctx context.Context, contentID string, meta Metadata) (*Result, error)
	Unpin(ctx context.Context, contentID string) (*UnpinResult, error)
	Status(ctx context.Context, contentID string) (*Status, error)
}
