package pin

import (
	"context"
	"time"

	"github.com/hashdrive/hashdrive/internal/cid"
)

// Local is the no-op provider used when no external pinning service is
// configured. It reports every request as successful and every hash as
// pinned; callers must not read that as external persistence.
type Local struct{}

// NewLocal creates the no-op provider.
func NewLocal() *Local { return &Local{} }

// Name implements Provider.
func (*Local) Name() string { return "local" }

// PinFile implements Provider.
func (*Local) PinFile(_ context.Context, data []byte, _ Metadata) (*Result, error) {
	return &Result{
		Success:   true,
		ContentID: cid.Sum(data),
		SizeBytes: int64(len(data)),
		PinnedAt:  time.Now(),
	}, nil
}

// PinByHash implements Provider.
func (*Local) PinByHash(_ context.Context, contentID string, _ Metadata) (*Result, error) {
	return &Result{
		Success:   true,
		ContentID: cid.Normalize(contentID),
		PinnedAt:  time.Now(),
	}, nil
}

// Unpin implements Provider.
func (*Local) Unpin(context.Context, string) (*UnpinResult, error) {
	return &UnpinResult{Success: true}, nil
}

// Status implements Provider.
func (*Local) Status(context.Context, string) (*Status, error) {
	now := time.Now()
	return &Status{IsPinned: true, PinnedAt: &now, Provider: "local"}, nil
}
