package retrieval

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/hashdrive/hashdrive/internal/blob"
)

// LocalFirst answers fetches from the write-path blob store before asking
// any gateway. Content committed through this installation's own backend
// is always readable back from it, even when no public gateway has picked
// the content up yet; only ids the local store has never seen go out to
// the gateways.
type LocalFirst struct {
	local  blob.Store
	engine *Engine
	logger zerolog.Logger
}

// NewLocalFirst creates a read-through fetcher over local and engine.
func NewLocalFirst(local blob.Store, engine *Engine, logger zerolog.Logger) *LocalFirst {
	return &LocalFirst{local: local, engine: engine, logger: logger}
}

// Fetch returns the local blob when present, falling back to gateway
// retrieval otherwise.
func (l *LocalFirst) Fetch(ctx context.Context, contentID string) ([]byte, error) {
	data, err := l.local.Get(ctx, contentID)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, blob.ErrNotFound) {
		l.logger.Debug().Err(err).Str("cid", contentID).Msg("local blob read failed, trying gateways")
	}
	return l.engine.Fetch(ctx, contentID)
}
