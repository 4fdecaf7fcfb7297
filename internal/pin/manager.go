package pin

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/hashdrive/hashdrive/internal/metrics"
)

// Manager fronts the configured provider with a uniform interface and
// instrumentation. It owns no persistent state beyond what the provider
// reports; pin idempotence is guarded by the caller against the file
// record's pin flag, not deduplicated here.
type Manager struct {
	provider Provider
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewManager creates a manager over the given provider.
func NewManager(provider Provider, logger zerolog.Logger) *Manager {
	return &Manager{
		provider: provider,
		logger:   logger,
		metrics:  metrics.Init(nil),
	}
}

// ProviderName returns the active provider's name.
func (m *Manager) ProviderName() string { return m.provider.Name() }

// PinFile uploads and pins raw content.
func (m *Manager) PinFile(ctx context.Context, data []byte, meta Metadata) (*Result, error) {
	r, err := m.provider.PinFile(ctx, data, meta)
	m.observe("pin_file", r != nil && r.Success, err)
	return r, err
}

// PinByHash pins content already on the network.
func (m *Manager) PinByHash(ctx context.Context, contentID string, meta Metadata) (*Result, error) {
	r, err := m.provider.PinByHash(ctx, contentID, meta)
	m.observe("pin_by_hash", r != nil && r.Success, err)
	return r, err
}

// Unpin releases pinned content.
func (m *Manager) Unpin(ctx context.Context, contentID string) (*UnpinResult, error) {
	r, err := m.provider.Unpin(ctx, contentID)
	m.observe("unpin", r != nil && r.Success, err)
	return r, err
}

// Status reports pin state for contentID.
func (m *Manager) Status(ctx context.Context, contentID string) (*Status, error) {
	return m.provider.Status(ctx, contentID)
}

func (m *Manager) observe(op string, success bool, err error) {
	status := "success"
	if err != nil || !success {
		status = "failure"
		m.logger.Debug().Str("operation", op).Err(err).Str("provider", m.provider.Name()).Msg("pin operation failed")
	}
	m.metrics.PinOps.WithLabelValues(op, status).Inc()
}
