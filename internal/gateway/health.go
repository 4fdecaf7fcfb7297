package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/hashdrive/hashdrive/internal/cid"
)

// wellKnownCID is a small, widely replicated public object used for
// existence probes. Probing it exercises a gateway without moving data.
const wellKnownCID = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"

// probeBatchSize bounds concurrent health probes per batch.
const probeBatchSize = 3

// HealthCheck issues a lightweight existence probe against url and records
// the outcome. The probe timeout is deliberately shorter than a normal
// retrieval attempt; a gateway that cannot answer a HEAD request in 5
// seconds is not a gateway worth ranking highly.
func (o *Optimizer) HealthCheck(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, o.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, cid.GatewayURL(url, o.probeCID), nil)
	if err != nil {
		o.metrics.ProbeResults.WithLabelValues("failure").Inc()
		o.RecordFailure(url)
		return err
	}

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		o.metrics.ProbeResults.WithLabelValues("failure").Inc()
		o.RecordFailure(url)
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		o.metrics.ProbeResults.WithLabelValues("success").Inc()
		o.RecordSuccess(url, time.Since(start))
		return nil
	}
	o.metrics.ProbeResults.WithLabelValues("failure").Inc()
	o.RecordFailure(url)
	return nil
}

// RunHealthCheckCycle probes every known gateway in batches of three,
// waiting for each batch to finish before starting the next.
func (o *Optimizer) RunHealthCheckCycle(ctx context.Context) {
	o.mu.RLock()
	urls := make([]string, 0, len(o.stats))
	for u := range o.stats {
		urls = append(urls, u)
	}
	o.mu.RUnlock()

	for start := 0; start < len(urls); start += probeBatchSize {
		end := start + probeBatchSize
		if end > len(urls) {
			end = len(urls)
		}

		var wg sync.WaitGroup
		for _, url := range urls[start:end] {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				if err := o.HealthCheck(ctx, u); err != nil {
					o.logger.Debug().Str("gateway", u).Err(err).Msg("health probe failed")
				}
			}(url)
		}
		wg.Wait()

		if ctx.Err() != nil {
			return
		}
	}

	o.logger.Debug().Int("gateways", len(urls)).Msg("health check cycle complete")
}

// Start runs a probe cycle shortly after startup and then on a fixed
// interval until ctx is cancelled. Run it in its own goroutine.
func (o *Optimizer) Start(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(o.startupDelay):
	}
	o.RunHealthCheckCycle(ctx)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.RunHealthCheckCycle(ctx)
		}
	}
}
