// Package retrieval fetches content-addressed blobs through the storage
// network's read gateways, failing over between them in health-ranked order.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hashdrive/hashdrive/internal/cid"
	"github.com/hashdrive/hashdrive/internal/faults"
	"github.com/hashdrive/hashdrive/internal/gateway"
	"github.com/hashdrive/hashdrive/internal/metrics"
)

// Ranker supplies a gateway order and accepts outcome reports. Satisfied by
// *gateway.Optimizer.
type Ranker interface {
	URLs() []string
	RecordSuccess(url string, elapsed time.Duration)
	RecordFailure(url string)
}

// Options configures an Engine.
type Options struct {
	Ranker         Ranker        // optional; nil uses the fixed seed list
	Client         *http.Client  // optional
	MaxRetries     int           // attempts per gateway, default 2
	AttemptTimeout time.Duration // default 8s
	BackoffUnit    time.Duration // linear backoff base, default 1s
	Logger         zerolog.Logger
}

// Engine retrieves content ids with per-gateway retry and cross-gateway
// failover. Gateway attempts are strictly sequential; the only parallelism
// in the retrieval path belongs to the optimizer's health probes.
type Engine struct {
	ranker         Ranker
	client         *http.Client
	maxRetries     int
	attemptTimeout time.Duration
	backoffUnit    time.Duration
	logger         zerolog.Logger
	metrics        *metrics.Metrics
}

// New creates a retrieval engine.
func New(opts Options) *Engine {
	e := &Engine{
		ranker:         opts.Ranker,
		client:         opts.Client,
		maxRetries:     opts.MaxRetries,
		attemptTimeout: opts.AttemptTimeout,
		backoffUnit:    opts.BackoffUnit,
		logger:         opts.Logger,
	}
	if e.maxRetries <= 0 {
		e.maxRetries = 2
	}
	if e.attemptTimeout <= 0 {
		e.attemptTimeout = 8 * time.Second
	}
	if e.backoffUnit <= 0 {
		e.backoffUnit = time.Second
	}
	if e.client == nil {
		e.client = &http.Client{}
	}
	e.metrics = metrics.Init(nil)
	return e
}

// attemptOutcome classifies a single gateway attempt.
type attemptOutcome int

const (
	outcomeSuccess   attemptOutcome = iota
	outcomeAbandon                  // 4xx or transport failure: this gateway will not recover
	outcomeTransient                // worth retrying on the same gateway
)

// Fetch retrieves contentID, trying gateways in ranked order. Each gateway
// gets up to maxRetries attempts with linear backoff between transient
// failures; a 4xx response or transport-level error abandons the gateway
// immediately. Exhausted gateways are reported to the ranker.
func (e *Engine) Fetch(ctx context.Context, contentID string) ([]byte, error) {
	urls := e.gatewayOrder()
	hash := cid.Normalize(contentID)

	for i, url := range urls {
		data, ok := e.fetchFromGateway(ctx, url, hash)
		if ok {
			return data, nil
		}
		if e.ranker != nil {
			e.ranker.RecordFailure(url)
		}
		if i < len(urls)-1 {
			e.metrics.FetchFailovers.Inc()
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, faults.New(faults.StorageNetwork, "", fmt.Sprintf("all %d gateways exhausted fetching %s", len(urls), hash))
}

// fetchFromGateway runs the per-gateway attempt loop.
func (e *Engine) fetchFromGateway(ctx context.Context, url, hash string) ([]byte, bool) {
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		start := time.Now()
		data, outcome, err := e.attempt(ctx, url, hash)
		switch outcome {
		case outcomeSuccess:
			e.metrics.FetchAttempts.WithLabelValues(url, "success").Inc()
			e.metrics.FetchBytes.Add(float64(len(data)))
			if e.ranker != nil {
				e.ranker.RecordSuccess(url, time.Since(start))
			}
			return data, true

		case outcomeAbandon:
			e.metrics.FetchAttempts.WithLabelValues(url, "abandoned").Inc()
			e.logger.Debug().Str("gateway", url).Err(err).Msg("abandoning gateway")
			return nil, false

		case outcomeTransient:
			e.metrics.FetchAttempts.WithLabelValues(url, "retry").Inc()
			e.logger.Debug().Str("gateway", url).Int("attempt", attempt).Err(err).Msg("transient gateway failure")
			if attempt < e.maxRetries {
				if !e.sleep(ctx, time.Duration(attempt)*e.backoffUnit) {
					return nil, false
				}
			}
		}
	}
	return nil, false
}

// attempt performs one HTTP fetch against one gateway.
func (e *Engine) attempt(ctx context.Context, url, hash string) ([]byte, attemptOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cid.GatewayURL(url, hash), nil)
	if err != nil {
		return nil, outcomeAbandon, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		// A timed-out attempt may succeed next time; a refused connection
		// or unresolvable host will not.
		if isTimeout(err) {
			return nil, outcomeTransient, err
		}
		return nil, outcomeAbandon, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, outcomeTransient, err
		}
		return data, outcomeSuccess, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Retrying will not fix a 4xx.
		return nil, outcomeAbandon, fmt.Errorf("gateway returned %d", resp.StatusCode)

	default:
		return nil, outcomeTransient, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
}

// gatewayOrder asks the ranker, falling back to the fixed seed list.
func (e *Engine) gatewayOrder() []string {
	if e.ranker != nil {
		if urls := e.ranker.URLs(); len(urls) > 0 {
			return urls
		}
	}
	urls := make([]string, len(gateway.Seeds))
	for i, s := range gateway.Seeds {
		urls[i] = s.URL
	}
	return urls
}

// sleep waits for d unless ctx ends first.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
