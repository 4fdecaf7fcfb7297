// Package gateway ranks storage-network read gateways by observed health.
//
// Success rates accumulate for the lifetime of a gateway's record and are
// never windowed or decayed, so a gateway that had one bad week is slow to
// regain rank. That staleness is a known property of the scoring scheme,
// kept deliberately simple.
package gateway

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hashdrive/hashdrive/internal/kv"
	"github.com/hashdrive/hashdrive/internal/metrics"
)

const (
	statsKey  = "gateway:stats"
	customKey = "gateway:custom"

	// pathSuffix is the network's gateway path convention. Custom gateway
	// URLs are normalized to end with it.
	pathSuffix = "/ipfs/"

	// rateTieBand treats success rates this close as a tie, broken by
	// response time instead.
	rateTieBand = 0.1

	// minSuccessRate filters out gateways failing more often than not.
	minSuccessRate = 0.5
)

// Seeds is the fixed primary/fallback gateway list known at startup.
var Seeds = []Seed{
	{URL: "https://ipfs.io/ipfs/", DisplayName: "ipfs.io"},
	{URL: "https://dweb.link/ipfs/", DisplayName: "dweb.link"},
	{URL: "https://cloudflare-ipfs.com/ipfs/", DisplayName: "Cloudflare"},
	{URL: "https://gateway.pinata.cloud/ipfs/", DisplayName: "Pinata"},
}

// Seed names a gateway known before any health data exists.
type Seed struct {
	URL         string `json:"url"`
	DisplayName string `json:"displayName"`
}

// Stat is the accumulated health record for one gateway.
type Stat struct {
	URL             string    `json:"url"`
	DisplayName     string    `json:"displayName"`
	EMAResponseTime float64   `json:"emaResponseTimeMs"`
	SuccessCount    int       `json:"successCount"`
	FailureCount    int       `json:"failureCount"`
	SuccessRate     float64   `json:"successRate"`
	LastCheckedAt   time.Time `json:"lastCheckedAt"`
}

// Options configures an Optimizer.
type Options struct {
	Persist      kv.Store      // optional; nil disables persistence
	Client       *http.Client  // optional probe client
	ProbeCID     string        // optional override of the well-known probe id
	ProbeTimeout time.Duration // default 5s
	Interval     time.Duration // default 5m
	StartupDelay time.Duration // default 10s
	Logger       zerolog.Logger
}

// Optimizer tracks per-gateway health and produces a ranked gateway order.
type Optimizer struct {
	mu      sync.RWMutex
	stats   map[string]*Stat
	custom  map[string]Seed
	persist kv.Store

	client       *http.Client
	probeCID     string
	probeTimeout time.Duration
	interval     time.Duration
	startupDelay time.Duration
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

// New creates an optimizer seeded with the default gateway list plus any
// previously persisted stats and custom gateways.
func New(opts Options) *Optimizer {
	o := &Optimizer{
		stats:        make(map[string]*Stat),
		custom:       make(map[string]Seed),
		persist:      opts.Persist,
		client:       opts.Client,
		probeCID:     opts.ProbeCID,
		probeTimeout: opts.ProbeTimeout,
		interval:     opts.Interval,
		startupDelay: opts.StartupDelay,
		logger:       opts.Logger,
		metrics:      metrics.Init(nil),
		now:          time.Now,
	}
	if o.probeCID == "" {
		o.probeCID = wellKnownCID
	}
	if o.probeTimeout <= 0 {
		o.probeTimeout = 5 * time.Second
	}
	if o.interval <= 0 {
		o.interval = 5 * time.Minute
	}
	if o.startupDelay <= 0 {
		o.startupDelay = 10 * time.Second
	}
	if o.client == nil {
		o.client = &http.Client{Timeout: o.probeTimeout}
	}

	for _, s := range Seeds {
		o.stats[s.URL] = &Stat{URL: s.URL, DisplayName: s.DisplayName}
	}
	o.restore()
	return o
}

// restore loads persisted stats and custom gateways. Missing or unreadable
// state is discarded; a fresh start is always acceptable.
func (o *Optimizer) restore() {
	if o.persist == nil {
		return
	}

	if data, ok, err := o.persist.Get(customKey); err == nil && ok {
		var custom []Seed
		if json.Unmarshal(data, &custom) == nil {
			for _, c := range custom {
				o.custom[c.URL] = c
				if _, exists := o.stats[c.URL]; !exists {
					o.stats[c.URL] = &Stat{URL: c.URL, DisplayName: c.DisplayName}
				}
			}
		}
	}

	if data, ok, err := o.persist.Get(statsKey); err == nil && ok {
		var stats []*Stat
		if json.Unmarshal(data, &stats) == nil {
			for _, s := range stats {
				if _, known := o.stats[s.URL]; known {
					o.stats[s.URL] = s
				}
			}
		}
	}
}

// Rank returns gateways ordered best-first: gateways succeeding more than
// half the time, by success rate descending, with rates within the tie band
// ordered by response time ascending. If the filter leaves nothing (cold
// start or a bad network day), the full unfiltered set is returned so
// retrieval never starves.
func (o *Optimizer) Rank() []Stat {
	o.mu.RLock()
	all := make([]Stat, 0, len(o.stats))
	for _, s := range o.stats {
		all = append(all, *s)
	}
	o.mu.RUnlock()

	healthy := make([]Stat, 0, len(all))
	for _, s := range all {
		if s.SuccessRate > minSuccessRate {
			healthy = append(healthy, s)
		}
	}
	if len(healthy) == 0 {
		healthy = all
	}

	sort.SliceStable(healthy, func(i, j int) bool {
		a, b := healthy[i], healthy[j]
		diff := a.SuccessRate - b.SuccessRate
		if diff < 0 {
			diff = -diff
		}
		if diff <= rateTieBand {
			return a.EMAResponseTime < b.EMAResponseTime
		}
		return a.SuccessRate > b.SuccessRate
	})
	return healthy
}

// URLs returns the ranked gateway URLs.
func (o *Optimizer) URLs() []string {
	ranked := o.Rank()
	urls := make([]string, len(ranked))
	for i, s := range ranked {
		urls[i] = s.URL
	}
	return urls
}

// RecordSuccess folds a successful fetch into the gateway's stats.
// The response-time EMA weights history 0.7 against 0.3 for the new sample;
// the first sample seeds the average directly.
func (o *Optimizer) RecordSuccess(url string, elapsed time.Duration) {
	o.mu.Lock()
	s := o.statLocked(url)
	ms := float64(elapsed.Milliseconds())
	if s.SuccessCount == 0 {
		s.EMAResponseTime = ms
	} else {
		s.EMAResponseTime = 0.7*s.EMAResponseTime + 0.3*ms
	}
	s.SuccessCount++
	s.recomputeRate()
	s.LastCheckedAt = o.now()
	o.mu.Unlock()

	o.save()
}

// RecordFailure folds a failed fetch into the gateway's stats.
func (o *Optimizer) RecordFailure(url string) {
	o.mu.Lock()
	s := o.statLocked(url)
	s.FailureCount++
	s.recomputeRate()
	s.LastCheckedAt = o.now()
	o.mu.Unlock()

	o.save()
}

// AddCustomGateway registers a user-supplied gateway. The URL is normalized
// to end with the network's path convention.
func (o *Optimizer) AddCustomGateway(url, name string) string {
	url = NormalizeURL(url)
	if name == "" {
		name = url
	}

	o.mu.Lock()
	o.custom[url] = Seed{URL: url, DisplayName: name}
	if _, exists := o.stats[url]; !exists {
		o.stats[url] = &Stat{URL: url, DisplayName: name}
	}
	o.mu.Unlock()

	o.save()
	return url
}

// RemoveCustomGateway drops a custom gateway and its stats entry.
func (o *Optimizer) RemoveCustomGateway(url string) {
	url = NormalizeURL(url)

	o.mu.Lock()
	delete(o.custom, url)
	delete(o.stats, url)
	o.mu.Unlock()

	o.save()
}

// CustomGateways lists the user-added gateways.
func (o *Optimizer) CustomGateways() []Seed {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]Seed, 0, len(o.custom))
	for _, c := range o.custom {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// NormalizeURL ensures a gateway URL ends with the network path convention.
func NormalizeURL(url string) string {
	url = strings.TrimRight(url, "/")
	if !strings.HasSuffix(url, strings.TrimRight(pathSuffix, "/")) {
		return url + pathSuffix
	}
	return url + "/"
}

// statLocked returns the stat for url, creating it on first sight.
func (o *Optimizer) statLocked(url string) *Stat {
	s, ok := o.stats[url]
	if !ok {
		s = &Stat{URL: url, DisplayName: url}
		o.stats[url] = s
	}
	return s
}

func (s *Stat) recomputeRate() {
	total := s.SuccessCount + s.FailureCount
	if total > 0 {
		s.SuccessRate = float64(s.SuccessCount) / float64(total)
	}
}

// save persists stats and the custom list. Persistence failures are logged
// and otherwise ignored; health data is rebuildable.
func (o *Optimizer) save() {
	if o.persist == nil {
		return
	}

	o.mu.RLock()
	stats := make([]*Stat, 0, len(o.stats))
	for _, s := range o.stats {
		stats = append(stats, s)
	}
	custom := make([]Seed, 0, len(o.custom))
	for _, c := range o.custom {
		custom = append(custom, c)
	}
	o.mu.RUnlock()

	if data, err := json.Marshal(stats); err == nil {
		if err := o.persist.Set(statsKey, data); err != nil {
			o.logger.Debug().Err(err).Msg("persist gateway stats failed")
		}
	}
	if data, err := json.Marshal(custom); err == nil {
		if err := o.persist.Set(customKey, data); err != nil {
			o.logger.Debug().Err(err).Msg("persist custom gateways failed")
		}
	}
}
