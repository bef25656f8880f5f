package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	apierrors "github.com/sweetpotato0/api-universe/errors"
	"github.com/sweetpotato0/api-universe/pkg/logging"
)

// ProviderStats tracks routing outcomes for a single provider.
type ProviderStats struct {
	Requests     int64         `json:"requests"`
	Failures     int64         `json:"failures"`
	TotalLatency time.Duration `json:"total_latency"`
	AvgLatency   time.Duration `json:"avg_latency"`
	TrafficPct   float64       `json:"traffic_pct"`
}

// RouterStats aggregates per-provider stats plus the overall request count.
type RouterStats struct {
	Providers     map[string]ProviderStats `json:"providers"`
	TotalRequests int64                    `json:"total_requests"`
}

type tier struct {
	client   Client
	priority int
}

// Router routes model calls across providers with automatic fallback.
// Providers are tried in ascending priority order; the first success wins.
// Router itself satisfies Client so pipelines can be wired against either a
// single provider or a full fallback chain.
type Router struct {
	mu      sync.Mutex
	tiers   []tier
	stats   map[string]*ProviderStats
	timeout time.Duration
	logger  *slog.Logger
}

// RouterOption customises router construction.
type RouterOption func(*Router)

// WithProvider registers a provider at the given priority. Lower priority
// values are tried first.
func WithProvider(client Client, priority int) RouterOption {
	return func(r *Router) {
		if client == nil {
			return
		}
		r.tiers = append(r.tiers, tier{client: client, priority: priority})
		r.stats[client.Name()] = &ProviderStats{}
	}
}

// WithCallTimeout bounds every provider call. Zero disables the bound.
func WithCallTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		r.timeout = d
	}
}

// NewRouter creates a router from the provided options.
func NewRouter(opts ...RouterOption) (*Router, error) {
	r := &Router{
		stats:  make(map[string]*ProviderStats),
		logger: logging.WithComponent("llm_router"),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(r)
	}
	if len(r.tiers) == 0 {
		return nil, fmt.Errorf("router requires at least one provider")
	}
	sort.SliceStable(r.tiers, func(i, j int) bool {
		return r.tiers[i].priority < r.tiers[j].priority
	})
	return r, nil
}

// Name implements Client.
func (r *Router) Name() string {
	return "router"
}

// Model implements Client; it reports the primary tier's model.
func (r *Router) Model() string {
	return r.tiers[0].client.Model()
}

// Generate tries each provider in priority order until one succeeds.
// Failures are recorded per provider; when every tier errors the combined
// failure wraps ErrAllProvidersFailed.
func (r *Router) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	var errs []error

	for _, t := range r.tiers {
		callCtx := ctx
		var cancel context.CancelFunc
		if r.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		}

		start := time.Now()
		resp, err := t.client.Generate(callCtx, req)
		latency := time.Since(start)
		if cancel != nil {
			cancel()
		}

		if err != nil {
			r.recordFailure(t.client.Name())
			r.logger.Warn("provider call failed, falling back",
				"provider", t.client.Name(),
				"latency", latency,
				"error", err,
			)
			errs = append(errs, &ProviderError{Provider: t.client.Name(), Err: err})
			continue
		}

		r.recordSuccess(t.client.Name(), latency)
		if resp.Model == "" {
			resp.Model = t.client.Model()
		}
		return resp, nil
	}

	return nil, fmt.Errorf("%w: %v", apierrors.ErrAllProvidersFailed, errs)
}

// Stats returns a snapshot of routing statistics.
func (r *Router) Stats() RouterStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int64
	for _, s := range r.stats {
		total += s.Requests
	}

	out := RouterStats{
		Providers:     make(map[string]ProviderStats, len(r.stats)),
		TotalRequests: total,
	}
	for name, s := range r.stats {
		snapshot := *s
		if total > 0 {
			snapshot.TrafficPct = float64(s.Requests) / float64(total) * 100
		}
		out.Providers[name] = snapshot
	}
	return out
}

func (r *Router) recordSuccess(name string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[name]
	if !ok {
		return
	}
	s.Requests++
	s.TotalLatency += latency
	s.AvgLatency = s.TotalLatency / time.Duration(s.Requests)
}

func (r *Router) recordFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stats[name]; ok {
		s.Failures++
	}
}
