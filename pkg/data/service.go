// Package data is the read path the CLI and dashboard consume: each method
// answers from the query cache when the cached copy is fresh, otherwise hits
// the API and caches the result. Caching is best-effort and never turns a
// successful fetch into a failure.
package data

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/pocketumami/pocketumami/pkg/api"
	"github.com/pocketumami/pocketumami/pkg/instance"
	"github.com/pocketumami/pocketumami/pkg/querycache"
	"github.com/pocketumami/pocketumami/pkg/timeseries"
)

// Per-resource freshness windows. Active visitors move fast, the rest is
// dashboard data that tolerates a few minutes of staleness.
const (
	websitesTTL = 5 * time.Minute
	statsTTL    = 5 * time.Minute
	seriesTTL   = 5 * time.Minute
	activeTTL   = 30 * time.Second
)

// Series is an aggregated chart: seven tick values with display labels.
type Series struct {
	Ticks  []int64   `json:"ticks"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// Service resolves dashboard queries through the cache and the API client.
type Service struct {
	api       *api.Client
	cache     *querycache.Cache
	instances *instance.Store
	log       *zap.Logger
}

// NewService wires the read path together.
func NewService(apiClient *api.Client, cache *querycache.Cache, instances *instance.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{api: apiClient, cache: cache, instances: instances, log: log}
}

// Websites lists the sites of the active instance. fromCache reports whether
// the answer was served without a network call.
func (s *Service) Websites(ctx context.Context) (sites []api.Website, fromCache bool, err error) {
	err = s.cached(ctx, "websites", websitesTTL, &sites, &fromCache, func() (any, error) {
		return s.api.Websites(ctx)
	})
	return sites, fromCache, err
}

// Stats fetches the summary block for the plan's window.
func (s *Service) Stats(ctx context.Context, websiteID string, plan timeseries.Plan, timezone string) (stats *api.Stats, fromCache bool, err error) {
	key := fmt.Sprintf("stats/%s/%d/%d/%s", websiteID, plan.StartMs, plan.EndMs, timezone)
	err = s.cached(ctx, key, statsTTL, &stats, &fromCache, func() (any, error) {
		return s.api.WebsiteStats(ctx, websiteID, plan.StartMs, plan.EndMs, timezone)
	})
	return stats, fromCache, err
}

// PageviewSeries fetches raw samples for the plan's window and folds them
// into the plan's buckets. metric selects pageviews or sessions.
func (s *Service) PageviewSeries(ctx context.Context, websiteID string, plan timeseries.Plan, metric string, op timeseries.AggOp, timezone string) (*Series, bool, error) {
	key := fmt.Sprintf("series/%s/%d/%d/%s/%s", websiteID, plan.StartMs, plan.EndMs, plan.Granularity, timezone)

	var raw *api.SeriesResponse
	var fromCache bool
	err := s.cached(ctx, key, seriesTTL, &raw, &fromCache, func() (any, error) {
		return s.api.PageviewSeries(ctx, websiteID, plan.StartMs, plan.EndMs, string(plan.Granularity), timezone)
	})
	if err != nil {
		return nil, false, err
	}

	samples := raw.Pageviews
	if metric == "sessions" {
		samples = raw.Sessions
	}
	return &Series{
		Ticks:  plan.Ticks[:],
		Labels: timeseries.FormatLabels(plan.Ticks[:], plan.Granularity, timezone),
		Values: timeseries.Aggregate(samples, plan.Buckets, op),
	}, fromCache, nil
}

// ActiveVisitors returns the live visitor count, cached for a short window
// so a dashboard polling loop doesn't hammer the server.
func (s *Service) ActiveVisitors(ctx context.Context, websiteID string) (count int, fromCache bool, err error) {
	err = s.cached(ctx, "active/"+websiteID, activeTTL, &count, &fromCache, func() (any, error) {
		return s.api.ActiveVisitors(ctx, websiteID)
	})
	return count, fromCache, err
}

// ClearCache wipes the active instance's cached queries.
func (s *Service) ClearCache(ctx context.Context) error {
	inst, err := s.instances.Current(ctx)
	if err != nil {
		return err
	}
	return s.cache.ClearInstance(ctx, inst.ID)
}

// cached is the read-through core: fresh cache hit → decode into out; miss →
// fetch, store into out, and write back to the cache.
func (s *Service) cached(ctx context.Context, key string, ttl time.Duration, out any, fromCache *bool, fetch func() (any, error)) error {
	instanceID := ""
	if inst, err := s.instances.Current(ctx); err == nil {
		instanceID = inst.ID
	}

	if instanceID != "" {
		if rec, ok := s.cache.Get(ctx, instanceID, key); ok && s.cache.IsFresh(rec.StoredAt, ttl) {
			if err := json.Unmarshal(rec.Data, out); err == nil {
				*fromCache = true
				return nil
			}
			s.log.Debug("cached payload not decodable, refetching", zap.String("key", key))
		}
	}

	result, err := fetch()
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode %s result: %w", key, err)
	}
	if err := json.Unmarshal(encoded, out); err != nil {
		return fmt.Errorf("decode %s result: %w", key, err)
	}
	if instanceID != "" {
		s.cache.Set(ctx, instanceID, key, encoded)
	}
	return nil
}
