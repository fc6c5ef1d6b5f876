package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pocketumami/pocketumami/pkg/api"
	"github.com/pocketumami/pocketumami/pkg/instance"
	"github.com/pocketumami/pocketumami/pkg/querycache"
	"github.com/pocketumami/pocketumami/pkg/session"
	"github.com/pocketumami/pocketumami/pkg/storage/memory"
	"github.com/pocketumami/pocketumami/pkg/timeseries"
)

type fixture struct {
	service   *Service
	cache     *querycache.Cache
	instances *instance.Store
	dataCalls *atomic.Int64
	server    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	var dataCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/verify", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "u1"})
	})
	mux.HandleFunc("/api/websites", func(w http.ResponseWriter, r *http.Request) {
		dataCalls.Add(1)
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"id": "site-1", "name": "Blog", "domain": "blog.example.com"},
		})
	})
	mux.HandleFunc("/api/websites/site-1/active", func(w http.ResponseWriter, r *http.Request) {
		dataCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]int{"visitors": 3})
	})
	mux.HandleFunc("/api/websites/site-1/pageviews", func(w http.ResponseWriter, r *http.Request) {
		dataCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"pageviews": []map[string]any{
				{"x": "2024-01-01T10:30:00Z", "y": 4},
				{"x": "2024-01-01T11:30:00Z", "y": 2},
			},
			"sessions": []map[string]any{},
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	instances := instance.NewStore(memory.New(), memory.New())
	inst := &instance.Instance{Name: "test", Host: server.URL, SetupType: instance.SetupSelfHosted, Username: "admin"}
	require.NoError(t, instances.Create(ctx, inst))
	require.NoError(t, instances.SetSecrets(ctx, inst.ID, instance.Secrets{Token: "t", Password: "pw"}))

	mgr := session.NewManager(instances, session.NewStore(), zap.NewNop())
	cache := querycache.New(memory.New(), zap.NewNop())
	t.Cleanup(cache.Close)

	return &fixture{
		service:   NewService(api.NewClient(mgr, zap.NewNop()), cache, instances, zap.NewNop()),
		cache:     cache,
		instances: instances,
		dataCalls: &dataCalls,
		server:    server,
	}
}

func TestService_WebsitesCached(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sites, fromCache, err := f.service.Websites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.False(t, fromCache)
	assert.Equal(t, int64(1), f.dataCalls.Load())

	sites, fromCache, err = f.service.Websites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "site-1", sites[0].ID)
	assert.True(t, fromCache)
	assert.Equal(t, int64(1), f.dataCalls.Load(), "fresh cache hit must not refetch")
}

func TestService_ActiveVisitors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	count, fromCache, err := f.service.ActiveVisitors(ctx, "site-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.False(t, fromCache)

	count, fromCache, err = f.service.ActiveVisitors(ctx, "site-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.True(t, fromCache)
}

func TestService_PageviewSeriesAggregates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	now := time.Date(2024, 1, 1, 14, 37, 0, 0, time.UTC)
	plan := timeseries.CalculateIntervals(time.Time{}, now, timeseries.Range24h, now, time.UTC)

	series, fromCache, err := f.service.PageviewSeries(ctx, "site-1", plan, "pageviews", timeseries.AggSum, "UTC")
	require.NoError(t, err)
	assert.False(t, fromCache)
	require.Len(t, series.Values, len(plan.Buckets))
	require.Len(t, series.Labels, timeseries.TickCount)

	// Both samples land inside the 24h window, so the bucket totals sum to
	// the raw sample total.
	var total float64
	for _, v := range series.Values {
		total += v
	}
	assert.Equal(t, 6.0, total)
}

func TestService_ClearCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.service.Websites(ctx)
	require.NoError(t, err)
	require.NoError(t, f.service.ClearCache(ctx))

	_, fromCache, err := f.service.Websites(ctx)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, int64(2), f.dataCalls.Load())
}

func TestService_CacheFailureDoesNotFailFetch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// No active instance: caching is skipped entirely but fetches still work.
	require.NoError(t, f.instances.Delete(ctx, mustCurrentID(t, f.instances)))

	_, _, err := f.service.Websites(ctx)
	require.Error(t, err, "no instance means the session layer fails, not the cache")
	assert.Equal(t, session.CodeMissingInstance, session.CodeOf(err))
}

func mustCurrentID(t *testing.T, instances *instance.Store) string {
	t.Helper()
	inst, err := instances.Current(context.Background())
	require.NoError(t, err)
	return inst.ID
}
