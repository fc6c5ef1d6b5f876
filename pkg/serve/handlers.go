package serve

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/pocketumami/pocketumami/pkg/httpx"
	"github.com/pocketumami/pocketumami/pkg/timeseries"
)

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

var startTime = time.Now()

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpx.RespondJSON(w, http.StatusOK, healthResponse{
		Status: "healthy",
		Uptime: time.Since(startTime).String(),
	})
}

type websitesResponse struct {
	Websites  any  `json:"websites"`
	FromCache bool `json:"fromCache"`
}

func (s *Server) handleWebsites(w http.ResponseWriter, r *http.Request) {
	sites, fromCache, err := s.data.Websites(r.Context())
	if err != nil {
		httpx.RespondSessionError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, websitesResponse{Websites: sites, FromCache: fromCache})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.planFromRequest(w, r)
	if !ok {
		return
	}

	stats, fromCache, err := s.data.Stats(r.Context(), mux.Vars(r)["id"], plan, s.loc.String())
	if err != nil {
		httpx.RespondSessionError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, map[string]any{
		"stats":     stats,
		"startAt":   plan.StartMs,
		"endAt":     plan.EndMs,
		"fromCache": fromCache,
	})
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.planFromRequest(w, r)
	if !ok {
		return
	}

	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = "pageviews"
	}

	op := timeseries.AggSum
	switch agg := r.URL.Query().Get("agg"); agg {
	case "", "sum":
	case "avg":
		op = timeseries.AggAvg
	case "min":
		op = timeseries.AggMin
	case "max":
		op = timeseries.AggMax
	default:
		httpx.RespondErrorString(w, http.StatusBadRequest, "unknown agg "+agg)
		return
	}

	series, fromCache, err := s.data.PageviewSeries(r.Context(), mux.Vars(r)["id"], plan, metric, op, s.loc.String())
	if err != nil {
		httpx.RespondSessionError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, map[string]any{
		"series":      series,
		"granularity": plan.Granularity,
		"fromCache":   fromCache,
	})
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	count, fromCache, err := s.data.ActiveVisitors(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httpx.RespondSessionError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, map[string]any{
		"visitors":  count,
		"fromCache": fromCache,
	})
}

// planFromRequest turns the range/startAt/endAt query parameters into a
// bucket plan. Presets anchor at now; custom and all need explicit bounds.
func (s *Server) planFromRequest(w http.ResponseWriter, r *http.Request) (timeseries.Plan, bool) {
	query := r.URL.Query()
	rangeType := timeseries.RangeType(query.Get("range"))
	if rangeType == "" {
		rangeType = timeseries.Range24h
	}

	now := time.Now()
	start, end := now, now

	switch rangeType {
	case timeseries.Range24h, timeseries.Range7d, timeseries.Range30d, timeseries.Range90d:
	case timeseries.RangeCustom, timeseries.RangeAll:
		startMs, err1 := strconv.ParseInt(query.Get("startAt"), 10, 64)
		endMs, err2 := strconv.ParseInt(query.Get("endAt"), 10, 64)
		if err1 != nil || err2 != nil || endMs < startMs {
			httpx.RespondErrorString(w, http.StatusBadRequest,
				"range "+string(rangeType)+" needs valid startAt and endAt")
			return timeseries.Plan{}, false
		}
		start = time.UnixMilli(startMs)
		end = time.UnixMilli(endMs)
	default:
		httpx.RespondErrorString(w, http.StatusBadRequest, "unknown range "+string(rangeType))
		return timeseries.Plan{}, false
	}

	return timeseries.CalculateIntervals(start, end, rangeType, now, s.loc), true
}
