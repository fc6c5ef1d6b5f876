package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/pocketumami/pocketumami/pkg/timeseries"
)

// Website is one site tracked by the instance.
type Website struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Domain    string `json:"domain"`
	ShareID   string `json:"shareId,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Metric is a stats value with its previous-period counterpart.
type Metric struct {
	Value float64 `json:"value"`
	Prev  float64 `json:"prev"`
}

// Stats is the summary block for a website over a time window.
type Stats struct {
	Pageviews Metric `json:"pageviews"`
	Visitors  Metric `json:"visitors"`
	Visits    Metric `json:"visits"`
	Bounces   Metric `json:"bounces"`
	TotalTime Metric `json:"totaltime"`
}

// SeriesResponse is the raw pageviews/sessions series for a window.
type SeriesResponse struct {
	Pageviews []timeseries.Sample `json:"pageviews"`
	Sessions  []timeseries.Sample `json:"sessions"`
}

// User is the account behind the current session.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Me returns the authenticated account. Cloud sessions are assembled without
// any network call, so this is the one way to prove a cloud API key actually
// works.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.GetJSON(ctx, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Websites lists the sites visible to the authenticated user. Newer servers
// wrap the list in a paging envelope, older ones return a bare array; both
// shapes are accepted.
func (c *Client) Websites(ctx context.Context) ([]Website, error) {
	var raw json.RawMessage
	if err := c.GetJSON(ctx, "/websites", nil, &raw); err != nil {
		return nil, err
	}

	var envelope struct {
		Data []Website `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Data != nil {
		return envelope.Data, nil
	}

	var list []Website
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	return nil, errParse("website list")
}

// WebsiteStats fetches the summary stats for a website between startAt and
// endAt (epoch milliseconds).
func (c *Client) WebsiteStats(ctx context.Context, websiteID string, startAt, endAt int64, timezone string) (*Stats, error) {
	query := queryParams(
		"startAt", strconv.FormatInt(startAt, 10),
		"endAt", strconv.FormatInt(endAt, 10),
		"timezone", timezone,
	)

	var stats Stats
	if err := c.GetJSON(ctx, "/websites/"+url.PathEscape(websiteID)+"/stats", query, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// PageviewSeries fetches raw pageview/session samples for a window. unit is
// the server-side grouping (hour, day, month); finer client-side bucketing
// happens in pkg/timeseries.
func (c *Client) PageviewSeries(ctx context.Context, websiteID string, startAt, endAt int64, unit, timezone string) (*SeriesResponse, error) {
	query := queryParams(
		"startAt", strconv.FormatInt(startAt, 10),
		"endAt", strconv.FormatInt(endAt, 10),
		"unit", unit,
		"timezone", timezone,
	)

	var series SeriesResponse
	if err := c.GetJSON(ctx, "/websites/"+url.PathEscape(websiteID)+"/pageviews", query, &series); err != nil {
		return nil, err
	}
	return &series, nil
}

// ActiveVisitors returns the current active visitor count. Newer servers
// return {"visitors": n}, older ones [{"x": n}].
func (c *Client) ActiveVisitors(ctx context.Context, websiteID string) (int, error) {
	var raw json.RawMessage
	if err := c.GetJSON(ctx, "/websites/"+url.PathEscape(websiteID)+"/active", nil, &raw); err != nil {
		return 0, err
	}

	var object struct {
		Visitors *int `json:"visitors"`
	}
	if err := json.Unmarshal(raw, &object); err == nil && object.Visitors != nil {
		return *object.Visitors, nil
	}

	var list []struct {
		X int `json:"x"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return 0, nil
		}
		return list[0].X, nil
	}
	return 0, errParse("active visitors")
}

func errParse(what string) error {
	return newParseError(fmt.Sprintf("unexpected %s payload", what))
}
