package serve

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pocketumami/pocketumami/pkg/data"
)

const pollInterval = 30 * time.Second

// activeUpdate is the payload broadcast to dashboard clients.
type activeUpdate struct {
	Type      string `json:"type"`
	WebsiteID string `json:"websiteId"`
	Visitors  int    `json:"visitors"`
	At        int64  `json:"at"`
}

// poller periodically fetches active visitor counts for every website and
// pushes them through the hub. It stays quiet while no client is connected.
type poller struct {
	data *data.Service
	hub  *Hub
	log  *zap.Logger
}

func (p *poller) run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.hub.HasClients() {
				continue
			}
			p.poll(ctx)
		}
	}
}

func (p *poller) poll(ctx context.Context) {
	sites, _, err := p.data.Websites(ctx)
	if err != nil {
		p.log.Warn("active visitor poll: website list failed", zap.Error(err))
		return
	}

	for _, site := range sites {
		count, _, err := p.data.ActiveVisitors(ctx, site.ID)
		if err != nil {
			p.log.Warn("active visitor poll failed",
				zap.String("website", site.ID), zap.Error(err))
			continue
		}
		_ = p.hub.Broadcast(activeUpdate{
			Type:      "active",
			WebsiteID: site.ID,
			Visitors:  count,
			At:        time.Now().UnixMilli(),
		})
	}
}
