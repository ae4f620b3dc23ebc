package backend

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lox/yieldwatch/internal/models"
)

// CheckHealth probes all three backends concurrently. It always returns;
// each flag is false when its own probe fails, independent of the others.
func (c *Clients) CheckHealth(ctx context.Context) models.APIHealth {
	var h models.APIHealth
	var g errgroup.Group
	g.Go(func() error {
		h.Geo = c.Geo.Health(ctx)
		return nil
	})
	g.Go(func() error {
		h.ML = c.ML.Health(ctx)
		return nil
	})
	g.Go(func() error {
		h.Ingestion = c.Ingestion.Health(ctx)
		return nil
	})
	g.Wait()
	h.CheckedAt = time.Now().UTC()
	return h
}
