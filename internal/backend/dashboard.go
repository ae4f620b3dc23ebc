package backend

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/lox/yieldwatch/internal/models"
)

// DashboardData is one round of the dashboard's listing fetches.
type DashboardData struct {
	Regions     []models.Region
	Assets      []models.RasterAsset
	Predictions []models.Prediction
}

// LoadDashboard fetches regions, raster assets and predictions in parallel.
// A failing backend leaves only its own listing empty.
func (c *Clients) LoadDashboard(ctx context.Context, f RegionFilter) DashboardData {
	var d DashboardData
	var g errgroup.Group
	g.Go(func() error {
		d.Regions = c.Geo.Regions(ctx, f)
		return nil
	})
	g.Go(func() error {
		d.Assets = c.Ingestion.Rasters(ctx)
		return nil
	})
	g.Go(func() error {
		d.Predictions = c.ML.Predictions(ctx)
		return nil
	})
	g.Wait()
	return d
}
