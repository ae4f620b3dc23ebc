package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/yieldwatch/internal/api"
	"github.com/lox/yieldwatch/internal/backend"
	"github.com/lox/yieldwatch/internal/ingest"
	"github.com/lox/yieldwatch/internal/models"
	"github.com/lox/yieldwatch/internal/source"
	"github.com/lox/yieldwatch/internal/viewstate"
)

type ServeCmd struct {
	Port          string   `env:"PORT" default:"8080" help:"HTTP server port."`
	NoPoll        bool     `help:"Disable the periodic health poll (local dev)."`
	Origins       []string `env:"CORS_ORIGINS" help:"Allowed CORS origins."`
	RetentionDays int      `default:"30" help:"Days of fetch runs to keep."`
}

func (c *ServeCmd) Run(ctx context.Context, g *Globals) error {
	audit, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	clients, err := g.clients(audit)
	if err != nil {
		return err
	}

	state := viewstate.New()
	scheduler := ingest.NewScheduler(clients, state)
	scheduler.SetAuditStore(audit, c.RetentionDays)
	if c.NoPoll {
		scheduler.SetHealthInterval(0)
		log.Println("polling disabled (--no-poll)")
	}

	server := api.NewServer(clients, state, scheduler, c.Port)
	server.SetAuditStore(audit)
	server.SetAllowedOrigins(c.Origins)

	go scheduler.Run(ctx)

	log.Printf("starting server on :%s", c.Port)
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

type HealthCmd struct{}

func (c *HealthCmd) Run(ctx context.Context, g *Globals) error {
	clients, err := g.clients(nil)
	if err != nil {
		return err
	}
	h := clients.CheckHealth(ctx)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tURL\tSTATUS")
	fmt.Fprintf(w, "geo\t%s\t%s\n", g.GeoURL, upDown(h.Geo))
	fmt.Fprintf(w, "ml\t%s\t%s\n", g.MLURL, upDown(h.ML))
	fmt.Fprintf(w, "ingestion\t%s\t%s\n", g.IngestionURL, upDown(h.Ingestion))
	w.Flush()
	if !h.AllUp() {
		return errors.New("one or more backends are down")
	}
	return nil
}

func upDown(ok bool) string {
	if ok {
		return "up"
	}
	return "down"
}

type RegionsCmd struct {
	County string `help:"Only regions in this county."`
	Year   int    `help:"Only regions with data for this year."`
}

func (c *RegionsCmd) Run(ctx context.Context, g *Globals) error {
	clients, err := g.clients(nil)
	if err != nil {
		return err
	}
	regions := clients.Geo.Regions(ctx, backend.RegionFilter{County: c.County, Year: c.Year})
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCOUNTY\tCROP\tVERTICES")
	for _, r := range regions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", r.ID, r.Name, r.County, r.Crop, len(r.Geometry))
	}
	w.Flush()
	fmt.Printf("%d regions\n", len(regions))
	return nil
}

type PredictionsCmd struct{}

func (c *PredictionsCmd) Run(ctx context.Context, g *Globals) error {
	clients, err := g.clients(nil)
	if err != nil {
		return err
	}
	preds := clients.ML.Predictions(ctx)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REGION\tCROP\tYIELD\tCONFIDENCE\tDATE")
	for _, p := range preds {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%s\n", p.RegionID, p.CropType, p.PredictedYield, p.Confidence, p.Date)
	}
	w.Flush()
	fmt.Printf("average yield: %s\n", viewstate.AverageYield(preds))
	return nil
}

type PredictCmd struct {
	NDVI       float64            `name:"ndvi" help:"Mean NDVI."`
	Precip     float64            `help:"Mean precipitation (mm)."`
	Temp       float64            `help:"Mean temperature (C)."`
	Fertilizer float64            `help:"Fertilizer rate (kg/ha)."`
	Lat        float64            `help:"Latitude."`
	Lon        float64            `help:"Longitude."`
	Feature    map[string]float64 `help:"Additional features as key=value."`
}

func (c *PredictCmd) Run(ctx context.Context, g *Globals) error {
	clients, err := g.clients(nil)
	if err != nil {
		return err
	}
	pred := clients.ML.Predict(ctx, models.Features{
		NDVIMean:   c.NDVI,
		PrecipMean: c.Precip,
		TempMean:   c.Temp,
		Fertilizer: c.Fertilizer,
		Lat:        c.Lat,
		Lon:        c.Lon,
		Extra:      c.Feature,
	})
	if pred == nil {
		return errors.New("prediction failed")
	}
	fmt.Printf("predicted yield: %.2f (confidence %.2f)\n", pred.PredictedYield, pred.Confidence)
	if m := pred.Metadata; m != nil {
		fmt.Printf("statistical: %.2f  mechanistic: %.2f  limiting factor: %s\n",
			m.StatisticalValue, m.MechanisticValue, m.LimitingFactor)
	}
	return nil
}

type UploadCmd struct {
	File  string            `arg:"" help:"Local path or ftp://[user:pass@]host/path."`
	Field map[string]string `help:"Form fields, e.g. data_type=ndvi date=2024-03-01."`
}

func (c *UploadCmd) Run(ctx context.Context, g *Globals) error {
	audit, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()
	clients, err := g.clients(audit)
	if err != nil {
		return err
	}

	f, err := source.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	route, table := backend.RouteFor(f.Name)
	log.Printf("upload: %s via %s %s", f.Name, route, table)
	ok := clients.Ingestion.Upload(ctx, backend.UploadRequest{
		Filename: f.Name,
		Content:  f,
		Fields:   c.Field,
	})
	if !ok {
		return fmt.Errorf("upload %s failed", f.Name)
	}
	fmt.Printf("uploaded %s\n", f.Name)
	return nil
}

type WaitCmd struct {
	MaxWait time.Duration `default:"2m" help:"Give up after this long."`
}

func (c *WaitCmd) Run(ctx context.Context, g *Globals) error {
	clients, err := g.clients(nil)
	if err != nil {
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.MaxWait

	op := func() error {
		h := clients.CheckHealth(ctx)
		if !h.AllUp() {
			return fmt.Errorf("geo=%s ml=%s ingestion=%s", upDown(h.Geo), upDown(h.ML), upDown(h.Ingestion))
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		log.Printf("wait: %v, retrying in %s", err, next.Round(time.Millisecond))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return fmt.Errorf("backends not ready after %s: %w", c.MaxWait, err)
	}
	log.Println("wait: all backends up")
	return nil
}
