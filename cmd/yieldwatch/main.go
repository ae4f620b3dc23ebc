package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/lox/yieldwatch/internal/backend"
	"github.com/lox/yieldwatch/internal/httputil"
	"github.com/lox/yieldwatch/internal/metrics"
	"github.com/lox/yieldwatch/internal/store"
)

type Globals struct {
	GeoURL       string `name:"geo-url" env:"GEO_API_URL" default:"http://localhost:8000" help:"Geospatial service base URL."`
	MLURL        string `name:"ml-url" env:"ML_API_URL" default:"http://localhost:8001" help:"ML service base URL."`
	IngestionURL string `name:"ingestion-url" env:"INGESTION_API_URL" default:"http://localhost:8002" help:"Ingestion service base URL."`

	GeoHealthPath       string `env:"GEO_HEALTH_PATH" default:"/v1/status" help:"Geo service health probe path."`
	MLHealthPath        string `name:"ml-health-path" env:"ML_HEALTH_PATH" default:"/health" help:"ML service health probe path."`
	IngestionHealthPath string `env:"INGESTION_HEALTH_PATH" default:"/v1/status" help:"Ingestion service health probe path."`
	GeoJSONPath         string `name:"geojson-path" env:"INGESTION_GEOJSON_PATH" default:"/v1/ingest/geojson" help:"Ingestion route for GeoJSON uploads."`

	DB      string `env:"YIELDWATCH_DB" default:"data/yieldwatch.db" help:"Path to the SQLite audit database."`
	EnvFile string `name:"env-file" default:".env" help:"Dotenv file loaded before flags are parsed."`
}

func (g *Globals) config() (backend.Config, error) {
	cfg := backend.Config{
		GeoURL:              g.GeoURL,
		MLURL:               g.MLURL,
		IngestionURL:        g.IngestionURL,
		GeoHealthPath:       g.GeoHealthPath,
		MLHealthPath:        g.MLHealthPath,
		IngestionHealthPath: g.IngestionHealthPath,
		GeoJSONPath:         g.GeoJSONPath,
	}
	if err := cfg.Validate(); err != nil {
		return backend.Config{}, fmt.Errorf("invalid backend config: %w", err)
	}
	return cfg, nil
}

// clients builds service clients that report every call to metrics and,
// when audit is non-nil, to the fetch run log.
func (g *Globals) clients(audit *store.Store) (*backend.Clients, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	return backend.NewClients(cfg, func(c httputil.Call) {
		metrics.ObserveCall(c)
		if audit == nil {
			return
		}
		if err := audit.RecordCall(c); err != nil {
			log.Printf("audit: record %s %s: %v", c.Service, c.URL, err)
		}
	}), nil
}

// openStore opens and migrates the audit database.
func (g *Globals) openStore() (*store.Store, func(), error) {
	if dir := filepath.Dir(g.DB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", g.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	v, err := st.SchemaVersion()
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("read schema version: %w", err)
	}
	if v != store.LatestSchemaVersion() {
		db.Close()
		return nil, nil, fmt.Errorf("database at schema v%d, want v%d", v, store.LatestSchemaVersion())
	}
	log.Printf("database %s at schema v%d", g.DB, v)
	return st, func() { db.Close() }, nil
}

type CLI struct {
	Globals

	Serve       ServeCmd       `cmd:"" help:"Run the dashboard API with background health polling."`
	Health      HealthCmd      `cmd:"" help:"Probe all three backends once."`
	Regions     RegionsCmd     `cmd:"" help:"List regions from the geo service."`
	Predictions PredictionsCmd `cmd:"" help:"List predictions and the average yield."`
	Predict     PredictCmd     `cmd:"" help:"Run a single yield prediction."`
	Upload      UploadCmd      `cmd:"" help:"Upload a local file or ftp:// URL to the ingestion service."`
	Wait        WaitCmd        `cmd:"" help:"Block until every backend reports healthy."`
}

func main() {
	loadEnvFile(os.Args[1:])

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("yieldwatch"),
		kong.Description("Crop-yield dashboard orchestration for the geo, ML and ingestion services."),
		kong.UsageOnError(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.FatalIfErrorf(kctx.Run(&cli.Globals))
}

// loadEnvFile loads --env-file (default .env) ahead of flag parsing so env
// tags can see its values. A missing file is not an error.
func loadEnvFile(args []string) {
	path := ".env"
	for i, a := range args {
		if v, ok := strings.CutPrefix(a, "--env-file="); ok {
			path = v
		} else if a == "--env-file" && i+1 < len(args) {
			path = args[i+1]
		}
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("env: load %s: %v", path, err)
	}
}
