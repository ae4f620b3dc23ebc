package backend

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/lox/yieldwatch/internal/httputil"
)

// Config holds the base URL and probe path of each backend. Health paths
// differ between deployments so they are configuration, not code.
type Config struct {
	GeoURL       string
	MLURL        string
	IngestionURL string

	GeoHealthPath       string
	MLHealthPath        string
	IngestionHealthPath string

	// GeoJSONPath is the ingestion route for boundary uploads.
	GeoJSONPath string
}

// DefaultConfig points at local development hosts.
func DefaultConfig() Config {
	return Config{
		GeoURL:              "http://localhost:8000",
		MLURL:               "http://localhost:8001",
		IngestionURL:        "http://localhost:8002",
		GeoHealthPath:       "/v1/status",
		MLHealthPath:        "/health",
		IngestionHealthPath: "/v1/status",
		GeoJSONPath:         "/v1/ingest/geojson",
	}
}

// withDefaults fills empty fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.GeoURL == "" {
		c.GeoURL = d.GeoURL
	}
	if c.MLURL == "" {
		c.MLURL = d.MLURL
	}
	if c.IngestionURL == "" {
		c.IngestionURL = d.IngestionURL
	}
	if c.GeoHealthPath == "" {
		c.GeoHealthPath = d.GeoHealthPath
	}
	if c.MLHealthPath == "" {
		c.MLHealthPath = d.MLHealthPath
	}
	if c.IngestionHealthPath == "" {
		c.IngestionHealthPath = d.IngestionHealthPath
	}
	if c.GeoJSONPath == "" {
		c.GeoJSONPath = d.GeoJSONPath
	}
	return c
}

// Validate checks that every base URL is absolute.
func (c Config) Validate() error {
	for name, raw := range map[string]string{"geo": c.GeoURL, "ml": c.MLURL, "ingestion": c.IngestionURL} {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s url: %w", name, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s url %q is not absolute", name, raw)
		}
	}
	return nil
}

// Transport is the subset of *httputil.Client the service clients need.
type Transport interface {
	Get(ctx context.Context, url string) httputil.Result
	PostJSON(ctx context.Context, url string, body any) httputil.Result
	PostForm(ctx context.Context, url string, form *httputil.Form) httputil.Result
}

// Clients bundles one client per backend.
type Clients struct {
	Geo       *GeoClient
	ML        *MLClient
	Ingestion *IngestionClient
}

// NewClients builds the three service clients on fresh transports. The
// observer, if non-nil, sees every call made by any of them.
func NewClients(cfg Config, observer httputil.Observer) *Clients {
	cfg = cfg.withDefaults()
	geo := httputil.NewClient("geo")
	ml := httputil.NewClient("ml")
	ing := httputil.NewClient("ingestion")
	if observer != nil {
		geo.SetObserver(observer)
		ml.SetObserver(observer)
		ing.SetObserver(observer)
	}
	return &Clients{
		Geo:       NewGeoClient(cfg, geo),
		ML:        NewMLClient(cfg, ml),
		Ingestion: NewIngestionClient(cfg, ing),
	}
}

func endpoint(base, path string, query url.Values) string {
	u := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}
