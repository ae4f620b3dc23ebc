package backend

import (
	"context"
	"io"
	"log"

	"github.com/lox/yieldwatch/internal/httputil"
	"github.com/lox/yieldwatch/internal/models"
)

// IngestionClient talks to the data ingestion service.
type IngestionClient struct {
	t           Transport
	baseURL     string
	healthPath  string
	geojsonPath string
}

func NewIngestionClient(cfg Config, t Transport) *IngestionClient {
	cfg = cfg.withDefaults()
	return &IngestionClient{
		t:           t,
		baseURL:     cfg.IngestionURL,
		healthPath:  cfg.IngestionHealthPath,
		geojsonPath: cfg.GeoJSONPath,
	}
}

func (c *IngestionClient) Health(ctx context.Context) bool {
	return c.t.Get(ctx, endpoint(c.baseURL, c.healthPath, nil)).OK()
}

// Rasters lists cataloged raster assets. Any failure yields an empty list.
func (c *IngestionClient) Rasters(ctx context.Context) []models.RasterAsset {
	res := c.t.Get(ctx, endpoint(c.baseURL, "/v1/rasters", nil))
	var assets []models.RasterAsset
	if fail := res.Decode(&assets); fail != nil {
		log.Printf("ingestion: rasters: %v", fail)
		return []models.RasterAsset{}
	}
	if assets == nil {
		assets = []models.RasterAsset{}
	}
	return assets
}

// UploadRaster posts a raster with its metadata object.
func (c *IngestionClient) UploadRaster(ctx context.Context, filename string, content io.Reader, meta RasterMeta) bool {
	form := &httputil.Form{
		Fields: map[string]string{"metadata": meta.JSON()},
		Files:  []httputil.FilePart{{Field: "file", Filename: filename, Content: content}},
	}
	return c.post(ctx, "/v1/ingest", form, filename)
}

// UploadCSV posts a CSV into the named table ("wards" or "samples").
func (c *IngestionClient) UploadCSV(ctx context.Context, table, filename string, content io.Reader) bool {
	form := &httputil.Form{
		Files: []httputil.FilePart{{Field: "file", Filename: filename, Content: content}},
	}
	return c.post(ctx, "/v1/ingest/csv/"+table, form, filename)
}

// UploadGeoJSON posts a boundary file.
func (c *IngestionClient) UploadGeoJSON(ctx context.Context, filename string, content io.Reader) bool {
	form := &httputil.Form{
		Files: []httputil.FilePart{{Field: "file", Filename: filename, Content: content}},
	}
	return c.post(ctx, c.geojsonPath, form, filename)
}

// Upload routes the file by name and submits it. No retry is attempted.
func (c *IngestionClient) Upload(ctx context.Context, req UploadRequest) bool {
	route, table := RouteFor(req.Filename)
	switch route {
	case models.RouteGeoJSON:
		return c.UploadGeoJSON(ctx, req.Filename, req.Content)
	case models.RouteCSV:
		return c.UploadCSV(ctx, table, req.Filename, req.Content)
	default:
		meta, err := RasterMetadata(req.Fields)
		if err != nil {
			log.Printf("ingestion: upload %s: %v", req.Filename, err)
			return false
		}
		return c.UploadRaster(ctx, req.Filename, req.Content, meta)
	}
}

func (c *IngestionClient) post(ctx context.Context, path string, form *httputil.Form, filename string) bool {
	res := c.t.PostForm(ctx, endpoint(c.baseURL, path, nil), form)
	if !res.OK() {
		log.Printf("ingestion: upload %s to %s: %v", filename, path, res.Err)
		return false
	}
	log.Printf("ingestion: uploaded %s to %s", filename, path)
	return true
}
