package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/lox/yieldwatch/internal/models"
)

const (
	TableWards   = "wards"
	TableSamples = "samples"
)

// RouteFor picks the ingestion route from the file name suffix,
// case-insensitively. CSV files additionally get a target table.
func RouteFor(filename string) (models.UploadRoute, string) {
	name := strings.ToLower(path.Base(strings.ReplaceAll(filename, "\\", "/")))
	switch {
	case strings.HasSuffix(name, ".geojson"), strings.HasSuffix(name, ".json"):
		return models.RouteGeoJSON, ""
	case strings.HasSuffix(name, ".csv"):
		if strings.Contains(name, "ward") {
			return models.RouteCSV, TableWards
		}
		return models.RouteCSV, TableSamples
	default:
		return models.RouteRaster, ""
	}
}

// RasterMeta is the metadata object the ingestion service expects next to a
// raster file.
type RasterMeta struct {
	AssetType string  `json:"asset_type"`
	Datetime  string  `json:"datetime"`
	CropID    *string `json:"crop_id"`
}

// JSON returns the metadata encoded as the form field value.
func (m RasterMeta) JSON() string {
	b, _ := json.Marshal(m)
	return string(b)
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// RasterMetadata repackages flat upload form fields into RasterMeta.
// Accepted aliases: data_type/asset_type, date/acquisition_date, crop_id/crop.
func RasterMetadata(fields map[string]string) (RasterMeta, error) {
	assetType := firstNonEmpty(fields, "data_type", "asset_type")
	if assetType == "" {
		return RasterMeta{}, errors.New("missing data_type")
	}

	rawDate := firstNonEmpty(fields, "date", "acquisition_date", "datetime")
	if rawDate == "" {
		return RasterMeta{}, errors.New("missing acquisition date")
	}
	var acquired time.Time
	var err error
	for _, layout := range dateLayouts {
		if acquired, err = time.Parse(layout, rawDate); err == nil {
			break
		}
	}
	if err != nil {
		return RasterMeta{}, fmt.Errorf("parse acquisition date %q: %w", rawDate, err)
	}

	meta := RasterMeta{
		AssetType: assetType,
		Datetime:  acquired.UTC().Format(time.RFC3339),
	}
	if crop := firstNonEmpty(fields, "crop_id", "crop"); crop != "" {
		meta.CropID = &crop
	}
	return meta, nil
}

func firstNonEmpty(fields map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(fields[k]); v != "" {
			return v
		}
	}
	return ""
}

// UploadRequest is a file selected for ingestion plus its form fields.
type UploadRequest struct {
	Filename string
	Content  io.Reader
	Fields   map[string]string
}
