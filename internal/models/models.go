package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Region is a named geographic polygon of interest. Geometry holds
// [lat, lon] pairs forming a closed ring.
type Region struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	County   string       `json:"county,omitempty"`
	Ward     string       `json:"ward,omitempty"`
	Geometry [][2]float64 `json:"geometry,omitempty"`
	Crop     string       `json:"crop,omitempty"`
	Area     string       `json:"area,omitempty"`
}

// MinRingVertices is the smallest closed ring: a triangle plus the repeated
// first vertex.
const MinRingVertices = 4

// HasClosedRing reports whether the geometry is a closed ring of at least
// MinRingVertices points.
func (r Region) HasClosedRing() bool {
	n := len(r.Geometry)
	return n >= MinRingVertices && r.Geometry[0] == r.Geometry[n-1]
}

// CloseRing returns the ring with the first vertex appended when it is open.
// The result is nil if it cannot form a valid closed ring.
func CloseRing(ring [][2]float64) [][2]float64 {
	if len(ring) == 0 {
		return nil
	}
	if ring[0] != ring[len(ring)-1] {
		closed := make([][2]float64, len(ring), len(ring)+1)
		copy(closed, ring)
		ring = append(closed, ring[0])
	}
	if len(ring) < MinRingVertices {
		return nil
	}
	return ring
}

// UnmarshalJSON accepts numeric or string ids.
func (r *Region) UnmarshalJSON(data []byte) error {
	type alias Region
	aux := struct {
		ID json.RawMessage `json:"id"`
		*alias
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	id, err := flexString(aux.ID)
	if err != nil {
		return fmt.Errorf("region id: %w", err)
	}
	r.ID = id
	return nil
}

// RasterAsset is a satellite-derived product cataloged by the ingestion
// service.
type RasterAsset struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	AcquisitionDate string `json:"acquisition_date"`
	Format          string `json:"format"`
	Size            string `json:"size"`
	Region          string `json:"region,omitempty"`
	Status          string `json:"status"`
}

func (a *RasterAsset) UnmarshalJSON(data []byte) error {
	type alias RasterAsset
	aux := struct {
		ID json.RawMessage `json:"id"`
		*alias
	}{alias: (*alias)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	id, err := flexString(aux.ID)
	if err != nil {
		return fmt.Errorf("asset id: %w", err)
	}
	a.ID = id
	return nil
}

// Active reports whether the asset is marked active (case-insensitive).
func (a RasterAsset) Active() bool {
	switch a.Status {
	case "active", "Active", "ACTIVE":
		return true
	}
	return false
}

// Prediction is a yield estimate in tons/hectare.
type Prediction struct {
	RegionID       string              `json:"region_id,omitempty"`
	CropType       string              `json:"crop_type,omitempty"`
	PredictedYield float64             `json:"predicted_yield"`
	Confidence     float64             `json:"confidence,omitempty"`
	Date           string              `json:"date,omitempty"`
	Status         string              `json:"status,omitempty"`
	Metadata       *PredictionMetadata `json:"metadata,omitempty"`
}

// PredictionMetadata carries the ensemble components of a hybrid prediction.
type PredictionMetadata struct {
	StatisticalValue float64 `json:"rf_val"`
	MechanisticValue float64 `json:"dssat_val"`
	LimitingFactor   string  `json:"limiting_factor,omitempty"`
}

// Features is the covariate set sent to the ML service.
type Features struct {
	NDVIMean   float64            `json:"ndvi_mean"`
	PrecipMean float64            `json:"precip_mean"`
	TempMean   float64            `json:"temp_mean"`
	Fertilizer float64            `json:"fertilizer"`
	Lat        float64            `json:"lat"`
	Lon        float64            `json:"lon"`
	Extra      map[string]float64 `json:"-"`
}

// MarshalJSON flattens Extra into the feature object.
func (f Features) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, 6+len(f.Extra))
	for k, v := range f.Extra {
		m[k] = v
	}
	m["ndvi_mean"] = f.NDVIMean
	m["precip_mean"] = f.PrecipMean
	m["temp_mean"] = f.TempMean
	m["fertilizer"] = f.Fertilizer
	m["lat"] = f.Lat
	m["lon"] = f.Lon
	return json.Marshal(m)
}

// WardStats is the per-unit biophysical signature from the geo service.
type WardStats struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	Status     string               `json:"status,omitempty"`
	Indicators map[string]Indicator `json:"indicators"`
}

// Indicator is one biophysical value. Deviation is relative to the
// unit's baseline when the geo service provides one.
type Indicator struct {
	Value       float64  `json:"value"`
	Deviation   *float64 `json:"deviation,omitempty"`
	Description string   `json:"description,omitempty"`
}

// UploadRoute is the ingestion endpoint family an upload is sent to.
type UploadRoute string

const (
	RouteRaster  UploadRoute = "raster"
	RouteCSV     UploadRoute = "csv"
	RouteGeoJSON UploadRoute = "geojson"
)

// UploadJob is a client-side upload from file selection to submission.
type UploadJob struct {
	ID        string      `json:"id"`
	Filename  string      `json:"filename"`
	Route     UploadRoute `json:"route"`
	Table     string      `json:"table,omitempty"`
	Size      int64       `json:"size"`
	InFlight  bool        `json:"in_flight"`
	Success   bool        `json:"success"`
	CreatedAt time.Time   `json:"created_at"`
}

// APIHealth holds the latest reachability of each backend.
type APIHealth struct {
	Geo       bool      `json:"geo"`
	ML        bool      `json:"ml"`
	Ingestion bool      `json:"ingestion"`
	CheckedAt time.Time `json:"checked_at"`
}

// AllUp reports whether every backend answered its probe.
func (h APIHealth) AllUp() bool {
	return h.Geo && h.ML && h.Ingestion
}

// PointQuery asks the geo service for a yield estimate at a point.
type PointQuery struct {
	Lat   float64
	Lon   float64
	Start string // YYYY-MM-DD
	End   string
}

type Feature struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type TimePoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// PointYield is the geo service's answer to a PointQuery.
type PointYield struct {
	PredictedYield float64     `json:"predicted_yield"`
	Features       []Feature   `json:"features"`
	TimeSeries     []TimePoint `json:"time_series"`
}

// flexString decodes a JSON string or number into a string.
func flexString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}
