package backend

import (
	"context"
	"errors"
	"log"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/lox/yieldwatch/internal/httputil"
	"github.com/lox/yieldwatch/internal/models"
)

// RegionFilter narrows a region listing. Zero values mean "all".
type RegionFilter struct {
	County string `json:"county,omitempty"`
	Year   int    `json:"year,omitempty"`
}

func (f RegionFilter) query() url.Values {
	q := url.Values{}
	if f.County != "" {
		q.Set("county", f.County)
	}
	if f.Year > 0 {
		q.Set("year", strconv.Itoa(f.Year))
	}
	return q
}

// GeoClient talks to the geospatial query service.
type GeoClient struct {
	t          Transport
	baseURL    string
	healthPath string
}

func NewGeoClient(cfg Config, t Transport) *GeoClient {
	cfg = cfg.withDefaults()
	return &GeoClient{t: t, baseURL: cfg.GeoURL, healthPath: cfg.GeoHealthPath}
}

// Health reports whether the probe endpoint answered 2xx.
func (g *GeoClient) Health(ctx context.Context) bool {
	return g.t.Get(ctx, endpoint(g.baseURL, g.healthPath, nil)).OK()
}

// Regions lists regions for the filter. Any failure yields an empty list.
// Geometry is normalized so every returned ring is closed; rings that cannot
// be closed are dropped from their region.
func (g *GeoClient) Regions(ctx context.Context, f RegionFilter) []models.Region {
	res := g.t.Get(ctx, endpoint(g.baseURL, "/v1/regions", f.query()))
	var regions []models.Region
	if fail := res.Decode(&regions); fail != nil {
		log.Printf("geo: regions: %v", fail)
		return []models.Region{}
	}
	return normalizeRegions(regions)
}

func normalizeRegions(regions []models.Region) []models.Region {
	out := make([]models.Region, 0, len(regions))
	for _, r := range regions {
		if len(r.Geometry) > 0 {
			ring := models.CloseRing(r.Geometry)
			if ring == nil {
				log.Printf("geo: region %s: dropping degenerate geometry (%d vertices)", r.ID, len(r.Geometry))
			}
			r.Geometry = ring
		}
		out = append(out, r)
	}
	return out
}

// WardStats fetches the biophysical signature of one unit. Returns nil on
// any failure.
func (g *GeoClient) WardStats(ctx context.Context, id string, year int) *models.WardStats {
	q := url.Values{}
	if year > 0 {
		q.Set("year", strconv.Itoa(year))
	}
	res := g.t.Get(ctx, endpoint(g.baseURL, "/v1/ward_stats/"+url.PathEscape(id), q))
	if !res.OK() {
		log.Printf("geo: ward stats %s: %v", id, res.Err)
		return nil
	}
	stats, err := parseWardStats(res.Body)
	if err != nil {
		log.Printf("geo: ward stats %s: %v", id, &httputil.Failure{Kind: httputil.DecodeError, Status: res.Status, Err: err})
		return nil
	}
	if stats.ID == "" {
		stats.ID = id
	}
	return stats
}

// parseWardStats accepts indicator records under "indicators" or bare
// numbers under "biophysical_signature".
func parseWardStats(body []byte) (*models.WardStats, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("invalid json")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, errors.New("ward stats is not an object")
	}

	stats := &models.WardStats{
		ID:         root.Get("id").String(),
		Name:       root.Get("name").String(),
		Status:     root.Get("status").String(),
		Indicators: make(map[string]models.Indicator),
	}

	indicators := root.Get("indicators")
	if !indicators.Exists() {
		indicators = root.Get("biophysical_signature")
	}
	indicators.ForEach(func(key, value gjson.Result) bool {
		switch {
		case value.Type == gjson.Number:
			stats.Indicators[key.String()] = models.Indicator{Value: value.Float()}
		case value.IsObject():
			ind := models.Indicator{
				Value:       value.Get("value").Float(),
				Description: value.Get("description").String(),
			}
			if d := value.Get("deviation"); d.Type == gjson.Number {
				dev := d.Float()
				ind.Deviation = &dev
			}
			stats.Indicators[key.String()] = ind
		}
		return true
	})
	return stats, nil
}

// Counties lists county names. The service may return plain strings or
// objects with a name.
func (g *GeoClient) Counties(ctx context.Context) []string {
	res := g.t.Get(ctx, endpoint(g.baseURL, "/v1/counties", nil))
	if !res.OK() {
		log.Printf("geo: counties: %v", res.Err)
		return []string{}
	}
	out := []string{}
	listItems(res.Body, "counties").ForEach(func(_, v gjson.Result) bool {
		name := v.String()
		if v.IsObject() {
			name = v.Get("name").String()
			if name == "" {
				name = v.Get("county_name").String()
			}
		}
		if name != "" {
			out = append(out, name)
		}
		return true
	})
	return out
}

// Years lists the years with data.
func (g *GeoClient) Years(ctx context.Context) []int {
	res := g.t.Get(ctx, endpoint(g.baseURL, "/v1/years", nil))
	if !res.OK() {
		log.Printf("geo: years: %v", res.Err)
		return []int{}
	}
	out := []int{}
	listItems(res.Body, "years").ForEach(func(_, v gjson.Result) bool {
		if v.IsObject() {
			v = v.Get("year")
		}
		if y := int(v.Int()); y > 0 {
			out = append(out, y)
		}
		return true
	})
	return out
}

// listItems returns the top-level array, or the array under key when the
// payload is wrapped in an object.
func listItems(body []byte, key string) gjson.Result {
	root := gjson.ParseBytes(body)
	if root.IsArray() {
		return root
	}
	return root.Get(key)
}

type pointQueryRequest struct {
	Point struct {
		Lon float64 `json:"lon"`
		Lat float64 `json:"lat"`
	} `json:"point"`
	DateRange struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"date_range"`
}

// QueryPoint asks for the yield estimate and covariates at a point.
// Returns nil on any failure.
func (g *GeoClient) QueryPoint(ctx context.Context, q models.PointQuery) *models.PointYield {
	var req pointQueryRequest
	req.Point.Lat, req.Point.Lon = q.Lat, q.Lon
	req.DateRange.Start, req.DateRange.End = q.Start, q.End

	res := g.t.PostJSON(ctx, endpoint(g.baseURL, "/v1/query/point", nil), req)
	var out models.PointYield
	if fail := res.Decode(&out); fail != nil {
		log.Printf("geo: query point %.4f,%.4f: %v", q.Lat, q.Lon, fail)
		return nil
	}
	return &out
}
