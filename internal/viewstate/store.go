package viewstate

import (
	"log"
	"sync"
	"time"

	"github.com/lox/yieldwatch/internal/backend"
	"github.com/lox/yieldwatch/internal/models"
)

// Slice names a resource in the store for error bookkeeping.
type Slice string

const (
	SliceRegions     Slice = "regions"
	SliceAssets      Slice = "assets"
	SlicePredictions Slice = "predictions"
	SlicePredict     Slice = "predict"
	SliceWard        Slice = "ward"
)

// Store holds the latest payload of every dashboard resource. Payloads are
// replaced wholesale; setting data clears that slice's error and setting an
// error clears that slice's data.
type Store struct {
	mu sync.Mutex

	regions     []models.Region
	assets      []models.RasterAsset
	predictions []models.Prediction
	lastPredict *models.Prediction
	health      models.APIHealth
	filter      backend.RegionFilter
	loading     int
	errors      map[Slice]string

	selection Selection
	seq       uint64

	notices   []Notice
	noticeSeq uint64
	noticeTTL time.Duration
	now       func() time.Time
}

func New() *Store {
	return &Store{
		regions:     []models.Region{},
		assets:      []models.RasterAsset{},
		predictions: []models.Prediction{},
		errors:      make(map[Slice]string),
		noticeTTL:   DefaultNoticeTTL,
		now:         time.Now,
	}
}

// SetRegionsFor applies regions fetched under filter f. The write is
// dropped when the filter changed while the fetch was in flight, so a slow
// listing never lands under a newer filter. It reports whether it applied.
func (s *Store) SetRegionsFor(f backend.RegionFilter, regions []models.Region) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f != s.filter {
		log.Printf("viewstate: dropping regions for stale filter county=%q year=%d", f.County, f.Year)
		return false
	}
	s.regions = nonNil(regions)
	delete(s.errors, SliceRegions)
	return true
}

func (s *Store) SetAssets(assets []models.RasterAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets = nonNil(assets)
	delete(s.errors, SliceAssets)
}

func (s *Store) SetPredictions(preds []models.Prediction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictions = nonNil(preds)
	delete(s.errors, SlicePredictions)
}

// SetPredictResult records the outcome of the latest on-demand prediction.
// A nil prediction is recorded as a predict error.
func (s *Store) SetPredictResult(p *models.Prediction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		s.setErrorLocked(SlicePredict, "prediction failed")
		return
	}
	s.lastPredict = p
	delete(s.errors, SlicePredict)
}

func (s *Store) SetHealth(h models.APIHealth) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = h
}

// SetError records a failure for one slice and drops that slice's data so
// stale data is never shown next to a contradicting error.
func (s *Store) SetError(slice Slice, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(slice, msg)
}

// setErrorLocked is SetError for callers already holding s.mu.
func (s *Store) setErrorLocked(slice Slice, msg string) {
	s.errors[slice] = msg
	switch slice {
	case SliceRegions:
		s.regions = []models.Region{}
	case SliceAssets:
		s.assets = []models.RasterAsset{}
	case SlicePredictions:
		s.predictions = []models.Prediction{}
	case SlicePredict:
		s.lastPredict = nil
	case SliceWard:
		s.selection.Stats = nil
		s.selection.Error = msg
	}
}

// SetLoading marks the start (true) or end (false) of a load. Overlapping
// loads are counted so the flag clears only when all have finished.
func (s *Store) SetLoading(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.loading++
	} else if s.loading > 0 {
		s.loading--
	}
}

// SetFilter switches the region/time-period filter. Any selection is
// forced back to Idle since its stats were computed under the old filter.
// It reports whether the filter changed.
func (s *Store) SetFilter(f backend.RegionFilter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f == s.filter {
		return false
	}
	s.filter = f
	s.resetSelection()
	return true
}

func (s *Store) Filter() backend.RegionFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

func (s *Store) Health() models.APIHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

func (s *Store) Regions() []models.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regions
}

func (s *Store) Assets() []models.RasterAsset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assets
}

func (s *Store) Predictions() []models.Prediction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.predictions
}

// View is a point-in-time copy of the store for rendering.
type View struct {
	Regions      []models.Region      `json:"regions"`
	Assets       []models.RasterAsset `json:"assets"`
	Predictions  []models.Prediction  `json:"predictions"`
	LastPredict  *models.Prediction   `json:"last_prediction"`
	Health       models.APIHealth     `json:"health"`
	Filter       backend.RegionFilter `json:"filter"`
	Selection    Selection            `json:"selection"`
	Loading      bool                 `json:"loading"`
	Errors       map[Slice]string     `json:"errors"`
	AverageYield YieldSummary         `json:"average_yield"`
	TotalFields  int                  `json:"total_fields"`
	TotalAssets  int                  `json:"total_assets"`
	Notices      []Notice             `json:"notices"`
}

// Snapshot returns the current view. Slices are shared with the store but
// never mutated after being set, so callers must treat them as read-only.
func (s *Store) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := make(map[Slice]string, len(s.errors))
	for k, v := range s.errors {
		errs[k] = v
	}
	return View{
		Regions:      s.regions,
		Assets:       s.assets,
		Predictions:  s.predictions,
		LastPredict:  s.lastPredict,
		Health:       s.health,
		Filter:       s.filter,
		Selection:    s.selection,
		Loading:      s.loading > 0,
		Errors:       errs,
		AverageYield: AverageYield(s.predictions),
		TotalFields:  len(s.regions),
		TotalAssets:  len(s.assets),
		Notices:      s.activeNoticesLocked(),
	}
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
