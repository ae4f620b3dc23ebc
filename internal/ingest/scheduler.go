package ingest

import (
	"context"
	"log"
	"time"

	"github.com/lox/yieldwatch/internal/backend"
	"github.com/lox/yieldwatch/internal/metrics"
	"github.com/lox/yieldwatch/internal/models"
	"github.com/lox/yieldwatch/internal/store"
	"github.com/lox/yieldwatch/internal/viewstate"
)

const (
	DefaultHealthInterval = 30 * time.Second
	DefaultRetentionDays  = 30

	probeTimeout = 10 * time.Second
	loadTimeout  = 60 * time.Second
)

// Scheduler keeps the view state fresh: it polls backend health, loads the
// dashboard listings at start and on request, and prunes the audit log.
type Scheduler struct {
	clients         *backend.Clients
	state           *viewstate.Store
	audit           *store.Store
	healthInterval  time.Duration
	cleanupInterval time.Duration
	retentionDays   int
	refresh         chan struct{}
}

func NewScheduler(clients *backend.Clients, state *viewstate.Store) *Scheduler {
	return &Scheduler{
		clients:         clients,
		state:           state,
		healthInterval:  DefaultHealthInterval,
		cleanupInterval: 24 * time.Hour,
		retentionDays:   DefaultRetentionDays,
		refresh:         make(chan struct{}, 1),
	}
}

// SetAuditStore enables periodic cleanup of old fetch runs.
func (s *Scheduler) SetAuditStore(audit *store.Store, retentionDays int) {
	s.audit = audit
	if retentionDays > 0 {
		s.retentionDays = retentionDays
	}
}

// SetHealthInterval changes the poll period. Zero disables polling; the
// initial probe and manual refreshes still run.
func (s *Scheduler) SetHealthInterval(d time.Duration) {
	s.healthInterval = d
}

// RequestRefresh queues a manual refresh. It never blocks; a refresh that
// is already queued absorbs the request.
func (s *Scheduler) RequestRefresh() bool {
	select {
	case s.refresh <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	s.CheckHealth(ctx)
	s.LoadDashboard(ctx)
	s.cleanupFetchRuns()

	var healthC <-chan time.Time
	if s.healthInterval > 0 {
		healthTicker := time.NewTicker(s.healthInterval)
		defer healthTicker.Stop()
		healthC = healthTicker.C
	}
	cleanupTicker := time.NewTicker(s.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: shutting down")
			return
		case <-healthC:
			s.CheckHealth(ctx)
		case <-s.refresh:
			s.Refresh(ctx)
		case <-cleanupTicker.C:
			s.cleanupFetchRuns()
		}
	}
}

// Refresh re-probes health and reloads the listings, then posts a notice
// describing the outcome.
func (s *Scheduler) Refresh(ctx context.Context) models.APIHealth {
	log.Println("scheduler: manual refresh")
	h := s.CheckHealth(ctx)
	s.LoadDashboard(ctx)
	switch {
	case h.AllUp():
		s.state.Notify(viewstate.LevelSuccess, "Dashboard refreshed")
	case !h.Geo && !h.ML && !h.Ingestion:
		s.state.Notify(viewstate.LevelError, "All backend services are unreachable")
	default:
		s.state.Notify(viewstate.LevelInfo, "Dashboard refreshed; some services are offline")
	}
	return h
}

// CheckHealth probes all backends and publishes the result.
func (s *Scheduler) CheckHealth(ctx context.Context) models.APIHealth {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	prev := s.state.Health()
	h := s.clients.CheckHealth(ctx)
	s.state.SetHealth(h)
	metrics.ObserveHealth(h)

	if prev.CheckedAt.IsZero() || prev.Geo != h.Geo || prev.ML != h.ML || prev.Ingestion != h.Ingestion {
		log.Printf("scheduler: health geo=%t ml=%t ingestion=%t", h.Geo, h.ML, h.Ingestion)
	}
	return h
}

// LoadDashboard fetches regions, assets and predictions in parallel using
// the current filter.
func (s *Scheduler) LoadDashboard(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	s.state.SetLoading(true)
	defer s.state.SetLoading(false)

	f := s.state.Filter()
	d := s.clients.LoadDashboard(ctx, f)
	s.state.SetRegionsFor(f, d.Regions)
	s.state.SetAssets(d.Assets)
	s.state.SetPredictions(d.Predictions)
	s.markOutages(d)
	log.Printf("scheduler: loaded %d regions, %d assets, %d predictions",
		len(d.Regions), len(d.Assets), len(d.Predictions))
}

// LoadRegions reloads only the regions for the current filter.
// markOutages records an error for each empty listing whose service the
// last health check saw down, so an outage reads differently from no data.
func (s *Scheduler) markOutages(d backend.DashboardData) {
	h := s.state.Health()
	if !h.Geo && len(d.Regions) == 0 {
		s.state.SetError(viewstate.SliceRegions, "geo service unavailable")
	}
	if !h.Ingestion && len(d.Assets) == 0 {
		s.state.SetError(viewstate.SliceAssets, "ingestion service unavailable")
	}
	if !h.ML && len(d.Predictions) == 0 {
		s.state.SetError(viewstate.SlicePredictions, "ml service unavailable")
	}
}

func (s *Scheduler) LoadRegions(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	s.state.SetLoading(true)
	defer s.state.SetLoading(false)

	f := s.state.Filter()
	s.state.SetRegionsFor(f, s.clients.Geo.Regions(ctx, f))
}

func (s *Scheduler) cleanupFetchRuns() {
	if s.audit == nil {
		return
	}
	n, err := s.audit.CleanupOldFetchRuns(s.retentionDays)
	if err != nil {
		log.Printf("scheduler: cleanup fetch runs: %v", err)
		return
	}
	if n > 0 {
		log.Printf("scheduler: removed %d fetch runs older than %d days", n, s.retentionDays)
	}
}
