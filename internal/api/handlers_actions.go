package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lox/yieldwatch/internal/backend"
	"github.com/lox/yieldwatch/internal/metrics"
	"github.com/lox/yieldwatch/internal/models"
	"github.com/lox/yieldwatch/internal/viewstate"
)

// stateFetchTimeout bounds fetches whose results land in the shared view
// state. They outlive the request so a dropped client cannot turn them into
// backend failures.
const stateFetchTimeout = 30 * time.Second

// detached returns a context that survives r being cancelled.
func detached(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), stateFetchTimeout)
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	var f backend.RegionFilter
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode filter: %v", err))
		return
	}
	if f.Year < 0 {
		writeError(w, http.StatusBadRequest, "year must be positive")
		return
	}
	f.County = strings.TrimSpace(f.County)

	if s.state.SetFilter(f) {
		log.Printf("api: filter changed to county=%q year=%d", f.County, f.Year)
		ctx, cancel := detached(r)
		defer cancel()
		s.scheduler.LoadRegions(ctx)
	}
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleSelectWard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing ward id")
		return
	}
	ctx, cancel := detached(r)
	defer cancel()
	applied := s.state.SelectWard(ctx, s.clients.Geo, id)
	status := http.StatusOK
	if !applied {
		// A newer selection, dismissal or filter change won.
		status = http.StatusConflict
	}
	writeJSON(w, status, s.state.Selection())
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	s.state.ClearSelection()
	writeJSON(w, http.StatusOK, s.state.Selection())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	queued := s.scheduler.RequestRefresh()
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var raw map[string]float64
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode features: %v", err))
		return
	}
	features := featuresFromMap(raw)

	pred := s.clients.ML.Predict(r.Context(), features)
	s.state.SetPredictResult(pred)
	if pred == nil {
		s.state.Notify(viewstate.LevelError, "Prediction failed")
		writeError(w, http.StatusBadGateway, "prediction unavailable")
		return
	}
	s.state.Notify(viewstate.LevelSuccess, fmt.Sprintf("Predicted yield %.2f", pred.PredictedYield))
	writeJSON(w, http.StatusOK, pred)
}

// featuresFromMap splits a flat feature object into the named covariates
// and the rest.
func featuresFromMap(raw map[string]float64) models.Features {
	f := models.Features{Extra: map[string]float64{}}
	for k, v := range raw {
		switch k {
		case "ndvi_mean":
			f.NDVIMean = v
		case "precip_mean":
			f.PrecipMean = v
		case "temp_mean":
			f.TempMean = v
		case "fertilizer":
			f.Fertilizer = v
		case "lat":
			f.Lat = v
		case "lon":
			f.Lon = v
		default:
			f.Extra[k] = v
		}
	}
	return f
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("parse upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	fields := make(map[string]string, len(r.MultipartForm.Value))
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}

	route, table := backend.RouteFor(header.Filename)
	job := models.UploadJob{
		ID:        uuid.NewString(),
		Filename:  header.Filename,
		Route:     route,
		Table:     table,
		Size:      header.Size,
		InFlight:  true,
		CreatedAt: time.Now().UTC(),
	}
	if s.audit != nil {
		if err := s.audit.StartUpload(job); err != nil {
			log.Printf("api: record upload %s: %v", job.ID, err)
		}
	}

	ok := s.clients.Ingestion.Upload(r.Context(), backend.UploadRequest{
		Filename: header.Filename,
		Content:  file,
		Fields:   fields,
	})
	job.InFlight = false
	job.Success = ok

	if s.audit != nil {
		if err := s.audit.CompleteUpload(job.ID, ok, job.Size); err != nil {
			log.Printf("api: complete upload %s: %v", job.ID, err)
		}
	}
	metrics.ObserveUpload(route, ok)

	if !ok {
		s.state.Notify(viewstate.LevelError, fmt.Sprintf("Upload of %s failed", job.Filename))
		writeJSON(w, http.StatusBadGateway, job)
		return
	}
	s.state.Notify(viewstate.LevelSuccess, fmt.Sprintf("%s uploaded successfully", job.Filename))
	if route == models.RouteRaster {
		s.state.SetAssets(s.clients.Ingestion.Rasters(r.Context()))
	}
	writeJSON(w, http.StatusOK, job)
}
