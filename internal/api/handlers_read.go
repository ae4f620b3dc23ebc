package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/lox/yieldwatch/internal/models"
	"github.com/lox/yieldwatch/internal/store"
)

const (
	defaultRunDays    = 7
	defaultErrorLimit = 50
	defaultJobLimit   = 50
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"backends": s.state.Health(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Regions())
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Assets())
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	v := s.state.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"predictions":   v.Predictions,
		"average_yield": v.AverageYield,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Health())
}

func (s *Server) handleCounties(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.clients.Geo.Counties(r.Context()))
}

func (s *Server) handleYears(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.clients.Geo.Years(r.Context()))
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		writeError(w, http.StatusBadRequest, "lat must be a number between -90 and 90")
		return
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil || lon < -180 || lon > 180 {
		writeError(w, http.StatusBadRequest, "lon must be a number between -180 and 180")
		return
	}
	start, end := q.Get("start"), q.Get("end")
	for _, d := range []string{start, end} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			writeError(w, http.StatusBadRequest, "dates must be YYYY-MM-DD")
			return
		}
	}

	res := s.clients.Geo.QueryPoint(r.Context(), models.PointQuery{Lat: lat, Lon: lon, Start: start, End: end})
	if res == nil {
		writeError(w, http.StatusBadGateway, "point query unavailable")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, "audit store disabled")
		return
	}
	days := queryInt(r, "days", defaultRunDays)
	summary, err := s.audit.GetFetchHealth(days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	failures, err := s.audit.GetRecentFetchErrors(queryInt(r, "limit", defaultErrorLimit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type failure struct {
		StartedAt   time.Time `json:"started_at"`
		Service     string    `json:"service"`
		Method      string    `json:"method"`
		Endpoint    string    `json:"endpoint"`
		HTTPStatus  int64     `json:"http_status,omitempty"`
		FailureKind string    `json:"failure_kind"`
		Error       string    `json:"error"`
	}
	out := make([]failure, 0, len(failures))
	for _, f := range failures {
		out = append(out, failure{
			StartedAt:   f.StartedAt,
			Service:     f.Service,
			Method:      f.Method,
			Endpoint:    f.Endpoint,
			HTTPStatus:  f.HTTPStatus.Int64,
			FailureKind: f.FailureKind.String,
			Error:       f.ErrorMessage.String,
		})
	}
	if summary == nil {
		summary = []store.FetchHealthSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":  summary,
		"failures": out,
	})
}

func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, "audit store disabled")
		return
	}
	jobs, err := s.audit.GetRecentUploads(queryInt(r, "limit", defaultJobLimit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v > 0 {
		return v
	}
	return def
}
