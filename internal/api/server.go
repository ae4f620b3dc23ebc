package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/yieldwatch/internal/backend"
	"github.com/lox/yieldwatch/internal/ingest"
	"github.com/lox/yieldwatch/internal/store"
	"github.com/lox/yieldwatch/internal/viewstate"
)

// maxUploadMemory is how much of a multipart upload is buffered in memory
// before spilling to temporary files.
const maxUploadMemory = 32 << 20

var defaultOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173", "http://localhost:3000"}

type Server struct {
	clients   *backend.Clients
	state     *viewstate.Store
	scheduler *ingest.Scheduler
	audit     *store.Store
	port      string
	origins   []string
}

func NewServer(clients *backend.Clients, state *viewstate.Store, scheduler *ingest.Scheduler, port string) *Server {
	return &Server{
		clients:   clients,
		state:     state,
		scheduler: scheduler,
		port:      port,
		origins:   defaultOrigins,
	}
}

// SetAuditStore enables the fetch run and upload history endpoints.
func (s *Server) SetAuditStore(audit *store.Store) {
	s.audit = audit
}

// SetAllowedOrigins replaces the CORS origin allow-list.
func (s *Server) SetAllowedOrigins(origins []string) {
	if len(origins) > 0 {
		s.origins = origins
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/state", s.handleState)
		api.Get("/regions", s.handleRegions)
		api.Get("/assets", s.handleAssets)
		api.Get("/predictions", s.handlePredictions)
		api.Get("/status", s.handleStatus)
		api.Get("/counties", s.handleCounties)
		api.Get("/years", s.handleYears)
		api.Get("/query", s.handleQuery)

		api.Post("/filter", s.handleFilter)
		api.Post("/wards/{id}/select", s.handleSelectWard)
		api.Delete("/selection", s.handleClearSelection)
		api.Post("/refresh", s.handleRefresh)
		api.Post("/predict", s.handlePredict)
		api.Post("/upload", s.handleUpload)

		api.Get("/runs", s.handleRuns)
		api.Get("/uploads", s.handleUploads)
	})

	return r
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
