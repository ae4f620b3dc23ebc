package backend

import (
	"context"
	"log"

	"github.com/lox/yieldwatch/internal/models"
)

// MLClient talks to the yield prediction service.
type MLClient struct {
	t          Transport
	baseURL    string
	healthPath string
}

func NewMLClient(cfg Config, t Transport) *MLClient {
	cfg = cfg.withDefaults()
	return &MLClient{t: t, baseURL: cfg.MLURL, healthPath: cfg.MLHealthPath}
}

func (m *MLClient) Health(ctx context.Context) bool {
	return m.t.Get(ctx, endpoint(m.baseURL, m.healthPath, nil)).OK()
}

// Predictions lists stored predictions. Any failure yields an empty list.
func (m *MLClient) Predictions(ctx context.Context) []models.Prediction {
	res := m.t.Get(ctx, endpoint(m.baseURL, "/v1/predictions", nil))
	var preds []models.Prediction
	if fail := res.Decode(&preds); fail != nil {
		log.Printf("ml: predictions: %v", fail)
		return []models.Prediction{}
	}
	if preds == nil {
		preds = []models.Prediction{}
	}
	return preds
}

type predictRequest struct {
	Features models.Features `json:"features"`
}

// Predict runs the hybrid model for one feature set. Returns nil on any
// failure.
func (m *MLClient) Predict(ctx context.Context, f models.Features) *models.Prediction {
	res := m.t.PostJSON(ctx, endpoint(m.baseURL, "/v1/predict", nil), predictRequest{Features: f})
	var pred models.Prediction
	if fail := res.Decode(&pred); fail != nil {
		log.Printf("ml: predict: %v", fail)
		return nil
	}
	return &pred
}
