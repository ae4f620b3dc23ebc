package viewstate

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/lox/yieldwatch/internal/models"
)

const (
	// YieldDecimals is the rounding applied to the average yield.
	YieldDecimals = 2

	// NoYieldPlaceholder is the Value reported when there are no
	// predictions. It is never shown; Valid is false and the display is
	// NoYieldDisplay.
	NoYieldPlaceholder = 0.0
	NoYieldDisplay     = "N/A"
)

// YieldSummary is the dashboard's average predicted yield in t/ha.
type YieldSummary struct {
	Value float64
	Valid bool
}

// AverageYield is the arithmetic mean of PredictedYield, rounded to
// YieldDecimals. An empty list gives an invalid summary rather than NaN.
func AverageYield(preds []models.Prediction) YieldSummary {
	if len(preds) == 0 {
		return YieldSummary{Value: NoYieldPlaceholder}
	}
	var sum float64
	for _, p := range preds {
		sum += p.PredictedYield
	}
	scale := math.Pow(10, YieldDecimals)
	return YieldSummary{
		Value: math.Round(sum/float64(len(preds))*scale) / scale,
		Valid: true,
	}
}

func (y YieldSummary) String() string {
	if !y.Valid {
		return NoYieldDisplay
	}
	return strconv.FormatFloat(y.Value, 'f', YieldDecimals, 64)
}

func (y YieldSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Value   float64 `json:"value"`
		Valid   bool    `json:"valid"`
		Display string  `json:"display"`
	}{y.Value, y.Valid, y.String()})
}
