package viewstate

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/lox/yieldwatch/internal/backend"
	"github.com/lox/yieldwatch/internal/models"
)

func TestAverageYield(t *testing.T) {
	tests := []struct {
		name    string
		yields  []float64
		want    float64
		valid   bool
		display string
	}{
		{"two values", []float64{4, 6}, 5, true, "5.00"},
		{"rounds to two places", []float64{4.5, 5.2, 4.111}, 4.6, true, "4.60"},
		{"single", []float64{3.456}, 3.46, true, "3.46"},
		{"empty", nil, NoYieldPlaceholder, false, NoYieldDisplay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var preds []models.Prediction
			for _, y := range tt.yields {
				preds = append(preds, models.Prediction{PredictedYield: y})
			}
			got := AverageYield(preds)
			if math.IsNaN(got.Value) {
				t.Fatal("AverageYield returned NaN")
			}
			if got.Value != tt.want || got.Valid != tt.valid {
				t.Errorf("AverageYield = %+v, want {%v %v}", got, tt.want, tt.valid)
			}
			if got.String() != tt.display {
				t.Errorf("String() = %q, want %q", got.String(), tt.display)
			}
		})
	}
}

func TestYieldSummary_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(YieldSummary{Value: 5, Valid: true})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"value":5,"valid":true,"display":"5.00"}` {
		t.Errorf("json = %s", b)
	}
}

func TestStore_SetDataClearsError(t *testing.T) {
	s := New()
	s.SetError(SliceRegions, "geo down")
	if s.Snapshot().Errors[SliceRegions] != "geo down" {
		t.Fatal("error not recorded")
	}

	s.SetRegionsFor(s.Filter(), []models.Region{{ID: "W1"}})
	v := s.Snapshot()
	if _, ok := v.Errors[SliceRegions]; ok {
		t.Error("setting regions should clear the regions error")
	}
	if len(v.Regions) != 1 || v.TotalFields != 1 {
		t.Errorf("regions = %v", v.Regions)
	}
}

func TestStore_SetErrorClearsData(t *testing.T) {
	s := New()
	s.SetPredictions([]models.Prediction{{PredictedYield: 4}})
	s.SetAssets([]models.RasterAsset{{ID: "1"}})

	s.SetError(SlicePredictions, "ml down")
	v := s.Snapshot()
	if len(v.Predictions) != 0 {
		t.Errorf("predictions = %v, want cleared", v.Predictions)
	}
	if v.AverageYield.Valid {
		t.Error("average yield should be invalid once predictions are cleared")
	}
	if len(v.Assets) != 1 {
		t.Error("other slices must be untouched")
	}
}

func TestStore_SetPredictResult(t *testing.T) {
	s := New()
	s.SetPredictResult(&models.Prediction{PredictedYield: 4.1})
	if v := s.Snapshot(); v.LastPredict == nil || v.Errors[SlicePredict] != "" {
		t.Fatalf("view = %+v", v)
	}
	s.SetPredictResult(nil)
	v := s.Snapshot()
	if v.LastPredict != nil {
		t.Error("failed prediction must clear the previous result")
	}
	if v.Errors[SlicePredict] == "" {
		t.Error("failed prediction should set an error")
	}
}

func TestStore_SetRegionsForStaleFilter(t *testing.T) {
	s := New()
	a := backend.RegionFilter{County: "Kisumu"}
	b := backend.RegionFilter{County: "Siaya"}
	s.SetFilter(a)
	if !s.SetRegionsFor(a, []models.Region{{ID: "K1"}}) {
		t.Fatal("regions for the current filter should apply")
	}

	s.SetFilter(b)
	if !s.SetRegionsFor(b, []models.Region{{ID: "S1"}, {ID: "S2"}}) {
		t.Fatal("regions for the new filter should apply")
	}
	if s.SetRegionsFor(a, []models.Region{{ID: "K1"}}) {
		t.Error("regions fetched under the old filter must be dropped")
	}
	v := s.Snapshot()
	if len(v.Regions) != 2 || v.Regions[0].ID != "S1" {
		t.Errorf("regions = %+v, want Siaya's", v.Regions)
	}
}

func TestStore_NilListsBecomeEmpty(t *testing.T) {
	s := New()
	s.SetRegionsFor(s.Filter(), nil)
	s.SetAssets(nil)
	s.SetPredictions(nil)
	b, err := json.Marshal(s.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	var v map[string]json.RawMessage
	json.Unmarshal(b, &v)
	for _, k := range []string{"regions", "assets", "predictions"} {
		if string(v[k]) != "[]" {
			t.Errorf("%s = %s, want []", k, v[k])
		}
	}
}

func TestStore_Loading(t *testing.T) {
	s := New()
	s.SetLoading(true)
	s.SetLoading(true)
	s.SetLoading(false)
	if !s.Snapshot().Loading {
		t.Error("one load still in flight")
	}
	s.SetLoading(false)
	s.SetLoading(false)
	if s.Snapshot().Loading {
		t.Error("loading should be false after all loads finished")
	}
}

// gatedSource blocks each ward fetch until released.
type gatedSource struct {
	mu      sync.Mutex
	gates   map[string]chan *models.WardStats
	started chan string
	years   map[string]int
}

func newGatedSource() *gatedSource {
	return &gatedSource{
		gates:   make(map[string]chan *models.WardStats),
		started: make(chan string, 10),
		years:   make(map[string]int),
	}
}

func (g *gatedSource) gate(id string) chan *models.WardStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[id]
	if !ok {
		ch = make(chan *models.WardStats, 1)
		g.gates[id] = ch
	}
	return ch
}

func (g *gatedSource) WardStats(ctx context.Context, id string, year int) *models.WardStats {
	g.mu.Lock()
	g.years[id] = year
	g.mu.Unlock()
	ch := g.gate(id)
	g.started <- id
	return <-ch
}

func waitStarted(t *testing.T, g *gatedSource, want string) {
	t.Helper()
	select {
	case id := <-g.started:
		if id != want {
			t.Fatalf("started %s, want %s", id, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("fetch for %s never started", want)
	}
}

func TestSelectWard_LastRequestWins(t *testing.T) {
	s := New()
	src := newGatedSource()
	ctx := context.Background()

	appliedA := make(chan bool, 1)
	go func() { appliedA <- s.SelectWard(ctx, src, "A") }()
	waitStarted(t, src, "A")

	appliedB := make(chan bool, 1)
	go func() { appliedB <- s.SelectWard(ctx, src, "B") }()
	waitStarted(t, src, "B")

	if sel := s.Selection(); sel.State != Loading || sel.WardID != "B" {
		t.Fatalf("selection = %+v, want loading B", sel)
	}

	// B resolves first, then A arrives late.
	src.gate("B") <- &models.WardStats{ID: "B", Name: "Ward B"}
	if !<-appliedB {
		t.Error("B should be applied")
	}
	src.gate("A") <- &models.WardStats{ID: "A", Name: "Ward A"}
	if <-appliedA {
		t.Error("A is stale and must be dropped")
	}

	sel := s.Selection()
	if sel.State != Shown || sel.Stats == nil || sel.Stats.ID != "B" {
		t.Errorf("selection = %+v, want shown B", sel)
	}
}

func TestSelectWard_StaleArrivesFirst(t *testing.T) {
	s := New()
	src := newGatedSource()
	ctx := context.Background()

	appliedA := make(chan bool, 1)
	go func() { appliedA <- s.SelectWard(ctx, src, "A") }()
	waitStarted(t, src, "A")
	appliedB := make(chan bool, 1)
	go func() { appliedB <- s.SelectWard(ctx, src, "B") }()
	waitStarted(t, src, "B")

	src.gate("A") <- &models.WardStats{ID: "A"}
	if <-appliedA {
		t.Error("A must not overwrite the pending B selection")
	}
	if sel := s.Selection(); sel.State != Loading || sel.Stats != nil {
		t.Errorf("selection = %+v, want still loading B", sel)
	}

	// B fails: neither A nor B is shown.
	src.gate("B") <- nil
	<-appliedB
	sel := s.Selection()
	if sel.State != Shown || sel.Stats != nil || sel.WardID != "B" {
		t.Errorf("selection = %+v, want shown B without stats", sel)
	}
	if s.Snapshot().Errors[SliceWard] == "" || sel.Error != wardUnavailable {
		t.Errorf("ward error = %q, selection error = %q", s.Snapshot().Errors[SliceWard], sel.Error)
	}
}

// cancelledSource gives up when the caller's context ends.
type cancelledSource struct{}

func (cancelledSource) WardStats(ctx context.Context, id string, year int) *models.WardStats {
	<-ctx.Done()
	return nil
}

func TestSelectWard_AbandonedFetchResetsToIdle(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if s.SelectWard(ctx, cancelledSource{}, "A") {
		t.Error("an abandoned fetch must not be applied")
	}
	sel := s.Selection()
	if sel.State != Idle || sel.Error != "" {
		t.Errorf("selection = %+v, want idle without error", sel)
	}
	if _, ok := s.Snapshot().Errors[SliceWard]; ok {
		t.Error("an abandoned fetch is not a backend failure")
	}
}

func TestSelectWard_FilterChangeForcesIdle(t *testing.T) {
	s := New()
	s.SetFilter(backend.RegionFilter{County: "Kisumu", Year: 2023})
	src := newGatedSource()
	ctx := context.Background()

	applied := make(chan bool, 1)
	go func() { applied <- s.SelectWard(ctx, src, "A") }()
	waitStarted(t, src, "A")

	src.mu.Lock()
	year := src.years["A"]
	src.mu.Unlock()
	if year != 2023 {
		t.Errorf("fetch year = %d, want 2023 from filter", year)
	}

	if !s.SetFilter(backend.RegionFilter{County: "Kisumu", Year: 2024}) {
		t.Fatal("SetFilter should report a change")
	}
	if sel := s.Selection(); sel.State != Idle {
		t.Fatalf("selection = %+v, want idle after filter change", sel)
	}

	src.gate("A") <- &models.WardStats{ID: "A"}
	if <-applied {
		t.Error("stats computed under the old filter must be dropped")
	}
	if sel := s.Selection(); sel.State != Idle || sel.Stats != nil {
		t.Errorf("selection = %+v, want idle", sel)
	}
}

func TestSelectWard_ShownThenFilterChange(t *testing.T) {
	s := New()
	src := newGatedSource()
	src.gate("A") <- &models.WardStats{ID: "A"}

	if !s.SelectWard(context.Background(), src, "A") {
		t.Fatal("SelectWard should apply")
	}
	if s.Selection().State != Shown {
		t.Fatal("want shown")
	}
	if s.SetFilter(backend.RegionFilter{}) {
		t.Error("same filter should not report a change")
	}
	if s.Selection().State != Shown {
		t.Error("unchanged filter must keep the selection")
	}
	s.SetFilter(backend.RegionFilter{County: "Siaya"})
	if s.Selection().State != Idle {
		t.Error("filter change must force idle")
	}
}

func TestClearSelection_DiscardsInFlight(t *testing.T) {
	s := New()
	src := newGatedSource()

	applied := make(chan bool, 1)
	go func() { applied <- s.SelectWard(context.Background(), src, "A") }()
	waitStarted(t, src, "A")

	s.ClearSelection()
	src.gate("A") <- &models.WardStats{ID: "A"}
	if <-applied {
		t.Error("dismissed selection must not be re-shown")
	}
	if sel := s.Selection(); sel.State != Idle {
		t.Errorf("selection = %+v, want idle", sel)
	}
}

func TestNotices_Expire(t *testing.T) {
	s := New()
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Notify(LevelSuccess, "File uploaded successfully")
	now = now.Add(2 * time.Second)
	s.Notify(LevelError, "Upload failed")

	if got := s.Notices(); len(got) != 2 {
		t.Fatalf("len(notices) = %d, want 2", len(got))
	}

	now = now.Add(4 * time.Second)
	got := s.Notices()
	if len(got) != 1 || got[0].Message != "Upload failed" {
		t.Errorf("notices = %+v, want only the newer one", got)
	}

	now = now.Add(10 * time.Second)
	if got := s.Snapshot().Notices; len(got) != 0 {
		t.Errorf("notices = %+v, want none", got)
	}
}

func TestNotices_PrunedOnNotify(t *testing.T) {
	s := New()
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for range 50 {
		s.Notify(LevelInfo, "Services partially available")
		now = now.Add(time.Second)
	}
	// Nobody reads notices; only the ones inside the TTL are retained.
	s.mu.Lock()
	n := len(s.notices)
	s.mu.Unlock()
	if limit := int(DefaultNoticeTTL / time.Second); n > limit {
		t.Errorf("retained %d notices, want at most %d", n, limit)
	}
}

func TestSelectionState_MarshalText(t *testing.T) {
	b, err := json.Marshal(Selection{State: Loading, WardID: "W1"})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"state":"loading","ward_id":"W1","stats":null}` {
		t.Errorf("json = %s", b)
	}
}
