package models

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCloseRing(t *testing.T) {
	tests := []struct {
		name string
		ring [][2]float64
		want [][2]float64
	}{
		{
			name: "already closed",
			ring: [][2]float64{{0, 0}, {0, 1}, {1, 1}, {0, 0}},
			want: [][2]float64{{0, 0}, {0, 1}, {1, 1}, {0, 0}},
		},
		{
			name: "open triangle gets closed",
			ring: [][2]float64{{0, 0}, {0, 1}, {1, 1}},
			want: [][2]float64{{0, 0}, {0, 1}, {1, 1}, {0, 0}},
		},
		{
			name: "too few vertices",
			ring: [][2]float64{{0, 0}, {0, 1}},
			want: nil,
		},
		{
			name: "closed but degenerate",
			ring: [][2]float64{{0, 0}, {0, 1}, {0, 0}},
			want: nil,
		},
		{
			name: "empty",
			ring: nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CloseRing(tt.ring)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("CloseRing mismatch (-want +got):\n%s", diff)
			}
			if got != nil && !(Region{Geometry: got}).HasClosedRing() {
				t.Error("CloseRing result should satisfy HasClosedRing")
			}
		})
	}
}

func TestCloseRing_DoesNotMutateInput(t *testing.T) {
	ring := make([][2]float64, 3, 8)
	ring[0], ring[1], ring[2] = [2]float64{1, 1}, [2]float64{1, 2}, [2]float64{2, 2}
	CloseRing(ring)
	if len(ring) != 3 || ring[:4][3] != ([2]float64{}) {
		t.Error("CloseRing wrote into the caller's backing array")
	}
}

func TestRegion_UnmarshalJSON(t *testing.T) {
	var regions []Region
	data := `[
		{"id": 1, "name": "Field Alpha", "geometry": [[40.71, -74.0], [40.72, -74.0], [40.72, -74.1], [40.71, -74.0]], "crop": "Wheat"},
		{"id": "KE-047-01", "name": "Kisumu Central", "county": "Kisumu"}
	]`
	if err := json.Unmarshal([]byte(data), &regions); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if regions[0].ID != "1" {
		t.Errorf("numeric id = %q, want \"1\"", regions[0].ID)
	}
	if !regions[0].HasClosedRing() {
		t.Error("Field Alpha should have a closed ring")
	}
	if regions[1].ID != "KE-047-01" || regions[1].County != "Kisumu" {
		t.Errorf("region[1] = %+v", regions[1])
	}
	if regions[1].HasClosedRing() {
		t.Error("region without geometry has no ring")
	}
}

func TestFeatures_MarshalJSON(t *testing.T) {
	f := Features{
		NDVIMean:   0.58,
		PrecipMean: 5.2,
		TempMean:   22.5,
		Fertilizer: 120,
		Lat:        1.0435,
		Lon:        34.9589,
		Extra:      map[string]float64{"et_mean": 3.1},
	}
	b, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]float64
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]float64{
		"ndvi_mean": 0.58, "precip_mean": 5.2, "temp_mean": 22.5,
		"fertilizer": 120, "lat": 1.0435, "lon": 34.9589, "et_mean": 3.1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("features mismatch (-want +got):\n%s", diff)
	}
}

func TestRasterAsset_Active(t *testing.T) {
	if !(RasterAsset{Status: "Active"}).Active() {
		t.Error("Active should be active")
	}
	if (RasterAsset{Status: "inactive"}).Active() {
		t.Error("inactive should not be active")
	}
}

func TestAPIHealth_AllUp(t *testing.T) {
	if (APIHealth{Geo: true, ML: true}).AllUp() {
		t.Error("AllUp with ingestion down should be false")
	}
	if !(APIHealth{Geo: true, ML: true, Ingestion: true}).AllUp() {
		t.Error("AllUp with everything up should be true")
	}
}
