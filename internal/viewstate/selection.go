package viewstate

import (
	"context"
	"log"

	"github.com/lox/yieldwatch/internal/models"
)

// SelectionState is the click-to-inspect lifecycle of a ward.
type SelectionState int

const (
	Idle SelectionState = iota
	Loading
	Shown
)

func (s SelectionState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Shown:
		return "shown"
	default:
		return "idle"
	}
}

func (s SelectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Selection is the current ward inspection. Stats is nil unless State is
// Shown and the fetch succeeded.
type Selection struct {
	State  SelectionState    `json:"state"`
	WardID string            `json:"ward_id,omitempty"`
	Stats  *models.WardStats `json:"stats"`
	Error  string            `json:"error,omitempty"`
}

// StatsSource fetches ward statistics; *backend.GeoClient implements it.
type StatsSource interface {
	WardStats(ctx context.Context, id string, year int) *models.WardStats
}

// SelectWard moves to Loading, fetches the stats without holding the lock,
// and applies the result only if no newer selection, dismissal or filter
// change happened meanwhile. It reports whether the result was applied.
// Superseded requests are not cancelled; their results are dropped.
func (s *Store) SelectWard(ctx context.Context, src StatsSource, id string) bool {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	year := s.filter.Year
	s.selection = Selection{State: Loading, WardID: id}
	delete(s.errors, SliceWard)
	s.mu.Unlock()

	stats := src.WardStats(ctx, id, year)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq != seq {
		log.Printf("viewstate: dropping stale ward stats for %s", id)
		return false
	}
	if stats == nil && ctx.Err() != nil {
		// The caller gave up; this is not a backend failure.
		log.Printf("viewstate: ward stats for %s abandoned: %v", id, ctx.Err())
		s.resetSelection()
		return false
	}
	if stats == nil {
		s.selection = Selection{State: Shown, WardID: id}
		s.setErrorLocked(SliceWard, wardUnavailable)
		return true
	}
	s.selection = Selection{State: Shown, WardID: id, Stats: stats}
	return true
}

const wardUnavailable = "ward statistics unavailable"

// ClearSelection returns to Idle and discards any in-flight fetch result.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetSelection()
}

func (s *Store) resetSelection() {
	s.seq++
	s.selection = Selection{State: Idle}
	delete(s.errors, SliceWard)
}

// Selection returns a copy of the current selection.
func (s *Store) Selection() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}
