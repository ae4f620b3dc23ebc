package store

import (
	"database/sql"
	"net/url"
	"time"

	"github.com/lox/yieldwatch/internal/httputil"
)

// FetchRun is one backend call, kept for auditing outages the dashboard
// otherwise hides behind empty states.
type FetchRun struct {
	ID                int64
	StartedAt         time.Time
	Elapsed           time.Duration
	Service           string // "geo", "ml", "ingestion"
	Method            string
	Endpoint          string // URL path without query
	HTTPStatus        sql.NullInt64
	ResponseSizeBytes sql.NullInt64
	Success           bool
	FailureKind       sql.NullString
	ErrorMessage      sql.NullString
}

// FetchRunFromCall converts a transport observation into a FetchRun.
func FetchRunFromCall(call httputil.Call) FetchRun {
	run := FetchRun{
		StartedAt: time.Now().Add(-call.Elapsed).UTC(),
		Elapsed:   call.Elapsed,
		Service:   call.Service,
		Method:    call.Method,
		Endpoint:  call.URL,
		Success:   call.Result.OK(),
	}
	if u, err := url.Parse(call.URL); err == nil && u.Path != "" {
		run.Endpoint = u.Path
	}
	if call.Result.Status > 0 {
		run.HTTPStatus = sql.NullInt64{Int64: int64(call.Result.Status), Valid: true}
	}
	if call.Result.OK() {
		run.ResponseSizeBytes = sql.NullInt64{Int64: int64(len(call.Result.Body)), Valid: true}
	} else {
		run.FailureKind = sql.NullString{String: call.Result.Err.Kind.String(), Valid: true}
		run.ErrorMessage = sql.NullString{String: call.Result.Err.Error(), Valid: true}
	}
	return run
}

// RecordCall stores a completed backend call.
func (s *Store) RecordCall(call httputil.Call) error {
	return s.InsertFetchRun(FetchRunFromCall(call))
}

func (s *Store) InsertFetchRun(run FetchRun) error {
	_, err := s.db.Exec(`
		INSERT INTO fetch_runs (started_at, elapsed_ms, service, method, endpoint, http_status, response_size_bytes, success, failure_kind, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, formatTime(run.StartedAt), run.Elapsed.Milliseconds(), run.Service, run.Method, run.Endpoint,
		run.HTTPStatus, run.ResponseSizeBytes, run.Success, run.FailureKind, run.ErrorMessage)
	return err
}

// FetchHealthSummary is a per-day rollup of calls to one endpoint.
type FetchHealthSummary struct {
	Date         string `json:"date"`
	Service      string `json:"service"`
	Endpoint     string `json:"endpoint"`
	TotalRuns    int    `json:"total_runs"`
	SuccessRuns  int    `json:"success_runs"`
	FailedRuns   int    `json:"failed_runs"`
	AvgElapsedMS int64  `json:"avg_elapsed_ms"`
}

// GetFetchHealth returns daily summaries for the last N days.
func (s *Store) GetFetchHealth(days int) ([]FetchHealthSummary, error) {
	rows, err := s.db.Query(`
		SELECT
			DATE(started_at) as date,
			service,
			endpoint,
			COUNT(*) as total_runs,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) as success_runs,
			SUM(CASE WHEN NOT success THEN 1 ELSE 0 END) as failed_runs,
			CAST(COALESCE(AVG(elapsed_ms), 0) AS INTEGER) as avg_elapsed_ms
		FROM fetch_runs
		WHERE started_at > datetime('now', '-' || ? || ' days')
		GROUP BY date, service, endpoint
		ORDER BY date DESC, service, endpoint
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FetchHealthSummary
	for rows.Next() {
		var h FetchHealthSummary
		if err := rows.Scan(&h.Date, &h.Service, &h.Endpoint, &h.TotalRuns,
			&h.SuccessRuns, &h.FailedRuns, &h.AvgElapsedMS); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// GetRecentFetchErrors returns the most recent failed calls.
func (s *Store) GetRecentFetchErrors(limit int) ([]FetchRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, elapsed_ms, service, method, endpoint,
			   http_status, response_size_bytes, success, failure_kind, error_message
		FROM fetch_runs
		WHERE success = FALSE
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FetchRun
	for rows.Next() {
		var r FetchRun
		var startedAt string
		var elapsedMS int64
		if err := rows.Scan(&r.ID, &startedAt, &elapsedMS, &r.Service, &r.Method, &r.Endpoint,
			&r.HTTPStatus, &r.ResponseSizeBytes, &r.Success, &r.FailureKind, &r.ErrorMessage); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(startedAt)
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		results = append(results, r)
	}
	return results, rows.Err()
}

// CleanupOldFetchRuns deletes runs older than the retention window and
// returns the number removed.
func (s *Store) CleanupOldFetchRuns(retentionDays int) (int64, error) {
	result, err := s.db.Exec(`
		DELETE FROM fetch_runs
		WHERE started_at < datetime('now', '-' || ? || ' days')
	`, retentionDays)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
