package store

import (
	"database/sql"
	"time"

	"github.com/lox/yieldwatch/internal/models"
)

// StartUpload records an upload job as in flight.
func (s *Store) StartUpload(job models.UploadJob) error {
	_, err := s.db.Exec(`
		INSERT INTO upload_jobs (id, filename, route, target_table, size_bytes, success, created_at)
		VALUES (?, ?, ?, ?, ?, FALSE, ?)
	`, job.ID, job.Filename, string(job.Route), sql.NullString{String: job.Table, Valid: job.Table != ""},
		job.Size, formatTime(job.CreatedAt))
	return err
}

// CompleteUpload marks the job finished with its outcome.
func (s *Store) CompleteUpload(id string, success bool, size int64) error {
	_, err := s.db.Exec(`
		UPDATE upload_jobs SET success = ?, size_bytes = ?, finished_at = ?
		WHERE id = ?
	`, success, size, formatTime(time.Now()), id)
	return err
}

// GetRecentUploads returns the latest upload jobs, newest first.
func (s *Store) GetRecentUploads(limit int) ([]models.UploadJob, error) {
	rows, err := s.db.Query(`
		SELECT id, filename, route, target_table, size_bytes, success, created_at, finished_at
		FROM upload_jobs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []models.UploadJob{}
	for rows.Next() {
		var job models.UploadJob
		var route, createdAt string
		var table, finishedAt sql.NullString
		var size sql.NullInt64
		if err := rows.Scan(&job.ID, &job.Filename, &route, &table, &size, &job.Success, &createdAt, &finishedAt); err != nil {
			return nil, err
		}
		job.Route = models.UploadRoute(route)
		job.Table = table.String
		job.Size = size.Int64
		job.CreatedAt = parseTime(createdAt)
		job.InFlight = !finishedAt.Valid
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
