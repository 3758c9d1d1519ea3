// Package store is the durable job/segment/correction state layer and
// the atomic single-claim job queue primitive. It is the only package
// that talks to GORM directly.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"secondpass/internal/models"

	"gorm.io/gorm"
)

// ErrNoJobAvailable is returned by ClaimNextPending when there is no
// PENDING job to take.
var ErrNoJobAvailable = errors.New("store: no pending job available")

// Store wraps a *gorm.DB with the operations the worker and ingestion
// paths need. A narrow, hand-written interface here (rather than the
// teacher's generic Repository[T]) is deliberate: the pipeline has
// exactly five job-queue operations over three tables, and a generic
// CRUD layer would hide the one operation — ClaimNextPending — whose
// correctness actually matters.
type Store struct {
	db *gorm.DB
}

// New wraps an already-opened *gorm.DB (normally database.DB).
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateJob inserts a new PENDING job row. This is the entry point the
// (external, out of scope) upload handler and the in-process dropzone
// ingester both call.
func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	if job.Status == "" {
		job.Status = models.StatusPending
	}
	return s.db.WithContext(ctx).Create(job).Error
}

// ClaimNextPending atomically selects the oldest PENDING job by
// creation time and transitions it to PROCESSING, setting
// ProcessingStarted to now. It returns ErrNoJobAvailable if no job is
// eligible.
//
// The claim is a single UPDATE whose WHERE clause both selects the
// target row and re-checks its status, so two concurrent callers can
// never both affect the same row: at most one UPDATE returns an id.
// The UPDATE ... RETURNING and the follow-up read of the claimed row
// run inside one transaction.
func (s *Store) ClaimNextPending(ctx context.Context) (*models.Job, error) {
	var claimed models.Job

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		var claimedID string
		row := tx.Raw(`
			UPDATE jobs
			SET status = ?, processing_started = ?, updated_at = ?
			WHERE id = (
				SELECT id FROM jobs
				WHERE status = ?
				ORDER BY created_at ASC
				LIMIT 1
			) AND status = ?
			RETURNING id
		`, models.StatusProcessing, now, now, models.StatusPending, models.StatusPending).Row()

		if err := row.Scan(&claimedID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNoJobAvailable
			}
			return fmt.Errorf("claim update: %w", err)
		}

		return tx.Where("id = ?", claimedID).First(&claimed).Error
	})
	if err != nil {
		if errors.Is(err, ErrNoJobAvailable) {
			return nil, ErrNoJobAvailable
		}
		return nil, fmt.Errorf("claim next pending: %w", err)
	}
	return &claimed, nil
}

// SaveSegments bulk-inserts the first-pass word sequence for a job,
// all-or-nothing.
func (s *Store) SaveSegments(ctx context.Context, jobID string, segments []models.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	for i := range segments {
		segments[i].JobID = jobID
	}
	return s.db.WithContext(ctx).Create(&segments).Error
}

// SegmentsForJob returns all segments of a job in ascending start order.
func (s *Store) SegmentsForJob(ctx context.Context, jobID string) ([]models.Segment, error) {
	var segments []models.Segment
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("start ASC").
		Find(&segments).Error
	return segments, err
}

// FindSegmentInRange returns any one segment fully contained in
// [start, end], used only as a foreign-key anchor for a Correction
// record — not for alignment.
func (s *Store) FindSegmentInRange(ctx context.Context, jobID string, start, end float64) (*models.Segment, error) {
	var seg models.Segment
	err := s.db.WithContext(ctx).
		Where("job_id = ? AND start >= ? AND end <= ?", jobID, start, end).
		Order("start ASC").
		First(&seg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &seg, nil
}

// SaveCorrection inserts a Correction audit record. There is no update
// path: a correction is evaluated once.
func (s *Store) SaveCorrection(ctx context.Context, rec *models.Correction) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

// CorrectionsForJob returns every correction attempted for a job,
// applied or not, ordered by clip start — the shape Merge needs to
// reassemble the final transcript.
func (s *Store) CorrectionsForJob(ctx context.Context, jobID string) ([]models.Correction, error) {
	var corrections []models.Correction
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("clip_start ASC").
		Find(&corrections).Error
	return corrections, err
}

// FinalizeSuccess sets a job COMPLETED with its final transcript.
func (s *Store) FinalizeSuccess(ctx context.Context, jobID, transcript string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"status":           models.StatusCompleted,
			"transcript":       transcript,
			"processing_ended": now,
		}).Error
}

// FinalizeFailure sets a job FAILED with an error message.
func (s *Store) FinalizeFailure(ctx context.Context, jobID, errMsg string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"status":           models.StatusFailed,
			"error_message":    errMsg,
			"processing_ended": now,
		}).Error
}

// GetJob fetches a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.WithContext(ctx).Where("id = ?", jobID).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// CountByStatus returns job counts by status, for the admin /stats
// endpoint.
func (s *Store) CountByStatus(ctx context.Context) (map[models.JobStatus]int64, error) {
	counts := map[models.JobStatus]int64{}
	for _, status := range []models.JobStatus{models.StatusPending, models.StatusProcessing, models.StatusCompleted, models.StatusFailed} {
		var n int64
		if err := s.db.WithContext(ctx).Model(&models.Job{}).Where("status = ?", status).Count(&n).Error; err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, nil
}

// SweepStaleProcessing moves PROCESSING jobs whose ProcessingStarted is
// older than olderThan back to PENDING, resolving spec.md §9's open
// question on crash recovery: a crash is not evidence the audio itself
// is unprocessable, so stale rows are retried rather than failed.
func (s *Store) SweepStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("status = ? AND processing_started < ?", models.StatusProcessing, cutoff).
		Updates(map[string]any{
			"status":             models.StatusPending,
			"processing_started": nil,
		})
	return res.RowsAffected, res.Error
}
