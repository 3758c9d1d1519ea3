package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobStatus represents the lifecycle state of a Job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Job represents one uploaded audio file's transcription lifecycle.
//
// A Job is created PENDING by the (external) upload handler, claimed
// exactly once by the worker, and terminates COMPLETED or FAILED. It is
// never re-processed after reaching a terminal state.
type Job struct {
	ID     string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID string    `json:"user_id" gorm:"type:varchar(36);not null;index:idx_jobs_user_status,priority:1"`
	Status JobStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index:idx_jobs_status;index:idx_jobs_user_status,priority:2"`

	SourceAudioPath  string  `json:"source_audio_path" gorm:"type:text;not null"`
	OriginalFilename string  `json:"original_filename" gorm:"type:text;not null"`
	Transcript       *string `json:"transcript,omitempty" gorm:"type:text"`
	ErrorMessage     *string `json:"error_message,omitempty" gorm:"type:text"`

	ProcessingStarted *time.Time `json:"processing_started,omitempty"`
	ProcessingEnded   *time.Time `json:"processing_ended,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;index:idx_jobs_status"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Segments []Segment `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

// BeforeCreate assigns a UUID primary key if the caller left it blank.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	return nil
}

// Segment is a word-level record produced by first-pass ASR. Segments
// are created in bulk once per job and never modified afterward.
type Segment struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	JobID string `json:"job_id" gorm:"type:varchar(36);not null;index:idx_segments_job;index:idx_segments_job_confidence,priority:1"`

	Word       string  `json:"word" gorm:"type:text;not null"`
	Start      float64 `json:"start" gorm:"not null"`
	End        float64 `json:"end" gorm:"not null"`
	Confidence float64 `json:"confidence" gorm:"not null;index:idx_segments_job_confidence,priority:2"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`

	Corrections []Correction `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

// Correction is an audit record for one attempted second-pass
// re-transcription, whether or not it was ultimately applied.
type Correction struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	SegmentID uint   `json:"segment_id" gorm:"not null;index"`
	JobID     string `json:"job_id" gorm:"type:varchar(36);not null;index"`

	OriginalText     string  `json:"original_text" gorm:"type:text;not null"`
	CorrectedText    string  `json:"corrected_text" gorm:"type:text;not null"`
	TriggerConfidence float64 `json:"trigger_confidence" gorm:"not null"`

	ClipPath  *string `json:"clip_path,omitempty" gorm:"type:text"`
	ClipStart float64 `json:"clip_start" gorm:"not null"`
	ClipEnd   float64 `json:"clip_end" gorm:"not null"`

	EditDistance int  `json:"edit_distance" gorm:"not null"`
	Applied      bool `json:"applied" gorm:"not null;default:false"`
	Reason       *string `json:"reason,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
