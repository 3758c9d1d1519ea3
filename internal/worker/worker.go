// Package worker is the single cooperative worker loop that claims
// pending jobs, runs the two-pass transcription-correction pipeline,
// and finalizes each job's outcome.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"secondpass/internal/asr"
	"secondpass/internal/clustering"
	"secondpass/internal/models"
	"secondpass/internal/progress"
	"secondpass/internal/reconciliation"
	"secondpass/internal/store"
	"secondpass/pkg/logger"
)

// Params configures one pipeline run, sourced from *config.Config.
type Params struct {
	ClusteringParams clustering.Params
	WebhookURL       string
	PollInterval     time.Duration
}

// jobStore is the slice of *store.Store the pipeline needs. A narrow
// interface here, rather than the concrete type, is what lets tests
// drive the pipeline without a real database.
type jobStore interface {
	ClaimNextPending(ctx context.Context) (*models.Job, error)
	SaveSegments(ctx context.Context, jobID string, segments []models.Segment) error
	FindSegmentInRange(ctx context.Context, jobID string, start, end float64) (*models.Segment, error)
	SaveCorrection(ctx context.Context, rec *models.Correction) error
	CorrectionsForJob(ctx context.Context, jobID string) ([]models.Correction, error)
	FinalizeSuccess(ctx context.Context, jobID, transcript string) error
	FinalizeFailure(ctx context.Context, jobID, errMsg string) error
}

// transcriber is the first-pass ASR client's contract.
type transcriber interface {
	Transcribe(ctx context.Context, path string) (text string, words []asr.Word, err error)
}

// slicer is the audio-clip extraction contract.
type slicer interface {
	Slice(ctx context.Context, sourcePath string, start, end float64) (string, error)
	Remove(clipPath string) error
}

// corrector is the second-pass multimodal client's contract.
type corrector interface {
	Correct(ctx context.Context, clipPath, originalText string) (string, error)
}

// notifier is the outbound notification contract.
type notifier interface {
	NotifyStarted(ctx context.Context, url, jobID, filename string) error
	NotifyCompleted(ctx context.Context, url, jobID string, duration time.Duration, applied, skipped int) error
	NotifyFailed(ctx context.Context, url, jobID string, cause error) error
}

// publisher is the in-process progress-broadcast contract.
type publisher interface {
	Publish(jobID string, eventType progress.EventType, data any)
}

// Worker is the single-process job runner. isProcessing and shouldStop
// are atomic.Bool because Stop is called from a different goroutine
// than Run.
type Worker struct {
	store     jobStore
	asrClient transcriber
	slicer    slicer
	mmClient  corrector
	webhook   notifier
	progress  publisher
	params    Params

	isProcessing atomic.Bool
	shouldStop   atomic.Bool
}

// New constructs a Worker from its wired dependencies.
func New(
	st jobStore,
	asrClient transcriber,
	sl slicer,
	mmClient corrector,
	wh notifier,
	prog publisher,
	params Params,
) *Worker {
	return &Worker{
		store:     st,
		asrClient: asrClient,
		slicer:    sl,
		mmClient:  mmClient,
		webhook:   wh,
		progress:  prog,
		params:    params,
	}
}

// Run is the main poll loop: claim, process, repeat, until Stop is
// called or ctx is cancelled. Shutdown is checked between jobs and,
// inside a job, between correction windows: a stop request skips the
// job's remaining windows and the job is finalized with the
// corrections already made. ctx is passed to every pipeline call, so
// cancelling it also cancels the in-flight job's remote calls and
// store writes.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.params.PollInterval)
	defer ticker.Stop()

	for {
		if w.shouldStop.Load() || ctx.Err() != nil {
			return nil
		}

		job, err := w.store.ClaimNextPending(ctx)
		if err != nil {
			if !errors.Is(err, store.ErrNoJobAvailable) {
				logger.Error("claim next pending failed", "error", err)
			}
		} else {
			w.isProcessing.Store(true)
			w.runPipeline(ctx, job)
			w.isProcessing.Store(false)
			continue // immediately poll again; don't wait out the ticker after a busy cycle
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Stop requests the loop exit after its current job, if any, finishes.
func (w *Worker) Stop() {
	w.shouldStop.Store(true)
}

// runPipeline executes the six-step pipeline for a single job:
// first-pass ASR, cluster low-confidence words, then for each cluster
// slice -> correct -> reconcile -> persist with per-window fault
// isolation, then merge and finalize.
func (w *Worker) runPipeline(ctx context.Context, job *models.Job) {
	start := time.Now()
	logger.PipelineStarted(job.ID, job.OriginalFilename)
	w.progress.Publish(job.ID, progress.EventStarted, map[string]string{"filename": job.OriginalFilename})
	w.notifyStarted(ctx, job)

	_, asrWords, err := w.asrClient.Transcribe(ctx, job.SourceAudioPath)
	if err != nil {
		w.fail(ctx, job, start, fmt.Errorf("first-pass transcription: %w", err))
		return
	}

	words := toClusteringWords(asrWords)
	segments := toSegments(asrWords)
	if err := w.store.SaveSegments(ctx, job.ID, segments); err != nil {
		w.fail(ctx, job, start, fmt.Errorf("persist segments: %w", err))
		return
	}

	clusters := clustering.Cluster(words, w.params.ClusteringParams)

	applied, skipped := 0, 0
	for _, c := range clusters {
		if w.shouldStop.Load() || ctx.Err() != nil {
			break
		}

		didApply := w.processWindow(ctx, job, words, c)
		if didApply {
			applied++
		} else {
			skipped++
		}
	}

	corrections, err := w.buildCorrectionInputs(ctx, job.ID)
	if err != nil {
		w.fail(ctx, job, start, fmt.Errorf("load corrections: %w", err))
		return
	}

	merged := reconciliation.Merge(words, corrections)
	if err := w.store.FinalizeSuccess(ctx, job.ID, merged.Text); err != nil {
		w.fail(ctx, job, start, fmt.Errorf("finalize success: %w", err))
		return
	}

	duration := time.Since(start)
	logger.PipelineCompleted(job.ID, duration, applied, skipped)
	w.progress.Publish(job.ID, progress.EventCompleted, map[string]int{"applied": applied, "skipped": skipped})
	if err := w.webhook.NotifyCompleted(ctx, w.params.WebhookURL, job.ID, duration, applied, skipped); err != nil {
		logger.Warn("completion webhook failed", "job_id", job.ID, "error", err)
	}
}

// processWindow runs slice -> correct -> reconcile -> persist for one
// cluster. words is the full per-job word list, not just the cluster's
// low-confidence words — Evaluate needs every word inside the wider
// clip window, including the high-confidence context surrounding the
// low-confidence span, to compute both the hallucination-guard ratio
// and the audit record's original text. Any failure here aborts only
// this window: the clip is skipped and the pipeline continues with the
// next cluster.
func (w *Worker) processWindow(ctx context.Context, job *models.Job, words []clustering.Word, c clustering.Cluster) (applied bool) {
	clipPath, err := w.slicer.Slice(ctx, job.SourceAudioPath, c.ClipStart, c.ClipEnd)
	if err != nil {
		logger.Warn("window slice failed, skipping", "job_id", job.ID, "error", err)
		return false
	}
	defer func() {
		if rmErr := w.slicer.Remove(clipPath); rmErr != nil {
			logger.Debug("failed to remove temp clip", "path", clipPath, "error", rmErr)
		}
	}()

	wordsInWindow := reconciliation.WordsInWindow(words, c.ClipStart, c.ClipEnd)
	originalText := joinClusterWords(c)

	correctedText, err := w.mmClient.Correct(ctx, clipPath, originalText)
	if err != nil {
		logger.Warn("second-pass correction failed, skipping window", "job_id", job.ID, "error", err)
		return false
	}

	eval := reconciliation.Evaluate(wordsInWindow, correctedText, c.ClipStart, c.ClipEnd)
	logger.CorrectionDecision(job.ID, c.ClipStart, c.ClipEnd, eval.ShouldApply, eval.Reason)
	w.progress.Publish(job.ID, progress.EventWindowReconciled, map[string]any{
		"clip_start": c.ClipStart,
		"clip_end":   c.ClipEnd,
		"applied":    eval.ShouldApply,
		"reason":     eval.Reason,
	})

	rec := &models.Correction{
		JobID:             job.ID,
		OriginalText:      eval.OriginalText,
		CorrectedText:     eval.CorrectedText,
		TriggerConfidence: c.AverageConfidence,
		ClipStart:         c.ClipStart,
		ClipEnd:           c.ClipEnd,
		EditDistance:      eval.LevenshteinDistance,
		Applied:           eval.ShouldApply,
	}
	if eval.Reason != "" {
		rec.Reason = &eval.Reason
	}
	if seg, err := w.store.FindSegmentInRange(ctx, job.ID, c.StartTime, c.EndTime); err == nil && seg != nil {
		rec.SegmentID = seg.ID
	}

	if err := w.store.SaveCorrection(ctx, rec); err != nil {
		logger.Warn("failed to persist correction, skipping window", "job_id", job.ID, "error", err)
		return false
	}

	return eval.ShouldApply
}

func (w *Worker) buildCorrectionInputs(ctx context.Context, jobID string) ([]reconciliation.CorrectionInput, error) {
	corrections, err := w.store.CorrectionsForJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	inputs := make([]reconciliation.CorrectionInput, 0, len(corrections))
	for _, c := range corrections {
		inputs = append(inputs, reconciliation.CorrectionInput{
			ClipStart:     c.ClipStart,
			ClipEnd:       c.ClipEnd,
			CorrectedText: c.CorrectedText,
			ShouldApply:   c.Applied,
		})
	}
	return inputs, nil
}

func (w *Worker) fail(ctx context.Context, job *models.Job, start time.Time, cause error) {
	duration := time.Since(start)
	logger.PipelineFailed(job.ID, duration, cause)
	w.progress.Publish(job.ID, progress.EventFailed, map[string]string{"error": cause.Error()})

	if err := w.store.FinalizeFailure(ctx, job.ID, cause.Error()); err != nil {
		logger.Error("failed to record job failure", "job_id", job.ID, "error", err)
	}
	if err := w.webhook.NotifyFailed(ctx, w.params.WebhookURL, job.ID, cause); err != nil {
		logger.Warn("failure webhook failed", "job_id", job.ID, "error", err)
	}
}

func (w *Worker) notifyStarted(ctx context.Context, job *models.Job) {
	if err := w.webhook.NotifyStarted(ctx, w.params.WebhookURL, job.ID, job.OriginalFilename); err != nil {
		logger.Warn("started webhook failed", "job_id", job.ID, "error", err)
	}
}

func toClusteringWords(words []asr.Word) []clustering.Word {
	out := make([]clustering.Word, len(words))
	for i, w := range words {
		out[i] = clustering.Word{Text: w.Word, Start: w.Start, End: w.End, Probability: w.Probability}
	}
	return out
}

func toSegments(words []asr.Word) []models.Segment {
	out := make([]models.Segment, len(words))
	for i, w := range words {
		out[i] = models.Segment{Word: w.Word, Start: w.Start, End: w.End, Confidence: w.Probability}
	}
	return out
}

func joinClusterWords(c clustering.Cluster) string {
	s := ""
	for i, w := range c.Words {
		if i > 0 {
			s += " "
		}
		s += w.Text
	}
	return s
}
