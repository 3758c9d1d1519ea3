package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"secondpass/internal/asr"
	"secondpass/internal/clustering"
	"secondpass/internal/models"
	"secondpass/internal/progress"
	"secondpass/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu          sync.Mutex
	jobs        []*models.Job
	segments    []models.Segment
	corrections []models.Correction
	finalized   map[string]string
	failed      map[string]string
}

func newFakeStore(jobs ...*models.Job) *fakeStore {
	return &fakeStore{jobs: jobs, finalized: map[string]string{}, failed: map[string]string{}}
}

func (f *fakeStore) ClaimNextPending(ctx context.Context) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.jobs) == 0 {
		return nil, store.ErrNoJobAvailable
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	return job, nil
}

func (f *fakeStore) SaveSegments(ctx context.Context, jobID string, segments []models.Segment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.segments = append(f.segments, segments...)
	return nil
}

func (f *fakeStore) FindSegmentInRange(ctx context.Context, jobID string, start, end float64) (*models.Segment, error) {
	return nil, nil
}

func (f *fakeStore) SaveCorrection(ctx context.Context, rec *models.Correction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.corrections = append(f.corrections, *rec)
	return nil
}

func (f *fakeStore) CorrectionsForJob(ctx context.Context, jobID string) ([]models.Correction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Correction
	for _, c := range f.corrections {
		if c.JobID == jobID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) FinalizeSuccess(ctx context.Context, jobID, transcript string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized[jobID] = transcript
	return nil
}

func (f *fakeStore) FinalizeFailure(ctx context.Context, jobID, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[jobID] = errMsg
	return nil
}

type fakeTranscriber struct {
	text  string
	words []asr.Word
	err   error
}

func (f fakeTranscriber) Transcribe(ctx context.Context, path string) (string, []asr.Word, error) {
	return f.text, f.words, f.err
}

type fakeSlicer struct {
	err     error
	removed []string
}

func (f *fakeSlicer) Slice(ctx context.Context, sourcePath string, start, end float64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "/tmp/clip.wav", nil
}

func (f *fakeSlicer) Remove(clipPath string) error {
	f.removed = append(f.removed, clipPath)
	return nil
}

type fakeCorrector struct {
	text string
	err  error
}

func (f fakeCorrector) Correct(ctx context.Context, clipPath, originalText string) (string, error) {
	return f.text, f.err
}

type fakeNotifier struct{}

func (fakeNotifier) NotifyStarted(ctx context.Context, url, jobID, filename string) error {
	return nil
}
func (fakeNotifier) NotifyCompleted(ctx context.Context, url, jobID string, duration time.Duration, applied, skipped int) error {
	return nil
}
func (fakeNotifier) NotifyFailed(ctx context.Context, url, jobID string, cause error) error {
	return nil
}

type fakePublisher struct{}

func (fakePublisher) Publish(jobID string, eventType progress.EventType, data any) {}

func testParams() Params {
	return Params{
		ClusteringParams: clustering.Params{ConfidenceThreshold: 0.60, ProximitySeconds: 5, CorrectionWindow: 20},
		PollInterval:     10 * time.Millisecond,
	}
}

func TestRunPipeline_CompletesOnCleanFirstPass(t *testing.T) {
	job := &models.Job{ID: "job-1", SourceAudioPath: "src.wav", OriginalFilename: "src.wav"}
	fs := newFakeStore(job)

	w := New(fs, fakeTranscriber{
		text: "hello world",
		words: []asr.Word{
			{Word: "hello", Start: 0, End: 0.5, Probability: 0.95},
			{Word: "world", Start: 0.5, End: 1.0, Probability: 0.98},
		},
	}, &fakeSlicer{}, fakeCorrector{}, fakeNotifier{}, fakePublisher{}, testParams())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	claimed, err := fs.ClaimNextPending(ctx)
	require.NoError(t, err)
	w.runPipeline(ctx, claimed)

	assert.Equal(t, "hello world", fs.finalized["job-1"])
	assert.Empty(t, fs.failed)
	assert.Len(t, fs.segments, 2)
}

func TestRunPipeline_FailsJobOnASRError(t *testing.T) {
	job := &models.Job{ID: "job-2", SourceAudioPath: "src.wav"}
	fs := newFakeStore(job)

	w := New(fs, fakeTranscriber{err: errors.New("asr unreachable")}, &fakeSlicer{}, fakeCorrector{}, fakeNotifier{}, fakePublisher{}, testParams())

	w.runPipeline(context.Background(), job)

	assert.Contains(t, fs.failed["job-2"], "asr unreachable")
	assert.Empty(t, fs.finalized)
}

func TestRunPipeline_AppliesAcceptedWindowCorrection(t *testing.T) {
	job := &models.Job{ID: "job-3", SourceAudioPath: "src.wav"}
	fs := newFakeStore(job)

	w := New(fs, fakeTranscriber{
		words: []asr.Word{
			{Word: "I", Start: 0, End: 0.2, Probability: 0.90},
			{Word: "want", Start: 0.2, End: 0.6, Probability: 0.95},
			{Word: "too", Start: 0.6, End: 1.0, Probability: 0.20},
			{Word: "go", Start: 1.0, End: 1.3, Probability: 0.92},
		},
	}, &fakeSlicer{}, fakeCorrector{text: "I want to go"}, fakeNotifier{}, fakePublisher{}, testParams())

	w.runPipeline(context.Background(), job)

	require.Len(t, fs.corrections, 1)
	assert.True(t, fs.corrections[0].Applied)
	assert.Equal(t, "I want to go", fs.finalized["job-3"])
}

func TestRunPipeline_SkipsWindowOnSliceFailure(t *testing.T) {
	job := &models.Job{ID: "job-4", SourceAudioPath: "src.wav"}
	fs := newFakeStore(job)

	w := New(fs, fakeTranscriber{
		words: []asr.Word{
			{Word: "uh", Start: 0, End: 0.5, Probability: 0.10},
		},
	}, &fakeSlicer{err: errors.New("ffmpeg missing")}, fakeCorrector{}, fakeNotifier{}, fakePublisher{}, testParams())

	w.runPipeline(context.Background(), job)

	assert.Empty(t, fs.corrections)
	assert.Equal(t, "uh", fs.finalized["job-4"])
}

func TestRun_StopsAfterCurrentJob(t *testing.T) {
	job := &models.Job{ID: "job-5", SourceAudioPath: "src.wav"}
	fs := newFakeStore(job)

	w := New(fs, fakeTranscriber{words: []asr.Word{{Word: "hi", Start: 0, End: 0.2, Probability: 0.9}}},
		&fakeSlicer{}, fakeCorrector{}, fakeNotifier{}, fakePublisher{}, testParams())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	w.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}

	assert.Equal(t, "hi", fs.finalized["job-5"])
}
