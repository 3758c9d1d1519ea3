// Package audioslicer extracts a single time window from a source
// audio file as a standalone clip, re-encoded to the fixed format the
// second-pass multimodal endpoint expects.
package audioslicer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Slicer wraps an ffmpeg binary for single-window clip extraction.
type Slicer struct {
	ffmpegPath string
	clipsDir   string
}

// New constructs a Slicer. ffmpegPath is typically just "ffmpeg"
// (resolved via PATH); clipsDir is where output clips are written.
func New(ffmpegPath, clipsDir string) *Slicer {
	return &Slicer{ffmpegPath: ffmpegPath, clipsDir: clipsDir}
}

// Slice extracts [start, end] seconds from sourcePath into a new 16kHz
// mono PCM clip under clipsDir and returns its path. The clip's name is
// derived from the source file name, the window bounds and the
// wall-clock time, so concurrent clips of the same job do not collide. The seek flag is placed after -i so ffmpeg
// performs an accurate (not keyframe-snapped) seek, which matters at
// clip boundaries as short as a few seconds.
func (s *Slicer) Slice(ctx context.Context, sourcePath string, start, end float64) (string, error) {
	if end <= start {
		return "", fmt.Errorf("audioslicer: invalid window [%f, %f]", start, end)
	}

	if err := os.MkdirAll(s.clipsDir, 0o755); err != nil {
		return "", fmt.Errorf("audioslicer: create clips dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	name := fmt.Sprintf("%s_%s_%s_%d.wav", base,
		strconv.FormatFloat(start, 'f', 3, 64),
		strconv.FormatFloat(end, 'f', 3, 64),
		time.Now().UnixNano())
	outputPath := filepath.Join(s.clipsDir, name)
	duration := end - start

	args := []string{
		"-y",
		"-i", sourcePath,
		"-ss", strconv.FormatFloat(start, 'f', 3, 64),
		"-t", strconv.FormatFloat(duration, 'f', 3, 64),
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		outputPath,
	}

	if err := s.run(ctx, args); err != nil {
		return "", err
	}

	if _, err := os.Stat(outputPath); err != nil {
		return "", fmt.Errorf("audioslicer: output clip was not created: %w", err)
	}

	return outputPath, nil
}

// run executes ffmpeg in its own process group so a context
// cancellation (job shutdown mid-slice) can kill the whole subprocess
// tree rather than leaving an orphaned ffmpeg running past the job
// that spawned it.
func (s *Slicer) run(ctx context.Context, args []string) error {
	cmd := exec.Command(s.ffmpegPath, args...)
	setProcessGroup(cmd)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("audioslicer: start ffmpeg: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = killProcessTree(cmd.Process)
		return fmt.Errorf("audioslicer: cancelled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("audioslicer: ffmpeg failed: %w: %s", err, stderr.String())
		}
		return nil
	}
}

// Remove deletes a clip file produced by Slice. Failure is logged by
// the caller, not returned as fatal: a leftover clip file is
// best-effort housekeeping, never a correctness issue.
func (s *Slicer) Remove(clipPath string) error {
	if clipPath == "" {
		return nil
	}
	return os.Remove(clipPath)
}

// ValidateFFmpeg checks that the configured ffmpeg binary runs.
func (s *Slicer) ValidateFFmpeg() error {
	cmd := exec.Command(s.ffmpegPath, "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("audioslicer: ffmpeg not found or not working: %w", err)
	}
	return nil
}
