// Package webhook posts Discord-style embed notifications for the
// three points in a job's lifecycle the pipeline cares about:
// started, completed, failed.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"secondpass/pkg/logger"
)

const (
	colorStarted   = 0x0099ff
	colorCompleted = 0x00ff00
	colorFailed    = 0xff0000
)

// Service posts embed payloads to a configured Discord-compatible
// webhook URL.
type Service struct {
	client *http.Client
}

// NewService constructs a Service.
func NewService() *Service {
	return &Service{
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      embedFooter  `json:"footer"`
	Timestamp   string       `json:"timestamp"`
}

type payload struct {
	Username string  `json:"username"`
	Embeds   []embed `json:"embeds"`
}

// NotifyStarted sends the "job started" embed.
func (s *Service) NotifyStarted(ctx context.Context, url, jobID, filename string) error {
	e := embed{
		Title: "Transcription started",
		Color: colorStarted,
		Fields: []embedField{
			{Name: "Job", Value: jobID, Inline: true},
			{Name: "File", Value: filename, Inline: true},
		},
	}
	return s.send(ctx, url, jobID, e)
}

// NotifyCompleted sends the "job completed" embed.
func (s *Service) NotifyCompleted(ctx context.Context, url, jobID string, duration time.Duration, applied, skipped int) error {
	e := embed{
		Title: "Transcription completed",
		Color: colorCompleted,
		Fields: []embedField{
			{Name: "Job", Value: jobID, Inline: true},
			{Name: "Duration", Value: duration.String(), Inline: true},
			{Name: "Corrections applied", Value: fmt.Sprintf("%d", applied), Inline: true},
			{Name: "Corrections skipped", Value: fmt.Sprintf("%d", skipped), Inline: true},
		},
	}
	return s.send(ctx, url, jobID, e)
}

// NotifyFailed sends the "job failed" embed.
func (s *Service) NotifyFailed(ctx context.Context, url, jobID string, cause error) error {
	e := embed{
		Title:       "Transcription failed",
		Description: cause.Error(),
		Color:       colorFailed,
		Fields: []embedField{
			{Name: "Job", Value: jobID, Inline: true},
		},
	}
	return s.send(ctx, url, jobID, e)
}

func (s *Service) send(ctx context.Context, url, jobID string, e embed) error {
	if url == "" {
		return nil
	}

	e.Footer = embedFooter{Text: "secondpass"}
	e.Timestamp = time.Now().UTC().Format(time.RFC3339)

	body := payload{Username: "secondpass", Embeds: []embed{e}}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	maxRetries := 3
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(i) * time.Second)
			logger.Debug("retrying webhook", "job_id", jobID, "attempt", i+1)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("webhook: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			logger.Warn("webhook request failed", "job_id", jobID, "error", err, "attempt", i+1)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook returned status %d", resp.StatusCode)
		logger.Warn("webhook returned error status", "job_id", jobID, "status", resp.StatusCode, "attempt", i+1)
	}

	return fmt.Errorf("webhook: failed after %d attempts: %w", maxRetries, lastErr)
}
