// Package asr is the first-pass transcription client: it uploads
// source audio to a remote speech-to-text endpoint and returns the
// word-level timestamp sequence the rest of the pipeline clusters and
// corrects.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Client talks to an OpenAI-compatible speech-to-text server.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// New constructs a Client. baseURL is the server root (e.g.
// "http://localhost:9000"); model is passed through as the "model"
// form field on every request.
func New(baseURL, model string) *Client {
	return &Client{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// Word is one word-level timestamp as returned by the ASR server.
type Word struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}

// transcriptionResponse mirrors the verbose_json shape of the
// OpenAI-compatible transcription endpoint.
type transcriptionResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Duration float64 `json:"duration"`
	Words    []Word  `json:"words"`
}

// Transcribe uploads the audio file at path and returns its full text
// plus word-level timestamps. There is no retry at this layer: a
// failed first pass fails the whole job, and the worker does not
// retry or re-queue it.
func (c *Client) Transcribe(ctx context.Context, path string) (text string, words []Word, err error) {
	body, contentType, err := buildMultipart(path, c.model)
	if err != nil {
		return "", nil, fmt.Errorf("asr: build request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/transcriptions", body)
	if err != nil {
		return "", nil, fmt.Errorf("asr: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("asr: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("asr: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("asr: server returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed transcriptionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", nil, fmt.Errorf("asr: decode response: %w", err)
	}

	return parsed.Text, parsed.Words, nil
}

func buildMultipart(path, model string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy audio into form: %w", err)
	}

	fields := map[string]string{
		"model":                      model,
		"response_format":            "verbose_json",
		"timestamp_granularities[]": "word",
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return buf, writer.FormDataContentType(), nil
}
