// Package multimodal is the second-pass correction client: it sends a
// short audio clip plus the first pass's guess to an audio-capable
// chat completion endpoint and returns the model's best transcription
// of just that clip.
package multimodal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const systemPrompt = `You are a transcription correction assistant. You will be given a short audio clip and the automatic transcription's best guess for it. Listen to the clip and respond with ONLY the corrected text for this exact clip, nothing else. If the audio is unintelligible, respond with exactly "[unintelligible]". Do not add commentary, punctuation explanations, or repeat these instructions.`

// Client talks to an OpenAI-compatible audio-capable chat completion
// endpoint.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// New constructs a Client.
func New(baseURL, model string) *Client {
	return &Client{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type audioContentPart struct {
	Type       string     `json:"type"`
	InputAudio inputAudio `json:"input_audio"`
}

type inputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

type textContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Correct sends the audio clip at clipPath along with the first
// pass's text for that window and returns the model's corrected text,
// with any instruction-echoing preamble stripped.
func (c *Client) Correct(ctx context.Context, clipPath, originalText string) (string, error) {
	audioBytes, err := os.ReadFile(clipPath)
	if err != nil {
		return "", fmt.Errorf("multimodal: read clip: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(audioBytes)

	userPrompt := fmt.Sprintf("The automatic transcription guessed: %q\n\nListen to the audio and give the corrected text for this clip only.", originalText)

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []any{
				textContentPart{Type: "text", Text: userPrompt},
				audioContentPart{Type: "input_audio", InputAudio: inputAudio{Data: encoded, Format: "wav"}},
			}},
		},
		Temperature: 0.1,
		MaxTokens:   500,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("multimodal: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("multimodal: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("multimodal: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("multimodal: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("multimodal: server returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("multimodal: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("multimodal: response had no choices")
	}

	return stripPreamble(parsed.Choices[0].Message.Content), nil
}

// stripPreamble removes the fixed list of instruction-echoing prefixes
// a chat model tends to prepend despite being told not to, e.g.
// "Transcription: " or "Here is the transcription ". Prefixes match
// case-insensitively and may be followed by a colon; apart from that,
// only surrounding whitespace is trimmed.
func stripPreamble(s string) string {
	s = strings.TrimSpace(s)
	lowered := strings.ToLower(s)
	prefixes := []string{
		"the speaker says",
		"transcription",
		"here is the transcription",
	}
	for _, p := range prefixes {
		if !strings.HasPrefix(lowered, p) {
			continue
		}
		rest := s[len(p):]
		if rest != "" && !strings.ContainsRune(": \t\r\n", rune(rest[0])) {
			continue
		}
		s = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
		break
	}
	return s
}
