package multimodal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempClip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, []byte("fake-clip-bytes"), 0o644))
	return path
}

func TestCorrect_ReturnsContentOnSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-audio", req.Model)
		assert.InDelta(t, 0.1, req.Temperature, 1e-9)
		assert.Equal(t, 500, req.MaxTokens)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"I want to go"}}]}`))
	}))
	defer server.Close()

	c := New(server.URL, "gpt-4o-audio")
	text, err := c.Correct(context.Background(), writeTempClip(t), "I want too go")

	require.NoError(t, err)
	assert.Equal(t, "I want to go", text)
}

func TestCorrect_StripsPreamble(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"Transcription: I want to go"}}]}`))
	}))
	defer server.Close()

	c := New(server.URL, "gpt-4o-audio")
	text, err := c.Correct(context.Background(), writeTempClip(t), "I want too go")

	require.NoError(t, err)
	assert.Equal(t, "I want to go", text)
}

func TestCorrect_StripsTheSpeakerSaysPreamble(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"The speaker says: I want to go"}}]}`))
	}))
	defer server.Close()

	c := New(server.URL, "gpt-4o-audio")
	text, err := c.Correct(context.Background(), writeTempClip(t), "I want too go")

	require.NoError(t, err)
	assert.Equal(t, "I want to go", text)
}

func TestCorrect_StripsHereIsTheTranscriptionPreamble(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"Here is the transcription: I want to go"}}]}`))
	}))
	defer server.Close()

	c := New(server.URL, "gpt-4o-audio")
	text, err := c.Correct(context.Background(), writeTempClip(t), "I want too go")

	require.NoError(t, err)
	assert.Equal(t, "I want to go", text)
}

func TestCorrect_ReturnsErrorOnNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unreachable"))
	}))
	defer server.Close()

	c := New(server.URL, "gpt-4o-audio")
	_, err := c.Correct(context.Background(), writeTempClip(t), "anything")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestCorrect_ReturnsErrorOnMissingClip(t *testing.T) {
	c := New("http://unused", "gpt-4o-audio")
	_, err := c.Correct(context.Background(), "/nonexistent/clip.wav", "anything")
	require.Error(t, err)
}
