package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotifyStarted_SendsEmbed(t *testing.T) {
	service := NewService()
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body payload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "secondpass", body.Username)
		if assert.Len(t, body.Embeds, 1) {
			assert.Equal(t, "Transcription started", body.Embeds[0].Title)
			assert.Equal(t, colorStarted, body.Embeds[0].Color)
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := service.NotifyStarted(ctx, server.URL, "job-123", "clip.wav")
	assert.NoError(t, err)
}

func TestNotifyCompleted_IncludesCorrectionCounts(t *testing.T) {
	service := NewService()
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body payload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, colorCompleted, body.Embeds[0].Color)
		fields := map[string]string{}
		for _, f := range body.Embeds[0].Fields {
			fields[f.Name] = f.Value
		}
		assert.Equal(t, "3", fields["Corrections applied"])
		assert.Equal(t, "1", fields["Corrections skipped"])
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := service.NotifyCompleted(ctx, server.URL, "job-123", 2*time.Second, 3, 1)
	assert.NoError(t, err)
}

func TestNotifyFailed_IncludesErrorDescription(t *testing.T) {
	service := NewService()
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body payload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, colorFailed, body.Embeds[0].Color)
		assert.Equal(t, "boom", body.Embeds[0].Description)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := service.NotifyFailed(ctx, server.URL, "job-123", errors.New("boom"))
	assert.NoError(t, err)
}

func TestSend_RetriesThenSucceeds(t *testing.T) {
	service := NewService()
	ctx := context.Background()
	attempts := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := service.NotifyStarted(ctx, server.URL, "job-retry", "clip.wav")

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestSend_FailsAfterExhaustingRetries(t *testing.T) {
	service := NewService()
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := service.NotifyStarted(ctx, server.URL, "job-fail", "clip.wav")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
}

func TestNotifyStarted_NoopOnEmptyURL(t *testing.T) {
	service := NewService()
	err := service.NotifyStarted(context.Background(), "", "job-123", "clip.wav")
	assert.NoError(t, err)
}
