package progress

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_DeliversToSubscriber(t *testing.T) {
	b := NewBroadcaster()
	defer b.Shutdown()

	req := httptest.NewRequest(http.MethodGet, "/jobs/job-1/events", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(rec, req, "job-1")
		close(done)
	}()

	// Give ServeHTTP time to register before publishing.
	time.Sleep(50 * time.Millisecond)
	b.Publish("job-1", EventCompleted, map[string]int{"applied": 2})

	time.Sleep(50 * time.Millisecond)
	body := rec.Body.String()

	assert.Contains(t, body, "connected")
	assert.Contains(t, body, string(EventCompleted))
}

func TestPublish_IgnoresJobWithNoSubscribers(t *testing.T) {
	b := NewBroadcaster()
	defer b.Shutdown()

	assert.NotPanics(t, func() {
		b.Publish("no-such-job", EventFailed, "boom")
	})
}

func TestServeHTTP_RejectsEmptyJobID(t *testing.T) {
	b := NewBroadcaster()
	defer b.Shutdown()

	req := httptest.NewRequest(http.MethodGet, "/jobs//events", nil)
	rec := httptest.NewRecorder()

	b.ServeHTTP(rec, req, "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "job id"))
}
