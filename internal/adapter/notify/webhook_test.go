package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/payload-sanitizer/internal/adapter/notify"
	"github.com/fairyhunter13/payload-sanitizer/internal/domain"
)

func fastNotifier() *notify.WebhookNotifier {
	return notify.NewWebhookNotifier(
		notify.WithBackoff(500*time.Millisecond, 10*time.Millisecond, 50*time.Millisecond),
		notify.WithTimeout(time.Second),
	)
}

func sp(s string) *string { return &s }

func TestWebhookNotifier_DeliversPayload(t *testing.T) {
	t.Parallel()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := domain.Batch{
		ID:     "b-1",
		Status: domain.BatchCompleted,
		Result: []*string{sp("clean text"), nil},
	}
	require.NoError(t, fastNotifier().Deliver(context.Background(), srv.URL, b))
	assert.Equal(t, "b-1", got["batch_id"])
	assert.Equal(t, "completed", got["status"])
	result, ok := got["result"].([]any)
	require.True(t, ok)
	require.Len(t, result, 2)
	assert.Equal(t, "clean text", result[0])
	assert.Nil(t, result[1])
}

func TestWebhookNotifier_RetriesOn5xx(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := fastNotifier().Deliver(context.Background(), srv.URL, domain.Batch{ID: "b-2", Status: domain.BatchCompleted})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestWebhookNotifier_4xxIsPermanent(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := fastNotifier().Deliver(context.Background(), srv.URL, domain.Batch{ID: "b-3", Status: domain.BatchCompleted})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookNotifier_GivesUpAfterWindow(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := fastNotifier().Deliver(context.Background(), srv.URL, domain.Batch{ID: "b-4", Status: domain.BatchCompleted})
	require.Error(t, err)
}
