package scheduler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier(t *testing.T) {
	ctx := context.Background()

	t.Run("posts the event envelope as JSON", func(t *testing.T) {
		var mu sync.Mutex
		var bodies []map[string]interface{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			data, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &body))

			mu.Lock()
			bodies = append(bodies, body)
			mu.Unlock()
		}))
		defer server.Close()

		n := NewNotifier(WebhookConfig{OnImprovement: []string{server.URL}})
		n.Notify(ctx, EventImprovement, map[string]interface{}{
			"genome_id": "g1",
			"fitness":   0.9,
		})

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, bodies, 1)
		assert.Equal(t, "improvement", bodies[0]["event"])
		assert.Equal(t, "g1", bodies[0]["genome_id"])
		assert.Equal(t, 0.9, bodies[0]["fitness"])
		assert.NotEmpty(t, bodies[0]["timestamp"])
	})

	t.Run("notifies every URL configured for the event", func(t *testing.T) {
		var mu sync.Mutex
		hits := 0
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			hits++
			mu.Unlock()
		})
		s1 := httptest.NewServer(handler)
		defer s1.Close()
		s2 := httptest.NewServer(handler)
		defer s2.Close()

		n := NewNotifier(WebhookConfig{OnStart: []string{s1.URL, s2.URL}})
		n.Notify(ctx, EventStart, nil)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 2, hits)
	})

	t.Run("events without URLs are silent", func(t *testing.T) {
		n := NewNotifier(WebhookConfig{})
		// Must not panic or block.
		n.Notify(ctx, EventError, map[string]interface{}{"error": "x"})
	})

	t.Run("delivery failure does not propagate", func(t *testing.T) {
		n := NewNotifier(WebhookConfig{OnError: []string{"http://127.0.0.1:1/unreachable"}})
		n.Notify(ctx, EventError, nil)
	})

	t.Run("non-2xx responses are tolerated", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		n := NewNotifier(WebhookConfig{OnComplete: []string{server.URL}})
		n.Notify(ctx, EventComplete, nil)
	})
}
