package elastic_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinesync/apps/etl/internal/adapter/elastic"
	"cinesync/apps/etl/internal/retry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(baseURL string) *elastic.Client {
	return elastic.NewClient(baseURL, "/_bulk", "/", nil, 0, discardLogger())
}

func TestIsAlive(t *testing.T) {
	t.Run("Healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		assert.True(t, newClient(srv.URL).IsAlive(context.Background()))
	})

	t.Run("ErrorStatus", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		assert.False(t, newClient(srv.URL).IsAlive(context.Background()))
	})

	t.Run("Unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		assert.False(t, newClient(srv.URL).IsAlive(context.Background()))
	})
}

func TestUpload(t *testing.T) {
	payload := []byte("{\"index\":{\"_index\":\"movies\",\"_id\":\"m1\"}}\n{\"title\":\"The Movie\"}\n")

	t.Run("Success", func(t *testing.T) {
		var gotBody []byte
		var gotContentType, gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/_bulk", r.URL.Path)
			gotBody, _ = io.ReadAll(r.Body)
			gotContentType = r.Header.Get("Content-Type")
			gotAuth = r.Header.Get("Authorization")
			w.Write([]byte(`{"errors":false,"items":[]}`))
		}))
		defer srv.Close()

		c := elastic.NewClient(srv.URL, "/_bulk", "/", map[string]string{"Authorization": "ApiKey x"}, 0, discardLogger())
		require.NoError(t, c.Upload(context.Background(), payload))
		assert.Equal(t, payload, gotBody)
		assert.Equal(t, "application/x-ndjson", gotContentType)
		assert.Equal(t, "ApiKey x", gotAuth)
	})

	t.Run("ServerErrorIsTransient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		err := newClient(srv.URL).Upload(context.Background(), payload)
		assert.True(t, retry.IsTransient(err))
	})

	t.Run("TransportErrorIsTransient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		err := newClient(srv.URL).Upload(context.Background(), payload)
		assert.True(t, retry.IsTransient(err))
	})

	t.Run("ClientErrorIsPermanent", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		err := newClient(srv.URL).Upload(context.Background(), payload)
		assert.Error(t, err)
		assert.False(t, retry.IsTransient(err))
	})

	t.Run("ItemErrorsArePermanent", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"errors":true,"items":[{"index":{"error":{"type":"mapper_parsing_exception"}}}]}`))
		}))
		defer srv.Close()

		err := newClient(srv.URL).Upload(context.Background(), payload)
		assert.Error(t, err)
		assert.False(t, retry.IsTransient(err))
	})
}

func TestUpload_Pacing(t *testing.T) {
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stamps = append(stamps, time.Now())
		w.Write([]byte(`{"errors":false}`))
	}))
	defer srv.Close()

	delay := 50 * time.Millisecond
	c := elastic.NewClient(srv.URL, "/_bulk", "/", nil, delay, discardLogger())

	require.NoError(t, c.Upload(context.Background(), []byte("{}\n")))
	require.NoError(t, c.Upload(context.Background(), []byte("{}\n")))

	require.Len(t, stamps, 2)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), delay/2)
}
