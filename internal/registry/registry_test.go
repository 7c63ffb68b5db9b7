package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeops/cubeops/internal/retry"
)

func TestNextVersion(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		want string
	}{
		{
			name: "increments patch of the maximum",
			tags: []string{"1.2.3", "1.2.9", "1.3.0"},
			want: "1.3.1",
		},
		{
			name: "no tags at all",
			tags: nil,
			want: "0.0.1",
		},
		{
			name: "only non-semver tags",
			tags: []string{"latest", "dev", "v1.2"},
			want: "0.0.1",
		},
		{
			name: "semver mixed with aliases",
			tags: []string{"latest", "0.4.12", "0.4.2"},
			want: "0.4.13",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextVersion(tt.tags).String())
		})
	}
}

func TestResolveVersion(t *testing.T) {
	t.Run("picks next free version", func(t *testing.T) {
		got, err := ResolveVersion([]string{"1.2.3", "1.2.9", "1.3.0"})
		require.NoError(t, err)
		assert.Equal(t, "1.3.1", got)
	})

	t.Run("first publish starts at 0.0.1", func(t *testing.T) {
		got, err := ResolveVersion([]string{"latest"})
		require.NoError(t, err)
		assert.Equal(t, "0.0.1", got)
	})
}

func TestHTTPTagLister(t *testing.T) {
	t.Run("parses tag list", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/cubeops/server/tags/list", r.URL.Path)
			_, _ = w.Write([]byte(`{"name":"cubeops/server","tags":["0.1.0","latest"]}`))
		}))
		defer srv.Close()

		l := NewHTTPTagLister(srv.URL)
		tags, err := l.ListTags(context.Background(), "cubeops/server")
		require.NoError(t, err)
		assert.Equal(t, []string{"0.1.0", "latest"}, tags)
	})

	t.Run("404 is an empty list", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		l := NewHTTPTagLister(srv.URL)
		tags, err := l.ListTags(context.Background(), "cubeops/never-pushed")
		require.NoError(t, err)
		assert.Empty(t, tags)
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"name":"r","tags":["1.0.0"]}`))
		}))
		defer srv.Close()

		l := NewHTTPTagLister(srv.URL)
		l.Retry = retry.Fixed(5, time.Millisecond)
		tags, err := l.ListTags(context.Background(), "r")
		require.NoError(t, err)
		assert.Equal(t, []string{"1.0.0"}, tags)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		l := NewHTTPTagLister(srv.URL)
		l.Retry = retry.Fixed(5, time.Millisecond)
		_, err := l.ListTags(context.Background(), "r")
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})
}
