package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/patchgraph/internal/errors"
	"github.com/rohankatakam/patchgraph/internal/logging"
)

func TestFetcher_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "patchgraph-test/0.1", r.Header.Get("User-Agent"))
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f, err := New(Options{UserAgent: "patchgraph-test/0.1"}, logging.Discard())
	require.NoError(t, err)
	defer f.Close()

	body, err := f.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", string(body))
}

func TestFetcher_DefaultUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("User-Agent")))
	}))
	defer srv.Close()

	f, err := New(Options{}, logging.Discard())
	require.NoError(t, err)

	body, err := f.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, defaultAgent, string(body))
}

func TestFetcher_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f, err := New(Options{}, logging.Discard())
	require.NoError(t, err)

	_, err = f.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeNetwork, errors.GetType(err))
	assert.Contains(t, err.Error(), "404")
}

func TestFetcher_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 16)))
	}))
	defer srv.Close()

	tests := []struct {
		name    string
		limit   int64
		wantErr bool
	}{
		{"exactly at limit", 16, false},
		{"over limit", 15, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(Options{MaxBodyBytes: tt.limit}, logging.Discard())
			require.NoError(t, err)

			body, err := f.Get(context.Background(), srv.URL)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, body)
				assert.Equal(t, errors.ErrorTypeNetwork, errors.GetType(err))
				assert.Contains(t, err.Error(), "exceeds 15 bytes")
				return
			}
			require.NoError(t, err)
			assert.Len(t, body, 16)
		})
	}
}

func TestFetcher_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("late"))
	}))
	defer srv.Close()

	f, err := New(Options{Timeout: 20 * time.Millisecond}, logging.Discard())
	require.NoError(t, err)

	_, err = f.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeNetwork, errors.GetType(err))
}

func TestFetcher_CancelledContext(t *testing.T) {
	f, err := New(Options{RateLimit: 1}, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.Get(ctx, "http://127.0.0.1:1/")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeNetwork, errors.GetType(err))
}

func TestFetcher_ConditionalCache(t *testing.T) {
	var hits, notModified int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			atomic.AddInt32(&notModified, 1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("first body"))
	}))
	defer srv.Close()

	cacheFile := filepath.Join(t.TempDir(), "cache", "fetch.db")
	f, err := New(Options{CacheFile: cacheFile}, logging.Discard())
	require.NoError(t, err)
	defer f.Close()

	ctx := context.Background()
	body, err := f.Get(ctx, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "first body", string(body))

	body, err = f.Get(ctx, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "first body", string(body), "304 serves the cached body")

	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, int32(1), atomic.LoadInt32(&notModified))
}

func TestFetcher_NoValidatorNotCached(t *testing.T) {
	var conditional int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			atomic.AddInt32(&conditional, 1)
		}
		w.Write([]byte("plain"))
	}))
	defer srv.Close()

	f, err := New(Options{CacheFile: filepath.Join(t.TempDir(), "fetch.db")}, logging.Discard())
	require.NoError(t, err)
	defer f.Close()

	for i := 0; i < 2; i++ {
		_, err := f.Get(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&conditional))
}
