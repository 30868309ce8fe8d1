package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testETag         = `"abc123"`
	testLastModified = "Sat, 01 Jan 2024 00:00:00 GMT"
)

func newClient(t *testing.T, opts Options) *Client {
	t.Helper()
	cl, err := New(opts)
	require.NoError(t, err)
	return cl
}

func TestFetch_OKReturnsBodyAndValidators(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", testETag)
		w.Header().Set("Last-Modified", testLastModified)
		_, _ = w.Write([]byte("<html>hi</html>"))
	}))
	defer srv.Close()

	res := newClient(t, Options{}).Fetch(context.Background(), srv.URL, Validators{}, time.Second)
	require.Equal(t, StatusOK, res.Status, "err=%v", res.Err)
	assert.Equal(t, "<html>hi</html>", string(res.Body))
	assert.Equal(t, testETag, res.Validators.ETag)
	assert.Equal(t, testLastModified, res.Validators.LastModified)
}

func TestFetch_NotModified(t *testing.T) {
	var gotETag, gotSince string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotETag = r.Header.Get("If-None-Match")
		gotSince = r.Header.Get("If-Modified-Since")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	v := Validators{ETag: testETag, LastModified: testLastModified}
	res := newClient(t, Options{}).Fetch(context.Background(), srv.URL, v, time.Second)
	assert.True(t, res.Unchanged())
	assert.Empty(t, res.Body)
	assert.NoError(t, res.Err)
	assert.Equal(t, testETag, gotETag)
	assert.Equal(t, testLastModified, gotSince)
	assert.Equal(t, v, res.Validators)
}

func TestFetch_NoValidatorHeadersWhenEmpty(t *testing.T) {
	var sawConditional bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawConditional = r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != ""
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	res := newClient(t, Options{}).Fetch(context.Background(), srv.URL, Validators{}, time.Second)
	assert.Equal(t, StatusOK, res.Status)
	assert.False(t, sawConditional)
}

func TestFetch_TimeoutIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	start := time.Now()
	res := newClient(t, Options{}).Fetch(context.Background(), srv.URL, Validators{}, 100*time.Millisecond)
	elapsed := time.Since(start)

	assert.Equal(t, StatusError, res.Status)
	assert.True(t, res.Timeout(), "err=%v", res.Err)
	assert.True(t, errors.Is(res.Err, ErrTimeout))
	assert.Less(t, elapsed, time.Second)
}

func TestFetch_HTTPErrorIsNotTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res := newClient(t, Options{Retry: 3}).Fetch(context.Background(), srv.URL, Validators{}, time.Second)
	assert.Equal(t, StatusError, res.Status)
	assert.False(t, res.Timeout())
	var he *HTTPStatusError
	require.True(t, errors.As(res.Err, &he))
	assert.Equal(t, http.StatusInternalServerError, he.Code)
}

func TestFetch_DoesNotRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_ = newClient(t, Options{Retry: 2}).Fetch(context.Background(), srv.URL, Validators{}, time.Second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGet_RetryOnStatusAndUserAgent(t *testing.T) {
	t.Setenv("CIRCLES_UA", "test-agent/1.0")
	var calls int32
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := newClient(t, Options{Retry: 1}).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, "test-agent/1.0", ua.Load())
}

func TestHostLimiter_NilAllows(t *testing.T) {
	var l *hostLimiter
	assert.NoError(t, l.Wait(context.Background(), "https://a.dev"))
	assert.Nil(t, newHostLimiter(0))
	assert.NotNil(t, newHostLimiter(2))
}
