package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"streamhub/work/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		UserAgent:       "streamhub-test",
		SegmentTimeout:  5 * time.Second,
		SourceRateLimit: 1000,
	}
}

func TestFetchInjectsHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(testConfig())
	resp, err := c.Fetch(context.Background(), Request{
		URL:     srv.URL,
		Origin:  "https://origin.example",
		Referer: "https://origin.example/",
		Header:  http.Header{"Range": []string{"bytes=0-1"}},
	})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "streamhub-test", got.Get("User-Agent"))
	assert.Equal(t, "https://origin.example", got.Get("Origin"))
	assert.Equal(t, "https://origin.example/", got.Get("Referer"))
	assert.Equal(t, "bytes=0-1", got.Get("Range"))
}

func TestFetchUserAgentOverride(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.UserAgent()
	}))
	defer srv.Close()

	resp, err := New(testConfig()).Fetch(context.Background(), Request{URL: srv.URL, UserAgent: "custom/1.0", LimitKey: "a"})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "custom/1.0", ua)
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final/index.m3u8", http.StatusFound)
	})
	mux.HandleFunc("/final/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := New(testConfig()).Fetch(context.Background(), Request{Kind: KindMedia, URL: srv.URL + "/start"})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "/final/index.m3u8", resp.Request.URL.Path)
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(testConfig()).Fetch(context.Background(), Request{URL: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamStatus)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestFetchTimeoutClassification(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(testConfig())

	_, err := c.Fetch(context.Background(), Request{Kind: KindSource, URL: srv.URL, Timeout: 50 * time.Millisecond})
	assert.ErrorIs(t, err, ErrSourceTimeout)
	assert.True(t, IsTimeout(err))

	_, err = c.Fetch(context.Background(), Request{Kind: KindMedia, URL: srv.URL, Timeout: 50 * time.Millisecond})
	assert.ErrorIs(t, err, ErrUpstreamTimeout)
}

func TestFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := New(testConfig())

	_, err := c.Fetch(context.Background(), Request{Kind: KindSource, URL: addr})
	assert.ErrorIs(t, err, ErrSourceUnreachable)

	_, err = c.Fetch(context.Background(), Request{Kind: KindMedia, URL: addr})
	assert.ErrorIs(t, err, ErrUpstreamTimeout)
}

func TestFetchParentCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := New(testConfig()).Fetch(ctx, Request{URL: srv.URL})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTimeoutCoversBodyRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	resp, err := New(testConfig()).Fetch(context.Background(), Request{URL: srv.URL, Timeout: 100 * time.Millisecond})
	require.NoError(t, err)
	defer resp.Body.Close()

	_, err = io.ReadAll(resp.Body)
	assert.Error(t, err)
}

func TestGetJSON(t *testing.T) {
	type payload struct {
		List []string `json:"list"`
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"list":["a","b"]}`))
	})
	mux.HandleFunc("/bad", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(testConfig())

	got, err := GetJSON[payload](context.Background(), c, Request{URL: srv.URL + "/ok"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.List)

	_, err = GetJSON[payload](context.Background(), c, Request{URL: srv.URL + "/bad"})
	assert.ErrorIs(t, err, ErrSourceMalformedResponse)
}
