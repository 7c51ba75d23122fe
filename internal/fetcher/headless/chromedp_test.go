package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/review-crawler/internal/crawler"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxParallel: -1})
	require.Error(t, err)

	f, err := New(Config{MaxParallel: 2})
	require.NoError(t, err)
	t.Cleanup(f.Close)
	require.NotNil(t, f.slots)
	require.Equal(t, defaultNavTimeout, f.cfg.NavigationTimeout)

	unbounded, err := New(Config{NavigationTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(unbounded.Close)
	require.Nil(t, unbounded.slots)
	require.Equal(t, time.Second, unbounded.cfg.NavigationTimeout)
}

func TestFetchCanceledWhileWaitingForSlot(t *testing.T) {
	t.Parallel()

	f, err := New(Config{MaxParallel: 1})
	require.NoError(t, err)
	t.Cleanup(f.Close)
	require.True(t, f.slots.TryAcquire(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Fetch(ctx, crawler.FetchRequest{URL: "https://example.com"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDocumentResponseKeepsLastDocument(t *testing.T) {
	t.Parallel()

	doc := &documentResponse{}
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 301, URL: "https://example.com/old"},
	})
	doc.observe(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  200,
			URL:     "https://example.com/review/acme",
			Headers: network.Headers{"X-Request-ID": "abc", "Set-Cookie": []any{"a=1", "b=2"}},
		},
	})
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 404, URL: "https://example.com/app.js"},
	})
	doc.observe("unrelated event")

	status, headers, url := doc.result()
	require.Equal(t, 200, status)
	require.Equal(t, "https://example.com/review/acme", url)
	require.Equal(t, "abc", headers.Get("X-Request-ID"))
	require.Equal(t, []string{"a=1", "b=2"}, headers.Values("Set-Cookie"))
}

func TestDocumentResponseEmpty(t *testing.T) {
	t.Parallel()

	status, headers, url := (&documentResponse{}).result()
	require.Zero(t, status)
	require.Empty(t, url)
	require.NotNil(t, headers)
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	got := toNetworkHeaders(http.Header{
		"X-Single": {"a"},
		"X-Multi":  {"a", "b"},
		"X-Empty":  {},
	})
	require.Equal(t, "a", got["X-Single"])
	require.Equal(t, []string{"a", "b"}, got["X-Multi"])
	require.NotContains(t, got, "X-Empty")
}
