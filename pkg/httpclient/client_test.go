package httpclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{
		PreferredTimeout:     2 * time.Second,
		DirectConnectTimeout: time.Second,
		DirectReadTimeout:    2 * time.Second,
		MaxAttempts:          3,
		BackoffBase:          time.Millisecond,
	}
}

// closedAddr returns an address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func statusSequence(t *testing.T, codes ...int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		code := codes[len(codes)-1]
		if int(n) <= len(codes) {
			code = codes[n-1]
		}
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestDo_RetriesIdempotentOnTransientStatus(t *testing.T) {
	srv, hits := statusSequence(t, 503, 502, 200)

	opts := testOptions()
	opts.DirectOnly = true
	c, err := NewClient(opts)
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(hits))
}

func TestDo_ReturnsLastResponseWhenRetriesExhausted(t *testing.T) {
	srv, hits := statusSequence(t, 429)

	opts := testOptions()
	opts.DirectOnly = true
	c, err := NewClient(opts)
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(hits), "at most three attempts")
}

func TestDo_DoesNotRetryPost(t *testing.T) {
	srv, hits := statusSequence(t, 503, 200)

	opts := testOptions()
	opts.DirectOnly = true
	c, err := NewClient(opts)
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		URL:    srv.URL,
		JSON:   map[string]string{"url": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(hits))
}

func TestDo_DoesNotRetryNonTransientStatus(t *testing.T) {
	srv, hits := statusSequence(t, 404, 200)

	opts := testOptions()
	opts.DirectOnly = true
	c, err := NewClient(opts)
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(hits))
}

func TestDo_FallsBackToDirectWhenProxyUnreachable(t *testing.T) {
	srv, hits := statusSequence(t, 200)

	opts := testOptions()
	opts.ProxyURL = "http://" + closedAddr(t)
	c, err := NewClient(opts)
	require.NoError(t, err)
	assert.True(t, c.HasProxy())

	resp, err := c.Do(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(hits), "only the direct path reaches the server")
}

func TestDo_UsesPreferredPathWhenProxyWorks(t *testing.T) {
	var proxied int32
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&proxied, 1)
		_, _ = w.Write([]byte("via-proxy"))
	}))
	defer proxy.Close()

	target, hits := statusSequence(t, 200)

	opts := testOptions()
	opts.ProxyURL = proxy.URL
	c, err := NewClient(opts)
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), Request{URL: target.URL + "/search"})
	require.NoError(t, err)
	assert.Equal(t, "via-proxy", string(resp.Body))
	assert.EqualValues(t, 1, atomic.LoadInt32(&proxied))
	assert.EqualValues(t, 0, atomic.LoadInt32(hits))
}

func TestDo_FallsBackOnPreferredTimeout(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		time.Sleep(150 * time.Millisecond)
		_, _ = w.Write([]byte("slow"))
	}))
	defer srv.Close()

	opts := testOptions()
	opts.PreferredTimeout = 30 * time.Millisecond
	c, err := NewClient(opts)
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "slow", string(resp.Body))
	// three timed-out preferred attempts plus the direct one
	assert.EqualValues(t, 4, atomic.LoadInt32(&hits))
}

func TestDo_FailsWithTransportErrorWhenBothPathsFail(t *testing.T) {
	opts := testOptions()
	opts.ProxyURL = "http://" + closedAddr(t)
	c, err := NewClient(opts)
	require.NoError(t, err)

	_, err = c.Do(context.Background(), Request{URL: "http://" + closedAddr(t) + "/search"})
	require.Error(t, err)

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, KindConnectFailed, terr.Kind)
}

func TestDo_MergesQueryParamsAndHeaders(t *testing.T) {
	var gotQuery url.Values
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotHeader = r.Header.Get("X-APP-ID")
		w.WriteHeader(200)
	}))
	defer srv.Close()

	opts := testOptions()
	opts.DirectOnly = true
	c, err := NewClient(opts)
	require.NoError(t, err)

	_, err = c.Do(context.Background(), Request{
		URL:    srv.URL + "/search?lang=zh",
		Params: url.Values{"query": {"黑客帝国"}, "page": {"2"}},
		Header: http.Header{"X-APP-ID": {"app"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "黑客帝国", gotQuery.Get("query"))
	assert.Equal(t, "2", gotQuery.Get("page"))
	assert.Equal(t, "zh", gotQuery.Get("lang"))
	assert.Equal(t, "app", gotHeader)
}

func TestNewClient_RejectsInvalidProxy(t *testing.T) {
	_, err := NewClient(Options{ProxyURL: "::not a url"})
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	req := Request{Method: http.MethodGet, URL: "http://x"}

	assert.Equal(t, KindOther, classify(req, context.Canceled).Kind)
	assert.Equal(t, KindTimeout, classify(req, context.DeadlineExceeded).Kind)
	assert.Equal(t, KindConnectFailed, classify(req, &net.OpError{Op: "dial", Err: errors.New("refused")}).Kind)
	assert.Equal(t, KindOther, classify(req, errors.New("boom")).Kind)
}
