package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCMS is an in-process CloudSyncMedia double.
type fakeCMS struct {
	logins   int32
	enqueues int32

	// rejectShares makes the next N share calls answer 401
	rejectShares int32
	loginCode    int
	loginToken   bool
	shareCode    int

	mu         sync.Mutex
	lastBearer string
	lastURL    string
}

func newFakeCMS() *fakeCMS {
	return &fakeCMS{loginCode: 200, loginToken: true, shareCode: 200}
}

func (f *fakeCMS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/auth/login":
		n := atomic.AddInt32(&f.logins, 1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "admin" || body["password"] != "pw" {
			_, _ = w.Write([]byte(`{"code": 401, "msg": "bad credentials"}`))
			return
		}
		if !f.loginToken {
			fmt.Fprintf(w, `{"code": %d, "data": {}}`, f.loginCode)
			return
		}
		fmt.Fprintf(w, `{"code": %d, "data": {"token": "tok-%d"}}`, f.loginCode, n)
	case "/api/cloud/add_share_down":
		atomic.AddInt32(&f.enqueues, 1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.lastBearer = r.Header.Get("Authorization")
		f.lastURL = body["url"]
		f.mu.Unlock()
		if atomic.LoadInt32(&f.rejectShares) > 0 {
			atomic.AddInt32(&f.rejectShares, -1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, `{"code": %d, "msg": "ok", "data": {"task_id": 42, "status": "queued"}}`, f.shareCode)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeCMS) last() (bearer, url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBearer, f.lastURL
}

func newTestCMS(t *testing.T, f *fakeCMS) *CMSService {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewCMSService(newTestHTTPClient(t), srv.URL+"/", "admin", "pw")
}

func TestEnqueue_Success(t *testing.T) {
	f := newFakeCMS()
	svc := newTestCMS(t, f)

	res, err := svc.Enqueue(context.Background(), "https://115.com/s/abc")
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "42", res.TaskID)
	assert.Equal(t, "queued", res.Status)
	assert.Equal(t, "ok", res.Message)

	assert.EqualValues(t, 1, atomic.LoadInt32(&f.logins))
	bearer, url := f.last()
	assert.Equal(t, "Bearer tok-1", bearer)
	assert.Equal(t, "https://115.com/s/abc", url)
}

func TestEnqueue_ReusesToken(t *testing.T) {
	f := newFakeCMS()
	svc := newTestCMS(t, f)

	for i := 0; i < 3; i++ {
		_, err := svc.Enqueue(context.Background(), "https://115.com/s/abc")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.logins))
	assert.EqualValues(t, 3, atomic.LoadInt32(&f.enqueues))
}

func TestEnqueue_RefreshesOnceOn401(t *testing.T) {
	f := newFakeCMS()
	f.rejectShares = 1
	svc := newTestCMS(t, f)

	res, err := svc.Enqueue(context.Background(), "https://115.com/s/abc")
	require.NoError(t, err)
	assert.True(t, res.Success())

	assert.EqualValues(t, 2, atomic.LoadInt32(&f.logins))
	assert.EqualValues(t, 2, atomic.LoadInt32(&f.enqueues))
	bearer, _ := f.last()
	assert.Equal(t, "Bearer tok-2", bearer)
}

func TestEnqueue_SecondConsecutive401IsAuthError(t *testing.T) {
	f := newFakeCMS()
	f.rejectShares = 5
	svc := newTestCMS(t, f)

	_, err := svc.Enqueue(context.Background(), "https://115.com/s/abc")
	require.ErrorIs(t, err, ErrAuth)

	assert.EqualValues(t, 2, atomic.LoadInt32(&f.enqueues), "no third attempt")
	assert.EqualValues(t, 2, atomic.LoadInt32(&f.logins))
}

func TestEnqueue_NonSuccessCodeIsResultNotError(t *testing.T) {
	f := newFakeCMS()
	f.shareCode = 500
	svc := newTestCMS(t, f)

	res, err := svc.Enqueue(context.Background(), "https://115.com/s/abc")
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.Equal(t, 500, res.Code)
}

func TestEnqueue_EmptyURL(t *testing.T) {
	f := newFakeCMS()
	svc := newTestCMS(t, f)

	_, err := svc.Enqueue(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyURL)
	assert.EqualValues(t, 0, atomic.LoadInt32(&f.logins))
}

func TestLogin_Failures(t *testing.T) {
	t.Run("bad code", func(t *testing.T) {
		f := newFakeCMS()
		f.loginCode = 500
		svc := newTestCMS(t, f)

		err := svc.EnsureValidToken(context.Background())
		var le *LoginError
		require.True(t, errors.As(err, &le))
	})

	t.Run("missing token", func(t *testing.T) {
		f := newFakeCMS()
		f.loginToken = false
		svc := newTestCMS(t, f)

		err := svc.EnsureValidToken(context.Background())
		var le *LoginError
		require.True(t, errors.As(err, &le))
		assert.Contains(t, le.Error(), "missing token")
	})

	t.Run("wrong credentials", func(t *testing.T) {
		f := newFakeCMS()
		srv := httptest.NewServer(f)
		defer srv.Close()
		svc := NewCMSService(newTestHTTPClient(t), srv.URL, "admin", "wrong")

		_, err := svc.Enqueue(context.Background(), "https://115.com/s/abc")
		var le *LoginError
		require.True(t, errors.As(err, &le))
		assert.EqualValues(t, 0, atomic.LoadInt32(&f.enqueues))
	})
}

func TestEnsureValidToken_RefreshesAnHourBeforeExpiry(t *testing.T) {
	f := newFakeCMS()
	svc := newTestCMS(t, f)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.EnsureValidToken(context.Background()))
	require.NoError(t, svc.EnsureValidToken(context.Background()))
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.logins), "idempotent while fresh")
	assert.True(t, svc.HasValidToken())

	now = now.Add(23*time.Hour - time.Second)
	require.NoError(t, svc.EnsureValidToken(context.Background()))
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.logins))

	now = now.Add(time.Second)
	assert.False(t, svc.HasValidToken())
	require.NoError(t, svc.EnsureValidToken(context.Background()))
	assert.EqualValues(t, 2, atomic.LoadInt32(&f.logins), "stale at expiry minus one hour")
}

func TestEnsureValidToken_ConcurrentCallersShareLogin(t *testing.T) {
	f := newFakeCMS()
	svc := newTestCMS(t, f)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.EnsureValidToken(context.Background()))
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&f.logins), int32(2))
	assert.True(t, svc.HasValidToken())
}

func TestTransferTokenStale(t *testing.T) {
	var nilTok *transferToken
	now := time.Now()
	assert.True(t, nilTok.stale(now))

	tok := &transferToken{value: "x", issuedAt: now, expiresAt: now.Add(tokenLifetime)}
	assert.False(t, tok.stale(now))
	assert.False(t, tok.stale(now.Add(22*time.Hour)))
	assert.True(t, tok.stale(now.Add(23*time.Hour)))
}
