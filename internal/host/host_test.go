package host

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"nullbr-search-service/internal/model"
	"nullbr-search-service/pkg/httpclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	bodies map[string][]map[string]string
	status int
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(req.Body).Decode(&body)
	r.mu.Lock()
	r.bodies[req.URL.Path] = append(r.bodies[req.URL.Path], body)
	status := r.status
	r.mu.Unlock()
	w.WriteHeader(status)
}

func (r *recorder) get(path string) []map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodies[path]
}

func newTestHost(t *testing.T, status int, withSearch bool) (*WebhookHost, *recorder) {
	t.Helper()
	rec := &recorder{bodies: map[string][]map[string]string{}, status: status}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	client, err := httpclient.NewClient(httpclient.Options{
		DirectOnly:           true,
		DirectConnectTimeout: time.Second,
		DirectReadTimeout:    time.Second,
		MaxAttempts:          1,
		BackoffBase:          time.Millisecond,
	})
	require.NoError(t, err)

	searchURL := ""
	if withSearch {
		searchURL = srv.URL + "/search"
	}
	return NewWebhookHost(client, srv.URL+"/message", searchURL), rec
}

func TestWebhookHost_PostMessage(t *testing.T) {
	h, rec := newTestHost(t, http.StatusOK, false)

	require.NoError(t, h.PostMessage(context.Background(), "telegram", "t", "line1\n\n\n  line2", "u1"))

	msgs := rec.get("/message")
	require.Len(t, msgs, 1)
	assert.Equal(t, "telegram", msgs[0]["channel"])
	assert.Equal(t, "u1", msgs[0]["userid"])
	assert.Equal(t, "line1\n\n\n  line2", msgs[0]["text"], "non-WeChat text is untouched")
}

func TestWebhookHost_PostMessageWeChatFormatting(t *testing.T) {
	h, rec := newTestHost(t, http.StatusOK, false)

	require.NoError(t, h.PostMessage(context.Background(), "WeChat", "t", "line1\n\n\n  line2", "u1"))

	msgs := rec.get("/message")
	require.Len(t, msgs, 1)
	assert.Equal(t, "line1\n\nline2", msgs[0]["text"])
}

func TestWebhookHost_PostMessageErrorStatus(t *testing.T) {
	h, _ := newTestHost(t, http.StatusBadGateway, false)
	assert.Error(t, h.PostMessage(context.Background(), "telegram", "t", "x", "u1"))
}

func TestWebhookHost_FallbackSearch(t *testing.T) {
	h, rec := newTestHost(t, http.StatusAccepted, true)
	origin := model.InboundMessage{Text: "Nonexistent2099?", UserID: "u1", Channel: "telegram"}

	require.NoError(t, h.FallbackSearch(context.Background(), "Nonexistent2099", origin))

	reqs := rec.get("/search")
	require.Len(t, reqs, 1)
	assert.Equal(t, "Nonexistent2099", reqs[0]["keyword"])
	assert.Equal(t, "u1", reqs[0]["userid"])
	assert.Equal(t, model.FallbackSource, reqs[0]["source"])
	assert.Empty(t, rec.get("/message"))
}

func TestWebhookHost_FallbackWithoutSearchSendsSuggestion(t *testing.T) {
	h, rec := newTestHost(t, http.StatusOK, false)
	origin := model.InboundMessage{UserID: "u1", Channel: "telegram"}

	require.NoError(t, h.FallbackSearch(context.Background(), "Nonexistent2099", origin))

	msgs := rec.get("/message")
	require.Len(t, msgs, 1)
	assert.Equal(t, ManualSearchTitle, msgs[0]["title"])
	assert.Contains(t, msgs[0]["text"], "「Nonexistent2099」")
}

func TestWebhookHost_NoMessageURLLogsOnly(t *testing.T) {
	client, err := httpclient.NewClient(httpclient.Options{DirectOnly: true})
	require.NoError(t, err)
	h := NewWebhookHost(client, "", "")
	assert.NoError(t, h.PostMessage(context.Background(), "wechat", "t", "x", "u1"))
}

func TestConsoleHost(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleHost(&buf)

	require.NoError(t, c.PostMessage(context.Background(), "cli", "🎬 搜索结果", "【1】The Matrix (1999)", "u1"))
	require.NoError(t, c.FallbackSearch(context.Background(), "Nope", model.InboundMessage{UserID: "u1"}))

	out := buf.String()
	assert.Contains(t, out, "== 🎬 搜索结果 ==")
	assert.Contains(t, out, "【1】The Matrix (1999)")
	assert.Contains(t, out, "「Nope」未找到资源")
}
