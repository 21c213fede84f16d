package host

import (
	"context"
	"fmt"
	"net/http"

	"nullbr-search-service/internal/model"
	"nullbr-search-service/pkg/httpclient"

	"github.com/rs/zerolog/log"
)

// WebhookHost talks to the embedding application over HTTP callbacks
type WebhookHost struct {
	client     *httpclient.Client
	messageURL string
	searchURL  string
}

// NewWebhookHost creates a new WebhookHost. An empty messageURL makes
// replies go to the log only; an empty searchURL turns the fallback into a
// manual search suggestion.
func NewWebhookHost(client *httpclient.Client, messageURL, searchURL string) *WebhookHost {
	return &WebhookHost{
		client:     client,
		messageURL: messageURL,
		searchURL:  searchURL,
	}
}

type outboundMessage struct {
	Channel string `json:"channel"`
	Title   string `json:"title"`
	Text    string `json:"text"`
	UserID  string `json:"userid"`
}

type fallbackRequest struct {
	Keyword string `json:"keyword"`
	Channel string `json:"channel"`
	UserID  string `json:"userid"`
	Source  string `json:"source"`
}

// PostMessage delivers a reply, reflowing it for WeChat channels
func (h *WebhookHost) PostMessage(ctx context.Context, channel, title, text, userID string) error {
	if IsWeChatChannel(channel) {
		text = FormatForWeChat(text)
	}

	if h.messageURL == "" {
		log.Info().Str("channel", channel).Str("userid", userID).Str("title", title).Msg(text)
		return nil
	}

	return h.post(ctx, h.messageURL, outboundMessage{
		Channel: channel,
		Title:   title,
		Text:    text,
		UserID:  userID,
	})
}

// FallbackSearch asks the host to run its own search for title. The
// request is tagged so the echo is not handled by the bot again.
func (h *WebhookHost) FallbackSearch(ctx context.Context, title string, origin model.InboundMessage) error {
	log.Info().Str("title", title).Str("userid", origin.UserID).Msg("🔄 启动宿主搜索")

	if h.searchURL == "" {
		return h.PostMessage(ctx, origin.Channel, ManualSearchTitle, ManualSearchSuggestion(title), origin.UserID)
	}

	err := h.post(ctx, h.searchURL, fallbackRequest{
		Keyword: title,
		Channel: origin.Channel,
		UserID:  origin.UserID,
		Source:  model.FallbackSource,
	})
	if err != nil {
		log.Warn().Err(err).Str("title", title).Msg("宿主搜索失败，发送手动搜索建议")
		return h.PostMessage(ctx, origin.Channel, ManualSearchTitle, ManualSearchSuggestion(title), origin.UserID)
	}
	return nil
}

func (h *WebhookHost) post(ctx context.Context, url string, body interface{}) error {
	resp, err := h.client.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    url,
		JSON:   body,
	})
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("host callback %s returned %d", url, resp.StatusCode)
	}
	return nil
}
