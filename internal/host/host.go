// Package host holds the collaborators provided by the chat application
// that embeds the bot: message delivery and its native search.
package host

import (
	"context"
	"fmt"

	"nullbr-search-service/internal/model"
)

// Messenger delivers a reply to a user on a channel
type Messenger interface {
	PostMessage(ctx context.Context, channel, title, text, userID string) error
}

// FallbackSearcher hands a keyword to the host's own search when nullbr
// has nothing. Callers do not wait for the outcome.
type FallbackSearcher interface {
	FallbackSearch(ctx context.Context, title string, origin model.InboundMessage) error
}

// Host is both collaborators
type Host interface {
	Messenger
	FallbackSearcher
}

// ManualSearchTitle is the title of the manual search suggestion
const ManualSearchTitle = "搜索建议"

// ManualSearchSuggestion is sent when no host search is available
func ManualSearchSuggestion(title string) string {
	return fmt.Sprintf("📋 「%s」未找到资源，建议:\n\n"+
		"🔍 在宿主应用的搜索界面搜索\n"+
		"⚙️ 检查资源站点配置\n"+
		"🔄 尝试其他关键词\n"+
		"📱 使用其他搜索渠道", title)
}
