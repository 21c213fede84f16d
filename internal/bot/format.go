package bot

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"nullbr-search-service/internal/model"
	"nullbr-search-service/internal/service"

	"github.com/samber/lo"
)

const (
	maxListed        = model.MaxCachedEntries
	maxResourceText  = 3500
	truncatedLength  = 3400
	maxOverviewRunes = 100
)

var separator = strings.Repeat("─", 15)

// listingOrder is the order availability badges and labels are shown in
var listingOrder = []model.ResourceType{
	model.Resource115,
	model.ResourceMagnet,
	model.ResourceVideo,
	model.ResourceEd2k,
}

func joinPriority(order []model.ResourceType) string {
	return strings.Join(lo.Map(order, func(t model.ResourceType, _ int) string { return string(t) }), " > ")
}

func titleWithYear(hit model.SearchHit) string {
	if hit.Year == "" {
		return hit.Title
	}
	return fmt.Sprintf("%s (%s)", hit.Title, hit.Year)
}

// availableTypes are the types the hit offers that are enabled in config
func (d *Dispatcher) availableTypes(hit model.SearchHit) []model.ResourceType {
	return lo.Filter(listingOrder, func(t model.ResourceType, _ int) bool {
		return hit.HasResource(t) && d.resolver.Enabled(t)
	})
}

func (d *Dispatcher) formatSearchList(keyword string, page *model.SearchPage) string {
	total := len(page.Items)
	if page.TotalResults > total {
		total = page.TotalResults
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🎬 找到 %d 个「%s」相关资源:\n\n", total, keyword)

	shown := page.Items
	if len(shown) > maxListed {
		shown = shown[:maxListed]
	}
	for i, hit := range shown {
		fmt.Fprintf(&b, "%d. %s\n", i+1, titleWithYear(hit))
		fmt.Fprintf(&b, "🎭 类型: %s\n", hit.MediaType.Label())
		if types := d.availableTypes(hit); len(types) > 0 {
			badges := lo.Map(types, func(t model.ResourceType, _ int) string { return t.Badge() })
			fmt.Fprintf(&b, "📂 资源: %s\n", strings.Join(badges, " | "))
		}
		b.WriteString(separator + "\n")
	}

	if rest := total - len(shown); rest > 0 {
		fmt.Fprintf(&b, "... 还有 %d 个结果\n\n", rest)
	}

	if d.searcher.HasAPIKey() {
		b.WriteString("📋 使用方法:\n")
		fmt.Fprintf(&b, "• 发送数字自动获取资源: 如 \"1\" (优先级: %s)\n", joinPriority(d.priority))
		b.WriteString("• 手动指定资源类型: 如 \"1.115\" \"2.magnet\" (可选)")
	} else {
		b.WriteString("💡 提示: 请配置API_KEY以获取下载链接")
	}
	return b.String()
}

func (d *Dispatcher) formatDetail(hit model.SearchHit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📺 选择的资源: %s\n", titleWithYear(hit))
	fmt.Fprintf(&b, "类型: %s\n", hit.MediaType.Label())
	fmt.Fprintf(&b, "TMDB ID: %s", hit.TMDBID)

	if hit.Overview != "" {
		overview := hit.Overview
		if utf8.RuneCountInString(overview) > maxOverviewRunes {
			overview = string([]rune(overview)[:maxOverviewRunes]) + "..."
		}
		fmt.Fprintf(&b, "\n简介: %s", overview)
	}

	b.WriteString("\n\n🔗 可用资源类型:")
	types := d.availableTypes(hit)
	if len(types) == 0 {
		b.WriteString("\n暂无可用资源类型")
		return b.String()
	}
	for _, t := range types {
		fmt.Fprintf(&b, "\n• %s", t.Label())
	}
	b.WriteString("\n\n⚠️ 注意: 需要配置API_KEY才能获取具体下载链接")
	return b.String()
}

func (d *Dispatcher) formatResourceList(title string, rt model.ResourceType, items []model.ResourceItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎯 「%s」的%s资源:\n\n", title, rt.Label())

	shown := items
	if len(shown) > maxListed {
		shown = shown[:maxListed]
	}
	for i, item := range shown {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item.Title)
		switch rt {
		case model.Resource115:
			fmt.Fprintf(&b, "   大小: %s\n", item.Size)
			fmt.Fprintf(&b, "   链接: %s\n\n", item.URL)
		case model.ResourceMagnet:
			fmt.Fprintf(&b, "   大小: %s\n", item.Size)
			fmt.Fprintf(&b, "   分辨率: %s\n", lo.Ternary(item.Resolution != "", item.Resolution, "未知"))
			fmt.Fprintf(&b, "   中文字幕: %s\n", lo.Ternary(item.ZhSub, "✅", "❌"))
			fmt.Fprintf(&b, "   磁力: %s\n\n", item.URL)
		default:
			if item.Size != "未知" {
				fmt.Fprintf(&b, "   大小: %s\n", item.Size)
			}
			fmt.Fprintf(&b, "   链接: %s\n\n", item.URL)
		}
	}

	text := b.String()
	if utf8.RuneCountInString(text) > maxResourceText {
		text = string([]rune(text)[:truncatedLength]) + "...\n\n(内容过长已截断)\n\n"
	}

	text += fmt.Sprintf("📊 共找到 %d 个资源", len(items))
	if rt == model.Resource115 && d.TransferEnabled() {
		text += "\n\n🚀 CloudSyncMedia转存:\n发送资源编号进行转存，如: 1、2、3..."
	}
	return text
}

func formatResourceItem(item model.ResourceItem) string {
	return fmt.Sprintf("📁 %s\n💾 大小: %s\n🔗 类型: %s\n📎 链接: %s", item.Title, item.Size, item.Type.Label(), item.URL)
}

// userMessage turns a failure into the sentence shown to the user
func userMessage(err error) string {
	var statusErr *service.StatusError
	var loginErr *service.LoginError
	switch {
	case errors.Is(err, service.ErrRateLimited):
		return "请求过于频繁，请稍后再试"
	case errors.Is(err, service.ErrInsufficientPermission):
		return "API_KEY权限不足，无法获取该资源"
	case errors.Is(err, service.ErrMissingCredential):
		return "获取下载链接需要配置API_KEY"
	case errors.Is(err, service.ErrMissingTMDBID):
		return "该资源缺少TMDB ID，无法获取下载链接"
	case errors.Is(err, service.ErrUnsupportedMedia):
		return "不支持的媒体类型"
	case errors.As(err, &loginErr):
		return "CMS登录失败，请检查用户名和密码"
	case errors.Is(err, service.ErrAuth):
		return "认证失败，请检查API配置"
	case errors.Is(err, service.ErrNetwork):
		return "网络连接失败，请稍后重试"
	case errors.Is(err, service.ErrMalformedResponse):
		return "服务返回了无法解析的数据"
	case errors.As(err, &statusErr):
		return fmt.Sprintf("服务返回异常状态 (%d)", statusErr.Code)
	}
	return "出现未知错误，请稍后重试"
}
