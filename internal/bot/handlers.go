package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nullbr-search-service/internal/model"
	"nullbr-search-service/internal/service"

	"github.com/rs/zerolog/log"
)

const (
	textExpired      = "搜索结果已过期，请重新搜索。"
	textNeedAPIKey   = "获取下载链接需要配置API_KEY，请在插件设置中添加。"
	textMissingTMDB  = "该资源缺少TMDB ID，无法获取下载链接。"
	textTransferOff  = "⚠️ CloudSyncMedia转存功能未启用，请在设置中配置。"
	textSessionError = "读取会话失败，请稍后重试。"
)

func (d *Dispatcher) handleSearch(ctx context.Context, msg model.InboundMessage, keyword string) error {
	page, err := d.searcher.Search(ctx, keyword, 1)
	if err != nil {
		d.stats.RecordSearch(ctx, keyword, false)
		d.reply(ctx, msg, "搜索错误", fmt.Sprintf("搜索「%s」时出现错误: %s", keyword, userMessage(err)))
		return err
	}

	if len(page.Items) == 0 {
		log.Info().Str("keyword", keyword).Msg("Nullbr未找到搜索结果，回退到宿主搜索")
		d.stats.RecordSearch(ctx, keyword, false)
		d.reply(ctx, msg, "切换搜索", fmt.Sprintf("Nullbr没有找到「%s」的资源，正在使用原始搜索...", keyword))
		d.fallback(ctx, keyword, msg)
		return nil
	}

	d.stats.RecordSearch(ctx, keyword, true)

	if err := d.sessions.PutSearch(ctx, msg.UserID, page.Items, keyword); err != nil {
		d.reply(ctx, msg, "错误", textSessionError)
		return err
	}
	d.transition(msg.UserID, StateListed)

	d.reply(ctx, msg, "Nullbr搜索结果", d.formatSearchList(keyword, page))
	return nil
}

// selectHit resolves a 1-based index against the live search listing,
// replying to the user when it cannot
func (d *Dispatcher) selectHit(ctx context.Context, msg model.InboundMessage, index int) (model.SearchHit, error) {
	entry, ok, err := d.sessions.GetSearch(ctx, msg.UserID)
	if err != nil {
		d.reply(ctx, msg, "错误", textSessionError)
		return model.SearchHit{}, err
	}
	if !ok {
		d.reply(ctx, msg, "提示", textExpired)
		return model.SearchHit{}, ErrCacheExpired
	}
	if index < 1 || index > len(entry.Hits) {
		d.reply(ctx, msg, "提示", fmt.Sprintf("请输入有效的编号 (1-%d)。", len(entry.Hits)))
		return model.SearchHit{}, &InvalidSelectionError{Index: index, Max: len(entry.Hits)}
	}
	return entry.Hits[index-1], nil
}

func (d *Dispatcher) handleSelection(ctx context.Context, msg model.InboundMessage, index int) error {
	hit, err := d.selectHit(ctx, msg, index)
	if err != nil {
		return err
	}

	if !d.searcher.HasAPIKey() {
		d.reply(ctx, msg, "资源详情", d.formatDetail(hit))
		d.transition(msg.UserID, StateDetailed)
		return nil
	}

	if hit.TMDBID == "" {
		d.reply(ctx, msg, "错误", textMissingTMDB)
		return service.ErrMissingTMDBID
	}

	d.reply(ctx, msg, "获取中", fmt.Sprintf("正在按优先级获取「%s」的资源...", hit.Title))

	res, err := d.resolver.ResolveByPriority(ctx, hit, d.priority)
	if err != nil {
		if !errors.Is(err, service.ErrNoResources) {
			log.Warn().Err(err).Str("title", hit.Title).Msg("按优先级获取资源失败")
		}
		d.reply(ctx, msg, "切换搜索", fmt.Sprintf("Nullbr没有找到「%s」的任何资源，正在使用原始搜索...", hit.Title))
		d.fallback(ctx, hit.Title, msg)
		return nil
	}

	d.reply(ctx, msg, "获取成功", fmt.Sprintf("✅ 已获取「%s」的%s资源", hit.Title, res.Type.Label()))
	return d.presentResources(ctx, msg, hit.Title, res.Type, res.Items)
}

func (d *Dispatcher) handleResourceType(ctx context.Context, msg model.InboundMessage, index int, rt model.ResourceType) error {
	if !d.searcher.HasAPIKey() {
		d.reply(ctx, msg, "配置错误", textNeedAPIKey)
		return service.ErrMissingCredential
	}

	hit, err := d.selectHit(ctx, msg, index)
	if err != nil {
		return err
	}

	if !d.resolver.Enabled(rt) {
		d.reply(ctx, msg, "提示", fmt.Sprintf("%s资源已在配置中禁用。", rt.Label()))
		return ErrTypeDisabled
	}
	if hit.TMDBID == "" {
		d.reply(ctx, msg, "错误", textMissingTMDB)
		return service.ErrMissingTMDBID
	}

	d.reply(ctx, msg, "获取中", fmt.Sprintf("正在获取「%s」的%s资源...", hit.Title, rt.Label()))

	bundle, err := d.searcher.FetchResources(ctx, hit.TMDBID, rt, hit.MediaType)
	if err != nil {
		d.reply(ctx, msg, "错误", fmt.Sprintf("获取资源链接时出现错误: %s", userMessage(err)))
		return err
	}

	items := bundle.Items()
	if len(items) == 0 {
		log.Info().Str("title", hit.Title).Str("type", string(rt)).Msg("Nullbr未找到资源，回退到宿主搜索")
		d.reply(ctx, msg, "切换搜索", fmt.Sprintf("Nullbr没有找到「%s」的%s资源，正在使用原始搜索...", hit.Title, rt.Label()))
		d.fallback(ctx, hit.Title, msg)
		return nil
	}

	return d.presentResources(ctx, msg, hit.Title, rt, items)
}

// presentResources caches items for transfer and sends the list. The list
// is built from the same items so reply numbers match cache indices.
func (d *Dispatcher) presentResources(ctx context.Context, msg model.InboundMessage, title string, rt model.ResourceType, items []model.ResourceItem) error {
	if err := d.sessions.PutResource(ctx, msg.UserID, items, title, rt); err != nil {
		d.reply(ctx, msg, "错误", textSessionError)
		return err
	}
	d.transition(msg.UserID, StateResolved)
	d.stats.RecordResources(ctx, len(items))

	d.reply(ctx, msg, strings.ToUpper(string(rt))+"资源", d.formatResourceList(title, rt, items))
	return nil
}

func (d *Dispatcher) handleTransfer(ctx context.Context, msg model.InboundMessage, entry *model.ResourceCacheEntry, index int) error {
	item := entry.Items[index-1]

	if d.transfer == nil {
		d.reply(ctx, msg, "功能未启用", formatResourceItem(item)+"\n\n"+textTransferOff)
		return ErrTransferDisabled
	}
	if item.Type != model.Resource115 {
		d.reply(ctx, msg, "无法转存", fmt.Sprintf("仅支持转存115网盘资源，当前资源类型为%s。\n\n%s", item.Type.Label(), formatResourceItem(item)))
		return ErrNotTransferable
	}

	log.Info().Str("title", item.Title).Str("url", item.URL).Msg("开始转存资源")
	d.reply(ctx, msg, "转存中", fmt.Sprintf("🚀 正在转存资源到CloudSyncMedia:\n\n📁 %s\n💾 大小: %s\n🔗 类型: %s\n\n请稍等...",
		item.Title, item.Size, item.Type.Label()))

	result, err := d.transfer.Enqueue(ctx, item.URL)
	if err != nil {
		d.stats.RecordTransfer(ctx, false)
		d.reply(ctx, msg, "转存错误", fmt.Sprintf("转存过程中发生错误: %s", userMessage(err)))
		return err
	}

	if !result.Success() {
		d.stats.RecordTransfer(ctx, false)
		errMsg := result.Message
		if errMsg == "" {
			errMsg = "转存失败"
		}
		d.reply(ctx, msg, "转存失败", fmt.Sprintf("❌ 资源转存失败:\n\n📁 %s\n🚫 错误: %s\n\n请检查CMS配置或稍后重试。", item.Title, errMsg))
		return nil
	}

	d.stats.RecordTransfer(ctx, true)
	d.transition(msg.UserID, StateTransferred)

	var b strings.Builder
	fmt.Fprintf(&b, "✅ 资源转存成功!\n\n📁 %s\n💾 大小: %s\n", item.Title, item.Size)
	fmt.Fprintf(&b, "🚀 %s\n", firstNonEmpty(result.Message, "已添加到转存队列"))
	if result.TaskID != "" {
		fmt.Fprintf(&b, "🆔 任务ID: %s\n", result.TaskID)
	}
	if result.Status != "" {
		fmt.Fprintf(&b, "📌 状态: %s\n", result.Status)
	}
	b.WriteString("\n请到CloudSyncMedia查看转存进度。")
	d.reply(ctx, msg, "转存成功", b.String())
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
