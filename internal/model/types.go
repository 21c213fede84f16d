package model

import (
	"strings"
	"time"
)

// ================== 通用响应 ==================

// APIResponse is the standard API response format
type APIResponse struct {
	Code    int         `json:"code"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ================== 媒体与资源类型 ==================

// MediaType is the kind of title reported by the search API
type MediaType string

const (
	MediaMovie  MediaType = "movie"
	MediaSeries MediaType = "tv"
)

// Label returns the display name used in replies
func (m MediaType) Label() string {
	switch m {
	case MediaMovie:
		return "电影"
	case MediaSeries:
		return "剧集"
	case "":
		return "未知"
	default:
		return string(m)
	}
}

// Valid reports whether resources can be fetched for this media type
func (m MediaType) Valid() bool {
	return m == MediaMovie || m == MediaSeries
}

// ResourceType is one of the supported download/stream mechanisms
type ResourceType string

const (
	Resource115    ResourceType = "115"
	ResourceMagnet ResourceType = "magnet"
	ResourceEd2k   ResourceType = "ed2k"
	ResourceVideo  ResourceType = "video"
)

// AllResourceTypes lists every resource type in declaration order.
// It is not a priority order.
var AllResourceTypes = []ResourceType{Resource115, ResourceMagnet, ResourceEd2k, ResourceVideo}

// ParseResourceType converts user or config input into a ResourceType
func ParseResourceType(s string) (ResourceType, bool) {
	switch ResourceType(strings.ToLower(strings.TrimSpace(s))) {
	case Resource115:
		return Resource115, true
	case ResourceMagnet:
		return ResourceMagnet, true
	case ResourceEd2k:
		return ResourceEd2k, true
	case ResourceVideo:
		return ResourceVideo, true
	}
	return "", false
}

// Label returns the human readable name of the resource type
func (r ResourceType) Label() string {
	switch r {
	case Resource115:
		return "115网盘"
	case ResourceMagnet:
		return "磁力链接"
	case ResourceEd2k:
		return "ED2K链接"
	case ResourceVideo:
		return "在线观看"
	}
	return string(r)
}

// Badge returns the compact marker shown in search listings
func (r ResourceType) Badge() string {
	switch r {
	case Resource115:
		return "💾115"
	case ResourceMagnet:
		return "🧲磁力"
	case ResourceEd2k:
		return "📎ed2k"
	case ResourceVideo:
		return "🎬在线"
	}
	return string(r)
}

// FlagKey is the availability field name in search results, e.g. "115-flg"
func (r ResourceType) FlagKey() string {
	return string(r) + "-flg"
}

// ================== 搜索结果 ==================

// SearchHit is one candidate title returned by a search query
type SearchHit struct {
	Title     string                `json:"title"`
	MediaType MediaType             `json:"media_type"`
	TMDBID    string                `json:"tmdbid,omitempty"`
	Year      string                `json:"year,omitempty"`
	Overview  string                `json:"overview,omitempty"`
	Resources map[ResourceType]bool `json:"resources,omitempty"`
}

// HasResource reports whether the API flagged the resource type as available
func (h SearchHit) HasResource(t ResourceType) bool {
	return h.Resources[t]
}

// SearchPage is one page of search results. An empty page is a valid result.
type SearchPage struct {
	Items        []SearchHit `json:"items"`
	Page         int         `json:"page"`
	TotalPages   int         `json:"total_pages,omitempty"`
	TotalResults int         `json:"total_results,omitempty"`
}

// ================== 资源链接 ==================

// ResourceRecord is a raw entry of a resource lookup. Which URL field is
// meaningful depends on the resource type.
type ResourceRecord struct {
	Title      string `json:"title,omitempty"`
	Name       string `json:"name,omitempty"`
	Size       string `json:"size,omitempty"`
	ShareLink  string `json:"share_link,omitempty"`
	Magnet     string `json:"magnet,omitempty"`
	URL        string `json:"url,omitempty"`
	Link       string `json:"link,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	ZhSub      bool   `json:"zh_sub,omitempty"`
}

// URLFor returns the actionable link of the record for the given type
func (r ResourceRecord) URLFor(t ResourceType) string {
	switch t {
	case Resource115:
		return r.ShareLink
	case ResourceMagnet:
		return r.Magnet
	case ResourceVideo, ResourceEd2k:
		if r.URL != "" {
			return r.URL
		}
		return r.Link
	}
	return ""
}

// DisplayTitle picks the best available name for the record
func (r ResourceRecord) DisplayTitle(t ResourceType) string {
	primary, secondary := r.Title, r.Name
	if t != Resource115 {
		primary, secondary = r.Name, r.Title
	}
	if primary != "" {
		return primary
	}
	if secondary != "" {
		return secondary
	}
	return "未知"
}

// ResourceBundle is the result of a resource lookup for one type.
// "Not found" is represented by an empty bundle.
type ResourceBundle struct {
	Type    ResourceType     `json:"type"`
	Records []ResourceRecord `json:"records"`
}

// ResourceItem is one concrete, actionable resource
type ResourceItem struct {
	URL        string       `json:"url"`
	Title      string       `json:"title"`
	Size       string       `json:"size"`
	Type       ResourceType `json:"type"`
	Resolution string       `json:"resolution,omitempty"`
	ZhSub      bool         `json:"zh_sub,omitempty"`
}

// ================== 会话缓存 ==================

// MaxCachedEntries bounds the number of hits/items kept per user session
const MaxCachedEntries = 10

// SearchCacheEntry holds the last search listing of a user
type SearchCacheEntry struct {
	Hits      []SearchHit `json:"hits"`
	Keyword   string      `json:"keyword"`
	CreatedAt time.Time   `json:"created_at"`
}

// ResourceCacheEntry holds the last resolved resources of a user
type ResourceCacheEntry struct {
	Items     []ResourceItem `json:"items"`
	Title     string         `json:"title"`
	Type      ResourceType   `json:"type"`
	CreatedAt time.Time      `json:"created_at"`
}

// Live reports whether an entry created at createdAt is still usable
func Live(createdAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(createdAt) < ttl
}

// ================== 转存 ==================

// TransferResult is the reply of the transfer system for an enqueue call
type TransferResult struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	TaskID  string `json:"task_id,omitempty"`
	Status  string `json:"status,omitempty"`
}

// Success reports whether the transfer system accepted the request
func (r *TransferResult) Success() bool {
	return r != nil && r.Code == 200
}

// ================== 消息 ==================

// FallbackSource marks messages re-emitted by our own fallback search
const FallbackSource = "nullbr_fallback"

// InboundMessage is a chat message delivered by the host
type InboundMessage struct {
	Text    string `json:"text"`
	UserID  string `json:"userid"`
	Channel string `json:"channel"`
	Source  string `json:"source,omitempty"`
}

// Synthetic reports whether the message was generated by the fallback path
func (m InboundMessage) Synthetic() bool {
	return m.Source == FallbackSource
}
