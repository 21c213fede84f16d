package model

import "github.com/samber/lo"

// Items converts the raw records into actionable resources, preserving order.
// Records without a URL for the bundle's type are dropped.
func (b *ResourceBundle) Items() []ResourceItem {
	if b == nil {
		return nil
	}
	return lo.FilterMap(b.Records, func(r ResourceRecord, _ int) (ResourceItem, bool) {
		url := r.URLFor(b.Type)
		if url == "" {
			return ResourceItem{}, false
		}
		size := r.Size
		if size == "" {
			size = "未知"
		}
		return ResourceItem{
			URL:        url,
			Title:      r.DisplayTitle(b.Type),
			Size:       size,
			Type:       b.Type,
			Resolution: r.Resolution,
			ZhSub:      r.ZhSub,
		}, true
	})
}

// Empty reports whether the bundle has no actionable resource
func (b *ResourceBundle) Empty() bool {
	return len(b.Items()) == 0
}
