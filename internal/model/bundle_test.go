package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceBundleItems_DropsRecordsWithoutURL(t *testing.T) {
	tests := []struct {
		name    string
		bundle  ResourceBundle
		wantURL []string
	}{
		{
			name: "115 uses share_link",
			bundle: ResourceBundle{Type: Resource115, Records: []ResourceRecord{
				{Title: "a", ShareLink: "https://115.com/s/a", Size: "1GB"},
				{Title: "b", URL: "https://not-a-share-link"},
				{Title: "c"},
			}},
			wantURL: []string{"https://115.com/s/a"},
		},
		{
			name: "magnet uses magnet",
			bundle: ResourceBundle{Type: ResourceMagnet, Records: []ResourceRecord{
				{Name: "x", Magnet: "magnet:?xt=urn:btih:1"},
				{Name: "y", ShareLink: "https://115.com/s/y"},
			}},
			wantURL: []string{"magnet:?xt=urn:btih:1"},
		},
		{
			name: "video falls back to link",
			bundle: ResourceBundle{Type: ResourceVideo, Records: []ResourceRecord{
				{Name: "v1", URL: "https://v/1.m3u8"},
				{Name: "v2", Link: "https://v/2.m3u8"},
				{Name: "v3"},
			}},
			wantURL: []string{"https://v/1.m3u8", "https://v/2.m3u8"},
		},
		{
			name:    "empty bundle",
			bundle:  ResourceBundle{Type: ResourceEd2k},
			wantURL: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := tt.bundle.Items()
			require.LessOrEqual(t, len(items), len(tt.bundle.Records))

			var urls []string
			for _, it := range items {
				assert.Equal(t, tt.bundle.Type, it.Type)
				assert.NotEmpty(t, it.URL)
				urls = append(urls, it.URL)
			}
			assert.Equal(t, tt.wantURL, urls)
		})
	}
}

func TestResourceBundleItems_DisplayDefaults(t *testing.T) {
	b := ResourceBundle{Type: ResourceEd2k, Records: []ResourceRecord{
		{URL: "ed2k://|file|a|1|h|/"},
		{Title: "only title", URL: "ed2k://|file|b|1|h|/", Size: "700MB"},
	}}

	items := b.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "未知", items[0].Title)
	assert.Equal(t, "未知", items[0].Size)
	assert.Equal(t, "only title", items[1].Title)
	assert.Equal(t, "700MB", items[1].Size)
}

func TestParseResourceType(t *testing.T) {
	for _, rt := range AllResourceTypes {
		got, ok := ParseResourceType(string(rt))
		assert.True(t, ok)
		assert.Equal(t, rt, got)
	}

	got, ok := ParseResourceType(" Magnet ")
	assert.True(t, ok)
	assert.Equal(t, ResourceMagnet, got)

	_, ok = ParseResourceType("bt")
	assert.False(t, ok)
}
