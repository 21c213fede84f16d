package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"nullbr-search-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points ENV_FILE at a missing file so a developer .env never leaks in
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, k := range []string{
		"PORT", "REDIS_URL", "NULLBR_ENABLED", "NULLBR_APP_ID", "NULLBR_API_KEY",
		"NULLBR_PRIORITY", "NULLBR_TIMEOUT", "SESSION_TTL", "MAX_CONCURRENT_MESSAGES",
		"NULLBR_ENABLE_115", "NULLBR_ENABLE_MAGNET", "NULLBR_ENABLE_VIDEO", "NULLBR_ENABLE_ED2K",
		"CMS_URL", "CMS_USERNAME", "CMS_PASSWORD",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	t.Setenv("NULLBR_APP_ID", "app")
	t.Setenv("NULLBR_PRIORITY", "magnet, 115,ED2K,video")

	cfg := Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "https://api.nullbr.eu.org", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 32, cfg.MaxConcurrentMessages)
	assert.Empty(t, cfg.RedisURL)
	assert.False(t, cfg.TransferEnabled())
	assert.Equal(t, []model.ResourceType{model.ResourceMagnet, model.Resource115, model.ResourceEd2k, model.ResourceVideo}, cfg.Priority)
	for _, rt := range model.AllResourceTypes {
		assert.True(t, cfg.EnabledTypes[rt], rt)
	}
}

func TestLoad_Overrides(t *testing.T) {
	isolate(t)
	t.Setenv("NULLBR_APP_ID", "app")
	t.Setenv("NULLBR_PRIORITY", "115,magnet,video,ed2k")
	t.Setenv("NULLBR_TIMEOUT", "8")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("NULLBR_ENABLE_ED2K", "false")
	t.Setenv("CMS_URL", "http://cms:9527")
	t.Setenv("CMS_USERNAME", "admin")
	t.Setenv("CMS_PASSWORD", "pw")

	cfg := Load()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8*time.Second, cfg.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.False(t, cfg.EnabledTypes[model.ResourceEd2k])
	assert.True(t, cfg.TransferEnabled())
}

func TestLoad_EnvFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("NULLBR_APP_ID=from-file\nNULLBR_PRIORITY=video,ed2k,magnet,115\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	// godotenv does not override set variables, so clear them
	os.Unsetenv("NULLBR_APP_ID")
	os.Unsetenv("NULLBR_PRIORITY")
	t.Cleanup(func() {
		os.Unsetenv("NULLBR_APP_ID")
		os.Unsetenv("NULLBR_PRIORITY")
	})

	cfg := Load()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "from-file", cfg.AppID)
	assert.Equal(t, model.ResourceVideo, cfg.Priority[0])
}

func TestValidate_Errors(t *testing.T) {
	isolate(t)
	t.Setenv("NULLBR_TIMEOUT", "soon")
	t.Setenv("CMS_URL", "http://cms")

	err := Load().Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "NULLBR_PRIORITY")
	assert.Contains(t, msg, "NULLBR_APP_ID")
	assert.Contains(t, msg, "NULLBR_TIMEOUT")
	assert.Contains(t, msg, "CMS_USERNAME")
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{"115,magnet,video,ed2k", false},
		{" ED2K , video,magnet,115 ", false},
		{"", true},
		{"115,magnet,video", true},
		{"115,magnet,video,ed2k,115", true},
		{"115,magnet,video,bluray", true},
		{"115,115,video,ed2k", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			order, err := ParsePriority(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.ElementsMatch(t, model.AllResourceTypes, order)
		})
	}
}
