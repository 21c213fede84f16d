package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"nullbr-search-service/internal/model"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration for the service
type Config struct {
	Port        string
	GinMode     string
	LogLevel    string
	RedisURL    string // 为空时使用内存会话，统计关闭
	AdminAPIKey string

	Enabled      bool
	BaseURL      string
	AppID        string
	APIKey       string // 获取下载链接需要
	Proxy        string
	Timeout      time.Duration
	EnabledTypes map[model.ResourceType]bool
	Priority     []model.ResourceType

	CMSURL      string
	CMSUsername string
	CMSPassword string

	HostMessageURL string
	HostSearchURL  string

	SessionTTL            time.Duration
	MaxConcurrentMessages int

	errs []error
}

// Load reads configuration from environment variables. A .env file
// (or ENV_FILE) is loaded first when present; real env vars win.
func Load() *Config {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err == nil {
		log.Info().Str("file", envFile).Msg("📄 已加载环境变量文件")
	} else if os.Getenv("ENV_FILE") != "" {
		log.Warn().Err(err).Str("file", envFile).Msg("环境变量文件加载失败")
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		RedisURL:    os.Getenv("REDIS_URL"),
		AdminAPIKey: os.Getenv("ADMIN_API_KEY"),

		BaseURL: getEnv("NULLBR_BASE_URL", "https://api.nullbr.eu.org"),
		AppID:   os.Getenv("NULLBR_APP_ID"),
		APIKey:  os.Getenv("NULLBR_API_KEY"),
		Proxy:   os.Getenv("NULLBR_PROXY"),

		CMSURL:      os.Getenv("CMS_URL"),
		CMSUsername: os.Getenv("CMS_USERNAME"),
		CMSPassword: os.Getenv("CMS_PASSWORD"),

		HostMessageURL: os.Getenv("HOST_MESSAGE_URL"),
		HostSearchURL:  os.Getenv("HOST_SEARCH_URL"),
	}

	cfg.Enabled = cfg.getBool("NULLBR_ENABLED", true)
	cfg.Timeout = cfg.getDuration("NULLBR_TIMEOUT", 5*time.Second)
	cfg.SessionTTL = cfg.getDuration("SESSION_TTL", time.Hour)
	cfg.MaxConcurrentMessages = cfg.getInt("MAX_CONCURRENT_MESSAGES", 32)

	cfg.EnabledTypes = map[model.ResourceType]bool{
		model.Resource115:    cfg.getBool("NULLBR_ENABLE_115", true),
		model.ResourceMagnet: cfg.getBool("NULLBR_ENABLE_MAGNET", true),
		model.ResourceVideo:  cfg.getBool("NULLBR_ENABLE_VIDEO", true),
		model.ResourceEd2k:   cfg.getBool("NULLBR_ENABLE_ED2K", true),
	}

	priority, err := ParsePriority(os.Getenv("NULLBR_PRIORITY"))
	if err != nil {
		cfg.errs = append(cfg.errs, fmt.Errorf("NULLBR_PRIORITY: %w", err))
	}
	cfg.Priority = priority

	return cfg
}

// Validate reports configuration that would keep the service from working
func (c *Config) Validate() error {
	errs := append([]error(nil), c.errs...)

	if c.Enabled && c.AppID == "" {
		errs = append(errs, errors.New("NULLBR_APP_ID is required when NULLBR_ENABLED is true"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("NULLBR_TIMEOUT must be positive"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.MaxConcurrentMessages <= 0 {
		errs = append(errs, errors.New("MAX_CONCURRENT_MESSAGES must be positive"))
	}
	if c.CMSURL != "" && (c.CMSUsername == "" || c.CMSPassword == "") {
		errs = append(errs, errors.New("CMS_USERNAME and CMS_PASSWORD are required with CMS_URL"))
	}

	return errors.Join(errs...)
}

// TransferEnabled reports whether the CMS credentials are complete
func (c *Config) TransferEnabled() bool {
	return c.CMSURL != "" && c.CMSUsername != "" && c.CMSPassword != ""
}

// ParsePriority parses a comma separated priority order. It must name each
// resource type exactly once; there is no default order.
func ParsePriority(raw string) ([]model.ResourceType, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("priority order is required, e.g. 115,magnet,video,ed2k")
	}

	seen := make(map[model.ResourceType]bool)
	var order []model.ResourceType
	for _, part := range strings.Split(raw, ",") {
		rt, ok := model.ParseResourceType(part)
		if !ok {
			return nil, fmt.Errorf("unknown resource type %q", strings.TrimSpace(part))
		}
		if seen[rt] {
			return nil, fmt.Errorf("resource type %q listed twice", rt)
		}
		seen[rt] = true
		order = append(order, rt)
	}

	if len(order) != len(model.AllResourceTypes) {
		return nil, fmt.Errorf("priority must list all %d resource types, got %d", len(model.AllResourceTypes), len(order))
	}
	return order, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) getBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func (c *Config) getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

// getDuration accepts Go durations ("90s") or plain seconds ("90")
func (c *Config) getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}
