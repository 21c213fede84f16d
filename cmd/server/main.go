package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nullbr-search-service/internal/bot"
	"nullbr-search-service/internal/config"
	"nullbr-search-service/internal/handler"
	"nullbr-search-service/internal/host"
	"nullbr-search-service/internal/middleware"
	"nullbr-search-service/internal/model"
	"nullbr-search-service/internal/repository"
	"nullbr-search-service/internal/service"
	"nullbr-search-service/pkg/httpclient"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	// Load configuration
	cfg := config.Load()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("配置无效")
	}
	log.Info().
		Str("port", cfg.Port).
		Str("mode", cfg.GinMode).
		Bool("enabled", cfg.Enabled).
		Interface("priority", cfg.Priority).
		Msg("🚀 Starting nullbr-search-service")

	// Set Gin mode
	gin.SetMode(cfg.GinMode)

	// Search API goes through the proxy first, then direct
	opts := httpclient.DefaultOptions()
	opts.ProxyURL = cfg.Proxy
	opts.PreferredTimeout = cfg.Timeout
	nullbrClient, err := httpclient.NewClient(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create HTTP client")
	}
	if nullbrClient.HasProxy() {
		log.Info().Str("proxy", nullbrClient.ProxyURL()).Msg("🔀 Proxy enabled")
	}

	// CMS and host live on the local network
	directOpts := httpclient.DefaultOptions()
	directOpts.DirectOnly = true
	directClient, err := httpclient.NewClient(directOpts)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create HTTP client")
	}

	// Initialize services
	nullbrService := service.NewNullbrService(nullbrClient, cfg.BaseURL, cfg.AppID, cfg.APIKey)
	if !nullbrService.HasAPIKey() {
		log.Warn().Msg("⚠️  未配置 NULLBR_API_KEY，只能搜索，无法获取下载链接")
	}
	resolver := service.NewResolver(nullbrService, cfg.EnabledTypes)

	var cms *service.CMSService
	if cfg.TransferEnabled() {
		cms = service.NewCMSService(directClient, cfg.CMSURL, cfg.CMSUsername, cfg.CMSPassword)
		warmCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := cms.EnsureValidToken(warmCtx); err != nil {
			log.Warn().Err(err).Msg("CMS 登录失败，将在转存时重试")
		} else {
			log.Info().Msg("📦 CMS 转存已启用")
		}
		cancel()
	}

	// Session store and metrics
	var (
		sessions repository.SessionStore
		metrics  *repository.Metrics
		backend  = "memory"
	)
	if cfg.RedisURL != "" {
		store, err := repository.NewRedisSessionStore(cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer store.Close()
		sessions = store
		backend = "redis"

		metrics = repository.NewMetricsFromClient(store.Client())
		metrics.RecordServerStart(context.Background())
		log.Info().Msg("📊 Metrics enabled")
	} else {
		sessions = repository.NewMemorySessionStore(cfg.SessionTTL)
		log.Warn().Msg("⚠️  未配置 REDIS_URL，使用内存会话，统计已关闭")
	}

	// Dispatcher
	chatHost := host.NewWebhookHost(directClient, cfg.HostMessageURL, cfg.HostSearchURL)
	var botOpts []bot.Option
	if !cfg.Enabled {
		botOpts = append(botOpts, bot.WithDisabled())
	}
	if metrics != nil {
		botOpts = append(botOpts, bot.WithStats(metrics))
	}
	if cms != nil {
		botOpts = append(botOpts, bot.WithTransferer(cms))
	}
	dispatcher := bot.NewDispatcher(nullbrService, resolver, cfg.Priority, sessions, chatHost, botOpts...)

	// Initialize handlers
	status := handler.ServiceStatus{
		Enabled:          cfg.Enabled,
		ProxyEnabled:     nullbrClient.HasProxy(),
		APIKeyConfigured: nullbrService.HasAPIKey(),
		TransferEnabled:  dispatcher.TransferEnabled(),
		Priority:         dispatcher.Priority(),
		EnabledTypes:     enabledTypes(resolver),
		SessionBackend:   backend,
		MetricsEnabled:   metrics != nil,
	}
	var tokens handler.TokenStatus
	if cms != nil {
		tokens = cms
	}
	messageHandler := handler.NewMessageHandler(dispatcher, cfg.MaxConcurrentMessages)
	adminHandler := handler.NewAdminHandler(status, tokens, metrics, sessions, dispatcher)

	// Setup router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logging())
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.CORS())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// API routes - 公开访问
	api := r.Group("/api/v1")
	{
		api.GET("/status", adminHandler.GetStatus)
		api.POST("/message", messageHandler.PostMessage)
	}

	// Admin routes - 需要认证（如果配置了 ADMIN_API_KEY）
	admin := r.Group("/api/v1")
	admin.Use(middleware.AdminAuth(cfg.AdminAPIKey))
	{
		admin.GET("/stats", adminHandler.GetStats)
		admin.DELETE("/stats", adminHandler.ResetStats)
		admin.GET("/analytics/endpoint", adminHandler.GetEndpointStats)

		// 会话管理
		admin.GET("/sessions/:userid", adminHandler.GetSession)
		admin.DELETE("/sessions/:userid", adminHandler.DeleteSession)
	}

	// 日志输出认证状态
	if cfg.AdminAPIKey != "" {
		log.Info().Msg("🔐 Admin API 认证已启用")
	} else {
		log.Warn().Msg("⚠️  Admin API 未配置认证，管理接口对外开放")
	}

	// Create HTTP server with graceful shutdown support
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("🌐 Server listening")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("🛑 Shutting down server...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := messageHandler.Wait(ctx); err != nil {
		log.Error().Err(err).Msg("消息处理未在期限内完成")
	}

	log.Info().Msg("👋 Server exited")
}

func enabledTypes(r *service.Resolver) []model.ResourceType {
	return lo.Filter(model.AllResourceTypes, func(rt model.ResourceType, _ int) bool {
		return r.Enabled(rt)
	})
}
