package handler

import (
	"context"
	"net/http"

	"nullbr-search-service/internal/bot"
	"nullbr-search-service/internal/model"
	"nullbr-search-service/internal/repository"

	"github.com/gin-gonic/gin"
)

// ServiceStatus is the static part of GET /api/v1/status
type ServiceStatus struct {
	Enabled          bool                 `json:"enabled"`
	ProxyEnabled     bool                 `json:"proxy_enabled"`
	APIKeyConfigured bool                 `json:"api_key_configured"`
	TransferEnabled  bool                 `json:"transfer_enabled"`
	Priority         []model.ResourceType `json:"priority"`
	EnabledTypes     []model.ResourceType `json:"enabled_types"`
	SessionBackend   string               `json:"session_backend"`
	MetricsEnabled   bool                 `json:"metrics_enabled"`
}

// TokenStatus reports whether the transfer system token is usable
type TokenStatus interface {
	HasValidToken() bool
}

// StateReader derives a user's conversation state
type StateReader interface {
	State(ctx context.Context, user string) bot.State
}

// AdminHandler handles admin-related endpoints
type AdminHandler struct {
	status   ServiceStatus
	tokens   TokenStatus
	metrics  *repository.Metrics
	sessions repository.SessionStore
	states   StateReader
}

// NewAdminHandler creates a new AdminHandler. tokens and metrics may be nil.
func NewAdminHandler(status ServiceStatus, tokens TokenStatus, metrics *repository.Metrics, sessions repository.SessionStore, states StateReader) *AdminHandler {
	return &AdminHandler{
		status:   status,
		tokens:   tokens,
		metrics:  metrics,
		sessions: sessions,
		states:   states,
	}
}

// GetStatus returns service status
// GET /api/v1/status
func (h *AdminHandler) GetStatus(c *gin.Context) {
	tokenValid := false
	if h.tokens != nil {
		tokenValid = h.tokens.HasValidToken()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"service":         h.status,
		"cms_token_valid": tokenValid,
	})
}

func (h *AdminHandler) metricsDisabled(c *gin.Context) bool {
	if h.metrics != nil {
		return false
	}
	c.JSON(http.StatusServiceUnavailable, model.APIResponse{
		Code:  http.StatusServiceUnavailable,
		Error: "统计未启用：未配置 REDIS_URL",
	})
	return true
}

// GetStats returns API and bot statistics
// GET /api/v1/stats
func (h *AdminHandler) GetStats(c *gin.Context) {
	if h.metricsDisabled(c) {
		return
	}

	stats, err := h.metrics.GetOverallStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.APIResponse{Code: 500, Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.APIResponse{Code: 200, Data: stats})
}

// GetEndpointStats returns stats for a specific endpoint
// GET /api/v1/analytics/endpoint?path=/api/v1/message
func (h *AdminHandler) GetEndpointStats(c *gin.Context) {
	if h.metricsDisabled(c) {
		return
	}

	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, model.APIResponse{Code: 400, Error: "path parameter required"})
		return
	}

	stats, err := h.metrics.GetAPIStats(c.Request.Context(), path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.APIResponse{Code: 500, Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.APIResponse{Code: 200, Data: stats})
}

// ResetStats resets all statistics
// DELETE /api/v1/stats
func (h *AdminHandler) ResetStats(c *gin.Context) {
	if h.metricsDisabled(c) {
		return
	}

	if err := h.metrics.ResetMetrics(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, model.APIResponse{Code: 500, Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.APIResponse{Code: 200, Message: "所有统计数据已重置"})
}

type sessionView struct {
	UserID   string                    `json:"userid"`
	State    bot.State                 `json:"state"`
	Search   *model.SearchCacheEntry   `json:"search,omitempty"`
	Resource *model.ResourceCacheEntry `json:"resource,omitempty"`
}

// GetSession returns the live listings of a user
// GET /api/v1/sessions/:userid
func (h *AdminHandler) GetSession(c *gin.Context) {
	ctx := c.Request.Context()
	user := c.Param("userid")

	search, _, err := h.sessions.GetSearch(ctx, user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.APIResponse{Code: 500, Error: err.Error()})
		return
	}
	resource, _, err := h.sessions.GetResource(ctx, user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.APIResponse{Code: 500, Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.APIResponse{Code: 200, Data: sessionView{
		UserID:   user,
		State:    h.states.State(ctx, user),
		Search:   search,
		Resource: resource,
	}})
}

// DeleteSession drops the listings of a user
// DELETE /api/v1/sessions/:userid
func (h *AdminHandler) DeleteSession(c *gin.Context) {
	user := c.Param("userid")

	if err := h.sessions.Clear(c.Request.Context(), user); err != nil {
		c.JSON(http.StatusInternalServerError, model.APIResponse{Code: 500, Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.APIResponse{Code: 200, Message: "会话已清除"})
}
