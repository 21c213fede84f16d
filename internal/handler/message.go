package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"nullbr-search-service/internal/bot"
	"nullbr-search-service/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Dispatcher handles one chat message
type Dispatcher interface {
	Handle(ctx context.Context, msg model.InboundMessage) bot.Outcome
}

// MessageHandler receives chat messages from the host
type MessageHandler struct {
	dispatcher Dispatcher
	sem        *semaphore.Weighted
	wg         sync.WaitGroup
}

// NewMessageHandler creates a new MessageHandler. At most maxConcurrent
// messages are processed at once.
func NewMessageHandler(dispatcher Dispatcher, maxConcurrent int) *MessageHandler {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &MessageHandler{
		dispatcher: dispatcher,
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

type messageResult struct {
	MessageID string     `json:"message_id"`
	Intent    bot.Intent `json:"intent"`
	State     bot.State  `json:"state"`
	Error     string     `json:"error,omitempty"`
}

// PostMessage accepts a message and handles it in the background.
// With ?sync=1 it is handled inline and the outcome is returned.
// POST /api/v1/message
func (h *MessageHandler) PostMessage(c *gin.Context) {
	var msg model.InboundMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, model.APIResponse{
			Code:  http.StatusBadRequest,
			Error: "无效的请求体: " + err.Error(),
		})
		return
	}
	if strings.TrimSpace(msg.Text) == "" || msg.UserID == "" {
		c.JSON(http.StatusBadRequest, model.APIResponse{
			Code:  http.StatusBadRequest,
			Error: "text 和 userid 不能为空",
		})
		return
	}

	id := uuid.NewString()

	if c.Query("sync") == "1" {
		if err := h.sem.Acquire(c.Request.Context(), 1); err != nil {
			c.JSON(http.StatusServiceUnavailable, model.APIResponse{Code: http.StatusServiceUnavailable, Error: err.Error()})
			return
		}
		defer h.sem.Release(1)

		out := h.dispatcher.Handle(c.Request.Context(), msg)
		res := messageResult{MessageID: id, Intent: out.Intent, State: out.State}
		if out.Err != nil {
			res.Error = out.Err.Error()
		}
		c.JSON(http.StatusOK, model.APIResponse{Code: http.StatusOK, Data: res})
		return
	}

	if !h.sem.TryAcquire(1) {
		log.Warn().Str("userid", msg.UserID).Msg("消息处理繁忙，拒绝新消息")
		c.JSON(http.StatusTooManyRequests, model.APIResponse{
			Code:  http.StatusTooManyRequests,
			Error: "服务繁忙，请稍后再试",
		})
		return
	}

	// the dispatch outlives the request; it keeps the values but not the cancellation
	ctx := context.WithoutCancel(c.Request.Context())
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("message_id", id).Str("userid", msg.UserID).Msg("消息处理异常")
			}
		}()

		out := h.dispatcher.Handle(ctx, msg)
		log.Debug().Str("message_id", id).Str("intent", out.Intent.String()).Str("state", out.State.String()).Msg("消息处理完成")
	}()

	c.JSON(http.StatusAccepted, model.APIResponse{
		Code: http.StatusAccepted,
		Data: gin.H{"message_id": id},
	})
}

// Wait blocks until background dispatches finish or ctx is done
func (h *MessageHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
