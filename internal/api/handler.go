package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mcbridge/internal/logger"
	"mcbridge/internal/qq"
	"mcbridge/internal/whitelist"
)

// Dispatcher 命令分发器（webhook 的业务入口）
type Dispatcher interface {
	HandleEvent(ctx context.Context, e *qq.Event)
	StatusReport(ctx context.Context, qid int64) string
}

// Handler HTTP 处理器
type Handler struct {
	dispatcher Dispatcher
	whitelist  whitelist.Controller
}

// NewHandler 创建处理器
func NewHandler(dispatcher Dispatcher, wl whitelist.Controller) *Handler {
	return &Handler{dispatcher: dispatcher, whitelist: wl}
}

// HandleWebhook 处理网关上报
// 同步处理完事件后固定返回纯文本 "success"，实际回复走 /send_msg 出栈。
func (h *Handler) HandleWebhook(c *gin.Context) {
	var event qq.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		logger.FromContext(c.Request.Context(), "api").Warn("上报解析失败", "error", err)
		c.String(http.StatusOK, "success")
		return
	}

	h.dispatcher.HandleEvent(c.Request.Context(), &event)
	c.String(http.StatusOK, "success")
}

// DebugStatus 返回指定 QQ 号视角的服务器状态报告
func (h *Handler) DebugStatus(c *gin.Context) {
	qid, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid qq id")
		return
	}

	c.String(http.StatusOK, h.dispatcher.StatusReport(c.Request.Context(), qid))
}

// DebugAddWhitelist 手动触发一次白名单添加，表单字段 username
func (h *Handler) DebugAddWhitelist(c *gin.Context) {
	username := c.Request.FormValue("username")
	if username == "" {
		c.String(http.StatusOK, "You must specify a username!")
		return
	}

	if err := h.whitelist.Add(c.Request.Context(), username); err != nil {
		logger.FromContext(c.Request.Context(), "api").Warn("调试添加白名单失败", "username", username, "error", err)
		c.String(http.StatusOK, "failed: %v", err)
		return
	}
	c.String(http.StatusOK, "ok: %s added", username)
}
