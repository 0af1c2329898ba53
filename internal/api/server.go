// Package api 提供 webhook 与调试 HTTP 接口
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mcbridge/internal/logger"
)

// Server HTTP 服务器
type Server struct {
	handler    *Handler
	router     *gin.Engine
	httpServer *http.Server
	addr       string
}

// NewServer 创建服务器
func NewServer(handler *Handler, addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	// Request ID 中间件 - 为每个请求生成唯一 ID，便于日志追踪
	router.Use(func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()[:8] // 使用短 UUID
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		ctx := logger.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	// 上报入口：网关把消息事件 POST 到根路径
	router.POST("/", handler.HandleWebhook)

	// 调试接口
	router.GET("/debug/minecraft/status/:id", handler.DebugStatus)
	router.GET("/debug/minecraft/addWhitelist", handler.DebugAddWhitelist)

	// 健康检查（支持 GET 和 HEAD）
	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	return &Server{
		handler: handler,
		router:  router,
		addr:    addr,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 120 * time.Second, // 白名单操作会阻塞请求多秒，写超时需放宽到操作超时之上
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	logger.Info("api", "webhook 服务已启动",
		"addr", s.addr,
		"health", fmt.Sprintf("http://localhost%s/health", s.addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("启动HTTP服务失败: %w", err)
	}

	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("api", "正在关闭HTTP服务器")
	return s.httpServer.Shutdown(ctx)
}
