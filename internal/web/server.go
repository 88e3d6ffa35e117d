// Package web Web API 服务
// 面向仪表盘 UI 的本地 JSON 接口，渲染逻辑全部在 UI 侧
package web

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/rinchat/gacha-receiver-go/internal/config"
	"github.com/rinchat/gacha-receiver-go/internal/database"
	"github.com/rinchat/gacha-receiver-go/internal/service"
	pkglogger "github.com/rinchat/gacha-receiver-go/pkg/logger"
)

// Server Web 服务器
type Server struct {
	app       *fiber.App
	cfg       *config.APIConfig
	svc       *service.ReceiveService
	startTime time.Time
}

// New 创建 Web 服务器
func New(cfg *config.APIConfig, svc *service.ReceiveService) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             256 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// 中间件
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowOrigins, ","),
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	server := &Server{
		app:       app,
		cfg:       cfg,
		svc:       svc,
		startTime: time.Now(),
	}

	// 注册路由
	server.registerRoutes()

	return server
}

// registerRoutes 注册路由
func (s *Server) registerRoutes() {
	// 健康检查
	s.app.Get("/health", s.healthCheck)
	s.app.Get("/", s.healthCheck)

	// API v1
	v1 := s.app.Group("/api/v1")

	// 库存聚合
	v1.Get("/inventory", s.getInventory)

	// 接收履历
	v1.Get("/history", s.getHistory)
	v1.Post("/receive", s.postReceive)
	v1.Delete("/history/:id", s.deleteHistory)

	// 缩略图
	v1.Get("/history/:id/thumbs", s.getThumbnails)
	v1.Get("/history/:id/thumbs/:asset", s.getThumbnail)
}

// Start 启动服务器
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		pkglogger.Info().Msg("【API服务】未启用，跳过...")
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	pkglogger.Info().Str("addr", addr).Msg("【API服务】启动中...")

	return s.app.Listen(addr)
}

// Stop 停止服务器
func (s *Server) Stop() error {
	return s.app.Shutdown()
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Storage   bool   `json:"storage"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
	Goroutine int    `json:"goroutine"`
}

// healthCheck 健康检查，storage 字段即持久化可用性探测结果
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "ok",
		Storage:   database.Available(),
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Goroutine: runtime.NumGoroutine(),
	})
}

// getInventory 库存聚合视图，?type= 按数字类型过滤
func (s *Server) getInventory(c *fiber.Ctx) error {
	result, err := s.svc.AggregateFiltered(c.Context(), c.Query("type"))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(result)
}

// getHistory 履历列表
func (s *Server) getHistory(c *fiber.Ctx) error {
	entries, err := s.svc.History()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"entries": entries,
		"total":   len(entries),
	})
}

// ReceiveRequest 接收请求体
type ReceiveRequest struct {
	Token string `json:"token"`
}

// postReceive 通过分享令牌接收配布压缩包
func (s *Server) postReceive(c *fiber.Ctx) error {
	var req ReceiveRequest
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return fiber.NewError(fiber.StatusBadRequest, "缺少分享令牌")
	}

	entry, err := s.svc.Receive(req.Token)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

// deleteHistory 删除履历（级联压缩包与缩略图）
func (s *Server) deleteHistory(c *fiber.Ctx) error {
	if err := s.svc.Delete(c.Params("id")); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// getThumbnails 补齐并返回一条履历的缩略图清单
func (s *Server) getThumbnails(c *fiber.Ctx) error {
	result, err := s.svc.Thumbnails(c.Context(), c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}

	assets := make([]string, 0, len(result.Thumbs))
	for assetID := range result.Thumbs {
		assets = append(assets, assetID)
	}
	sort.Strings(assets)
	return c.JSON(fiber.Map{
		"assets":    assets,
		"generated": result.Generated,
	})
}

// getThumbnail 读取单条缩略图数据
func (s *Server) getThumbnail(c *fiber.Ctx) error {
	thumb, err := s.svc.Thumbnail(c.Params("id"), c.Params("asset"))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if thumb == nil {
		return fiber.NewError(fiber.StatusNotFound, "缩略图不存在")
	}

	c.Set(fiber.HeaderContentType, thumb.MimeType)
	return c.Send(thumb.Data)
}
