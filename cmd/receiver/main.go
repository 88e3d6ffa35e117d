// Gacha Receiver - 扭蛋配布接收与对账引擎
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rinchat/gacha-receiver-go/internal/config"
	"github.com/rinchat/gacha-receiver-go/internal/database"
	"github.com/rinchat/gacha-receiver-go/internal/scheduler"
	"github.com/rinchat/gacha-receiver-go/internal/service"
	"github.com/rinchat/gacha-receiver-go/internal/web"
	"github.com/rinchat/gacha-receiver-go/pkg/logger"
)

var (
	configPath = flag.String("config", "config.json", "配置文件路径")
	debug      = flag.Bool("debug", false, "调试模式")
)

func main() {
	flag.Parse()

	// 初始化日志
	logger.Init(*debug)
	logger.Info().Msg("🎰 Gacha Receiver 启动中...")

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}
	config.SetConfigPath(*configPath)
	logger.Info().Msg("✅ 配置加载完成")

	// 初始化数据库
	if err := database.Init(&cfg.Storage); err != nil {
		logger.Fatal().Err(err).Msg("初始化数据库失败")
	}
	defer database.Close()
	logger.Info().Msg("✅ 数据库打开成功")

	// 业务服务
	svc := service.NewReceiveService()

	// 初始化定时任务调度器
	sched := scheduler.New(cfg, svc)
	sched.Start()
	defer sched.Stop()
	logger.Info().Msg("✅ 定时任务调度器启动")

	// 初始化 Web API 服务
	webServer := web.New(&cfg.API, svc)
	go func() {
		if err := webServer.Start(); err != nil {
			logger.Error().Err(err).Msg("Web API 服务启动失败")
		}
	}()
	defer webServer.Stop()

	logger.Info().Msg("🚀 Gacha Receiver 启动成功!")
	logger.Info().Msg("按 Ctrl+C 停止...")

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("正在关闭服务...")
	logger.Info().Msg("👋 再见!")
}
