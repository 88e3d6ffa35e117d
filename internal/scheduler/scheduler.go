// Package scheduler 定时任务调度
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/rinchat/gacha-receiver-go/internal/config"
	"github.com/rinchat/gacha-receiver-go/internal/service"
	"github.com/rinchat/gacha-receiver-go/pkg/logger"
)

// Scheduler 定时任务调度器
type Scheduler struct {
	cron *gocron.Scheduler
	cfg  *config.Config
	svc  *service.ReceiveService
	log  zerolog.Logger
}

// New 创建调度器
func New(cfg *config.Config, svc *service.ReceiveService) *Scheduler {
	loc, _ := time.LoadLocation("Asia/Shanghai")
	s := gocron.NewScheduler(loc)
	s.SetMaxConcurrentJobs(2, gocron.RescheduleMode)

	return &Scheduler{
		cron: s,
		cfg:  cfg,
		svc:  svc,
		log:  logger.Component("scheduler"),
	}
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.log.Info().Msg("启动定时任务调度器")

	s.registerJobs()

	// 异步启动
	s.cron.StartAsync()
}

// registerJobs 注册定时任务
func (s *Scheduler) registerJobs() {
	if s.cfg.Scheduler.WarmThumbnails {
		_, err := s.cron.Every(s.cfg.Scheduler.WarmIntervalHours).Hours().Do(func() {
			s.log.Info().Msg("【定时任务】缩略图缓存预热")
			s.svc.WarmThumbnails(context.Background())
		})
		if err != nil {
			s.log.Warn().Err(err).Msg("注册缩略图预热任务失败")
		}
	}

	if s.cfg.Scheduler.PurgeDeleted {
		_, err := s.cron.Every(1).Day().At("04:30").Do(func() {
			s.log.Info().Msg("【定时任务】清除过期软删除履历")
			s.svc.PurgeDeleted()
		})
		if err != nil {
			s.log.Warn().Err(err).Msg("注册履历清除任务失败")
		}
	}

	// 摘要懒回填：启动后低频巡检
	_, err := s.cron.Every(12).Hours().Do(func() {
		if err := s.svc.BackfillPreviews(); err != nil {
			s.log.Warn().Err(err).Msg("摘要懒回填失败")
		}
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("注册摘要回填任务失败")
	}
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
