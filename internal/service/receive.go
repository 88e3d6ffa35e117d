// Package service 接收业务服务
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rinchat/gacha-receiver-go/internal/aggregate"
	"github.com/rinchat/gacha-receiver-go/internal/archive"
	"github.com/rinchat/gacha-receiver-go/internal/config"
	"github.com/rinchat/gacha-receiver-go/internal/database/models"
	"github.com/rinchat/gacha-receiver-go/internal/database/repository"
	"github.com/rinchat/gacha-receiver-go/internal/resolver"
	"github.com/rinchat/gacha-receiver-go/internal/thumbnail"
	"github.com/rinchat/gacha-receiver-go/pkg/logger"
	"github.com/rinchat/gacha-receiver-go/pkg/utils"
)

// aggregateCacheKey 聚合结果缓存键
const aggregateCacheKey = "inventory_aggregate"

// ReceiveService 接收业务服务
type ReceiveService struct {
	historyRepo *repository.HistoryRepository
	archiveRepo *repository.ArchiveRepository
	thumbRepo   *repository.ThumbnailRepository
	resolver    *resolver.Client
	cfg         *config.Config
}

// NewReceiveService 创建接收业务服务
func NewReceiveService() *ReceiveService {
	return &ReceiveService{
		historyRepo: repository.NewHistoryRepository(),
		archiveRepo: repository.NewArchiveRepository(),
		thumbRepo:   repository.NewThumbnailRepository(),
		resolver:    resolver.GetClient(),
		cfg:         config.Get(),
	}
}

// Receive 通过分享令牌接收一个配布压缩包
// 下载成功即创建履历；摘要字段尽力解析，失败时留待懒回填
func (s *ReceiveService) Receive(token string) (*models.HistoryEntry, error) {
	info, err := s.resolver.Resolve(token)
	if err != nil {
		return nil, err
	}

	blob, err := s.resolver.Download(info.DownloadURL)
	if err != nil {
		return nil, err
	}

	entry := &models.HistoryEntry{
		ID:           uuid.NewString(),
		ShareToken:   &token,
		DownloadedAt: time.Now(),
		ItemCount:    info.ItemCount,
		TotalBytes:   int64(len(blob)),
	}
	if info.Name != "" {
		entry.Name = &info.Name
	}
	if info.Purpose != "" {
		entry.Purpose = &info.Purpose
	}

	// 摘要尽力而为：解析失败不阻塞接收
	if parsed, err := archive.Read(blob); err != nil {
		logger.Warn().Err(err).Str("id", entry.ID).Msg("摘要解析失败，留待懒回填")
	} else {
		if entry.ItemCount == 0 {
			entry.ItemCount = len(parsed.Metadata)
		}
		if err := entry.SetPreview(buildPreview(parsed)); err != nil {
			logger.Warn().Err(err).Str("id", entry.ID).Msg("摘要序列化失败")
		}
	}

	if err := s.archiveRepo.Save(entry.ID, blob); err != nil {
		return nil, fmt.Errorf("保存压缩包失败: %w", err)
	}
	if err := s.historyRepo.Save(entry); err != nil {
		return nil, fmt.Errorf("保存履历失败: %w", err)
	}

	utils.CacheDelete(aggregateCacheKey)
	logger.Info().
		Str("id", entry.ID).
		Int("items", entry.ItemCount).
		Str("size", utils.FormatBytes(entry.TotalBytes)).
		Msg("接收完成")
	return entry, nil
}

// buildPreview 从解析结果构建履历摘要
func buildPreview(parsed *archive.Parsed) *models.EntryPreview {
	preview := &models.EntryPreview{
		OwnerName: parsed.OwnerName(),
		PullIDs:   parsed.PullIDs(),
	}

	// 摘要只用于列表展示，超长名称截断
	var gachaNames, itemNames []string
	for _, meta := range parsed.Metadata {
		gachaNames = append(gachaNames, utils.TruncateString(meta.GachaName, 40))
		itemNames = append(itemNames, utils.TruncateString(meta.ItemName, 40))
	}
	preview.GachaNames = utils.UniqueStrings(gachaNames)
	preview.ItemNames = utils.UniqueStrings(itemNames)

	if parsed.Selection != nil {
		for _, pull := range parsed.Selection.HistoryPulls {
			preview.PullCount += pull.PullCount
		}
	}
	if preview.PullCount == 0 {
		preview.PullCount = len(preview.PullIDs)
	}
	return preview
}

// BackfillPreviews 懒回填缺失摘要的履历
func (s *ReceiveService) BackfillPreviews() error {
	entries, err := s.historyRepo.List()
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.GetPreview() != nil {
			continue
		}
		blob, err := s.archiveRepo.Get(entry.ID)
		if err != nil || blob == nil {
			continue
		}
		parsed, err := archive.Read(blob)
		if err != nil {
			logger.Warn().Err(err).Str("id", entry.ID).Msg("懒回填解析失败，跳过")
			continue
		}
		if err := s.historyRepo.BackfillPreview(entry.ID, buildPreview(parsed)); err != nil {
			logger.Warn().Err(err).Str("id", entry.ID).Msg("摘要回填失败")
		}
	}
	return nil
}

// Aggregate 构建（或命中缓存的）跨包库存聚合
func (s *ReceiveService) Aggregate(ctx context.Context) (*aggregate.Result, error) {
	val, err := utils.CacheGetOrSet(aggregateCacheKey, 2*time.Minute, func() (interface{}, error) {
		return aggregate.Build(ctx, s.historyRepo, s.archiveRepo, aggregate.Options{
			Migrate: s.cfg.Migrate.Enabled,
		})
	})
	if err != nil {
		return nil, err
	}
	return val.(*aggregate.Result), nil
}

// AggregateFiltered 按数字类型过滤的聚合视图
func (s *ReceiveService) AggregateFiltered(ctx context.Context, digitalType string) (*aggregate.Result, error) {
	result, err := s.Aggregate(ctx)
	if err != nil {
		return nil, err
	}
	return aggregate.FilterByType(result, digitalType), nil
}

// History 履历列表
func (s *ReceiveService) History() ([]models.HistoryEntry, error) {
	return s.historyRepo.List()
}

// Delete 物理删除一条履历（级联压缩包与缩略图）
func (s *ReceiveService) Delete(id string) error {
	if err := s.historyRepo.Delete(id); err != nil {
		return err
	}
	utils.CacheDelete(aggregateCacheKey)
	return nil
}

// Thumbnails 为一条履历补齐并返回缩略图
func (s *ReceiveService) Thumbnails(ctx context.Context, entryID string) (*thumbnail.Result, error) {
	blob, err := s.archiveRepo.Get(entryID)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, fmt.Errorf("履历 %s 的压缩包不存在", entryID)
	}

	parsed, err := archive.Read(blob)
	if err != nil {
		return nil, err
	}

	return thumbnail.Ensure(ctx, entryID, parsed.Media, s.thumbRepo, thumbnail.Options{
		MaxSize:     s.cfg.Thumbnail.MaxSize,
		Concurrency: s.cfg.Thumbnail.Concurrency,
		Placeholder: s.cfg.Thumbnail.Placeholder,
	})
}

// Thumbnail 读取单条缩略图
func (s *ReceiveService) Thumbnail(entryID, assetID string) (*models.Thumbnail, error) {
	return s.thumbRepo.Get(entryID, assetID)
}

// WarmThumbnails 预热全部履历的缩略图缓存
func (s *ReceiveService) WarmThumbnails(ctx context.Context) {
	entries, err := s.historyRepo.List()
	if err != nil {
		logger.Warn().Err(err).Msg("缩略图预热读取履历失败")
		return
	}

	warmed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		result, err := s.Thumbnails(ctx, entry.ID)
		if err != nil {
			logger.Warn().Err(err).Str("id", entry.ID).Msg("缩略图预热失败，跳过该履历")
			continue
		}
		warmed += len(result.Generated)
	}
	if warmed > 0 {
		logger.Info().Int("generated", warmed).Msg("缩略图预热完成")
	}
}

// PurgeDeleted 清除软删除超过保留期的履历
func (s *ReceiveService) PurgeDeleted() {
	before := time.Now().AddDate(0, 0, -s.cfg.Storage.RetentionDays)
	purged, err := s.historyRepo.PurgeDeleted(before)
	if err != nil {
		logger.Warn().Err(err).Msg("清除过期履历失败")
		return
	}
	if purged > 0 {
		utils.CacheDelete(aggregateCacheKey)
		logger.Info().Int("purged", purged).Msg("过期履历清除完成")
	}
}
