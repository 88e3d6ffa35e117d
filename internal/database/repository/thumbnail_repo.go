// Package repository 缩略图数据仓库
package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rinchat/gacha-receiver-go/internal/database"
	"github.com/rinchat/gacha-receiver-go/internal/database/models"
	"github.com/rinchat/gacha-receiver-go/pkg/logger"
)

// ThumbnailRepository 缩略图仓库
type ThumbnailRepository struct {
	db *gorm.DB
}

// NewThumbnailRepository 创建缩略图仓库
func NewThumbnailRepository() *ThumbnailRepository {
	return &ThumbnailRepository{db: database.GetDB()}
}

// SaveBatch 批量写入缩略图（单事务）
func (r *ThumbnailRepository) SaveBatch(records []models.Thumbnail) error {
	if len(records) == 0 {
		return nil
	}
	if r.db == nil {
		logger.Warn().Msg("存储不可用，跳过缩略图保存")
		return nil
	}
	return database.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(records, 50).Error
	})
}

// Get 读取单条缩略图，不存在时返回 nil
func (r *ThumbnailRepository) Get(historyID, assetID string) (*models.Thumbnail, error) {
	if r.db == nil {
		return nil, nil
	}
	var thumb models.Thumbnail
	err := r.db.Where("history_id = ? AND asset_id = ?", historyID, assetID).First(&thumb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &thumb, nil
}

// GetAllForEntry 读取一条履历的全部缩略图
// 返回 asset id -> 记录的 map，便于 O(1) 查找
func (r *ThumbnailRepository) GetAllForEntry(historyID string) (map[string]models.Thumbnail, error) {
	result := make(map[string]models.Thumbnail)
	if r.db == nil {
		return result, nil
	}
	var thumbs []models.Thumbnail
	if err := r.db.Where("history_id = ?", historyID).Find(&thumbs).Error; err != nil {
		return result, err
	}
	for _, t := range thumbs {
		result[t.AssetID] = t
	}
	return result, nil
}

// DeleteForEntry 删除一条履历的全部缩略图
func (r *ThumbnailRepository) DeleteForEntry(historyID string) error {
	if r.db == nil {
		return nil
	}
	return r.db.Where("history_id = ?", historyID).Delete(&models.Thumbnail{}).Error
}

// Clear 清空缩略图表
func (r *ThumbnailRepository) Clear() error {
	if r.db == nil {
		return nil
	}
	return r.db.Where("1 = 1").Delete(&models.Thumbnail{}).Error
}
