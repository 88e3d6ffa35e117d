// Package repository 压缩包数据仓库
package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rinchat/gacha-receiver-go/internal/database"
	"github.com/rinchat/gacha-receiver-go/internal/database/models"
	"github.com/rinchat/gacha-receiver-go/pkg/logger"
)

// ArchiveRepository 压缩包仓库
type ArchiveRepository struct {
	db *gorm.DB
}

// NewArchiveRepository 创建压缩包仓库
func NewArchiveRepository() *ArchiveRepository {
	return &ArchiveRepository{db: database.GetDB()}
}

// Save 保存压缩包（存在则覆盖）
func (r *ArchiveRepository) Save(historyID string, data []byte) error {
	if r.db == nil {
		logger.Warn().Msg("存储不可用，跳过压缩包保存")
		return nil
	}
	blob := models.ArchiveBlob{HistoryID: historyID, Data: data}
	return r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&blob).Error
}

// Get 读取压缩包，不存在时返回 nil
func (r *ArchiveRepository) Get(historyID string) ([]byte, error) {
	if r.db == nil {
		return nil, nil
	}
	var blob models.ArchiveBlob
	err := r.db.Where("history_id = ?", historyID).First(&blob).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return blob.Data, nil
}

// Delete 删除压缩包，并级联删除该履历的全部缩略图
func (r *ArchiveRepository) Delete(historyID string) error {
	if r.db == nil {
		return nil
	}
	return database.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("history_id = ?", historyID).Delete(&models.ArchiveBlob{}).Error; err != nil {
			return err
		}
		return tx.Where("history_id = ?", historyID).Delete(&models.Thumbnail{}).Error
	})
}

// Clear 清空压缩包表
func (r *ArchiveRepository) Clear() error {
	if r.db == nil {
		return nil
	}
	return r.db.Where("1 = 1").Delete(&models.ArchiveBlob{}).Error
}
