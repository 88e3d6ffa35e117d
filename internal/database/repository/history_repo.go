// Package repository 接收履历数据仓库
package repository

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rinchat/gacha-receiver-go/internal/database"
	"github.com/rinchat/gacha-receiver-go/internal/database/models"
	"github.com/rinchat/gacha-receiver-go/pkg/logger"
)

// HistoryRepository 接收履历仓库
type HistoryRepository struct {
	db *gorm.DB
}

// NewHistoryRepository 创建接收履历仓库
func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{db: database.GetDB()}
}

// Save 保存履历（存在则覆盖）
func (r *HistoryRepository) Save(entry *models.HistoryEntry) error {
	if r.db == nil {
		logger.Warn().Msg("存储不可用，跳过履历保存")
		return nil
	}
	return r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(entry).Error
}

// Get 读取单条履历，不存在时返回 nil
func (r *HistoryRepository) Get(id string) (*models.HistoryEntry, error) {
	if r.db == nil {
		return nil, nil
	}
	var entry models.HistoryEntry
	err := r.db.Where("id = ?", id).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// List 读取全部未删除履历，按下载时间倒序
// 损坏或旧格式的记录直接丢弃，不中断整个读取
func (r *HistoryRepository) List() ([]models.HistoryEntry, error) {
	if r.db == nil {
		return nil, nil
	}
	var rows []models.HistoryEntry
	err := r.db.Where("deleted_at IS NULL").Order("downloaded_at DESC").Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]models.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		if !sane(&row) {
			logger.Warn().Str("id", row.ID).Msg("履历记录格式损坏，丢弃")
			continue
		}
		entries = append(entries, row)
	}
	return entries, nil
}

// sane 校验履历记录是否可用
func sane(entry *models.HistoryEntry) bool {
	if entry.ID == "" || entry.DownloadedAt.IsZero() {
		return false
	}
	if entry.Preview != "" {
		var p models.EntryPreview
		if err := json.Unmarshal([]byte(entry.Preview), &p); err != nil {
			return false
		}
	}
	return true
}

// BackfillPreview 懒解析后回填摘要字段
func (r *HistoryRepository) BackfillPreview(id string, preview *models.EntryPreview) error {
	if r.db == nil {
		return nil
	}
	data, err := json.Marshal(preview)
	if err != nil {
		return err
	}
	return r.db.Model(&models.HistoryEntry{}).Where("id = ?", id).
		Update("preview", string(data)).Error
}

// SoftDelete 软删除履历
func (r *HistoryRepository) SoftDelete(id string) error {
	if r.db == nil {
		return nil
	}
	now := time.Now()
	return r.db.Model(&models.HistoryEntry{}).Where("id = ?", id).
		Update("deleted_at", now).Error
}

// Delete 物理删除履历，级联删除压缩包与缩略图
func (r *HistoryRepository) Delete(id string) error {
	if r.db == nil {
		return nil
	}
	return database.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("history_id = ?", id).Delete(&models.Thumbnail{}).Error; err != nil {
			return err
		}
		if err := tx.Where("history_id = ?", id).Delete(&models.ArchiveBlob{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.HistoryEntry{}).Error
	})
}

// PurgeDeleted 物理清除软删除超过保留期的履历
func (r *HistoryRepository) PurgeDeleted(before time.Time) (int, error) {
	if r.db == nil {
		return 0, nil
	}
	var expired []models.HistoryEntry
	err := r.db.Where("deleted_at IS NOT NULL AND deleted_at < ?", before).Find(&expired).Error
	if err != nil {
		return 0, err
	}
	for _, entry := range expired {
		if err := r.Delete(entry.ID); err != nil {
			logger.Warn().Err(err).Str("id", entry.ID).Msg("清除过期履历失败")
		}
	}
	return len(expired), nil
}

// Clear 清空履历表
func (r *HistoryRepository) Clear() error {
	if r.db == nil {
		return nil
	}
	return r.db.Where("1 = 1").Delete(&models.HistoryEntry{}).Error
}
