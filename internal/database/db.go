// Package database 数据库初始化
package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rinchat/gacha-receiver-go/internal/config"
	"github.com/rinchat/gacha-receiver-go/internal/database/models"
	"github.com/rinchat/gacha-receiver-go/pkg/logger"
)

var DB *gorm.DB

// thumbnailSchemaKey schema_meta 中缩略图版本的键
const thumbnailSchemaKey = "thumbnail_schema"

// Init 初始化数据库连接
func Init(cfg *config.StorageConfig) error {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建数据目录失败: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), gormConfig)
	if err != nil {
		return fmt.Errorf("打开数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("获取数据库连接池失败: %w", err)
	}

	// sqlite 单写者，限制连接数避免 SQLITE_BUSY
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := migrate(db); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}

	DB = db
	logger.Info().Str("path", cfg.DBPath).Msg("数据库打开成功")
	return nil
}

// migrate 迁移表结构
// 压缩包与履历表只做增量迁移；缩略图表版本不匹配时整表销毁重建
func migrate(db *gorm.DB) error {
	coreTables := []interface{}{
		&models.HistoryEntry{},
		&models.ArchiveBlob{},
		&models.SchemaMeta{},
	}
	if err := db.AutoMigrate(coreTables...); err != nil {
		return err
	}

	var meta models.SchemaMeta
	err := db.Where("key = ?", thumbnailSchemaKey).First(&meta).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		meta = models.SchemaMeta{Key: thumbnailSchemaKey}
	case err != nil:
		return err
	}

	if meta.Version != models.ThumbnailSchemaVersion && db.Migrator().HasTable(&models.Thumbnail{}) {
		// 缩略图是派生数据，丢弃后可全量重新生成
		logger.Warn().
			Int("from", meta.Version).
			Int("to", models.ThumbnailSchemaVersion).
			Msg("缩略图格式版本变更，销毁重建缩略图表")
		if err := db.Migrator().DropTable(&models.Thumbnail{}); err != nil {
			return err
		}
	}

	if err := db.AutoMigrate(&models.Thumbnail{}); err != nil {
		return err
	}

	meta.Version = models.ThumbnailSchemaVersion
	return db.Save(&meta).Error
}

// Available 持久化存储可用性探测
// 调用方依赖持久化前必须检查的唯一硬前置条件
func Available() bool {
	if DB == nil {
		return false
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return false
	}
	return sqlDB.Ping() == nil
}

// Transaction 事务封装
// 回调返回错误时显式回滚，调用方永远观察不到半套用的写入
func Transaction(fn func(tx *gorm.DB) error) error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}
	return DB.Transaction(fn)
}

// Close 关闭数据库连接
func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// GetDB 获取数据库实例
func GetDB() *gorm.DB {
	return DB
}

// SetDB 注入数据库实例（测试用）
func SetDB(db *gorm.DB) {
	DB = db
}
