// Package database 数据库迁移测试
package database

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rinchat/gacha-receiver-go/internal/database/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("打开内存数据库失败: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取连接池失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestMigrate_初次建表(t *testing.T) {
	db := openTestDB(t)

	if err := migrate(db); err != nil {
		t.Fatalf("migrate() 失败: %v", err)
	}

	for _, table := range []string{"history_entries", "archive_blobs", "thumbnails", "schema_meta"} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("表 %s 应该存在", table)
		}
	}

	var meta models.SchemaMeta
	if err := db.Where("key = ?", thumbnailSchemaKey).First(&meta).Error; err != nil {
		t.Fatalf("读取版本记录失败: %v", err)
	}
	if meta.Version != models.ThumbnailSchemaVersion {
		t.Errorf("版本应该是 %d，实际是 %d", models.ThumbnailSchemaVersion, meta.Version)
	}
}

func TestMigrate_版本变更销毁缩略图表(t *testing.T) {
	db := openTestDB(t)
	if err := migrate(db); err != nil {
		t.Fatalf("第一次 migrate() 失败: %v", err)
	}

	// 压缩包与缩略图各插一条
	blob := models.ArchiveBlob{HistoryID: "h1", Data: []byte{1, 2, 3}}
	if err := db.Create(&blob).Error; err != nil {
		t.Fatalf("插入压缩包失败: %v", err)
	}
	thumb := models.Thumbnail{HistoryID: "h1", AssetID: "a1", Data: []byte{9}, Width: 8, Height: 8, MimeType: "image/webp"}
	if err := db.Create(&thumb).Error; err != nil {
		t.Fatalf("插入缩略图失败: %v", err)
	}

	// 模拟旧版本数据库
	if err := db.Model(&models.SchemaMeta{}).Where("key = ?", thumbnailSchemaKey).
		Update("version", models.ThumbnailSchemaVersion-1).Error; err != nil {
		t.Fatalf("回写旧版本失败: %v", err)
	}

	if err := migrate(db); err != nil {
		t.Fatalf("第二次 migrate() 失败: %v", err)
	}

	// 缩略图表被清空重建，压缩包表毫发无损
	var thumbCount int64
	db.Model(&models.Thumbnail{}).Count(&thumbCount)
	if thumbCount != 0 {
		t.Errorf("缩略图应该被销毁，实际剩 %d 条", thumbCount)
	}

	var blobCount int64
	db.Model(&models.ArchiveBlob{}).Count(&blobCount)
	if blobCount != 1 {
		t.Errorf("压缩包应该保留，实际剩 %d 条", blobCount)
	}
}

func TestMigrate_版本一致不动缩略图(t *testing.T) {
	db := openTestDB(t)
	if err := migrate(db); err != nil {
		t.Fatalf("第一次 migrate() 失败: %v", err)
	}

	thumb := models.Thumbnail{HistoryID: "h1", AssetID: "a1", Data: []byte{9}}
	if err := db.Create(&thumb).Error; err != nil {
		t.Fatalf("插入缩略图失败: %v", err)
	}

	if err := migrate(db); err != nil {
		t.Fatalf("第二次 migrate() 失败: %v", err)
	}

	var count int64
	db.Model(&models.Thumbnail{}).Count(&count)
	if count != 1 {
		t.Errorf("版本一致时缩略图应该保留，实际剩 %d 条", count)
	}
}

func TestAvailable(t *testing.T) {
	orig := DB
	defer SetDB(orig)

	SetDB(nil)
	if Available() {
		t.Error("未初始化时 Available() 应该返回 false")
	}

	SetDB(openTestDB(t))
	if !Available() {
		t.Error("初始化后 Available() 应该返回 true")
	}
}

func TestTransaction_回滚(t *testing.T) {
	orig := DB
	defer SetDB(orig)

	db := openTestDB(t)
	if err := migrate(db); err != nil {
		t.Fatalf("migrate() 失败: %v", err)
	}
	SetDB(db)

	wantErr := gorm.ErrInvalidData
	err := Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.ArchiveBlob{HistoryID: "h1", Data: []byte{1}, UpdatedAt: time.Now()}).Error; err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("Transaction() 应该透传回调错误，实际是 %v", err)
	}

	var count int64
	db.Model(&models.ArchiveBlob{}).Count(&count)
	if count != 0 {
		t.Errorf("回调出错时写入应该回滚，实际剩 %d 条", count)
	}
}
