// Package models 数据模型 - 缩略图缓存
package models

import "time"

// ThumbnailSchemaVersion 缩略图记录格式版本
// 升级时整表销毁重建（缩略图是派生数据，可随时重新生成）
const ThumbnailSchemaVersion = 2

// Thumbnail 缩略图表，复合主键 (履历 id, asset id)
type Thumbnail struct {
	HistoryID string    `gorm:"column:history_id;primaryKey;size:64" json:"history_id"`
	AssetID   string    `gorm:"column:asset_id;primaryKey;size:255" json:"asset_id"`
	Data      []byte    `gorm:"column:data" json:"-"`
	Width     int       `gorm:"column:width" json:"width"`
	Height    int       `gorm:"column:height" json:"height"`
	MimeType  string    `gorm:"column:mime_type;size:64" json:"mime_type"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (Thumbnail) TableName() string {
	return "thumbnails"
}

// SchemaMeta 存储各表的 schema 版本号
type SchemaMeta struct {
	Key     string `gorm:"column:key;primaryKey;size:64"`
	Version int    `gorm:"column:version"`
}

// TableName 表名
func (SchemaMeta) TableName() string {
	return "schema_meta"
}
