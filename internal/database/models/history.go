// Package models 数据模型 - 接收履历
package models

import (
	"encoding/json"
	"time"
)

// HistoryEntry 接收履历表
// 一条记录对应一个已下载的配布压缩包
type HistoryEntry struct {
	ID           string     `gorm:"column:id;primaryKey;size:64" json:"id"`
	ShareToken   *string    `gorm:"column:share_token;size:255" json:"share_token,omitempty"`
	Name         *string    `gorm:"column:name;size:255" json:"name,omitempty"`
	Purpose      *string    `gorm:"column:purpose;size:500" json:"purpose,omitempty"`
	DownloadedAt time.Time  `gorm:"column:downloaded_at;index" json:"downloaded_at"`
	ItemCount    int        `gorm:"column:item_count" json:"item_count"`
	TotalBytes   int64      `gorm:"column:total_bytes" json:"total_bytes"`
	DeletedAt    *time.Time `gorm:"column:deleted_at" json:"deleted_at,omitempty"`
	// Preview 反规范化摘要（JSON），避免每次列表渲染都重新解包
	Preview   string    `gorm:"column:preview;type:text" json:"preview"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (HistoryEntry) TableName() string {
	return "history_entries"
}

// EntryPreview 履历摘要
type EntryPreview struct {
	GachaNames []string `json:"gachaNames"`
	ItemNames  []string `json:"itemNames"`
	PullIDs    []string `json:"pullIds"`
	OwnerName  string   `json:"ownerName"`
	PullCount  int      `json:"pullCount"`
}

// SetPreview 序列化并写入摘要
func (e *HistoryEntry) SetPreview(p *EntryPreview) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	e.Preview = string(data)
	return nil
}

// GetPreview 读取摘要，格式损坏时返回 nil
func (e *HistoryEntry) GetPreview() *EntryPreview {
	if e.Preview == "" {
		return nil
	}
	var p EntryPreview
	if err := json.Unmarshal([]byte(e.Preview), &p); err != nil {
		return nil
	}
	return &p
}

// ArchiveBlob 压缩包原始数据表
// 键为履历 id，schema 升级时绝不销毁
type ArchiveBlob struct {
	HistoryID string    `gorm:"column:history_id;primaryKey;size:64" json:"history_id"`
	Data      []byte    `gorm:"column:data" json:"-"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (ArchiveBlob) TableName() string {
	return "archive_blobs"
}
