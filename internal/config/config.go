// Package config 配置管理模块
package config

import (
	"encoding/json"
	"os"
	"sync"
)

// Config 全局配置结构
type Config struct {
	AppName string `json:"app_name"`

	Storage   StorageConfig   `json:"storage"`
	Thumbnail ThumbnailConfig `json:"thumbnail"`
	Resolver  ResolverConfig  `json:"resolver"`
	API       APIConfig       `json:"api"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Migrate   MigrateConfig   `json:"migrate"`
}

// StorageConfig 本地存储配置
type StorageConfig struct {
	// DBPath sqlite 数据库文件路径
	DBPath string `json:"db_path"`
	// RetentionDays 软删除记录保留天数，超过后由定时任务物理清除
	RetentionDays int `json:"retention_days"`
}

// ThumbnailConfig 缩略图配置
type ThumbnailConfig struct {
	// MaxSize 缩略图最长边像素上限
	MaxSize int `json:"max_size"`
	// Concurrency 转码并发数
	Concurrency int `json:"concurrency"`
	// Placeholder 是否为非图片媒体生成占位预览图
	Placeholder bool `json:"placeholder"`
}

// ResolverConfig 分享令牌解析服务配置
type ResolverConfig struct {
	URL     string `json:"url"`
	APIKey  string `json:"api_key"`
	Timeout int    `json:"timeout"`
}

// APIConfig Web API 配置
type APIConfig struct {
	Enabled      bool     `json:"enabled"`
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	AllowOrigins []string `json:"allow_origins"`
}

// SchedulerConfig 定时任务配置
type SchedulerConfig struct {
	// WarmThumbnails 是否定时预热缩略图缓存
	WarmThumbnails bool `json:"warm_thumbnails"`
	// WarmIntervalHours 预热间隔（小时）
	WarmIntervalHours int `json:"warm_interval_hours"`
	// PurgeDeleted 是否定时清理过期的软删除记录
	PurgeDeleted bool `json:"purge_deleted"`
}

// MigrateConfig 数字类型迁移配置
type MigrateConfig struct {
	// Enabled 聚合时是否对旧格式压缩包执行类型推断并回写
	Enabled bool `json:"enabled"`
}

var (
	cfg     *Config
	cfgLock sync.RWMutex
)

// Load 加载配置文件
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	// 设置默认值
	config.setDefaults()

	cfgLock.Lock()
	cfg = &config
	cfgLock.Unlock()

	return &config, nil
}

// Get 获取全局配置（线程安全）
func Get() *Config {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg
}

// Save 保存配置到文件
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.AppName == "" {
		c.AppName = "gacha-receiver"
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "data/receiver.db"
	}
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = 30
	}
	if c.Thumbnail.MaxSize == 0 {
		c.Thumbnail.MaxSize = 320
	}
	if c.Thumbnail.Concurrency == 0 {
		c.Thumbnail.Concurrency = 2
	}
	if c.Resolver.Timeout == 0 {
		c.Resolver.Timeout = 30
	}
	if c.API.Port == 0 {
		c.API.Port = 8840
	}
	if len(c.API.AllowOrigins) == 0 {
		c.API.AllowOrigins = []string{"*"}
	}
	if c.Scheduler.WarmIntervalHours == 0 {
		c.Scheduler.WarmIntervalHours = 6
	}
}

// configPath 存储配置文件路径
var configPath string

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	return configPath
}

// SetConfigPath 设置配置文件路径
func SetConfigPath(path string) {
	configPath = path
}

// Reload 重新加载配置文件
func Reload() (*Config, error) {
	if configPath == "" {
		return nil, nil
	}
	return Load(configPath)
}

// Update 更新配置（热重载）
func Update(updateFn func(*Config)) error {
	cfgLock.Lock()
	defer cfgLock.Unlock()

	if cfg == nil {
		return nil
	}

	updateFn(cfg)

	return nil
}
