// Package resolver 分享令牌解析客户端
// 把分享令牌换成可下载的压缩包地址，并负责拉取压缩包本体
package resolver

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rinchat/gacha-receiver-go/internal/config"
)

// Client 解析服务客户端
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *resty.Client
}

var (
	instance *Client
	once     sync.Once
)

// GetClient 获取解析客户端单例
func GetClient() *Client {
	once.Do(func() {
		cfg := config.Get()
		instance = NewClient(cfg.Resolver.URL, cfg.Resolver.APIKey, time.Duration(cfg.Resolver.Timeout)*time.Second)
	})
	return instance
}

// NewClient 创建解析客户端
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(1 * time.Second)
	client.SetHeaders(map[string]string{
		"Accept":     "application/json",
		"User-Agent": "GachaReceiver/1.0 Go",
	})
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: client,
	}
}

// ResolveInfo 令牌解析结果
type ResolveInfo struct {
	DownloadURL string `json:"downloadUrl"`
	Name        string `json:"name"`
	Purpose     string `json:"purpose"`
	ItemCount   int    `json:"itemCount"`
	TotalBytes  int64  `json:"totalBytes"`
}

// Resolve 把分享令牌解析为下载信息
func (c *Client) Resolve(token string) (*ResolveInfo, error) {
	var info ResolveInfo
	resp, err := c.httpClient.R().
		SetResult(&info).
		Get(fmt.Sprintf("%s/api/receive/%s", c.baseURL, token))
	if err != nil {
		return nil, fmt.Errorf("解析分享令牌失败: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("解析分享令牌失败: HTTP %d", resp.StatusCode())
	}
	if info.DownloadURL == "" {
		return nil, fmt.Errorf("解析结果缺少下载地址")
	}
	return &info, nil
}

// Download 下载压缩包本体
func (c *Client) Download(url string) ([]byte, error) {
	resp, err := c.httpClient.R().Get(url)
	if err != nil {
		return nil, fmt.Errorf("下载压缩包失败: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("下载压缩包失败: HTTP %d", resp.StatusCode())
	}
	return resp.Body(), nil
}
