// Package archive 配布压缩包解析模块
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/rinchat/gacha-receiver-go/pkg/logger"
)

// 因传输丢失原始 Content-Type 的音频扩展名，按扩展名还原
var audioMimeByExt = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".aac":  "audio/aac",
}

var mimeByExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".avif": "image/avif",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".json": "application/json",
	".pdf":  "application/pdf",
}

// Read 解析一个配布压缩包
// 容器本身损坏时返回错误；单个媒体文件缺失只降级对应条目
func Read(blob []byte) (*Parsed, error) {
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, fmt.Errorf("打开压缩包失败: %w", err)
	}

	// 建立路径 -> 文件索引
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	parsed := &Parsed{
		Metadata: make(map[string]ItemMetadata),
	}

	// 元数据索引（缺失时返回空 map，不视为错误）
	if f, ok := files[MetaItemsPath]; ok {
		data, err := readEntry(f)
		if err != nil {
			return nil, fmt.Errorf("读取元数据索引失败: %w", err)
		}
		if err := json.Unmarshal(data, &parsed.Metadata); err != nil {
			return nil, fmt.Errorf("解析元数据索引失败: %w", err)
		}
	}

	// 图鉴快照与抽选信息：损坏时跳过，不影响整体解析
	if f, ok := files[MetaCatalogPath]; ok {
		var catalog Catalog
		if err := readJSONEntry(f, &catalog); err != nil {
			logger.Warn().Err(err).Msg("图鉴快照解析失败，跳过")
		} else {
			parsed.Catalog = &catalog
		}
	}
	if f, ok := files[MetaSelectionPath]; ok {
		var selection Selection
		if err := readJSONEntry(f, &selection); err != nil {
			logger.Warn().Err(err).Msg("抽选信息解析失败，跳过")
		} else {
			parsed.Selection = &selection
		}
	}

	if len(parsed.Metadata) > 0 {
		parsed.Media = extractByMetadata(parsed.Metadata, files)
	} else {
		parsed.Media = extractByScan(zr.File)
	}

	return parsed, nil
}

// extractByMetadata 依据元数据索引提取媒体
// 每条记录按声明路径解析文件；文件缺失时仍保留仅元数据的条目
func extractByMetadata(metadata map[string]ItemMetadata, files map[string]*zip.File) []MediaItem {
	assetIDs := make([]string, 0, len(metadata))
	for id := range metadata {
		assetIDs = append(assetIDs, id)
	}
	sort.Strings(assetIDs)

	media := make([]MediaItem, 0, len(assetIDs))
	for _, id := range assetIDs {
		meta := metadata[id]
		item := MediaItem{
			AssetID: id,
			Meta:    &meta,
		}

		if meta.Path != nil && *meta.Path != "" {
			item.Path = *meta.Path
			if f, ok := files[*meta.Path]; ok {
				data, err := readEntry(f)
				if err != nil {
					logger.Warn().Err(err).Str("asset", id).Str("path", *meta.Path).Msg("媒体文件读取失败，保留元数据")
				} else {
					item.Data = data
				}
			} else {
				logger.Debug().Str("asset", id).Str("path", *meta.Path).Msg("媒体文件不存在，保留元数据")
			}
		}

		item.Kind, item.MimeType = DetectKind(item.Path)
		media = append(media, item)
	}
	return media
}

// extractByScan 无元数据索引时回退扫描 items/ 下的全部文件
func extractByScan(entries []*zip.File) []MediaItem {
	var media []MediaItem
	for _, f := range entries {
		if f.FileInfo().IsDir() || skippable(f.Name) {
			continue
		}
		if !strings.HasPrefix(f.Name, ItemsDir) {
			continue
		}

		data, err := readEntry(f)
		if err != nil {
			logger.Warn().Err(err).Str("path", f.Name).Msg("媒体文件读取失败，跳过")
			continue
		}

		kind, mimeType := DetectKind(f.Name)
		media = append(media, MediaItem{
			AssetID:  f.Name,
			Path:     f.Name,
			Kind:     kind,
			MimeType: mimeType,
			Data:     data,
		})
	}
	return media
}

// skippable 判断是否为提取时应忽略的条目
// 沙箱垃圾目录、隐藏文件、顶层伴随 JSON 都不是媒体
func skippable(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") {
		return true
	}
	if strings.HasPrefix(path.Base(name), ".") {
		return true
	}
	if !strings.Contains(name, "/") && strings.HasSuffix(strings.ToLower(name), ".json") {
		return true
	}
	return false
}

// DetectKind 根据路径扩展名判定媒体类型与 MIME
func DetectKind(p string) (MediaKind, string) {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return KindOther, "application/octet-stream"
	}

	// 音频按扩展名还原 MIME
	if m, ok := audioMimeByExt[ext]; ok {
		return KindAudio, m
	}

	m, ok := mimeByExt[ext]
	if !ok {
		return KindOther, "application/octet-stream"
	}
	switch {
	case strings.HasPrefix(m, "image/"):
		return KindImage, m
	case strings.HasPrefix(m, "video/"):
		return KindVideo, m
	case strings.HasPrefix(m, "text/"):
		return KindText, m
	default:
		return KindOther, m
	}
}

// KindFromMime 根据 MIME 前缀归入基础类型
func KindFromMime(mimeType string) MediaKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return KindAudio
	case strings.HasPrefix(mimeType, "text/"):
		return KindText
	default:
		return KindOther
	}
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func readJSONEntry(f *zip.File, v interface{}) error {
	data, err := readEntry(f)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
