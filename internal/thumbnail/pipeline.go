// Package thumbnail 缩略图生成管线
// 图片解码/编码是整条链路的主要开销，
// 并发度固定上限，避免大体积压缩包把内存和 CPU 吃满
package thumbnail

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"sync"
	"sync/atomic"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/draw"

	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/rinchat/gacha-receiver-go/internal/archive"
	"github.com/rinchat/gacha-receiver-go/internal/database/models"
	"github.com/rinchat/gacha-receiver-go/pkg/imggen"
	"github.com/rinchat/gacha-receiver-go/pkg/logger"
)

// Store 缩略图持久化接口
type Store interface {
	GetAllForEntry(historyID string) (map[string]models.Thumbnail, error)
	SaveBatch(records []models.Thumbnail) error
}

// Options 生成选项
type Options struct {
	// MaxSize 最长边像素上限，只缩不放
	MaxSize int
	// Concurrency 转码并发数
	Concurrency int
	// Placeholder 为非图片媒体生成占位预览图
	Placeholder bool
}

// Result 一次生成的结果
type Result struct {
	// Thumbs asset id -> 缩略图数据，已缓存与新生成的合并视图
	Thumbs map[string][]byte
	// Generated 本次实际生成的 asset id（缓存预热统计用）
	Generated []string
}

const (
	defaultMaxSize     = 320
	defaultConcurrency = 2
)

// encoderChain 编码器链：优先现代压缩格式，编码器不可用时逐级回退
var encoderChain = []struct {
	mimeType string
	encode   func(w io.Writer, img image.Image) error
}{
	{"image/webp", func(w io.Writer, img image.Image) error {
		return nativewebp.Encode(w, img, nil)
	}},
	{"image/jpeg", func(w io.Writer, img image.Image) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 80})
	}},
	{"image/png", png.Encode},
}

// Ensure 为一条履历的媒体补齐缩略图
// 已缓存的 asset 直接跳过；单个 asset 失败只记录日志不影响其余；
// 新生成的记录最后一次性批量写入存储
func Ensure(ctx context.Context, entryID string, media []archive.MediaItem, store Store, opts Options) (*Result, error) {
	if opts.MaxSize <= 0 {
		opts.MaxSize = defaultMaxSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	cached, err := store.GetAllForEntry(entryID)
	if err != nil {
		logger.Warn().Err(err).Str("entry", entryID).Msg("读取缩略图缓存失败，视为空缓存")
		cached = make(map[string]models.Thumbnail)
	}

	result := &Result{Thumbs: make(map[string][]byte, len(cached))}
	for assetID, thumb := range cached {
		result.Thumbs[assetID] = thumb.Data
	}

	// 筛选需要生成的媒体
	var pending []archive.MediaItem
	for _, item := range media {
		if _, ok := cached[item.AssetID]; ok {
			continue
		}
		if item.Kind == archive.KindImage && len(item.Data) > 0 {
			pending = append(pending, item)
			continue
		}
		if opts.Placeholder && item.Kind != archive.KindImage {
			pending = append(pending, item)
		}
	}
	if len(pending) == 0 {
		return result, nil
	}

	// 固定大小的 worker 池从共享游标领取任务
	var (
		cursor  atomic.Int64
		mu      sync.Mutex
		wg      sync.WaitGroup
		records []models.Thumbnail
	)
	workers := opts.Concurrency
	if workers > len(pending) {
		workers = len(pending)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				idx := int(cursor.Add(1)) - 1
				if idx >= len(pending) {
					return
				}

				item := pending[idx]
				record, err := generate(entryID, item, opts)
				if err != nil {
					logger.Warn().Err(err).Str("entry", entryID).Str("asset", item.AssetID).Msg("缩略图生成失败，跳过")
					continue
				}

				mu.Lock()
				records = append(records, *record)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if err := store.SaveBatch(records); err != nil {
		// 写入失败不影响本次内存结果，下次调用会重新生成
		logger.Error().Err(err).Str("entry", entryID).Msg("缩略图批量写入失败")
	}

	for _, record := range records {
		result.Thumbs[record.AssetID] = record.Data
		result.Generated = append(result.Generated, record.AssetID)
	}
	return result, nil
}

// generate 生成单个缩略图记录
func generate(entryID string, item archive.MediaItem, opts Options) (*models.Thumbnail, error) {
	if item.Kind != archive.KindImage {
		return placeholder(entryID, item, opts.MaxSize)
	}

	src, _, err := image.Decode(bytes.NewReader(item.Data))
	if err != nil {
		return nil, err
	}

	dst := downscale(src, opts.MaxSize)

	data, mimeType, err := encode(dst)
	if err != nil {
		return nil, err
	}

	bounds := dst.Bounds()
	return &models.Thumbnail{
		HistoryID: entryID,
		AssetID:   item.AssetID,
		Data:      data,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		MimeType:  mimeType,
	}, nil
}

// downscale 等比缩小到最长边不超过 maxSize，源图更小则原样返回
func downscale(src image.Image, maxSize int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxSize {
		return src
	}

	factor := float64(maxSize) / float64(longest)
	dw := int(float64(w) * factor)
	dh := int(float64(h) * factor)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

// encode 按编码器链依次尝试，全部失败时返回最后一个错误
func encode(img image.Image) ([]byte, string, error) {
	var lastErr error
	for _, enc := range encoderChain {
		var buf bytes.Buffer
		if err := enc.encode(&buf, img); err != nil {
			logger.Debug().Err(err).Str("mime", enc.mimeType).Msg("编码器不可用，回退下一个")
			lastErr = err
			continue
		}
		return buf.Bytes(), enc.mimeType, nil
	}
	return nil, "", lastErr
}

// placeholder 为非图片媒体绘制占位预览图
func placeholder(entryID string, item archive.MediaItem, maxSize int) (*models.Thumbnail, error) {
	name := item.AssetID
	if item.Meta != nil && item.Meta.ItemName != "" {
		name = item.Meta.ItemName
	}

	data, err := imggen.GeneratePlaceholder(string(item.Kind), name, maxSize)
	if err != nil {
		return nil, err
	}
	return &models.Thumbnail{
		HistoryID: entryID,
		AssetID:   item.AssetID,
		Data:      data,
		Width:     maxSize,
		Height:    maxSize,
		MimeType:  "image/png",
	}, nil
}
