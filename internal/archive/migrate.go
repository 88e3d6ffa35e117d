// Package archive 数字类型迁移
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
)

// SubtypeClassifier 可插拔的细分类型解析器
// 返回空字符串表示沿用基础类型
type SubtypeClassifier func(meta ItemMetadata, media *MediaItem, base string) string

// ClassifyOptions 分类选项
type ClassifyOptions struct {
	// Migrate false 时元数据原样透传，不做任何推断
	Migrate bool
	Subtype SubtypeClassifier
}

// ClassifyResult 分类结果
type ClassifyResult struct {
	// Metadata asset id -> 元数据（迁移时为推断后的副本）
	Metadata map[string]ItemMetadata
	// Patched 仅重写元数据索引后的新压缩包，无变更时为 nil
	// 由调用方负责持久化覆盖原包
	Patched []byte
	// Changed 本次被修改的 asset id
	Changed []string
}

// Classify 对压缩包内容执行数字类型分类
// 早于类型分级规范的旧压缩包缺少 digitalType 字段，
// 迁移规则：非实物奖品缺失分类时从媒体推断；
// 实物奖品携带的分类字段一律剥离（序列化时移除而非置 null）
func Classify(blob []byte, parsed *Parsed, opts ClassifyOptions) (*ClassifyResult, error) {
	if !opts.Migrate {
		// 只读调用方依赖磁盘上的原始契约，直接透传
		return &ClassifyResult{Metadata: parsed.Metadata}, nil
	}

	mediaByAsset := make(map[string]*MediaItem, len(parsed.Media))
	for i := range parsed.Media {
		mediaByAsset[parsed.Media[i].AssetID] = &parsed.Media[i]
	}

	assetIDs := make([]string, 0, len(parsed.Metadata))
	for id := range parsed.Metadata {
		assetIDs = append(assetIDs, id)
	}
	sort.Strings(assetIDs)

	result := &ClassifyResult{
		Metadata: make(map[string]ItemMetadata, len(parsed.Metadata)),
	}

	for _, id := range assetIDs {
		meta := parsed.Metadata[id]

		switch {
		case meta.IsRiagu && meta.DigitalType != nil:
			// 实物奖品不携带数字类型
			meta.DigitalType = nil
			result.Changed = append(result.Changed, id)
		case !meta.IsRiagu && meta.DigitalType == nil:
			inferred := inferDigitalType(meta, mediaByAsset[id], opts.Subtype)
			meta.DigitalType = &inferred
			result.Changed = append(result.Changed, id)
		}

		result.Metadata[id] = meta
	}

	if len(result.Changed) == 0 {
		return result, nil
	}

	patched, err := rewriteMetadata(blob, result.Metadata)
	if err != nil {
		return nil, fmt.Errorf("重写元数据索引失败: %w", err)
	}
	result.Patched = patched

	return result, nil
}

// inferDigitalType 从媒体的 MIME 或内容嗅探推断数字类型
func inferDigitalType(meta ItemMetadata, media *MediaItem, subtype SubtypeClassifier) string {
	mimeType := ""
	if media != nil {
		mimeType = media.MimeType
		if (mimeType == "" || mimeType == "application/octet-stream") && len(media.Data) > 0 {
			mimeType = http.DetectContentType(media.Data)
		}
	}

	base := DigitalOther
	switch KindFromMime(mimeType) {
	case KindImage:
		base = DigitalImage
	case KindVideo:
		base = DigitalVideo
	case KindAudio:
		base = DigitalAudio
	}

	if subtype != nil {
		if fine := subtype(meta, media, base); fine != "" {
			return fine
		}
	}
	return base
}

// rewriteMetadata 生成仅元数据索引被替换的新压缩包
// 其余条目按原始压缩数据逐字节复制
func rewriteMetadata(blob []byte, metadata map[string]ItemMetadata) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, f := range zr.File {
		if f.Name == MetaItemsPath {
			data, err := json.Marshal(metadata)
			if err != nil {
				return nil, err
			}
			w, err := zw.CreateHeader(&zip.FileHeader{
				Name:   MetaItemsPath,
				Method: zip.Deflate,
			})
			if err != nil {
				return nil, err
			}
			if _, err := w.Write(data); err != nil {
				return nil, err
			}
			continue
		}

		if err := zw.Copy(f); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
