// Package aggregate 跨包库存聚合
// 把多个配布压缩包合并为一份按扭蛋分组的拥有视图，
// 以抽取事件 id 去重，保证同一次抽取只计数一次
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rinchat/gacha-receiver-go/internal/archive"
	"github.com/rinchat/gacha-receiver-go/internal/database/models"
	"github.com/rinchat/gacha-receiver-go/pkg/logger"
)

// SourceRef 聚合条目指向的源媒体（保存/导出用）
type SourceRef struct {
	HistoryID string            `json:"history_id"`
	AssetID   string            `json:"asset_id"`
	Path      string            `json:"path,omitempty"`
	Kind      archive.MediaKind `json:"kind"`
	MimeType  string            `json:"mime_type"`
}

// Item 聚合后的单个物品
type Item struct {
	Key         string      `json:"key"`
	GachaID     string      `json:"gacha_id"`
	GachaName   string      `json:"gacha_name"`
	ItemID      string      `json:"item_id"`
	ItemName    string      `json:"item_name"`
	Rarity      string      `json:"rarity"`
	RarityColor string      `json:"rarity_color"`
	IsRiagu     bool        `json:"is_riagu"`
	DigitalType *string     `json:"digital_type,omitempty"`
	Owned       bool        `json:"owned"`
	OwnedCount  int         `json:"owned_count"`
	Sources     []SourceRef `json:"sources,omitempty"`
}

// Group 按扭蛋分组的聚合结果
type Group struct {
	GachaID   string `json:"gacha_id"`
	GachaName string `json:"gacha_name"`
	OwnerName string `json:"owner_name"`
	Items     []Item `json:"items"`
	// OwnedKinds 拥有的物品种类数
	OwnedKinds int `json:"owned_kinds"`
	// TotalKinds 物品种类总数（含图鉴中未拥有的）
	TotalKinds int `json:"total_kinds"`
	// OwnedQuantity 拥有的物品总数量
	OwnedQuantity int `json:"owned_quantity"`
}

// Result 聚合结果
type Result struct {
	Groups []Group `json:"groups"`
	// Entries 参与聚合的履历数
	Entries int `json:"entries"`
	// SeenPulls 去重后的抽取事件数
	SeenPulls int `json:"seen_pulls"`
}

// EntryData 一条履历的解析结果，按下载时间倒序传入
type EntryData struct {
	HistoryID string
	Parsed    *archive.Parsed
	// Metadata 分类后的元数据（可能与 Parsed.Metadata 不同）
	Metadata map[string]archive.ItemMetadata
}

// HistorySource 履历读取接口
type HistorySource interface {
	List() ([]models.HistoryEntry, error)
}

// BlobStore 压缩包读写接口
type BlobStore interface {
	Get(historyID string) ([]byte, error)
	Save(historyID string, data []byte) error
}

// Options 聚合选项
type Options struct {
	// Migrate 对缺失分类的旧压缩包执行类型推断并回写
	Migrate bool
	Subtype archive.SubtypeClassifier
}

// Build 读取全部履历并构建聚合视图
// 单条履历加载或解析失败只跳过该履历，不中断整体聚合
func Build(ctx context.Context, histories HistorySource, blobs BlobStore, opts Options) (*Result, error) {
	entries, err := histories.List()
	if err != nil {
		return nil, fmt.Errorf("读取履历列表失败: %w", err)
	}

	data := make([]EntryData, 0, len(entries))
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		blob, err := blobs.Get(entry.ID)
		if err != nil || blob == nil {
			logger.Warn().Err(err).Str("id", entry.ID).Msg("压缩包加载失败，跳过该履历")
			continue
		}

		parsed, err := archive.Read(blob)
		if err != nil {
			logger.Warn().Err(err).Str("id", entry.ID).Msg("压缩包解析失败，跳过该履历")
			continue
		}

		classified, err := archive.Classify(blob, parsed, archive.ClassifyOptions{
			Migrate: opts.Migrate,
			Subtype: opts.Subtype,
		})
		if err != nil {
			logger.Warn().Err(err).Str("id", entry.ID).Msg("类型分类失败，使用原始元数据")
			classified = &archive.ClassifyResult{Metadata: parsed.Metadata}
		}

		// 迁移产生的补丁包回写；失败只记录，本次仍使用内存中的推断值
		if classified.Patched != nil {
			if err := blobs.Save(entry.ID, classified.Patched); err != nil {
				logger.Error().Err(err).Str("id", entry.ID).Msg("迁移回写失败，磁盘上的包保持未迁移")
			}
		}

		data = append(data, EntryData{
			HistoryID: entry.ID,
			Parsed:    parsed,
			Metadata:  classified.Metadata,
		})
	}

	return Fold(data), nil
}

// group 聚合过程中的可变分组
type group struct {
	Group
	items map[string]*Item
	order []string
}

// contribution 一条履历对拥有计数的贡献模式
type contribution int

const (
	// contributeAll 抽取事件全部是新的，全部计入
	contributeAll contribution = iota
	// contributeNewOnly 部分抽取事件已见过，只计入此前未知的物品
	contributeNewOnly
	// contributeNone 抽取事件全部见过，只做展示字段回填
	contributeNone
)

// Fold 按传入顺序折叠多条履历
// 去重规则依赖顺序：调用方按下载时间倒序传入
func Fold(entries []EntryData) *Result {
	seenPulls := make(map[string]bool)
	groups := make(map[string]*group)
	var groupOrder []string

	for _, entry := range entries {
		mode := dedupMode(entry.Parsed.PullIDs(), seenPulls)
		foldEntry(entry, mode, groups, &groupOrder)
	}

	return assemble(groups, groupOrder, len(entries), len(seenPulls))
}

// dedupMode 判定贡献模式并登记抽取事件
func dedupMode(pulls []string, seen map[string]bool) contribution {
	overlap, fresh := 0, 0
	for _, p := range pulls {
		if seen[p] {
			overlap++
		} else {
			fresh++
			seen[p] = true
		}
	}

	switch {
	case overlap == 0:
		return contributeAll
	case fresh == 0:
		return contributeNone
	default:
		return contributeNewOnly
	}
}

// foldEntry 折叠单条履历：元数据遍、媒体遍、图鉴遍
func foldEntry(entry EntryData, mode contribution, groups map[string]*group, groupOrder *[]string) {
	ownerName := entry.Parsed.OwnerName()

	// 元数据遍：建立 asset id -> 组内键 的映射，同时计入拥有数量
	assetKeys := make(map[string]string, len(entry.Metadata))
	ordinals := make(map[string]int)

	assetIDs := make([]string, 0, len(entry.Metadata))
	for id := range entry.Metadata {
		assetIDs = append(assetIDs, id)
	}
	sort.Strings(assetIDs)

	for _, assetID := range assetIDs {
		meta := entry.Metadata[assetID]
		g := resolveGroup(groups, groupOrder, meta.GachaID, meta.GachaName, ownerName)

		key, displayName := itemKey(ordinals, meta.ItemID, meta.ItemName)
		assetKeys[assetID] = gachaKey(meta.GachaID, meta.GachaName) + "\x00" + key

		item, exists := g.items[key]
		if !exists {
			item = &Item{
				Key:         key,
				GachaID:     g.GachaID,
				GachaName:   g.GachaName,
				ItemID:      meta.ItemID,
				ItemName:    displayName,
				Rarity:      meta.Rarity,
				RarityColor: meta.RarityColor,
				IsRiagu:     meta.IsRiagu,
				DigitalType: meta.DigitalType,
			}
			g.items[key] = item
			g.order = append(g.order, key)
		}

		// 展示字段回填：只补缺失，绝不覆盖
		enrich(item, &meta)

		// 拥有计数：已知物品在 NewOnly 模式下不再计入
		count := mode == contributeAll ||
			(mode == contributeNewOnly && !item.Owned)
		if count && meta.ObtainedCount > 0 {
			item.Owned = true
			item.OwnedCount += meta.ObtainedCount
		}
	}

	// 媒体遍：把源媒体引用挂到对应条目上
	payloadOrdinals := make(map[string]int)
	for _, media := range entry.Parsed.Media {
		attachMedia(entry.HistoryID, media, assetKeys, payloadOrdinals, groups)
	}

	// 图鉴遍：补充未拥有的条目，绝不覆盖已拥有的
	if entry.Parsed.Catalog != nil {
		foldCatalog(entry.Parsed.Catalog, ownerName, groups, groupOrder)
	}
}

// gachaKey 分组键：gacha id 优先，缺失时退回名称
func gachaKey(gachaID, gachaName string) string {
	if gachaID != "" {
		return gachaID
	}
	return gachaName
}

// resolveGroup 按 gacha 标识查找或创建分组
func resolveGroup(groups map[string]*group, order *[]string, gachaID, gachaName, ownerName string) *group {
	key := gachaKey(gachaID, gachaName)

	g, ok := groups[key]
	if !ok {
		g = &group{
			Group: Group{
				GachaID:   gachaID,
				GachaName: gachaName,
			},
			items: make(map[string]*Item),
		}
		groups[key] = g
		*order = append(*order, key)
	}
	if g.GachaName == "" {
		g.GachaName = gachaName
	}
	if g.OwnerName == "" {
		g.OwnerName = ownerName
	}
	return g
}

// itemKey 计算组内物品键与展示名
// 物品标识优先取 itemId，其次展示名；
// 同一逻辑物品出现多个媒体文件时，从第二个起用全角序号区分
func itemKey(ordinals map[string]int, itemID, itemName string) (key, displayName string) {
	base := itemID
	if base == "" {
		base = itemName
	}

	ordinals[base]++
	n := ordinals[base]
	if n == 1 {
		return base, itemName
	}

	suffix := fmt.Sprintf("（%d）", n)
	return base + suffix, itemName + suffix
}

// enrich 用新见到的元数据补齐缺失的展示字段
func enrich(item *Item, meta *archive.ItemMetadata) {
	if item.ItemName == "" {
		item.ItemName = meta.ItemName
	}
	if item.Rarity == "" {
		item.Rarity = meta.Rarity
	}
	if item.RarityColor == "" {
		item.RarityColor = meta.RarityColor
	}
	if item.DigitalType == nil && meta.DigitalType != nil {
		item.DigitalType = meta.DigitalType
	}
}

// attachMedia 媒体遍：通过元数据遍建立的 id->键 映射定位条目
func attachMedia(historyID string, media archive.MediaItem, assetKeys map[string]string, ordinals map[string]int, groups map[string]*group) {
	ref := SourceRef{
		HistoryID: historyID,
		AssetID:   media.AssetID,
		Path:      media.Path,
		Kind:      media.Kind,
		MimeType:  media.MimeType,
	}

	compound, ok := assetKeys[media.AssetID]
	if !ok {
		// 回退扫描提取的媒体没有进过元数据遍，用媒体遍自己的序号重新推导键
		if media.Meta == nil {
			return
		}
		g := groups[gachaKey(media.Meta.GachaID, media.Meta.GachaName)]
		if g == nil {
			return
		}
		key, _ := itemKey(ordinals, media.Meta.ItemID, media.Meta.ItemName)
		if item, exists := g.items[key]; exists {
			item.Sources = append(item.Sources, ref)
		}
		return
	}

	parts := strings.SplitN(compound, "\x00", 2)
	g := groups[parts[0]]
	if g == nil {
		return
	}
	if item, exists := g.items[parts[1]]; exists {
		item.Sources = append(item.Sources, ref)
	}
}

// foldCatalog 把图鉴中未拥有的条目补进分组
func foldCatalog(catalog *archive.Catalog, ownerName string, groups map[string]*group, groupOrder *[]string) {
	for _, cg := range catalog.Gachas {
		g := resolveGroup(groups, groupOrder, cg.GachaID, cg.GachaName, ownerName)

		for _, ci := range cg.Items {
			key := ci.ItemID
			if key == "" {
				key = ci.ItemName
			}
			if _, exists := g.items[key]; exists {
				// 已拥有的条目优先，图鉴数据绝不覆盖
				continue
			}

			g.items[key] = &Item{
				Key:         key,
				GachaID:     g.GachaID,
				GachaName:   g.GachaName,
				ItemID:      ci.ItemID,
				ItemName:    ci.ItemName,
				Rarity:      ci.Rarity,
				RarityColor: ci.RarityColor,
				DigitalType: ci.DigitalType,
			}
			g.order = append(g.order, key)
		}
	}
}

// assemble 收尾：排序并计算三个统计量
func assemble(groups map[string]*group, groupOrder []string, entryCount, pullCount int) *Result {
	result := &Result{
		Groups:    make([]Group, 0, len(groups)),
		Entries:   entryCount,
		SeenPulls: pullCount,
	}

	for _, gk := range groupOrder {
		g := groups[gk]

		items := make([]Item, 0, len(g.items))
		for _, key := range g.order {
			items = append(items, *g.items[key])
		}

		// 拥有的在前，其余按名称字典序
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].Owned != items[j].Owned {
				return items[i].Owned
			}
			return items[i].ItemName < items[j].ItemName
		})

		g.Items = items
		g.OwnedKinds, g.TotalKinds, g.OwnedQuantity = counters(items)
		result.Groups = append(result.Groups, g.Group)
	}

	sort.SliceStable(result.Groups, func(i, j int) bool {
		return result.Groups[i].GachaName < result.Groups[j].GachaName
	})
	return result
}

// counters 计算拥有种类数、种类总数、拥有总数量
func counters(items []Item) (ownedKinds, totalKinds, ownedQuantity int) {
	totalKinds = len(items)
	for _, item := range items {
		if item.Owned {
			ownedKinds++
			ownedQuantity += item.OwnedCount
		}
	}
	return
}
