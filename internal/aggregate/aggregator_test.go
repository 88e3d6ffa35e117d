// Package aggregate 库存聚合测试
package aggregate

import (
	"reflect"
	"testing"

	"github.com/rinchat/gacha-receiver-go/internal/archive"
)

func strPtr(s string) *string {
	return &s
}

// entryOf 构造一条测试履历
func entryOf(historyID string, pulls []string, items map[string]archive.ItemMetadata) EntryData {
	parsed := &archive.Parsed{
		Metadata: items,
		Selection: &archive.Selection{
			Owner:   &archive.Person{DisplayName: "远野"},
			PullIDs: pulls,
		},
	}
	return EntryData{
		HistoryID: historyID,
		Parsed:    parsed,
		Metadata:  items,
	}
}

func findItem(t *testing.T, result *Result, gachaName, itemName string) *Item {
	t.Helper()
	for _, g := range result.Groups {
		if g.GachaName != gachaName {
			continue
		}
		for i := range g.Items {
			if g.Items[i].ItemName == itemName {
				return &g.Items[i]
			}
		}
	}
	return nil
}

func TestFold_抽取事件精确去重(t *testing.T) {
	// A: {p1,p2} X×3；B: {p1,p2,p3} X×5 + Y×1
	// 按 [A,B] 聚合应该得到 X=3（而不是 8），Y=1
	entryA := entryOf("h1", []string{"p1", "p2"}, map[string]archive.ItemMetadata{
		"a1": {GachaID: "g1", GachaName: "G", ItemID: "x", ItemName: "X", ObtainedCount: 3},
	})
	entryB := entryOf("h2", []string{"p1", "p2", "p3"}, map[string]archive.ItemMetadata{
		"b1": {GachaID: "g1", GachaName: "G", ItemID: "x", ItemName: "X", ObtainedCount: 5},
		"b2": {GachaID: "g1", GachaName: "G", ItemID: "y", ItemName: "Y", ObtainedCount: 1},
	})

	result := Fold([]EntryData{entryA, entryB})

	x := findItem(t, result, "G", "X")
	if x == nil || x.OwnedCount != 3 {
		t.Fatalf("X 的拥有数应该是 3，实际是 %+v", x)
	}
	y := findItem(t, result, "G", "Y")
	if y == nil || y.OwnedCount != 1 {
		t.Fatalf("B 的新抽取事件应该贡献 Y=1，实际是 %+v", y)
	}
	if result.SeenPulls != 3 {
		t.Errorf("去重后抽取事件数应该是 3，实际是 %d", result.SeenPulls)
	}
}

func TestFold_全量重叠只做回填(t *testing.T) {
	entryA := entryOf("h1", []string{"p1"}, map[string]archive.ItemMetadata{
		"a1": {GachaID: "g1", GachaName: "G", ItemID: "x", ItemName: "X", ObtainedCount: 2},
	})
	// 同一抽取事件的重复配布，稀有度信息更完整
	entryB := entryOf("h2", []string{"p1"}, map[string]archive.ItemMetadata{
		"b1": {GachaID: "g1", GachaName: "G", ItemID: "x", ItemName: "X", Rarity: "SSR", RarityColor: "#ffd700", ObtainedCount: 2},
	})

	result := Fold([]EntryData{entryA, entryB})

	x := findItem(t, result, "G", "X")
	if x == nil {
		t.Fatal("X 应该存在")
	}
	if x.OwnedCount != 2 {
		t.Errorf("重复配布不应该累加，拥有数应该是 2，实际是 %d", x.OwnedCount)
	}
	if x.Rarity != "SSR" || x.RarityColor != "#ffd700" {
		t.Error("重复配布仍然应该回填缺失的展示字段")
	}
}

func TestFold_幂等(t *testing.T) {
	entries := []EntryData{
		entryOf("h1", []string{"p1", "p2"}, map[string]archive.ItemMetadata{
			"a1": {GachaID: "g1", GachaName: "G", ItemID: "x", ItemName: "X", ObtainedCount: 3},
		}),
		entryOf("h2", []string{"p3"}, map[string]archive.ItemMetadata{
			"b1": {GachaID: "g1", GachaName: "G", ItemID: "y", ItemName: "Y", ObtainedCount: 1},
		}),
	}

	first := Fold(entries)
	second := Fold(entries)

	if !reflect.DeepEqual(first, second) {
		t.Error("同一输入的两次聚合结果应该完全一致")
	}
}

func TestFold_零重叠全量贡献(t *testing.T) {
	entryA := entryOf("h1", []string{"p1"}, map[string]archive.ItemMetadata{
		"a1": {GachaID: "g1", GachaName: "G", ItemID: "x", ItemName: "X", ObtainedCount: 3},
	})
	entryB := entryOf("h2", []string{"p2"}, map[string]archive.ItemMetadata{
		"b1": {GachaID: "g1", GachaName: "G", ItemID: "x", ItemName: "X", ObtainedCount: 2},
	})

	result := Fold([]EntryData{entryA, entryB})

	x := findItem(t, result, "G", "X")
	if x == nil || x.OwnedCount != 5 {
		t.Fatalf("不同抽取事件的数量应该累加为 5，实际是 %+v", x)
	}
}

func TestFold_同一物品多文件的序号键(t *testing.T) {
	entry := entryOf("h1", []string{"p1"}, map[string]archive.ItemMetadata{
		"a1": {GachaID: "g1", GachaName: "G", ItemID: "x", ItemName: "Card", ObtainedCount: 1},
		"a2": {GachaID: "g1", GachaName: "G", ItemID: "x", ItemName: "Card", ObtainedCount: 1},
		"a3": {GachaID: "g1", GachaName: "G", ItemID: "x", ItemName: "Card", ObtainedCount: 1},
	})

	result := Fold([]EntryData{entry})

	if len(result.Groups) != 1 {
		t.Fatalf("分组数应该是 1，实际是 %d", len(result.Groups))
	}
	g := result.Groups[0]
	if g.TotalKinds != 3 {
		t.Fatalf("种类数应该是 3，实际是 %d", g.TotalKinds)
	}

	names := make(map[string]bool)
	for _, item := range g.Items {
		names[item.ItemName] = true
	}
	for _, want := range []string{"Card", "Card（2）", "Card（3）"} {
		if !names[want] {
			t.Errorf("应该存在展示名 %q", want)
		}
	}
}

func TestFold_图鉴不覆盖已拥有(t *testing.T) {
	entry := entryOf("h1", []string{"p1"}, map[string]archive.ItemMetadata{
		"a1": {GachaID: "g1", GachaName: "G", ItemID: "x", ItemName: "X", Rarity: "R", ObtainedCount: 1},
	})
	entry.Parsed.Catalog = &archive.Catalog{
		Gachas: []archive.CatalogGacha{
			{
				GachaID:   "g1",
				GachaName: "G",
				Items: []archive.CatalogItem{
					{ItemID: "x", ItemName: "X-catalog", Rarity: "N"},
					{ItemID: "z", ItemName: "Z", Rarity: "SR"},
				},
			},
		},
	}

	result := Fold([]EntryData{entry})

	g := result.Groups[0]
	if g.OwnedKinds != 1 {
		t.Errorf("拥有种类数应该是 1，实际是 %d", g.OwnedKinds)
	}
	if g.TotalKinds != 2 {
		t.Errorf("种类总数应该是 2（已拥有 + 图鉴补充），实际是 %d", g.TotalKinds)
	}

	x := findItem(t, result, "G", "X")
	if x == nil || !x.Owned || x.Rarity != "R" {
		t.Fatal("已拥有条目不应该被图鉴覆盖")
	}
	if findItem(t, result, "G", "X-catalog") != nil {
		t.Error("同键的图鉴条目不应该重复出现")
	}

	z := findItem(t, result, "G", "Z")
	if z == nil || z.Owned {
		t.Fatal("图鉴独有条目应该以未拥有状态存在")
	}
}

func TestFold_排序与统计(t *testing.T) {
	entry := entryOf("h1", []string{"p1"}, map[string]archive.ItemMetadata{
		"a1": {GachaID: "g1", GachaName: "G", ItemID: "b", ItemName: "Beta", ObtainedCount: 2},
		"a2": {GachaID: "g1", GachaName: "G", ItemID: "a", ItemName: "Alpha", ObtainedCount: 3},
	})
	entry.Parsed.Catalog = &archive.Catalog{
		Gachas: []archive.CatalogGacha{
			{GachaID: "g1", GachaName: "G", Items: []archive.CatalogItem{{ItemID: "c", ItemName: "AAA-unowned"}}},
		},
	}

	result := Fold([]EntryData{entry})
	g := result.Groups[0]

	// 拥有的在前按名称排序，未拥有的在后
	wantOrder := []string{"Alpha", "Beta", "AAA-unowned"}
	for i, want := range wantOrder {
		if g.Items[i].ItemName != want {
			t.Errorf("第 %d 项应该是 %s，实际是 %s", i, want, g.Items[i].ItemName)
		}
	}

	if g.OwnedKinds != 2 || g.TotalKinds != 3 || g.OwnedQuantity != 5 {
		t.Errorf("统计量应该是 (2,3,5)，实际是 (%d,%d,%d)", g.OwnedKinds, g.TotalKinds, g.OwnedQuantity)
	}
	if g.OwnerName != "远野" {
		t.Errorf("分组所有者应该是 远野，实际是 %s", g.OwnerName)
	}
}

func TestFold_源媒体引用(t *testing.T) {
	entry := entryOf("h1", []string{"p1"}, map[string]archive.ItemMetadata{
		"a1": {Path: strPtr("items/G/x.png"), GachaID: "g1", GachaName: "G", ItemID: "x", ItemName: "X", ObtainedCount: 1},
	})
	meta := entry.Metadata["a1"]
	entry.Parsed.Media = []archive.MediaItem{
		{AssetID: "a1", Path: "items/G/x.png", Kind: archive.KindImage, MimeType: "image/png", Meta: &meta},
	}

	result := Fold([]EntryData{entry})

	x := findItem(t, result, "G", "X")
	if x == nil || len(x.Sources) != 1 {
		t.Fatalf("X 应该挂载 1 个源媒体引用，实际是 %+v", x)
	}
	if x.Sources[0].HistoryID != "h1" || x.Sources[0].AssetID != "a1" {
		t.Error("源媒体引用应该指向原履历与 asset")
	}
}
