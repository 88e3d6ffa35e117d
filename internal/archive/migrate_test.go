// Package archive 数字类型迁移测试
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"testing"
)

// migrationFixture 含一个缺失分类的数字奖品和一个带杂散分类的实物奖品
func migrationFixture(t *testing.T) []byte {
	t.Helper()
	return buildArchive(t, map[string][]byte{
		MetaItemsPath: itemsJSON(t, map[string]ItemMetadata{
			"a1": {
				Path:          strPtr("items/G/ring.png"),
				GachaID:       "g1",
				GachaName:     "G",
				ItemID:        "i1",
				ItemName:      "Ring",
				ObtainedCount: 1,
			},
			"a2": {
				GachaID:       "g1",
				GachaName:     "G",
				ItemID:        "i2",
				ItemName:      "アクスタ",
				IsRiagu:       true,
				DigitalType:   strPtr("image"),
				ObtainedCount: 1,
			},
		}),
		"items/G/ring.png": pngBytes(t, 4, 4),
		"items/G/keep.txt": []byte("untouched"),
	})
}

func TestClassify_不迁移时原样透传(t *testing.T) {
	blob := migrationFixture(t)
	parsed, err := Read(blob)
	if err != nil {
		t.Fatalf("Read() 失败: %v", err)
	}

	result, err := Classify(blob, parsed, ClassifyOptions{Migrate: false})
	if err != nil {
		t.Fatalf("Classify() 失败: %v", err)
	}

	if result.Patched != nil {
		t.Error("不迁移时不应该产生补丁包")
	}
	if len(result.Changed) != 0 {
		t.Error("不迁移时不应该有变更")
	}
	if result.Metadata["a1"].DigitalType != nil {
		t.Error("不迁移时 a1 的分类应该保持缺失")
	}
	if result.Metadata["a2"].DigitalType == nil {
		t.Error("不迁移时 a2 的杂散分类应该保留")
	}
}

func TestClassify_推断与剥离(t *testing.T) {
	blob := migrationFixture(t)
	parsed, err := Read(blob)
	if err != nil {
		t.Fatalf("Read() 失败: %v", err)
	}

	result, err := Classify(blob, parsed, ClassifyOptions{Migrate: true})
	if err != nil {
		t.Fatalf("Classify() 失败: %v", err)
	}

	if result.Patched == nil {
		t.Fatal("有变更时应该产生补丁包")
	}
	if len(result.Changed) != 2 {
		t.Fatalf("变更数应该是 2，实际是 %d", len(result.Changed))
	}

	if got := result.Metadata["a1"].DigitalType; got == nil || *got != DigitalImage {
		t.Error("a1 应该推断为 image")
	}
	if result.Metadata["a2"].DigitalType != nil {
		t.Error("实物奖品的分类应该被剥离")
	}

	// 补丁包里实物奖品的序列化记录必须不含 digitalType 字段（移除而非 null）
	raw := readPatchedIndex(t, result.Patched)
	var decoded map[string]map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("解析补丁索引失败: %v", err)
	}
	if _, present := decoded["a2"]["digitalType"]; present {
		t.Error("实物奖品的序列化记录不应该含 digitalType 字段")
	}
	if _, present := decoded["a1"]["digitalType"]; !present {
		t.Error("数字奖品的序列化记录应该含 digitalType 字段")
	}

	// 其余条目逐字节不变
	if !bytes.Equal(readArchiveEntry(t, result.Patched, "items/G/keep.txt"), []byte("untouched")) {
		t.Error("未重写的条目应该逐字节保持不变")
	}
}

func TestClassify_迁移幂等(t *testing.T) {
	blob := migrationFixture(t)
	parsed, err := Read(blob)
	if err != nil {
		t.Fatalf("Read() 失败: %v", err)
	}

	first, err := Classify(blob, parsed, ClassifyOptions{Migrate: true})
	if err != nil {
		t.Fatalf("第一次 Classify() 失败: %v", err)
	}
	if first.Patched == nil {
		t.Fatal("第一次迁移应该产生补丁包")
	}

	reparsed, err := Read(first.Patched)
	if err != nil {
		t.Fatalf("补丁包 Read() 失败: %v", err)
	}

	second, err := Classify(first.Patched, reparsed, ClassifyOptions{Migrate: true})
	if err != nil {
		t.Fatalf("第二次 Classify() 失败: %v", err)
	}

	if second.Patched != nil {
		t.Error("第二次迁移不应该再产生补丁包")
	}
	if len(second.Changed) != 0 {
		t.Errorf("第二次迁移不应该有变更，实际 %d 条", len(second.Changed))
	}
	if got := second.Metadata["a1"].DigitalType; got == nil || *got != DigitalImage {
		t.Error("第二次迁移的推断值应该与第一次一致")
	}
}

func TestClassify_细分类型解析器(t *testing.T) {
	blob := migrationFixture(t)
	parsed, err := Read(blob)
	if err != nil {
		t.Fatalf("Read() 失败: %v", err)
	}

	result, err := Classify(blob, parsed, ClassifyOptions{
		Migrate: true,
		Subtype: func(meta ItemMetadata, media *MediaItem, base string) string {
			if base == DigitalImage {
				return "image/illustration"
			}
			return ""
		},
	})
	if err != nil {
		t.Fatalf("Classify() 失败: %v", err)
	}

	if got := result.Metadata["a1"].DigitalType; got == nil || *got != "image/illustration" {
		t.Error("细分类型解析器的结果应该生效")
	}
}

// readPatchedIndex 从补丁包读出元数据索引原文
func readPatchedIndex(t *testing.T, blob []byte) []byte {
	t.Helper()
	return readArchiveEntry(t, blob, MetaItemsPath)
}

func readArchiveEntry(t *testing.T, blob []byte, name string) []byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		t.Fatalf("打开补丁包失败: %v", err)
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("打开条目失败: %v", err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("读取条目失败: %v", err)
		}
		return data
	}
	t.Fatalf("补丁包缺少条目 %s", name)
	return nil
}
