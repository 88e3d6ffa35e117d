// Package aggregate 按内容类型的过滤视图
package aggregate

import "strings"

// FilterByType 按数字类型过滤聚合结果，并对过滤后的子集重算三个统计量
// 纯函数，不重新读取存储；"riagu" 过滤实物奖品
func FilterByType(result *Result, digitalType string) *Result {
	if digitalType == "" {
		return result
	}

	filtered := &Result{
		Entries:   result.Entries,
		SeenPulls: result.SeenPulls,
	}

	for _, g := range result.Groups {
		items := make([]Item, 0, len(g.Items))
		for _, item := range g.Items {
			if matchType(item, digitalType) {
				items = append(items, item)
			}
		}
		if len(items) == 0 {
			continue
		}

		ng := g
		ng.Items = items
		ng.OwnedKinds, ng.TotalKinds, ng.OwnedQuantity = counters(items)
		filtered.Groups = append(filtered.Groups, ng)
	}
	return filtered
}

// matchType 基础类型精确匹配，细分类型按前缀匹配
func matchType(item Item, digitalType string) bool {
	if digitalType == "riagu" {
		return item.IsRiagu
	}
	if item.DigitalType == nil {
		return false
	}
	t := *item.DigitalType
	return t == digitalType || strings.HasPrefix(t, digitalType+"/")
}
