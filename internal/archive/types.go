// Package archive 配布压缩包解析模块
package archive

// 压缩包内的约定布局
const (
	// ItemsDir 媒体文件目录前缀
	ItemsDir = "items/"
	// MetaItemsPath 物品元数据索引
	MetaItemsPath = "meta/items.json"
	// MetaCatalogPath 图鉴快照
	MetaCatalogPath = "meta/catalog.json"
	// MetaSelectionPath 抽选信息
	MetaSelectionPath = "meta/selection.json"
)

// MediaKind 媒体类型
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
	KindText  MediaKind = "text"
	KindOther MediaKind = "other"
)

// 数字内容类型（仅非实物奖品携带）
const (
	DigitalImage = "image"
	DigitalVideo = "video"
	DigitalAudio = "audio"
	DigitalOther = "other"
)

// ItemMetadata 压缩包内单个奖品的元数据
// meta/items.json 的值类型，键为 asset id
type ItemMetadata struct {
	// Path 包内文件路径，nil 表示仅记录获得、未附带文件
	Path          *string `json:"path"`
	GachaID       string  `json:"gachaId"`
	GachaName     string  `json:"gachaName"`
	ItemID        string  `json:"itemId"`
	ItemName      string  `json:"itemName"`
	Rarity        string  `json:"rarity"`
	RarityColor   string  `json:"rarityColor"`
	// IsRiagu 是否为实物奖品（リアグ）
	IsRiagu bool `json:"isRiagu"`
	// DigitalType 数字内容类型，实物奖品不携带该字段（序列化时省略而非 null）
	DigitalType   *string `json:"digitalType,omitempty"`
	ObtainedCount int     `json:"obtainedCount"`
	IsNew         bool    `json:"isNew"`
}

// Catalog 整个扭蛋的只读图鉴快照（含未拥有条目）
type Catalog struct {
	Version     int            `json:"version"`
	GeneratedAt string         `json:"generatedAt"`
	Gachas      []CatalogGacha `json:"gachas"`
}

// CatalogGacha 图鉴中的单个扭蛋
type CatalogGacha struct {
	GachaID   string        `json:"gachaId"`
	GachaName string        `json:"gachaName"`
	Items     []CatalogItem `json:"items"`
}

// CatalogItem 图鉴条目，入库后不再修改
type CatalogItem struct {
	ItemID      string  `json:"itemId"`
	ItemName    string  `json:"itemName"`
	Rarity      string  `json:"rarity"`
	RarityColor string  `json:"rarityColor"`
	DigitalType *string `json:"digitalType,omitempty"`
}

// Selection 抽选信息：抽取记录与当事人
type Selection struct {
	User         *Person       `json:"user"`
	Owner        *Person       `json:"owner"`
	PullIDs      []string      `json:"pullIds"`
	HistoryPulls []HistoryPull `json:"historyPulls"`
}

// Person 用户显示信息
type Person struct {
	DisplayName string `json:"displayName"`
}

// HistoryPull 单次抽取事件
type HistoryPull struct {
	PullID    string `json:"pullId"`
	PullCount int    `json:"pullCount"`
}

// MediaItem 从压缩包提取的单个媒体
type MediaItem struct {
	AssetID  string
	Path     string
	Kind     MediaKind
	MimeType string
	// Data 媒体内容，元数据存在但文件缺失时为 nil
	Data []byte
	// Meta 关联的元数据，回退扫描提取时可能为 nil
	Meta *ItemMetadata
}

// Parsed 一次完整解析的结果
type Parsed struct {
	// Metadata asset id -> 元数据，索引文件缺失时为空 map
	Metadata  map[string]ItemMetadata
	Media     []MediaItem
	Catalog   *Catalog
	Selection *Selection
}

// PullIDs 返回本包涉及的全部抽取事件 id
func (p *Parsed) PullIDs() []string {
	if p.Selection == nil {
		return nil
	}
	return p.Selection.PullIDs
}

// OwnerName 返回包所有者显示名
func (p *Parsed) OwnerName() string {
	if p.Selection == nil {
		return ""
	}
	if p.Selection.Owner != nil && p.Selection.Owner.DisplayName != "" {
		return p.Selection.Owner.DisplayName
	}
	if p.Selection.User != nil {
		return p.Selection.User.DisplayName
	}
	return ""
}
