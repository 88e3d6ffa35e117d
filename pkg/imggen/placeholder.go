// Package imggen 图片生成模块
package imggen

import (
	"bytes"
	"image/color"
	"image/png"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// 颜色定义
var (
	bgColor      = color.RGBA{28, 28, 38, 255}    // 深色背景
	cardColor    = color.RGBA{40, 40, 56, 255}    // 卡片背景
	textColor    = color.RGBA{255, 255, 255, 255} // 白色文字
	subTextColor = color.RGBA{170, 170, 180, 255} // 灰色文字
	videoColor   = color.RGBA{96, 150, 250, 255}  // 视频图标
	audioColor   = color.RGBA{180, 120, 250, 255} // 音频图标
	otherColor   = color.RGBA{130, 130, 140, 255} // 其他图标
)

// kindLabel 媒体类型对应的占位符号
var kindLabel = map[string]struct {
	symbol string
	color  color.RGBA
}{
	"video": {"▶", videoColor},
	"audio": {"♪", audioColor},
	"text":  {"T", otherColor},
	"other": {"?", otherColor},
}

// GeneratePlaceholder 为非图片媒体生成占位预览图
// 正方形画布，中央为类型符号，下方为物品名
func GeneratePlaceholder(kind, name string, size int) ([]byte, error) {
	if size <= 0 {
		size = 320
	}

	dc := gg.NewContext(size, size)

	// 背景
	dc.SetColor(bgColor)
	dc.Clear()

	// 中央卡片
	pad := float64(size) / 8
	dc.SetColor(cardColor)
	dc.DrawRoundedRectangle(pad, pad, float64(size)-pad*2, float64(size)-pad*2, float64(size)/16)
	dc.Fill()

	label, ok := kindLabel[kind]
	if !ok {
		label = kindLabel["other"]
	}

	// 类型符号
	if face, err := fontFace(float64(size) / 4); err == nil {
		dc.SetFontFace(face)
	}
	dc.SetColor(label.color)
	dc.DrawStringAnchored(label.symbol, float64(size)/2, float64(size)*0.42, 0.5, 0.5)

	// 物品名
	if face, err := fontFace(float64(size) / 14); err == nil {
		dc.SetFontFace(face)
	}
	dc.SetColor(textColor)
	dc.DrawStringAnchored(truncateName(name, 24), float64(size)/2, float64(size)*0.68, 0.5, 0.5)

	// 类型说明
	dc.SetColor(subTextColor)
	dc.DrawStringAnchored(kind, float64(size)/2, float64(size)*0.78, 0.5, 0.5)

	return exportPNG(dc)
}

// fontFace 加载内置字体
func fontFace(points float64) (font.Face, error) {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}
	return truetype.NewFace(f, &truetype.Options{Size: points}), nil
}

// truncateName 截断过长的物品名
func truncateName(name string, max int) string {
	runes := []rune(name)
	if len(runes) <= max {
		return name
	}
	return string(runes[:max]) + "…"
}

// exportPNG 导出为 PNG
func exportPNG(dc *gg.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
