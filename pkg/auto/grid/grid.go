// Package grid 将屏幕划分为网格，用格子作为搜索区域
package grid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zoeyai/imagefinder/pkg/vision/finder"
)

// Position 网格位置
type Position struct {
	Rows int `json:"rows"` // 总行数
	Cols int `json:"cols"` // 总列数
	Row  int `json:"row"`  // 目标行 (1-based)
	Col  int `json:"col"`  // 目标列 (1-based)
}

// Parse 解析网格位置字符串
// 格式: rows.cols.row.col (如 "2.2.1.1" 表示 2x2 网格的第1行第1列)
func Parse(s string) (Position, error) {
	if s == "" {
		return Position{}, fmt.Errorf("网格位置字符串为空")
	}

	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return Position{}, fmt.Errorf("无效的网格位置格式: %s (期望格式: rows.cols.row.col)", s)
	}

	var values [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return Position{}, fmt.Errorf("无效的网格位置: %s", s)
		}
		values[i] = v
	}

	pos := Position{Rows: values[0], Cols: values[1], Row: values[2], Col: values[3]}
	return pos, pos.Validate()
}

// Validate 校验行列范围
func (p Position) Validate() error {
	if p.Rows < 1 || p.Cols < 1 {
		return fmt.Errorf("行数和列数必须大于 0: rows=%d, cols=%d", p.Rows, p.Cols)
	}
	if p.Row < 1 || p.Col < 1 {
		return fmt.Errorf("目标行和目标列必须大于 0: row=%d, col=%d", p.Row, p.Col)
	}
	if p.Row > p.Rows || p.Col > p.Cols {
		return fmt.Errorf("目标位置超出范围: row=%d > rows=%d 或 col=%d > cols=%d", p.Row, p.Rows, p.Col, p.Cols)
	}
	return nil
}

// String 格式化为 rows.cols.row.col
func (p Position) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", p.Rows, p.Cols, p.Row, p.Col)
}

// Cell 计算格子区域，bounds 通常为逻辑屏幕
func (p Position) Cell(bounds finder.Region) finder.Region {
	w := bounds.Width / float64(p.Cols)
	h := bounds.Height / float64(p.Rows)
	return finder.NewRegion(
		bounds.Left+float64(p.Col-1)*w,
		bounds.Top+float64(p.Row-1)*h,
		w,
		h,
	)
}

// CellOf 解析网格字符串并计算格子区域
func CellOf(bounds finder.Region, s string) (finder.Region, error) {
	pos, err := Parse(s)
	if err != nil {
		return finder.Region{}, err
	}
	return pos.Cell(bounds), nil
}
