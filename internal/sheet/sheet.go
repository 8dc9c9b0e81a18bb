// Package sheet 商品目录工作簿的读写
//
// 目录是一张人工维护的表: 第 1 行是表头, A..E 列登记商品
// (分类 / 厂商 / 品名 / 在售 URL / 已售 URL), F..L 列由调研写回。
// 物理行号是商品的稳定主键, 目录同步与结果写回都以它对齐。
package sheet

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// 登记列布局 (A..E, 0 起)
const (
	colCategory  = 0
	colMaker     = 1
	colName      = 2
	colActiveURL = 3
	colSoldURL   = 4
)

// 写回列 (F..L)
const (
	colActiveCount = "F"
	colSoldCount   = "G"
	colBalance     = "H"
	colRank        = "I"
	colAvgUSD      = "J"
	colAvgJPY      = "K"
	colResearched  = "L"
)

// 写回的时间格式
const researchedAtLayout = "2006-01-02 15:04"

// Row 目录中的一行商品
// RowNumber 是工作表上的物理行号 (表头占第 1 行, 商品从第 2 行起)。
type Row struct {
	RowNumber uint32
	Category  string
	Maker     string
	Name      string
	ActiveURL string
	SoldURL   string
}

// ReadCatalog 读取目录工作簿的登记列
// 品名为空的行跳过 (人工留的分隔行), 行号保持与工作表一致。
func ReadCatalog(path, sheetName string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheetName, err)
	}

	var catalog []Row
	for i, cells := range rows {
		if i == 0 {
			continue // 表头
		}
		row := Row{
			RowNumber: uint32(i + 1),
			Category:  cellAt(cells, colCategory),
			Maker:     cellAt(cells, colMaker),
			Name:      cellAt(cells, colName),
			ActiveURL: cellAt(cells, colActiveURL),
			SoldURL:   cellAt(cells, colSoldURL),
		}
		if row.Name == "" {
			continue
		}
		catalog = append(catalog, row)
	}
	return catalog, nil
}

// cellAt GetRows 会把行尾的空单元格截掉
func cellAt(cells []string, idx int) string {
	if idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

// ResultRow 一行调研结果, 写回到商品自己的行
// 指针字段 nil 表示该项缺失, 写空串覆盖上一轮的旧值。
type ResultRow struct {
	RowNumber    uint32
	ActiveCount  *uint32
	SoldCount    *uint32
	Balance      *float64
	Rank         string
	AvgPriceUSD  *float64
	AvgPriceJPY  *int64
	ResearchedAt time.Time
}

// WriteResults 把调研结果写入各商品行的 F..L 列
func WriteResults(path, sheetName string, results []ResultRow) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	for _, r := range results {
		if err := writeRow(f, sheetName, r); err != nil {
			return fmt.Errorf("write row %d: %w", r.RowNumber, err)
		}
	}

	if err := f.Save(); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func writeRow(f *excelize.File, sheetName string, r ResultRow) error {
	row := strconv.Itoa(int(r.RowNumber))

	researched := ""
	if !r.ResearchedAt.IsZero() {
		researched = r.ResearchedAt.Format(researchedAtLayout)
	}

	cells := []struct {
		col string
		val any
	}{
		{colActiveCount, uint32OrBlank(r.ActiveCount)},
		{colSoldCount, uint32OrBlank(r.SoldCount)},
		{colBalance, float64OrBlank(r.Balance)},
		{colRank, r.Rank},
		{colAvgUSD, float64OrBlank(r.AvgPriceUSD)},
		{colAvgJPY, int64OrBlank(r.AvgPriceJPY)},
		{colResearched, researched},
	}
	for _, c := range cells {
		if err := f.SetCellValue(sheetName, c.col+row, c.val); err != nil {
			return err
		}
	}
	return nil
}

func uint32OrBlank(v *uint32) any {
	if v == nil {
		return ""
	}
	return *v
}

func float64OrBlank(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func int64OrBlank(v *int64) any {
	if v == nil {
		return ""
	}
	return *v
}
