// cmd/import/main.go
// 商品目录导入工具 - 从 .xlsx 或 .json 文件导入商品到数据库
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"sedoritop/internal/model"
	"sedoritop/internal/sheet"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ProductImportEntry JSON 导入条目
type ProductImportEntry struct {
	RowNumber uint32  `json:"row_number"`           // 必填：工作表行号 (稳定主键, 从 2 起)
	Name      string  `json:"name"`                 // 必填：品名
	Category  string  `json:"category,omitempty"`   // 可选：分类
	Maker     string  `json:"maker,omitempty"`      // 可选：厂商
	ActiveURL string  `json:"active_url,omitempty"` // 可选：在售搜索 URL
	SoldURL   string  `json:"sold_url,omitempty"`   // 可选：已售搜索 URL
	Weight    float64 `json:"weight,omitempty"`     // 可选：调度权重（默认 1.0）
	Notes     string  `json:"notes,omitempty"`      // 可选：备注
}

// ProductImportFile JSON 导入文件结构
type ProductImportFile struct {
	Products []ProductImportEntry `json:"products"`
}

func main() {
	// 命令行参数
	dsn := flag.String("dsn", "", "MySQL DSN (or use DB_DSN env)")
	file := flag.String("file", "", "catalog file path, .xlsx or .json (required)")
	sheetName := flag.String("sheet-name", "Sheet1", "worksheet name (.xlsx only)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode (don't write to database)")
	upsert := flag.Bool("upsert", true, "Update existing entries by row number")
	flag.Parse()

	// 支持从环境变量读取 DSN
	if *dsn == "" {
		*dsn = os.Getenv("DB_DSN")
	}

	if *dsn == "" || *file == "" {
		fmt.Println("Usage: import -dsn <mysql_dsn> -file <catalog_file>")
		fmt.Println()
		fmt.Println("Options:")
		fmt.Println("  -dsn         MySQL DSN (e.g., user:pass@tcp(localhost:3306)/sedoritop?charset=utf8mb4&parseTime=True)")
		fmt.Println("  -file        catalog file path (.xlsx or .json)")
		fmt.Println("  -sheet-name  worksheet name for .xlsx files (default: Sheet1)")
		fmt.Println("  -dry-run     Dry run mode (default: false)")
		fmt.Println("  -upsert      Update existing entries (default: true)")
		fmt.Println()
		fmt.Println("JSON file format:")
		fmt.Println(`{
  "products": [
    {
      "row_number": 2,
      "name": "Nendoroid 1234 Example Figure",
      "category": "figure",
      "maker": "Good Smile Company",
      "active_url": "https://www.ebay.com/sch/i.html?_nkw=nendoroid+1234",
      "sold_url": "https://www.ebay.com/sch/i.html?_nkw=nendoroid+1234&LH_Sold=1&LH_Complete=1",
      "weight": 1.5,
      "notes": "备注"
    }
  ]
}`)
		os.Exit(1)
	}

	// 读取目录文件
	entries, fromJSON, err := loadEntries(*file, *sheetName)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}

	fmt.Printf("Loaded %d products from %s\n", len(entries), *file)

	if *dryRun {
		fmt.Println("\n[DRY RUN MODE - No changes will be made]")
		for i, entry := range entries {
			fmt.Printf("  %d. row %-4d %s", i+1, entry.RowNumber, entry.Name)
			if entry.Category != "" {
				fmt.Printf(" [%s]", entry.Category)
			}
			fmt.Println()
		}
		return
	}

	// 连接数据库
	db, err := gorm.Open(mysql.Open(*dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// 自动迁移 (可选, 首次导入前建表用)
	if os.Getenv("AUTO_MIGRATE") == "true" {
		if err := model.AutoMigrate(db); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
	}

	// 工作簿登记列不含 weight/notes, 覆盖更新时保留运营字段
	updateCols := []string{"category", "maker", "name", "active_url", "sold_url", "updated_at"}
	if fromJSON {
		updateCols = append(updateCols, "weight", "notes")
	}

	// 导入数据
	var created, updated, failed int
	for _, entry := range entries {
		if entry.Name == "" {
			fmt.Printf("  [SKIP] row %d: empty name\n", entry.RowNumber)
			failed++
			continue
		}
		if entry.RowNumber < 2 {
			fmt.Printf("  [SKIP] %s: row number %d out of range\n", entry.Name, entry.RowNumber)
			failed++
			continue
		}

		var existing int64
		if err := db.Model(&model.Product{}).
			Where("row_number = ?", entry.RowNumber).
			Count(&existing).Error; err != nil {
			fmt.Printf("  [FAIL] %s: %v\n", entry.Name, err)
			failed++
			continue
		}

		if !*upsert && existing > 0 {
			fmt.Printf("  [SKIP] %s (already exists)\n", entry.Name)
			continue
		}

		product := convertToModel(entry)

		var result *gorm.DB
		if *upsert {
			// UPSERT: 存在则更新，不存在则插入
			result = db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "row_number"}},
				DoUpdates: clause.AssignmentColumns(updateCols),
			}).Create(&product)
		} else {
			// 仅插入，忽略已存在
			result = db.Clauses(clause.OnConflict{
				DoNothing: true,
			}).Create(&product)
		}

		if result.Error != nil {
			fmt.Printf("  [FAIL] %s: %v\n", entry.Name, result.Error)
			failed++
		} else if existing > 0 {
			fmt.Printf("  [UPDATE] %s (row %d)\n", entry.Name, entry.RowNumber)
			updated++
		} else {
			fmt.Printf("  [CREATE] %s (row %d)\n", entry.Name, entry.RowNumber)
			created++
		}
	}

	fmt.Printf("\nSummary: %d created, %d updated, %d failed\n", created, updated, failed)
}

// loadEntries 按扩展名读取目录文件
func loadEntries(path, sheetName string) (entries []ProductImportEntry, fromJSON bool, err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err := sheet.ReadCatalog(path, sheetName)
		if err != nil {
			return nil, false, err
		}
		for _, row := range rows {
			entries = append(entries, ProductImportEntry{
				RowNumber: row.RowNumber,
				Name:      row.Name,
				Category:  row.Category,
				Maker:     row.Maker,
				ActiveURL: row.ActiveURL,
				SoldURL:   row.SoldURL,
			})
		}
		return entries, false, nil
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, false, err
		}
		var importFile ProductImportFile
		if err := json.Unmarshal(data, &importFile); err != nil {
			return nil, false, fmt.Errorf("parse JSON: %w", err)
		}
		return importFile.Products, true, nil
	default:
		return nil, false, fmt.Errorf("unsupported file type %q (want .xlsx or .json)", filepath.Ext(path))
	}
}

// convertToModel 将导入条目转换为数据库模型
func convertToModel(entry ProductImportEntry) model.Product {
	weight := entry.Weight
	if weight <= 0 {
		weight = 1.0
	}

	return model.Product{
		RowNumber: int(entry.RowNumber),
		Category:  entry.Category,
		Maker:     entry.Maker,
		Name:      entry.Name,
		ActiveURL: entry.ActiveURL,
		SoldURL:   entry.SoldURL,
		Weight:    weight,
		Notes:     entry.Notes,
		Status:    model.ProductStatusActive,
	}
}
