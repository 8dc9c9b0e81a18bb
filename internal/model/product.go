package model

import (
	"time"

	"gorm.io/gorm"
)

// ============================================================================
// Product - 调研目录商品
// ============================================================================

// ProductStatus 商品监控状态
type ProductStatus string

const (
	ProductStatusActive  ProductStatus = "active"
	ProductStatusPaused  ProductStatus = "paused"
	ProductStatusDeleted ProductStatus = "deleted"
)

// Product 商品目录模型
// RowNumber 是表格中的行号, 作为稳定唯一键, 分配后不再变更;
// 同步操作按 RowNumber upsert, 核心流程从不删除商品。
type Product struct {
	ID               uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	RowNumber        int            `gorm:"column:row_number;not null;uniqueIndex:uk_row_number" json:"row_number"`
	Category         string         `gorm:"type:varchar(64);default:'';index:idx_category" json:"category,omitempty"`
	Maker            string         `gorm:"type:varchar(128);default:'';index:idx_maker" json:"maker,omitempty"`
	Name             string         `gorm:"type:varchar(255);not null" json:"name"`
	ActiveURL        string         `gorm:"column:active_url;type:varchar(1024);default:''" json:"active_url,omitempty"`
	SoldURL          string         `gorm:"column:sold_url;type:varchar(1024);default:''" json:"sold_url,omitempty"`
	Weight           float64        `gorm:"type:decimal(5,2);not null;default:1.00" json:"weight"`
	Status           ProductStatus  `gorm:"type:varchar(20);not null;default:'active';index:idx_product_status" json:"status"`
	Notes            string         `gorm:"type:text" json:"notes,omitempty"`
	LastResearchedAt *time.Time     `gorm:"type:datetime(3);index:idx_last_researched" json:"last_researched_at,omitempty"`
	CreatedAt        time.Time      `gorm:"type:datetime(3);not null;autoCreateTime:milli" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"type:datetime(3);not null;autoUpdateTime:milli" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`

	// 关联
	Snapshots []Snapshot `gorm:"foreignKey:ProductID" json:"snapshots,omitempty"`
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}

// ============================================================================
// Snapshot - 调研快照 (append-only)
// ============================================================================

// Snapshot 一次调研的不可变测量记录
// 同一商品的快照按插入顺序 RecordedAt 单调不减; 插入后不再更新 (没有 UpdatedAt)。
// 计数与价格字段用指针表达"数据不可用": nil 表示上游获取失败或无样本。
type Snapshot struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID   uint64    `gorm:"column:product_id;not null;index:idx_product_recorded,priority:1" json:"product_id"`
	ActiveCount *uint32   `json:"active_count,omitempty"`
	SoldCount   *uint32   `json:"sold_count,omitempty"`
	Balance     *float64  `gorm:"type:decimal(8,2);index:idx_balance" json:"balance,omitempty"`
	AvgPrice    *float64  `gorm:"type:decimal(10,2)" json:"avg_price,omitempty"`
	MedianPrice *float64  `gorm:"type:decimal(10,2)" json:"median_price,omitempty"`
	MinPrice    *float64  `gorm:"type:decimal(10,2)" json:"min_price,omitempty"`
	MaxPrice    *float64  `gorm:"type:decimal(10,2)" json:"max_price,omitempty"`
	PriceStddev *float64  `gorm:"type:decimal(10,2)" json:"price_stddev,omitempty"`
	SampleCount uint32    `gorm:"not null;default:0" json:"sample_count"`
	AvgPriceJPY *int64    `gorm:"column:avg_price_jpy" json:"avg_price_jpy,omitempty"`
	RecordedAt  time.Time `gorm:"type:datetime(3);not null;index:idx_product_recorded,priority:2;index:idx_recorded" json:"recorded_at"`
	CreatedAt   time.Time `gorm:"type:datetime(3);not null;autoCreateTime:milli" json:"created_at"`

	// 关联
	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

// TableName 指定表名
func (Snapshot) TableName() string {
	return "snapshots"
}

// HasCounts 两个计数是否都可用
func (s *Snapshot) HasCounts() bool {
	return s.ActiveCount != nil && s.SoldCount != nil
}

// HasPrice 平均成交价是否可用
func (s *Snapshot) HasPrice() bool {
	return s.AvgPrice != nil
}
