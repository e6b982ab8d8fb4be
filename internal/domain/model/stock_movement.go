package model

import "time"

type StockMovementKind string

const (
	//販売による減算
	StockMovementSale StockMovementKind = "sale"
	//返金・取消・削除による戻し
	StockMovementRestore StockMovementKind = "restore"
	//手動の棚卸し
	StockMovementManual StockMovementKind = "manual"
)

// 在庫の増減履歴。
// 会計明細ごとに sale / restore は1回だけ（line_item_id + kind で一意）。
type StockMovement struct {
	ID            int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	StoreID       string            `gorm:"type:uuid;not null;index" json:"store_id"`
	ProductID     string            `gorm:"type:uuid;not null;index" json:"product_id"`
	TransactionID *string           `gorm:"type:uuid;index" json:"transaction_id"`
	LineItemID    *string           `gorm:"type:uuid;uniqueIndex:idx_stock_movements_line_kind,priority:1" json:"line_item_id"`
	Kind          StockMovementKind `gorm:"type:varchar(20);not null;uniqueIndex:idx_stock_movements_line_kind,priority:2" json:"kind"`
	Delta         int64             `gorm:"not null" json:"delta"`
	StockAfter    int64             `gorm:"not null" json:"stock_after"`
	Reason        string            `gorm:"type:varchar(255)" json:"reason"`
	CreatedAt     time.Time         `gorm:"not null;autoCreateTime" json:"created_at"`
}
