package model

// 会計明細。単価は販売時点のスナップショット。
type TransactionItem struct {
	ID            string `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID string `gorm:"type:uuid;not null;index" json:"transaction_id"`
	ProductID     string `gorm:"type:uuid;not null;index" json:"product_id"`
	Name          string `gorm:"type:varchar(255)" json:"name"`
	Quantity      int64  `gorm:"not null;check:quantity > 0" json:"quantity"`
	UnitPrice     int64  `gorm:"not null" json:"unit_price"`
	Position      int    `gorm:"not null;default:0" json:"-"`
}
