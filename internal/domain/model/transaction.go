package model

import "time"

type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCancelled TransactionStatus = "cancelled"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

// 有効なステータスか
func (s TransactionStatus) IsValid() bool {
	switch s {
	case TransactionStatusCompleted, TransactionStatusPending, TransactionStatusCancelled, TransactionStatusRefunded:
		return true
	}
	return false
}

// 返金・取消（在庫を戻す側の終端状態）
func (s TransactionStatus) IsReversal() bool {
	return s == TransactionStatusCancelled || s == TransactionStatusRefunded
}

// ステータス未設定は completed として集計する
func (s TransactionStatus) CountsAsSale() bool {
	return s == "" || s == TransactionStatusCompleted
}

type PaymentMethod string

const (
	PaymentMethodCash PaymentMethod = "cash"
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodQRIS PaymentMethod = "qris"
)

// レジの会計1件。明細と金額は作成後に変更しない。
type Transaction struct {
	ID         string  `gorm:"type:uuid;primaryKey" json:"id"`
	StoreID    string  `gorm:"type:uuid;not null;index;uniqueIndex:idx_transactions_store_idem,priority:1" json:"store_id"`
	CashierID  *string `gorm:"type:uuid;index" json:"cashier_id"`
	CustomerID *string `gorm:"type:uuid;index" json:"customer_id"`

	Items []TransactionItem `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE" json:"items"`

	Subtotal      int64         `gorm:"not null;default:0" json:"subtotal"`
	Tax           int64         `gorm:"not null;default:0" json:"tax"`
	Discount      int64         `gorm:"not null;default:0" json:"discount"`
	Total         int64         `gorm:"not null" json:"total"`
	PaymentMethod PaymentMethod `gorm:"type:varchar(20);not null;default:'cash';index" json:"payment_method"`
	PaymentAmount *int64        `json:"payment_amount"`
	ChangeAmount  int64         `gorm:"not null;default:0" json:"change_amount"`

	Status TransactionStatus `gorm:"type:varchar(20);not null;default:'completed';index" json:"status"`
	Notes  string            `gorm:"type:text" json:"notes"`

	IdempotencyKey *string `gorm:"type:varchar(255);uniqueIndex:idx_transactions_store_idem,priority:2" json:"-"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 明細の数量合計
func (t Transaction) ItemsCount() int64 {
	var n int64
	for _, it := range t.Items {
		n += it.Quantity
	}
	return n
}
