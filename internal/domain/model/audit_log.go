package model

import "time"

// 会計ステータス更新、削除、在庫更新など。
type AuditAction string

const (
	AuditActionUpdateStock             AuditAction = "UPDATE_STOCK"
	AuditActionUpdateTransactionStatus AuditAction = "UPDATE_TRANSACTION_STATUS"
	AuditActionDeleteTransaction       AuditAction = "DELETE_TRANSACTION"
)

// 何に対する操作か
type AuditResourceType string

const (
	AuditResourceProduct     AuditResourceType = "product"
	AuditResourceTransaction AuditResourceType = "transaction"
)

// 監査ログ。
// 「どの店舗で」「何を」「どの対象に」「どう変えたか」を残す。
type AuditLog struct {
	ID      int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	StoreID string  `gorm:"type:uuid;not null;index" json:"store_id"`
	ActorID *string `gorm:"type:uuid;index" json:"actor_id"`

	Action       AuditAction       `gorm:"type:varchar(50);not null;index" json:"action"`
	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`
	ResourceID   string            `gorm:"type:varchar(64);not null;index" json:"resource_id"`

	//JSON文字列で保存する。
	BeforeJSON string `gorm:"type:text" json:"before_json"`
	AfterJSON  string `gorm:"type:text" json:"after_json"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
