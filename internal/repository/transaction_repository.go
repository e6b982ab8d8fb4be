package repository

import (
	"context"
	"time"

	"pos/internal/domain/model"
)

const (
	DefaultTransactionListLimit = 100
	MaxTransactionListLimit     = 500
)

// 会計一覧の絞り込み条件。
type TransactionListFilter struct {
	StoreID       string
	DateFrom      *time.Time
	DateTo        *time.Time
	Status        model.TransactionStatus
	PaymentMethod model.PaymentMethod
	Limit         int
}

// 商品別の販売数
type ProductSales struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	Revenue   int64  `json:"revenue"`
}

type TransactionRepository interface {
	// 明細ごと作成する
	Create(ctx context.Context, tx model.Transaction) (model.Transaction, error)
	FindByID(ctx context.Context, storeID string, id string) (model.Transaction, error)
	// WithinTx の中で使う。コミットまで行をロックする
	FindByIDForUpdate(ctx context.Context, storeID string, id string) (model.Transaction, error)
	FindByIdempotencyKey(ctx context.Context, storeID string, key string) (model.Transaction, bool, error)
	List(ctx context.Context, f TransactionListFilter) ([]model.Transaction, error)

	// 集計用。[from, to) の会計を明細つきで返す。
	ListBetween(ctx context.Context, storeID string, from, to time.Time) ([]model.Transaction, error)

	// 完了済み会計の商品別販売数（多い順）
	TopProducts(ctx context.Context, storeID string, from, to time.Time, limit int) ([]ProductSales, error)

	// status と notes 以外は更新しない
	UpdateStatus(ctx context.Context, storeID string, id string, status model.TransactionStatus) error
	UpdateNotes(ctx context.Context, storeID string, id string, notes string) error

	// 明細ごと物理削除
	Delete(ctx context.Context, storeID string, id string) error
}
