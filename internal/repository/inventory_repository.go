package repository

import (
	"context"

	"pos/internal/domain/model"
)

// 在庫更新の結果
type StockResult struct {
	Before  int64
	After   int64
	Applied bool
}

// 在庫台帳。在庫の更新は必ず1回のUPDATEで行う（読んでから書かない）。
type InventoryRepository interface {
	// 在庫を減らす。足りなくてもエラーにせず0で止める。
	// mv.LineItemID + mv.Kind が記録済みなら何もしない（Applied=false）。
	Decrement(ctx context.Context, storeID, productID string, qty int64, mv model.StockMovement) (StockResult, error)

	// 在庫を戻す（返金・取消など）。冪等性は Decrement と同じ。
	Increment(ctx context.Context, storeID, productID string, qty int64, mv model.StockMovement) (StockResult, error)

	// 在庫の現在値
	Stock(ctx context.Context, storeID, productID string) (int64, error)

	// 在庫を現在値に設定し、差分を履歴に残す
	SetStock(ctx context.Context, storeID, productID string, newStock int64, reason string) (before int64, err error)

	// stock <= min_stock の有効商品（在庫の少ない順）
	LowStock(ctx context.Context, storeID string, limit int) ([]model.Product, error)

	// 有効商品数と在庫少の数
	CountProducts(ctx context.Context, storeID string) (total int64, low int64, err error)
}
