package repository

import (
	"context"

	"pos/internal/domain/model"
)

// 一覧検索
type ProductListQuery struct {
	StoreID    string
	Q          string
	Category   string
	ActiveOnly bool
	Limit      int
}

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	List(ctx context.Context, q ProductListQuery) ([]model.Product, error)
	FindByID(ctx context.Context, storeID string, id string) (model.Product, error)
	FindByBarcode(ctx context.Context, storeID string, barcode string) (model.Product, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	Update(ctx context.Context, p model.Product) error
	SoftDelete(ctx context.Context, storeID string, id string) error
}
