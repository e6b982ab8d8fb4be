package repository

import (
	"context"
	"errors"

	"pos/internal/domain/model"
	repo "pos/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 同じ明細の同じ種類の在庫更新が既にある
var errAlreadyApplied = errors.New("stock movement already applied")

// 更新前の値をロックして読み、同じ文の中で書き換える
const (
	decrementStockSQL = `
UPDATE products AS p
SET stock = GREATEST(p.stock - @qty, 0), updated_at = NOW()
FROM (
	SELECT id, stock FROM products
	WHERE id = @id AND store_id = @store AND deleted_at IS NULL
	FOR UPDATE
) AS old
WHERE p.id = old.id
RETURNING old.stock AS stock_before, p.stock AS stock_after`

	incrementStockSQL = `
UPDATE products AS p
SET stock = p.stock + @qty, updated_at = NOW()
FROM (
	SELECT id, stock FROM products
	WHERE id = @id AND store_id = @store AND deleted_at IS NULL
	FOR UPDATE
) AS old
WHERE p.id = old.id
RETURNING old.stock AS stock_before, p.stock AS stock_after`
)

type stockRow struct {
	StockBefore int64
	StockAfter  int64
}

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

// 在庫を減らす（0で止める）
func (r *InventoryGormRepository) Decrement(ctx context.Context, storeID, productID string, qty int64, mv model.StockMovement) (repo.StockResult, error) {
	return r.apply(ctx, decrementStockSQL, storeID, productID, qty, mv)
}

// 在庫戻し
func (r *InventoryGormRepository) Increment(ctx context.Context, storeID, productID string, qty int64, mv model.StockMovement) (repo.StockResult, error) {
	return r.apply(ctx, incrementStockSQL, storeID, productID, qty, mv)
}

func (r *InventoryGormRepository) apply(ctx context.Context, query string, storeID, productID string, qty int64, mv model.StockMovement) (repo.StockResult, error) {
	var out repo.StockResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row stockRow
		res := tx.Raw(query, map[string]interface{}{
			"qty":   qty,
			"id":    productID,
			"store": storeID,
		}).Scan(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repo.ErrNotFound
		}

		//履歴（line_item_id + kind が既にあれば何もしない）
		mv.StoreID = storeID
		mv.ProductID = productID
		mv.Delta = row.StockAfter - row.StockBefore
		mv.StockAfter = row.StockAfter
		ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&mv)
		if ins.Error != nil {
			return ins.Error
		}
		if ins.RowsAffected == 0 {
			return errAlreadyApplied
		}

		out = repo.StockResult{Before: row.StockBefore, After: row.StockAfter, Applied: true}
		return nil
	})

	if errors.Is(err, errAlreadyApplied) {
		//ロールバック済みなので現在値を返す
		stock, err := r.Stock(ctx, storeID, productID)
		if err != nil {
			return repo.StockResult{}, err
		}
		return repo.StockResult{Before: stock, After: stock, Applied: false}, nil
	}
	if err != nil {
		return repo.StockResult{}, translate(err)
	}
	return out, nil
}

// 在庫の現在値
func (r *InventoryGormRepository) Stock(ctx context.Context, storeID, productID string) (int64, error) {
	var p model.Product
	err := r.db.WithContext(ctx).
		Select("stock").
		Where("id = ? AND store_id = ?", productID, storeID).
		First(&p).Error
	if err != nil {
		return 0, translate(err)
	}
	return p.Stock, nil
}

// 在庫を「現在値」に更新し、調整履歴も残す
func (r *InventoryGormRepository) SetStock(ctx context.Context, storeID, productID string, newStock int64, reason string) (int64, error) {
	var before int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//現在の在庫をロックして取得
		var p model.Product
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND store_id = ?", productID, storeID).
			First(&p).Error; err != nil {
			return err
		}
		before = p.Stock

		res := tx.Model(&model.Product{}).
			Where("id = ? AND store_id = ?", productID, storeID).
			Update("stock", newStock)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repo.ErrNotFound
		}

		mv := model.StockMovement{
			StoreID:    storeID,
			ProductID:  productID,
			Kind:       model.StockMovementManual,
			Delta:      newStock - p.Stock,
			StockAfter: newStock,
			Reason:     reason,
		}
		return tx.Create(&mv).Error
	})
	if err != nil {
		return 0, translate(err)
	}
	return before, nil
}

// 在庫少の商品。列どうしを直接比較する。
func (r *InventoryGormRepository) LowStock(ctx context.Context, storeID string, limit int) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND is_active = ? AND stock <= min_stock", storeID, true).
		Order("stock asc").
		Order("name asc").
		Limit(limit).
		Find(&products).Error
	if err != nil {
		return []model.Product{}, err
	}
	return products, nil
}

func (r *InventoryGormRepository) CountProducts(ctx context.Context, storeID string) (int64, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Product{}).
		Where("store_id = ? AND is_active = ?", storeID, true).
		Count(&total).Error; err != nil {
		return 0, 0, err
	}

	var low int64
	if err := r.db.WithContext(ctx).Model(&model.Product{}).
		Where("store_id = ? AND is_active = ? AND stock <= min_stock", storeID, true).
		Count(&low).Error; err != nil {
		return 0, 0, err
	}
	return total, low, nil
}
