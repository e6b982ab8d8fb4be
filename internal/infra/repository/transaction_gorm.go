package repository

import (
	"context"
	"time"

	"pos/internal/domain/model"
	repo "pos/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TransactionGormRepository struct {
	db *gorm.DB
}

func NewTransactionGormRepository(db *gorm.DB) *TransactionGormRepository {
	return &TransactionGormRepository{db: db}
}

// 明細は表示順に読む
func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Order("position asc")
}

// 会計ヘッダと明細を同じトランザクションで作成する
func (r *TransactionGormRepository) Create(ctx context.Context, t model.Transaction) (model.Transaction, error) {
	if err := r.db.WithContext(ctx).Create(&t).Error; err != nil {
		return model.Transaction{}, translate(err)
	}
	return t, nil
}

func (r *TransactionGormRepository) FindByID(ctx context.Context, storeID string, id string) (model.Transaction, error) {
	var t model.Transaction
	err := r.db.WithContext(ctx).
		Preload("Items", preloadItems).
		Where("id = ? AND store_id = ?", id, storeID).
		First(&t).Error
	if err != nil {
		return model.Transaction{}, translate(err)
	}
	return t, nil
}

// 行ロック付き。ステータス変更の読み→書きを直列にする
func (r *TransactionGormRepository) FindByIDForUpdate(ctx context.Context, storeID string, id string) (model.Transaction, error) {
	var t model.Transaction
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items", preloadItems).
		Where("id = ? AND store_id = ?", id, storeID).
		First(&t).Error
	if err != nil {
		return model.Transaction{}, translate(err)
	}
	return t, nil
}

func (r *TransactionGormRepository) FindByIdempotencyKey(ctx context.Context, storeID string, key string) (model.Transaction, bool, error) {
	var t model.Transaction
	err := r.db.WithContext(ctx).
		Preload("Items", preloadItems).
		Where("store_id = ? AND idempotency_key = ?", storeID, key).
		First(&t).Error

	if err != nil {
		if err = translate(err); err == repo.ErrNotFound {
			return model.Transaction{}, false, nil
		}
		return model.Transaction{}, false, err
	}
	return t, true, nil
}

func (r *TransactionGormRepository) List(ctx context.Context, f repo.TransactionListFilter) ([]model.Transaction, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = repo.DefaultTransactionListLimit
	}
	if limit > repo.MaxTransactionListLimit {
		limit = repo.MaxTransactionListLimit
	}

	q := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("store_id = ?", f.StoreID)

	//期間絞り込み（両端を含む）
	if f.DateFrom != nil {
		q = q.Where("created_at >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		q = q.Where("created_at <= ?", *f.DateTo)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.PaymentMethod != "" {
		q = q.Where("payment_method = ?", f.PaymentMethod)
	}

	var items []model.Transaction
	if err := q.Preload("Items", preloadItems).
		Order("created_at desc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return []model.Transaction{}, err
	}
	return items, nil
}

func (r *TransactionGormRepository) ListBetween(ctx context.Context, storeID string, from, to time.Time) ([]model.Transaction, error) {
	var items []model.Transaction
	err := r.db.WithContext(ctx).
		Preload("Items", preloadItems).
		Where("store_id = ? AND created_at >= ? AND created_at < ?", storeID, from, to).
		Order("created_at asc").
		Find(&items).Error
	if err != nil {
		return []model.Transaction{}, err
	}
	return items, nil
}

func (r *TransactionGormRepository) TopProducts(ctx context.Context, storeID string, from, to time.Time, limit int) ([]repo.ProductSales, error) {
	var out []repo.ProductSales
	err := r.db.WithContext(ctx).
		Table("transaction_items AS ti").
		Select("ti.product_id, MAX(ti.name) AS name, SUM(ti.quantity) AS quantity, SUM(ti.quantity * ti.unit_price) AS revenue").
		Joins("JOIN transactions AS t ON t.id = ti.transaction_id").
		Where("t.store_id = ? AND t.created_at >= ? AND t.created_at < ?", storeID, from, to).
		Where("t.status = ? OR t.status = ''", model.TransactionStatusCompleted).
		Group("ti.product_id").
		Order("quantity desc").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return []repo.ProductSales{}, err
	}
	return out, nil
}

func (r *TransactionGormRepository) UpdateStatus(ctx context.Context, storeID string, id string, status model.TransactionStatus) error {
	res := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ? AND store_id = ?", id, storeID).
		Update("status", status)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *TransactionGormRepository) UpdateNotes(ctx context.Context, storeID string, id string, notes string) error {
	res := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ? AND store_id = ?", id, storeID).
		Update("notes", notes)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 明細 → ヘッダの順に削除
func (r *TransactionGormRepository) Delete(ctx context.Context, storeID string, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Transaction{}).
			Where("id = ? AND store_id = ?", id, storeID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return repo.ErrNotFound
		}

		if err := tx.Where("transaction_id = ?", id).Delete(&model.TransactionItem{}).Error; err != nil {
			return err
		}

		res := tx.Where("id = ? AND store_id = ?", id, storeID).Delete(&model.Transaction{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repo.ErrNotFound
		}
		return nil
	})
}
