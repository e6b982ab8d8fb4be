package repository

import (
	"context"
	"strings"

	"pos/internal/domain/model"
	repo "pos/internal/repository"

	"gorm.io/gorm"
)

type ProductGormRepository struct {
	db *gorm.DB
}

// DI
func NewProductGormRepository(db *gorm.DB) *ProductGormRepository {
	return &ProductGormRepository{db: db}
}

// 店舗の商品を、検索/カテゴリ付きで返す。
func (r *ProductGormRepository) List(ctx context.Context, q repo.ProductListQuery) ([]model.Product, error) {
	var products []model.Product

	tx := r.db.WithContext(ctx).Model(&model.Product{}).
		Where("store_id = ?", q.StoreID)

	if q.ActiveOnly {
		tx = tx.Where("is_active = ?", true)
	}

	// q は name / barcode を対象
	if s := strings.TrimSpace(q.Q); s != "" {
		like := "%" + s + "%"
		tx = tx.Where("name ILIKE ? OR barcode = ?", like, s)
	}
	if q.Category != "" {
		tx = tx.Where("category = ?", q.Category)
	}

	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	if err := tx.Order("created_at desc").Order("id desc").Find(&products).Error; err != nil {
		return []model.Product{}, err
	}
	return products, nil
}

// IDで商品を取得
func (r *ProductGormRepository) FindByID(ctx context.Context, storeID string, id string) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).
		Where("id = ? AND store_id = ?", id, storeID).
		First(&p).Error
	if err != nil {
		return model.Product{}, translate(err)
	}
	return p, nil
}

// バーコードで商品を取得（同じ店舗内で一意でなければ新しい方）
func (r *ProductGormRepository) FindByBarcode(ctx context.Context, storeID string, barcode string) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND barcode = ?", storeID, barcode).
		Order("created_at desc").
		First(&p).Error
	if err != nil {
		return model.Product{}, translate(err)
	}
	return p, nil
}

// 商品の作成
func (r *ProductGormRepository) Create(ctx context.Context, p model.Product) (model.Product, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.Product{}, translate(err)
	}
	return p, nil
}

// 商品の更新（在庫は SetStock で変える）
func (r *ProductGormRepository) Update(ctx context.Context, p model.Product) error {
	res := r.db.WithContext(ctx).Model(&model.Product{}).
		Where("id = ? AND store_id = ?", p.ID, p.StoreID).
		Updates(map[string]interface{}{
			"name":      p.Name,
			"category":  p.Category,
			"barcode":   p.Barcode,
			"image_url": p.ImageURL,
			"price":     p.Price,
			"min_stock": p.MinStock,
			"is_active": p.IsActive,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 商品削除
func (r *ProductGormRepository) SoftDelete(ctx context.Context, storeID string, id string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND store_id = ?", id, storeID).
		Delete(&model.Product{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
