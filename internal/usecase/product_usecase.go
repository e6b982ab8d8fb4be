package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pos/internal/domain/model"
	repo "pos/internal/repository"

	"go.uber.org/zap"
)

type ProductUsecase struct {
	productRepo   repo.ProductRepository
	inventoryRepo repo.InventoryRepository
	auditRepo     repo.AuditLogRepository
	idGen         IDGenerator
	clock         Clock
	log           *zap.Logger
}

// DI
func NewProductUsecase(
	productRepo repo.ProductRepository,
	inventoryRepo repo.InventoryRepository,
	auditRepo repo.AuditLogRepository,
	idGen IDGenerator,
	clock Clock,
	log *zap.Logger,
) *ProductUsecase {
	return &ProductUsecase{
		productRepo:   productRepo,
		inventoryRepo: inventoryRepo,
		auditRepo:     auditRepo,
		idGen:         idGen,
		clock:         clock,
		log:           log,
	}
}

// GET /products の入力DTO
type ListProductsInput struct {
	StoreID    string
	Q          string
	Category   string
	ActiveOnly bool
	Limit      int
}

type ProductInput struct {
	StoreID  string
	Name     string
	Category string
	Barcode  string
	ImageURL string
	Price    int64
	Stock    int64
	MinStock *int64
	IsActive *bool
}

func (u *ProductUsecase) List(ctx context.Context, in ListProductsInput) ([]model.Product, error) {
	if !validUUID(in.StoreID) {
		return []model.Product{}, validationError("invalid store_id")
	}
	if in.Limit < 0 || in.Limit > 500 {
		return []model.Product{}, validationError("invalid limit")
	}
	if len(in.Q) > 100 {
		return []model.Product{}, validationError("q too long")
	}

	items, err := u.productRepo.List(ctx, repo.ProductListQuery{
		StoreID:    in.StoreID,
		Q:          strings.TrimSpace(in.Q),
		Category:   strings.TrimSpace(in.Category),
		ActiveOnly: in.ActiveOnly,
		Limit:      in.Limit,
	})
	if err != nil {
		return []model.Product{}, storageError(u.log, "products.list", err, zap.String("store_id", in.StoreID))
	}
	return items, nil
}

func (u *ProductUsecase) Get(ctx context.Context, storeID, id string) (model.Product, error) {
	if err := validateScope(storeID, id); err != nil {
		return model.Product{}, err
	}

	p, err := u.productRepo.FindByID(ctx, storeID, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, notFoundError("product")
	}
	if err != nil {
		return model.Product{}, storageError(u.log, "products.find", err, zap.String("product_id", id))
	}
	return p, nil
}

// バーコード読み取り用
func (u *ProductUsecase) GetByBarcode(ctx context.Context, storeID, barcode string) (model.Product, error) {
	if !validUUID(storeID) {
		return model.Product{}, validationError("invalid store_id")
	}
	barcode = strings.TrimSpace(barcode)
	if barcode == "" || len(barcode) > 64 {
		return model.Product{}, validationError("invalid barcode")
	}

	p, err := u.productRepo.FindByBarcode(ctx, storeID, barcode)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, notFoundError("product")
	}
	if err != nil {
		return model.Product{}, storageError(u.log, "products.find_by_barcode", err, zap.String("barcode", barcode))
	}
	return p, nil
}

func (u *ProductUsecase) Create(ctx context.Context, in ProductInput) (model.Product, error) {
	if !validUUID(in.StoreID) {
		return model.Product{}, validationError("invalid store_id")
	}
	if err := validateProduct(in); err != nil {
		return model.Product{}, err
	}
	if in.Stock < 0 {
		return model.Product{}, validationError("stock must be >= 0")
	}

	minStock := model.DefaultMinStock
	if in.MinStock != nil {
		minStock = *in.MinStock
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	now := u.clock.Now()
	p, err := u.productRepo.Create(ctx, model.Product{
		ID:        u.idGen.NewID(),
		StoreID:   in.StoreID,
		Name:      strings.TrimSpace(in.Name),
		Category:  strings.TrimSpace(in.Category),
		Barcode:   strings.TrimSpace(in.Barcode),
		ImageURL:  in.ImageURL,
		Price:     in.Price,
		Stock:     in.Stock,
		MinStock:  minStock,
		IsActive:  active,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return model.Product{}, storageError(u.log, "products.create", err, zap.String("store_id", in.StoreID))
	}
	return p, nil
}

// Update は在庫以外を更新する。在庫は UpdateStock で変える。
func (u *ProductUsecase) Update(ctx context.Context, id string, in ProductInput) (model.Product, error) {
	if err := validateScope(in.StoreID, id); err != nil {
		return model.Product{}, err
	}
	if err := validateProduct(in); err != nil {
		return model.Product{}, err
	}

	cur, err := u.Get(ctx, in.StoreID, id)
	if err != nil {
		return model.Product{}, err
	}

	cur.Name = strings.TrimSpace(in.Name)
	cur.Category = strings.TrimSpace(in.Category)
	cur.Barcode = strings.TrimSpace(in.Barcode)
	cur.ImageURL = in.ImageURL
	cur.Price = in.Price
	if in.MinStock != nil {
		cur.MinStock = *in.MinStock
	}
	if in.IsActive != nil {
		cur.IsActive = *in.IsActive
	}

	err = u.productRepo.Update(ctx, cur)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, notFoundError("product")
	}
	if err != nil {
		return model.Product{}, storageError(u.log, "products.update", err, zap.String("product_id", id))
	}
	return cur, nil
}

func (u *ProductUsecase) Delete(ctx context.Context, storeID, id string) error {
	if err := validateScope(storeID, id); err != nil {
		return err
	}

	err := u.productRepo.SoftDelete(ctx, storeID, id)
	if errors.Is(err, repo.ErrNotFound) {
		return notFoundError("product")
	}
	if err != nil {
		return storageError(u.log, "products.delete", err, zap.String("product_id", id))
	}
	return nil
}

// UpdateStock は棚卸しなどで在庫を直接設定する。履歴と監査ログを残す。
func (u *ProductUsecase) UpdateStock(ctx context.Context, storeID, id string, newStock int64, reason string, actorID *string) (model.Product, error) {
	if err := validateScope(storeID, id); err != nil {
		return model.Product{}, err
	}
	if newStock < 0 {
		return model.Product{}, validationError("stock must be >= 0")
	}
	if strings.TrimSpace(reason) == "" {
		return model.Product{}, validationError("reason required")
	}

	//在庫の現在値を更新（変更前を受け取る）
	before, err := u.inventoryRepo.SetStock(ctx, storeID, id, newStock, strings.TrimSpace(reason))
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, notFoundError("product")
	}
	if err != nil {
		return model.Product{}, storageError(u.log, "inventory.set_stock", err, zap.String("product_id", id))
	}

	//監査ログ（在庫更新）
	if err := u.auditRepo.Create(ctx, model.AuditLog{
		StoreID:      storeID,
		ActorID:      actorID,
		Action:       model.AuditActionUpdateStock,
		ResourceType: model.AuditResourceProduct,
		ResourceID:   id,
		BeforeJSON:   fmt.Sprintf(`{"stock":%d}`, before),
		AfterJSON:    fmt.Sprintf(`{"stock":%d}`, newStock),
		CreatedAt:    u.clock.Now(),
	}); err != nil {
		return model.Product{}, storageError(u.log, "audit_logs.create", err, zap.String("product_id", id))
	}

	u.log.Info("stock set",
		zap.String("store_id", storeID),
		zap.String("product_id", id),
		zap.Int64("before", before),
		zap.Int64("after", newStock),
	)
	return u.Get(ctx, storeID, id)
}

func validateProduct(in ProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return validationError("name required")
	}
	if in.Price < 0 {
		return validationError("price must be >= 0")
	}
	if in.MinStock != nil && *in.MinStock < 0 {
		return validationError("min_stock must be >= 0")
	}
	return nil
}
