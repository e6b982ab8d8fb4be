package usecase

import (
	"context"
	"errors"

	"pos/internal/domain/model"
	repo "pos/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// 会計明細1行ぶんの在庫変更
type StockChange struct {
	TransactionID string `json:"transaction_id"`
	LineItemID    string `json:"line_item_id"`
	ProductID     string `json:"product_id"`
	Quantity      int64  `json:"quantity"`
}

type StockOutcome string

const (
	StockApplied StockOutcome = "applied"
	// 同じ明細で既に反映済み
	StockSkipped StockOutcome = "skipped"
	StockFailed  StockOutcome = "failed"
)

type StockChangeResult struct {
	StockChange
	Outcome    StockOutcome `json:"outcome"`
	StockAfter int64        `json:"stock_after"`
	Error      string       `json:"error,omitempty"`
}

// InventoryLedger は在庫数の唯一の持ち主。
// 明細単位の失敗はログに出して続行する（会計そのものは止めない）。
type InventoryLedger struct {
	inventory repo.InventoryRepository
	log       *zap.Logger
	workers   int
}

func NewInventoryLedger(inventory repo.InventoryRepository, log *zap.Logger, workers int) *InventoryLedger {
	if workers < 1 {
		workers = 1
	}
	return &InventoryLedger{inventory: inventory, log: log, workers: workers}
}

// 在庫を減らす。足りない分は0で止めて警告だけ出す。
func (l *InventoryLedger) Decrement(ctx context.Context, storeID string, ch StockChange) (repo.StockResult, error) {
	if ch.Quantity <= 0 {
		return repo.StockResult{}, validationError("quantity must be > 0")
	}

	res, err := l.inventory.Decrement(ctx, storeID, ch.ProductID, ch.Quantity, movement(ch, model.StockMovementSale, "sale"))
	if err != nil {
		return repo.StockResult{}, err
	}
	if res.Applied && res.Before < ch.Quantity {
		l.log.Warn("oversold",
			zap.String("store_id", storeID),
			zap.String("product_id", ch.ProductID),
			zap.Int64("requested", ch.Quantity),
			zap.Int64("stock_before", res.Before),
		)
	}
	return res, nil
}

// 在庫を戻す
func (l *InventoryLedger) Increment(ctx context.Context, storeID string, ch StockChange, reason string) (repo.StockResult, error) {
	if ch.Quantity <= 0 {
		return repo.StockResult{}, validationError("quantity must be > 0")
	}
	return l.inventory.Increment(ctx, storeID, ch.ProductID, ch.Quantity, movement(ch, model.StockMovementRestore, reason))
}

// 在庫の現在値
func (l *InventoryLedger) Read(ctx context.Context, storeID, productID string) (int64, error) {
	stock, err := l.inventory.Stock(ctx, storeID, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, notFoundError("product")
	}
	if err != nil {
		return 0, storageError(l.log, "inventory.stock", err, zap.String("product_id", productID))
	}
	return stock, nil
}

// ApplyAll は明細ごとの在庫変更を並行に流し、全部終わるまで待つ。
// kind が restore のときは reason を履歴に残す。
func (l *InventoryLedger) ApplyAll(ctx context.Context, storeID string, kind model.StockMovementKind, reason string, changes []StockChange) []StockChangeResult {
	results := make([]StockChangeResult, len(changes))

	var g errgroup.Group
	g.SetLimit(l.workers)

	for i, ch := range changes {
		i, ch := i, ch
		g.Go(func() error {
			var (
				res repo.StockResult
				err error
			)
			if kind == model.StockMovementRestore {
				res, err = l.Increment(ctx, storeID, ch, reason)
			} else {
				res, err = l.Decrement(ctx, storeID, ch)
			}
			results[i] = l.outcome(storeID, kind, ch, res, err)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (l *InventoryLedger) outcome(storeID string, kind model.StockMovementKind, ch StockChange, res repo.StockResult, err error) StockChangeResult {
	out := StockChangeResult{StockChange: ch}

	if err != nil {
		fields := []zap.Field{
			zap.String("store_id", storeID),
			zap.String("transaction_id", ch.TransactionID),
			zap.String("product_id", ch.ProductID),
			zap.Int64("quantity", ch.Quantity),
			zap.String("kind", string(kind)),
			zap.Error(err),
		}
		if errors.Is(err, repo.ErrNotFound) {
			l.log.Warn("stock adjustment skipped: product not found", fields...)
			out.Error = "product not found"
		} else {
			l.log.Error("stock adjustment failed", fields...)
			out.Error = "stock update failed"
		}
		out.Outcome = StockFailed
		return out
	}

	out.StockAfter = res.After
	if res.Applied {
		out.Outcome = StockApplied
	} else {
		out.Outcome = StockSkipped
	}
	return out
}

func movement(ch StockChange, kind model.StockMovementKind, reason string) model.StockMovement {
	mv := model.StockMovement{
		Kind:   kind,
		Reason: reason,
	}
	if ch.TransactionID != "" {
		txID := ch.TransactionID
		mv.TransactionID = &txID
	}
	if ch.LineItemID != "" {
		lineID := ch.LineItemID
		mv.LineItemID = &lineID
	}
	return mv
}

// 会計の明細から在庫変更の一覧を作る
func stockChangesOf(t model.Transaction) []StockChange {
	changes := make([]StockChange, 0, len(t.Items))
	for _, it := range t.Items {
		changes = append(changes, StockChange{
			TransactionID: t.ID,
			LineItemID:    it.ID,
			ProductID:     it.ProductID,
			Quantity:      it.Quantity,
		})
	}
	return changes
}
