package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"pos/internal/domain/model"
	repo "pos/internal/repository"
	"pos/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// TransactionUsecase は会計の作成・ステータス変更・削除と在庫の補償をまとめる。
// 会計の記録と在庫更新は別々にコミットする（先に会計、後から明細ごとの在庫）。
type TransactionUsecase struct {
	transactions repo.TransactionRepository
	auditLogs    repo.AuditLogRepository
	tx           repo.TransactionManager
	ledger       *InventoryLedger
	idem         repo.IdempotencyGuard
	idGen        IDGenerator
	clock        Clock
	log          *zap.Logger

	// true なら total = subtotal + tax - discount を強制
	strictTotals bool
}

func NewTransactionUsecase(
	transactions repo.TransactionRepository,
	auditLogs repo.AuditLogRepository,
	tx repo.TransactionManager,
	ledger *InventoryLedger,
	idem repo.IdempotencyGuard,
	idGen IDGenerator,
	clock Clock,
	log *zap.Logger,
	strictTotals bool,
) *TransactionUsecase {
	return &TransactionUsecase{
		transactions: transactions,
		auditLogs:    auditLogs,
		tx:           tx,
		ledger:       ledger,
		idem:         idem,
		idGen:        idGen,
		clock:        clock,
		log:          log,
		strictTotals: strictTotals,
	}
}

// 明細の入力（handler で id/product_id, qty/quantity を正規化済み）
type LineItemInput struct {
	ProductID string
	Name      string
	Quantity  int64
	UnitPrice int64
}

type CheckoutInput struct {
	StoreID        string
	CashierID      *string
	CustomerID     *string
	Items          []LineItemInput
	Subtotal       int64
	Tax            int64
	Discount       int64
	Total          int64
	PaymentMethod  string
	PaymentAmount  *int64
	Notes          string
	IdempotencyKey string
}

// status / notes 以外は変更できない
type UpdateTransactionInput struct {
	Status  *string
	Notes   *string
	ActorID *string
}

type TransactionOutput struct {
	model.Transaction
	StockAdjustments []StockChangeResult `json:"stock_adjustments,omitempty"`
	Replayed         bool                `json:"replayed,omitempty"`
}

type DeleteTransactionOutput struct {
	ID               string              `json:"id"`
	StockAdjustments []StockChangeResult `json:"stock_adjustments"`
}

type ListTransactionsInput struct {
	StoreID       string
	DateFrom      *time.Time
	DateTo        *time.Time
	Status        string
	PaymentMethod string
	Limit         int
}

// Checkout は会計を記録し、明細ごとに在庫を減らす。
func (u *TransactionUsecase) Checkout(ctx context.Context, in CheckoutInput) (TransactionOutput, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "transaction.checkout")
	defer span.End()
	span.SetAttributes(attribute.String("store_id", in.StoreID), attribute.Int("items", len(in.Items)))

	if err := u.validateCheckout(&in); err != nil {
		return TransactionOutput{}, err
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		// 同じキーなら同じ結果
		existing, found, err := u.transactions.FindByIdempotencyKey(ctx, in.StoreID, key)
		if err != nil {
			return TransactionOutput{}, storageError(u.log, "transactions.find_by_idempotency_key", err, zap.String("store_id", in.StoreID))
		}
		if found {
			return TransactionOutput{Transaction: existing, Replayed: true}, nil
		}

		claimKey := in.StoreID + ":" + key
		ok, err := u.idem.Claim(ctx, claimKey)
		if err != nil {
			//Redis が落ちていても DB の一意制約で守れるので続行
			u.log.Warn("idempotency claim failed", zap.String("store_id", in.StoreID), zap.Error(err))
		} else if !ok {
			return TransactionOutput{}, conflictError("checkout already in progress")
		}
		defer func() {
			if in.IdempotencyKey == "" {
				return
			}
			if err := u.idem.Release(context.WithoutCancel(ctx), claimKey); err != nil {
				u.log.Warn("idempotency release failed", zap.String("store_id", in.StoreID), zap.Error(err))
			}
		}()
	}

	t := u.buildTransaction(in, key)

	created, err := u.transactions.Create(ctx, t)
	if errors.Is(err, repo.ErrDuplicate) && key != "" {
		//同時に同じキーが入った
		existing, found, err2 := u.transactions.FindByIdempotencyKey(ctx, in.StoreID, key)
		if err2 == nil && found {
			return TransactionOutput{Transaction: existing, Replayed: true}, nil
		}
		return TransactionOutput{}, conflictError("idempotency conflict")
	}
	if err != nil {
		return TransactionOutput{}, storageError(u.log, "transactions.create", err, zap.String("store_id", in.StoreID))
	}
	//成功したらキーは TTL まで残す
	in.IdempotencyKey = ""

	u.log.Info("checkout recorded",
		zap.String("store_id", created.StoreID),
		zap.String("transaction_id", created.ID),
		zap.Int64("total", created.Total),
		zap.Int("items", len(created.Items)),
	)

	//在庫を減らす（失敗した明細はログのみ）
	//会計はコミット済みなので、切断されても最後まで流す
	results := u.ledger.ApplyAll(context.WithoutCancel(ctx), created.StoreID, model.StockMovementSale, "sale", stockChangesOf(created))

	return TransactionOutput{Transaction: created, StockAdjustments: results}, nil
}

func (u *TransactionUsecase) validateCheckout(in *CheckoutInput) error {
	in.StoreID = strings.TrimSpace(in.StoreID)
	if in.StoreID == "" {
		return validationError("store_id is required")
	}
	if !validUUID(in.StoreID) {
		return validationError("invalid store_id")
	}
	if in.CashierID != nil && !validUUID(*in.CashierID) {
		return validationError("invalid cashier_id")
	}
	if in.CustomerID != nil && !validUUID(*in.CustomerID) {
		return validationError("invalid customer_id")
	}
	if len(in.Items) == 0 {
		return validationError("items must not be empty")
	}

	var itemsSubtotal int64
	for _, it := range in.Items {
		if !validUUID(it.ProductID) {
			return validationError("invalid product_id")
		}
		if it.Quantity <= 0 {
			return validationError("quantity must be > 0")
		}
		if it.UnitPrice < 0 {
			return validationError("price must be >= 0")
		}
		line, ok := mulAmount(it.UnitPrice, it.Quantity)
		if !ok {
			return validationError("line total is too large")
		}
		if itemsSubtotal, ok = addAmount(itemsSubtotal, line); !ok {
			return validationError("subtotal is too large")
		}
	}

	if in.Total < 0 {
		return validationError("total must be >= 0")
	}
	if in.Subtotal < 0 || in.Tax < 0 || in.Discount < 0 {
		return validationError("amounts must be >= 0")
	}
	if in.PaymentAmount != nil && *in.PaymentAmount < 0 {
		return validationError("payment_amount must be >= 0")
	}
	if len(in.IdempotencyKey) > 255 {
		return validationError("invalid idempotency_key")
	}

	//subtotal 未指定なら明細から出す
	if in.Subtotal == 0 {
		in.Subtotal = itemsSubtotal
	}
	gross, ok := addAmount(in.Subtotal, in.Tax)
	if !ok {
		return validationError("subtotal + tax is too large")
	}
	if expected := gross - in.Discount; in.Total != expected {
		if u.strictTotals {
			return validationError("total must equal subtotal + tax - discount")
		}
		u.log.Warn("total mismatch",
			zap.String("store_id", in.StoreID),
			zap.Int64("total", in.Total),
			zap.Int64("expected", expected),
		)
	}
	return nil
}

func (u *TransactionUsecase) buildTransaction(in CheckoutInput, key string) model.Transaction {
	now := u.clock.Now()

	method := model.PaymentMethod(strings.ToLower(strings.TrimSpace(in.PaymentMethod)))
	if method == "" {
		method = model.PaymentMethodCash
	}

	//おつり
	var change int64
	if in.PaymentAmount != nil && *in.PaymentAmount > in.Total {
		change = *in.PaymentAmount - in.Total
	}

	t := model.Transaction{
		ID:            u.idGen.NewID(),
		StoreID:       in.StoreID,
		CashierID:     in.CashierID,
		CustomerID:    in.CustomerID,
		Subtotal:      in.Subtotal,
		Tax:           in.Tax,
		Discount:      in.Discount,
		Total:         in.Total,
		PaymentMethod: method,
		PaymentAmount: in.PaymentAmount,
		ChangeAmount:  change,
		Status:        model.TransactionStatusCompleted,
		Notes:         in.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if key != "" {
		t.IdempotencyKey = &key
	}

	t.Items = make([]model.TransactionItem, 0, len(in.Items))
	for i, it := range in.Items {
		t.Items = append(t.Items, model.TransactionItem{
			ID:            u.idGen.NewID(),
			TransactionID: t.ID,
			ProductID:     it.ProductID,
			Name:          it.Name,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
			Position:      i,
		})
	}
	return t
}

func (u *TransactionUsecase) Get(ctx context.Context, storeID, id string) (model.Transaction, error) {
	if err := validateScope(storeID, id); err != nil {
		return model.Transaction{}, err
	}

	t, err := u.transactions.FindByID(ctx, storeID, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Transaction{}, notFoundError("transaction")
	}
	if err != nil {
		return model.Transaction{}, storageError(u.log, "transactions.find", err, zap.String("transaction_id", id))
	}
	return t, nil
}

func (u *TransactionUsecase) List(ctx context.Context, in ListTransactionsInput) ([]model.Transaction, error) {
	if strings.TrimSpace(in.StoreID) == "" {
		return []model.Transaction{}, validationError("store_id is required")
	}
	if !validUUID(in.StoreID) {
		return []model.Transaction{}, validationError("invalid store_id")
	}
	status := model.TransactionStatus(in.Status)
	if status != "" && !status.IsValid() {
		return []model.Transaction{}, validationError("invalid status")
	}
	if in.Limit < 0 {
		return []model.Transaction{}, validationError("invalid limit")
	}
	if in.DateFrom != nil && in.DateTo != nil && in.DateFrom.After(*in.DateTo) {
		return []model.Transaction{}, validationError("date_from must be <= date_to")
	}

	items, err := u.transactions.List(ctx, repo.TransactionListFilter{
		StoreID:       in.StoreID,
		DateFrom:      in.DateFrom,
		DateTo:        in.DateTo,
		Status:        status,
		PaymentMethod: model.PaymentMethod(strings.ToLower(in.PaymentMethod)),
		Limit:         in.Limit,
	})
	if err != nil {
		return []model.Transaction{}, storageError(u.log, "transactions.list", err, zap.String("store_id", in.StoreID))
	}
	return items, nil
}

// UpdateFields は status / notes を更新する。
// 返金・取消への初回遷移のときだけ、コミット後に在庫を戻す。
func (u *TransactionUsecase) UpdateFields(ctx context.Context, storeID, id string, in UpdateTransactionInput) (TransactionOutput, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "transaction.update")
	defer span.End()
	span.SetAttributes(attribute.String("store_id", storeID), attribute.String("transaction_id", id))

	if err := validateScope(storeID, id); err != nil {
		return TransactionOutput{}, err
	}
	if in.Status == nil && in.Notes == nil {
		return TransactionOutput{}, validationError("nothing to update")
	}

	var next model.TransactionStatus
	if in.Status != nil {
		next = model.TransactionStatus(strings.ToLower(strings.TrimSpace(*in.Status)))
		if !next.IsValid() {
			return TransactionOutput{}, validationError("invalid status")
		}
	}

	var (
		before  model.Transaction
		restock bool
	)
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//同時のステータス変更は行ロックで順番に通す
		t, err := r.Transactions().FindByIDForUpdate(ctx, storeID, id)
		if errors.Is(err, repo.ErrNotFound) {
			return notFoundError("transaction")
		}
		if err != nil {
			return storageError(u.log, "transactions.find", err, zap.String("transaction_id", id))
		}
		before = t

		// すでに同じなら何もしない
		if next != "" && next != t.Status {
			if err := r.Transactions().UpdateStatus(ctx, storeID, id, next); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return notFoundError("transaction")
				}
				return storageError(u.log, "transactions.update_status", err, zap.String("transaction_id", id))
			}
			restock = restocksOnTransition(t.Status, next)

			if err := r.AuditLogs().Create(ctx, model.AuditLog{
				StoreID:      storeID,
				ActorID:      in.ActorID,
				Action:       model.AuditActionUpdateTransactionStatus,
				ResourceType: model.AuditResourceTransaction,
				ResourceID:   id,
				BeforeJSON:   statusJSON(t.Status),
				AfterJSON:    statusJSON(next),
				CreatedAt:    u.clock.Now(),
			}); err != nil {
				return storageError(u.log, "audit_logs.create", err, zap.String("transaction_id", id))
			}
		}

		if in.Notes != nil {
			if err := r.Transactions().UpdateNotes(ctx, storeID, id, *in.Notes); err != nil {
				return storageError(u.log, "transactions.update_notes", err, zap.String("transaction_id", id))
			}
		}
		return nil
	})
	if err != nil {
		return TransactionOutput{}, err
	}

	var results []StockChangeResult
	if restock {
		u.log.Info("restocking reversed transaction",
			zap.String("store_id", storeID),
			zap.String("transaction_id", id),
			zap.String("from", string(before.Status)),
			zap.String("to", string(next)),
		)
		results = u.ledger.ApplyAll(context.WithoutCancel(ctx), storeID, model.StockMovementRestore, restockReason(next), stockChangesOf(before))
	}

	after, err := u.Get(ctx, storeID, id)
	if err != nil {
		return TransactionOutput{}, err
	}
	return TransactionOutput{Transaction: after, StockAdjustments: results}, nil
}

// Delete は会計を物理削除する。完了済みなら先に在庫を戻す。
func (u *TransactionUsecase) Delete(ctx context.Context, storeID, id string, actorID *string) (DeleteTransactionOutput, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "transaction.delete")
	defer span.End()
	span.SetAttributes(attribute.String("store_id", storeID), attribute.String("transaction_id", id))

	t, err := u.Get(ctx, storeID, id)
	if err != nil {
		return DeleteTransactionOutput{}, err
	}

	results := []StockChangeResult{}
	if restocksOnDelete(t.Status) {
		results = u.ledger.ApplyAll(context.WithoutCancel(ctx), storeID, model.StockMovementRestore, "delete", stockChangesOf(t))
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Transactions().Delete(ctx, storeID, id); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFoundError("transaction")
			}
			return storageError(u.log, "transactions.delete", err, zap.String("transaction_id", id))
		}

		beforeJSON, _ := json.Marshal(map[string]interface{}{
			"status": t.Status,
			"total":  t.Total,
			"items":  len(t.Items),
		})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			StoreID:      storeID,
			ActorID:      actorID,
			Action:       model.AuditActionDeleteTransaction,
			ResourceType: model.AuditResourceTransaction,
			ResourceID:   id,
			BeforeJSON:   string(beforeJSON),
			AfterJSON:    "null",
			CreatedAt:    u.clock.Now(),
		}); err != nil {
			return storageError(u.log, "audit_logs.create", err, zap.String("transaction_id", id))
		}
		return nil
	})
	if err != nil {
		return DeleteTransactionOutput{}, err
	}

	u.log.Info("transaction deleted",
		zap.String("store_id", storeID),
		zap.String("transaction_id", id),
		zap.String("status", string(t.Status)),
	)
	return DeleteTransactionOutput{ID: id, StockAdjustments: results}, nil
}

// 履歴の絞り込み
type HistoryQuery struct {
	Action   string
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
	Offset   int
}

// History は会計のステータス変更・削除の履歴（新しい順）
func (u *TransactionUsecase) History(ctx context.Context, storeID, id string, q HistoryQuery) ([]model.AuditLog, error) {
	if err := validateScope(storeID, id); err != nil {
		return []model.AuditLog{}, err
	}
	if q.Limit < 0 || q.Offset < 0 {
		return []model.AuditLog{}, validationError("invalid limit/offset")
	}
	if q.DateFrom != nil && q.DateTo != nil && q.DateFrom.After(*q.DateTo) {
		return []model.AuditLog{}, validationError("date_from must be <= date_to")
	}

	rt := model.AuditResourceTransaction
	f := repo.AuditLogFilter{
		StoreID:      storeID,
		ResourceType: &rt,
		ResourceID:   &id,
		CreatedFrom:  q.DateFrom,
		CreatedTo:    q.DateTo,
		Limit:        q.Limit,
		Offset:       q.Offset,
	}
	if a := strings.ToUpper(strings.TrimSpace(q.Action)); a != "" {
		action := model.AuditAction(a)
		switch action {
		case model.AuditActionUpdateTransactionStatus, model.AuditActionDeleteTransaction:
		default:
			return []model.AuditLog{}, validationError("invalid action")
		}
		f.Action = &action
	}

	logs, err := u.auditLogs.List(ctx, f)
	if err != nil {
		return []model.AuditLog{}, storageError(u.log, "audit_logs.list", err, zap.String("transaction_id", id))
	}
	return logs, nil
}

func validateScope(storeID, id string) error {
	if strings.TrimSpace(storeID) == "" {
		return validationError("store_id is required")
	}
	if !validUUID(storeID) {
		return validationError("invalid store_id")
	}
	if !validUUID(id) {
		return validationError("invalid id")
	}
	return nil
}

func statusJSON(s model.TransactionStatus) string {
	return `{"status":"` + string(s) + `"}`
}

// 金額の掛け算・足し算。int64 を超えるなら false
func mulAmount(price, qty int64) (int64, bool) {
	if price != 0 && qty > math.MaxInt64/price {
		return 0, false
	}
	return price * qty, true
}

func addAmount(a, b int64) (int64, bool) {
	if a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}
