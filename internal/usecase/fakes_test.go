package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pos/internal/domain/model"
	repo "pos/internal/repository"

	"github.com/stretchr/testify/mock"
)

const (
	testStore = "6f1c2d3e-4b5a-4c6d-8e7f-9a0b1c2d3e4f"
	productA  = "a0000000-0000-4000-8000-00000000000a"
	productB  = "b0000000-0000-4000-8000-00000000000b"
	missingP  = "c0000000-0000-4000-8000-00000000000c"
)

// =====================
// ID / Clock
// =====================

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", g.n)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// =====================
// 在庫（メモリ）
// =====================

type memInventory struct {
	mu        sync.Mutex
	products  map[string]*model.Product
	movements map[string]bool // line_item_id + kind
	applied   int
}

func newMemInventory(products ...model.Product) *memInventory {
	inv := &memInventory{
		products:  map[string]*model.Product{},
		movements: map[string]bool{},
	}
	for i := range products {
		p := products[i]
		inv.products[p.ID] = &p
	}
	return inv
}

func (m *memInventory) apply(storeID, productID string, delta func(int64) int64, mv model.StockMovement) (repo.StockResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok || p.StoreID != storeID {
		return repo.StockResult{}, repo.ErrNotFound
	}
	if mv.LineItemID != nil {
		key := *mv.LineItemID + "/" + string(mv.Kind)
		if m.movements[key] {
			return repo.StockResult{Before: p.Stock, After: p.Stock}, nil
		}
		m.movements[key] = true
	}
	before := p.Stock
	p.Stock = delta(p.Stock)
	m.applied++
	return repo.StockResult{Before: before, After: p.Stock, Applied: true}, nil
}

func (m *memInventory) Decrement(ctx context.Context, storeID, productID string, qty int64, mv model.StockMovement) (repo.StockResult, error) {
	//切断済みの ctx では DB と同じく失敗させる
	if err := ctx.Err(); err != nil {
		return repo.StockResult{}, err
	}
	return m.apply(storeID, productID, func(s int64) int64 {
		if s-qty < 0 {
			return 0
		}
		return s - qty
	}, mv)
}

func (m *memInventory) Increment(ctx context.Context, storeID, productID string, qty int64, mv model.StockMovement) (repo.StockResult, error) {
	if err := ctx.Err(); err != nil {
		return repo.StockResult{}, err
	}
	return m.apply(storeID, productID, func(s int64) int64 { return s + qty }, mv)
}

func (m *memInventory) Stock(_ context.Context, storeID, productID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok || p.StoreID != storeID {
		return 0, repo.ErrNotFound
	}
	return p.Stock, nil
}

func (m *memInventory) SetStock(_ context.Context, storeID, productID string, newStock int64, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok || p.StoreID != storeID {
		return 0, repo.ErrNotFound
	}
	before := p.Stock
	p.Stock = newStock
	return before, nil
}

func (m *memInventory) LowStock(_ context.Context, storeID string, limit int) ([]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Product{}
	for _, p := range m.products {
		if p.StoreID == storeID && p.IsActive && p.IsLowStock() {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stock < out[j].Stock })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memInventory) CountProducts(_ context.Context, storeID string) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total, low int64
	for _, p := range m.products {
		if p.StoreID != storeID || !p.IsActive {
			continue
		}
		total++
		if p.IsLowStock() {
			low++
		}
	}
	return total, low, nil
}

func (m *memInventory) stock(id string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

// =====================
// 会計（メモリ）
// =====================

type memTransactions struct {
	mu     sync.Mutex
	rows   map[string]model.Transaction
	locked int
}

func newMemTransactions(rows ...model.Transaction) *memTransactions {
	m := &memTransactions{rows: map[string]model.Transaction{}}
	for _, t := range rows {
		m.rows[t.ID] = t
	}
	return m
}

func (m *memTransactions) Create(_ context.Context, t model.Transaction) (model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.IdempotencyKey != nil {
		for _, r := range m.rows {
			if r.StoreID == t.StoreID && r.IdempotencyKey != nil && *r.IdempotencyKey == *t.IdempotencyKey {
				return model.Transaction{}, repo.ErrDuplicate
			}
		}
	}
	m.rows[t.ID] = t
	return t, nil
}

func (m *memTransactions) FindByID(_ context.Context, storeID, id string) (model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok || t.StoreID != storeID {
		return model.Transaction{}, repo.ErrNotFound
	}
	return t, nil
}

func (m *memTransactions) FindByIDForUpdate(ctx context.Context, storeID, id string) (model.Transaction, error) {
	m.mu.Lock()
	m.locked++
	m.mu.Unlock()
	return m.FindByID(ctx, storeID, id)
}

func (m *memTransactions) FindByIdempotencyKey(_ context.Context, storeID, key string) (model.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.rows {
		if t.StoreID == storeID && t.IdempotencyKey != nil && *t.IdempotencyKey == key {
			return t, true, nil
		}
	}
	return model.Transaction{}, false, nil
}

func (m *memTransactions) sorted(storeID string, keep func(model.Transaction) bool) []model.Transaction {
	out := []model.Transaction{}
	for _, t := range m.rows {
		if t.StoreID == storeID && keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memTransactions) List(_ context.Context, f repo.TransactionListFilter) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sorted(f.StoreID, func(t model.Transaction) bool {
		if f.Status != "" && t.Status != f.Status {
			return false
		}
		if f.PaymentMethod != "" && t.PaymentMethod != f.PaymentMethod {
			return false
		}
		if f.DateFrom != nil && t.CreatedAt.Before(*f.DateFrom) {
			return false
		}
		if f.DateTo != nil && t.CreatedAt.After(*f.DateTo) {
			return false
		}
		return true
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memTransactions) ListBetween(_ context.Context, storeID string, from, to time.Time) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(storeID, func(t model.Transaction) bool {
		return !t.CreatedAt.Before(from) && t.CreatedAt.Before(to)
	}), nil
}

func (m *memTransactions) TopProducts(context.Context, string, time.Time, time.Time, int) ([]repo.ProductSales, error) {
	return []repo.ProductSales{}, nil
}

func (m *memTransactions) UpdateStatus(_ context.Context, storeID, id string, status model.TransactionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok || t.StoreID != storeID {
		return repo.ErrNotFound
	}
	t.Status = status
	m.rows[id] = t
	return nil
}

func (m *memTransactions) UpdateNotes(_ context.Context, storeID, id string, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok || t.StoreID != storeID {
		return repo.ErrNotFound
	}
	t.Notes = notes
	m.rows[id] = t
	return nil
}

func (m *memTransactions) Delete(_ context.Context, storeID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok || t.StoreID != storeID {
		return repo.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

// =====================
// 監査ログ / Tx
// =====================

type memAudit struct {
	mu   sync.Mutex
	logs []model.AuditLog
}

func (m *memAudit) Create(_ context.Context, log model.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}

func (m *memAudit) List(_ context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.AuditLog{}
	for i := len(m.logs) - 1; i >= 0; i-- {
		l := m.logs[i]
		if l.StoreID != f.StoreID {
			continue
		}
		if f.ResourceID != nil && l.ResourceID != *f.ResourceID {
			continue
		}
		if f.Action != nil && l.Action != *f.Action {
			continue
		}
		if f.CreatedFrom != nil && l.CreatedAt.Before(*f.CreatedFrom) {
			continue
		}
		if f.CreatedTo != nil && l.CreatedAt.After(*f.CreatedTo) {
			continue
		}
		out = append(out, l)
	}
	if f.Offset >= len(out) {
		return []model.AuditLog{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memAudit) count(action model.AuditAction) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.logs {
		if l.Action == action {
			n++
		}
	}
	return n
}

type memTxRepos struct {
	transactions repo.TransactionRepository
	audit        repo.AuditLogRepository
}

func (r memTxRepos) Transactions() repo.TransactionRepository { return r.transactions }
func (r memTxRepos) AuditLogs() repo.AuditLogRepository       { return r.audit }

// TxManagerMock は WithinTx の中で渡す repos を固定して unit テストを回す
type TxManagerMock struct {
	mock.Mock
	Repos repo.TxRepos
}

func (m *TxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	m.Called(ctx)
	return fn(m.Repos)
}

// =====================
// 冪等ガード
// =====================

type IdempotencyGuardMock struct{ mock.Mock }

func (m *IdempotencyGuardMock) Claim(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *IdempotencyGuardMock) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type allowAll struct{}

func (allowAll) Claim(context.Context, string) (bool, error) { return true, nil }
func (allowAll) Release(context.Context, string) error       { return nil }

// =====================
// Repository mocks（エラー系）
// =====================

type TransactionRepoMock struct{ mock.Mock }

func (m *TransactionRepoMock) Create(ctx context.Context, t model.Transaction) (model.Transaction, error) {
	args := m.Called(ctx, t)
	out, _ := args.Get(0).(model.Transaction)
	return out, args.Error(1)
}

func (m *TransactionRepoMock) FindByID(ctx context.Context, storeID, id string) (model.Transaction, error) {
	args := m.Called(ctx, storeID, id)
	out, _ := args.Get(0).(model.Transaction)
	return out, args.Error(1)
}

func (m *TransactionRepoMock) FindByIDForUpdate(ctx context.Context, storeID, id string) (model.Transaction, error) {
	args := m.Called(ctx, storeID, id)
	out, _ := args.Get(0).(model.Transaction)
	return out, args.Error(1)
}

func (m *TransactionRepoMock) FindByIdempotencyKey(ctx context.Context, storeID, key string) (model.Transaction, bool, error) {
	args := m.Called(ctx, storeID, key)
	out, _ := args.Get(0).(model.Transaction)
	return out, args.Bool(1), args.Error(2)
}

func (m *TransactionRepoMock) List(ctx context.Context, f repo.TransactionListFilter) ([]model.Transaction, error) {
	args := m.Called(ctx, f)
	out, _ := args.Get(0).([]model.Transaction)
	return out, args.Error(1)
}

func (m *TransactionRepoMock) ListBetween(ctx context.Context, storeID string, from, to time.Time) ([]model.Transaction, error) {
	args := m.Called(ctx, storeID, from, to)
	out, _ := args.Get(0).([]model.Transaction)
	return out, args.Error(1)
}

func (m *TransactionRepoMock) TopProducts(ctx context.Context, storeID string, from, to time.Time, limit int) ([]repo.ProductSales, error) {
	args := m.Called(ctx, storeID, from, to, limit)
	out, _ := args.Get(0).([]repo.ProductSales)
	return out, args.Error(1)
}

func (m *TransactionRepoMock) UpdateStatus(ctx context.Context, storeID, id string, status model.TransactionStatus) error {
	panic("not used")
}

func (m *TransactionRepoMock) UpdateNotes(ctx context.Context, storeID, id string, notes string) error {
	panic("not used")
}

func (m *TransactionRepoMock) Delete(ctx context.Context, storeID, id string) error {
	panic("not used")
}

type InventoryRepoMock struct{ mock.Mock }

func (m *InventoryRepoMock) Decrement(ctx context.Context, storeID, productID string, qty int64, mv model.StockMovement) (repo.StockResult, error) {
	args := m.Called(ctx, storeID, productID, qty, mv)
	out, _ := args.Get(0).(repo.StockResult)
	return out, args.Error(1)
}

func (m *InventoryRepoMock) Increment(ctx context.Context, storeID, productID string, qty int64, mv model.StockMovement) (repo.StockResult, error) {
	args := m.Called(ctx, storeID, productID, qty, mv)
	out, _ := args.Get(0).(repo.StockResult)
	return out, args.Error(1)
}

func (m *InventoryRepoMock) Stock(ctx context.Context, storeID, productID string) (int64, error) {
	args := m.Called(ctx, storeID, productID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *InventoryRepoMock) SetStock(ctx context.Context, storeID, productID string, newStock int64, reason string) (int64, error) {
	args := m.Called(ctx, storeID, productID, newStock, reason)
	return args.Get(0).(int64), args.Error(1)
}

func (m *InventoryRepoMock) LowStock(ctx context.Context, storeID string, limit int) ([]model.Product, error) {
	args := m.Called(ctx, storeID, limit)
	out, _ := args.Get(0).([]model.Product)
	return out, args.Error(1)
}

func (m *InventoryRepoMock) CountProducts(ctx context.Context, storeID string) (int64, int64, error) {
	args := m.Called(ctx, storeID)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }
