package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"pos/internal/domain/model"
	repo "pos/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLedger_DecrementAndIncrement(t *testing.T) {
	inv := newMemInventory(product(productA, 5))
	l := NewInventoryLedger(inv, zap.NewNop(), 2)
	ctx := context.Background()

	res, err := l.Decrement(ctx, testStore, StockChange{ProductID: productA, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Before)
	assert.Equal(t, int64(3), res.After)

	res, err = l.Decrement(ctx, testStore, StockChange{ProductID: productA, Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.After)

	res, err = l.Increment(ctx, testStore, StockChange{ProductID: productA, Quantity: 4}, "refund")
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.After)

	stock, err := l.Read(ctx, testStore, productA)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stock)
}

func TestLedger_RejectsNonPositiveQuantity(t *testing.T) {
	l := NewInventoryLedger(newMemInventory(product(productA, 5)), zap.NewNop(), 1)

	_, err := l.Decrement(context.Background(), testStore, StockChange{ProductID: productA, Quantity: 0})
	assertStatus(t, err, http.StatusBadRequest)

	_, err = l.Increment(context.Background(), testStore, StockChange{ProductID: productA, Quantity: -1}, "x")
	assertStatus(t, err, http.StatusBadRequest)
}

func TestLedger_ReadErrors(t *testing.T) {
	inv := &InventoryRepoMock{}
	inv.On("Stock", mock.Anything, testStore, missingP).Return(int64(0), repo.ErrNotFound)
	inv.On("Stock", mock.Anything, testStore, productB).Return(int64(0), errors.New("conn refused"))

	l := NewInventoryLedger(inv, zap.NewNop(), 1)

	_, err := l.Read(context.Background(), testStore, missingP)
	assertStatus(t, err, http.StatusNotFound)

	_, err = l.Read(context.Background(), testStore, productB)
	assertStatus(t, err, http.StatusInternalServerError)
}

func TestLedger_ApplyAllReportsEachLine(t *testing.T) {
	inv := &InventoryRepoMock{}
	inv.On("Decrement", mock.Anything, testStore, productA, int64(1), mock.Anything).
		Return(repo.StockResult{Before: 5, After: 4, Applied: true}, nil)
	inv.On("Decrement", mock.Anything, testStore, productB, int64(1), mock.Anything).
		Return(repo.StockResult{Before: 4, After: 4, Applied: false}, nil)
	inv.On("Decrement", mock.Anything, testStore, missingP, int64(1), mock.Anything).
		Return(repo.StockResult{}, errors.New("deadlock detected"))

	l := NewInventoryLedger(inv, zap.NewNop(), 3)
	results := l.ApplyAll(context.Background(), testStore, model.StockMovementSale, "sale", []StockChange{
		{TransactionID: "t1", LineItemID: "l1", ProductID: productA, Quantity: 1},
		{TransactionID: "t1", LineItemID: "l2", ProductID: productB, Quantity: 1},
		{TransactionID: "t1", LineItemID: "l3", ProductID: missingP, Quantity: 1},
	})

	require.Len(t, results, 3)
	assert.Equal(t, StockApplied, results[0].Outcome)
	assert.Equal(t, int64(4), results[0].StockAfter)
	assert.Equal(t, StockSkipped, results[1].Outcome)
	assert.Equal(t, StockFailed, results[2].Outcome)
	assert.Equal(t, "stock update failed", results[2].Error)

	//履歴に line_item_id と transaction_id を付ける
	inv.AssertCalled(t, "Decrement", mock.Anything, testStore, productA, int64(1), mock.MatchedBy(func(mv model.StockMovement) bool {
		return mv.Kind == model.StockMovementSale &&
			mv.LineItemID != nil && *mv.LineItemID == "l1" &&
			mv.TransactionID != nil && *mv.TransactionID == "t1"
	}))
}

func TestLedger_ApplyAllRestoreIsIdempotentPerLine(t *testing.T) {
	inv := newMemInventory(product(productA, 0))
	l := NewInventoryLedger(inv, zap.NewNop(), 4)

	changes := []StockChange{{TransactionID: "t1", LineItemID: "l1", ProductID: productA, Quantity: 3}}

	//同時に2回戻しても1回分だけ
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.ApplyAll(context.Background(), testStore, model.StockMovementRestore, "refund", changes)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), inv.stock(productA))
}

func TestLedger_ApplyAllConcurrentNeverNegative(t *testing.T) {
	inv := newMemInventory(product(productA, 10))
	l := NewInventoryLedger(inv, zap.NewNop(), 8)

	changes := make([]StockChange, 0, 20)
	for i := 0; i < 20; i++ {
		changes = append(changes, StockChange{
			TransactionID: "t1",
			LineItemID:    fmt.Sprintf("l%d", i),
			ProductID:     productA,
			Quantity:      1,
		})
	}

	results := l.ApplyAll(context.Background(), testStore, model.StockMovementSale, "sale", changes)
	assert.Len(t, results, 20)
	assert.Equal(t, int64(0), inv.stock(productA))
	assert.Equal(t, 20, inv.applied)
}

func TestStockChangesOf(t *testing.T) {
	tx := model.Transaction{
		ID: "t1",
		Items: []model.TransactionItem{
			{ID: "l1", ProductID: productA, Quantity: 2},
			{ID: "l2", ProductID: productB, Quantity: 1},
		},
	}

	got := stockChangesOf(tx)
	assert.Equal(t, []StockChange{
		{TransactionID: "t1", LineItemID: "l1", ProductID: productA, Quantity: 2},
		{TransactionID: "t1", LineItemID: "l2", ProductID: productB, Quantity: 1},
	}, got)
}
