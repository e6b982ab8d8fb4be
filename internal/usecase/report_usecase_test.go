package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"pos/internal/domain/model"
	repo "pos/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var reportNow = time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC)

func sale(id string, at time.Time, total, tax int64, status model.TransactionStatus, method model.PaymentMethod, qty ...int64) model.Transaction {
	t := model.Transaction{
		ID:            id,
		StoreID:       testStore,
		Total:         total,
		Tax:           tax,
		Status:        status,
		PaymentMethod: method,
		CreatedAt:     at,
	}
	for _, q := range qty {
		t.Items = append(t.Items, model.TransactionItem{ProductID: productA, Quantity: q})
	}
	return t
}

func newReport(txs repo.TransactionRepository, inv repo.InventoryRepository) *ReportUsecase {
	return NewReportUsecase(txs, inv, fixedClock{t: reportNow}, time.UTC, zap.NewNop())
}

func TestDailySummary(t *testing.T) {
	day := time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC)
	txs := newMemTransactions(
		sale("11111111-0000-4000-8000-000000000001", day.Add(9*time.Hour), 1000, 100, model.TransactionStatusCompleted, model.PaymentMethodCash),
		sale("11111111-0000-4000-8000-000000000002", day.Add(18*time.Hour), 1500, 150, "", model.PaymentMethodCard),
		sale("11111111-0000-4000-8000-000000000003", day.Add(20*time.Hour), 700, 70, model.TransactionStatusRefunded, model.PaymentMethodCash),
		//翌日0時ちょうどは含まない
		sale("11111111-0000-4000-8000-000000000004", day.AddDate(0, 0, 1), 9999, 999, model.TransactionStatusCompleted, model.PaymentMethodCash),
	)

	out, err := newReport(txs, newMemInventory()).DailySummary(context.Background(), testStore, "2024-05-09")
	require.NoError(t, err)

	assert.Equal(t, "2024-05-09", out.Date)
	assert.Equal(t, int64(2), out.TotalTransactions)
	assert.Equal(t, int64(2500), out.TotalSales)
	assert.Equal(t, int64(250), out.TotalTax)

	//内訳は返金も含む
	assert.Equal(t, PaymentMethodTotal{Count: 2, Total: 1700}, out.ByPaymentMethod["cash"])
	assert.Equal(t, PaymentMethodTotal{Count: 1, Total: 1500}, out.ByPaymentMethod["card"])
	assert.Equal(t, map[string]int64{"completed": 2, "refunded": 1}, out.ByStatus)
}

func TestDailySummary_DefaultsToToday(t *testing.T) {
	txs := newMemTransactions(
		sale("11111111-0000-4000-8000-000000000001", reportNow.Add(-time.Hour), 800, 80, model.TransactionStatusCompleted, model.PaymentMethodCash),
	)

	out, err := newReport(txs, newMemInventory()).DailySummary(context.Background(), testStore, "")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-10", out.Date)
	assert.Equal(t, int64(800), out.TotalSales)
}

func TestDailySummary_StoreTimezone(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)
	// 5/9 20:00 UTC は現地では 5/10 03:00
	txs := newMemTransactions(
		sale("11111111-0000-4000-8000-000000000001", time.Date(2024, 5, 9, 20, 0, 0, 0, time.UTC), 500, 0, model.TransactionStatusCompleted, model.PaymentMethodCash),
	)
	uc := NewReportUsecase(txs, newMemInventory(), fixedClock{t: reportNow}, jakarta, zap.NewNop())

	out, err := uc.DailySummary(context.Background(), testStore, "2024-05-10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.TotalTransactions)

	out, err = uc.DailySummary(context.Background(), testStore, "2024-05-09")
	require.NoError(t, err)
	assert.Equal(t, int64(0), out.TotalTransactions)
}

func TestDailySummary_Validation(t *testing.T) {
	uc := newReport(newMemTransactions(), newMemInventory())

	_, err := uc.DailySummary(context.Background(), "", "")
	assertStatus(t, err, http.StatusBadRequest)

	_, err = uc.DailySummary(context.Background(), testStore, "09/05/2024")
	assertStatus(t, err, http.StatusBadRequest)
}

func TestRangeSummary_Average(t *testing.T) {
	txs := newMemTransactions(
		sale("11111111-0000-4000-8000-000000000001", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), 1000, 100, model.TransactionStatusCompleted, model.PaymentMethodCash),
		sale("11111111-0000-4000-8000-000000000002", time.Date(2024, 5, 3, 23, 59, 59, 0, time.UTC), 1501, 150, model.TransactionStatusCompleted, model.PaymentMethodCash),
		sale("11111111-0000-4000-8000-000000000003", time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC), 5000, 500, model.TransactionStatusCancelled, model.PaymentMethodCash),
		sale("11111111-0000-4000-8000-000000000004", time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC), 5000, 500, model.TransactionStatusCompleted, model.PaymentMethodCash),
	)

	out, err := newReport(txs, newMemInventory()).RangeSummary(context.Background(), testStore, "2024-05-01", "2024-05-03")
	require.NoError(t, err)

	assert.Equal(t, int64(2), out.TotalTransactions)
	assert.Equal(t, int64(2501), out.TotalSales)
	assert.Equal(t, int64(250), out.TotalTax)
	assert.Equal(t, int64(1251), out.AverageTransaction)
}

func TestRangeSummary_EmptyAverageIsZero(t *testing.T) {
	out, err := newReport(newMemTransactions(), newMemInventory()).RangeSummary(context.Background(), testStore, "2024-05-01", "2024-05-03")
	require.NoError(t, err)
	assert.Equal(t, int64(0), out.TotalTransactions)
	assert.Equal(t, int64(0), out.AverageTransaction)
}

func TestRangeSummary_Validation(t *testing.T) {
	uc := newReport(newMemTransactions(), newMemInventory())
	ctx := context.Background()

	_, err := uc.RangeSummary(ctx, testStore, "", "2024-05-03")
	assertStatus(t, err, http.StatusBadRequest)

	_, err = uc.RangeSummary(ctx, testStore, "2024-05-04", "2024-05-03")
	assertStatus(t, err, http.StatusBadRequest)
}

func TestPercentChange(t *testing.T) {
	cases := []struct {
		name             string
		today, yesterday int64
		want             float64
	}{
		{"yesterday zero today positive", 100, 0, 100},
		{"both zero", 0, 0, 0},
		{"growth", 150, 100, 50},
		{"drop", 1, 3, -66.7},
		{"one decimal", 1234, 1000, 23.4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, percentChange(tc.today, tc.yesterday))
		})
	}
}

func TestDashboardStats(t *testing.T) {
	today := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	txs := newMemTransactions(
		sale("11111111-0000-4000-8000-000000000001", today.Add(9*time.Hour), 3000, 0, model.TransactionStatusCompleted, model.PaymentMethodCash, 2, 1),
		sale("11111111-0000-4000-8000-000000000002", today.Add(10*time.Hour), 1000, 0, model.TransactionStatusCompleted, model.PaymentMethodCash, 1),
		sale("11111111-0000-4000-8000-000000000003", today.Add(11*time.Hour), 9000, 0, model.TransactionStatusRefunded, model.PaymentMethodCash, 9),
		sale("11111111-0000-4000-8000-000000000004", yesterday.Add(9*time.Hour), 2000, 0, model.TransactionStatusCompleted, model.PaymentMethodCash, 2),
	)
	inv := newMemInventory(product(productA, 1), product(productB, 50))

	out, err := newReport(txs, inv).DashboardStats(context.Background(), testStore)
	require.NoError(t, err)

	assert.Equal(t, int64(4000), out.TodaySales)
	assert.Equal(t, int64(2000), out.YesterdaySales)
	assert.Equal(t, 100.0, out.SalesChangePercent)
	assert.Equal(t, int64(2), out.TodayTransactions)
	assert.Equal(t, int64(1), out.TransactionsChange)
	assert.Equal(t, 100.0, out.TransactionsPercent)
	assert.Equal(t, int64(2000), out.AverageTransaction)
	assert.Equal(t, 0.0, out.AverageChangePercent)
	assert.Equal(t, int64(4), out.TodayItemsSold)
	assert.Equal(t, int64(2), out.ItemsChange)
	assert.Equal(t, 100.0, out.ItemsChangePercent)
	assert.Equal(t, int64(2), out.TotalProducts)
	assert.Equal(t, int64(1), out.LowStockCount)
}

func TestDashboardStats_NoYesterday(t *testing.T) {
	txs := newMemTransactions(
		sale("11111111-0000-4000-8000-000000000001", reportNow.Add(-time.Hour), 500, 0, model.TransactionStatusCompleted, model.PaymentMethodCash, 1),
	)

	out, err := newReport(txs, newMemInventory()).DashboardStats(context.Background(), testStore)
	require.NoError(t, err)
	assert.Equal(t, 100.0, out.SalesChangePercent)
	assert.Equal(t, 100.0, out.AverageChangePercent)
}

func TestLowStock_LimitDefaultsAndCap(t *testing.T) {
	inv := &InventoryRepoMock{}
	inv.On("LowStock", mock.Anything, testStore, DefaultLowStockLimit).Return([]model.Product{{ID: productA, Stock: 0}}, nil)
	inv.On("LowStock", mock.Anything, testStore, MaxLowStockLimit).Return([]model.Product{}, nil)

	uc := newReport(newMemTransactions(), inv)

	items, err := uc.LowStock(context.Background(), testStore, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = uc.LowStock(context.Background(), testStore, 10000)
	require.NoError(t, err)

	_, err = uc.LowStock(context.Background(), testStore, -1)
	assertStatus(t, err, http.StatusBadRequest)

	inv.AssertExpectations(t)
}

func TestLowStock_OnlyActiveAtOrBelowMin(t *testing.T) {
	inactive := product(productB, 0)
	inactive.IsActive = false
	inv := newMemInventory(
		product(productA, 2),
		product(missingP, 3),
		inactive,
	)

	items, err := newReport(newMemTransactions(), inv).LowStock(context.Background(), testStore, 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, productA, items[0].ID)
}

func TestLowStock_StorageError(t *testing.T) {
	inv := &InventoryRepoMock{}
	inv.On("LowStock", mock.Anything, testStore, 5).Return(nil, errors.New("boom"))

	_, err := newReport(newMemTransactions(), inv).LowStock(context.Background(), testStore, 5)
	assertStatus(t, err, http.StatusInternalServerError)
}

func TestSalesChart_ZeroFilled(t *testing.T) {
	txs := newMemTransactions(
		sale("11111111-0000-4000-8000-000000000001", reportNow.Add(-time.Hour), 500, 0, model.TransactionStatusCompleted, model.PaymentMethodCash),
		sale("11111111-0000-4000-8000-000000000002", reportNow.AddDate(0, 0, -2), 300, 0, model.TransactionStatusCompleted, model.PaymentMethodCash),
		sale("11111111-0000-4000-8000-000000000003", reportNow.AddDate(0, 0, -2), 999, 0, model.TransactionStatusCancelled, model.PaymentMethodCash),
	)

	points, err := newReport(txs, newMemInventory()).SalesChart(context.Background(), testStore, 3)
	require.NoError(t, err)

	assert.Equal(t, []ChartPoint{
		{Date: "2024-05-08", Sales: 300, Transactions: 1},
		{Date: "2024-05-09", Sales: 0, Transactions: 0},
		{Date: "2024-05-10", Sales: 500, Transactions: 1},
	}, points)
}

func TestTopProducts_Window(t *testing.T) {
	txRepo := &TransactionRepoMock{}
	from := time.Date(2024, 4, 11, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC)
	txRepo.On("TopProducts", mock.Anything, testStore, from, to, DefaultTopProductsLimit).
		Return([]repo.ProductSales{{ProductID: productA, Name: "A", Quantity: 12, Revenue: 6000}}, nil)

	out, err := newReport(txRepo, newMemInventory()).TopProducts(context.Background(), testStore, 0)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	txRepo.AssertExpectations(t)
}

func TestRecentTransactions_Format(t *testing.T) {
	customer := "99999999-0000-4000-8000-000000000009"
	walkIn := sale("abcdef12-0000-4000-8000-000000000001", reportNow.Add(-time.Minute), 1200, 0, model.TransactionStatusCompleted, model.PaymentMethodCash, 2, 3)
	member := sale("12345678-0000-4000-8000-000000000002", reportNow.Add(-time.Hour), 500, 0, model.TransactionStatusRefunded, model.PaymentMethodCard, 1)
	member.CustomerID = &customer

	out, err := newReport(newMemTransactions(walkIn, member), newMemInventory()).RecentTransactions(context.Background(), testStore, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "ABCDEF12", out[0].ID)
	assert.Equal(t, walkIn.ID, out[0].FullID)
	assert.Equal(t, "Walk-in Customer", out[0].Customer)
	assert.Equal(t, int64(5), out[0].ItemsCount)

	assert.Equal(t, customer, out[1].Customer)
	assert.Equal(t, model.TransactionStatusRefunded, out[1].Status)
}
