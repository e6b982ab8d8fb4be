package usecase

import (
	"context"
	"strings"
	"time"

	"pos/internal/domain/model"
	repo "pos/internal/repository"
	"pos/internal/telemetry"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	dateLayout = "2006-01-02"

	DefaultLowStockLimit = 5
	MaxLowStockLimit     = 100

	DefaultChartDays = 7
	MaxChartDays     = 90

	DefaultTopProductsLimit = 5
	topProductsWindowDays   = 30

	DefaultRecentLimit = 5

	walkInCustomer = "Walk-in Customer"
)

// ReportUsecase は会計を読むだけの集計。書き込みはしない。
type ReportUsecase struct {
	transactions repo.TransactionRepository
	inventory    repo.InventoryRepository
	clock        Clock
	loc          *time.Location
	log          *zap.Logger
}

func NewReportUsecase(
	transactions repo.TransactionRepository,
	inventory repo.InventoryRepository,
	clock Clock,
	loc *time.Location,
	log *zap.Logger,
) *ReportUsecase {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportUsecase{
		transactions: transactions,
		inventory:    inventory,
		clock:        clock,
		loc:          loc,
		log:          log,
	}
}

type PaymentMethodTotal struct {
	Count int64 `json:"count"`
	Total int64 `json:"total"`
}

type DailySummary struct {
	Date              string                        `json:"date"`
	TotalTransactions int64                         `json:"total_transactions"`
	TotalSales        int64                         `json:"total_sales"`
	TotalTax          int64                         `json:"total_tax"`
	TotalDiscount     int64                         `json:"total_discount"`
	ByPaymentMethod   map[string]PaymentMethodTotal `json:"by_payment_method"`
	ByStatus          map[string]int64              `json:"by_status"`
}

type RangeSummary struct {
	DateFrom           string `json:"date_from"`
	DateTo             string `json:"date_to"`
	TotalTransactions  int64  `json:"total_transactions"`
	TotalSales         int64  `json:"total_sales"`
	TotalTax           int64  `json:"total_tax"`
	TotalDiscount      int64  `json:"total_discount"`
	AverageTransaction int64  `json:"average_transaction"`
}

type DashboardStats struct {
	TodaySales           int64   `json:"today_sales"`
	YesterdaySales       int64   `json:"yesterday_sales"`
	SalesChangePercent   float64 `json:"sales_change_percent"`
	TodayTransactions    int64   `json:"today_transactions"`
	TransactionsChange   int64   `json:"transactions_change"`
	TransactionsPercent  float64 `json:"transactions_change_percent"`
	AverageTransaction   int64   `json:"average_transaction"`
	AverageChangePercent float64 `json:"average_change_percent"`
	TodayItemsSold       int64   `json:"today_items_sold"`
	ItemsChange          int64   `json:"items_change"`
	ItemsChangePercent   float64 `json:"items_change_percent"`
	TotalProducts        int64   `json:"total_products"`
	LowStockCount        int64   `json:"low_stock_count"`
}

type ChartPoint struct {
	Date         string `json:"date"`
	Sales        int64  `json:"sales"`
	Transactions int64  `json:"transactions"`
}

type RecentTransaction struct {
	ID            string                  `json:"id"`
	FullID        string                  `json:"full_id"`
	Customer      string                  `json:"customer"`
	ItemsCount    int64                   `json:"items_count"`
	Total         int64                   `json:"total"`
	Status        model.TransactionStatus `json:"status"`
	PaymentMethod model.PaymentMethod     `json:"payment_method"`
	CreatedAt     time.Time               `json:"created_at"`
}

// 1日ぶんの集計値（完了済みのみ）
type dayTotals struct {
	count    int64
	sales    int64
	tax      int64
	discount int64
	items    int64
}

func (d dayTotals) average() int64 {
	if d.count == 0 {
		return 0
	}
	return decimal.NewFromInt(d.sales).Div(decimal.NewFromInt(d.count)).Round(0).IntPart()
}

func sumCompleted(txs []model.Transaction) dayTotals {
	var d dayTotals
	for _, t := range txs {
		if !t.Status.CountsAsSale() {
			continue
		}
		d.count++
		d.sales += t.Total
		d.tax += t.Tax
		d.discount += t.Discount
		d.items += t.ItemsCount()
	}
	return d
}

// DailySummary は date（店舗のタイムゾーン）の [00:00, 翌00:00) を集計する。
// date が空なら今日。
func (u *ReportUsecase) DailySummary(ctx context.Context, storeID, date string) (DailySummary, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "report.daily_summary")
	defer span.End()
	span.SetAttributes(attribute.String("store_id", storeID), attribute.String("date", date))

	if err := u.checkStore(storeID); err != nil {
		return DailySummary{}, err
	}
	day, err := u.dayOrToday(date)
	if err != nil {
		return DailySummary{}, err
	}

	txs, err := u.transactions.ListBetween(ctx, storeID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return DailySummary{}, storageError(u.log, "transactions.list_between", err, zap.String("store_id", storeID))
	}

	d := sumCompleted(txs)
	out := DailySummary{
		Date:              day.Format(dateLayout),
		TotalTransactions: d.count,
		TotalSales:        d.sales,
		TotalTax:          d.tax,
		TotalDiscount:     d.discount,
		ByPaymentMethod:   map[string]PaymentMethodTotal{},
		ByStatus:          map[string]int64{},
	}

	//内訳は全ステータス
	for _, t := range txs {
		pm := out.ByPaymentMethod[string(t.PaymentMethod)]
		pm.Count++
		pm.Total += t.Total
		out.ByPaymentMethod[string(t.PaymentMethod)] = pm

		status := t.Status
		if status == "" {
			status = model.TransactionStatusCompleted
		}
		out.ByStatus[string(status)]++
	}
	return out, nil
}

// RangeSummary は dateFrom〜dateTo（両端含む）の完了済み会計を集計する。
func (u *ReportUsecase) RangeSummary(ctx context.Context, storeID, dateFrom, dateTo string) (RangeSummary, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "report.range_summary")
	defer span.End()
	span.SetAttributes(attribute.String("store_id", storeID))

	if err := u.checkStore(storeID); err != nil {
		return RangeSummary{}, err
	}
	if strings.TrimSpace(dateFrom) == "" || strings.TrimSpace(dateTo) == "" {
		return RangeSummary{}, validationError("date_from and date_to are required")
	}
	from, err := u.parseDay(dateFrom)
	if err != nil {
		return RangeSummary{}, err
	}
	to, err := u.parseDay(dateTo)
	if err != nil {
		return RangeSummary{}, err
	}
	if from.After(to) {
		return RangeSummary{}, validationError("date_from must be <= date_to")
	}

	txs, err := u.transactions.ListBetween(ctx, storeID, from, to.AddDate(0, 0, 1))
	if err != nil {
		return RangeSummary{}, storageError(u.log, "transactions.list_between", err, zap.String("store_id", storeID))
	}

	d := sumCompleted(txs)
	return RangeSummary{
		DateFrom:           from.Format(dateLayout),
		DateTo:             to.Format(dateLayout),
		TotalTransactions:  d.count,
		TotalSales:         d.sales,
		TotalTax:           d.tax,
		TotalDiscount:      d.discount,
		AverageTransaction: d.average(),
	}, nil
}

// DashboardStats は今日と昨日の比較
func (u *ReportUsecase) DashboardStats(ctx context.Context, storeID string) (DashboardStats, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "report.dashboard_stats")
	defer span.End()
	span.SetAttributes(attribute.String("store_id", storeID))

	if err := u.checkStore(storeID); err != nil {
		return DashboardStats{}, err
	}

	today := u.startOfDay(u.clock.Now())
	yesterday := today.AddDate(0, 0, -1)

	txs, err := u.transactions.ListBetween(ctx, storeID, yesterday, today.AddDate(0, 0, 1))
	if err != nil {
		return DashboardStats{}, storageError(u.log, "transactions.list_between", err, zap.String("store_id", storeID))
	}

	var todayTxs, yesterdayTxs []model.Transaction
	for _, t := range txs {
		if t.CreatedAt.Before(today) {
			yesterdayTxs = append(yesterdayTxs, t)
		} else {
			todayTxs = append(todayTxs, t)
		}
	}
	td := sumCompleted(todayTxs)
	yd := sumCompleted(yesterdayTxs)

	total, low, err := u.inventory.CountProducts(ctx, storeID)
	if err != nil {
		return DashboardStats{}, storageError(u.log, "inventory.count_products", err, zap.String("store_id", storeID))
	}

	return DashboardStats{
		TodaySales:           td.sales,
		YesterdaySales:       yd.sales,
		SalesChangePercent:   percentChange(td.sales, yd.sales),
		TodayTransactions:    td.count,
		TransactionsChange:   td.count - yd.count,
		TransactionsPercent:  percentChange(td.count, yd.count),
		AverageTransaction:   td.average(),
		AverageChangePercent: percentChange(td.average(), yd.average()),
		TodayItemsSold:       td.items,
		ItemsChange:          td.items - yd.items,
		ItemsChangePercent:   percentChange(td.items, yd.items),
		TotalProducts:        total,
		LowStockCount:        low,
	}, nil
}

// LowStock は stock <= min_stock の有効商品（在庫の少ない順）
func (u *ReportUsecase) LowStock(ctx context.Context, storeID string, limit int) ([]model.Product, error) {
	if err := u.checkStore(storeID); err != nil {
		return []model.Product{}, err
	}
	limit, err := clampLimit(limit, DefaultLowStockLimit, MaxLowStockLimit)
	if err != nil {
		return []model.Product{}, err
	}

	items, err := u.inventory.LowStock(ctx, storeID, limit)
	if err != nil {
		return []model.Product{}, storageError(u.log, "inventory.low_stock", err, zap.String("store_id", storeID))
	}
	return items, nil
}

// SalesChart は直近 days 日の日別売上。売上のない日も 0 で返す。
func (u *ReportUsecase) SalesChart(ctx context.Context, storeID string, days int) ([]ChartPoint, error) {
	if err := u.checkStore(storeID); err != nil {
		return []ChartPoint{}, err
	}
	days, err := clampLimit(days, DefaultChartDays, MaxChartDays)
	if err != nil {
		return []ChartPoint{}, err
	}

	today := u.startOfDay(u.clock.Now())
	from := today.AddDate(0, 0, -(days - 1))

	txs, err := u.transactions.ListBetween(ctx, storeID, from, today.AddDate(0, 0, 1))
	if err != nil {
		return []ChartPoint{}, storageError(u.log, "transactions.list_between", err, zap.String("store_id", storeID))
	}

	points := make([]ChartPoint, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		d := from.AddDate(0, 0, i).Format(dateLayout)
		points[i] = ChartPoint{Date: d}
		index[d] = i
	}
	for _, t := range txs {
		if !t.Status.CountsAsSale() {
			continue
		}
		i, ok := index[t.CreatedAt.In(u.loc).Format(dateLayout)]
		if !ok {
			continue
		}
		points[i].Sales += t.Total
		points[i].Transactions++
	}
	return points, nil
}

// TopProducts は直近30日の販売数上位
func (u *ReportUsecase) TopProducts(ctx context.Context, storeID string, limit int) ([]repo.ProductSales, error) {
	if err := u.checkStore(storeID); err != nil {
		return []repo.ProductSales{}, err
	}
	limit, err := clampLimit(limit, DefaultTopProductsLimit, MaxLowStockLimit)
	if err != nil {
		return []repo.ProductSales{}, err
	}

	to := u.startOfDay(u.clock.Now()).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -topProductsWindowDays)

	items, err := u.transactions.TopProducts(ctx, storeID, from, to, limit)
	if err != nil {
		return []repo.ProductSales{}, storageError(u.log, "transactions.top_products", err, zap.String("store_id", storeID))
	}
	return items, nil
}

// RecentTransactions は最新の会計を表示用に整形して返す。
func (u *ReportUsecase) RecentTransactions(ctx context.Context, storeID string, limit int) ([]RecentTransaction, error) {
	if err := u.checkStore(storeID); err != nil {
		return []RecentTransaction{}, err
	}
	limit, err := clampLimit(limit, DefaultRecentLimit, repo.MaxTransactionListLimit)
	if err != nil {
		return []RecentTransaction{}, err
	}

	txs, err := u.transactions.List(ctx, repo.TransactionListFilter{StoreID: storeID, Limit: limit})
	if err != nil {
		return []RecentTransaction{}, storageError(u.log, "transactions.list", err, zap.String("store_id", storeID))
	}

	out := make([]RecentTransaction, 0, len(txs))
	for _, t := range txs {
		customer := walkInCustomer
		if t.CustomerID != nil && *t.CustomerID != "" {
			customer = *t.CustomerID
		}
		out = append(out, RecentTransaction{
			ID:            shortID(t.ID),
			FullID:        t.ID,
			Customer:      customer,
			ItemsCount:    t.ItemsCount(),
			Total:         t.Total,
			Status:        t.Status,
			PaymentMethod: t.PaymentMethod,
			CreatedAt:     t.CreatedAt,
		})
	}
	return out, nil
}

// percentChange は前日比（%）。小数1桁に丸める。
// 前日が0なら、今日が正なら100、そうでなければ0。
func percentChange(today, yesterday int64) float64 {
	if yesterday == 0 {
		if today > 0 {
			return 100
		}
		return 0
	}
	t := decimal.NewFromInt(today)
	y := decimal.NewFromInt(yesterday)
	f, _ := t.Sub(y).Div(y).Mul(decimal.NewFromInt(100)).Round(1).Float64()
	return f
}

func shortID(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return strings.ToUpper(id)
}

// 0 はデフォルト、上限超えは上限に丸める
func clampLimit(v, def, max int) (int, error) {
	if v < 0 {
		return 0, validationError("invalid limit")
	}
	if v == 0 {
		return def, nil
	}
	if v > max {
		return max, nil
	}
	return v, nil
}

func (u *ReportUsecase) checkStore(storeID string) error {
	if strings.TrimSpace(storeID) == "" {
		return validationError("store_id is required")
	}
	if !validUUID(storeID) {
		return validationError("invalid store_id")
	}
	return nil
}

func (u *ReportUsecase) startOfDay(t time.Time) time.Time {
	t = t.In(u.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, u.loc)
}

func (u *ReportUsecase) parseDay(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), u.loc)
	if err != nil {
		return time.Time{}, validationError("invalid date (YYYY-MM-DD)")
	}
	return d, nil
}

func (u *ReportUsecase) dayOrToday(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return u.startOfDay(u.clock.Now()), nil
	}
	return u.parseDay(s)
}
