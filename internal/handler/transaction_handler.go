package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"pos/internal/middleware"
	"pos/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /api/transactions
type TransactionHandler struct {
	uc     *usecase.TransactionUsecase
	report *usecase.ReportUsecase
	loc    *time.Location
}

func NewTransactionHandler(uc *usecase.TransactionUsecase, report *usecase.ReportUsecase, loc *time.Location) *TransactionHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &TransactionHandler{uc: uc, report: report, loc: loc}
}

func (h *TransactionHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/transactions", middleware.StoreScope())

	// store_id は body にも書ける
	g.POST("", h.checkout)

	scoped := middleware.RequireStore()
	g.GET("", h.list, scoped)
	g.GET("/summary/daily", h.dailySummary, scoped)
	g.GET("/summary/range", h.rangeSummary, scoped)
	g.GET("/:id", h.get, scoped)
	g.GET("/:id/history", h.history, scoped)
	g.PATCH("/:id", h.update, scoped)
	g.PUT("/:id", h.update, scoped)
	g.DELETE("/:id", h.delete, scoped)
}

// 明細。POS端末ごとに名前が揺れるので両方受ける。
type LineItemRequest struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

func (r *LineItemRequest) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID        string `json:"id"`
		ProductID string `json:"product_id"`
		Name      string `json:"name"`
		Qty       *int64 `json:"qty"`
		Quantity  *int64 `json:"quantity"`
		Price     *int64 `json:"price"`
		UnitPrice *int64 `json:"unit_price"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	r.ProductID = raw.ProductID
	if r.ProductID == "" {
		r.ProductID = raw.ID
	}
	r.Name = raw.Name

	switch {
	case raw.Quantity != nil:
		r.Quantity = *raw.Quantity
	case raw.Qty != nil:
		r.Quantity = *raw.Qty
	}
	switch {
	case raw.UnitPrice != nil:
		r.UnitPrice = *raw.UnitPrice
	case raw.Price != nil:
		r.UnitPrice = *raw.Price
	}
	return nil
}

type CheckoutRequest struct {
	StoreID       string            `json:"store_id"`
	CashierID     *string           `json:"cashier_id"`
	CustomerID    *string           `json:"customer_id"`
	Items         []LineItemRequest `json:"items"`
	Subtotal      int64             `json:"subtotal"`
	Tax           int64             `json:"tax"`
	Discount      int64             `json:"discount"`
	Total         int64             `json:"total"`
	PaymentMethod string            `json:"payment_method"`
	PaymentAmount *int64            `json:"payment_amount"`
	Notes         string            `json:"notes"`
}

type UpdateTransactionRequest struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

func (h *TransactionHandler) checkout(c echo.Context) error {
	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	storeID := strings.TrimSpace(req.StoreID)
	if storeID == "" {
		storeID = getStoreIDFromContext(c)
	}

	items := make([]usecase.LineItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, usecase.LineItemInput{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	cashier := req.CashierID
	if cashier == nil {
		cashier = getActorIDFromContext(c)
	}

	out, err := h.uc.Checkout(c.Request().Context(), usecase.CheckoutInput{
		StoreID:        storeID,
		CashierID:      emptyToNil(cashier),
		CustomerID:     emptyToNil(req.CustomerID),
		Items:          items,
		Subtotal:       req.Subtotal,
		Tax:            req.Tax,
		Discount:       req.Discount,
		Total:          req.Total,
		PaymentMethod:  req.PaymentMethod,
		PaymentAmount:  req.PaymentAmount,
		Notes:          req.Notes,
		IdempotencyKey: c.Request().Header.Get("X-Idempotency-Key"),
	})
	if err != nil {
		return writeError(c, err)
	}

	if out.Replayed {
		return c.JSON(http.StatusOK, out)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *TransactionHandler) list(c echo.Context) error {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return badRequest(c, "invalid limit")
	}

	from, err := parseDateParam(c.QueryParam("date_from"), h.loc, false)
	if err != nil {
		return badRequest(c, "invalid date_from")
	}
	to, err := parseDateParam(c.QueryParam("date_to"), h.loc, true)
	if err != nil {
		return badRequest(c, "invalid date_to")
	}

	items, err := h.uc.List(c.Request().Context(), usecase.ListTransactionsInput{
		StoreID:       getStoreIDFromContext(c),
		DateFrom:      from,
		DateTo:        to,
		Status:        c.QueryParam("status"),
		PaymentMethod: c.QueryParam("payment_method"),
		Limit:         limit,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *TransactionHandler) get(c echo.Context) error {
	t, err := h.uc.Get(c.Request().Context(), getStoreIDFromContext(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *TransactionHandler) history(c echo.Context) error {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return badRequest(c, "invalid limit")
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return badRequest(c, "invalid offset")
	}
	from, err := parseDateParam(c.QueryParam("date_from"), h.loc, false)
	if err != nil {
		return badRequest(c, "invalid date_from")
	}
	to, err := parseDateParam(c.QueryParam("date_to"), h.loc, true)
	if err != nil {
		return badRequest(c, "invalid date_to")
	}

	logs, err := h.uc.History(c.Request().Context(), getStoreIDFromContext(c), c.Param("id"), usecase.HistoryQuery{
		Action:   c.QueryParam("action"),
		DateFrom: from,
		DateTo:   to,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, logs)
}

func (h *TransactionHandler) update(c echo.Context) error {
	var req UpdateTransactionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.UpdateFields(c.Request().Context(), getStoreIDFromContext(c), c.Param("id"), usecase.UpdateTransactionInput{
		Status:  req.Status,
		Notes:   req.Notes,
		ActorID: getActorIDFromContext(c),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *TransactionHandler) delete(c echo.Context) error {
	out, err := h.uc.Delete(c.Request().Context(), getStoreIDFromContext(c), c.Param("id"), getActorIDFromContext(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *TransactionHandler) dailySummary(c echo.Context) error {
	out, err := h.report.DailySummary(c.Request().Context(), getStoreIDFromContext(c), c.QueryParam("date"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *TransactionHandler) rangeSummary(c echo.Context) error {
	out, err := h.report.RangeSummary(c.Request().Context(), getStoreIDFromContext(c), c.QueryParam("date_from"), c.QueryParam("date_to"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// YYYY-MM-DD か RFC3339。日付だけなら endOfDay で終端を 23:59:59.999999999 にする。
func parseDateParam(v string, loc *time.Location, endOfDay bool) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	d, err := time.ParseInLocation("2006-01-02", v, loc)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		d = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &d, nil
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
