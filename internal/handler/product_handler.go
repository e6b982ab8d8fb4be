package handler

import (
	"net/http"
	"strconv"
	"strings"

	"pos/internal/middleware"
	"pos/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// /api/products
type ProductHandler struct {
	uc     *usecase.ProductUsecase
	ledger *usecase.InventoryLedger
}

// DI
func NewProductHandler(uc *usecase.ProductUsecase, ledger *usecase.InventoryLedger) *ProductHandler {
	return &ProductHandler{uc: uc, ledger: ledger}
}

func (h *ProductHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/products", middleware.StoreScope())

	// store_id は body にも書ける
	g.POST("", h.create)

	scoped := middleware.RequireStore()
	g.GET("", h.list, scoped)
	g.GET("/barcode/:barcode", h.byBarcode, scoped)
	g.GET("/:id", h.detail, scoped)
	g.GET("/:id/stock", h.stock, scoped)
	g.PUT("/:id", h.update, scoped)
	g.DELETE("/:id", h.delete, scoped)
	g.PUT("/:id/stock", h.updateStock, scoped)
}

type ProductRequest struct {
	StoreID  string `json:"store_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Barcode  string `json:"barcode"`
	ImageURL string `json:"image_url"`
	Price    int64  `json:"price"`
	Stock    int64  `json:"stock"`
	MinStock *int64 `json:"min_stock"`
	IsActive *bool  `json:"is_active"`
}

func (r ProductRequest) input(storeID string) usecase.ProductInput {
	return usecase.ProductInput{
		StoreID:  storeID,
		Name:     r.Name,
		Category: r.Category,
		Barcode:  r.Barcode,
		ImageURL: r.ImageURL,
		Price:    r.Price,
		Stock:    r.Stock,
		MinStock: r.MinStock,
		IsActive: r.IsActive,
	}
}

type UpdateStockRequest struct {
	Stock  *int64 `json:"stock"`
	Reason string `json:"reason"`
}

func (h *ProductHandler) list(c echo.Context) error {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return badRequest(c, "invalid limit")
	}

	activeOnly := false
	if v := c.QueryParam("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return badRequest(c, "invalid active")
		}
		activeOnly = b
	}

	items, err := h.uc.List(c.Request().Context(), usecase.ListProductsInput{
		StoreID:    getStoreIDFromContext(c),
		Q:          c.QueryParam("q"),
		Category:   c.QueryParam("category"),
		ActiveOnly: activeOnly,
		Limit:      limit,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ProductHandler) detail(c echo.Context) error {
	p, err := h.uc.Get(c.Request().Context(), getStoreIDFromContext(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *ProductHandler) byBarcode(c echo.Context) error {
	p, err := h.uc.GetByBarcode(c.Request().Context(), getStoreIDFromContext(c), c.Param("barcode"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// 在庫数だけ返す
func (h *ProductHandler) stock(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return badRequest(c, "invalid id")
	}

	stock, err := h.ledger.Read(c.Request().Context(), getStoreIDFromContext(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"product_id": id,
		"stock":      stock,
	})
}

func (h *ProductHandler) create(c echo.Context) error {
	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	storeID := strings.TrimSpace(req.StoreID)
	if storeID == "" {
		storeID = getStoreIDFromContext(c)
	}

	p, err := h.uc.Create(c.Request().Context(), req.input(storeID))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *ProductHandler) update(c echo.Context) error {
	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	p, err := h.uc.Update(c.Request().Context(), c.Param("id"), req.input(getStoreIDFromContext(c)))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *ProductHandler) delete(c echo.Context) error {
	if err := h.uc.Delete(c.Request().Context(), getStoreIDFromContext(c), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ProductHandler) updateStock(c echo.Context) error {
	var req UpdateStockRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Stock == nil {
		return badRequest(c, "stock required")
	}

	p, err := h.uc.UpdateStock(
		c.Request().Context(),
		getStoreIDFromContext(c),
		c.Param("id"),
		*req.Stock,
		req.Reason,
		getActorIDFromContext(c),
	)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}
