package handler

import (
	"net/http"

	"pos/internal/middleware"
	"pos/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /api/dashboard（読むだけ）
type DashboardHandler struct {
	uc *usecase.ReportUsecase
}

func NewDashboardHandler(uc *usecase.ReportUsecase) *DashboardHandler {
	return &DashboardHandler{uc: uc}
}

func (h *DashboardHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/dashboard", middleware.StoreScope(), middleware.RequireStore())

	g.GET("/stats", h.stats)
	g.GET("/chart", h.chart)
	g.GET("/top-products", h.topProducts)
	g.GET("/low-stock", h.lowStock)
	g.GET("/recent-transactions", h.recentTransactions)
}

func (h *DashboardHandler) stats(c echo.Context) error {
	out, err := h.uc.DashboardStats(c.Request().Context(), getStoreIDFromContext(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *DashboardHandler) chart(c echo.Context) error {
	days, ok := queryInt(c, "days")
	if !ok {
		return badRequest(c, "invalid days")
	}

	out, err := h.uc.SalesChart(c.Request().Context(), getStoreIDFromContext(c), days)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *DashboardHandler) topProducts(c echo.Context) error {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return badRequest(c, "invalid limit")
	}

	out, err := h.uc.TopProducts(c.Request().Context(), getStoreIDFromContext(c), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *DashboardHandler) lowStock(c echo.Context) error {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return badRequest(c, "invalid limit")
	}

	out, err := h.uc.LowStock(c.Request().Context(), getStoreIDFromContext(c), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *DashboardHandler) recentTransactions(c echo.Context) error {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return badRequest(c, "invalid limit")
	}

	out, err := h.uc.RecentTransactions(c.Request().Context(), getStoreIDFromContext(c), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
