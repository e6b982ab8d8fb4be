package server

import (
	"pos/internal/handler"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Health       *handler.HealthHandler
	Transactions *handler.TransactionHandler
	Dashboard    *handler.DashboardHandler
	Products     *handler.ProductHandler
}

func RegisterRoutes(e *echo.Echo, h Handlers) {
	h.Health.RegisterRoutes(e)
	h.Transactions.RegisterRoutes(e)
	h.Dashboard.RegisterRoutes(e)
	h.Products.RegisterRoutes(e)
}
