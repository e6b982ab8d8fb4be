package handler

import (
	"net/http"
	"strconv"

	"pos/internal/middleware"
	"pos/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message})
	}

	//500
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// StoreScope ミドルウェアが入れた store_id
func getStoreIDFromContext(c echo.Context) string {
	s, _ := c.Get(middleware.CtxStoreIDKey).(string)
	return s
}

// 操作者（任意）
func getActorIDFromContext(c echo.Context) *string {
	s, ok := c.Get(middleware.CtxActorIDKey).(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// 空なら 0（usecase 側でデフォルトに置き換える）
func queryInt(c echo.Context, name string) (int, bool) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, true
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}
