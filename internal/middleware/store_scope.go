package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	CtxStoreIDKey = "store_id" // string
	CtxActorIDKey = "actor_id" // string（任意）

	HeaderStoreID = "X-Store-ID"
	HeaderActorID = "X-Actor-ID"
)

// StoreScope は store_id（クエリ or ヘッダ）を必須にして context へ入れる。
// POST の body にある store_id は handler 側で見る。
func StoreScope() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			storeID := strings.TrimSpace(c.QueryParam("store_id"))
			if storeID == "" {
				storeID = strings.TrimSpace(c.Request().Header.Get(HeaderStoreID))
			}

			if storeID != "" {
				if uuid.Validate(storeID) != nil {
					return c.JSON(http.StatusBadRequest, errorJSON("invalid store_id"))
				}
				c.Set(CtxStoreIDKey, storeID)
			}

			//監査ログ用（あれば）
			if actor := strings.TrimSpace(c.Request().Header.Get(HeaderActorID)); actor != "" {
				if uuid.Validate(actor) != nil {
					return c.JSON(http.StatusBadRequest, errorJSON("invalid actor id"))
				}
				c.Set(CtxActorIDKey, actor)
			}

			return next(c)
		}
	}
}

// RequireStore は store_id がない要求を 400 で返す。
func RequireStore() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s, ok := c.Get(CtxStoreIDKey).(string); !ok || s == "" {
				return c.JSON(http.StatusBadRequest, errorJSON("store_id is required"))
			}
			return next(c)
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}
