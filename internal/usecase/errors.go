package usecase

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// 入力不正（400）
func validationError(message string) error {
	return NewHTTPError(http.StatusBadRequest, message)
}

// 対象なし（404）
func notFoundError(what string) error {
	return NewHTTPError(http.StatusNotFound, what+" not found")
}

func conflictError(message string) error {
	return NewHTTPError(http.StatusConflict, message)
}

// DBエラー（500）。原因はログにだけ出す。
func storageError(log *zap.Logger, op string, err error, fields ...zap.Field) error {
	log.Error("storage error", append(fields, zap.String("op", op), zap.Error(err))...)
	return NewHTTPError(http.StatusInternalServerError, "db error")
}
