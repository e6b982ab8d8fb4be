package repository

import "context"

// 同じ冪等キーの同時実行を弾く。
type IdempotencyGuard interface {
	// 初回なら true。既に誰かが確保済みなら false。
	Claim(ctx context.Context, key string) (bool, error)
	// 失敗時に確保を外す
	Release(ctx context.Context, key string) error
}
