package usecase

import (
	"time"

	"github.com/google/uuid"
)

// UUID 等のIDを作る約束
type IDGenerator interface {
	NewID() string
}

// 現在の時間
type Clock interface {
	Now() time.Time
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// store_id などの UUID 形式チェック
func validUUID(s string) bool {
	return uuid.Validate(s) == nil
}
