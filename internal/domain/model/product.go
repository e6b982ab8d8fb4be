package model

import (
	"time"

	"gorm.io/gorm"
)

// 発注点のデフォルト
const DefaultMinStock int64 = 10

type Product struct {
	ID       string `gorm:"type:uuid;primaryKey" json:"id"`
	StoreID  string `gorm:"type:uuid;not null;index" json:"store_id"`
	Name     string `gorm:"type:varchar(255);not null" json:"name"`
	Category string `gorm:"type:varchar(100)" json:"category"`
	Barcode  string `gorm:"type:varchar(64);index" json:"barcode"`
	ImageURL string `gorm:"type:text" json:"image_url"`
	Price    int64  `gorm:"not null" json:"price"`

	//在庫数（0未満にはならない）
	Stock int64 `gorm:"not null;default:0;check:stock >= 0" json:"stock"`

	//この数以下になったら在庫少
	MinStock int64 `gorm:"not null;default:10" json:"min_stock"`

	IsActive  bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// 在庫少かどうか
func (p Product) IsLowStock() bool {
	return p.Stock <= p.MinStock
}
