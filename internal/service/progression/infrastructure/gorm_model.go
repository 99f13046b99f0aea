// internal/service/progression/infrastructure/gorm_model.go
package infrastructure

import (
	"database/sql"
	"time"
)

// UserProgressionModel 对应数据库中的 user_progression 表。
type UserProgressionModel struct {
	UserID        string `gorm:"primaryKey;size:64"`
	Level         int    `gorm:"not null;default:1"`
	Experience    int    `gorm:"not null;default:0"`
	MaxExperience int    `gorm:"not null"`
	Coins         int    `gorm:"not null;default:0"`
	LastGrantAt   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName 指定 GORM 应该使用的表名。
func (UserProgressionModel) TableName() string {
	return "user_progression"
}

// UserCouponModel 对应数据库中的 user_coupons 表。
// 除 IsUsed/UsedAt 外都是购买时刻的快照字段，创建后不再更新。
type UserCouponModel struct {
	ID              string `gorm:"primaryKey;size:36"`
	UserID          string `gorm:"index;size:64"`
	CouponID        string `gorm:"size:64"`
	CouponName      string
	DiscountPercent int
	Cost            int
	Rarity          string       `gorm:"size:16"`
	IsUsed          bool         `gorm:"not null;default:false"`
	PurchasedAt     time.Time
	UsedAt          sql.NullTime
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName 指定 GORM 应该使用的表名。
func (UserCouponModel) TableName() string {
	return "user_coupons"
}
