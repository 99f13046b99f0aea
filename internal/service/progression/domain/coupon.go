// internal/service/progression/domain/coupon.go
package domain

import (
	"errors"
	"time"
)

// Rarity 是优惠券的稀有度档位，common < rare < epic < legendary。
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// rarityOrder 给稀有度一个全序，便于排序和规则判断。
var rarityOrder = map[Rarity]int{
	RarityCommon:    0,
	RarityRare:      1,
	RarityEpic:      2,
	RarityLegendary: 3,
}

// Less 按稀有度排序。
func (r Rarity) Less(other Rarity) bool {
	return rarityOrder[r] < rarityOrder[other]
}

var (
	// ErrInsufficientFunds 表示金币余额不足以购买该优惠券。
	ErrInsufficientFunds = errors.New("insufficient coins for purchase")
	// ErrAlreadyOwned 表示该定义的优惠券此用户已购买过（同款限购一张）。
	ErrAlreadyOwned = errors.New("coupon already owned")
	// ErrAlreadyUsed 表示该优惠券已被核销，不能二次使用。
	ErrAlreadyUsed = errors.New("coupon already used")
	// ErrCouponNotFound 表示找不到对应的优惠券。
	ErrCouponNotFound = errors.New("coupon not found")
)

// CouponDefinition 是商城里的一条静态目录项，描述一张可购买的折扣券。
// 目录不落库、不按用户存储，改目录不影响历史购买。
type CouponDefinition struct {
	ID              string
	Name            string
	Description     string
	DiscountPercent int // 1-100
	Cost            int // 金币价格，> 0
	Rarity          Rarity
	// EligibilityRule 是可选的 CEL 购买资格表达式（例如 "level >= 10"）。
	// 只用于商城列表的锁定标记，不参与购买前置校验。
	EligibilityRule string
}

// DefaultCatalog 是商城的内置目录。
var DefaultCatalog = []CouponDefinition{
	{ID: "common_5", Name: "Скидка 5%", Description: "Базовая скидка на любой товар", DiscountPercent: 5, Cost: 1000, Rarity: RarityCommon},
	{ID: "common_10", Name: "Скидка 10%", Description: "Хорошая скидка для экономии", DiscountPercent: 10, Cost: 2500, Rarity: RarityCommon},
	{ID: "rare_15", Name: "Скидка 15%", Description: "Редкая скидка для умных покупок", DiscountPercent: 15, Cost: 5000, Rarity: RarityRare},
	{ID: "rare_20", Name: "Скидка 20%", Description: "Отличная скидка для больших покупок", DiscountPercent: 20, Cost: 8000, Rarity: RarityRare},
	{ID: "epic_25", Name: "Скидка 25%", Description: "Эпическая скидка для настоящих ценителей", DiscountPercent: 25, Cost: 12000, Rarity: RarityEpic, EligibilityRule: "level >= 5"},
	{ID: "legendary_30", Name: "Скидка 30%", Description: "Легендарная скидка для избранных", DiscountPercent: 30, Cost: 20000, Rarity: RarityLegendary, EligibilityRule: "level >= 10"},
}

// FindDefinition 按 ID 在目录中查找券定义。
func FindDefinition(catalog []CouponDefinition, couponID string) (CouponDefinition, bool) {
	for _, def := range catalog {
		if def.ID == couponID {
			return def, true
		}
	}
	return CouponDefinition{}, false
}

// PurchasedCoupon 是一次成功购买的落库快照。
// 名称、折扣、价格、稀有度都在购买时刻定格，后续改目录不会追溯
// 改写历史购买。除 IsUsed/UsedAt 外所有字段创建后不可变，
// IsUsed 只允许 false -> true 发生一次。
type PurchasedCoupon struct {
	ID              string
	UserID          string
	CouponID        string
	Name            string
	DiscountPercent int
	Cost            int
	Rarity          Rarity
	IsUsed          bool
	PurchasedAt     time.Time
	UsedAt          time.Time
}

// NewPurchasedCoupon 从目录定义制作一份购买快照。
func NewPurchasedCoupon(id, userID string, def CouponDefinition, now time.Time) *PurchasedCoupon {
	return &PurchasedCoupon{
		ID:              id,
		UserID:          userID,
		CouponID:        def.ID,
		Name:            def.Name,
		DiscountPercent: def.DiscountPercent,
		Cost:            def.Cost,
		Rarity:          def.Rarity,
		IsUsed:          false,
		PurchasedAt:     now,
	}
}
