// internal/service/progression/application/dto.go
package application

import (
	"time"

	"arcadia/internal/service/progression/domain"
)

// ShopOffer 是商城列表里的一项：目录定义加上针对当前用户的标注。
type ShopOffer struct {
	Definition domain.CouponDefinition `json:"definition"`
	Owned      bool                    `json:"owned"`
	Affordable bool                    `json:"affordable"`
	Locked     bool                    `json:"locked"`
}

// ProgressionResponse 是进度记录的对外表示。
type ProgressionResponse struct {
	UserID        string    `json:"userId"`
	Level         int       `json:"level"`
	Experience    int       `json:"experience"`
	MaxExperience int       `json:"maxExperience"`
	Coins         int       `json:"coins"`
	LastGrantAt   time.Time `json:"lastGrantAt"`
}

// ToProgressionResponse 把领域记录转成响应体。
func ToProgressionResponse(r *domain.ProgressionRecord) *ProgressionResponse {
	return &ProgressionResponse{
		UserID:        r.UserID,
		Level:         r.Level,
		Experience:    r.Experience,
		MaxExperience: r.MaxExperience,
		Coins:         r.Coins,
		LastGrantAt:   r.LastGrantAt,
	}
}

// GrantExperienceRequest 是手动发放经验的请求体。
type GrantExperienceRequest struct {
	UserID string `json:"userId"`
	Amount int    `json:"amount"`
}

// AdjustCoinsRequest 是调整金币余额的请求体。
type AdjustCoinsRequest struct {
	UserID string `json:"userId"`
	Delta  int    `json:"delta"`
}

// PurchaseCouponRequest 是购买优惠券的请求体。
type PurchaseCouponRequest struct {
	UserID   string `json:"userId"`
	CouponID string `json:"couponId"`
}

// UseCouponRequest 是核销优惠券的请求体。
type UseCouponRequest struct {
	UserID            string `json:"userId"`
	PurchasedCouponID string `json:"purchasedCouponId"`
}

// CouponResponse 是购买快照的对外表示。
type CouponResponse struct {
	ID              string     `json:"id"`
	CouponID        string     `json:"couponId"`
	Name            string     `json:"name"`
	DiscountPercent int        `json:"discountPercent"`
	Cost            int        `json:"cost"`
	Rarity          string     `json:"rarity"`
	IsUsed          bool       `json:"isUsed"`
	PurchasedAt     time.Time  `json:"purchasedAt"`
	UsedAt          *time.Time `json:"usedAt,omitempty"`
}

// ToCouponResponse 把购买快照转成响应体。
func ToCouponResponse(c *domain.PurchasedCoupon) *CouponResponse {
	resp := &CouponResponse{
		ID:              c.ID,
		CouponID:        c.CouponID,
		Name:            c.Name,
		DiscountPercent: c.DiscountPercent,
		Cost:            c.Cost,
		Rarity:          string(c.Rarity),
		IsUsed:          c.IsUsed,
		PurchasedAt:     c.PurchasedAt,
	}
	if !c.UsedAt.IsZero() {
		usedAt := c.UsedAt
		resp.UsedAt = &usedAt
	}
	return resp
}
