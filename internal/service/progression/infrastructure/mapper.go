// internal/service/progression/infrastructure/mapper.go
package infrastructure

import (
	"database/sql"

	"arcadia/internal/service/progression/domain"
)

// --- 数据库模型与领域模型之间的转换 ---

func toDomainProgression(model *UserProgressionModel) *domain.ProgressionRecord {
	if model == nil {
		return nil
	}
	return &domain.ProgressionRecord{
		UserID:        model.UserID,
		Level:         model.Level,
		Experience:    model.Experience,
		MaxExperience: model.MaxExperience,
		Coins:         model.Coins,
		LastGrantAt:   model.LastGrantAt,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
}

func fromDomainProgression(record *domain.ProgressionRecord) *UserProgressionModel {
	if record == nil {
		return nil
	}
	return &UserProgressionModel{
		UserID:        record.UserID,
		Level:         record.Level,
		Experience:    record.Experience,
		MaxExperience: record.MaxExperience,
		Coins:         record.Coins,
		LastGrantAt:   record.LastGrantAt,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}
}

func toDomainCoupon(model *UserCouponModel) *domain.PurchasedCoupon {
	if model == nil {
		return nil
	}
	coupon := &domain.PurchasedCoupon{
		ID:              model.ID,
		UserID:          model.UserID,
		CouponID:        model.CouponID,
		Name:            model.CouponName,
		DiscountPercent: model.DiscountPercent,
		Cost:            model.Cost,
		Rarity:          domain.Rarity(model.Rarity),
		IsUsed:          model.IsUsed,
		PurchasedAt:     model.PurchasedAt,
	}
	if model.UsedAt.Valid {
		coupon.UsedAt = model.UsedAt.Time
	}
	return coupon
}

func fromDomainCoupon(coupon *domain.PurchasedCoupon) *UserCouponModel {
	if coupon == nil {
		return nil
	}
	model := &UserCouponModel{
		ID:              coupon.ID,
		UserID:          coupon.UserID,
		CouponID:        coupon.CouponID,
		CouponName:      coupon.Name,
		DiscountPercent: coupon.DiscountPercent,
		Cost:            coupon.Cost,
		Rarity:          string(coupon.Rarity),
		IsUsed:          coupon.IsUsed,
		PurchasedAt:     coupon.PurchasedAt,
	}
	if !coupon.UsedAt.IsZero() {
		model.UsedAt = sql.NullTime{Time: coupon.UsedAt, Valid: true}
	}
	return model
}
