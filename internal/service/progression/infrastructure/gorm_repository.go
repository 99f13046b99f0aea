// internal/service/progression/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"arcadia/internal/service/progression/domain"
)

// GormProgressionRepository 是 ProgressionRepository 的 GORM/MySQL 实现。
type GormProgressionRepository struct {
	db *gorm.DB
}

// NewGormProgressionRepository 创建一个新的进度仓储实例。
func NewGormProgressionRepository(db *gorm.DB) *GormProgressionRepository {
	return &GormProgressionRepository{db: db}
}

// Find 按用户 ID 读取进度记录。
func (r *GormProgressionRepository) Find(ctx context.Context, userID string) (*domain.ProgressionRecord, error) {
	var model UserProgressionModel
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return toDomainProgression(&model), nil
}

// Save 整行写入进度记录，主键冲突时覆盖更新（创建和更新共用一条路径）。
func (r *GormProgressionRepository) Save(ctx context.Context, record *domain.ProgressionRecord) error {
	model := fromDomainProgression(record)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"level", "experience", "max_experience", "coins", "last_grant_at", "updated_at",
		}),
	}).Create(model).Error
}

// GormCouponRepository 是 CouponRepository 的 GORM/MySQL 实现。
type GormCouponRepository struct {
	db *gorm.DB
}

// NewGormCouponRepository 创建一个新的优惠券仓储实例。
func NewGormCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

// Insert 插入一条购买快照。
func (r *GormCouponRepository) Insert(ctx context.Context, coupon *domain.PurchasedCoupon) error {
	return r.db.WithContext(ctx).Create(fromDomainCoupon(coupon)).Error
}

// FindByID 按快照 ID 查找某用户的一张券。
func (r *GormCouponRepository) FindByID(ctx context.Context, userID, couponID string) (*domain.PurchasedCoupon, error) {
	var model UserCouponModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", couponID, userID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCouponNotFound
		}
		return nil, err
	}
	return toDomainCoupon(&model), nil
}

// FindByUser 列出某用户的购买快照，按购买时间倒序。
func (r *GormCouponRepository) FindByUser(ctx context.Context, userID string, onlyUnused bool) ([]*domain.PurchasedCoupon, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("purchased_at DESC")
	if onlyUnused {
		query = query.Where("is_used = ?", false)
	}

	var models []*UserCouponModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	coupons := make([]*domain.PurchasedCoupon, len(models))
	for i, m := range models {
		coupons[i] = toDomainCoupon(m)
	}
	return coupons, nil
}

// MarkUsed 以条件更新实现 CAS 核销：WHERE 带上 is_used = false，
// 只有观察到未核销状态的那次 UPDATE 能改到行。RowsAffected 为 0 时
// 再查一次区分"已核销"和"不存在"。
func (r *GormCouponRepository) MarkUsed(ctx context.Context, userID, couponID string, usedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&UserCouponModel{}).
		Where("id = ? AND user_id = ? AND is_used = ?", couponID, userID, false).
		Updates(map[string]interface{}{
			"is_used": true,
			"used_at": usedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&UserCouponModel{}).
		Where("id = ? AND user_id = ?", couponID, userID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrAlreadyUsed
	}
	return domain.ErrCouponNotFound
}

// AutoMigrate 建表，开发环境用。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserProgressionModel{}, &UserCouponModel{})
}
