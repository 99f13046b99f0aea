// internal/service/progression/domain/repository.go
package domain

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound 表示持久层没有对应的记录。
// 对 ProgressionRepository.Find 而言这不是故障：首次访问就该走创建路径。
var ErrRecordNotFound = errors.New("record not found")

// ProgressionRepository 定义了进度记录的持久化接口。
// 位于领域层，由基础设施层实现。实现只负责存取，不解释字段含义；
// 接口刻意保持单行读写，不假设持久层支持多行事务。
type ProgressionRepository interface {
	// Find 按用户 ID 查找进度记录，不存在时返回 ErrRecordNotFound。
	Find(ctx context.Context, userID string) (*ProgressionRecord, error)

	// Save 保存整条进度记录（创建或整行覆盖）。
	Save(ctx context.Context, record *ProgressionRecord) error
}

// CouponRepository 定义了用户优惠券快照的持久化接口。
type CouponRepository interface {
	// Insert 插入一条购买快照。
	Insert(ctx context.Context, coupon *PurchasedCoupon) error

	// FindByID 按快照 ID 查找某用户的一张券，不存在时返回 ErrCouponNotFound。
	FindByID(ctx context.Context, userID, couponID string) (*PurchasedCoupon, error)

	// FindByUser 列出某用户的全部购买快照，onlyUnused 为 true 时只返回未核销的。
	FindByUser(ctx context.Context, userID string, onlyUnused bool) ([]*PurchasedCoupon, error)

	// MarkUsed 以 CAS 语义核销一张券：仅当当前 is_used = false 时写入成功。
	// 已核销返回 ErrAlreadyUsed，不存在返回 ErrCouponNotFound。
	// 两个并发的核销请求必须恰好一个成功。
	MarkUsed(ctx context.Context, userID, couponID string, usedAt time.Time) error
}
