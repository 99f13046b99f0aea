// internal/service/progression/domain/port/port.go
package port

import (
	"context"
	"time"

	"arcadia/internal/service/progression/domain"
)

// EventPublisher 是成长事件的出站端口。
// 引擎只在持久化成功之后调用它；发布失败由适配器记日志，
// 不允许反过来让业务操作失败。
type EventPublisher interface {
	PublishLevelUp(ctx context.Context, event *domain.LevelUpEvent) error
	PublishCouponPurchased(ctx context.Context, event *domain.CouponPurchasedEvent) error
}

// Clock 抽象了墙上时钟，定时发放的节流判断和各类时间戳都从这里取，
// 便于测试注入。
type Clock interface {
	Now() time.Time
}

// SystemClock 是 Clock 的真实现。
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
