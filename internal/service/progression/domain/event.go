// internal/service/progression/domain/event.go
package domain

import "time"

// 事件类型标识，作为消息体里的区分字段。
const (
	EventTypeLevelUp         = "level_up"
	EventTypeCouponPurchased = "coupon_purchased"
)

// LevelUpEvent 在经验累积跨过升级门槛时发布，一次发放连升多级
// 就发布多条，按等级升序。投递是 fire-and-forget、至少一次，
// UI 把重复的提示当作幂等 toast 处理。
type LevelUpEvent struct {
	UserID      string    `json:"userId"`
	NewLevel    int       `json:"newLevel"`
	CoinsEarned int       `json:"coinsEarned"`
	TotalCoins  int       `json:"totalCoins"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// CouponPurchasedEvent 在一次购券完整落库后发布。
type CouponPurchasedEvent struct {
	UserID          string    `json:"userId"`
	CouponID        string    `json:"couponId"`
	CouponName      string    `json:"couponName"`
	DiscountPercent int       `json:"discountPercent"`
	Rarity          Rarity    `json:"rarity"`
	RemainingCoins  int       `json:"remainingCoins"`
	OccurredAt      time.Time `json:"occurredAt"`
}

// Fact 是规则引擎评估购买资格时可见的事实集合。
// 字段名即 CEL 表达式里的变量名。
type Fact struct {
	Level      int    `json:"level"`
	Experience int    `json:"experience"`
	Coins      int    `json:"coins"`
	Rarity     string `json:"rarity"`
}

// RuleEngine 抽象了资格规则的评估。表达式来自券目录，
// 具体引擎（CEL）由基础设施层适配进来。
type RuleEngine interface {
	Evaluate(rule string, fact Fact) (bool, error)
}
