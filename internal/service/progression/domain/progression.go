// internal/service/progression/domain/progression.go
package domain

import (
	"errors"
	"time"
)

const (
	// BaseExperience 是 1 级升到 2 级所需的经验值。
	BaseExperience = 1000
	// ExperienceStep 是每升一级后，升级门槛的增量。
	ExperienceStep = 500
	// CoinsPerLevel 是每次升级发放的金币奖励。
	CoinsPerLevel = 5000
	// PeriodicGrantAmount 是在线挂机定时发放的经验值。
	PeriodicGrantAmount = 100
	// PeriodicGrantInterval 是两次定时经验发放之间的最小间隔。
	PeriodicGrantInterval = 2 * time.Minute
)

var (
	// ErrInvalidAmount 表示经验发放数量非法（必须为正数）。
	ErrInvalidAmount = errors.New("experience amount must be positive")
)

// ExperienceThreshold 计算某一等级升级所需的经验门槛。
// 这是 max_experience 的唯一真相来源：等级变化后必须用它重算，
// 不允许在别处各自缓存一份，否则两者会悄悄失配。
func ExperienceThreshold(level int) int {
	return BaseExperience + (level-1)*ExperienceStep
}

// ProgressionRecord 是玩家成长进度的聚合根。
// 每个用户有且仅有一条记录，只能通过本领域的方法变更。
type ProgressionRecord struct {
	UserID        string
	Level         int
	Experience    int
	MaxExperience int
	Coins         int
	// LastGrantAt 记录上一次定时经验发放的时间，是发放节流的唯一依据。
	LastGrantAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewProgressionRecord 创建一个默认的初始进度（1 级、零经验、零金币）。
// 首次访问即创建是这里的标准路径，持久层绝不隐式造默认值。
func NewProgressionRecord(userID string, now time.Time) *ProgressionRecord {
	return &ProgressionRecord{
		UserID:        userID,
		Level:         1,
		Experience:    0,
		MaxExperience: ExperienceThreshold(1),
		Coins:         0,
		LastGrantAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// LevelUp 描述一次升级：新等级、本次奖励的金币、以及升级后的金币总额。
type LevelUp struct {
	NewLevel    int
	CoinsEarned int
	TotalCoins  int
}

// ApplyExperience 把一笔经验加到记录上，并结算所有因此触发的升级。
// 一次大额发放可以连升多级，循环每转一圈产出一条 LevelUp（按等级升序）。
// 循环结束后恒有 0 <= Experience < MaxExperience。
func (r *ProgressionRecord) ApplyExperience(amount int, now time.Time) ([]LevelUp, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	r.Experience += amount

	var levelUps []LevelUp
	for r.Experience >= r.MaxExperience {
		r.Experience -= r.MaxExperience
		r.Level++
		r.MaxExperience = ExperienceThreshold(r.Level)
		r.Coins += CoinsPerLevel
		levelUps = append(levelUps, LevelUp{
			NewLevel:    r.Level,
			CoinsEarned: CoinsPerLevel,
			TotalCoins:  r.Coins,
		})
	}

	r.UpdatedAt = now
	return levelUps, nil
}

// PeriodicGrantDue 判断按当前时间是否到了下一次定时经验发放。
// 注意：这只是单会话视角下的软节流，多开会话各自读到同一个
// LastGrantAt 时可能都判定到期，这是已知并被接受的不一致。
func (r *ProgressionRecord) PeriodicGrantDue(now time.Time) bool {
	return now.Sub(r.LastGrantAt) >= PeriodicGrantInterval
}

// MarkGranted 在定时发放成功后推进节流时间戳。
func (r *ProgressionRecord) MarkGranted(now time.Time) {
	r.LastGrantAt = now
	r.UpdatedAt = now
}

// AdjustCoins 调整金币余额。delta 为正即充值，为负即扣减；
// 余额向下钳制到 0，绝不出现负数。需要"余额必须够"语义的调用方
// （比如购券结算）必须自己先做余额校验，而不是依赖这里的钳制。
func (r *ProgressionRecord) AdjustCoins(delta int, now time.Time) {
	r.Coins += delta
	if r.Coins < 0 {
		r.Coins = 0
	}
	r.UpdatedAt = now
}

// CanAfford 判断余额是否足以支付一笔开销。
func (r *ProgressionRecord) CanAfford(cost int) bool {
	return r.Coins >= cost
}

// Reset 把记录无条件恢复为初始进度。已购买的优惠券不受影响。
func (r *ProgressionRecord) Reset(now time.Time) {
	r.Level = 1
	r.Experience = 0
	r.MaxExperience = ExperienceThreshold(1)
	r.Coins = 0
	r.LastGrantAt = now
	r.UpdatedAt = now
}
