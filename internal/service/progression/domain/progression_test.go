// internal/service/progression/domain/progression_test.go
package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExperienceThreshold(t *testing.T) {
	assert.Equal(t, 1000, ExperienceThreshold(1))
	assert.Equal(t, 1500, ExperienceThreshold(2))
	assert.Equal(t, 2000, ExperienceThreshold(3))
	assert.Equal(t, 5500, ExperienceThreshold(10))

	// 门槛严格单调递增
	for level := 1; level < 100; level++ {
		assert.Less(t, ExperienceThreshold(level), ExperienceThreshold(level+1))
	}
}

func TestNewProgressionRecord(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewProgressionRecord("user-1", now)

	assert.Equal(t, "user-1", r.UserID)
	assert.Equal(t, 1, r.Level)
	assert.Equal(t, 0, r.Experience)
	assert.Equal(t, 1000, r.MaxExperience)
	assert.Equal(t, 0, r.Coins)
	assert.Equal(t, now, r.LastGrantAt)
}

func TestApplyExperience_NoLevelUp(t *testing.T) {
	now := time.Now()
	r := NewProgressionRecord("user-1", now)

	levelUps, err := r.ApplyExperience(999, now)
	require.NoError(t, err)
	assert.Empty(t, levelUps)
	assert.Equal(t, 1, r.Level)
	assert.Equal(t, 999, r.Experience)
}

func TestApplyExperience_SingleLevelUp(t *testing.T) {
	now := time.Now()
	r := NewProgressionRecord("user-1", now)

	levelUps, err := r.ApplyExperience(1000, now)
	require.NoError(t, err)
	require.Len(t, levelUps, 1)
	assert.Equal(t, LevelUp{NewLevel: 2, CoinsEarned: 5000, TotalCoins: 5000}, levelUps[0])
	assert.Equal(t, 2, r.Level)
	assert.Equal(t, 0, r.Experience)
	assert.Equal(t, 1500, r.MaxExperience)
	assert.Equal(t, 5000, r.Coins)
}

func TestApplyExperience_MultiLevelUp(t *testing.T) {
	now := time.Now()
	r := NewProgressionRecord("user-1", now)

	// 2600 = 1000（升到 2 级）+ 1500（升到 3 级）+ 100 剩余
	levelUps, err := r.ApplyExperience(2600, now)
	require.NoError(t, err)
	require.Len(t, levelUps, 2)

	// 升级事件按等级升序
	assert.Equal(t, LevelUp{NewLevel: 2, CoinsEarned: 5000, TotalCoins: 5000}, levelUps[0])
	assert.Equal(t, LevelUp{NewLevel: 3, CoinsEarned: 5000, TotalCoins: 10000}, levelUps[1])

	assert.Equal(t, 3, r.Level)
	assert.Equal(t, 100, r.Experience)
	assert.Equal(t, 2000, r.MaxExperience)
	assert.Equal(t, 10000, r.Coins)
}

func TestApplyExperience_InvalidAmount(t *testing.T) {
	now := time.Now()
	r := NewProgressionRecord("user-1", now)

	_, err := r.ApplyExperience(0, now)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = r.ApplyExperience(-50, now)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// 被拒绝的发放不改变任何状态
	assert.Equal(t, 1, r.Level)
	assert.Equal(t, 0, r.Experience)
}

func TestApplyExperience_InvariantHolds(t *testing.T) {
	now := time.Now()
	r := NewProgressionRecord("user-1", now)

	// 任意发放序列之后，恒有 0 <= Experience < MaxExperience
	for _, amount := range []int{1, 999, 1000, 4999, 12345, 100000} {
		_, err := r.ApplyExperience(amount, now)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, r.Experience, 0)
		assert.Less(t, r.Experience, r.MaxExperience)
		assert.Equal(t, ExperienceThreshold(r.Level), r.MaxExperience)
	}
}

func TestPeriodicGrantDue(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewProgressionRecord("user-1", start)

	assert.False(t, r.PeriodicGrantDue(start.Add(30*time.Second)))
	assert.False(t, r.PeriodicGrantDue(start.Add(119*time.Second)))
	assert.True(t, r.PeriodicGrantDue(start.Add(2*time.Minute)))
	assert.True(t, r.PeriodicGrantDue(start.Add(121*time.Second)))

	// 发放成功后重新计时
	r.MarkGranted(start.Add(2 * time.Minute))
	assert.False(t, r.PeriodicGrantDue(start.Add(3*time.Minute)))
	assert.True(t, r.PeriodicGrantDue(start.Add(4*time.Minute)))
}

func TestAdjustCoins_ClampsAtZero(t *testing.T) {
	now := time.Now()
	r := NewProgressionRecord("user-1", now)

	r.AdjustCoins(3000, now)
	assert.Equal(t, 3000, r.Coins)

	r.AdjustCoins(-1000, now)
	assert.Equal(t, 2000, r.Coins)

	// 超额扣减钳制到 0，不出现负余额
	r.AdjustCoins(-99999, now)
	assert.Equal(t, 0, r.Coins)
}

func TestCanAfford(t *testing.T) {
	now := time.Now()
	r := NewProgressionRecord("user-1", now)
	r.AdjustCoins(5000, now)

	assert.True(t, r.CanAfford(5000))
	assert.True(t, r.CanAfford(4999))
	assert.False(t, r.CanAfford(5001))
}

func TestReset(t *testing.T) {
	start := time.Now()
	r := NewProgressionRecord("user-1", start)
	_, err := r.ApplyExperience(12345, start)
	require.NoError(t, err)
	require.Greater(t, r.Level, 1)

	resetAt := start.Add(time.Hour)
	r.Reset(resetAt)

	assert.Equal(t, 1, r.Level)
	assert.Equal(t, 0, r.Experience)
	assert.Equal(t, ExperienceThreshold(1), r.MaxExperience)
	assert.Equal(t, 0, r.Coins)
	assert.Equal(t, resetAt, r.LastGrantAt)
}
