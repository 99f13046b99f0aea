// internal/service/progression/domain/coupon_test.go
package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRarityLess(t *testing.T) {
	assert.True(t, RarityCommon.Less(RarityRare))
	assert.True(t, RarityRare.Less(RarityEpic))
	assert.True(t, RarityEpic.Less(RarityLegendary))
	assert.False(t, RarityLegendary.Less(RarityCommon))
	assert.False(t, RarityRare.Less(RarityRare))
}

func TestDefaultCatalog(t *testing.T) {
	require.Len(t, DefaultCatalog, 6)

	seen := make(map[string]bool)
	for _, def := range DefaultCatalog {
		assert.False(t, seen[def.ID], "duplicate catalog id %s", def.ID)
		seen[def.ID] = true
		assert.Greater(t, def.Cost, 0)
		assert.Greater(t, def.DiscountPercent, 0)
		assert.LessOrEqual(t, def.DiscountPercent, 100)
	}
}

func TestFindDefinition(t *testing.T) {
	def, ok := FindDefinition(DefaultCatalog, "rare_15")
	require.True(t, ok)
	assert.Equal(t, 15, def.DiscountPercent)
	assert.Equal(t, 5000, def.Cost)
	assert.Equal(t, RarityRare, def.Rarity)

	_, ok = FindDefinition(DefaultCatalog, "no_such_coupon")
	assert.False(t, ok)
}

func TestNewPurchasedCoupon_SnapshotsDefinition(t *testing.T) {
	now := time.Now()
	def, ok := FindDefinition(DefaultCatalog, "legendary_30")
	require.True(t, ok)

	c := NewPurchasedCoupon("purchase-1", "user-1", def, now)

	assert.Equal(t, "purchase-1", c.ID)
	assert.Equal(t, "user-1", c.UserID)
	assert.Equal(t, def.ID, c.CouponID)
	assert.Equal(t, def.Name, c.Name)
	assert.Equal(t, def.DiscountPercent, c.DiscountPercent)
	assert.Equal(t, def.Cost, c.Cost)
	assert.Equal(t, def.Rarity, c.Rarity)
	assert.False(t, c.IsUsed)
	assert.Equal(t, now, c.PurchasedAt)
	assert.True(t, c.UsedAt.IsZero())
}
