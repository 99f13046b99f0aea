// internal/service/progression/interfaces/metrics.go
package interfaces

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	levelUpsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "progression_level_ups_total",
		Help: "Total number of level-ups settled by the progression engine.",
	})

	experienceGrantedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_experience_granted_total",
		Help: "Total experience points granted, partitioned by grant source.",
	}, []string{"source"})

	couponPurchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_coupon_purchases_total",
		Help: "Coupon purchase attempts, partitioned by result.",
	}, []string{"result"})

	couponRedemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_coupon_redemptions_total",
		Help: "Coupon redemption attempts, partitioned by result.",
	}, []string{"result"})
)
