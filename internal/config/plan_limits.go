package config

import (
	"quota-api/internal/models"
)

// PlanLimitConfig maps subscription plans to daily request limits.
// This is static configuration, not derived state; DefaultLimit covers
// principals whose plan is missing or unrecognized.
type PlanLimitConfig struct {
	Limits       map[models.SubscriptionPlan]int64
	DefaultLimit int64
}

func NewPlanLimitConfig() *PlanLimitConfig {
	limits := map[models.SubscriptionPlan]int64{
		models.FreePlan:       100,
		models.StarterPlan:    1000,
		models.ProPlan:        10000,
		models.EnterprisePlan: 100000,
	}

	return &PlanLimitConfig{
		Limits:       limits,
		DefaultLimit: limits[models.FreePlan],
	}
}
