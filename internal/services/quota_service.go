package services

import (
	"quota-api/internal/config"
	"quota-api/internal/models"
)

// QuotaService resolves a principal's daily request limit. Resolution is
// pure and total: every plan/override combination has a defined limit.
type QuotaService interface {
	ResolveLimit(plan models.SubscriptionPlan, explicitOverride *int64) int64
}

type quotaService struct {
	planConfig *config.PlanLimitConfig
}

func NewQuotaService(planConfig *config.PlanLimitConfig) QuotaService {
	return &quotaService{planConfig: planConfig}
}

// ResolveLimit gives a non-negative per-principal override precedence over
// the plan table; unknown or empty plans fall back to the free tier value.
func (s *quotaService) ResolveLimit(plan models.SubscriptionPlan, explicitOverride *int64) int64 {
	if explicitOverride != nil && *explicitOverride >= 0 {
		return *explicitOverride
	}

	if limit, ok := s.planConfig.Limits[plan]; ok {
		return limit
	}

	return s.planConfig.DefaultLimit
}
