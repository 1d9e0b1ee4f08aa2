package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"quota-api/internal/clock"
	"quota-api/internal/logger"
	"quota-api/internal/metrics"
	"quota-api/internal/pkg/errors"
	"quota-api/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// UsageSnapshot is the post-operation view handed back to callers; it is
// never persisted. Remaining is clamped at zero, usage is not.
type UsageSnapshot struct {
	Usage     int64  `json:"usage"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
	Date      string `json:"date"`
	WasReset  bool   `json:"wasReset"`
}

// UsageLedgerService tracks per-principal daily usage. The logical day is
// the UTC calendar date; the first operation that observes a new day resets
// the counter, every later same-day charge increments it. The ledger never
// refuses a charge over the limit; blocking is the caller's decision.
type UsageLedgerService interface {
	Charge(ctx context.Context, principalID uuid.UUID, apiKeyID *uuid.UUID, cost int64) (*UsageSnapshot, error)
	Peek(ctx context.Context, principalID uuid.UUID) (*UsageSnapshot, error)
}

type usageLedgerService struct {
	usageRepo     repository.UsageRepository
	principalRepo repository.PrincipalRepository
	quota         QuotaService
	cache         CacheService // optional, may be nil
	cacheTTL      time.Duration
	clock         clock.Clock
}

func NewUsageLedgerService(
	usageRepo repository.UsageRepository,
	principalRepo repository.PrincipalRepository,
	quota QuotaService,
	cache CacheService,
	cacheTTL time.Duration,
	clk clock.Clock,
) UsageLedgerService {
	if clk == nil {
		clk = clock.Real{}
	}

	return &usageLedgerService{
		usageRepo:     usageRepo,
		principalRepo: principalRepo,
		quota:         quota,
		cache:         cache,
		cacheTTL:      cacheTTL,
		clock:         clk,
	}
}

func (s *usageLedgerService) Charge(ctx context.Context, principalID uuid.UUID, apiKeyID *uuid.UUID, cost int64) (*UsageSnapshot, error) {
	if cost < 0 {
		return nil, errors.ErrInvalidArgument
	}

	today := s.today()

	result, err := s.usageRepo.ChargeDaily(ctx, principalID, apiKeyID, today, cost)
	if err != nil {
		metrics.ChargesTotal.WithLabelValues("charge", "error").Inc()
		return nil, err
	}

	snapshot := s.buildSnapshot(result, today)

	metrics.ChargesTotal.WithLabelValues("charge", "ok").Inc()
	if snapshot.WasReset {
		metrics.DayResetsTotal.Inc()
	}

	s.cacheSnapshot(ctx, principalID, today, snapshot)

	return snapshot, nil
}

func (s *usageLedgerService) Peek(ctx context.Context, principalID uuid.UUID) (*UsageSnapshot, error) {
	today := s.today()

	if cached := s.cachedSnapshot(ctx, principalID, today); cached != nil {
		metrics.ChargesTotal.WithLabelValues("peek", "ok").Inc()
		return cached, nil
	}

	principal, err := s.principalRepo.GetByID(ctx, principalID)
	if err != nil {
		metrics.ChargesTotal.WithLabelValues("peek", "error").Inc()
		return nil, err
	}

	// Fresh day: pure read, nothing to persist.
	if principal.LastUsageDate != nil && *principal.LastUsageDate == today {
		limit := s.quota.ResolveLimit(principal.Plan, principal.DailyLimit)
		snapshot := &UsageSnapshot{
			Usage:     principal.DailyUsage,
			Limit:     limit,
			Remaining: remaining(limit, principal.DailyUsage),
			Date:      today,
		}

		metrics.ChargesTotal.WithLabelValues("peek", "ok").Inc()
		s.cacheSnapshot(ctx, principalID, today, snapshot)
		return snapshot, nil
	}

	// Stale day: the rollover is persisted now so the next reader sees a
	// zeroed counter without waiting for a charge. A zero-cost conditional
	// charge loses gracefully if a concurrent request resets first.
	result, err := s.usageRepo.ChargeDaily(ctx, principalID, nil, today, 0)
	if err != nil {
		metrics.ChargesTotal.WithLabelValues("peek", "error").Inc()
		return nil, err
	}

	snapshot := s.buildSnapshot(result, today)

	metrics.ChargesTotal.WithLabelValues("peek", "ok").Inc()
	if snapshot.WasReset {
		metrics.DayResetsTotal.Inc()
	}

	s.cacheSnapshot(ctx, principalID, today, snapshot)

	return snapshot, nil
}

func (s *usageLedgerService) today() string {
	return s.clock.Now().UTC().Format("2006-01-02")
}

func (s *usageLedgerService) buildSnapshot(result *repository.ChargeResult, today string) *UsageSnapshot {
	limit := s.quota.ResolveLimit(result.Plan, result.DailyLimit)

	return &UsageSnapshot{
		Usage:     result.Usage,
		Limit:     limit,
		Remaining: remaining(limit, result.Usage),
		Date:      today,
		WasReset:  result.WasReset,
	}
}

func remaining(limit, usage int64) int64 {
	if usage >= limit {
		return 0
	}
	return limit - usage
}

// The snapshot cache is keyed by principal and logical day, so a cached
// entry from yesterday can never satisfy a read today.
func snapshotCacheKey(principalID uuid.UUID, day string) string {
	return fmt.Sprintf("usage:%s:%s", principalID, day)
}

func (s *usageLedgerService) cachedSnapshot(ctx context.Context, principalID uuid.UUID, day string) *UsageSnapshot {
	if s.cache == nil {
		return nil
	}

	raw, err := s.cache.Get(ctx, snapshotCacheKey(principalID, day))
	if err != nil {
		return nil
	}

	var snapshot UsageSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil
	}

	// The cached wasReset belongs to the operation that stored it.
	snapshot.WasReset = false
	return &snapshot
}

func (s *usageLedgerService) cacheSnapshot(ctx context.Context, principalID uuid.UUID, day string, snapshot *UsageSnapshot) {
	if s.cache == nil {
		return
	}

	stored := *snapshot
	stored.WasReset = false

	if err := s.cache.Set(ctx, snapshotCacheKey(principalID, day), stored, s.cacheTTL); err != nil {
		logger.Logger.WithFields(logrus.Fields{
			"error":     err,
			"principal": principalID,
		}).Warn("Failed to cache usage snapshot")
	}
}
