package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"quota-api/internal/clock"
	"quota-api/internal/config"
	"quota-api/internal/models"
	"quota-api/internal/pkg/errors"
	"quota-api/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore implements the repository interfaces with the same
// reset-or-increment contract the SQL implementation has: the stored day is
// read and the branch decided under one lock per charge (the mutex standing
// in for the row lock ChargeDaily holds), so concurrent rollovers elect a
// single winner; key and principal are updated together or not at all.
type fakeStore struct {
	mu         sync.Mutex
	principals map[uuid.UUID]*models.Principal
	keys       map[uuid.UUID]*models.APIKey
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		principals: make(map[uuid.UUID]*models.Principal),
		keys:       make(map[uuid.UUID]*models.APIKey),
	}
}

func (f *fakeStore) ChargeDaily(ctx context.Context, principalID uuid.UUID, apiKeyID *uuid.UUID, day string, cost int64) (*repository.ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.principals[principalID]
	if !ok {
		return nil, errors.ErrNotFound
	}

	var key *models.APIKey
	if apiKeyID != nil {
		key, ok = f.keys[*apiKeyID]
		if !ok || key.UserID != principalID {
			return nil, errors.ErrNotFound
		}
	}

	wasReset := p.LastUsageDate == nil || *p.LastUsageDate != day
	if wasReset {
		p.DailyUsage = cost
	} else {
		p.DailyUsage += cost
	}
	stamped := day
	p.LastUsageDate = &stamped

	if key != nil {
		if wasReset {
			key.Usage = cost
		} else {
			key.Usage += cost
		}
		now := time.Now().UTC()
		key.LastUsed = &now
	}

	return &repository.ChargeResult{
		Usage:      p.DailyUsage,
		Plan:       p.Plan,
		DailyLimit: p.DailyLimit,
		WasReset:   wasReset,
	}, nil
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.principals[id]
	if !ok {
		return nil, errors.ErrNotFound
	}

	copied := *p
	return &copied, nil
}

func (f *fakeStore) Create(ctx context.Context, principal *models.Principal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.principals[principal.ID] = principal
	return nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]string)}
}

func (c *fakeCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.entries[key]
	if !ok {
		return "", errors.ErrNotFound
	}
	return value, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = string(data)
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func newTestLedger(store *fakeStore, cache CacheService, clk clock.Clock) UsageLedgerService {
	quota := NewQuotaService(config.NewPlanLimitConfig())
	return NewUsageLedgerService(store, store, quota, cache, time.Minute, clk)
}

func seedPrincipal(store *fakeStore, plan models.SubscriptionPlan) *models.Principal {
	principal := &models.Principal{
		ID:   uuid.New(),
		Plan: plan,
	}
	_ = store.Create(context.Background(), principal)
	return principal
}

func seedAPIKey(store *fakeStore, ownerID uuid.UUID) *models.APIKey {
	key := &models.APIKey{
		ID:       uuid.New(),
		UserID:   ownerID,
		IsActive: true,
	}
	store.keys[key.ID] = key
	return key
}

func fakeClockAt(day string) *clock.Fake {
	t, _ := time.Parse("2006-01-02", day)
	return clock.NewFake(t.Add(9 * time.Hour))
}

func TestCharge_FirstChargeOfDayResets(t *testing.T) {
	store := newFakeStore()
	principal := seedPrincipal(store, models.StarterPlan)
	stored := "2024-01-01"
	principal.LastUsageDate = &stored
	principal.DailyUsage = 17

	ledger := newTestLedger(store, nil, fakeClockAt("2024-01-02"))

	snapshot, err := ledger.Charge(context.Background(), principal.ID, nil, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(1), snapshot.Usage)
	assert.Equal(t, "2024-01-02", snapshot.Date)
	assert.True(t, snapshot.WasReset)
	assert.Equal(t, int64(1000), snapshot.Limit)
	assert.Equal(t, int64(999), snapshot.Remaining)
}

func TestCharge_SameDayIncrements(t *testing.T) {
	store := newFakeStore()
	principal := seedPrincipal(store, models.StarterPlan)
	ledger := newTestLedger(store, nil, fakeClockAt("2024-01-02"))

	first, err := ledger.Charge(context.Background(), principal.ID, nil, 1)
	require.NoError(t, err)
	assert.True(t, first.WasReset)

	second, err := ledger.Charge(context.Background(), principal.ID, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), second.Usage)
	assert.False(t, second.WasReset)
}

func TestCharge_ConcurrentSameDayChargesAllLand(t *testing.T) {
	store := newFakeStore()
	principal := seedPrincipal(store, models.ProPlan)
	ledger := newTestLedger(store, nil, fakeClockAt("2024-01-02"))

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := ledger.Charge(context.Background(), principal.ID, nil, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snapshot, err := ledger.Peek(context.Background(), principal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), snapshot.Usage)
}

func TestCharge_ConcurrentRolloverResetsExactlyOnce(t *testing.T) {
	store := newFakeStore()
	principal := seedPrincipal(store, models.ProPlan)
	stored := "2024-01-01"
	principal.LastUsageDate = &stored
	principal.DailyUsage = 42

	ledger := newTestLedger(store, nil, fakeClockAt("2024-01-02"))

	const n = 50
	results := make(chan bool, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			snapshot, err := ledger.Charge(context.Background(), principal.ID, nil, 1)
			if assert.NoError(t, err) {
				results <- snapshot.WasReset
			}
		}()
	}
	wg.Wait()
	close(results)

	resets := 0
	for wasReset := range results {
		if wasReset {
			resets++
		}
	}

	// Yesterday's 42 charges are discarded, none of today's are lost.
	assert.Equal(t, 1, resets)
	snapshot, err := ledger.Peek(context.Background(), principal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), snapshot.Usage)
}

func TestCharge_WithAPIKeyUpdatesBothCounters(t *testing.T) {
	store := newFakeStore()
	principal := seedPrincipal(store, models.FreePlan)
	key := seedAPIKey(store, principal.ID)
	ledger := newTestLedger(store, nil, fakeClockAt("2024-01-02"))

	snapshot, err := ledger.Charge(context.Background(), principal.ID, &key.ID, 5)
	require.NoError(t, err)

	assert.Equal(t, int64(5), snapshot.Usage)
	assert.Equal(t, int64(5), key.Usage)
	require.NotNil(t, key.LastUsed)
}

func TestCharge_UnknownAPIKeyIsNotFound(t *testing.T) {
	store := newFakeStore()
	principal := seedPrincipal(store, models.FreePlan)
	ledger := newTestLedger(store, nil, fakeClockAt("2024-01-02"))

	unknown := uuid.New()
	_, err := ledger.Charge(context.Background(), principal.ID, &unknown, 1)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestCharge_UnknownPrincipalIsNotFound(t *testing.T) {
	ledger := newTestLedger(newFakeStore(), nil, fakeClockAt("2024-01-02"))

	_, err := ledger.Charge(context.Background(), uuid.New(), nil, 1)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestCharge_NegativeCostRejected(t *testing.T) {
	store := newFakeStore()
	principal := seedPrincipal(store, models.FreePlan)
	ledger := newTestLedger(store, nil, fakeClockAt("2024-01-02"))

	_, err := ledger.Charge(context.Background(), principal.ID, nil, -1)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestCharge_ZeroCostTouchStampsStaleDay(t *testing.T) {
	store := newFakeStore()
	principal := seedPrincipal(store, models.FreePlan)
	stored := "2024-01-01"
	principal.LastUsageDate = &stored
	principal.DailyUsage = 9

	ledger := newTestLedger(store, nil, fakeClockAt("2024-01-02"))

	snapshot, err := ledger.Charge(context.Background(), principal.ID, nil, 0)
	require.NoError(t, err)

	assert.Equal(t, int64(0), snapshot.Usage)
	assert.True(t, snapshot.WasReset)
	assert.Equal(t, "2024-01-02", *principal.LastUsageDate)
}

func TestCharge_UsageMayExceedLimit(t *testing.T) {
	store := newFakeStore()
	principal := seedPrincipal(store, models.StarterPlan)
	today := "2024-01-02"
	principal.LastUsageDate = &today
	principal.DailyUsage = 999

	ledger := newTestLedger(store, nil, fakeClockAt(today))

	snapshot, err := ledger.Charge(context.Background(), principal.ID, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), snapshot.Usage)
	assert.Equal(t, int64(0), snapshot.Remaining)
	assert.False(t, snapshot.WasReset)

	// The ledger keeps counting past the limit; refusing is the caller's job.
	snapshot, err = ledger.Charge(context.Background(), principal.ID, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), snapshot.Usage)
	assert.Equal(t, int64(0), snapshot.Remaining)
}

func TestPeek_FreshDayIsPureRead(t *testing.T) {
	store := newFakeStore()
	principal := seedPrincipal(store, models.StarterPlan)
	today := "2024-01-02"
	principal.LastUsageDate = &today
	principal.DailyUsage = 7

	ledger := newTestLedger(store, nil, fakeClockAt(today))

	snapshot, err := ledger.Peek(context.Background(), principal.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(7), snapshot.Usage)
	assert.Equal(t, int64(993), snapshot.Remaining)
	assert.False(t, snapshot.WasReset)
	assert.Equal(t, int64(7), principal.DailyUsage)
}

func TestPeek_StaleDayPersistsReset(t *testing.T) {
	store := newFakeStore()
	principal := seedPrincipal(store, models.StarterPlan)
	stored := "2024-01-01"
	principal.LastUsageDate = &stored
	principal.DailyUsage = 17

	ledger := newTestLedger(store, nil, fakeClockAt("2024-01-02"))

	first, err := ledger.Peek(context.Background(), principal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.Usage)
	assert.True(t, first.WasReset)

	second, err := ledger.Peek(context.Background(), principal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Usage)
	assert.False(t, second.WasReset)
}

func TestPeek_RemainingClampedAtZero(t *testing.T) {
	store := newFakeStore()
	principal := seedPrincipal(store, models.FreePlan)
	today := "2024-01-02"
	principal.LastUsageDate = &today
	principal.DailyUsage = 105

	ledger := newTestLedger(store, nil, fakeClockAt(today))

	snapshot, err := ledger.Peek(context.Background(), principal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(105), snapshot.Usage)
	assert.Equal(t, int64(0), snapshot.Remaining)
}

func TestPeek_OverrideTakesPrecedenceOverPlan(t *testing.T) {
	store := newFakeStore()
	principal := seedPrincipal(store, models.FreePlan)
	override := int64(500)
	principal.DailyLimit = &override
	today := "2024-01-02"
	principal.LastUsageDate = &today

	ledger := newTestLedger(store, nil, fakeClockAt(today))

	snapshot, err := ledger.Peek(context.Background(), principal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), snapshot.Limit)
}

func TestPeek_CachedSnapshotServedWithinSameDay(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	principal := seedPrincipal(store, models.StarterPlan)
	today := "2024-01-02"
	principal.LastUsageDate = &today
	principal.DailyUsage = 3

	ledger := newTestLedger(store, cache, fakeClockAt(today))

	first, err := ledger.Peek(context.Background(), principal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), first.Usage)

	// A write behind the cache's back is not seen until the entry expires;
	// the snapshot cache trades this much staleness for round-trips.
	principal.DailyUsage = 50
	second, err := ledger.Peek(context.Background(), principal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), second.Usage)
}

func TestPeek_CacheKeyRollsWithTheDay(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	principal := seedPrincipal(store, models.StarterPlan)
	stored := "2024-01-01"
	principal.LastUsageDate = &stored
	principal.DailyUsage = 17

	clk := fakeClockAt("2024-01-01")
	ledger := newTestLedger(store, cache, clk)

	first, err := ledger.Peek(context.Background(), principal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(17), first.Usage)

	// Yesterday's cached snapshot must not survive the day boundary.
	clk.Advance(24 * time.Hour)
	second, err := ledger.Peek(context.Background(), principal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Usage)
	assert.True(t, second.WasReset)
}

func TestCharge_WritesThroughToCache(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	principal := seedPrincipal(store, models.StarterPlan)
	ledger := newTestLedger(store, cache, fakeClockAt("2024-01-02"))

	_, err := ledger.Charge(context.Background(), principal.ID, nil, 4)
	require.NoError(t, err)

	snapshot, err := ledger.Peek(context.Background(), principal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), snapshot.Usage)
	assert.False(t, snapshot.WasReset)
}
