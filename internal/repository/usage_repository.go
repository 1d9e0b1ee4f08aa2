package repository

import (
	"context"
	stderrors "errors"
	"time"

	"quota-api/internal/models"
	"quota-api/internal/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ChargeResult carries the principal's post-update counters together with
// the fields needed to resolve its limit.
type ChargeResult struct {
	Usage      int64
	Plan       models.SubscriptionPlan
	DailyLimit *int64
	WasReset   bool
}

type UsageRepository interface {
	// ChargeDaily applies one conditional reset-or-increment to the
	// principal's daily counter and, when apiKeyID is set, mirrors the same
	// outcome onto the key's counter in the same transaction.
	ChargeDaily(ctx context.Context, principalID uuid.UUID, apiKeyID *uuid.UUID, day string, cost int64) (*ChargeResult, error)
}

type usageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

// Concurrency contract: the FOR UPDATE read takes the row lock for the whole
// transaction, so concurrent charges racing across a day boundary serialize
// here — exactly one of them still sees yesterday's date and wins the reset,
// the rest increment. The stored day must be read under that lock; a joined
// or separate unlocked read would see the pre-lock snapshot and let two
// chargers both win the reset. The UPDATE's branch re-checks the target row
// itself, which Postgres evaluates on the locked, latest tuple version.
const lockPrincipalSQL = `
SELECT last_usage_date
FROM principals
WHERE id = ? AND deleted_at IS NULL
FOR UPDATE
`

const chargeDailySQL = `
UPDATE principals
SET daily_usage = CASE WHEN last_usage_date = ? THEN daily_usage + ? ELSE ? END,
    last_usage_date = ?,
    updated_at = NOW()
WHERE id = ? AND deleted_at IS NULL
RETURNING daily_usage AS usage,
          plan AS plan,
          daily_limit AS daily_limit
`

const chargeKeySQL = `
UPDATE api_keys
SET usage = CASE WHEN ? THEN ? ELSE usage + ? END,
    last_used = ?,
    updated_at = ?
WHERE id = ? AND user_id = ?
`

func (r *usageRepository) ChargeDaily(ctx context.Context, principalID uuid.UUID, apiKeyID *uuid.UUID, day string, cost int64) (*ChargeResult, error) {
	var result ChargeResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked struct {
			LastUsageDate *string
		}
		res := tx.Raw(lockPrincipalSQL, principalID).Scan(&locked)
		if res.Error != nil {
			return storeError(res.Error, "failed to lock principal row")
		}
		if res.RowsAffected == 0 {
			return errors.ErrNotFound
		}

		result.WasReset = locked.LastUsageDate == nil || *locked.LastUsageDate != day

		res = tx.Raw(chargeDailySQL, day, cost, cost, day, principalID).Scan(&result)
		if res.Error != nil {
			return storeError(res.Error, "failed to charge principal usage")
		}

		if apiKeyID == nil {
			return nil
		}

		now := time.Now().UTC()
		res = tx.Exec(chargeKeySQL, result.WasReset, cost, cost, now, now, *apiKeyID, principalID)
		if res.Error != nil {
			return storeError(res.Error, "failed to charge api key usage")
		}
		if res.RowsAffected == 0 {
			// Unknown or foreign key: roll back so the two counters
			// cannot diverge.
			return errors.ErrNotFound
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func storeError(err error, message string) error {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		// serialization_failure / deadlock_detected
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return errors.Wrap(errors.ErrTransactionConflict, message+": "+err.Error())
		}
	}

	return errors.Wrap(errors.ErrStoreUnavailable, message+": "+err.Error())
}
