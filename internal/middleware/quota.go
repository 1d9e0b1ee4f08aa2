package middleware

import (
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"quota-api/internal/clock"
	"quota-api/internal/logger"
	"quota-api/internal/pkg/errors"
	"quota-api/internal/services"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	principalHeader = "X-Principal-ID"
	apiKeyIDHeader  = "X-API-Key-ID"
	rawAPIKeyHeader = "X-API-Key"
)

// QuotaEnforcer is the gateway-side half of the quota contract: it charges
// the ledger before serving and rejects with 429 strictly after the limit is
// crossed. The request that lands exactly on the limit is still served.
type QuotaEnforcer struct {
	ledger services.UsageLedgerService
	keys   services.APIKeyService // optional, resolves raw X-API-Key headers
	clock  clock.Clock

	// FailOpen serves requests when the ledger is unreachable instead of
	// rejecting them. Either way the failed charge is never counted.
	FailOpen bool
}

func NewQuotaEnforcer(ledger services.UsageLedgerService, keys services.APIKeyService, clk clock.Clock) *QuotaEnforcer {
	if clk == nil {
		clk = clock.Real{}
	}
	return &QuotaEnforcer{
		ledger: ledger,
		keys:   keys,
		clock:  clk,
	}
}

func (q *QuotaEnforcer) Enforce(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principalID, err := uuid.Parse(r.Header.Get(principalHeader))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		apiKeyID, ok := q.resolveAPIKey(w, r, principalID)
		if !ok {
			return
		}

		snapshot, err := q.ledger.Charge(r.Context(), principalID, apiKeyID, 1)
		if err != nil {
			if stderrors.Is(err, errors.ErrNotFound) {
				http.Error(w, "Unknown principal", http.StatusForbidden)
				return
			}

			logger.Logger.WithFields(logrus.Fields{
				"error":     err,
				"principal": principalID,
			}).Error("Quota charge failed")

			if q.FailOpen {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Quota service unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(snapshot.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(snapshot.Remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(q.nextReset().Unix(), 10))

		if snapshot.Usage > snapshot.Limit {
			http.Error(w, "Daily quota exceeded. Please upgrade your subscription for higher limits.", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// resolveAPIKey picks the key to charge against: a pre-validated id from the
// identity layer, or a raw credential looked up here. Activity and ownership
// are this caller's checks; the ledger itself never gates on them.
func (q *QuotaEnforcer) resolveAPIKey(w http.ResponseWriter, r *http.Request, principalID uuid.UUID) (*uuid.UUID, bool) {
	if raw := r.Header.Get(apiKeyIDHeader); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "Invalid API key id", http.StatusBadRequest)
			return nil, false
		}
		return &id, true
	}

	raw := r.Header.Get(rawAPIKeyHeader)
	if raw == "" || q.keys == nil {
		return nil, true
	}

	apiKey, err := q.keys.GetAPIKeyByKey(r.Context(), raw)
	if err != nil {
		http.Error(w, "Invalid API key", http.StatusForbidden)
		return nil, false
	}

	if apiKey.UserID != principalID {
		http.Error(w, "API key does not belong to the principal", http.StatusForbidden)
		return nil, false
	}

	if !apiKey.IsActive {
		http.Error(w, "API key is inactive", http.StatusForbidden)
		return nil, false
	}

	return &apiKey.ID, true
}

// nextReset is the upcoming UTC midnight, the shared rollover instant for
// all principals.
func (q *QuotaEnforcer) nextReset() time.Time {
	now := q.clock.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
