// Package customer resolves a customer's service tier.
package customer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"support-agent/internal/agent/cache"
	apperrors "support-agent/internal/common/errors"
	"support-agent/internal/common/logger"
	"support-agent/internal/models"
)

const (
	TierStandard   = "standard"
	TierPremium    = "premium"
	TierEnterprise = "enterprise"
)

// Directory looks tiers up in the customers table through the cache
// manager. Lookups never fail the caller: unknown customers and database
// errors resolve to the standard tier.
type Directory struct {
	db     *sql.DB
	cache  *cache.Manager
	ttl    time.Duration
	logger logger.Logger
}

func NewDirectory(db *sql.DB, c *cache.Manager, ttl time.Duration, log logger.Logger) *Directory {
	return &Directory{
		db:     db,
		cache:  c,
		ttl:    ttl,
		logger: log.With(map[string]interface{}{"component": "customer"}),
	}
}

// Lookup returns the customer context for customerID.
func (d *Directory) Lookup(ctx context.Context, customerID string) models.CustomerContext {
	tier, err := d.tier(ctx, customerID)
	if err != nil {
		d.logger.Warn("failed to fetch customer tier, defaulting to standard", map[string]interface{}{
			"customerId": customerID,
			"error":      err,
		})
		tier = TierStandard
	}
	return models.CustomerContext{CustomerID: customerID, Tier: tier}
}

func (d *Directory) tier(ctx context.Context, customerID string) (string, error) {
	if d.db == nil {
		return TierStandard, nil
	}
	key := cache.Key("customer:tier", customerID)
	if d.cache != nil {
		var cached string
		if d.cache.GetValue(ctx, key, &cached) {
			return cached, nil
		}
	}

	row := d.db.QueryRowContext(ctx, `
		SELECT tier
		FROM customers
		WHERE customer_id = $1`, customerID)

	var tier sql.NullString
	if err := row.Scan(&tier); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("customer %s not found", customerID)
		}
		return "", apperrors.NewCustomerLookupFailedError(customerID, err)
	}

	resolved := normalizeTier(tier.String)
	if d.cache != nil {
		if err := d.cache.PutValue(ctx, key, resolved, d.ttl); err != nil {
			d.logger.Warn("failed to cache customer tier", map[string]interface{}{
				"customerId": customerID,
				"error":      err,
			})
		}
	}
	return resolved, nil
}

func normalizeTier(tier string) string {
	switch tier {
	case TierPremium, TierEnterprise, TierStandard:
		return tier
	default:
		return TierStandard
	}
}
