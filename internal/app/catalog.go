package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tiffinbox/subscription-edit-service/internal/domain"
)

// CatalogSource lists the vendor meal sets.
type CatalogSource interface {
	ListMealSets(ctx context.Context) ([]domain.MealSet, error)
}

// Catalog caches meal sets so schedules can show set names and prices.
// Cached values are display copies; the backend remains the source of truth.
type Catalog struct {
	source CatalogSource
	logger *slog.Logger

	mu          sync.RWMutex
	sets        map[string]domain.MealSet
	refreshedAt time.Time
}

func NewCatalog(source CatalogSource, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		source: source,
		logger: logger,
		sets:   make(map[string]domain.MealSet),
	}
}

// Refresh replaces the cached meal sets. On failure the previous cache is kept.
func (c *Catalog) Refresh(ctx context.Context) error {
	if c.source == nil {
		return errors.New("meal set catalog has no source")
	}

	sets, err := c.source.ListMealSets(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]domain.MealSet, len(sets))
	for _, set := range sets {
		next[set.ID] = set
	}

	c.mu.Lock()
	c.sets = next
	c.refreshedAt = time.Now()
	c.mu.Unlock()

	c.logger.Info("meal set catalog refreshed", "count", len(next))
	return nil
}

func (c *Catalog) Lookup(setID string) (domain.MealSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.sets[setID]
	return set, ok
}

// RefreshedAt is zero until the first successful refresh.
func (c *Catalog) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshedAt
}

// Enrich returns a copy of s with meal names and prices filled from the cache.
// Unknown sets keep empty display fields.
func (c *Catalog) Enrich(s domain.WeeklySchedule) domain.WeeklySchedule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(domain.WeeklySchedule, len(s))
	for i, entry := range s {
		meals := make([]domain.MealSelection, len(entry.Meals))
		for j, meal := range entry.Meals {
			meals[j] = domain.MealSelection{SetID: meal.SetID, Quantity: meal.Quantity}
			if set, ok := c.sets[meal.SetID]; ok {
				price := set.Price
				meals[j].Name = set.Name
				meals[j].Price = &price
			}
		}
		out[i] = domain.DayEntry{DayOfWeek: entry.DayOfWeek, Enabled: entry.Enabled, Meals: meals}
	}
	return out
}

// PriceOr returns a price lookup that falls back to fallback for unknown sets.
func (c *Catalog) PriceOr(fallback decimal.Decimal) PriceFunc {
	return func(setID string) decimal.Decimal {
		if set, ok := c.Lookup(setID); ok {
			return set.Price
		}
		return fallback
	}
}
