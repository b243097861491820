package app

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tiffinbox/subscription-edit-service/internal/domain"
)

// PriceFunc returns the unit price of a meal set.
type PriceFunc func(setID string) decimal.Decimal

// EstimateCost prices schedule over the subscription's remaining days: for each
// remaining calendar day it adds quantity x price for every meal scheduled on
// that weekday. Disabled days cost nothing.
func EstimateCost(schedule domain.WeeklySchedule, sub domain.Subscription, today time.Time, price PriceFunc) decimal.Decimal {
	days := domain.RemainingDays(sub, today)
	if days == 0 {
		return decimal.Zero
	}

	perDay := make(map[domain.Weekday]decimal.Decimal, len(domain.Weekdays))
	for _, entry := range schedule {
		if !entry.Enabled {
			continue
		}
		total := decimal.Zero
		for _, meal := range entry.Meals {
			total = total.Add(price(meal.SetID).Mul(decimal.NewFromInt(int64(meal.Quantity))))
		}
		perDay[entry.DayOfWeek] = total
	}

	start := today
	if sub.StartDate.After(today) {
		start = sub.StartDate
	}

	cost := decimal.Zero
	for i := 0; i < days; i++ {
		if dayCost, ok := perDay[domain.WeekdayOf(start.AddDate(0, 0, i))]; ok {
			cost = cost.Add(dayCost)
		}
	}
	return cost
}
