/**
 * @description
 * This file defines the subscription and meal set models as seen by the edit flow.
 * Both are owned by the subscription backend; this service only reads them.
 */
package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Subscription is the read-only backend view of a customer's meal subscription.
type Subscription struct {
	ID            string          `json:"subscriptionId"`
	CustomerID    string          `json:"customerId,omitempty"`
	PackageID     string          `json:"packageId"`
	Status        string          `json:"status,omitempty"`
	StartDate     time.Time       `json:"startDate"`
	EndDate       time.Time       `json:"endDate"`
	PricePerSet   decimal.Decimal `json:"pricePerSet"`
	Schedule      WeeklySchedule  `json:"schedule"`
	RemainingDays int             `json:"remainingDays"`
}

// MealSet is a vendor-defined group of food items sold as one selectable unit.
type MealSet struct {
	ID       string          `json:"id"`
	VendorID string          `json:"vendorId,omitempty"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
}

// RemainingDays returns the proration basis for a schedule change made on today:
// whole days, rounded up, between max(today, start) and the subscription end.
// The result is never negative.
func RemainingDays(sub Subscription, today time.Time) int {
	effectiveStart := today
	if sub.StartDate.After(today) {
		effectiveStart = sub.StartDate
	}

	remaining := sub.EndDate.Sub(effectiveStart)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}
