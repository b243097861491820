package mealclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tiffinbox/subscription-edit-service/internal/domain"
)

// Field names for the price difference response, canonical name first.
var (
	oldCostFields           = []string{"oldCost", "oldRemainingCost"}
	newCostFields           = []string{"newCost", "newRemainingCost"}
	additionalPaymentFields = []string{"additionalPayment", "additionalAmount", "amountDue"}
	refundAmountFields      = []string{"refundAmount", "refund", "refundDue"}
	remainingDaysFields     = []string{"remainingDays", "daysRemaining"}
)

// NormalizePriceDifference turns a backend price difference body into a typed
// result. For each amount the canonical field wins, then the alternates in
// order, then zero. Numbers and numeric strings are accepted; anything else
// coerces to zero. The result is not classified.
func NormalizePriceDifference(body []byte) (domain.PriceCalculationResult, error) {
	fields, err := objectFields(unwrapData(body))
	if err != nil {
		return domain.PriceCalculationResult{}, fmt.Errorf("%w: price difference response: %v", domain.ErrUnexpectedServerState, err)
	}

	result := domain.PriceCalculationResult{
		OldCost:           pickDecimal(fields, oldCostFields...),
		NewCost:           pickDecimal(fields, newCostFields...),
		AdditionalPayment: pickDecimal(fields, additionalPaymentFields...),
		RefundAmount:      pickDecimal(fields, refundAmountFields...),
	}
	if days := pickDecimal(fields, remainingDaysFields...); days.IsPositive() {
		result.RemainingDays = int(days.Ceil().IntPart())
	}
	return result, nil
}

// NormalizeApplyEdit reads the edit status and optional payment hand-off fields.
// A body that is not a JSON object is an unexpected server state; a missing
// status is left empty and later treated as unrecognized.
func NormalizeApplyEdit(body []byte) (*ApplyEditResponse, error) {
	fields, err := objectFields(unwrapData(body))
	if err != nil {
		return nil, fmt.Errorf("%w: apply edit response: %v", domain.ErrUnexpectedServerState, err)
	}
	return &ApplyEditResponse{
		EditStatus: pickString(fields, "editStatus", "status"),
		PaymentURL: pickString(fields, "paymentUrl", "paymentURL", "checkoutUrl"),
		PaymentID:  pickString(fields, "paymentId", "paymentID"),
	}, nil
}

func objectFields(body []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && string(trimmed) != "null"
}

func pickDecimal(fields map[string]json.RawMessage, names ...string) decimal.Decimal {
	for _, name := range names {
		if raw, ok := fields[name]; ok && present(raw) {
			return decimalFromRaw(raw)
		}
	}
	return decimal.Zero
}

func pickString(fields map[string]json.RawMessage, names ...string) string {
	for _, name := range names {
		raw, ok := fields[name]
		if !ok || !present(raw) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// decimalFromRaw coerces a JSON number or numeric string to a decimal. Null,
// booleans, objects and non-numeric strings become zero.
func decimalFromRaw(raw json.RawMessage) decimal.Decimal {
	trimmed := bytes.TrimSpace(raw)
	if !present(trimmed) {
		return decimal.Zero
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return decimal.Zero
		}
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero
		}
		return d
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

type mealSetWire struct {
	ID           string          `json:"id"`
	SetID        string          `json:"setId"`
	UnderscoreID string          `json:"_id"`
	VendorID     string          `json:"vendorId"`
	Name         string          `json:"name"`
	SetName      string          `json:"setName"`
	Price        json.RawMessage `json:"price"`
}

type subscriptionWire struct {
	SubscriptionID string                `json:"subscriptionId"`
	ID             string                `json:"id"`
	UnderscoreID   string                `json:"_id"`
	CustomerID     string                `json:"customerId"`
	PackageID      string                `json:"packageId"`
	Status         string                `json:"status"`
	StartDate      string                `json:"startDate"`
	EndDate        string                `json:"endDate"`
	PricePerSet    json.RawMessage       `json:"pricePerSet"`
	Schedule       domain.WeeklySchedule `json:"schedule"`
	WeeklySchedule domain.WeeklySchedule `json:"weeklySchedule"`
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid %s %q", field, value)
}

func (w subscriptionWire) toDomain() (*domain.Subscription, error) {
	start, err := parseDate("startDate", w.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("endDate", w.EndDate)
	if err != nil {
		return nil, err
	}

	schedule := w.Schedule
	if len(schedule) == 0 {
		schedule = w.WeeklySchedule
	}

	return &domain.Subscription{
		ID:          firstNonEmpty(w.SubscriptionID, w.ID, w.UnderscoreID),
		CustomerID:  w.CustomerID,
		PackageID:   w.PackageID,
		Status:      w.Status,
		StartDate:   start,
		EndDate:     end,
		PricePerSet: decimalFromRaw(w.PricePerSet),
		Schedule:    schedule,
	}, nil
}
