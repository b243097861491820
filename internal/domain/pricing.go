package domain

import "github.com/shopspring/decimal"

// PriceStatus classifies a price difference.
type PriceStatus string

const (
	// PriceStatusPendingPayment means the customer pays before the new schedule takes effect.
	PriceStatusPendingPayment PriceStatus = "PENDING_PAYMENT"
	// PriceStatusRefundCase means the schedule applies immediately and a refund follows.
	PriceStatusRefundCase PriceStatus = "REFUND_CASE"
	// PriceStatusNoChange means the schedule applies immediately with no money movement.
	PriceStatusNoChange PriceStatus = "NO_CHANGE"
)

const (
	MessageNoChanges     = "No changes to the schedule."
	MessagePaymentDue    = "An additional payment is required before the new schedule takes effect."
	MessageRefundDue     = "The new schedule takes effect immediately. Your refund will be processed within 5-7 business days."
	MessageNoPriceChange = "The new schedule takes effect immediately with no change in price."
)

// PriceCalculationResult is the prorated cost comparison between the current
// and proposed schedules over the subscription's remaining days.
type PriceCalculationResult struct {
	OldCost           decimal.Decimal `json:"oldCost"`
	NewCost           decimal.Decimal `json:"newCost"`
	AdditionalPayment decimal.Decimal `json:"additionalPayment"`
	RefundAmount      decimal.Decimal `json:"refundAmount"`
	Status            PriceStatus     `json:"status"`
	RemainingDays     int             `json:"remainingDays"`
	NoChanges         bool            `json:"noChanges"`
	Estimated         bool            `json:"estimated,omitempty"`
	Message           string          `json:"message"`
}

// NoChangeResult is the zero-valued result returned when the proposed schedule
// equals the current one.
func NoChangeResult() PriceCalculationResult {
	return PriceCalculationResult{
		OldCost:           decimal.Zero,
		NewCost:           decimal.Zero,
		AdditionalPayment: decimal.Zero,
		RefundAmount:      decimal.Zero,
		Status:            PriceStatusNoChange,
		NoChanges:         true,
		Message:           MessageNoChanges,
	}
}

// Classify clamps the payment fields and sets Status and Message. A positive
// additional payment always wins: the refund is then treated as zero, even if
// the backend sent both.
func Classify(r PriceCalculationResult) PriceCalculationResult {
	if r.AdditionalPayment.IsNegative() {
		r.AdditionalPayment = decimal.Zero
	}
	if r.RefundAmount.IsNegative() {
		r.RefundAmount = decimal.Zero
	}

	switch {
	case r.AdditionalPayment.IsPositive():
		r.RefundAmount = decimal.Zero
		r.Status = PriceStatusPendingPayment
		r.Message = MessagePaymentDue
	case r.RefundAmount.IsPositive():
		r.Status = PriceStatusRefundCase
		r.Message = MessageRefundDue
	default:
		r.Status = PriceStatusNoChange
		if r.NoChanges {
			r.Message = MessageNoChanges
		} else {
			r.Message = MessageNoPriceChange
		}
	}
	return r
}

// DifferenceFromCosts derives payment and refund amounts from two costs.
func DifferenceFromCosts(oldCost, newCost decimal.Decimal) PriceCalculationResult {
	r := PriceCalculationResult{
		OldCost:           oldCost,
		NewCost:           newCost,
		AdditionalPayment: decimal.Zero,
		RefundAmount:      decimal.Zero,
	}
	diff := newCost.Sub(oldCost)
	if diff.IsPositive() {
		r.AdditionalPayment = diff
	} else if diff.IsNegative() {
		r.RefundAmount = diff.Neg()
	}
	return Classify(r)
}
