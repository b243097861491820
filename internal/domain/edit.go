/**
 * @description
 * This file defines the apply-edit state machine. The backend decides the edit
 * status; this service maps every status it knows to exactly one follow-up action
 * and treats anything else conservatively as "not applied".
 */
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EditStatus is the backend's verdict on an apply-edit request.
type EditStatus string

const (
	EditStatusPendingPayment EditStatus = "PENDING_PAYMENT"
	EditStatusCompleted      EditStatus = "COMPLETED"
	EditStatusProcessed      EditStatus = "PROCESSED"
	EditStatusRefundApproved EditStatus = "REFUND_APPROVED"
	// EditStatusUnknown stands for any status this service does not recognize.
	EditStatusUnknown EditStatus = "UNKNOWN"
)

// KnownEditStatuses lists every status the backend is expected to return.
var KnownEditStatuses = []EditStatus{
	EditStatusPendingPayment,
	EditStatusCompleted,
	EditStatusProcessed,
	EditStatusRefundApproved,
}

// ParseEditStatus matches raw case-insensitively. Unrecognized values return
// EditStatusUnknown and false.
func ParseEditStatus(raw string) (EditStatus, bool) {
	normalized := EditStatus(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range KnownEditStatuses {
		if normalized == known {
			return known, true
		}
	}
	return EditStatusUnknown, false
}

// EditAction tells the caller what to do next.
type EditAction string

const (
	// ActionCollectPayment: start the payment flow; the schedule is not applied yet.
	ActionCollectPayment EditAction = "COLLECT_PAYMENT"
	// ActionRefresh: the schedule is applied server-side; reload the subscription.
	ActionRefresh EditAction = "REFRESH"
	// ActionReturnToList: go back to the subscription list without assuming success.
	ActionReturnToList EditAction = "RETURN_TO_LIST"
)

const (
	MessageEditPendingPayment = "Complete the additional payment to apply your new schedule."
	MessageEditApplied        = "Your schedule has been updated."
	MessageEditRefundApproved = "Your schedule has been updated. Your refund will be processed within 5-7 business days."
	MessageEditUnrecognized   = "Your request was received. Check your subscription shortly to confirm the change."
)

// ActionFor maps a status to its follow-up action, whether the schedule is
// already applied, and the message shown to the user.
func ActionFor(status EditStatus) (action EditAction, applied bool, message string) {
	switch status {
	case EditStatusPendingPayment:
		return ActionCollectPayment, false, MessageEditPendingPayment
	case EditStatusCompleted, EditStatusProcessed:
		return ActionRefresh, true, MessageEditApplied
	case EditStatusRefundApproved:
		return ActionRefresh, true, MessageEditRefundApproved
	case EditStatusUnknown:
		return ActionReturnToList, false, MessageEditUnrecognized
	}
	return ActionReturnToList, false, MessageEditUnrecognized
}

// ApplyEditRequest is the input to an apply-edit call.
type ApplyEditRequest struct {
	SubscriptionID    string          `json:"subscriptionId"`
	NewSchedule       WeeklySchedule  `json:"newSchedule"`
	EditReason        string          `json:"editReason"`
	AdditionalPayment decimal.Decimal `json:"additionalPayment"`
	RefundAmount      decimal.Decimal `json:"refundAmount"`
}

// EditOutcome is the result of an apply-edit call after status mapping.
type EditOutcome struct {
	Status       EditStatus    `json:"editStatus"`
	RawStatus    string        `json:"rawStatus,omitempty"`
	Action       EditAction    `json:"action"`
	Applied      bool          `json:"applied"`
	Message      string        `json:"message"`
	PaymentURL   string        `json:"paymentUrl,omitempty"`
	PaymentID    string        `json:"paymentId,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// NewEditOutcome builds an outcome from the backend's raw status string.
func NewEditOutcome(rawStatus string) EditOutcome {
	status, _ := ParseEditStatus(rawStatus)
	action, applied, message := ActionFor(status)
	return EditOutcome{
		Status:    status,
		RawStatus: rawStatus,
		Action:    action,
		Applied:   applied,
		Message:   message,
	}
}

// EditEvent is published after the backend answers an apply-edit request.
type EditEvent struct {
	EventID           string          `json:"event_id"`
	SubscriptionID    string          `json:"subscription_id"`
	UserID            string          `json:"user_id"`
	EditStatus        EditStatus      `json:"edit_status"`
	RawStatus         string          `json:"raw_status,omitempty"`
	Applied           bool            `json:"applied"`
	AdditionalPayment decimal.Decimal `json:"additional_payment"`
	RefundAmount      decimal.Decimal `json:"refund_amount"`
	Timestamp         time.Time       `json:"timestamp"`
}

// EditAuditRecord is one stored apply-edit attempt. It records the outcome only;
// the authoritative schedule stays in the backend.
type EditAuditRecord struct {
	ID                string          `json:"id"`
	SubscriptionID    string          `json:"subscription_id"`
	UserID            string          `json:"user_id"`
	EditReason        string          `json:"edit_reason"`
	AdditionalPayment decimal.Decimal `json:"additional_payment"`
	RefundAmount      decimal.Decimal `json:"refund_amount"`
	EditStatus        EditStatus      `json:"edit_status"`
	RawStatus         string          `json:"raw_status"`
	Applied           bool            `json:"applied"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Session carries the authenticated caller. It is passed explicitly to every
// call that reaches the backend.
type Session struct {
	UserID string
	Token  string
}
