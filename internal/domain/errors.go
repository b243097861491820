package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a ValidationError.
type ErrorKind string

const (
	ErrorKindMalformedSchedule       ErrorKind = "MALFORMED_SCHEDULE"
	ErrorKindNoMealsSelected         ErrorKind = "NO_MEALS_SELECTED"
	ErrorKindIncompleteMealSelection ErrorKind = "INCOMPLETE_MEAL_SELECTION"
	ErrorKindInvalidQuantity         ErrorKind = "INVALID_QUANTITY"
	ErrorKindMissingReason           ErrorKind = "MISSING_REASON"
)

// ValidationError means the caller must correct the input before resubmitting.
type ValidationError struct {
	Kind    ErrorKind
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(kind ErrorKind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

var (
	// ErrNetwork wraps transport failures talking to the subscription backend. Retryable by the user.
	ErrNetwork = errors.New("subscription backend unreachable")
	// ErrServerFailure is a 5xx from the backend. Retryable by the user.
	ErrServerFailure = errors.New("subscription backend failed")
	// ErrSessionExpired is terminal for the session; the caller must re-authenticate.
	ErrSessionExpired = errors.New("session expired")
	// ErrUnexpectedServerState covers response shapes the service does not understand.
	ErrUnexpectedServerState = errors.New("unexpected response from subscription backend")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	// ErrBackendRejected is a non-auth 4xx from the backend.
	ErrBackendRejected = errors.New("subscription backend rejected the request")
	// ErrEditInFlight rejects a second edit request while one is still running.
	ErrEditInFlight = errors.New("an edit for this subscription is already being processed")
)

// IsRetryable reports whether the user may simply resubmit after err.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrServerFailure)
}

// ValidateSchedule checks the meal rules for a proposed schedule.
func ValidateSchedule(s WeeklySchedule) error {
	if !s.WellFormed() {
		return newValidationError(ErrorKindMalformedSchedule, "schedule must contain each day of the week exactly once, Monday to Sunday")
	}
	if !s.HasMeals() {
		return newValidationError(ErrorKindNoMealsSelected, "select at least one meal on at least one day")
	}
	for _, entry := range s {
		if !entry.Enabled {
			continue
		}
		for _, meal := range entry.Meals {
			if strings.TrimSpace(meal.SetID) == "" {
				return newValidationError(ErrorKindIncompleteMealSelection, "choose a meal set for every meal on %s", strings.ToLower(entry.DayOfWeek.String()))
			}
			if meal.Quantity < 1 {
				return newValidationError(ErrorKindInvalidQuantity, "quantity for meal set %s on %s must be at least 1", meal.SetID, strings.ToLower(entry.DayOfWeek.String()))
			}
		}
	}
	return nil
}

// ValidateEdit is the gate run before any price calculation or apply request.
func ValidateEdit(s WeeklySchedule, reason string) error {
	if err := ValidateSchedule(s); err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		return newValidationError(ErrorKindMissingReason, "a reason for the schedule change is required")
	}
	return nil
}
