package event

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for business-rule validation failures. The messages are
// operator-facing: they are written verbatim into dead-letter rows, so they
// keep the wording producers and operators already know.
var (
	// ErrPurchaseAmountRequired is returned when a purchase has no usable amount.
	ErrPurchaseAmountRequired = errors.New("Purchase events must have an amount")

	// ErrPurchaseAmountNotPositive is returned when the amount is not a positive number.
	ErrPurchaseAmountNotPositive = errors.New("Purchase amount must be positive")

	// ErrSignupUserIDRequired is returned when a user_signup has no user_id.
	ErrSignupUserIDRequired = errors.New("User signup events must have a user_id")

	// ErrTimestampInFuture is returned when the event timestamp is ahead of now.
	ErrTimestampInFuture = errors.New("Event timestamp cannot be in the future")
)

// Validate applies per-event-type business rules. It is pure: no I/O, no
// clock reads - the caller supplies now so the future-timestamp rule is
// deterministic under test.
//
// Rules:
//   - purchase: properties.amount must be present and a positive number.
//     An empty amount (0, null, false, "", an empty composite) counts as
//     absent, matching producer expectations.
//   - user_signup: user_id must be non-empty.
//   - any type: timestamp must not be in the future.
//
// Other event types pass with no additional rules.
func Validate(e *Event, now time.Time) error {
	switch e.EventType {
	case TypePurchase:
		raw, present := e.Properties["amount"]
		if !present || emptyValue(raw) {
			return ErrPurchaseAmountRequired
		}

		amount, isNumber := e.Amount()
		if !isNumber || amount <= 0 {
			return ErrPurchaseAmountNotPositive
		}

	case TypeUserSignup:
		if e.UserID == "" {
			return ErrSignupUserIDRequired
		}

	case TypePageView, TypeCustom:
		// No type-specific rules.
	}

	if e.Timestamp.After(now.UTC()) {
		return fmt.Errorf("%w: %s is after %s",
			ErrTimestampInFuture,
			e.Timestamp.Format(wireTimestampLayout),
			now.UTC().Format(wireTimestampLayout))
	}

	return nil
}

// emptyValue reports whether a decoded JSON value is empty in the producer
// contract's sense: null, false, zero, the empty string, or an empty
// composite. An amount carrying such a value counts as missing, not invalid.
func emptyValue(v any) bool {
	switch value := v.(type) {
	case nil:
		return true
	case bool:
		return !value
	case float64:
		return value == 0
	case string:
		return value == ""
	case []any:
		return len(value) == 0
	case map[string]any:
		return len(value) == 0
	}

	return false
}

// IsValidationError reports whether err is a business-rule violation.
// Validation failures are non-retriable and route straight to the
// dead-letter store.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrPurchaseAmountRequired) ||
		errors.Is(err, ErrPurchaseAmountNotPositive) ||
		errors.Is(err, ErrSignupUserIDRequired) ||
		errors.Is(err, ErrTimestampInFuture)
}
