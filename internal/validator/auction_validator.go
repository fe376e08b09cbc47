// internal/validator/auction_validator.go
package validator

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const maxRoundDurationSeconds = 24 * 60 * 60

// ValidateItemName requires a printable, non-empty item name.
func ValidateItemName(name string) error {
	if err := ValidateString(name, 1, 100); err != nil {
		return fmt.Errorf("name %s", err)
	}
	return nil
}

// ValidateStartPrice validates the opening price of an item.
func ValidateStartPrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("start_price must be greater than 0, provided: %s", price.String())
	}
	return nil
}

// ValidateMinIncrement validates the minimum step between two accepted bids.
func ValidateMinIncrement(increment decimal.Decimal) error {
	if !increment.IsPositive() {
		return fmt.Errorf("min_increment must be greater than 0, provided: %s", increment.String())
	}
	return nil
}

// ValidateRoundDuration validates the length of a round in seconds.
func ValidateRoundDuration(seconds int) error {
	if seconds <= 0 || seconds > maxRoundDurationSeconds {
		return fmt.Errorf("duration_seconds must be between 1 and %d, provided: %d", maxRoundDurationSeconds, seconds)
	}
	return nil
}
