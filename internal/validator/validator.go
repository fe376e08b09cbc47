package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	isValidNickname = regexp.MustCompile(`^[A-Za-z0-9_]+$`).MatchString
	lineBreaks      = regexp.MustCompile(`[\r\n]+`)
)

func ValidateString(value string, minLength int, maxLength int) error {
	n := len(value)
	if n < minLength || n > maxLength {
		return fmt.Errorf("must contain from %d to %d characters", minLength, maxLength)
	}

	return nil
}

// SanitizeNickname trims the raw nickname and checks it against the
// 3-16 alphanumeric/underscore rule.
func SanitizeNickname(raw string) (string, error) {
	nickname := strings.TrimSpace(raw)
	if nickname == "" {
		return "", fmt.Errorf("nickname is empty")
	}

	if err := ValidateString(nickname, 3, 16); err != nil {
		return "", err
	}

	if !isValidNickname(nickname) {
		return "", fmt.Errorf("must contain only letters, digits or underscore")
	}

	return nickname, nil
}

// SanitizeMessage collapses line breaks into spaces and trims the result.
// An empty return value means the message must be rejected.
func SanitizeMessage(message string) string {
	return strings.TrimSpace(lineBreaks.ReplaceAllString(message, " "))
}

// ParseAmount parses a bid amount typed by a participant. Both "." and ","
// are accepted as decimal separator.
func ParseAmount(raw string) (decimal.Decimal, error) {
	value := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	if value == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}

	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not a number", raw)
	}

	return amount, ValidateAmount(amount)
}

// ValidateAmount requires a strictly positive amount.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be greater than 0, provided: %s", amount.String())
	}
	return nil
}
