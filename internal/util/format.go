package util

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// FormatMoney renders an amount for humans, e.g. 1234.5 -> "1,234.50 €".
func FormatMoney(amount decimal.Decimal) string {
	return humanize.FormatFloat("#,###.##", amount.InexactFloat64()) + " €"
}

// FormatPrice renders an amount for the wire with exactly two decimals, e.g. "510.00".
func FormatPrice(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// FormatDeadline describes when a round closes relative to now, e.g. "2 minutes from now".
func FormatDeadline(deadline time.Time) string {
	return humanize.Time(deadline)
}

// TruncateContent cuts content to maxLength bytes, marking the cut with "...".
func TruncateContent(title string, maxLength int) string {
	if len(title) <= maxLength {
		return title
	}
	return title[:maxLength] + "..."
}
