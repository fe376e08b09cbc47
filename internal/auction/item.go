package auction

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item describes one lot of the auction. Items are loaded once at startup and
// consumed exactly once by the engine.
type Item struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	StartPrice      decimal.Decimal `json:"start_price"`
	MinIncrement    decimal.Decimal `json:"min_increment"`
	DurationSeconds int             `json:"duration_seconds"`
}

// Duration returns the length of the bidding round for the item.
func (i Item) Duration() time.Duration {
	return time.Duration(i.DurationSeconds) * time.Second
}

// DefaultCatalog returns the items auctioned when no catalog file is configured.
func DefaultCatalog() []Item {
	return []Item{
		{
			Name:            "Laptop",
			Description:     `Ultrabook 14" con SSD 1TB`,
			StartPrice:      decimal.RequireFromString("500.00"),
			MinIncrement:    decimal.RequireFromString("10.00"),
			DurationSeconds: 120,
		},
		{
			Name:            "Cuffie",
			Description:     "Over-ear noise cancelling",
			StartPrice:      decimal.RequireFromString("70.00"),
			MinIncrement:    decimal.RequireFromString("5.00"),
			DurationSeconds: 90,
		},
		{
			Name:            "Smartwatch",
			Description:     "Resistente all'acqua, GPS integrato",
			StartPrice:      decimal.RequireFromString("120.00"),
			MinIncrement:    decimal.RequireFromString("8.00"),
			DurationSeconds: 90,
		},
	}
}
