package auction

import (
	"errors"
	"fmt"

	"github.com/katatrina/auction-house/internal/validator"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// catalogEntry mirrors one entry of the catalog file. Prices are read as
// strings so that "10.00" and 10.0 both decode without float rounding.
type catalogEntry struct {
	Name            string `mapstructure:"name"`
	Description     string `mapstructure:"description"`
	StartPrice      string `mapstructure:"start_price"`
	MinIncrement    string `mapstructure:"min_increment"`
	DurationSeconds int    `mapstructure:"duration_seconds"`
}

// LoadCatalog reads the items of a catalog file (YAML, JSON or TOML) in the
// order they appear. An empty path yields DefaultCatalog.
func LoadCatalog(path string) ([]Item, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var entries []catalogEntry
	if err := v.UnmarshalKey("items", &entries); err != nil {
		return nil, fmt.Errorf("failed to decode catalog items: %w", err)
	}

	return buildCatalog(entries)
}

func buildCatalog(entries []catalogEntry) ([]Item, error) {
	if len(entries) == 0 {
		return nil, errors.New("catalog contains no items")
	}

	items := make([]Item, 0, len(entries))
	for i, entry := range entries {
		item, err := entry.toItem()
		if err != nil {
			return nil, fmt.Errorf("catalog item #%d: %w", i+1, err)
		}
		items = append(items, item)
	}

	return items, nil
}

func (e catalogEntry) toItem() (Item, error) {
	if err := validator.ValidateItemName(e.Name); err != nil {
		return Item{}, err
	}

	startPrice, err := decimal.NewFromString(e.StartPrice)
	if err != nil {
		return Item{}, fmt.Errorf("start_price %q: %w", e.StartPrice, err)
	}
	if err = validator.ValidateStartPrice(startPrice); err != nil {
		return Item{}, err
	}

	minIncrement, err := decimal.NewFromString(e.MinIncrement)
	if err != nil {
		return Item{}, fmt.Errorf("min_increment %q: %w", e.MinIncrement, err)
	}
	if err = validator.ValidateMinIncrement(minIncrement); err != nil {
		return Item{}, err
	}

	if err = validator.ValidateRoundDuration(e.DurationSeconds); err != nil {
		return Item{}, err
	}

	return Item{
		Name:            e.Name,
		Description:     e.Description,
		StartPrice:      startPrice,
		MinIncrement:    minIncrement,
		DurationSeconds: e.DurationSeconds,
	}, nil
}
