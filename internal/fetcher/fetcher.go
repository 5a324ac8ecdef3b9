package fetcher

import (
	"context"

	"price-move-alerts/internal/market"
)

// PriceSource returns the latest price of each requested pair. Pairs the
// source has no price for are absent from the result; a whole-batch failure
// is reported as an error.
type PriceSource interface {
	FetchPrices(ctx context.Context, pairs []string) (map[string]market.Sample, error)
}

// SymbolLister enumerates the symbols selection indices refer to.
type SymbolLister interface {
	ListSymbols(ctx context.Context) ([]string, error)
}
