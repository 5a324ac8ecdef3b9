package fetcher

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"price-move-alerts/internal/market"
)

var (
	syntheticSurge = decimal.RequireFromString("1.2")
	syntheticDrop  = decimal.RequireFromString("0.85")
)

var syntheticBase = map[string]decimal.Decimal{
	"BTCUSDT": decimal.NewFromInt(60000),
	"ETHUSDT": decimal.NewFromInt(3000),
	"SOLUSDT": decimal.NewFromInt(150),
}

// Synthetic serves alternating surge/drop prices (x1.2, x0.85 of a base price)
// so every threshold fires without touching the exchange.
type Synthetic struct {
	mu    sync.Mutex
	pairs []string
	ticks map[string]int
	now   func() time.Time
}

// NewSynthetic returns a synthetic source for pairs.
func NewSynthetic(pairs []string) *Synthetic {
	sorted := append([]string(nil), pairs...)
	sort.Strings(sorted)
	return &Synthetic{pairs: sorted, ticks: make(map[string]int), now: time.Now}
}

// FetchPrices implements PriceSource.
func (s *Synthetic) FetchPrices(_ context.Context, pairs []string) (map[string]market.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := s.now().UTC()
	out := make(map[string]market.Sample, len(pairs))
	for _, pair := range pairs {
		s.ticks[pair]++
		factor := syntheticDrop
		if s.ticks[pair]%2 == 0 {
			factor = syntheticSurge
		}
		out[pair] = market.NewSample(pair, stamp, basePrice(pair).Mul(factor))
	}
	return out, nil
}

// ListSymbols implements SymbolLister.
func (s *Synthetic) ListSymbols(context.Context) ([]string, error) {
	return append([]string(nil), s.pairs...), nil
}

func basePrice(pair string) decimal.Decimal {
	if p, ok := syntheticBase[pair]; ok {
		return p
	}
	return decimal.NewFromInt(100)
}

var (
	_ PriceSource  = (*Synthetic)(nil)
	_ SymbolLister = (*Synthetic)(nil)
)
