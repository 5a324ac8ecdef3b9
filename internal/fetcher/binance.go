package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-move-alerts/internal/faults"
	"price-move-alerts/internal/market"
)

const perpetualContract = "PERPETUAL"

// BinanceOptions parameterise the USD-M futures ticker source.
type BinanceOptions struct {
	BaseURL       string
	APIKey        string
	SecretKey     string
	Timeout       time.Duration
	RetryAttempts int
	RetryMin      time.Duration
	RetryMax      time.Duration
}

// Binance fetches ticker prices from Binance USD-M futures.
type Binance struct {
	opts   BinanceOptions
	client *futures.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewBinance constructs a Binance price source.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) *Binance {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}
	if opts.RetryMin <= 0 {
		opts.RetryMin = 200 * time.Millisecond
	}
	if opts.RetryMax < opts.RetryMin {
		opts.RetryMax = 2 * time.Second
	}

	client := futures.NewClient(opts.APIKey, opts.SecretKey)
	if base := strings.TrimRight(opts.BaseURL, "/"); base != "" {
		client.BaseURL = base
	}
	client.HTTPClient = &http.Client{Timeout: opts.Timeout}

	return &Binance{
		opts:   opts,
		client: client,
		logger: logger.With().Str("component", "binance_fetcher").Logger(),
		now:    time.Now,
	}
}

// FetchPrices requests every ticker price in one call and keeps the wanted pairs.
func (b *Binance) FetchPrices(ctx context.Context, pairs []string) (map[string]market.Sample, error) {
	if len(pairs) == 0 {
		return map[string]market.Sample{}, nil
	}

	var prices []*futures.SymbolPrice
	err := b.retry(ctx, "ticker/price", func() error {
		var callErr error
		prices, callErr = b.client.NewListPricesService().Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, &faults.SourceFault{Err: err}
	}
	stamp := b.now().UTC()

	wanted := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		wanted[p] = struct{}{}
	}

	out := make(map[string]market.Sample, len(pairs))
	for _, p := range prices {
		if p == nil {
			continue
		}
		if _, ok := wanted[p.Symbol]; !ok {
			continue
		}
		price, parseErr := decimal.NewFromString(p.Price)
		if parseErr != nil {
			b.logger.Warn().Str("pair", p.Symbol).Str("price", p.Price).Err(parseErr).Msg("unparseable ticker price")
			continue
		}
		out[p.Symbol] = market.NewSample(p.Symbol, stamp, price)
	}
	return out, nil
}

// ListSymbols returns the sorted perpetual contract symbols.
func (b *Binance) ListSymbols(ctx context.Context) ([]string, error) {
	var info *futures.ExchangeInfo
	err := b.retry(ctx, "exchangeInfo", func() error {
		var callErr error
		info, callErr = b.client.NewExchangeInfoService().Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetch futures exchange info: %w", err)
	}
	if info == nil {
		return nil, errors.New("empty exchange info response")
	}

	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if string(s.ContractType) != perpetualContract {
			continue
		}
		symbols = append(symbols, s.Symbol)
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (b *Binance) retry(ctx context.Context, op string, call func() error) error {
	delays := &backoff.Backoff{Min: b.opts.RetryMin, Max: b.opts.RetryMax, Factor: 2, Jitter: true}

	var err error
	for attempt := 1; ; attempt++ {
		if err = call(); err == nil {
			return nil
		}
		if attempt >= b.opts.RetryAttempts || ctx.Err() != nil {
			return err
		}

		wait := delays.Duration()
		b.logger.Debug().Err(err).Str("op", op).Int("attempt", attempt).Dur("retry_in", wait).Msg("binance request failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

var (
	_ PriceSource  = (*Binance)(nil)
	_ SymbolLister = (*Binance)(nil)
)
