package engine

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/angas/spotprice/cache"
	"github.com/angas/spotprice/convert"
	"github.com/angas/spotprice/hours"
	"github.com/angas/spotprice/tariff"
	"github.com/angas/spotprice/types"
)

// UnknownRank is returned when the current hour is missing from today's prices.
const UnknownRank = 24

type Options struct {
	UpdateInterval time.Duration
	// Cached prices younger than this are used without asking the source.
	CacheTimeout time.Duration
	// Returned by InstantPrice for hours without a usable price.
	DefaultPrice float64
	// Working currency, prices from a source in another currency are
	// multiplied by the exchange rate.
	Currency     string
	FutureOffset time.Duration
}

type Result struct {
	Price       float64 // spot price plus tariff
	Raw         float64
	Add         float64
	Slot        int // rank of the current hour among today's prices including tariff
	RawSlot     int
	FuturePrice float64
	Stale       bool // prices come from an outdated cache
}

func (r Result) Map() map[string]any {
	return map[string]any{
		"price":        convert.TwoDecimals(r.Price),
		"raw":          convert.TwoDecimals(r.Raw),
		"add":          convert.TwoDecimals(r.Add),
		"slot":         r.Slot,
		"raw_slot":     r.RawSlot,
		"future_price": convert.TwoDecimals(r.FuturePrice),
		"stale":        r.Stale,
	}
}

// PriceEngine owns one price series. It is not safe for concurrent use,
// one publish loop drives it.
type PriceEngine struct {
	logger *slog.Logger
	source types.PriceSource
	cache  *cache.TimeSeriesCache
	tariff tariff.TransferTariff
	xrate  *ExchangeRate
	opts   Options
	now    func() time.Time

	// Called with every successfully fetched series, in the source currency.
	OnFetched func(ctx context.Context, s types.PriceSeries)

	lastUpdated time.Time
	prices      types.PriceSeries
	stale       bool
}

func New(
	logger *slog.Logger,
	source types.PriceSource,
	c *cache.TimeSeriesCache,
	t tariff.TransferTariff,
	xrate *ExchangeRate,
	opts Options) *PriceEngine {

	return &PriceEngine{
		logger: logger,
		source: source,
		cache:  c,
		tariff: t,
		xrate:  xrate,
		opts:   opts,
		now:    time.Now,
	}
}

func (e *PriceEngine) LastUpdated() time.Time {
	return e.lastUpdated
}

// Update refreshes the prices when the update interval has passed and
// computes the result for the current hour. It returns false when no
// prices could be obtained at all.
func (e *PriceEngine) Update(ctx context.Context) (Result, bool) {
	now := e.now()
	if e.prices == nil || e.lastUpdated.IsZero() || now.Sub(e.lastUpdated) >= e.opts.UpdateInterval {
		prices, current, ok := e.load(ctx, now)
		if !ok {
			return Result{}, false
		}
		e.prices = prices
		e.stale = !current
		if current {
			e.lastUpdated = now
		}
	}

	return e.result(now), true
}

// load returns the series and whether it is current, i.e. fetched or read
// from a fresh cache.
func (e *PriceEngine) load(ctx context.Context, now time.Time) (types.PriceSeries, bool, bool) {
	if age := e.cache.Age(); age < e.opts.CacheTimeout {
		if s, ok := e.cache.Read(); ok {
			e.logger.Debug("using cached prices", slog.Duration("age", age))
			return s, true, true
		}
	}

	e.logger.Info("fetching prices", slog.String("source", e.source.Name()))
	from := hours.StartOfDay(now)
	s, err := e.source.Fetch(ctx, types.Window{From: from, To: from.AddDate(0, 0, 2)})
	if err == nil && len(s) > 0 {
		s = types.NewPriceSeries(s).In(hours.Location())
		if err := e.cache.Write(s); err != nil {
			e.logger.Warn("failed to write price cache", slog.Any("error", err))
		}
		if e.OnFetched != nil {
			e.OnFetched(ctx, s)
		}
		return s, true, true
	}
	if err != nil {
		e.logger.Error("failed to fetch prices", slog.String("source", e.source.Name()), slog.Any("error", err))
	} else {
		e.logger.Error("source returned no prices", slog.String("source", e.source.Name()))
	}

	if s, ok := e.cache.Read(); ok {
		e.logger.Warn("falling back to outdated cached prices", slog.Duration("age", e.cache.Age()))
		return s, false, true
	}
	return nil, false, false
}

func (e *PriceEngine) rate() float64 {
	if e.opts.Currency == "" || e.source.Currency() == e.opts.Currency {
		return 1
	}
	return e.xrate.Get()
}

// series returns the held prices in the working currency.
func (e *PriceEngine) series() types.PriceSeries {
	return e.prices.Scale(e.rate())
}

func (e *PriceEngine) result(now time.Time) Result {
	raw := e.InstantPrice(now)
	add := e.tariff.Get(now)
	future := now.Add(e.opts.FutureOffset)
	return Result{
		Price:       raw + add,
		Raw:         raw,
		Add:         add,
		Slot:        e.Ranking(now, true),
		RawSlot:     e.Ranking(now, false),
		FuturePrice: e.InstantPrice(future) + e.tariff.Get(future),
		Stale:       e.stale,
	}
}

// InstantPrice is the spot price in the working currency for the hour of t,
// or the default price when that hour has no usable price.
func (e *PriceEngine) InstantPrice(t time.Time) float64 {
	return e.series().At(hours.FromTime(t)).ValueOrDefault(e.opts.DefaultPrice)
}

func (e *PriceEngine) CurrentPrice() float64 {
	return e.InstantPrice(e.now())
}

func (e *PriceEngine) CurrentRanking(withTariff bool) int {
	return e.Ranking(e.now(), withTariff)
}

// Ranking returns the 0-based position of the hour of t when the hours of
// that day are sorted by ascending price. Equal prices keep time order.
func (e *PriceEngine) Ranking(t time.Time, withTariff bool) int {
	dh := hours.FromTime(t)
	day := e.series().Day(dh.Date)
	if withTariff {
		for i := range day {
			day[i].Price += e.tariff.Get(day[i].Time)
		}
	}
	slices.SortStableFunc(day, func(a, b types.PricePoint) int {
		switch {
		case a.Price < b.Price:
			return -1
		case a.Price > b.Price:
			return 1
		}
		return 0
	})
	for i, p := range day {
		if hours.FromTime(p.Time) == dh {
			return i
		}
	}
	return UnknownRank
}
