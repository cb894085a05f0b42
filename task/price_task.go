package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/angas/spotprice/cache"
	"github.com/angas/spotprice/config"
	"github.com/angas/spotprice/database"
	"github.com/angas/spotprice/elprisetjustnu"
	"github.com/angas/spotprice/engine"
	"github.com/angas/spotprice/entsoe"
	"github.com/angas/spotprice/hours"
	"github.com/angas/spotprice/nordpool"
	"github.com/angas/spotprice/publish"
	"github.com/angas/spotprice/tariff"
	"github.com/angas/spotprice/tibber"
	"github.com/angas/spotprice/types"
)

// PriceTask publishes the price result of one engine.
type PriceTask struct {
	Engine *engine.PriceEngine
}

func (p PriceTask) Execute(ctx context.Context) (publish.Message, error) {
	r, ok := p.Engine.Update(ctx)
	if !ok {
		return nil, nil
	}
	return publish.Message(r.Map()), nil
}

func newPriceSource(s config.AppConfigSource) (types.PriceSource, error) {
	switch Kind(s.Type) {
	case KindElprisetjustnu:
		return elprisetjustnu.New(s.Area, s.BaseUrl), nil
	case KindNordpool:
		return nordpool.New(s.Area, s.GetCurrency(), s.BaseUrl), nil
	case KindEntsoe:
		return entsoe.New(s.Area, s.GetApiKey(), s.BaseUrl)
	case KindTibber:
		return tibber.New(s.GetApiKey(), s.HomeId, s.GetCurrency(), s.BaseUrl)
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownKind, s.Type)
}

// NewPriceEngine wires a price source with its cache, tariff and exchange
// rate. Fetched prices are stored in env.DB when set.
func NewPriceEngine(s config.AppConfigSource, env Env) (*engine.PriceEngine, error) {
	source, err := newPriceSource(s)
	if errors.Is(err, entsoe.ErrMissingToken) || errors.Is(err, tibber.ErrMissingToken) {
		return nil, fmt.Errorf("source %s: %w, %v", s.Name, ErrSkipped, err)
	}
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", s.Name, err)
	}

	sched, err := s.GetSchedule()
	if err != nil {
		return nil, err
	}
	t, err := tariff.New(sched)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", s.Name, err)
	}

	logger := slog.Default().With("module", "engine", slog.String("source", s.Name))

	xrate := engine.NewExchangeRate(s.GetExchangeRate())
	if sub := s.Subscription; sub != nil && sub.Topic != "" && env.Subscriber != nil {
		key := sub.Key
		if key == "" {
			key = s.GetCurrency()
		}
		err := env.Subscriber.Subscribe(sub.Topic, func(payload []byte) {
			if err := xrate.SetFromJSON(payload, key); err != nil {
				logger.Warn("ignoring exchange rate", slog.String("topic", sub.Topic), slog.Any("error", err))
				return
			}
			logger.Debug("exchange rate updated", slog.Float64("rate", xrate.Get()))
		})
		if err != nil {
			return nil, fmt.Errorf("source %s: subscribing to %s: %w", s.Name, sub.Topic, err)
		}
	}

	e := engine.New(logger, source, cache.NewTimeSeriesCache(s.GetCache()), t, xrate, engine.Options{
		UpdateInterval: s.GetUpdatePeriod(),
		CacheTimeout:   s.GetCachePeriod(),
		DefaultPrice:   s.GetDefaultPrice(),
		Currency:       s.GetCurrency(),
		FutureOffset:   s.GetFutureOffset(),
	})
	if env.DB != nil {
		e.OnFetched = savePrices(logger, env.DB, s.Name, source.Currency())
	}
	return e, nil
}

func newPriceAction(s config.AppConfigSource, env Env) (publish.Action, error) {
	e, err := NewPriceEngine(s, env)
	if err != nil {
		return nil, err
	}
	return PriceTask{Engine: e}, nil
}

func savePrices(logger *slog.Logger, db *database.Database, name, currency string) func(context.Context, types.PriceSeries) {
	return func(ctx context.Context, s types.PriceSeries) {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		hourly := s.Hourly()
		rows := make([]database.EnergyPriceRow, 0, len(hourly))
		for _, p := range hourly {
			if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
				continue
			}
			rows = append(rows, database.EnergyPriceRow{
				Source:   name,
				When:     hours.FromTime(p.Time),
				Price:    p.Price,
				Currency: currency,
			})
		}
		if err := db.SaveEnergyPrices(ctx, rows); err != nil {
			logger.Error("failed to save energy prices", slog.Any("error", err))
			return
		}
		logger.Debug("energy prices saved", slog.Int("noOfHours", len(rows)))
	}
}
