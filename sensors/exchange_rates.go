package sensors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/angas/spotprice/cache"
	"github.com/angas/spotprice/publish"
)

const (
	DefaultExchangeRatesURL = "https://api.apilayer.com/exchangerates_data"
	ExchangeRatesCacheAge   = 12 * time.Hour
)

var ErrMissingAPIKey = errors.New("missing exchange rates API key")

type latestRates struct {
	Success bool               `json:"success"`
	Base    string             `json:"base"`
	Date    string             `json:"date"`
	Rates   map[string]float64 `json:"rates"`
}

// ExchangeRates publishes one rate per device: ID is the base currency,
// Key the quoted currency and Name the published field. Results are cached
// on disk since the API has a small monthly quota.
type ExchangeRates struct {
	apiKey  string
	baseURL string
	devices []Device
	cache   *cache.File
	maxAge  time.Duration
	client  *http.Client
	logger  *slog.Logger
}

func NewExchangeRates(apiKey string, baseURL string, cachePath string, devices []Device) (*ExchangeRates, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultExchangeRatesURL
	}
	if cachePath == "" {
		cachePath = "db/exchange_rate.json"
	}
	return &ExchangeRates{
		apiKey:  apiKey,
		baseURL: baseURL,
		devices: devices,
		cache:   cache.NewFile(cachePath),
		maxAge:  ExchangeRatesCacheAge,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  slog.Default().With("module", "sensors", slog.String("sensor", "exchange_rates")),
	}, nil
}

func (s *ExchangeRates) Execute(ctx context.Context) (publish.Message, error) {
	if s.cache.Fresh(s.maxAge) {
		var cached publish.Message
		if err := s.cache.ReadJSON(&cached); err == nil && len(cached) > 0 {
			s.logger.Debug("using cached exchange rates")
			return cached, nil
		} else if err != nil {
			s.logger.Warn("failed to read exchange rate cache", slog.Any("error", err))
		}
	}

	result, err := s.fetch(ctx)
	if err == nil && len(result) > 0 {
		if err := s.cache.WriteJSON(result); err != nil {
			s.logger.Warn("failed to write exchange rate cache", slog.Any("error", err))
		}
		return result, nil
	}
	if err != nil {
		s.logger.Warn("failed to fetch exchange rates, trying cache", slog.Any("error", err))
	}

	var stale publish.Message
	if cacheErr := s.cache.ReadJSON(&stale); cacheErr != nil {
		if err == nil {
			err = errors.New("no exchange rates")
		}
		return nil, fmt.Errorf("%w (cache: %v)", err, cacheErr)
	}
	return stale, nil
}

func (s *ExchangeRates) fetch(ctx context.Context) (publish.Message, error) {
	header := http.Header{}
	header.Set("apikey", s.apiKey)

	result := publish.Message{}
	for _, d := range s.devices {
		q := url.Values{}
		q.Set("base", d.ID)
		q.Set("symbols", d.Key)

		var body latestRates
		if err := getJSON(ctx, s.client, s.baseURL+"/latest?"+q.Encode(), header, &body); err != nil {
			return nil, err
		}
		rate, ok := body.Rates[d.Key]
		if !body.Success || !ok {
			return nil, fmt.Errorf("no %s/%s rate in response", d.ID, d.Key)
		}
		result[d.Name] = rate
	}
	return result, nil
}
