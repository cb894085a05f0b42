package nordpool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/angas/spotprice/convert"
	"github.com/angas/spotprice/types"
)

const DefaultBaseURL = "https://dataportal-api.nordpoolgroup.com"

// Nordpool reads the day-ahead auction from the Nord Pool data portal.
// Prices come in currency/MWh and are returned in hundredths per kWh.
type Nordpool struct {
	area     string
	currency string
	baseURL  string
	client   *http.Client
}

func New(area string, currency string, baseURL string) Nordpool {
	if currency == "" {
		currency = "SEK"
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return Nordpool{
		area:     area,
		currency: currency,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (n Nordpool) Name() string {
	return "nordpool"
}

func (n Nordpool) Currency() string {
	return n.currency
}

func (n Nordpool) Fetch(ctx context.Context, w types.Window) (types.PriceSeries, error) {
	var points []types.PricePoint
	for _, day := range w.Days() {
		prices, err := n.getEnergyPrices(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch prices from nordpool for %s: %w", day.Format(time.DateOnly), err)
		}
		for _, p := range prices {
			if w.Contains(p.Time) {
				points = append(points, p)
			}
		}
	}
	return types.NewPriceSeries(points), nil
}

func (n Nordpool) getEnergyPrices(ctx context.Context, date time.Time) ([]types.PricePoint, error) {
	url := fmt.Sprintf("%s/api/DayAheadPrices?date=%s&market=DayAhead&deliveryArea=%s&currency=%s",
		n.baseURL,
		date.Format(time.DateOnly),
		n.area,
		n.currency)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	defer resp.Body.Close()

	// The portal answers 204 until the auction result is published.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var data dayAheadPrices
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	prices := make([]types.PricePoint, 0, len(data.MultiAreaEntries))
	for _, entry := range data.MultiAreaEntries {
		price, ok := entry.EntryPerArea[n.area]
		if !ok {
			continue
		}
		prices = append(prices, types.PricePoint{
			Time:  entry.DeliveryStart,
			Price: convert.MWh2Kwh(price),
		})
	}

	return prices, nil
}
