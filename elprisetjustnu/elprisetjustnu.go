package elprisetjustnu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/angas/spotprice/convert"
	"github.com/angas/spotprice/types"
)

const DefaultBaseURL = "https://www.elprisetjustnu.se/api/v1/prices"

type rawPrice struct {
	SEKPerKWh float64   `json:"SEK_per_kWh"`
	EURPerKWh float64   `json:"EUR_per_kWh"`
	EXR       float64   `json:"EXR"`
	TimeStart time.Time `json:"time_start"`
	TimeEnd   time.Time `json:"time_end"`
}

// ElPrisetJustNu publishes one JSON document per area and day. Prices are
// returned in öre/kWh.
type ElPrisetJustNu struct {
	area    string
	baseURL string
	client  *http.Client
}

func New(area string, baseURL string) ElPrisetJustNu {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return ElPrisetJustNu{
		area:    area,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (e ElPrisetJustNu) Name() string {
	return "elprisetjustnu"
}

func (e ElPrisetJustNu) Currency() string {
	return "SEK"
}

// Fetch requests every day in the window. A day that is not published yet
// yields no points rather than an error.
func (e ElPrisetJustNu) Fetch(ctx context.Context, w types.Window) (types.PriceSeries, error) {
	var points []types.PricePoint
	for _, day := range w.Days() {
		prices, err := e.getEnergyPrices(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch prices for %s: %w", day.Format(time.DateOnly), err)
		}
		for _, p := range prices {
			if w.Contains(p.Time) {
				points = append(points, p)
			}
		}
	}
	return types.NewPriceSeries(points), nil
}

func (e ElPrisetJustNu) getEnergyPrices(ctx context.Context, day time.Time) ([]types.PricePoint, error) {
	url := fmt.Sprintf("%s/%d/%02d-%02d_%s.json",
		e.baseURL, day.Year(), int(day.Month()), day.Day(), e.area)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var rawPrices []rawPrice
	if err := json.NewDecoder(resp.Body).Decode(&rawPrices); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	prices := make([]types.PricePoint, 0, len(rawPrices))
	for _, raw := range rawPrices {
		if raw.TimeStart.IsZero() {
			continue
		}
		prices = append(prices, types.PricePoint{
			Time:  raw.TimeStart,
			Price: convert.Kwh2Hundredths(raw.SEKPerKWh),
		})
	}

	return prices, nil
}
