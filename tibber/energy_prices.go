package tibber

import (
	"context"
	"fmt"
	"time"

	"github.com/angas/spotprice/convert"
	"github.com/angas/spotprice/types"
)

type priceInfo struct {
	StartsAt string  `json:"startsAt"`
	Energy   float64 `json:"energy"`
	Tax      float64 `json:"tax"`
	Currency string  `json:"currency"`
}

type priceInfoResponse struct {
	CurrentSubscription struct {
		PriceInfo struct {
			Today    []priceInfo `json:"today"`
			Tomorrow []priceInfo `json:"tomorrow"`
		} `json:"priceInfo"`
	} `json:"currentSubscription"`
}

func (t *Tibber) Name() string {
	return "tibber"
}

func (t *Tibber) Currency() string {
	return t.currency
}

// Fetch returns the energy part of today's and tomorrow's prices in
// hundredths of the home's currency per kWh. Tibber has no date range,
// points outside w are dropped.
func (t *Tibber) Fetch(ctx context.Context, w types.Window) (types.PriceSeries, error) {
	query := `
		currentSubscription {
			priceInfo {
				today { startsAt energy tax currency }
				tomorrow { startsAt energy tax currency }
			}
		}`

	body, err := doQuery[priceInfoResponse](ctx, t, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices from tibber: %w", err)
	}

	info := body.Data.Viewer.Home.CurrentSubscription.PriceInfo
	todayAndTomorrow := append(info.Today, info.Tomorrow...)

	points := make([]types.PricePoint, 0, len(todayAndTomorrow))
	for _, price := range todayAndTomorrow {
		if price.Currency != "" && price.Currency != t.currency {
			return nil, fmt.Errorf("tibber prices in %s, expected %s", price.Currency, t.currency)
		}
		startsAt, err := time.Parse(time.RFC3339, price.StartsAt)
		if err != nil {
			return nil, err
		}
		if !w.Contains(startsAt) {
			continue
		}
		points = append(points, types.PricePoint{Time: startsAt, Price: convert.Kwh2Hundredths(price.Energy)})
	}

	return types.NewPriceSeries(points), nil
}
