package types

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/angas/spotprice/hours"
	"github.com/angas/spotprice/types/maybe"
)

// PricePoint is one price in hundredths of a currency unit per kWh.
type PricePoint struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// PriceSeries is ordered by time with unique timestamps.
type PriceSeries []PricePoint

// Window is the half open interval [From, To) prices are requested for.
type Window struct {
	From time.Time
	To   time.Time
}

// Days returns the start of every local day touched by the window.
func (w Window) Days() []time.Time {
	var days []time.Time
	for d := hours.StartOfDay(w.From); d.Before(w.To); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

type PriceSource interface {
	Name() string
	// Currency of the fetched prices, e.g. "SEK" or "EUR".
	Currency() string
	Fetch(ctx context.Context, w Window) (PriceSeries, error)
}

// NewPriceSeries sorts the points and drops later duplicates of a timestamp.
func NewPriceSeries(points []PricePoint) PriceSeries {
	s := slices.Clone(points)
	slices.SortStableFunc(s, func(a, b PricePoint) int { return a.Time.Compare(b.Time) })
	return slices.CompactFunc(s, func(a, b PricePoint) bool { return a.Time.Equal(b.Time) })
}

// In returns a copy with every timestamp converted to loc.
func (s PriceSeries) In(loc *time.Location) PriceSeries {
	out := make(PriceSeries, len(s))
	for i, p := range s {
		out[i] = PricePoint{Time: p.Time.In(loc), Price: p.Price}
	}
	return out
}

// Scale returns a copy with every price multiplied by f.
func (s PriceSeries) Scale(f float64) PriceSeries {
	out := make(PriceSeries, len(s))
	for i, p := range s {
		out[i] = PricePoint{Time: p.Time, Price: p.Price * f}
	}
	return out
}

// Hourly aggregates the series into one point per local hour, the mean of
// the points in that hour, stamped with the time of the first one.
// Non-numeric prices propagate to the bucket they belong to.
func (s PriceSeries) Hourly() PriceSeries {
	var out PriceSeries
	var sum float64
	var n int
	var curr hours.DateHour
	flush := func() {
		if n > 0 {
			out[len(out)-1].Price = sum / float64(n)
		}
	}
	for _, p := range s {
		dh := hours.FromTime(p.Time)
		if len(out) == 0 || dh != curr {
			flush()
			curr = dh
			sum, n = 0, 0
			out = append(out, PricePoint{Time: p.Time})
		}
		sum += p.Price
		n++
	}
	flush()
	return out
}

// At returns the hourly price of the bucket dh.
func (s PriceSeries) At(dh hours.DateHour) maybe.Maybe[float64] {
	for _, p := range s.Hourly() {
		if hours.FromTime(p.Time) == dh {
			if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
				return maybe.None[float64]()
			}
			return maybe.Some(p.Price)
		}
	}
	return maybe.None[float64]()
}

// Day returns the hourly points of the local date, e.g. "2025-01-31".
func (s PriceSeries) Day(date string) PriceSeries {
	var out PriceSeries
	for _, p := range s.Hourly() {
		if hours.FromTime(p.Time).Date == date {
			out = append(out, p)
		}
	}
	return out
}
