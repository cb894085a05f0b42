package tariff

import (
	"fmt"
	"slices"
	"time"

	"github.com/angas/spotprice/hours"
)

// Period sets the transfer cost from hour From until the next period starts.
type Period struct {
	From int
	Cost float64
}

type Schedule struct {
	// Periods partition the day, the first one must start at hour 0.
	Periods []Period
	// Low is charged all day outside Weekdays and Months.
	Low float64
	// Days where Periods apply, Monday to Friday when empty.
	Weekdays []time.Weekday
	// Months where Periods apply, all year when empty.
	Months    []time.Month
	Surcharge float64
	EnergyTax float64
}

// HighLow builds the periods of a day with one high window [start, end).
func HighLow(start, end int, high, low float64) []Period {
	return []Period{{From: 0, Cost: low}, {From: start, Cost: high}, {From: end, Cost: low}}
}

var workdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// TransferTariff maps a timestamp to the grid transfer cost plus fixed
// additions. It has no mutable state.
type TransferTariff struct {
	schedule *Schedule
}

// New validates the schedule. A nil schedule gives a tariff that adds nothing.
func New(s *Schedule) (TransferTariff, error) {
	if s == nil {
		return TransferTariff{}, nil
	}
	if len(s.Periods) == 0 || s.Periods[0].From != 0 {
		return TransferTariff{}, fmt.Errorf("transfer cost periods must start at hour 0")
	}
	for i, p := range s.Periods {
		if p.From < 0 || p.From > 23 {
			return TransferTariff{}, fmt.Errorf("transfer cost period starts at invalid hour %d", p.From)
		}
		if i > 0 && p.From <= s.Periods[i-1].From {
			return TransferTariff{}, fmt.Errorf("transfer cost periods must be in increasing hour order")
		}
	}
	c := *s
	if len(c.Weekdays) == 0 {
		c.Weekdays = workdays
	}
	return TransferTariff{schedule: &c}, nil
}

func (t TransferTariff) Get(ts time.Time) float64 {
	s := t.schedule
	if s == nil {
		return 0
	}
	ts = ts.In(hours.Location())
	return t.transferCost(ts) + s.Surcharge + s.EnergyTax
}

func (t TransferTariff) transferCost(ts time.Time) float64 {
	s := t.schedule
	if !slices.Contains(s.Weekdays, ts.Weekday()) {
		return s.Low
	}
	if len(s.Months) > 0 && !slices.Contains(s.Months, ts.Month()) {
		return s.Low
	}
	cost := s.Periods[0].Cost
	for _, p := range s.Periods {
		if ts.Hour() < p.From {
			break
		}
		cost = p.Cost
	}
	return cost
}
