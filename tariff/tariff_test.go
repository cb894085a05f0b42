package tariff

import (
	"testing"
	"time"

	"github.com/angas/spotprice/hours"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func local(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, hours.Location())
}

func TestNoScheduleAddsNothing(t *testing.T) {
	tt, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, tt.Get(local(2025, time.January, 14, 10)))
	assert.Equal(t, 0.0, tt.Get(time.Time{}))
}

func TestHighLowWeekdays(t *testing.T) {
	tt, err := New(&Schedule{
		Periods:   HighLow(7, 21, 50, 20),
		Low:       20,
		Surcharge: 5,
		EnergyTax: 40,
	})
	require.NoError(t, err)

	tests := []struct {
		name     string
		at       time.Time
		expected float64
	}{
		{name: "tuesday 10:00 is high", at: local(2025, time.January, 14, 10), expected: 50 + 5 + 40},
		{name: "tuesday 07:00 window start is high", at: local(2025, time.January, 14, 7), expected: 95},
		{name: "tuesday 06:00 is low", at: local(2025, time.January, 14, 6), expected: 65},
		{name: "tuesday 21:00 window end is low", at: local(2025, time.January, 14, 21), expected: 65},
		{name: "saturday 10:00 is low", at: local(2025, time.January, 18, 10), expected: 20 + 5 + 40},
		{name: "sunday 12:00 is low", at: local(2025, time.January, 19, 12), expected: 65},
	}
	for _, tt2 := range tests {
		t.Run(tt2.name, func(t *testing.T) {
			assert.InDelta(t, tt2.expected, tt.Get(tt2.at), 1e-9)
		})
	}
}

func TestSeasonOverride(t *testing.T) {
	tt, err := New(&Schedule{
		Periods: HighLow(6, 22, 80, 30),
		Low:     30,
		Months:  []time.Month{time.November, time.December, time.January, time.February, time.March},
	})
	require.NoError(t, err)

	assert.Equal(t, 80.0, tt.Get(local(2025, time.January, 14, 12)))
	assert.Equal(t, 30.0, tt.Get(local(2025, time.July, 15, 12)), "off season is low")
}

func TestEvaluatedInLocalZone(t *testing.T) {
	tt, err := New(&Schedule{Periods: HighLow(7, 21, 1, 0)})
	require.NoError(t, err)
	// 06:30 UTC is 07:30 in Stockholm during winter.
	assert.Equal(t, 1.0, tt.Get(time.Date(2025, time.January, 14, 6, 30, 0, 0, time.UTC)))
}

func TestInvalidSchedules(t *testing.T) {
	tests := []struct {
		name    string
		periods []Period
	}{
		{name: "empty", periods: nil},
		{name: "not starting at midnight", periods: []Period{{From: 6, Cost: 1}}},
		{name: "out of order", periods: []Period{{From: 0}, {From: 10}, {From: 8}}},
		{name: "invalid hour", periods: []Period{{From: 0}, {From: 24}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(&Schedule{Periods: tt.periods})
			assert.Error(t, err)
		})
	}
}
