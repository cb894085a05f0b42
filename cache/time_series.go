package cache

import (
	"errors"
	"log/slog"
	"time"

	"github.com/angas/spotprice/hours"
	"github.com/angas/spotprice/types"
)

var ErrMiss = errors.New("cache miss")

type storedSeries struct {
	Timezone string            `json:"timezone"`
	Prices   types.PriceSeries `json:"prices"`
}

// TimeSeriesCache keeps the last fetched price series in a file. It is a
// fallback for provider outages: staleness is acceptable and a corrupt or
// missing file is just a miss. One writer per file.
type TimeSeriesCache struct {
	file   *File
	logger *slog.Logger
}

func NewTimeSeriesCache(path string) *TimeSeriesCache {
	return &TimeSeriesCache{
		file:   NewFile(path),
		logger: slog.Default().With(slog.String("module", "cache"), slog.String("path", path)),
	}
}

func (c *TimeSeriesCache) Age() time.Duration {
	return c.file.Age()
}

// Read returns the stored series in the local zone, or false on any
// problem with the file.
func (c *TimeSeriesCache) Read() (types.PriceSeries, bool) {
	var stored storedSeries
	if err := c.file.ReadJSON(&stored); err != nil {
		if errors.Is(err, ErrMiss) {
			c.logger.Debug("no cached price series")
		} else {
			c.logger.Warn("unreadable price cache, treated as a miss", slog.Any("error", err))
		}
		return nil, false
	}
	if len(stored.Prices) == 0 {
		c.logger.Warn("empty price cache, treated as a miss")
		return nil, false
	}
	return types.NewPriceSeries(stored.Prices).In(hours.Location()), true
}

// Write overwrites the file with the series stored in UTC.
func (c *TimeSeriesCache) Write(s types.PriceSeries) error {
	return c.file.WriteJSON(storedSeries{Timezone: "UTC", Prices: s.In(time.UTC)})
}
