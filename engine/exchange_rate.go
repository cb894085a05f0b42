package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"sync/atomic"
)

// ExchangeRate is a last-value cache for a rate pushed from another
// publisher. Readers get the fallback until a valid value has arrived.
type ExchangeRate struct {
	fallback float64
	bits     atomic.Uint64
	live     atomic.Bool
}

func NewExchangeRate(fallback float64) *ExchangeRate {
	return &ExchangeRate{fallback: fallback}
}

func (x *ExchangeRate) Get() float64 {
	if x == nil {
		return 1
	}
	if x.live.Load() {
		return math.Float64frombits(x.bits.Load())
	}
	return x.fallback
}

// Set ignores rates that are not finite positive numbers.
func (x *ExchangeRate) Set(rate float64) bool {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return false
	}
	x.bits.Store(math.Float64bits(rate))
	x.live.Store(true)
	return true
}

// SetFromJSON reads key from a JSON object such as {"EUR": 11.43}.
func (x *ExchangeRate) SetFromJSON(payload []byte, key string) error {
	var values map[string]any
	if err := json.Unmarshal(payload, &values); err != nil {
		return fmt.Errorf("decoding exchange rate: %w", err)
	}
	v, ok := values[key].(float64)
	if !ok {
		return fmt.Errorf("no numeric exchange rate for %q", key)
	}
	if !x.Set(v) {
		return fmt.Errorf("invalid exchange rate %v for %q", v, key)
	}
	return nil
}
