package task

import (
	"errors"
	"fmt"
	"slices"

	"github.com/angas/spotprice/config"
	"github.com/angas/spotprice/database"
	"github.com/angas/spotprice/publish"
	"github.com/angas/spotprice/sensors"
)

type Kind string

const (
	KindElprisetjustnu  Kind = "elprisetjustnu"
	KindNordpool        Kind = "nordpool"
	KindEntsoe          Kind = "entsoe"
	KindTibber          Kind = "tibber"
	KindHTTPTemperature Kind = "http_temperature"
	KindW1Temperature   Kind = "w1_temperature"
	KindExchangeRates   Kind = "exchange_rates"
)

var (
	ErrUnknownKind = errors.New("unknown source type")
	// ErrSkipped is returned for sources that are disabled or can not
	// operate on this host. They are left out instead of failing startup.
	ErrSkipped = errors.New("source skipped")
)

// Subscriber delivers messages from another publisher's topic.
type Subscriber interface {
	Subscribe(topic string, handler func(payload []byte)) error
}

// Env holds what actions may use besides their own configuration. Both
// fields are optional.
type Env struct {
	DB         *database.Database
	Subscriber Subscriber
}

type factory func(s config.AppConfigSource, env Env) (publish.Action, error)

var registry = map[Kind]factory{
	KindElprisetjustnu:  newPriceAction,
	KindNordpool:        newPriceAction,
	KindEntsoe:          newPriceAction,
	KindTibber:          newPriceAction,
	KindHTTPTemperature: newHTTPTemperature,
	KindW1Temperature:   newW1Temperature,
	KindExchangeRates:   newExchangeRates,
}

// Kinds lists the registered source types in sorted order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// NewAction builds the action for a configured source.
func NewAction(s config.AppConfigSource, env Env) (publish.Action, error) {
	f, ok := registry[Kind(s.Type)]
	if !ok {
		return nil, fmt.Errorf("source %s: %w %q", s.Name, ErrUnknownKind, s.Type)
	}
	if s.Disabled {
		return nil, fmt.Errorf("source %s: %w, disabled", s.Name, ErrSkipped)
	}
	return f(s, env)
}

func devices(s config.AppConfigSource) []sensors.Device {
	d := make([]sensors.Device, len(s.Devices))
	for i, cd := range s.Devices {
		d[i] = sensors.Device{ID: cd.Id, Name: cd.Name, Key: cd.Key}
	}
	return d
}

func newHTTPTemperature(s config.AppConfigSource, _ Env) (publish.Action, error) {
	if len(s.Devices) == 0 {
		return nil, fmt.Errorf("source %s: %w, no devices", s.Name, ErrSkipped)
	}
	return sensors.NewHTTPTemperature(devices(s)), nil
}

func newW1Temperature(s config.AppConfigSource, _ Env) (publish.Action, error) {
	w1 := sensors.NewW1Temperature(s.W1Dir, devices(s))
	if err := w1.Available(); err != nil {
		return nil, fmt.Errorf("source %s: %w, %v", s.Name, ErrSkipped, err)
	}
	return w1, nil
}

func newExchangeRates(s config.AppConfigSource, _ Env) (publish.Action, error) {
	xr, err := sensors.NewExchangeRates(s.GetApiKey(), s.BaseUrl, s.GetCache(), devices(s))
	if errors.Is(err, sensors.ErrMissingAPIKey) {
		return nil, fmt.Errorf("source %s: %w, %v", s.Name, ErrSkipped, err)
	}
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", s.Name, err)
	}
	return xr, nil
}
