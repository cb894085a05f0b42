package sensors

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/angas/spotprice/publish"
)

var temperatureKeys = []string{"temperature", "temp", "temp:"}

// HTTPTemperature polls JSON endpoints that report a temperature. A device
// that fails is left out of the message.
type HTTPTemperature struct {
	devices []Device
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPTemperature(devices []Device) *HTTPTemperature {
	return &HTTPTemperature{
		devices: devices,
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  slog.Default().With("module", "sensors", slog.String("sensor", "http_temperature")),
	}
}

func (s *HTTPTemperature) Execute(ctx context.Context) (publish.Message, error) {
	result := publish.Message{}
	for _, d := range s.devices {
		var body map[string]any
		if err := getJSON(ctx, s.client, d.ID, nil, &body); err != nil {
			s.logger.Warn("failed to read temperature", slog.String("device", d.Name), slog.Any("error", err))
			continue
		}
		value, ok := parseTemperature(body, d.Key)
		if !ok {
			s.logger.Warn("no temperature in response", slog.String("device", d.Name))
			continue
		}
		result[d.Name] = value
	}
	return result, nil
}

// parseTemperature looks for key, or else the usual temperature keys.
func parseTemperature(body map[string]any, key string) (float64, bool) {
	keys := temperatureKeys
	if key != "" {
		keys = []string{key}
	}
	for _, k := range keys {
		if v, ok := body[k].(float64); ok {
			return v, true
		}
	}
	return 0, false
}
