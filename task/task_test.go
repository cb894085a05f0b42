package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/angas/spotprice/config"
	"github.com/angas/spotprice/database"
	"github.com/angas/spotprice/hours"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

type fakeSubscriber struct {
	topic   string
	handler func(payload []byte)
}

func (f *fakeSubscriber) Subscribe(topic string, handler func(payload []byte)) error {
	f.topic = topic
	f.handler = handler
	return nil
}

// priceServer serves every day with a flat price of 1 SEK/kWh.
func priceServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		day, err := time.ParseInLocation("/2006/01-02", strings.TrimSuffix(r.URL.Path, "_SE3.json"), hours.Location())
		if err != nil {
			http.NotFound(w, r)
			return
		}
		var prices []map[string]any
		for ts := day; ts.Before(day.AddDate(0, 0, 1)); ts = ts.Add(time.Hour) {
			prices = append(prices, map[string]any{
				"SEK_per_kWh": 1.0,
				"time_start":  ts.Format(time.RFC3339),
				"time_end":    ts.Add(time.Hour).Format(time.RFC3339),
			})
		}
		_ = json.NewEncoder(w).Encode(prices)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestKinds(t *testing.T) {
	assert.Equal(t, []Kind{
		KindElprisetjustnu,
		KindEntsoe,
		KindExchangeRates,
		KindHTTPTemperature,
		KindNordpool,
		KindTibber,
		KindW1Temperature,
	}, Kinds())
}

func TestNewActionUnknownKind(t *testing.T) {
	_, err := NewAction(config.AppConfigSource{Name: "x", Type: "smhi"}, Env{})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestNewActionSkipped(t *testing.T) {
	t.Setenv("ENTSOE_API_KEY", "")
	t.Setenv("TIBBER_API_TOKEN", "")
	t.Setenv("EXCHANGE_RATES_API_KEY", "")

	tests := []struct {
		name   string
		source config.AppConfigSource
	}{
		{"disabled", config.AppConfigSource{Type: "elprisetjustnu", Disabled: true}},
		{"entsoe without token", config.AppConfigSource{Type: "entsoe", Area: "SE3"}},
		{"tibber without token", config.AppConfigSource{Type: "tibber"}},
		{"exchange rates without key", config.AppConfigSource{Type: "exchange_rates"}},
		{"no 1-wire bus", config.AppConfigSource{Type: "w1_temperature", W1Dir: filepath.Join(t.TempDir(), "missing")}},
		{"http temperature without devices", config.AppConfigSource{Type: "http_temperature"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.source.Name = "test"
			_, err := NewAction(tt.source, Env{})
			assert.ErrorIs(t, err, ErrSkipped)
		})
	}
}

func TestNewActionSensors(t *testing.T) {
	t.Setenv("EXCHANGE_RATES_API_KEY", "key")

	w1, err := NewAction(config.AppConfigSource{Name: "pool", Type: "w1_temperature", W1Dir: t.TempDir()}, Env{})
	require.NoError(t, err)
	assert.NotNil(t, w1)

	xr, err := NewAction(config.AppConfigSource{Name: "currency", Type: "exchange_rates"}, Env{})
	require.NoError(t, err)
	assert.NotNil(t, xr)
}

func TestNewActionInvalidTariff(t *testing.T) {
	_, err := NewAction(config.AppConfigSource{
		Name:         "se3",
		Type:         "elprisetjustnu",
		TransferCost: &config.AppConfigTransferCost{Start: ptr(20), End: ptr(10)},
	}, Env{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSkipped)
}

func TestPriceTask(t *testing.T) {
	srv := priceServer(t)
	dir := t.TempDir()
	ctx := context.Background()

	db, err := database.New(ctx, filepath.Join(dir, "spotprice.db"))
	require.NoError(t, err)
	defer db.Close()

	sub := &fakeSubscriber{}
	action, err := NewAction(config.AppConfigSource{
		Name:         "se3",
		Type:         "elprisetjustnu",
		Area:         "SE3",
		BaseUrl:      srv.URL,
		Cache:        ptr(filepath.Join(dir, "se3.json")),
		Currency:     ptr("EUR"),
		ExchangeRate: ptr(0.1),
		Subscription: &config.AppConfigSubscription{Topic: "spotprice/currency", Key: "rate"},
	}, Env{DB: db, Subscriber: sub})
	require.NoError(t, err)
	assert.Equal(t, "spotprice/currency", sub.topic)

	msg, err := action.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10.0, msg["raw"])
	assert.Equal(t, 10.0, msg["price"])
	assert.Equal(t, 0.0, msg["add"])
	assert.Contains(t, msg, "slot")
	assert.Contains(t, msg, "future_price")
	assert.Equal(t, false, msg["stale"])

	sub.handler([]byte(`{"rate": 0.09}`))
	msg, err = action.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9.0, msg["raw"])

	sub.handler([]byte(`{"rate": "bad"}`))
	msg, err = action.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9.0, msg["raw"])

	rows, err := db.GetEnergyPricesFrom(ctx, "se3", hours.FromTime(hours.StartOfDay(time.Now())))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 46)
	assert.Equal(t, 100.0, rows[0].Price)
	assert.Equal(t, "SEK", rows[0].Currency)
}

func TestPriceTaskWithoutPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	action, err := NewAction(config.AppConfigSource{
		Name:    "se3",
		Type:    "elprisetjustnu",
		Area:    "SE3",
		BaseUrl: srv.URL,
		Cache:   ptr(filepath.Join(t.TempDir(), "se3.json")),
	}, Env{})
	require.NoError(t, err)

	msg, err := action.Execute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, msg)
}

func TestMaintenanceTask(t *testing.T) {
	dir := t.TempDir()
	db, err := database.New(context.Background(), filepath.Join(dir, "spotprice.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	today := hours.FromTime(time.Now())
	require.NoError(t, db.SaveEnergyPrices(ctx, []database.EnergyPriceRow{
		{Source: "se3", When: hours.DateHour{Date: "2000-01-01", Hour: 12}, Price: 10, Currency: "SEK"},
		{Source: "se3", When: today, Price: 20, Currency: "SEK"},
	}))
	for i := range 3 {
		require.NoError(t, db.SaveLogEntry(ctx, database.LogEntryRow{Timestamp: time.Now(), Level: int(slog.LevelWarn), Message: fmt.Sprint(i)}))
	}

	tasks := NewTasks(db, &config.AppConfig{Logging: config.AppConfigLogging{DbMaxEntries: ptr(1)}})
	tasks.MaintenanceTask()

	files, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Regexp(t, `^spotprice-\d{8}T\d{6}\.zip$`, files[0].Name())

	prices, err := db.GetEnergyPricesFrom(ctx, "se3", hours.DateHour{Date: "1999-12-31", Hour: 0})
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, today, prices[0].When)

	entries, err := db.GetLogEntries(ctx, database.LogFilter{MinLevel: slog.LevelDebug})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2", entries[0].Message)
}

func TestTasksRun(t *testing.T) {
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "spotprice.db"))
	require.NoError(t, err)
	defer db.Close()

	tasks := NewTasks(db, &config.AppConfig{})
	tasks.Run()
	defer tasks.Stop()
	assert.Equal(t, 1, tasks.Entries())
}
