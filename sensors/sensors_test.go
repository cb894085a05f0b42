package sensors

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angas/spotprice/publish"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTemperature(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"temperature": 21.5}`))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"temp:": -3.25, "humidity": 80}`))
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"outdoor": 4.0}`))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewHTTPTemperature([]Device{
		{ID: srv.URL + "/a", Name: "living_room"},
		{ID: srv.URL + "/b", Name: "weather"},
		{ID: srv.URL + "/c", Name: "outdoor", Key: "outdoor"},
		{ID: srv.URL + "/broken", Name: "garage"},
	})
	msg, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, publish.Message{"living_room": 21.5, "weather": -3.25, "outdoor": 4.0}, msg)
}

func TestHTTPTemperatureAllFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	msg, err := NewHTTPTemperature([]Device{{ID: srv.URL, Name: "x"}}).Execute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, msg)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestW1Temperature(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "28-3c01b607b5a1", "temperature"), "23125\n")
	writeFile(t, filepath.Join(dir, "28-3c01b607ee7e", "w1_slave"),
		"72 01 4b 46 7f ff 0e 10 57 : crc=57 YES\n72 01 4b 46 7f ff 0e 10 57 t=18062\n")
	writeFile(t, filepath.Join(dir, "28-000000000bad", "w1_slave"),
		"72 01 4b 46 7f ff 0e 10 57 : crc=00 NO\n72 01 4b 46 7f ff 0e 10 57 t=85000\n")

	s := NewW1Temperature(dir, []Device{
		{ID: "3c01b607b5a1", Name: "pool_pipes"},
		{ID: "28-3c01b607ee7e", Name: "pool_water"},
		{ID: "000000000bad", Name: "bad_crc"},
		{ID: "missing", Name: "missing"},
	})
	require.NoError(t, s.Available())

	msg, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, publish.Message{"pool_pipes": 23.13, "pool_water": 18.06}, msg)
}

func TestW1Unavailable(t *testing.T) {
	s := NewW1Temperature(filepath.Join(t.TempDir(), "nope"), nil)
	assert.ErrorIs(t, s.Available(), ErrNoW1Bus)
}

func TestParseW1Slave(t *testing.T) {
	_, err := parseW1Slave([]byte(""))
	assert.Error(t, err)
	_, err = parseW1Slave([]byte("aa : crc=57 YES\n"))
	assert.Error(t, err)
	_, err = parseW1Slave([]byte("aa : crc=57 YES\naa t=abc\n"))
	assert.Error(t, err)
	v, err := parseW1Slave([]byte("aa : crc=57 YES\naa t=-1500\n"))
	require.NoError(t, err)
	assert.Equal(t, -1.5, v)
}

func ratesServer(t *testing.T, calls *atomic.Int32, status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/latest", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("apikey"))
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		base := r.URL.Query().Get("base")
		symbol := r.URL.Query().Get("symbols")
		rate := map[string]float64{"EURSEK": 11.2, "USDSEK": 10.4}[base+symbol]
		fmt.Fprintf(w, `{"success":true,"base":%q,"date":"2025-01-14","rates":{%q:%v}}`, base, symbol, rate)
	}))
}

var rateDevices = []Device{
	{ID: "EUR", Key: "SEK", Name: "EUR"},
	{ID: "USD", Key: "SEK", Name: "USD"},
}

func TestExchangeRatesFetchAndCache(t *testing.T) {
	var calls atomic.Int32
	srv := ratesServer(t, &calls, http.StatusOK)
	defer srv.Close()

	cachePath := filepath.Join(t.TempDir(), "db", "exchange_rate.json")
	s, err := NewExchangeRates("key", srv.URL, cachePath, rateDevices)
	require.NoError(t, err)

	msg, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, publish.Message{"EUR": 11.2, "USD": 10.4}, msg)
	assert.Equal(t, int32(2), calls.Load())
	assert.FileExists(t, cachePath)

	// Fresh cache, no new requests.
	msg, err = s.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, publish.Message{"EUR": 11.2, "USD": 10.4}, msg)
	assert.Equal(t, int32(2), calls.Load())

	// Expired cache refetches.
	old := time.Now().Add(-13 * time.Hour)
	require.NoError(t, os.Chtimes(cachePath, old, old))
	_, err = s.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
}

func TestExchangeRatesFallsBackToStaleCache(t *testing.T) {
	var calls atomic.Int32
	srv := ratesServer(t, &calls, http.StatusTooManyRequests)
	defer srv.Close()

	cachePath := filepath.Join(t.TempDir(), "exchange_rate.json")
	writeFile(t, cachePath, `{"EUR": 11.0}`)
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(cachePath, old, old))

	s, err := NewExchangeRates("key", srv.URL, cachePath, rateDevices)
	require.NoError(t, err)

	msg, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, publish.Message{"EUR": 11.0}, msg)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExchangeRatesNoCacheNoAPI(t *testing.T) {
	var calls atomic.Int32
	srv := ratesServer(t, &calls, http.StatusInternalServerError)
	defer srv.Close()

	s, err := NewExchangeRates("key", srv.URL, filepath.Join(t.TempDir(), "x.json"), rateDevices)
	require.NoError(t, err)

	_, err = s.Execute(context.Background())
	assert.ErrorContains(t, err, "unexpected status code")
}

func TestExchangeRatesRequiresKey(t *testing.T) {
	_, err := NewExchangeRates("", "", "", rateDevices)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
