package nordpool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angas/spotprice/hours"
	"github.com/angas/spotprice/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const response = `{
  "deliveryDateCET": "2025-01-14",
  "version": 3,
  "market": "DayAhead",
  "deliveryAreas": ["SE3"],
  "currency": "SEK",
  "multiAreaEntries": [
    {"deliveryStart": "2025-01-13T23:00:00Z", "deliveryEnd": "2025-01-14T00:00:00Z", "entryPerArea": {"SE3": 523.4}},
    {"deliveryStart": "2025-01-14T00:00:00Z", "deliveryEnd": "2025-01-14T01:00:00Z", "entryPerArea": {"SE3": 410.0}},
    {"deliveryStart": "2025-01-14T01:00:00Z", "deliveryEnd": "2025-01-14T02:00:00Z", "entryPerArea": {"SE4": 999.0}}
  ]
}`

func TestFetch(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("date"))
		assert.Equal(t, "/api/DayAheadPrices", r.URL.Path)
		assert.Equal(t, "SE3", r.URL.Query().Get("deliveryArea"))
		assert.Equal(t, "SEK", r.URL.Query().Get("currency"))
		if r.URL.Query().Get("date") == "2025-01-14" {
			_, _ = w.Write([]byte(response))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	from := time.Date(2025, time.January, 14, 0, 0, 0, 0, hours.Location())
	n := New("SE3", "", srv.URL)
	series, err := n.Fetch(context.Background(), types.Window{From: from, To: from.AddDate(0, 0, 2)})
	require.NoError(t, err)

	assert.Equal(t, []string{"2025-01-14", "2025-01-15"}, queries)
	require.Len(t, series, 2)
	assert.True(t, series[0].Time.Equal(from))
	assert.InDelta(t, 52.34, series[0].Price, 1e-9)
	assert.InDelta(t, 41.0, series[1].Price, 1e-9)
	assert.Equal(t, "SEK", n.Currency())
}

func TestFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	from := time.Date(2025, time.January, 14, 0, 0, 0, 0, hours.Location())
	_, err := New("SE3", "EUR", srv.URL).Fetch(context.Background(), types.Window{From: from, To: from.AddDate(0, 0, 1)})
	assert.ErrorContains(t, err, "unexpected status code: 500")
}
