package www

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/angas/spotprice/database"
	"github.com/angas/spotprice/hours"
)

type priceEntry struct {
	Date     string  `json:"date"`
	Hour     uint8   `json:"hour"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// NewPricesHandler returns the stored spot prices of a source from the
// start of the day given by ?date=YYYY-MM-DD, or from the current hour.
func NewPricesHandler(logger *slog.Logger, db *database.Database) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			http.Error(w, "no database", http.StatusServiceUnavailable)
			return
		}

		from := hours.FromTime(time.Now())
		if d := r.URL.Query().Get("date"); d != "" {
			if _, err := time.Parse(time.DateOnly, d); err != nil {
				http.Error(w, "invalid date", http.StatusBadRequest)
				return
			}
			from = hours.DateHour{Date: d, Hour: 0}
		}

		rows, err := db.GetEnergyPricesFrom(r.Context(), r.PathValue("source"), from)
		if err != nil {
			logger.Error("handling prices request", slog.Any("error", err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		prices := make([]priceEntry, len(rows))
		for i, p := range rows {
			prices[i] = priceEntry{Date: p.When.Date, Hour: p.When.Hour, Price: p.Price, Currency: p.Currency}
		}
		writeJSON(logger, w, prices)
	}
}
