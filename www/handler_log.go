package www

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/angas/spotprice/database"
	"github.com/angas/spotprice/logging"
)

type logEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Attrs     string `json:"attrs,omitempty"`
}

// NewLogHandler pages through the stored log, newest first.
// Query: level (default DEBUG), page (1-based), pageSize (default 25).
func NewLogHandler(logger *slog.Logger, db *database.Database) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			http.Error(w, "no database", http.StatusServiceUnavailable)
			return
		}

		level := slog.LevelDebug
		if l := r.URL.Query().Get("level"); l != "" {
			level = logging.LevelFromString(&l)
		}
		page := intOrDefault(r.URL, "page", 1)
		pageSize := intOrDefault(r.URL, "pageSize", 25)

		rows, err := db.GetLogEntries(r.Context(), database.LogFilter{MinLevel: level, Page: page, PageSize: pageSize})
		if err != nil {
			logger.Error("handling log request", slog.Any("error", err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		entries := make([]logEntry, len(rows))
		for i, e := range rows {
			entries[i] = logEntry{
				Timestamp: e.Timestamp.Format(time.RFC3339),
				Level:     slog.Level(e.Level).String(),
				Message:   e.Message,
				Attrs:     e.Attrs,
			}
		}
		writeJSON(logger, w, entries)
	}
}
