package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

type LogEntryRow struct {
	Timestamp time.Time
	Level     int
	Message   string
	Attrs     string
}

// LogFilter selects one page of entries at or above MinLevel, newest first.
// Page is 1-based.
type LogFilter struct {
	MinLevel slog.Level
	Page     int
	PageSize int
}

func (f LogFilter) limitOffset() (int, int) {
	page, size := max(f.Page, 1), f.PageSize
	if size < 1 {
		size = 25
	}
	return size, (page - 1) * size
}

func (d *Database) SaveLogEntry(ctx context.Context, r LogEntryRow) error {
	_, err := d.write.ExecContext(ctx,
		`INSERT INTO log (timestamp, level, message, attrs) VALUES (?, ?, ?, ?)`,
		r.Timestamp.UTC().Format(time.RFC3339Nano), r.Level, r.Message, r.Attrs)
	if err != nil {
		return fmt.Errorf("saving log entry: %w", err)
	}
	return nil
}

func (d *Database) GetLogEntries(ctx context.Context, f LogFilter) ([]LogEntryRow, error) {
	limit, offset := f.limitOffset()
	rows, err := d.read.QueryContext(ctx, `
		SELECT timestamp, level, message, attrs FROM log
		WHERE level >= ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?`,
		int(f.MinLevel), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fetching log entries: %w", err)
	}
	defer rows.Close()

	entries := make([]LogEntryRow, 0, limit)
	for rows.Next() {
		var (
			r     LogEntryRow
			ts    string
			attrs sql.NullString
		)
		if err := rows.Scan(&ts, &r.Level, &r.Message, &attrs); err != nil {
			return nil, fmt.Errorf("scanning log row: %w", err)
		}
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parsing log timestamp %q: %w", ts, err)
		}
		r.Attrs = attrs.String
		entries = append(entries, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading log rows: %w", err)
	}
	return entries, nil
}

// PurgeLog keeps the newest maxLogEntries entries, a negative value keeps all.
func (d *Database) PurgeLog(ctx context.Context, maxLogEntries int) error {
	if maxLogEntries < 0 {
		return nil
	}
	res, err := d.write.ExecContext(ctx,
		`DELETE FROM log WHERE id NOT IN (SELECT id FROM log ORDER BY id DESC LIMIT ?)`, maxLogEntries)
	if err != nil {
		return fmt.Errorf("purging log: %w", err)
	}
	n, _ := res.RowsAffected()
	d.logger.Debug("log purged", slog.Int64("removed", n))
	return nil
}
