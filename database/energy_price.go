package database

import (
	"context"
	"fmt"

	"github.com/angas/spotprice/convert"
	"github.com/angas/spotprice/hours"
)

// EnergyPriceRow is the spot price of one hour as fetched from a source,
// before exchange rate and tariff.
type EnergyPriceRow struct {
	Source   string
	When     hours.DateHour
	Price    float64
	Currency string
}

func (d *Database) SaveEnergyPrices(ctx context.Context, rows []EnergyPriceRow) error {
	tx, err := d.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("saving energy prices: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO energy_price (source, date, hour, price, currency) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source, date, hour) DO UPDATE SET price = excluded.price, currency = excluded.currency`)
	if err != nil {
		return fmt.Errorf("saving energy prices: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.Source,
			row.When.Date,
			row.When.Hour,
			convert.RoundFloat64(row.Price, 4),
			row.Currency)
		if err != nil {
			return fmt.Errorf("saving energy price for %s: %w", row.When, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("saving energy prices: %w", err)
	}
	return nil
}

func (d *Database) GetEnergyPrice(ctx context.Context, source string, dh hours.DateHour) (EnergyPriceRow, error) {
	row := d.read.QueryRowContext(ctx, `SELECT
		source, date, hour, price, currency
		FROM energy_price
		WHERE source = ? AND date = ? AND hour = ?`,
		source, dh.Date, dh.Hour)

	var ep EnergyPriceRow
	if err := row.Scan(&ep.Source, &ep.When.Date, &ep.When.Hour, &ep.Price, &ep.Currency); err != nil {
		return EnergyPriceRow{}, err
	}

	return ep, nil
}

// GetEnergyPricesFrom returns the prices of source from dh and onwards.
func (d *Database) GetEnergyPricesFrom(ctx context.Context, source string, dh hours.DateHour) ([]EnergyPriceRow, error) {
	rows, err := d.read.QueryContext(ctx, `SELECT
		source, date, hour, price, currency
		FROM energy_price
		WHERE source = ? AND ((date = ? AND hour >= ?) OR date > ?)
		ORDER BY date, hour ASC`,
		source, dh.Date, dh.Hour, dh.Date)
	if err != nil {
		return nil, fmt.Errorf("fetching energy prices: %w", err)
	}
	defer rows.Close()

	var energyPrices []EnergyPriceRow
	for rows.Next() {
		var ep EnergyPriceRow
		if err := rows.Scan(&ep.Source, &ep.When.Date, &ep.When.Hour, &ep.Price, &ep.Currency); err != nil {
			return nil, fmt.Errorf("scanning energy price row: %w", err)
		}
		energyPrices = append(energyPrices, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading energy price rows: %w", err)
	}

	return energyPrices, nil
}

func (d *Database) PurgeEnergyPrice(ctx context.Context, retentionDays int) error {
	return d.purgeTable(ctx, "energy_price", retentionDays)
}
