// Package history provides access to the historical price database.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DailyPrice is one OHLCV bar for a symbol.
type DailyPrice struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// PriceRepository provides access to the history database
type PriceRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(db *sql.DB, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{
		db:  db,
		log: log.With().Str("component", "price_repository").Logger(),
	}
}

// UpsertDailyPrices writes bars for a symbol, replacing any existing bar
// for the same date. All bars are written in one transaction.
func (r *PriceRepository) UpsertDailyPrices(prices []DailyPrice) error {
	if len(prices) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO daily_prices (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range prices {
		_, err := stmt.Exec(p.Symbol, dayUnix(p.Date), p.Open, p.High, p.Low, p.Close, p.Volume)
		if err != nil {
			return fmt.Errorf("failed to upsert price %s@%s: %w", p.Symbol, p.Date.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit price upsert: %w", err)
	}

	r.log.Debug().Str("symbol", prices[0].Symbol).Int("count", len(prices)).Msg("Upserted daily prices")
	return nil
}

// GetDailyCloses returns (date, close) pairs for a symbol from the given
// date onward, ordered by date ascending.
func (r *PriceRepository) GetDailyCloses(symbol string, from time.Time) ([]DailyPrice, error) {
	rows, err := r.db.Query(`
		SELECT symbol, date, open, high, low, close, COALESCE(volume, 0)
		FROM daily_prices
		WHERE symbol = ? AND date >= ?
		ORDER BY date`, symbol, dayUnix(from))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices for %s: %w", symbol, err)
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		var p DailyPrice
		var dateUnix int64
		if err := rows.Scan(&p.Symbol, &dateUnix, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		p.Date = time.Unix(dateUnix, 0).UTC()
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return prices, nil
}

// SetLatestPrice stores the most recent quote for a symbol.
func (r *PriceRepository) SetLatestPrice(symbol string, price float64) error {
	_, err := r.db.Exec(`
		INSERT INTO latest_prices (symbol, price, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			price = excluded.price,
			updated_at = excluded.updated_at`,
		symbol, price, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to set latest price for %s: %w", symbol, err)
	}
	return nil
}

// GetLatestPrice returns the most recent quote for a symbol and whether
// one is stored.
func (r *PriceRepository) GetLatestPrice(symbol string) (float64, bool, error) {
	var price float64
	err := r.db.QueryRow(`SELECT price FROM latest_prices WHERE symbol = ?`, symbol).Scan(&price)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get latest price for %s: %w", symbol, err)
	}
	return price, true, nil
}

// EarliestDate returns the first stored bar date for a symbol and whether
// any bar is stored. The history sync uses it to request the provider's
// full series the first time a symbol is seen.
func (r *PriceRepository) EarliestDate(symbol string) (time.Time, bool, error) {
	var earliest sql.NullInt64
	err := r.db.QueryRow(`SELECT MIN(date) FROM daily_prices WHERE symbol = ?`, symbol).Scan(&earliest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query earliest date for %s: %w", symbol, err)
	}
	if !earliest.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(earliest.Int64, 0).UTC(), true, nil
}

// dayUnix truncates a time to UTC midnight and returns its unix timestamp.
// All price dates are stored at day granularity.
func dayUnix(t time.Time) int64 {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}
