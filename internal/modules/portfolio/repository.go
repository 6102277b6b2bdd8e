// Package portfolio provides persistence for assets and their transactions.
package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/compass/internal/domain"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a requested asset or transaction does not exist.
var ErrNotFound = errors.New("not found")

// Repository provides access to the portfolio database
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "portfolio_repository").Logger(),
	}
}

// CreateAsset inserts a new asset and returns it with its assigned ID.
func (r *Repository) CreateAsset(asset domain.Asset) (domain.Asset, error) {
	if !asset.Type.Valid() {
		return domain.Asset{}, fmt.Errorf("invalid asset type: %q", asset.Type)
	}

	now := time.Now().Unix()
	result, err := r.db.Exec(`
		INSERT INTO assets (portfolio_id, name, symbol, asset_type, current_price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		asset.PortfolioID, asset.Name, asset.Symbol, string(asset.Type), asset.CurrentPrice, now, now,
	)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("failed to insert asset: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.Asset{}, fmt.Errorf("failed to get asset id: %w", err)
	}

	asset.ID = id
	return asset, nil
}

// UpdateCurrentPrice sets the live price on every asset with the given symbol.
func (r *Repository) UpdateCurrentPrice(symbol string, price float64) error {
	_, err := r.db.Exec(`
		UPDATE assets SET current_price = ?, updated_at = ? WHERE symbol = ?`,
		price, time.Now().Unix(), symbol,
	)
	if err != nil {
		return fmt.Errorf("failed to update current price for %s: %w", symbol, err)
	}
	return nil
}

// DeleteAsset removes an asset. Its transactions are removed by the
// ON DELETE CASCADE constraint.
func (r *Repository) DeleteAsset(id int64) error {
	result, err := r.db.Exec(`DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete asset %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("asset %d: %w", id, ErrNotFound)
	}

	return nil
}

// GetAsset fetches a single asset with its transactions ordered by date.
func (r *Repository) GetAsset(id int64) (domain.Asset, error) {
	row := r.db.QueryRow(`
		SELECT id, portfolio_id, name, symbol, asset_type, current_price
		FROM assets WHERE id = ?`, id)

	asset, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return domain.Asset{}, fmt.Errorf("asset %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Asset{}, fmt.Errorf("failed to get asset %d: %w", id, err)
	}

	txns, err := r.ListTransactions(id)
	if err != nil {
		return domain.Asset{}, err
	}
	asset.Transactions = txns

	return asset, nil
}

// ListAssets returns all assets of a portfolio with their transactions
// ordered by date ascending.
func (r *Repository) ListAssets(portfolioID string) ([]domain.Asset, error) {
	rows, err := r.db.Query(`
		SELECT id, portfolio_id, name, symbol, asset_type, current_price
		FROM assets WHERE portfolio_id = ? ORDER BY id`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}

	for i := range assets {
		txns, err := r.ListTransactions(assets[i].ID)
		if err != nil {
			return nil, err
		}
		assets[i].Transactions = txns
	}

	return assets, nil
}

// ListSymbols returns the distinct non-empty symbols across all portfolios.
// Used by the price refresh job to know what to fetch.
func (r *Repository) ListSymbols() ([]string, error) {
	rows, err := r.db.Query(`
		SELECT DISTINCT symbol FROM assets WHERE symbol != '' ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}

	return symbols, nil
}

// ListPortfolioIDs returns the distinct portfolio IDs with at least one
// asset. Used by background jobs to enumerate refresh targets.
func (r *Repository) ListPortfolioIDs() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT portfolio_id FROM assets ORDER BY portfolio_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio ids: %w", err)
	}

	return ids, nil
}

// AddTransaction inserts a transaction for an asset and returns it with
// its assigned ID.
func (r *Repository) AddTransaction(txn domain.Transaction) (domain.Transaction, error) {
	if !txn.Type.Valid() {
		return domain.Transaction{}, fmt.Errorf("invalid transaction type: %q", txn.Type)
	}
	if (txn.Type == domain.TransactionBuy || txn.Type == domain.TransactionSell) && txn.Quantity == nil {
		return domain.Transaction{}, fmt.Errorf("quantity required for %s transactions", txn.Type)
	}
	if txn.Fees < 0 {
		return domain.Transaction{}, fmt.Errorf("fees must not be negative, got %v", txn.Fees)
	}

	result, err := r.db.Exec(`
		INSERT INTO transactions (asset_id, txn_type, txn_date, quantity, price, fees, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.AssetID, string(txn.Type), txn.Date.Unix(), txn.Quantity, txn.Price, txn.Fees, txn.Notes, time.Now().Unix(),
	)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("failed to insert transaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("failed to get transaction id: %w", err)
	}

	txn.ID = id
	return txn, nil
}

// DeleteTransaction removes a single transaction.
func (r *Repository) DeleteTransaction(id int64) error {
	result, err := r.db.Exec(`DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}

	return nil
}

// ListTransactions returns an asset's transactions ordered by date ascending.
func (r *Repository) ListTransactions(assetID int64) ([]domain.Transaction, error) {
	rows, err := r.db.Query(`
		SELECT id, asset_id, txn_type, txn_date, quantity, price, fees, notes
		FROM transactions WHERE asset_id = ? ORDER BY txn_date, id`, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var txn domain.Transaction
		var txnType string
		var dateUnix int64
		var quantity, price sql.NullFloat64

		err := rows.Scan(&txn.ID, &txn.AssetID, &txnType, &dateUnix, &quantity, &price, &txn.Fees, &txn.Notes)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		txn.Type = domain.TransactionType(txnType)
		txn.Date = time.Unix(dateUnix, 0).UTC()
		if quantity.Valid {
			txn.Quantity = &quantity.Float64
		}
		if price.Valid {
			txn.Price = &price.Float64
		}

		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txns, nil
}

// EarliestTransactionDate returns the oldest transaction date across a
// portfolio's assets, or false when the portfolio has no transactions.
func (r *Repository) EarliestTransactionDate(portfolioID string) (time.Time, bool, error) {
	var earliest sql.NullInt64
	err := r.db.QueryRow(`
		SELECT MIN(t.txn_date)
		FROM transactions t
		JOIN assets a ON a.id = t.asset_id
		WHERE a.portfolio_id = ?`, portfolioID).Scan(&earliest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query earliest transaction: %w", err)
	}
	if !earliest.Valid {
		return time.Time{}, false, nil
	}

	return time.Unix(earliest.Int64, 0).UTC(), true, nil
}

// scanner abstracts sql.Row and sql.Rows for scanAsset.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAsset(s scanner) (domain.Asset, error) {
	var asset domain.Asset
	var assetType string

	err := s.Scan(&asset.ID, &asset.PortfolioID, &asset.Name, &asset.Symbol, &assetType, &asset.CurrentPrice)
	if err != nil {
		return domain.Asset{}, err
	}

	asset.Type = domain.AssetType(assetType)
	return asset, nil
}
