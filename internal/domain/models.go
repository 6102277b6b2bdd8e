// Package domain holds the core data model shared across modules.
// Types here are infrastructure-free: repositories persist them and the
// analytics engine consumes them, but nothing in this package touches I/O.
package domain

import (
	"sort"
	"time"
)

// AssetType classifies an asset for allocation grouping.
type AssetType string

const (
	AssetTypeStock      AssetType = "stock"
	AssetTypeBond       AssetType = "bond"
	AssetTypeCommodity  AssetType = "commodity"
	AssetTypeRealEstate AssetType = "real_estate"
	AssetTypeCash       AssetType = "cash"
	AssetTypeCrypto     AssetType = "crypto"
	AssetTypeOther      AssetType = "other"
)

// Valid reports whether the asset type is one of the known values.
func (t AssetType) Valid() bool {
	switch t {
	case AssetTypeStock, AssetTypeBond, AssetTypeCommodity, AssetTypeRealEstate,
		AssetTypeCash, AssetTypeCrypto, AssetTypeOther:
		return true
	}
	return false
}

// TransactionType is the kind of a recorded transaction.
type TransactionType string

const (
	TransactionBuy      TransactionType = "buy"
	TransactionSell     TransactionType = "sell"
	TransactionDividend TransactionType = "dividend"
)

// Valid reports whether the transaction type is one of the known values.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionBuy, TransactionSell, TransactionDividend:
		return true
	}
	return false
}

// Transaction is a single buy/sell/dividend event on an asset.
// Quantity and Price are pointers because dividends carry an amount in
// Price without a quantity, and imported records may omit either.
type Transaction struct {
	ID       int64           `json:"id"`
	AssetID  int64           `json:"asset_id"`
	Type     TransactionType `json:"type"`
	Date     time.Time       `json:"date"`
	Quantity *float64        `json:"quantity,omitempty"`
	Price    *float64        `json:"price,omitempty"`
	Fees     float64         `json:"fees"`
	Notes    string          `json:"notes,omitempty"`
}

// SignedQuantity returns the quantity with buy positive and sell negative.
// Dividends do not change the held quantity and return 0.
func (t Transaction) SignedQuantity() float64 {
	if t.Quantity == nil {
		return 0
	}
	switch t.Type {
	case TransactionBuy:
		return *t.Quantity
	case TransactionSell:
		return -*t.Quantity
	default:
		return 0
	}
}

// Notional returns quantity*price for the transaction, signed like
// SignedQuantity. Used to value symbol-less assets directly from their
// transaction history.
func (t Transaction) Notional() float64 {
	if t.Quantity == nil || t.Price == nil {
		return 0
	}
	switch t.Type {
	case TransactionBuy:
		return *t.Quantity * *t.Price
	case TransactionSell:
		return -(*t.Quantity * *t.Price)
	default:
		return 0
	}
}

// AssetKind distinguishes how an asset is valued.
type AssetKind int

const (
	// KindTraded assets carry a symbol and are valued against market prices.
	KindTraded AssetKind = iota
	// KindValued assets (cash, real estate) have no symbol and are valued
	// at their cumulative transaction notional.
	KindValued
)

// Asset is a held instrument with its full transaction history.
type Asset struct {
	ID           int64         `json:"id"`
	PortfolioID  string        `json:"portfolio_id"`
	Name         string        `json:"name"`
	Symbol       string        `json:"symbol,omitempty"`
	Type         AssetType     `json:"type"`
	CurrentPrice float64       `json:"current_price"`
	Transactions []Transaction `json:"transactions,omitempty"`
}

// Kind returns how this asset is valued. The branch is exhaustive: every
// asset is either traded (has a symbol) or valued directly.
func (a Asset) Kind() AssetKind {
	if a.Symbol == "" {
		return KindValued
	}
	return KindTraded
}

// QuantityHeldAt returns the signed sum of buy/sell quantities with
// transaction date on or before the given date. Negative holdings from
// oversells are returned as-is, not clamped.
func (a Asset) QuantityHeldAt(date time.Time) float64 {
	var qty float64
	for _, txn := range a.Transactions {
		if !txn.Date.After(date) {
			qty += txn.SignedQuantity()
		}
	}
	return qty
}

// NotionalAt returns the signed cumulative transaction notional on or
// before the given date. Used for KindValued assets.
func (a Asset) NotionalAt(date time.Time) float64 {
	var total float64
	for _, txn := range a.Transactions {
		if !txn.Date.After(date) {
			total += txn.Notional()
		}
	}
	return total
}

// EarliestTransaction returns the date of the oldest transaction and
// whether one exists.
func (a Asset) EarliestTransaction() (time.Time, bool) {
	if len(a.Transactions) == 0 {
		return time.Time{}, false
	}
	earliest := a.Transactions[0].Date
	for _, txn := range a.Transactions[1:] {
		if txn.Date.Before(earliest) {
			earliest = txn.Date
		}
	}
	return earliest, true
}

// SortTransactions orders the asset's transactions by date ascending.
func (a *Asset) SortTransactions() {
	sort.Slice(a.Transactions, func(i, j int) bool {
		return a.Transactions[i].Date.Before(a.Transactions[j].Date)
	})
}
