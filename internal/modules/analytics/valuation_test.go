package analytics

import (
	"testing"
	"time"

	"github.com/aristath/compass/internal/domain"
	"github.com/aristath/compass/internal/modules/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePriceSource serves canned closes and quotes.
type fakePriceSource struct {
	closes map[string][]history.DailyPrice
	latest map[string]float64
}

func (f *fakePriceSource) GetDailyCloses(symbol string, from time.Time) ([]history.DailyPrice, error) {
	var out []history.DailyPrice
	for _, p := range f.closes[symbol] {
		if !p.Date.Before(from) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePriceSource) GetLatestPrice(symbol string) (float64, bool, error) {
	price, ok := f.latest[symbol]
	return price, ok, nil
}

func utcDay(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func tradedAsset(symbol string, currentPrice float64, txns ...domain.Transaction) domain.Asset {
	return domain.Asset{
		Name:         symbol,
		Symbol:       symbol,
		Type:         domain.AssetTypeStock,
		CurrentPrice: currentPrice,
		Transactions: txns,
	}
}

func buy(date time.Time, qty, price float64) domain.Transaction {
	return domain.Transaction{Type: domain.TransactionBuy, Date: date, Quantity: &qty, Price: &price}
}

func sell(date time.Time, qty, price float64) domain.Transaction {
	return domain.Transaction{Type: domain.TransactionSell, Date: date, Quantity: &qty, Price: &price}
}

func TestBuildValuationSeries_SpansEarliestTransactionToNow(t *testing.T) {
	now := utcDay(2025, 1, 5)
	prices := &fakePriceSource{
		closes: map[string][]history.DailyPrice{
			"AAPL": {
				{Symbol: "AAPL", Date: utcDay(2025, 1, 1), Close: 100},
				{Symbol: "AAPL", Date: utcDay(2025, 1, 2), Close: 102},
				{Symbol: "AAPL", Date: utcDay(2025, 1, 3), Close: 104},
				{Symbol: "AAPL", Date: utcDay(2025, 1, 4), Close: 106},
				{Symbol: "AAPL", Date: utcDay(2025, 1, 5), Close: 108},
			},
		},
	}
	assets := []domain.Asset{tradedAsset("AAPL", 0, buy(utcDay(2025, 1, 2), 10, 102))}

	series, err := BuildValuationSeries(assets, prices, now)
	require.NoError(t, err)

	require.Len(t, series, 4) // Jan 2 through Jan 5
	assert.Equal(t, utcDay(2025, 1, 2), series[0].Date)
	assert.Equal(t, 1020.0, series[0].Value)
	assert.Equal(t, 1080.0, series[3].Value)
}

func TestBuildValuationSeries_CarriesPriceForward(t *testing.T) {
	now := utcDay(2025, 1, 6)
	prices := &fakePriceSource{
		closes: map[string][]history.DailyPrice{
			"AAPL": {
				{Symbol: "AAPL", Date: utcDay(2025, 1, 2), Close: 100},
				// Weekend gap: no bars Jan 4-5.
				{Symbol: "AAPL", Date: utcDay(2025, 1, 3), Close: 110},
				{Symbol: "AAPL", Date: utcDay(2025, 1, 6), Close: 120},
			},
		},
	}
	assets := []domain.Asset{tradedAsset("AAPL", 0, buy(utcDay(2025, 1, 2), 1, 100))}

	series, err := BuildValuationSeries(assets, prices, now)
	require.NoError(t, err)

	require.Len(t, series, 5)
	assert.Equal(t, 110.0, series[2].Value) // Jan 4 carries Jan 3 close
	assert.Equal(t, 110.0, series[3].Value) // Jan 5 too
	assert.Equal(t, 120.0, series[4].Value)
}

func TestBuildValuationSeries_NoPriceContributesZero(t *testing.T) {
	now := utcDay(2025, 1, 3)
	prices := &fakePriceSource{
		closes: map[string][]history.DailyPrice{
			"AAPL": {{Symbol: "AAPL", Date: utcDay(2025, 1, 3), Close: 100}},
		},
	}
	assets := []domain.Asset{tradedAsset("AAPL", 0, buy(utcDay(2025, 1, 1), 5, 100))}

	series, err := BuildValuationSeries(assets, prices, now)
	require.NoError(t, err)

	require.Len(t, series, 3)
	assert.Equal(t, 0.0, series[0].Value)
	assert.Equal(t, 0.0, series[1].Value)
	assert.Equal(t, 500.0, series[2].Value)
}

func TestBuildValuationSeries_CurrentPriceOverridesToday(t *testing.T) {
	now := utcDay(2025, 1, 3)
	prices := &fakePriceSource{
		closes: map[string][]history.DailyPrice{
			"AAPL": {
				{Symbol: "AAPL", Date: utcDay(2025, 1, 1), Close: 100},
				{Symbol: "AAPL", Date: utcDay(2025, 1, 3), Close: 104},
			},
		},
	}
	assets := []domain.Asset{tradedAsset("AAPL", 111, buy(utcDay(2025, 1, 1), 1, 100))}

	series, err := BuildValuationSeries(assets, prices, now)
	require.NoError(t, err)

	require.Len(t, series, 3)
	assert.Equal(t, 100.0, series[0].Value) // history, not the live quote
	assert.Equal(t, 111.0, series[2].Value) // live quote on the final day
}

func TestBuildValuationSeries_LatestStoreFallbackOnToday(t *testing.T) {
	now := utcDay(2025, 1, 2)
	prices := &fakePriceSource{
		closes: map[string][]history.DailyPrice{
			"AAPL": {{Symbol: "AAPL", Date: utcDay(2025, 1, 1), Close: 100}},
		},
		latest: map[string]float64{"AAPL": 107},
	}
	assets := []domain.Asset{tradedAsset("AAPL", 0, buy(utcDay(2025, 1, 1), 2, 100))}

	series, err := BuildValuationSeries(assets, prices, now)
	require.NoError(t, err)

	require.Len(t, series, 2)
	assert.Equal(t, 214.0, series[1].Value)
}

func TestBuildValuationSeries_ValuedAssetUsesNotional(t *testing.T) {
	now := utcDay(2025, 1, 3)
	cash := domain.Asset{
		Name: "Savings",
		Type: domain.AssetTypeCash,
		Transactions: []domain.Transaction{
			buy(utcDay(2025, 1, 1), 1, 5000),
			sell(utcDay(2025, 1, 3), 1, 1000),
		},
	}

	series, err := BuildValuationSeries([]domain.Asset{cash}, &fakePriceSource{}, now)
	require.NoError(t, err)

	require.Len(t, series, 3)
	assert.Equal(t, 5000.0, series[0].Value)
	assert.Equal(t, 5000.0, series[1].Value)
	assert.Equal(t, 4000.0, series[2].Value)
}

func TestBuildValuationSeries_NegativeHoldingsFlowThrough(t *testing.T) {
	now := utcDay(2025, 1, 2)
	prices := &fakePriceSource{
		closes: map[string][]history.DailyPrice{
			"AAPL": {
				{Symbol: "AAPL", Date: utcDay(2025, 1, 1), Close: 100},
				{Symbol: "AAPL", Date: utcDay(2025, 1, 2), Close: 100},
			},
		},
	}
	// Oversell: 3 sold against 1 bought. The negative position is
	// valued as-is.
	assets := []domain.Asset{tradedAsset("AAPL", 0,
		buy(utcDay(2025, 1, 1), 1, 100),
		sell(utcDay(2025, 1, 2), 3, 100),
	)}

	series, err := BuildValuationSeries(assets, prices, now)
	require.NoError(t, err)

	require.Len(t, series, 2)
	assert.Equal(t, 100.0, series[0].Value)
	assert.Equal(t, -200.0, series[1].Value)
}

func TestBuildValuationSeries_NoTransactions(t *testing.T) {
	series, err := BuildValuationSeries([]domain.Asset{{Symbol: "AAPL"}}, &fakePriceSource{}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, series)
}

func TestBuildValuationSeries_RoundTripTotalReturn(t *testing.T) {
	// Buys at a single price, valued at the current price: total return
	// must reproduce (current - purchase) / purchase.
	now := utcDay(2025, 1, 10)
	purchase, current := 100.0, 125.0
	closes := make([]history.DailyPrice, 0, 10)
	for d := 1; d <= 10; d++ {
		price := purchase
		if d == 10 {
			price = current
		}
		closes = append(closes, history.DailyPrice{Symbol: "AAPL", Date: utcDay(2025, 1, d), Close: price})
	}
	prices := &fakePriceSource{closes: map[string][]history.DailyPrice{"AAPL": closes}}
	assets := []domain.Asset{tradedAsset("AAPL", current,
		buy(utcDay(2025, 1, 1), 4, purchase),
		buy(utcDay(2025, 1, 1), 6, purchase),
	)}

	series, err := BuildValuationSeries(assets, prices, now)
	require.NoError(t, err)

	assert.InDelta(t, (current-purchase)/purchase, TotalReturn(series), 1e-12)
}

func TestSampleWeekly(t *testing.T) {
	// Mon Jan 6 2025 through Mon Jan 13.
	series := []PriceDataPoint{
		{Date: utcDay(2025, 1, 6), Value: 100},
		{Date: utcDay(2025, 1, 8), Value: 105},
		{Date: utcDay(2025, 1, 10), Value: 110},
		{Date: utcDay(2025, 1, 13), Value: 120},
	}

	weekly := SampleWeekly(series)

	require.Len(t, weekly, 2)
	assert.Equal(t, 100.0, weekly[0].Value) // anchor point
	assert.Equal(t, 120.0, weekly[1].Value)
}

func TestCollectCashFlows(t *testing.T) {
	day := utcDay(2025, 1, 2)
	aapl := tradedAsset("AAPL", 0, buy(day, 10, 100))
	aapl.Transactions[0].Fees = 5
	msft := tradedAsset("MSFT", 0, sell(day.AddDate(0, 0, 3), 2, 300))

	flows := CollectCashFlows([]domain.Asset{aapl, msft})

	require.Len(t, flows, 2)
	assert.Equal(t, day, flows[0].Date)
	assert.Equal(t, 1005.0, flows[0].Amount)
	assert.Equal(t, -600.0, flows[1].Amount)
}
