package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/aristath/compass/internal/domain"
	"github.com/aristath/compass/internal/modules/history"
)

// PriceSource is the read surface the valuation walk needs from the
// history database: daily closes with a date lower bound, plus the most
// recent live quote per symbol.
type PriceSource interface {
	GetDailyCloses(symbol string, from time.Time) ([]history.DailyPrice, error)
	GetLatestPrice(symbol string) (float64, bool, error)
}

// priceTrack walks one symbol's close series in date order, carrying the
// last seen close forward across gaps.
type priceTrack struct {
	closes []history.DailyPrice
	idx    int
	last   float64
	seen   bool
}

// at advances the track to the given day and returns the carried-forward
// close. Returns false until the first bar on or before the day exists.
func (p *priceTrack) at(day time.Time) (float64, bool) {
	for p.idx < len(p.closes) && !p.closes[p.idx].Date.After(day) {
		p.last = p.closes[p.idx].Close
		p.seen = true
		p.idx++
	}
	return p.last, p.seen
}

// BuildValuationSeries replays the assets' transactions against
// historical closes to produce an ascending daily value series spanning
// from the earliest transaction across all assets to now.
//
// Per day and asset: quantity held is the signed sum of buy/sell
// quantities dated on or before the day; the price is the most recent
// close on or before the day (carried forward across gaps); on the final
// day a live quote overrides the carried close. Assets without a symbol
// are valued at their cumulative signed transaction notional. An asset
// with no resolvable price contributes 0 for that day. Negative holdings
// from oversells flow into the valuation as-is.
func BuildValuationSeries(assets []domain.Asset, prices PriceSource, now time.Time) ([]PriceDataPoint, error) {
	start, ok := earliestTransaction(assets)
	if !ok {
		return []PriceDataPoint{}, nil
	}

	for i := range assets {
		assets[i].SortTransactions()
	}

	tracks := make(map[string]*priceTrack)
	for _, asset := range assets {
		if asset.Kind() != domain.KindTraded {
			continue
		}
		if _, ok := tracks[asset.Symbol]; ok {
			continue
		}
		closes, err := prices.GetDailyCloses(asset.Symbol, start)
		if err != nil {
			return nil, fmt.Errorf("failed to load closes for %s: %w", asset.Symbol, err)
		}
		tracks[asset.Symbol] = &priceTrack{closes: closes}
	}

	today := dayKey(now)
	var series []PriceDataPoint
	for day := dayKey(start); !day.After(today); day = day.AddDate(0, 0, 1) {
		var total float64
		for _, asset := range assets {
			total += assetValueAt(asset, day, today, tracks, prices)
		}
		series = append(series, PriceDataPoint{Date: day, Value: total})
	}

	return series, nil
}

func assetValueAt(asset domain.Asset, day, today time.Time, tracks map[string]*priceTrack, prices PriceSource) float64 {
	if asset.Kind() == domain.KindValued {
		return asset.NotionalAt(day)
	}

	qty := asset.QuantityHeldAt(day)
	if qty == 0 {
		return 0
	}

	price, ok := tracks[asset.Symbol].at(day)
	if day.Equal(today) {
		if live, found := resolveLivePrice(asset, prices); found {
			price, ok = live, true
		}
	}
	if !ok {
		return 0
	}

	return qty * price
}

// resolveLivePrice prefers the asset's own current price, falling back to
// the latest stored quote for its symbol.
func resolveLivePrice(asset domain.Asset, prices PriceSource) (float64, bool) {
	if asset.CurrentPrice > 0 {
		return asset.CurrentPrice, true
	}
	if price, ok, err := prices.GetLatestPrice(asset.Symbol); err == nil && ok {
		return price, true
	}
	return 0, false
}

func earliestTransaction(assets []domain.Asset) (time.Time, bool) {
	var earliest time.Time
	var found bool
	for _, asset := range assets {
		if date, ok := asset.EarliestTransaction(); ok {
			if !found || date.Before(earliest) {
				earliest = date
				found = true
			}
		}
	}
	return earliest, found
}

// BarsToSeries converts a benchmark bar series into a value series over
// its closes, for running the same return pipeline against the index.
func BarsToSeries(bars []history.DailyPrice) []PriceDataPoint {
	series := make([]PriceDataPoint, 0, len(bars))
	for _, bar := range bars {
		series = append(series, PriceDataPoint{Date: dayKey(bar.Date), Value: bar.Close})
	}
	SortSeries(series)
	return series
}

// SampleWeekly reduces a daily series to the first point (the anchor,
// so endpoint math like total return is preserved) plus the last value
// of each subsequent ISO week.
func SampleWeekly(series []PriceDataPoint) []PriceDataPoint {
	if len(series) == 0 {
		return []PriceDataPoint{}
	}

	weekly := []PriceDataPoint{series[0]}
	curYear, curWeek := series[0].Date.ISOWeek()
	for _, point := range series[1:] {
		year, week := point.Date.ISOWeek()
		if year != curYear || week != curWeek {
			curYear, curWeek = year, week
			weekly = append(weekly, point)
		} else if len(weekly) > 1 {
			weekly[len(weekly)-1] = point
		}
	}

	return weekly
}

// CollectCashFlows extracts net external flows from the assets'
// transactions: buys are inflows at cost including fees, sells are
// outflows at proceeds net of fees. Dividends are investment income, not
// external flows. Flows are returned merged per day, ascending.
func CollectCashFlows(assets []domain.Asset) []CashFlow {
	byDay := make(map[time.Time]float64)
	for _, asset := range assets {
		for _, txn := range asset.Transactions {
			if txn.Quantity == nil || txn.Price == nil {
				continue
			}
			switch txn.Type {
			case domain.TransactionBuy:
				byDay[dayKey(txn.Date)] += *txn.Quantity**txn.Price + txn.Fees
			case domain.TransactionSell:
				byDay[dayKey(txn.Date)] -= *txn.Quantity**txn.Price - txn.Fees
			}
		}
	}

	flows := make([]CashFlow, 0, len(byDay))
	for date, amount := range byDay {
		flows = append(flows, CashFlow{Date: date, Amount: amount})
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i].Date.Before(flows[j].Date) })

	return flows
}
