package analytics

import (
	"sort"
	"time"

	"github.com/aristath/compass/internal/domain"
)

// AllocationByType groups current market value by asset type, expressed
// as a percentage of total portfolio value. Traded assets are valued at
// quantity held times current price; symbol-less assets at their
// cumulative transaction notional. When the total value is 0, every
// percentage is 0.
func AllocationByType(assets []domain.Asset, now time.Time) []TypeShare {
	if len(assets) == 0 {
		return []TypeShare{}
	}

	values := make(map[string]float64)
	var total float64
	for _, asset := range assets {
		value := currentValue(asset, now)
		values[string(asset.Type)] += value
		total += value
	}

	shares := make([]TypeShare, 0, len(values))
	for assetType, value := range values {
		share := TypeShare{Type: assetType, Value: value}
		if total != 0 {
			share.Percentage = value / total * 100
		}
		shares = append(shares, share)
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].Type < shares[j].Type })

	return shares
}

// CountAssetTypes tallies assets per type, independent of value.
func CountAssetTypes(assets []domain.Asset) []TypeCount {
	counts := make(map[string]int)
	for _, asset := range assets {
		counts[string(asset.Type)]++
	}

	tally := make([]TypeCount, 0, len(counts))
	for assetType, count := range counts {
		tally = append(tally, TypeCount{Type: assetType, Count: count})
	}
	sort.Slice(tally, func(i, j int) bool { return tally[i].Type < tally[j].Type })

	return tally
}

func currentValue(asset domain.Asset, now time.Time) float64 {
	if asset.Kind() == domain.KindValued {
		return asset.NotionalAt(now)
	}
	return asset.QuantityHeldAt(now) * asset.CurrentPrice
}
