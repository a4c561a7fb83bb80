package valuation

import (
	"maps"
	"slices"
)

// AssetTypeSummary aggregates the holdings of one asset type.
type AssetTypeSummary struct {
	Invested     Money
	CurrentValue *Money // nil as soon as one holding's value is unknown
	Count        int
}

// PortfolioSummary aggregates holdings expressed in a single currency.
//
// TotalInvested, TotalRealizedPnL and ByAssetType cover the holdings in
// Holdings only: the Excluded ones cannot be expressed in Currency and are
// left out of every total.
type PortfolioSummary struct {
	Currency           string
	TotalInvested      Money
	TotalCurrentValue  *Money
	TotalUnrealizedPnL *Money
	TotalRealizedPnL   Money
	Holdings           []HoldingSummary
	ByAssetType        map[AssetType]AssetTypeSummary

	// Excluded holdings could not be converted into Currency. When not empty,
	// the current value totals are unknown, and so is the current value of
	// their asset type.
	Excluded []HoldingSummary
}

// AssetTypes returns the asset types of the summary in alphabetical order.
func (s PortfolioSummary) AssetTypes() []AssetType {
	return slices.Sorted(maps.Keys(s.ByAssetType))
}

// nullableSum accumulates amounts that may be unknown. Once an unknown amount
// is added the sum stays unknown.
type nullableSum struct {
	sum     Money
	unknown bool
}

func (n *nullableSum) add(m *Money) {
	if n.unknown {
		return
	}
	if m == nil {
		n.unknown = true
		return
	}
	n.sum = n.sum.Add(*m)
}

func (n nullableSum) value() *Money {
	if n.unknown {
		return nil
	}
	v := n.sum
	return &v
}

// Summarize sums holdings, all expressed in currency, into a PortfolioSummary.
//
// Invested and realized amounts are always known. Current value and unrealized
// P&L totals are nil if any holding's value is unknown, and so are the
// per asset type current values. Holdings are copied and receive their Weight
// when the total current value is known and positive.
func Summarize(currency string, holdings []HoldingSummary) PortfolioSummary {
	s := PortfolioSummary{
		Currency:         currency,
		TotalInvested:    M(0, currency),
		TotalRealizedPnL: M(0, currency),
		Holdings:         slices.Clone(holdings),
		ByAssetType:      make(map[AssetType]AssetTypeSummary),
	}
	value := nullableSum{sum: M(0, currency)}
	pnl := nullableSum{sum: M(0, currency)}
	byType := make(map[AssetType]*nullableSum)

	for _, h := range s.Holdings {
		s.TotalInvested = s.TotalInvested.Add(h.TotalInvested)
		s.TotalRealizedPnL = s.TotalRealizedPnL.Add(h.RealizedPnL)
		value.add(h.CurrentValue)
		pnl.add(h.UnrealizedPnL)

		bucket := s.ByAssetType[h.Type]
		if bucket.Count == 0 {
			bucket.Invested = M(0, currency)
			byType[h.Type] = &nullableSum{sum: M(0, currency)}
		}
		bucket.Invested = bucket.Invested.Add(h.TotalInvested)
		bucket.Count++
		byType[h.Type].add(h.CurrentValue)
		s.ByAssetType[h.Type] = bucket
	}
	for typ, sum := range byType {
		bucket := s.ByAssetType[typ]
		bucket.CurrentValue = sum.value()
		s.ByAssetType[typ] = bucket
	}
	s.TotalCurrentValue = value.value()
	s.TotalUnrealizedPnL = pnl.value()

	if s.TotalCurrentValue != nil && s.TotalCurrentValue.IsPositive() {
		for i, h := range s.Holdings {
			if h.CurrentValue == nil {
				continue
			}
			w := percentOf(*h.CurrentValue, *s.TotalCurrentValue)
			s.Holdings[i].Weight = &w
		}
	}
	return s
}

// exclude marks holdings as not convertible: they are listed in Excluded and
// the current value totals become unknown.
func (s *PortfolioSummary) exclude(holdings ...HoldingSummary) {
	if len(holdings) == 0 {
		return
	}
	s.Excluded = append(s.Excluded, holdings...)
	s.TotalCurrentValue = nil
	s.TotalUnrealizedPnL = nil
	for i := range s.Holdings {
		s.Holdings[i].Weight = nil
	}
	for _, h := range holdings {
		if bucket, ok := s.ByAssetType[h.Type]; ok {
			bucket.CurrentValue = nil
			s.ByAssetType[h.Type] = bucket
		}
	}
}
