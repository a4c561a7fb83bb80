package valuation

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// HoldingSummary is the computed position of a user on one asset, in the
// asset home currency.
//
// Nil values cannot be computed (no price, no exchange rate) and must never be
// read as zero.
type HoldingSummary struct {
	AssetID  string
	Symbol   string
	Name     string
	Type     AssetType
	Currency string

	Quantity      Quantity
	AverageCost   Money
	TotalInvested Money
	RealizedPnL   Money

	CurrentPrice         *Money
	CurrentValue         *Money
	UnrealizedPnL        *Money
	UnrealizedPnLPercent *Percent
	PriceAsOf            *time.Time

	// Weight is the share of the portfolio current value, set by Summarize.
	Weight *Percent
	// Oversold is the quantity sold beyond the held lots in the ledger.
	Oversold Quantity
}

// NewHoldingSummary builds the summary of a replayed position. The price is
// expected in the asset currency, nil when unknown.
func NewHoldingSummary(asset Asset, r Replay, price *Money, asOf *time.Time) HoldingSummary {
	h := HoldingSummary{
		AssetID:       asset.ID,
		Symbol:        asset.Symbol,
		Name:          asset.Name,
		Type:          asset.Type,
		Currency:      r.Currency,
		Quantity:      r.Quantity,
		AverageCost:   r.AverageCost(),
		TotalInvested: r.TotalCost,
		RealizedPnL:   r.RealizedPnL,
		Oversold:      r.Oversold,
	}
	if h.Symbol == "" {
		h.Symbol = asset.ID
	}
	if r.Closed() {
		// nothing held, nothing to value.
		zero := M(0, r.Currency)
		h.CurrentValue = &zero
		h.UnrealizedPnL = &zero
	}
	if price != nil {
		h.setPrice(*price, asOf)
	}
	return h
}

// setPrice values the holding at price.
func (h *HoldingSummary) setPrice(price Money, asOf *time.Time) {
	value := price.Mul(h.Quantity)
	pnl := value.Sub(h.TotalInvested)
	h.CurrentPrice = &price
	h.CurrentValue = &value
	h.UnrealizedPnL = &pnl
	h.PriceAsOf = asOf
	if h.TotalInvested.IsPositive() {
		pct := percentOf(pnl, h.TotalInvested)
		h.UnrealizedPnLPercent = &pct
	}
}

// sortAmount is the amount holdings are ranked by: the current value, or the
// invested amount when it is unknown.
func (h HoldingSummary) sortAmount() decimal.Decimal {
	return holdingAmount(h).Decimal()
}

// SortHoldings sorts holdings by descending current value, falling back to the
// invested amount when the value is unknown, then by symbol.
func SortHoldings(holdings []HoldingSummary) {
	slices.SortStableFunc(holdings, func(a, b HoldingSummary) int {
		if c := b.sortAmount().Cmp(a.sortAmount()); c != 0 {
			return c
		}
		return cmp.Compare(a.Symbol, b.Symbol)
	})
}

// scaled returns the holding with every amount multiplied by rate and
// relabelled in currency cur.
func (h HoldingSummary) scaled(rate decimal.Decimal, cur string) HoldingSummary {
	conv := func(m Money) Money { return m.Scale(rate).In(cur) }
	convPtr := func(m *Money) *Money {
		if m == nil {
			return nil
		}
		c := conv(*m)
		return &c
	}
	h.AverageCost = conv(h.AverageCost)
	h.TotalInvested = conv(h.TotalInvested)
	h.RealizedPnL = conv(h.RealizedPnL)
	h.CurrentPrice = convPtr(h.CurrentPrice)
	h.CurrentValue = convPtr(h.CurrentValue)
	h.UnrealizedPnL = convPtr(h.UnrealizedPnL)
	h.Currency = cur
	return h
}

// groupByAsset groups operations by asset id, keeping the first appearance
// order of the assets.
func groupByAsset(ops []Operation) (ids []string, groups map[string][]Operation) {
	groups = make(map[string][]Operation)
	for _, op := range ops {
		if _, ok := groups[op.AssetID]; !ok {
			ids = append(ids, op.AssetID)
		}
		groups[op.AssetID] = append(groups[op.AssetID], op)
	}
	return ids, groups
}
